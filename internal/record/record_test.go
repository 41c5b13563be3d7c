package record

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProjection_JoinsValuesNotKeys(t *testing.T) {
	data := map[string]any{
		"addr": "1 Main St",
		"name": "Acme Inc.",
	}

	got := Projection(data)

	// Key-sorted order: addr before name; keys themselves never appear.
	assert.Equal(t, "1 Main St Acme Inc.", got)
	assert.NotContains(t, got, "addr")
	assert.NotContains(t, got, "name")
}

func TestProjection_IgnoresReservedFields(t *testing.T) {
	// Given: a record with and without a reserved field
	data := map[string]any{
		"name": "Acme Inc.",
	}
	withReserved := map[string]any{
		"name":          "Acme Inc.",
		RecordIDField:   "r-123",
		GroupIDField:    "g-456",
		"_dedupit_misc": "internal",
	}

	// Then: toggling reserved fields does not change the projection
	assert.Equal(t, Projection(data), Projection(withReserved))
}

func TestProjection_EmptyValuesContributeEmptyToken(t *testing.T) {
	data := map[string]any{
		"a": "x",
		"b": nil,
		"c": "y",
	}

	assert.Equal(t, "x  y", Projection(data))
}

func TestProjection_Deterministic(t *testing.T) {
	data := map[string]any{
		"name":  "Globex",
		"addr":  "99 Oak",
		"phone": "555-0100",
	}

	first := Projection(data)
	for range 20 {
		assert.Equal(t, first, Projection(data))
	}
}

func TestStringify(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  string
	}{
		{"string", "hello", "hello"},
		{"bool", true, "true"},
		{"integer-valued float", float64(42), "42"},
		{"fractional float", 3.14, "3.14"},
		{"nil", nil, ""},
		{"nested object", map[string]any{"city": "Anytown"}, `{"city":"Anytown"}`},
		{"array", []any{"a", float64(1)}, `["a",1]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Stringify(tt.value))
		})
	}
}

func TestRecord_JSONRoundTrip(t *testing.T) {
	raw := `{"id":"a","data":{"name":"Acme Inc.","employees":120,"active":true}}`

	var r Record
	require.NoError(t, json.Unmarshal([]byte(raw), &r))

	assert.Equal(t, "a", r.ID)
	assert.Equal(t, "Acme Inc.", r.Data["name"])
	assert.Equal(t, float64(120), r.Data["employees"])
	assert.Equal(t, true, r.Data["active"])
}
