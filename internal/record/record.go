// Package record defines the input record model and its textual projection.
//
// A record's data is the variant tree that encoding/json produces for an
// arbitrary JSON object: map[string]any, []any, string, float64, bool, nil.
// The core treats it opaquely except for the projection used to embed it.
package record

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
)

// ReservedPrefix marks data fields owned by the service. Fields whose key
// starts with this prefix are excluded from the textual projection.
const ReservedPrefix = "_dedupit_"

// Reserved field names carried on records by callers that round-trip results.
const (
	RecordIDField = ReservedPrefix + "record_id"
	GroupIDField  = ReservedPrefix + "group_id"
)

// Record is one input record: an opaque id and arbitrary JSON data.
type Record struct {
	ID   string         `json:"id"`
	Data map[string]any `json:"data"`
}

// Projection renders a record's data as the single string that gets embedded.
// Field values are stringified and joined by single spaces; keys are not
// included. Fields with the reserved prefix are skipped. Go maps do not
// preserve document order, so fields are visited in key-sorted order, which
// keeps the projection (and therefore the embedding) deterministic for a
// fixed record.
func Projection(data map[string]any) string {
	keys := make([]string, 0, len(data))
	for k := range data {
		if strings.HasPrefix(k, ReservedPrefix) {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = Stringify(data[k])
	}
	return strings.Join(parts, " ")
}

// Stringify renders a single JSON value for the projection. Scalars render
// as their natural text; nested objects and arrays render as compact JSON.
func Stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case json.Number:
		return val.String()
	default:
		// Object or array: compact JSON is the closest analog of str(value).
		b, err := json.Marshal(val)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// PrettyJSON renders a data map as indented JSON for oracle and merger prompts.
func PrettyJSON(data map[string]any) string {
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(b)
}
