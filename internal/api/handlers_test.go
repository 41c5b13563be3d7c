package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snowpilotorg/dedupit/internal/dedupe"
	derrors "github.com/snowpilotorg/dedupit/internal/errors"
	"github.com/snowpilotorg/dedupit/internal/record"
)

// fakeDeduper records whether it was invoked and returns a scripted result.
type fakeDeduper struct {
	called bool
	result *dedupe.Result
	err    error
}

func (f *fakeDeduper) Dedupe(_ context.Context, records []record.Record) (*dedupe.Result, error) {
	f.called = true
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &dedupe.Result{Groups: []dedupe.GroupResult{}}, nil
}

func newTestRouter(deduper Deduper) http.Handler {
	return NewRouter(
		NewDedupeHandler(deduper, 100, 100*1024),
		NewHealthHandler(8080),
	)
}

func postDedupe(t *testing.T, handler http.Handler, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/dedupe", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHandleDedupe_EmptyRequest(t *testing.T) {
	rec := postDedupe(t, newTestRouter(&fakeDeduper{}), []byte(`[]`))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"groups": []}`, rec.Body.String())
}

func TestHandleDedupe_TooManyRecordsRejected(t *testing.T) {
	// Given: 101 records
	records := make([]record.Record, 101)
	for i := range records {
		records[i] = record.Record{ID: fmt.Sprintf("r%d", i), Data: map[string]any{"n": i}}
	}
	body, err := json.Marshal(records)
	require.NoError(t, err)

	deduper := &fakeDeduper{}
	rec := postDedupe(t, newTestRouter(deduper), body)

	// Then: 413, and no pipeline work happened
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Contains(t, rec.Body.String(), "Too many records")
	assert.False(t, deduper.called)
}

func TestHandleDedupe_OversizedBodyRejected(t *testing.T) {
	// A single record whose data blows past the 100KiB limit.
	big := strings.Repeat("x", 110*1024)
	body := []byte(`[{"id":"a","data":{"blob":"` + big + `"}}]`)

	deduper := &fakeDeduper{}
	rec := postDedupe(t, newTestRouter(deduper), body)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Contains(t, rec.Body.String(), "Request too large")
	assert.False(t, deduper.called)
}

func TestHandleDedupe_MalformedJSONRejected(t *testing.T) {
	deduper := &fakeDeduper{}
	rec := postDedupe(t, newTestRouter(deduper), []byte(`{not json`))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, deduper.called)
}

func TestHandleDedupe_ResultPassthrough(t *testing.T) {
	deduper := &fakeDeduper{result: &dedupe.Result{Groups: []dedupe.GroupResult{
		{
			GroupID:    "a",
			MergedData: map[string]any{"name": "Acme Inc."},
			RecordIDs:  []string{"a", "b"},
		},
	}}}
	rec := postDedupe(t, newTestRouter(deduper),
		[]byte(`[{"id":"a","data":{"name":"Acme Inc."}},{"id":"b","data":{"name":"Acme Corp"}}]`))

	assert.Equal(t, http.StatusOK, rec.Code)

	var result dedupe.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.Len(t, result.Groups, 1)
	assert.Equal(t, "a", result.Groups[0].GroupID)
	assert.Equal(t, []string{"a", "b"}, result.Groups[0].RecordIDs)
}

func TestHandleDedupe_ValidationErrorsMapTo400(t *testing.T) {
	deduper := &fakeDeduper{err: derrors.New(derrors.ErrCodeDuplicateID, "duplicate record id: a", nil)}
	rec := postDedupe(t, newTestRouter(deduper),
		[]byte(`[{"id":"a","data":{}},{"id":"a","data":{}}]`))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleDedupe_PipelineErrorsMapTo500(t *testing.T) {
	deduper := &fakeDeduper{err: derrors.New(derrors.ErrCodeOracleFailed, "oracle unavailable", nil)}
	rec := postDedupe(t, newTestRouter(deduper), []byte(`[{"id":"a","data":{}}]`))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "oracle unavailable")
}

func TestHandleDedupe_MethodNotAllowed(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/dedupe", nil)
	rec := httptest.NewRecorder()
	newTestRouter(&fakeDeduper{}).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandleHealth(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	newTestRouter(&fakeDeduper{}).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, float64(8080), body["port"])
}
