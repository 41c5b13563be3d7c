package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/snowpilotorg/dedupit/internal/dedupe"
	derrors "github.com/snowpilotorg/dedupit/internal/errors"
	"github.com/snowpilotorg/dedupit/internal/record"
)

// Deduper runs one dedupe request; implemented by dedupe.Service.
type Deduper interface {
	Dedupe(ctx context.Context, records []record.Record) (*dedupe.Result, error)
}

// DedupeHandler handles POST /dedupe.
type DedupeHandler struct {
	service    Deduper
	maxRecords int
	maxBody    int64
}

// NewDedupeHandler creates the handler with its request limits. Both limits
// are enforced before any embedding or oracle work starts.
func NewDedupeHandler(service Deduper, maxRecords int, maxBody int64) *DedupeHandler {
	return &DedupeHandler{
		service:    service,
		maxRecords: maxRecords,
		maxBody:    maxBody,
	}
}

// HandleDedupe processes one dedupe request.
func (h *DedupeHandler) HandleDedupe(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)

	var records []record.Record
	if err := json.NewDecoder(r.Body).Decode(&records); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("Request too large. Maximum allowed size is %dKB.", h.maxBody/1024))
			return
		}
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if len(records) > h.maxRecords {
		writeError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("Too many records. Maximum allowed is %d records.", h.maxRecords))
		return
	}

	result, err := h.service.Dedupe(r.Context(), records)
	if err != nil {
		slog.Error("dedupe request failed",
			slog.String("error", err.Error()),
			slog.Duration("duration", time.Since(start)))
		writeError(w, statusFor(err), err.Error())
		return
	}

	slog.Info("dedupe request complete",
		slog.Int("records", len(records)),
		slog.Int("groups", len(result.Groups)),
		slog.Duration("duration", time.Since(start)))
	writeJSON(w, http.StatusOK, result)
}

// statusFor maps a pipeline error to an HTTP status code.
func statusFor(err error) int {
	switch derrors.GetCode(err) {
	case derrors.ErrCodeTooManyRecords, derrors.ErrCodeBodyTooLarge:
		return http.StatusRequestEntityTooLarge
	case derrors.ErrCodeInvalidRecord, derrors.ErrCodeDuplicateID:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// HealthHandler handles GET /health.
type HealthHandler struct {
	port int
}

// NewHealthHandler creates the health handler.
func NewHealthHandler(port int) *HealthHandler {
	return &HealthHandler{port: port}
}

// HandleHealth reports liveness.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "healthy",
		"port":   h.port,
	})
}
