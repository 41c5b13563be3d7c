package dedupe

import (
	"context"
	"log/slog"
	"time"

	"github.com/snowpilotorg/dedupit/internal/embed"
	derrors "github.com/snowpilotorg/dedupit/internal/errors"
	"github.com/snowpilotorg/dedupit/internal/record"
	"github.com/snowpilotorg/dedupit/internal/store"
)

// Service runs one dedupe request end to end. The embedder, oracle, and
// merger are long-lived and shared; the vector index and disjoint-set are
// created per request and released on every exit path.
type Service struct {
	embedder embed.Embedder
	oracle   PairOracle
	merger   RecordMerger
	opts     Options
}

// NewService creates the dedupe service.
func NewService(embedder embed.Embedder, oracle PairOracle, merger RecordMerger, opts Options) *Service {
	return &Service{
		embedder: embedder,
		oracle:   oracle,
		merger:   merger,
		opts:     opts,
	}
}

// Dedupe partitions the records into equivalence classes and merges each
// non-singleton class. Cancelling ctx aborts in-flight oracle calls; partial
// results are discarded.
func (s *Service) Dedupe(ctx context.Context, records []record.Record) (*Result, error) {
	start := time.Now()

	if err := validateRecords(records); err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return &Result{Groups: []GroupResult{}}, nil
	}

	index, err := store.NewHNSWIndex(store.DefaultVectorIndexConfig(s.embedder.Dimensions()))
	if err != nil {
		return nil, derrors.Wrap(derrors.ErrCodeSearchFailed, err)
	}
	defer func() { _ = index.Close() }()

	sets := store.NewDisjointSet()
	grouper := NewGrouper(s.embedder, index, sets, s.oracle, s.opts)

	if err := grouper.ProcessRecords(ctx, records); err != nil {
		return nil, err
	}

	result, err := NewAssembler(index, sets, s.merger).Assemble(ctx)
	if err != nil {
		return nil, err
	}

	slog.Info("dedupe complete",
		slog.Int("records", len(records)),
		slog.Int("groups", len(result.Groups)),
		slog.Duration("duration", time.Since(start)))
	return result, nil
}

// validateRecords checks that every record id is non-empty and unique
// within the request.
func validateRecords(records []record.Record) error {
	seen := make(map[string]struct{}, len(records))
	for _, r := range records {
		if r.ID == "" {
			return derrors.New(derrors.ErrCodeInvalidRecord, "record id must not be empty", nil)
		}
		if _, dup := seen[r.ID]; dup {
			return derrors.New(derrors.ErrCodeDuplicateID, "duplicate record id: "+r.ID, nil)
		}
		seen[r.ID] = struct{}{}
	}
	return nil
}
