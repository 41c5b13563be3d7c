package dedupe

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/snowpilotorg/dedupit/internal/store"
)

// Assembler flattens the disjoint-set forest into groups and merges each
// non-singleton group into one canonical record.
type Assembler struct {
	index  store.VectorIndex
	sets   *store.DisjointSet
	merger RecordMerger
}

// NewAssembler creates an assembler over the request-scoped state.
func NewAssembler(index store.VectorIndex, sets *store.DisjointSet, merger RecordMerger) *Assembler {
	return &Assembler{index: index, sets: sets, merger: merger}
}

// Assemble materializes the groups. Singletons are omitted; every group of
// size >= 2 is merged exactly once, with all merges running concurrently.
// Group order in the result is unspecified.
func (a *Assembler) Assemble(ctx context.Context) (*Result, error) {
	start := time.Now()

	members := make(map[string][]string)
	for id, groupID := range a.sets.Groups() {
		members[groupID] = append(members[groupID], id)
	}

	var groupIDs []string
	for groupID, ids := range members {
		if len(ids) < 2 {
			continue
		}
		groupIDs = append(groupIDs, groupID)
	}
	sort.Strings(groupIDs)

	result := &Result{Groups: make([]GroupResult, len(groupIDs))}

	eg, egCtx := errgroup.WithContext(ctx)
	for i, groupID := range groupIDs {
		ids := members[groupID]
		sort.Strings(ids)

		entries, err := a.index.Get(ids)
		if err != nil {
			return nil, err
		}
		records := make([]map[string]any, len(entries))
		for j, e := range entries {
			records[j] = e.Data
		}

		eg.Go(func() error {
			merged, err := a.merger.MergeRecords(egCtx, records)
			if err != nil {
				return err
			}
			result.Groups[i] = GroupResult{
				GroupID:    groupID,
				MergedData: merged,
				RecordIDs:  ids,
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	slog.Info("assembled groups",
		slog.Int("records", a.sets.Len()),
		slog.Int("groups", len(result.Groups)),
		slog.Duration("duration", time.Since(start)))
	return result, nil
}
