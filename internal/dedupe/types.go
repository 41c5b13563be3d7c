// Package dedupe orchestrates the grouping pipeline: embed, index, retrieve
// candidate pairs, adjudicate them with the pairwise oracle, fold verdicts
// into the disjoint-set, and assemble merged groups.
package dedupe

import (
	"context"
)

// PairOracle returns a same-entity verdict for two record payloads.
type PairOracle interface {
	AreDuplicates(ctx context.Context, dataA, dataB map[string]any) (bool, error)
}

// RecordMerger collapses the records of one group into a single record
// sharing their schema.
type RecordMerger interface {
	MergeRecords(ctx context.Context, records []map[string]any) (map[string]any, error)
}

// GroupResult is one deduplicated group: the disjoint-set root's id, the
// merged record, and the member record ids.
type GroupResult struct {
	GroupID    string         `json:"group_id"`
	MergedData map[string]any `json:"merged_data"`
	RecordIDs  []string       `json:"record_ids"`
}

// Result is the output of one dedupe request. Only groups of size >= 2
// appear; a record alone in its equivalence class is not a dedup result.
type Result struct {
	Groups []GroupResult `json:"groups"`
}

// Options are the pipeline tuning knobs.
type Options struct {
	// MaxNeighbors is k for the ANN neighbor search.
	MaxNeighbors int

	// CompareBatchSize is the oracle fan-out chunk size. A fixed chunk is
	// the back-pressure boundary: all calls within a chunk run in
	// parallel, and a chunk joins before the next one starts.
	CompareBatchSize int
}

// DefaultOptions returns the default pipeline options.
func DefaultOptions() Options {
	return Options{
		MaxNeighbors:     3,
		CompareBatchSize: 200,
	}
}
