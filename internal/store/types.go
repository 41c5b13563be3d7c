// Package store provides the request-scoped retrieval state: an HNSW vector
// index over record embeddings and the disjoint-set forest that accumulates
// oracle verdicts into groups.
package store

import (
	"context"
	"fmt"
)

// Entry is one indexed record: its id, embedding, and opaque payload.
type Entry struct {
	ID     string
	Vector []float32
	Data   map[string]any
}

// Hit is a single nearest-neighbor result.
type Hit struct {
	ID       string
	Data     map[string]any
	Distance float32
}

// VectorIndexConfig configures the vector index.
type VectorIndexConfig struct {
	// Dimensions is the fixed vector dimension; it must equal the
	// embedder's declared dimension.
	Dimensions int

	// M is the HNSW max connections per layer.
	M int

	// EfSearch is the HNSW query-time search width.
	EfSearch int
}

// DefaultVectorIndexConfig returns sensible defaults for the vector index.
func DefaultVectorIndexConfig(dimensions int) VectorIndexConfig {
	return VectorIndexConfig{
		Dimensions: dimensions,
		M:          16,
		EfSearch:   20,
	}
}

// VectorIndex stores embeddings and answers batched k-NN queries with
// per-query exclusion. Distance is cosine over unit-normalized vectors,
// matching the embedder's normalization.
type VectorIndex interface {
	// InsertBatch inserts all entries. Ids must be non-empty and unique in
	// the index; all vectors must match the configured dimension. Atomic
	// per batch: on any error the index is left unchanged.
	InsertBatch(ctx context.Context, entries []Entry) error

	// SearchBatch returns, for each query i, up to k entries ranked by
	// ascending distance (ties broken by id ascending), omitting the entry
	// whose id equals excludeIDs[i]. An empty exclude id excludes nothing.
	// Querying an empty index returns empty hit lists.
	SearchBatch(ctx context.Context, queries [][]float32, k int, excludeIDs []string) ([][]Hit, error)

	// Get returns the payloads for the given ids. Unknown ids are an error.
	Get(ids []string) ([]Entry, error)

	// Count returns the number of indexed entries.
	Count() int

	// Close releases resources. The index is request-scoped; Close must be
	// called on every exit path.
	Close() error
}

// ErrDimensionMismatch indicates a vector dimension mismatch, which is a
// programming error and fatal for the request.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}
