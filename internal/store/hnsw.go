package store

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/coder/hnsw"
)

// HNSWIndex implements VectorIndex using the coder/hnsw pure Go HNSW graph.
type HNSWIndex struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	config VectorIndexConfig

	// ID mapping (string <-> uint64) plus record payloads.
	idMap   map[string]uint64
	keyMap  map[uint64]string
	data    map[string]map[string]any
	nextKey uint64

	closed bool
}

var _ VectorIndex = (*HNSWIndex)(nil)

// NewHNSWIndex creates a new HNSW-backed vector index.
func NewHNSWIndex(cfg VectorIndexConfig) (*HNSWIndex, error) {
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive, got %d", cfg.Dimensions)
	}
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 20
	}

	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25

	return &HNSWIndex{
		graph:  graph,
		config: cfg,
		idMap:  make(map[string]uint64),
		keyMap: make(map[uint64]string),
		data:   make(map[string]map[string]any),
	}, nil
}

// InsertBatch inserts all entries. The whole batch is validated before the
// graph is touched, so a failed insert leaves the index unchanged.
func (s *HNSWIndex) InsertBatch(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("index is closed")
	}

	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if e.ID == "" {
			return fmt.Errorf("entry id must not be empty")
		}
		if _, dup := seen[e.ID]; dup {
			return fmt.Errorf("duplicate id %q in batch", e.ID)
		}
		seen[e.ID] = struct{}{}
		if _, exists := s.idMap[e.ID]; exists {
			return fmt.Errorf("id %q already indexed", e.ID)
		}
		if len(e.Vector) != s.config.Dimensions {
			return ErrDimensionMismatch{Expected: s.config.Dimensions, Got: len(e.Vector)}
		}
	}

	for _, e := range entries {
		key := s.nextKey
		s.nextKey++

		vec := make([]float32, len(e.Vector))
		copy(vec, e.Vector)
		normalizeVectorInPlace(vec)

		s.graph.Add(hnsw.MakeNode(key, vec))
		s.idMap[e.ID] = key
		s.keyMap[key] = e.ID
		s.data[e.ID] = e.Data
	}

	return nil
}

// SearchBatch answers every query in one pass over the shared graph. Each
// query carries its own excluded id, so a record never retrieves itself.
func (s *HNSWIndex) SearchBatch(ctx context.Context, queries [][]float32, k int, excludeIDs []string) ([][]Hit, error) {
	if len(excludeIDs) != 0 && len(excludeIDs) != len(queries) {
		return nil, fmt.Errorf("queries and excludeIDs length mismatch: %d vs %d", len(queries), len(excludeIDs))
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("index is closed")
	}

	results := make([][]Hit, len(queries))
	for i, query := range queries {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		exclude := ""
		if len(excludeIDs) != 0 {
			exclude = excludeIDs[i]
		}

		hits, err := s.searchOne(query, k, exclude)
		if err != nil {
			return nil, fmt.Errorf("query %d: %w", i, err)
		}
		results[i] = hits
	}

	return results, nil
}

// searchOne runs a single k-NN query. Caller holds the read lock.
func (s *HNSWIndex) searchOne(query []float32, k int, exclude string) ([]Hit, error) {
	if len(query) != s.config.Dimensions {
		return nil, ErrDimensionMismatch{Expected: s.config.Dimensions, Got: len(query)}
	}

	if s.graph.Len() == 0 {
		return []Hit{}, nil
	}

	normalized := make([]float32, len(query))
	copy(normalized, query)
	normalizeVectorInPlace(normalized)

	// Over-fetch by one so a self-match does not shrink the result set.
	nodes := s.graph.Search(normalized, k+1)

	hits := make([]Hit, 0, len(nodes))
	for _, node := range nodes {
		id, exists := s.keyMap[node.Key]
		if !exists {
			continue
		}
		if exclude != "" && id == exclude {
			continue
		}
		hits = append(hits, Hit{
			ID:       id,
			Data:     s.data[id],
			Distance: s.graph.Distance(normalized, node.Value),
		})
	}

	// Ascending distance, ties broken by id ascending.
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Distance != hits[j].Distance {
			return hits[i].Distance < hits[j].Distance
		}
		return hits[i].ID < hits[j].ID
	})

	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Get returns the payloads for the given ids.
func (s *HNSWIndex) Get(ids []string) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("index is closed")
	}

	entries := make([]Entry, 0, len(ids))
	for _, id := range ids {
		data, ok := s.data[id]
		if !ok {
			return nil, fmt.Errorf("unknown id %q", id)
		}
		entries = append(entries, Entry{ID: id, Data: data})
	}
	return entries, nil
}

// Count returns the number of indexed entries.
func (s *HNSWIndex) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0
	}
	return len(s.idMap)
}

// Close releases resources.
func (s *HNSWIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.graph = nil
	s.data = nil
	return nil
}

// normalizeVectorInPlace normalizes a vector to unit length in place.
func normalizeVectorInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	invMagnitude := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= invMagnitude
	}
}
