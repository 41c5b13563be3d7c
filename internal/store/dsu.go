package store

import (
	"sort"

	derrors "github.com/snowpilotorg/dedupit/internal/errors"
)

// DisjointSet maintains the partition of registered record ids under
// iterative merging. It is the in-memory forest equivalent of the
// (parent_id, rank) columns the index rows carry conceptually: every record
// starts as its own singleton and only parent pointers and ranks ever mutate.
//
// Not safe for concurrent use; the pipeline writes to it only after all
// oracle verdicts for a request are collected.
type DisjointSet struct {
	parent map[string]string
	rank   map[string]int
}

// NewDisjointSet creates an empty disjoint-set store.
func NewDisjointSet() *DisjointSet {
	return &DisjointSet{
		parent: make(map[string]string),
		rank:   make(map[string]int),
	}
}

// Register adds ids as singleton sets (parent = self, rank = 0).
// Registering an id twice is a programming error.
func (d *DisjointSet) Register(ids ...string) error {
	for _, id := range ids {
		if id == "" {
			return derrors.New(derrors.ErrCodeInvalidRecord, "record id must not be empty", nil)
		}
		if _, exists := d.parent[id]; exists {
			return derrors.New(derrors.ErrCodeDuplicateID, "record id already registered: "+id, nil)
		}
		d.parent[id] = id
		d.rank[id] = 0
	}
	return nil
}

// Len returns the number of registered records.
func (d *DisjointSet) Len() int {
	return len(d.parent)
}

// Find returns the root of id's set, compressing the path as it goes.
func (d *DisjointSet) Find(id string) (string, error) {
	root, ok := d.parent[id]
	if !ok {
		return "", derrors.New(derrors.ErrCodeUnknownRecord, "unknown record id: "+id, nil)
	}
	for root != d.parent[root] {
		root = d.parent[root]
	}

	// Path compression: point everything on the walk directly at the root.
	for id != root {
		next := d.parent[id]
		d.parent[id] = root
		id = next
	}

	return root, nil
}

// Union merges the sets of a and b using union by rank. On equal rank the
// lexicographically lower root wins the parent role and its rank increments.
// The id tie-break makes each union deterministic; which root a set ends up
// with still depends on the order of unions, and BatchUnion fixes that order.
func (d *DisjointSet) Union(a, b string) error {
	ra, err := d.Find(a)
	if err != nil {
		return err
	}
	rb, err := d.Find(b)
	if err != nil {
		return err
	}
	if ra == rb {
		return nil
	}

	switch {
	case d.rank[ra] > d.rank[rb]:
		d.parent[rb] = ra
	case d.rank[ra] < d.rank[rb]:
		d.parent[ra] = rb
	case ra < rb:
		d.parent[rb] = ra
		d.rank[ra]++
	default:
		d.parent[ra] = rb
		d.rank[rb]++
	}

	return nil
}

// BatchUnion applies all pairs. Pairs are normalized to (min, max) and
// applied in ascending sorted order, which is the reference order the
// batch-union contract is defined against. Duplicate pairs are harmless.
func (d *DisjointSet) BatchUnion(pairs [][2]string) error {
	if len(pairs) == 0 {
		return nil
	}

	normalized := make([][2]string, len(pairs))
	for i, p := range pairs {
		if p[0] <= p[1] {
			normalized[i] = p
		} else {
			normalized[i] = [2]string{p[1], p[0]}
		}
	}
	sort.Slice(normalized, func(i, j int) bool {
		if normalized[i][0] != normalized[j][0] {
			return normalized[i][0] < normalized[j][0]
		}
		return normalized[i][1] < normalized[j][1]
	})

	for _, p := range normalized {
		if err := d.Union(p[0], p[1]); err != nil {
			return err
		}
	}
	return nil
}

// Groups returns, for every registered record, the id of its current root.
func (d *DisjointSet) Groups() map[string]string {
	groups := make(map[string]string, len(d.parent))
	for id := range d.parent {
		root, _ := d.Find(id)
		groups[id] = root
	}
	return groups
}
