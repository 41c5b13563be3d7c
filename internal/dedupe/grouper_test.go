package dedupe

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snowpilotorg/dedupit/internal/embed"
	"github.com/snowpilotorg/dedupit/internal/record"
	"github.com/snowpilotorg/dedupit/internal/store"
)

// newPipeline builds a request-scoped grouper over the static embedder.
func newPipeline(t *testing.T, oracle PairOracle, opts Options) (*Grouper, *store.DisjointSet, store.VectorIndex) {
	t.Helper()

	embedder := embed.NewStaticEmbedder()
	t.Cleanup(func() { _ = embedder.Close() })

	index, err := store.NewHNSWIndex(store.DefaultVectorIndexConfig(embedder.Dimensions()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = index.Close() })

	sets := store.NewDisjointSet()
	return NewGrouper(embedder, index, sets, oracle, opts), sets, index
}

func sampleRecords() []record.Record {
	return []record.Record{
		{ID: "a", Data: map[string]any{"name": "Acme Inc.", "addr": "1 Main St"}},
		{ID: "b", Data: map[string]any{"name": "Acme Corporation", "addr": "1 Main St"}},
		{ID: "c", Data: map[string]any{"name": "Globex", "addr": "99 Oak"}},
	}
}

func TestGrouper_AllNegativeVerdictsKeepSingletons(t *testing.T) {
	oracle := &alwaysOracle{verdict: false}
	g, sets, _ := newPipeline(t, oracle, DefaultOptions())

	require.NoError(t, g.ProcessRecords(context.Background(), sampleRecords()))

	groups := sets.Groups()
	assert.Equal(t, "a", groups["a"])
	assert.Equal(t, "b", groups["b"])
	assert.Equal(t, "c", groups["c"])
	assert.Greater(t, oracle.callCount(), 0)
}

func TestGrouper_AllPositiveVerdictsSingleGroup(t *testing.T) {
	oracle := &alwaysOracle{verdict: true}
	g, sets, _ := newPipeline(t, oracle, DefaultOptions())

	require.NoError(t, g.ProcessRecords(context.Background(), sampleRecords()))

	groups := sets.Groups()
	assert.Equal(t, groups["a"], groups["b"])
	assert.Equal(t, groups["b"], groups["c"])
}

func TestGrouper_PositivePairUnionsExactlyThatPair(t *testing.T) {
	// Oracle says YES only for (a, b).
	oracle := &scriptedOracle{verdicts: map[string]bool{
		"Acme Corporation|Acme Inc.": true,
	}}
	g, sets, _ := newPipeline(t, oracle, DefaultOptions())

	require.NoError(t, g.ProcessRecords(context.Background(), sampleRecords()))

	groups := sets.Groups()
	assert.Equal(t, groups["a"], groups["b"])
	assert.Equal(t, "c", groups["c"])
}

func TestGrouper_TransitiveLinkage(t *testing.T) {
	// YES for (a,b) and (b,c), NO for (a,c): union-find closes transitivity.
	records := []record.Record{
		{ID: "a", Data: map[string]any{"name": "ra"}},
		{ID: "b", Data: map[string]any{"name": "rb"}},
		{ID: "c", Data: map[string]any{"name": "rc"}},
	}
	oracle := &scriptedOracle{verdicts: map[string]bool{
		"ra|rb": true,
		"rb|rc": true,
	}}
	g, sets, _ := newPipeline(t, oracle, DefaultOptions())

	require.NoError(t, g.ProcessRecords(context.Background(), records))

	groups := sets.Groups()
	assert.Equal(t, groups["a"], groups["b"])
	assert.Equal(t, groups["a"], groups["c"])
}

func TestGrouper_EmptyInputNoOracleCalls(t *testing.T) {
	oracle := &alwaysOracle{verdict: true}
	g, sets, index := newPipeline(t, oracle, DefaultOptions())

	require.NoError(t, g.ProcessRecords(context.Background(), nil))

	assert.Zero(t, oracle.callCount())
	assert.Zero(t, sets.Len())
	assert.Zero(t, index.Count())
}

func TestGrouper_SingleRecordNoPairs(t *testing.T) {
	oracle := &alwaysOracle{verdict: true}
	g, sets, index := newPipeline(t, oracle, DefaultOptions())

	require.NoError(t, g.ProcessRecords(context.Background(),
		[]record.Record{{ID: "a", Data: map[string]any{"name": "solo"}}}))

	assert.Zero(t, oracle.callCount())
	assert.Equal(t, 1, index.Count())
	assert.Equal(t, map[string]string{"a": "a"}, sets.Groups())
}

func TestGrouper_SmallChunksCoverAllPairs(t *testing.T) {
	// A chunk size smaller than the pair count exercises the chunked
	// fan-out: every chunk joins before the next starts, and verdicts
	// stay aligned with their pairs.
	records := make([]record.Record, 8)
	verdicts := make(map[string]bool)
	for i := range records {
		records[i] = record.Record{
			ID:   fmt.Sprintf("r%d", i),
			Data: map[string]any{"name": fmt.Sprintf("entity-%d", i)},
		}
	}
	// Link consecutive pairs only.
	for i := 0; i+1 < len(records); i += 2 {
		verdicts[pairKey(records[i].Data, records[i+1].Data)] = true
	}

	oracle := &scriptedOracle{verdicts: verdicts, delay: time.Millisecond}
	g, sets, _ := newPipeline(t, oracle, Options{MaxNeighbors: 7, CompareBatchSize: 3})

	require.NoError(t, g.ProcessRecords(context.Background(), records))

	groups := sets.Groups()
	for i := 0; i+1 < len(records); i += 2 {
		assert.Equal(t, groups[records[i].ID], groups[records[i+1].ID])
	}
	assert.NotEqual(t, groups["r0"], groups["r2"])
}

func TestGrouper_OracleErrorAbortsPipeline(t *testing.T) {
	oracle := &scriptedOracle{err: errors.New("oracle unavailable")}
	g, sets, _ := newPipeline(t, oracle, DefaultOptions())

	err := g.ProcessRecords(context.Background(), sampleRecords())
	require.Error(t, err)

	// No unions happened; records remain singletons.
	groups := sets.Groups()
	for id, root := range groups {
		assert.Equal(t, id, root)
	}
}

func TestGrouper_CancellationPropagates(t *testing.T) {
	oracle := &scriptedOracle{delay: 500 * time.Millisecond}
	g, _, _ := newPipeline(t, oracle, DefaultOptions())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := g.ProcessRecords(ctx, sampleRecords())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGrouper_ProcessRecordStreaming(t *testing.T) {
	oracle := &alwaysOracle{verdict: true}
	g, sets, _ := newPipeline(t, oracle, DefaultOptions())

	for _, r := range sampleRecords() {
		require.NoError(t, g.ProcessRecord(context.Background(), r))
	}

	groups := sets.Groups()
	assert.Equal(t, groups["a"], groups["b"])
	assert.Equal(t, groups["b"], groups["c"])
}
