package dedupe

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/snowpilotorg/dedupit/internal/embed"
	"github.com/snowpilotorg/dedupit/internal/record"
	"github.com/snowpilotorg/dedupit/internal/store"
)

// e5PassagePrefix is the text prefix the e5 embedding family expects on
// indexed passages.
const e5PassagePrefix = "passage: "

// Grouper runs the grouping pipeline over a request's records.
type Grouper struct {
	embedder embed.Embedder
	index    store.VectorIndex
	sets     *store.DisjointSet
	oracle   PairOracle
	opts     Options
}

// NewGrouper creates a grouper over the request-scoped index and forest.
func NewGrouper(embedder embed.Embedder, index store.VectorIndex, sets *store.DisjointSet, oracle PairOracle, opts Options) *Grouper {
	if opts.MaxNeighbors <= 0 {
		opts.MaxNeighbors = DefaultOptions().MaxNeighbors
	}
	if opts.CompareBatchSize <= 0 {
		opts.CompareBatchSize = DefaultOptions().CompareBatchSize
	}
	return &Grouper{
		embedder: embedder,
		index:    index,
		sets:     sets,
		oracle:   oracle,
		opts:     opts,
	}
}

// candidatePair is one oracle hypothesis, bookkept by record ids so the
// verdict can be re-aligned after the fan-out.
type candidatePair struct {
	idA   string
	idB   string
	dataA map[string]any
	dataB map[string]any
}

// ProcessRecords runs the batched pipeline: embed and insert all records,
// retrieve neighbors for all of them in one batched query, fan candidate
// pairs out to the oracle in fixed-size chunks, and union the matches.
func (g *Grouper) ProcessRecords(ctx context.Context, records []record.Record) error {
	if len(records) == 0 {
		return nil
	}

	start := time.Now()

	vectors, err := g.embedAndInsert(ctx, records)
	if err != nil {
		return err
	}

	excludeIDs := make([]string, len(records))
	for i, r := range records {
		excludeIDs[i] = r.ID
	}
	neighbors, err := g.index.SearchBatch(ctx, vectors, g.opts.MaxNeighbors, excludeIDs)
	if err != nil {
		return fmt.Errorf("neighbor search: %w", err)
	}

	// The same logical pair may appear once from each endpoint's neighbor
	// list; duplicates are harmless for the union.
	var pairs []candidatePair
	for i, r := range records {
		for _, hit := range neighbors[i] {
			pairs = append(pairs, candidatePair{
				idA:   r.ID,
				idB:   hit.ID,
				dataA: r.Data,
				dataB: hit.Data,
			})
		}
	}

	matches, err := g.comparePairs(ctx, pairs)
	if err != nil {
		return err
	}

	if err := g.sets.BatchUnion(matches); err != nil {
		return err
	}

	slog.Info("processed records",
		slog.Int("records", len(records)),
		slog.Int("candidate_pairs", len(pairs)),
		slog.Int("matches", len(matches)),
		slog.Duration("duration", time.Since(start)))
	return nil
}

// ProcessRecord is the streaming per-record form: insert one record, compare
// it against its neighbors, and union each match once all of its verdicts
// are in.
func (g *Grouper) ProcessRecord(ctx context.Context, r record.Record) error {
	vectors, err := g.embedAndInsert(ctx, []record.Record{r})
	if err != nil {
		return err
	}

	neighbors, err := g.index.SearchBatch(ctx, vectors, g.opts.MaxNeighbors, []string{r.ID})
	if err != nil {
		return fmt.Errorf("neighbor search: %w", err)
	}

	pairs := make([]candidatePair, 0, len(neighbors[0]))
	for _, hit := range neighbors[0] {
		pairs = append(pairs, candidatePair{idA: r.ID, idB: hit.ID, dataA: r.Data, dataB: hit.Data})
	}

	matches, err := g.comparePairs(ctx, pairs)
	if err != nil {
		return err
	}
	for _, m := range matches {
		if err := g.sets.Union(m[0], m[1]); err != nil {
			return err
		}
	}
	return nil
}

// embedAndInsert computes embeddings for the records, inserts them into the
// vector index, and registers them as disjoint-set singletons.
func (g *Grouper) embedAndInsert(ctx context.Context, records []record.Record) ([][]float32, error) {
	start := time.Now()

	texts := make([]string, len(records))
	for i, r := range records {
		texts[i] = e5PassagePrefix + record.Projection(r.Data)
	}

	vectors, err := g.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed batch: %w", err)
	}

	entries := make([]store.Entry, len(records))
	for i, r := range records {
		entries[i] = store.Entry{ID: r.ID, Vector: vectors[i], Data: r.Data}
	}
	if err := g.index.InsertBatch(ctx, entries); err != nil {
		return nil, fmt.Errorf("insert batch: %w", err)
	}

	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	if err := g.sets.Register(ids...); err != nil {
		return nil, err
	}

	slog.Debug("embedded and indexed",
		slog.Int("records", len(records)),
		slog.Duration("duration", time.Since(start)))
	return vectors, nil
}

// comparePairs fans candidate pairs out to the oracle in chunks of
// CompareBatchSize. Within a chunk every call runs concurrently and verdicts
// land at their pair's index, so completion order never affects the result;
// a chunk joins fully before the next one starts.
func (g *Grouper) comparePairs(ctx context.Context, pairs []candidatePair) ([][2]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}

	start := time.Now()
	verdicts := make([]bool, len(pairs))

	for chunkStart := 0; chunkStart < len(pairs); chunkStart += g.opts.CompareBatchSize {
		chunkEnd := min(chunkStart+g.opts.CompareBatchSize, len(pairs))

		eg, egCtx := errgroup.WithContext(ctx)
		for i := chunkStart; i < chunkEnd; i++ {
			eg.Go(func() error {
				match, err := g.oracle.AreDuplicates(egCtx, pairs[i].dataA, pairs[i].dataB)
				if err != nil {
					return err
				}
				verdicts[i] = match
				return nil
			})
		}
		if err := eg.Wait(); err != nil {
			return nil, err
		}
	}

	var matches [][2]string
	for i, pair := range pairs {
		if verdicts[i] {
			matches = append(matches, [2]string{pair.idA, pair.idB})
		}
	}

	slog.Info("compared candidate pairs",
		slog.Int("pairs", len(pairs)),
		slog.Int("matches", len(matches)),
		slog.Duration("duration", time.Since(start)))
	return matches, nil
}
