package dedupe

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// pairKey builds an unordered key from the "name" field of two payloads, so
// scripted verdicts are independent of which endpoint generated the pair.
func pairKey(dataA, dataB map[string]any) string {
	a := fmt.Sprint(dataA["name"])
	b := fmt.Sprint(dataB["name"])
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}

// scriptedOracle answers from a fixed unordered-pair verdict map.
// Unlisted pairs are negative. Safe for concurrent use.
type scriptedOracle struct {
	mu       sync.Mutex
	verdicts map[string]bool
	calls    int
	delay    time.Duration
	err      error
}

func (o *scriptedOracle) AreDuplicates(ctx context.Context, dataA, dataB map[string]any) (bool, error) {
	if o.delay > 0 {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(o.delay):
		}
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls++
	if o.err != nil {
		return false, o.err
	}
	return o.verdicts[pairKey(dataA, dataB)], nil
}

func (o *scriptedOracle) callCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.calls
}

// alwaysOracle returns a fixed verdict for every pair.
type alwaysOracle struct {
	verdict bool
	mu      sync.Mutex
	calls   int
}

func (o *alwaysOracle) AreDuplicates(ctx context.Context, _, _ map[string]any) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls++
	return o.verdict, nil
}

func (o *alwaysOracle) callCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.calls
}

// fakeMerger concatenates the "name" fields and records every invocation.
type fakeMerger struct {
	mu    sync.Mutex
	sizes []int
}

func (m *fakeMerger) MergeRecords(ctx context.Context, records []map[string]any) (map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sizes = append(m.sizes, len(records))

	names := make([]string, len(records))
	for i, r := range records {
		names[i] = fmt.Sprint(r["name"])
	}
	sort.Strings(names)
	return map[string]any{"name": strings.Join(names, " + ")}, nil
}

func (m *fakeMerger) invocations() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.sizes...)
}
