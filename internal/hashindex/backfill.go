package hashindex

import (
	"fmt"
	"sync"

	"github.com/sourcegraph/conc/pool"

	"github.com/njudb/njudb/internal/heap"
)

// Backfill builds a hash index over every row already present in tbl,
// hashing each row's keyColumn value into idx. Keys are int64 or coercible
// to int64 (int32/int); other types are rejected with an error.
//
// The table scan and row decoding stay sequential (heap.Table.Scan walks
// pages in order), but turning each decoded row into a (key, TID) pair is
// pure CPU work with no shared state, so it is fanned out across a bounded
// pool. The resulting pairs are applied to idx one at a time: Index keeps
// no internal lock of its own (spec's index-global latch is the caller's
// job), so concurrent Insert calls would race on its directory and
// overflow-chain bookkeeping.
func Backfill(tbl *heap.Table, idx *Index, keyColumn string, workers int) error {
	keyPos := -1
	for i, c := range tbl.Schema.Cols {
		if c.Name == keyColumn {
			keyPos = i
			break
		}
	}
	if keyPos < 0 {
		return fmt.Errorf("hashindex: backfill: table %q has no column %q", tbl.Name, keyColumn)
	}
	if workers <= 0 {
		workers = 4
	}

	type pair struct {
		key int64
		tid heap.TID
	}

	var (
		mu      sync.Mutex
		pairs   []pair
		skipped int
	)

	p := pool.New().WithMaxGoroutines(workers)

	scanErr := tbl.Scan(func(id heap.TID, row []any) error {
		p.Go(func() {
			key, ok := coerceInt64(row[keyPos])
			if !ok {
				mu.Lock()
				skipped++
				mu.Unlock()
				return
			}
			mu.Lock()
			pairs = append(pairs, pair{key: key, tid: id})
			mu.Unlock()
		})
		return nil
	})
	p.Wait()
	if scanErr != nil {
		return scanErr
	}

	for _, pr := range pairs {
		if err := idx.Insert(pr.key, pr.tid); err != nil {
			return err
		}
	}
	if skipped > 0 {
		return fmt.Errorf("hashindex: backfill: %d row(s) had a non-integer %q value and were skipped", skipped, keyColumn)
	}
	return nil
}

func coerceInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int32:
		return int64(x), true
	case int:
		return int64(x), true
	default:
		return 0, false
	}
}
