package hashindex

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/njudb/njudb/internal/bufferpool"
	"github.com/njudb/njudb/internal/heap"
	"github.com/njudb/njudb/internal/record"
	"github.com/njudb/njudb/internal/storage"
)

func newBackfillTable(t *testing.T, n int) *heap.Table {
	t.Helper()
	dir := t.TempDir()

	sm := storage.NewStorageManager()
	fs := storage.LocalFileSet{Dir: dir, Base: "people"}
	bp := bufferpool.NewPool(sm, fs, bufferpool.DefaultCapacity)
	ovf := storage.NewOverflowManager(sm, storage.LocalFileSet{Dir: dir, Base: "people_ovf"})

	schema := record.Schema{
		Cols: []record.Column{
			{Name: "id", Type: record.ColInt64},
			{Name: "name", Type: record.ColText},
		},
	}
	tbl := heap.NewTable("people", schema, sm, fs, bp, ovf, 0)

	for i := 0; i < n; i++ {
		_, err := tbl.Insert([]any{int64(i), "row"})
		require.NoError(t, err)
	}
	return tbl
}

func TestBackfill_PopulatesIndexFromTable(t *testing.T) {
	tbl := newBackfillTable(t, 20)

	idx, _ := newTestIndex(t, 4)
	require.NoError(t, Backfill(tbl, idx, "id", 4))

	require.EqualValues(t, 20, idx.TotalEntries)

	for i := 0; i < 20; i++ {
		tids, err := idx.Search(int64(i))
		require.NoError(t, err)
		require.Len(t, tids, 1)
	}
}

func TestBackfill_UnknownColumn(t *testing.T) {
	tbl := newBackfillTable(t, 1)
	idx, _ := newTestIndex(t, 4)

	err := Backfill(tbl, idx, "nope", 2)
	require.Error(t, err)
}
