package hashindex

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/njudb/njudb/internal/bufferpool"
	"github.com/njudb/njudb/internal/heap"
	"github.com/njudb/njudb/internal/storage"
)

func newTestIndex(t *testing.T, bucketCount int) (*Index, storage.LocalFileSet) {
	t.Helper()

	sm := storage.NewStorageManager()
	fs := storage.LocalFileSet{Dir: t.TempDir(), Base: "idx_hash"}
	bp := bufferpool.NewPool(sm, fs, bufferpool.DefaultCapacity)

	idx, err := NewIndex(sm, fs, bp, bucketCount)
	require.NoError(t, err)
	return idx, fs
}

func TestHashIndex_InsertAndSearch(t *testing.T) {
	idx, _ := newTestIndex(t, 4)

	require.NoError(t, idx.Insert(1, heap.TID{PageID: 1, Slot: 0}))
	require.NoError(t, idx.Insert(1, heap.TID{PageID: 2, Slot: 0}))
	require.NoError(t, idx.Insert(5, heap.TID{PageID: 3, Slot: 0}))

	tids, err := idx.Search(1)
	require.NoError(t, err)
	require.Len(t, tids, 2)

	tids, err = idx.Search(42)
	require.NoError(t, err)
	require.Empty(t, tids)
}

func TestHashIndex_DeleteRemovesAllDuplicates(t *testing.T) {
	idx, _ := newTestIndex(t, 4)

	require.NoError(t, idx.Insert(1, heap.TID{PageID: 1, Slot: 0}))
	require.NoError(t, idx.Insert(1, heap.TID{PageID: 2, Slot: 0}))
	require.NoError(t, idx.Insert(2, heap.TID{PageID: 3, Slot: 0}))

	n, err := idx.Delete(1)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	tids, err := idx.Search(1)
	require.NoError(t, err)
	require.Empty(t, tids)

	tids, err = idx.Search(2)
	require.NoError(t, err)
	require.Len(t, tids, 1)

	require.EqualValues(t, 1, idx.TotalEntries)
}

func TestHashIndex_OverflowChainsAcrossPages(t *testing.T) {
	idx, _ := newTestIndex(t, 1)

	const n = 2000
	for i := 0; i < n; i++ {
		require.NoError(t, idx.Insert(int64(i), heap.TID{PageID: int32(i), Slot: 0}))
	}

	for i := 0; i < n; i++ {
		tids, err := idx.Search(int64(i))
		require.NoError(t, err)
		require.Len(t, tids, 1)
		require.Equal(t, int32(i), tids[0].PageID)
	}

	// The single bucket must have chained across multiple overflow pages.
	head := idx.Directory[0]
	require.GreaterOrEqual(t, head, int32(0))
	pages := 0
	pid := head
	for pid >= 0 {
		g, err := bufferpool.FetchPageRead(idx.BP, uint32(pid))
		require.NoError(t, err)
		next := g.Page().NextFreePageID()
		g.Drop()
		pages++
		pid = next
	}
	require.Greater(t, pages, 1, "expected more than one bucket page once the first is full")
}

func TestHashIndex_SearchRangeScansAllBuckets(t *testing.T) {
	idx, _ := newTestIndex(t, 8)

	for i := int64(0); i < 20; i++ {
		require.NoError(t, idx.Insert(i, heap.TID{PageID: int32(i), Slot: 0}))
	}

	tids, err := idx.SearchRange(5, 9)
	require.NoError(t, err)
	require.Len(t, tids, 5)
}

func TestHashIndex_OpenIndexRestoresState(t *testing.T) {
	idx, fs := newTestIndex(t, 4)
	require.NoError(t, idx.Insert(7, heap.TID{PageID: 1, Slot: 0}))
	require.NoError(t, idx.Close())

	reopened, err := OpenIndex(idx.SM, fs, idx.BP)
	require.NoError(t, err)
	require.Equal(t, 4, reopened.BucketCount)
	require.EqualValues(t, 1, reopened.TotalEntries)

	tids, err := reopened.Search(7)
	require.NoError(t, err)
	require.Len(t, tids, 1)
}

func TestNewIndex_RejectsNonPositiveBucketCount(t *testing.T) {
	sm := storage.NewStorageManager()
	fs := storage.LocalFileSet{Dir: t.TempDir(), Base: "bad"}
	bp := bufferpool.NewPool(sm, fs, bufferpool.DefaultCapacity)

	_, err := NewIndex(sm, fs, bp, 0)
	require.Error(t, err)
}
