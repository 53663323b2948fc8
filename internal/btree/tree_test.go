package btree

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/njudb/njudb/internal/bufferpool"
	"github.com/njudb/njudb/internal/heap"
	"github.com/njudb/njudb/internal/rid"
	"github.com/njudb/njudb/internal/storage"
)

func newTestTree(t *testing.T, opts Options) (*Tree, *storage.StorageManager, storage.LocalFileSet, bufferpool.Manager) {
	t.Helper()

	sm := storage.NewStorageManager()
	fs := storage.LocalFileSet{Dir: t.TempDir(), Base: "idx"}
	bp := bufferpool.NewPool(sm, fs, bufferpool.DefaultCapacity)

	tree, err := NewTreeWithOptions(sm, fs, bp, opts)
	require.NoError(t, err)
	return tree, sm, fs, bp
}

func tidFor(k int64) heap.TID {
	return heap.TID{PageID: int32(k + 1), Slot: 0}
}

func TestTree_InsertOutOfOrderAndSearch(t *testing.T) {
	tree, _, _, _ := newTestTree(t, Options{LeafMax: 4, InternalMax: 4})

	keys := []int64{50, 10, 90, 30, 70, 20, 80, 40, 60, 0}
	for _, k := range keys {
		require.NoError(t, tree.Insert(k, tidFor(k)))
	}
	require.EqualValues(t, len(keys), tree.Size())

	for _, k := range keys {
		tids, err := tree.SearchEqual(k)
		require.NoError(t, err)
		require.Len(t, tids, 1, "key %d", k)
		require.Equal(t, tidFor(k), tids[0])
	}

	tids, err := tree.SearchEqual(55)
	require.NoError(t, err)
	require.Empty(t, tids)
}

func TestTree_RangeScanEvenKeys(t *testing.T) {
	tree, _, _, _ := newTestTree(t, Options{LeafMax: 4, InternalMax: 4})

	// Keys 0, 2, 4, ..., 98 with TID (page=k+1, slot=0).
	for k := int64(0); k < 100; k += 2 {
		require.NoError(t, tree.Insert(k, tidFor(k)))
	}

	tids, err := tree.RangeScan(5, 15)
	require.NoError(t, err)
	require.Len(t, tids, 5)
	for i, want := range []int64{6, 8, 10, 12, 14} {
		require.Equal(t, tidFor(want), tids[i])
	}

	// An iterator positioned at 7 yields 8 then 10.
	it, err := tree.BeginAt(7)
	require.NoError(t, err)
	k, _, ok, err := it.Next()
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 8, k)
	k, _, ok, err = it.Next()
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 10, k)
}

func TestTree_IteratorYieldsSortedKeys(t *testing.T) {
	tree, _, _, _ := newTestTree(t, Options{LeafMax: 4, InternalMax: 4})

	r := rand.New(rand.NewSource(7))
	perm := r.Perm(200)
	for _, k := range perm {
		require.NoError(t, tree.Insert(int64(k), tidFor(int64(k))))
	}

	it, err := tree.Begin()
	require.NoError(t, err)

	var got []int64
	for {
		k, _, ok, err := it.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		got = append(got, k)
	}
	require.Len(t, got, 200)
	for i, k := range got {
		require.EqualValues(t, i, k)
	}
}

func TestTree_DeleteHalfKeepsRest(t *testing.T) {
	tree, _, _, _ := newTestTree(t, Options{LeafMax: 4, InternalMax: 4})

	const n = 128
	for k := int64(0); k < n; k++ {
		require.NoError(t, tree.Insert(k, tidFor(k)))
	}

	for k := int64(0); k < n; k += 2 {
		removed, err := tree.Delete(k, tidFor(k))
		require.NoError(t, err)
		require.True(t, removed, "key %d", k)
	}
	require.EqualValues(t, n/2, tree.Size())

	for k := int64(0); k < n; k++ {
		tids, err := tree.SearchEqual(k)
		require.NoError(t, err)
		if k%2 == 0 {
			require.Empty(t, tids, "deleted key %d", k)
		} else {
			require.Len(t, tids, 1, "surviving key %d", k)
		}
	}
}

func TestTree_DeleteEverythingClearsTree(t *testing.T) {
	tree, _, _, _ := newTestTree(t, Options{LeafMax: 4, InternalMax: 4})

	for k := int64(0); k < 64; k++ {
		require.NoError(t, tree.Insert(k, tidFor(k)))
	}
	for k := int64(0); k < 64; k++ {
		removed, err := tree.Delete(k, tidFor(k))
		require.NoError(t, err)
		require.True(t, removed)
	}

	require.EqualValues(t, 0, tree.Size())
	require.Equal(t, 0, tree.Height())

	tids, err := tree.SearchEqual(3)
	require.NoError(t, err)
	require.Empty(t, tids)

	// Freed pages are recycled once new keys arrive.
	require.NoError(t, tree.Insert(7, tidFor(7)))
	tids, err = tree.SearchEqual(7)
	require.NoError(t, err)
	require.Len(t, tids, 1)
}

func TestTree_Duplicates(t *testing.T) {
	tree, _, _, _ := newTestTree(t, Options{LeafMax: 4, InternalMax: 4})

	for i := int32(0); i < 10; i++ {
		require.NoError(t, tree.Insert(42, heap.TID{PageID: i, Slot: 0}))
	}
	require.NoError(t, tree.Insert(41, tidFor(41)))
	require.NoError(t, tree.Insert(43, tidFor(43)))

	tids, err := tree.SearchEqual(42)
	require.NoError(t, err)
	require.Len(t, tids, 10)

	removed, err := tree.Delete(42, heap.TID{PageID: 4, Slot: 0})
	require.NoError(t, err)
	require.True(t, removed)

	tids, err = tree.SearchEqual(42)
	require.NoError(t, err)
	require.Len(t, tids, 9)
	for _, tid := range tids {
		require.NotEqual(t, heap.TID{PageID: 4, Slot: 0}, tid)
	}

	// rid.Invalid deletes the first match regardless of TID.
	removed, err = tree.Delete(42, rid.Invalid)
	require.NoError(t, err)
	require.True(t, removed)
	tids, err = tree.SearchEqual(42)
	require.NoError(t, err)
	require.Len(t, tids, 8)
}

func TestTree_ReopenFindsPersistedKeys(t *testing.T) {
	tree, sm, fs, bp := newTestTree(t, Options{LeafMax: 4, InternalMax: 4})

	for k := int64(0); k < 50; k++ {
		require.NoError(t, tree.Insert(k, tidFor(k)))
	}
	require.NoError(t, tree.Close())

	reopened, err := OpenTree(sm, fs, bp)
	require.NoError(t, err)
	require.EqualValues(t, 50, reopened.Size())

	for k := int64(0); k < 50; k++ {
		tids, err := reopened.SearchEqual(k)
		require.NoError(t, err)
		require.Len(t, tids, 1, "key %d", k)
	}
}

func TestTree_LookupIntoHeapTable(t *testing.T) {
	dir := t.TempDir()
	sm := storage.NewStorageManager()

	tblFS := storage.LocalFileSet{Dir: dir, Base: "users"}
	tblBP := bufferpool.NewPool(sm, tblFS, bufferpool.DefaultCapacity)
	ovf := storage.NewOverflowManager(sm, storage.LocalFileSet{Dir: dir, Base: "users_ovf"})
	schema := testUserSchema()
	tbl := heap.NewTable("users", schema, sm, tblFS, tblBP, ovf, 0)

	idxFS := storage.LocalFileSet{Dir: dir, Base: "users_id_idx"}
	idxBP := bufferpool.NewPool(sm, idxFS, bufferpool.DefaultCapacity)
	tree, err := NewTree(sm, idxFS, idxBP)
	require.NoError(t, err)

	for i := int64(1); i <= 10; i++ {
		tid, err := tbl.Insert([]any{i, "user", i%2 == 0})
		require.NoError(t, err)
		require.NoError(t, tree.Insert(i, tid))
	}

	tids, err := tree.SearchEqual(7)
	require.NoError(t, err)
	require.Len(t, tids, 1)

	row, err := tbl.Get(tids[0])
	require.NoError(t, err)
	require.Equal(t, int64(7), row[0])
}

func TestNewTree_RejectsTinyCapacity(t *testing.T) {
	sm := storage.NewStorageManager()
	fs := storage.LocalFileSet{Dir: t.TempDir(), Base: "bad"}
	bp := bufferpool.NewPool(sm, fs, bufferpool.DefaultCapacity)

	_, err := NewTreeWithOptions(sm, fs, bp, Options{LeafMax: 1, InternalMax: 4})
	require.Error(t, err)
}
