package heap

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/njudb/njudb/internal/errs"
)

func requireKind(t *testing.T, err error, kind errs.Kind) {
	t.Helper()
	got, ok := errs.KindOf(err)
	require.Truef(t, ok, "error %v carries no kind", err)
	require.Equal(t, kind, got)
}

func TestTable_GetUpdateDeleteRoundTrip(t *testing.T) {
	tbl, _, _ := newTestTable(t, "crud")

	tid, err := tbl.Insert([]any{int64(1), "abc", true})
	require.NoError(t, err)

	row, err := tbl.Get(tid)
	require.NoError(t, err)
	require.Equal(t, []any{int64(1), "abc", true}, row)

	require.NoError(t, tbl.Update(tid, []any{int64(2), "xy", false}))
	row, err = tbl.Get(tid)
	require.NoError(t, err)
	require.Equal(t, []any{int64(2), "xy", false}, row)

	require.NoError(t, tbl.Delete(tid))
	_, err = tbl.Get(tid)
	requireKind(t, err, errs.RecordMiss)
	requireKind(t, tbl.Update(tid, []any{int64(3), "z", true}), errs.RecordMiss)
	requireKind(t, tbl.Delete(tid), errs.RecordMiss)
}

func TestTable_InsertAt(t *testing.T) {
	tbl, _, _ := newTestTable(t, "crud_at")

	tid, err := tbl.Insert([]any{int64(1), "a", true})
	require.NoError(t, err)

	// Occupied slot.
	requireKind(t, tbl.InsertAt(tid, []any{int64(2), "b", false}), errs.RecordExists)

	// Page outside the table.
	requireKind(t, tbl.InsertAt(TID{PageID: 99, Slot: 0}, []any{int64(2), "b", false}), errs.PageMiss)

	// Free slot on an existing page.
	target := TID{PageID: tid.PageID, Slot: tid.Slot + 1}
	require.NoError(t, tbl.InsertAt(target, []any{int64(2), "b", false}))
	row, err := tbl.Get(target)
	require.NoError(t, err)
	require.Equal(t, int64(2), row[0])
}

func TestTable_FirstNextTID(t *testing.T) {
	tbl, _, _ := newTestTable(t, "crud_iter")

	// Empty table has no first TID.
	first, err := tbl.FirstTID()
	require.NoError(t, err)
	require.False(t, first.Valid())

	var inserted []TID
	for i := 0; i < 5; i++ {
		tid, err := tbl.Insert([]any{int64(i), "row", false})
		require.NoError(t, err)
		inserted = append(inserted, tid)
	}
	require.NoError(t, tbl.Delete(inserted[2]))

	var walked []TID
	cur, err := tbl.FirstTID()
	require.NoError(t, err)
	for cur.Valid() {
		walked = append(walked, cur)
		cur, err = tbl.NextTID(cur)
		require.NoError(t, err)
	}

	require.Equal(t, []TID{inserted[0], inserted[1], inserted[3], inserted[4]}, walked)
}
