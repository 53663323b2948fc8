package heap

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/njudb/njudb/internal/record"
	"github.com/njudb/njudb/internal/storage"
)

func testSchema() record.Schema {
	return record.Schema{Cols: []record.Column{
		{Name: "id", Type: record.ColInt64, Nullable: false},
		{Name: "score", Type: record.ColInt32, Nullable: true},
		{Name: "active", Type: record.ColBool, Nullable: false},
	}}
}

func newNaryPage(t *testing.T) *NaryPage {
	t.Helper()
	p, err := storage.NewPage(make([]byte, storage.PageSize), 1)
	require.NoError(t, err)
	return &NaryPage{Page: p, Layout: ComputeLayout(testSchema())}
}

func encodeTestRow(t *testing.T, vals []any) (nullmap, payload []byte) {
	t.Helper()
	nullmap, payload, err := record.EncodeFixedRow(testSchema(), vals, nil)
	require.NoError(t, err)
	return nullmap, payload
}

func TestComputeLayout_FitsPage(t *testing.T) {
	l := ComputeLayout(testSchema())

	require.Greater(t, l.RecordsPerPage, 0)
	used := storage.HeaderSize + l.BitmapSize + l.RecordsPerPage*l.SlotSize
	require.LessOrEqual(t, used, storage.PageSize)

	// One more slot must not fit: n is maximal.
	n := l.RecordsPerPage + 1
	require.Greater(t, storage.HeaderSize+(n+7)/8+n*l.SlotSize, storage.PageSize)
}

func TestNaryPage_InsertReadDelete(t *testing.T) {
	np := newNaryPage(t)

	nm, pl := encodeTestRow(t, []any{int64(7), int32(42), true})
	slot, err := np.InsertSlot(nm, pl)
	require.NoError(t, err)
	require.Equal(t, 0, slot)
	require.EqualValues(t, 1, np.Page.RecordCount())

	gotNM, gotPL, err := np.ReadSlot(slot)
	require.NoError(t, err)
	require.Equal(t, nm, []byte(gotNM))
	require.Equal(t, pl, []byte(gotPL))

	_, _, err = np.ReadSlot(1)
	require.ErrorIs(t, err, ErrSlotEmpty)
	_, _, err = np.ReadSlot(np.Layout.RecordsPerPage)
	require.ErrorIs(t, err, ErrSlotOutOfRange)

	wasFull, err := np.DeleteSlot(slot)
	require.NoError(t, err)
	require.False(t, wasFull)
	require.EqualValues(t, 0, np.Page.RecordCount())

	_, _, err = np.ReadSlot(slot)
	require.ErrorIs(t, err, ErrSlotEmpty)
}

func TestNaryPage_UpdateInPlace(t *testing.T) {
	np := newNaryPage(t)

	nm, pl := encodeTestRow(t, []any{int64(1), int32(1), false})
	slot, err := np.InsertSlot(nm, pl)
	require.NoError(t, err)

	nm2, pl2 := encodeTestRow(t, []any{int64(1), nil, true})
	require.NoError(t, np.UpdateSlot(slot, nm2, pl2))

	gotNM, gotPL, err := np.ReadSlot(slot)
	require.NoError(t, err)
	vals, err := record.DecodeFixedRow(testSchema(), gotNM, gotPL, nil)
	require.NoError(t, err)
	require.Equal(t, int64(1), vals[0])
	require.Nil(t, vals[1])
	require.Equal(t, true, vals[2])

	require.ErrorIs(t, np.UpdateSlot(slot+1, nm2, pl2), ErrSlotEmpty)
}

func TestNaryPage_FillReportsFullAndDeleteReportsWasFull(t *testing.T) {
	np := newNaryPage(t)
	n := np.Layout.RecordsPerPage

	for i := 0; i < n; i++ {
		nm, pl := encodeTestRow(t, []any{int64(i), int32(i), i%2 == 0})
		_, err := np.InsertSlot(nm, pl)
		require.NoError(t, err)
	}
	require.False(t, np.HasFreeSlot())

	nm, pl := encodeTestRow(t, []any{int64(99), int32(0), false})
	_, err := np.InsertSlot(nm, pl)
	require.ErrorIs(t, err, ErrPageFull)

	wasFull, err := np.DeleteSlot(3)
	require.NoError(t, err)
	require.True(t, wasFull)
	require.True(t, np.HasFreeSlot())

	// Reinsert lands in the freed slot: first zero bit.
	slot, err := np.InsertSlot(nm, pl)
	require.NoError(t, err)
	require.Equal(t, 3, slot)
}
