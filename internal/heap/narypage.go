package heap

import (
	"errors"

	"github.com/njudb/njudb/internal/page"
	"github.com/njudb/njudb/internal/storage"
)

var (
	ErrPageFull       = errors.New("heap: page has no free slot")
	ErrSlotEmpty      = errors.New("heap: slot is empty")
	ErrSlotOccupied   = errors.New("heap: slot is already occupied")
	ErrSlotOutOfRange = errors.New("heap: slot index out of range")
)

// slotPage is the operations a heap data page must support regardless of
// whether rows are stored row-major (NaryPage) or column-major (PaxPage),
// so Table's free-page-chain and CRUD logic can stay storage-model
// agnostic.
type slotPage interface {
	HasFreeSlot() bool
	InsertSlot(nullmap, payload []byte) (int, error)
	InsertSlotAt(i int, nullmap, payload []byte) error
	ReadSlot(i int) (nullmap, payload []byte, err error)
	UpdateSlot(i int, nullmap, payload []byte) error
	DeleteSlot(i int) (wasFull bool, err error)
}

// NaryPage is the fixed-slot, array-of-slots-with-bitmap heap page layout:
// [page header][occupancy bitmap][slot_0..slot_{n-1}], slot = [null
// bitmap][fixed record bytes].
type NaryPage struct {
	Page   *storage.Page
	Layout Layout
}

func (np *NaryPage) bitmap() page.Bitmap {
	off := np.Layout.bitmapOffset()
	return page.Bitmap(np.Page.Buf[off : off+np.Layout.BitmapSize])
}

func (np *NaryPage) slotBytes(i int) []byte {
	off := np.Layout.slotOffset(i)
	return np.Page.Buf[off : off+np.Layout.SlotSize]
}

// HasFreeSlot reports whether any slot is unoccupied.
func (np *NaryPage) HasFreeSlot() bool {
	return np.bitmap().FindFirst(np.Layout.RecordsPerPage, 0, false) >= 0
}

// InsertSlot writes (nullmap, payload) into the bitmap's first free slot,
// marks it occupied, and bumps the page's record count.
func (np *NaryPage) InsertSlot(nullmap, payload []byte) (int, error) {
	i := np.bitmap().FindFirst(np.Layout.RecordsPerPage, 0, false)
	if i < 0 {
		return -1, ErrPageFull
	}
	np.writeSlot(i, nullmap, payload)
	np.bitmap().Set(i, true)
	np.Page.SetRecordCount(np.Page.RecordCount() + 1)
	return i, nil
}

// InsertSlotAt writes (nullmap, payload) into the specific slot i, failing
// with ErrSlotOccupied if its bit is already set.
func (np *NaryPage) InsertSlotAt(i int, nullmap, payload []byte) error {
	if i < 0 || i >= np.Layout.RecordsPerPage {
		return ErrSlotOutOfRange
	}
	if np.bitmap().Get(i) {
		return ErrSlotOccupied
	}
	np.writeSlot(i, nullmap, payload)
	np.bitmap().Set(i, true)
	np.Page.SetRecordCount(np.Page.RecordCount() + 1)
	return nil
}

func (np *NaryPage) writeSlot(i int, nullmap, payload []byte) {
	b := np.slotBytes(i)
	copy(b[:np.Layout.NullMapSize], nullmap)
	copy(b[np.Layout.NullMapSize:], payload)
}

// ReadSlot returns the (nullmap, payload) stored at slot i.
func (np *NaryPage) ReadSlot(i int) (nullmap, payload []byte, err error) {
	if i < 0 || i >= np.Layout.RecordsPerPage {
		return nil, nil, ErrSlotOutOfRange
	}
	if !np.bitmap().Get(i) {
		return nil, nil, ErrSlotEmpty
	}
	b := np.slotBytes(i)
	return b[:np.Layout.NullMapSize], b[np.Layout.NullMapSize:], nil
}

// UpdateSlot overwrites an occupied slot in place; the slot is fixed-width
// so a record never needs to move elsewhere on update.
func (np *NaryPage) UpdateSlot(i int, nullmap, payload []byte) error {
	if i < 0 || i >= np.Layout.RecordsPerPage {
		return ErrSlotOutOfRange
	}
	if !np.bitmap().Get(i) {
		return ErrSlotEmpty
	}
	np.writeSlot(i, nullmap, payload)
	return nil
}

// DeleteSlot clears slot i's occupancy bit and zeroes its bytes,
// decrementing the record count. wasFull reports whether the page had zero
// free slots immediately before this delete, the signal Table uses to
// decide whether to push the page back onto the free-page chain.
func (np *NaryPage) DeleteSlot(i int) (wasFull bool, err error) {
	if i < 0 || i >= np.Layout.RecordsPerPage {
		return false, ErrSlotOutOfRange
	}
	if !np.bitmap().Get(i) {
		return false, ErrSlotEmpty
	}
	wasFull = !np.HasFreeSlot()
	np.bitmap().Set(i, false)
	b := np.slotBytes(i)
	for j := range b {
		b[j] = 0
	}
	np.Page.SetRecordCount(np.Page.RecordCount() - 1)
	return wasFull, nil
}
