package heap

import (
	"math"

	"github.com/njudb/njudb/internal/alias/bx"
	"github.com/njudb/njudb/internal/page"
	"github.com/njudb/njudb/internal/record"
	"github.com/njudb/njudb/internal/storage"
)

// PaxPage is the column-major heap page layout: [page header][occupancy
// bitmap][null bitmaps, one per row, contiguous][column 0 values for every
// row][column 1 values for every row]... Rows are still addressed by slot
// index through the same slotPage interface NaryPage implements, so Table's
// CRUD and free-page-chain logic does not need to know which layout a
// table uses; ReadChunk is PaxPage's differentiator, reading a handful of
// columns across every occupied row without visiting the others.
type PaxPage struct {
	Page   *storage.Page
	Layout PaxLayout
}

func (pp *PaxPage) bitmap() page.Bitmap {
	off := pp.Layout.bitmapOffset()
	return page.Bitmap(pp.Page.Buf[off : off+pp.Layout.BitmapSize])
}

func (pp *PaxPage) nullmapBytes(row int) []byte {
	off := pp.Layout.nullMapOffset(row)
	return pp.Page.Buf[off : off+pp.Layout.NullMapSize]
}

// HasFreeSlot reports whether any row is unoccupied.
func (pp *PaxPage) HasFreeSlot() bool {
	return pp.bitmap().FindFirst(pp.Layout.RecordsPerPage, 0, false) >= 0
}

// InsertSlot scatters a row-major (nullmap, payload) pair into the page's
// column blocks at the first free row index.
func (pp *PaxPage) InsertSlot(nullmap, payload []byte) (int, error) {
	row := pp.bitmap().FindFirst(pp.Layout.RecordsPerPage, 0, false)
	if row < 0 {
		return -1, ErrPageFull
	}
	pp.writeRow(row, nullmap, payload)
	pp.bitmap().Set(row, true)
	pp.Page.SetRecordCount(pp.Page.RecordCount() + 1)
	return row, nil
}

// InsertSlotAt writes a row into the specific row index, failing with
// ErrSlotOccupied if its bit is already set.
func (pp *PaxPage) InsertSlotAt(row int, nullmap, payload []byte) error {
	if row < 0 || row >= pp.Layout.RecordsPerPage {
		return ErrSlotOutOfRange
	}
	if pp.bitmap().Get(row) {
		return ErrSlotOccupied
	}
	pp.writeRow(row, nullmap, payload)
	pp.bitmap().Set(row, true)
	pp.Page.SetRecordCount(pp.Page.RecordCount() + 1)
	return nil
}

func (pp *PaxPage) writeRow(row int, nullmap, payload []byte) {
	copy(pp.nullmapBytes(row), nullmap)
	for c, col := range pp.Layout.Schema.Cols {
		sz := record.FieldSize(col.Type)
		srcOff := pp.Layout.Schema.FieldOffset(c)
		dstOff := pp.Layout.columnValueOffset(c, row)
		copy(pp.Page.Buf[dstOff:dstOff+sz], payload[srcOff:srcOff+sz])
	}
}

// ReadSlot gathers row's column blocks back into a row-major (nullmap,
// payload) pair, matching NaryPage.ReadSlot's contract.
func (pp *PaxPage) ReadSlot(row int) (nullmap, payload []byte, err error) {
	if row < 0 || row >= pp.Layout.RecordsPerPage {
		return nil, nil, ErrSlotOutOfRange
	}
	if !pp.bitmap().Get(row) {
		return nil, nil, ErrSlotEmpty
	}
	nullmap = append([]byte(nil), pp.nullmapBytes(row)...)
	payload = make([]byte, pp.Layout.RecordSize)
	for c, col := range pp.Layout.Schema.Cols {
		sz := record.FieldSize(col.Type)
		dstOff := pp.Layout.Schema.FieldOffset(c)
		srcOff := pp.Layout.columnValueOffset(c, row)
		copy(payload[dstOff:dstOff+sz], pp.Page.Buf[srcOff:srcOff+sz])
	}
	return nullmap, payload, nil
}

// UpdateSlot overwrites an occupied row's column blocks in place.
func (pp *PaxPage) UpdateSlot(row int, nullmap, payload []byte) error {
	if row < 0 || row >= pp.Layout.RecordsPerPage {
		return ErrSlotOutOfRange
	}
	if !pp.bitmap().Get(row) {
		return ErrSlotEmpty
	}
	pp.writeRow(row, nullmap, payload)
	return nil
}

// DeleteSlot clears row's occupancy bit and zeroes its column bytes.
func (pp *PaxPage) DeleteSlot(row int) (wasFull bool, err error) {
	if row < 0 || row >= pp.Layout.RecordsPerPage {
		return false, ErrSlotOutOfRange
	}
	if !pp.bitmap().Get(row) {
		return false, ErrSlotEmpty
	}
	wasFull = !pp.HasFreeSlot()
	pp.bitmap().Set(row, false)
	for i := range pp.nullmapBytes(row) {
		pp.nullmapBytes(row)[i] = 0
	}
	for c, col := range pp.Layout.Schema.Cols {
		sz := record.FieldSize(col.Type)
		off := pp.Layout.columnValueOffset(c, row)
		for i := 0; i < sz; i++ {
			pp.Page.Buf[off+i] = 0
		}
	}
	pp.Page.SetRecordCount(pp.Page.RecordCount() - 1)
	return wasFull, nil
}

// ReadChunk reads the named columns across every occupied row on the page
// directly from their column-major blocks, without reconstructing whole
// rows: the PAX access path a scan that only needs a projection of columns
// takes instead of Table.Get's row-at-a-time decode.
func (pp *PaxPage) ReadChunk(colNames []string) (rows []int, columns map[string][]any, err error) {
	bm := pp.bitmap()
	for i := 0; i < pp.Layout.RecordsPerPage; i++ {
		if bm.Get(i) {
			rows = append(rows, i)
		}
	}

	columns = make(map[string][]any, len(colNames))
	for _, name := range colNames {
		c := pp.Layout.Schema.ColPos(name)
		if c < 0 {
			return nil, nil, record.ErrUnknownColumn
		}
		col := pp.Layout.Schema.Cols[c]
		vals := make([]any, len(rows))
		for k, row := range rows {
			isNull := (pp.nullmapBytes(row)[c/8]>>(uint(c)&7))&1 == 1
			if isNull {
				vals[k] = nil
				continue
			}
			sz := record.FieldSize(col.Type)
			off := pp.Layout.columnValueOffset(c, row)
			vals[k] = decodeFixedValue(col.Type, pp.Page.Buf[off:off+sz])
		}
		columns[name] = vals
	}
	return rows, columns, nil
}

// decodeFixedValue decodes one column's raw fixed-width bytes. TEXT/BYTES
// columns decode to their storage.OverflowRef rather than the referenced
// value: ReadChunk is a bulk columnar scan over in-page bytes and does not
// follow overflow chains (Table.Get does, for a single row).
func decodeFixedValue(t record.ColumnType, b []byte) any {
	switch t {
	case record.ColInt32:
		return int32(bx.U32(b))
	case record.ColInt64:
		return int64(bx.U64(b))
	case record.ColBool:
		return b[0] != 0
	case record.ColFloat64:
		return math.Float64frombits(bx.U64(b))
	case record.ColText, record.ColBytes:
		return storage.OverflowRef{FirstPageID: bx.U32(b[0:4]), Length: bx.U32(b[4:8])}
	default:
		return nil
	}
}
