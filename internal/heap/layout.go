package heap

import (
	"github.com/njudb/njudb/internal/page"
	"github.com/njudb/njudb/internal/record"
	"github.com/njudb/njudb/internal/storage"
)

// StorageModel selects how a table's data pages arrange rows: row-major
// (N-ary) or column-major (PAX).
type StorageModel uint8

const (
	// NAry is the default layout: [page header][bitmap][slot_0..slot_n-1],
	// slot = [null bitmap][fixed record bytes], one slot per row.
	NAry StorageModel = iota
	// PAX stores null bitmaps contiguously first, then one column-major
	// value block per column, trading row-reconstruction cost for cheap
	// single/few-column scans (ReadChunk).
	PAX
)

// commonHeaderSize is how many bytes of a storage.Page's fixed header a
// heap page layout must leave alone before laying out its own region.
const commonHeaderSize = storage.HeaderSize

// geometry is the slot-count math shared by both storage models: how many
// fixed-width rows fit in one page, given the per-row byte cost is the
// same regardless of how those bytes are arranged within the page.
type geometry struct {
	NullMapSize    int
	RecordSize     int
	SlotSize       int // NullMapSize + RecordSize, the per-row byte cost
	RecordsPerPage int
	BitmapSize     int
}

func computeGeometry(s record.Schema) geometry {
	nullMapSize := s.NullMapSize()
	recordSize := s.RecordSize()
	slotSize := nullMapSize + recordSize
	avail := storage.PageSize - commonHeaderSize

	n := 0
	if slotSize > 0 && avail > 0 {
		for candidate := avail / slotSize; candidate >= 0; candidate-- {
			if page.BitmapSize(candidate)+candidate*slotSize <= avail {
				n = candidate
				break
			}
		}
	}
	return geometry{
		NullMapSize:    nullMapSize,
		RecordSize:     recordSize,
		SlotSize:       slotSize,
		RecordsPerPage: n,
		BitmapSize:     page.BitmapSize(n),
	}
}

// Layout is the N-ary page geometry: a row-major array of fixed slots.
type Layout struct {
	geometry
}

// ComputeLayout derives the N-ary slot geometry for a schema, maximizing
// the slot count n under
//
//	HEADER + ceil(n/8) + n*(recordSize+nullMapSize) <= PageSize
func ComputeLayout(s record.Schema) Layout {
	return Layout{computeGeometry(s)}
}

func (l Layout) bitmapOffset() int    { return commonHeaderSize }
func (l Layout) slotsOffset() int     { return commonHeaderSize + l.BitmapSize }
func (l Layout) slotOffset(i int) int { return l.slotsOffset() + i*l.SlotSize }

// PaxLayout is the PAX page geometry: null bitmaps stored contiguously,
// followed by one column-major value block per column. RecordsPerPage is
// identical to the equivalent Layout's since the same bytes are spent per
// row, only their arrangement differs.
type PaxLayout struct {
	geometry
	Schema       record.Schema
	ColumnOffset []int // byte offset of column c's block, relative to columnsOffset()
}

// ComputePaxLayout derives the PAX geometry for a schema.
func ComputePaxLayout(s record.Schema) PaxLayout {
	g := computeGeometry(s)
	offs := make([]int, len(s.Cols))
	off := 0
	for i, c := range s.Cols {
		offs[i] = off
		off += g.RecordsPerPage * record.FieldSize(c.Type)
	}
	return PaxLayout{geometry: g, Schema: s, ColumnOffset: offs}
}

func (l PaxLayout) bitmapOffset() int  { return commonHeaderSize }
func (l PaxLayout) nullMapsOffset() int { return commonHeaderSize + l.BitmapSize }
func (l PaxLayout) columnsOffset() int {
	return l.nullMapsOffset() + l.RecordsPerPage*l.NullMapSize
}
func (l PaxLayout) nullMapOffset(row int) int { return l.nullMapsOffset() + row*l.NullMapSize }
func (l PaxLayout) columnValueOffset(col, row int) int {
	return l.columnsOffset() + l.ColumnOffset[col] + row*record.FieldSize(l.Schema.Cols[col].Type)
}
