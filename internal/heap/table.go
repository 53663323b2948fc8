package heap

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/njudb/njudb/internal/bufferpool"
	"github.com/njudb/njudb/internal/errs"
	"github.com/njudb/njudb/internal/record"
	"github.com/njudb/njudb/internal/rid"
	"github.com/njudb/njudb/internal/storage"
)

var (
	ErrTableClosed = errors.New("heap: table is closed")
	ErrRowTooWide  = errors.New("heap: schema's fixed row width leaves no room for a single slot on a page")
	ErrInvalidTID  = errors.New("heap: invalid tuple id")
)

// Table is a heap file: a table header on page 0 (page count, free-page
// chain head, record count, and the bound schema) followed by fixed-slot
// data pages starting at page 1. Rows are addressed by TID and placed
// through header.FirstFreePage, the free-page chain described by the
// table header: an insert pops the chain's head (or allocates a new page
// if the chain is empty), and a delete that frees a slot on a page that
// was previously full pushes that page back onto the chain.
type Table struct {
	Name      string
	Schema    record.Schema
	SM        *storage.StorageManager
	FS        storage.FileSet
	BP        bufferpool.Manager
	PageCount uint32
	Model     StorageModel

	// Overflow manager for this table's TEXT/BYTES column values, which are
	// always stored out of line so every row of a schema has the same width.
	Overflow *storage.OverflowManager

	layout    Layout
	paxLayout PaxLayout

	headerLoaded  bool
	firstFreePage int32
	recordCount   uint32

	// pageCountHook is a best-effort callback invoked when PageCount changes
	// (usually when allocating a new page).
	pageCountHook func(pageCount uint32) error

	closed atomic.Bool
}

// NewTable builds a row-major (N-ary) heap table.
func NewTable(
	name string,
	schema record.Schema,
	sm *storage.StorageManager,
	fs storage.FileSet,
	bp bufferpool.Manager,
	ovf *storage.OverflowManager,
	pageCount uint32,
) *Table {
	return NewTableWithModel(name, schema, sm, fs, bp, ovf, pageCount, NAry)
}

// NewTableWithModel builds a heap table using the given storage model.
// PAX tables additionally support ReadChunk, a columnar scan that reads a
// projection of columns across a page without reconstructing whole rows.
func NewTableWithModel(
	name string,
	schema record.Schema,
	sm *storage.StorageManager,
	fs storage.FileSet,
	bp bufferpool.Manager,
	ovf *storage.OverflowManager,
	pageCount uint32,
	model StorageModel,
) *Table {
	return &Table{
		Name:      name,
		Schema:    schema,
		SM:        sm,
		FS:        fs,
		BP:        bp,
		PageCount: pageCount,
		Model:     model,
		Overflow:  ovf,
		layout:    ComputeLayout(schema),
		paxLayout: ComputePaxLayout(schema),
	}
}

func (t *Table) SetPageCountHook(fn func(pageCount uint32) error) {
	t.pageCountHook = fn
}

func (t *Table) recordsPerPage() int {
	if t.Model == PAX {
		return t.paxLayout.RecordsPerPage
	}
	return t.layout.RecordsPerPage
}

func (t *Table) bitmapSize() int {
	if t.Model == PAX {
		return t.paxLayout.BitmapSize
	}
	return t.layout.BitmapSize
}

func (t *Table) slots(p *storage.Page) slotPage {
	if t.Model == PAX {
		return &PaxPage{Page: p, Layout: t.paxLayout}
	}
	return &NaryPage{Page: p, Layout: t.layout}
}

// ensureHeader loads (or, for a brand-new table, formats) the page-0 table
// header exactly once per Table value.
func (t *Table) ensureHeader() error {
	if t.headerLoaded {
		return nil
	}
	if t.recordsPerPage() <= 0 {
		return ErrRowTooWide
	}

	if t.PageCount == 0 {
		g, err := bufferpool.FetchPageWrite(t.BP, 0)
		if err != nil {
			return err
		}
		// Page 0 (header) + page 1, the first data page, already on the
		// free chain.
		t.firstFreePage = 1
		t.recordCount = 0
		t.PageCount = 2
		err = EncodeTableHeader(g.Page(), t.headerSnapshot(), t.Schema)
		g.Drop()
		if err != nil {
			return err
		}

		// Touch page 1 so it is formatted as an empty data page.
		dg, err := bufferpool.FetchPageWrite(t.BP, 1)
		if err != nil {
			return err
		}
		dg.UnsetDirty()
		dg.Drop()

		t.headerLoaded = true
		return nil
	}

	g, err := bufferpool.FetchPageRead(t.BP, 0)
	if err != nil {
		return err
	}
	defer g.Drop()

	th, _, err := DecodeTableHeader(g.Page())
	if err != nil {
		return err
	}
	t.firstFreePage = th.FirstFreePage
	t.recordCount = th.RecordCount
	t.headerLoaded = true
	return nil
}

func (t *Table) headerSnapshot() TableHeader {
	return TableHeader{
		PageCount:      t.PageCount,
		FirstFreePage:  t.firstFreePage,
		RecordCount:    t.recordCount,
		RecordSize:     uint32(t.Schema.RecordSize()),
		RecordsPerPage: uint32(t.recordsPerPage()),
		FieldCount:     uint64(t.Schema.NumCols()),
		BitmapSize:     uint32(t.bitmapSize()),
		NullMapSize:    uint32(t.Schema.NullMapSize()),
		StorageModel:   t.Model,
	}
}

func (t *Table) syncHeader() error {
	g, err := bufferpool.FetchPageWrite(t.BP, 0)
	if err != nil {
		return err
	}
	defer g.Drop()
	return EncodeTableHeader(g.Page(), t.headerSnapshot(), t.Schema)
}

// allocatePageForInsert implements the header.FirstFreePage chain: pop the
// chain's head if non-empty, otherwise allocate a new page and make it the
// new head (next pointing at the prior head, possibly none).
func (t *Table) allocatePageForInsert() (*bufferpool.WriteGuard, error) {
	if t.firstFreePage >= 0 {
		return bufferpool.FetchPageWrite(t.BP, uint32(t.firstFreePage))
	}

	pageID := t.PageCount
	g, err := bufferpool.FetchPageWrite(t.BP, pageID)
	if err != nil {
		return nil, err
	}
	t.PageCount++
	g.Page().SetNextFreePageID(t.firstFreePage)
	t.firstFreePage = int32(pageID)
	return g, nil
}

// dataPageInRange reports whether id addresses a data page of this table
// (page 0 is the header, never data).
func (t *Table) dataPageInRange(id TID) bool {
	return id.PageID >= 1 && uint32(id.PageID) < t.PageCount
}

// Insert inserts a new row, returning its TID.
func (t *Table) Insert(values []any) (TID, error) {
	if err := t.ensureOpen(); err != nil {
		return TID{}, err
	}
	if err := t.ensureHeader(); err != nil {
		return TID{}, err
	}

	nullmap, payload, err := record.EncodeFixedRow(t.Schema, values, t.Overflow)
	if err != nil {
		return TID{}, err
	}

	g, err := t.allocatePageForInsert()
	if err != nil {
		return TID{}, err
	}

	sp := t.slots(g.Page())
	slotIdx, err := sp.InsertSlot(nullmap, payload)
	if err != nil {
		g.UnsetDirty()
		g.Drop()
		return TID{}, err
	}

	if !sp.HasFreeSlot() {
		// The page just became full: unlink it from the head of the chain.
		next := g.Page().NextFreePageID()
		t.firstFreePage = next
		g.Page().SetNextFreePageID(-1)
	}

	pageID := g.PageID()
	g.Drop()

	t.recordCount++
	if err := t.syncHeader(); err != nil {
		return TID{}, err
	}
	if err := t.Flush(); err != nil {
		return TID{}, err
	}

	return TID{PageID: int32(pageID), Slot: int32(slotIdx)}, nil
}

// InsertAt places a row at a caller-chosen TID. It fails with a PAGE_MISS
// kind when the TID's page is not a data page of this table, and with a
// RECORD_EXISTS kind when the slot is already occupied. A page filled this
// way is unlinked from the free-page chain like any other.
func (t *Table) InsertAt(id TID, values []any) error {
	if err := t.ensureOpen(); err != nil {
		return err
	}
	if !id.Valid() {
		return ErrInvalidTID
	}
	if err := t.ensureHeader(); err != nil {
		return err
	}
	if !t.dataPageInRange(id) {
		return errs.New(errs.PageMiss, "table %q has no data page %d", t.Name, id.PageID)
	}

	nullmap, payload, err := record.EncodeFixedRow(t.Schema, values, t.Overflow)
	if err != nil {
		return err
	}

	g, err := bufferpool.FetchPageWrite(t.BP, uint32(id.PageID))
	if err != nil {
		return err
	}

	sp := t.slots(g.Page())
	if err := sp.InsertSlotAt(int(id.Slot), nullmap, payload); err != nil {
		g.UnsetDirty()
		g.Drop()
		if errors.Is(err, ErrSlotOccupied) {
			return errs.Wrap(errs.RecordExists, err, "insert at %s", id)
		}
		return err
	}

	becameFull := !sp.HasFreeSlot()
	g.Drop()

	if becameFull {
		if err := t.unlinkFreePage(id.PageID); err != nil {
			return err
		}
	}

	t.recordCount++
	if err := t.syncHeader(); err != nil {
		return err
	}
	return t.Flush()
}

// unlinkFreePage removes pageID from the header's free-page chain, wherever
// it sits in the chain.
func (t *Table) unlinkFreePage(pageID int32) error {
	if t.firstFreePage == pageID {
		g, err := bufferpool.FetchPageWrite(t.BP, uint32(pageID))
		if err != nil {
			return err
		}
		t.firstFreePage = g.Page().NextFreePageID()
		g.Page().SetNextFreePageID(-1)
		g.Drop()
		return nil
	}

	prev := t.firstFreePage
	for prev >= 0 {
		pg, err := bufferpool.FetchPageWrite(t.BP, uint32(prev))
		if err != nil {
			return err
		}
		next := pg.Page().NextFreePageID()
		if next != pageID {
			pg.UnsetDirty()
			pg.Drop()
			prev = next
			continue
		}

		tg, err := bufferpool.FetchPageWrite(t.BP, uint32(pageID))
		if err != nil {
			pg.Drop()
			return err
		}
		pg.Page().SetNextFreePageID(tg.Page().NextFreePageID())
		tg.Page().SetNextFreePageID(-1)
		tg.Drop()
		pg.Drop()
		return nil
	}
	return nil
}

// Get reads a single row by TID.
func (t *Table) Get(id TID) ([]any, error) {
	if err := t.ensureOpen(); err != nil {
		return nil, err
	}
	if !id.Valid() {
		return nil, ErrInvalidTID
	}
	if err := t.ensureHeader(); err != nil {
		return nil, err
	}

	g, err := bufferpool.FetchPageRead(t.BP, uint32(id.PageID))
	if err != nil {
		return nil, err
	}
	defer g.Drop()

	sp := t.slots(g.Page())
	nullmap, payload, err := sp.ReadSlot(int(id.Slot))
	if err != nil {
		if errors.Is(err, ErrSlotEmpty) {
			return nil, errs.Wrap(errs.RecordMiss, err, "get %s", id)
		}
		return nil, err
	}
	return record.DecodeFixedRow(t.Schema, nullmap, payload, t.Overflow)
}

// Update overwrites a single row identified by TID in place. The old
// value's overflow pages (if any) are not reclaimed; see Delete.
func (t *Table) Update(id TID, values []any) error {
	if err := t.ensureOpen(); err != nil {
		return err
	}
	if !id.Valid() {
		return ErrInvalidTID
	}
	if err := t.ensureHeader(); err != nil {
		return err
	}

	nullmap, payload, err := record.EncodeFixedRow(t.Schema, values, t.Overflow)
	if err != nil {
		return err
	}

	g, err := bufferpool.FetchPageWrite(t.BP, uint32(id.PageID))
	if err != nil {
		return err
	}
	defer g.Drop()

	sp := t.slots(g.Page())
	if err := sp.UpdateSlot(int(id.Slot), nullmap, payload); err != nil {
		g.UnsetDirty()
		if errors.Is(err, ErrSlotEmpty) {
			return errs.Wrap(errs.RecordMiss, err, "update %s", id)
		}
		return err
	}

	return t.Flush()
}

// Delete removes a single row identified by TID. If the row's page was
// full immediately before this delete, the page is pushed back onto the
// header's free-page chain.
//
// TEXT/BYTES overflow pages referenced by the deleted row are not
// reclaimed (storage.OverflowManager has no free-list of its own); this
// mirrors the overflow manager's own allocatePage, which only ever grows.
func (t *Table) Delete(id TID) error {
	if err := t.ensureOpen(); err != nil {
		return err
	}
	if !id.Valid() {
		return ErrInvalidTID
	}
	if err := t.ensureHeader(); err != nil {
		return err
	}

	g, err := bufferpool.FetchPageWrite(t.BP, uint32(id.PageID))
	if err != nil {
		return err
	}

	sp := t.slots(g.Page())
	wasFull, err := sp.DeleteSlot(int(id.Slot))
	if err != nil {
		g.UnsetDirty()
		g.Drop()
		if errors.Is(err, ErrSlotEmpty) {
			return errs.Wrap(errs.RecordMiss, err, "delete %s", id)
		}
		return err
	}

	if wasFull {
		g.Page().SetNextFreePageID(t.firstFreePage)
		t.firstFreePage = id.PageID
	}
	g.Drop()

	t.recordCount--
	if err := t.syncHeader(); err != nil {
		return err
	}
	return t.Flush()
}

// Scan iterates every occupied slot across the table's data pages
// (page 1..PageCount-1; page 0 is the table header, not data).
func (t *Table) Scan(fn func(id TID, row []any) error) error {
	if err := t.ensureOpen(); err != nil {
		return err
	}
	if err := t.ensureHeader(); err != nil {
		return err
	}

	n := t.recordsPerPage()
	for pageID := uint32(1); pageID < t.PageCount; pageID++ {
		g, err := bufferpool.FetchPageRead(t.BP, pageID)
		if err != nil {
			return err
		}

		sp := t.slots(g.Page())
		for slot := 0; slot < n; slot++ {
			nullmap, payload, err := sp.ReadSlot(slot)
			if errors.Is(err, ErrSlotEmpty) {
				continue
			}
			if err != nil {
				g.Drop()
				return err
			}

			row, err := record.DecodeFixedRow(t.Schema, nullmap, payload, t.Overflow)
			if err != nil {
				g.Drop()
				return err
			}

			id := TID{PageID: int32(pageID), Slot: int32(slot)}
			if err := fn(id, row); err != nil {
				g.Drop()
				return err
			}
		}
		g.Drop()
	}
	return nil
}

// FirstTID returns the table's first occupied slot in page-slot order, or
// an invalid TID when the table is empty.
func (t *Table) FirstTID() (TID, error) {
	return t.nextOccupied(TID{PageID: 1, Slot: 0})
}

// NextTID returns the occupied slot following id in page-slot order, or an
// invalid TID past the last record. The order skips over concurrent
// inserts and deletes but never skips a record that existed throughout the
// iteration.
func (t *Table) NextTID(id TID) (TID, error) {
	if !id.Valid() {
		return rid.Invalid, ErrInvalidTID
	}
	return t.nextOccupied(TID{PageID: id.PageID, Slot: id.Slot + 1})
}

// nextOccupied scans from the given position for the next set bitmap bit.
func (t *Table) nextOccupied(from TID) (TID, error) {
	if err := t.ensureOpen(); err != nil {
		return rid.Invalid, err
	}
	if err := t.ensureHeader(); err != nil {
		return rid.Invalid, err
	}

	n := t.recordsPerPage()
	slot := int(from.Slot)
	for pageID := uint32(from.PageID); pageID >= 1 && pageID < t.PageCount; pageID++ {
		g, err := bufferpool.FetchPageRead(t.BP, pageID)
		if err != nil {
			return rid.Invalid, err
		}
		sp := t.slots(g.Page())
		for ; slot < n; slot++ {
			if _, _, err := sp.ReadSlot(slot); err == nil {
				g.Drop()
				return TID{PageID: int32(pageID), Slot: int32(slot)}, nil
			}
		}
		g.Drop()
		slot = 0
	}
	return rid.Invalid, nil
}

// ReadChunk reads a projection of columns across every occupied row of one
// data page directly from its column-major blocks. Only meaningful for a
// PAX-model table; other models return an error.
func (t *Table) ReadChunk(pageID uint32, colNames []string) (rows []int, columns map[string][]any, err error) {
	if t.Model != PAX {
		return nil, nil, fmt.Errorf("heap: ReadChunk requires a PAX-layout table, table %q is not PAX", t.Name)
	}
	if err := t.ensureOpen(); err != nil {
		return nil, nil, err
	}
	if err := t.ensureHeader(); err != nil {
		return nil, nil, err
	}

	g, err := bufferpool.FetchPageRead(t.BP, pageID)
	if err != nil {
		return nil, nil, err
	}
	defer g.Drop()

	pp := &PaxPage{Page: g.Page(), Layout: t.paxLayout}
	return pp.ReadChunk(colNames)
}

func (t *Table) Flush() error {
	if err := t.BP.FlushAll(); err != nil {
		return err
	}
	if t.pageCountHook != nil {
		if err := t.pageCountHook(t.PageCount); err != nil {
			slog.Warn("heap: pagecount hook failed", "table", t.Name, "pageCount", t.PageCount, "err", err)
		}
	}
	return nil
}

func (t *Table) Close() error {
	if t == nil {
		return nil
	}
	if t.closed.Swap(true) {
		return nil
	}
	if t.BP != nil {
		return t.BP.FlushAll()
	}
	return nil
}

func (t *Table) ensureOpen() error {
	if t == nil {
		return ErrTableClosed
	}
	if t.closed.Load() {
		return ErrTableClosed
	}
	return nil
}
