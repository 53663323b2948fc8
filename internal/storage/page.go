package storage

import (
	"fmt"

	"github.com/njudb/njudb/internal/alias/bx"
)

// Slot flags.
const (
	SlotFlagNormal  uint16 = 0
	SlotFlagDeleted uint16 = 1
	SlotFlagMoved   uint16 = 2
)

var (
	ErrBadSlot = fmt.Errorf("storage: bad or invalid slot")
	ErrNoSpace = fmt.Errorf("storage: page has no free space for tuple")
)

// +------------------+ 0
// | Page header      |
// +------------------+ <-- lower (fixed, == HeaderSize)
// | Slot directory   | (grows toward upper as slots are appended)
// +------------------+
// |   Free space     |
// +------------------+ <-- upper (shrinks as tuples are appended)
// |  Tuple data      |
// |  (grows down)    |
// +------------------+ <-- special
// |  Special space   |
// +------------------+ Page size (8192)
//
// Header layout (HeaderSize=24 bytes):
//
//	0  : 4  pageID
//	4  : 2  flags    (reserved, e.g. page type)
//	6  : 2  lower    (fixed at HeaderSize; kept as a stored field for debug parity)
//	8  : 2  upper    (start of free tuple area, shrinks on insert)
//	10 : 2  special  (reserved; e.g. btree sibling pointer)
//	12 : 2  numSlots
//	14 : 4  lsn
//	18 : 4  nextFreePageID (signed; -1 means this page is not on any free list)
//	22 : 2  recordCount    (live record/entry count on this page)
const (
	hdrOffPageID         = 0
	hdrOffFlags          = 4
	hdrOffLower          = 6
	hdrOffUpper          = 8
	hdrOffSpecial        = 10
	hdrOffNumSlots       = 12
	hdrOffLSN            = 14
	hdrOffNextFreePageID = 18
	hdrOffRecordCount    = 22
)

// noFreePage is the sentinel NextFreePageID value meaning "not on a free list".
const noFreePage int32 = -1

// slot describes one line-pointer entry in the page's slot directory.
// For SlotFlagMoved entries, Offset holds the destination slot index and
// Length is unused.
type slot struct {
	Offset uint16
	Length uint16
	Flags  uint16
}

// Page is a slotted page: a fixed-size header, a slot directory that grows
// from just after the header, and tuple data that grows down from the end
// of the page.
type Page struct {
	Buf []byte
}

// NewPage wraps buf as a Page, initializing it in place if it looks
// uninitialized (all-zero header). Already-initialized buffers are kept
// as-is so callers can load existing pages from disk.
func NewPage(buf []byte, pageID uint32) (*Page, error) {
	if len(buf) != PageSize {
		return nil, fmt.Errorf("storage: page buffer must be %d bytes, got %d", PageSize, len(buf))
	}
	p := &Page{Buf: buf}
	if p.IsUninitialized() {
		p.init(pageID)
	}
	return p, nil
}

// init formats the page as empty: no slots, full free space.
func (p *Page) init(pageID uint32) {
	bx.PutU32(p.Buf[hdrOffPageID:], pageID)
	bx.PutU16(p.Buf[hdrOffFlags:], 0)
	bx.PutU16(p.Buf[hdrOffLower:], HeaderSize)
	bx.PutU16(p.Buf[hdrOffUpper:], PageSize)
	bx.PutU16(p.Buf[hdrOffSpecial:], 0)
	bx.PutU16(p.Buf[hdrOffNumSlots:], 0)
	bx.PutU32(p.Buf[hdrOffLSN:], 0)
	freePageID := noFreePage
	bx.PutU32(p.Buf[hdrOffNextFreePageID:], uint32(freePageID))
	bx.PutU16(p.Buf[hdrOffRecordCount:], 0)
}

// LSN returns the page's log sequence number.
func (p *Page) LSN() uint32 {
	return bx.U32(p.Buf[hdrOffLSN : hdrOffLSN+4])
}

// SetLSN stamps the page with the log sequence number of its last mutation.
func (p *Page) SetLSN(v uint32) {
	bx.PutU32(p.Buf[hdrOffLSN:], v)
}

// NextFreePageID returns the next page in this page's owning free list, or
// a negative value if this page is not currently free.
func (p *Page) NextFreePageID() int32 {
	return int32(bx.U32(p.Buf[hdrOffNextFreePageID : hdrOffNextFreePageID+4]))
}

// SetNextFreePageID links this page to the next entry of a free list.
func (p *Page) SetNextFreePageID(v int32) {
	bx.PutU32(p.Buf[hdrOffNextFreePageID:], uint32(v))
}

// RecordCount returns the number of live records/entries stored on this page.
func (p *Page) RecordCount() uint16 {
	return bx.U16(p.Buf[hdrOffRecordCount : hdrOffRecordCount+2])
}

// SetRecordCount stamps the number of live records/entries on this page.
func (p *Page) SetRecordCount(v uint16) {
	bx.PutU16(p.Buf[hdrOffRecordCount:], v)
}

// Reset reformats the page in place as a fresh, empty page, discarding any
// existing tuples and slots.
func (p *Page) Reset(pageID uint32) {
	for i := range p.Buf {
		p.Buf[i] = 0
	}
	p.init(pageID)
}

// IsUninitialized reports whether the page has never been formatted: a
// fresh zero-filled buffer has upper==0, which no formatted page has
// (minimum upper is always greater than HeaderSize).
func (p *Page) IsUninitialized() bool {
	return p.upper() == 0
}

func (p *Page) PageID() uint32 {
	return bx.U32(p.Buf[hdrOffPageID : hdrOffPageID+4])
}

func (p *Page) flags() uint16 {
	return bx.U16(p.Buf[hdrOffFlags : hdrOffFlags+2])
}

func (p *Page) lower() uint16 {
	return bx.U16(p.Buf[hdrOffLower : hdrOffLower+2])
}

func (p *Page) upper() uint16 {
	return bx.U16(p.Buf[hdrOffUpper : hdrOffUpper+2])
}

func (p *Page) setUpper(v uint16) {
	bx.PutU16(p.Buf[hdrOffUpper:], v)
}

func (p *Page) special() uint16 {
	return bx.U16(p.Buf[hdrOffSpecial : hdrOffSpecial+2])
}

// NumSlots returns the number of slot-directory entries on the page,
// including deleted and moved ones.
func (p *Page) NumSlots() int {
	return int(bx.U16(p.Buf[hdrOffNumSlots : hdrOffNumSlots+2]))
}

func (p *Page) setNumSlots(n int) {
	bx.PutU16(p.Buf[hdrOffNumSlots:], uint16(n))
}

// dirEnd is the first byte past the slot directory.
func (p *Page) dirEnd() int {
	return HeaderSize + p.NumSlots()*SlotSize
}

// FreeSpace returns the number of unused bytes between the slot directory
// and the tuple area.
func (p *Page) FreeSpace() int {
	return int(p.upper()) - p.dirEnd()
}

func (p *Page) slotOffset(i int) int {
	return HeaderSize + i*SlotSize
}

func (p *Page) getSlot(i int) (slot, error) {
	if i < 0 || i >= p.NumSlots() {
		return slot{}, ErrBadSlot
	}
	off := p.slotOffset(i)
	return slot{
		Offset: bx.U16(p.Buf[off : off+2]),
		Length: bx.U16(p.Buf[off+2 : off+4]),
		Flags:  bx.U16(p.Buf[off+4 : off+6]),
	}, nil
}

func (p *Page) putSlot(i int, s slot) {
	off := p.slotOffset(i)
	bx.PutU16(p.Buf[off:], s.Offset)
	bx.PutU16(p.Buf[off+2:], s.Length)
	bx.PutU16(p.Buf[off+4:], s.Flags)
}

// appendSlot writes a brand new slot directory entry and bumps NumSlots.
func (p *Page) appendSlot(s slot) int {
	idx := p.NumSlots()
	p.putSlot(idx, s)
	p.setNumSlots(idx + 1)
	return idx
}

// InsertTuple copies data into the free space area and appends a slot
// pointing at it, returning the new slot index.
func (p *Page) InsertTuple(data []byte) (int, error) {
	need := len(data)
	available := int(p.upper()) - (p.dirEnd() + SlotSize)
	if need > available {
		return -1, ErrNoSpace
	}

	newUpper := p.upper() - uint16(need)
	copy(p.Buf[newUpper:p.upper()], data)
	p.setUpper(newUpper)

	idx := p.appendSlot(slot{Offset: newUpper, Length: uint16(need), Flags: SlotFlagNormal})
	return idx, nil
}

// ReadTuple returns the tuple bytes at slot i, following a moved-slot
// redirect if necessary.
func (p *Page) ReadTuple(i int) ([]byte, error) {
	s, err := p.getSlot(i)
	if err != nil {
		return nil, err
	}
	switch s.Flags {
	case SlotFlagDeleted:
		return nil, ErrBadSlot
	case SlotFlagMoved:
		return p.ReadTuple(int(s.Offset))
	default:
		buf := make([]byte, s.Length)
		copy(buf, p.Buf[s.Offset:int(s.Offset)+int(s.Length)])
		return buf, nil
	}
}

// UpdateTuple overwrites the tuple at slot i. If the new data fits in the
// tuple's current footprint it is updated in place; otherwise a new tuple
// is inserted elsewhere and the old slot becomes a moved-redirect pointing
// at the new slot.
func (p *Page) UpdateTuple(i int, data []byte) error {
	s, err := p.getSlot(i)
	if err != nil {
		return err
	}
	switch s.Flags {
	case SlotFlagDeleted:
		return ErrBadSlot
	case SlotFlagMoved:
		return p.UpdateTuple(int(s.Offset), data)
	}

	if len(data) <= int(s.Length) {
		copy(p.Buf[s.Offset:int(s.Offset)+len(data)], data)
		p.putSlot(i, slot{Offset: s.Offset, Length: uint16(len(data)), Flags: SlotFlagNormal})
		return nil
	}

	newSlot, err := p.InsertTuple(data)
	if err != nil {
		return err
	}
	p.putSlot(i, slot{Offset: uint16(newSlot), Length: 0, Flags: SlotFlagMoved})
	return nil
}

// DeleteTuple marks the slot as deleted. The slot directory entry is kept
// (so earlier slot indexes stay stable) but the tuple becomes unreadable.
func (p *Page) DeleteTuple(i int) error {
	s, err := p.getSlot(i)
	if err != nil {
		return err
	}
	if s.Flags == SlotFlagDeleted {
		return ErrBadSlot
	}
	p.putSlot(i, slot{Offset: s.Offset, Length: s.Length, Flags: SlotFlagDeleted})
	return nil
}
