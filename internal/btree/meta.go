package btree

import (
	"github.com/njudb/njudb/internal/alias/bx"
	"github.com/njudb/njudb/internal/errs"
	"github.com/njudb/njudb/internal/rid"
	"github.com/njudb/njudb/internal/storage"
)

// Page 0 of an index file is the index header, not a node: root page id,
// free-page list head, size counters, tree height, page count and the two
// node capacities, followed by the index name (NUL-terminated) and a
// 4-byte index-type tag. An index file is self-describing the same way a
// heap file's page-0 table header makes the heap self-describing.
const (
	ihOffRoot        = 0  // i32, -1 when the tree is empty
	ihOffFirstFree   = 4  // i32, head of the freed-node chain, -1 = empty
	ihOffHeight      = 8  // i32, 0 when the tree is empty
	ihOffPageCount   = 12 // u32, includes this header page
	ihOffEntryCount  = 16 // u64, live (key, TID) pairs
	ihOffLeafMax     = 24 // u16
	ihOffInternalMax = 26 // u16
	ihOffKeySize     = 28 // u16
	ihOffValueSize   = 30 // u16
	ihNameOffset     = 32

	indexTagBTree uint32 = 1
)

// indexHeader is the in-memory mirror of page 0.
type indexHeader struct {
	Root        int32
	FirstFree   int32
	Height      int32
	PageCount   uint32
	EntryCount  uint64
	LeafMax     int
	InternalMax int
	Name        string
}

func encodeIndexHeader(p *storage.Page, h indexHeader) error {
	base := storage.HeaderSize
	if base+ihNameOffset+len(h.Name)+1+4 > storage.PageSize {
		return errs.New(errs.IndexFail, "index header for %q does not fit one page", h.Name)
	}
	buf := p.Buf
	bx.PutU32(buf[base+ihOffRoot:], uint32(h.Root))
	bx.PutU32(buf[base+ihOffFirstFree:], uint32(h.FirstFree))
	bx.PutU32(buf[base+ihOffHeight:], uint32(h.Height))
	bx.PutU32(buf[base+ihOffPageCount:], h.PageCount)
	bx.PutU64(buf[base+ihOffEntryCount:], h.EntryCount)
	bx.PutU16(buf[base+ihOffLeafMax:], uint16(h.LeafMax))
	bx.PutU16(buf[base+ihOffInternalMax:], uint16(h.InternalMax))
	bx.PutU16(buf[base+ihOffKeySize:], uint16(keySize))
	bx.PutU16(buf[base+ihOffValueSize:], uint16(rid.Size))

	off := base + ihNameOffset
	off += copy(buf[off:], []byte(h.Name))
	buf[off] = 0
	off++
	bx.PutU32(buf[off:], indexTagBTree)
	return nil
}

func decodeIndexHeader(p *storage.Page) (indexHeader, error) {
	base := storage.HeaderSize
	buf := p.Buf
	h := indexHeader{
		Root:        int32(bx.U32(buf[base+ihOffRoot:])),
		FirstFree:   int32(bx.U32(buf[base+ihOffFirstFree:])),
		Height:      int32(bx.U32(buf[base+ihOffHeight:])),
		PageCount:   bx.U32(buf[base+ihOffPageCount:]),
		EntryCount:  bx.U64(buf[base+ihOffEntryCount:]),
		LeafMax:     int(bx.U16(buf[base+ihOffLeafMax:])),
		InternalMax: int(bx.U16(buf[base+ihOffInternalMax:])),
	}

	off := base + ihNameOffset
	start := off
	for off < storage.PageSize && buf[off] != 0 {
		off++
	}
	if off >= storage.PageSize-5 {
		return indexHeader{}, errs.New(errs.IndexFail, "corrupt index header: unterminated name")
	}
	h.Name = string(buf[start:off])
	off++
	if tag := bx.U32(buf[off:]); tag != indexTagBTree {
		return indexHeader{}, errs.New(errs.IndexFail, "index file has type tag %d, want %d", tag, indexTagBTree)
	}
	if h.LeafMax <= 0 || h.InternalMax <= 0 {
		return indexHeader{}, errs.New(errs.IndexFail, "corrupt index header: leaf max %d, internal max %d", h.LeafMax, h.InternalMax)
	}
	return h, nil
}
