package heap

import (
	"fmt"

	"github.com/njudb/njudb/internal/alias/bx"
	"github.com/njudb/njudb/internal/record"
	"github.com/njudb/njudb/internal/storage"
)

// Page 0 of every heap file is a table header, not a data page: the table
// header fields followed by the schema that was bound at creation time.
// Keeping the schema on page 0 means a heap file is self-describing and
// does not depend on the catalog's separate JSON sidecar to be readable.
const (
	thOffPageCount      = 0  // u32, total pages including this header page
	thOffFirstFreePage  = 4  // i32, head of the free-page chain, -1 = empty
	thOffRecordCount    = 8  // u32, live row count across the whole table
	thOffRecordSize     = 12 // u32, fixed payload width (no nullmap)
	thOffRecordsPerPage = 16 // u32
	thOffFieldCount     = 20 // u64
	thOffBitmapSize     = 28 // u32
	thOffNullMapSize    = 32 // u32
	thOffStorageModel   = 36 // u8 (padded to u32)
	thSchemaOffset      = 40
)

// TableHeader is the table-wide bookkeeping stored on a heap file's page 0.
type TableHeader struct {
	PageCount      uint32
	FirstFreePage  int32
	RecordCount    uint32
	RecordSize     uint32
	RecordsPerPage uint32
	FieldCount     uint64
	BitmapSize     uint32
	NullMapSize    uint32
	StorageModel   StorageModel
}

// EncodeTableHeader stamps th and schema onto page 0's payload area (the
// bytes past the common storage.Page header).
func EncodeTableHeader(p *storage.Page, th TableHeader, schema record.Schema) error {
	base := storage.HeaderSize
	buf := p.Buf

	bx.PutU32(buf[base+thOffPageCount:], th.PageCount)
	bx.PutU32(buf[base+thOffFirstFreePage:], uint32(th.FirstFreePage))
	bx.PutU32(buf[base+thOffRecordCount:], th.RecordCount)
	bx.PutU32(buf[base+thOffRecordSize:], th.RecordSize)
	bx.PutU32(buf[base+thOffRecordsPerPage:], th.RecordsPerPage)
	bx.PutU64(buf[base+thOffFieldCount:], th.FieldCount)
	bx.PutU32(buf[base+thOffBitmapSize:], th.BitmapSize)
	bx.PutU32(buf[base+thOffNullMapSize:], th.NullMapSize)
	buf[base+thOffStorageModel] = byte(th.StorageModel)

	off := base + thSchemaOffset
	bx.PutU64(buf[off:], uint64(len(schema.Cols)))
	off += 8
	for _, c := range schema.Cols {
		if off+len(c.Name)+1+4+1 > storage.PageSize {
			return fmt.Errorf("heap: schema for table too large for a single page header")
		}
		off += copy(buf[off:], []byte(c.Name))
		buf[off] = 0 // NUL terminator
		off++
		bx.PutU32(buf[off:], uint32(c.Type))
		off += 4
		if c.Nullable {
			buf[off] = 1
		} else {
			buf[off] = 0
		}
		off++
	}
	return nil
}

// DecodeTableHeader reads back what EncodeTableHeader wrote.
func DecodeTableHeader(p *storage.Page) (TableHeader, record.Schema, error) {
	base := storage.HeaderSize
	buf := p.Buf

	th := TableHeader{
		PageCount:      bx.U32(buf[base+thOffPageCount:]),
		FirstFreePage:  int32(bx.U32(buf[base+thOffFirstFreePage:])),
		RecordCount:    bx.U32(buf[base+thOffRecordCount:]),
		RecordSize:     bx.U32(buf[base+thOffRecordSize:]),
		RecordsPerPage: bx.U32(buf[base+thOffRecordsPerPage:]),
		FieldCount:     bx.U64(buf[base+thOffFieldCount:]),
		BitmapSize:     bx.U32(buf[base+thOffBitmapSize:]),
		NullMapSize:    bx.U32(buf[base+thOffNullMapSize:]),
		StorageModel:   StorageModel(buf[base+thOffStorageModel]),
	}

	off := base + thSchemaOffset
	n := bx.U64(buf[off:])
	off += 8
	cols := make([]record.Column, 0, n)
	for i := uint64(0); i < n; i++ {
		start := off
		for buf[off] != 0 {
			off++
		}
		name := string(buf[start:off])
		off++ // NUL
		typ := record.ColumnType(bx.U32(buf[off:]))
		off += 4
		nullable := buf[off] != 0
		off++
		cols = append(cols, record.Column{Name: name, Type: typ, Nullable: nullable})
	}
	return th, record.Schema{Cols: cols}, nil
}
