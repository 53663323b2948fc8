package record

import (
	"bytes"

	"github.com/njudb/njudb/internal/rid"
	"github.com/njudb/njudb/internal/storage"
)

// Record owns two buffers -- a null bitmap and a fixed-size payload -- plus
// the RID it was read from (or rid.Invalid for a record not yet placed on
// a page). It is the unit heap.Table and the indexes exchange once a row
// has been decoded off a page.
type Record struct {
	Schema  Schema
	Nullmap []byte
	Payload []byte
	RID     rid.RID
}

// NewRecord builds a Record from typed values, computing its nullmap/payload
// through EncodeFixedRow. id may be rid.Invalid for a record not yet
// inserted anywhere.
func NewRecord(s Schema, values []any, id rid.RID, ovf *storage.OverflowManager) (*Record, error) {
	nullmap, payload, err := EncodeFixedRow(s, values, ovf)
	if err != nil {
		return nil, err
	}
	return &Record{Schema: s, Nullmap: nullmap, Payload: payload, RID: id}, nil
}

// NewRecordFromBytes builds a Record directly from its raw on-page bytes:
// the nullmap followed by the fixed-width payload, exactly the slot layout
// a heap N-ary page stores.
func NewRecordFromBytes(s Schema, nullmap, payload []byte, id rid.RID) *Record {
	nm := make([]byte, len(nullmap))
	copy(nm, nullmap)
	pl := make([]byte, len(payload))
	copy(pl, payload)
	return &Record{Schema: s, Nullmap: nm, Payload: pl, RID: id}
}

// Values decodes the record's payload back into typed Go values.
func (r *Record) Values(ovf *storage.OverflowManager) ([]any, error) {
	return DecodeFixedRow(r.Schema, r.Nullmap, r.Payload, ovf)
}

// IsNull reports whether column i is NULL.
func (r *Record) IsNull(i int) bool {
	return (r.Nullmap[i/8]>>(uint(i)&7))&1 == 1
}

// field returns the raw payload bytes backing column i.
func (r *Record) field(i int) []byte {
	off := r.Schema.FieldOffset(i)
	sz := FieldSize(r.Schema.Cols[i].Type)
	return r.Payload[off : off+sz]
}

// Project returns a new Record over the subset of columns named, copying
// only their nullmap bits and payload bytes. The projected record keeps no
// RID of its own (rid.Invalid) since it no longer corresponds 1:1 to a
// single on-page slot.
func (r *Record) Project(names []string) (*Record, error) {
	sub, err := r.Schema.Project(names)
	if err != nil {
		return nil, err
	}
	out := &Record{
		Schema:  sub,
		Nullmap: make([]byte, sub.NullMapSize()),
		Payload: make([]byte, sub.RecordSize()),
		RID:     rid.Invalid,
	}
	for newIdx, name := range names {
		oldIdx := r.Schema.ColPos(name)
		if r.IsNull(oldIdx) {
			out.Nullmap[newIdx/8] |= 1 << (uint(newIdx) & 7)
			continue
		}
		copy(out.Payload[out.Schema.FieldOffset(newIdx):], r.field(oldIdx))
	}
	return out, nil
}

// ConcatRecords returns a Record whose schema, nullmap and payload are a's
// fields followed by b's, with no RID of its own.
func ConcatRecords(a, b *Record) *Record {
	schema := Concat(a.Schema, b.Schema)
	out := &Record{
		Schema:  schema,
		Nullmap: make([]byte, schema.NullMapSize()),
		Payload: make([]byte, schema.RecordSize()),
		RID:     rid.Invalid,
	}
	n := a.Schema.NumCols()
	for i := 0; i < n; i++ {
		if a.IsNull(i) {
			out.Nullmap[i/8] |= 1 << (uint(i) & 7)
			continue
		}
		copy(out.Payload[out.Schema.FieldOffset(i):], a.field(i))
	}
	for i := 0; i < b.Schema.NumCols(); i++ {
		j := n + i
		if b.IsNull(i) {
			out.Nullmap[j/8] |= 1 << (uint(j) & 7)
			continue
		}
		copy(out.Payload[out.Schema.FieldOffset(j):], b.field(i))
	}
	return out
}

// Equal compares schema identity (same table id and column list), payload
// bytes, and null bitmap. RID is not part of equality: two records with the
// same content at different slots are equal.
func (r *Record) Equal(other *Record) bool {
	if other == nil {
		return false
	}
	if r.Schema.TableID != other.Schema.TableID || len(r.Schema.Cols) != len(other.Schema.Cols) {
		return false
	}
	for i := range r.Schema.Cols {
		if r.Schema.Cols[i] != other.Schema.Cols[i] {
			return false
		}
	}
	return bytes.Equal(r.Nullmap, other.Nullmap) && bytes.Equal(r.Payload, other.Payload)
}

// Hash mixes every non-null field by type into a single 64-bit digest
// (fnv-1a style folding), the same primitive hashindex.bucketFor uses
// (via HashInt64) to hash a single key value, so both key on one
// canonical mixing rule.
func (r *Record) Hash() uint64 {
	h := fnvOffset
	for i, col := range r.Schema.Cols {
		if r.IsNull(i) {
			continue
		}
		h = mixHash(h, col.Type, r.field(i))
	}
	return h
}

const fnvOffset uint64 = 14695981039346656037
const fnvPrime uint64 = 1099511628211

func mixHash(h uint64, _ ColumnType, field []byte) uint64 {
	for _, b := range field {
		h ^= uint64(b)
		h *= fnvPrime
	}
	return h
}

// HashInt64 mixes a single int64 value the same way Record.Hash mixes an
// int64-typed field, so callers that only ever key on a bare int64 (the
// static hash index) derive their bucket hash from the same primitive
// used by the general record-level Hash.
func HashInt64(v int64) uint64 {
	var b [8]byte
	u := uint64(v)
	for i := range b {
		b[i] = byte(u >> (8 * i))
	}
	return mixHash(fnvOffset, ColInt64, b[:])
}
