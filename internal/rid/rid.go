// Package rid implements the record identifier used across the heap and
// index layers: a (page id, slot id) pair, with (-1, -1) meaning absent.
package rid

import (
	"fmt"

	"github.com/njudb/njudb/internal/alias/bx"
)

// Size is the encoded length: two 4-byte signed ints (spec §6).
const Size = 8

// RID identifies a record inside a heap file by page id and slot id.
type RID struct {
	PageID int32
	Slot   int32
}

// Invalid is the sentinel RID used to denote absence.
var Invalid = RID{PageID: -1, Slot: -1}

// New builds a RID from a page id and slot id.
func New(pageID, slot int32) RID {
	return RID{PageID: pageID, Slot: slot}
}

// Valid reports whether r denotes a real (page, slot) pair.
func (r RID) Valid() bool {
	return r.PageID >= 0 && r.Slot >= 0
}

// Hash mixes page id and slot id, grounded in the original C++ RID::GetHash
// (page_id << 16 | slot_id), widened to 64 bits since Go slot ids are int32.
func (r RID) Hash() uint64 {
	return uint64(uint32(r.PageID))<<32 | uint64(uint32(r.Slot))
}

// Encode writes the RID as two little-endian int32s into b (len(b) >= Size).
func (r RID) Encode(b []byte) {
	bx.PutU32At(b, 0, uint32(r.PageID))
	bx.PutU32At(b, 4, uint32(r.Slot))
}

// Decode reads a RID previously written by Encode.
func Decode(b []byte) RID {
	return RID{
		PageID: int32(bx.U32At(b, 0)),
		Slot:   int32(bx.U32At(b, 4)),
	}
}

func (r RID) String() string {
	if !r.Valid() {
		return "RID(invalid)"
	}
	return fmt.Sprintf("RID(%d,%d)", r.PageID, r.Slot)
}
