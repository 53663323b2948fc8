package hashindex

import (
	"github.com/njudb/njudb/internal/alias/bx"
	"github.com/njudb/njudb/internal/heap"
	"github.com/njudb/njudb/internal/record"
	"github.com/njudb/njudb/internal/rid"
)

// EntrySize is the fixed size of one bucket-page entry: 8 bytes key +
// rid.Size bytes TID.
const EntrySize = 8 + rid.Size

// EncodeEntry packs (key, TID) into the same 16-byte layout a B+Tree leaf
// stores per entry, so both index kinds serialize identically on the wire.
func EncodeEntry(key int64, tid heap.TID) []byte {
	buf := make([]byte, EntrySize)
	bx.PutU64(buf[0:8], uint64(key))
	tid.Encode(buf[8:])
	return buf
}

// DecodeEntry unpacks a bucket-page entry into (key, TID).
func DecodeEntry(b []byte) (int64, heap.TID) {
	if len(b) < EntrySize {
		return 0, heap.TID{}
	}
	key := int64(bx.U64(b[0:8]))
	return key, rid.Decode(b[8 : 8+rid.Size])
}

// hashKey mixes an int64 key the same way record.Record.Hash mixes an
// int64-typed field (via record.HashInt64), so this index's bucket hash
// shares the spec's canonical record-level mixing rule rather than rolling
// its own finalizer.
func hashKey(key int64) uint64 {
	return record.HashInt64(key)
}

func bucketFor(key int64, bucketCount int) int {
	if bucketCount <= 0 {
		return 0
	}
	return int(hashKey(key) % uint64(bucketCount))
}
