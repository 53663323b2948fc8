package hashindex

import (
	"github.com/njudb/njudb/internal/alias/bx"
	"github.com/njudb/njudb/internal/errs"
	"github.com/njudb/njudb/internal/storage"
)

// On-disk shape of a hash index file:
//
//	page 0: index header — bucket count, total entries, next page id,
//	        then the index name (NUL-terminated) and a 4-byte type tag.
//	page 1: bucket directory — bucket_count page ids, -1 for an empty
//	        bucket, otherwise the head of that bucket's chain.
//	page 2+: bucket pages; each chains to its successor through the
//	        common page header's next-free-page id slot (-1 at the tail;
//	        the hash index keeps no free list, so the slot is unambiguous).
const (
	hhOffBucketCount  = 0  // u32
	hhOffTotalEntries = 4  // u64
	hhOffNextPageID   = 12 // u32
	hhNameOffset      = 16

	indexTagHash uint32 = 2

	headerPageID    uint32 = 0
	directoryPageID uint32 = 1
	firstBucketPage uint32 = 2
)

// MaxBucketCount is the largest directory that fits page 1.
func MaxBucketCount() int {
	return (storage.PageSize - storage.HeaderSize) / 4
}

type hashHeader struct {
	BucketCount  int
	TotalEntries uint64
	NextPageID   uint32
	Name         string
}

func encodeHashHeader(p *storage.Page, h hashHeader) error {
	base := storage.HeaderSize
	if base+hhNameOffset+len(h.Name)+1+4 > storage.PageSize {
		return errs.New(errs.IndexFail, "hash index header for %q does not fit one page", h.Name)
	}
	buf := p.Buf
	bx.PutU32(buf[base+hhOffBucketCount:], uint32(h.BucketCount))
	bx.PutU64(buf[base+hhOffTotalEntries:], h.TotalEntries)
	bx.PutU32(buf[base+hhOffNextPageID:], h.NextPageID)

	off := base + hhNameOffset
	off += copy(buf[off:], []byte(h.Name))
	buf[off] = 0
	off++
	bx.PutU32(buf[off:], indexTagHash)
	return nil
}

func decodeHashHeader(p *storage.Page) (hashHeader, error) {
	base := storage.HeaderSize
	buf := p.Buf
	h := hashHeader{
		BucketCount:  int(bx.U32(buf[base+hhOffBucketCount:])),
		TotalEntries: bx.U64(buf[base+hhOffTotalEntries:]),
		NextPageID:   bx.U32(buf[base+hhOffNextPageID:]),
	}

	off := base + hhNameOffset
	start := off
	for off < storage.PageSize && buf[off] != 0 {
		off++
	}
	if off >= storage.PageSize-5 {
		return hashHeader{}, errs.New(errs.IndexFail, "corrupt hash index header: unterminated name")
	}
	h.Name = string(buf[start:off])
	off++
	if tag := bx.U32(buf[off:]); tag != indexTagHash {
		return hashHeader{}, errs.New(errs.IndexFail, "index file has type tag %d, want %d", tag, indexTagHash)
	}
	if h.BucketCount <= 0 || h.BucketCount > MaxBucketCount() {
		return hashHeader{}, errs.New(errs.IndexFail, "corrupt hash index header: bucket count %d", h.BucketCount)
	}
	return h, nil
}

func encodeDirectory(p *storage.Page, dir []int32) {
	base := storage.HeaderSize
	for i, pid := range dir {
		bx.PutU32(p.Buf[base+i*4:], uint32(pid))
	}
}

func decodeDirectory(p *storage.Page, bucketCount int) []int32 {
	base := storage.HeaderSize
	dir := make([]int32, bucketCount)
	for i := range dir {
		dir[i] = int32(bx.U32(p.Buf[base+i*4:]))
	}
	return dir
}
