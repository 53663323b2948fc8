package hashindex

import (
	"errors"

	"github.com/njudb/njudb/internal/heap"
	"github.com/njudb/njudb/internal/storage"
)

// BucketPage is a thin wrapper around storage.Page holding hash-bucket
// entries through the slotted-page tuple API.
type BucketPage struct {
	Page *storage.Page
}

// bucketEntry is an in-memory (key, TID) pair read off a bucket page.
type bucketEntry struct {
	key int64
	tid heap.TID
}

// Entries reads every live entry on this page, skipping tombstoned slots.
func (b *BucketPage) Entries() ([]bucketEntry, error) {
	n := b.Page.NumSlots()
	out := make([]bucketEntry, 0, n)
	for i := 0; i < n; i++ {
		data, err := b.Page.ReadTuple(i)
		if errors.Is(err, storage.ErrBadSlot) {
			continue
		}
		if err != nil {
			return nil, err
		}
		key, tid := DecodeEntry(data)
		out = append(out, bucketEntry{key: key, tid: tid})
	}
	return out, nil
}

// Append writes a new (key, TID) entry, returning storage.ErrNoSpace once the
// page is full so the caller can allocate the next page in the chain.
func (b *BucketPage) Append(key int64, tid heap.TID) error {
	_, err := b.Page.InsertTuple(EncodeEntry(key, tid))
	return err
}

// DeleteKey removes every entry whose key matches, physically compacting
// the page in place rather than leaving tombstoned slots. The page's chain
// link survives the rebuild.
func (b *BucketPage) DeleteKey(key int64) (int, error) {
	entries, err := b.Entries()
	if err != nil {
		return 0, err
	}

	kept := entries[:0]
	removed := 0
	for _, e := range entries {
		if e.key == key {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	if removed == 0 {
		return 0, nil
	}

	pageID := b.Page.PageID()
	next := b.Page.NextFreePageID()
	b.Page.Reset(pageID)
	b.Page.SetNextFreePageID(next)
	for _, e := range kept {
		if _, err := b.Page.InsertTuple(EncodeEntry(e.key, e.tid)); err != nil {
			return removed, err
		}
	}
	return removed, nil
}
