// Package hashindex implements the static bucket-array hash index: a fixed
// directory of buckets, each the head of a chain of overflow-linked bucket
// pages. Bucket count is fixed for the index's lifetime; there is no
// dynamic resizing.
package hashindex

import (
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/njudb/njudb/internal/bufferpool"
	"github.com/njudb/njudb/internal/errs"
	"github.com/njudb/njudb/internal/heap"
	"github.com/njudb/njudb/internal/storage"
)

// Index is a static hash index over int64 keys, mirroring the B+Tree's
// restriction to int64 keys in this iteration. The header (page 0) and
// bucket directory (page 1) are cached in memory and written back after
// every structural change.
type Index struct {
	SM *storage.StorageManager
	FS storage.FileSet
	BP bufferpool.Manager

	BucketCount  int
	TotalEntries uint64

	// Directory maps bucket number -> head page id of that bucket's chain,
	// or -1 if the bucket is empty. Mirrors page 1.
	Directory []int32

	name       string
	nextPageID uint32

	closed atomic.Bool
}

// NewIndex formats a brand-new hash index with bucketCount empty buckets.
func NewIndex(sm *storage.StorageManager, fs storage.FileSet, bp bufferpool.Manager, bucketCount int) (*Index, error) {
	if bucketCount <= 0 || bucketCount > MaxBucketCount() {
		return nil, errs.New(errs.IndexFail, "hashindex: bucket count %d out of range [1, %d]", bucketCount, MaxBucketCount())
	}

	idx := &Index{
		SM:          sm,
		FS:          fs,
		BP:          bp,
		BucketCount: bucketCount,
		Directory:   make([]int32, bucketCount),
		nextPageID:  firstBucketPage,
	}
	for i := range idx.Directory {
		idx.Directory[i] = -1
	}
	if lfs, ok := fs.(storage.LocalFileSet); ok {
		idx.name = lfs.Base
	}

	if err := idx.writeMeta(); err != nil {
		return nil, err
	}
	slog.Debug("hashindex: created", "name", idx.name, "buckets", bucketCount)
	return idx, nil
}

// OpenIndex restores a hash index from its header and directory pages.
func OpenIndex(sm *storage.StorageManager, fs storage.FileSet, bp bufferpool.Manager) (*Index, error) {
	idx := &Index{SM: sm, FS: fs, BP: bp}

	hg, err := bufferpool.FetchPageRead(bp, headerPageID)
	if err != nil {
		return nil, err
	}
	h, err := decodeHashHeader(hg.Page())
	hg.Drop()
	if err != nil {
		return nil, err
	}

	dg, err := bufferpool.FetchPageRead(bp, directoryPageID)
	if err != nil {
		return nil, err
	}
	idx.Directory = decodeDirectory(dg.Page(), h.BucketCount)
	dg.Drop()

	idx.BucketCount = h.BucketCount
	idx.TotalEntries = h.TotalEntries
	idx.nextPageID = h.NextPageID
	idx.name = h.Name
	return idx, nil
}

func (idx *Index) ensureOpen() error {
	if idx == nil || idx.closed.Load() {
		return ErrIndexClosed
	}
	return nil
}

// writeMeta stamps the cached header and directory back onto pages 0 and 1.
func (idx *Index) writeMeta() error {
	hg, err := bufferpool.FetchPageWrite(idx.BP, headerPageID)
	if err != nil {
		return err
	}
	err = encodeHashHeader(hg.Page(), hashHeader{
		BucketCount:  idx.BucketCount,
		TotalEntries: idx.TotalEntries,
		NextPageID:   idx.nextPageID,
		Name:         idx.name,
	})
	hg.Drop()
	if err != nil {
		return err
	}

	dg, err := bufferpool.FetchPageWrite(idx.BP, directoryPageID)
	if err != nil {
		return err
	}
	encodeDirectory(dg.Page(), idx.Directory)
	dg.Drop()
	return nil
}

// allocPage returns a write guard on a freshly reset bucket page.
func (idx *Index) allocPage() (uint32, *bufferpool.WriteGuard, error) {
	pid := idx.nextPageID
	idx.nextPageID++

	g, err := bufferpool.FetchPageWrite(idx.BP, pid)
	if err != nil {
		return 0, nil, err
	}
	g.Page().Reset(pid)
	return pid, g, nil
}

// chainNext reads a bucket page's successor in its chain, or -1 at the
// tail.
func chainNext(p *storage.Page) int32 {
	return p.NextFreePageID()
}

// Insert adds (key, tid) to the bucket the key hashes to. Duplicate keys are
// permitted: each Insert appends a new entry rather than replacing one.
func (idx *Index) Insert(key int64, tid heap.TID) error {
	if err := idx.ensureOpen(); err != nil {
		return err
	}

	b := bucketFor(key, idx.BucketCount)
	headPID := idx.Directory[b]

	if headPID < 0 {
		pid, g, err := idx.allocPage()
		if err != nil {
			return err
		}
		bp := &BucketPage{Page: g.Page()}
		if err := bp.Append(key, tid); err != nil {
			g.Drop()
			return err
		}
		g.Drop()

		idx.Directory[b] = int32(pid)
		idx.TotalEntries++
		return idx.writeMeta()
	}

	pid := uint32(headPID)
	for {
		g, err := bufferpool.FetchPageWrite(idx.BP, pid)
		if err != nil {
			return err
		}
		bp := &BucketPage{Page: g.Page()}
		err = bp.Append(key, tid)
		if err == nil {
			g.Drop()
			idx.TotalEntries++
			return idx.writeMeta()
		}
		if !errors.Is(err, storage.ErrNoSpace) {
			g.UnsetDirty()
			g.Drop()
			return err
		}

		if next := chainNext(g.Page()); next >= 0 {
			g.UnsetDirty()
			g.Drop()
			pid = uint32(next)
			continue
		}

		// Tail page is full: append a fresh page to the chain.
		newPID, ng, err := idx.allocPage()
		if err != nil {
			g.UnsetDirty()
			g.Drop()
			return err
		}
		nbp := &BucketPage{Page: ng.Page()}
		if err := nbp.Append(key, tid); err != nil {
			ng.Drop()
			g.UnsetDirty()
			g.Drop()
			return err
		}
		ng.Drop()

		g.Page().SetNextFreePageID(int32(newPID))
		g.Drop()

		idx.TotalEntries++
		return idx.writeMeta()
	}
}

// Search returns every TID inserted under key.
func (idx *Index) Search(key int64) ([]heap.TID, error) {
	if err := idx.ensureOpen(); err != nil {
		return nil, err
	}

	var out []heap.TID
	headPID := idx.Directory[bucketFor(key, idx.BucketCount)]

	pid := headPID
	for pid >= 0 {
		g, err := bufferpool.FetchPageRead(idx.BP, uint32(pid))
		if err != nil {
			return nil, err
		}
		bp := &BucketPage{Page: g.Page()}
		entries, err := bp.Entries()
		if err != nil {
			g.Drop()
			return nil, err
		}
		next := chainNext(g.Page())
		g.Drop()

		for _, e := range entries {
			if e.key == key {
				out = append(out, e.tid)
			}
		}
		pid = next
	}
	return out, nil
}

// SearchRange scans every bucket and filters by key range. It is provided
// for interface parity with the B+Tree; it is never the efficient choice.
func (idx *Index) SearchRange(low, high int64) ([]heap.TID, error) {
	if err := idx.ensureOpen(); err != nil {
		return nil, err
	}

	var out []heap.TID
	err := idx.walk(func(key int64, tid heap.TID) error {
		if key >= low && key <= high {
			out = append(out, tid)
		}
		return nil
	})
	return out, err
}

// walk visits every live entry: buckets in directory order, pages in chain
// order, entries in slot order.
func (idx *Index) walk(fn func(key int64, tid heap.TID) error) error {
	for _, headPID := range idx.Directory {
		pid := headPID
		for pid >= 0 {
			g, err := bufferpool.FetchPageRead(idx.BP, uint32(pid))
			if err != nil {
				return err
			}
			bp := &BucketPage{Page: g.Page()}
			entries, err := bp.Entries()
			if err != nil {
				g.Drop()
				return err
			}
			next := chainNext(g.Page())
			g.Drop()

			for _, e := range entries {
				if err := fn(e.key, e.tid); err != nil {
					return err
				}
			}
			pid = next
		}
	}
	return nil
}

// Delete removes every (key, *) entry in key's bucket chain, compacting each
// visited page. Emptied pages stay in the chain. It reports how many
// entries were removed.
func (idx *Index) Delete(key int64) (int, error) {
	if err := idx.ensureOpen(); err != nil {
		return 0, err
	}

	total := 0
	pid := idx.Directory[bucketFor(key, idx.BucketCount)]
	for pid >= 0 {
		g, err := bufferpool.FetchPageWrite(idx.BP, uint32(pid))
		if err != nil {
			return total, err
		}
		bp := &BucketPage{Page: g.Page()}
		n, err := bp.DeleteKey(key)
		if err != nil {
			g.Drop()
			return total, err
		}
		if n == 0 {
			g.UnsetDirty()
		}
		next := chainNext(g.Page())
		g.Drop()

		total += n
		pid = next
	}

	if total > 0 {
		idx.TotalEntries -= uint64(total)
		if err := idx.writeMeta(); err != nil {
			return total, err
		}
	}
	return total, nil
}

// Close flushes all dirty pages. It is idempotent.
func (idx *Index) Close() error {
	if idx == nil || idx.closed.Swap(true) {
		return nil
	}
	if idx.BP == nil {
		return nil
	}
	if err := idx.BP.FlushAll(); err != nil {
		slog.Warn("hashindex: close flush failed", "name", idx.name, "err", err)
		return err
	}
	return nil
}
