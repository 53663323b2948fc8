package btree

import (
	"github.com/njudb/njudb/internal/bufferpool"
	"github.com/njudb/njudb/internal/heap"
)

// Iterator walks leaf entries in ascending key order via the leaf chain.
// It snapshots one leaf at a time and holds no pins between Next calls, so
// it is cheap to abandon but is invalidated by concurrent modification;
// use it for single-threaded scans.
type Iterator struct {
	t       *Tree
	entries []leafEntry
	pos     int
	next    int32
}

// Begin positions an iterator at the tree's smallest key.
func (t *Tree) Begin() (*Iterator, error) {
	if err := t.ensureOpen(); err != nil {
		return nil, err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()

	it := &Iterator{t: t, next: noSibling}
	if t.hdr.Root < 0 {
		return it, nil
	}
	pid, err := t.leftmostLeaf()
	if err != nil {
		return nil, err
	}
	if err := it.loadLeaf(pid); err != nil {
		return nil, err
	}
	return it, nil
}

// BeginAt positions an iterator at the first entry with key >= key.
func (t *Tree) BeginAt(key KeyType) (*Iterator, error) {
	if err := t.ensureOpen(); err != nil {
		return nil, err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()

	it := &Iterator{t: t, next: noSibling}
	if t.hdr.Root < 0 {
		return it, nil
	}
	pid, err := t.findLeaf(key)
	if err != nil {
		return nil, err
	}
	if err := it.loadLeaf(pid); err != nil {
		return nil, err
	}
	for it.pos < len(it.entries) && it.entries[it.pos].key < key {
		it.pos++
	}
	return it, nil
}

// loadLeaf snapshots the leaf at pid (pid < 0 means end of chain).
func (it *Iterator) loadLeaf(pid int32) error {
	it.entries = nil
	it.pos = 0
	it.next = noSibling
	if pid < 0 {
		return nil
	}

	g, err := bufferpool.FetchPageRead(it.t.BP, uint32(pid))
	if err != nil {
		return err
	}
	defer g.Drop()

	leaf := &LeafNode{Page: g.Page(), Max: it.t.hdr.LeafMax}
	it.entries = leaf.entries()
	it.next = leaf.Next()
	return nil
}

// Next returns the current entry and advances, or ok=false past the last
// entry.
func (it *Iterator) Next() (KeyType, heap.TID, bool, error) {
	for it.pos >= len(it.entries) {
		if it.next < 0 {
			return 0, heap.TID{}, false, nil
		}
		if err := it.loadLeaf(it.next); err != nil {
			return 0, heap.TID{}, false, err
		}
	}
	e := it.entries[it.pos]
	it.pos++
	return e.key, e.tid, true, nil
}
