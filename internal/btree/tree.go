// Package btree implements an on-disk B+ tree index over int64 keys with
// TID values: page 0 is the index header, every other page is a leaf or
// internal node. Leaves chain left-to-right for range scans, freed node
// pages are recycled through a free-page list threaded by the common page
// header's next-free-page id, and deletes restore the occupancy lower
// bound by redistributing with or coalescing into a sibling.
package btree

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/njudb/njudb/internal/bufferpool"
	"github.com/njudb/njudb/internal/errs"
	"github.com/njudb/njudb/internal/heap"
	"github.com/njudb/njudb/internal/rid"
	"github.com/njudb/njudb/internal/storage"
)

// Tree is a B+ tree index handle. A tree-global RWMutex serializes
// structural changes against searches; guards from the buffer pool hold
// the per-page pins.
type Tree struct {
	SM *storage.StorageManager
	FS storage.FileSet
	BP bufferpool.Manager

	mu     sync.RWMutex
	hdr    indexHeader
	closed atomic.Bool
}

// NewTree formats a brand-new tree in fs with page-size-fitting node
// capacities.
func NewTree(sm *storage.StorageManager, fs storage.FileSet, bp bufferpool.Manager) (*Tree, error) {
	return NewTreeWithOptions(sm, fs, bp, Options{})
}

// NewTreeWithOptions formats a brand-new tree with explicit node
// capacities (tests use tiny maxes to force splits and merges early).
func NewTreeWithOptions(sm *storage.StorageManager, fs storage.FileSet, bp bufferpool.Manager, opts Options) (*Tree, error) {
	opts = opts.withDefaults(fs)
	if opts.LeafMax < 2 || opts.InternalMax < 2 {
		return nil, errs.New(errs.IndexFail, "node capacity too small: leaf %d, internal %d", opts.LeafMax, opts.InternalMax)
	}

	t := &Tree{
		SM: sm,
		FS: fs,
		BP: bp,
		hdr: indexHeader{
			Root:        -1,
			FirstFree:   -1,
			Height:      0,
			PageCount:   1,
			LeafMax:     opts.LeafMax,
			InternalMax: opts.InternalMax,
			Name:        opts.Name,
		},
	}
	if err := t.syncHeader(); err != nil {
		return nil, err
	}
	slog.Debug("btree: created", "name", opts.Name, "leafMax", opts.LeafMax, "internalMax", opts.InternalMax)
	return t, nil
}

// OpenTree reads an existing tree's page-0 header.
func OpenTree(sm *storage.StorageManager, fs storage.FileSet, bp bufferpool.Manager) (*Tree, error) {
	t := &Tree{SM: sm, FS: fs, BP: bp}

	g, err := bufferpool.FetchPageRead(bp, 0)
	if err != nil {
		return nil, err
	}
	defer g.Drop()

	h, err := decodeIndexHeader(g.Page())
	if err != nil {
		return nil, err
	}
	t.hdr = h
	slog.Debug("btree: opened", "name", h.Name, "root", h.Root, "height", h.Height, "entries", h.EntryCount)
	return t, nil
}

// Size reports the number of live (key, TID) pairs.
func (t *Tree) Size() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.hdr.EntryCount
}

// Height reports the number of node levels (0 when empty, 1 when the root
// is a leaf).
func (t *Tree) Height() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return int(t.hdr.Height)
}

func (t *Tree) syncHeader() error {
	g, err := bufferpool.FetchPageWrite(t.BP, 0)
	if err != nil {
		return err
	}
	defer g.Drop()
	return encodeIndexHeader(g.Page(), t.hdr)
}

// allocNode pops the free-page chain or extends the file, returning a
// write guard on a zeroed page formatted as an empty node of kind.
func (t *Tree) allocNode(kind nodeKind) (uint32, *bufferpool.WriteGuard, error) {
	var pid uint32
	if t.hdr.FirstFree >= 0 {
		pid = uint32(t.hdr.FirstFree)
		g, err := bufferpool.FetchPageWrite(t.BP, pid)
		if err != nil {
			return 0, nil, err
		}
		t.hdr.FirstFree = g.Page().NextFreePageID()
		g.Page().Reset(pid)
		initNodePage(g.Page(), kind)
		return pid, g, nil
	}

	pid = t.hdr.PageCount
	t.hdr.PageCount++
	g, err := bufferpool.FetchPageWrite(t.BP, pid)
	if err != nil {
		return 0, nil, err
	}
	g.Page().Reset(pid)
	initNodePage(g.Page(), kind)
	return pid, g, nil
}

// freeNode pushes a no-longer-referenced node page onto the free chain.
// The caller still holds the page's write guard.
func (t *Tree) freeNode(p *storage.Page, pid uint32) {
	p.SetNextFreePageID(t.hdr.FirstFree)
	setNodeSize(p, 0)
	t.hdr.FirstFree = int32(pid)
	slog.Debug("btree: freed node page", "name", t.hdr.Name, "page", pid)
}

func (t *Tree) ensureOpen() error {
	if t == nil || t.closed.Load() {
		return ErrTreeClosed
	}
	return nil
}

// minimum occupancies. A leaf underflows below ceil(max/2). Internal nodes
// use floor(max/2): two minimally-full internal nodes plus the separator
// pulled down from the parent must still fit in one page when they merge.
func (t *Tree) minLeafSize() int     { return (t.hdr.LeafMax + 1) / 2 }
func (t *Tree) minInternalSize() int { return t.hdr.InternalMax / 2 }

// ---- Insert ----

// Insert adds (key, tid), splitting nodes bottom-up as needed. Duplicate
// keys are allowed.
func (t *Tree) Insert(key KeyType, tid heap.TID) error {
	if err := t.ensureOpen(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.hdr.Root < 0 {
		pid, g, err := t.allocNode(nodeLeaf)
		if err != nil {
			return err
		}
		leaf := &LeafNode{Page: g.Page(), Max: t.hdr.LeafMax}
		leaf.insertAt(0, key, tid)
		g.Drop()

		t.hdr.Root = int32(pid)
		t.hdr.Height = 1
		t.hdr.EntryCount++
		return t.syncHeader()
	}

	split, sepKey, newPID, err := t.insertAt(uint32(t.hdr.Root), int(t.hdr.Height), key, tid)
	if err != nil {
		return err
	}

	if split {
		rootPID, g, err := t.allocNode(nodeInternal)
		if err != nil {
			return err
		}
		root := &InternalNode{Page: g.Page(), Max: t.hdr.InternalMax}
		root.setChild(0, uint32(t.hdr.Root))
		root.setChild(1, newPID)
		root.setKey(1, sepKey)
		root.setSize(1)
		g.Drop()

		t.hdr.Root = int32(rootPID)
		t.hdr.Height++
		slog.Debug("btree: root split", "name", t.hdr.Name, "newRoot", rootPID, "height", t.hdr.Height)
	}

	t.hdr.EntryCount++
	return t.syncHeader()
}

// insertAt descends to the leaf for key and inserts, reporting whether the
// node at (pid, level) split and, if so, the separator key and the new
// right sibling's page id for the caller to link in.
func (t *Tree) insertAt(pid uint32, level int, key KeyType, tid heap.TID) (split bool, sepKey KeyType, newPID uint32, err error) {
	g, err := bufferpool.FetchPageWrite(t.BP, pid)
	if err != nil {
		return false, 0, 0, err
	}
	defer g.Drop()

	if level == 1 {
		leaf := &LeafNode{Page: g.Page(), Max: t.hdr.LeafMax}
		pos := leaf.lowerBound(key)

		if leaf.Size() < leaf.Max {
			leaf.insertAt(pos, key, tid)
			return false, 0, 0, nil
		}

		// Full leaf: split, upper half to a fresh right sibling.
		ents := leaf.entries()
		ents = append(ents, leafEntry{})
		copy(ents[pos+1:], ents[pos:])
		ents[pos] = leafEntry{key: key, tid: tid}

		mid := len(ents) / 2
		rightPID, rg, err := t.allocNode(nodeLeaf)
		if err != nil {
			return false, 0, 0, err
		}
		right := &LeafNode{Page: rg.Page(), Max: t.hdr.LeafMax}
		right.writeAll(ents[mid:])
		right.SetNext(leaf.Next())
		rg.Drop()

		leaf.writeAll(ents[:mid])
		leaf.SetNext(int32(rightPID))

		slog.Debug("btree: leaf split", "name", t.hdr.Name, "left", pid, "right", rightPID, "sep", ents[mid].key)
		return true, ents[mid].key, rightPID, nil
	}

	node := &InternalNode{Page: g.Page(), Max: t.hdr.InternalMax}
	idx := node.findChild(key)

	childSplit, childSep, childPID, err := t.insertAt(node.ChildAt(idx), level-1, key, tid)
	if err != nil {
		return false, 0, 0, err
	}
	if !childSplit {
		g.UnsetDirty()
		return false, 0, 0, nil
	}

	if node.Size() < node.Max {
		node.insertChildAfter(idx, childSep, childPID)
		return false, 0, 0, nil
	}

	// Full internal node: split; the middle separator moves up.
	ents := node.entries()
	ents = append(ents, internalEntry{})
	copy(ents[idx+2:], ents[idx+1:])
	ents[idx+1] = internalEntry{key: childSep, child: childPID}

	mid := (len(ents) + 1) / 2
	rightPID, rg, err := t.allocNode(nodeInternal)
	if err != nil {
		return false, 0, 0, err
	}
	right := &InternalNode{Page: rg.Page(), Max: t.hdr.InternalMax}
	right.writeAll(ents[mid:])
	rg.Drop()

	node.writeAll(ents[:mid])

	slog.Debug("btree: internal split", "name", t.hdr.Name, "left", pid, "right", rightPID, "sep", ents[mid].key)
	return true, ents[mid].key, rightPID, nil
}

// ---- Delete ----

// Delete removes one (key, tid) pair, reporting whether anything was
// removed. Passing rid.Invalid as tid removes the first entry matching key
// regardless of its TID. Underfull nodes redistribute with or coalesce
// into a sibling on the way back up; the root collapses once it holds a
// single child (or, as a leaf, nothing).
func (t *Tree) Delete(key KeyType, tid heap.TID) (bool, error) {
	if err := t.ensureOpen(); err != nil {
		return false, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.hdr.Root < 0 {
		return false, nil
	}

	removed, err := t.deleteAt(uint32(t.hdr.Root), int(t.hdr.Height), key, tid)
	if err != nil {
		return false, err
	}
	if !removed {
		return false, nil
	}
	t.hdr.EntryCount--

	if err := t.adjustRoot(); err != nil {
		return false, err
	}
	return true, t.syncHeader()
}

func (t *Tree) deleteAt(pid uint32, level int, key KeyType, tid heap.TID) (bool, error) {
	g, err := bufferpool.FetchPageWrite(t.BP, pid)
	if err != nil {
		return false, err
	}

	if level == 1 {
		leaf := &LeafNode{Page: g.Page(), Max: t.hdr.LeafMax}
		for i := leaf.lowerBound(key); i < leaf.Size() && leaf.KeyAt(i) == key; i++ {
			if tid == rid.Invalid || leaf.TIDAt(i) == tid {
				leaf.removeAt(i)
				g.Drop()
				return true, nil
			}
		}
		// Duplicates of key may continue in right siblings. An entry
		// removed there is not rebalanced (the sibling hangs under a
		// different subtree), only unlinked.
		next := leaf.Next()
		g.UnsetDirty()
		g.Drop()
		return t.deleteFromChain(next, key, tid)
	}

	node := &InternalNode{Page: g.Page(), Max: t.hdr.InternalMax}
	// Duplicates of key can sit under every child whose separator equals
	// key and under the child just left of them; try those right to left.
	idx := node.findChild(key)
	for {
		removed, err := t.deleteAt(node.ChildAt(idx), level-1, key, tid)
		if err != nil {
			g.Drop()
			return false, err
		}
		if removed {
			break
		}
		if idx == 0 || node.KeyAt(idx) != key {
			g.UnsetDirty()
			g.Drop()
			return false, nil
		}
		idx--
	}

	if err := t.rebalanceChild(node, idx, level-1); err != nil {
		g.Drop()
		return false, err
	}
	g.Drop()
	return true, nil
}

// deleteFromChain walks right siblings while they still start with key,
// removing the first matching entry.
func (t *Tree) deleteFromChain(pid int32, key KeyType, tid heap.TID) (bool, error) {
	for pid >= 0 {
		g, err := bufferpool.FetchPageWrite(t.BP, uint32(pid))
		if err != nil {
			return false, err
		}
		leaf := &LeafNode{Page: g.Page(), Max: t.hdr.LeafMax}
		if leaf.Size() == 0 || leaf.KeyAt(0) != key {
			g.UnsetDirty()
			g.Drop()
			return false, nil
		}
		for i := 0; i < leaf.Size() && leaf.KeyAt(i) == key; i++ {
			if tid == rid.Invalid || leaf.TIDAt(i) == tid {
				leaf.removeAt(i)
				g.Drop()
				return true, nil
			}
		}
		next := leaf.Next()
		g.UnsetDirty()
		g.Drop()
		pid = next
	}
	return false, nil
}

// rebalanceChild restores child idx's occupancy bound after a delete:
// redistribute from a sibling when the pair's entries cannot fit one node,
// coalesce into the left of the pair when they can.
func (t *Tree) rebalanceChild(parent *InternalNode, idx, childLevel int) error {
	if parent.Size() == 0 {
		// Single child, nothing to pair with; adjustRoot handles the root.
		return nil
	}

	childPID := parent.ChildAt(idx)
	cg, err := bufferpool.FetchPageRead(t.BP, childPID)
	if err != nil {
		return err
	}
	size := nodeSize(cg.Page())
	cg.Drop()

	min := t.minLeafSize()
	if childLevel > 1 {
		min = t.minInternalSize()
	}
	if size >= min {
		return nil
	}

	li, ri := idx-1, idx
	if idx == 0 {
		li, ri = 0, 1
	}
	leftPID, rightPID := parent.ChildAt(li), parent.ChildAt(ri)

	lg, err := bufferpool.FetchPageWrite(t.BP, leftPID)
	if err != nil {
		return err
	}
	defer lg.Drop()
	rg, err := bufferpool.FetchPageWrite(t.BP, rightPID)
	if err != nil {
		return err
	}
	defer rg.Drop()

	if childLevel == 1 {
		left := &LeafNode{Page: lg.Page(), Max: t.hdr.LeafMax}
		right := &LeafNode{Page: rg.Page(), Max: t.hdr.LeafMax}
		all := append(left.entries(), right.entries()...)

		if len(all) <= left.Max {
			left.writeAll(all)
			left.SetNext(right.Next())
			t.freeNode(rg.Page(), rightPID)
			parent.removeChild(ri)
			slog.Debug("btree: coalesced leaves", "name", t.hdr.Name, "into", leftPID, "freed", rightPID)
			return nil
		}

		half := len(all) / 2
		left.writeAll(all[:half])
		right.writeAll(all[half:])
		parent.setKey(ri, all[half].key)
		return nil
	}

	left := &InternalNode{Page: lg.Page(), Max: t.hdr.InternalMax}
	right := &InternalNode{Page: rg.Page(), Max: t.hdr.InternalMax}
	rents := right.entries()
	rents[0].key = parent.KeyAt(ri)
	all := append(left.entries(), rents...)

	if len(all)-1 <= left.Max {
		left.writeAll(all)
		t.freeNode(rg.Page(), rightPID)
		parent.removeChild(ri)
		slog.Debug("btree: coalesced internal nodes", "name", t.hdr.Name, "into", leftPID, "freed", rightPID)
		return nil
	}

	half := len(all) / 2
	sep := all[half].key
	left.writeAll(all[:half])
	right.writeAll(all[half:])
	parent.setKey(ri, sep)
	return nil
}

// adjustRoot collapses the root after deletes: an internal root with a
// single child promotes that child, an empty leaf root clears the tree.
func (t *Tree) adjustRoot() error {
	for t.hdr.Root >= 0 {
		g, err := bufferpool.FetchPageWrite(t.BP, uint32(t.hdr.Root))
		if err != nil {
			return err
		}

		if t.hdr.Height > 1 {
			node := &InternalNode{Page: g.Page(), Max: t.hdr.InternalMax}
			if node.Size() > 0 {
				g.UnsetDirty()
				g.Drop()
				return nil
			}
			child := node.ChildAt(0)
			t.freeNode(g.Page(), uint32(t.hdr.Root))
			g.Drop()
			t.hdr.Root = int32(child)
			t.hdr.Height--
			slog.Debug("btree: root collapsed", "name", t.hdr.Name, "newRoot", child, "height", t.hdr.Height)
			continue
		}

		leaf := &LeafNode{Page: g.Page(), Max: t.hdr.LeafMax}
		if leaf.Size() > 0 {
			g.UnsetDirty()
			g.Drop()
			return nil
		}
		t.freeNode(g.Page(), uint32(t.hdr.Root))
		g.Drop()
		t.hdr.Root = -1
		t.hdr.Height = 0
		return nil
	}
	return nil
}

// ---- Search ----

// findLeaf descends read-only to the leftmost leaf that can hold key: at
// each level it takes the rightmost child whose separator is < key, so a
// run of duplicates that spans several leaves is entered at its start.
func (t *Tree) findLeaf(key KeyType) (int32, error) {
	pid := t.hdr.Root
	for level := int(t.hdr.Height); level > 1; level-- {
		g, err := bufferpool.FetchPageRead(t.BP, uint32(pid))
		if err != nil {
			return -1, err
		}
		node := &InternalNode{Page: g.Page(), Max: t.hdr.InternalMax}
		idx := node.findChild(key)
		for idx > 0 && node.KeyAt(idx) == key {
			idx--
		}
		pid = int32(node.ChildAt(idx))
		g.Drop()
	}
	return pid, nil
}

// leftmostLeaf descends read-only along child 0.
func (t *Tree) leftmostLeaf() (int32, error) {
	pid := t.hdr.Root
	for level := int(t.hdr.Height); level > 1; level-- {
		g, err := bufferpool.FetchPageRead(t.BP, uint32(pid))
		if err != nil {
			return -1, err
		}
		node := &InternalNode{Page: g.Page(), Max: t.hdr.InternalMax}
		pid = int32(node.ChildAt(0))
		g.Drop()
	}
	return pid, nil
}

// SearchEqual returns every TID stored under key, following the leaf chain
// when duplicates span a node boundary.
func (t *Tree) SearchEqual(key KeyType) ([]heap.TID, error) {
	if err := t.ensureOpen(); err != nil {
		return nil, err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []heap.TID
	if t.hdr.Root < 0 {
		return out, nil
	}
	pid, err := t.findLeaf(key)
	if err != nil {
		return nil, err
	}

	pos := -1
	for pid >= 0 {
		g, err := bufferpool.FetchPageRead(t.BP, uint32(pid))
		if err != nil {
			return nil, err
		}
		leaf := &LeafNode{Page: g.Page(), Max: t.hdr.LeafMax}
		if pos < 0 {
			pos = leaf.lowerBound(key)
		}
		for ; pos < leaf.Size(); pos++ {
			if leaf.KeyAt(pos) != key {
				g.Drop()
				return out, nil
			}
			out = append(out, leaf.TIDAt(pos))
		}
		next := leaf.Next()
		g.Drop()
		pid, pos = next, 0
	}
	return out, nil
}

// RangeScan returns every TID with minKey <= key <= maxKey in ascending
// key order, walking the leaf chain from the leaf containing minKey.
func (t *Tree) RangeScan(minKey, maxKey KeyType) ([]heap.TID, error) {
	if err := t.ensureOpen(); err != nil {
		return nil, err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []heap.TID
	if t.hdr.Root < 0 || minKey > maxKey {
		return out, nil
	}
	pid, err := t.findLeaf(minKey)
	if err != nil {
		return nil, err
	}

	pos := -1
	for pid >= 0 {
		g, err := bufferpool.FetchPageRead(t.BP, uint32(pid))
		if err != nil {
			return nil, err
		}
		leaf := &LeafNode{Page: g.Page(), Max: t.hdr.LeafMax}
		if pos < 0 {
			pos = leaf.lowerBound(minKey)
		}
		for ; pos < leaf.Size(); pos++ {
			if leaf.KeyAt(pos) > maxKey {
				g.Drop()
				return out, nil
			}
			out = append(out, leaf.TIDAt(pos))
		}
		next := leaf.Next()
		g.Drop()
		pid, pos = next, 0
	}
	return out, nil
}

// Close flushes every dirty page of the index. Idempotent.
func (t *Tree) Close() error {
	if t == nil || t.closed.Swap(true) {
		return nil
	}
	if t.BP == nil {
		return nil
	}
	return t.BP.FlushAll()
}
