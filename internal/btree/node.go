package btree

import (
	"github.com/njudb/njudb/internal/alias/bx"
	"github.com/njudb/njudb/internal/heap"
	"github.com/njudb/njudb/internal/rid"
	"github.com/njudb/njudb/internal/storage"
)

// Node pages never expose their headers as structs over raw memory; every
// field goes through an accessor that takes the page pointer and the node's
// declared max size, so the layout below is the single source of truth.
//
// Node header, at storage.HeaderSize within the page:
//
//	0 : 1  kind (internal / leaf)
//	1 : 1  reserved
//	2 : 2  size (number of keys on the node)
//	4 : 4  next leaf page id (leaves only; -1 on the rightmost leaf)
//
// Leaf payload, immediately after the node header:
//
//	[TID_0 .. TID_{max-1}] [key_0 || key_1 || .. || key_{max-1}]
//
// keys and TIDs are parallel arrays indexed 0..size-1, keys ascending.
//
// Internal payload:
//
//	[child_0 .. child_max] [key_1 || .. || key_max]
//
// An internal node of size s has s keys and s+1 children. Key slot 0 is
// unused: the leftmost subtree has no separator. Key i is the smallest key
// reachable under child_i.
type nodeKind uint8

const (
	nodeInternal nodeKind = 1
	nodeLeaf     nodeKind = 2
)

const (
	ndOffKind = 0
	ndOffSize = 2
	ndOffNext = 4

	nodeHeaderSize = 8

	nodeBase = storage.HeaderSize

	noSibling int32 = -1
)

func pageNodeKind(p *storage.Page) nodeKind {
	return nodeKind(p.Buf[nodeBase+ndOffKind])
}

func initNodePage(p *storage.Page, kind nodeKind) {
	p.Buf[nodeBase+ndOffKind] = byte(kind)
	p.Buf[nodeBase+1] = 0
	bx.PutU16(p.Buf[nodeBase+ndOffSize:], 0)
	sibling := noSibling
	bx.PutU32(p.Buf[nodeBase+ndOffNext:], uint32(sibling))
}

func nodeSize(p *storage.Page) int {
	return int(bx.U16(p.Buf[nodeBase+ndOffSize:]))
}

func setNodeSize(p *storage.Page, n int) {
	bx.PutU16(p.Buf[nodeBase+ndOffSize:], uint16(n))
}

// LeafNode views a page as a leaf with the given max entry count.
type LeafNode struct {
	Page *storage.Page
	Max  int
}

func (n *LeafNode) Size() int     { return nodeSize(n.Page) }
func (n *LeafNode) setSize(s int) { setNodeSize(n.Page, s) }

// Next returns the page id of the right sibling leaf, or -1.
func (n *LeafNode) Next() int32 {
	return int32(bx.U32(n.Page.Buf[nodeBase+ndOffNext:]))
}

func (n *LeafNode) SetNext(pid int32) {
	bx.PutU32(n.Page.Buf[nodeBase+ndOffNext:], uint32(pid))
}

func (n *LeafNode) tidOff(i int) int {
	return nodeBase + nodeHeaderSize + i*rid.Size
}

func (n *LeafNode) keyOff(i int) int {
	return nodeBase + nodeHeaderSize + n.Max*rid.Size + i*keySize
}

func (n *LeafNode) KeyAt(i int) KeyType {
	return int64(bx.U64(n.Page.Buf[n.keyOff(i):]))
}

func (n *LeafNode) TIDAt(i int) heap.TID {
	return rid.Decode(n.Page.Buf[n.tidOff(i):])
}

func (n *LeafNode) setEntry(i int, key KeyType, tid heap.TID) {
	bx.PutU64(n.Page.Buf[n.keyOff(i):], uint64(key))
	tid.Encode(n.Page.Buf[n.tidOff(i):])
}

// lowerBound returns the first index whose key >= target, or Size() if all
// keys are smaller.
func (n *LeafNode) lowerBound(target KeyType) int {
	lo, hi := 0, n.Size()
	for lo < hi {
		mid := (lo + hi) / 2
		if n.KeyAt(mid) < target {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// insertAt shifts entries [i, size) one slot right and writes (key, tid)
// at i. The caller guarantees size < Max.
func (n *LeafNode) insertAt(i int, key KeyType, tid heap.TID) {
	size := n.Size()
	copy(n.Page.Buf[n.tidOff(i+1):n.tidOff(size+1)], n.Page.Buf[n.tidOff(i):n.tidOff(size)])
	copy(n.Page.Buf[n.keyOff(i+1):n.keyOff(size+1)], n.Page.Buf[n.keyOff(i):n.keyOff(size)])
	n.setEntry(i, key, tid)
	n.setSize(size + 1)
}

// removeAt shifts entries [i+1, size) one slot left over i.
func (n *LeafNode) removeAt(i int) {
	size := n.Size()
	copy(n.Page.Buf[n.tidOff(i):n.tidOff(size-1)], n.Page.Buf[n.tidOff(i+1):n.tidOff(size)])
	copy(n.Page.Buf[n.keyOff(i):n.keyOff(size-1)], n.Page.Buf[n.keyOff(i+1):n.keyOff(size)])
	n.setSize(size - 1)
}

// entries reads the whole leaf into memory, used when rebuilding across a
// split.
func (n *LeafNode) entries() []leafEntry {
	out := make([]leafEntry, n.Size())
	for i := range out {
		out[i] = leafEntry{key: n.KeyAt(i), tid: n.TIDAt(i)}
	}
	return out
}

// writeAll replaces the leaf's content with ents, preserving the sibling
// pointer.
func (n *LeafNode) writeAll(ents []leafEntry) {
	for i, e := range ents {
		n.setEntry(i, e.key, e.tid)
	}
	n.setSize(len(ents))
}

type leafEntry struct {
	key KeyType
	tid heap.TID
}

// InternalNode views a page as an internal node with the given max key
// count. A node of size s uses children[0..s] and keys[1..s].
type InternalNode struct {
	Page *storage.Page
	Max  int
}

func (n *InternalNode) Size() int     { return nodeSize(n.Page) }
func (n *InternalNode) setSize(s int) { setNodeSize(n.Page, s) }

func (n *InternalNode) childOff(i int) int {
	return nodeBase + nodeHeaderSize + i*4
}

func (n *InternalNode) keyOff(i int) int {
	return nodeBase + nodeHeaderSize + (n.Max+1)*4 + i*keySize
}

func (n *InternalNode) ChildAt(i int) uint32 {
	return bx.U32(n.Page.Buf[n.childOff(i):])
}

func (n *InternalNode) setChild(i int, pid uint32) {
	bx.PutU32(n.Page.Buf[n.childOff(i):], pid)
}

// KeyAt returns separator key i, valid for i in [1, size].
func (n *InternalNode) KeyAt(i int) KeyType {
	return int64(bx.U64(n.Page.Buf[n.keyOff(i):]))
}

func (n *InternalNode) setKey(i int, key KeyType) {
	bx.PutU64(n.Page.Buf[n.keyOff(i):], uint64(key))
}

// findChild returns the child index to descend into for key: the rightmost
// child whose separator is <= key, child 0 when key sorts before every
// separator.
func (n *InternalNode) findChild(key KeyType) int {
	lo, hi := 1, n.Size()
	idx := 0
	for lo <= hi {
		mid := (lo + hi) / 2
		if n.KeyAt(mid) <= key {
			idx = mid
			lo = mid + 1
		} else {
			hi = mid - 1
		}
	}
	return idx
}

// insertChildAfter inserts sepKey and its right child immediately after
// child idx, shifting later keys and children one slot right. The caller
// guarantees size < Max.
func (n *InternalNode) insertChildAfter(idx int, sepKey KeyType, child uint32) {
	size := n.Size()
	copy(n.Page.Buf[n.childOff(idx+2):n.childOff(size+2)], n.Page.Buf[n.childOff(idx+1):n.childOff(size+1)])
	copy(n.Page.Buf[n.keyOff(idx+2):n.keyOff(size+2)], n.Page.Buf[n.keyOff(idx+1):n.keyOff(size+1)])
	n.setChild(idx+1, child)
	n.setKey(idx+1, sepKey)
	n.setSize(size + 1)
}

// removeChild removes child idx and its separator key (idx >= 1).
func (n *InternalNode) removeChild(idx int) {
	size := n.Size()
	copy(n.Page.Buf[n.childOff(idx):n.childOff(size)], n.Page.Buf[n.childOff(idx+1):n.childOff(size+1)])
	copy(n.Page.Buf[n.keyOff(idx):n.keyOff(size)], n.Page.Buf[n.keyOff(idx+1):n.keyOff(size+1)])
	n.setSize(size - 1)
}

type internalEntry struct {
	key   KeyType // smallest key under child; unused for index 0
	child uint32
}

func (n *InternalNode) entries() []internalEntry {
	out := make([]internalEntry, n.Size()+1)
	out[0] = internalEntry{child: n.ChildAt(0)}
	for i := 1; i <= n.Size(); i++ {
		out[i] = internalEntry{key: n.KeyAt(i), child: n.ChildAt(i)}
	}
	return out
}

// writeAll replaces the node's content with ents (ents[0].key is ignored).
func (n *InternalNode) writeAll(ents []internalEntry) {
	for i, e := range ents {
		n.setChild(i, e.child)
		if i > 0 {
			n.setKey(i, e.key)
		}
	}
	n.setSize(len(ents) - 1)
}
