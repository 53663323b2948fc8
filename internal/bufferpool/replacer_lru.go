package bufferpool

import (
	"container/list"

	"github.com/njudb/njudb/pkg/cache"
)

// lruReplacer implements Replacer on top of pkg/cache.LRUManager: the most
// recently touched frame sits at the front of the list, and Evict() walks
// back from the tail looking for the first evictable (unpinned) frame.
type lruReplacer struct {
	list      *cache.LRUManager
	elems     map[int]*list.Element
	evictable map[int]bool
}

func newLRUReplacer(capacity int) *lruReplacer {
	return &lruReplacer{
		list:      cache.NewLRUManager(),
		elems:     make(map[int]*list.Element, capacity),
		evictable: make(map[int]bool, capacity),
	}
}

func (r *lruReplacer) RecordAccess(frameID int) {
	if elem, ok := r.elems[frameID]; ok {
		r.list.MoveToFront(elem)
		return
	}
	r.elems[frameID] = r.list.PushFront(frameID)
}

func (r *lruReplacer) SetEvictable(frameID int, evictable bool) {
	if _, ok := r.elems[frameID]; !ok {
		return
	}
	r.evictable[frameID] = evictable
}

func (r *lruReplacer) Evict() (int, bool) {
	for e := r.list.Back(); e != nil; {
		frameID := e.Value.(int)
		if r.evictable[frameID] {
			r.list.Remove(e)
			delete(r.elems, frameID)
			delete(r.evictable, frameID)
			return frameID, true
		}
		e = e.Prev()
	}
	return -1, false
}

func (r *lruReplacer) Remove(frameID int) {
	elem, ok := r.elems[frameID]
	if !ok {
		return
	}
	r.list.Remove(elem)
	delete(r.elems, frameID)
	delete(r.evictable, frameID)
}

func (r *lruReplacer) Size() int {
	n := 0
	for _, ok := range r.evictable {
		if ok {
			n++
		}
	}
	return n
}
