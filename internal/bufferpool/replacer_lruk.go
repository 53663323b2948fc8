package bufferpool

import "math"

// lrukReplacer implements the classic LRU-K replacement policy: the
// eviction victim is the evictable frame with the largest backward
// k-distance (time since its k-th most recent access). Frames with fewer
// than k recorded accesses have infinite backward k-distance; among those,
// the frame with the oldest single access loses first (standard LRU-K
// tie-break, also known as "correlated reference period" history).
type lrukReplacer struct {
	k         int
	now       uint64
	history   map[int][]uint64 // most recent access first, capped at k
	evictable map[int]bool
}

func newLRUKReplacer(k int) *lrukReplacer {
	if k < 1 {
		k = 2
	}
	return &lrukReplacer{
		k:         k,
		history:   make(map[int][]uint64),
		evictable: make(map[int]bool),
	}
}

func (r *lrukReplacer) RecordAccess(frameID int) {
	r.now++
	h := r.history[frameID]
	h = append([]uint64{r.now}, h...)
	if len(h) > r.k {
		h = h[:r.k]
	}
	r.history[frameID] = h
}

func (r *lrukReplacer) SetEvictable(frameID int, evictable bool) {
	if _, ok := r.history[frameID]; !ok {
		return
	}
	r.evictable[frameID] = evictable
}

// backwardKDistance returns the distance used for ranking. Frames with
// fewer than k accesses are given +Inf, tie-broken by the timestamp of
// their oldest recorded access (earlier loses first).
func (r *lrukReplacer) backwardKDistance(frameID int) (distance float64, oldest uint64) {
	h := r.history[frameID]
	if len(h) < r.k {
		if len(h) == 0 {
			return math.Inf(1), 0
		}
		return math.Inf(1), h[len(h)-1]
	}
	kth := h[r.k-1]
	return float64(r.now - kth), 0
}

func (r *lrukReplacer) Evict() (int, bool) {
	victim := -1
	var victimDist float64 = -1
	var victimOldest uint64 = math.MaxUint64

	for frameID, evictable := range r.evictable {
		if !evictable {
			continue
		}
		dist, oldest := r.backwardKDistance(frameID)
		if victim == -1 {
			victim, victimDist, victimOldest = frameID, dist, oldest
			continue
		}
		switch {
		case math.IsInf(dist, 1) && math.IsInf(victimDist, 1):
			if oldest < victimOldest {
				victim, victimDist, victimOldest = frameID, dist, oldest
			}
		case dist > victimDist:
			victim, victimDist, victimOldest = frameID, dist, oldest
		}
	}

	if victim == -1 {
		return -1, false
	}
	r.Remove(victim)
	return victim, true
}

func (r *lrukReplacer) Remove(frameID int) {
	delete(r.history, frameID)
	delete(r.evictable, frameID)
}

func (r *lrukReplacer) Size() int {
	n := 0
	for _, ok := range r.evictable {
		if ok {
			n++
		}
	}
	return n
}
