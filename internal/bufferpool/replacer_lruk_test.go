package bufferpool

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// Scenario: k=3, frames 0..7 accessed three times each in round-robin, so
// frame 0's accesses are uniformly the oldest. The victim with the largest
// backward k-distance is frame 0, then 1, and so on.
func TestLRUKReplacer_VictimHasLargestBackwardKDistance(t *testing.T) {
	r := newLRUKReplacer(3)

	for round := 0; round < 3; round++ {
		for frame := 0; frame < 8; frame++ {
			r.RecordAccess(frame)
		}
	}
	for frame := 0; frame < 8; frame++ {
		r.SetEvictable(frame, true)
	}
	require.Equal(t, 8, r.Size())

	for want := 0; want < 8; want++ {
		got, ok := r.Evict()
		require.True(t, ok)
		require.Equal(t, want, got)
	}
}

// A frame with fewer than k recorded accesses has infinite backward
// k-distance and loses to any frame with a full history, regardless of
// recency.
func TestLRUKReplacer_ColdFramePreferredOverHotOne(t *testing.T) {
	r := newLRUKReplacer(3)

	// Frame 0: three accesses (full history). Frame 1: one recent access.
	r.RecordAccess(0)
	r.RecordAccess(0)
	r.RecordAccess(0)
	r.RecordAccess(1)

	r.SetEvictable(0, true)
	r.SetEvictable(1, true)

	got, ok := r.Evict()
	require.True(t, ok)
	require.Equal(t, 1, got)

	got, ok = r.Evict()
	require.True(t, ok)
	require.Equal(t, 0, got)
}

// Among frames below k accesses, the one whose earliest access is oldest
// loses first.
func TestLRUKReplacer_InfiniteDistanceTieBreak(t *testing.T) {
	r := newLRUKReplacer(3)

	r.RecordAccess(0)
	r.RecordAccess(1)
	r.RecordAccess(1)
	r.SetEvictable(0, true)
	r.SetEvictable(1, true)

	got, ok := r.Evict()
	require.True(t, ok)
	require.Equal(t, 0, got)
}

func TestLRUKReplacer_PinnedNotEvicted(t *testing.T) {
	r := newLRUKReplacer(2)

	r.RecordAccess(0)
	r.RecordAccess(1)
	r.SetEvictable(0, false)
	r.SetEvictable(1, true)
	require.Equal(t, 1, r.Size())

	got, ok := r.Evict()
	require.True(t, ok)
	require.Equal(t, 1, got)

	_, ok = r.Evict()
	require.False(t, ok)
}

func TestLRUKReplacer_RemoveDropsHistory(t *testing.T) {
	r := newLRUKReplacer(2)

	r.RecordAccess(0)
	r.SetEvictable(0, true)
	r.Remove(0)
	require.Equal(t, 0, r.Size())

	_, ok := r.Evict()
	require.False(t, ok)
}
