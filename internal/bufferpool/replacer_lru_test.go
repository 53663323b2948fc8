package bufferpool

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLRUReplacer_VictimsInUnpinOrder(t *testing.T) {
	r := newLRUReplacer(8)

	for i := 0; i < 8; i++ {
		r.RecordAccess(i)
		r.SetEvictable(i, false)
	}
	for i := 0; i < 8; i++ {
		r.SetEvictable(i, true)
	}
	require.Equal(t, 8, r.Size())

	for want := 0; want < 8; want++ {
		got, ok := r.Evict()
		require.True(t, ok)
		require.Equal(t, want, got)
	}
	_, ok := r.Evict()
	require.False(t, ok)
}

func TestLRUReplacer_ReaccessMovesToBack(t *testing.T) {
	r := newLRUReplacer(4)

	for i := 0; i < 3; i++ {
		r.RecordAccess(i)
		r.SetEvictable(i, true)
	}

	// Touching frame 0 makes it the most recently used.
	r.RecordAccess(0)

	got, ok := r.Evict()
	require.True(t, ok)
	require.Equal(t, 1, got)
	got, ok = r.Evict()
	require.True(t, ok)
	require.Equal(t, 2, got)
	got, ok = r.Evict()
	require.True(t, ok)
	require.Equal(t, 0, got)
}

func TestLRUReplacer_PinnedFramesAreSkipped(t *testing.T) {
	r := newLRUReplacer(4)

	for i := 0; i < 3; i++ {
		r.RecordAccess(i)
		r.SetEvictable(i, true)
	}
	r.SetEvictable(0, false)

	got, ok := r.Evict()
	require.True(t, ok)
	require.Equal(t, 1, got)

	r.Remove(2)
	_, ok = r.Evict()
	require.False(t, ok)
}
