package bufferpool

import "github.com/njudb/njudb/internal/storage"

// NewPool builds a single-relation Manager backed by its own GlobalPool
// instance, sized to capacity (DefaultCapacity if capacity <= 0). This is
// the convenience entry point for callers (heap.Table, btree.Tree) that
// want one buffer pool per FileSet rather than sharing a process-wide
// GlobalPool.
func NewPool(sm *storage.StorageManager, fs storage.FileSet, capacity int) Manager {
	gp := NewGlobalPool(sm, capacity)
	return gp.View(fs)
}
