package bufferpool

import "github.com/njudb/njudb/internal/storage"

// noCopy marks a struct as move-only: embedding it makes `go vet`'s
// copylocks check flag any accidental copy of the guard, which would
// otherwise let two holders both call Drop and double-unpin one frame.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// guard is the RAII base shared by ReadGuard and WriteGuard: a pin on one
// frame, released exactly once via Drop.
type guard struct {
	_     noCopy
	mgr   Manager
	page  *storage.Page
	pid   uint32
	dirty bool
	valid bool
}

func (g *guard) drop() {
	if !g.valid {
		return
	}
	g.valid = false
	_ = g.mgr.Unpin(g.page, g.dirty)
	g.page = nil
}

// ReadGuard pins a page for read-only access. The buffer pool cannot evict
// the frame while any guard on it is alive.
type ReadGuard struct{ guard }

// FetchPageRead pins pageID for reading through mgr.
func FetchPageRead(mgr Manager, pageID uint32) (*ReadGuard, error) {
	p, err := mgr.GetPage(pageID)
	if err != nil {
		return nil, err
	}
	return &ReadGuard{guard{mgr: mgr, page: p, pid: pageID, valid: true}}, nil
}

// Page returns the underlying page. Valid only until Drop.
func (g *ReadGuard) Page() *storage.Page { return g.page }

// PageID returns the pinned page's id.
func (g *ReadGuard) PageID() uint32 { return g.pid }

// Drop releases the pin. Idempotent: a second call is a no-op.
func (g *ReadGuard) Drop() { g.drop() }

// WriteGuard pins a page for mutation. Drop marks the frame dirty unless
// UnsetDirty was called first, so a write attempt that ends up changing
// nothing (e.g. a full page rejecting an insert) need not dirty the frame.
type WriteGuard struct{ guard }

// FetchPageWrite pins pageID for writing through mgr.
func FetchPageWrite(mgr Manager, pageID uint32) (*WriteGuard, error) {
	p, err := mgr.GetPage(pageID)
	if err != nil {
		return nil, err
	}
	return &WriteGuard{guard{mgr: mgr, page: p, pid: pageID, dirty: true, valid: true}}, nil
}

// Page returns the underlying page. Valid only until Drop.
func (g *WriteGuard) Page() *storage.Page { return g.page }

// PageID returns the pinned page's id.
func (g *WriteGuard) PageID() uint32 { return g.pid }

// UnsetDirty clears the dirty flag Drop would otherwise apply.
func (g *WriteGuard) UnsetDirty() { g.dirty = false }

// Drop releases the pin, flushing the dirty flag to the pool. Idempotent.
func (g *WriteGuard) Drop() { g.drop() }
