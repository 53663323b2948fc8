// Package diskmgr implements the disk manager: named-file lifecycle and
// page-aligned / byte-range I/O, grounded in
// _examples/original_source/src/storage/disk/disk_manager.h (the file id ↔
// path bidirectional map, Create/Destroy/Open/Close/ReadPage/WritePage/
// ReadFile/WriteFile contract) and in the teacher's
// internal/storage/sm.go read/write-with-zero-fill idiom, stripped of its
// multi-segment-per-file scheme (spec §4.1 describes one page-addressable
// file per table/index, not a segmented one).
package diskmgr

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/njudb/njudb/internal/errs"
)

const logPrefix = "diskmgr: "

// pageSize is kept in lockstep with storage.PageSize without importing the
// storage package; diskmgr sits below it in the dependency order.
const pageSize = 8192

// FileID is a process-unique handle assigned when a file is opened.
type FileID int32

type openFile struct {
	path string
	f    *os.File
}

// Manager owns the path ↔ file id mapping and performs raw I/O. It is not
// thread-safe for concurrent I/O on the same file descriptor; callers (the
// buffer pool) serialize access (spec §4.1, §5).
type Manager struct {
	mu       sync.Mutex
	nameToID map[string]FileID
	files    map[FileID]*openFile
	next     FileID
}

// New returns an empty disk manager.
func New() *Manager {
	return &Manager{
		nameToID: make(map[string]FileID),
		files:    make(map[FileID]*openFile),
		next:     1,
	}
}

// FileExists reports whether path names an existing file.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Create makes an empty file at path. Fails with FileExists if present.
func Create(path string) error {
	if FileExists(path) {
		return errs.New(errs.FileExists, "create %s", path)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o644)
	if err != nil {
		return errs.Wrap(errs.FileExists, err, "create %s", path)
	}
	return f.Close()
}

// Destroy removes path. Fails with FileNotExists or FileDeleteError.
func Destroy(path string) error {
	if !FileExists(path) {
		return errs.New(errs.FileNotExists, "destroy %s", path)
	}
	if err := os.Remove(path); err != nil {
		return errs.Wrap(errs.FileDeleteError, err, "destroy %s", path)
	}
	return nil
}

// Open opens path and returns a process-unique file id. Fails with
// FileNotExists if absent, FileReopen if already open here.
func (m *Manager) Open(path string) (FileID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.nameToID[path]; ok {
		return 0, errs.New(errs.FileReopen, "open %s", path)
	}
	if !FileExists(path) {
		return 0, errs.New(errs.FileNotExists, "open %s", path)
	}
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return 0, errs.Wrap(errs.FileNotExists, err, "open %s", path)
	}

	fid := m.next
	m.next++
	m.nameToID[path] = fid
	m.files[fid] = &openFile{path: path, f: f}
	slog.Debug(logPrefix+"opened file", "path", path, "fid", fid)
	return fid, nil
}

// Close releases fid. Fails with FileNotOpen if unknown.
func (m *Manager) Close(fid FileID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	of, ok := m.files[fid]
	if !ok {
		return errs.New(errs.FileNotOpen, "close fid=%d", fid)
	}
	delete(m.files, fid)
	delete(m.nameToID, of.path)
	slog.Debug(logPrefix+"closed file", "path", of.path, "fid", fid)
	return of.f.Close()
}

// FileName returns the path fid was opened under.
func (m *Manager) FileName(fid FileID) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	of, ok := m.files[fid]
	if !ok {
		return "", false
	}
	return of.path, true
}

// FileIDOf returns the file id path is currently open under, if any.
func (m *Manager) FileIDOf(path string) (FileID, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.nameToID[path]
	return id, ok
}

func (m *Manager) handle(fid FileID) (*os.File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	of, ok := m.files[fid]
	if !ok {
		return nil, errs.New(errs.FileNotOpen, "fid=%d", fid)
	}
	return of.f, nil
}

// ReadPage reads exactly pageSize bytes at offset pid*pageSize into buf.
// A short read past current EOF (e.g. a page never written yet) is
// zero-filled rather than treated as an error, matching the teacher's
// sm.go LoadPage idiom — callers rely on this to "fetch" a page beyond the
// file's current length when extending a heap/index file (spec §4.6).
func (m *Manager) ReadPage(fid FileID, pid int32, buf []byte) error {
	if len(buf) != pageSize {
		return errs.New(errs.FileReadError, "buffer must be pageSize, got %d", len(buf))
	}
	f, err := m.handle(fid)
	if err != nil {
		return err
	}
	n, err := f.ReadAt(buf, int64(pid)*pageSize)
	if err != nil && !errors.Is(err, io.EOF) {
		return errs.Wrap(errs.FileReadError, err, "read pid=%d fid=%d", pid, fid)
	}
	for i := n; i < pageSize; i++ {
		buf[i] = 0
	}
	return nil
}

// WritePage writes exactly pageSize bytes from buf at offset pid*pageSize.
func (m *Manager) WritePage(fid FileID, pid int32, buf []byte) error {
	if len(buf) != pageSize {
		return errs.New(errs.FileWriteError, "buffer must be pageSize, got %d", len(buf))
	}
	f, err := m.handle(fid)
	if err != nil {
		return err
	}
	if _, err := f.WriteAt(buf, int64(pid)*pageSize); err != nil {
		return errs.Wrap(errs.FileWriteError, err, "write pid=%d fid=%d", pid, fid)
	}
	return nil
}

// ReadFile is the byte-range read primitive used for file headers and
// schema serialization (spec §4.1).
func (m *Manager) ReadFile(fid FileID, buf []byte, offset int64) (int, error) {
	f, err := m.handle(fid)
	if err != nil {
		return 0, err
	}
	n, err := f.ReadAt(buf, offset)
	if err != nil && !errors.Is(err, io.EOF) {
		return n, errs.Wrap(errs.FileReadError, err, "readfile fid=%d offset=%d", fid, offset)
	}
	return n, nil
}

// WriteFile is the byte-range write primitive used for file headers and
// schema serialization (spec §4.1).
func (m *Manager) WriteFile(fid FileID, buf []byte, offset int64) (int, error) {
	f, err := m.handle(fid)
	if err != nil {
		return 0, err
	}
	n, err := f.WriteAt(buf, offset)
	if err != nil {
		return n, errs.Wrap(errs.FileWriteError, err, "writefile fid=%d offset=%d", fid, offset)
	}
	return n, nil
}

// Sync forces fid's written data to stable storage.
func (m *Manager) Sync(fid FileID) error {
	f, err := m.handle(fid)
	if err != nil {
		return err
	}
	if err := f.Sync(); err != nil {
		return errs.Wrap(errs.FileWriteError, err, "sync fid=%d", fid)
	}
	return nil
}

// Size returns the current length of fid's file in bytes.
func (m *Manager) Size(fid FileID) (int64, error) {
	f, err := m.handle(fid)
	if err != nil {
		return 0, err
	}
	fi, err := f.Stat()
	if err != nil {
		return 0, errs.Wrap(errs.FileReadError, err, "stat fid=%d", fid)
	}
	return fi.Size(), nil
}

// PageCount returns the number of whole pages currently stored in fid's
// file, by stat'ing its current length.
func (m *Manager) PageCount(fid FileID) (int32, error) {
	f, err := m.handle(fid)
	if err != nil {
		return 0, err
	}
	fi, err := f.Stat()
	if err != nil {
		return 0, errs.Wrap(errs.FileReadError, err, "stat fid=%d", fid)
	}
	return int32(fi.Size() / pageSize), nil
}
