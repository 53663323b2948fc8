package engine

import (
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/njudb/njudb/internal/bufferpool"
	"github.com/njudb/njudb/internal/catalog"
	"github.com/njudb/njudb/internal/errs"
	"github.com/njudb/njudb/internal/heap"
	"github.com/njudb/njudb/internal/record"
	"github.com/njudb/njudb/internal/storage"
)

var (
	ErrDatabaseClosed = errors.New("novasql: database is closed")
	ErrInvalidPageID  = errors.New("novasql: invalid page ID")
)

type DatabaseOperation interface {
	CreateTable(name string, schema record.Schema) (*heap.Table, error)
	OpenTable(name string) (*heap.Table, error)
	Close() error
}

type TableMeta struct {
	Name      string        `json:"name"`
	Schema    record.Schema `json:"schema"`
	PageCount uint32        `json:"page_count"`
	Indexes   []IndexMeta   `json:"indexes,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

var _ DatabaseOperation = (*Database)(nil)

// Database is a handle onto a directory tree of named databases, each
// holding a set of heap tables and their indexes. A single GlobalPool is
// shared by every table and index opened through this handle, so frames
// compete for the same fixed-size pool the way a real server's buffer
// pool does across all open relations, rather than each relation getting
// its own private pool.
type Database struct {
	DataDir string
	SM      *storage.StorageManager
	pool    *bufferpool.GlobalPool

	mu      sync.RWMutex
	current string
}

// NewDatabase creates a new database handle without touching the filesystem.
func NewDatabase(dataDir string) *Database {
	sm := storage.NewStorageManager()
	return &Database{
		DataDir: dataDir,
		SM:      sm,
		pool:    bufferpool.NewGlobalPool(sm, bufferpool.DefaultCapacity),
	}
}

// NewDatabaseWithPool lets callers (e.g. the server's config-driven replacer
// selection) supply a pre-sized GlobalPool instead of the default one.
func NewDatabaseWithPool(dataDir string, pool *bufferpool.GlobalPool, sm *storage.StorageManager) *Database {
	return &Database{DataDir: dataDir, SM: sm, pool: pool}
}

func validateIdent(name string) error {
	if name == "" {
		return errors.New("identifier must not be empty")
	}
	if len(name) > 128 {
		return errors.New("identifier too long")
	}
	if strings.ContainsAny(name, "/\\.\x00") {
		return errors.New("identifier contains illegal characters")
	}
	return nil
}

func (db *Database) databasesRoot() string {
	return filepath.Join(db.DataDir, "databases")
}

func (db *Database) databaseDir(name string) string {
	return filepath.Join(db.databasesRoot(), name)
}

// requireCurrent returns the selected database's name or DBNotOpen.
func (db *Database) requireCurrent() (string, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.current == "" {
		return "", errs.New(errs.DBNotOpen, "no database selected; run USE <db> first")
	}
	return db.current, nil
}

// CreateDatabase creates a new, empty database directory.
func (db *Database) CreateDatabase(name string) error {
	if err := validateIdent(name); err != nil {
		return errs.Wrap(errs.DBMiss, err, "invalid database name")
	}
	dir := db.databaseDir(name)
	if _, err := os.Stat(dir); err == nil {
		return errs.New(errs.DBExists, "database %q already exists", name)
	} else if !os.IsNotExist(err) {
		return err
	}
	return os.MkdirAll(dir, 0o755)
}

// DropDatabase removes a database directory and everything under it.
func (db *Database) DropDatabase(name string) (any, error) {
	if err := validateIdent(name); err != nil {
		return nil, errs.Wrap(errs.DBMiss, err, "invalid database name")
	}
	dir := db.databaseDir(name)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, errs.New(errs.DBMiss, "database %q does not exist", name)
	}
	if err := os.RemoveAll(dir); err != nil {
		return nil, err
	}

	db.mu.Lock()
	if db.current == name {
		db.current = ""
	}
	db.mu.Unlock()
	return nil, nil
}

// SelectDatabase makes name the current database for subsequent table
// operations (the SQL-level USE <db> statement).
func (db *Database) SelectDatabase(name string) (any, error) {
	if err := validateIdent(name); err != nil {
		return nil, errs.Wrap(errs.DBMiss, err, "invalid database name")
	}
	dir := db.databaseDir(name)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, errs.New(errs.DBMiss, "database %q does not exist", name)
	}

	db.mu.Lock()
	db.current = name
	db.mu.Unlock()
	return nil, nil
}

func (db *Database) tableDir() string {
	db.mu.RLock()
	current := db.current
	db.mu.RUnlock()
	return filepath.Join(db.databaseDir(current), "tables")
}

// TableDir exposes the current database's table directory (used by the
// executor to build index FileSets alongside a table's segments).
func (db *Database) TableDir() string {
	return db.tableDir()
}

// BufferView returns a relation-scoped Manager backed by the database's
// single shared GlobalPool.
func (db *Database) BufferView(fs storage.FileSet) bufferpool.Manager {
	return db.pool.View(fs)
}

func (db *Database) tableMetaPath(name string) string {
	return filepath.Join(db.tableDir(), name+".meta.json")
}

// helper: return FileSet for a given table name.
func (db *Database) tableFileSet(name string) storage.FileSet {
	return storage.LocalFileSet{
		Dir:  db.tableDir(),
		Base: name,
	}
}

func (db *Database) overflowFileSet(name string) storage.LocalFileSet {
	return storage.LocalFileSet{
		Dir:  db.tableDir(),
		Base: name + "_ovf",
	}
}

// writeTableMeta overwrites the meta file for a given table.
func (db *Database) writeTableMeta(meta *TableMeta) error {
	path := db.tableMetaPath(meta.Name)

	if err := os.MkdirAll(db.tableDir(), 0o755); err != nil {
		return err
	}

	meta.UpdatedAt = time.Now()

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// readTableMeta loads table metadata from JSON file.
func (db *Database) readTableMeta(name string) (*TableMeta, error) {
	path := db.tableMetaPath(name)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errs.New(errs.TableMiss, "table %q does not exist", name)
		}
		return nil, err
	}

	var meta TableMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

func (db *Database) CreateTable(name string, schema record.Schema) (*heap.Table, error) {
	if _, err := db.requireCurrent(); err != nil {
		return nil, err
	}
	if err := validateIdent(name); err != nil {
		return nil, errs.Wrap(errs.TableExist, err, "invalid table name")
	}
	if _, err := os.Stat(db.tableMetaPath(name)); err == nil {
		return nil, errs.New(errs.TableExist, "table %q already exists", name)
	}

	fs := db.tableFileSet(name)
	bp := db.pool.View(fs)

	meta := &TableMeta{
		Name:      name,
		Schema:    schema,
		PageCount: 0,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := db.writeTableMeta(meta); err != nil {
		return nil, err
	}

	ovf := storage.NewOverflowManager(db.SM, db.overflowFileSet(name))
	tbl := heap.NewTable(name, schema, db.SM, fs, bp, ovf, 0)
	tbl.SetPageCountHook(func(pageCount uint32) error {
		return db.SyncTableMetaPageCount(tbl)
	})
	return tbl, nil
}

// CreateTableFromManifest creates a table whose name and schema come from
// a YAML manifest file (see internal/catalog) instead of Go literals.
func (db *Database) CreateTableFromManifest(path string) (*heap.Table, error) {
	name, schema, err := catalog.LoadSchema(path)
	if err != nil {
		return nil, err
	}
	return db.CreateTable(name, schema)
}

func (db *Database) OpenTable(name string) (*heap.Table, error) {
	if _, err := db.requireCurrent(); err != nil {
		return nil, err
	}

	fs := db.tableFileSet(name)

	meta, err := db.readTableMeta(name)
	if err != nil {
		return nil, err
	}

	// Count pages on disk as the single source of truth.
	pageCount, err := db.SM.CountPages(fs)
	if err != nil {
		return nil, err
	}

	// Refresh meta PageCount snapshot.
	meta.PageCount = pageCount
	meta.UpdatedAt = time.Now()

	// Best-effort update; if this fails, we still can open the table.
	if err := db.writeTableMeta(meta); err != nil {
		slog.Info("open table:: error write table meta", "err", err)
	}

	bp := db.pool.View(fs)
	ovf := storage.NewOverflowManager(db.SM, db.overflowFileSet(name))

	tbl := heap.NewTable(name, meta.Schema, db.SM, fs, bp, ovf, pageCount)
	tbl.SetPageCountHook(func(pageCount uint32) error {
		return db.SyncTableMetaPageCount(tbl)
	})
	return tbl, nil
}

// DropTable removes a table's segments, overflow segments, registered
// indexes and meta file, and evicts any cached frames for them from the
// shared pool.
func (db *Database) DropTable(name string) error {
	if _, err := db.requireCurrent(); err != nil {
		return err
	}
	if err := validateIdent(name); err != nil {
		return errs.Wrap(errs.TableMiss, err, "invalid table name")
	}

	meta, err := db.readTableMeta(name)
	if err != nil {
		return err
	}

	fs := db.tableFileSet(name).(storage.LocalFileSet)
	_ = db.pool.DropFileSet(fs)
	if err := storage.RemoveAllSegments(fs); err != nil {
		return err
	}

	ovf := db.overflowFileSet(name)
	_ = db.pool.DropFileSet(ovf)
	if err := storage.RemoveAllSegments(ovf); err != nil {
		return err
	}

	for _, im := range meta.Indexes {
		idxFS := storage.LocalFileSet{Dir: db.tableDir(), Base: im.FileBase}
		_ = db.pool.DropFileSet(idxFS)
		_ = storage.RemoveAllSegments(idxFS)
	}

	return os.Remove(db.tableMetaPath(name))
}

// ListTables returns metadata for every table in the current database.
func (db *Database) ListTables() ([]*TableMeta, error) {
	if _, err := db.requireCurrent(); err != nil {
		return nil, err
	}

	ents, err := os.ReadDir(db.tableDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var out []*TableMeta
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		const suffix = ".meta.json"
		name := e.Name()
		if !strings.HasSuffix(name, suffix) {
			continue
		}
		tableName := strings.TrimSuffix(name, suffix)
		meta, err := db.readTableMeta(tableName)
		if err != nil {
			return nil, err
		}
		out = append(out, meta)
	}
	return out, nil
}

func (db *Database) Close() error {
	if db.pool == nil {
		return nil
	}
	return db.pool.FlushAll()
}

// Not supported yet: we do not have a real ALTER TABLE that rewrites data.
// UpdateTableSchema only updates the meta file schema definition.
func (db *Database) UpdateTableSchema(name string, newSchema record.Schema) error {
	meta, err := db.readTableMeta(name)
	if err != nil {
		return err
	}

	meta.Schema = newSchema
	meta.UpdatedAt = time.Now()

	return db.writeTableMeta(meta)
}

// SyncTableMetaPageCount updates the table meta when only PageCount changes.
func (db *Database) SyncTableMetaPageCount(tbl *heap.Table) error {
	meta, err := db.readTableMeta(tbl.Name)
	if err != nil {
		return err
	}
	meta.PageCount = tbl.PageCount
	return db.writeTableMeta(meta)
}
