package engine

import (
	"time"

	"github.com/njudb/njudb/internal/btree"
	"github.com/njudb/njudb/internal/errs"
	"github.com/njudb/njudb/internal/hashindex"
	"github.com/njudb/njudb/internal/storage"
)

// IndexKind distinguishes the physical index structure backing an IndexMeta
// entry.
type IndexKind string

const (
	IndexKindBTree IndexKind = "btree"
	IndexKindHash  IndexKind = "hash"
)

// IndexMeta is stored inside TableMeta (table.meta.json).
type IndexMeta struct {
	Name      string    `json:"name"`
	Kind      IndexKind `json:"kind"`
	KeyColumn string    `json:"key_column"`
	FileBase  string    `json:"file_base"` // LocalFileSet.Base (segments live in db.tableDir())

	// BucketCount only applies to IndexKindHash; it is fixed for the
	// index's lifetime.
	BucketCount int `json:"bucket_count,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DefaultHashBucketCount is used when CreateHashIndex is called without an
// explicit bucket count.
const DefaultHashBucketCount = 64

// DefaultBackfillWorkers bounds the goroutine fan-out CreateHashIndex uses
// to backfill a new index over a table's existing rows.
const DefaultBackfillWorkers = 4

// ListIndexes returns registered indexes of a table.
func (db *Database) ListIndexes(table string) ([]IndexMeta, error) {
	if err := validateIdent(table); err != nil {
		return nil, errs.Wrap(errs.TableMiss, err, "invalid table name %q", table)
	}
	meta, err := db.readTableMeta(table)
	if err != nil {
		return nil, err
	}
	return meta.Indexes, nil
}

func (db *Database) findIndexMeta(meta *TableMeta, indexName string) (int, *IndexMeta) {
	for i := range meta.Indexes {
		if meta.Indexes[i].Name == indexName {
			return i, &meta.Indexes[i]
		}
	}
	return -1, nil
}

func (db *Database) hasColumn(meta *TableMeta, col string) bool {
	for i := range meta.Schema.Cols {
		if meta.Schema.Cols[i].Name == col {
			return true
		}
	}
	return false
}

func (db *Database) indexFileSet(table, index string) storage.LocalFileSet {
	return storage.LocalFileSet{
		Dir:  db.tableDir(),
		Base: fmtIndexBase(table, index),
	}
}

func fmtIndexBase(table, index string) string {
	return table + "__idx__" + index
}

func (db *Database) registerIndex(table string, im IndexMeta) error {
	tmeta, err := db.readTableMeta(table)
	if err != nil {
		return err
	}
	if !db.hasColumn(tmeta, im.KeyColumn) {
		return errs.New(errs.IndexFail, "unknown key column %q on table %q", im.KeyColumn, table)
	}
	if _, existing := db.findIndexMeta(tmeta, im.Name); existing != nil {
		return errs.New(errs.IndexFail, "index %q already exists on table %q", im.Name, table)
	}

	now := time.Now()
	im.CreatedAt = now
	im.UpdatedAt = now
	tmeta.Indexes = append(tmeta.Indexes, im)
	return db.writeTableMeta(tmeta)
}

// CreateBTreeIndex registers an index and creates a new BTree handle.
// It does not backfill existing rows; callers that need a populated index
// over existing data should scan the table and call tree.Insert themselves.
// Unlike CreateHashIndex, it runs no backfill: there is no B+ tree
// counterpart to hashindex.Backfill, although both index kinds take int64
// keys.
func (db *Database) CreateBTreeIndex(table, indexName, keyColumn string) (*btree.Tree, error) {
	if err := validateIdent(table); err != nil {
		return nil, errs.Wrap(errs.TableMiss, err, "invalid table name")
	}
	if err := validateIdent(indexName); err != nil {
		return nil, errs.Wrap(errs.IndexFail, err, "invalid index name")
	}
	if err := validateIdent(keyColumn); err != nil {
		return nil, errs.Wrap(errs.IndexFail, err, "invalid key column")
	}

	fs := db.indexFileSet(table, indexName)
	bp := db.pool.View(fs)
	tree, err := btree.NewTree(db.SM, fs, bp)
	if err != nil {
		return nil, err
	}

	if err := db.registerIndex(table, IndexMeta{
		Name:      indexName,
		Kind:      IndexKindBTree,
		KeyColumn: keyColumn,
		FileBase:  fs.Base,
	}); err != nil {
		return nil, err
	}
	return tree, nil
}

// CreateHashIndex registers an index and creates a new static hash index
// handle with bucketCount buckets (DefaultHashBucketCount if <= 0), then
// backfills it over every row already in the table via a bounded worker
// pool (see hashindex.Backfill). Hash keys must be int64 or coercible to
// it; CreateHashIndex is not meant for non-integer key columns.
func (db *Database) CreateHashIndex(table, indexName, keyColumn string, bucketCount int) (*hashindex.Index, error) {
	if err := validateIdent(table); err != nil {
		return nil, errs.Wrap(errs.TableMiss, err, "invalid table name")
	}
	if err := validateIdent(indexName); err != nil {
		return nil, errs.Wrap(errs.IndexFail, err, "invalid index name")
	}
	if err := validateIdent(keyColumn); err != nil {
		return nil, errs.Wrap(errs.IndexFail, err, "invalid key column")
	}
	if bucketCount <= 0 {
		bucketCount = DefaultHashBucketCount
	}

	fs := db.indexFileSet(table, indexName)
	bp := db.pool.View(fs)
	idx, err := hashindex.NewIndex(db.SM, fs, bp, bucketCount)
	if err != nil {
		return nil, err
	}

	if err := db.registerIndex(table, IndexMeta{
		Name:        indexName,
		Kind:        IndexKindHash,
		KeyColumn:   keyColumn,
		FileBase:    fs.Base,
		BucketCount: bucketCount,
	}); err != nil {
		return nil, err
	}

	tbl, err := db.OpenTable(table)
	if err != nil {
		return nil, err
	}
	if err := hashindex.Backfill(tbl, idx, keyColumn, DefaultBackfillWorkers); err != nil {
		return nil, errs.Wrap(errs.IndexFail, err, "backfill index %q on table %q", indexName, table)
	}
	return idx, nil
}

// OpenBTreeIndex opens an existing B+Tree index by name.
func (db *Database) OpenBTreeIndex(table, indexName string) (*btree.Tree, error) {
	im, err := db.lookupIndex(table, indexName, IndexKindBTree)
	if err != nil {
		return nil, err
	}
	fs := storage.LocalFileSet{Dir: db.tableDir(), Base: im.FileBase}
	return btree.OpenTree(db.SM, fs, db.pool.View(fs))
}

// OpenHashIndex opens an existing hash index by name.
func (db *Database) OpenHashIndex(table, indexName string) (*hashindex.Index, error) {
	im, err := db.lookupIndex(table, indexName, IndexKindHash)
	if err != nil {
		return nil, err
	}
	fs := storage.LocalFileSet{Dir: db.tableDir(), Base: im.FileBase}
	return hashindex.OpenIndex(db.SM, fs, db.pool.View(fs))
}

func (db *Database) lookupIndex(table, indexName string, wantKind IndexKind) (*IndexMeta, error) {
	if err := validateIdent(table); err != nil {
		return nil, errs.Wrap(errs.TableMiss, err, "invalid table name")
	}
	if err := validateIdent(indexName); err != nil {
		return nil, errs.Wrap(errs.IndexFail, err, "invalid index name")
	}

	tmeta, err := db.readTableMeta(table)
	if err != nil {
		return nil, err
	}
	_, im := db.findIndexMeta(tmeta, indexName)
	if im == nil {
		return nil, errs.New(errs.IndexFail, "index %q not found on table %q", indexName, table)
	}
	if im.Kind != wantKind {
		return nil, errs.New(errs.IndexFail, "index %q is kind %q, not %q", indexName, im.Kind, wantKind)
	}
	return im, nil
}

// DropIndex drops on-disk index files and removes the index from the
// table's registry.
func (db *Database) DropIndex(table, indexName string) error {
	if err := validateIdent(table); err != nil {
		return errs.Wrap(errs.TableMiss, err, "invalid table name")
	}
	if err := validateIdent(indexName); err != nil {
		return errs.Wrap(errs.IndexFail, err, "invalid index name")
	}

	tmeta, err := db.readTableMeta(table)
	if err != nil {
		return err
	}
	pos, im := db.findIndexMeta(tmeta, indexName)
	if im == nil {
		return errs.New(errs.IndexFail, "index %q not found on table %q", indexName, table)
	}

	fs := storage.LocalFileSet{Dir: db.tableDir(), Base: im.FileBase}
	_ = db.pool.DropFileSet(fs)

	var dropErr error
	switch im.Kind {
	case IndexKindBTree:
		dropErr = btree.DropIndex(fs)
	case IndexKindHash:
		dropErr = hashindex.DropIndex(fs)
	default:
		dropErr = errs.New(errs.IndexFail, "unsupported index kind %q", im.Kind)
	}
	if dropErr != nil {
		return dropErr
	}

	last := len(tmeta.Indexes) - 1
	tmeta.Indexes[pos] = tmeta.Indexes[last]
	tmeta.Indexes = tmeta.Indexes[:last]
	tmeta.UpdatedAt = time.Now()
	return db.writeTableMeta(tmeta)
}
