// Package novasql is the top-level facade for the NovaSQL storage engine.
// It re-exports the handle types implemented in internal/engine so callers
// outside the module only ever import a single stable path.
package novasql

import "github.com/njudb/njudb/internal/engine"

type (
	Database  = engine.Database
	TableMeta = engine.TableMeta
	IndexMeta = engine.IndexMeta
	IndexKind = engine.IndexKind
)

const (
	IndexKindBTree = engine.IndexKindBTree
	IndexKindHash  = engine.IndexKindHash
)

// NewDatabase opens a database handle rooted at dataDir without touching
// the filesystem; CreateDatabase/SelectDatabase do the actual I/O.
func NewDatabase(dataDir string) *Database {
	return engine.NewDatabase(dataDir)
}
