package hashindex

import (
	"os"

	"github.com/njudb/njudb/internal/storage"
)

// DropIndex removes all of the index's on-disk segments. Callers must
// evict the index's pages from any buffer pool first.
func DropIndex(lfs storage.LocalFileSet) error {
	if err := os.MkdirAll(lfs.Dir, 0o755); err != nil {
		return err
	}
	return storage.RemoveAllSegments(lfs)
}
