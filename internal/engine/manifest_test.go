package engine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCreateTableFromManifest(t *testing.T) {
	db := newTestDatabase(t)

	path := filepath.Join(t.TempDir(), "orders.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: orders
columns:
  - name: id
    type: int64
  - name: note
    type: text
    nullable: true
`), 0o644))

	tbl, err := db.CreateTableFromManifest(path)
	require.NoError(t, err)

	tid, err := tbl.Insert([]any{int64(1), "first"})
	require.NoError(t, err)
	row, err := tbl.Get(tid)
	require.NoError(t, err)
	require.Equal(t, []any{int64(1), "first"}, row)

	metas, err := db.ListTables()
	require.NoError(t, err)
	require.Len(t, metas, 1)
	require.Equal(t, "orders", metas[0].Name)
}

func TestCreateTableFromManifest_BadManifest(t *testing.T) {
	db := newTestDatabase(t)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: bad\ncolumns: []\n"), 0o644))

	_, err := db.CreateTableFromManifest(path)
	require.Error(t, err)
}
