package diskmgr

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/njudb/njudb/internal/errs"
)

func requireKind(t *testing.T, err error, kind errs.Kind) {
	t.Helper()
	got, ok := errs.KindOf(err)
	require.True(t, ok, "error %v carries no kind", err)
	require.Equal(t, kind, got)
}

func TestCreateDestroyLifecycle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.db")

	require.NoError(t, Create(path))
	requireKind(t, Create(path), errs.FileExists)

	require.NoError(t, Destroy(path))
	requireKind(t, Destroy(path), errs.FileNotExists)
}

func TestOpenCloseLifecycle(t *testing.T) {
	m := New()
	path := filepath.Join(t.TempDir(), "t.db")
	require.NoError(t, Create(path))

	fid, err := m.Open(path)
	require.NoError(t, err)

	_, err = m.Open(path)
	requireKind(t, err, errs.FileReopen)

	name, ok := m.FileName(fid)
	require.True(t, ok)
	require.Equal(t, path, name)

	got, ok := m.FileIDOf(path)
	require.True(t, ok)
	require.Equal(t, fid, got)

	require.NoError(t, m.Close(fid))
	requireKind(t, m.Close(fid), errs.FileNotOpen)

	_, err = m.Open(filepath.Join(t.TempDir(), "missing.db"))
	requireKind(t, err, errs.FileNotExists)
}

func TestPageIO_RoundTripAndZeroFill(t *testing.T) {
	m := New()
	path := filepath.Join(t.TempDir(), "t.db")
	require.NoError(t, Create(path))
	fid, err := m.Open(path)
	require.NoError(t, err)
	defer func() { _ = m.Close(fid) }()

	page := make([]byte, pageSize)
	for i := range page {
		page[i] = byte(i % 251)
	}
	require.NoError(t, m.WritePage(fid, 3, page))

	got := make([]byte, pageSize)
	require.NoError(t, m.ReadPage(fid, 3, got))
	require.Equal(t, page, got)

	// Pages 0..2 were never written; reading them zero-fills.
	require.NoError(t, m.ReadPage(fid, 1, got))
	for _, b := range got {
		require.Zero(t, b)
	}

	// Reading past EOF zero-fills too.
	require.NoError(t, m.ReadPage(fid, 9, got))
	for _, b := range got {
		require.Zero(t, b)
	}

	n, err := m.PageCount(fid)
	require.NoError(t, err)
	require.EqualValues(t, 4, n)
}

func TestByteRangeIO(t *testing.T) {
	m := New()
	path := filepath.Join(t.TempDir(), "t.db")
	require.NoError(t, Create(path))
	fid, err := m.Open(path)
	require.NoError(t, err)
	defer func() { _ = m.Close(fid) }()

	payload := []byte("table header bytes")
	n, err := m.WriteFile(fid, payload, 16)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)
	require.NoError(t, m.Sync(fid))

	buf := make([]byte, len(payload))
	n, err = m.ReadFile(fid, buf, 16)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)
	require.Equal(t, payload, buf)

	size, err := m.Size(fid)
	require.NoError(t, err)
	require.EqualValues(t, 16+len(payload), size)
}

func TestPageIO_RejectsWrongBufferSize(t *testing.T) {
	m := New()
	path := filepath.Join(t.TempDir(), "t.db")
	require.NoError(t, Create(path))
	fid, err := m.Open(path)
	require.NoError(t, err)
	defer func() { _ = m.Close(fid) }()

	requireKind(t, m.ReadPage(fid, 0, make([]byte, 100)), errs.FileReadError)
	requireKind(t, m.WritePage(fid, 0, make([]byte, 100)), errs.FileWriteError)
}
