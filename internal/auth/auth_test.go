package auth

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStore_SetAndVerify(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.SetPassword("alice", "hunter2"))

	require.True(t, s.Verify("alice", "hunter2"))
	require.False(t, s.Verify("alice", "wrong"))
	require.False(t, s.Verify("bob", "hunter2"))
}

func TestLoadStoreFromFile(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.SetPassword("alice", "hunter2"))

	path := filepath.Join(t.TempDir(), "passwd")
	require.NoError(t, os.WriteFile(path, []byte("# comment\nalice:"+string(s.hashes["alice"])+"\n"), 0o600))

	loaded, err := LoadStoreFromFile(path)
	require.NoError(t, err)
	require.True(t, loaded.Verify("alice", "hunter2"))
	require.False(t, loaded.Verify("alice", "nope"))
}

func TestLoadStoreFromFile_BadLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "passwd")
	require.NoError(t, os.WriteFile(path, []byte("not-a-valid-line\n"), 0o600))

	_, err := LoadStoreFromFile(path)
	require.Error(t, err)
}
