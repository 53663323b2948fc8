package novasqlwire

import (
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/njudb/njudb/internal"
)

// freeAddr asks the OS for an ephemeral port, then releases it for Run to
// rebind — a small race window, but standard for this kind of test.
func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

func dialRetry(t *testing.T, addr string) net.Conn {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, 100*time.Millisecond)
		if err == nil {
			return conn
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("could not dial %s", addr)
	return nil
}

func TestRun_ExecutesSQLOverTheWire(t *testing.T) {
	addr := freeAddr(t)
	workdir := t.TempDir()

	go func() {
		_ = Run(ServerConfig{Addr: addr, Workdir: workdir})
	}()

	conn := dialRetry(t, addr)
	defer func() { _ = conn.Close() }()

	exec := func(sql string) ExecuteResponse {
		require.NoError(t, WriteFrame(conn, ExecuteRequest{ID: 1, SQL: sql}))
		var resp ExecuteResponse
		require.NoError(t, ReadFrame(conn, &resp))
		return resp
	}

	resp := exec("CREATE DATABASE shop;")
	require.Empty(t, resp.Error)

	resp = exec("USE shop;")
	require.Empty(t, resp.Error)

	resp = exec("CREATE TABLE users (id INT, name TEXT, active BOOL);")
	require.Empty(t, resp.Error)

	resp = exec("INSERT INTO users VALUES (1, 'alice', true);")
	require.Empty(t, resp.Error)

	resp = exec("SELECT * FROM users;")
	require.Empty(t, resp.Error)
	require.NotNil(t, resp.Result)
	require.Len(t, resp.Result.Rows, 1)
}

func TestRun_RejectsBadCredentials(t *testing.T) {
	addr := freeAddr(t)
	workdir := t.TempDir()

	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.DefaultCost)
	require.NoError(t, err)
	pwFile := filepath.Join(t.TempDir(), "passwd")
	require.NoError(t, os.WriteFile(pwFile, []byte("alice:"+string(hash)+"\n"), 0o600))

	cfg := &internal.NovaSqlConfig{}
	cfg.Auth.PasswordFile = pwFile

	go func() {
		_ = Run(ServerConfig{Addr: addr, Workdir: workdir, Cfg: cfg})
	}()

	conn := dialRetry(t, addr)
	defer func() { _ = conn.Close() }()

	require.NoError(t, WriteFrame(conn, AuthRequest{User: "alice", Password: "wrong"}))
	var resp AuthResponse
	require.NoError(t, ReadFrame(conn, &resp))
	require.False(t, resp.OK)
	require.NotEmpty(t, resp.Error)
}

func TestRun_AcceptsGoodCredentials(t *testing.T) {
	addr := freeAddr(t)
	workdir := t.TempDir()

	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.DefaultCost)
	require.NoError(t, err)
	pwFile := filepath.Join(t.TempDir(), "passwd")
	require.NoError(t, os.WriteFile(pwFile, []byte("alice:"+string(hash)+"\n"), 0o600))

	cfg := &internal.NovaSqlConfig{}
	cfg.Auth.PasswordFile = pwFile

	go func() {
		_ = Run(ServerConfig{Addr: addr, Workdir: workdir, Cfg: cfg})
	}()

	conn := dialRetry(t, addr)
	defer func() { _ = conn.Close() }()

	require.NoError(t, WriteFrame(conn, AuthRequest{User: "alice", Password: "hunter2"}))
	var resp AuthResponse
	require.NoError(t, ReadFrame(conn, &resp))
	require.True(t, resp.OK)

	require.NoError(t, WriteFrame(conn, ExecuteRequest{ID: 1, SQL: "CREATE DATABASE shop;"}))
	var execResp ExecuteResponse
	require.NoError(t, ReadFrame(conn, &execResp))
	require.Empty(t, execResp.Error)
}
