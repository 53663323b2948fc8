package admin

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/njudb/njudb/internal/bufferpool"
	"github.com/njudb/njudb/internal/storage"
)

func TestRouter_Healthz(t *testing.T) {
	sm := storage.NewStorageManager()
	pool := bufferpool.NewGlobalPool(sm, 8)

	srv := httptest.NewServer(NewRouter(pool))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRouter_Stats(t *testing.T) {
	sm := storage.NewStorageManager()
	pool := bufferpool.NewGlobalPool(sm, 8)

	srv := httptest.NewServer(NewRouter(pool))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/stats")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var stats bufferpool.Stats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	require.Equal(t, 8, stats.Capacity)
	require.Equal(t, 8, stats.Free)
}
