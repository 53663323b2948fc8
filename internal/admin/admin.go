// Package admin exposes a small read-only HTTP surface alongside the
// line-protocol TCP server: a liveness probe and a buffer-pool occupancy
// snapshot. It is an external collaborator to the storage core (spec.md
// §1 scopes the client protocol itself out of core), not part of it.
package admin

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/njudb/njudb/internal/bufferpool"
)

// NewRouter builds the admin HTTP handler for a single shared GlobalPool.
func NewRouter(pool *bufferpool.GlobalPool) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/stats", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(pool.Stats())
	})

	return r
}
