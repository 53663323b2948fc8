package novasqlwire

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/njudb/njudb/internal"
	"github.com/njudb/njudb/internal/admin"
	"github.com/njudb/njudb/internal/auth"
	"github.com/njudb/njudb/internal/bufferpool"
	"github.com/njudb/njudb/internal/checkpoint"
	"github.com/njudb/njudb/internal/engine"
	"github.com/njudb/njudb/internal/sql/executor"
	"github.com/njudb/njudb/internal/storage"
)

// ServerConfig describes one TCP line-protocol listener plus its optional
// ambient surfaces (admin HTTP, scheduled checkpoints, connection auth).
// Cfg, when non-nil, drives buffer-pool sizing/replacer choice and the
// optional surfaces; a nil Cfg falls back to the package defaults.
type ServerConfig struct {
	Addr    string
	Workdir string
	Cfg     *internal.NovaSqlConfig
}

// Run listens on sc.Addr and serves connections until ctx-equivalent signal
// shutdown (SIGINT/SIGTERM). Every connection shares one process-wide
// GlobalPool (and StorageManager) built once at startup, so buffer-pool
// contention and eviction behave the way a real server's shared_buffers
// does across concurrent sessions; each connection still gets its own
// *novasql.Database value (and thus its own "current database" selection)
// via engine.NewDatabaseWithPool.
func Run(sc ServerConfig) error {
	sm := storage.NewStorageManager()
	pool := buildPool(sm, sc.Cfg)

	var authStore *auth.Store
	if sc.Cfg != nil && sc.Cfg.Auth.PasswordFile != "" {
		s, err := auth.LoadStoreFromFile(sc.Cfg.Auth.PasswordFile)
		if err != nil {
			return fmt.Errorf("novasqlwire: load auth store: %w", err)
		}
		authStore = s
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if sc.Cfg != nil && sc.Cfg.Admin.Addr != "" {
		adminSrv := &http.Server{Addr: sc.Cfg.Admin.Addr, Handler: admin.NewRouter(pool)}
		go func() {
			if err := adminSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("admin: http server stopped", "err", err)
			}
		}()
		go func() {
			<-ctx.Done()
			_ = adminSrv.Close()
		}()
	}

	if sc.Cfg != nil && sc.Cfg.Checkpoint.Schedule != "" {
		sched, err := checkpoint.Start(sc.Cfg.Checkpoint.Schedule, pool)
		if err != nil {
			return fmt.Errorf("novasqlwire: start checkpoint scheduler: %w", err)
		}
		defer sched.Stop()
	}

	ln, err := net.Listen("tcp", sc.Addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	defer func() { _ = ln.Close() }()

	slog.Info("novasql tcp server listening", "addr", sc.Addr, "workdir", sc.Workdir)

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			slog.Error("accept", "err", err)
			continue
		}
		go handleConn(ctx, conn, sc.Workdir, sm, pool, authStore)
	}
}

// buildPool constructs the process-wide GlobalPool from cfg.BufferPool,
// falling back to the clock replacer and default capacity when cfg is nil
// or leaves the fields at their zero values.
func buildPool(sm *storage.StorageManager, cfg *internal.NovaSqlConfig) *bufferpool.GlobalPool {
	if cfg == nil {
		return bufferpool.NewGlobalPool(sm, bufferpool.DefaultCapacity)
	}
	kind := bufferpool.ReplacerKind(cfg.BufferPool.Replacer)
	if kind == "" {
		kind = bufferpool.ReplacerClock
	}
	capacity := cfg.BufferPool.Capacity
	if capacity <= 0 {
		capacity = bufferpool.DefaultCapacity
	}
	return bufferpool.NewGlobalPoolWithReplacer(sm, capacity, kind, cfg.BufferPool.K)
}

func handleConn(ctx context.Context, conn net.Conn, workdir string, sm *storage.StorageManager, pool *bufferpool.GlobalPool, authStore *auth.Store) {
	defer func() { _ = conn.Close() }()

	sessionID := uuid.NewString()
	log := slog.With("session", sessionID, "remote", conn.RemoteAddr().String())

	// No global deadline; you can set per-request deadline if needed.
	_ = conn.SetDeadline(time.Time{})

	if authStore != nil {
		var req AuthRequest
		if err := ReadFrame(conn, &req); err != nil {
			log.Warn("auth: failed to read credentials", "err", err)
			return
		}
		if !authStore.Verify(req.User, req.Password) {
			log.Warn("auth: rejected", "user", req.User)
			_ = WriteFrame(conn, AuthResponse{OK: false, Error: "invalid credentials"})
			return
		}
		if err := WriteFrame(conn, AuthResponse{OK: true}); err != nil {
			return
		}
		log.Info("auth: accepted", "user", req.User)
	}

	log.Info("session start")
	defer log.Info("session end")

	db := engine.NewDatabaseWithPool(workdir, pool, sm)
	ex := executor.NewExecutor(db)
	defer func() { _ = db.Close() }()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		var req ExecuteRequest
		if err := ReadFrame(conn, &req); err != nil {
			// Client closed or bad frame.
			return
		}

		res, err := ex.ExecSQL(req.SQL)
		if err != nil {
			_ = WriteFrame(conn, ExecuteResponse{
				ID:    req.ID,
				Error: err.Error(),
			})
			continue
		}

		_ = WriteFrame(conn, ExecuteResponse{
			ID:     req.ID,
			Result: res,
		})
	}
}
