package main

import (
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/njudb/njudb/internal"
	"github.com/njudb/njudb/internal/storage"
	"github.com/njudb/njudb/server/novasqlwire"
)

func main() {
	cfgPath := pflag.String("config", "novasql.yaml", "Path to novasql yaml config")
	pflag.Parse()

	cfg, err := internal.LoadConfig(*cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	addr := os.Getenv("NOVASQL_ADDR")
	if addr == "" {
		port := cfg.Server.Port
		if port == 0 {
			port = 6543
		}
		addr = fmt.Sprintf("127.0.0.1:%d", port)
	}

	workdir := cfg.Storage.Workdir
	if workdir == "" {
		workdir = "./data"
	}

	if err := os.MkdirAll(workdir, storage.FileMode0755); err != nil {
		log.Fatalf("create data dir: %v", err)
	}

	level := slog.LevelInfo
	if cfg.Server.Debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	sc := novasqlwire.ServerConfig{
		Addr:    addr,
		Workdir: workdir,
		Cfg:     cfg,
	}

	if err := novasqlwire.Run(sc); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
