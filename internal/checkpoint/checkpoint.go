// Package checkpoint runs a periodic buffer-pool flush independent of the
// WAL stub (internal/wal): it is a scheduled sweep over the shared
// GlobalPool, grounded in the same flush/LSN bookkeeping the WAL manager
// does on a one-shot basis, generalized here to a cron schedule so dirty
// pages don't sit unflushed indefinitely between explicit checkpoints.
package checkpoint

import (
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/njudb/njudb/internal/bufferpool"
)

// Flusher is the subset of *bufferpool.GlobalPool a checkpoint needs.
type Flusher interface {
	FlushAll() error
}

var _ Flusher = (*bufferpool.GlobalPool)(nil)

// Scheduler runs Flusher.FlushAll on a cron schedule until Stop is called.
type Scheduler struct {
	cron *cron.Cron
}

// Start parses schedule as a standard 5-field cron expression and begins
// flushing pool on that schedule. The returned Scheduler must be Stop()'d
// on shutdown.
func Start(schedule string, pool Flusher) (*Scheduler, error) {
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		if err := pool.FlushAll(); err != nil {
			slog.Error("checkpoint: flush failed", "err", err)
			return
		}
		slog.Debug("checkpoint: flush complete")
	})
	if err != nil {
		return nil, err
	}
	c.Start()
	return &Scheduler{cron: c}, nil
}

// Stop halts the schedule, waiting for any in-flight flush to finish.
func (s *Scheduler) Stop() {
	if s == nil || s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
}
