package checkpoint

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type countingFlusher struct{ n atomic.Int32 }

func (f *countingFlusher) FlushAll() error {
	f.n.Add(1)
	return nil
}

func TestScheduler_StartAndStop(t *testing.T) {
	f := &countingFlusher{}

	// robfig/cron/v3's standard parser is minute-granularity, so this test
	// only exercises wiring (start, run briefly, stop cleanly) rather than
	// waiting for an actual tick.
	sched, err := Start("* * * * *", f)
	require.NoError(t, err)
	require.NotNil(t, sched)

	time.Sleep(10 * time.Millisecond)
	sched.Stop()
}

func TestStart_InvalidSchedule(t *testing.T) {
	f := &countingFlusher{}
	_, err := Start("not a cron expr", f)
	require.Error(t, err)
}
