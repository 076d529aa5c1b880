package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntervalSchedulerTicks(t *testing.T) {
	t.Parallel()

	var runs atomic.Int32
	s := NewIntervalScheduler(20*time.Millisecond, true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, s.Start(ctx, func(time.Time) { runs.Add(1) }))

	assert.Eventually(t, func() bool { return runs.Load() >= 3 },
		2*time.Second, 10*time.Millisecond, "run-on-start plus at least two ticks")

	require.NoError(t, s.Stop(ctx))
	settled := runs.Load()
	time.Sleep(60 * time.Millisecond)
	assert.LessOrEqual(t, runs.Load(), settled+1, "no steady ticking after Stop")
}

func TestIntervalSchedulerNoRunOnStart(t *testing.T) {
	t.Parallel()

	var runs atomic.Int32
	s := NewIntervalScheduler(time.Hour, false)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, s.Start(ctx, func(time.Time) { runs.Add(1) }))
	time.Sleep(30 * time.Millisecond)
	assert.Zero(t, runs.Load())
	require.NoError(t, s.Stop(ctx))
}

func TestIntervalSchedulerNilJob(t *testing.T) {
	t.Parallel()

	s := NewIntervalScheduler(time.Hour, true)
	require.NoError(t, s.Start(context.Background(), nil))
	require.NoError(t, s.Stop(context.Background()))
}
