package scheduler

import (
	"context"
	"time"

	"SignalScanner/internal/ports"
)

// IntervalScheduler triggers the pipeline on a fixed interval. The pipeline's
// own advisory lock keeps overlapping triggers harmless.
type IntervalScheduler struct {
	interval   time.Duration
	runOnStart bool
	stop       chan struct{}
}

var _ ports.Scheduler = (*IntervalScheduler)(nil)

// NewIntervalScheduler builds a scheduler with the given period.
func NewIntervalScheduler(interval time.Duration, runOnStart bool) *IntervalScheduler {
	if interval <= 0 {
		interval = 6 * time.Hour
	}
	return &IntervalScheduler{interval: interval, runOnStart: runOnStart}
}

// Start begins ticking until the context is cancelled or Stop is called.
func (s *IntervalScheduler) Start(ctx context.Context, job func(time.Time)) error {
	if job == nil {
		return nil
	}

	if s.stop != nil {
		return nil
	}

	s.stop = make(chan struct{})
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		if s.runOnStart {
			job(time.Now())
		}
		for {
			select {
			case t := <-ticker.C:
				job(t)
			case <-ctx.Done():
				return
			case <-s.stop:
				return
			}
		}
	}()

	return nil
}

// Stop halts the ticker goroutine.
func (s *IntervalScheduler) Stop(ctx context.Context) error {
	if s.stop == nil {
		return nil
	}
	close(s.stop)
	s.stop = nil
	return nil
}
