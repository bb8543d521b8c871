package healthcheck

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Task is one health check run. The context is cancelled when the
// Scheduler is stopped.
type Task func(ctx context.Context)

// Scheduler runs a Task every interval. The first run happens one interval
// after Start. A firing that finds the previous run still in flight is
// skipped rather than queued.
type Scheduler struct {
	name     string
	interval time.Duration
	task     Task
	logger   *slog.Logger

	cancel   context.CancelFunc
	done     chan struct{}
	running  sync.WaitGroup
	stopped  atomic.Bool
	inFlight atomic.Bool
	runs     atomic.Uint64
	skipped  atomic.Uint64
}

// Start launches the scheduling loop for task. interval must be positive.
func Start(ctx context.Context, name string, interval time.Duration, task Task, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &Scheduler{
		name:     name,
		interval: interval,
		task:     task,
		logger:   logger,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	go s.loop(ctx)
	return s
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("Health check stopped",
				slog.String("backend", s.name))
			return

		case <-ticker.C:
			s.fire(ctx)
		}
	}
}

func (s *Scheduler) fire(ctx context.Context) {
	// both select cases may have been ready
	if ctx.Err() != nil {
		return
	}

	if !s.inFlight.CompareAndSwap(false, true) {
		s.skipped.Add(1)
		s.logger.Debug("Health check still in flight, skipping",
			slog.String("backend", s.name))
		return
	}

	s.runs.Add(1)
	s.running.Add(1)
	go func() {
		defer s.running.Done()
		defer s.inFlight.Store(false)
		s.task(ctx)
	}()
}

// Stop cancels the schedule and any in-flight run's context. It does not
// wait, so it is safe to call from inside the task.
func (s *Scheduler) Stop() {
	s.stopped.Store(true)
	s.cancel()
}

// Wait blocks until the loop has exited and the last run has returned.
// It must only be called after Stop.
func (s *Scheduler) Wait() {
	<-s.done
	s.running.Wait()
}

// Stopped reports whether Stop has been called.
func (s *Scheduler) Stopped() bool {
	return s.stopped.Load()
}

// InFlight reports whether a run is currently executing.
func (s *Scheduler) InFlight() bool {
	return s.inFlight.Load()
}

// Runs returns how many times the task has been started.
func (s *Scheduler) Runs() uint64 {
	return s.runs.Load()
}

// Skipped returns how many firings were dropped because a run was in flight.
func (s *Scheduler) Skipped() uint64 {
	return s.skipped.Load()
}

func (s *Scheduler) Interval() time.Duration {
	return s.interval
}
