package workers

import (
	"context"
	"sync"
	"time"

	"finvisor/internal/metrics"
	"finvisor/pkg/errors"
	"finvisor/pkg/logger"
)

// Scheduler runs each registered worker in its own goroutine
type Scheduler struct {
	mu      sync.RWMutex
	workers []Worker
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	log     *logger.Logger
	started bool
}

func NewScheduler(log *logger.Logger) *Scheduler {
	return &Scheduler{log: log.With("component", "scheduler")}
}

// Register adds a worker. Workers registered after Start are ignored.
func (s *Scheduler) Register(w Worker) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		s.log.Warnw("Cannot register worker after scheduler has started", "worker", w.Name())
		return
	}
	s.workers = append(s.workers, w)
	s.log.Infow("Worker registered", "worker", w.Name(), "interval", w.Interval())
}

// Start launches every enabled worker. Each runs once immediately, then on its interval.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return errors.Wrap(errors.ErrInternal, "scheduler already started")
	}
	s.started = true

	var runCtx context.Context
	runCtx, s.cancel = context.WithCancel(ctx)

	for _, w := range s.workers {
		if !w.Enabled() {
			s.log.Infow("Skipping disabled worker", "worker", w.Name())
			continue
		}
		s.wg.Add(1)
		go s.loop(runCtx, w)
	}

	s.log.Infow("Worker scheduler started", "workers", len(s.workers))
	return nil
}

// Stop cancels the workers and waits up to timeout for in-flight runs
func (s *Scheduler) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.cancel()
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
		s.log.Info("All workers stopped")
	case <-time.After(timeout):
		err = errors.Wrapf(errors.ErrTimeout, "workers did not stop within %s", timeout)
	}

	s.mu.Lock()
	s.started = false
	s.mu.Unlock()
	return err
}

func (s *Scheduler) loop(ctx context.Context, w Worker) {
	defer s.wg.Done()

	ticker := time.NewTicker(w.Interval())
	defer ticker.Stop()

	s.execute(ctx, w)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.execute(ctx, w)
		}
	}
}

func (s *Scheduler) execute(ctx context.Context, w Worker) {
	start := time.Now()
	var err error

	defer func() {
		if r := recover(); r != nil {
			err = errors.Wrapf(errors.ErrInternal, "worker panicked: %v", r)
		}
		duration := time.Since(start)
		if hr, ok := w.(healthReporter); ok {
			hr.Record(err, duration)
		}
		metrics.RecordWorkerRun(w.Name(), duration, err)
		if err != nil {
			s.log.Errorw("Worker run failed", "worker", w.Name(), "duration", duration, "error", err)
			return
		}
		s.log.Debugw("Worker run completed", "worker", w.Name(), "duration", duration)
	}()

	err = w.Run(ctx)
}

// Health reports the run history of workers that track it
func (s *Scheduler) Health() map[string]Health {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]Health, len(s.workers))
	for _, w := range s.workers {
		if hr, ok := w.(healthReporter); ok {
			out[w.Name()] = hr.Health()
		}
	}
	return out
}

func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started
}
