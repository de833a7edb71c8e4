// Package clickhouse holds the generic buffered writer used by ClickHouse
// repositories. Rows are inserted in batches since ClickHouse prefers few
// large inserts over many small ones.
package clickhouse

import (
	"context"
	"sync"
	"time"

	"finvisor/pkg/logger"
)

const (
	defaultBatchSize = 500
	defaultMaxAge    = 5 * time.Second
)

// FlushFunc inserts one batch
type FlushFunc[T any] func(ctx context.Context, batch []T) error

type BatchWriterConfig[T any] struct {
	FlushFunc FlushFunc[T]
	TableName string
	// MaxBatchSize triggers a flush from Add; defaults to 500
	MaxBatchSize int
	// MaxAge is the background flush period; defaults to 5s
	MaxAge time.Duration
}

// BatchWriter buffers rows and hands them to FlushFunc when the buffer
// fills up or the background ticker fires. A failed batch is put back in
// front of the buffer once, as long as that keeps the buffer under two
// batches; otherwise it is dropped.
type BatchWriter[T any] struct {
	cfg BatchWriterConfig[T]
	log *logger.Logger

	mu      sync.Mutex
	pending []T

	// flushMu keeps batches in insertion order
	flushMu sync.Mutex

	stateMu sync.Mutex
	stop    chan struct{}
	done    chan struct{}
}

func NewBatchWriter[T any](cfg BatchWriterConfig[T]) *BatchWriter[T] {
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = defaultBatchSize
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = defaultMaxAge
	}
	return &BatchWriter[T]{
		cfg:     cfg,
		pending: make([]T, 0, cfg.MaxBatchSize),
		log:     logger.Get().With("component", "batch_writer", "table", cfg.TableName),
	}
}

// Start runs the periodic flush until ctx ends or Stop is called. Calling
// Start on a running writer does nothing.
func (w *BatchWriter[T]) Start(ctx context.Context) {
	w.stateMu.Lock()
	defer w.stateMu.Unlock()
	if w.stop != nil {
		return
	}
	w.stop = make(chan struct{})
	w.done = make(chan struct{})

	go w.loop(ctx, w.stop, w.done)
	w.log.Debugw("Batch writer started", "max_batch", w.cfg.MaxBatchSize, "max_age", w.cfg.MaxAge)
}

func (w *BatchWriter[T]) loop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(w.cfg.MaxAge)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := w.Flush(ctx); err != nil {
				w.log.Warnw("Periodic flush failed", "error", err)
			}
		case <-ctx.Done():
			w.finalFlush()
			return
		case <-stop:
			w.finalFlush()
			return
		}
	}
}

func (w *BatchWriter[T]) finalFlush() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := w.Flush(ctx); err != nil {
		w.log.Warnw("Final flush failed", "error", err, "lost", w.BufferSize())
	}
}

// Add buffers item and flushes synchronously once the buffer is full
func (w *BatchWriter[T]) Add(ctx context.Context, item T) error {
	w.mu.Lock()
	w.pending = append(w.pending, item)
	full := len(w.pending) >= w.cfg.MaxBatchSize
	w.mu.Unlock()

	if !full {
		return nil
	}
	return w.Flush(ctx)
}

// Flush writes everything buffered so far. The insert runs without holding
// the buffer lock so Add never waits on ClickHouse.
func (w *BatchWriter[T]) Flush(ctx context.Context) error {
	w.flushMu.Lock()
	defer w.flushMu.Unlock()

	w.mu.Lock()
	batch := w.pending
	if len(batch) == 0 {
		w.mu.Unlock()
		return nil
	}
	w.pending = make([]T, 0, w.cfg.MaxBatchSize)
	w.mu.Unlock()

	start := time.Now()
	err := w.cfg.FlushFunc(ctx, batch)
	if err == nil {
		w.log.Debugw("Flushed batch", "rows", len(batch), "took", time.Since(start))
		return nil
	}

	requeued := w.requeue(batch)
	w.log.Errorw("Batch insert failed",
		"rows", len(batch),
		"requeued", requeued,
		"took", time.Since(start),
		"error", err,
	)
	return err
}

func (w *BatchWriter[T]) requeue(batch []T) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(batch)+len(w.pending) >= 2*w.cfg.MaxBatchSize {
		return false
	}
	w.pending = append(batch, w.pending...)
	return true
}

// Stop ends the background loop after a final flush. It returns ctx.Err()
// if the loop does not finish in time; a second Stop is a no-op.
func (w *BatchWriter[T]) Stop(ctx context.Context) error {
	w.stateMu.Lock()
	stop, done := w.stop, w.done
	w.stop, w.done = nil, nil
	w.stateMu.Unlock()

	if stop == nil {
		return nil
	}
	close(stop)

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		w.log.Warn("Batch writer stop timed out")
		return ctx.Err()
	}
}

// BufferSize reports how many rows wait for the next flush
func (w *BatchWriter[T]) BufferSize() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}
