package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/okian/killpoints/internal/adapters/mq/queue"
	"github.com/okian/killpoints/pkg/logger"
	"github.com/okian/killpoints/pkg/metrics"
)

const (
	defaultWorkerMultiplier = 2 // refresh work is upstream bound
	poolShutdownTimeout     = 30 * time.Second
)

// Updater stores a recomputed total.
type Updater interface {
	Upsert(ctx context.Context, entityID int64, points float64, at time.Time) error
}

// Scorer computes the current total of an entity.
type Scorer interface {
	EntityTotal(ctx context.Context, entityID int64) (float64, error)
}

// Queue defines how workers receive jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan queue.Job
}

// Worker processes jobs until stopped.
type Worker interface {
	Run(ctx context.Context)
	Shutdown(ctx context.Context) error
}

// InMemoryWorker pulls refresh jobs and writes new totals.
type InMemoryWorker struct {
	queue   Queue
	scorer  Scorer
	updater Updater
	name    string
	spacing time.Duration
	now     func() time.Time

	active *atomic.Int64

	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(q Queue, scorer Scorer, updater Updater, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:    q,
		scorer:   scorer,
		updater:  updater,
		name:     "worker",
		now:      time.Now,
		active:   new(atomic.Int64),
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Get().Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}
	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	jobs := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case job, ok := <-jobs:
			if !ok {
				return
			}
			if err := w.process(ctx, job); err != nil {
				w.logger.Error(ctx, "refresh failed",
					logger.String("job_id", job.ID),
					logger.Int64("entity_id", job.EntityID),
					logger.Error(err))
			}
			if w.spacing > 0 {
				select {
				case <-time.After(w.spacing):
				case <-ctx.Done():
					return
				case <-w.shutdown:
					return
				}
			}
		}
	}
}

// Shutdown gracefully stops the worker.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	close(w.shutdown)
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func (w *InMemoryWorker) process(ctx context.Context, job queue.Job) error {
	metrics.UpdateWorkerActiveCount(int(w.active.Add(1)))
	start := time.Now()
	defer func() {
		metrics.UpdateWorkerActiveCount(int(w.active.Add(-1)))
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Milliseconds()))
	}()

	total, err := w.scorer.EntityTotal(ctx, job.EntityID)
	if err != nil {
		metrics.RecordWorkerError()
		metrics.RecordRefreshError()
		metrics.RecordErrorByComponent("worker", "scoring_error")
		return fmt.Errorf("score entity %d: %w", job.EntityID, err)
	}
	if err := w.updater.Upsert(ctx, job.EntityID, total, w.now()); err != nil {
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "leaderboard_error")
		return fmt.Errorf("store entity %d: %w", job.EntityID, err)
	}

	w.logger.Debug(ctx, "entity refreshed",
		logger.String("job_id", job.ID),
		logger.Int64("entity_id", job.EntityID),
		logger.String("reason", job.Reason),
		logger.Float64("points", total),
		logger.Duration("queued_for", start.Sub(job.Enqueued)))
	return nil
}

// Pool manages multiple workers.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	logger  logger.Logger
}

// NewPool creates a pool of workerCount workers sharing one queue.
// workerCount < 1 sizes the pool from the CPU count.
func NewPool(workerCount int, q Queue, scorer Scorer, updater Updater, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU() * defaultWorkerMultiplier
	}

	pool := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   q,
		logger:  logger.Get().Named("worker-pool"),
	}
	active := new(atomic.Int64)
	for i := 0; i < workerCount; i++ {
		wopts := append([]Option{WithName("worker-" + strconv.Itoa(i))}, opts...)
		w := NewInMemoryWorker(q, scorer, updater, wopts...)
		w.active = active
		pool.workers[i] = w
	}

	metrics.UpdateWorkerCount(workerCount)
	metrics.UpdateWorkerActiveCount(0)
	return pool
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return len(p.workers)
}

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

// Shutdown closes the queue and waits for the workers to stop.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}
	for _, w := range p.workers {
		close(w.shutdown)
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()
	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-shutdownCtx.Done():
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
			return fmt.Errorf("shutdown timed out: %w", shutdownCtx.Err())
		}
	}
	return nil
}
