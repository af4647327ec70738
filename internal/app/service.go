// Package service wires the scoring engine to its upstreams and the leaderboard,
// and implements the dependencies required by the HTTP API and the CLI.
package service

import (
	"context"
	"runtime"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/okian/killpoints/internal/adapters/mq/queue"
	"github.com/okian/killpoints/internal/adapters/mq/worker"
	"github.com/okian/killpoints/internal/adapters/repository"
	"github.com/okian/killpoints/internal/domain/cache"
	"github.com/okian/killpoints/internal/domain/grouping"
	"github.com/okian/killpoints/internal/domain/model"
	"github.com/okian/killpoints/pkg/logger"
	"github.com/okian/killpoints/pkg/metrics"
)

const (
	defaultHistory          = 90 * 24 * time.Hour
	defaultMaxPages         = 100
	defaultFetchConcurrency = 50
	defaultQueueSize        = 10000
	defaultRefreshInterval  = 6 * time.Hour
	defaultRefreshSpacing   = 2 * time.Second
)

// EventSource supplies kill history and killmail detail.
type EventSource interface {
	Page(ctx context.Context, entityID int64, page int) ([]model.KillRef, error)
	Killmail(ctx context.Context, id int64, hash string) (model.Killmail, error)
	KillHash(ctx context.Context, killID int64) (string, error)
}

// EventScorer scores one killmail.
type EventScorer interface {
	Score(ctx context.Context, km model.Killmail, perspective int64) (model.ScoredEvent, error)
}

// RuleRefresher reloads the rule table.
type RuleRefresher interface {
	Refresh(ctx context.Context) error
}

// Service implements the scoring queries and the tracked leaderboard.
type Service struct {
	mu sync.RWMutex

	source EventSource
	scorer EventScorer
	cache  cache.ScoreCache
	rules  RuleRefresher

	store repository.Store
	queue *queue.InMemoryQueue
	pool  *worker.Pool

	history          time.Duration
	maxPages         int
	fetchConcurrency int
	topN             int
	multiplier       float64
	perspective      Perspective

	workerCount     int
	queueSize       int
	refreshInterval time.Duration
	refreshSpacing  time.Duration

	started bool
	stopCh  chan struct{}
	wg      sync.WaitGroup

	tracer trace.Tracer
	logger logger.Logger
	now    func() time.Time
}

// New constructs a Service. Scoring queries work right away; the leaderboard
// and the refresh pipeline need Start.
func New(source EventSource, scorer EventScorer, opts ...Option) *Service {
	s := &Service{
		source:           source,
		scorer:           scorer,
		history:          defaultHistory,
		maxPages:         defaultMaxPages,
		fetchConcurrency: defaultFetchConcurrency,
		topN:             grouping.DefaultTopN,
		multiplier:       grouping.DefaultMultiplier,
		perspective:      PerspectiveAbsent,
		workerCount:      runtime.NumCPU(),
		queueSize:        defaultQueueSize,
		refreshInterval:  defaultRefreshInterval,
		refreshSpacing:   defaultRefreshSpacing,
		tracer:           otel.Tracer("github.com/okian/killpoints/internal/app"),
		logger:           logger.Nop(),
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cache == nil {
		s.cache = cache.New()
	}
	return s
}

// Start creates the leaderboard and the refresh pipeline.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}

	s.logger.Info(ctx, "starting killpoints service...")
	if s.store == nil {
		s.store = repository.NewTreapStore(ctx)
	}
	s.queue = queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize))
	s.pool = worker.NewPool(s.workerCount, s.queue, s, s.store,
		worker.WithSpacing(s.refreshSpacing),
		worker.WithClock(s.now),
		worker.WithLogger(s.logger.Named("worker")))
	s.pool.Start(ctx)

	s.stopCh = make(chan struct{})
	if s.refreshInterval > 0 {
		s.wg.Add(1)
		go s.refreshLoop(ctx)
	}

	s.started = true
	s.logger.Info(ctx, "killpoints service started",
		logger.Int("workers", s.pool.Size()),
		logger.Int("queue_size", s.queueSize),
		logger.Duration("refresh_interval", s.refreshInterval),
		logger.String("perspective", s.perspective.String()))
	return nil
}

// Stop shuts down the refresher and the workers.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	pool, store := s.pool, s.store
	close(s.stopCh)
	s.mu.Unlock()

	ctx := context.Background()
	s.logger.Info(ctx, "stopping killpoints service...")
	s.wg.Wait()

	if err := pool.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "worker pool shutdown", logger.Error(err))
	}
	if closer, ok := store.(interface{ Close() error }); ok {
		_ = closer.Close()
	}
	s.logger.Info(ctx, "killpoints service stopped")
}

// refreshLoop runs a sweep at start and then every refresh interval.
func (s *Service) refreshLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.refreshInterval)
	defer ticker.Stop()

	s.Sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep refreshes the rules, then queues every entity whose total is older
// than the refresh interval. It returns the number of queued entities.
func (s *Service) Sweep(ctx context.Context) int {
	if s.rules != nil {
		if err := s.rules.Refresh(ctx); err != nil {
			s.logger.Warn(ctx, "rule refresh failed", logger.Error(err))
		}
	}

	store, q := s.components()
	if store == nil {
		return 0
	}
	queued := 0
	for _, id := range store.Stale(ctx, s.now().Add(-s.refreshInterval)) {
		if err := q.Enqueue(ctx, queue.NewJob(id, "stale")); err != nil {
			continue
		}
		queued++
	}
	if queued > 0 {
		s.logger.Info(ctx, "queued stale entities", logger.Int("count", queued))
	}
	return queued
}

func (s *Service) components() (repository.Store, *queue.InMemoryQueue) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, nil
	}
	return s.store, s.queue
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started":         s.started,
		"workerCount":     s.workerCount,
		"queueSize":       s.queueSize,
		"cachedScores":    s.cache.Len(),
		"perspective":     s.perspective.String(),
		"historyDays":     int(s.history / (24 * time.Hour)),
		"refreshInterval": s.refreshInterval.String(),
	}
	if s.started {
		queueLen := s.queue.Len(ctx)
		tracked := s.store.Count(ctx)
		stats["queueLength"] = queueLen
		stats["trackedEntities"] = tracked

		metrics.UpdateQueueSize(queueLen)
		metrics.UpdateTrackedEntities(tracked)
	}
	return stats
}
