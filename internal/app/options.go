package service

import (
	"time"

	"github.com/okian/killpoints/internal/adapters/repository"
	"github.com/okian/killpoints/internal/domain/cache"
	"github.com/okian/killpoints/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithCache replaces the score cache.
func WithCache(c cache.ScoreCache) Option {
	return func(s *Service) {
		if c != nil {
			s.cache = c
		}
	}
}

// WithRules sets the rule table refreshed before each refresh sweep.
func WithRules(r RuleRefresher) Option {
	return func(s *Service) { s.rules = r }
}

// WithStore sets the leaderboard store. Start creates a treap store otherwise.
func WithStore(st repository.Store) Option {
	return func(s *Service) { s.store = st }
}

// WithHistoryDays limits totals to kills newer than this many days.
func WithHistoryDays(days int) Option {
	return func(s *Service) {
		if days > 0 {
			s.history = time.Duration(days) * 24 * time.Hour
		}
	}
}

// WithMaxPages caps how many history pages one query reads.
func WithMaxPages(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxPages = n
		}
	}
}

// WithFetchConcurrency caps parallel killmail scoring per page.
func WithFetchConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.fetchConcurrency = n
		}
	}
}

// WithTopN sets how many chains count towards a total.
func WithTopN(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.topN = n
		}
	}
}

// WithChainMultiplier sets the chain multiplier base.
func WithChainMultiplier(m float64) Option {
	return func(s *Service) {
		if m > 1 {
			s.multiplier = m
		}
	}
}

// WithPerspective selects how leaderboard totals are scored.
func WithPerspective(p Perspective) Option {
	return func(s *Service) { s.perspective = p }
}

// WithWorkerCount sets the number of refresh workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum number of pending refresh jobs.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithRefreshInterval sets how old a total may get before it is recomputed.
// Zero disables the background refresher.
func WithRefreshInterval(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.refreshInterval = d
		}
	}
}

// WithRefreshSpacing sets the pause each worker takes between refresh jobs.
func WithRefreshSpacing(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.refreshSpacing = d
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}
