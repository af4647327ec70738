// Package worker recomputes entity totals off the refresh queue.
package worker

import (
	"time"

	"github.com/okian/killpoints/pkg/logger"
)

// Option applies a configuration option to the InMemoryWorker.
type Option func(*InMemoryWorker)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(w *InMemoryWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(logger logger.Logger) Option {
	return func(w *InMemoryWorker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithSpacing makes the worker wait d after each job, to keep upstream load even.
func WithSpacing(d time.Duration) Option {
	return func(w *InMemoryWorker) {
		if d > 0 {
			w.spacing = d
		}
	}
}

// WithClock overrides time.Now for the stored refresh time.
func WithClock(now func() time.Time) Option {
	return func(w *InMemoryWorker) {
		if now != nil {
			w.now = now
		}
	}
}
