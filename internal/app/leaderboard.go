package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/okian/killpoints/internal/adapters/mq/queue"
	"github.com/okian/killpoints/internal/adapters/repository"
	"github.com/okian/killpoints/internal/domain/types"
	"github.com/okian/killpoints/pkg/logger"
)

// Track adds an entity to the leaderboard and queues its first computation.
// Tracking an already tracked entity is a no-op.
func (s *Service) Track(ctx context.Context, entityID int64) error {
	store, q := s.components()
	if store == nil {
		return ErrNotStarted
	}
	if !store.Track(ctx, entityID) {
		return nil
	}
	s.logger.Info(ctx, "tracking entity", logger.Int64("entity_id", entityID))
	return s.enqueue(ctx, q, entityID, "track")
}

// Untrack removes an entity from the leaderboard.
func (s *Service) Untrack(ctx context.Context, entityID int64) error {
	store, _ := s.components()
	if store == nil {
		return ErrNotStarted
	}
	if !store.Remove(ctx, entityID) {
		return fmt.Errorf("entity %d: %w", entityID, repository.ErrNotFound)
	}
	s.logger.Info(ctx, "untracked entity", logger.Int64("entity_id", entityID))
	return nil
}

// RefreshEntity queues a recomputation of a tracked entity.
func (s *Service) RefreshEntity(ctx context.Context, entityID int64) error {
	store, q := s.components()
	if store == nil {
		return ErrNotStarted
	}
	if _, err := store.Get(ctx, entityID); err != nil {
		return fmt.Errorf("entity %d: %w", entityID, err)
	}
	return s.enqueue(ctx, q, entityID, "manual")
}

func (s *Service) enqueue(ctx context.Context, q queue.Queue, entityID int64, reason string) error {
	err := q.Enqueue(ctx, queue.NewJob(entityID, reason))
	if errors.Is(err, queue.ErrPending) {
		return nil
	}
	return err
}

// Points computes the live total of an entity. Tracked entities have the
// leaderboard updated with the result.
func (s *Service) Points(ctx context.Context, entityID int64) (float64, error) {
	total, err := s.EntityTotal(ctx, entityID)
	if err != nil {
		return 0, err
	}
	if store, _ := s.components(); store != nil {
		if _, err := store.Get(ctx, entityID); err == nil {
			if err := store.Upsert(ctx, entityID, total, s.now()); err != nil {
				s.logger.Warn(ctx, "leaderboard update failed",
					logger.Int64("entity_id", entityID), logger.Error(err))
			}
		}
	}
	return total, nil
}

// TopN returns the top N leaderboard entries.
func (s *Service) TopN(ctx context.Context, n int) ([]types.Entry, error) {
	store, _ := s.components()
	if store == nil {
		return nil, ErrNotStarted
	}
	return store.TopN(ctx, n)
}

// Rank returns the leaderboard position of an entity.
func (s *Service) Rank(ctx context.Context, entityID int64) (types.Entry, error) {
	store, _ := s.components()
	if store == nil {
		return types.Entry{}, ErrNotStarted
	}
	return store.Rank(ctx, entityID)
}
