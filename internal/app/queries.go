package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/okian/killpoints/internal/domain/cache"
	"github.com/okian/killpoints/internal/domain/dedupe"
	"github.com/okian/killpoints/internal/domain/grouping"
	"github.com/okian/killpoints/internal/domain/model"
	"github.com/okian/killpoints/internal/domain/types"
	"github.com/okian/killpoints/pkg/logger"
	"github.com/okian/killpoints/pkg/metrics"
)

// ScoreSingleEvent scores one kill from perspective (0 for none). Results are
// cached per (kill, perspective). An empty hash is looked up by id.
func (s *Service) ScoreSingleEvent(ctx context.Context, killID int64, hash string, perspective int64) (model.ScoredEvent, error) {
	key := cache.Key{KillID: killID, Perspective: perspective}
	if ev, ok := s.cache.Get(key); ok {
		return ev, nil
	}

	if hash == "" {
		h, err := s.source.KillHash(ctx, killID)
		if err != nil {
			return model.ScoredEvent{}, err
		}
		hash = h
	}
	km, err := s.source.Killmail(ctx, killID, hash)
	if err != nil {
		return model.ScoredEvent{}, err
	}
	ev, err := s.scorer.Score(ctx, km, perspective)
	if err != nil {
		return model.ScoredEvent{}, err
	}
	if ev.Hash == "" {
		ev.Hash = hash
	}
	s.cache.Put(key, ev)
	return ev, nil
}

// Explanation is the scored view of one kill.
type Explanation struct {
	KillID      int64         `json:"kill_id"`
	Hash        string        `json:"hash"`
	Perspective int64         `json:"perspective,omitempty"`
	Time        time.Time     `json:"time"`
	Score       float64       `json:"score"`
	Window      time.Duration `json:"-"`
	WindowSecs  float64       `json:"window_seconds"`
}

// Explain scores one kill for display. A kill already scored from this
// perspective is answered from the cache, hash or not.
func (s *Service) Explain(ctx context.Context, killID int64, hash string, perspective int64) (Explanation, error) {
	ev, err := s.ScoreSingleEvent(ctx, killID, hash, perspective)
	if err != nil {
		return Explanation{}, err
	}
	if ev.Hash != "" {
		hash = ev.Hash
	}
	return Explanation{
		KillID:      killID,
		Hash:        hash,
		Perspective: perspective,
		Time:        ev.Time,
		Score:       ev.Score,
		Window:      ev.Window,
		WindowSecs:  ev.Window.Seconds(),
	}, nil
}

// CollatedScores reads entityID's recent kill history page by page, scores
// every kill and folds the results into chains. Paging stops at the first
// kill older than the history window, at an empty page or at the page cap.
// A kill listed on two pages counts once. Any upstream failure fails the
// whole query.
func (s *Service) CollatedScores(ctx context.Context, entityID int64) ([]grouping.Chain, error) {
	queryID := uuid.NewString()
	ctx, span := s.tracer.Start(ctx, "service.CollatedScores", trace.WithAttributes(
		attribute.Int64("entity_id", entityID),
		attribute.String("query_id", queryID)))
	defer span.End()

	start := time.Now()
	cutoff := s.now().Add(-s.history)
	perspective := s.perspective.of(entityID)

	var events []model.ScoredEvent
	seen := dedupe.NewInMemoryDeduper()
	pages := 0
	for page := 1; page <= s.maxPages; page++ {
		refs, err := s.source.Page(ctx, entityID, page)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "page fetch failed")
			return nil, fmt.Errorf("entity %d page %d: %w", entityID, page, err)
		}
		pages++
		if len(refs) == 0 {
			break
		}

		fresh := refs[:0:0]
		for _, ref := range refs {
			if !seen.SeenAndRecord(ref.ID) {
				fresh = append(fresh, ref)
			}
		}

		scored, err := s.scorePage(ctx, fresh, perspective)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "scoring failed")
			return nil, err
		}

		older := false
		for _, ev := range scored {
			if ev.Time.Before(cutoff) {
				older = true
				continue
			}
			events = append(events, ev)
		}
		if older {
			break
		}
	}

	chains := grouping.Collate(events, grouping.WithMultiplier(s.multiplier))
	metrics.RecordChainsBuilt(len(chains))
	metrics.RecordQueryLatency(float64(time.Since(start).Milliseconds()))
	span.SetAttributes(attribute.Int("pages", pages), attribute.Int("events", len(events)), attribute.Int("chains", len(chains)))
	s.logger.Debug(ctx, "collated scores",
		logger.String("query_id", queryID),
		logger.Int64("entity_id", entityID),
		logger.Int("pages", pages),
		logger.Int("events", len(events)),
		logger.Int("chains", len(chains)),
		logger.Duration("took", time.Since(start)))
	return chains, nil
}

// scorePage scores the refs of one page concurrently, keeping page order.
func (s *Service) scorePage(ctx context.Context, refs []model.KillRef, perspective int64) ([]model.ScoredEvent, error) {
	out := make([]model.ScoredEvent, len(refs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.fetchConcurrency)
	for i, ref := range refs {
		g.Go(func() error {
			ev, err := s.ScoreSingleEvent(gctx, ref.ID, ref.Hash, perspective)
			if err != nil {
				return fmt.Errorf("kill %d: %w", ref.ID, err)
			}
			out[i] = ev
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// TotalScore reduces chains to the capped total.
func (s *Service) TotalScore(chains []grouping.Chain) float64 {
	return grouping.Total(chains, s.topN)
}

// EntityTotal computes the current total of entityID.
func (s *Service) EntityTotal(ctx context.Context, entityID int64) (float64, error) {
	chains, err := s.CollatedScores(ctx, entityID)
	if err != nil {
		return 0, err
	}
	return s.TotalScore(chains), nil
}

// Breakdown returns the best chains of entityID, highest first, and the total.
func (s *Service) Breakdown(ctx context.Context, entityID int64) ([]types.Breakdown, float64, error) {
	chains, err := s.CollatedScores(ctx, entityID)
	if err != nil {
		return nil, 0, err
	}
	best := grouping.Best(chains, s.topN)
	out := make([]types.Breakdown, len(best))
	for i, c := range best {
		kills := make([]int64, len(c.Members))
		for j, m := range c.Members {
			kills[j] = m.KillID
		}
		out[i] = types.Breakdown{
			RepresentativeID: c.RepresentativeID,
			Kills:            kills,
			Points:           grouping.Round2(c.Score),
		}
	}
	return out, s.TotalScore(chains), nil
}
