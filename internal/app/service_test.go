package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/killpoints/internal/adapters/repository"
	"github.com/okian/killpoints/internal/adapters/upstream"
	service "github.com/okian/killpoints/internal/app"
	"github.com/okian/killpoints/internal/domain/model"
	"github.com/okian/killpoints/internal/domain/rules"
	"github.com/okian/killpoints/internal/domain/scoring"
	"github.com/okian/killpoints/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

var now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

// fakeSource serves pages per entity and killmails by id.
type fakeSource struct {
	mu        sync.Mutex
	pages     map[int64][][]model.KillRef
	killmails map[int64]model.Killmail
	pageErr   error

	pageCalls     atomic.Int64
	killmailCalls atomic.Int64
	hashCalls     atomic.Int64
}

func newFakeSource() *fakeSource {
	return &fakeSource{pages: map[int64][][]model.KillRef{}, killmails: map[int64]model.Killmail{}}
}

func (f *fakeSource) add(entityID int64, page int, kills ...model.Killmail) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for len(f.pages[entityID]) < page {
		f.pages[entityID] = append(f.pages[entityID], nil)
	}
	for _, km := range kills {
		f.pages[entityID][page-1] = append(f.pages[entityID][page-1], model.KillRef{ID: km.ID, Hash: km.Hash})
		f.killmails[km.ID] = km
	}
}

func (f *fakeSource) Page(_ context.Context, entityID int64, page int) ([]model.KillRef, error) {
	f.pageCalls.Add(1)
	if f.pageErr != nil {
		return nil, f.pageErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if page > len(f.pages[entityID]) {
		return nil, nil
	}
	return f.pages[entityID][page-1], nil
}

func (f *fakeSource) Killmail(_ context.Context, id int64, hash string) (model.Killmail, error) {
	f.killmailCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	km, ok := f.killmails[id]
	if !ok || km.Hash != hash {
		return model.Killmail{}, upstream.ErrNotFound
	}
	return km, nil
}

func (f *fakeSource) KillHash(_ context.Context, killID int64) (string, error) {
	f.hashCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	km, ok := f.killmails[killID]
	if !ok {
		return "", upstream.ErrNotFound
	}
	return km.Hash, nil
}

// fakeScorer scores each kill with a fixed value and a five minute window.
type fakeScorer struct {
	mu           sync.Mutex
	scores       map[int64]float64
	perspectives []int64
}

func (f *fakeScorer) Score(_ context.Context, km model.Killmail, perspective int64) (model.ScoredEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.perspectives = append(f.perspectives, perspective)
	return model.ScoredEvent{KillID: km.ID, Time: km.Time, Score: f.scores[km.ID], Window: 5 * time.Minute}, nil
}

func km(id int64, at time.Time) model.Killmail {
	return model.Killmail{ID: id, Hash: fmt.Sprintf("hash-%d", id), Time: at}
}

type countingRules struct{ calls atomic.Int64 }

func (r *countingRules) Refresh(context.Context) error {
	r.calls.Add(1)
	return nil
}

func newService(src *fakeSource, sc service.EventScorer, opts ...service.Option) *service.Service {
	base := []service.Option{
		service.WithClock(func() time.Time { return now }),
		service.WithRefreshInterval(0),
		service.WithRefreshSpacing(0),
		service.WithWorkerCount(2),
	}
	return service.New(src, sc, append(base, opts...)...)
}

func TestCollatedScores(t *testing.T) {
	Convey("Given an entity with kills over two pages", t, func() {
		src := newFakeSource()
		sc := &fakeScorer{scores: map[int64]float64{101: 10, 102: 20, 103: 7, 104: 50, 105: 99}}
		// Page 1 newest first: two kills a minute apart, one two days earlier.
		src.add(1, 1, km(102, now.Add(-time.Hour)), km(101, now.Add(-time.Hour-time.Minute)), km(103, now.Add(-48*time.Hour)))
		// Page 2: one kill in range and one past the 90 day window.
		src.add(1, 2, km(104, now.Add(-80*24*time.Hour)), km(105, now.Add(-91*24*time.Hour)))
		svc := newService(src, sc)

		chains, err := svc.CollatedScores(context.Background(), 1)

		Convey("Then kills group into chains and old kills are dropped", func() {
			So(err, ShouldBeNil)
			So(len(chains), ShouldEqual, 3)
			So(chains[0].RepresentativeID, ShouldEqual, 104)
			So(chains[1].RepresentativeID, ShouldEqual, 103)
			So(chains[2].RepresentativeID, ShouldEqual, 101)
			So(chains[2].Score, ShouldEqual, 10*1+20*1.5)
		})

		Convey("Then paging stops at the page holding the first old kill", func() {
			So(src.pageCalls.Load(), ShouldEqual, 2)
		})

		Convey("Then the total sums the chains", func() {
			So(svc.TotalScore(chains), ShouldEqual, 97)
		})

		Convey("Then leaderboard queries score without the entity's perspective", func() {
			for _, p := range sc.perspectives {
				So(p, ShouldEqual, 0)
			}
		})
	})

	Convey("Given an entity whose second page is empty", t, func() {
		src := newFakeSource()
		sc := &fakeScorer{scores: map[int64]float64{1: 5}}
		src.add(2, 1, km(1, now.Add(-time.Hour)))
		svc := newService(src, sc, service.WithPerspective(service.PerspectivePresent))

		total, err := svc.EntityTotal(context.Background(), 2)

		Convey("Then paging stops at the empty page", func() {
			So(err, ShouldBeNil)
			So(total, ShouldEqual, 5)
			So(src.pageCalls.Load(), ShouldEqual, 2)
		})

		Convey("Then the entity is passed as perspective", func() {
			So(sc.perspectives, ShouldResemble, []int64{2})
		})
	})

	Convey("Given a page cap", t, func() {
		src := newFakeSource()
		sc := &fakeScorer{scores: map[int64]float64{}}
		for p := 1; p <= 5; p++ {
			src.add(3, p, km(int64(p), now.Add(-time.Duration(p)*time.Hour)))
		}
		svc := newService(src, sc, service.WithMaxPages(3))

		_, err := svc.CollatedScores(context.Background(), 3)

		Convey("Then no more pages are read", func() {
			So(err, ShouldBeNil)
			So(src.pageCalls.Load(), ShouldEqual, 3)
		})
	})

	Convey("Given a kill that shifted onto the next page while paging", t, func() {
		src := newFakeSource()
		sc := &fakeScorer{scores: map[int64]float64{10: 4, 11: 6}}
		src.add(7, 1, km(11, now.Add(-time.Hour)), km(10, now.Add(-30*time.Hour)))
		src.add(7, 2, km(10, now.Add(-30*time.Hour)))
		svc := newService(src, sc)

		total, err := svc.EntityTotal(context.Background(), 7)

		Convey("Then it counts once", func() {
			So(err, ShouldBeNil)
			So(total, ShouldEqual, 10)
		})
	})

	Convey("Given an entity with no history", t, func() {
		svc := newService(newFakeSource(), &fakeScorer{})

		total, err := svc.EntityTotal(context.Background(), 4)

		Convey("Then the total is zero", func() {
			So(err, ShouldBeNil)
			So(total, ShouldEqual, 0)
		})
	})

	Convey("Given an upstream that is down", t, func() {
		src := newFakeSource()
		src.pageErr = fmt.Errorf("%w: zkill 503", upstream.ErrDataUnavailable)
		svc := newService(src, &fakeScorer{})

		_, err := svc.CollatedScores(context.Background(), 5)

		Convey("Then the whole query fails with the upstream error", func() {
			So(errors.Is(err, upstream.ErrDataUnavailable), ShouldBeTrue)
		})
	})

	Convey("Given a kill whose detail cannot be fetched", t, func() {
		src := newFakeSource()
		src.add(6, 1, km(1, now.Add(-time.Hour)))
		src.killmails[1] = model.Killmail{ID: 1, Hash: "other"}
		svc := newService(src, &fakeScorer{})

		_, err := svc.CollatedScores(context.Background(), 6)

		Convey("Then the query fails", func() {
			So(errors.Is(err, upstream.ErrNotFound), ShouldBeTrue)
		})
	})
}

func TestScoreSingleEvent(t *testing.T) {
	Convey("Given the real scorer over a rule table", t, func() {
		table := rules.New(rules.WithWeights(map[rules.Category]map[int64]float64{
			rules.Base:           {11198: 10},
			rules.RarityAdjusted: {587: 100},
			rules.RiskAdjusted:   {11198: 8},
			rules.TimeAdjusted:   {587: 30, 11198: 30},
		}))
		src := newFakeSource()
		kill := model.Killmail{
			ID:            7,
			Hash:          "abc",
			Time:          now.Add(-time.Hour),
			SolarSystemID: 30001000,
			Victim:        model.Victim{ShipTypeID: 587},
			Attackers:     []model.Attacker{{CharacterID: model.Int64(90000002), ShipTypeID: model.Int64(11198)}},
		}
		src.add(1, 1, kill)
		svc := newService(src, scoring.New(table))

		Convey("When the same kill is scored twice", func() {
			first, err1 := svc.ScoreSingleEvent(context.Background(), 7, "abc", 0)
			second, err2 := svc.ScoreSingleEvent(context.Background(), 7, "abc", 0)

			Convey("Then both results are identical and detail is fetched once", func() {
				So(err1, ShouldBeNil)
				So(err2, ShouldBeNil)
				So(first.Score, ShouldEqual, 125.0)
				So(second, ShouldResemble, first)
				So(src.killmailCalls.Load(), ShouldEqual, 1)
			})
		})

		Convey("When a kill is explained without its hash", func() {
			ex, err := svc.Explain(context.Background(), 7, "", 0)

			Convey("Then the hash is looked up by id", func() {
				So(err, ShouldBeNil)
				So(ex.Hash, ShouldEqual, "abc")
				So(ex.Score, ShouldEqual, 125.0)
				So(src.hashCalls.Load(), ShouldEqual, 1)
			})
		})

		Convey("When an already scored kill is explained without its hash", func() {
			_, err := svc.ScoreSingleEvent(context.Background(), 7, "abc", 0)
			So(err, ShouldBeNil)

			ex, err := svc.Explain(context.Background(), 7, "", 0)

			Convey("Then the cached score answers without any upstream call", func() {
				So(err, ShouldBeNil)
				So(ex.Hash, ShouldEqual, "abc")
				So(ex.Score, ShouldEqual, 125.0)
				So(src.hashCalls.Load(), ShouldEqual, 0)
				So(src.killmailCalls.Load(), ShouldEqual, 1)
			})
		})

		Convey("When the perspective differs", func() {
			_, _ = svc.ScoreSingleEvent(context.Background(), 7, "abc", 0)
			_, _ = svc.ScoreSingleEvent(context.Background(), 7, "abc", 90000002)

			Convey("Then each perspective is cached separately", func() {
				So(src.killmailCalls.Load(), ShouldEqual, 2)
			})
		})
	})
}

func waitForPoints(svc *service.Service, entityID int64, want float64) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if e, err := svc.Rank(context.Background(), entityID); err == nil && e.Points == want {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}

func TestLeaderboard(t *testing.T) {
	Convey("Given a service that has not started", t, func() {
		svc := newService(newFakeSource(), &fakeScorer{})

		Convey("Then leaderboard operations fail", func() {
			So(errors.Is(svc.Track(context.Background(), 1), service.ErrNotStarted), ShouldBeTrue)
			_, err := svc.TopN(context.Background(), 10)
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
			So(svc.GetStats()["started"], ShouldEqual, false)
		})
	})

	Convey("Given three tracked entities", t, func() {
		src := newFakeSource()
		sc := &fakeScorer{scores: map[int64]float64{11: 120.5, 21: 300, 31: 45.25}}
		src.add(1, 1, km(11, now.Add(-time.Hour)))
		src.add(2, 1, km(21, now.Add(-time.Hour)))
		src.add(3, 1, km(31, now.Add(-time.Hour)))

		svc := newService(src, sc)
		So(svc.Start(context.Background()), ShouldBeNil)
		defer svc.Stop()

		ctx := context.Background()
		for _, id := range []int64{1, 2, 3} {
			So(svc.Track(ctx, id), ShouldBeNil)
		}
		So(waitForPoints(svc, 1, 120.5), ShouldBeTrue)
		So(waitForPoints(svc, 2, 300), ShouldBeTrue)
		So(waitForPoints(svc, 3, 45.25), ShouldBeTrue)

		Convey("Then the leaderboard ranks them by points", func() {
			entries, err := svc.TopN(ctx, 10)
			So(err, ShouldBeNil)
			So(len(entries), ShouldEqual, 3)
			So(entries[0].Points, ShouldEqual, 300)
			So(entries[1].Points, ShouldEqual, 120.5)
			So(entries[2].Points, ShouldEqual, 45.25)

			rank, err := svc.Rank(ctx, 3)
			So(err, ShouldBeNil)
			So(rank.Rank, ShouldEqual, 3)
		})

		Convey("Then tracking again is a no-op", func() {
			So(svc.Track(ctx, 1), ShouldBeNil)
			So(svc.GetStats()["trackedEntities"], ShouldEqual, 3)
		})

		Convey("When an entity is untracked", func() {
			So(svc.Untrack(ctx, 2), ShouldBeNil)

			Convey("Then it leaves the leaderboard", func() {
				_, err := svc.Rank(ctx, 2)
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
				So(errors.Is(svc.Untrack(ctx, 2), repository.ErrNotFound), ShouldBeTrue)
				So(errors.Is(svc.RefreshEntity(ctx, 2), repository.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When live points change", func() {
			sc.mu.Lock()
			sc.scores[12] = 80
			sc.mu.Unlock()
			src.add(1, 1, km(12, now.Add(-2*24*time.Hour)))
			svc2Points, err := svc.Points(ctx, 1)

			Convey("Then the cached kill is reused and the new one counted", func() {
				So(err, ShouldBeNil)
				So(svc2Points, ShouldEqual, 200.5)
				rank, _ := svc.Rank(ctx, 1)
				So(rank.Points, ShouldEqual, 200.5)
				So(rank.Rank, ShouldEqual, 2)
			})
		})

		Convey("When a refresh is requested", func() {
			So(svc.RefreshEntity(ctx, 3), ShouldBeNil)

			Convey("Then it is accepted", func() {
				So(waitForPoints(svc, 3, 45.25), ShouldBeTrue)
			})
		})
	})
}

func TestSweep(t *testing.T) {
	Convey("Given tracked entities whose totals are stale", t, func() {
		src := newFakeSource()
		sc := &fakeScorer{scores: map[int64]float64{11: 1}}
		src.add(1, 1, km(11, now.Add(-time.Hour)))
		rules := &countingRules{}
		store := repository.NewTreapStore(context.Background())
		_ = store.Upsert(context.Background(), 1, 0, now.Add(-7*time.Hour))
		_ = store.Upsert(context.Background(), 2, 0, now.Add(-time.Hour))

		svc := newService(src, sc,
			service.WithRules(rules),
			service.WithStore(store),
			service.WithRefreshInterval(6*time.Hour))
		So(svc.Start(context.Background()), ShouldBeNil)
		defer svc.Stop()

		Convey("Then the startup sweep refreshes rules and recomputes only the stale one", func() {
			So(waitForPoints(svc, 1, 1), ShouldBeTrue)
			So(rules.calls.Load(), ShouldBeGreaterThanOrEqualTo, 1)
			rec, err := store.Get(context.Background(), 2)
			So(err, ShouldBeNil)
			So(rec.UpdatedAt.Equal(now.Add(-time.Hour)), ShouldBeTrue)
		})
	})
}
