package grouping_test

import (
	"math/rand"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/okian/killpoints/internal/domain/grouping"
	"github.com/okian/killpoints/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

var t0 = time.Date(2024, 3, 1, 20, 0, 0, 0, time.UTC)

func ev(id int64, offset time.Duration, score float64, window time.Duration) model.ScoredEvent {
	return model.ScoredEvent{KillID: id, Time: t0.Add(offset), Score: score, Window: window}
}

func TestCollate(t *testing.T) {
	Convey("Given kills close together and one far apart", t, func() {
		events := []model.ScoredEvent{
			ev(3, 10*time.Minute, 5, 2*time.Minute),
			ev(1, 0, 10, 2*time.Minute),
			ev(2, time.Minute, 20, 2*time.Minute),
		}

		chains := grouping.Collate(events)

		Convey("Then the first two form a chain with a multiplied score", func() {
			want := []grouping.Chain{
				{
					RepresentativeID: 1,
					Members:          []grouping.Member{{KillID: 1, Score: 10}, {KillID: 2, Score: 20}},
					Score:            10*1 + 20*1.5,
				},
				{
					RepresentativeID: 3,
					Members:          []grouping.Member{{KillID: 3, Score: 5}},
					Score:            5,
				},
			}
			if diff := cmp.Diff(want, chains); diff != "" {
				t.Errorf("Collate() mismatch (-want +got):\n%s", diff)
			}
			So(len(chains), ShouldEqual, 2)
		})
	})

	Convey("Given kills with zero scores", t, func() {
		events := []model.ScoredEvent{
			ev(1, 0, 10, time.Minute),
			ev(2, 30*time.Second, 0, time.Minute),
			ev(3, 50*time.Second, -1, time.Minute),
		}

		Convey("Then they never join or open a chain", func() {
			chains := grouping.Collate(events)
			So(len(chains), ShouldEqual, 1)
			So(len(chains[0].Members), ShouldEqual, 1)
		})
	})

	Convey("Given a later kill with a short window", t, func() {
		events := []model.ScoredEvent{
			ev(1, 0, 10, 10*time.Minute),
			ev(2, 100*time.Second, 10, time.Minute),
		}

		Convey("Then the new kill's own window decides the merge", func() {
			So(len(grouping.Collate(events)), ShouldEqual, 2)
		})
	})

	Convey("Given a kill exactly one window after the chain", t, func() {
		events := []model.ScoredEvent{
			ev(1, 0, 10, time.Minute),
			ev(2, time.Minute, 10, time.Minute),
		}

		Convey("Then the boundary is exclusive and a new chain starts", func() {
			So(len(grouping.Collate(events)), ShouldEqual, 2)
		})
	})

	Convey("Given kills at the same instant", t, func() {
		events := []model.ScoredEvent{
			ev(9, 0, 1, time.Second),
			ev(4, 0, 1, time.Second),
		}

		Convey("Then they share a chain ordered by kill id", func() {
			chains := grouping.Collate(events)
			So(len(chains), ShouldEqual, 1)
			So(chains[0].RepresentativeID, ShouldEqual, 4)
		})
	})

	Convey("Given a chain that keeps extending", t, func() {
		events := []model.ScoredEvent{
			ev(1, 0, 1, 2*time.Minute),
			ev(2, 90*time.Second, 1, 2*time.Minute),
			ev(3, 180*time.Second, 1, 2*time.Minute),
		}

		Convey("Then its reach follows the latest member", func() {
			chains := grouping.Collate(events)
			So(len(chains), ShouldEqual, 1)
			So(chains[0].Score, ShouldAlmostEqual, 1+1.5+1.75, 1e-12)
		})
	})

	Convey("Given a custom multiplier", t, func() {
		events := []model.ScoredEvent{ev(1, 0, 10, time.Minute), ev(2, time.Second, 10, time.Minute)}

		Convey("Then the second member uses M - 1/M", func() {
			chains := grouping.Collate(events, grouping.WithMultiplier(3))
			So(chains[0].Score, ShouldAlmostEqual, 10+10*(3-1.0/3), 1e-12)
		})
	})

	Convey("Given no events", t, func() {
		Convey("Then there are no chains", func() {
			So(grouping.Collate(nil), ShouldBeEmpty)
		})
	})
}

func TestMultiplier(t *testing.T) {
	Convey("Given the default multiplier", t, func() {
		So(grouping.Multiplier(2, 0), ShouldEqual, 1)
		So(grouping.Multiplier(2, 1), ShouldEqual, 1.5)
		So(grouping.Multiplier(2, 2), ShouldEqual, 1.75)
	})
}

func TestChainProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	events := make([]model.ScoredEvent, 0, 200)
	offset := time.Duration(0)
	for i := 0; i < 200; i++ {
		offset += time.Duration(rng.Intn(400)+1) * time.Second
		events = append(events, ev(int64(i+1), offset, rng.Float64()*50+0.01, time.Duration(rng.Intn(300)+30)*time.Second))
	}
	rng.Shuffle(len(events), func(i, j int) { events[i], events[j] = events[j], events[i] })

	chains := grouping.Collate(events)

	byID := make(map[int64]model.ScoredEvent, len(events))
	for _, e := range events {
		byID[e.KillID] = e
	}

	Convey("Given randomly spaced kills with strictly increasing times", t, func() {
		Convey("Then no kill lands in a chain opened by a later kill", func() {
			for _, c := range chains {
				opened := byID[c.RepresentativeID].Time
				for _, m := range c.Members {
					So(byID[m.KillID].Time.Before(opened), ShouldBeFalse)
				}
			}
		})

		Convey("Then chains of two or more score at least their naive sum", func() {
			for _, c := range chains {
				var naive float64
				for _, m := range c.Members {
					naive += m.Score
				}
				So(c.Score, ShouldBeGreaterThanOrEqualTo, naive)
			}
		})

		Convey("Then every kill is in exactly one chain", func() {
			seen := map[int64]int{}
			for _, c := range chains {
				for _, m := range c.Members {
					seen[m.KillID]++
				}
			}
			So(len(seen), ShouldEqual, len(events))
			for _, n := range seen {
				So(n, ShouldEqual, 1)
			}
		})
	})
}
