package pagerank_test

import (
	"context"
	"testing"
	"time"

	"github.com/lucylow/dotrep-sub001/internal/domain/graph"
	"github.com/lucylow/dotrep-sub001/internal/domain/pagerank"
	"github.com/lucylow/dotrep-sub001/internal/testgraphs"
	. "github.com/smartystreets/goconvey/convey"
)

func TestRankerOptions(t *testing.T) {
	Convey("Given ranker construction", t, func() {
		Convey("When defaults are used", func() {
			r, err := pagerank.New()
			So(err, ShouldBeNil)
			So(r, ShouldNotBeNil)
		})

		Convey("When the damping factor is out of range", func() {
			_, err := pagerank.New(pagerank.WithDamping(1.0))
			So(err, ShouldWrap, pagerank.ErrInvalidOption)
		})

		Convey("When the tolerance is not positive", func() {
			_, err := pagerank.New(pagerank.WithTolerance(0))
			So(err, ShouldWrap, pagerank.ErrInvalidOption)
		})

		Convey("When the iteration budget is below one", func() {
			_, err := pagerank.New(pagerank.WithMaxIterations(0))
			So(err, ShouldWrap, pagerank.ErrInvalidOption)
		})

		Convey("When the recency weight is out of range", func() {
			_, err := pagerank.New(pagerank.WithRecencyWeight(1.5))
			So(err, ShouldWrap, pagerank.ErrInvalidOption)
		})

		Convey("When the payment log base is not above one", func() {
			_, err := pagerank.New(pagerank.WithPaymentBoost(1.0, 2.0))
			So(err, ShouldWrap, pagerank.ErrInvalidOption)
		})

		Convey("When the activity boost is not positive", func() {
			_, err := pagerank.New(pagerank.WithActivityBoost(0, 24*time.Hour))
			So(err, ShouldWrap, pagerank.ErrInvalidOption)
		})

		Convey("When the activity window is negative", func() {
			_, err := pagerank.New(pagerank.WithActivityBoost(1.1, -time.Hour))
			So(err, ShouldWrap, pagerank.ErrInvalidOption)
		})
	})
}

func TestEffectiveWeight(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	build := func(edges []graph.Edge) *graph.Snapshot {
		nodes := []graph.Node{{ID: "a"}, {ID: "b"}}
		s, err := graph.NewSnapshot(context.Background(), nodes, edges, graph.WithNow(now))
		So(err, ShouldBeNil)
		return s
	}

	Convey("Given a ranker with defaults", t, func() {
		r, err := pagerank.New()
		So(err, ShouldBeNil)

		Convey("When an edge is fresh", func() {
			s := build([]graph.Edge{{Source: "a", Target: "b", Weight: 0.8, Timestamp: now}})

			Convey("Then no decay applies", func() {
				So(r.EffectiveWeight(s, 0), ShouldAlmostEqual, 0.8, 1e-12)
			})
		})

		Convey("When an edge is two years old", func() {
			old := now.Add(-2 * 365 * 24 * time.Hour)
			s := build([]graph.Edge{
				{Source: "a", Target: "b", Weight: 0.8, Timestamp: now},
				{Source: "a", Target: "b", Weight: 0.8, Timestamp: old},
			})

			Convey("Then it weighs less than a fresh one but keeps the recency floor", func() {
				fresh := r.EffectiveWeight(s, 0)
				aged := r.EffectiveWeight(s, 1)
				So(aged, ShouldBeLessThan, fresh)
				So(aged, ShouldBeGreaterThan, 0.8*0.3) // recency weight floor
			})
		})

		Convey("When an edge is verified and stake backed", func() {
			s := build([]graph.Edge{
				{Source: "a", Target: "b", Weight: 0.5, Timestamp: now},
				{Source: "a", Target: "b", Weight: 0.5, Timestamp: now, Meta: graph.EdgeMeta{Verified: true, StakeBacked: true}},
			})

			Convey("Then both multipliers apply", func() {
				plain := r.EffectiveWeight(s, 0)
				boosted := r.EffectiveWeight(s, 1)
				So(boosted, ShouldAlmostEqual, plain*1.2*1.5, 1e-12)
			})
		})

		Convey("When an edge carries a huge payment", func() {
			s := build([]graph.Edge{
				{Source: "a", Target: "b", Weight: 0.5, Timestamp: now},
				{Source: "a", Target: "b", Weight: 0.5, Timestamp: now, Meta: graph.EdgeMeta{PaymentAmount: 1e9}},
			})

			Convey("Then the payment multiplier saturates at the cap", func() {
				plain := r.EffectiveWeight(s, 0)
				paid := r.EffectiveWeight(s, 1)
				So(paid, ShouldAlmostEqual, plain*2.0, 1e-12)
			})
		})

		Convey("When the source was recently active", func() {
			nodes := []graph.Node{
				{ID: "lively", Meta: graph.NodeMeta{ActivityRecency: now.Add(-24 * time.Hour)}},
				{ID: "dormant", Meta: graph.NodeMeta{ActivityRecency: now.Add(-90 * 24 * time.Hour)}},
				{ID: "b"},
			}
			edges := []graph.Edge{
				{Source: "lively", Target: "b", Weight: 0.5, Timestamp: now},
				{Source: "dormant", Target: "b", Weight: 0.5, Timestamp: now},
				{Source: "b", Target: "lively", Weight: 0.5, Timestamp: now},
			}
			s, err := graph.NewSnapshot(context.Background(), nodes, edges, graph.WithNow(now))
			So(err, ShouldBeNil)

			Convey("Then its edges earn the activity boost", func() {
				So(r.EffectiveWeight(s, 0), ShouldAlmostEqual, 0.5*1.1, 1e-12)
			})

			Convey("And sources outside the window stay neutral", func() {
				So(r.EffectiveWeight(s, 1), ShouldAlmostEqual, 0.5, 1e-12)
			})

			Convey("And an unknown activity time stays neutral", func() {
				So(r.EffectiveWeight(s, 2), ShouldAlmostEqual, 0.5, 1e-12)
			})
		})

		Convey("When an edge has a zero timestamp", func() {
			s := build([]graph.Edge{{Source: "a", Target: "b", Weight: 0.8}})

			Convey("Then it is treated as fresh", func() {
				So(r.EffectiveWeight(s, 0), ShouldAlmostEqual, 0.8, 1e-12)
			})
		})
	})
}

func TestCompute(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	ctx := context.Background()

	Convey("Given a ranker with defaults", t, func() {
		r, err := pagerank.New()
		So(err, ShouldBeNil)

		Convey("When the graph is empty", func() {
			s, err := graph.NewSnapshot(ctx, nil, nil)
			So(err, ShouldBeNil)
			res, err := r.Compute(ctx, s)

			Convey("Then the result is empty and converged", func() {
				So(err, ShouldBeNil)
				So(res.Scores, ShouldBeEmpty)
				So(res.Converged, ShouldBeTrue)
			})
		})

		Convey("When the graph is a symmetric cycle", func() {
			nodes, edges := testgraphs.Cycle(4, now)
			s, err := graph.NewSnapshot(ctx, nodes, edges, graph.WithNow(now))
			So(err, ShouldBeNil)
			res, err := r.Compute(ctx, s)
			So(err, ShouldBeNil)

			Convey("Then every node rescales to the same score", func() {
				So(res.Converged, ShouldBeTrue)
				for _, v := range res.Scores {
					So(v, ShouldEqual, res.Scores["node-000"])
				}
			})
		})

		Convey("When the graph is a star", func() {
			nodes, edges, hub := testgraphs.Star(5, 0.8, now)
			s, err := graph.NewSnapshot(ctx, nodes, edges, graph.WithNow(now))
			So(err, ShouldBeNil)
			res, err := r.Compute(ctx, s)
			So(err, ShouldBeNil)

			Convey("Then the hub takes the top of the rescaled range", func() {
				So(res.Scores[hub], ShouldEqual, 1.0)
			})

			Convey("And the zero in-degree spokes sit at the floor", func() {
				So(res.Scores["spoke-00"], ShouldEqual, 0.0)
			})
		})

		Convey("When scoring an organic graph", func() {
			nodes, edges := testgraphs.Organic(60, 7, now)
			s, err := graph.NewSnapshot(ctx, nodes, edges, graph.WithNow(now))
			So(err, ShouldBeNil)
			res, err := r.Compute(ctx, s)
			So(err, ShouldBeNil)

			Convey("Then scores stay inside [0,1]", func() {
				So(res.Scores, ShouldHaveLength, 60)
				for _, v := range res.Scores {
					So(v, ShouldBeBetweenOrEqual, 0.0, 1.0)
				}
			})

			Convey("And a second run reproduces the result exactly", func() {
				again, err := r.Compute(ctx, s)
				So(err, ShouldBeNil)
				So(again.Iterations, ShouldEqual, res.Iterations)
				for id, v := range res.Scores {
					So(again.Scores[id], ShouldEqual, v)
				}
			})
		})

		Convey("When the iteration budget is too small to converge", func() {
			tight, err := pagerank.New(
				pagerank.WithMaxIterations(1),
				pagerank.WithTolerance(1e-15),
			)
			So(err, ShouldBeNil)

			nodes, edges := testgraphs.Organic(40, 3, now)
			s, err := graph.NewSnapshot(ctx, nodes, edges, graph.WithNow(now))
			So(err, ShouldBeNil)
			res, err := tight.Compute(ctx, s)

			Convey("Then the last iterate is returned without error", func() {
				So(err, ShouldBeNil)
				So(res.Converged, ShouldBeFalse)
				So(res.Iterations, ShouldEqual, 1)
				So(res.Scores, ShouldHaveLength, 40)
			})
		})
	})
}
