package app_test

import (
	"context"
	"testing"
	"time"

	"github.com/lucylow/dotrep-sub001/internal/app"
	"github.com/lucylow/dotrep-sub001/internal/config"
	"github.com/lucylow/dotrep-sub001/internal/domain/graph"
	. "github.com/smartystreets/goconvey/convey"
)

// endorsementScenario: A endorses B strongly and verified, C follows B
// weakly, D endorses E moderately, F interacts with nobody.
func endorsementScenario(now time.Time) ([]graph.Node, []graph.Edge) {
	nodes := []graph.Node{
		{ID: "A"}, {ID: "B"}, {ID: "C"}, {ID: "D"}, {ID: "E"}, {ID: "F"},
	}
	edges := []graph.Edge{
		{Source: "A", Target: "B", Type: graph.Endorse, Weight: 0.9, Timestamp: now, Meta: graph.EdgeMeta{Verified: true}},
		{Source: "C", Target: "B", Type: graph.Follow, Weight: 0.2, Timestamp: now},
		{Source: "D", Target: "E", Type: graph.Endorse, Weight: 0.5, Timestamp: now},
	}
	return nodes, edges
}

func TestEngineConstruction(t *testing.T) {
	Convey("Given engine construction", t, func() {
		Convey("When defaults are used", func() {
			e, err := app.New()
			So(err, ShouldBeNil)
			So(e, ShouldNotBeNil)
		})

		Convey("When the configuration is invalid", func() {
			cfg := config.New()
			cfg.DampingFactor = 1.5
			_, err := app.New(app.WithConfig(cfg))
			So(err, ShouldWrap, config.ErrInvalidConfig)
		})
	})
}

func TestEngineRun(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	ctx := context.Background()

	Convey("Given an engine with default configuration", t, func() {
		e, err := app.New(app.WithNow(now))
		So(err, ShouldBeNil)

		nodes, edges := endorsementScenario(now)

		Convey("When the scenario runs", func() {
			run, err := e.Run(ctx, nodes, edges)
			So(err, ShouldBeNil)

			Convey("Then every node receives a score", func() {
				So(run.RunID, ShouldNotBeEmpty)
				So(run.Scores, ShouldHaveLength, 6)
				So(run.PageRank.Converged, ShouldBeTrue)
			})

			Convey("And the well-endorsed node outranks the weakly endorsed one", func() {
				So(run.Scores["B"].FinalScore, ShouldBeGreaterThan, run.Scores["E"].FinalScore)
				So(run.Scores["E"].FinalScore, ShouldBeGreaterThan, run.Scores["F"].FinalScore)
				So(run.Scores["B"].Percentile, ShouldBeGreaterThan, run.Scores["E"].Percentile)
			})

			Convey("And every enabled stage reports its output", func() {
				So(run.Communities, ShouldHaveLength, 6)
				So(run.SybilProbabilities, ShouldHaveLength, 6)
				So(run.DeceptionProbabilities, ShouldHaveLength, 3)
				So(run.FairnessMetrics, ShouldNotBeNil)
			})

			Convey("And no honest edge was reweighted", func() {
				So(run.ReweightedEdges, ShouldEqual, 0)
			})

			Convey("And stage timings cover the pipeline", func() {
				So(run.StageTimings, ShouldContainKey, "snapshot")
				So(run.StageTimings, ShouldContainKey, "pagerank")
				So(run.StageTimings, ShouldContainKey, "hybrid")
			})

			Convey("And audits stay off by default", func() {
				So(run.Audits, ShouldBeNil)
			})
		})

		Convey("When the same inputs run twice", func() {
			first, err := e.Run(ctx, nodes, edges)
			So(err, ShouldBeNil)
			second, err := e.Run(ctx, nodes, edges)
			So(err, ShouldBeNil)

			Convey("Then scores are bit-identical across runs", func() {
				for id, sc := range first.Scores {
					So(second.Scores[id].FinalScore, ShouldEqual, sc.FinalScore)
					So(second.Scores[id].Percentile, ShouldEqual, sc.Percentile)
				}
			})

			Convey("But each run keeps its own identity", func() {
				So(second.RunID, ShouldNotEqual, first.RunID)
			})
		})

		Convey("When a node id is duplicated", func() {
			dup := append(nodes, graph.Node{ID: "A"})
			_, err := e.Run(ctx, dup, edges)
			So(err, ShouldWrap, graph.ErrDuplicateNode)
		})
	})

	Convey("Given an engine with audits enabled", t, func() {
		cfg := config.New()
		cfg.EnableAudit = true
		cfg.AuditTopNodes = 2
		cfg.AuditWorkers = 2

		e, err := app.New(app.WithConfig(cfg), app.WithNow(now))
		So(err, ShouldBeNil)

		nodes, edges := endorsementScenario(now)

		Convey("When the scenario runs", func() {
			run, err := e.Run(ctx, nodes, edges)
			So(err, ShouldBeNil)

			Convey("Then the top nodes carry sensitivity results", func() {
				So(run.Audits, ShouldHaveLength, 2)
				So(run.PartialAudits, ShouldBeFalse)
				So(run.Audits, ShouldContainKey, "B")
				So(run.Audits["B"].TopInfluencingEdges, ShouldHaveLength, 2)
			})

			Convey("And no incoming edge shows a negative contribution", func() {
				for _, impact := range run.Audits["B"].TopInfluencingEdges {
					So(impact.Delta, ShouldBeGreaterThanOrEqualTo, 0)
				}
			})
		})
	})

	Convey("Given an engine with optional stages disabled", t, func() {
		cfg := config.New()
		cfg.EnableCommunities = false
		cfg.EnableSybil = false
		cfg.EnableDeception = false
		cfg.EnableFairness = false

		e, err := app.New(app.WithConfig(cfg), app.WithNow(now))
		So(err, ShouldBeNil)

		nodes, edges := endorsementScenario(now)

		Convey("When the scenario runs", func() {
			run, err := e.Run(ctx, nodes, edges)
			So(err, ShouldBeNil)

			Convey("Then only the core stages report", func() {
				So(run.Scores, ShouldHaveLength, 6)
				So(run.Communities, ShouldBeNil)
				So(run.SybilProbabilities, ShouldBeNil)
				So(run.DeceptionProbabilities, ShouldBeNil)
				So(run.FairnessMetrics, ShouldBeNil)
			})
		})
	})
}
