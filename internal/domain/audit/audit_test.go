package audit_test

import (
	"context"
	"testing"
	"time"

	"github.com/lucylow/dotrep-sub001/internal/domain/audit"
	"github.com/lucylow/dotrep-sub001/internal/domain/graph"
	"github.com/lucylow/dotrep-sub001/internal/domain/pagerank"
	. "github.com/smartystreets/goconvey/convey"
)

// symmetricTarget builds a graph where node m receives two interchangeable
// endorsements while q anchors the top of the score range.
func symmetricTarget(now time.Time) ([]graph.Node, []graph.Edge) {
	nodes := []graph.Node{
		{ID: "m"}, {ID: "q"},
		{ID: "x"}, {ID: "y"}, {ID: "p"}, {ID: "r"},
	}
	edges := []graph.Edge{
		{Source: "x", Target: "m", Weight: 0.5, Timestamp: now},
		{Source: "y", Target: "m", Weight: 0.5, Timestamp: now},
		{Source: "p", Target: "q", Weight: 1.0, Timestamp: now},
		{Source: "r", Target: "q", Weight: 1.0, Timestamp: now},
	}
	return nodes, edges
}

func TestAuditorConstruction(t *testing.T) {
	Convey("Given auditor construction", t, func() {
		Convey("When the ranker is nil", func() {
			_, err := audit.New(nil)
			So(err, ShouldEqual, audit.ErrNilRanker)
		})

		Convey("When a ranker is supplied", func() {
			r, err := pagerank.New()
			So(err, ShouldBeNil)
			a, err := audit.New(r)
			So(err, ShouldBeNil)
			So(a, ShouldNotBeNil)
		})
	})
}

func TestAudit(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	ctx := context.Background()

	Convey("Given a graph with two interchangeable endorsements on one node", t, func() {
		nodes, edges := symmetricTarget(now)
		s, err := graph.NewSnapshot(ctx, nodes, edges, graph.WithNow(now))
		So(err, ShouldBeNil)

		r, err := pagerank.New()
		So(err, ShouldBeNil)
		baseline, err := r.Compute(ctx, s)
		So(err, ShouldBeNil)

		a, err := audit.New(r)
		So(err, ShouldBeNil)

		Convey("When the shared target is audited", func() {
			res, err := a.Audit(ctx, "m", s, baseline.Scores)
			So(err, ShouldBeNil)

			Convey("Then each incoming edge is measured", func() {
				So(res.NodeID, ShouldEqual, "m")
				So(res.TopInfluencingEdges, ShouldHaveLength, 2)
			})

			Convey("And removing either edge costs the node score", func() {
				So(res.TopInfluencingEdges[0].Delta, ShouldBeGreaterThan, 0)
				So(res.TopInfluencingEdges[1].Delta, ShouldBeGreaterThan, 0)
			})

			Convey("And symmetric edges tie, ordered by edge identity", func() {
				So(res.TopInfluencingEdges[0].Delta, ShouldAlmostEqual, res.TopInfluencingEdges[1].Delta, 1e-9)
				So(res.TopInfluencingEdges[0].Edge.Source, ShouldEqual, "x")
				So(res.TopInfluencingEdges[1].Edge.Source, ShouldEqual, "y")
			})

			Convey("And a second audit reproduces the result", func() {
				again, err := a.Audit(ctx, "m", s, baseline.Scores)
				So(err, ShouldBeNil)
				So(again, ShouldResemble, res)
			})
		})

		Convey("When the edge budget is tighter than the in-degree", func() {
			tight, err := audit.New(r, audit.WithTopEdges(1))
			So(err, ShouldBeNil)
			res, err := tight.Audit(ctx, "m", s, baseline.Scores)
			So(err, ShouldBeNil)

			Convey("Then only the strongest edges are kept", func() {
				So(res.TopInfluencingEdges, ShouldHaveLength, 1)
			})
		})

		Convey("When the node has no incoming edges", func() {
			res, err := a.Audit(ctx, "x", s, baseline.Scores)
			So(err, ShouldBeNil)

			Convey("Then the audit is empty but valid", func() {
				So(res.NodeID, ShouldEqual, "x")
				So(res.TopInfluencingEdges, ShouldBeEmpty)
			})
		})

		Convey("When the node is unknown", func() {
			_, err := a.Audit(ctx, "mallory", s, baseline.Scores)
			So(err, ShouldWrap, audit.ErrUnknownNode)
		})

		Convey("When the node has no baseline score", func() {
			_, err := a.Audit(ctx, "m", s, map[string]float64{})
			So(err, ShouldWrap, audit.ErrUnknownNode)
		})
	})
}

func TestAuditAll(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	ctx := context.Background()

	Convey("Given an auditor over the symmetric graph", t, func() {
		nodes, edges := symmetricTarget(now)
		s, err := graph.NewSnapshot(ctx, nodes, edges, graph.WithNow(now))
		So(err, ShouldBeNil)

		r, err := pagerank.New()
		So(err, ShouldBeNil)
		baseline, err := r.Compute(ctx, s)
		So(err, ShouldBeNil)

		a, err := audit.New(r, audit.WithWorkers(2))
		So(err, ShouldBeNil)

		Convey("When several nodes are audited together", func() {
			results, err := a.AuditAll(ctx, []string{"m", "q"}, s, baseline.Scores)
			So(err, ShouldBeNil)

			Convey("Then every requested node is present", func() {
				So(results, ShouldHaveLength, 2)
				So(results["m"].TopInfluencingEdges, ShouldHaveLength, 2)
				So(results["q"].TopInfluencingEdges, ShouldHaveLength, 2)
			})
		})

		Convey("When the context is already cancelled", func() {
			cancelled, cancel := context.WithCancel(ctx)
			cancel()

			results, err := a.AuditAll(cancelled, []string{"m", "q"}, s, baseline.Scores)

			Convey("Then the error surfaces with whatever completed", func() {
				So(err, ShouldNotBeNil)
				So(len(results), ShouldBeLessThanOrEqualTo, 2)
			})
		})

		Convey("When one node id is unknown", func() {
			results, err := a.AuditAll(ctx, []string{"m", "mallory"}, s, baseline.Scores)

			Convey("Then the failure surfaces but good audits survive", func() {
				So(err, ShouldWrap, audit.ErrUnknownNode)
				So(len(results), ShouldBeLessThanOrEqualTo, 1)
			})
		})
	})
}
