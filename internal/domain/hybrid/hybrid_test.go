package hybrid_test

import (
	"context"
	"strings"
	"testing"

	"github.com/lucylow/dotrep-sub001/internal/domain/graph"
	"github.com/lucylow/dotrep-sub001/internal/domain/hybrid"
	. "github.com/smartystreets/goconvey/convey"
)

func TestScorerOptions(t *testing.T) {
	Convey("Given scorer construction", t, func() {
		Convey("When defaults are used", func() {
			s, err := hybrid.New()
			So(err, ShouldBeNil)
			So(s, ShouldNotBeNil)
		})

		Convey("When a weight is negative", func() {
			_, err := hybrid.New(hybrid.WithWeights(hybrid.Weights{Graph: -0.5, Quality: 1}))
			So(err, ShouldWrap, hybrid.ErrInvalidWeights)
		})

		Convey("When all weights are zero", func() {
			_, err := hybrid.New(hybrid.WithWeights(hybrid.Weights{}))
			So(err, ShouldWrap, hybrid.ErrInvalidWeights)
		})
	})
}

func TestComputeSignals(t *testing.T) {
	ctx := context.Background()

	Convey("Given a scorer with equal weights", t, func() {
		s, err := hybrid.New(hybrid.WithWeights(hybrid.Weights{Graph: 1, Quality: 1, Stake: 1, Payment: 1}))
		So(err, ShouldBeNil)

		nodes := []graph.Node{
			{ID: "whale", Meta: graph.NodeMeta{ContentQuality: 100, Stake: 1000, PaymentHistory: 500}},
			{ID: "mid", Meta: graph.NodeMeta{ContentQuality: 50, Stake: 100, PaymentHistory: 50}},
			{ID: "fresh", Meta: graph.NodeMeta{}},
		}
		pr := map[string]float64{"whale": 1.0, "mid": 0.4, "fresh": 0.0}

		Convey("When scores are computed", func() {
			out, err := s.Compute(ctx, pr, nodes)
			So(err, ShouldBeNil)
			So(out, ShouldHaveLength, 3)

			Convey("Then each signal maps onto the shared scale", func() {
				So(out["whale"].GraphScore, ShouldEqual, 1000.0)
				So(out["whale"].QualityScore, ShouldEqual, 1000.0)
				So(out["whale"].StakeScore, ShouldEqual, 1000.0) // run maximum
				So(out["whale"].PaymentScore, ShouldEqual, 1000.0)

				So(out["mid"].GraphScore, ShouldAlmostEqual, 400.0, 1e-9)
				So(out["mid"].QualityScore, ShouldAlmostEqual, 500.0, 1e-9)
				So(out["mid"].StakeScore, ShouldBeBetween, 0.0, 1000.0)

				So(out["fresh"].StakeScore, ShouldEqual, 0.0)
				So(out["fresh"].PaymentScore, ShouldEqual, 0.0)
			})

			Convey("And normalized weights average the signals", func() {
				w := out["whale"]
				So(w.FinalScore, ShouldAlmostEqual, 1000.0, 1e-9)

				m := out["mid"]
				expected := (m.GraphScore + m.QualityScore + m.StakeScore + m.PaymentScore) / 4
				So(m.FinalScore, ShouldAlmostEqual, expected, 1e-9)
			})

			Convey("And percentiles follow the final ordering", func() {
				So(out["whale"].Percentile, ShouldAlmostEqual, 100.0*2.0/3.0, 1e-9)
				So(out["fresh"].Percentile, ShouldEqual, 0.0)
			})

			Convey("And the explanation renders one line per signal in order", func() {
				exp := out["mid"].Explanation
				So(exp, ShouldHaveLength, 4)
				So(strings.HasPrefix(exp[0], "graph centrality"), ShouldBeTrue)
				So(strings.HasPrefix(exp[1], "content quality"), ShouldBeTrue)
				So(strings.HasPrefix(exp[2], "stake"), ShouldBeTrue)
				So(strings.HasPrefix(exp[3], "payments"), ShouldBeTrue)
			})
		})

		Convey("When quality exceeds its declared range", func() {
			wild := []graph.Node{{ID: "a", Meta: graph.NodeMeta{ContentQuality: 250}}}
			out, err := s.Compute(ctx, map[string]float64{"a": 0.5}, wild)
			So(err, ShouldBeNil)

			Convey("Then it clamps at the scale ceiling", func() {
				So(out["a"].QualityScore, ShouldEqual, 1000.0)
			})
		})

		Convey("When the node list is empty", func() {
			out, err := s.Compute(ctx, nil, nil)
			So(err, ShouldBeNil)
			So(out, ShouldBeEmpty)
		})
	})

	Convey("Given the default weight profile", t, func() {
		s, err := hybrid.New()
		So(err, ShouldBeNil)

		Convey("When a node dominates the graph signal only", func() {
			nodes := []graph.Node{
				{ID: "connected", Meta: graph.NodeMeta{ContentQuality: 10}},
				{ID: "wealthy", Meta: graph.NodeMeta{ContentQuality: 10, Stake: 5000, PaymentHistory: 5000}},
			}
			out, err := s.Compute(ctx, map[string]float64{"connected": 1.0, "wealthy": 0.0}, nodes)
			So(err, ShouldBeNil)

			Convey("Then graph centrality outweighs wealth", func() {
				So(out["connected"].FinalScore, ShouldBeGreaterThan, out["wealthy"].FinalScore)
			})
		})
	})
}
