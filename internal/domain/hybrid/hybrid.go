// Package hybrid combines graph centrality with quality, stake, and payment
// signals into a final explainable reputation score.
package hybrid

import (
	"context"
	"fmt"
	"math"

	"github.com/lucylow/dotrep-sub001/internal/adapters/ranking"
	"github.com/lucylow/dotrep-sub001/internal/domain/graph"
	"github.com/lucylow/dotrep-sub001/pkg/logger"
)

// signalScale is the range every individual signal is normalized into.
const signalScale = 1000.0

// Weights blends the four signals. They must be non-negative and sum to a
// positive value; the scorer normalizes them to sum to exactly 1.
type Weights struct {
	Graph   float64
	Quality float64
	Stake   float64
	Payment float64
}

// DefaultWeights returns the production blend.
func DefaultWeights() Weights {
	return Weights{Graph: 0.5, Quality: 0.25, Stake: 0.15, Payment: 0.1}
}

// Score is the final reputation output for one node. Never mutated after
// being returned.
type Score struct {
	NodeID string

	// Each signal normalized to 0-1000.
	GraphScore   float64
	QualityScore float64
	StakeScore   float64
	PaymentScore float64

	// FinalScore is the weighted combination, also 0-1000.
	FinalScore float64

	// Percentile is the node's standing among all scored nodes this run.
	Percentile float64

	// Explanation lists each signal's contribution in the fixed order
	// graph, quality, stake, payment.
	Explanation []string
}

// Scorer computes hybrid reputation scores.
type Scorer struct {
	weights Weights
	log     logger.Logger
}

// Option applies a configuration option to the Scorer.
type Option func(*Scorer)

// WithWeights overrides the default signal weights.
func WithWeights(w Weights) Option {
	return func(s *Scorer) { s.weights = w }
}

// WithLogger sets the scorer logger.
func WithLogger(log logger.Logger) Option {
	return func(s *Scorer) {
		if log != nil {
			s.log = log
		}
	}
}

// New constructs a Scorer, rejecting weights that would produce degenerate
// output. Valid weights are normalized to sum to exactly 1.
func New(opts ...Option) (*Scorer, error) {
	s := &Scorer{
		weights: DefaultWeights(),
		log:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	w := s.weights
	if w.Graph < 0 || w.Quality < 0 || w.Stake < 0 || w.Payment < 0 {
		return nil, fmt.Errorf("%w: weights must be non-negative, got %+v", ErrInvalidWeights, w)
	}
	sum := w.Graph + w.Quality + w.Stake + w.Payment
	if sum <= 0 {
		return nil, fmt.Errorf("%w: weights must sum to a positive value, got %.4f", ErrInvalidWeights, sum)
	}
	s.weights = Weights{
		Graph:   w.Graph / sum,
		Quality: w.Quality / sum,
		Stake:   w.Stake / sum,
		Payment: w.Payment / sum,
	}
	return s, nil
}

// Compute builds a hybrid score for every node. pagerankScores must be the
// rescaled [0,1] map from the centrality pass; nodes carry the off-graph
// signals.
//
// Quality maps linearly from its 0-100 input; stake and payment are
// log-compressed against the run's maximum so a single whale cannot
// monopolize the signal range.
func (s *Scorer) Compute(ctx context.Context, pagerankScores map[string]float64, nodes []graph.Node) (map[string]Score, error) {
	out := make(map[string]Score, len(nodes))
	if len(nodes) == 0 {
		return out, nil
	}

	maxStake, maxPayment := 0.0, 0.0
	for _, n := range nodes {
		if n.Meta.Stake > maxStake {
			maxStake = n.Meta.Stake
		}
		if n.Meta.PaymentHistory > maxPayment {
			maxPayment = n.Meta.PaymentHistory
		}
	}

	finals := make(map[string]float64, len(nodes))
	for _, n := range nodes {
		sc := Score{
			NodeID:       n.ID,
			GraphScore:   clamp01(pagerankScores[n.ID]) * signalScale,
			QualityScore: clampRange(n.Meta.ContentQuality, 0, 100) / 100 * signalScale,
			StakeScore:   logCompress(n.Meta.Stake, maxStake) * signalScale,
			PaymentScore: logCompress(n.Meta.PaymentHistory, maxPayment) * signalScale,
		}
		sc.FinalScore = sc.GraphScore*s.weights.Graph +
			sc.QualityScore*s.weights.Quality +
			sc.StakeScore*s.weights.Stake +
			sc.PaymentScore*s.weights.Payment
		sc.Explanation = s.explain(sc)

		out[n.ID] = sc
		finals[n.ID] = sc.FinalScore
	}

	index := ranking.NewIndex(finals)
	for id, sc := range out {
		pct, err := index.Percentile(id)
		if err != nil {
			return nil, fmt.Errorf("ranking %s: %w", id, err)
		}
		sc.Percentile = pct
		out[id] = sc
	}

	s.log.Debug(ctx, "computed hybrid scores", logger.Int("nodes", len(out)))
	return out, nil
}

// explain renders each signal's contribution in the fixed signal order.
func (s *Scorer) explain(sc Score) []string {
	return []string{
		fmt.Sprintf("graph centrality %.1f x weight %.2f = %.1f", sc.GraphScore, s.weights.Graph, sc.GraphScore*s.weights.Graph),
		fmt.Sprintf("content quality %.1f x weight %.2f = %.1f", sc.QualityScore, s.weights.Quality, sc.QualityScore*s.weights.Quality),
		fmt.Sprintf("stake %.1f x weight %.2f = %.1f", sc.StakeScore, s.weights.Stake, sc.StakeScore*s.weights.Stake),
		fmt.Sprintf("payments %.1f x weight %.2f = %.1f", sc.PaymentScore, s.weights.Payment, sc.PaymentScore*s.weights.Payment),
	}
}

// logCompress maps v into [0,1] on a log scale anchored at the run maximum.
func logCompress(v, max float64) float64 {
	if v <= 0 || max <= 0 {
		return 0
	}
	return math.Log1p(v) / math.Log1p(max)
}

func clamp01(x float64) float64 {
	return clampRange(x, 0, 1)
}

func clampRange(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
