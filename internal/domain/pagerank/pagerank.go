// Package pagerank implements temporal-weighted PageRank over a graph
// snapshot. Edge weights are adjusted for recency, stake, verification, and
// payment evidence before the power iteration runs.
package pagerank

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/lucylow/dotrep-sub001/internal/domain/graph"
	"github.com/lucylow/dotrep-sub001/pkg/logger"
	"github.com/lucylow/dotrep-sub001/pkg/metrics"
)

// Default ranker configuration constants.
const (
	defaultDamping       = 0.85
	defaultMaxIterations = 100
	defaultTolerance     = 1e-6
	defaultDecayRate     = 0.5
	defaultRecencyWeight = 0.3
	defaultStakeBoost    = 1.2
	defaultVerifiedBoost = 1.5
	defaultPaymentCap    = 2.0

	defaultActivityBoost  = 1.1
	defaultActivityWindow = 30 * 24 * time.Hour

	hoursPerYear = 24 * 365.25

	// rescaleEpsilon guards the min-max division when all scores collapse
	// to the teleportation floor.
	rescaleEpsilon = 1e-12
)

// Result is the outcome of one PageRank computation.
type Result struct {
	// Scores maps node id to its min-max rescaled score in [0,1].
	Scores map[string]float64

	// Iterations is how many power iterations ran.
	Iterations int

	// Converged reports whether the L1 change dropped below tolerance
	// before the iteration budget ran out. A false value is a warning,
	// not an error; the last iterate is still returned.
	Converged bool
}

// Ranker computes temporal-weighted PageRank.
type Ranker struct {
	damping       float64
	maxIterations int
	tolerance     float64

	decayRate     float64
	recencyWeight float64
	stakeBoost    float64
	verifiedBoost float64
	paymentBase   float64 // log base for the payment boost
	paymentCap    float64

	activityBoost  float64
	activityWindow time.Duration

	log logger.Logger
}

// Option applies a configuration option to the Ranker.
type Option func(*Ranker)

// WithDamping sets the damping factor d in score' = (1-d)/N + d*Σ.
func WithDamping(d float64) Option {
	return func(r *Ranker) { r.damping = d }
}

// WithMaxIterations bounds the power iteration.
func WithMaxIterations(n int) Option {
	return func(r *Ranker) { r.maxIterations = n }
}

// WithTolerance sets the L1 convergence tolerance.
func WithTolerance(tol float64) Option {
	return func(r *Ranker) { r.tolerance = tol }
}

// WithTemporalDecay sets the exponential decay rate applied per year of
// edge age.
func WithTemporalDecay(rate float64) Option {
	return func(r *Ranker) { r.decayRate = rate }
}

// WithRecencyWeight blends decayed and undecayed weight: 1 ignores decay
// entirely, 0 applies it fully.
func WithRecencyWeight(w float64) Option {
	return func(r *Ranker) { r.recencyWeight = w }
}

// WithStakeBoost sets the multiplier for stake-backed edges.
func WithStakeBoost(b float64) Option {
	return func(r *Ranker) { r.stakeBoost = b }
}

// WithVerifiedBoost sets the multiplier for verified edges.
func WithVerifiedBoost(b float64) Option {
	return func(r *Ranker) { r.verifiedBoost = b }
}

// WithPaymentBoost sets the log base and cap for the payment multiplier
// min(cap, log_base(1+amount)).
func WithPaymentBoost(base, cap float64) Option {
	return func(r *Ranker) {
		r.paymentBase = base
		r.paymentCap = cap
	}
}

// WithActivityBoost sets the multiplier for edges whose source node was
// active within the given window of the computation time.
func WithActivityBoost(boost float64, window time.Duration) Option {
	return func(r *Ranker) {
		r.activityBoost = boost
		r.activityWindow = window
	}
}

// WithLogger sets the logger used for convergence warnings.
func WithLogger(log logger.Logger) Option {
	return func(r *Ranker) {
		if log != nil {
			r.log = log
		}
	}
}

// New constructs a Ranker, rejecting configurations that would produce
// degenerate output.
func New(opts ...Option) (*Ranker, error) {
	r := &Ranker{
		damping:       defaultDamping,
		maxIterations: defaultMaxIterations,
		tolerance:     defaultTolerance,
		decayRate:     defaultDecayRate,
		recencyWeight: defaultRecencyWeight,
		stakeBoost:    defaultStakeBoost,
		verifiedBoost: defaultVerifiedBoost,
		paymentBase:   math.E,
		paymentCap:    defaultPaymentCap,

		activityBoost:  defaultActivityBoost,
		activityWindow: defaultActivityWindow,

		log: logger.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.damping < 0 || r.damping >= 1 {
		return nil, fmt.Errorf("%w: damping %.4f must be in [0,1)", ErrInvalidOption, r.damping)
	}
	if r.tolerance <= 0 {
		return nil, fmt.Errorf("%w: tolerance %.6g must be positive", ErrInvalidOption, r.tolerance)
	}
	if r.maxIterations < 1 {
		return nil, fmt.Errorf("%w: max iterations %d must be at least 1", ErrInvalidOption, r.maxIterations)
	}
	if r.recencyWeight < 0 || r.recencyWeight > 1 {
		return nil, fmt.Errorf("%w: recency weight %.4f must be in [0,1]", ErrInvalidOption, r.recencyWeight)
	}
	if r.decayRate < 0 {
		return nil, fmt.Errorf("%w: decay rate %.4f must be non-negative", ErrInvalidOption, r.decayRate)
	}
	if r.paymentBase <= 1 {
		return nil, fmt.Errorf("%w: payment log base %.4f must be greater than 1", ErrInvalidOption, r.paymentBase)
	}
	if r.activityBoost <= 0 {
		return nil, fmt.Errorf("%w: activity boost %.4f must be positive", ErrInvalidOption, r.activityBoost)
	}
	if r.activityWindow < 0 {
		return nil, fmt.Errorf("%w: activity window %s must be non-negative", ErrInvalidOption, r.activityWindow)
	}
	return r, nil
}

// EffectiveWeight returns the adjusted weight of the edge at index, after
// temporal decay and stake/verified/payment multipliers.
func (r *Ranker) EffectiveWeight(s *graph.Snapshot, index int) float64 {
	e := s.Edge(index)

	ageYears := 0.0
	if !e.Timestamp.IsZero() {
		if h := s.Now().Sub(e.Timestamp).Hours(); h > 0 {
			ageYears = h / hoursPerYear
		}
	}
	temporal := math.Exp(-r.decayRate * ageYears)
	eff := e.Weight * (r.recencyWeight + (1-r.recencyWeight)*temporal)

	if e.Meta.StakeBacked {
		eff *= r.stakeBoost
	}
	if e.Meta.Verified {
		eff *= r.verifiedBoost
	}
	if e.Meta.PaymentAmount > 0 {
		boost := math.Log1p(e.Meta.PaymentAmount) / math.Log(r.paymentBase)
		if boost > r.paymentCap {
			boost = r.paymentCap
		}
		eff *= boost
	}

	// Endorsements from recently active sources carry extra signal; a zero
	// ActivityRecency means unknown and stays neutral.
	if active := s.Node(s.NodeIndex(e.Source)).Meta.ActivityRecency; !active.IsZero() {
		if gap := s.Now().Sub(active); gap >= 0 && gap <= r.activityWindow {
			eff *= r.activityBoost
		}
	}
	return eff
}

// Compute runs the power iteration and returns min-max rescaled scores.
//
// The rescale into [0,1] discards the stochastic sum-to-one interpretation
// on purpose: downstream scoring assumes the [0,1] range. Nodes with zero
// in-degree sit at the teleportation floor and rescale to the minimum.
func (r *Ranker) Compute(ctx context.Context, s *graph.Snapshot) (Result, error) {
	metrics.RecordPageRankRun()

	n := s.NumNodes()
	if n == 0 {
		return Result{Scores: map[string]float64{}, Converged: true}, nil
	}

	eff := make([]float64, s.NumEdges())
	outSum := make([]float64, n)
	for i := 0; i < s.NumEdges(); i++ {
		eff[i] = r.EffectiveWeight(s, i)
		outSum[s.NodeIndex(s.Edge(i).Source)] += eff[i]
	}

	scores := make([]float64, n)
	next := make([]float64, n)
	for i := range scores {
		scores[i] = 1.0 / float64(n)
	}

	teleport := (1 - r.damping) / float64(n)
	iterations := 0
	converged := false

	for it := 1; it <= r.maxIterations; it++ {
		for v := range next {
			next[v] = teleport
		}
		for i := 0; i < s.NumEdges(); i++ {
			src := s.NodeIndex(s.Edge(i).Source)
			if outSum[src] <= 0 {
				continue
			}
			tgt := s.NodeIndex(s.Edge(i).Target)
			next[tgt] += r.damping * scores[src] * eff[i] / outSum[src]
		}

		delta := 0.0
		for v := range scores {
			delta += math.Abs(next[v] - scores[v])
		}
		scores, next = next, scores
		iterations = it

		if delta < r.tolerance {
			converged = true
			break
		}
	}

	metrics.RecordPageRankIterations(iterations)
	if !converged {
		metrics.RecordPageRankNonConvergence()
		r.log.Warn(ctx, "pagerank did not converge within iteration budget",
			logger.Int("iterations", iterations),
			logger.Float64("tolerance", r.tolerance),
		)
	}

	return Result{
		Scores:     rescale(s, scores),
		Iterations: iterations,
		Converged:  converged,
	}, nil
}

// rescale maps raw stochastic scores into [0,1] via min-max normalization.
// When every node sits at the same score the spread collapses and all nodes
// map to 0, the minimum of the rescaled range.
func rescale(s *graph.Snapshot, scores []float64) map[string]float64 {
	lo, hi := scores[0], scores[0]
	for _, v := range scores[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}

	out := make(map[string]float64, len(scores))
	spread := hi - lo
	for i, v := range scores {
		if spread < rescaleEpsilon {
			out[s.Node(i).ID] = 0
			continue
		}
		out[s.Node(i).ID] = (v - lo) / spread
	}
	return out
}
