// Package deception detects bad-mouthing and self-promotion edges using
// community context and down-weights them for a single PageRank re-run.
package deception

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/stat"

	"github.com/lucylow/dotrep-sub001/internal/domain/graph"
	"github.com/lucylow/dotrep-sub001/pkg/logger"
	"github.com/lucylow/dotrep-sub001/pkg/metrics"
)

// Default filter configuration constants.
const (
	defaultThreshold  = 0.5
	defaultMaxPenalty = 0.8

	// highStrength marks an endorsement as strong for the self-promotion
	// heuristic.
	highStrength = 0.7

	// minRepeat is the minimum number of strong endorsements before a
	// source can be considered a self-promoter.
	minRepeat = 3
)

// Filter flags likely deceptive edges and reweights them.
type Filter struct {
	threshold  float64 // flag edges with probability above this
	maxPenalty float64 // maximum fraction of weight removed

	log logger.Logger
}

// Option applies a configuration option to the Filter.
type Option func(*Filter)

// WithThreshold sets the deception probability above which an edge is
// reweighted.
func WithThreshold(t float64) Option {
	return func(f *Filter) { f.threshold = t }
}

// WithMaxPenalty sets the maximum weight reduction fraction applied at
// probability 1.
func WithMaxPenalty(p float64) Option {
	return func(f *Filter) { f.maxPenalty = p }
}

// WithLogger sets the filter logger.
func WithLogger(log logger.Logger) Option {
	return func(f *Filter) {
		if log != nil {
			f.log = log
		}
	}
}

// New constructs a Filter, rejecting out-of-range thresholds.
func New(opts ...Option) (*Filter, error) {
	f := &Filter{
		threshold:  defaultThreshold,
		maxPenalty: defaultMaxPenalty,
		log:        logger.Nop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.threshold < 0 || f.threshold > 1 {
		return nil, fmt.Errorf("%w: threshold %.4f must be in [0,1]", ErrInvalidOption, f.threshold)
	}
	if f.maxPenalty < 0 || f.maxPenalty > 1 {
		return nil, fmt.Errorf("%w: max penalty %.4f must be in [0,1]", ErrInvalidOption, f.maxPenalty)
	}
	return f, nil
}

// Probabilities scores every edge with a deception probability in [0,1],
// index-aligned with the snapshot's edge slice. communities must be the
// index-aligned partition from the community detector.
func (f *Filter) Probabilities(ctx context.Context, s *graph.Snapshot, communities []int) []float64 {
	probs := make([]float64, s.NumEdges())
	if s.NumEdges() == 0 {
		return probs
	}

	badMouth := f.badMouthing(s, communities)
	selfPromo := f.selfPromotion(s, communities)

	flagged := 0
	for i := range probs {
		probs[i] = badMouth[i]
		if selfPromo[i] > probs[i] {
			probs[i] = selfPromo[i]
		}
		if probs[i] > f.threshold {
			flagged++
			metrics.RecordDeceptiveEdgeFlagged()
		}
	}
	if flagged > 0 {
		f.log.Info(ctx, "flagged deceptive edges",
			logger.Int("flagged", flagged),
			logger.Int("edges", s.NumEdges()),
		)
	}
	return probs
}

// ByKey re-keys index-aligned probabilities by stable edge identity for
// result reporting.
func (f *Filter) ByKey(s *graph.Snapshot, probs []float64) map[graph.Key]float64 {
	out := make(map[graph.Key]float64, len(probs))
	for i, p := range probs {
		out[s.EdgeKey(i)] = p
	}
	return out
}

// Apply returns a copy of the snapshot's edges with flagged edges
// down-weighted by weight *= 1 - prob*maxPenalty, plus the number of edges
// changed. Exactly one pass; the pipeline re-runs PageRank once if any edge
// changed.
func (f *Filter) Apply(s *graph.Snapshot, probs []float64) ([]graph.Edge, int) {
	edges := make([]graph.Edge, s.NumEdges())
	copy(edges, s.Edges())

	changed := 0
	for i := range edges {
		if probs[i] <= f.threshold {
			continue
		}
		edges[i].Weight *= 1 - probs[i]*f.maxPenalty
		changed++
		metrics.RecordEdgeReweighted()
	}
	return edges, changed
}

// badMouthing flags edges whose weight diverges sharply below the consensus
// of incoming weights in the target's community.
func (f *Filter) badMouthing(s *graph.Snapshot, communities []int) []float64 {
	probs := make([]float64, s.NumEdges())

	// Collect incoming edge weights per community.
	byCommunity := make(map[int][]float64)
	for i := 0; i < s.NumEdges(); i++ {
		tgt := s.NodeIndex(s.Edge(i).Target)
		c := communities[tgt]
		byCommunity[c] = append(byCommunity[c], s.Edge(i).Weight)
	}

	type consensus struct {
		mean float64
		sd   float64
	}
	stats := make(map[int]consensus, len(byCommunity))
	for c, ws := range byCommunity {
		if len(ws) < 2 {
			continue
		}
		stats[c] = consensus{mean: stat.Mean(ws, nil), sd: stat.StdDev(ws, nil)}
	}

	for i := 0; i < s.NumEdges(); i++ {
		e := s.Edge(i)
		c := communities[s.NodeIndex(e.Target)]
		st, ok := stats[c]
		if !ok || st.sd <= 0 {
			continue
		}
		z := (st.mean - e.Weight) / st.sd
		if z <= 1 {
			continue
		}
		// One standard deviation below consensus maps to 0, three or
		// more saturate at 1.
		probs[i] = clamp01((z - 1) / 2)
	}
	return probs
}

// selfPromotion flags strong endorsements a source concentrates on a narrow
// target set inside its own community.
func (f *Filter) selfPromotion(s *graph.Snapshot, communities []int) []float64 {
	probs := make([]float64, s.NumEdges())

	for v := 0; v < s.NumNodes(); v++ {
		var strong []int
		for _, ei := range s.OutEdges(v) {
			if s.Edge(ei).Weight >= highStrength {
				strong = append(strong, ei)
			}
		}
		if len(strong) < minRepeat {
			continue
		}

		targets := make(map[int]struct{}, len(strong))
		sameCommunity := 0
		for _, ei := range strong {
			tgt := s.NodeIndex(s.Edge(ei).Target)
			targets[tgt] = struct{}{}
			if communities[tgt] == communities[v] {
				sameCommunity++
			}
		}

		// All strong endorsements on one target gives concentration 1;
		// a spread across as many targets as edges gives 0.
		concentration := 1 - float64(len(targets)-1)/float64(len(strong))
		proximity := float64(sameCommunity) / float64(len(strong))
		p := clamp01(concentration * proximity)
		if p == 0 {
			continue
		}

		for _, ei := range strong {
			tgt := s.NodeIndex(s.Edge(ei).Target)
			if communities[tgt] != communities[v] {
				continue
			}
			if p > probs[ei] {
				probs[ei] = p
			}
		}
	}
	return probs
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
