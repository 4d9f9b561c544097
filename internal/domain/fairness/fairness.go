// Package fairness post-processes centrality scores to reduce structural
// bias against under-represented groups, and reports distribution metrics.
package fairness

import (
	"context"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/lucylow/dotrep-sub001/internal/domain/graph"
	"github.com/lucylow/dotrep-sub001/pkg/logger"
)

// massEpsilon is the relative tolerance within which total score mass
// counts as preserved; renormalization is skipped inside it.
const massEpsilon = 1e-9

// Metrics summarizes the score distribution across node groups.
type Metrics struct {
	// GiniCoefficient measures overall score inequality in [0,1].
	GiniCoefficient float64

	// MinorityRepresentation is the smallest group's share of top-half
	// ranks relative to its share of the population; 1 means
	// proportional representation.
	MinorityRepresentation float64

	// BiasScore is the relative spread of group mean scores in [0,1];
	// 0 means all groups score equally on average.
	BiasScore float64
}

// Adjuster applies group-mean boosting with mass-preserving renormalization.
type Adjuster struct {
	log logger.Logger
}

// Option applies a configuration option to the Adjuster.
type Option func(*Adjuster)

// WithLogger sets the adjuster logger.
func WithLogger(log logger.Logger) Option {
	return func(a *Adjuster) {
		if log != nil {
			a.log = log
		}
	}
}

// New constructs an Adjuster.
func New(opts ...Option) *Adjuster {
	a := &Adjuster{log: logger.Nop()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Apply boosts nodes in groups whose mean score trails the best group mean,
// proportionally to strength, then rescales so total score mass is
// preserved. strength 0 returns the input values unchanged; no score is
// ever decreased by the boosting step itself.
func (a *Adjuster) Apply(ctx context.Context, scores map[string]float64, nodes []graph.Node, strength float64) (map[string]float64, error) {
	if strength < 0 || strength > 1 {
		return nil, fmt.Errorf("%w: strength %.4f must be in [0,1]", ErrInvalidStrength, strength)
	}

	out := make(map[string]float64, len(scores))
	for id, v := range scores {
		out[id] = v
	}
	if strength == 0 || len(nodes) == 0 {
		return out, nil
	}

	means := groupMeans(scores, nodes)
	if len(means) < 2 {
		return out, nil
	}

	topMean := 0.0
	for _, m := range means {
		if m > topMean {
			topMean = m
		}
	}

	massBefore := 0.0
	for _, v := range scores {
		massBefore += v
	}

	for _, n := range nodes {
		v, ok := out[n.ID]
		if !ok {
			continue
		}
		gap := topMean - means[n.Meta.Group]
		if gap <= 0 {
			continue
		}
		out[n.ID] = v + strength*gap
	}

	massAfter := 0.0
	for _, v := range out {
		massAfter += v
	}
	if massAfter > 0 && massBefore > 0 && math.Abs(massAfter-massBefore) > massEpsilon*massBefore {
		scale := massBefore / massAfter
		for id := range out {
			out[id] *= scale
		}
	}

	a.log.Debug(ctx, "applied fairness adjustment",
		logger.Float64("strength", strength),
		logger.Int("groups", len(means)),
		logger.Float64("massBefore", massBefore),
	)
	return out, nil
}

// ComputeMetrics derives distribution metrics from scores and node groups.
func (a *Adjuster) ComputeMetrics(scores map[string]float64, nodes []graph.Node) Metrics {
	if len(nodes) == 0 || len(scores) == 0 {
		return Metrics{}
	}

	return Metrics{
		GiniCoefficient:        gini(scores),
		MinorityRepresentation: minorityRepresentation(scores, nodes),
		BiasScore:              biasScore(scores, nodes),
	}
}

// groupMeans returns the mean score per group label.
func groupMeans(scores map[string]float64, nodes []graph.Node) map[string]float64 {
	byGroup := make(map[string][]float64)
	for _, n := range nodes {
		if v, ok := scores[n.ID]; ok {
			byGroup[n.Meta.Group] = append(byGroup[n.Meta.Group], v)
		}
	}
	means := make(map[string]float64, len(byGroup))
	for g, vs := range byGroup {
		means[g] = stat.Mean(vs, nil)
	}
	return means
}

// gini computes the Gini coefficient of a score distribution.
func gini(scores map[string]float64) float64 {
	xs := make([]float64, 0, len(scores))
	for _, v := range scores {
		xs = append(xs, v)
	}
	sort.Float64s(xs)

	total := floats.Sum(xs)
	if total <= 0 {
		return 0
	}

	n := float64(len(xs))
	weighted := 0.0
	for i, x := range xs {
		weighted += (2*float64(i+1) - n - 1) * x
	}
	return weighted / (n * total)
}

// minorityRepresentation compares the smallest group's presence in the top
// half of ranks against its population share.
func minorityRepresentation(scores map[string]float64, nodes []graph.Node) float64 {
	sizes := make(map[string]int)
	for _, n := range nodes {
		sizes[n.Meta.Group]++
	}
	if len(sizes) < 2 {
		return 1
	}

	minority := ""
	for g, c := range sizes {
		if minority == "" || c < sizes[minority] || (c == sizes[minority] && g < minority) {
			minority = g
		}
	}

	// Rank nodes by score descending, id ascending for determinism.
	ranked := make([]graph.Node, len(nodes))
	copy(ranked, nodes)
	sort.Slice(ranked, func(i, j int) bool {
		si, sj := scores[ranked[i].ID], scores[ranked[j].ID]
		if si != sj {
			return si > sj
		}
		return ranked[i].ID < ranked[j].ID
	})

	topHalf := (len(ranked) + 1) / 2
	inTop := 0
	for _, n := range ranked[:topHalf] {
		if n.Meta.Group == minority {
			inTop++
		}
	}

	populationShare := float64(sizes[minority]) / float64(len(nodes))
	topShare := float64(inTop) / float64(topHalf)
	if populationShare == 0 {
		return 1
	}
	return topShare / populationShare
}

// biasScore is the relative spread of group mean scores.
func biasScore(scores map[string]float64, nodes []graph.Node) float64 {
	means := groupMeans(scores, nodes)
	if len(means) < 2 {
		return 0
	}
	lo, hi := 0.0, 0.0
	first := true
	for _, m := range means {
		if first {
			lo, hi = m, m
			first = false
			continue
		}
		if m < lo {
			lo = m
		}
		if m > hi {
			hi = m
		}
	}
	if hi <= 0 {
		return 0
	}
	return (hi - lo) / hi
}
