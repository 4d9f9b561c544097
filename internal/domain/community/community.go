// Package community partitions the graph into communities and flags
// connectivity patterns typical of Sybil clusters.
package community

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/lucylow/dotrep-sub001/internal/domain/graph"
	"github.com/lucylow/dotrep-sub001/pkg/logger"
)

// Default detector configuration constants.
const (
	defaultStructuralWeight  = 0.4
	defaultReciprocityWeight = 0.3
	defaultClusteringWeight  = 0.3

	// maxSweeps bounds label propagation; organic graphs settle in a
	// handful of sweeps.
	maxSweeps = 50

	// minOutDegree below which the reciprocity heuristic stays silent;
	// a couple of unreciprocated follows is not a spam pattern.
	minOutDegree = 3
)

// Detector computes community partitions and Sybil probabilities.
type Detector struct {
	structuralWeight  float64
	reciprocityWeight float64
	clusteringWeight  float64

	log logger.Logger
}

// Option applies a configuration option to the Detector.
type Option func(*Detector)

// WithHeuristicWeights sets the convex combination weights for the
// structural anomaly, reciprocity deficit, and clustering density
// sub-scores. They are normalized to sum to 1.
func WithHeuristicWeights(structural, reciprocity, clustering float64) Option {
	return func(d *Detector) {
		d.structuralWeight = structural
		d.reciprocityWeight = reciprocity
		d.clusteringWeight = clustering
	}
}

// WithLogger sets the detector logger.
func WithLogger(log logger.Logger) Option {
	return func(d *Detector) {
		if log != nil {
			d.log = log
		}
	}
}

// New constructs a Detector, validating the heuristic weights.
func New(opts ...Option) (*Detector, error) {
	d := &Detector{
		structuralWeight:  defaultStructuralWeight,
		reciprocityWeight: defaultReciprocityWeight,
		clusteringWeight:  defaultClusteringWeight,
		log:               logger.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}

	sum := d.structuralWeight + d.reciprocityWeight + d.clusteringWeight
	if d.structuralWeight < 0 || d.reciprocityWeight < 0 || d.clusteringWeight < 0 || sum <= 0 {
		return nil, fmt.Errorf("%w: weights must be non-negative and sum to a positive value, got %.4f", ErrInvalidOption, sum)
	}
	d.structuralWeight /= sum
	d.reciprocityWeight /= sum
	d.clusteringWeight /= sum
	return d, nil
}

// Communities partitions nodes via deterministic label propagation over the
// undirected projection of the graph. The result is index-aligned with the
// snapshot's node slice; labels are compacted to 0..k-1 in order of first
// appearance.
func (d *Detector) Communities(s *graph.Snapshot) []int {
	n := s.NumNodes()
	labels := make([]int, n)
	for i := range labels {
		labels[i] = i
	}
	if n == 0 {
		return labels
	}

	neighbors := undirectedNeighbors(s)

	for sweep := 0; sweep < maxSweeps; sweep++ {
		changed := false
		counts := make(map[int]int)

		// Asynchronous update in node index order keeps the sweep
		// deterministic for identical inputs.
		for v := 0; v < n; v++ {
			if len(neighbors[v]) == 0 {
				continue
			}
			for k := range counts {
				delete(counts, k)
			}
			for _, u := range neighbors[v] {
				counts[labels[u]]++
			}

			best, bestCount := labels[v], 0
			for _, u := range neighbors[v] {
				l := labels[u]
				c := counts[l]
				if c > bestCount || (c == bestCount && l < best) {
					best, bestCount = l, c
				}
			}
			if best != labels[v] {
				labels[v] = best
				changed = true
			}
		}
		if !changed {
			break
		}
	}

	return compactLabels(labels)
}

// compactLabels renumbers labels to 0..k-1 in order of first appearance.
func compactLabels(labels []int) []int {
	next := 0
	remap := make(map[int]int, len(labels))
	out := make([]int, len(labels))
	for i, l := range labels {
		c, ok := remap[l]
		if !ok {
			c = next
			remap[l] = c
			next++
		}
		out[i] = c
	}
	return out
}

// SybilProbabilities scores every node with a probability in [0,1] that it
// belongs to a Sybil cluster, combining three heuristics with the
// configured convex weights.
func (d *Detector) SybilProbabilities(ctx context.Context, s *graph.Snapshot, scores map[string]float64) map[string]float64 {
	n := s.NumNodes()
	out := make(map[string]float64, n)
	if n == 0 {
		return out
	}

	structural := d.structuralAnomaly(s, scores)
	neighbors := undirectedNeighbors(s)
	globalDensity := undirectedDensity(s, neighbors)

	flagged := 0
	for v := 0; v < n; v++ {
		p := d.structuralWeight*structural[v] +
			d.reciprocityWeight*reciprocityDeficit(s, v) +
			d.clusteringWeight*clusteringDensity(s, neighbors, v, globalDensity)
		if p > 1 {
			p = 1
		}
		out[s.Node(v).ID] = p
		if p > 0.5 {
			flagged++
		}
	}

	if flagged > 0 {
		d.log.Debug(ctx, "sybil heuristics flagged nodes",
			logger.Int("flagged", flagged),
			logger.Int("nodes", n),
		)
	}
	return out
}

// structuralAnomaly scores nodes whose PageRank sits well below what their
// in-degree predicts: many incoming edges carrying little rank is the
// signature of low-value endorsement farming.
func (d *Detector) structuralAnomaly(s *graph.Snapshot, scores map[string]float64) []float64 {
	n := s.NumNodes()
	sub := make([]float64, n)
	if n < 3 {
		return sub
	}

	indeg := make([]float64, n)
	observed := make([]float64, n)
	uniform := true
	for v := 0; v < n; v++ {
		indeg[v] = float64(len(s.InEdges(v)))
		observed[v] = scores[s.Node(v).ID]
		if indeg[v] != indeg[0] {
			uniform = false
		}
	}
	// Zero in-degree variance makes the regression undefined; there is no
	// prediction to deviate from, so the sub-score stays silent.
	if uniform {
		return sub
	}

	alpha, beta := stat.LinearRegression(indeg, observed, nil, false)

	residuals := make([]float64, n)
	for v := 0; v < n; v++ {
		residuals[v] = (alpha + beta*indeg[v]) - observed[v]
	}
	sd := stat.StdDev(residuals, nil)
	if sd <= 0 || math.IsNaN(sd) {
		return sub
	}

	for v := 0; v < n; v++ {
		z := residuals[v] / sd
		if z <= 1 {
			continue
		}
		// z of 1 maps to 0, z of 3 or more saturates at 1.
		sub[v] = clamp01((z - 1) / 2)
	}
	return sub
}

// reciprocityDeficit scores the one-directional spam-follow pattern: high
// out-degree with little incoming attention.
func reciprocityDeficit(s *graph.Snapshot, v int) float64 {
	out := len(s.OutEdges(v))
	if out < minOutDegree {
		return 0
	}
	in := len(s.InEdges(v))
	return clamp01(float64(out-in) / float64(out))
}

// clusteringDensity scores how densely a node's neighbors connect to each
// other relative to the wider graph. A closed ring scores near 1.
func clusteringDensity(s *graph.Snapshot, neighbors [][]int, v int, globalDensity float64) float64 {
	ns := neighbors[v]
	k := len(ns)
	if k < 2 {
		return 0
	}

	inSet := make(map[int]struct{}, k)
	for _, u := range ns {
		inSet[u] = struct{}{}
	}

	links := 0
	for _, u := range ns {
		for _, w := range neighbors[u] {
			if w == v || w == u {
				continue
			}
			if _, ok := inSet[w]; ok {
				links++
			}
		}
	}
	local := float64(links) / float64(k*(k-1))

	if globalDensity >= 1 {
		return 0
	}
	return clamp01((local - globalDensity) / (1 - globalDensity))
}

// undirectedNeighbors builds deduplicated neighbor lists ignoring edge
// direction and self-loops.
func undirectedNeighbors(s *graph.Snapshot) [][]int {
	n := s.NumNodes()
	seen := make([]map[int]struct{}, n)
	neighbors := make([][]int, n)
	for i := range seen {
		seen[i] = make(map[int]struct{})
	}

	add := func(a, b int) {
		if a == b {
			return
		}
		if _, ok := seen[a][b]; !ok {
			seen[a][b] = struct{}{}
			neighbors[a] = append(neighbors[a], b)
		}
	}
	for i := 0; i < s.NumEdges(); i++ {
		e := s.Edge(i)
		src := s.NodeIndex(e.Source)
		tgt := s.NodeIndex(e.Target)
		add(src, tgt)
		add(tgt, src)
	}
	return neighbors
}

// undirectedDensity is the ratio of realized to possible undirected pairs.
func undirectedDensity(s *graph.Snapshot, neighbors [][]int) float64 {
	n := s.NumNodes()
	if n < 2 {
		return 0
	}
	links := 0
	for _, ns := range neighbors {
		links += len(ns)
	}
	// Each undirected link counted once per endpoint.
	return float64(links) / float64(n*(n-1))
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
