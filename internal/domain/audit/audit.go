// Package audit performs leave-one-edge-out sensitivity analysis: for each
// incoming edge of an audited node, PageRank is re-run without that edge and
// the score delta is recorded. Audits across distinct nodes are independent
// and run on a bounded worker pool.
package audit

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lucylow/dotrep-sub001/internal/domain/graph"
	"github.com/lucylow/dotrep-sub001/internal/domain/pagerank"
	"github.com/lucylow/dotrep-sub001/pkg/logger"
	"github.com/lucylow/dotrep-sub001/pkg/metrics"
)

// Default auditor configuration constants.
const (
	defaultWorkers  = 4
	defaultTopEdges = 10
)

// EdgeImpact records how much one incoming edge contributed to the audited
// node's score. Delta is baseline minus the score recomputed without the
// edge; positive means the edge was lifting the node.
type EdgeImpact struct {
	Edge  graph.Key
	Delta float64
}

// Result is the sensitivity audit outcome for one node.
type Result struct {
	NodeID              string
	TopInfluencingEdges []EdgeImpact
}

// Auditor runs leave-one-edge-out audits.
type Auditor struct {
	ranker   *pagerank.Ranker
	workers  int
	topEdges int

	log logger.Logger
}

// Option applies a configuration option to the Auditor.
type Option func(*Auditor)

// WithWorkers bounds the audit worker pool.
func WithWorkers(n int) Option {
	return func(a *Auditor) {
		if n > 0 {
			a.workers = n
		}
	}
}

// WithTopEdges bounds how many influencing edges are kept per node.
func WithTopEdges(n int) Option {
	return func(a *Auditor) {
		if n > 0 {
			a.topEdges = n
		}
	}
}

// WithLogger sets the auditor logger.
func WithLogger(log logger.Logger) Option {
	return func(a *Auditor) {
		if log != nil {
			a.log = log
		}
	}
}

// New constructs an Auditor around the ranker whose scores it explains.
// The same ranker configuration must be used for baseline and re-runs or
// the deltas are meaningless.
func New(ranker *pagerank.Ranker, opts ...Option) (*Auditor, error) {
	if ranker == nil {
		return nil, ErrNilRanker
	}
	a := &Auditor{
		ranker:   ranker,
		workers:  defaultWorkers,
		topEdges: defaultTopEdges,
		log:      logger.Nop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	metrics.UpdateAuditWorkers(a.workers)
	return a, nil
}

// Audit measures each incoming edge's influence on one node. Cost is
// O(indegree x full PageRank); callers bound how many nodes they audit.
func (a *Auditor) Audit(ctx context.Context, nodeID string, s *graph.Snapshot, baseline map[string]float64) (Result, error) {
	start := time.Now()
	defer func() {
		metrics.RecordAuditLatency(float64(time.Since(start).Milliseconds()))
	}()

	idx := s.NodeIndex(nodeID)
	if idx < 0 {
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownNode, nodeID)
	}

	base, ok := baseline[nodeID]
	if !ok {
		return Result{}, fmt.Errorf("%w: %q has no baseline score", ErrUnknownNode, nodeID)
	}

	incoming := s.InEdges(idx)
	impacts := make([]EdgeImpact, 0, len(incoming))

	for _, ei := range incoming {
		reduced := s.WithoutEdge(ei)
		res, err := a.ranker.Compute(ctx, reduced)
		if err != nil {
			metrics.RecordAuditError()
			return Result{}, fmt.Errorf("recomputing without %s: %w", s.EdgeKey(ei), err)
		}
		impacts = append(impacts, EdgeImpact{
			Edge:  s.EdgeKey(ei),
			Delta: base - res.Scores[nodeID],
		})
	}

	sortImpacts(impacts)
	if len(impacts) > a.topEdges {
		impacts = impacts[:a.topEdges]
	}

	metrics.RecordAudit()
	return Result{NodeID: nodeID, TopInfluencingEdges: impacts}, nil
}

// AuditAll fans audits out across the worker pool. On context deadline the
// completed audits are returned together with the context error so callers
// can keep partial results.
func (a *Auditor) AuditAll(ctx context.Context, nodeIDs []string, s *graph.Snapshot, baseline map[string]float64) (map[string]Result, error) {
	results := make([]Result, len(nodeIDs))
	done := make([]bool, len(nodeIDs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers)

	for i, id := range nodeIDs {
		i, id := i, id
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				metrics.RecordAuditError()
				return err
			}
			res, err := a.Audit(gctx, id, s, baseline)
			if err != nil {
				return err
			}
			results[i] = res
			done[i] = true
			return nil
		})
	}

	err := g.Wait()

	out := make(map[string]Result, len(nodeIDs))
	for i, ok := range done {
		if ok {
			out[results[i].NodeID] = results[i]
		}
	}
	if err != nil {
		a.log.Warn(ctx, "audit loop ended early",
			logger.Int("completed", len(out)),
			logger.Int("requested", len(nodeIDs)),
			logger.Error(err),
		)
		return out, fmt.Errorf("auditing %d of %d nodes: %w", len(out), len(nodeIDs), err)
	}
	return out, nil
}

// sortImpacts orders by absolute delta descending, then by edge identity
// ascending so equal impacts stay deterministic.
func sortImpacts(impacts []EdgeImpact) {
	sort.Slice(impacts, func(i, j int) bool {
		ai, aj := math.Abs(impacts[i].Delta), math.Abs(impacts[j].Delta)
		if ai != aj {
			return ai > aj
		}
		ki, kj := impacts[i].Edge, impacts[j].Edge
		if ki.Source != kj.Source {
			return ki.Source < kj.Source
		}
		if ki.Target != kj.Target {
			return ki.Target < kj.Target
		}
		return ki.Ordinal < kj.Ordinal
	})
}
