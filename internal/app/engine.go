// Package app wires the scoring components into the full reputation
// pipeline. The engine is stateless across calls: every Run is a pure
// function of its inputs and configuration.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lucylow/dotrep-sub001/internal/adapters/ranking"
	"github.com/lucylow/dotrep-sub001/internal/config"
	"github.com/lucylow/dotrep-sub001/internal/domain/audit"
	"github.com/lucylow/dotrep-sub001/internal/domain/community"
	"github.com/lucylow/dotrep-sub001/internal/domain/deception"
	"github.com/lucylow/dotrep-sub001/internal/domain/fairness"
	"github.com/lucylow/dotrep-sub001/internal/domain/graph"
	"github.com/lucylow/dotrep-sub001/internal/domain/hybrid"
	"github.com/lucylow/dotrep-sub001/internal/domain/pagerank"
	"github.com/lucylow/dotrep-sub001/pkg/logger"
	"github.com/lucylow/dotrep-sub001/pkg/metrics"
)

// Run carries everything one computation produced. Created fresh per call
// and never mutated after return.
type Run struct {
	RunID string

	// Scores is the final hybrid reputation per node.
	Scores map[string]hybrid.Score

	// PageRank is the centrality result backing the graph signal. When the
	// deception filter changed edges this is the post-filter re-run.
	PageRank pagerank.Result

	// Communities is index-aligned with the input node slice. Nil when the
	// stage is disabled.
	Communities []int

	// SybilProbabilities maps node id to cluster-membership probability.
	// Nil when the stage is disabled.
	SybilProbabilities map[string]float64

	// DeceptionProbabilities maps edge identity to deception probability.
	// Nil when the stage is disabled.
	DeceptionProbabilities map[graph.Key]float64

	// ReweightedEdges counts edges the deception filter down-weighted.
	ReweightedEdges int

	// FairnessMetrics summarizes group-level score distribution. Nil when
	// the stage is disabled.
	FairnessMetrics *fairness.Metrics

	// Audits holds sensitivity results for the audited top nodes. Nil
	// when the stage is disabled. May be partial if the audit deadline
	// expired; PartialAudits reports that.
	Audits        map[string]audit.Result
	PartialAudits bool

	// StageTimings records wall time per pipeline stage.
	StageTimings map[string]time.Duration
}

// Engine orchestrates the scoring pipeline.
type Engine struct {
	cfg *config.Config

	ranker   *pagerank.Ranker
	detector *community.Detector
	filter   *deception.Filter
	adjuster *fairness.Adjuster
	scorer   *hybrid.Scorer
	auditor  *audit.Auditor

	auditDeadline time.Duration
	now           time.Time

	log logger.Logger
}

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithConfig supplies the full engine configuration.
func WithConfig(cfg *config.Config) Option {
	return func(e *Engine) {
		if cfg != nil {
			e.cfg = cfg
		}
	}
}

// WithLogger sets the engine logger, propagated to every component.
func WithLogger(log logger.Logger) Option {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// WithAuditDeadline bounds wall time for the audit loop; 0 means no bound.
func WithAuditDeadline(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.auditDeadline = d
		}
	}
}

// WithNow pins the computation time used for temporal decay. Tests pin it
// for reproducible runs.
func WithNow(now time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New validates configuration and builds every pipeline component.
func New(opts ...Option) (*Engine, error) {
	e := &Engine{
		cfg: config.New(),
		log: logger.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}

	if err := e.cfg.Validate(); err != nil {
		return nil, err
	}

	var err error
	e.ranker, err = pagerank.New(
		pagerank.WithDamping(e.cfg.DampingFactor),
		pagerank.WithMaxIterations(e.cfg.MaxIterations),
		pagerank.WithTolerance(e.cfg.Tolerance),
		pagerank.WithTemporalDecay(e.cfg.TemporalDecayRate),
		pagerank.WithRecencyWeight(e.cfg.RecencyWeight),
		pagerank.WithStakeBoost(e.cfg.StakeBoost),
		pagerank.WithVerifiedBoost(e.cfg.VerifiedBoost),
		pagerank.WithPaymentBoost(e.cfg.PaymentBoostLogBase, e.cfg.PaymentBoostCap),
		pagerank.WithActivityBoost(e.cfg.ActivityBoost, time.Duration(e.cfg.ActivityWindowDays)*24*time.Hour),
		pagerank.WithLogger(e.log.Named("pagerank")),
	)
	if err != nil {
		return nil, fmt.Errorf("building ranker: %w", err)
	}

	e.detector, err = community.New(
		community.WithHeuristicWeights(
			e.cfg.SybilStructuralWeight,
			e.cfg.SybilReciprocityWeight,
			e.cfg.SybilClusteringWeight,
		),
		community.WithLogger(e.log.Named("community")),
	)
	if err != nil {
		return nil, fmt.Errorf("building community detector: %w", err)
	}

	e.filter, err = deception.New(
		deception.WithThreshold(e.cfg.DeceptionThreshold),
		deception.WithMaxPenalty(e.cfg.DeceptionMaxPenalty),
		deception.WithLogger(e.log.Named("deception")),
	)
	if err != nil {
		return nil, fmt.Errorf("building deception filter: %w", err)
	}

	e.adjuster = fairness.New(fairness.WithLogger(e.log.Named("fairness")))

	e.scorer, err = hybrid.New(
		hybrid.WithWeights(hybrid.Weights{
			Graph:   e.cfg.GraphWeight,
			Quality: e.cfg.QualityWeight,
			Stake:   e.cfg.StakeWeight,
			Payment: e.cfg.PaymentWeight,
		}),
		hybrid.WithLogger(e.log.Named("hybrid")),
	)
	if err != nil {
		return nil, fmt.Errorf("building hybrid scorer: %w", err)
	}

	e.auditor, err = audit.New(e.ranker,
		audit.WithWorkers(e.cfg.AuditWorkers),
		audit.WithTopEdges(e.cfg.AuditTopEdges),
		audit.WithLogger(e.log.Named("audit")),
	)
	if err != nil {
		return nil, fmt.Errorf("building auditor: %w", err)
	}

	return e, nil
}

// Run executes the pipeline over one graph snapshot:
// build -> pagerank -> communities -> sybil -> deception filter (single
// re-run) -> fairness -> hybrid -> top-K sensitivity audits.
func (e *Engine) Run(ctx context.Context, nodes []graph.Node, edges []graph.Edge) (*Run, error) {
	metrics.RecordRun()
	run := &Run{
		RunID:        uuid.New().String(),
		StageTimings: make(map[string]time.Duration),
	}

	snapOpts := []graph.Option{graph.WithLogger(e.log.Named("graph"))}
	if !e.now.IsZero() {
		snapOpts = append(snapOpts, graph.WithNow(e.now))
	}

	var snap *graph.Snapshot
	err := e.stage(run, "snapshot", func() error {
		var err error
		snap, err = graph.NewSnapshot(ctx, nodes, edges, snapOpts...)
		return err
	})
	if err != nil {
		metrics.RecordRunError()
		return nil, fmt.Errorf("building snapshot: %w", err)
	}

	err = e.stage(run, "pagerank", func() error {
		var err error
		run.PageRank, err = e.ranker.Compute(ctx, snap)
		return err
	})
	if err != nil {
		metrics.RecordRunError()
		return nil, fmt.Errorf("pagerank: %w", err)
	}
	if !run.PageRank.Converged {
		e.log.Warn(ctx, "pagerank returned a near-converged result",
			logger.String("runID", run.RunID),
			logger.Int("iterations", run.PageRank.Iterations),
		)
	}

	// The deception filter needs community context even when community
	// output is not requested.
	var communities []int
	if e.cfg.EnableCommunities || e.cfg.EnableDeception {
		_ = e.stage(run, "communities", func() error {
			communities = e.detector.Communities(snap)
			return nil
		})
		if e.cfg.EnableCommunities {
			run.Communities = communities
		}
	}

	if e.cfg.EnableSybil {
		_ = e.stage(run, "sybil", func() error {
			run.SybilProbabilities = e.detector.SybilProbabilities(ctx, snap, run.PageRank.Scores)
			return nil
		})
		high := 0
		for _, p := range run.SybilProbabilities {
			if p >= e.cfg.SybilRiskThreshold {
				high++
			}
		}
		metrics.UpdateSybilHighRisk(high)
	}

	if e.cfg.EnableDeception {
		err = e.stage(run, "deception", func() error {
			probs := e.filter.Probabilities(ctx, snap, communities)
			run.DeceptionProbabilities = e.filter.ByKey(snap, probs)

			filtered, changed := e.filter.Apply(snap, probs)
			run.ReweightedEdges = changed
			if changed == 0 {
				return nil
			}

			// One re-weighting pass only: re-run PageRank once on the
			// adjusted edges, never iterate to a fixpoint.
			snap = snap.WithEdges(filtered)
			var err error
			run.PageRank, err = e.ranker.Compute(ctx, snap)
			return err
		})
		if err != nil {
			metrics.RecordRunError()
			return nil, fmt.Errorf("deception filter: %w", err)
		}
	}

	centrality := run.PageRank.Scores

	if e.cfg.EnableFairness {
		err = e.stage(run, "fairness", func() error {
			adjusted, err := e.adjuster.Apply(ctx, centrality, snap.Nodes(), e.cfg.FairnessStrength)
			if err != nil {
				return err
			}
			centrality = adjusted
			m := e.adjuster.ComputeMetrics(centrality, snap.Nodes())
			run.FairnessMetrics = &m
			return nil
		})
		if err != nil {
			metrics.RecordRunError()
			return nil, fmt.Errorf("fairness: %w", err)
		}
	}

	err = e.stage(run, "hybrid", func() error {
		var err error
		run.Scores, err = e.scorer.Compute(ctx, centrality, snap.Nodes())
		return err
	})
	if err != nil {
		metrics.RecordRunError()
		return nil, fmt.Errorf("hybrid scoring: %w", err)
	}

	if e.cfg.EnableAudit {
		err = e.stage(run, "audit", func() error {
			return e.auditTopNodes(ctx, run, snap)
		})
		if err != nil {
			metrics.RecordRunError()
			return nil, fmt.Errorf("sensitivity audit: %w", err)
		}
	}

	e.log.Info(ctx, "reputation run complete",
		logger.String("runID", run.RunID),
		logger.Int("nodes", snap.NumNodes()),
		logger.Int("edges", snap.NumEdges()),
		logger.Int("droppedEdges", snap.DroppedEdges()),
		logger.Int("iterations", run.PageRank.Iterations),
		logger.Bool("converged", run.PageRank.Converged),
	)
	return run, nil
}

// auditTopNodes picks audit candidates by final score and fans out the
// leave-one-edge-out analysis. A deadline expiry keeps partial results.
func (e *Engine) auditTopNodes(ctx context.Context, run *Run, snap *graph.Snapshot) error {
	finals := make(map[string]float64, len(run.Scores))
	for id, sc := range run.Scores {
		finals[id] = sc.FinalScore
	}

	top, err := ranking.NewIndex(finals).TopN(e.cfg.AuditTopNodes)
	if err != nil {
		return err
	}
	ids := make([]string, len(top))
	for i, entry := range top {
		ids[i] = entry.NodeID
	}

	auditCtx := ctx
	if e.auditDeadline > 0 {
		var cancel context.CancelFunc
		auditCtx, cancel = context.WithTimeout(ctx, e.auditDeadline)
		defer cancel()
	}

	results, err := e.auditor.AuditAll(auditCtx, ids, snap, run.PageRank.Scores)
	run.Audits = results
	if err != nil {
		// Deadline expiry is a budget outcome, not a failure: keep what
		// completed and tell the caller it is partial.
		if auditCtx.Err() != nil {
			run.PartialAudits = true
			e.log.Warn(ctx, "audit budget expired, keeping partial results",
				logger.String("runID", run.RunID),
				logger.Int("completed", len(results)),
				logger.Int("requested", len(ids)),
			)
			return nil
		}
		return err
	}
	return nil
}

// stage runs fn and records its wall time under the given name.
func (e *Engine) stage(run *Run, name string, fn func() error) error {
	start := time.Now()
	err := fn()
	elapsed := time.Since(start)
	run.StageTimings[name] = elapsed
	metrics.RecordStageDuration(name, float64(elapsed.Milliseconds()))
	return err
}
