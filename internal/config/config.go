// Package config defines engine configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults and Load(ctx) for layering.
// - External errors must be wrapped via this package's error helpers.
package config

import (
	"fmt"
	"math"
	"runtime"
)

// Config contains every tunable of the reputation engine. Zero values are
// never used directly; New() fills defaults and Load layers file/env on top.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// PageRank parameters.
	DampingFactor       float64 `koanf:"damping_factor"`
	MaxIterations       int     `koanf:"max_iterations"`
	Tolerance           float64 `koanf:"tolerance"`
	TemporalDecayRate   float64 `koanf:"temporal_decay_rate"`
	RecencyWeight       float64 `koanf:"recency_weight"`
	StakeBoost          float64 `koanf:"stake_boost"`
	VerifiedBoost       float64 `koanf:"verified_boost"`
	PaymentBoostLogBase float64 `koanf:"payment_boost_log_base"`
	PaymentBoostCap     float64 `koanf:"payment_boost_cap"`
	ActivityBoost       float64 `koanf:"activity_boost"`
	ActivityWindowDays  int     `koanf:"activity_window_days"`

	// Sybil detection heuristic weights. Must form a convex combination.
	SybilStructuralWeight  float64 `koanf:"sybil_structural_weight"`
	SybilReciprocityWeight float64 `koanf:"sybil_reciprocity_weight"`
	SybilClusteringWeight  float64 `koanf:"sybil_clustering_weight"`
	SybilRiskThreshold     float64 `koanf:"sybil_risk_threshold"`

	// Deceptive edge filter.
	DeceptionThreshold  float64 `koanf:"deception_threshold"`
	DeceptionMaxPenalty float64 `koanf:"deception_max_penalty"`

	// Fairness adjustment strength in [0,1]; 0 disables boosting.
	FairnessStrength float64 `koanf:"fairness_strength"`

	// Hybrid scoring weights. Must be non-negative and sum to a positive value.
	GraphWeight   float64 `koanf:"graph_weight"`
	QualityWeight float64 `koanf:"quality_weight"`
	StakeWeight   float64 `koanf:"stake_weight"`
	PaymentWeight float64 `koanf:"payment_weight"`

	// Sensitivity audit controls.
	AuditWorkers  int `koanf:"audit_workers"`
	AuditTopEdges int `koanf:"audit_top_edges"`
	AuditTopNodes int `koanf:"audit_top_nodes"`

	// Stage toggles.
	EnableCommunities bool `koanf:"enable_communities"`
	EnableSybil       bool `koanf:"enable_sybil"`
	EnableDeception   bool `koanf:"enable_deception"`
	EnableFairness    bool `koanf:"enable_fairness"`
	EnableAudit       bool `koanf:"enable_audit"`
}

// New creates a Config with engine defaults.
func New() *Config {
	return &Config{
		LogLevel: "info",

		DampingFactor:       0.85,
		MaxIterations:       100,
		Tolerance:           1e-6,
		TemporalDecayRate:   0.5,
		RecencyWeight:       0.3,
		StakeBoost:          1.2,
		VerifiedBoost:       1.5,
		PaymentBoostLogBase: math.E,
		PaymentBoostCap:     2.0,
		ActivityBoost:       1.1,
		ActivityWindowDays:  30,

		SybilStructuralWeight:  0.4,
		SybilReciprocityWeight: 0.3,
		SybilClusteringWeight:  0.3,
		SybilRiskThreshold:     0.7,

		DeceptionThreshold:  0.5,
		DeceptionMaxPenalty: 0.8,

		FairnessStrength: 0.5,

		GraphWeight:   0.5,
		QualityWeight: 0.25,
		StakeWeight:   0.15,
		PaymentWeight: 0.1,

		AuditWorkers:  runtime.NumCPU(),
		AuditTopEdges: 10,
		AuditTopNodes: 10,

		EnableCommunities: true,
		EnableSybil:       true,
		EnableDeception:   true,
		EnableFairness:    true,
		EnableAudit:       false,
	}
}

// Validate rejects configurations the engine must not run with. These are
// the fatal cases: everything else is clamped or warned about at runtime.
func (c *Config) Validate() error {
	if c.DampingFactor < 0 || c.DampingFactor >= 1 {
		return fmt.Errorf("%w: damping_factor %.4f must be in [0,1)", ErrInvalidConfig, c.DampingFactor)
	}
	if c.Tolerance <= 0 {
		return fmt.Errorf("%w: tolerance %.6g must be positive", ErrInvalidConfig, c.Tolerance)
	}
	if c.MaxIterations < 1 {
		return fmt.Errorf("%w: max_iterations %d must be at least 1", ErrInvalidConfig, c.MaxIterations)
	}
	if c.RecencyWeight < 0 || c.RecencyWeight > 1 {
		return fmt.Errorf("%w: recency_weight %.4f must be in [0,1]", ErrInvalidConfig, c.RecencyWeight)
	}
	if c.ActivityBoost <= 0 {
		return fmt.Errorf("%w: activity_boost %.4f must be positive", ErrInvalidConfig, c.ActivityBoost)
	}
	if c.ActivityWindowDays < 0 {
		return fmt.Errorf("%w: activity_window_days %d must be non-negative", ErrInvalidConfig, c.ActivityWindowDays)
	}
	sum := c.GraphWeight + c.QualityWeight + c.StakeWeight + c.PaymentWeight
	if c.GraphWeight < 0 || c.QualityWeight < 0 || c.StakeWeight < 0 || c.PaymentWeight < 0 || sum <= 0 {
		return fmt.Errorf("%w: hybrid weights must be non-negative and sum to a positive value, got %.4f", ErrInvalidConfig, sum)
	}
	convex := c.SybilStructuralWeight + c.SybilReciprocityWeight + c.SybilClusteringWeight
	if c.SybilStructuralWeight < 0 || c.SybilReciprocityWeight < 0 || c.SybilClusteringWeight < 0 || convex <= 0 {
		return fmt.Errorf("%w: sybil heuristic weights must be non-negative and sum to a positive value, got %.4f", ErrInvalidConfig, convex)
	}
	if c.DeceptionThreshold < 0 || c.DeceptionThreshold > 1 {
		return fmt.Errorf("%w: deception_threshold %.4f must be in [0,1]", ErrInvalidConfig, c.DeceptionThreshold)
	}
	if c.DeceptionMaxPenalty < 0 || c.DeceptionMaxPenalty > 1 {
		return fmt.Errorf("%w: deception_max_penalty %.4f must be in [0,1]", ErrInvalidConfig, c.DeceptionMaxPenalty)
	}
	if c.FairnessStrength < 0 || c.FairnessStrength > 1 {
		return fmt.Errorf("%w: fairness_strength %.4f must be in [0,1]", ErrInvalidConfig, c.FairnessStrength)
	}
	if c.AuditWorkers < 1 {
		return fmt.Errorf("%w: audit_workers %d must be at least 1", ErrInvalidConfig, c.AuditWorkers)
	}
	if c.AuditTopEdges < 1 {
		return fmt.Errorf("%w: audit_top_edges %d must be at least 1", ErrInvalidConfig, c.AuditTopEdges)
	}
	return nil
}
