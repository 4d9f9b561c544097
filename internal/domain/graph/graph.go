// Package graph contains the immutable node/edge model consumed by every
// scoring component. A Snapshot is built once per computation run and is
// read-only for its lifetime.
package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/lucylow/dotrep-sub001/pkg/logger"
	"github.com/lucylow/dotrep-sub001/pkg/metrics"
)

// EdgeType classifies the interaction an edge represents.
type EdgeType int

const (
	Follow EdgeType = iota
	Endorse
	Contribute
	Review
	Flag
)

// String returns the canonical name for the edge type.
func (t EdgeType) String() string {
	switch t {
	case Follow:
		return "FOLLOW"
	case Endorse:
		return "ENDORSE"
	case Contribute:
		return "CONTRIBUTE"
	case Review:
		return "REVIEW"
	case Flag:
		return "FLAG"
	default:
		return fmt.Sprintf("EDGE_TYPE(%d)", int(t))
	}
}

// NodeMeta carries the off-graph signals this engine reads. Unknown external
// metadata never enters the model; providers map into these fields.
type NodeMeta struct {
	Stake           float64   // non-negative staked amount
	PaymentHistory  float64   // cumulative, non-negative
	ContentQuality  float64   // 0-100
	ActivityRecency time.Time // last activity, zero if unknown
	Group           string    // categorical attribute, fairness only
}

// Node is an actor in the interaction graph.
type Node struct {
	ID   string
	Meta NodeMeta
}

// EdgeMeta carries per-edge trust signals.
type EdgeMeta struct {
	StakeBacked   bool
	Verified      bool
	PaymentAmount float64 // non-negative
}

// Edge is a directed interaction between two actors. Duplicate (source,
// target) pairs and self-loops are legal and treated as independent signals.
type Edge struct {
	Source    string
	Target    string
	Type      EdgeType
	Weight    float64 // raw strength, clamped into [0,1] at snapshot build
	Timestamp time.Time
	Meta      EdgeMeta
}

// Key identifies one edge within a snapshot. Ordinal disambiguates
// duplicate (source, target) pairs by order of appearance.
type Key struct {
	Source  string
	Target  string
	Ordinal int
}

// String renders the key as source->target#ordinal.
func (k Key) String() string {
	return fmt.Sprintf("%s->%s#%d", k.Source, k.Target, k.Ordinal)
}

// Snapshot is a validated, immutable view of the graph for one run.
type Snapshot struct {
	nodes []Node
	edges []Edge
	keys  []Key

	index map[string]int // node id -> position in nodes
	out   [][]int        // node index -> outgoing edge indices
	in    [][]int        // node index -> incoming edge indices

	dropped int // edges removed for unknown endpoints
	clamped int // weights pulled into [0,1]

	now time.Time // computation time, fixed at build
}

// Option applies a configuration option to snapshot building.
type Option func(*builder)

type builder struct {
	log logger.Logger
	now time.Time
}

// WithLogger sets the logger used for validation warnings.
func WithLogger(log logger.Logger) Option {
	return func(b *builder) {
		if log != nil {
			b.log = log
		}
	}
}

// WithNow pins the computation time used for temporal decay. Defaults to
// time.Now() at build; tests pin it for reproducible decay factors.
func WithNow(now time.Time) Option {
	return func(b *builder) {
		if !now.IsZero() {
			b.now = now
		}
	}
}

// NewSnapshot validates nodes and edges and builds adjacency for one run.
//
// Validation follows the engine's input error taxonomy: duplicate node ids
// are fatal, edges referencing unknown nodes are dropped with a warning, and
// out-of-range weights are clamped into [0,1].
func NewSnapshot(ctx context.Context, nodes []Node, edges []Edge, opts ...Option) (*Snapshot, error) {
	b := &builder{
		log: logger.Nop(),
		now: time.Now(),
	}
	for _, opt := range opts {
		opt(b)
	}

	s := &Snapshot{
		nodes: make([]Node, len(nodes)),
		index: make(map[string]int, len(nodes)),
		out:   make([][]int, len(nodes)),
		in:    make([][]int, len(nodes)),
		now:   b.now,
	}
	copy(s.nodes, nodes)

	for i, n := range s.nodes {
		if n.ID == "" {
			return nil, fmt.Errorf("%w: node at position %d", ErrEmptyNodeID, i)
		}
		if _, ok := s.index[n.ID]; ok {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateNode, n.ID)
		}
		s.index[n.ID] = i
	}

	ordinals := make(map[[2]string]int, len(edges))
	s.edges = make([]Edge, 0, len(edges))
	s.keys = make([]Key, 0, len(edges))

	for _, e := range edges {
		src, okSrc := s.index[e.Source]
		tgt, okTgt := s.index[e.Target]
		if !okSrc || !okTgt {
			s.dropped++
			metrics.RecordEdgeDropped()
			b.log.Warn(ctx, "dropping edge with unknown endpoint",
				logger.String("source", e.Source),
				logger.String("target", e.Target),
				logger.String("type", e.Type.String()),
			)
			continue
		}
		if e.Weight < 0 || e.Weight > 1 {
			s.clamped++
			metrics.RecordWeightClamped()
			b.log.Warn(ctx, "clamping out-of-range edge weight",
				logger.String("source", e.Source),
				logger.String("target", e.Target),
				logger.Float64("weight", e.Weight),
			)
			e.Weight = clamp01(e.Weight)
		}
		if e.Meta.PaymentAmount < 0 {
			e.Meta.PaymentAmount = 0
		}

		pair := [2]string{e.Source, e.Target}
		ord := ordinals[pair]
		ordinals[pair] = ord + 1

		idx := len(s.edges)
		s.edges = append(s.edges, e)
		s.keys = append(s.keys, Key{Source: e.Source, Target: e.Target, Ordinal: ord})
		s.out[src] = append(s.out[src], idx)
		s.in[tgt] = append(s.in[tgt], idx)
	}

	metrics.UpdateGraphSize(len(s.nodes), len(s.edges))
	return s, nil
}

// WithEdges builds a new snapshot over the same node set and computation
// time but a different edge set. Used by the deceptive edge filter and the
// sensitivity auditor; edges are assumed to be already validated.
func (s *Snapshot) WithEdges(edges []Edge) *Snapshot {
	next := &Snapshot{
		nodes:   s.nodes,
		index:   s.index,
		out:     make([][]int, len(s.nodes)),
		in:      make([][]int, len(s.nodes)),
		now:     s.now,
		dropped: s.dropped,
		clamped: s.clamped,
	}
	next.edges = make([]Edge, len(edges))
	copy(next.edges, edges)
	next.keys = make([]Key, 0, len(edges))

	ordinals := make(map[[2]string]int, len(edges))
	for idx, e := range next.edges {
		src := s.index[e.Source]
		tgt := s.index[e.Target]
		pair := [2]string{e.Source, e.Target}
		ord := ordinals[pair]
		ordinals[pair] = ord + 1
		next.keys = append(next.keys, Key{Source: e.Source, Target: e.Target, Ordinal: ord})
		next.out[src] = append(next.out[src], idx)
		next.in[tgt] = append(next.in[tgt], idx)
	}
	return next
}

// WithoutEdge builds a new snapshot with the edge at index removed.
func (s *Snapshot) WithoutEdge(index int) *Snapshot {
	edges := make([]Edge, 0, len(s.edges)-1)
	edges = append(edges, s.edges[:index]...)
	edges = append(edges, s.edges[index+1:]...)
	return s.WithEdges(edges)
}

// NumNodes returns the node count.
func (s *Snapshot) NumNodes() int { return len(s.nodes) }

// NumEdges returns the validated edge count.
func (s *Snapshot) NumEdges() int { return len(s.edges) }

// Nodes returns the node slice. Callers must not mutate it.
func (s *Snapshot) Nodes() []Node { return s.nodes }

// Edges returns the validated edge slice. Callers must not mutate it.
func (s *Snapshot) Edges() []Edge { return s.edges }

// Edge returns the edge at index.
func (s *Snapshot) Edge(index int) Edge { return s.edges[index] }

// EdgeKey returns the stable identity of the edge at index.
func (s *Snapshot) EdgeKey(index int) Key { return s.keys[index] }

// NodeIndex returns the position of a node id, or -1 if unknown.
func (s *Snapshot) NodeIndex(id string) int {
	if i, ok := s.index[id]; ok {
		return i
	}
	return -1
}

// Node returns the node at index.
func (s *Snapshot) Node(index int) Node { return s.nodes[index] }

// OutEdges returns the outgoing edge indices for a node index.
func (s *Snapshot) OutEdges(node int) []int { return s.out[node] }

// InEdges returns the incoming edge indices for a node index.
func (s *Snapshot) InEdges(node int) []int { return s.in[node] }

// DroppedEdges returns how many input edges were rejected at build.
func (s *Snapshot) DroppedEdges() int { return s.dropped }

// ClampedWeights returns how many weights were clamped at build.
func (s *Snapshot) ClampedWeights() int { return s.clamped }

// Now returns the fixed computation time for this snapshot.
func (s *Snapshot) Now() time.Time { return s.now }

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
