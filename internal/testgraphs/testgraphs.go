// Package testgraphs builds synthetic reputation graphs with known
// structure for the test suite. Builders take an explicit seed and clock
// so a test run is reproducible.
package testgraphs

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/lucylow/dotrep-sub001/internal/domain/graph"
)

// Constants for synthetic metadata ranges.
const (
	qualityMin   = 20.0
	qualityRange = 70.0
	stakeMin     = 10.0
	stakeRange   = 990.0
	paymentMin   = 0.0
	paymentRange = 500.0

	weightMin   = 0.2
	weightRange = 0.8

	// maxEdgeAgeDays spreads edge timestamps over roughly one year so
	// temporal decay has something to bite on.
	maxEdgeAgeDays = 360

	// minorityEvery assigns every k-th node to the minority group.
	minorityEvery = 4

	// organicFanout is how many earlier nodes each newcomer endorses.
	organicFanout = 3
)

// Group labels used by the builders.
const (
	GroupMajority = "established"
	GroupMinority = "newcomer"
)

// Organic builds an n-node endorsement graph with preferential attachment:
// each newcomer endorses a few earlier nodes, favoring ones that already
// collected endorsements. The result has realistic hubs and no collusion.
func Organic(n int, seed int64, now time.Time) ([]graph.Node, []graph.Edge) {
	rng := rand.New(rand.NewSource(seed))

	nodes := make([]graph.Node, n)
	for i := 0; i < n; i++ {
		nodes[i] = graph.Node{
			ID:   nodeID(i),
			Meta: randomMeta(rng, i),
		}
	}

	var edges []graph.Edge
	indeg := make([]int, n)
	for i := 1; i < n; i++ {
		fanout := organicFanout
		if fanout > i {
			fanout = i
		}
		for f := 0; f < fanout; f++ {
			target := attachTarget(rng, indeg, i)
			edges = append(edges, randomEdge(rng, nodes[i].ID, nodes[target].ID, now))
			indeg[target]++
		}
	}
	return nodes, edges
}

// WithSybilRing appends a dense colluding ring to an existing graph. Every
// ring member endorses every other member with maximal weight and all of
// them endorse one promoted target from the base graph. Returns the
// augmented graph plus the ring member ids.
func WithSybilRing(nodes []graph.Node, edges []graph.Edge, ringSize int, promoted string, seed int64, now time.Time) ([]graph.Node, []graph.Edge, []string) {
	rng := rand.New(rand.NewSource(seed))

	outNodes := append([]graph.Node(nil), nodes...)
	outEdges := append([]graph.Edge(nil), edges...)

	ids := make([]string, ringSize)
	for i := 0; i < ringSize; i++ {
		ids[i] = fmt.Sprintf("sybil-%02d", i)
		outNodes = append(outNodes, graph.Node{
			ID:   ids[i],
			Meta: graph.NodeMeta{Group: GroupMinority},
		})
	}

	for i := 0; i < ringSize; i++ {
		for j := 0; j < ringSize; j++ {
			if i == j {
				continue
			}
			outEdges = append(outEdges, graph.Edge{
				Source:    ids[i],
				Target:    ids[j],
				Type:      graph.Endorse,
				Weight:    1.0,
				Timestamp: recentTimestamp(rng, now),
			})
		}
		outEdges = append(outEdges, graph.Edge{
			Source:    ids[i],
			Target:    promoted,
			Type:      graph.Endorse,
			Weight:    1.0,
			Timestamp: recentTimestamp(rng, now),
		})
	}
	return outNodes, outEdges, ids
}

// Star builds spokes independent nodes all endorsing a single hub with the
// same weight and timestamp, so every incoming edge carries identical
// influence. Returns the graph and the hub id.
func Star(spokes int, weight float64, now time.Time) ([]graph.Node, []graph.Edge, string) {
	const hubID = "hub"

	nodes := make([]graph.Node, 0, spokes+1)
	nodes = append(nodes, graph.Node{ID: hubID})

	edges := make([]graph.Edge, 0, spokes)
	ts := now.Add(-24 * time.Hour)
	for i := 0; i < spokes; i++ {
		id := fmt.Sprintf("spoke-%02d", i)
		nodes = append(nodes, graph.Node{ID: id})
		edges = append(edges, graph.Edge{
			Source:    id,
			Target:    hubID,
			Type:      graph.Endorse,
			Weight:    weight,
			Timestamp: ts,
		})
	}
	return nodes, edges, hubID
}

// Cycle builds an n-node directed cycle with uniform weights and a shared
// timestamp. By symmetry every node earns the same score.
func Cycle(n int, now time.Time) ([]graph.Node, []graph.Edge) {
	nodes := make([]graph.Node, n)
	edges := make([]graph.Edge, n)
	ts := now.Add(-24 * time.Hour)
	for i := 0; i < n; i++ {
		nodes[i] = graph.Node{ID: nodeID(i)}
		edges[i] = graph.Edge{
			Source:    nodeID(i),
			Target:    nodeID((i + 1) % n),
			Type:      graph.Endorse,
			Weight:    0.8,
			Timestamp: ts,
		}
	}
	return nodes, edges
}

func nodeID(i int) string {
	return fmt.Sprintf("node-%03d", i)
}

func randomMeta(rng *rand.Rand, i int) graph.NodeMeta {
	group := GroupMajority
	if i%minorityEvery == 0 {
		group = GroupMinority
	}
	return graph.NodeMeta{
		Stake:          stakeMin + rng.Float64()*stakeRange,
		PaymentHistory: paymentMin + rng.Float64()*paymentRange,
		ContentQuality: qualityMin + rng.Float64()*qualityRange,
		Group:          group,
	}
}

func randomEdge(rng *rand.Rand, source, target string, now time.Time) graph.Edge {
	return graph.Edge{
		Source:    source,
		Target:    target,
		Type:      graph.Endorse,
		Weight:    weightMin + rng.Float64()*weightRange,
		Timestamp: recentTimestamp(rng, now),
	}
}

func recentTimestamp(rng *rand.Rand, now time.Time) time.Time {
	age := time.Duration(rng.Intn(maxEdgeAgeDays)) * 24 * time.Hour
	return now.Add(-age)
}

// attachTarget picks an earlier node with probability proportional to its
// current in-degree plus one, the plus-one keeping fresh nodes reachable.
func attachTarget(rng *rand.Rand, indeg []int, limit int) int {
	total := 0
	for i := 0; i < limit; i++ {
		total += indeg[i] + 1
	}
	pick := rng.Intn(total)
	for i := 0; i < limit; i++ {
		pick -= indeg[i] + 1
		if pick < 0 {
			return i
		}
	}
	return limit - 1
}
