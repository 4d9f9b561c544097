// Package ranking provides a deterministic ordered index over final scores.
//
// Ordering: score DESC, then node id ASC. The index is built once per
// computation run from a finished score map and is immutable afterwards;
// percentiles, ranks, and top-K selection all read from the same ordering
// so explanation output and audit candidate selection agree.
package ranking

import (
	"math"
)

// scoreScale controls fixed-point scaling from float64. Comparing scores in
// fixed point keeps tie-breaking stable across platforms.
const scoreScale = 1_000_000_000_000

type scoreFP int64

func toFixedPoint(x float64) scoreFP {
	if math.IsNaN(x) {
		return 0
	}
	if math.IsInf(x, 1) {
		return scoreFP(math.MaxInt64)
	}
	if math.IsInf(x, -1) {
		return scoreFP(math.MinInt64)
	}
	scaled := x * scoreScale
	if scaled > float64(math.MaxInt64) {
		return scoreFP(math.MaxInt64)
	}
	if scaled < float64(math.MinInt64) {
		return scoreFP(math.MinInt64)
	}
	return scoreFP(math.Round(scaled))
}

// Entry is one ranked node. Equal scores share a rank.
type Entry struct {
	Rank   int
	NodeID string
	Score  float64
}

// treap node ordered by (score DESC, id ASC).
type node struct {
	id    string
	score scoreFP
	prio  uint64
	left  *node
	right *node
	size  int
}

func nsize(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix(n *node) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

// less reports whether (aScore, aID) ranks earlier than (bScore, bID).
func less(aScore scoreFP, aID string, bScore scoreFP, bID string) bool {
	if aScore != bScore {
		return aScore > bScore
	}
	return aID < bID
}

func rotateRight(y *node) *node {
	x := y.left
	t2 := x.right
	x.right = y
	y.left = t2
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	t2 := y.left
	y.left = x
	x.right = t2
	fix(x)
	fix(y)
	return y
}

// scoreToPriority derives the heap priority from the score itself. No
// randomness: identical inputs must build identical structures.
func scoreToPriority(score scoreFP) uint64 {
	const offset = uint64(1) << 63
	return uint64(score) + offset
}

func insert(n *node, id string, score scoreFP) *node {
	if n == nil {
		return &node{id: id, score: score, prio: scoreToPriority(score), size: 1}
	}
	if less(score, id, n.score, n.id) {
		n.left = insert(n.left, id, score)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, id, score)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

// inorder appends entries best-first.
func inorder(n *node, out *[]Entry) {
	if n == nil {
		return
	}
	inorder(n.left, out)
	*out = append(*out, Entry{NodeID: n.id, Score: float64(n.score) / scoreScale})
	inorder(n.right, out)
}

// Index is the immutable per-run ranking structure.
type Index struct {
	entries  []Entry        // sorted best-first, ranks assigned with ties
	position map[string]int // node id -> index into entries
}

// NewIndex builds the index from a finished score map.
func NewIndex(scores map[string]float64) *Index {
	var root *node
	for id, score := range scores {
		root = insert(root, id, toFixedPoint(score))
	}

	ix := &Index{
		entries:  make([]Entry, 0, len(scores)),
		position: make(map[string]int, len(scores)),
	}
	inorder(root, &ix.entries)
	assignRanksWithTies(ix.entries)
	for i, e := range ix.entries {
		ix.position[e.NodeID] = i
	}
	return ix
}

// assignRanksWithTies gives equal scores the same rank; the next distinct
// score takes the positional rank (standard competition ranking).
func assignRanksWithTies(entries []Entry) {
	for i := range entries {
		if i > 0 && entries[i].Score == entries[i-1].Score {
			entries[i].Rank = entries[i-1].Rank
			continue
		}
		entries[i].Rank = i + 1
	}
}

// Count returns the number of ranked nodes.
func (ix *Index) Count() int { return len(ix.entries) }

// Rank returns the entry for a node id.
func (ix *Index) Rank(nodeID string) (Entry, error) {
	i, ok := ix.position[nodeID]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return ix.entries[i], nil
}

// TopN returns the best n entries; fewer if the index is smaller.
func (ix *Index) TopN(n int) ([]Entry, error) {
	if n < 1 {
		return nil, ErrInvalidLimit
	}
	if n > len(ix.entries) {
		n = len(ix.entries)
	}
	out := make([]Entry, n)
	copy(out, ix.entries[:n])
	return out, nil
}

// Percentile returns the share of nodes scoring strictly below the given
// node, as a percentage. Tied nodes share a percentile.
func (ix *Index) Percentile(nodeID string) (float64, error) {
	i, ok := ix.position[nodeID]
	if !ok {
		return 0, ErrNotFound
	}
	n := len(ix.entries)
	higher := ix.entries[i].Rank - 1

	equal := 0
	for j := ix.entries[i].Rank - 1; j < n && ix.entries[j].Score == ix.entries[i].Score; j++ {
		equal++
	}

	below := n - higher - equal
	return 100 * float64(below) / float64(n), nil
}
