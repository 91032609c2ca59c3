package dfg

import (
	"container/list"

	"github.com/willf/bitset"

	"github.com/l3aro/dfcov/pkg/cfg"
	"github.com/l3aro/dfcov/pkg/types"
)

// ReachingDefsAnalyzer computes, for every node of a method graph, which
// definitions may reach it. It uses a worklist fixed point over bitsets
// indexed by the method's definitions.
type ReachingDefsAnalyzer struct {
	policy KillPolicy

	// universe holds every definition of the graph being solved; ids is its inverse
	universe []types.ProgramVariable
	ids      map[types.ProgramVariable]uint
	// gen and kill are keyed by instruction index
	gen  map[int]*bitset.BitSet
	kill map[int]*bitset.BitSet
}

// SolveStats describes one solver run.
type SolveStats struct {
	Nodes       int `json:"nodes"`
	Definitions int `json:"definitions"`
	Iterations  int `json:"iterations"` // Worklist pops
	Changes     int `json:"changes"`    // ReachOut updates
}

// NewReachingDefsAnalyzer creates a new ReachingDefsAnalyzer.
func NewReachingDefsAnalyzer(policy KillPolicy) *ReachingDefsAnalyzer {
	return &ReachingDefsAnalyzer{policy: policy}
}

// Solve computes Reach and ReachOut for every node of g:
//
//	Reach(n)    = union of ReachOut(p) over predecessors p
//	ReachOut(n) = (Reach(n) + Definitions(n)) - Kill(n)
//
// where Kill(n) holds the definitions of a variable defined at n with a
// different instruction index. When ReachOut(n) changes, both successors and
// predecessors of n are re-enqueued. Solving an already converged graph
// reproduces the same sets.
func (r *ReachingDefsAnalyzer) Solve(g *cfg.CFG) (SolveStats, error) {
	if g.Frozen() {
		return SolveStats{}, cfg.ErrFrozen
	}

	nodes := g.Nodes()
	r.initialize(g, nodes)
	size := uint(len(r.universe))
	stats := SolveStats{Nodes: len(nodes), Definitions: len(r.universe)}

	in := make(map[int]*bitset.BitSet, len(nodes))
	out := make(map[int]*bitset.BitSet, len(nodes))
	for _, n := range nodes {
		in[n.Index] = bitset.New(size)
		out[n.Index] = bitset.New(size)
	}

	worklist := list.New()
	queued := make(map[int]bool, len(nodes))
	enqueue := func(idx int) {
		if !queued[idx] {
			queued[idx] = true
			worklist.PushBack(idx)
		}
	}
	for _, n := range nodes {
		enqueue(n.Index)
	}

	for worklist.Len() > 0 {
		idx := worklist.Remove(worklist.Front()).(int)
		queued[idx] = false
		stats.Iterations++

		n, _ := g.Node(idx)
		reach := bitset.New(size)
		for _, p := range n.Predecessors {
			reach.InPlaceUnion(out[p])
		}
		in[idx] = reach

		reachOut := reach.Union(r.gen[idx])
		reachOut.InPlaceDifference(r.kill[idx])

		if !reachOut.Equal(out[idx]) {
			out[idx] = reachOut
			stats.Changes++
			for _, s := range n.Successors {
				enqueue(s)
			}
			for _, p := range n.Predecessors {
				enqueue(p)
			}
		}
	}

	for _, n := range nodes {
		n.Reach = r.toVarSet(in[n.Index])
		n.ReachOut = r.toVarSet(out[n.Index])
	}
	return stats, nil
}

// initialize numbers the definitions and builds the gen and kill sets.
func (r *ReachingDefsAnalyzer) initialize(g *cfg.CFG, nodes []*cfg.Node) {
	r.universe = g.Definitions()
	r.ids = make(map[types.ProgramVariable]uint, len(r.universe))
	for i, d := range r.universe {
		r.ids[d] = uint(i)
	}

	size := uint(len(r.universe))
	r.gen = make(map[int]*bitset.BitSet, len(nodes))
	r.kill = make(map[int]*bitset.BitSet, len(nodes))
	for _, n := range nodes {
		gen := bitset.New(size)
		kill := bitset.New(size)
		for d := range n.Definitions {
			gen.Set(r.ids[d])
			for i, other := range r.universe {
				if other.Index != d.Index && r.policy.SameVariable(d, other) {
					kill.Set(uint(i))
				}
			}
		}
		r.gen[n.Index] = gen
		r.kill[n.Index] = kill
	}
}

func (r *ReachingDefsAnalyzer) toVarSet(b *bitset.BitSet) types.VarSet {
	set := types.NewVarSet()
	for i, ok := b.NextSet(0); ok; i, ok = b.NextSet(i + 1) {
		set.Add(r.universe[i])
	}
	return set
}
