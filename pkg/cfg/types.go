// Package cfg defines the per-method Control Flow Graph built from an
// instruction stream. Every instruction is one node; a synthetic entry node
// defines the parameters and instance fields, a synthetic exit node follows
// the last instruction.
package cfg

import (
	"errors"
	"sort"

	"github.com/l3aro/dfcov/pkg/types"
)

// ErrFrozen is returned when a frozen graph would be mutated.
var ErrFrozen = errors.New("cfg: graph is frozen")

// NodeType represents the type of a CFG node.
type NodeType string

const (
	NodeTypeEntry       NodeType = "entry"       // Synthetic method entry
	NodeTypeExit        NodeType = "exit"        // Synthetic method exit
	NodeTypeInstruction NodeType = "instruction" // Ordinary instruction
	NodeTypeCall        NodeType = "call"        // Invoke instruction
)

// EdgeType represents the type of a CFG edge.
type EdgeType string

const (
	EdgeTypeFlow  EdgeType = "flow"  // Edge from the instruction stream
	EdgeTypeEntry EdgeType = "entry" // Entry node to first instruction
	EdgeTypeExit  EdgeType = "exit"  // Instruction to exit node
)

// Node is one instruction of a method. Predecessors and Successors hold
// instruction indices within the owning graph. Reach and ReachOut are written
// only by the reaching-definitions solver.
type Node struct {
	Index        int               `json:"index"`
	Line         int               `json:"line"`
	Opcode       types.Opcode      `json:"opcode"`
	Class        types.OpcodeClass `json:"opcode_class"`
	Type         NodeType          `json:"type"`
	Definitions  types.VarSet      `json:"-"`
	Uses         types.VarSet      `json:"-"`
	Call         *types.MemberRef  `json:"call,omitempty"`
	Predecessors []int             `json:"predecessors"`
	Successors   []int             `json:"successors"`
	Reach        types.VarSet      `json:"-"`
	ReachOut     types.VarSet      `json:"-"`
}

func newNode(index, line int, op types.Opcode, typ NodeType) *Node {
	return &Node{
		Index:       index,
		Line:        line,
		Opcode:      op,
		Class:       op.Class(),
		Type:        typ,
		Definitions: types.NewVarSet(),
		Uses:        types.NewVarSet(),
		Reach:       types.NewVarSet(),
		ReachOut:    types.NewVarSet(),
	}
}

// Edge represents a directed edge between two nodes.
type Edge struct {
	Source int      `json:"source"`
	Target int      `json:"target"`
	Type   EdgeType `json:"edge_type"`
}

// CFG is the control flow graph of one method.
type CFG struct {
	ClassName  string                   `json:"class_name"`
	MethodName string                   `json:"method_name"`
	Descriptor string                   `json:"descriptor"`
	Static     bool                     `json:"static"`
	Impure     bool                     `json:"impure"` // Writes a field of its own class
	FirstLine  int                      `json:"first_line"`
	LastLine   int                      `json:"last_line"`
	Locals     types.LocalVariableTable `json:"local_variables,omitempty"`
	// Parameters are the entry definitions of the receiver (instance
	// methods only) and the arguments, in slot order.
	Parameters []types.ProgramVariable `json:"parameters"`
	Edges      []Edge                  `json:"edges"`

	nodes  map[int]*Node
	order  []int
	frozen bool
}

// Key returns the method's name+descriptor.
func (g *CFG) Key() string {
	return g.MethodName + g.Descriptor
}

// Entry returns the synthetic entry node.
func (g *CFG) Entry() *Node {
	return g.nodes[types.EntryIndex]
}

// Exit returns the synthetic exit node.
func (g *CFG) Exit() *Node {
	return g.nodes[types.ExitIndex]
}

// Node returns the node at the given instruction index.
func (g *CFG) Node(index int) (*Node, bool) {
	n, ok := g.nodes[index]
	return n, ok
}

// Nodes returns every node, entry first and exit last.
func (g *CFG) Nodes() []*Node {
	out := make([]*Node, 0, len(g.order))
	for _, idx := range g.order {
		out = append(out, g.nodes[idx])
	}
	return out
}

// Len returns the number of nodes including the sentinels.
func (g *CFG) Len() int {
	return len(g.order)
}

// IsEmpty reports whether the method has no instructions (abstract or native).
func (g *CFG) IsEmpty() bool {
	return len(g.order) <= 2
}

// First returns the first instruction node, or nil for an empty method.
func (g *CFG) First() *Node {
	if g.IsEmpty() {
		return nil
	}
	return g.nodes[g.order[1]]
}

// Last returns the last instruction node, or nil for an empty method.
func (g *CFG) Last() *Node {
	if g.IsEmpty() {
		return nil
	}
	return g.nodes[g.order[len(g.order)-2]]
}

// Predecessors returns the predecessor nodes of n.
func (g *CFG) Predecessors(n *Node) []*Node {
	return g.lookup(n.Predecessors)
}

// Successors returns the successor nodes of n.
func (g *CFG) Successors(n *Node) []*Node {
	return g.lookup(n.Successors)
}

func (g *CFG) lookup(indices []int) []*Node {
	out := make([]*Node, 0, len(indices))
	for _, idx := range indices {
		if n, ok := g.nodes[idx]; ok {
			out = append(out, n)
		}
	}
	return out
}

// Definitions returns every definition in the graph, sorted.
func (g *CFG) Definitions() []types.ProgramVariable {
	set := types.NewVarSet()
	for _, n := range g.nodes {
		for v := range n.Definitions {
			set.Add(v)
		}
	}
	return set.Sorted()
}

// Freeze marks the graph read-only. The solver refuses frozen graphs.
func (g *CFG) Freeze() {
	g.frozen = true
}

// Frozen reports whether Freeze was called.
func (g *CFG) Frozen() bool {
	return g.frozen
}

func (g *CFG) addNode(n *Node) {
	g.nodes[n.Index] = n
	g.order = append(g.order, n.Index)
}

func (g *CFG) addEdge(from, to int, typ EdgeType) {
	src, dst := g.nodes[from], g.nodes[to]
	if containsInt(src.Successors, to) {
		return
	}
	src.Successors = append(src.Successors, to)
	dst.Predecessors = append(dst.Predecessors, from)
	g.Edges = append(g.Edges, Edge{Source: from, Target: to, Type: typ})
}

func (g *CFG) sortLinks() {
	sort.Ints(g.order)
	for _, n := range g.nodes {
		sort.Ints(n.Predecessors)
		sort.Ints(n.Successors)
	}
	sort.SliceStable(g.Edges, func(i, j int) bool {
		if g.Edges[i].Source != g.Edges[j].Source {
			return g.Edges[i].Source < g.Edges[j].Source
		}
		return g.Edges[i].Target < g.Edges[j].Target
	})
}

func containsInt(xs []int, x int) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}
