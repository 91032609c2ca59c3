package coverage

import (
	"sort"

	"github.com/l3aro/dfcov/pkg/types"
)

// NodeID addresses a node in a Tree.
type NodeID int

// NoParent is the parent handle of the root node.
const NoParent NodeID = -1

// DefaultPackage names the tree node of classes without a package.
const DefaultPackage = "(default)"

// TreeNode is one node of the aggregation tree: the root, a package, or a
// class leaf carrying its ClassData.
type TreeNode struct {
	Name     string
	Parent   NodeID
	Children map[string]NodeID
	Counts   Counts
	Class    *ClassData
}

// Tree is an arena of nodes rooted at node 0. Parents are handles, so nodes
// never own one another.
type Tree struct {
	nodes []TreeNode
}

// NewTree creates a tree holding only its root.
func NewTree(rootName string) *Tree {
	return &Tree{nodes: []TreeNode{{Name: rootName, Parent: NoParent, Children: map[string]NodeID{}}}}
}

// Root returns the root handle.
func (t *Tree) Root() NodeID {
	return 0
}

// Node returns the node behind id. The pointer is invalidated by AddChild.
func (t *Tree) Node(id NodeID) *TreeNode {
	return &t.nodes[id]
}

// Len returns the number of nodes.
func (t *Tree) Len() int {
	return len(t.nodes)
}

// AddChild returns the child of parent named name, creating it if needed.
func (t *Tree) AddChild(parent NodeID, name string) NodeID {
	if id, ok := t.nodes[parent].Children[name]; ok {
		return id
	}
	id := NodeID(len(t.nodes))
	t.nodes = append(t.nodes, TreeNode{Name: name, Parent: parent, Children: map[string]NodeID{}})
	t.nodes[parent].Children[name] = id
	return id
}

// AddClass places a class under its package node and returns the leaf.
func (t *Tree) AddClass(c *ClassData) NodeID {
	pkg := c.Package
	if pkg == "" {
		pkg = DefaultPackage
	}
	leaf := t.AddChild(t.AddChild(t.Root(), pkg), types.SimpleName(c.Name))
	t.nodes[leaf].Class = c
	return leaf
}

// Lookup follows a path of names from the root.
func (t *Tree) Lookup(path ...string) (NodeID, bool) {
	id := t.Root()
	for _, name := range path {
		child, ok := t.nodes[id].Children[name]
		if !ok {
			return 0, false
		}
		id = child
	}
	return id, true
}

// Children returns the children of id sorted by name.
func (t *Tree) Children(id NodeID) []NodeID {
	n := &t.nodes[id]
	names := make([]string, 0, len(n.Children))
	for name := range n.Children {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]NodeID, len(names))
	for i, name := range names {
		out[i] = n.Children[name]
	}
	return out
}

// IsRoot reports whether id is the root.
func (t *Tree) IsRoot(id NodeID) bool {
	return t.nodes[id].Parent == NoParent
}

// IsLeaf reports whether id has no children.
func (t *Tree) IsLeaf(id NodeID) bool {
	return len(t.nodes[id].Children) == 0
}

// Aggregate recomputes every node's counts bottom-up. Class leaves take the
// counts of their last ComputeCoverage; inner nodes sum their children.
func (t *Tree) Aggregate() Counts {
	return t.aggregate(t.Root())
}

func (t *Tree) aggregate(id NodeID) Counts {
	var sum Counts
	if c := t.nodes[id].Class; c != nil {
		sum = c.Counts()
	}
	for _, child := range t.Children(id) {
		sum = sum.Add(t.aggregate(child))
	}
	t.nodes[id].Counts = sum
	return sum
}

// Walk visits the tree depth first in name order. Returning an error from fn
// stops the walk.
func (t *Tree) Walk(fn func(id NodeID, depth int) error) error {
	return t.walk(t.Root(), 0, fn)
}

func (t *Tree) walk(id NodeID, depth int, fn func(NodeID, int) error) error {
	if err := fn(id, depth); err != nil {
		return err
	}
	for _, child := range t.Children(id) {
		if err := t.walk(child, depth+1, fn); err != nil {
			return err
		}
	}
	return nil
}
