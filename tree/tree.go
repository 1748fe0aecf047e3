// Package tree provides a rooted phylogenetic tree.
//
// Nodes live in an arena indexed by dense integer ids; parent and
// child links are plain indices. A tree which passed Validate is
// never mutated by this package and can be shared between
// concurrently running likelihood computations.
package tree

import (
	"fmt"
	"strings"
)

// NoNode marks an absent parent or child link.
const NoNode = -1

// Node is a single tree node. Leaves carry a taxon name and a
// LeafID, the position of the taxon in leaf order.
type Node struct {
	Name         string
	BranchLength float64
	Parent       int
	Children     []int
	ID           int
	LeafID       int
}

// Tree is a rooted tree stored as a node arena. The zero node is
// always the root.
type Tree struct {
	nodes     []Node
	nodeOrder []int
	terminals []int
}

// MalformedTreeError indicates a structural violation: a cycle,
// multiple roots or a wrong number of children on an internal node.
type MalformedTreeError struct {
	NodeID int
	Reason string
}

func (e *MalformedTreeError) Error() string {
	return fmt.Sprintf("malformed tree at node %d: %s", e.NodeID, e.Reason)
}

// InvalidBranchLengthError indicates a negative (or NaN) branch length.
type InvalidBranchLengthError struct {
	NodeID int
	Length float64
}

func (e *InvalidBranchLengthError) Error() string {
	return fmt.Sprintf("invalid branch length %v on node %d", e.Length, e.NodeID)
}

// NotInternalError is returned when children of a leaf are requested.
type NotInternalError struct {
	NodeID int
}

func (e *NotInternalError) Error() string {
	return fmt.Sprintf("node %d is a leaf, it has no children", e.NodeID)
}

// NoParentError is returned when the branch length of the root is
// requested.
type NoParentError struct {
	NodeID int
}

func (e *NoParentError) Error() string {
	return fmt.Sprintf("node %d is the root, it has no branch", e.NodeID)
}

// addNode appends a fresh node to the arena and wires it under
// parent. It returns the new node id.
func (t *Tree) addNode(parent int) int {
	id := len(t.nodes)
	t.nodes = append(t.nodes, Node{
		Parent: parent,
		ID:     id,
		LeafID: NoNode,
	})
	if parent != NoNode {
		t.nodes[parent].Children = append(t.nodes[parent].Children, id)
	}
	return id
}

// NNodes returns the number of nodes.
func (t *Tree) NNodes() int {
	return len(t.nodes)
}

// NLeaves returns the number of terminal nodes.
func (t *Tree) NLeaves() int {
	return len(t.Terminals())
}

// Root returns the root node id.
func (t *Tree) Root() int {
	return 0
}

// Label returns the taxon name of a node (empty for unnamed internal
// nodes).
func (t *Tree) Label(id int) string {
	return t.nodes[id].Name
}

// LeafID returns the leaf number of a terminal node, NoNode otherwise.
func (t *Tree) LeafID(id int) int {
	return t.nodes[id].LeafID
}

// IsLeaf returns true if the node has no children.
func (t *Tree) IsLeaf(id int) bool {
	return len(t.nodes[id].Children) == 0
}

// ChildNodes returns the child ids of a node. The returned slice is
// owned by the tree and must not be modified.
func (t *Tree) ChildNodes(id int) []int {
	return t.nodes[id].Children
}

// Children returns the two children of an internal node.
func (t *Tree) Children(id int) (left, right int, err error) {
	ch := t.nodes[id].Children
	if len(ch) == 0 {
		return NoNode, NoNode, &NotInternalError{NodeID: id}
	}
	if len(ch) != 2 {
		return NoNode, NoNode, &MalformedTreeError{NodeID: id,
			Reason: fmt.Sprintf("internal node has %d children, want 2", len(ch))}
	}
	return ch[0], ch[1], nil
}

// BranchLength returns the length of the branch connecting a node to
// its parent.
func (t *Tree) BranchLength(id int) (float64, error) {
	if t.nodes[id].Parent == NoNode {
		return 0, &NoParentError{NodeID: id}
	}
	return t.nodes[id].BranchLength, nil
}

// Terminals returns ids of all the leaves, ordered by LeafID. The
// slice is cached, callers must not modify it.
func (t *Tree) Terminals() []int {
	if t.terminals == nil {
		for id := range t.nodes {
			if t.IsLeaf(id) {
				t.terminals = append(t.terminals, id)
			}
		}
	}
	return t.terminals
}

// Postorder returns node ids such that every node appears after all
// of its children and before its parent. This is the ordering the
// pruning computation relies on. The slice is cached, callers must
// not modify it.
//
// The order is computed with an explicit heap stack, so arbitrarily
// deep trees do not exhaust the call stack.
func (t *Tree) Postorder() []int {
	if t.nodeOrder == nil {
		order := make([]int, 0, len(t.nodes))
		stack := make([]int, 0, len(t.nodes))
		stack = append(stack, t.Root())
		for len(stack) > 0 && len(order) <= len(t.nodes) {
			id := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			order = append(order, id)
			stack = append(stack, t.nodes[id].Children...)
		}
		// parents precede their children; reverse
		for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
			order[i], order[j] = order[j], order[i]
		}
		t.nodeOrder = order
	}
	return t.nodeOrder
}

// Validate checks the tree invariants: a single root, internal nodes
// with exactly two children, every node reachable from the root
// exactly once, named leaves and non-negative branch lengths. It
// also warms the postorder and terminal caches, making the tree safe
// for concurrent readers afterwards.
func (t *Tree) Validate() error {
	if len(t.nodes) == 0 {
		return &MalformedTreeError{NodeID: NoNode, Reason: "empty tree"}
	}
	for id := range t.nodes {
		node := &t.nodes[id]
		if node.Parent == NoNode && id != t.Root() {
			return &MalformedTreeError{NodeID: id, Reason: "multiple roots"}
		}
		if node.Parent != NoNode {
			if !(node.BranchLength >= 0) {
				return &InvalidBranchLengthError{NodeID: id, Length: node.BranchLength}
			}
			found := false
			for _, ch := range t.nodes[node.Parent].Children {
				if ch == id {
					found = true
					break
				}
			}
			if !found {
				return &MalformedTreeError{NodeID: id, Reason: "not linked from parent"}
			}
		}
		switch nch := len(node.Children); {
		case nch == 0:
			if node.Name == "" {
				return &MalformedTreeError{NodeID: id, Reason: "unnamed leaf"}
			}
		case nch != 2:
			return &MalformedTreeError{NodeID: id,
				Reason: fmt.Sprintf("internal node has %d children, want 2", nch)}
		}
	}

	seen := make([]bool, len(t.nodes))
	for _, id := range t.Postorder() {
		if seen[id] {
			return &MalformedTreeError{NodeID: id, Reason: "node visited twice"}
		}
		seen[id] = true
	}
	for id, ok := range seen {
		if !ok {
			return &MalformedTreeError{NodeID: id, Reason: "node not reachable from root"}
		}
	}

	names := make(map[string]int, t.NLeaves())
	for _, id := range t.Terminals() {
		name := t.nodes[id].Name
		if prev, ok := names[name]; ok {
			return &MalformedTreeError{NodeID: id,
				Reason: fmt.Sprintf("taxon %q already used by node %d", name, prev)}
		}
		names[name] = id
	}
	return nil
}

// String returns the tree in Newick notation.
func (t *Tree) String() string {
	var b strings.Builder
	t.write(&b, t.Root())
	b.WriteByte(';')
	return b.String()
}

func (t *Tree) write(b *strings.Builder, id int) {
	node := &t.nodes[id]
	if len(node.Children) > 0 {
		b.WriteByte('(')
		for i, ch := range node.Children {
			if i > 0 {
				b.WriteByte(',')
			}
			t.write(b, ch)
		}
		b.WriteByte(')')
	}
	b.WriteString(node.Name)
	if node.Parent != NoNode {
		fmt.Fprintf(b, ":%0.6f", node.BranchLength)
	}
}

// FullString returns a multiline representation of the tree, one
// node per line, indented by depth.
func (t *Tree) FullString() string {
	var b strings.Builder
	depth := make([]int, len(t.nodes))
	for id, node := range t.nodes {
		if node.Parent != NoNode {
			depth[id] = depth[node.Parent] + 1
		}
		b.WriteString(strings.Repeat("    ", depth[id]))
		b.WriteString(t.longString(id))
		b.WriteByte('\n')
	}
	return strings.TrimSpace(b.String())
}

func (t *Tree) longString(id int) string {
	node := &t.nodes[id]
	s := "<"
	if node.Parent == NoNode {
		s += "root, "
	}
	if node.Name != "" {
		s += "name=" + node.Name + ", "
	}
	s += fmt.Sprintf("Id=%v, BranchLength=%v", node.ID, node.BranchLength)
	if len(node.Children) == 0 {
		s += fmt.Sprintf(", LeafId=%v", node.LeafID)
	}
	s += ">"
	return s
}
