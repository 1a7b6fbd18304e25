// Package property implements property trees: per-commit trees of
// transform, effect, clip and scroll nodes that many layers reference.
//
// Trees are arenas. Nodes are addressed by integer id, the root is always
// id 0, and every other node's parent id is smaller than its own, so a
// single forward pass visits parents before children.
package property

// RootNodeID is the id of the root node of every non-empty tree.
const RootNodeID = 0

// InvalidNodeID marks the absence of a node.
const InvalidNodeID = -1

// ElementID identifies the animation/scroll target that owns a node.
// Layers use their layer id.
type ElementID int

// Tree is an arena of nodes of type T with parent back references.
type Tree[T any] struct {
	nodes   []T
	parents []int
}

// Insert appends n as a child of parentID and returns its id.
// The first node inserted becomes the root and must use InvalidNodeID as
// parent.
func (t *Tree[T]) Insert(n T, parentID int) int {
	id := len(t.nodes)
	if id == RootNodeID {
		parentID = InvalidNodeID
	} else if parentID < 0 || parentID >= id {
		panic("property: parent must be inserted before its children")
	}
	t.nodes = append(t.nodes, n)
	t.parents = append(t.parents, parentID)
	return id
}

// Node returns the node with the given id, or nil if there is none.
func (t *Tree[T]) Node(id int) *T {
	if id < 0 || id >= len(t.nodes) {
		return nil
	}
	return &t.nodes[id]
}

// ParentID returns the parent id of a node, InvalidNodeID for the root.
func (t *Tree[T]) ParentID(id int) int {
	if id < 0 || id >= len(t.parents) {
		return InvalidNodeID
	}
	return t.parents[id]
}

// Parent returns the parent node of id, or nil for the root.
func (t *Tree[T]) Parent(id int) *T {
	return t.Node(t.ParentID(id))
}

// Size returns the number of nodes.
func (t *Tree[T]) Size() int {
	return len(t.nodes)
}

// Clear removes every node.
func (t *Tree[T]) Clear() {
	t.nodes = t.nodes[:0]
	t.parents = t.parents[:0]
}

// IsAncestor reports whether ancestor lies on the parent chain of id,
// including id itself.
func (t *Tree[T]) IsAncestor(ancestor, id int) bool {
	for ; id != InvalidNodeID; id = t.ParentID(id) {
		if id == ancestor {
			return true
		}
	}
	return false
}

// clone copies the arena. Node values are copied; slices inside nodes
// are treated as immutable and shared.
func (t *Tree[T]) clone() Tree[T] {
	return Tree[T]{
		nodes:   append([]T(nil), t.nodes...),
		parents: append([]int(nil), t.parents...),
	}
}

func (t *Tree[T]) each(fn func(id int, n *T)) {
	for i := range t.nodes {
		fn(i, &t.nodes[i])
	}
}
