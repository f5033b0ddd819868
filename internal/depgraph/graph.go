package depgraph

import (
	"github.com/envsync/envsync/internal/schema"
)

// Node is an arena entry. Children are arena indexes in first-seen order.
type Node struct {
	Ref      schema.ObjectRef
	Children []int
}

// Graph is a flat arena of resolved objects indexed by identity.
// An object is processed once it has an arena entry; its children are
// recorded only by the resolution that created the entry.
type Graph struct {
	nodes []Node
	index map[schema.ObjectRef]int
}

// NewGraph returns an empty arena.
func NewGraph() *Graph {
	return &Graph{index: make(map[schema.ObjectRef]int)}
}

// Processed reports whether the object has already been resolved.
func (g *Graph) Processed(ref schema.ObjectRef) bool {
	_, ok := g.index[ref]
	return ok
}

// Lookup returns the arena index for ref.
func (g *Graph) Lookup(ref schema.ObjectRef) (int, bool) {
	id, ok := g.index[ref]
	return id, ok
}

// Len returns the number of processed objects.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// ProcessedByKind returns processed object names grouped by kind.
func (g *Graph) ProcessedByKind() map[schema.Kind][]string {
	out := make(map[schema.Kind][]string)
	for _, n := range g.nodes {
		out[n.Ref.Kind] = append(out[n.Ref.Kind], n.Ref.Name)
	}
	return out
}

func (g *Graph) add(ref schema.ObjectRef) int {
	id := len(g.nodes)
	g.nodes = append(g.nodes, Node{Ref: ref})
	g.index[ref] = id
	return id
}

func (g *Graph) link(parent, child int) {
	g.nodes[parent].Children = append(g.nodes[parent].Children, child)
}

// Tree is the result of one resolution. Only the nodes created by that
// resolution, arena indexes [first, end), are expanded; anything processed
// earlier in the run is a leaf.
type Tree struct {
	graph *Graph
	root  int
	first int
	end   int
}

// Graph returns the arena the tree was resolved into.
func (t *Tree) Graph() *Graph {
	return t.graph
}

// Leaf reports whether the root was already processed before this resolution.
func (t *Tree) Leaf() bool {
	return t.first == t.end
}

// Root returns the arena index of the root.
func (t *Tree) Root() int {
	return t.root
}

// Ref returns the object at id.
func (t *Tree) Ref(id int) schema.ObjectRef {
	return t.graph.nodes[id].Ref
}

// Children returns the dependencies of id as seen by this tree.
func (t *Tree) Children(id int) []int {
	if id < t.first || id >= t.end {
		return nil
	}
	return t.graph.nodes[id].Children
}

// Render converts the tree into its nested form. An object is expanded at
// its first occurrence only; later occurrences are leaves.
func (t *Tree) Render() *schema.DependencyTree {
	expanded := make(map[int]bool)
	var walk func(id int) *schema.DependencyTree
	walk = func(id int) *schema.DependencyTree {
		ref := t.Ref(id)
		out := &schema.DependencyTree{
			Kind:         ref.Kind,
			Name:         ref.Name,
			Schema:       ref.Schema,
			Dependencies: []*schema.DependencyTree{},
		}
		if expanded[id] {
			return out
		}
		expanded[id] = true
		for _, c := range t.Children(id) {
			out.Dependencies = append(out.Dependencies, walk(c))
		}
		return out
	}
	return walk(t.root)
}
