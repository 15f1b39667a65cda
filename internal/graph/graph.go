// Package graph provides the dependency graph structure and topological
// ordering used to linearize record types for dependency-respecting export
// and cloning.
package graph

// Edge represents a dependency relationship between two types.
type Edge struct {
	From string // dependency (must come first)
	To   string // dependent
}

// EdgeMeta contains metadata about an edge relationship.
type EdgeMeta struct {
	Field    string // the field on the dependent type declaring the reference
	Nullable bool
}

// Graph is a directed dependency graph over type names. An edge From -> To
// means To depends on From: From must be emitted or created before To.
// Node and edge insertion order is preserved so orderings are stable.
type Graph struct {
	nodes        map[string]bool
	order        []string            // node insertion order
	children     map[string][]string // outgoing edges
	parents      map[string][]string // incoming edges
	edgeMetadata map[Edge]*EdgeMeta
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		nodes:        make(map[string]bool),
		children:     make(map[string][]string),
		parents:      make(map[string][]string),
		edgeMetadata: make(map[Edge]*EdgeMeta),
	}
}

// AddNode adds a type node to the graph. Adding an existing node is a no-op.
func (g *Graph) AddNode(name string) {
	if g.nodes[name] {
		return
	}
	g.nodes[name] = true
	g.order = append(g.order, name)
}

// AddEdge adds a from -> to dependency edge. Both endpoints are added as
// nodes if not present. Duplicate edges are kept; they do not change the
// resulting order but inflate in-degrees symmetrically.
func (g *Graph) AddEdge(from, to string) {
	g.AddNode(from)
	g.AddNode(to)
	g.children[from] = append(g.children[from], to)
	g.parents[to] = append(g.parents[to], from)
}

// AddEdgeWithMeta adds an edge annotated with the declaring field.
func (g *Graph) AddEdgeWithMeta(from, to, field string, nullable bool) {
	g.AddEdge(from, to)
	g.edgeMetadata[Edge{From: from, To: to}] = &EdgeMeta{Field: field, Nullable: nullable}
}

// EdgeMeta returns metadata for an edge, or nil if none was recorded.
func (g *Graph) EdgeMeta(from, to string) *EdgeMeta {
	return g.edgeMetadata[Edge{From: from, To: to}]
}

// HasNode reports whether the graph contains the given node.
func (g *Graph) HasNode(name string) bool {
	return g.nodes[name]
}

// Children returns all direct dependents of a node.
func (g *Graph) Children(name string) []string {
	return g.children[name]
}

// Parents returns all direct dependencies of a node.
func (g *Graph) Parents(name string) []string {
	return g.parents[name]
}

// Nodes returns all nodes in insertion order.
func (g *Graph) Nodes() []string {
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}

// Edges returns all edges in node insertion order.
func (g *Graph) Edges() []Edge {
	var edges []Edge
	for _, from := range g.order {
		for _, to := range g.children[from] {
			edges = append(edges, Edge{From: from, To: to})
		}
	}
	return edges
}

// NodeCount returns the number of nodes in the graph.
func (g *Graph) NodeCount() int {
	return len(g.nodes)
}

// EdgeCount returns the number of edges in the graph.
func (g *Graph) EdgeCount() int {
	count := 0
	for _, children := range g.children {
		count += len(children)
	}
	return count
}

// InDegree returns the number of incoming edges of a node.
func (g *Graph) InDegree(name string) int {
	return len(g.parents[name])
}

// OutDegree returns the number of outgoing edges of a node.
func (g *Graph) OutDegree(name string) int {
	return len(g.children[name])
}
