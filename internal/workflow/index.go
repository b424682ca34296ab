package workflow

// Index is the normalized, read-only view of a Graph used by the engine.
// It is safe for concurrent use by any number of runs.
type Index struct {
	graph    *Graph
	nodes    map[string]*Node
	outgoing map[string][]Edge
	incoming map[string]int
}

// NewIndex validates the graph structure and builds the lookup tables.
// Every edge endpoint must reference a declared node.
func NewIndex(g *Graph) (*Index, error) {
	if g == nil {
		return nil, newError(CodeInvalidGraph, "", "graph is nil")
	}

	ix := &Index{
		graph:    g,
		nodes:    make(map[string]*Node, len(g.Nodes)),
		outgoing: make(map[string][]Edge, len(g.Nodes)),
		incoming: make(map[string]int, len(g.Nodes)),
	}

	for i := range g.Nodes {
		n := &g.Nodes[i]
		if n.ID == "" {
			return nil, newError(CodeInvalidGraph, "", "node at position %d has an empty id", i)
		}
		if n.Data == nil || !n.Kind().Valid() {
			return nil, newError(CodeInvalidGraph, n.ID, "node has no valid kind payload")
		}
		if _, dup := ix.nodes[n.ID]; dup {
			return nil, newError(CodeInvalidGraph, n.ID, "duplicate node id %q", n.ID)
		}
		ix.nodes[n.ID] = n
	}

	for _, e := range g.Edges {
		if _, ok := ix.nodes[e.Source]; !ok {
			return nil, newError(CodeNodeNotFound, e.Source, "edge %q references unknown source node %q", e.ID, e.Source)
		}
		if _, ok := ix.nodes[e.Target]; !ok {
			return nil, newError(CodeNodeNotFound, e.Target, "edge %q references unknown target node %q", e.ID, e.Target)
		}
		ix.outgoing[e.Source] = append(ix.outgoing[e.Source], e)
		ix.incoming[e.Target]++
	}

	return ix, nil
}

func (ix *Index) Graph() *Graph {
	return ix.graph
}

func (ix *Index) Node(id string) (*Node, bool) {
	n, ok := ix.nodes[id]
	return n, ok
}

// Outgoing returns the edges leaving id in declaration order.
func (ix *Index) Outgoing(id string) []Edge {
	return ix.outgoing[id]
}

func (ix *Index) InDegree(id string) int {
	return ix.incoming[id]
}

// StartCandidates lists, in declaration order, every node no edge points to.
func (ix *Index) StartCandidates() []string {
	var out []string
	for _, n := range ix.graph.Nodes {
		if ix.incoming[n.ID] == 0 {
			out = append(out, n.ID)
		}
	}
	return out
}

// StartNode returns the first node in declaration order that is not the
// target of any edge. Additional candidates are ignored.
func (ix *Index) StartNode() (string, error) {
	for _, n := range ix.graph.Nodes {
		if ix.incoming[n.ID] == 0 {
			return n.ID, nil
		}
	}
	return "", newError(CodeNoStartNode, "", "no node without incoming edges")
}
