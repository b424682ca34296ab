package analysis

import "github.com/huy-cyno/workflow-builder-poc/internal/workflow"

// DefaultPathLimit bounds AllPaths when the caller passes limit <= 0.
const DefaultPathLimit = 1000

// EndNodes returns, in declaration order, the nodes without outgoing edges.
func EndNodes(ix *workflow.Index) []string {
	var out []string
	for _, n := range ix.Graph().Nodes {
		if len(ix.Outgoing(n.ID)) == 0 {
			out = append(out, n.ID)
		}
	}
	return out
}

// AllPaths enumerates every simple path from the start node, following all
// outgoing edges of every node. A path ends at a node with no outgoing edge
// or whose every successor is already on the path. At most limit paths are
// returned; truncated reports whether more exist.
func AllPaths(ix *workflow.Index, limit int) (paths [][]string, truncated bool) {
	if limit <= 0 {
		limit = DefaultPathLimit
	}
	start, err := ix.StartNode()
	if err != nil {
		return nil, false
	}

	type frame struct {
		path []string
	}
	stack := []frame{{path: []string{start}}}

	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		last := top.path[len(top.path)-1]

		edges := ix.Outgoing(last)
		next := make([]frame, 0, len(edges))
		for _, e := range edges {
			if contains(top.path, e.Target) {
				continue
			}
			p := make([]string, len(top.path), len(top.path)+1)
			copy(p, top.path)
			next = append(next, frame{path: append(p, e.Target)})
		}

		if len(next) == 0 {
			if len(paths) == limit {
				return paths, true
			}
			paths = append(paths, top.path)
			continue
		}
		// Push in reverse so the first edge is explored first.
		for i := len(next) - 1; i >= 0; i-- {
			stack = append(stack, next[i])
		}
	}
	return paths, false
}

// IsBefore reports whether b can be reached from a by following edges. A
// node is considered before itself.
func IsBefore(ix *workflow.Index, a, b string) bool {
	if _, ok := ix.Node(a); !ok {
		return false
	}
	return Reachable(ix, a)[b]
}

// Reachable returns the set of nodes reachable from id, id included.
func Reachable(ix *workflow.Index, id string) map[string]bool {
	seen := map[string]bool{id: true}
	stack := []string{id}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, e := range ix.Outgoing(cur) {
			if !seen[e.Target] {
				seen[e.Target] = true
				stack = append(stack, e.Target)
			}
		}
	}
	return seen
}

// FindCycle returns the nodes of one edge cycle, first node repeated at the
// end, or nil when the graph is acyclic.
func FindCycle(ix *workflow.Index) []string {
	const (
		white = iota
		grey
		black
	)
	color := map[string]int{}

	type frame struct {
		id   string
		next int
	}

	for _, root := range ix.Graph().Nodes {
		if color[root.ID] != white {
			continue
		}
		stack := []frame{{id: root.ID}}
		color[root.ID] = grey

		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			edges := ix.Outgoing(top.id)
			if top.next == len(edges) {
				color[top.id] = black
				stack = stack[:len(stack)-1]
				continue
			}
			target := edges[top.next].Target
			top.next++

			switch color[target] {
			case white:
				color[target] = grey
				stack = append(stack, frame{id: target})
			case grey:
				var cycle []string
				for i := len(stack) - 1; i >= 0; i-- {
					cycle = append([]string{stack[i].id}, cycle...)
					if stack[i].id == target {
						break
					}
				}
				return append(cycle, target)
			}
		}
	}
	return nil
}

func contains(path []string, id string) bool {
	for _, p := range path {
		if p == id {
			return true
		}
	}
	return false
}
