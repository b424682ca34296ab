package workflow

// Resolution is the outcome of choosing the next node after a step.
type Resolution struct {
	Found     bool
	Target    string
	EdgeID    string
	Branch    string
	Condition string
	// NoMatchingBranch marks a condition node with no true branch edge and no else edge.
	NoMatchingBranch bool
	Evaluations      []BranchEvaluation
}

// BranchEvaluation records one condition checked while resolving a
// condition node.
type BranchEvaluation struct {
	Index     int    `json:"index"`
	Name      string `json:"name"`
	Condition string `json:"condition"`
	Matched   bool   `json:"matched"`
	HasEdge   bool   `json:"has_edge"`
	Detail    string `json:"detail,omitempty"`
}

// ResolveNext picks exactly one outgoing edge of node. Condition nodes take
// the first branch whose condition holds and that has a matching edge, then
// the else edge. Every other node takes its first outgoing edge.
func ResolveNext(ix *Index, node *Node, vars Context, eval Evaluator) Resolution {
	edges := ix.Outgoing(node.ID)

	cond, ok := node.Data.(ConditionData)
	if !ok {
		if len(edges) == 0 {
			return Resolution{}
		}
		return Resolution{Found: true, Target: edges[0].Target, EdgeID: edges[0].ID}
	}

	var res Resolution
	for i, b := range cond.Branches {
		matched, err := eval.Eval(b.Condition, vars)
		ev := BranchEvaluation{Index: i, Name: b.Name, Condition: b.Condition, Matched: matched}
		if err != nil {
			ev.Detail = err.Error()
		}
		if matched {
			// A true branch without an edge falls through to the next branch, not to else.
			if e, found := edgeWithTag(edges, BranchTag(i)); found {
				ev.HasEdge = true
				res.Evaluations = append(res.Evaluations, ev)
				res.Found = true
				res.Target = e.Target
				res.EdgeID = e.ID
				res.Branch = b.Name
				res.Condition = b.Condition
				return res
			}
		}
		res.Evaluations = append(res.Evaluations, ev)
	}

	if e, found := edgeWithTag(edges, ElseTag); found {
		res.Found = true
		res.Target = e.Target
		res.EdgeID = e.ID
		res.Branch = ElseTag
		return res
	}

	res.NoMatchingBranch = true
	return res
}

func edgeWithTag(edges []Edge, tag string) (Edge, bool) {
	for _, e := range edges {
		if e.BranchTag == tag {
			return e, true
		}
	}
	return Edge{}, false
}
