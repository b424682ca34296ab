// Package analysis inspects workflow graphs without running them: structural
// validation for editors and path queries over the edge set.
package analysis

import (
	"errors"
	"fmt"
	"strings"

	"github.com/huy-cyno/workflow-builder-poc/internal/workflow"
	"github.com/huy-cyno/workflow-builder-poc/internal/workflow/condition"
)

const (
	IssueInvalidGraph       = "invalid_graph"
	IssueNoStartNode        = "no_start_node"
	IssueMultipleStarts     = "multiple_start_nodes"
	IssueUnreachable        = "unreachable_node"
	IssueUnparsableCond     = "unparsable_condition"
	IssueBranchWithoutEdge  = "branch_without_edge"
	IssueUnknownBranchTag   = "unknown_branch_tag"
	IssueDuplicateBranchTag = "duplicate_branch_tag"
	IssueNoBranches         = "condition_without_branches"
	IssueMultipleOutgoing   = "multiple_outgoing_edges"
	IssueIgnoredBranchTag   = "ignored_branch_tag"
	IssueCycle              = "cycle"
)

type Issue struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	NodeID  string `json:"node_id,omitempty"`
	EdgeID  string `json:"edge_id,omitempty"`
}

// Report is the outcome of Validate. Errors make a graph unrunnable;
// warnings flag graphs that run but probably not as intended.
type Report struct {
	Valid     bool    `json:"valid"`
	StartNode string  `json:"start_node,omitempty"`
	Errors    []Issue `json:"errors"`
	Warnings  []Issue `json:"warnings"`
}

func (r *Report) errorf(code, nodeID, edgeID, format string, args ...any) {
	r.Errors = append(r.Errors, Issue{Code: code, NodeID: nodeID, EdgeID: edgeID, Message: fmt.Sprintf(format, args...)})
}

func (r *Report) warnf(code, nodeID, edgeID, format string, args ...any) {
	r.Warnings = append(r.Warnings, Issue{Code: code, NodeID: nodeID, EdgeID: edgeID, Message: fmt.Sprintf(format, args...)})
}

// Validate checks g and returns a report. It never fails: structural
// problems are reported as errors on the report.
func Validate(g *workflow.Graph) *Report {
	r := &Report{Errors: []Issue{}, Warnings: []Issue{}}

	ix, err := workflow.NewIndex(g)
	if err != nil {
		var xe *workflow.ExecutionError
		code := IssueInvalidGraph
		nodeID := ""
		if errors.As(err, &xe) {
			code = string(xe.Code)
			nodeID = xe.NodeID
		}
		r.errorf(code, nodeID, "", "%v", err)
		return r
	}

	start, err := ix.StartNode()
	if err != nil {
		r.errorf(IssueNoStartNode, "", "", "no node without incoming edges; the workflow has no entry point")
	} else {
		r.StartNode = start
		if c := ix.StartCandidates(); len(c) > 1 {
			r.warnf(IssueMultipleStarts, start, "", "%d nodes have no incoming edges (%s); %q is used as the start",
				len(c), strings.Join(c, ", "), start)
		}
		reachable := Reachable(ix, start)
		for _, n := range g.Nodes {
			if !reachable[n.ID] {
				r.warnf(IssueUnreachable, n.ID, "", "node %q is not reachable from the start node", n.ID)
			}
		}
	}

	for i := range g.Nodes {
		checkOutgoing(r, ix, &g.Nodes[i])
	}

	if cyc := FindCycle(ix); len(cyc) > 0 {
		r.warnf(IssueCycle, cyc[0], "", "edges form a cycle (%s); a run that enters it fails with cycle_detected",
			strings.Join(cyc, " -> "))
	}

	r.Valid = len(r.Errors) == 0
	return r
}

func checkOutgoing(r *Report, ix *workflow.Index, n *workflow.Node) {
	edges := ix.Outgoing(n.ID)

	cd, isCond := n.Data.(workflow.ConditionData)
	if !isCond {
		if len(edges) > 1 {
			r.warnf(IssueMultipleOutgoing, n.ID, "", "%s node %q has %d outgoing edges; only the first (%q) is followed",
				n.Kind(), n.ID, len(edges), edges[0].Target)
		}
		for _, e := range edges {
			if e.BranchTag != "" {
				r.warnf(IssueIgnoredBranchTag, n.ID, e.ID, "branch tag %q on an edge from a %s node is ignored", e.BranchTag, n.Kind())
			}
		}
		return
	}

	if len(cd.Branches) == 0 {
		r.warnf(IssueNoBranches, n.ID, "", "condition node %q has no branches; only its else edge can be taken", n.ID)
	}

	seen := map[string]string{}
	for _, e := range edges {
		if prev, dup := seen[e.BranchTag]; dup {
			r.warnf(IssueDuplicateBranchTag, n.ID, e.ID, "branch tag %q is used by edges %q and %q; the first wins", e.BranchTag, prev, e.ID)
			continue
		}
		seen[e.BranchTag] = e.ID
		if !knownTag(e.BranchTag, len(cd.Branches)) {
			r.warnf(IssueUnknownBranchTag, n.ID, e.ID, "edge tag %q matches no branch of condition node %q", e.BranchTag, n.ID)
		}
	}

	for i, b := range cd.Branches {
		if err := condition.Validate(b.Condition); err != nil {
			r.warnf(IssueUnparsableCond, n.ID, "", "branch %q: %v; it always evaluates to false", b.Name, err)
		}
		if _, ok := seen[workflow.BranchTag(i)]; !ok {
			r.warnf(IssueBranchWithoutEdge, n.ID, "", "branch %q has no outgoing edge; when true, evaluation continues with the next branch", b.Name)
		}
	}
}

func knownTag(tag string, branches int) bool {
	if tag == workflow.ElseTag {
		return true
	}
	for i := 0; i < branches; i++ {
		if tag == workflow.BranchTag(i) {
			return true
		}
	}
	return false
}
