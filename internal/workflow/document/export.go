package document

import (
	"fmt"
	"strings"

	"github.com/awalterschulze/gographviz"

	"github.com/huy-cyno/workflow-builder-poc/internal/workflow"
)

const (
	shapeLevel     = "box"
	shapeCondition = "diamond"
	shapeAction    = "ellipse"
)

// ExportDOT renders g as a Graphviz digraph for visualisation. Only standard
// Graphviz attributes are written: node shapes encode the kind, condition
// nodes list their branches in the tooltip and branch edges are labelled
// with the branch name or "else".
func ExportDOT(g *workflow.Graph, name string) (string, error) {
	if name == "" {
		name = "workflow"
	}
	out := gographviz.NewEscape()
	if err := out.SetName(name); err != nil {
		return "", err
	}
	if err := out.SetDir(true); err != nil {
		return "", err
	}
	if err := out.AddAttr(name, "rankdir", "LR"); err != nil {
		return "", err
	}

	branches := map[string][]workflow.Branch{}
	for _, n := range g.Nodes {
		attrs := map[string]string{
			string(gographviz.Label): n.Label(),
		}
		switch d := n.Data.(type) {
		case workflow.LevelData:
			attrs[string(gographviz.Shape)] = shapeLevel
		case workflow.ConditionData:
			attrs[string(gographviz.Shape)] = shapeCondition
			branches[n.ID] = d.Branches
			if len(d.Branches) > 0 {
				attrs[string(gographviz.Tooltip)] = describeBranches(d.Branches)
			}
		case workflow.ActionData:
			attrs[string(gographviz.Shape)] = shapeAction
		}
		if err := out.AddNode(name, n.ID, attrs); err != nil {
			return "", fmt.Errorf("export node %q: %w", n.ID, err)
		}
	}

	for _, e := range g.Edges {
		attrs := map[string]string{}
		if label := edgeLabel(e, branches[e.Source]); label != "" {
			attrs[string(gographviz.Label)] = label
		}
		if err := out.AddEdge(e.Source, e.Target, true, attrs); err != nil {
			return "", fmt.Errorf("export edge %q: %w", e.ID, err)
		}
	}

	return out.String(), nil
}

func edgeLabel(e workflow.Edge, branches []workflow.Branch) string {
	if e.BranchTag == "" {
		return ""
	}
	if e.BranchTag == workflow.ElseTag {
		return workflow.ElseTag
	}
	for i, b := range branches {
		if workflow.BranchTag(i) == e.BranchTag {
			return b.Name
		}
	}
	return e.BranchTag
}

func describeBranches(branches []workflow.Branch) string {
	parts := make([]string, 0, len(branches))
	for _, b := range branches {
		parts = append(parts, b.Name+": "+b.Condition)
	}
	return strings.Join(parts, "|")
}
