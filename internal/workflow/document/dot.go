package document

import (
	"fmt"
	"html"
	"strconv"
	"strings"

	"github.com/awalterschulze/gographviz"

	"github.com/huy-cyno/workflow-builder-poc/internal/workflow"
)

// DOT attributes understood on import. Besides the standard label and shape,
// workflow payloads ride on custom attributes:
//
//	start [kind=level, label="Collect", level_name="Identity", level_type="Individuals", steps="APPLICANT_DATA,IDENTITY"]
//	risk  [kind=condition, branches="High Risk: riskScore >= 70|Medium: riskScore >= 30"]
//	high  [kind=action, actions="createCase:Create review case|sendEmail:Alert compliance:ops@example.com"]
//	risk -> high [branch_tag="branch-0"]
const (
	attrKind      = "kind"
	attrLabel     = "label"
	attrShape     = "shape"
	attrLevelName = "level_name"
	attrLevelType = "level_type"
	attrSteps     = "steps"
	attrBranches  = "branches"
	attrActions   = "actions"
	attrBranchTag = "branch_tag"
	attrTooltip   = "tooltip"
)

// dotBuilder receives the analysed DOT statements. Unlike gographviz.Graph it
// accepts any attribute name and keeps nodes and edges in statement order.
type dotBuilder struct {
	name      string
	directed  bool
	nodeOrder []string
	nodes     map[string]map[string]string
	edges     []dotEdge
}

type dotEdge struct {
	From  string
	To    string
	Attrs map[string]string
}

var _ gographviz.Interface = (*dotBuilder)(nil)

func newDOTBuilder() *dotBuilder {
	return &dotBuilder{nodes: map[string]map[string]string{}}
}

func (b *dotBuilder) SetStrict(bool) error { return nil }

func (b *dotBuilder) SetDir(directed bool) error {
	b.directed = directed
	return nil
}

func (b *dotBuilder) SetName(name string) error {
	b.name = unquote(name)
	return nil
}

func (b *dotBuilder) AddPortEdge(src, _, dst, _ string, _ bool, attrs map[string]string) error {
	b.edges = append(b.edges, dotEdge{From: unquote(src), To: unquote(dst), Attrs: cleanAttrs(attrs)})
	return nil
}

func (b *dotBuilder) AddEdge(src, dst string, directed bool, attrs map[string]string) error {
	return b.AddPortEdge(src, "", dst, "", directed, attrs)
}

func (b *dotBuilder) AddNode(_ string, name string, attrs map[string]string) error {
	name = unquote(name)
	existing, ok := b.nodes[name]
	if !ok {
		b.nodeOrder = append(b.nodeOrder, name)
		b.nodes[name] = cleanAttrs(attrs)
		return nil
	}
	for k, v := range cleanAttrs(attrs) {
		existing[k] = v
	}
	return nil
}

func (b *dotBuilder) AddAttr(string, string, string) error { return nil }

func (b *dotBuilder) AddSubGraph(string, string, map[string]string) error { return nil }

func (b *dotBuilder) String() string { return b.name }

// ParseDOT compiles a Graphviz digraph into a workflow graph. Node order
// follows first appearance and edge order follows statement order.
func ParseDOT(dot string) (*workflow.Graph, error) {
	ast, err := gographviz.ParseString(dot)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DOT: %w", err)
	}

	b := newDOTBuilder()
	if err := gographviz.Analyse(ast, b); err != nil {
		return nil, fmt.Errorf("failed to analyze DOT: %w", err)
	}
	if !b.directed {
		return nil, fmt.Errorf("workflow DOT must be a digraph")
	}

	g := &workflow.Graph{}
	branchNames := map[string][]workflow.Branch{}

	for _, name := range b.nodeOrder {
		attrs := b.nodes[name]
		data, err := nodeDataFromAttrs(name, attrs)
		if err != nil {
			return nil, err
		}
		if c, ok := data.(workflow.ConditionData); ok {
			branchNames[name] = c.Branches
		}
		g.Nodes = append(g.Nodes, workflow.Node{ID: name, Data: data})
	}

	for i, e := range b.edges {
		tag := e.Attrs[attrBranchTag]
		if tag == "" {
			if branches, ok := branchNames[e.From]; ok {
				tag = tagFromLabel(e.Attrs[attrLabel], branches)
			}
		}
		g.Edges = append(g.Edges, workflow.Edge{
			ID:        fmt.Sprintf("edge-%d", i+1),
			Source:    e.From,
			Target:    e.To,
			BranchTag: tag,
		})
	}

	return g, nil
}

func nodeDataFromAttrs(name string, attrs map[string]string) (workflow.NodeData, error) {
	kindAttr := attrs[attrKind]
	if kindAttr == "" {
		kindAttr = kindFromShape(attrs[attrShape])
	}
	kind, err := ParseKind(kindAttr)
	if err != nil {
		return nil, fmt.Errorf("node %q: %w", name, err)
	}

	label := attrs[attrLabel]
	if label == "" {
		label = name
	}

	switch kind {
	case workflow.KindLevel:
		return workflow.LevelData{
			Label:     label,
			LevelName: attrs[attrLevelName],
			LevelType: attrs[attrLevelType],
			Steps:     splitList(attrs[attrSteps], ","),
		}, nil
	case workflow.KindCondition:
		raw := attrs[attrBranches]
		if raw == "" {
			raw = attrs[attrTooltip]
		}
		branches, err := parseBranches(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid branches in node %q: %w", name, err)
		}
		return workflow.ConditionData{Label: label, Branches: branches}, nil
	default:
		actions, err := parseActions(attrs[attrActions])
		if err != nil {
			return nil, fmt.Errorf("invalid actions in node %q: %w", name, err)
		}
		return workflow.ActionData{Label: label, Actions: actions}, nil
	}
}

func kindFromShape(shape string) string {
	switch shape {
	case shapeLevel:
		return string(workflow.KindLevel)
	case shapeCondition:
		return string(workflow.KindCondition)
	case shapeAction:
		return string(workflow.KindAction)
	}
	return ""
}

// tagFromLabel maps an exported edge label (branch name or "else") back to a
// branch tag.
func tagFromLabel(label string, branches []workflow.Branch) string {
	if label == "" {
		return ""
	}
	if strings.EqualFold(label, workflow.ElseTag) {
		return workflow.ElseTag
	}
	for i, br := range branches {
		if br.Name == label {
			return workflow.BranchTag(i)
		}
	}
	return ""
}

// parseBranches reads "Name: condition|Name: condition". A part without a
// name is named after its position.
func parseBranches(raw string) ([]workflow.Branch, error) {
	parts := splitList(raw, "|")
	out := make([]workflow.Branch, 0, len(parts))
	for i, part := range parts {
		name, cond, ok := strings.Cut(part, ":")
		if !ok {
			name, cond = fmt.Sprintf("Branch %d", i+1), part
		}
		name = strings.TrimSpace(name)
		cond = strings.TrimSpace(cond)
		if cond == "" {
			return nil, fmt.Errorf("branch %q has an empty condition", name)
		}
		out = append(out, workflow.Branch{Name: name, Condition: cond})
	}
	return out, nil
}

// parseActions reads "type:title[:value]|...".
func parseActions(raw string) ([]workflow.Action, error) {
	parts := splitList(raw, "|")
	out := make([]workflow.Action, 0, len(parts))
	for _, part := range parts {
		fields := strings.SplitN(part, ":", 3)
		if len(fields) < 2 {
			return nil, fmt.Errorf("invalid action %q (expected type:title[:value])", part)
		}
		a := workflow.Action{Type: strings.TrimSpace(fields[0]), Title: strings.TrimSpace(fields[1])}
		if len(fields) == 3 {
			a.Value = strings.TrimSpace(fields[2])
		}
		if a.Type == "" {
			return nil, fmt.Errorf("empty action type in %q", part)
		}
		out = append(out, a)
	}
	return out, nil
}

func splitList(raw, sep string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, sep)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func cleanAttrs(attrs map[string]string) map[string]string {
	out := make(map[string]string, len(attrs))
	for k, v := range attrs {
		out[unquote(k)] = html.UnescapeString(unquote(v))
	}
	return out
}

// unquote strips the quotes graphviz keeps around string literals.
func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		if u, err := strconv.Unquote(s); err == nil {
			return u
		}
		return s[1 : len(s)-1]
	}
	return s
}
