package workflow

import "fmt"

type Kind string

const (
	KindLevel     Kind = "level"
	KindCondition Kind = "condition"
	KindAction    Kind = "action"
)

// ElseTag is the branch tag of a condition node's fallback output.
const ElseTag = "else"

func (k Kind) Valid() bool {
	switch k {
	case KindLevel, KindCondition, KindAction:
		return true
	}
	return false
}

// BranchTag returns the edge tag for the i-th branch of a condition node.
func BranchTag(i int) string {
	return fmt.Sprintf("branch-%d", i)
}

type Graph struct {
	Nodes []Node
	Edges []Edge
}

type Node struct {
	ID   string
	Data NodeData
}

func (n Node) Kind() Kind {
	if n.Data == nil {
		return ""
	}
	return n.Data.Kind()
}

func (n Node) Label() string {
	if n.Data == nil {
		return ""
	}
	return n.Data.NodeLabel()
}

// NodeData is the kind-specific payload of a node. It is implemented by
// LevelData, ConditionData and ActionData only.
type NodeData interface {
	Kind() Kind
	NodeLabel() string
}

type LevelData struct {
	Label     string
	LevelName string
	LevelType string
	Steps     []string
}

func (LevelData) Kind() Kind          { return KindLevel }
func (d LevelData) NodeLabel() string { return d.Label }

type ConditionData struct {
	Label    string
	Branches []Branch
}

func (ConditionData) Kind() Kind          { return KindCondition }
func (d ConditionData) NodeLabel() string { return d.Label }

type Branch struct {
	Name      string `json:"name"`
	Condition string `json:"condition"`
}

type ActionData struct {
	Label   string
	Actions []Action
}

func (ActionData) Kind() Kind          { return KindAction }
func (d ActionData) NodeLabel() string { return d.Label }

type Action struct {
	Type  string
	Title string
	Value string
}

type Edge struct {
	ID        string
	Source    string
	Target    string
	BranchTag string
}

// Context is the flat runtime input a run is evaluated against. The engine
// never writes into it.
type Context map[string]any

func (c Context) clone() Context {
	out := make(Context, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}
