// Package document converts workflow graphs to and from the formats the
// builders exchange: the canonical JSON/YAML document, Drawflow editor
// exports and Graphviz DOT.
package document

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/huy-cyno/workflow-builder-poc/internal/workflow"
)

type Format string

const (
	FormatJSON     Format = "json"
	FormatYAML     Format = "yaml"
	FormatDrawflow Format = "drawflow"
	FormatDOT      Format = "dot"
)

// CurrentVersion is written to the metadata of every saved document.
const CurrentVersion = 1

var ErrUnsupportedFormat = errors.New("unsupported document format")

func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "drawflow":
		return FormatDrawflow, nil
	case "dot", "gv", "graphviz":
		return FormatDOT, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
}

// DetectFormat guesses the format of data, using the file extension of name
// first and the content second.
func DetectFormat(name string, data []byte) Format {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		return FormatYAML
	case ".dot", ".gv":
		return FormatDOT
	case ".json":
		if looksLikeDrawflow(data) {
			return FormatDrawflow
		}
		return FormatJSON
	}

	trimmed := bytes.TrimSpace(data)
	lower := strings.ToLower(string(trimmed[:min(len(trimmed), 16)]))
	switch {
	case strings.HasPrefix(lower, "digraph"), strings.HasPrefix(lower, "graph"), strings.HasPrefix(lower, "strict"):
		return FormatDOT
	case bytes.HasPrefix(trimmed, []byte("{")):
		if looksLikeDrawflow(data) {
			return FormatDrawflow
		}
		return FormatJSON
	}
	return FormatYAML
}

func looksLikeDrawflow(data []byte) bool {
	var probe struct {
		Drawflow json.RawMessage `json:"drawflow"`
	}
	return json.Unmarshal(data, &probe) == nil && len(probe.Drawflow) > 0
}

// Metadata is the optional bookkeeping block of a saved document.
type Metadata struct {
	Version   int       `json:"version" yaml:"version"`
	Name      string    `json:"name,omitempty" yaml:"name,omitempty"`
	CreatedAt time.Time `json:"createdAt" yaml:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" yaml:"updatedAt"`
}

type wireDocument struct {
	Nodes    []wireNode `json:"nodes" yaml:"nodes"`
	Edges    []wireEdge `json:"edges" yaml:"edges"`
	Metadata *Metadata  `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

type wireNode struct {
	ID   string   `json:"id" yaml:"id"`
	Kind string   `json:"kind,omitempty" yaml:"kind,omitempty"`
	Type string   `json:"type,omitempty" yaml:"type,omitempty"`
	Data wireData `json:"data" yaml:"data"`
}

type wireData struct {
	Label     string            `json:"label" yaml:"label"`
	LevelName string            `json:"levelName,omitempty" yaml:"levelName,omitempty"`
	LevelType string            `json:"levelType,omitempty" yaml:"levelType,omitempty"`
	Steps     []string          `json:"steps,omitempty" yaml:"steps,omitempty"`
	Branches  []workflow.Branch `json:"branches,omitempty" yaml:"branches,omitempty"`
	Actions   []wireAction      `json:"actions,omitempty" yaml:"actions,omitempty"`
}

type wireAction struct {
	Type  string `json:"type" yaml:"type"`
	Title string `json:"title" yaml:"title"`
	Value string `json:"value,omitempty" yaml:"value,omitempty"`
}

type wireEdge struct {
	ID           string `json:"id,omitempty" yaml:"id,omitempty"`
	Source       string `json:"source" yaml:"source"`
	Target       string `json:"target" yaml:"target"`
	BranchTag    string `json:"branchTag,omitempty" yaml:"branchTag,omitempty"`
	SourceHandle string `json:"sourceHandle,omitempty" yaml:"sourceHandle,omitempty"`
}

// Document is a decoded graph together with its metadata, when present.
type Document struct {
	Graph    *workflow.Graph
	Metadata *Metadata
}

// Parse decodes data in the given format into a graph.
func Parse(data []byte, format Format) (*workflow.Graph, error) {
	doc, err := Decode(data, format)
	if err != nil {
		return nil, err
	}
	return doc.Graph, nil
}

func Decode(data []byte, format Format) (*Document, error) {
	switch format {
	case FormatJSON:
		var w wireDocument
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, fmt.Errorf("failed to parse JSON workflow: %w", err)
		}
		return w.toDocument()
	case FormatYAML:
		var w wireDocument
		if err := yaml.Unmarshal(data, &w); err != nil {
			return nil, fmt.Errorf("failed to parse YAML workflow: %w", err)
		}
		return w.toDocument()
	case FormatDrawflow:
		g, err := ParseDrawflow(data)
		if err != nil {
			return nil, err
		}
		return &Document{Graph: g}, nil
	case FormatDOT:
		g, err := ParseDOT(string(data))
		if err != nil {
			return nil, err
		}
		return &Document{Graph: g}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
}

func (w wireDocument) toDocument() (*Document, error) {
	g := &workflow.Graph{
		Nodes: make([]workflow.Node, 0, len(w.Nodes)),
		Edges: make([]workflow.Edge, 0, len(w.Edges)),
	}
	for i, n := range w.Nodes {
		kindName := n.Kind
		if kindName == "" {
			kindName = n.Type
		}
		kind, err := ParseKind(kindName)
		if err != nil {
			return nil, fmt.Errorf("node %d (%q): %w", i, n.ID, err)
		}
		g.Nodes = append(g.Nodes, workflow.Node{ID: n.ID, Data: n.Data.toNodeData(kind)})
	}
	for i, e := range w.Edges {
		tag := e.BranchTag
		if tag == "" {
			tag = e.SourceHandle
		}
		id := e.ID
		if id == "" {
			id = fmt.Sprintf("edge-%d", i+1)
		}
		g.Edges = append(g.Edges, workflow.Edge{ID: id, Source: e.Source, Target: e.Target, BranchTag: tag})
	}
	return &Document{Graph: g, Metadata: w.Metadata}, nil
}

func (d wireData) toNodeData(kind workflow.Kind) workflow.NodeData {
	switch kind {
	case workflow.KindLevel:
		return workflow.LevelData{Label: d.Label, LevelName: d.LevelName, LevelType: d.LevelType, Steps: d.Steps}
	case workflow.KindCondition:
		return workflow.ConditionData{Label: d.Label, Branches: d.Branches}
	default:
		actions := make([]workflow.Action, 0, len(d.Actions))
		for _, a := range d.Actions {
			actions = append(actions, workflow.Action{Type: a.Type, Title: a.Title, Value: a.Value})
		}
		return workflow.ActionData{Label: d.Label, Actions: actions}
	}
}

// ParseKind accepts a node kind as written by any of the builders: the bare
// kind, a capitalised variant or an editor class such as "level-node".
func ParseKind(s string) (workflow.Kind, error) {
	lower := strings.ToLower(strings.TrimSpace(s))
	switch {
	case lower == "":
		return "", errors.New("node kind is missing")
	case strings.Contains(lower, "level"):
		return workflow.KindLevel, nil
	case strings.Contains(lower, "condition"):
		return workflow.KindCondition, nil
	case strings.Contains(lower, "action"):
		return workflow.KindAction, nil
	}
	return "", fmt.Errorf("unknown node kind %q", s)
}

func fromGraph(g *workflow.Graph, meta *Metadata) wireDocument {
	w := wireDocument{
		Nodes:    make([]wireNode, 0, len(g.Nodes)),
		Edges:    make([]wireEdge, 0, len(g.Edges)),
		Metadata: meta,
	}
	for _, n := range g.Nodes {
		wn := wireNode{ID: n.ID, Kind: string(n.Kind())}
		switch d := n.Data.(type) {
		case workflow.LevelData:
			wn.Data = wireData{Label: d.Label, LevelName: d.LevelName, LevelType: d.LevelType, Steps: d.Steps}
		case workflow.ConditionData:
			wn.Data = wireData{Label: d.Label, Branches: d.Branches}
		case workflow.ActionData:
			wn.Data = wireData{Label: d.Label}
			for _, a := range d.Actions {
				wn.Data.Actions = append(wn.Data.Actions, wireAction{Type: a.Type, Title: a.Title, Value: a.Value})
			}
		}
		w.Nodes = append(w.Nodes, wn)
	}
	for _, e := range g.Edges {
		w.Edges = append(w.Edges, wireEdge{ID: e.ID, Source: e.Source, Target: e.Target, BranchTag: e.BranchTag})
	}
	return w
}

// Marshal encodes g for saving. JSON and YAML documents carry a metadata
// block stamped with now; DOT output is the rendered graph.
func Marshal(g *workflow.Graph, format Format, now time.Time) ([]byte, error) {
	if g == nil {
		return nil, errors.New("graph is nil")
	}
	meta := &Metadata{Version: CurrentVersion, CreatedAt: now.UTC(), UpdatedAt: now.UTC()}

	switch format {
	case FormatJSON:
		return json.MarshalIndent(fromGraph(g, meta), "", "  ")
	case FormatYAML:
		return yaml.Marshal(fromGraph(g, meta))
	case FormatDOT:
		s, err := ExportDOT(g, "workflow")
		if err != nil {
			return nil, err
		}
		return []byte(s), nil
	}
	return nil, fmt.Errorf("%w for export: %q", ErrUnsupportedFormat, format)
}
