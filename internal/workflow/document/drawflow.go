package document

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/huy-cyno/workflow-builder-poc/internal/workflow"
)

type drawflowExport struct {
	Drawflow map[string]drawflowModule `json:"drawflow"`
}

type drawflowModule struct {
	Data map[string]drawflowNode `json:"data"`
}

type drawflowNode struct {
	ID      json.Number             `json:"id"`
	Name    string                  `json:"name"`
	Class   string                  `json:"class"`
	Data    wireData                `json:"data"`
	Outputs map[string]drawflowPort `json:"outputs"`
}

type drawflowPort struct {
	Connections []drawflowConnection `json:"connections"`
}

type drawflowConnection struct {
	Node   string `json:"node"`
	Output string `json:"output"`
}

const drawflowModuleName = "Home"

// ParseDrawflow converts a Drawflow editor export. Condition outputs
// output_<i+1> map to branch-<i>; output_<n+1> and output_else map to else.
func ParseDrawflow(data []byte) (*workflow.Graph, error) {
	var exp drawflowExport
	if err := json.Unmarshal(data, &exp); err != nil {
		return nil, fmt.Errorf("failed to parse Drawflow export: %w", err)
	}
	mod, ok := exp.Drawflow[drawflowModuleName]
	if !ok {
		return nil, fmt.Errorf("drawflow export has no %q module", drawflowModuleName)
	}

	keys := make([]string, 0, len(mod.Data))
	for k := range mod.Data {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, errA := strconv.Atoi(keys[i])
		b, errB := strconv.Atoi(keys[j])
		if errA == nil && errB == nil {
			return a < b
		}
		return keys[i] < keys[j]
	})

	g := &workflow.Graph{}
	for _, key := range keys {
		n := mod.Data[key]
		id := n.ID.String()
		if id == "" {
			id = key
		}

		kind, err := ParseKind(n.Class)
		if err != nil {
			kind, err = ParseKind(n.Name)
			if err != nil {
				return nil, fmt.Errorf("drawflow node %s: %w", id, err)
			}
		}
		g.Nodes = append(g.Nodes, workflow.Node{ID: id, Data: n.Data.toNodeData(kind)})

		outputs := make([]string, 0, len(n.Outputs))
		for name := range n.Outputs {
			outputs = append(outputs, name)
		}
		sort.Slice(outputs, func(i, j int) bool { return outputOrder(outputs[i]) < outputOrder(outputs[j]) })

		for _, out := range outputs {
			tag := ""
			if kind == workflow.KindCondition {
				tag = drawflowBranchTag(out, len(n.Data.Branches))
			}
			for _, c := range n.Outputs[out].Connections {
				g.Edges = append(g.Edges, workflow.Edge{
					ID:        fmt.Sprintf("%s-%s-%s", id, out, c.Node),
					Source:    id,
					Target:    c.Node,
					BranchTag: tag,
				})
			}
		}
	}
	return g, nil
}

func outputOrder(name string) int {
	if n, err := strconv.Atoi(strings.TrimPrefix(name, "output_")); err == nil {
		return n
	}
	return 1 << 30
}

func drawflowBranchTag(output string, branches int) string {
	if output == "output_else" {
		return workflow.ElseTag
	}
	n, err := strconv.Atoi(strings.TrimPrefix(output, "output_"))
	if err != nil || n < 1 {
		return output
	}
	if n == branches+1 {
		return workflow.ElseTag
	}
	return workflow.BranchTag(n - 1)
}
