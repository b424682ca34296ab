package workflow

import "time"

const (
	StatusCompleted = "completed"
	StatusEvaluated = "evaluated"
	StatusFailed    = "failed"
)

// Outcome is the simulated result of executing one node. Only the fields of
// the node's kind are set.
type Outcome struct {
	Status string `json:"status"`

	LevelName      string   `json:"level_name,omitempty"`
	LevelType      string   `json:"level_type,omitempty"`
	StepsCompleted []string `json:"steps_completed,omitempty"`

	Branches    []Branch           `json:"branches,omitempty"`
	Evaluations []BranchEvaluation `json:"evaluations,omitempty"`

	Actions []ActionResult `json:"actions,omitempty"`
}

// ActionResult records the intent of one action; nothing is actually sent.
type ActionResult struct {
	ActionType string    `json:"action_type"`
	Title      string    `json:"title"`
	Value      string    `json:"value,omitempty"`
	Status     string    `json:"status"`
	Timestamp  time.Time `json:"timestamp"`
}

func simulate(node *Node, now func() time.Time) Outcome {
	switch d := node.Data.(type) {
	case LevelData:
		return Outcome{
			Status:         StatusCompleted,
			LevelName:      d.LevelName,
			LevelType:      d.LevelType,
			StepsCompleted: append([]string(nil), d.Steps...),
		}
	case ConditionData:
		return Outcome{
			Status:   StatusEvaluated,
			Branches: append([]Branch(nil), d.Branches...),
		}
	case ActionData:
		results := make([]ActionResult, 0, len(d.Actions))
		for _, a := range d.Actions {
			results = append(results, ActionResult{
				ActionType: a.Type,
				Title:      a.Title,
				Value:      a.Value,
				Status:     StatusCompleted,
				Timestamp:  now(),
			})
		}
		return Outcome{Status: StatusCompleted, Actions: results}
	}
	return Outcome{Status: "skipped"}
}
