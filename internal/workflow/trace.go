package workflow

import "time"

// Termination reasons recorded on ExecutionTrace.Terminated.
const (
	TerminatedLeaf             = "leaf"
	TerminatedNoMatchingBranch = "no_matching_branch"
	TerminatedError            = "error"
)

const (
	RunCompleted = "completed"
	RunFailed    = "failed"
)

type ExecutionTrace struct {
	RunID      string          `json:"run_id"`
	Success    bool            `json:"success"`
	Status     string          `json:"status"`
	StartNode  string          `json:"start_node,omitempty"`
	StepCount  int             `json:"step_count"`
	Steps      []ExecutionStep `json:"steps"`
	Context    Context         `json:"context"`
	Summary    Summary         `json:"summary"`
	Terminated string          `json:"terminated"`
	Error      *ExecutionError `json:"error,omitempty"`
}

type ExecutionStep struct {
	StepIndex      int       `json:"step_index"`
	NodeID         string    `json:"node_id"`
	NodeKind       Kind      `json:"node_kind"`
	Label          string    `json:"label"`
	Outcome        Outcome   `json:"outcome"`
	TakenBranch    string    `json:"taken_branch,omitempty"`
	NextNodeID     string    `json:"next_node_id,omitempty"`
	DurationMicros int64     `json:"duration_micros"`
	Timestamp      time.Time `json:"timestamp"`
}

type Summary struct {
	TotalSteps    int          `json:"total_steps"`
	NodeKindCount map[Kind]int `json:"node_kind_count"`
	ExecutionPath []string     `json:"execution_path"`
	VisitedPath   []string     `json:"visited_path"`
	StartTime     *time.Time   `json:"start_time,omitempty"`
	EndTime       *time.Time   `json:"end_time,omitempty"`
}

// Summarize derives the aggregate statistics of a step sequence.
func Summarize(steps []ExecutionStep) Summary {
	s := Summary{
		TotalSteps:    len(steps),
		NodeKindCount: map[Kind]int{},
		ExecutionPath: make([]string, 0, len(steps)),
		VisitedPath:   make([]string, 0, len(steps)),
	}
	for _, st := range steps {
		s.NodeKindCount[st.NodeKind]++
		s.ExecutionPath = append(s.ExecutionPath, st.Label)
		s.VisitedPath = append(s.VisitedPath, st.NodeID)
	}
	if len(steps) > 0 {
		start := steps[0].Timestamp
		end := steps[len(steps)-1].Timestamp
		s.StartTime = &start
		s.EndTime = &end
	}
	return s
}

func (t *ExecutionTrace) finish(err *ExecutionError, terminated string) {
	t.StepCount = len(t.Steps)
	t.Summary = Summarize(t.Steps)
	t.Terminated = terminated
	if err != nil {
		t.Success = false
		t.Status = RunFailed
		t.Error = err
		return
	}
	t.Success = true
	t.Status = RunCompleted
}
