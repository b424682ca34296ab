package workflow

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"reflect"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// randomGraph builds a graph of n nodes from seed. Node kinds, branch
// conditions and edges (including back edges) are all random.
func randomGraph(seed int64, n int) *Graph {
	r := rand.New(rand.NewSource(seed))
	g := &Graph{}
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("n%d", i)
		switch r.Intn(3) {
		case 0:
			g.Nodes = append(g.Nodes, level(id))
		case 1:
			g.Nodes = append(g.Nodes, cond(id, "age >= 18", "country equals SG"))
		default:
			g.Nodes = append(g.Nodes, action(id))
		}
	}
	for i := 0; i < n; i++ {
		src := g.Nodes[i]
		tags := []string{""}
		if src.Kind() == KindCondition {
			tags = []string{BranchTag(0), BranchTag(1), ElseTag}
		}
		for _, tag := range tags {
			if r.Intn(4) == 0 {
				continue
			}
			dst := r.Intn(n)
			g.Edges = append(g.Edges, Edge{
				ID:        fmt.Sprintf("e%d-%s", i, tag),
				Source:    src.ID,
				Target:    g.Nodes[dst].ID,
				BranchTag: tag,
			})
		}
	}
	return g
}

func TestProperty_ExecutionIsDeterministic(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("repeated runs yield identical steps and summary", prop.ForAll(
		func(seed int64, n int, age int) bool {
			g := randomGraph(seed, n)
			input := Context{"age": age, "country": "sg"}
			e := NewEngine(nil, WithClock(fixedClock()))

			a, errA := e.Execute(context.Background(), g, input, RunOptions{RunID: "r"})
			b, errB := e.Execute(context.Background(), g, input, RunOptions{RunID: "r"})

			if (errA == nil) != (errB == nil) {
				t.Logf("error mismatch: %v vs %v", errA, errB)
				return false
			}
			return reflect.DeepEqual(a.Steps, b.Steps) && reflect.DeepEqual(a.Summary, b.Summary)
		},
		gen.Int64(),
		gen.IntRange(1, 12),
		gen.IntRange(0, 40),
	))

	properties.TestingRun(t)
}

func TestProperty_SingleEntryIsFirstStep(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("the only in-degree-0 node is steps[0]", prop.ForAll(
		func(n int, entry int) bool {
			entry %= n
			// A chain rotated so that it starts at entry.
			g := &Graph{}
			for i := 0; i < n; i++ {
				g.Nodes = append(g.Nodes, level(fmt.Sprintf("n%d", i)))
			}
			for k := 0; k < n-1; k++ {
				src := (entry + k) % n
				dst := (entry + k + 1) % n
				g.Edges = append(g.Edges, edge(fmt.Sprintf("n%d", src), fmt.Sprintf("n%d", dst), ""))
			}

			tr, err := NewEngine(nil).Execute(context.Background(), g, nil, RunOptions{})
			if err != nil {
				t.Logf("execute failed: %v", err)
				return false
			}
			return tr.Steps[0].NodeID == fmt.Sprintf("n%d", entry) && tr.StepCount == n
		},
		gen.IntRange(1, 20),
		gen.IntRange(0, 1000),
	))

	properties.TestingRun(t)
}

func TestProperty_TraversalIsBounded(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 15).Draw(rt, "n")
		seed := rapid.Int64().Draw(rt, "seed")
		age := rapid.IntRange(0, 40).Draw(rt, "age")
		g := randomGraph(seed, n)

		tr, err := NewEngine(nil).Execute(context.Background(), g, Context{"age": age}, RunOptions{MaxSteps: 1000})
		require.NotNil(rt, tr)
		require.LessOrEqual(rt, tr.StepCount, n)

		if err != nil {
			require.True(rt,
				errors.Is(err, ErrCycleDetected) || errors.Is(err, ErrNoStartNode),
				"unexpected error: %v", err)
			require.False(rt, tr.Success)
			return
		}
		require.True(rt, tr.Success)

		seen := map[string]bool{}
		for i, st := range tr.Steps {
			require.Equal(rt, i+1, st.StepIndex)
			require.False(rt, seen[st.NodeID], "node %s visited twice", st.NodeID)
			seen[st.NodeID] = true
		}
	})
}

func TestProperty_StepCeilingIsExact(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(2, 30).Draw(rt, "n")
		limit := rapid.IntRange(1, n).Draw(rt, "limit")

		tr, err := NewEngine(nil).Execute(context.Background(), chain(n), nil, RunOptions{MaxSteps: limit})
		require.ErrorIs(rt, err, ErrStepLimitExceeded)
		require.Equal(rt, limit, tr.StepCount)
	})
}
