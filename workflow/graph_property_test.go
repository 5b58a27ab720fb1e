package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// Property: a cyclic graph with visit budgets always terminates, and no node
// is ever visited more often than its budget — regardless of what the router
// decides.
func TestProperty_BoundedLoopAlwaysTerminates(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("loop terminates within visit budgets", prop.ForAll(
		func(budget int, decisions []bool) bool {
			i := 0
			g := NewGraph[testState]("prop-loop").
				AddNode("work", appendNode("work")).
				AddNode("gate", func(ctx context.Context, s testState) (testState, error) {
					return s, nil
				}).
				SetEntryPoint("work").
				AddEdge("work", "gate").
				AddConditionalEdge("gate", func(ctx context.Context, s testState) (State, error) {
					// 路由决策来自任意生成的布尔序列
					if i < len(decisions) && decisions[i] {
						i++
						return "work", nil
					}
					return End, nil
				}).
				WithMaxVisits("work", budget).
				WithMaxVisits("gate", budget)

			r, err := g.Compile()
			if err != nil {
				return false
			}

			_, hist, err := r.Execute(context.Background(), testState{})
			if err != nil && !errors.Is(err, ErrVisitsExceeded) {
				return false
			}
			return hist.Visits("work") <= budget && hist.Visits("gate") <= budget
		},
		gen.IntRange(1, 10),
		gen.SliceOf(gen.Bool()),
	))

	properties.Property("transition count is bounded by total budget", prop.ForAll(
		func(budget int) bool {
			g := NewGraph[testState]("prop-runaway").
				AddNode("a", appendNode("a")).
				AddNode("b", appendNode("b")).
				SetEntryPoint("a").
				AddEdge("a", "b").
				AddEdge("b", "a").
				WithMaxVisits("a", budget).
				WithMaxVisits("b", budget)

			r, err := g.Compile()
			if err != nil {
				return false
			}

			_, hist, err := r.Execute(context.Background(), testState{})
			// 无条件环必然耗尽预算
			if !errors.Is(err, ErrVisitsExceeded) {
				return false
			}
			return hist.Len() <= 2*budget
		},
		gen.IntRange(1, 8),
	))

	properties.TestingRun(t)
}

// Property: the router's choice is always honored, never inverted.
func TestProperty_ConditionalRoutingCorrectness(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("router choice selects the matching branch", prop.ForAll(
		func(choice bool) bool {
			g := NewGraph[testState]("prop-route").
				AddNode("check", appendNode("check")).
				AddNode("left", appendNode("left")).
				AddNode("right", appendNode("right")).
				SetEntryPoint("check").
				AddConditionalEdge("check", func(ctx context.Context, s testState) (State, error) {
					if choice {
						return "left", nil
					}
					return "right", nil
				}).
				AddEdge("left", End).
				AddEdge("right", End)

			r, err := g.Compile()
			if err != nil {
				return false
			}

			final, _, err := r.Execute(context.Background(), testState{})
			if err != nil {
				return false
			}
			if choice {
				return len(final.Trace) == 2 && final.Trace[1] == "left"
			}
			return len(final.Trace) == 2 && final.Trace[1] == "right"
		},
		gen.Bool(),
	))

	properties.TestingRun(t)
}
