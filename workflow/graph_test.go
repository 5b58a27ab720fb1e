package workflow

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type testState struct {
	Trace   []string
	Retries int
	Passed  bool
}

func appendNode(name string) NodeFunc[testState] {
	return func(ctx context.Context, s testState) (testState, error) {
		s.Trace = append(s.Trace, name)
		return s, nil
	}
}

func TestRunner_LinearChain(t *testing.T) {
	g := NewGraph[testState]("chain").
		AddNode("a", appendNode("a")).
		AddNode("b", appendNode("b")).
		AddNode("c", appendNode("c")).
		SetEntryPoint("a").
		AddEdge("a", "b").
		AddEdge("b", "c").
		AddEdge("c", End)

	r, err := g.Compile()
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}

	final, hist, err := r.Execute(context.Background(), testState{})
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}

	got := strings.Join(final.Trace, ",")
	if got != "a,b,c" {
		t.Errorf("expected a,b,c, got %s", got)
	}
	if hist.Status != StatusCompleted {
		t.Errorf("expected completed history, got %s", hist.Status)
	}
	if hist.Len() != 3 {
		t.Errorf("expected 3 transitions, got %d", hist.Len())
	}
	if hist.RunID == "" {
		t.Error("expected non-empty run id")
	}
}

func TestRunner_NodeError(t *testing.T) {
	boom := errors.New("boom")
	g := NewGraph[testState]("err").
		AddNode("a", appendNode("a")).
		AddNode("b", func(ctx context.Context, s testState) (testState, error) {
			return s, boom
		}).
		SetEntryPoint("a").
		AddEdge("a", "b").
		AddEdge("b", End)

	r, err := g.Compile()
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}

	_, hist, err := r.Execute(context.Background(), testState{})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if hist.Status != StatusFailed {
		t.Errorf("expected failed history, got %s", hist.Status)
	}
	// 失败节点的转移也要留在历史里
	if hist.Len() != 2 {
		t.Errorf("expected 2 transitions, got %d", hist.Len())
	}
	last := hist.Transitions[hist.Len()-1]
	if last.Status != StatusFailed || last.Error == "" {
		t.Errorf("expected failed last transition with error, got %+v", last)
	}
}

func TestRunner_ConditionalRouting(t *testing.T) {
	for _, passed := range []bool{true, false} {
		g := NewGraph[testState]("route").
			AddNode("check", func(ctx context.Context, s testState) (testState, error) {
				s.Passed = passed
				return s, nil
			}).
			AddNode("yes", appendNode("yes")).
			AddNode("no", appendNode("no")).
			SetEntryPoint("check").
			AddConditionalEdge("check", func(ctx context.Context, s testState) (State, error) {
				if s.Passed {
					return "yes", nil
				}
				return "no", nil
			}).
			AddEdge("yes", End).
			AddEdge("no", End)

		r, err := g.Compile()
		if err != nil {
			t.Fatalf("compile failed: %v", err)
		}

		final, _, err := r.Execute(context.Background(), testState{})
		if err != nil {
			t.Fatalf("execute failed: %v", err)
		}
		want := "no"
		if passed {
			want = "yes"
		}
		if len(final.Trace) != 1 || final.Trace[0] != want {
			t.Errorf("passed=%v: expected branch %s, got %v", passed, want, final.Trace)
		}
	}
}

func TestRunner_BoundedLoop(t *testing.T) {
	// work ↔ gate 循环，gate 放行 3 次后结束
	g := NewGraph[testState]("loop").
		AddNode("work", appendNode("work")).
		AddNode("gate", func(ctx context.Context, s testState) (testState, error) {
			s.Retries++
			return s, nil
		}).
		SetEntryPoint("work").
		AddEdge("work", "gate").
		AddConditionalEdge("gate", func(ctx context.Context, s testState) (State, error) {
			if s.Retries < 3 {
				return "work", nil
			}
			return End, nil
		}).
		WithMaxVisits("work", 3).
		WithMaxVisits("gate", 3)

	r, err := g.Compile()
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}

	final, hist, err := r.Execute(context.Background(), testState{})
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if len(final.Trace) != 3 {
		t.Errorf("expected 3 work visits, got %d", len(final.Trace))
	}
	if hist.Visits("gate") != 3 {
		t.Errorf("expected 3 gate visits, got %d", hist.Visits("gate"))
	}
}

func TestRunner_VisitBudgetExceeded(t *testing.T) {
	// 无条件回边：预算必须兜底
	g := NewGraph[testState]("runaway").
		AddNode("a", appendNode("a")).
		AddNode("b", appendNode("b")).
		SetEntryPoint("a").
		AddEdge("a", "b").
		AddEdge("b", "a").
		WithMaxVisits("a", 4).
		WithMaxVisits("b", 4)

	r, err := g.Compile()
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}

	_, hist, err := r.Execute(context.Background(), testState{})
	if !errors.Is(err, ErrVisitsExceeded) {
		t.Fatalf("expected ErrVisitsExceeded, got %v", err)
	}
	if hist.Status != StatusFailed {
		t.Errorf("expected failed history, got %s", hist.Status)
	}
}

func TestRunner_ContextCancellation(t *testing.T) {
	g := NewGraph[testState]("cancel").
		AddNode("a", appendNode("a")).
		SetEntryPoint("a").
		AddEdge("a", End)

	r, err := g.Compile()
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // 执行前取消

	_, hist, err := r.Execute(ctx, testState{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if hist.Status != StatusFailed {
		t.Errorf("expected failed history, got %s", hist.Status)
	}
	if hist.Len() != 0 {
		t.Errorf("expected no transitions after pre-run cancel, got %d", hist.Len())
	}
}

func TestRunner_RouterError(t *testing.T) {
	routeErr := errors.New("no route")
	g := NewGraph[testState]("router-err").
		AddNode("a", appendNode("a")).
		SetEntryPoint("a").
		AddConditionalEdge("a", func(ctx context.Context, s testState) (State, error) {
			return "", routeErr
		})

	r, err := g.Compile()
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}

	_, _, err = r.Execute(context.Background(), testState{})
	if !errors.Is(err, routeErr) {
		t.Fatalf("expected route error, got %v", err)
	}
}

func TestGraph_CompileValidation(t *testing.T) {
	tests := []struct {
		name  string
		build func() *Graph[testState]
	}{
		{
			name: "no entry point",
			build: func() *Graph[testState] {
				return NewGraph[testState]("g").
					AddNode("a", appendNode("a")).
					AddEdge("a", End)
			},
		},
		{
			name: "unknown edge target",
			build: func() *Graph[testState] {
				return NewGraph[testState]("g").
					AddNode("a", appendNode("a")).
					SetEntryPoint("a").
					AddEdge("a", "ghost")
			},
		},
		{
			name: "missing outgoing edge",
			build: func() *Graph[testState] {
				return NewGraph[testState]("g").
					AddNode("a", appendNode("a")).
					SetEntryPoint("a")
			},
		},
		{
			name: "duplicate node",
			build: func() *Graph[testState] {
				return NewGraph[testState]("g").
					AddNode("a", appendNode("a")).
					AddNode("a", appendNode("a")).
					SetEntryPoint("a").
					AddEdge("a", End)
			},
		},
		{
			name: "static and conditional edges on one node",
			build: func() *Graph[testState] {
				return NewGraph[testState]("g").
					AddNode("a", appendNode("a")).
					SetEntryPoint("a").
					AddEdge("a", End).
					AddConditionalEdge("a", func(ctx context.Context, s testState) (State, error) {
						return End, nil
					})
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.build().Compile(); err == nil {
				t.Error("expected compile error, got nil")
			}
		})
	}
}

func TestRunner_EmitsEvents(t *testing.T) {
	sink := NewChannelSink(16)
	g := NewGraph[testState]("events").
		AddNode("a", appendNode("a")).
		SetEntryPoint("a").
		AddEdge("a", End)

	r, err := g.Compile(WithEventSink(sink))
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}

	if _, _, err := r.Execute(context.Background(), testState{}); err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	sink.Close()

	var types []EventType
	for e := range sink.Events() {
		types = append(types, e.Type)
		if e.RunID == "" {
			t.Error("expected run id on event")
		}
		if e.Timestamp.IsZero() {
			t.Error("expected timestamp on event")
		}
	}

	want := []EventType{EventNodeEntered, EventNodeCompleted, EventRunCompleted}
	if len(types) != len(want) {
		t.Fatalf("expected %d events, got %d: %v", len(want), len(types), types)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Errorf("event %d: expected %s, got %s", i, want[i], types[i])
		}
	}
}

func TestChannelSink_DropsWhenFull(t *testing.T) {
	sink := NewChannelSink(1)
	sink.Emit(Event{Type: EventNodeEntered})
	sink.Emit(Event{Type: EventNodeCompleted}) // 被丢弃
	sink.Close()

	var got []Event
	for e := range sink.Events() {
		got = append(got, e)
	}
	if len(got) != 1 || got[0].Type != EventNodeEntered {
		t.Errorf("expected single buffered event, got %v", got)
	}

	// Close 之后的 Emit 不能 panic
	sink.Emit(Event{Type: EventNodeFailed})
}
