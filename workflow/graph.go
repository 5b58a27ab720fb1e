package workflow

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// State identifies a node in the graph. The zero value is not a valid state.
type State string

// End is the terminal pseudo-state. Routing to End finishes the run.
const End State = "__end__"

// NodeFunc executes one stage: it receives the current state value and
// returns the next state value. State is passed by value so every transition
// is a snapshot; a node must not retain references into its input.
type NodeFunc[S any] func(ctx context.Context, state S) (S, error)

// RouteFunc decides the next node after a conditional node has executed.
// Returning End terminates the run; returning an error fails it.
type RouteFunc[S any] func(ctx context.Context, state S) (State, error)

// Graph builds a bounded state machine. It is not safe for concurrent use;
// build once, Compile, then share the Runner.
type Graph[S any] struct {
	name      string
	entry     State
	nodes     map[State]NodeFunc[S]
	order     []State
	edges     map[State]State
	routers   map[State]RouteFunc[S]
	maxVisits map[State]int
	errs      []error
}

// NewGraph creates an empty graph.
func NewGraph[S any](name string) *Graph[S] {
	return &Graph[S]{
		name:      name,
		nodes:     make(map[State]NodeFunc[S]),
		edges:     make(map[State]State),
		routers:   make(map[State]RouteFunc[S]),
		maxVisits: make(map[State]int),
	}
}

// AddNode registers a node. Each node may be visited once per run unless a
// larger budget is declared via WithMaxVisits.
func (g *Graph[S]) AddNode(s State, fn NodeFunc[S]) *Graph[S] {
	if _, dup := g.nodes[s]; dup {
		g.errs = append(g.errs, fmt.Errorf("node %q registered twice", s))
		return g
	}
	if fn == nil {
		g.errs = append(g.errs, fmt.Errorf("node %q has nil func", s))
		return g
	}
	g.nodes[s] = fn
	g.order = append(g.order, s)
	return g
}

// AddEdge declares a static edge from → to. A node has either one static
// edge or one conditional edge, never both.
func (g *Graph[S]) AddEdge(from, to State) *Graph[S] {
	if _, dup := g.edges[from]; dup {
		g.errs = append(g.errs, fmt.Errorf("node %q already has a static edge", from))
		return g
	}
	g.edges[from] = to
	return g
}

// AddConditionalEdge declares a router that picks the successor of from at
// runtime. Router targets are validated against registered nodes on each hop.
func (g *Graph[S]) AddConditionalEdge(from State, route RouteFunc[S]) *Graph[S] {
	if route == nil {
		g.errs = append(g.errs, fmt.Errorf("node %q has nil router", from))
		return g
	}
	if _, dup := g.routers[from]; dup {
		g.errs = append(g.errs, fmt.Errorf("node %q already has a conditional edge", from))
		return g
	}
	g.routers[from] = route
	return g
}

// SetEntryPoint declares the initial node.
func (g *Graph[S]) SetEntryPoint(s State) *Graph[S] {
	g.entry = s
	return g
}

// WithMaxVisits raises the visit budget of a node above the default of one.
// Any cycle must pass through at least one node with an explicit budget —
// this is what makes retry loops structurally bounded.
func (g *Graph[S]) WithMaxVisits(s State, n int) *Graph[S] {
	if n < 1 {
		g.errs = append(g.errs, fmt.Errorf("node %q: visit budget must be >= 1, got %d", s, n))
		return g
	}
	g.maxVisits[s] = n
	return g
}

// Budget violation errors returned by Runner.Execute.
var (
	ErrNoEntryPoint   = errors.New("workflow: no entry point set")
	ErrUnknownNode    = errors.New("workflow: transition to unknown node")
	ErrVisitsExceeded = errors.New("workflow: node visit budget exceeded")
	ErrNoOutgoingEdge = errors.New("workflow: node has no outgoing edge")
)

// Compile validates the graph structure and returns an executable Runner.
func (g *Graph[S]) Compile(opts ...RunnerOption) (*Runner[S], error) {
	if len(g.errs) > 0 {
		return nil, fmt.Errorf("graph %q: %w", g.name, errors.Join(g.errs...))
	}
	if g.entry == "" {
		return nil, ErrNoEntryPoint
	}
	if _, ok := g.nodes[g.entry]; !ok {
		return nil, fmt.Errorf("%w: entry point %q", ErrUnknownNode, g.entry)
	}
	for from, to := range g.edges {
		if _, ok := g.nodes[from]; !ok {
			return nil, fmt.Errorf("%w: edge source %q", ErrUnknownNode, from)
		}
		if _, ok := g.routers[from]; ok {
			return nil, fmt.Errorf("graph %q: node %q has both static and conditional edges", g.name, from)
		}
		if to != End {
			if _, ok := g.nodes[to]; !ok {
				return nil, fmt.Errorf("%w: edge target %q", ErrUnknownNode, to)
			}
		}
	}
	for from := range g.routers {
		if _, ok := g.nodes[from]; !ok {
			return nil, fmt.Errorf("%w: router source %q", ErrUnknownNode, from)
		}
	}
	// 每个节点必须有出边（静态、条件或隐式 End 不存在——必须显式）
	for _, s := range g.order {
		if _, ok := g.edges[s]; ok {
			continue
		}
		if _, ok := g.routers[s]; ok {
			continue
		}
		return nil, fmt.Errorf("%w: %q", ErrNoOutgoingEdge, s)
	}

	r := &Runner[S]{graph: g, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&r.cfg)
	}
	if r.cfg.logger != nil {
		r.logger = r.cfg.logger
	}
	return r, nil
}

// RunnerOption configures a Runner.
type RunnerOption func(*runnerConfig)

type runnerConfig struct {
	logger    *zap.Logger
	sink      EventSink
	snapshots bool
}

// WithLogger sets the runner logger.
func WithLogger(l *zap.Logger) RunnerOption {
	return func(c *runnerConfig) { c.logger = l }
}

// WithEventSink attaches a sink that receives one event per transition.
func WithEventSink(s EventSink) RunnerOption {
	return func(c *runnerConfig) { c.sink = s }
}

// WithSnapshots stores the post-node state value on each transition record.
func WithSnapshots() RunnerOption {
	return func(c *runnerConfig) { c.snapshots = true }
}

// Runner executes a compiled graph. Safe for concurrent Execute calls; all
// per-run bookkeeping lives on the stack and in the returned History.
type Runner[S any] struct {
	graph  *Graph[S]
	cfg    runnerConfig
	logger *zap.Logger
}

// Execute drives the state machine from the entry point until End, an error,
// an exhausted visit budget, or ctx cancellation. The returned History is
// complete in every case, including failures.
func (r *Runner[S]) Execute(ctx context.Context, initial S) (S, *History, error) {
	g := r.graph
	hist := NewHistory(g.name)
	visits := make(map[State]int, len(g.nodes))
	state := initial
	cur := g.entry

	for cur != End {
		select {
		case <-ctx.Done():
			r.emit(hist.RunID, cur, EventRunCancelled, "")
			hist.Complete(ctx.Err())
			return state, hist, ctx.Err()
		default:
		}

		node, ok := g.nodes[cur]
		if !ok {
			err := fmt.Errorf("%w: %q", ErrUnknownNode, cur)
			hist.Complete(err)
			return state, hist, err
		}

		visits[cur]++
		if budget := r.budget(cur); visits[cur] > budget {
			err := fmt.Errorf("%w: %q visited %d times, budget %d", ErrVisitsExceeded, cur, visits[cur], budget)
			r.emit(hist.RunID, cur, EventNodeFailed, err.Error())
			hist.Complete(err)
			return state, hist, err
		}

		r.emit(hist.RunID, cur, EventNodeEntered, "")
		rec := hist.RecordStart(cur, visits[cur])
		r.logger.Debug("node entered",
			zap.String("graph", g.name),
			zap.String("node", string(cur)),
			zap.Int("visit", visits[cur]),
		)

		next, err := node(ctx, state)
		if err != nil {
			hist.RecordEnd(rec, nil, err)
			r.emit(hist.RunID, cur, EventNodeFailed, err.Error())
			hist.Complete(err)
			return state, hist, fmt.Errorf("node %s failed: %w", cur, err)
		}
		state = next

		var snap any
		if r.cfg.snapshots {
			snap = state
		}
		hist.RecordEnd(rec, snap, nil)
		r.emit(hist.RunID, cur, EventNodeCompleted, "")

		cur, err = r.successor(ctx, cur, state)
		if err != nil {
			r.emit(hist.RunID, cur, EventNodeFailed, err.Error())
			hist.Complete(err)
			return state, hist, err
		}
	}

	hist.Complete(nil)
	r.emit(hist.RunID, End, EventRunCompleted, "")
	return state, hist, nil
}

func (r *Runner[S]) budget(s State) int {
	if n, ok := r.graph.maxVisits[s]; ok {
		return n
	}
	return 1
}

func (r *Runner[S]) successor(ctx context.Context, cur State, state S) (State, error) {
	if route, ok := r.graph.routers[cur]; ok {
		next, err := route(ctx, state)
		if err != nil {
			return cur, err
		}
		if next != End {
			if _, ok := r.graph.nodes[next]; !ok {
				return cur, fmt.Errorf("%w: router at %q chose %q", ErrUnknownNode, cur, next)
			}
		}
		return next, nil
	}
	return r.graph.edges[cur], nil
}

func (r *Runner[S]) emit(runID string, node State, typ EventType, detail string) {
	if r.cfg.sink == nil {
		return
	}
	r.cfg.sink.Emit(newEvent(runID, node, typ, detail))
}
