package workflow

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// RunStatus represents the status of a run or a single transition.
type RunStatus string

const (
	// StatusRunning indicates the run or transition is in progress.
	StatusRunning RunStatus = "running"
	// StatusCompleted indicates successful completion.
	StatusCompleted RunStatus = "completed"
	// StatusFailed indicates failure.
	StatusFailed RunStatus = "failed"
)

// Transition records one visit to one node.
type Transition struct {
	Node      State         `json:"node"`
	Visit     int           `json:"visit"` // 1-based visit count for this node
	Seq       int           `json:"seq"`   // 0-based position in the run
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`
	Status    RunStatus     `json:"status"`
	Error     string        `json:"error,omitempty"`
	Snapshot  any           `json:"snapshot,omitempty"`
}

// History records the complete transition path of one run. All methods are
// safe for concurrent use so sinks and observers can read while running.
type History struct {
	RunID       string        `json:"run_id"`
	GraphName   string        `json:"graph_name"`
	StartTime   time.Time     `json:"start_time"`
	EndTime     time.Time     `json:"end_time"`
	Duration    time.Duration `json:"duration"`
	Status      RunStatus     `json:"status"`
	Transitions []*Transition `json:"transitions"`
	Error       string        `json:"error,omitempty"`
	mu          sync.RWMutex
}

// NewHistory creates a history for a fresh run.
func NewHistory(graphName string) *History {
	return &History{
		RunID:     uuid.NewString(),
		GraphName: graphName,
		StartTime: time.Now(),
		Status:    StatusRunning,
	}
}

// RecordStart appends a running transition and returns it for RecordEnd.
func (h *History) RecordStart(node State, visit int) *Transition {
	h.mu.Lock()
	defer h.mu.Unlock()

	t := &Transition{
		Node:      node,
		Visit:     visit,
		Seq:       len(h.Transitions),
		StartTime: time.Now(),
		Status:    StatusRunning,
	}
	h.Transitions = append(h.Transitions, t)
	return t
}

// RecordEnd closes a transition with its outcome and optional state snapshot.
func (h *History) RecordEnd(t *Transition, snapshot any, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	t.EndTime = time.Now()
	t.Duration = t.EndTime.Sub(t.StartTime)
	t.Snapshot = snapshot
	if err != nil {
		t.Status = StatusFailed
		t.Error = err.Error()
	} else {
		t.Status = StatusCompleted
	}
}

// Complete marks the run finished.
func (h *History) Complete(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.EndTime = time.Now()
	h.Duration = h.EndTime.Sub(h.StartTime)
	if err != nil {
		h.Status = StatusFailed
		h.Error = err.Error()
	} else {
		h.Status = StatusCompleted
	}
}

// Path returns the visited nodes in order.
func (h *History) Path() []State {
	h.mu.RLock()
	defer h.mu.RUnlock()

	path := make([]State, len(h.Transitions))
	for i, t := range h.Transitions {
		path[i] = t.Node
	}
	return path
}

// Visits returns how many times a node was entered.
func (h *History) Visits(node State) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for _, t := range h.Transitions {
		if t.Node == node {
			n++
		}
	}
	return n
}

// Len returns the number of recorded transitions.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.Transitions)
}
