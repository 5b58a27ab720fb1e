package workflow

import (
	"sync"
	"time"
)

// EventType 转移事件类型
type EventType string

const (
	EventNodeEntered   EventType = "node_entered"
	EventNodeCompleted EventType = "node_completed"
	EventNodeFailed    EventType = "node_failed"
	EventRunCompleted  EventType = "run_completed"
	EventRunCancelled  EventType = "run_cancelled"
)

// Event 是一次状态转移的通知。事件流是单向只追加的通知通道，
// 不是控制通道：消费者无法通过它影响执行。
type Event struct {
	RunID     string    `json:"run_id"`
	Node      State     `json:"node"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Detail    string    `json:"detail,omitempty"`
}

func newEvent(runID string, node State, typ EventType, detail string) Event {
	return Event{
		RunID:     runID,
		Node:      node,
		Type:      typ,
		Timestamp: time.Now(),
		Detail:    detail,
	}
}

// EventSink 接收转移事件。Emit 必须是非阻塞的。
type EventSink interface {
	Emit(Event)
}

// SinkFunc 函数型 EventSink
type SinkFunc func(Event)

func (f SinkFunc) Emit(e Event) { f(e) }

// ChannelSink 把事件缓冲到 channel，供单个消费者拉取。
// 通道满时丢弃事件（进度展示可容忍丢失，执行不能被消费者拖慢）。
type ChannelSink struct {
	ch     chan Event
	mu     sync.RWMutex
	closed bool
}

// NewChannelSink 创建缓冲事件通道。buffer <= 0 时使用默认值 64。
func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 64
	}
	return &ChannelSink{ch: make(chan Event, buffer)}
}

// Emit 投递事件，通道满或已关闭则丢弃。
func (s *ChannelSink) Emit(e Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- e:
	default:
	}
}

// Events 返回只读事件通道。
func (s *ChannelSink) Events() <-chan Event { return s.ch }

// Close 关闭事件通道。Close 之后的 Emit 会被丢弃。
func (s *ChannelSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}
