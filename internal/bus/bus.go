// Package bus is an in-process publish/subscribe bus used to turn the
// autonomous-agent engine's callback-based streaming progress (§4.6, §9
// "callback-based streaming progress") into a channel of events the task
// worker's outer loop consumes to write activity-message rows. It never
// crosses a process boundary — the directory store remains the only
// cross-daemon communication bus (§2); this bus only decouples the engine's
// subprocess reader from the worker's row-writing loop within one process.
package bus

import (
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
)

const defaultBufferSize = 100

// Event is a message published on the bus.
type Event struct {
	Topic   string
	Payload interface{}
}

// Phase-progress topics: published by the autonomous-agent engine as it
// streams a worker/verifier/summarizer phase.
const (
	TopicPhaseStarted  = "phase.started"
	TopicPhaseText     = "phase.text"
	TopicPhaseToolUse  = "phase.tool_use"
	TopicPhaseFinished = "phase.finished"
)

// Task-lifecycle topics: published by the worker as a task row transitions.
const (
	TopicTaskClaimed    = "task.claimed"
	TopicTaskIteration  = "task.iteration"
	TopicTaskCompleted  = "task.completed"
	TopicTaskFailed     = "task.failed"
	TopicTaskCanceled   = "task.canceled"
)

// Onboarding topics: published by the Global Manager as a user's
// onboarding_step advances.
const (
	TopicOnboardingStepChanged = "onboarding.step_changed"
)

// PhaseTextEvent carries one streamed text chunk from a running phase.
type PhaseTextEvent struct {
	TaskID string
	Phase  string // "worker_1", "verifier_1", "summarizer", ...
	Text   string
}

// PhaseToolUseEvent carries one tool-use content block from a running phase.
type PhaseToolUseEvent struct {
	TaskID string
	Phase  string
	Name   string
	Input  map[string]any
}

// TaskIterationEvent is published at the start of each worker/verifier round.
type TaskIterationEvent struct {
	TaskID    string
	Iteration int
}

// TaskTerminalEvent is published once a task reaches Completed/Failed/Canceled.
type TaskTerminalEvent struct {
	TaskID string
	Status string
	Reason string
}

// OnboardingStepChangedEvent is published on every User-row onboarding_step
// transition the Global Manager makes.
type OnboardingStepChangedEvent struct {
	Email string
	From  string
	To    string
}

// Subscription represents an active subscription.
type Subscription struct {
	id     int
	prefix string
	ch     chan Event
}

// Ch returns the channel to receive events on.
func (s *Subscription) Ch() <-chan Event {
	return s.ch
}

// Bus is a simple in-process pub/sub message bus with topic prefix matching.
type Bus struct {
	mu              sync.RWMutex
	subs            map[int]*Subscription
	nextID          int
	logger          *slog.Logger
	droppedEvents   atomic.Int64
	lastDropWarning atomic.Int64 // last threshold at which a warning was logged
}

// New creates a new Bus.
func New() *Bus {
	return NewWithLogger(nil)
}

// NewWithLogger creates a new Bus with an optional logger for observability.
func NewWithLogger(logger *slog.Logger) *Bus {
	return &Bus{
		subs:   make(map[int]*Subscription),
		logger: logger,
	}
}

// Subscribe creates a subscription for events matching the given topic prefix.
// An empty prefix matches all topics.
// The returned channel has a buffer of 100 events; slow consumers will miss
// events (non-blocking send) rather than stall the publisher's poll loop.
func (b *Bus) Subscribe(topicPrefix string) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscription{
		id:     b.nextID,
		prefix: topicPrefix,
		ch:     make(chan Event, defaultBufferSize),
	}
	b.subs[sub.id] = sub
	return sub
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subs[sub.id]; ok {
		delete(b.subs, sub.id)
		close(sub.ch)
	}
}

// Publish sends an event to all matching subscribers.
// Delivery is non-blocking: if a subscriber's buffer is full, the event is dropped.
func (b *Bus) Publish(topic string, payload interface{}) {
	event := Event{
		Topic:   topic,
		Payload: payload,
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs {
		if sub.prefix == "" || strings.HasPrefix(topic, sub.prefix) {
			select {
			case sub.ch <- event:
			default:
				newCount := b.droppedEvents.Add(1)
				b.maybeLogDropWarning(newCount, topic)
			}
		}
	}
}

// SubscriberCount returns the number of active subscriptions.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// DroppedEventCount returns the total number of events dropped due to full buffers.
func (b *Bus) DroppedEventCount() int64 {
	return b.droppedEvents.Load()
}

// dropThreshold returns the next exponential threshold (1, 10, 100, 1000, ...) at or below count.
func dropThreshold(count int64) int64 {
	threshold := int64(1)
	for threshold*10 <= count {
		threshold *= 10
	}
	return threshold
}

// maybeLogDropWarning logs a warning when dropped event count crosses an
// exponential threshold. Uses CompareAndSwap to avoid duplicate logs from
// concurrent publishers.
func (b *Bus) maybeLogDropWarning(newCount int64, topic string) {
	if b.logger == nil {
		return
	}
	threshold := dropThreshold(newCount)
	if newCount < threshold {
		return
	}
	if newCount != threshold {
		return
	}
	lastWarned := b.lastDropWarning.Load()
	if threshold <= lastWarned {
		return
	}
	if b.lastDropWarning.CompareAndSwap(lastWarned, threshold) {
		b.logger.Warn("bus_dropped_events_reached_threshold",
			slog.Int64("count", newCount),
			slog.String("topic", topic),
		)
	}
}
