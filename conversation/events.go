package conversation

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BaSui01/agentcoord/types"
	"go.uber.org/zap"
)

// EventType names an event family on the conversation bus.
type EventType string

const (
	EventAgentRegistered        EventType = "agent:registered"
	EventAgentUnregistered      EventType = "agent:unregistered"
	EventAgentActivated         EventType = "agent:activated"
	EventAgentDeactivated       EventType = "agent:deactivated"
	EventAgentHandoff           EventType = "agent:handoff"
	EventHandoffRequested       EventType = "handoff:requested"
	EventHandoffAccepted        EventType = "handoff:accepted"
	EventHandoffRejected        EventType = "handoff:rejected"
	EventCollaborationRequested EventType = "collaboration:requested"
	EventCollaborationResponded EventType = "collaboration:responded"
	EventMessageSent            EventType = "message:sent"
	EventContextUpdated         EventType = "context:updated"
	EventStateSynchronized      EventType = "state:synchronized"
	EventConflictDetected       EventType = "conflict:detected"
	EventConflictResolved       EventType = "conflict:resolved"
)

// Event is the common interface for all bus payloads.
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// AgentEvent covers agent lifecycle changes (registered, unregistered,
// activated, deactivated).
type AgentEvent struct {
	Event   EventType
	AgentID string
	At      time.Time
}

func (e AgentEvent) Type() EventType      { return e.Event }
func (e AgentEvent) Timestamp() time.Time { return e.At }

// HandoffEvent covers handoff negotiation and completed switches.
type HandoffEvent struct {
	Event   EventType
	Request HandoffRequest
	At      time.Time
}

func (e HandoffEvent) Type() EventType      { return e.Event }
func (e HandoffEvent) Timestamp() time.Time { return e.At }

// CollaborationEvent covers collaboration requests and responses.
type CollaborationEvent struct {
	Event   EventType
	Request CollaborationRequest
	At      time.Time
}

func (e CollaborationEvent) Type() EventType      { return e.Event }
func (e CollaborationEvent) Timestamp() time.Time { return e.At }

// MessageEvent is emitted when a message is appended to the history.
type MessageEvent struct {
	Message types.Message
	At      time.Time
}

func (e MessageEvent) Type() EventType      { return EventMessageSent }
func (e MessageEvent) Timestamp() time.Time { return e.At }

// ContextUpdatedEvent is emitted after any transition that changes goal,
// constraints, memory, preferences, or task history.
type ContextUpdatedEvent struct {
	Version uint64
	At      time.Time
}

func (e ContextUpdatedEvent) Type() EventType      { return EventContextUpdated }
func (e ContextUpdatedEvent) Timestamp() time.Time { return e.At }

// SyncEvent is emitted when an agent's sync state is updated.
type SyncEvent struct {
	AgentID string
	Keys    []string
	At      time.Time
}

func (e SyncEvent) Type() EventType      { return EventStateSynchronized }
func (e SyncEvent) Timestamp() time.Time { return e.At }

// ConflictEvent covers conflict detection and resolution.
type ConflictEvent struct {
	Event      EventType
	Conflict   *StateConflict
	Resolution *ConflictResolution
	At         time.Time
}

func (e ConflictEvent) Type() EventType      { return e.Event }
func (e ConflictEvent) Timestamp() time.Time { return e.At }

// Handler consumes events of a subscribed type.
type Handler func(Event)

// subscriptionCounter generates unique subscription ids.
var subscriptionCounter int64

type subscription struct {
	id string
	fn Handler
}

// Bus is a typed publish/subscribe hub. Delivery is synchronous within
// the publishing goroutine and ordered by subscription, so observers see
// every mutation in the order it was applied. Handlers must not block.
type Bus struct {
	mu     sync.RWMutex
	subs   map[EventType][]subscription
	logger *zap.Logger
}

// NewBus creates an event bus.
func NewBus(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		subs:   make(map[EventType][]subscription),
		logger: logger.With(zap.String("component", "conversation_bus")),
	}
}

// Subscribe registers a handler for an event type and returns a
// subscription id for Unsubscribe.
func (b *Bus) Subscribe(t EventType, fn Handler) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := fmt.Sprintf("%s-%d", t, atomic.AddInt64(&subscriptionCounter, 1))
	b.subs[t] = append(b.subs[t], subscription{id: id, fn: fn})
	return id
}

// Unsubscribe removes a subscription by id.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for t, subs := range b.subs {
		for i, s := range subs {
			if s.id == id {
				b.subs[t] = append(subs[:i], subs[i+1:]...)
				if len(b.subs[t]) == 0 {
					delete(b.subs, t)
				}
				return
			}
		}
	}
}

// Publish delivers the event to every subscriber of its type, in
// subscription order, on the calling goroutine. A panicking handler is
// recovered and logged; remaining handlers still run.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	subs := make([]subscription, len(b.subs[event.Type()]))
	copy(subs, b.subs[event.Type()])
	b.mu.RUnlock()

	for _, s := range subs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					b.logger.Error("event handler panicked",
						zap.String("event", string(event.Type())),
						zap.Any("recover", r),
					)
				}
			}()
			s.fn(event)
		}()
	}
}
