package conversation

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/agentcoord/internal/metrics"
)

// defaultActionLogSize bounds the in-memory audit trail.
const defaultActionLogSize = 256

// AppliedAction is one audit-trail entry: which transition produced which
// version.
type AppliedAction struct {
	Name    string    `json:"name"`
	Version uint64    `json:"version"`
	At      time.Time `json:"at"`
}

// Store is the mutable holder around the pure reducer. It serializes its
// own mutations with a mutex, but transition semantics still assume one
// logical driver per conversation; concurrent drivers must be serialized
// by the embedding application.
type Store struct {
	mu        sync.Mutex
	state     *SharedContext
	bus       *Bus
	log       []AppliedAction
	logCap    int
	collector *metrics.Collector
	logger    *zap.Logger
}

// NewStore creates the state store for one conversation.
func NewStore(conversationID string, bus *Bus, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	if bus == nil {
		bus = NewBus(logger)
	}
	return &Store{
		state:  NewSharedContext(conversationID),
		bus:    bus,
		logCap: defaultActionLogSize,
		logger: logger.With(zap.String("component", "conversation_store")),
	}
}

// SetActionLogCap bounds the audit trail. Values below one restore the
// default.
func (s *Store) SetActionLogCap(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n < 1 {
		n = defaultActionLogSize
	}
	s.logCap = n
	if len(s.log) > s.logCap {
		s.log = s.log[len(s.log)-s.logCap:]
	}
}

// SetCollector attaches a metrics collector; every dispatch then counts
// its transition and tracks the live state version.
func (s *Store) SetCollector(c *metrics.Collector) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collector = c
}

// Bus returns the store's event bus.
func (s *Store) Bus() *Bus { return s.bus }

// ConversationID returns the id of the conversation this store owns.
func (s *Store) ConversationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.ConversationID
}

// Version returns the current state version.
func (s *Store) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Version
}

// State returns a point-in-time deep copy of the current context.
func (s *Store) State() *SharedContext {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// ActionLog returns a copy of the bounded audit trail, oldest first.
func (s *Store) ActionLog() []AppliedAction {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]AppliedAction, len(s.log))
	copy(out, s.log)
	return out
}

// Dispatch applies a named transition. On success it returns the new
// context (a copy safe for observers) and publishes the transition's
// canonical event synchronously. A rejected action leaves state, version,
// and the audit log untouched.
func (s *Store) Dispatch(action Action) (*SharedContext, error) {
	s.mu.Lock()
	collector := s.collector
	next, err := Apply(s.state, action)
	if err != nil {
		s.mu.Unlock()
		if collector != nil {
			collector.RecordTransition(action.ActionName(), false)
		}
		s.logger.Debug("transition rejected",
			zap.String("action", action.ActionName()),
			zap.Error(err),
		)
		return nil, err
	}

	s.state = next
	s.log = append(s.log, AppliedAction{
		Name:    action.ActionName(),
		Version: next.Version,
		At:      next.UpdatedAt,
	})
	if len(s.log) > s.logCap {
		s.log = s.log[len(s.log)-s.logCap:]
	}
	view := next.Clone()
	s.mu.Unlock()

	if collector != nil {
		collector.RecordTransition(action.ActionName(), true)
		collector.SetStateVersion(view.ConversationID, view.Version)
	}

	s.logger.Debug("transition applied",
		zap.String("action", action.ActionName()),
		zap.Uint64("version", view.Version),
	)

	s.publishFor(action, view)
	return view, nil
}

// Emit publishes an event that is not tied to a single transition, such
// as the coordinator's agent:handoff notification.
func (s *Store) Emit(event Event) {
	s.bus.Publish(event)
}

// Restore atomically replaces the live context wholesale. This is the
// sole recovery path after corruption or an external rollback request.
func (s *Store) Restore(state *SharedContext) {
	s.mu.Lock()
	s.state = state.Clone()
	version := s.state.Version
	s.mu.Unlock()

	s.logger.Info("state restored",
		zap.String("conversation_id", state.ConversationID),
		zap.Uint64("version", version),
	)
	s.bus.Publish(ContextUpdatedEvent{Version: version, At: time.Now()})
}

// publishFor maps an applied action to its canonical event.
func (s *Store) publishFor(action Action, state *SharedContext) {
	now := time.Now()
	switch a := action.(type) {
	case RegisterAgent:
		s.bus.Publish(AgentEvent{Event: EventAgentRegistered, AgentID: a.AgentID, At: now})
	case UnregisterAgent:
		s.bus.Publish(AgentEvent{Event: EventAgentUnregistered, AgentID: a.AgentID, At: now})
	case ActivateAgent:
		s.bus.Publish(AgentEvent{Event: EventAgentActivated, AgentID: a.AgentID, At: now})
	case DeactivateAgent:
		s.bus.Publish(AgentEvent{Event: EventAgentDeactivated, AgentID: a.AgentID, At: now})
	case AddMessage:
		s.bus.Publish(MessageEvent{Message: a.Message, At: now})
	case RequestHandoff:
		if req, ok := findHandoff(state, a.Request.ID); ok {
			s.bus.Publish(HandoffEvent{Event: EventHandoffRequested, Request: req, At: now})
		}
	case AcceptHandoff:
		if req, ok := findHandoff(state, a.HandoffID); ok {
			s.bus.Publish(HandoffEvent{Event: EventHandoffAccepted, Request: req, At: now})
		}
	case RejectHandoff:
		if req, ok := findHandoff(state, a.HandoffID); ok {
			s.bus.Publish(HandoffEvent{Event: EventHandoffRejected, Request: req, At: now})
		}
	case RequestCollaboration:
		s.bus.Publish(CollaborationEvent{Event: EventCollaborationRequested, Request: a.Request, At: now})
	case RespondCollaboration:
		if req, ok := findCollaboration(state, a.CollaborationID); ok {
			s.bus.Publish(CollaborationEvent{Event: EventCollaborationResponded, Request: req, At: now})
		}
	case UpdateAgentSyncState:
		keys := make([]string, 0, len(a.Memory))
		for k := range a.Memory {
			keys = append(keys, k)
		}
		s.bus.Publish(SyncEvent{AgentID: a.AgentID, Keys: keys, At: now})
	case ResolveConflict:
		res := a.Resolution
		s.bus.Publish(ConflictEvent{Event: EventConflictResolved, Resolution: &res, At: now})
	case UpdateContext, BeginTask, FinishTask:
		s.bus.Publish(ContextUpdatedEvent{Version: state.Version, At: now})
	case SwitchAgent:
		// The handoff coordinator emits agent:handoff with the full
		// message; the bare transition carries no event of its own.
	}
}

func findHandoff(state *SharedContext, id string) (HandoffRequest, bool) {
	for _, h := range state.Handoffs {
		if h.ID == id {
			return h, true
		}
	}
	return HandoffRequest{}, false
}

func findCollaboration(state *SharedContext, id string) (CollaborationRequest, bool) {
	for _, c := range state.Collaborations {
		if c.ID == id {
			return c, true
		}
	}
	return CollaborationRequest{}, false
}
