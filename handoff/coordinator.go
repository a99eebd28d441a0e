package handoff

import (
	"time"

	"github.com/BaSui01/agentcoord/agent"
	"github.com/BaSui01/agentcoord/conversation"
	"github.com/BaSui01/agentcoord/internal/metrics"
	"github.com/BaSui01/agentcoord/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Options configures coordinator behavior.
type Options struct {
	// PreserveContext copies the outgoing agent's sync memory to the
	// incoming agent during a switch. Best-effort: failures are logged,
	// never fatal to the switch.
	PreserveContext bool

	// EnableAutoHandoffs lets MaybeAutoHandoff act on scorer suggestions.
	EnableAutoHandoffs bool

	// HandoffThreshold is the minimum suggestion confidence for an
	// automatic handoff.
	HandoffThreshold float64

	// MaxActiveAgents is advisory: activations beyond the limit are
	// allowed but logged.
	MaxActiveAgents int

	// PendingTTL expires handoffs that stay unresolved. Zero disables
	// the sweep.
	PendingTTL time.Duration
}

// DefaultOptions returns the coordinator defaults.
func DefaultOptions() Options {
	return Options{
		PreserveContext:    true,
		EnableAutoHandoffs: false,
		HandoffThreshold:   0.7,
		MaxActiveAgents:    3,
		PendingTTL:         5 * time.Minute,
	}
}

// Coordinator executes agent switches and the negotiated handoff
// protocol against one conversation's state store.
type Coordinator struct {
	dir       *agent.Directory
	scorer    *agent.Scorer
	store     *conversation.Store
	opts      Options
	collector *metrics.Collector
	logger    *zap.Logger
}

// NewCoordinator creates a handoff coordinator.
func NewCoordinator(dir *agent.Directory, scorer *agent.Scorer, store *conversation.Store, opts Options, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		dir:    dir,
		scorer: scorer,
		store:  store,
		opts:   opts,
		logger: logger.With(zap.String("component", "handoff_coordinator")),
	}
}

// SetCollector attaches a metrics collector counting handoff outcomes.
func (c *Coordinator) SetCollector(collector *metrics.Collector) {
	c.collector = collector
}

func (c *Coordinator) recordHandoff(outcome string) {
	if c.collector != nil {
		c.collector.RecordHandoff(outcome)
	}
}

// SwitchToAgent makes the target agent current. The switch fails with an
// AGENT_UNAVAILABLE error when the target is unknown or inactive in the
// directory; losing the handoff is never silently recovered by picking a
// different agent. fromAgent is taken from the live state; reason is
// recorded on the emitted handoff message.
func (c *Coordinator) SwitchToAgent(agentID, reason string) (*conversation.HandoffRequest, error) {
	profile := c.dir.Get(agentID)
	if profile == nil || !profile.Active {
		c.recordHandoff("failed")
		return nil, types.NewErrorf(types.ErrAgentUnavailable,
			"agent %q is unknown or inactive", agentID).WithAgent(agentID)
	}

	state := c.store.State()
	fromAgent := state.CurrentAgent

	if err := c.ensureActive(state, agentID); err != nil {
		return nil, err
	}

	if _, err := c.store.Dispatch(conversation.SwitchAgent{From: fromAgent, To: agentID}); err != nil {
		return nil, err
	}

	if fromAgent != "" && c.opts.PreserveContext {
		c.preserveContext(fromAgent, agentID)
	}

	msg := conversation.HandoffRequest{
		ID:        uuid.New().String(),
		FromAgent: fromAgent,
		ToAgent:   agentID,
		Reason:    reason,
		Priority:  conversation.PriorityMedium,
		Status:    conversation.HandoffCompleted,
		CreatedAt: time.Now(),
	}
	c.store.Emit(conversation.HandoffEvent{
		Event:   conversation.EventAgentHandoff,
		Request: msg,
		At:      msg.CreatedAt,
	})

	c.recordHandoff("completed")
	c.logger.Info("agent switched",
		zap.String("from", fromAgent),
		zap.String("to", agentID),
		zap.String("reason", reason),
	)
	return &msg, nil
}

// RequestHandoff opens the negotiated path: the handoff is recorded as
// pending and resolved later by AcceptHandoff or RejectHandoff. The
// target must be known and active, same as the fast path.
func (c *Coordinator) RequestHandoff(fromAgent, toAgent, reason string, priority conversation.HandoffPriority) (*conversation.HandoffRequest, error) {
	profile := c.dir.Get(toAgent)
	if profile == nil || !profile.Active {
		return nil, types.NewErrorf(types.ErrAgentUnavailable,
			"agent %q is unknown or inactive", toAgent).WithAgent(toAgent)
	}

	req := conversation.HandoffRequest{
		ID:        uuid.New().String(),
		FromAgent: fromAgent,
		ToAgent:   toAgent,
		Reason:    reason,
		Priority:  priority,
		Status:    conversation.HandoffRequested,
		CreatedAt: time.Now(),
	}
	if _, err := c.store.Dispatch(conversation.RequestHandoff{Request: req}); err != nil {
		return nil, err
	}
	c.recordHandoff("requested")
	return &req, nil
}

// AcceptHandoff resolves a pending handoff and carries out the switch.
// Acceptance itself cannot be vetoed by the target agent; the external
// caller decides, and only target unavailability fails the operation.
func (c *Coordinator) AcceptHandoff(handoffID string) error {
	state := c.store.State()
	req, ok := findPending(state, handoffID)
	if !ok {
		return types.NewErrorf(types.ErrHandoffNotFound, "handoff %s not pending", handoffID)
	}

	if _, err := c.store.Dispatch(conversation.AcceptHandoff{HandoffID: handoffID}); err != nil {
		return err
	}
	if _, err := c.SwitchToAgent(req.ToAgent, req.Reason); err != nil {
		return err
	}
	_, err := c.store.Dispatch(conversation.CompleteHandoff{HandoffID: handoffID})
	return err
}

// RejectHandoff resolves a pending handoff as rejected.
func (c *Coordinator) RejectHandoff(handoffID, reason string) error {
	_, err := c.store.Dispatch(conversation.RejectHandoff{HandoffID: handoffID, Reason: reason})
	if err == nil {
		c.recordHandoff("rejected")
	}
	return err
}

// SuggestHandoff asks the scorer whether a better-suited agent exists for
// the conversation's current goal. Returns nil when the current agent is
// already optimal or no goal is set.
func (c *Coordinator) SuggestHandoff(criteria *agent.SelectionCriteria) *agent.HandoffSuggestion {
	state := c.store.State()
	task := currentTask(state)
	return c.scorer.SuggestHandoff(state.CurrentAgent, task, criteria)
}

// MaybeAutoHandoff switches automatically when auto-handoffs are enabled
// and the suggestion clears the confidence threshold. It returns the
// executed handoff, or nil when nothing was done.
func (c *Coordinator) MaybeAutoHandoff(criteria *agent.SelectionCriteria) (*conversation.HandoffRequest, error) {
	if !c.opts.EnableAutoHandoffs {
		return nil, nil
	}
	suggestion := c.SuggestHandoff(criteria)
	if suggestion == nil || suggestion.Confidence < c.opts.HandoffThreshold {
		return nil, nil
	}
	return c.SwitchToAgent(suggestion.ToAgent, suggestion.Reason)
}

// UnregisterAgent removes an agent from the directory and the
// conversation. The store transition clears the current-agent slot when
// the departing agent held it, keeping the cross-component invariant.
func (c *Coordinator) UnregisterAgent(agentID string) error {
	c.dir.Unregister(agentID)
	_, err := c.store.Dispatch(conversation.UnregisterAgent{AgentID: agentID})
	return err
}

// ExpirePending rejects handoffs that have stayed unresolved longer than
// PendingTTL. Returns the number of handoffs expired.
func (c *Coordinator) ExpirePending() int {
	if c.opts.PendingTTL <= 0 {
		return 0
	}
	cutoff := time.Now().Add(-c.opts.PendingTTL)
	expired := 0
	for _, req := range c.store.State().PendingHandoffs() {
		if req.CreatedAt.Before(cutoff) {
			if err := c.RejectHandoff(req.ID, "expired"); err == nil {
				expired++
			}
		}
	}
	if expired > 0 {
		c.logger.Info("expired pending handoffs", zap.Int("count", expired))
	}
	return expired
}

// ensureActive registers and activates the target when needed. The
// max-active-agents limit is advisory only.
func (c *Coordinator) ensureActive(state *conversation.SharedContext, agentID string) error {
	if _, registered := state.AgentStates[agentID]; !registered {
		if _, err := c.store.Dispatch(conversation.RegisterAgent{AgentID: agentID}); err != nil {
			return err
		}
	}
	if state.IsActive(agentID) {
		return nil
	}
	if c.opts.MaxActiveAgents > 0 && len(state.ActiveAgents) >= c.opts.MaxActiveAgents {
		c.logger.Warn("active agent limit exceeded",
			zap.Int("limit", c.opts.MaxActiveAgents),
			zap.String("activating", agentID),
		)
	}
	_, err := c.store.Dispatch(conversation.ActivateAgent{AgentID: agentID})
	return err
}

// preserveContext copies the outgoing agent's sync memory into the
// incoming agent's entry. Losing memory continuity is recoverable, so
// failures are logged and swallowed; the switch itself never rolls back.
func (c *Coordinator) preserveContext(fromAgent, toAgent string) {
	state := c.store.State()
	fromState, ok := state.AgentStates[fromAgent]
	if !ok || len(fromState.Memory) == 0 {
		return
	}
	memory := make(map[string]any, len(fromState.Memory))
	for k, entry := range fromState.Memory {
		memory[k] = entry.Value
	}
	if _, err := c.store.Dispatch(conversation.UpdateAgentSyncState{AgentID: toAgent, Memory: memory}); err != nil {
		c.logger.Warn("context preservation failed",
			zap.String("from", fromAgent),
			zap.String("to", toAgent),
			zap.Error(err),
		)
	}
}

func findPending(state *conversation.SharedContext, id string) (conversation.HandoffRequest, bool) {
	for _, h := range state.PendingHandoffs() {
		if h.ID == id {
			return h, true
		}
	}
	return conversation.HandoffRequest{}, false
}

// currentTask picks the task a suggestion should be scored against: the
// newest in-progress task, falling back to the conversation goal.
func currentTask(state *conversation.SharedContext) string {
	for i := len(state.TaskHistory) - 1; i >= 0; i-- {
		if state.TaskHistory[i].Status == conversation.TaskInProgress {
			return state.TaskHistory[i].Task
		}
	}
	return state.Goal
}
