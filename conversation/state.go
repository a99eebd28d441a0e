package conversation

import (
	"time"

	"github.com/BaSui01/agentcoord/types"
)

// TaskStatus represents the lifecycle of a task in the task history.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
)

// TaskRecord is one entry in the ordered task history.
type TaskRecord struct {
	ID        string     `json:"id"`
	Task      string     `json:"task"`
	AgentID   string     `json:"agent_id"`
	Status    TaskStatus `json:"status"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Result    string     `json:"result,omitempty"`
}

// HandoffPriority ranks how urgently a handoff should be considered.
type HandoffPriority string

const (
	PriorityLow    HandoffPriority = "low"
	PriorityMedium HandoffPriority = "medium"
	PriorityHigh   HandoffPriority = "high"
	PriorityUrgent HandoffPriority = "urgent"
)

// HandoffStatus represents the short-lived handoff negotiation state.
type HandoffStatus string

const (
	HandoffRequested HandoffStatus = "requested"
	HandoffAccepted  HandoffStatus = "accepted"
	HandoffRejected  HandoffStatus = "rejected"
	HandoffCompleted HandoffStatus = "completed"
)

// HandoffRequest is an agent-switch proposal. FromAgent is empty for
// system-initiated handoffs. Immutable once created; only Status and
// RejectReason change as the negotiation resolves.
type HandoffRequest struct {
	ID           string          `json:"id"`
	FromAgent    string          `json:"from_agent,omitempty"`
	ToAgent      string          `json:"to_agent"`
	Reason       string          `json:"reason"`
	Priority     HandoffPriority `json:"priority"`
	Status       HandoffStatus   `json:"status"`
	RejectReason string          `json:"reject_reason,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Recipient identifies who a collaboration request is addressed to:
// either one agent or every active agent.
type Recipient struct {
	agentID   string
	broadcast bool
}

// Broadcast returns a Recipient addressing all active agents.
func Broadcast() Recipient {
	return Recipient{broadcast: true}
}

// To returns a Recipient addressing a single agent.
func To(agentID string) Recipient {
	return Recipient{agentID: agentID}
}

// IsBroadcast reports whether the recipient is every active agent.
func (r Recipient) IsBroadcast() bool { return r.broadcast }

// AgentID returns the addressed agent id when the recipient is not a
// broadcast.
func (r Recipient) AgentID() (string, bool) {
	if r.broadcast {
		return "", false
	}
	return r.agentID, r.agentID != ""
}

// String renders the recipient for logs and audit entries.
func (r Recipient) String() string {
	if r.broadcast {
		return "broadcast"
	}
	return r.agentID
}

// CollaborationStatus represents the state of a collaboration request.
type CollaborationStatus string

const (
	CollaborationPending  CollaborationStatus = "pending"
	CollaborationAccepted CollaborationStatus = "accepted"
	CollaborationDeclined CollaborationStatus = "declined"
)

// CollaborationRequest asks one or all agents to assist with a task
// without switching the current agent.
type CollaborationRequest struct {
	ID          string              `json:"id"`
	FromAgent   string              `json:"from_agent"`
	Recipient   Recipient           `json:"-"`
	Task        string              `json:"task"`
	Status      CollaborationStatus `json:"status"`
	ResponderID string              `json:"responder_id,omitempty"`
	Response    string              `json:"response,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
	RespondedAt *time.Time          `json:"responded_at,omitempty"`
}

// MemoryEntry is one value in an agent's synchronized memory, stamped so
// conflict detection can compare concurrent writes to the same key.
type MemoryEntry struct {
	Value     any       `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AgentSyncState is the per-agent view of shared state used for context
// preservation across handoffs and for conflict detection.
type AgentSyncState struct {
	AgentID      string                 `json:"agent_id"`
	Memory       map[string]MemoryEntry `json:"memory"`
	LastSyncedAt time.Time              `json:"last_synced_at"`
}

// ConflictType classifies a detected divergence between agents.
type ConflictType string

const (
	MemoryConflict     ConflictType = "memory_conflict"
	WorkflowConflict   ConflictType = "workflow_conflict"
	MessageConflict    ConflictType = "message_conflict"
	PreferenceConflict ConflictType = "preference_conflict"
)

// ConflictSeverity ranks how disruptive a conflict is.
type ConflictSeverity string

const (
	SeverityLow    ConflictSeverity = "low"
	SeverityMedium ConflictSeverity = "medium"
	SeverityHigh   ConflictSeverity = "high"
)

// StateConflict records a detected divergence between agents' views of
// shared state. Conflicts are detected, never auto-created by writes.
type StateConflict struct {
	ID             string           `json:"id"`
	Type           ConflictType     `json:"type"`
	InvolvedAgents []string         `json:"involved_agents"`
	Severity       ConflictSeverity `json:"severity"`
	Key            string           `json:"key,omitempty"`
	Data           map[string]any   `json:"data,omitempty"`
	DetectedAt     time.Time        `json:"detected_at"`
}

// ResolutionStrategy selects how a conflict is resolved.
type ResolutionStrategy string

const (
	ResolveMerge      ResolutionStrategy = "merge"
	ResolvePriority   ResolutionStrategy = "priority"
	ResolveUserChoice ResolutionStrategy = "user_choice"
	ResolveDefault    ResolutionStrategy = "default"
)

// ConflictResolution is an append-only audit record. Resolutions never
// retroactively rewrite history.
type ConflictResolution struct {
	ConflictID string             `json:"conflict_id"`
	Strategy   ResolutionStrategy `json:"strategy"`
	Resolution map[string]any     `json:"resolution,omitempty"`
	AppliedBy  string             `json:"applied_by"`
	AppliedAt  time.Time          `json:"applied_at"`
}

// SharedContext is the single source of truth for one conversation.
// Exactly one live instance exists per conversation; every accepted
// mutation increments Version and bumps UpdatedAt.
type SharedContext struct {
	ConversationID string                    `json:"conversation_id"`
	Messages       []types.Message           `json:"messages"`
	ActiveAgents   []string                  `json:"active_agents"`
	CurrentAgent   string                    `json:"current_agent,omitempty"`
	SharedMemory   map[string]any            `json:"shared_memory"`
	Goal           string                    `json:"goal,omitempty"`
	Constraints    []string                  `json:"constraints,omitempty"`
	TaskHistory    []TaskRecord              `json:"task_history"`
	Preferences    map[string]any            `json:"preferences"`
	Handoffs       []HandoffRequest          `json:"handoffs"`
	Collaborations []CollaborationRequest    `json:"collaborations"`
	AgentStates    map[string]AgentSyncState `json:"agent_states"`
	Resolutions    []ConflictResolution      `json:"resolutions"`
	CreatedAt      time.Time                 `json:"created_at"`
	UpdatedAt      time.Time                 `json:"updated_at"`
	Version        uint64                    `json:"version"`
}

// NewSharedContext creates the initial state for a conversation.
func NewSharedContext(conversationID string) *SharedContext {
	now := time.Now()
	return &SharedContext{
		ConversationID: conversationID,
		Messages:       []types.Message{},
		ActiveAgents:   []string{},
		SharedMemory:   map[string]any{},
		TaskHistory:    []TaskRecord{},
		Preferences:    map[string]any{},
		Handoffs:       []HandoffRequest{},
		Collaborations: []CollaborationRequest{},
		AgentStates:    map[string]AgentSyncState{},
		Resolutions:    []ConflictResolution{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// IsActive reports whether the agent is in the active set.
func (c *SharedContext) IsActive(agentID string) bool {
	for _, id := range c.ActiveAgents {
		if id == agentID {
			return true
		}
	}
	return false
}

// PendingHandoffs returns the handoffs still in the requested state.
func (c *SharedContext) PendingHandoffs() []HandoffRequest {
	var pending []HandoffRequest
	for _, h := range c.Handoffs {
		if h.Status == HandoffRequested {
			pending = append(pending, h)
		}
	}
	return pending
}

// Clone returns a deep copy of the context. Map values and message
// metadata are copied one level deep, which covers every write path the
// reducer performs.
func (c *SharedContext) Clone() *SharedContext {
	cp := *c

	cp.Messages = make([]types.Message, len(c.Messages))
	copy(cp.Messages, c.Messages)

	cp.ActiveAgents = make([]string, len(c.ActiveAgents))
	copy(cp.ActiveAgents, c.ActiveAgents)

	cp.SharedMemory = cloneMap(c.SharedMemory)
	cp.Preferences = cloneMap(c.Preferences)

	cp.Constraints = make([]string, len(c.Constraints))
	copy(cp.Constraints, c.Constraints)

	cp.TaskHistory = make([]TaskRecord, len(c.TaskHistory))
	copy(cp.TaskHistory, c.TaskHistory)

	cp.Handoffs = make([]HandoffRequest, len(c.Handoffs))
	copy(cp.Handoffs, c.Handoffs)

	cp.Collaborations = make([]CollaborationRequest, len(c.Collaborations))
	copy(cp.Collaborations, c.Collaborations)

	cp.Resolutions = make([]ConflictResolution, len(c.Resolutions))
	copy(cp.Resolutions, c.Resolutions)

	cp.AgentStates = make(map[string]AgentSyncState, len(c.AgentStates))
	for id, st := range c.AgentStates {
		stCopy := st
		stCopy.Memory = make(map[string]MemoryEntry, len(st.Memory))
		for k, v := range st.Memory {
			stCopy.Memory[k] = v
		}
		cp.AgentStates[id] = stCopy
	}

	return &cp
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
