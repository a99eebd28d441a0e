package conversation

import "github.com/BaSui01/agentcoord/types"

// Action is a named state transition. Every mutation to a SharedContext
// goes through exactly one Action so the full history can be replayed
// from an action log. The interface is sealed: only this package defines
// actions, which keeps the reducer's type switch exhaustive.
type Action interface {
	// ActionName returns the stable name used in audit logs and metrics.
	ActionName() string

	isAction()
}

// RegisterAgent adds a sync-state entry for an agent joining the
// conversation. Registration is idempotent per agent id.
type RegisterAgent struct {
	AgentID string
}

// UnregisterAgent removes an agent entirely: sync state, active set, and
// the current-agent slot if it held it.
type UnregisterAgent struct {
	AgentID string
}

// ActivateAgent adds an agent to the active set.
type ActivateAgent struct {
	AgentID string
}

// DeactivateAgent removes an agent from the active set. Deactivating the
// current agent clears the current-agent slot to preserve the invariant
// that the current agent is always active.
type DeactivateAgent struct {
	AgentID string
}

// SwitchAgent changes which agent is current. To must be active.
type SwitchAgent struct {
	From string
	To   string
}

// UpdateContext merges partial updates into goal, constraints, shared
// memory, and preferences. Nil fields are left untouched.
type UpdateContext struct {
	Goal        *string
	Constraints []string
	Memory      map[string]any
	Preferences map[string]any
}

// AddMessage appends a message to the conversation history.
type AddMessage struct {
	Message types.Message
}

// BeginTask appends a task record to the task history.
type BeginTask struct {
	Task TaskRecord
}

// FinishTask marks a task record completed or failed.
type FinishTask struct {
	TaskID string
	Status TaskStatus
	Result string
}

// RequestHandoff appends a pending handoff to the negotiation list.
type RequestHandoff struct {
	Request HandoffRequest
}

// AcceptHandoff resolves a pending handoff as accepted.
type AcceptHandoff struct {
	HandoffID string
}

// RejectHandoff resolves a pending handoff as rejected.
type RejectHandoff struct {
	HandoffID string
	Reason    string
}

// CompleteHandoff marks an accepted handoff as carried out.
type CompleteHandoff struct {
	HandoffID string
}

// RequestCollaboration records a collaboration request addressed to one
// agent or broadcast to all active agents.
type RequestCollaboration struct {
	Request CollaborationRequest
}

// RespondCollaboration resolves a pending collaboration request.
type RespondCollaboration struct {
	CollaborationID string
	ResponderID     string
	Accepted        bool
	Response        string
}

// UpdateAgentSyncState merges key/value pairs into an agent's
// synchronized memory, stamping each entry for conflict detection.
type UpdateAgentSyncState struct {
	AgentID string
	Memory  map[string]any
}

// ResolveConflict appends a resolution record to the audit list.
type ResolveConflict struct {
	Resolution ConflictResolution
}

func (RegisterAgent) ActionName() string        { return "register_agent" }
func (UnregisterAgent) ActionName() string      { return "unregister_agent" }
func (ActivateAgent) ActionName() string        { return "activate_agent" }
func (DeactivateAgent) ActionName() string      { return "deactivate_agent" }
func (SwitchAgent) ActionName() string          { return "switch_agent" }
func (UpdateContext) ActionName() string        { return "update_context" }
func (AddMessage) ActionName() string           { return "add_message" }
func (BeginTask) ActionName() string            { return "begin_task" }
func (FinishTask) ActionName() string           { return "finish_task" }
func (RequestHandoff) ActionName() string       { return "request_handoff" }
func (AcceptHandoff) ActionName() string        { return "accept_handoff" }
func (RejectHandoff) ActionName() string        { return "reject_handoff" }
func (CompleteHandoff) ActionName() string      { return "complete_handoff" }
func (RequestCollaboration) ActionName() string { return "request_collaboration" }
func (RespondCollaboration) ActionName() string { return "respond_collaboration" }
func (UpdateAgentSyncState) ActionName() string { return "update_agent_sync_state" }
func (ResolveConflict) ActionName() string      { return "resolve_conflict" }

func (RegisterAgent) isAction()        {}
func (UnregisterAgent) isAction()      {}
func (ActivateAgent) isAction()        {}
func (DeactivateAgent) isAction()      {}
func (SwitchAgent) isAction()          {}
func (UpdateContext) isAction()        {}
func (AddMessage) isAction()           {}
func (BeginTask) isAction()            {}
func (FinishTask) isAction()           {}
func (RequestHandoff) isAction()       {}
func (AcceptHandoff) isAction()        {}
func (RejectHandoff) isAction()        {}
func (CompleteHandoff) isAction()      {}
func (RequestCollaboration) isAction() {}
func (RespondCollaboration) isAction() {}
func (UpdateAgentSyncState) isAction() {}
func (ResolveConflict) isAction()      {}
