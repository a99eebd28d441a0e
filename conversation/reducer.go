package conversation

import (
	"time"

	"github.com/BaSui01/agentcoord/types"
)

// Apply is the pure state-transition function: (prior state, action) to
// new state. It never mutates its input; on success the returned context
// has Version incremented by exactly one and UpdatedAt bumped. On a
// precondition violation the prior state is returned unchanged alongside
// the error, so a rejected action never advances the version.
func Apply(state *SharedContext, action Action) (*SharedContext, error) {
	next := state.Clone()

	if err := apply(next, action); err != nil {
		return state, err
	}

	next.Version++
	next.UpdatedAt = time.Now()
	return next, nil
}

func apply(c *SharedContext, action Action) error {
	switch a := action.(type) {
	case RegisterAgent:
		return applyRegisterAgent(c, a)
	case UnregisterAgent:
		return applyUnregisterAgent(c, a)
	case ActivateAgent:
		return applyActivateAgent(c, a)
	case DeactivateAgent:
		return applyDeactivateAgent(c, a)
	case SwitchAgent:
		return applySwitchAgent(c, a)
	case UpdateContext:
		return applyUpdateContext(c, a)
	case AddMessage:
		c.Messages = append(c.Messages, a.Message)
		return nil
	case BeginTask:
		return applyBeginTask(c, a)
	case FinishTask:
		return applyFinishTask(c, a)
	case RequestHandoff:
		return applyRequestHandoff(c, a)
	case AcceptHandoff:
		return resolveHandoff(c, a.HandoffID, HandoffAccepted, "")
	case RejectHandoff:
		return resolveHandoff(c, a.HandoffID, HandoffRejected, a.Reason)
	case CompleteHandoff:
		return applyCompleteHandoff(c, a)
	case RequestCollaboration:
		return applyRequestCollaboration(c, a)
	case RespondCollaboration:
		return applyRespondCollaboration(c, a)
	case UpdateAgentSyncState:
		return applyUpdateAgentSyncState(c, a)
	case ResolveConflict:
		return applyResolveConflict(c, a)
	default:
		return types.NewErrorf(types.ErrInvalidTransition, "unknown action %q", action.ActionName())
	}
}

func applyRegisterAgent(c *SharedContext, a RegisterAgent) error {
	if a.AgentID == "" {
		return types.NewError(types.ErrInvalidTransition, "agent id is required")
	}
	if _, ok := c.AgentStates[a.AgentID]; ok {
		// Idempotent: re-registering refreshes the sync timestamp only.
		st := c.AgentStates[a.AgentID]
		st.LastSyncedAt = time.Now()
		c.AgentStates[a.AgentID] = st
		return nil
	}
	c.AgentStates[a.AgentID] = AgentSyncState{
		AgentID:      a.AgentID,
		Memory:       map[string]MemoryEntry{},
		LastSyncedAt: time.Now(),
	}
	return nil
}

func applyUnregisterAgent(c *SharedContext, a UnregisterAgent) error {
	delete(c.AgentStates, a.AgentID)
	removeAgent(c, a.AgentID)
	if c.CurrentAgent == a.AgentID {
		c.CurrentAgent = ""
	}
	return nil
}

func applyActivateAgent(c *SharedContext, a ActivateAgent) error {
	if a.AgentID == "" {
		return types.NewError(types.ErrInvalidTransition, "agent id is required")
	}
	if c.IsActive(a.AgentID) {
		return nil
	}
	c.ActiveAgents = append(c.ActiveAgents, a.AgentID)
	return nil
}

func applyDeactivateAgent(c *SharedContext, a DeactivateAgent) error {
	removeAgent(c, a.AgentID)
	if c.CurrentAgent == a.AgentID {
		c.CurrentAgent = ""
	}
	return nil
}

func applySwitchAgent(c *SharedContext, a SwitchAgent) error {
	if !c.IsActive(a.To) {
		return types.NewErrorf(types.ErrAgentUnavailable, "agent %q is not active", a.To).WithAgent(a.To)
	}
	if a.From != "" && a.From != c.CurrentAgent {
		return types.NewErrorf(types.ErrInvalidTransition,
			"switch expects current agent %q, have %q", a.From, c.CurrentAgent)
	}
	c.CurrentAgent = a.To
	return nil
}

func applyUpdateContext(c *SharedContext, a UpdateContext) error {
	if a.Goal != nil {
		c.Goal = *a.Goal
	}
	if a.Constraints != nil {
		c.Constraints = append([]string{}, a.Constraints...)
	}
	for k, v := range a.Memory {
		c.SharedMemory[k] = v
	}
	for k, v := range a.Preferences {
		c.Preferences[k] = v
	}
	return nil
}

func applyBeginTask(c *SharedContext, a BeginTask) error {
	t := a.Task
	if t.ID == "" {
		return types.NewError(types.ErrInvalidTransition, "task id is required")
	}
	if t.Status == "" {
		t.Status = TaskPending
	}
	if t.StartedAt.IsZero() {
		t.StartedAt = time.Now()
	}
	c.TaskHistory = append(c.TaskHistory, t)
	return nil
}

func applyFinishTask(c *SharedContext, a FinishTask) error {
	for i := range c.TaskHistory {
		if c.TaskHistory[i].ID != a.TaskID {
			continue
		}
		now := time.Now()
		c.TaskHistory[i].Status = a.Status
		c.TaskHistory[i].Result = a.Result
		c.TaskHistory[i].EndedAt = &now
		return nil
	}
	return types.NewErrorf(types.ErrInvalidTransition, "task %q not in history", a.TaskID)
}

func applyRequestHandoff(c *SharedContext, a RequestHandoff) error {
	req := a.Request
	if req.ToAgent == "" {
		return types.NewError(types.ErrInvalidTransition, "handoff target is required")
	}
	if req.Status == "" {
		req.Status = HandoffRequested
	}
	if req.Priority == "" {
		req.Priority = PriorityMedium
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now()
	}
	c.Handoffs = append(c.Handoffs, req)
	return nil
}

func resolveHandoff(c *SharedContext, id string, status HandoffStatus, reason string) error {
	for i := range c.Handoffs {
		if c.Handoffs[i].ID != id {
			continue
		}
		if c.Handoffs[i].Status != HandoffRequested {
			return types.NewErrorf(types.ErrHandoffResolved,
				"handoff %s already %s", id, c.Handoffs[i].Status)
		}
		c.Handoffs[i].Status = status
		c.Handoffs[i].RejectReason = reason
		return nil
	}
	return types.NewErrorf(types.ErrHandoffNotFound, "handoff %s not found", id)
}

func applyCompleteHandoff(c *SharedContext, a CompleteHandoff) error {
	for i := range c.Handoffs {
		if c.Handoffs[i].ID != a.HandoffID {
			continue
		}
		if c.Handoffs[i].Status != HandoffAccepted {
			return types.NewErrorf(types.ErrInvalidTransition,
				"handoff %s is %s, expected accepted", a.HandoffID, c.Handoffs[i].Status)
		}
		c.Handoffs[i].Status = HandoffCompleted
		return nil
	}
	return types.NewErrorf(types.ErrHandoffNotFound, "handoff %s not found", a.HandoffID)
}

func applyRequestCollaboration(c *SharedContext, a RequestCollaboration) error {
	req := a.Request
	if _, ok := req.Recipient.AgentID(); !ok && !req.Recipient.IsBroadcast() {
		return types.NewError(types.ErrInvalidTransition, "collaboration recipient is required")
	}
	if req.Status == "" {
		req.Status = CollaborationPending
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now()
	}
	c.Collaborations = append(c.Collaborations, req)
	return nil
}

func applyRespondCollaboration(c *SharedContext, a RespondCollaboration) error {
	for i := range c.Collaborations {
		if c.Collaborations[i].ID != a.CollaborationID {
			continue
		}
		if c.Collaborations[i].Status != CollaborationPending {
			return types.NewErrorf(types.ErrInvalidTransition,
				"collaboration %s already resolved", a.CollaborationID)
		}
		now := time.Now()
		if a.Accepted {
			c.Collaborations[i].Status = CollaborationAccepted
		} else {
			c.Collaborations[i].Status = CollaborationDeclined
		}
		c.Collaborations[i].ResponderID = a.ResponderID
		c.Collaborations[i].Response = a.Response
		c.Collaborations[i].RespondedAt = &now
		return nil
	}
	return types.NewErrorf(types.ErrInvalidTransition, "collaboration %s not found", a.CollaborationID)
}

func applyUpdateAgentSyncState(c *SharedContext, a UpdateAgentSyncState) error {
	st, ok := c.AgentStates[a.AgentID]
	if !ok {
		return types.NewErrorf(types.ErrAgentNotFound, "agent %q not registered", a.AgentID).WithAgent(a.AgentID)
	}
	now := time.Now()
	for k, v := range a.Memory {
		st.Memory[k] = MemoryEntry{Value: v, UpdatedAt: now}
	}
	st.LastSyncedAt = now
	c.AgentStates[a.AgentID] = st
	return nil
}

func applyResolveConflict(c *SharedContext, a ResolveConflict) error {
	res := a.Resolution
	if res.ConflictID == "" {
		return types.NewError(types.ErrInvalidTransition, "conflict id is required")
	}
	if res.Strategy == "" {
		return types.NewErrorf(types.ErrConflictUnresolved,
			"conflict %s has no applicable strategy", res.ConflictID)
	}
	if res.AppliedAt.IsZero() {
		res.AppliedAt = time.Now()
	}
	c.Resolutions = append(c.Resolutions, res)
	return nil
}

func removeAgent(c *SharedContext, agentID string) {
	for i, id := range c.ActiveAgents {
		if id == agentID {
			c.ActiveAgents = append(c.ActiveAgents[:i], c.ActiveAgents[i+1:]...)
			return
		}
	}
}
