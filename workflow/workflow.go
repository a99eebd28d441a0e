package workflow

import (
	"time"

	"github.com/BaSui01/agentcoord/types"
	"github.com/google/uuid"
)

// Status is the workflow lifecycle state.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// IsTerminal reports whether the status can never change again.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// validTransitions is the workflow state machine: idle starts running,
// running can pause or terminate, paused can resume or be cancelled.
var validTransitions = map[Status][]Status{
	StatusIdle:    {StatusRunning, StatusCancelled},
	StatusRunning: {StatusPaused, StatusCompleted, StatusFailed, StatusCancelled},
	StatusPaused:  {StatusRunning, StatusCancelled},
}

// CanTransition reports whether from -> to is a legal status change.
func CanTransition(from, to Status) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// StepType classifies what a step does.
type StepType string

const (
	StepThinking StepType = "thinking"
	StepToolCall StepType = "tool_call"
	StepDecision StepType = "decision"
	StepResponse StepType = "response"
	StepError    StepType = "error"
)

// StepStatus is the per-step lifecycle state.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepExecuting StepStatus = "executing"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
	StepCancelled StepStatus = "cancelled"
)

// Decision records a choice made at a decision step.
type Decision struct {
	Action       string   `json:"action"`
	Confidence   float64  `json:"confidence"`
	Alternatives []string `json:"alternatives,omitempty"`
}

// ToolInvocation records one tool call and its outcome.
type ToolInvocation struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
	Result    any            `json:"result,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// StepMetadata carries per-step accounting.
type StepMetadata struct {
	ModelID string           `json:"model_id,omitempty"`
	Usage   types.TokenUsage `json:"usage"`
}

// AgentStep is one unit of workflow execution. Steps are appended to
// the workflow at prepare-time and mutated in place at execute-time;
// the list is a full audit trail and entries are never removed.
type AgentStep struct {
	ID        string         `json:"id"`
	Type      StepType       `json:"type"`
	Status    StepStatus     `json:"status"`
	StartedAt time.Time      `json:"started_at,omitempty"`
	EndedAt   time.Time      `json:"ended_at,omitempty"`
	Duration  time.Duration  `json:"duration,omitempty"`
	Reasoning string         `json:"reasoning,omitempty"`
	Decision  *Decision      `json:"decision,omitempty"`
	ToolCall  *ToolInvocation `json:"tool_call,omitempty"`
	Error     string         `json:"error,omitempty"`
	Metadata  StepMetadata   `json:"metadata"`
}

// Bounds limits a workflow's execution.
type Bounds struct {
	MaxSteps    int           `json:"max_steps"`
	MaxDuration time.Duration `json:"max_duration"`

	// AllowParallel is recognized but not acted on: the control loop
	// executes steps strictly sequentially.
	AllowParallel bool `json:"allow_parallel"`
}

// Counters aggregates step accounting for one workflow. For every
// completed or failed workflow, CompletedSteps+FailedSteps == TotalSteps
// and TotalSteps == len(Steps).
type Counters struct {
	TotalSteps     int     `json:"total_steps"`
	CompletedSteps int     `json:"completed_steps"`
	FailedSteps    int     `json:"failed_steps"`
	TotalCost      float64 `json:"total_cost"`
	TotalTokens    int     `json:"total_tokens"`
}

// AgentWorkflow is a bounded sequence of steps executed by one agent
// toward a task. The engine owns it exclusively for its lifetime.
type AgentWorkflow struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Task        string       `json:"task"`
	Steps       []*AgentStep `json:"steps"`
	Status      Status       `json:"status"`
	CurrentStep int          `json:"current_step"`
	Bounds      Bounds       `json:"bounds"`
	Counters    Counters     `json:"counters"`
	Result      any          `json:"result,omitempty"`
	Error       string       `json:"error,omitempty"`
	StartedAt   time.Time    `json:"started_at,omitempty"`
	EndedAt     *time.Time   `json:"ended_at,omitempty"`
}

func newWorkflow(name, description, task string, bounds Bounds) *AgentWorkflow {
	return &AgentWorkflow{
		ID:          uuid.New().String(),
		Name:        name,
		Description: description,
		Task:        task,
		Status:      StatusIdle,
		Bounds:      bounds,
	}
}

// LastStep returns the most recently prepared step, or nil.
func (w *AgentWorkflow) LastStep() *AgentStep {
	if len(w.Steps) == 0 {
		return nil
	}
	return w.Steps[len(w.Steps)-1]
}
