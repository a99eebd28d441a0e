package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/agentcoord/types"
)

type stubReasoner struct {
	err      error
	decision *Decision
	delay    time.Duration
	calls    int
}

func (s *stubReasoner) Invoke(ctx context.Context, modelID, prompt string) (*ReasonResult, error) {
	s.calls++
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.err != nil {
		return nil, s.err
	}
	return &ReasonResult{Content: "thought about: " + prompt, Decision: s.decision}, nil
}

func testEngine(t *testing.T, cfg Config, r Reasoner) *Engine {
	t.Helper()
	if r == nil {
		r = &stubReasoner{}
	}
	return NewEngine(cfg, r, nil)
}

func startedWorkflow(t *testing.T, e *Engine) *AgentWorkflow {
	t.Helper()
	wf := e.CreateWorkflow("test", "", "do the thing")
	require.NoError(t, e.StartWorkflow(wf, ExecutionContext{AgentID: "a"}))
	return wf
}

func TestCreateWorkflow_CopiesBounds(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxSteps = 7
	e := testEngine(t, cfg, nil)

	wf := e.CreateWorkflow("test", "desc", "task")
	assert.Equal(t, StatusIdle, wf.Status)
	assert.Equal(t, 7, wf.Bounds.MaxSteps)
	assert.Equal(t, cfg.MaxDuration, wf.Bounds.MaxDuration)
	assert.NotEmpty(t, wf.ID)
}

func TestStartWorkflow_RequiresIdle(t *testing.T) {
	e := testEngine(t, DefaultConfig(), nil)
	wf := startedWorkflow(t, e)

	err := e.StartWorkflow(wf, ExecutionContext{})
	require.Error(t, err)
	assert.Equal(t, types.ErrInvalidTransition, types.GetErrorCode(err))
}

func TestStartWorkflow_RejectsConcurrent(t *testing.T) {
	e := testEngine(t, DefaultConfig(), nil)
	startedWorkflow(t, e)

	second := e.CreateWorkflow("second", "", "task")
	err := e.StartWorkflow(second, ExecutionContext{})
	require.Error(t, err)
	assert.Equal(t, types.ErrWorkflowConcurrent, types.GetErrorCode(err))
}

func TestPrepareStep_ToolNameForcesType(t *testing.T) {
	e := testEngine(t, DefaultConfig(), nil)
	wf := startedWorkflow(t, e)

	step := e.PrepareStep(wf, StepOptions{Type: StepThinking, ToolName: "search", ToolArgs: map[string]any{"q": "go"}})
	assert.Equal(t, StepToolCall, step.Type)
	assert.Equal(t, StepPending, step.Status)
	require.NotNil(t, step.ToolCall)
	assert.Equal(t, "search", step.ToolCall.Name)
	assert.Equal(t, 1, wf.Counters.TotalSteps)
	assert.Len(t, wf.Steps, 1)
}

func TestExecuteStep_UnknownToolFailsAndRethrows(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RetryFailedSteps = false
	e := testEngine(t, cfg, nil)
	wf := startedWorkflow(t, e)

	step := e.PrepareStep(wf, StepOptions{ToolName: "nope"})
	err := e.ExecuteStep(context.Background(), wf, step)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
	assert.Equal(t, types.ErrToolNotFound, types.GetErrorCode(err))
	assert.Equal(t, StepFailed, step.Status)
	assert.Contains(t, step.ToolCall.Error, "not found")
	assert.Equal(t, 1, wf.Counters.FailedSteps)
}

func TestExecuteStep_UnknownToolSwallowedWhenRetrying(t *testing.T) {
	e := testEngine(t, DefaultConfig(), nil) // RetryFailedSteps defaults true
	wf := startedWorkflow(t, e)

	step := e.PrepareStep(wf, StepOptions{ToolName: "nope"})
	err := e.ExecuteStep(context.Background(), wf, step)

	require.NoError(t, err, "failure is absorbed into step state")
	assert.Equal(t, StepFailed, step.Status)
	assert.Equal(t, 1, wf.Counters.FailedSteps)
}

func TestExecuteStep_ToolSuccess(t *testing.T) {
	e := testEngine(t, DefaultConfig(), nil)
	e.Tools().Register(Tool{
		Name: "double",
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			return args["n"].(int) * 2, nil
		},
	})
	wf := startedWorkflow(t, e)

	step := e.PrepareStep(wf, StepOptions{ToolName: "double", ToolArgs: map[string]any{"n": 21}})
	require.NoError(t, e.ExecuteStep(context.Background(), wf, step))

	assert.Equal(t, StepCompleted, step.Status)
	assert.Equal(t, 42, step.ToolCall.Result)
	assert.Equal(t, 1, wf.Counters.CompletedSteps)
	assert.False(t, step.EndedAt.Before(step.StartedAt))
}

func TestExecuteStep_ReasoningRecordsContentAndUsage(t *testing.T) {
	e := testEngine(t, DefaultConfig(), &stubReasoner{decision: &Decision{Action: "continue", Confidence: 0.9}})
	wf := startedWorkflow(t, e)

	step := e.PrepareStep(wf, StepOptions{Type: StepDecision, Prompt: "what next"})
	require.NoError(t, e.ExecuteStep(context.Background(), wf, step))

	assert.Equal(t, StepCompleted, step.Status)
	assert.Contains(t, step.Reasoning, "what next")
	require.NotNil(t, step.Decision)
	assert.Equal(t, "continue", step.Decision.Action)
	assert.Positive(t, step.Metadata.Usage.TotalTokens, "usage is estimated when the reasoner reports none")
	assert.Equal(t, step.Metadata.Usage.TotalTokens, wf.Counters.TotalTokens)
}

func TestExecuteStep_ReasonerFailureWrapped(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RetryFailedSteps = false
	e := testEngine(t, cfg, &stubReasoner{err: errors.New("model overloaded")})
	wf := startedWorkflow(t, e)

	step := e.PrepareStep(wf, StepOptions{Type: StepThinking, Prompt: "think"})
	err := e.ExecuteStep(context.Background(), wf, step)

	require.Error(t, err)
	assert.Equal(t, types.ErrStepExecutionFailed, types.GetErrorCode(err))
	assert.True(t, types.IsRetryable(err))
	assert.Equal(t, StepFailed, step.Status)
}

type emptyReasoner struct{}

func (emptyReasoner) Invoke(ctx context.Context, modelID, prompt string) (*ReasonResult, error) {
	return nil, nil
}

func TestExecuteStep_NilReasonerResultFailsStep(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RetryFailedSteps = false
	e := testEngine(t, cfg, emptyReasoner{})
	wf := startedWorkflow(t, e)

	step := e.PrepareStep(wf, StepOptions{Type: StepThinking, Prompt: "think"})
	err := e.ExecuteStep(context.Background(), wf, step)

	require.Error(t, err, "a nil result is a step failure, not a panic")
	assert.Equal(t, types.ErrStepExecutionFailed, types.GetErrorCode(err))
	assert.Equal(t, StepFailed, step.Status)
	assert.Equal(t, 1, wf.Counters.FailedSteps)
}

func TestExecuteStep_NilReasonerResultSwallowedWhenRetrying(t *testing.T) {
	e := testEngine(t, DefaultConfig(), emptyReasoner{})
	wf := startedWorkflow(t, e)

	step := e.PrepareStep(wf, StepOptions{Type: StepThinking, Prompt: "think"})
	require.NoError(t, e.ExecuteStep(context.Background(), wf, step))
	assert.Equal(t, StepFailed, step.Status)
}

func TestExecuteStep_StampsExecutionIdentity(t *testing.T) {
	e := testEngine(t, DefaultConfig(), nil)
	e.Tools().Register(Tool{
		Name: "whoami",
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			ids := map[string]string{}
			if v, ok := types.ConversationID(ctx); ok {
				ids["conversation"] = v
			}
			if v, ok := types.AgentID(ctx); ok {
				ids["agent"] = v
			}
			if v, ok := types.WorkflowID(ctx); ok {
				ids["workflow"] = v
			}
			return ids, nil
		},
	})

	wf := e.CreateWorkflow("identity", "", "task")
	require.NoError(t, e.StartWorkflow(wf, ExecutionContext{
		ConversationID: "conv-1",
		AgentID:        "researcher",
	}))

	step := e.PrepareStep(wf, StepOptions{ToolName: "whoami"})
	require.NoError(t, e.ExecuteStep(context.Background(), wf, step))

	ids := step.ToolCall.Result.(map[string]string)
	assert.Equal(t, "conv-1", ids["conversation"])
	assert.Equal(t, "researcher", ids["agent"])
	assert.Equal(t, wf.ID, ids["workflow"])
}

func TestExecuteStep_RetriesInvocation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxRetries = 2
	cfg.RetryDelay = time.Millisecond
	flaky := &flakyReasoner{failures: 2}
	e := testEngine(t, cfg, flaky)
	wf := startedWorkflow(t, e)

	step := e.PrepareStep(wf, StepOptions{Type: StepThinking, Prompt: "think"})
	require.NoError(t, e.ExecuteStep(context.Background(), wf, step))
	assert.Equal(t, StepCompleted, step.Status)
	assert.Equal(t, 3, flaky.calls)
}

type flakyReasoner struct {
	failures int
	calls    int
}

func (f *flakyReasoner) Invoke(ctx context.Context, modelID, prompt string) (*ReasonResult, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("transient")
	}
	return &ReasonResult{Content: "recovered"}, nil
}

func TestContinueUntil_BoundedLoopCompletesOnCondition(t *testing.T) {
	e := testEngine(t, DefaultConfig(), nil)
	wf := startedWorkflow(t, e)

	onStepCalls := 0
	err := e.ContinueUntil(context.Background(), wf, ContinueOptions{
		Condition: func(wf *AgentWorkflow, step *AgentStep) bool {
			return wf.Counters.TotalSteps >= 3
		},
		MaxSteps: 5,
		OnStep:   func(*AgentStep) { onStepCalls++ },
	})

	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, wf.Status)
	assert.Equal(t, 3, wf.Counters.TotalSteps)
	assert.Len(t, wf.Steps, 3)
	assert.Equal(t, 3, onStepCalls)
	assert.NotNil(t, wf.EndedAt)
}

func TestContinueUntil_MaxStepsExceededFails(t *testing.T) {
	e := testEngine(t, DefaultConfig(), nil)
	wf := startedWorkflow(t, e)

	err := e.ContinueUntil(context.Background(), wf, ContinueOptions{
		Condition: func(*AgentWorkflow, *AgentStep) bool { return false },
		MaxSteps:  4,
	})

	require.Error(t, err)
	assert.Equal(t, types.ErrBoundsExceeded, types.GetErrorCode(err))
	assert.Equal(t, StatusFailed, wf.Status)
	assert.Equal(t, "Maximum steps reached", wf.Error)
	assert.Equal(t, 4, wf.Counters.TotalSteps)
}

func TestContinueUntil_MaxDurationExceededFails(t *testing.T) {
	e := testEngine(t, DefaultConfig(), &stubReasoner{delay: 2 * time.Millisecond})
	wf := startedWorkflow(t, e)

	err := e.ContinueUntil(context.Background(), wf, ContinueOptions{
		Condition:   func(*AgentWorkflow, *AgentStep) bool { return false },
		MaxSteps:    1000,
		MaxDuration: time.Millisecond,
	})

	require.Error(t, err)
	assert.Equal(t, StatusFailed, wf.Status)
	assert.Equal(t, "Maximum duration reached", wf.Error)
}

func TestContinueUntil_PauseOnError(t *testing.T) {
	e := testEngine(t, DefaultConfig(), &stubReasoner{err: errors.New("boom")})
	wf := startedWorkflow(t, e)

	err := e.ContinueUntil(context.Background(), wf, ContinueOptions{
		Condition:    func(*AgentWorkflow, *AgentStep) bool { return false },
		MaxSteps:     5,
		PauseOnError: true,
	})

	require.NoError(t, err)
	assert.Equal(t, StatusPaused, wf.Status)
	assert.Equal(t, 1, wf.Counters.FailedSteps)
}

func TestContinueUntil_PauseAndResume(t *testing.T) {
	e := testEngine(t, DefaultConfig(), nil)
	wf := startedWorkflow(t, e)

	err := e.ContinueUntil(context.Background(), wf, ContinueOptions{
		Condition: func(*AgentWorkflow, *AgentStep) bool { return false },
		MaxSteps:  10,
		OnStep:    func(*AgentStep) { e.PauseWorkflow() },
	})
	require.NoError(t, err)
	assert.Equal(t, StatusPaused, wf.Status)
	assert.Equal(t, 1, wf.Counters.TotalSteps, "pause observed at the next loop-top")

	require.NoError(t, e.ResumeWorkflow())
	assert.Equal(t, StatusRunning, wf.Status)

	err = e.ContinueUntil(context.Background(), wf, ContinueOptions{
		Condition: func(wf *AgentWorkflow, _ *AgentStep) bool {
			return wf.Counters.TotalSteps >= 2
		},
		MaxSteps: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, wf.Status)
}

func TestContinueUntil_CancelObservedAtLoopTop(t *testing.T) {
	e := testEngine(t, DefaultConfig(), nil)
	wf := startedWorkflow(t, e)

	err := e.ContinueUntil(context.Background(), wf, ContinueOptions{
		Condition: func(*AgentWorkflow, *AgentStep) bool { return false },
		MaxSteps:  10,
		OnStep:    func(*AgentStep) { e.CancelWorkflow() },
	})

	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, wf.Status)
	assert.Equal(t, 1, wf.Counters.TotalSteps, "in-flight step is never preempted")
	assert.NotNil(t, wf.EndedAt)
}

func TestCancelWorkflow_MarksTerminalImmediately(t *testing.T) {
	e := testEngine(t, DefaultConfig(), nil)
	wf := startedWorkflow(t, e)

	e.CancelWorkflow()
	assert.Equal(t, StatusCancelled, wf.Status)
	assert.NotNil(t, wf.EndedAt)

	err := e.ContinueUntil(context.Background(), wf, ContinueOptions{})
	require.Error(t, err)
	assert.Equal(t, types.ErrWorkflowNotRunning, types.GetErrorCode(err))
}

func TestResumeWorkflow_RequiresPaused(t *testing.T) {
	e := testEngine(t, DefaultConfig(), nil)
	startedWorkflow(t, e)

	err := e.ResumeWorkflow()
	require.Error(t, err)
	assert.Equal(t, types.ErrInvalidTransition, types.GetErrorCode(err))
}

func TestEngine_StatsAggregation(t *testing.T) {
	e := testEngine(t, DefaultConfig(), nil)

	wf := startedWorkflow(t, e)
	require.NoError(t, e.ContinueUntil(context.Background(), wf, ContinueOptions{
		Condition: func(wf *AgentWorkflow, _ *AgentStep) bool { return wf.Counters.TotalSteps >= 2 },
		MaxSteps:  10,
	}))

	second := e.CreateWorkflow("second", "", "task")
	require.NoError(t, e.StartWorkflow(second, ExecutionContext{}))
	err := e.ContinueUntil(context.Background(), second, ContinueOptions{
		Condition: func(*AgentWorkflow, *AgentStep) bool { return false },
		MaxSteps:  4,
	})
	require.Error(t, err)

	stats := e.Stats()
	assert.Equal(t, 2, stats.WorkflowsStarted)
	assert.Equal(t, 1, stats.WorkflowsCompleted)
	assert.Equal(t, 1, stats.WorkflowsFailed)
	assert.Equal(t, 6, stats.TotalSteps)
	assert.InDelta(t, 3.0, stats.AvgStepsPerWorkflow, 1e-9)
	assert.InDelta(t, 0.5, stats.SuccessRate, 1e-9)
}

func TestStatusTransitions(t *testing.T) {
	assert.True(t, CanTransition(StatusIdle, StatusRunning))
	assert.True(t, CanTransition(StatusRunning, StatusPaused))
	assert.True(t, CanTransition(StatusPaused, StatusRunning))
	assert.True(t, CanTransition(StatusRunning, StatusFailed))

	assert.False(t, CanTransition(StatusCompleted, StatusRunning))
	assert.False(t, CanTransition(StatusFailed, StatusRunning))
	assert.False(t, CanTransition(StatusCancelled, StatusRunning))
	assert.False(t, CanTransition(StatusIdle, StatusPaused))

	for _, s := range []Status{StatusCompleted, StatusFailed, StatusCancelled} {
		assert.True(t, s.IsTerminal())
	}
	assert.False(t, StatusRunning.IsTerminal())
}
