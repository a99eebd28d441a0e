package workflow

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BaSui01/agentcoord/internal/metrics"
	"github.com/BaSui01/agentcoord/types"
)

// Failure messages for bound-exceeded workflows. Callers match on these.
const (
	msgMaxStepsReached    = "Maximum steps reached"
	msgMaxDurationReached = "Maximum duration reached"
	msgCostLimitReached   = "Cost limit reached"
)

// Config holds the engine's execution limits and retry policy.
type Config struct {
	// MaxSteps bounds ContinueUntil iterations. Overridable per call.
	MaxSteps int `yaml:"max_steps" json:"max_steps"`

	// MaxDuration bounds ContinueUntil wall-clock time.
	MaxDuration time.Duration `yaml:"max_duration" json:"max_duration"`

	// AllowParallel is recognized but unimplemented: steps run
	// strictly sequentially.
	AllowParallel bool `yaml:"allow_parallel" json:"allow_parallel"`

	// CostLimit fails the loop once accumulated cost exceeds it.
	// Zero means unlimited.
	CostLimit float64 `yaml:"cost_limit" json:"cost_limit"`

	// RetryFailedSteps makes ExecuteStep absorb step failures into
	// step state instead of returning them.
	RetryFailedSteps bool `yaml:"retry_failed_steps" json:"retry_failed_steps"`

	// MaxRetries re-attempts a failing tool or reasoning invocation
	// within one step before the step is marked failed.
	MaxRetries int `yaml:"max_retries" json:"max_retries"`

	// RetryDelay is slept between in-step retry attempts.
	RetryDelay time.Duration `yaml:"retry_delay" json:"retry_delay"`

	// StepsPerSecond rate-limits step execution. Zero disables the
	// limiter.
	StepsPerSecond float64 `yaml:"steps_per_second" json:"steps_per_second"`

	// DefaultModel is used when neither the step nor the execution
	// context names one.
	DefaultModel string `yaml:"default_model" json:"default_model"`
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		MaxSteps:         50,
		MaxDuration:      5 * time.Minute,
		RetryFailedSteps: true,
		MaxRetries:       0,
		RetryDelay:       200 * time.Millisecond,
	}
}

// ExecutionContext scopes one workflow run: which conversation and
// agent the steps act for, and which tools they may call. A nil Tools
// falls back to the engine's registry.
type ExecutionContext struct {
	ConversationID string
	AgentID        string
	ModelID        string
	Tools          *ToolRegistry
	Metadata       map[string]any
}

// Stats aggregates engine activity across workflows.
type Stats struct {
	WorkflowsStarted    int     `json:"workflows_started"`
	WorkflowsCompleted  int     `json:"workflows_completed"`
	WorkflowsFailed     int     `json:"workflows_failed"`
	WorkflowsCancelled  int     `json:"workflows_cancelled"`
	TotalSteps          int     `json:"total_steps"`
	AvgStepsPerWorkflow float64 `json:"avg_steps_per_workflow"`
	SuccessRate         float64 `json:"success_rate"`
}

// Engine executes workflows one at a time. All step execution is
// strictly sequential; pause and cancel are cooperative flags observed
// at the top of each ContinueUntil iteration.
type Engine struct {
	cfg       Config
	reasoner  Reasoner
	tools     *ToolRegistry
	estimator *UsageEstimator
	limiter   *rate.Limiter
	tracer    trace.Tracer
	collector *metrics.Collector
	logger    *zap.Logger

	mu      sync.Mutex
	active  *AgentWorkflow
	execCtx ExecutionContext
	stats   Stats

	pauseRequested atomic.Bool
	stopRequested  atomic.Bool
}

// Option customizes engine construction.
type Option func(*Engine)

// WithMetrics attaches a metrics collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(e *Engine) { e.collector = c }
}

// WithTools replaces the engine's default tool registry.
func WithTools(r *ToolRegistry) Option {
	return func(e *Engine) { e.tools = r }
}

// NewEngine creates a workflow engine bound to a reasoner.
func NewEngine(cfg Config, reasoner Reasoner, logger *zap.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		cfg:       cfg,
		reasoner:  reasoner,
		tools:     NewToolRegistry(),
		estimator: NewUsageEstimator(),
		tracer:    otel.Tracer("agentcoord/workflow"),
		logger:    logger.With(zap.String("component", "workflow_engine")),
	}
	if cfg.StepsPerSecond > 0 {
		e.limiter = rate.NewLimiter(rate.Limit(cfg.StepsPerSecond), 1)
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Tools returns the engine's default tool registry.
func (e *Engine) Tools() *ToolRegistry { return e.tools }

// Stats returns a copy of the aggregate engine statistics.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

// CreateWorkflow builds an idle workflow with bounds copied from the
// engine configuration.
func (e *Engine) CreateWorkflow(name, description, task string) *AgentWorkflow {
	return newWorkflow(name, description, task, Bounds{
		MaxSteps:      e.cfg.MaxSteps,
		MaxDuration:   e.cfg.MaxDuration,
		AllowParallel: e.cfg.AllowParallel,
	})
}

// StartWorkflow moves an idle workflow to running and makes it the
// engine's active execution. Only one workflow may run at a time; a
// second start fails until the first reaches a terminal state.
func (e *Engine) StartWorkflow(wf *AgentWorkflow, execCtx ExecutionContext) error {
	if wf.Status != StatusIdle {
		return types.NewErrorf(types.ErrInvalidTransition,
			"workflow %s is %s, expected idle", wf.ID, wf.Status)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active != nil && !e.active.Status.IsTerminal() {
		return types.NewErrorf(types.ErrWorkflowConcurrent,
			"workflow %s is still %s", e.active.ID, e.active.Status)
	}

	wf.Status = StatusRunning
	wf.StartedAt = time.Now()
	e.active = wf
	e.execCtx = execCtx
	e.pauseRequested.Store(false)
	e.stopRequested.Store(false)
	e.stats.WorkflowsStarted++

	e.logger.Info("workflow started",
		zap.String("workflow_id", wf.ID),
		zap.String("name", wf.Name),
		zap.String("agent_id", execCtx.AgentID),
	)
	return nil
}

// StepOptions describes a step to prepare. A non-empty ToolName forces
// the step type to tool_call regardless of Type.
type StepOptions struct {
	Type      StepType
	Prompt    string
	Reasoning string
	ToolName  string
	ToolArgs  map[string]any
	ModelID   string
}

// PrepareStep appends a pending step to the workflow's audit trail.
func (e *Engine) PrepareStep(wf *AgentWorkflow, opts StepOptions) *AgentStep {
	stepType := opts.Type
	if stepType == "" {
		stepType = StepThinking
	}
	if opts.ToolName != "" {
		stepType = StepToolCall
	}

	step := &AgentStep{
		ID:        uuid.New().String(),
		Type:      stepType,
		Status:    StepPending,
		Reasoning: opts.Reasoning,
		Metadata:  StepMetadata{ModelID: e.modelFor(opts.ModelID)},
	}
	if stepType == StepToolCall {
		step.ToolCall = &ToolInvocation{Name: opts.ToolName, Arguments: opts.ToolArgs}
	}
	if opts.Prompt != "" && step.Reasoning == "" {
		step.Reasoning = opts.Prompt
	}

	wf.Steps = append(wf.Steps, step)
	wf.Counters.TotalSteps++
	wf.CurrentStep = len(wf.Steps) - 1
	return step
}

// ExecuteStep runs one prepared step and mutates it in place. Failures
// are absorbed into step state when RetryFailedSteps is configured,
// otherwise returned to the caller. Either way the step ends failed
// and the workflow's failure counter advances.
func (e *Engine) ExecuteStep(ctx context.Context, wf *AgentWorkflow, step *AgentStep) error {
	if wf.Status != StatusRunning {
		return types.NewErrorf(types.ErrWorkflowNotRunning,
			"workflow %s is %s", wf.ID, wf.Status)
	}

	// Tool handlers and reasoners read the execution identity from ctx.
	ctx = types.WithWorkflowID(ctx, wf.ID)
	if e.execCtx.ConversationID != "" {
		ctx = types.WithConversationID(ctx, e.execCtx.ConversationID)
	}
	if e.execCtx.AgentID != "" {
		ctx = types.WithAgentID(ctx, e.execCtx.AgentID)
	}

	ctx, span := e.tracer.Start(ctx, "workflow.step",
		trace.WithAttributes(
			attribute.String("workflow.id", wf.ID),
			attribute.String("step.id", step.ID),
			attribute.String("step.type", string(step.Type)),
		))
	defer span.End()

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	step.Status = StepExecuting
	step.StartedAt = time.Now()

	err := e.runStep(ctx, wf, step)

	step.EndedAt = time.Now()
	step.Duration = step.EndedAt.Sub(step.StartedAt)

	if err != nil {
		step.Status = StepFailed
		step.Error = err.Error()
		if step.ToolCall != nil {
			step.ToolCall.Error = err.Error()
		}
		wf.Counters.FailedSteps++
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.recordStep(step)

		e.logger.Warn("step failed",
			zap.String("workflow_id", wf.ID),
			zap.String("step_id", step.ID),
			zap.String("step_type", string(step.Type)),
			zap.Error(err),
		)
		if e.cfg.RetryFailedSteps {
			return nil
		}
		return err
	}

	step.Status = StepCompleted
	wf.Counters.CompletedSteps++
	wf.Counters.TotalTokens += step.Metadata.Usage.TotalTokens
	wf.Counters.TotalCost += step.Metadata.Usage.Cost
	e.recordStep(step)
	return nil
}

// runStep dispatches on step type: tool steps go through the registry,
// reasoning steps through the bound reasoner. Error steps are records,
// executing one is a no-op.
func (e *Engine) runStep(ctx context.Context, wf *AgentWorkflow, step *AgentStep) error {
	switch step.Type {
	case StepToolCall:
		return e.runToolStep(ctx, step)
	case StepThinking, StepDecision, StepResponse:
		return e.runReasoningStep(ctx, step)
	case StepError:
		return nil
	default:
		return types.NewErrorf(types.ErrStepExecutionFailed, "unknown step type %q", step.Type)
	}
}

func (e *Engine) runToolStep(ctx context.Context, step *AgentStep) error {
	registry := e.tools
	if e.execCtx.Tools != nil {
		registry = e.execCtx.Tools
	}
	tool, ok := registry.Get(step.ToolCall.Name)
	if !ok {
		return types.NewErrorf(types.ErrToolNotFound, "tool %q not found", step.ToolCall.Name)
	}

	result, err := e.withRetry(ctx, func() (any, error) {
		return tool.Handler(ctx, step.ToolCall.Arguments)
	})
	if err != nil {
		return types.NewErrorf(types.ErrStepExecutionFailed,
			"tool %q failed", step.ToolCall.Name).WithCause(err).WithRetryable(true)
	}
	step.ToolCall.Result = result
	return nil
}

func (e *Engine) runReasoningStep(ctx context.Context, step *AgentStep) error {
	if e.reasoner == nil {
		return types.NewError(types.ErrStepExecutionFailed, "no reasoner bound")
	}

	prompt := step.Reasoning
	result, err := e.withRetry(ctx, func() (any, error) {
		return e.reasoner.Invoke(ctx, step.Metadata.ModelID, prompt)
	})
	if err != nil {
		return types.NewError(types.ErrStepExecutionFailed,
			"reasoning invocation failed").WithCause(err).WithRetryable(true)
	}

	res, ok := result.(*ReasonResult)
	if !ok || res == nil {
		return types.NewError(types.ErrStepExecutionFailed,
			"reasoner returned no result").WithRetryable(true)
	}
	if res.Content != "" {
		step.Reasoning = res.Content
	}
	step.Decision = res.Decision
	step.Metadata.Usage = res.Usage
	if res.Usage.IsZero() {
		step.Metadata.Usage = e.estimator.Estimate(prompt, res.Content)
	}
	return nil
}

// withRetry re-attempts an invocation per the retry policy. ctx
// cancellation aborts the remaining attempts.
func (e *Engine) withRetry(ctx context.Context, fn func() (any, error)) (any, error) {
	var lastErr error
	attempts := 1 + e.cfg.MaxRetries
	for i := 0; i < attempts; i++ {
		if i > 0 && e.cfg.RetryDelay > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(e.cfg.RetryDelay):
			}
		}
		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

// ContinueOptions drives one ContinueUntil run.
type ContinueOptions struct {
	// Condition is evaluated after each executed step; returning true
	// completes the workflow.
	Condition func(wf *AgentWorkflow, step *AgentStep) bool

	// MaxSteps and MaxDuration override the workflow bounds for this
	// call when non-zero.
	MaxSteps    int
	MaxDuration time.Duration

	// PauseOnError pauses the loop instead of continuing past a
	// failed step.
	PauseOnError bool

	// NextStep supplies the options for each prepared step. Nil means
	// a thinking step over the workflow task.
	NextStep func(wf *AgentWorkflow) StepOptions

	OnStep     func(step *AgentStep)
	OnDecision func(d *Decision)
	OnToolCall func(tc *ToolInvocation)
	OnComplete func(wf *AgentWorkflow)
}

// ContinueUntil is the core control loop: prepare, execute, count,
// evaluate the termination predicate. The loop is bounded by max steps
// and wall-clock duration; exceeding either without the predicate
// firing marks the workflow failed, never completed. Pause and cancel
// flags are polled at loop-top only; an in-flight step is never
// preempted.
func (e *Engine) ContinueUntil(ctx context.Context, wf *AgentWorkflow, opts ContinueOptions) error {
	if wf.Status != StatusRunning {
		return types.NewErrorf(types.ErrWorkflowNotRunning,
			"workflow %s is %s", wf.ID, wf.Status)
	}

	maxSteps := opts.MaxSteps
	if maxSteps <= 0 {
		maxSteps = wf.Bounds.MaxSteps
	}
	maxDuration := opts.MaxDuration
	if maxDuration <= 0 {
		maxDuration = wf.Bounds.MaxDuration
	}
	nextStep := opts.NextStep
	if nextStep == nil {
		nextStep = func(wf *AgentWorkflow) StepOptions {
			return StepOptions{Type: StepThinking, Prompt: wf.Task}
		}
	}

	start := time.Now()
	iterations := 0

	for {
		if err := ctx.Err(); err != nil {
			e.cancelNow(wf)
			e.finishWorkflow(wf, opts.OnComplete)
			return err
		}
		if e.stopRequested.Load() {
			e.cancelNow(wf)
			e.finishWorkflow(wf, opts.OnComplete)
			return nil
		}
		if e.pauseRequested.Load() {
			wf.Status = StatusPaused
			e.logger.Info("workflow paused", zap.String("workflow_id", wf.ID))
			return nil
		}
		if iterations >= maxSteps {
			err := types.NewError(types.ErrBoundsExceeded, msgMaxStepsReached)
			e.failWorkflow(wf, err, opts.OnComplete)
			return err
		}
		if maxDuration > 0 && time.Since(start) > maxDuration {
			err := types.NewError(types.ErrBoundsExceeded, msgMaxDurationReached)
			e.failWorkflow(wf, err, opts.OnComplete)
			return err
		}
		if e.cfg.CostLimit > 0 && wf.Counters.TotalCost > e.cfg.CostLimit {
			err := types.NewError(types.ErrBoundsExceeded, msgCostLimitReached)
			e.failWorkflow(wf, err, opts.OnComplete)
			return err
		}

		step := e.PrepareStep(wf, nextStep(wf))
		iterations++

		if err := e.ExecuteStep(ctx, wf, step); err != nil {
			e.failWorkflow(wf, err, opts.OnComplete)
			return err
		}

		if opts.OnStep != nil {
			opts.OnStep(step)
		}
		if step.ToolCall != nil && opts.OnToolCall != nil {
			opts.OnToolCall(step.ToolCall)
		}
		if step.Decision != nil && opts.OnDecision != nil {
			opts.OnDecision(step.Decision)
		}

		if step.Status == StepFailed && opts.PauseOnError {
			wf.Status = StatusPaused
			e.logger.Info("workflow paused on step failure",
				zap.String("workflow_id", wf.ID),
				zap.String("step_id", step.ID),
			)
			return nil
		}

		if opts.Condition != nil && opts.Condition(wf, step) {
			wf.Status = StatusCompleted
			wf.Result = stepResult(step)
			e.finishWorkflow(wf, opts.OnComplete)
			return nil
		}
	}
}

// PauseWorkflow requests a pause, observed at the next loop-top.
func (e *Engine) PauseWorkflow() {
	e.pauseRequested.Store(true)
}

// ResumeWorkflow moves a paused workflow back to running. The caller
// re-invokes ContinueUntil to actually continue stepping.
func (e *Engine) ResumeWorkflow() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active == nil || e.active.Status != StatusPaused {
		return types.NewError(types.ErrInvalidTransition, "no paused workflow to resume")
	}
	e.active.Status = StatusRunning
	e.pauseRequested.Store(false)
	return nil
}

// CancelWorkflow marks the active workflow cancelled immediately and
// sets the stop flag. A loop in flight observes the flag at its next
// top and exits without overwriting the terminal status.
func (e *Engine) CancelWorkflow() {
	e.stopRequested.Store(true)
	e.mu.Lock()
	wf := e.active
	e.mu.Unlock()
	if wf != nil && !wf.Status.IsTerminal() {
		e.cancelNow(wf)
		e.logger.Info("workflow cancelled", zap.String("workflow_id", wf.ID))
	}
}

// ActiveWorkflow returns the engine's current workflow, which may be
// terminal.
func (e *Engine) ActiveWorkflow() *AgentWorkflow {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

func (e *Engine) cancelNow(wf *AgentWorkflow) {
	if wf.Status.IsTerminal() {
		return
	}
	now := time.Now()
	wf.Status = StatusCancelled
	wf.EndedAt = &now
}

func (e *Engine) failWorkflow(wf *AgentWorkflow, err error, onComplete func(*AgentWorkflow)) {
	if !wf.Status.IsTerminal() {
		now := time.Now()
		wf.Status = StatusFailed
		wf.Error = err.Error()
		wf.EndedAt = &now
	}
	e.finishWorkflow(wf, onComplete)
}

// finishWorkflow settles terminal bookkeeping: end timestamp, aggregate
// stats, metrics, and the completion callback.
func (e *Engine) finishWorkflow(wf *AgentWorkflow, onComplete func(*AgentWorkflow)) {
	if wf.EndedAt == nil {
		now := time.Now()
		wf.EndedAt = &now
	}

	e.mu.Lock()
	switch wf.Status {
	case StatusCompleted:
		e.stats.WorkflowsCompleted++
	case StatusFailed:
		e.stats.WorkflowsFailed++
	case StatusCancelled:
		e.stats.WorkflowsCancelled++
	}
	e.stats.TotalSteps += wf.Counters.TotalSteps
	finished := e.stats.WorkflowsCompleted + e.stats.WorkflowsFailed + e.stats.WorkflowsCancelled
	if finished > 0 {
		e.stats.AvgStepsPerWorkflow = float64(e.stats.TotalSteps) / float64(finished)
		e.stats.SuccessRate = float64(e.stats.WorkflowsCompleted) / float64(finished)
	}
	e.mu.Unlock()

	if e.collector != nil {
		e.collector.RecordWorkflow(string(wf.Status), e.modelFor(""), wf.Counters.TotalTokens, wf.Counters.TotalCost)
	}

	e.logger.Info("workflow finished",
		zap.String("workflow_id", wf.ID),
		zap.String("status", string(wf.Status)),
		zap.Int("total_steps", wf.Counters.TotalSteps),
		zap.Int("failed_steps", wf.Counters.FailedSteps),
	)

	if onComplete != nil {
		onComplete(wf)
	}
}

func (e *Engine) recordStep(step *AgentStep) {
	if e.collector != nil {
		e.collector.RecordStep(string(step.Type), string(step.Status), step.Duration)
	}
}

func (e *Engine) modelFor(stepModel string) string {
	if stepModel != "" {
		return stepModel
	}
	if e.execCtx.ModelID != "" {
		return e.execCtx.ModelID
	}
	return e.cfg.DefaultModel
}

func stepResult(step *AgentStep) any {
	if step.ToolCall != nil && step.ToolCall.Result != nil {
		return step.ToolCall.Result
	}
	return step.Reasoning
}
