// File: internal/agent/orchestrator.go

// Package agent implements the local execution path: a bounded, observable,
// multi-turn loop in which a language model decides a sequence of
// computer-use actions, executed one at a time against a live page.
package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kfalter89/webpilot/api/schemas"
	"github.com/kfalter89/webpilot/internal/metrics"
)

// defaultSystemPrompt frames the model as a computer-use operator.
const defaultSystemPrompt = `You are a browser-automation operator. You are given a task and a set of
tools that act on a live web page. Work step by step: inspect the page,
invoke tools to act on it, and call the close tool when the task is done,
setting success to true only if the task was genuinely accomplished.`

// fallbackFinalMessage is used when a run finishes with nothing better to
// report.
const fallbackFinalMessage = "Task execution completed"

// Orchestrator drives one run at a time through the step loop. A single
// Orchestrator may run many times sequentially; concurrent runs against the
// same page are not supported and must be serialized by the caller.
type Orchestrator struct {
	modelClient  schemas.ToolModelClient
	page         schemas.Page
	executor     *ComputerUseExecutor
	logger       *zap.Logger
	maxSteps     int
	systemPrompt string
}

// NewOrchestrator builds the base orchestrator with the default step budget
// of twenty.
func NewOrchestrator(modelClient schemas.ToolModelClient, page schemas.Page, executor *ComputerUseExecutor, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		modelClient:  modelClient,
		page:         page,
		executor:     executor,
		logger:       logger.Named("orchestrator"),
		maxSteps:     DefaultMaxSteps,
		systemPrompt: defaultSystemPrompt,
	}
}

// NewSimpleOrchestrator is the simplified variant: same machinery, step
// budget halved to ten.
func NewSimpleOrchestrator(modelClient schemas.ToolModelClient, page schemas.Page, executor *ComputerUseExecutor, logger *zap.Logger) *Orchestrator {
	o := NewOrchestrator(modelClient, page, executor, logger)
	o.maxSteps = DefaultSimpleMaxSteps
	return o
}

// runContext carries the per-run state through the step loop. One runContext
// per invocation, never shared across runs.
type runContext struct {
	id          string
	state       *runState
	req         schemas.GenerationRequest
	maxSteps    int
	instruction string
	hooks       *Hooks
	customTools map[string]bool
	agg         *metrics.Aggregator
	start       time.Time
	emit        func(StepEvent)
}

// Execute runs the full loop to completion and returns the result. Failures
// inside the loop are converted into AgentResult{Success:false}; only
// preparation failures (no model client) return a non-nil error.
func (o *Orchestrator) Execute(ctx context.Context, opts Options) (*schemas.AgentResult, error) {
	rc, err := o.prepare(ctx, opts)
	if err != nil {
		return nil, err
	}
	return o.run(ctx, rc), nil
}

// prepare builds the initial message context, merges caller tools with the
// built-in set, and resolves the starting page URL. Fails fast when no model
// client is configured.
func (o *Orchestrator) prepare(ctx context.Context, opts Options) (*runContext, error) {
	if o.modelClient == nil {
		return nil, ErrMissingModelClient
	}

	maxSteps := opts.MaxSteps
	if maxSteps <= 0 {
		maxSteps = o.maxSteps
	}
	system := opts.SystemPrompt
	if system == "" {
		system = o.systemPrompt
	}

	tools := builtinTools()
	customTools := make(map[string]bool, len(opts.Tools))
	for _, tool := range opts.Tools {
		tools = append(tools, tool)
		customTools[tool.Name] = true
	}

	state := &runState{}
	if url, err := o.page.URL(ctx); err != nil {
		o.logger.Debug("Could not resolve starting page URL", zap.Error(err))
	} else {
		state.currentPageURL = url
	}

	content := opts.Instruction
	if state.currentPageURL != "" {
		content = fmt.Sprintf("%s\n\nCurrent page: %s", opts.Instruction, state.currentPageURL)
	}

	return &runContext{
		id:          uuid.NewString(),
		state:       state,
		maxSteps:    maxSteps,
		instruction: opts.Instruction,
		hooks:       opts.Hooks,
		customTools: customTools,
		agg:         metrics.NewAggregator(),
		start:       time.Now(),
		req: schemas.GenerationRequest{
			System:   system,
			Messages: []schemas.Message{{Role: "user", Content: content}},
			Tools:    tools,
		},
	}, nil
}

// run drives the model loop and always produces a result; internal errors
// never escape as raw failures.
func (o *Orchestrator) run(ctx context.Context, rc *runContext) *schemas.AgentResult {
	o.logger.Info("Agent run started",
		zap.String("run_id", rc.id),
		zap.Int("max_steps", rc.maxSteps),
		zap.String("model", o.modelClient.ModelName()))

	onStep := func(ctx context.Context, step schemas.ModelStep) error {
		return o.handleStep(ctx, rc, step)
	}
	stop := func([]schemas.ModelStep) bool {
		return rc.state.completed || rc.state.stopRequested || rc.state.steps >= rc.maxSteps
	}

	genResult, genErr := o.modelClient.GenerateWithTools(ctx, rc.req, onStep, stop)

	// The wall-clock duration of the run lands in the agent bucket no matter
	// how the loop ended.
	rc.agg.AddInferenceTime(schemas.CategoryAgent, time.Since(rc.start).Milliseconds())
	usage := toAgentUsage(rc.agg.Snapshot())

	if genErr != nil {
		o.logger.Error("Agent run failed",
			zap.String("run_id", rc.id),
			zap.Int("steps", rc.state.steps),
			zap.Error(genErr))
		return &schemas.AgentResult{
			Success:   false,
			Completed: rc.state.completed,
			Message:   fmt.Sprintf("agent run failed: %v", genErr),
			Actions:   rc.state.actions,
			Usage:     usage,
		}
	}

	message := rc.state.finalMessage
	if message == "" && genResult != nil {
		message = strings.TrimSpace(genResult.Text)
	}
	if message == "" {
		message = fallbackFinalMessage
	}

	o.logger.Info("Agent run finished",
		zap.String("run_id", rc.id),
		zap.Int("steps", rc.state.steps),
		zap.Int("actions", len(rc.state.actions)),
		zap.Bool("completed", rc.state.completed))

	return &schemas.AgentResult{
		Success:   rc.state.completed,
		Completed: rc.state.completed,
		Message:   message,
		Actions:   rc.state.actions,
		Usage:     usage,
	}
}

// handleStep processes one model decision turn: hooks, tool-call mapping,
// action execution, reasoning accumulation and page-URL refresh. Executor
// failures propagate out of this callback and are converted at the run
// boundary.
func (o *Orchestrator) handleStep(ctx context.Context, rc *runContext, step schemas.ModelStep) error {
	rc.state.steps++
	stepNumber := rc.state.steps

	if o.fireStepStart(ctx, rc, stepNumber) {
		rc.state.stopRequested = true
		return nil
	}

	// The URL tagged onto this step's actions is the one in effect before
	// any of them ran.
	pageURL := rc.state.currentPageURL

	if step.Reasoning != "" {
		rc.state.reasoning = append(rc.state.reasoning, step.Reasoning)
	}
	rc.agg.Add(schemas.CategoryAgent, step.Usage)

	actionsBefore := len(rc.state.actions)
	for _, call := range step.ToolCalls {
		if call.Name == closeToolName {
			o.handleClose(rc, call)
			continue
		}

		action, known := actionFromToolCall(call)
		if !known {
			if !rc.customTools[call.Name] {
				o.logger.Warn("Rejected unknown tool call",
					zap.String("run_id", rc.id),
					zap.String("tool", call.Name))
				continue
			}
			action = customToolAction(call)
		}

		action.PageURL = pageURL
		if _, err := o.executor.Execute(ctx, action); err != nil {
			return err
		}
		action.Timestamp = time.Now().UTC()
		rc.state.actions = append(rc.state.actions, action)
	}

	// Refresh the tracked URL once per step, after all its tool calls.
	if url, err := o.page.URL(ctx); err == nil && url != "" {
		rc.state.currentPageURL = url
	}

	performed := len(rc.state.actions) - actionsBefore
	if rc.emit != nil {
		rc.emit(StepEvent{
			Step:      stepNumber,
			Reasoning: step.Reasoning,
			Actions:   rc.state.actions[actionsBefore:],
			Completed: rc.state.completed,
		})
	}

	o.fireStepEnd(ctx, rc, stepNumber, performed)
	return nil
}

// handleClose marks the run completed. The completed flag transitions once;
// repeated close calls are ignored.
func (o *Orchestrator) handleClose(rc *runContext, call schemas.ToolCall) {
	if rc.state.completed {
		return
	}
	rc.state.completed = true
	rc.state.taskAccomplished = boolArg(call.Arguments, "success")

	reasoning := strings.TrimSpace(strings.Join(rc.state.reasoning, "\n"))
	closeMessage := strings.TrimSpace(stringArg(call.Arguments, "message"))

	if rc.state.taskAccomplished {
		parts := make([]string, 0, 2)
		if reasoning != "" {
			parts = append(parts, reasoning)
		}
		if closeMessage != "" {
			parts = append(parts, closeMessage)
		}
		rc.state.finalMessage = strings.Join(parts, "\n")
	} else {
		rc.state.finalMessage = reasoning
	}

	o.logger.Info("Close tool invoked",
		zap.String("run_id", rc.id),
		zap.Bool("task_accomplished", rc.state.taskAccomplished))
}

// fireStepStart invokes the step-start hook behind a recover guard. A
// panicking hook is logged and treated as "don't stop".
func (o *Orchestrator) fireStepStart(ctx context.Context, rc *runContext, step int) (stop bool) {
	if rc.hooks == nil || rc.hooks.OnStepStart == nil {
		return false
	}
	defer func() {
		if r := recover(); r != nil {
			o.logger.Warn("Step-start hook panicked",
				zap.String("run_id", rc.id),
				zap.Int("step", step),
				zap.Any("panic_value", r))
			stop = false
		}
	}()
	return rc.hooks.OnStepStart(ctx, StepInfo{
		Step:        step,
		MaxSteps:    rc.maxSteps,
		Instruction: rc.instruction,
	})
}

// fireStepEnd invokes the step-end hook behind the same recover guard.
func (o *Orchestrator) fireStepEnd(ctx context.Context, rc *runContext, step, performed int) {
	if rc.hooks == nil || rc.hooks.OnStepEnd == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			o.logger.Warn("Step-end hook panicked",
				zap.String("run_id", rc.id),
				zap.Int("step", step),
				zap.Any("panic_value", r))
		}
	}()
	rc.hooks.OnStepEnd(ctx, StepEndInfo{
		Step:             step,
		MaxSteps:         rc.maxSteps,
		Instruction:      rc.instruction,
		ActionsPerformed: performed,
		Completed:        rc.state.completed,
	})
}

func toAgentUsage(snapshot schemas.UsageMetrics) schemas.AgentUsage {
	return schemas.AgentUsage{
		InputTokens:     snapshot.Total.PromptTokens,
		OutputTokens:    snapshot.Total.CompletionTokens,
		InferenceTimeMs: snapshot.Total.InferenceTimeMs,
	}
}
