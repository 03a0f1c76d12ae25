// File: internal/agent/models.go
package agent

import (
	"context"

	"github.com/kfalter89/webpilot/api/schemas"
)

// Default step budgets. The base orchestrator allows twenty model steps per
// run; the simplified constructor halves that.
const (
	DefaultMaxSteps       = 20
	DefaultSimpleMaxSteps = 10
)

// Options configures one orchestration run.
type Options struct {
	// Instruction is the task handed to the model.
	Instruction string

	// MaxSteps bounds the number of model decision turns. Zero means the
	// orchestrator default.
	MaxSteps int

	// SystemPrompt overrides the built-in system prompt when non-empty.
	SystemPrompt string

	// Tools are caller-declared capabilities merged with the built-in
	// computer-use tool set.
	Tools []schemas.ToolDefinition

	// Hooks receive lifecycle notifications. Optional.
	Hooks *Hooks
}

// StepInfo describes the step about to run.
type StepInfo struct {
	Step        int
	MaxSteps    int
	Instruction string
}

// StepEndInfo describes a finished step.
type StepEndInfo struct {
	Step             int
	MaxSteps         int
	Instruction      string
	ActionsPerformed int
	Completed        bool
}

// Hooks are optional lifecycle callbacks. Failures inside a hook are logged
// and swallowed; a malfunctioning hook never aborts the run. OnStepStart may
// return true to request an early stop before the step is processed.
type Hooks struct {
	OnStepStart func(ctx context.Context, info StepInfo) bool
	OnStepEnd   func(ctx context.Context, info StepEndInfo)
}

// StepEvent is one observable unit of a streaming run.
type StepEvent struct {
	Step      int                   `json:"step"`
	Reasoning string                `json:"reasoning,omitempty"`
	Actions   []schemas.AgentAction `json:"actions"`
	Completed bool                  `json:"completed"`
}

// runState is the mutable state of a single run. It is owned by the step
// handler of that run and never shared across runs; actions are append-only
// and the completed flag transitions false to true at most once.
type runState struct {
	reasoning        []string
	actions          []schemas.AgentAction
	finalMessage     string
	completed        bool
	taskAccomplished bool
	currentPageURL   string
	steps            int
	stopRequested    bool
}
