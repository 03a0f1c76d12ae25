// File: api/schemas/agent.go
package schemas

import "encoding/json"

// AgentResult is the immutable outcome of one orchestration run. Both the
// local step loop and the remote agentExecute operation produce this shape so
// batch callers can inspect results uniformly.
type AgentResult struct {
	Success   bool          `json:"success"`
	Completed bool          `json:"completed"`
	Message   string        `json:"message"`
	Actions   []AgentAction `json:"actions"`
	Usage     AgentUsage    `json:"usage"`
}

// ReplayStep is a recorded, replayable description of one executed action,
// independent of the live run. Steps are handed to a ReplayRecorder and never
// retained by the executor.
type ReplayStep struct {
	Method      string       `json:"method"`
	Description string       `json:"description,omitempty"`
	Selector    string       `json:"selector,omitempty"`
	Argument    string       `json:"argument,omitempty"`
	URL         string       `json:"url,omitempty"`
	DeltaX      float64      `json:"delta_x,omitempty"`
	DeltaY      float64      `json:"delta_y,omitempty"`
	DurationMs  int          `json:"duration_ms,omitempty"`
	Steps       []ReplayStep `json:"steps,omitempty"`
}

// ToolDefinition describes one capability offered to the model. Parameters is
// a JSON Schema fragment; generation of schemas is out of scope here, callers
// supply them ready-made.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// ToolCall is a model-requested invocation of a named capability.
type ToolCall struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

// ModelStep is one decision turn of the model: optional reasoning text,
// optional summary text, zero or more tool calls, and the usage of the call
// that produced it.
type ModelStep struct {
	Reasoning string     `json:"reasoning,omitempty"`
	Message   string     `json:"message,omitempty"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	Usage     TokenUsage `json:"usage"`
}

// Message is one entry of the evolving conversation context.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerationRequest carries the full context for a tool-augmented generation
// call.
type GenerationRequest struct {
	System   string           `json:"system,omitempty"`
	Messages []Message        `json:"messages"`
	Tools    []ToolDefinition `json:"tools,omitempty"`
}

// GenerationResult is the terminal outcome of a tool-augmented generation
// call, after the stop predicate ended the turn loop.
type GenerationResult struct {
	Text  string      `json:"text"`
	Steps []ModelStep `json:"steps"`
	Usage TokenUsage  `json:"usage"`
}
