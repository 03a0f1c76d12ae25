// File: api/schemas/session.go
package schemas

import "encoding/json"

// Operation names accepted by the hosted session endpoint. Kept as a closed
// set so callers cannot dispatch arbitrary paths.
type Operation string

const (
	OperationAct          Operation = "act"
	OperationExtract      Operation = "extract"
	OperationObserve      Operation = "observe"
	OperationNavigate     Operation = "navigate"
	OperationAgentExecute Operation = "agentExecute"
)

// StartSessionParams are the caller-facing parameters for creating a hosted
// session.
type StartSessionParams struct {
	ModelName          string                 `json:"modelName"`
	DOMSettleTimeoutMs int                    `json:"domSettleTimeoutMs,omitempty"`
	Verbose            int                    `json:"verbose,omitempty"`
	SystemPrompt       string                 `json:"systemPrompt,omitempty"`
	SelfHeal           bool                   `json:"selfHeal,omitempty"`
	SessionParams      map[string]interface{} `json:"browserSessionCreateParams,omitempty"`

	// ExternalSessionID is a session the caller created out of band. When the
	// server reports its own session as unavailable and
	// UseExternalSessionFallback is set, the client targets this session for
	// all downstream calls. Compatibility behavior, see Session docs.
	ExternalSessionID          string `json:"browserSessionID,omitempty"`
	UseExternalSessionFallback bool   `json:"-"`
}

// Session is a server-tracked remote automation context. The protocol client
// owns it exclusively from StartSession until EndSession.
type Session struct {
	ID        string `json:"sessionId"`
	Available bool   `json:"available"`
}

// APIResponse is the envelope every non-streamed endpoint answers with.
type APIResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// StreamEnvelope is one decoded unit of a streamed response body.
type StreamEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// SystemEvent is the payload of a "system" stream record.
type SystemEvent struct {
	Status string          `json:"status"`
	Error  string          `json:"error,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
}

// LogEvent is the payload of a "log" stream record.
type LogEvent struct {
	Message  string `json:"message"`
	Level    string `json:"level,omitempty"`
	Category string `json:"category,omitempty"`
}

// ReplaySummary mirrors GET /sessions/{id}/replay: the recorded pages of a
// session and the token usage of every recorded action.
type ReplaySummary struct {
	Pages []ReplayPage `json:"pages"`
}

// ReplayPage is one visited page within a replay summary.
type ReplayPage struct {
	URL     string         `json:"url,omitempty"`
	Actions []ReplayAction `json:"actions"`
}

// ReplayAction is one recorded action with its usage accounting.
type ReplayAction struct {
	Method     string           `json:"method"`
	TokenUsage ReplayTokenUsage `json:"tokenUsage"`
}

// ReplayTokenUsage is the wire shape of a recorded action's usage record.
type ReplayTokenUsage struct {
	InputTokens       int64 `json:"inputTokens"`
	OutputTokens      int64 `json:"outputTokens"`
	ReasoningTokens   int64 `json:"reasoningTokens"`
	CachedInputTokens int64 `json:"cachedInputTokens"`
	TimeMs            int64 `json:"timeMs"`
}
