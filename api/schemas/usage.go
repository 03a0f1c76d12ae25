// File: api/schemas/usage.go
package schemas

// UsageCategory keys token accounting by the operation that triggered the
// inference call.
type UsageCategory string

const (
	CategoryAct     UsageCategory = "act"
	CategoryExtract UsageCategory = "extract"
	CategoryObserve UsageCategory = "observe"
	CategoryAgent   UsageCategory = "agent"
)

// TokenUsage is the raw accounting for a single inference call.
type TokenUsage struct {
	PromptTokens      int64 `json:"prompt_tokens"`
	CompletionTokens  int64 `json:"completion_tokens"`
	ReasoningTokens   int64 `json:"reasoning_tokens"`
	CachedInputTokens int64 `json:"cached_input_tokens"`
	InferenceTimeMs   int64 `json:"inference_time_ms"`
}

// FunctionMetrics is the running sum of TokenUsage records for one category.
type FunctionMetrics struct {
	PromptTokens      int64 `json:"prompt_tokens"`
	CompletionTokens  int64 `json:"completion_tokens"`
	ReasoningTokens   int64 `json:"reasoning_tokens"`
	CachedInputTokens int64 `json:"cached_input_tokens"`
	InferenceTimeMs   int64 `json:"inference_time_ms"`
}

// UsageMetrics is the public accounting shape shared by the local and remote
// paths. Total is always the sum of the four category counters; it is derived
// at snapshot time, never tracked separately.
type UsageMetrics struct {
	Act     FunctionMetrics `json:"act"`
	Extract FunctionMetrics `json:"extract"`
	Observe FunctionMetrics `json:"observe"`
	Agent   FunctionMetrics `json:"agent"`
	Total   FunctionMetrics `json:"total"`
}

// AgentUsage is the condensed usage block attached to an AgentResult.
type AgentUsage struct {
	InputTokens     int64 `json:"input_tokens"`
	OutputTokens    int64 `json:"output_tokens"`
	InferenceTimeMs int64 `json:"inference_time_ms"`
}
