// File: internal/llmclient/gemini.go

// Package llmclient holds the language-model backends. Each provider gets one
// client implementing schemas.ToolModelClient; the orchestrator never sees
// provider wire formats.
package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/kfalter89/webpilot/api/schemas"
	"github.com/kfalter89/webpilot/internal/config"
)

// maxModelTurns caps the provider conversation independently of the agent
// step budget, as a guard against a model that never stops calling tools.
const maxModelTurns = 64

// GoogleClient implements schemas.ToolModelClient against the Gemini
// generateContent API with function calling.
type GoogleClient struct {
	apiKey     string
	endpoint   string
	model      string
	httpClient *http.Client
	logger     *zap.Logger

	// backoffFactory is swapped in tests to avoid real retry delays.
	backoffFactory func() backoff.BackOff
}

var _ schemas.ToolModelClient = (*GoogleClient)(nil)

// -- Gemini API request/response structures (internal to this file) --

type geminiFunctionCall struct {
	Name string                 `json:"name"`
	Args map[string]interface{} `json:"args,omitempty"`
}

type geminiFunctionResponse struct {
	Name     string                 `json:"name"`
	Response map[string]interface{} `json:"response"`
}

type geminiPart struct {
	Text             string                  `json:"text,omitempty"`
	Thought          bool                    `json:"thought,omitempty"`
	FunctionCall     *geminiFunctionCall     `json:"functionCall,omitempty"`
	FunctionResponse *geminiFunctionResponse `json:"functionResponse,omitempty"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
	Role  string       `json:"role,omitempty"`
}

type geminiSystemInstruction struct {
	Parts []geminiPart `json:"parts"`
}

type geminiFunctionDeclaration struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

type geminiTool struct {
	FunctionDeclarations []geminiFunctionDeclaration `json:"functionDeclarations"`
}

type geminiRequestPayload struct {
	Contents          []geminiContent          `json:"contents"`
	SystemInstruction *geminiSystemInstruction `json:"system_instruction,omitempty"`
	Tools             []geminiTool             `json:"tools,omitempty"`
}

type geminiResponsePayload struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount        int64 `json:"promptTokenCount"`
		CandidatesTokenCount    int64 `json:"candidatesTokenCount"`
		ThoughtsTokenCount      int64 `json:"thoughtsTokenCount"`
		CachedContentTokenCount int64 `json:"cachedContentTokenCount"`
	} `json:"usageMetadata"`
}

// NewGoogleClient initializes the client from the agent configuration.
func NewGoogleClient(cfg config.AgentConfig, logger *zap.Logger) (*GoogleClient, error) {
	if cfg.ModelAPIKey == "" {
		return nil, fmt.Errorf("Gemini API key is required")
	}
	model := cfg.ModelName
	if model == "" {
		return nil, fmt.Errorf("model name is required")
	}

	return &GoogleClient{
		apiKey:   cfg.ModelAPIKey,
		model:    model,
		endpoint: fmt.Sprintf("https://generativelanguage.googleapis.com/v1beta/models/%s:generateContent", model),
		httpClient: &http.Client{
			Timeout: cfg.APITimeout,
		},
		logger: logger.Named("llm_client.gemini"),
		backoffFactory: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.MaxElapsedTime = 2 * time.Minute
			b.MaxInterval = 30 * time.Second
			return b
		},
	}, nil
}

// ModelName returns the configured provider model identifier.
func (c *GoogleClient) ModelName() string { return c.model }

// GenerateWithTools runs the multi-turn tool conversation. After each model
// turn the decoded step goes to onStep; tool calls are answered with an "ok"
// function response and the conversation continues until the model stops
// calling tools, the stop predicate fires, or the turn cap is hit.
func (c *GoogleClient) GenerateWithTools(ctx context.Context, req schemas.GenerationRequest, onStep schemas.StepFunc, stop schemas.StopFunc) (*schemas.GenerationResult, error) {
	contents := make([]geminiContent, 0, len(req.Messages)+8)
	for _, msg := range req.Messages {
		contents = append(contents, geminiContent{
			Role:  geminiRole(msg.Role),
			Parts: []geminiPart{{Text: msg.Content}},
		})
	}
	tools := buildToolPayload(req.Tools)

	result := &schemas.GenerationResult{}
	steps := make([]schemas.ModelStep, 0, 8)

	for turn := 0; turn < maxModelTurns; turn++ {
		payload := geminiRequestPayload{
			Contents: contents,
			Tools:    tools,
		}
		if req.System != "" {
			payload.SystemInstruction = &geminiSystemInstruction{
				Parts: []geminiPart{{Text: req.System}},
			}
		}

		modelContent, step, err := c.generateTurn(ctx, payload)
		if err != nil {
			return nil, err
		}

		steps = append(steps, step)
		accumulateUsage(&result.Usage, step.Usage)
		if step.Message != "" {
			result.Text = step.Message
		}

		if onStep != nil {
			if err := onStep(ctx, step); err != nil {
				return nil, err
			}
		}
		if stop != nil && stop(steps) {
			break
		}
		if len(step.ToolCalls) == 0 {
			break
		}

		// Feed the model's own turn back, then acknowledge every call so the
		// next turn sees its tool results.
		contents = append(contents, modelContent)
		responses := make([]geminiPart, 0, len(step.ToolCalls))
		for _, call := range step.ToolCalls {
			responses = append(responses, geminiPart{
				FunctionResponse: &geminiFunctionResponse{
					Name:     call.Name,
					Response: map[string]interface{}{"result": "ok"},
				},
			})
		}
		contents = append(contents, geminiContent{Role: "user", Parts: responses})
	}

	result.Steps = steps
	return result, nil
}

// generateTurn performs one API round trip with retries and decodes the model
// content into a step.
func (c *GoogleClient) generateTurn(ctx context.Context, payload geminiRequestPayload) (geminiContent, schemas.ModelStep, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return geminiContent{}, schemas.ModelStep{}, fmt.Errorf("failed to marshal request payload: %w", err)
	}

	var (
		modelContent geminiContent
		step         schemas.ModelStep
	)

	operation := func() error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewBuffer(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create HTTP request: %w", err))
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("x-goog-api-key", c.apiKey)

		startTime := time.Now()
		resp, err := c.httpClient.Do(httpReq)
		duration := time.Since(startTime)

		if err != nil {
			c.logger.Warn("Network error during model request, retrying...", zap.Error(err))
			return fmt.Errorf("failed to execute HTTP request: %w", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response body: %w", err)
		}

		if resp.StatusCode != http.StatusOK {
			return c.handleAPIError(resp.StatusCode, respBody)
		}

		var responsePayload geminiResponsePayload
		if err := json.Unmarshal(respBody, &responsePayload); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to decode response payload: %w", err))
		}
		if len(responsePayload.Candidates) == 0 {
			return backoff.Permanent(fmt.Errorf("gemini API returned no candidates"))
		}

		candidate := responsePayload.Candidates[0]
		if len(candidate.Content.Parts) == 0 {
			if candidate.FinishReason == "SAFETY" || candidate.FinishReason == "BLOCKLIST" {
				return backoff.Permanent(fmt.Errorf("gemini API blocked the request (Reason: %s)", candidate.FinishReason))
			}
			return fmt.Errorf("gemini API returned empty content parts (Reason: %s)", candidate.FinishReason)
		}

		modelContent = candidate.Content
		modelContent.Role = "model"
		step = decodeStep(candidate.Content, responsePayload, duration)

		c.logger.Debug("Model turn complete",
			zap.Duration("duration", duration),
			zap.Int64("prompt_tokens", step.Usage.PromptTokens),
			zap.Int64("completion_tokens", step.Usage.CompletionTokens),
			zap.Int("tool_calls", len(step.ToolCalls)),
		)
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(c.backoffFactory(), ctx)); err != nil {
		return geminiContent{}, schemas.ModelStep{}, err
	}
	return modelContent, step, nil
}

// decodeStep splits a model turn into reasoning, visible text and tool calls.
func decodeStep(content geminiContent, payload geminiResponsePayload, duration time.Duration) schemas.ModelStep {
	step := schemas.ModelStep{
		Usage: schemas.TokenUsage{
			PromptTokens:      payload.UsageMetadata.PromptTokenCount,
			CompletionTokens:  payload.UsageMetadata.CandidatesTokenCount,
			ReasoningTokens:   payload.UsageMetadata.ThoughtsTokenCount,
			CachedInputTokens: payload.UsageMetadata.CachedContentTokenCount,
			InferenceTimeMs:   duration.Milliseconds(),
		},
	}
	for _, part := range content.Parts {
		switch {
		case part.FunctionCall != nil:
			step.ToolCalls = append(step.ToolCalls, schemas.ToolCall{
				Name:      part.FunctionCall.Name,
				Arguments: part.FunctionCall.Args,
			})
		case part.Thought:
			if step.Reasoning != "" {
				step.Reasoning += "\n"
			}
			step.Reasoning += part.Text
		case part.Text != "":
			if step.Message != "" {
				step.Message += "\n"
			}
			step.Message += part.Text
		}
	}
	return step
}

func (c *GoogleClient) handleAPIError(statusCode int, body []byte) error {
	c.logger.Error("Gemini API returned error status", zap.Int("status", statusCode), zap.String("response", string(body)))
	err := fmt.Errorf("gemini API error: status %d, body: %s", statusCode, string(body))

	switch statusCode {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable, http.StatusInternalServerError:
		return err // Transient errors, retry.
	default:
		return backoff.Permanent(err) // Permanent errors.
	}
}

func buildToolPayload(defs []schemas.ToolDefinition) []geminiTool {
	if len(defs) == 0 {
		return nil
	}
	decls := make([]geminiFunctionDeclaration, 0, len(defs))
	for _, def := range defs {
		decls = append(decls, geminiFunctionDeclaration{
			Name:        def.Name,
			Description: def.Description,
			Parameters:  def.Parameters,
		})
	}
	return []geminiTool{{FunctionDeclarations: decls}}
}

func geminiRole(role string) string {
	if role == "assistant" || role == "model" {
		return "model"
	}
	return "user"
}

func accumulateUsage(total *schemas.TokenUsage, turn schemas.TokenUsage) {
	total.PromptTokens += turn.PromptTokens
	total.CompletionTokens += turn.CompletionTokens
	total.ReasoningTokens += turn.ReasoningTokens
	total.CachedInputTokens += turn.CachedInputTokens
	total.InferenceTimeMs += turn.InferenceTimeMs
}
