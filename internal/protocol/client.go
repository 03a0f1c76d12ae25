// File: internal/protocol/client.go

// Package protocol implements the client side of the hosted session wire
// protocol: session creation and teardown, authenticated operation dispatch
// with incremental stream decoding, and replay metrics retrieval.
//
// Protocol-level failures (UnauthorizedError, HTTPError, APIError,
// ResponseBodyError, ResponseParseError, ServerError) always propagate to the
// caller; this layer never swallows them.
package protocol

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/kfalter89/webpilot/api/schemas"
	"github.com/kfalter89/webpilot/internal/config"
	"github.com/kfalter89/webpilot/internal/metrics"
	"github.com/kfalter89/webpilot/internal/network"
)

// Client talks to one hosted session at a time. The underlying HTTP client
// carries a cookie jar created once at construction, preserving session
// affinity across requests. Operations against a single session must be
// serialized by the caller; independent sessions need independent Clients.
type Client struct {
	cfg        config.ClientConfig
	httpClient *network.Client
	logger     *zap.Logger
	sessionID  string
}

// NewClient builds a protocol client from configuration.
func NewClient(cfg config.ClientConfig, logger *zap.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("protocol: base URL is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("protocol: API key is required")
	}

	netCfg := network.NewDefaultClientConfig()
	netCfg.Logger = logger
	if cfg.RequestTimeout > 0 {
		netCfg.RequestTimeout = cfg.RequestTimeout
	}

	return &Client{
		cfg:        cfg,
		httpClient: network.NewClient(netCfg),
		logger:     logger.Named("protocol"),
	}, nil
}

// SessionID returns the identifier of the active session, empty when none.
func (c *Client) SessionID() string { return c.sessionID }

// StartSession creates a hosted session and stores its identifier for all
// subsequent calls.
//
// When the server reports the session as unavailable and the caller both
// supplied an externally-created session id and opted into the fallback, the
// external id is substituted so downstream calls target the caller's session.
func (c *Client) StartSession(ctx context.Context, params schemas.StartSessionParams) (*schemas.Session, error) {
	body, err := jsoniter.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal session params: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/sessions/start", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to build start request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("protocol: session start request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to read session start response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, &UnauthorizedError{Body: string(respBody)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &HTTPError{Status: resp.StatusCode, Body: string(respBody)}
	}

	var envelope schemas.APIResponse
	if err := jsoniter.Unmarshal(respBody, &envelope); err != nil {
		return nil, fmt.Errorf("protocol: failed to decode session start response: %w", err)
	}
	if !envelope.Success {
		return nil, &APIError{Message: firstNonEmpty(envelope.Message, envelope.Error)}
	}

	var session schemas.Session
	if err := jsoniter.Unmarshal(envelope.Data, &session); err != nil {
		return nil, fmt.Errorf("protocol: failed to decode session payload: %w", err)
	}

	if !session.Available && params.UseExternalSessionFallback && params.ExternalSessionID != "" {
		c.logger.Warn("Server session unavailable, falling back to external session",
			zap.String("server_session_id", session.ID),
			zap.String("external_session_id", params.ExternalSessionID))
		session.ID = params.ExternalSessionID
	}

	c.sessionID = session.ID
	c.logger.Info("Session started",
		zap.String("session_id", session.ID),
		zap.Bool("available", session.Available))
	return &session, nil
}

// Dispatch runs one named remote operation against the active session and
// decodes its streamed response into T. The generic parameter is the shape of
// the terminal result payload.
func Dispatch[T any](ctx context.Context, c *Client, op schemas.Operation, args any, query url.Values) (T, error) {
	var zero T

	if c.sessionID == "" {
		return zero, ErrNoSession
	}

	body, err := jsoniter.Marshal(args)
	if err != nil {
		return zero, fmt.Errorf("protocol: failed to marshal %s arguments: %w", op, err)
	}

	endpoint := fmt.Sprintf("%s/sessions/%s/%s", c.cfg.BaseURL, c.sessionID, op)
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return zero, fmt.Errorf("protocol: failed to build %s request: %w", op, err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return zero, fmt.Errorf("protocol: %s request failed: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(resp.Body)
		return zero, &HTTPError{Status: resp.StatusCode, Body: string(raw)}
	}
	if resp.Body == nil || resp.Body == http.NoBody {
		return zero, &ResponseBodyError{}
	}

	result, err := decodeStream(ctx, resp.Body, c.logger)
	if err != nil {
		return zero, err
	}

	var out T
	if len(result) > 0 {
		if err := jsoniter.Unmarshal(result, &out); err != nil {
			return zero, &ResponseParseError{Record: string(result), Err: err}
		}
	}
	return out, nil
}

// EndSession posts the teardown signal. The body is returned raw and never
// parsed; teardown is best-effort from the server's point of view.
func (c *Client) EndSession(ctx context.Context) ([]byte, error) {
	if c.sessionID == "" {
		return nil, ErrNoSession
	}

	endpoint := fmt.Sprintf("%s/sessions/%s/end", c.cfg.BaseURL, c.sessionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to build end request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("protocol: session end request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to read session end response: %w", err)
	}

	c.logger.Info("Session ended", zap.String("session_id", c.sessionID))
	c.sessionID = ""
	return raw, nil
}

// GetReplayMetrics fetches the session's replay summary and folds every
// recorded action's usage into UsageMetrics, keyed by the action's method
// name. Method names are matched case-insensitively; unrecognized methods
// update only the grand totals.
func (c *Client) GetReplayMetrics(ctx context.Context) (*schemas.UsageMetrics, error) {
	if c.sessionID == "" {
		return nil, &APIError{Message: "no active session for replay metrics"}
	}

	endpoint := fmt.Sprintf("%s/sessions/%s/replay", c.cfg.BaseURL, c.sessionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to build replay request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("protocol: replay request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to read replay response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &HTTPError{Status: resp.StatusCode, Body: string(respBody)}
	}

	var envelope schemas.APIResponse
	if err := jsoniter.Unmarshal(respBody, &envelope); err != nil {
		return nil, fmt.Errorf("protocol: failed to decode replay response: %w", err)
	}
	if !envelope.Success {
		return nil, &APIError{Message: firstNonEmpty(envelope.Error, envelope.Message)}
	}

	var summary schemas.ReplaySummary
	if err := jsoniter.Unmarshal(envelope.Data, &summary); err != nil {
		return nil, fmt.Errorf("protocol: failed to decode replay summary: %w", err)
	}

	agg := metrics.NewAggregator()
	for _, page := range summary.Pages {
		for _, action := range page.Actions {
			agg.Add(schemas.UsageCategory(strings.ToLower(action.Method)), schemas.TokenUsage{
				PromptTokens:      action.TokenUsage.InputTokens,
				CompletionTokens:  action.TokenUsage.OutputTokens,
				ReasoningTokens:   action.TokenUsage.ReasoningTokens,
				CachedInputTokens: action.TokenUsage.CachedInputTokens,
				InferenceTimeMs:   action.TokenUsage.TimeMs,
			})
		}
	}

	usage := agg.Snapshot()
	return &usage, nil
}

// setHeaders attaches the credential and identity headers every request
// carries.
func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(headerAPIKey, c.cfg.APIKey)
	req.Header.Set(headerProjectID, c.cfg.ProjectID)
	if c.cfg.ModelAPIKey != "" {
		req.Header.Set(headerModelAPIKey, c.cfg.ModelAPIKey)
	}
	if c.sessionID != "" {
		req.Header.Set(headerSessionID, c.sessionID)
	}
	req.Header.Set(headerStreamResponse, "true")
	req.Header.Set(headerSentAt, time.Now().UTC().Format(time.RFC3339))
	req.Header.Set(headerLanguage, ClientLanguage)
	req.Header.Set(headerClientVersion, ClientVersion)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return "unknown error"
}
