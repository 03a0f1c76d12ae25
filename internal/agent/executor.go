// File: internal/agent/executor.go
package agent

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"

	"github.com/kfalter89/webpilot/api/schemas"
)

// Pacing defaults. The settle delay lets page rendering catch up before an
// action fires; the action delay spaces actions out before the next
// screenshot capture.
const (
	defaultSettleDelay   = 300 * time.Millisecond
	defaultActionDelay   = time.Second
	defaultWaitMs        = 1000
	typePreviewRuneLimit = 27
)

// Drag interpolation bounds.
const (
	minDragSteps = 5
	maxDragSteps = 20
)

// ExecutorConfig tunes the computer-use executor.
type ExecutorConfig struct {
	// SettleDelay runs before each action. Zero means the default 300ms.
	SettleDelay time.Duration
	// ActionDelay runs after each action, before the screenshot capture.
	// Zero means the default 1s.
	ActionDelay time.Duration
	// DefaultWaitMs is the wait action's duration when none is given.
	DefaultWaitMs int
	// Recording enables replay-step emission. Requires a recorder.
	Recording bool
	// DrawCursor enables the cosmetic cursor overlay before pointer actions.
	DrawCursor bool
}

// actionHandler executes one action kind against the page.
type actionHandler func(ctx context.Context, action schemas.AgentAction) error

// ComputerUseExecutor maps the fixed computer-use action vocabulary onto page
// primitives and, when recording is active, emits one ReplayStep per
// recordable action. Cosmetic side steps (cursor overlay, post-action
// screenshot) never fail the action.
type ComputerUseExecutor struct {
	page     schemas.Page
	recorder schemas.ReplayRecorder
	logger   *zap.Logger
	cfg      ExecutorConfig
	handlers map[schemas.ActionType]actionHandler
}

// NewComputerUseExecutor wires an executor to a page. The recorder may be nil
// when recording is off.
func NewComputerUseExecutor(page schemas.Page, recorder schemas.ReplayRecorder, logger *zap.Logger, cfg ExecutorConfig) *ComputerUseExecutor {
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = defaultSettleDelay
	}
	if cfg.ActionDelay <= 0 {
		cfg.ActionDelay = defaultActionDelay
	}
	if cfg.DefaultWaitMs <= 0 {
		cfg.DefaultWaitMs = defaultWaitMs
	}

	e := &ComputerUseExecutor{
		page:     page,
		recorder: recorder,
		logger:   logger.Named("executor"),
		cfg:      cfg,
	}
	e.handlers = map[schemas.ActionType]actionHandler{
		schemas.ActionClick:       e.clickHandler(1),
		schemas.ActionDoubleClick: e.clickHandler(2),
		schemas.ActionTripleClick: e.clickHandler(3),
		schemas.ActionTypeText:    e.handleType,
		schemas.ActionKeyPress:    e.handleKeyPress,
		schemas.ActionScroll:      e.handleScroll,
		schemas.ActionDrag:        e.handleDrag,
		schemas.ActionWait:        e.handleWait,
		schemas.ActionGoto:        e.handleGoto,
		schemas.ActionBack:        e.handleBack,
		schemas.ActionForward:     e.handleForward,
		schemas.ActionMove:        e.handleNoop,
		schemas.ActionScreenshot:  e.handleNoop,
		schemas.ActionOpenBrowser: e.handleNoop,
		schemas.ActionCustomTool:  e.handleNoop,
	}
	return e
}

// Execute runs one action. It returns the post-action screenshot (nil when
// capture failed, which is logged, never raised) alongside the action's
// error, so the caller gets a capture even for failed actions.
func (e *ComputerUseExecutor) Execute(ctx context.Context, action schemas.AgentAction) ([]byte, error) {
	handler, ok := e.handlers[action.Type]
	if !ok {
		e.logger.Warn("Unknown action type", zap.String("type", string(action.Type)))
		return nil, &ActionExecutionError{Type: action.Type}
	}

	e.sleep(ctx, e.cfg.SettleDelay)

	if e.cfg.DrawCursor && action.X != nil && action.Y != nil {
		if err := e.page.DrawCursor(ctx, *action.X, *action.Y); err != nil {
			e.logger.Debug("Cursor overlay injection failed", zap.Error(err))
		}
	}

	var execErr error
	if err := handler(ctx, action); err != nil {
		execErr = &ActionExecutionError{Type: action.Type, Err: err}
		e.logger.Warn("Action execution failed",
			zap.String("type", string(action.Type)),
			zap.Error(err))
	}

	e.sleep(ctx, e.cfg.ActionDelay)

	shot, err := e.page.Screenshot(ctx)
	if err != nil {
		e.logger.Warn("Post-action screenshot capture failed", zap.Error(err))
		shot = nil
	}
	return shot, execErr
}

// -- handlers --

func (e *ComputerUseExecutor) clickHandler(clickCount int) actionHandler {
	return func(ctx context.Context, action schemas.AgentAction) error {
		if action.X == nil || action.Y == nil {
			return fmt.Errorf("%s requires x and y coordinates", action.Type)
		}
		x, y := *action.X, *action.Y

		button := action.Button
		if button == "" {
			button = schemas.ButtonLeft
		}

		if err := e.page.Click(ctx, x, y, button, clickCount); err != nil {
			return err
		}

		if e.recording() {
			if selector, ok := e.resolveLocator(ctx, func(ctx context.Context) (string, error) {
				return e.page.ElementXPathAt(ctx, x, y)
			}); ok {
				e.record(ctx, schemas.ReplayStep{
					Method:      string(action.Type),
					Selector:    selector,
					Description: fmt.Sprintf("%s at (%s, %s)", action.Type, formatCoord(x), formatCoord(y)),
				})
			}
		}
		return nil
	}
}

func (e *ComputerUseExecutor) handleType(ctx context.Context, action schemas.AgentAction) error {
	if err := e.page.TypeText(ctx, action.Text); err != nil {
		return err
	}

	if e.recording() {
		if selector, ok := e.resolveLocator(ctx, e.page.FocusedElementXPath); ok {
			e.record(ctx, schemas.ReplayStep{
				Method:      "type",
				Selector:    selector,
				Argument:    action.Text,
				Description: typePreview(action.Text),
			})
		}
	}
	return nil
}

func (e *ComputerUseExecutor) handleKeyPress(ctx context.Context, action schemas.AgentAction) error {
	if len(action.Keys) == 0 {
		return fmt.Errorf("keypress requires at least one key")
	}

	subSteps := make([]schemas.ReplayStep, 0, len(action.Keys))
	for _, key := range action.Keys {
		mapped := translateKey(key)
		if err := e.page.KeyPress(ctx, mapped); err != nil {
			return err
		}
		subSteps = append(subSteps, schemas.ReplayStep{
			Method:      "keypress",
			Argument:    mapped,
			Description: "press " + displayKey(key, mapped),
		})
	}

	if e.recording() {
		e.record(ctx, schemas.ReplayStep{
			Method: "keypress",
			Steps:  subSteps,
		})
	}
	return nil
}

func (e *ComputerUseExecutor) handleScroll(ctx context.Context, action schemas.AgentAction) error {
	var x, y float64
	if action.X != nil {
		x = *action.X
	}
	if action.Y != nil {
		y = *action.Y
	}

	if err := e.page.Scroll(ctx, x, y, action.DeltaX, action.DeltaY); err != nil {
		return err
	}

	// Scrolls are recorded directly, no locator involved.
	if e.recording() {
		e.record(ctx, schemas.ReplayStep{
			Method:      "scroll",
			DeltaX:      action.DeltaX,
			DeltaY:      action.DeltaY,
			Description: fmt.Sprintf("scroll by (%s, %s)", formatCoord(action.DeltaX), formatCoord(action.DeltaY)),
		})
	}
	return nil
}

func (e *ComputerUseExecutor) handleDrag(ctx context.Context, action schemas.AgentAction) error {
	if len(action.Path) < 2 {
		return fmt.Errorf("drag requires a path with at least two points")
	}

	steps := clampInt(len(action.Path), minDragSteps, maxDragSteps)
	if err := e.page.Drag(ctx, action.Path, steps); err != nil {
		return err
	}

	if e.recording() {
		start := action.Path[0]
		end := action.Path[len(action.Path)-1]

		startSelector, ok := e.resolveLocator(ctx, func(ctx context.Context) (string, error) {
			return e.page.ElementXPathAt(ctx, start.X, start.Y)
		})
		if !ok {
			return nil
		}
		endSelector, _ := e.resolveLocator(ctx, func(ctx context.Context) (string, error) {
			return e.page.ElementXPathAt(ctx, end.X, end.Y)
		})

		e.record(ctx, schemas.ReplayStep{
			Method:   "drag",
			Selector: startSelector,
			Argument: endSelector,
			Description: fmt.Sprintf("drag from (%s, %s) to (%s, %s)",
				formatCoord(start.X), formatCoord(start.Y), formatCoord(end.X), formatCoord(end.Y)),
		})
	}
	return nil
}

func (e *ComputerUseExecutor) handleWait(ctx context.Context, action schemas.AgentAction) error {
	durationMs := action.DurationMs
	if durationMs == 0 {
		durationMs = e.cfg.DefaultWaitMs
	}
	if durationMs < 0 {
		return fmt.Errorf("wait duration must not be negative (got %d)", durationMs)
	}

	e.sleep(ctx, time.Duration(durationMs)*time.Millisecond)

	if e.recording() && durationMs > 0 {
		e.record(ctx, schemas.ReplayStep{
			Method:      "wait",
			DurationMs:  durationMs,
			Description: fmt.Sprintf("wait %dms", durationMs),
		})
	}
	return nil
}

func (e *ComputerUseExecutor) handleGoto(ctx context.Context, action schemas.AgentAction) error {
	if action.URL == "" {
		return fmt.Errorf("goto requires a url")
	}
	if err := e.page.Navigate(ctx, action.URL); err != nil {
		return err
	}
	if e.recording() {
		e.record(ctx, schemas.ReplayStep{
			Method:      "goto",
			URL:         action.URL,
			Description: "navigate to " + action.URL,
		})
	}
	return nil
}

func (e *ComputerUseExecutor) handleBack(ctx context.Context, action schemas.AgentAction) error {
	if err := e.page.NavigateBack(ctx); err != nil {
		return err
	}
	if e.recording() {
		e.record(ctx, schemas.ReplayStep{Method: "back", Description: "navigate back"})
	}
	return nil
}

func (e *ComputerUseExecutor) handleForward(ctx context.Context, action schemas.AgentAction) error {
	if err := e.page.NavigateForward(ctx); err != nil {
		return err
	}
	if e.recording() {
		e.record(ctx, schemas.ReplayStep{Method: "forward", Description: "navigate forward"})
	}
	return nil
}

// handleNoop covers actions the surrounding loop already satisfied (move,
// screenshot, open_web_browser, custom_tool). Nothing is recorded for them.
func (e *ComputerUseExecutor) handleNoop(ctx context.Context, action schemas.AgentAction) error {
	return nil
}

// -- recording helpers --

func (e *ComputerUseExecutor) recording() bool {
	return e.cfg.Recording && e.recorder != nil
}

// record hands a step to the replay recorder. Recorder failures are logged,
// never raised; recording must not fail the action.
func (e *ComputerUseExecutor) record(ctx context.Context, step schemas.ReplayStep) {
	if err := e.recorder.Record(ctx, step); err != nil {
		e.logger.Warn("Replay step recording failed",
			zap.String("method", step.Method),
			zap.Error(err))
	}
}

// resolveLocator fetches and normalizes a locator. A fetch failure or an
// empty locator means "no locator available": the caller skips recording for
// that action instead of failing it.
func (e *ComputerUseExecutor) resolveLocator(ctx context.Context, fetch func(context.Context) (string, error)) (string, bool) {
	raw, err := fetch(ctx)
	if err != nil {
		e.logger.Debug("Locator resolution failed", zap.Error(err))
		return "", false
	}
	normalized := NormalizeLocator(raw)
	if normalized == "" {
		return "", false
	}
	return normalized, true
}

// NormalizeLocator canonicalizes a driver-reported locator to the "xpath="
// prefixed form. An empty input stays empty, meaning no locator is available.
func NormalizeLocator(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if strings.HasPrefix(raw, "xpath=") {
		return raw
	}
	return "xpath=" + raw
}

// -- misc helpers --

func (e *ComputerUseExecutor) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// typePreview truncates typed text for the replay description.
func typePreview(text string) string {
	runes := []rune(text)
	if len(runes) <= typePreviewRuneLimit {
		return text
	}
	return string(runes[:typePreviewRuneLimit]) + "..."
}

// displayKey picks the readable form of a pressed key for descriptions: the
// mapped identifier when it is printable, the model's original name when the
// mapping produced a control rune.
func displayKey(original, mapped string) string {
	for _, r := range mapped {
		if r < 0x20 || r == 0x7f || !unicode.IsPrint(r) {
			return original
		}
	}
	return mapped
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
