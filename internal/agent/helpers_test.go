package agent

import (
	"context"
	"sync"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/kfalter89/webpilot/api/schemas"
)

func setupTestLogger(t *testing.T) *zap.Logger {
	t.Helper()
	return zaptest.NewLogger(t)
}

// fakePage is an in-memory schemas.Page that records every call it receives.
type fakePage struct {
	mu    sync.Mutex
	calls []string

	url          string
	urlErr       error
	focusedXPath string
	xpathAt      string
	xpathErr     error
	screenshot   []byte
	shotErr      error

	clickErr  error
	dragSteps int
}

var _ schemas.Page = (*fakePage)(nil)

func (p *fakePage) logCall(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, name)
}

func (p *fakePage) callNames() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.calls))
	copy(out, p.calls)
	return out
}

func (p *fakePage) Click(ctx context.Context, x, y float64, button schemas.MouseButton, clickCount int) error {
	p.logCall("click")
	return p.clickErr
}

func (p *fakePage) TypeText(ctx context.Context, text string) error {
	p.logCall("type")
	return nil
}

func (p *fakePage) KeyPress(ctx context.Context, key string) error {
	p.logCall("keypress:" + key)
	return nil
}

func (p *fakePage) Scroll(ctx context.Context, x, y, deltaX, deltaY float64) error {
	p.logCall("scroll")
	return nil
}

func (p *fakePage) Drag(ctx context.Context, path []schemas.Point, steps int) error {
	p.logCall("drag")
	p.mu.Lock()
	p.dragSteps = steps
	p.mu.Unlock()
	return nil
}

func (p *fakePage) Navigate(ctx context.Context, url string) error {
	p.logCall("navigate")
	p.mu.Lock()
	p.url = url
	p.mu.Unlock()
	return nil
}

func (p *fakePage) NavigateBack(ctx context.Context) error {
	p.logCall("back")
	return nil
}

func (p *fakePage) NavigateForward(ctx context.Context) error {
	p.logCall("forward")
	return nil
}

func (p *fakePage) Screenshot(ctx context.Context) ([]byte, error) {
	p.logCall("screenshot")
	return p.screenshot, p.shotErr
}

func (p *fakePage) URL(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url, p.urlErr
}

func (p *fakePage) DrawCursor(ctx context.Context, x, y float64) error {
	p.logCall("cursor")
	return nil
}

func (p *fakePage) FocusedElementXPath(ctx context.Context) (string, error) {
	return p.focusedXPath, p.xpathErr
}

func (p *fakePage) ElementXPathAt(ctx context.Context, x, y float64) (string, error) {
	return p.xpathAt, p.xpathErr
}

// memoryRecorder collects replay steps for assertions.
type memoryRecorder struct {
	mu    sync.Mutex
	steps []schemas.ReplayStep
	err   error
}

var _ schemas.ReplayRecorder = (*memoryRecorder)(nil)

func (r *memoryRecorder) Record(ctx context.Context, step schemas.ReplayStep) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.steps = append(r.steps, step)
	return nil
}

func (r *memoryRecorder) recorded() []schemas.ReplayStep {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]schemas.ReplayStep, len(r.steps))
	copy(out, r.steps)
	return out
}

// scriptedModelClient drives the orchestrator through a deterministic
// sequence of model steps. stepFn produces the decision for each turn; the
// loop mirrors a real provider: step callback first, stop predicate second,
// stop also when no tools were called.
type scriptedModelClient struct {
	stepFn func(turn int) schemas.ModelStep
	err    error
	text   string
}

var _ schemas.ToolModelClient = (*scriptedModelClient)(nil)

func (c *scriptedModelClient) GenerateWithTools(ctx context.Context, req schemas.GenerationRequest, onStep schemas.StepFunc, stop schemas.StopFunc) (*schemas.GenerationResult, error) {
	if c.err != nil {
		return nil, c.err
	}

	var steps []schemas.ModelStep
	for turn := 0; ; turn++ {
		step := c.stepFn(turn)
		steps = append(steps, step)

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
	}
	return &schemas.GenerationResult{Text: c.text, Steps: steps}, nil
}

func (c *scriptedModelClient) ModelName() string { return "scripted-test-model" }

// newTestExecutor builds an executor with pacing collapsed so tests run fast.
func newTestExecutor(t *testing.T, page schemas.Page, recorder schemas.ReplayRecorder, recording bool) *ComputerUseExecutor {
	t.Helper()
	return NewComputerUseExecutor(page, recorder, setupTestLogger(t), ExecutorConfig{
		SettleDelay:   1,
		ActionDelay:   1,
		DefaultWaitMs: 1,
		Recording:     recording,
		DrawCursor:    false,
	})
}

func floatPtr(v float64) *float64 { return &v }
