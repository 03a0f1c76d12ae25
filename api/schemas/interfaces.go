// File: api/schemas/interfaces.go
package schemas

import "context"

// StepFunc is invoked once after every model decision turn, in turn order.
// Returning an error aborts the generation loop and surfaces the error to the
// caller of GenerateWithTools.
type StepFunc func(ctx context.Context, step ModelStep) error

// StopFunc is evaluated once per model turn, after StepFunc. Returning true
// ends the loop; the steps seen so far are passed in execution order.
type StopFunc func(steps []ModelStep) bool

// ToolModelClient is the capability contract for a language-model backend
// that supports tool calling. One implementation exists per provider; the
// orchestrator depends only on this interface. The per-step callback serves
// both the blocking and the streaming consumption modes, so there is a single
// generation entry point.
type ToolModelClient interface {
	GenerateWithTools(ctx context.Context, req GenerationRequest, onStep StepFunc, stop StopFunc) (*GenerationResult, error)

	// ModelName returns the provider model identifier behind this client.
	ModelName() string
}

// Page is the page-automation capability consumed by the action executor.
// Implementations drive a single live page; callers must serialize access,
// no two actions may be in flight against the same page.
type Page interface {
	Click(ctx context.Context, x, y float64, button MouseButton, clickCount int) error
	TypeText(ctx context.Context, text string) error
	KeyPress(ctx context.Context, key string) error
	Scroll(ctx context.Context, x, y, deltaX, deltaY float64) error
	Drag(ctx context.Context, path []Point, steps int) error
	Navigate(ctx context.Context, url string) error
	NavigateBack(ctx context.Context) error
	NavigateForward(ctx context.Context) error
	Screenshot(ctx context.Context) ([]byte, error)
	URL(ctx context.Context) (string, error)

	// DrawCursor paints the cosmetic cursor overlay. Best-effort: executors
	// log and ignore failures.
	DrawCursor(ctx context.Context, x, y float64) error

	// FocusedElementXPath reports a locator for the currently focused element,
	// empty when none is resolvable.
	FocusedElementXPath(ctx context.Context) (string, error)

	// ElementXPathAt reports a locator for the topmost element at the given
	// viewport coordinates, empty when none is resolvable.
	ElementXPathAt(ctx context.Context, x, y float64) (string, error)
}

// ReplayRecorder receives replay steps as they are produced. Implementations
// own persistence; the executor hands steps off and forgets them.
type ReplayRecorder interface {
	Record(ctx context.Context, step ReplayStep) error
}
