// File: internal/browser/driver.go

// Package browser provides the chromedp-backed implementation of the page
// automation capability. It drives one live page through raw CDP input
// events and small JS evaluations; browser-process launch and allocator
// configuration stay with the caller.
package browser

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/kfalter89/webpilot/api/schemas"
)

// Driver implements schemas.Page over a caller-supplied chromedp context.
// One Driver per page; access must be serialized by the caller.
type Driver struct {
	browserCtx context.Context
	logger     *zap.Logger
}

var _ schemas.Page = (*Driver)(nil)

// NewDriver wraps an existing chromedp context. The context must already
// carry an allocated browser target.
func NewDriver(browserCtx context.Context, logger *zap.Logger) *Driver {
	return &Driver{
		browserCtx: browserCtx,
		logger:     logger.Named("browser"),
	}
}

// do runs chromedp actions against the wrapped target, honoring the caller's
// context for cancellation.
func (d *Driver) do(ctx context.Context, actions ...chromedp.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return chromedp.Run(d.browserCtx, actions...)
}

func chromedpButton(button schemas.MouseButton) input.MouseButton {
	switch button {
	case schemas.ButtonRight:
		return input.Right
	case schemas.ButtonMiddle:
		return input.Middle
	default:
		return input.Left
	}
}

// Click dispatches a raw pointer click at viewport coordinates. Multi-clicks
// send one press/release pair per count with an increasing clickCount, the
// way a real browser reports double and triple clicks.
func (d *Driver) Click(ctx context.Context, x, y float64, button schemas.MouseButton, clickCount int) error {
	if clickCount < 1 {
		clickCount = 1
	}
	btn := chromedpButton(button)

	return d.do(ctx, chromedp.ActionFunc(func(cctx context.Context) error {
		if err := input.DispatchMouseEvent(input.MouseMoved, x, y).Do(cctx); err != nil {
			return fmt.Errorf("mouse move failed: %w", err)
		}
		for i := 1; i <= clickCount; i++ {
			press := input.DispatchMouseEvent(input.MousePressed, x, y).
				WithButton(btn).
				WithClickCount(int64(i))
			if err := press.Do(cctx); err != nil {
				return fmt.Errorf("mouse press failed: %w", err)
			}
			release := input.DispatchMouseEvent(input.MouseReleased, x, y).
				WithButton(btn).
				WithClickCount(int64(i))
			if err := release.Do(cctx); err != nil {
				return fmt.Errorf("mouse release failed: %w", err)
			}
		}
		return nil
	}))
}

// TypeText sends literal text to the current focus.
func (d *Driver) TypeText(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}
	return d.do(ctx, chromedp.KeyEvent(text))
}

// KeyPress presses one key. Single runes (including chromedp's kb special
// runes) go through the key-event synthesizer; multi-character DOM key names
// like "Control" are dispatched as raw down/up events.
func (d *Driver) KeyPress(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}
	if utf8.RuneCountInString(key) == 1 {
		return d.do(ctx, chromedp.KeyEvent(key))
	}
	return d.do(ctx, chromedp.ActionFunc(func(cctx context.Context) error {
		if err := input.DispatchKeyEvent(input.KeyDown).WithKey(key).Do(cctx); err != nil {
			return fmt.Errorf("key down failed: %w", err)
		}
		if err := input.DispatchKeyEvent(input.KeyUp).WithKey(key).Do(cctx); err != nil {
			return fmt.Errorf("key up failed: %w", err)
		}
		return nil
	}))
}

// Scroll dispatches a wheel event with the given deltas, anchored at the
// given coordinates.
func (d *Driver) Scroll(ctx context.Context, x, y, deltaX, deltaY float64) error {
	return d.do(ctx, chromedp.ActionFunc(func(cctx context.Context) error {
		return input.DispatchMouseEvent(input.MouseWheel, x, y).
			WithDeltaX(deltaX).
			WithDeltaY(deltaY).
			Do(cctx)
	}))
}

// Drag presses at the first point of the path, moves through interpolated
// positions, and releases at the last point.
func (d *Driver) Drag(ctx context.Context, path []schemas.Point, steps int) error {
	if len(path) < 2 {
		return fmt.Errorf("drag path needs at least two points")
	}
	if steps < 1 {
		steps = 1
	}
	start := path[0]
	end := path[len(path)-1]

	return d.do(ctx, chromedp.ActionFunc(func(cctx context.Context) error {
		press := input.DispatchMouseEvent(input.MousePressed, start.X, start.Y).
			WithButton(input.Left).
			WithClickCount(1)
		if err := press.Do(cctx); err != nil {
			return fmt.Errorf("drag press failed: %w", err)
		}

		for i := 1; i <= steps; i++ {
			t := float64(i) / float64(steps)
			pos := interpolatePath(path, t)
			move := input.DispatchMouseEvent(input.MouseMoved, pos.X, pos.Y).
				WithButton(input.Left)
			if err := move.Do(cctx); err != nil {
				return fmt.Errorf("drag move failed: %w", err)
			}
			if err := chromedp.Sleep(10 * time.Millisecond).Do(cctx); err != nil {
				return err
			}
		}

		release := input.DispatchMouseEvent(input.MouseReleased, end.X, end.Y).
			WithButton(input.Left).
			WithClickCount(1)
		if err := release.Do(cctx); err != nil {
			return fmt.Errorf("drag release failed: %w", err)
		}
		return nil
	}))
}

// interpolatePath maps t in [0,1] onto the polyline defined by path.
func interpolatePath(path []schemas.Point, t float64) schemas.Point {
	if t <= 0 {
		return path[0]
	}
	if t >= 1 {
		return path[len(path)-1]
	}
	segments := len(path) - 1
	scaled := t * float64(segments)
	idx := int(scaled)
	if idx >= segments {
		idx = segments - 1
	}
	frac := scaled - float64(idx)
	a, b := path[idx], path[idx+1]
	return schemas.Point{
		X: a.X + (b.X-a.X)*frac,
		Y: a.Y + (b.Y-a.Y)*frac,
	}
}

func (d *Driver) Navigate(ctx context.Context, url string) error {
	return d.do(ctx, chromedp.Navigate(url))
}

func (d *Driver) NavigateBack(ctx context.Context) error {
	return d.do(ctx, chromedp.NavigateBack())
}

func (d *Driver) NavigateForward(ctx context.Context) error {
	return d.do(ctx, chromedp.NavigateForward())
}

// Screenshot captures the current viewport as PNG bytes.
func (d *Driver) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := d.do(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, err
	}
	return buf, nil
}

// URL reports the page's current location.
func (d *Driver) URL(ctx context.Context) (string, error) {
	var location string
	if err := d.do(ctx, chromedp.Location(&location)); err != nil {
		return "", err
	}
	return location, nil
}
