// File: internal/browser/script.go
package browser

import (
	"context"
	"fmt"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// cursorOverlayJS injects (or moves) a cosmetic cursor dot. Purely visual,
// survives across calls but not across navigations.
const cursorOverlayJS = `(function(x, y) {
	var id = '__wp_cursor_overlay';
	var dot = document.getElementById(id);
	if (!dot) {
		dot = document.createElement('div');
		dot.id = id;
		dot.style.cssText = 'position:fixed;width:14px;height:14px;' +
			'border-radius:50%%;background:rgba(220,40,40,0.75);' +
			'border:2px solid white;pointer-events:none;z-index:2147483647;' +
			'transform:translate(-50%%,-50%%);transition:left 80ms,top 80ms;';
		document.documentElement.appendChild(dot);
	}
	dot.style.left = x + 'px';
	dot.style.top = y + 'px';
	return true;
})(%f, %f)`

// xpathOfJS builds an absolute XPath for a DOM element, root to leaf, with
// positional predicates among same-tag siblings.
const xpathOfJS = `function __wpXPathOf(el) {
	if (!el || el.nodeType !== 1) return '';
	if (el === document.documentElement) return '/html';
	var segs = [];
	for (; el && el.nodeType === 1; el = el.parentNode) {
		var idx = 1;
		for (var sib = el.previousSibling; sib; sib = sib.previousSibling) {
			if (sib.nodeType === 1 && sib.nodeName === el.nodeName) idx++;
		}
		segs.unshift(el.nodeName.toLowerCase() + '[' + idx + ']');
	}
	return '/' + segs.join('/');
}`

const focusedXPathJS = xpathOfJS + `
(function() {
	var el = document.activeElement;
	if (!el || el === document.body || el === document.documentElement) return '';
	return __wpXPathOf(el);
})()`

const elementAtXPathJS = xpathOfJS + `
(function(x, y) {
	var el = document.elementFromPoint(x, y);
	if (!el) return '';
	return __wpXPathOf(el);
})(%f, %f)`

// DrawCursor paints the cursor overlay at the given viewport coordinates.
// Failures are reported but callers treat the overlay as cosmetic.
func (d *Driver) DrawCursor(ctx context.Context, x, y float64) error {
	var ok bool
	err := d.do(ctx, chromedp.Evaluate(fmt.Sprintf(cursorOverlayJS, x, y), &ok))
	if err != nil {
		d.logger.Debug("Cursor overlay injection failed", zap.Error(err))
		return err
	}
	return nil
}

// FocusedElementXPath reports an absolute XPath for the element that holds
// focus, or empty when focus sits on the document itself.
func (d *Driver) FocusedElementXPath(ctx context.Context) (string, error) {
	var xpath string
	if err := d.do(ctx, chromedp.Evaluate(focusedXPathJS, &xpath)); err != nil {
		return "", err
	}
	return xpath, nil
}

// ElementXPathAt reports an absolute XPath for the topmost element at the
// given viewport coordinates, or empty when the point hits nothing.
func (d *Driver) ElementXPathAt(ctx context.Context, x, y float64) (string, error) {
	var xpath string
	if err := d.do(ctx, chromedp.Evaluate(fmt.Sprintf(elementAtXPathJS, x, y), &xpath)); err != nil {
		return "", err
	}
	return xpath, nil
}
