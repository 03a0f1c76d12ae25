// File: internal/agent/keymap.go
package agent

import (
	"strings"

	"github.com/chromedp/chromedp/kb"
)

// keyNameMap translates the model's key vocabulary into the driver's key
// identifiers (chromedp's kb runes for special keys, DOM key names for
// modifiers). Lookup is case-insensitive.
var keyNameMap = map[string]string{
	"enter":      kb.Enter,
	"return":     kb.Enter,
	"tab":        kb.Tab,
	"backspace":  kb.Backspace,
	"delete":     kb.Delete,
	"esc":        kb.Escape,
	"escape":     kb.Escape,
	"space":      " ",
	"up":         kb.ArrowUp,
	"arrowup":    kb.ArrowUp,
	"down":       kb.ArrowDown,
	"arrowdown":  kb.ArrowDown,
	"left":       kb.ArrowLeft,
	"arrowleft":  kb.ArrowLeft,
	"right":      kb.ArrowRight,
	"arrowright": kb.ArrowRight,
	"home":       kb.Home,
	"end":        kb.End,
	"pageup":     kb.PageUp,
	"pagedown":   kb.PageDown,
	"ctrl":       "Control",
	"control":    "Control",
	"alt":        "Alt",
	"shift":      "Shift",
	"meta":       "Meta",
	"cmd":        "Meta",
}

// translateKey maps a model-supplied key name to the driver identifier.
// Unmapped single characters pass through unchanged; unmapped multi-character
// names pass through as-is and are left to the driver to interpret.
func translateKey(name string) string {
	if mapped, ok := keyNameMap[strings.ToLower(name)]; ok {
		return mapped
	}
	return name
}
