// File: internal/agent/tools.go
package agent

import (
	"encoding/json"

	"github.com/kfalter89/webpilot/api/schemas"
)

// closeToolName is the designated finish capability. Invoking it completes
// the run; it never maps to a page action.
const closeToolName = "close"

// toolActionTypes is the closed mapping from tool names to action kinds.
// Tool names the model may call map one-to-one onto the computer-use action
// vocabulary; anything outside this table and the caller-declared tool set is
// rejected, not silently ignored.
var toolActionTypes = map[string]schemas.ActionType{
	"click":            schemas.ActionClick,
	"double_click":     schemas.ActionDoubleClick,
	"triple_click":     schemas.ActionTripleClick,
	"move":             schemas.ActionMove,
	"drag":             schemas.ActionDrag,
	"scroll":           schemas.ActionScroll,
	"type":             schemas.ActionTypeText,
	"keypress":         schemas.ActionKeyPress,
	"goto":             schemas.ActionGoto,
	"back":             schemas.ActionBack,
	"forward":          schemas.ActionForward,
	"wait":             schemas.ActionWait,
	"screenshot":       schemas.ActionScreenshot,
	"open_web_browser": schemas.ActionOpenBrowser,
}

// builtinTools declares the computer-use capabilities offered to the model on
// every run, including the finish tool.
func builtinTools() []schemas.ToolDefinition {
	coords := json.RawMessage(`{"type":"object","properties":{"x":{"type":"number"},"y":{"type":"number"}},"required":["x","y"]}`)
	return []schemas.ToolDefinition{
		{Name: "click", Description: "Click at viewport coordinates.", Parameters: coords},
		{Name: "double_click", Description: "Double-click at viewport coordinates.", Parameters: coords},
		{Name: "triple_click", Description: "Triple-click at viewport coordinates.", Parameters: coords},
		{Name: "move", Description: "Move the pointer to viewport coordinates.", Parameters: coords},
		{Name: "type", Description: "Type text at the current focus.",
			Parameters: json.RawMessage(`{"type":"object","properties":{"text":{"type":"string"}},"required":["text"]}`)},
		{Name: "keypress", Description: "Press one or more named keys in order.",
			Parameters: json.RawMessage(`{"type":"object","properties":{"keys":{"type":"array","items":{"type":"string"}}},"required":["keys"]}`)},
		{Name: "scroll", Description: "Scroll the viewport by a delta, optionally anchored at coordinates.",
			Parameters: json.RawMessage(`{"type":"object","properties":{"x":{"type":"number"},"y":{"type":"number"},"delta_x":{"type":"number"},"delta_y":{"type":"number"}}}`)},
		{Name: "drag", Description: "Drag the pointer along a path of coordinates.",
			Parameters: json.RawMessage(`{"type":"object","properties":{"path":{"type":"array","items":{"type":"object","properties":{"x":{"type":"number"},"y":{"type":"number"}}}}},"required":["path"]}`)},
		{Name: "goto", Description: "Navigate to a URL.",
			Parameters: json.RawMessage(`{"type":"object","properties":{"url":{"type":"string"}},"required":["url"]}`)},
		{Name: "back", Description: "Navigate back in history."},
		{Name: "forward", Description: "Navigate forward in history."},
		{Name: "wait", Description: "Pause for a duration in milliseconds.",
			Parameters: json.RawMessage(`{"type":"object","properties":{"duration_ms":{"type":"integer"}}}`)},
		{Name: "screenshot", Description: "Capture the current viewport."},
		{Name: closeToolName, Description: "Finish the task. Set success to true only when the task was genuinely accomplished.",
			Parameters: json.RawMessage(`{"type":"object","properties":{"success":{"type":"boolean"},"message":{"type":"string"}},"required":["success"]}`)},
	}
}

// actionFromToolCall translates one tool call into an AgentAction. The
// boolean reports whether the name belonged to the closed mapping table.
func actionFromToolCall(call schemas.ToolCall) (schemas.AgentAction, bool) {
	actionType, ok := toolActionTypes[call.Name]
	if !ok {
		return schemas.AgentAction{}, false
	}

	action := schemas.AgentAction{Type: actionType}
	args := call.Arguments

	switch actionType {
	case schemas.ActionClick, schemas.ActionDoubleClick, schemas.ActionTripleClick, schemas.ActionMove:
		action.X = floatArg(args, "x")
		action.Y = floatArg(args, "y")
		action.Button = schemas.MouseButton(stringArg(args, "button"))
	case schemas.ActionTypeText:
		action.Text = stringArg(args, "text")
	case schemas.ActionKeyPress:
		action.Keys = stringSliceArg(args, "keys")
	case schemas.ActionScroll:
		action.X = floatArg(args, "x")
		action.Y = floatArg(args, "y")
		action.DeltaX = floatValue(args, "delta_x")
		action.DeltaY = floatValue(args, "delta_y")
	case schemas.ActionDrag:
		action.Path = pointsArg(args, "path")
	case schemas.ActionGoto:
		action.URL = stringArg(args, "url")
	case schemas.ActionWait:
		action.DurationMs = intValue(args, "duration_ms")
	}

	return action, true
}

// customToolAction wraps a caller-declared tool invocation as a custom_tool
// action so it shows up in the run's action log.
func customToolAction(call schemas.ToolCall) schemas.AgentAction {
	return schemas.AgentAction{
		Type:     schemas.ActionCustomTool,
		ToolName: call.Name,
	}
}

// -- argument extraction helpers --
// Tool arguments arrive as map[string]interface{} decoded from model JSON,
// so every number is float64 and shape errors must not panic.

func floatArg(args map[string]interface{}, key string) *float64 {
	if args == nil {
		return nil
	}
	if v, ok := args[key].(float64); ok {
		return &v
	}
	return nil
}

func floatValue(args map[string]interface{}, key string) float64 {
	if v := floatArg(args, key); v != nil {
		return *v
	}
	return 0
}

func intValue(args map[string]interface{}, key string) int {
	if v := floatArg(args, key); v != nil {
		return int(*v)
	}
	return 0
}

func stringArg(args map[string]interface{}, key string) string {
	if args == nil {
		return ""
	}
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

func stringSliceArg(args map[string]interface{}, key string) []string {
	if args == nil {
		return nil
	}
	raw, ok := args[key].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func pointsArg(args map[string]interface{}, key string) []schemas.Point {
	if args == nil {
		return nil
	}
	raw, ok := args[key].([]interface{})
	if !ok {
		return nil
	}
	out := make([]schemas.Point, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		x, okX := m["x"].(float64)
		y, okY := m["y"].(float64)
		if okX && okY {
			out = append(out, schemas.Point{X: x, Y: y})
		}
	}
	return out
}

// boolArg reads a boolean tool argument, defaulting to false.
func boolArg(args map[string]interface{}, key string) bool {
	if args == nil {
		return false
	}
	v, _ := args[key].(bool)
	return v
}
