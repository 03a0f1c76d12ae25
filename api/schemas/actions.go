// File: api/schemas/actions.go
package schemas

import "time"

// ActionType enumerates the computer-use action vocabulary the agent can
// request. The set is closed: executors reject anything outside it rather
// than guessing.
type ActionType string

const (
	// -- Pointer actions --
	ActionClick       ActionType = "click"
	ActionDoubleClick ActionType = "double_click"
	ActionTripleClick ActionType = "triple_click"
	ActionMove        ActionType = "move"
	ActionDrag        ActionType = "drag"
	ActionScroll      ActionType = "scroll"

	// -- Keyboard actions --
	ActionTypeText ActionType = "type"
	ActionKeyPress ActionType = "keypress"

	// -- Navigation actions --
	ActionGoto    ActionType = "goto"
	ActionBack    ActionType = "back"
	ActionForward ActionType = "forward"

	// -- Timing and capture --
	ActionWait       ActionType = "wait"
	ActionScreenshot ActionType = "screenshot"

	// -- Handled by the surrounding loop, no page effect --
	ActionOpenBrowser ActionType = "open_web_browser"
	ActionCustomTool  ActionType = "custom_tool"
)

// MouseButton identifies which pointer button an action uses.
type MouseButton string

const (
	ButtonLeft   MouseButton = "left"
	ButtonRight  MouseButton = "right"
	ButtonMiddle MouseButton = "middle"
)

// Point is a coordinate in CSS pixels relative to the viewport.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// AgentAction is one executed browser action. Instances are appended exactly
// once to the run's action log and are immutable after that.
type AgentAction struct {
	Type ActionType `json:"type"`

	// Pointer payload.
	X      *float64    `json:"x,omitempty"`
	Y      *float64    `json:"y,omitempty"`
	Button MouseButton `json:"button,omitempty"`
	Path   []Point     `json:"path,omitempty"`
	DeltaX float64     `json:"delta_x,omitempty"`
	DeltaY float64     `json:"delta_y,omitempty"`

	// Keyboard payload.
	Text string   `json:"text,omitempty"`
	Keys []string `json:"keys,omitempty"`

	// Navigation / timing payload.
	URL        string `json:"url,omitempty"`
	DurationMs int    `json:"duration_ms,omitempty"`

	// Name of the invoked tool when Type is ActionCustomTool.
	ToolName string `json:"tool_name,omitempty"`

	// PageURL is the page the action was issued against, resolved before the
	// step's tool calls ran.
	PageURL   string    `json:"page_url,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
