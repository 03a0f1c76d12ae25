// File: internal/agent/errors.go
package agent

import (
	"errors"
	"fmt"

	"github.com/kfalter89/webpilot/api/schemas"
)

// ErrMissingModelClient is returned when a run is started without a usable
// model client. This is a preparation failure and the only class of error
// Execute and Stream return directly; everything raised inside the step loop
// is converted to a failed AgentResult instead.
var ErrMissingModelClient = errors.New("agent: no model client configured")

// ActionExecutionError reports an unrecognized or failing action. It wraps
// the underlying page failure when one exists.
type ActionExecutionError struct {
	Type schemas.ActionType
	Err  error
}

func (e *ActionExecutionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("agent: unrecognized action type %q", e.Type)
	}
	return fmt.Sprintf("agent: action %q failed: %v", e.Type, e.Err)
}

func (e *ActionExecutionError) Unwrap() error { return e.Err }
