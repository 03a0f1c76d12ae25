// File: internal/agent/stream.go
package agent

import (
	"context"

	"go.uber.org/zap"

	"github.com/kfalter89/webpilot/api/schemas"
)

// StreamHandle exposes a running agent loop as an observable event source
// plus a deferred result. Events arrive in step order; the channel closes
// when the loop finishes. Result blocks until then and returns the same
// AgentResult a blocking Execute would have produced. Events are advisory:
// when the consumer falls behind the buffer, surplus events are dropped so
// the run itself never stalls on an unread channel.
type StreamHandle struct {
	events chan StepEvent
	done   chan struct{}
	result *schemas.AgentResult
	err    error
}

// Events returns the step-event channel. It is closed at end of run.
func (h *StreamHandle) Events() <-chan StepEvent { return h.events }

// Done closes when the loop has finished and Result is ready.
func (h *StreamHandle) Done() <-chan struct{} { return h.done }

// Result blocks until the loop finishes. Loop-internal failures arrive as a
// failed AgentResult; the error is reserved for context cancellation.
func (h *StreamHandle) Result() (*schemas.AgentResult, error) {
	<-h.done
	return h.result, h.err
}

// Stream starts the run and returns immediately. The same lifecycle hooks
// fire as in Execute; only the consumption mode differs. Preparation
// failures (no model client) are returned directly, before anything starts.
func (o *Orchestrator) Stream(ctx context.Context, opts Options) (*StreamHandle, error) {
	rc, err := o.prepare(ctx, opts)
	if err != nil {
		return nil, err
	}

	h := &StreamHandle{
		events: make(chan StepEvent, 8),
		done:   make(chan struct{}),
	}
	rc.emit = func(event StepEvent) {
		select {
		case h.events <- event:
		default:
			// A consumer that stopped draining must not wedge the run; the
			// authoritative outcome still arrives through Result.
			o.logger.Warn("Dropping step event, consumer is not draining the stream",
				zap.Int("step", event.Step))
		}
	}

	go func() {
		result := o.run(ctx, rc)
		h.result = result
		if ctx.Err() != nil {
			h.err = ctx.Err()
		}
		close(h.events)
		close(h.done)
	}()

	return h, nil
}
