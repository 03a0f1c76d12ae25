package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/kfalter89/webpilot/api/schemas"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestOrchestrator(t *testing.T, client schemas.ToolModelClient, page *fakePage) *Orchestrator {
	t.Helper()
	executor := newTestExecutor(t, page, nil, false)
	return NewOrchestrator(client, page, executor, setupTestLogger(t))
}

func closeCall(success bool, message string) schemas.ToolCall {
	return schemas.ToolCall{
		Name:      "close",
		Arguments: map[string]interface{}{"success": success, "message": message},
	}
}

func clickCall(x, y float64) schemas.ToolCall {
	return schemas.ToolCall{
		Name:      "click",
		Arguments: map[string]interface{}{"x": x, "y": y},
	}
}

// Verifies the missing-model-client guard fires before anything else.
func TestOrchestrator_Execute_MissingModelClient(t *testing.T) {
	orchestrator := newTestOrchestrator(t, nil, &fakePage{url: "https://example.com"})

	result, err := orchestrator.Execute(context.Background(), Options{Instruction: "do things"})

	require.ErrorIs(t, err, ErrMissingModelClient)
	assert.Nil(t, result)
}

// Verifies a run that closes on the first step reports success and a
// non-empty message.
func TestOrchestrator_Execute_CloseOnFirstStep(t *testing.T) {
	client := &scriptedModelClient{
		stepFn: func(turn int) schemas.ModelStep {
			return schemas.ModelStep{
				Reasoning: "the page already shows the answer",
				ToolCalls: []schemas.ToolCall{closeCall(true, "found it")},
			}
		},
	}
	orchestrator := newTestOrchestrator(t, client, &fakePage{url: "https://example.com"})

	result, err := orchestrator.Execute(context.Background(), Options{Instruction: "find the answer"})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.True(t, result.Completed)
	assert.Contains(t, result.Message, "the page already shows the answer")
	assert.Contains(t, result.Message, "found it")
	assert.Empty(t, result.Actions, "close is not a page action")
}

// Verifies an unsuccessful close keeps only the accumulated reasoning as the
// message.
func TestOrchestrator_Execute_UnsuccessfulClose(t *testing.T) {
	client := &scriptedModelClient{
		stepFn: func(turn int) schemas.ModelStep {
			return schemas.ModelStep{
				Reasoning: "the login wall blocks further progress",
				ToolCalls: []schemas.ToolCall{closeCall(false, "gave up")},
			}
		},
	}
	orchestrator := newTestOrchestrator(t, client, &fakePage{url: "https://example.com"})

	result, err := orchestrator.Execute(context.Background(), Options{Instruction: "do the impossible"})
	require.NoError(t, err)

	assert.True(t, result.Completed)
	assert.Equal(t, "the login wall blocks further progress", result.Message)
	assert.NotContains(t, result.Message, "gave up")
}

// Verifies the step budget stops a run that never closes.
func TestOrchestrator_Execute_StepBudgetExhausted(t *testing.T) {
	var turns int
	client := &scriptedModelClient{
		stepFn: func(turn int) schemas.ModelStep {
			turns++
			return schemas.ModelStep{ToolCalls: []schemas.ToolCall{clickCall(5, 5)}}
		},
	}
	orchestrator := newTestOrchestrator(t, client, &fakePage{url: "https://example.com"})

	result, err := orchestrator.Execute(context.Background(), Options{
		Instruction: "click forever",
		MaxSteps:    3,
	})
	require.NoError(t, err)

	assert.Equal(t, 3, turns, "loop must stop exactly at the budget")
	assert.False(t, result.Completed)
	assert.False(t, result.Success)
	assert.Len(t, result.Actions, 3)
	assert.NotEmpty(t, result.Message)
}

// Verifies executed actions carry the page URL in effect before they ran and
// a timestamp from after execution.
func TestOrchestrator_Execute_ActionMetadata(t *testing.T) {
	client := &scriptedModelClient{
		stepFn: func(turn int) schemas.ModelStep {
			if turn == 0 {
				return schemas.ModelStep{ToolCalls: []schemas.ToolCall{clickCall(10, 20)}}
			}
			return schemas.ModelStep{ToolCalls: []schemas.ToolCall{closeCall(true, "done")}}
		},
	}
	before := time.Now().UTC()
	orchestrator := newTestOrchestrator(t, client, &fakePage{url: "https://example.com/start"})

	result, err := orchestrator.Execute(context.Background(), Options{Instruction: "click once"})
	require.NoError(t, err)

	require.Len(t, result.Actions, 1)
	action := result.Actions[0]
	assert.Equal(t, schemas.ActionClick, action.Type)
	assert.Equal(t, "https://example.com/start", action.PageURL)
	assert.False(t, action.Timestamp.Before(before))
}

// Verifies a loop failure is reported as a failed result, never as a raw
// error.
func TestOrchestrator_Execute_LoopFailureBecomesFailedResult(t *testing.T) {
	page := &fakePage{url: "https://example.com", clickErr: errors.New("target closed")}
	client := &scriptedModelClient{
		stepFn: func(turn int) schemas.ModelStep {
			return schemas.ModelStep{ToolCalls: []schemas.ToolCall{clickCall(1, 1)}}
		},
	}
	orchestrator := newTestOrchestrator(t, client, page)

	result, err := orchestrator.Execute(context.Background(), Options{Instruction: "click"})

	require.NoError(t, err, "loop failures must not surface as errors")
	assert.False(t, result.Success)
	assert.Contains(t, result.Message, "target closed")
}

// Verifies a model-client failure also lands in the failed-result path.
func TestOrchestrator_Execute_ModelFailureBecomesFailedResult(t *testing.T) {
	client := &scriptedModelClient{err: errors.New("quota exceeded")}
	orchestrator := newTestOrchestrator(t, client, &fakePage{url: "https://example.com"})

	result, err := orchestrator.Execute(context.Background(), Options{Instruction: "anything"})

	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Message, "quota exceeded")
}

// Verifies unknown tool calls are rejected without aborting the run.
func TestOrchestrator_Execute_UnknownToolRejected(t *testing.T) {
	client := &scriptedModelClient{
		stepFn: func(turn int) schemas.ModelStep {
			if turn == 0 {
				return schemas.ModelStep{ToolCalls: []schemas.ToolCall{{Name: "teleport"}}}
			}
			return schemas.ModelStep{ToolCalls: []schemas.ToolCall{closeCall(true, "done")}}
		},
	}
	orchestrator := newTestOrchestrator(t, client, &fakePage{url: "https://example.com"})

	result, err := orchestrator.Execute(context.Background(), Options{Instruction: "try a bogus tool"})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Empty(t, result.Actions, "rejected calls must not be logged as actions")
}

// Verifies caller-declared tools are accepted and logged as custom actions.
func TestOrchestrator_Execute_CustomToolAccepted(t *testing.T) {
	client := &scriptedModelClient{
		stepFn: func(turn int) schemas.ModelStep {
			if turn == 0 {
				return schemas.ModelStep{ToolCalls: []schemas.ToolCall{{Name: "lookup_order"}}}
			}
			return schemas.ModelStep{ToolCalls: []schemas.ToolCall{closeCall(true, "done")}}
		},
	}
	orchestrator := newTestOrchestrator(t, client, &fakePage{url: "https://example.com"})

	result, err := orchestrator.Execute(context.Background(), Options{
		Instruction: "use the custom tool",
		Tools: []schemas.ToolDefinition{
			{Name: "lookup_order", Description: "Look up an order."},
		},
	})
	require.NoError(t, err)

	require.Len(t, result.Actions, 1)
	assert.Equal(t, schemas.ActionCustomTool, result.Actions[0].Type)
	assert.Equal(t, "lookup_order", result.Actions[0].ToolName)
}

// Verifies panicking hooks are contained and the run result is unaffected.
func TestOrchestrator_Execute_PanickingHooksContained(t *testing.T) {
	client := &scriptedModelClient{
		stepFn: func(turn int) schemas.ModelStep {
			return schemas.ModelStep{ToolCalls: []schemas.ToolCall{closeCall(true, "done")}}
		},
	}
	orchestrator := newTestOrchestrator(t, client, &fakePage{url: "https://example.com"})

	result, err := orchestrator.Execute(context.Background(), Options{
		Instruction: "run with broken hooks",
		Hooks: &Hooks{
			OnStepStart: func(ctx context.Context, info StepInfo) bool { panic("start hook broke") },
			OnStepEnd:   func(ctx context.Context, info StepEndInfo) { panic("end hook broke") },
		},
	})
	require.NoError(t, err)
	assert.True(t, result.Success)
}

// Verifies the step-start hook can stop the run early.
func TestOrchestrator_Execute_HookRequestsStop(t *testing.T) {
	var turns int
	client := &scriptedModelClient{
		stepFn: func(turn int) schemas.ModelStep {
			turns++
			return schemas.ModelStep{ToolCalls: []schemas.ToolCall{clickCall(1, 1)}}
		},
	}
	orchestrator := newTestOrchestrator(t, client, &fakePage{url: "https://example.com"})

	result, err := orchestrator.Execute(context.Background(), Options{
		Instruction: "stop after the second step",
		Hooks: &Hooks{
			OnStepStart: func(ctx context.Context, info StepInfo) bool { return info.Step >= 2 },
		},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, turns)
	assert.False(t, result.Completed)
	assert.Len(t, result.Actions, 1, "the stopped step performs no actions")
}

// Verifies per-step usage and run wall-clock time accumulate into the agent
// bucket.
func TestOrchestrator_Execute_UsageAccumulation(t *testing.T) {
	client := &scriptedModelClient{
		stepFn: func(turn int) schemas.ModelStep {
			step := schemas.ModelStep{
				Usage: schemas.TokenUsage{PromptTokens: 100, CompletionTokens: 50},
			}
			if turn == 0 {
				step.ToolCalls = []schemas.ToolCall{clickCall(1, 1)}
			} else {
				step.ToolCalls = []schemas.ToolCall{closeCall(true, "done")}
			}
			return step
		},
	}
	orchestrator := newTestOrchestrator(t, client, &fakePage{url: "https://example.com"})

	result, err := orchestrator.Execute(context.Background(), Options{Instruction: "two steps"})
	require.NoError(t, err)

	assert.Equal(t, int64(200), result.Usage.InputTokens)
	assert.Equal(t, int64(100), result.Usage.OutputTokens)
	assert.GreaterOrEqual(t, result.Usage.InferenceTimeMs, int64(0))
}

// Verifies the simplified constructor halves the step budget.
func TestNewSimpleOrchestrator_HalvedBudget(t *testing.T) {
	var turns int
	client := &scriptedModelClient{
		stepFn: func(turn int) schemas.ModelStep {
			turns++
			return schemas.ModelStep{ToolCalls: []schemas.ToolCall{clickCall(1, 1)}}
		},
	}
	page := &fakePage{url: "https://example.com"}
	executor := newTestExecutor(t, page, nil, false)
	orchestrator := NewSimpleOrchestrator(client, page, executor, setupTestLogger(t))

	result, err := orchestrator.Execute(context.Background(), Options{Instruction: "loop"})
	require.NoError(t, err)

	assert.Equal(t, DefaultSimpleMaxSteps, turns)
	assert.False(t, result.Completed)
}

// Verifies streaming delivers one event per step and the deferred result
// matches what a blocking run would produce.
func TestOrchestrator_Stream_DeliversEventsAndResult(t *testing.T) {
	client := &scriptedModelClient{
		stepFn: func(turn int) schemas.ModelStep {
			if turn == 0 {
				return schemas.ModelStep{
					Reasoning: "first I click",
					ToolCalls: []schemas.ToolCall{clickCall(3, 4)},
				}
			}
			return schemas.ModelStep{ToolCalls: []schemas.ToolCall{closeCall(true, "all done")}}
		},
	}
	orchestrator := newTestOrchestrator(t, client, &fakePage{url: "https://example.com"})

	handle, err := orchestrator.Stream(context.Background(), Options{Instruction: "stream me"})
	require.NoError(t, err)

	var events []StepEvent
	for event := range handle.Events() {
		events = append(events, event)
	}

	result, err := handle.Result()
	require.NoError(t, err)

	require.Len(t, events, 2)
	assert.Equal(t, 1, events[0].Step)
	assert.Equal(t, "first I click", events[0].Reasoning)
	require.Len(t, events[0].Actions, 1)
	assert.Equal(t, schemas.ActionClick, events[0].Actions[0].Type)
	assert.True(t, events[1].Completed)

	assert.True(t, result.Success)
	assert.Contains(t, result.Message, "all done")
}

// Verifies a caller that awaits the result without ever draining events still
// gets one; overflow events are dropped instead of stalling the run goroutine.
func TestOrchestrator_Stream_UndrainedConsumerStillGetsResult(t *testing.T) {
	client := &scriptedModelClient{
		stepFn: func(turn int) schemas.ModelStep {
			return schemas.ModelStep{ToolCalls: []schemas.ToolCall{clickCall(1, 1)}}
		},
	}
	orchestrator := newTestOrchestrator(t, client, &fakePage{url: "https://example.com"})

	handle, err := orchestrator.Stream(context.Background(), Options{
		Instruction: "long haul",
		MaxSteps:    12,
	})
	require.NoError(t, err)

	done := make(chan struct{})
	var result *schemas.AgentResult
	var resultErr error
	go func() {
		result, resultErr = handle.Result()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Result did not return while events went undrained")
	}

	require.NoError(t, resultErr)
	assert.False(t, result.Completed)
	assert.Len(t, result.Actions, 12)

	// Only the buffered prefix survives; the rest was dropped, not queued.
	var buffered int
	for range handle.Events() {
		buffered++
	}
	assert.LessOrEqual(t, buffered, 8)
}

// Verifies streaming surfaces preparation failures synchronously.
func TestOrchestrator_Stream_MissingModelClient(t *testing.T) {
	orchestrator := newTestOrchestrator(t, nil, &fakePage{url: "https://example.com"})

	handle, err := orchestrator.Stream(context.Background(), Options{Instruction: "nope"})

	require.ErrorIs(t, err, ErrMissingModelClient)
	assert.Nil(t, handle)
}
