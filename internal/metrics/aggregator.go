// File: internal/metrics/aggregator.go

// Package metrics folds heterogeneous LLM usage events into per-category and
// grand totals. Both the local step loop and the remote replay summary
// converge on this aggregator so the two paths report the same shape.
package metrics

import (
	"sync"

	"github.com/kfalter89/webpilot/api/schemas"
)

// Aggregator accumulates TokenUsage records keyed by operation category.
// Safe for concurrent use.
type Aggregator struct {
	mu         sync.Mutex
	categories map[schemas.UsageCategory]*schemas.FunctionMetrics
	unmatched  schemas.FunctionMetrics
}

// NewAggregator returns an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{
		categories: make(map[schemas.UsageCategory]*schemas.FunctionMetrics),
	}
}

// knownCategories is the closed set of named buckets. Anything else counts
// toward the grand total only.
var knownCategories = map[schemas.UsageCategory]bool{
	schemas.CategoryAct:     true,
	schemas.CategoryExtract: true,
	schemas.CategoryObserve: true,
	schemas.CategoryAgent:   true,
}

// Add folds one usage record into the category's running counters. Unknown
// categories update only the totals.
func (a *Aggregator) Add(category schemas.UsageCategory, usage schemas.TokenUsage) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !knownCategories[category] {
		accumulate(&a.unmatched, usage)
		return
	}

	fm, ok := a.categories[category]
	if !ok {
		fm = &schemas.FunctionMetrics{}
		a.categories[category] = fm
	}
	accumulate(fm, usage)
}

// AddInferenceTime folds wall-clock milliseconds into a category without
// touching its token counters.
func (a *Aggregator) AddInferenceTime(category schemas.UsageCategory, ms int64) {
	a.Add(category, schemas.TokenUsage{InferenceTimeMs: ms})
}

// Snapshot materializes the current counters as the public UsageMetrics
// shape. The Total block is derived here by summing the categories plus any
// unmatched records; it is never tracked independently.
func (a *Aggregator) Snapshot() schemas.UsageMetrics {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := schemas.UsageMetrics{}
	assign := func(dst *schemas.FunctionMetrics, cat schemas.UsageCategory) {
		if fm, ok := a.categories[cat]; ok {
			*dst = *fm
		}
	}
	assign(&out.Act, schemas.CategoryAct)
	assign(&out.Extract, schemas.CategoryExtract)
	assign(&out.Observe, schemas.CategoryObserve)
	assign(&out.Agent, schemas.CategoryAgent)

	for _, fm := range []schemas.FunctionMetrics{out.Act, out.Extract, out.Observe, out.Agent, a.unmatched} {
		out.Total.PromptTokens += fm.PromptTokens
		out.Total.CompletionTokens += fm.CompletionTokens
		out.Total.ReasoningTokens += fm.ReasoningTokens
		out.Total.CachedInputTokens += fm.CachedInputTokens
		out.Total.InferenceTimeMs += fm.InferenceTimeMs
	}
	return out
}

func accumulate(fm *schemas.FunctionMetrics, usage schemas.TokenUsage) {
	fm.PromptTokens += usage.PromptTokens
	fm.CompletionTokens += usage.CompletionTokens
	fm.ReasoningTokens += usage.ReasoningTokens
	fm.CachedInputTokens += usage.CachedInputTokens
	fm.InferenceTimeMs += usage.InferenceTimeMs
}
