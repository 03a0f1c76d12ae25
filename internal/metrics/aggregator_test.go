package metrics

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kfalter89/webpilot/api/schemas"
)

func sampleUsage(prompt, completion int64) schemas.TokenUsage {
	return schemas.TokenUsage{
		PromptTokens:     prompt,
		CompletionTokens: completion,
	}
}

// Verifies the grand total is always the sum of the category buckets.
func TestAggregator_TotalDerivedFromCategories(t *testing.T) {
	agg := NewAggregator()

	agg.Add(schemas.CategoryAct, sampleUsage(10, 5))
	agg.Add(schemas.CategoryExtract, sampleUsage(20, 10))
	agg.Add(schemas.CategoryObserve, sampleUsage(30, 15))
	agg.Add(schemas.CategoryAgent, sampleUsage(40, 20))

	snapshot := agg.Snapshot()

	assert.Equal(t, int64(10), snapshot.Act.PromptTokens)
	assert.Equal(t, int64(20), snapshot.Extract.PromptTokens)
	assert.Equal(t, int64(30), snapshot.Observe.PromptTokens)
	assert.Equal(t, int64(40), snapshot.Agent.PromptTokens)

	expectedPrompt := snapshot.Act.PromptTokens + snapshot.Extract.PromptTokens +
		snapshot.Observe.PromptTokens + snapshot.Agent.PromptTokens
	expectedCompletion := snapshot.Act.CompletionTokens + snapshot.Extract.CompletionTokens +
		snapshot.Observe.CompletionTokens + snapshot.Agent.CompletionTokens

	assert.Equal(t, expectedPrompt, snapshot.Total.PromptTokens)
	assert.Equal(t, expectedCompletion, snapshot.Total.CompletionTokens)
}

// Verifies repeated additions to the same category accumulate instead of
// overwriting.
func TestAggregator_RepeatedAdditionsAccumulate(t *testing.T) {
	agg := NewAggregator()

	agg.Add(schemas.CategoryAct, sampleUsage(10, 5))
	agg.Add(schemas.CategoryAct, sampleUsage(10, 5))
	agg.Add(schemas.CategoryAct, sampleUsage(10, 5))

	snapshot := agg.Snapshot()
	assert.Equal(t, int64(30), snapshot.Act.PromptTokens)
	assert.Equal(t, int64(15), snapshot.Act.CompletionTokens)
	assert.Equal(t, int64(30), snapshot.Total.PromptTokens)
}

// Verifies unknown categories update only the grand totals, never a named
// bucket.
func TestAggregator_UnknownCategoryCountsTowardTotalOnly(t *testing.T) {
	agg := NewAggregator()

	agg.Add(schemas.UsageCategory("mystery"), sampleUsage(7, 3))

	snapshot := agg.Snapshot()
	assert.Zero(t, snapshot.Act.PromptTokens)
	assert.Zero(t, snapshot.Extract.PromptTokens)
	assert.Zero(t, snapshot.Observe.PromptTokens)
	assert.Zero(t, snapshot.Agent.PromptTokens)
	assert.Equal(t, int64(7), snapshot.Total.PromptTokens)
	assert.Equal(t, int64(3), snapshot.Total.CompletionTokens)
}

// Verifies inference time lands in the right bucket without touching token
// counters.
func TestAggregator_AddInferenceTime(t *testing.T) {
	agg := NewAggregator()

	agg.AddInferenceTime(schemas.CategoryAgent, 1500)
	agg.AddInferenceTime(schemas.CategoryAgent, 500)

	snapshot := agg.Snapshot()
	assert.Equal(t, int64(2000), snapshot.Agent.InferenceTimeMs)
	assert.Zero(t, snapshot.Agent.PromptTokens)
	assert.Equal(t, int64(2000), snapshot.Total.InferenceTimeMs)
}

// Verifies Snapshot is a point-in-time copy and later additions do not mutate
// earlier snapshots.
func TestAggregator_SnapshotIsStable(t *testing.T) {
	agg := NewAggregator()
	agg.Add(schemas.CategoryAct, sampleUsage(1, 1))

	first := agg.Snapshot()
	agg.Add(schemas.CategoryAct, sampleUsage(100, 100))
	second := agg.Snapshot()

	assert.Equal(t, int64(1), first.Act.PromptTokens)
	assert.Equal(t, int64(101), second.Act.PromptTokens)
}

// Verifies concurrent additions are not lost.
func TestAggregator_ConcurrentAdds(t *testing.T) {
	agg := NewAggregator()

	const workers = 8
	const perWorker = 100

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				agg.Add(schemas.CategoryObserve, sampleUsage(1, 1))
			}
		}()
	}
	wg.Wait()

	snapshot := agg.Snapshot()
	require.Equal(t, int64(workers*perWorker), snapshot.Observe.PromptTokens)
	require.Equal(t, int64(workers*perWorker), snapshot.Total.PromptTokens)
}
