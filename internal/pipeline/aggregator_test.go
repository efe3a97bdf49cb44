package pipeline

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"redraft/internal/text"
)

func successResult(index, in, out int, body string) Result {
	return Result{
		Index:          index,
		Text:           body,
		InputWords:     in,
		OutputWords:    out,
		ExpansionRatio: float64(out) / float64(in),
		Attempts:       []Attempt{{Number: 1, Outcome: "succeeded"}},
		Succeeded:      true,
	}
}

func TestAggregate_AllSucceeded(t *testing.T) {
	results := []Result{
		successResult(0, 10, 15, "first part"),
		successResult(1, 20, 20, "second part"),
		successResult(2, 10, 5, "third part"),
	}

	final, stats := Aggregate(results)

	assert.Equal(t, "first part"+text.Separator+"second part"+text.Separator+"third part", final)
	assert.Equal(t, 40, stats.TotalInputWords)
	assert.Equal(t, 40, stats.TotalOutputWords)
	assert.Equal(t, 1.0, stats.ExpansionRatio)
	assert.Equal(t, 0, stats.FatalFailures)
	assert.Equal(t, 0, stats.RetriedChunks)
	require.Len(t, stats.Chunks, 3)
	assert.Equal(t, 1.5, stats.Chunks[0].ExpansionRatio)
}

func TestAggregate_FailedChunkPlaceholder(t *testing.T) {
	results := []Result{
		successResult(0, 10, 10, "good start"),
		{Index: 1, InputWords: 10, Attempts: []Attempt{{Number: 1, Outcome: "failed_fatal"}}, Error: "content rejected"},
		successResult(2, 10, 10, "good end"),
	}

	final, stats := Aggregate(results)

	assert.Equal(t, 1, strings.Count(final, FailedChunkPlaceholder), "exactly one placeholder for one failed chunk")
	assert.Contains(t, final, "good start")
	assert.Contains(t, final, "good end")
	assert.Equal(t, 1, stats.FatalFailures)
	assert.Equal(t, "content rejected", stats.Chunks[1].Error)
	assert.False(t, stats.Chunks[1].Succeeded)
}

func TestAggregate_RetriedCount(t *testing.T) {
	r := successResult(0, 10, 10, "body")
	r.Attempts = []Attempt{
		{Number: 1, Outcome: "failed_transient"},
		{Number: 2, Outcome: "succeeded"},
	}

	_, stats := Aggregate([]Result{r, successResult(1, 5, 5, "x")})
	assert.Equal(t, 1, stats.RetriedChunks)
}

func TestAggregate_Idempotent(t *testing.T) {
	results := []Result{
		successResult(0, 10, 12, "alpha"),
		{Index: 1, InputWords: 8, Error: "boom"},
		successResult(2, 6, 6, "omega"),
	}

	first, statsA := Aggregate(results)
	second, statsB := Aggregate(results)

	assert.Equal(t, first, second, "aggregation must be byte-identical across calls")
	assert.Equal(t, statsA, statsB)
}

func TestAggregate_Empty(t *testing.T) {
	final, stats := Aggregate(nil)
	assert.Empty(t, final)
	assert.Zero(t, stats.TotalInputWords)
	assert.Zero(t, stats.ExpansionRatio)
}
