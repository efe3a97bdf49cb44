package transform_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"redraft/features/transform"
	"redraft/internal/testutils"
)

func TestTransformRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := testutils.NewIntegrationSuite(t)
	s.Setup()
	defer s.Teardown()

	repo := transform.NewPostgresRepo(s.DB)
	ctx := context.Background()

	j1 := &transform.ArchivedJob{
		ID:          "int-job-1",
		Provider:    "gemini",
		State:       "completed",
		Stats:       json.RawMessage(`{"total_input_words":50,"total_output_words":60,"expansion_ratio":1.2}`),
		InputWords:  50,
		OutputWords: 60,
		CreatedAt:   time.Now().UTC().Add(-time.Minute),
		CompletedAt: time.Now().UTC().Add(-30 * time.Second),
	}
	require.NoError(t, repo.Save(ctx, j1))

	j2 := &transform.ArchivedJob{
		ID:            "int-job-2",
		Provider:      "openai",
		State:         "partially_failed",
		Error:         "1 chunk failed fatally",
		Stats:         json.RawMessage(`{"total_input_words":80,"fatal_failures":1}`),
		InputWords:    80,
		FatalFailures: 1,
		CreatedAt:     time.Now().UTC(),
		CompletedAt:   time.Now().UTC(),
	}
	require.NoError(t, repo.Save(ctx, j2))

	// List ordering: newest completion first.
	jobs, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "int-job-2", jobs[0].ID)
	assert.Equal(t, "int-job-1", jobs[1].ID)

	// Get round-trips the stats document.
	got, err := repo.Get(ctx, "int-job-1")
	require.NoError(t, err)
	stats, err := got.Statistics()
	require.NoError(t, err)
	assert.Equal(t, 1.2, stats.ExpansionRatio)

	// Save is an upsert: re-archiving the same job updates it in place.
	j2.State = "failed"
	require.NoError(t, repo.Save(ctx, j2))
	got, err = repo.Get(ctx, "int-job-2")
	require.NoError(t, err)
	assert.Equal(t, "failed", got.State)

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	byState, err := repo.CountByState(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, byState["completed"])
	assert.Equal(t, 1, byState["failed"])
}
