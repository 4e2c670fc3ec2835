package quiz_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/p-n-ai/medq/internal/platform/database"
	"github.com/p-n-ai/medq/internal/quiz"
)

func TestPostgresStore_SaveAndList(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}
	ctx := t.Context()

	ctr, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("medq"),
		postgres.WithUsername("medq"),
		postgres.WithPassword("medq"),
		postgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}
	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := database.New(ctx, database.Options{URL: dsn, Migrate: true})
	require.NoError(t, err)
	t.Cleanup(db.Close)

	store, err := quiz.NewPostgresStore(db.Pool)
	require.NoError(t, err)

	sel := 1
	base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	for i, id := range []string{"r1", "r2"} {
		require.NoError(t, store.SaveResponse(ctx, quiz.Response{
			ID:          id,
			StudentID:   "student-1",
			LectureID:   "deleted-lecture",
			Score:       i,
			Total:       2,
			Results:     []quiz.Result{{QuestionID: "q1", Selected: &sel, Correct: i == 1}},
			SubmittedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	got, err := store.ListResponses(ctx, "student-1", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "r2", got[0].ID)
	require.Len(t, got[0].Results, 1)
	assert.True(t, got[0].Results[0].Correct)
	assert.Equal(t, 1, *got[0].Results[0].Selected)

	none, err := store.ListResponses(ctx, "student-2", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}
