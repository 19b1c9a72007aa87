package postgres_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/quizrace/internal/game/player"
	"github.com/cory-johannsen/quizrace/internal/storage/postgres"
	"github.com/cory-johannsen/quizrace/internal/testutil"
)

func TestResultRepository(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	pc := testutil.NewPostgresContainer(t)
	pc.ApplyMigrations(t)
	repo := postgres.NewResultRepository(pc.RawPool)
	ctx := context.Background()

	winner := player.GameResult{
		UID: "uid-1", RoomID: "room-1", Subject: "math", Difficulty: "easy",
		Score: 600, Rank: 1, Winner: true, Position: 60, QuestionsAnswered: 5,
	}
	loser := player.GameResult{
		UID: "uid-2", RoomID: "room-1", Subject: "math", Difficulty: "easy",
		Score: 250, Rank: 2, Winner: false, Position: 25, QuestionsAnswered: 5,
	}
	require.NoError(t, repo.SaveResult(ctx, winner))
	require.NoError(t, repo.SaveResult(ctx, loser))

	t.Run("results for room ordered by rank", func(t *testing.T) {
		results, err := repo.ResultsForRoom(ctx, "room-1")
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, winner, results[0])
		assert.Equal(t, loser, results[1])
	})

	t.Run("stats accumulate across games", func(t *testing.T) {
		require.NoError(t, repo.SaveStats(ctx, "uid-1", "math", 600, true))
		require.NoError(t, repo.SaveStats(ctx, "uid-1", "math", 150, false))
		require.NoError(t, repo.SaveStats(ctx, "uid-1", "english", 200, true))

		stats, err := repo.GetStats(ctx, "uid-1")
		require.NoError(t, err)
		assert.Equal(t, 3, stats.Games)
		assert.Equal(t, 2, stats.Wins)
		assert.Equal(t, 950, stats.TotalScore)
		assert.Equal(t, 750, stats.SubjectScores["math"])
		assert.Equal(t, 200, stats.SubjectScores["english"])
		assert.False(t, stats.UpdatedAt.IsZero())
	})

	t.Run("zero-score loss still counts the game", func(t *testing.T) {
		require.NoError(t, repo.SaveStats(ctx, "uid-2", "math", 0, false))
		stats, err := repo.GetStats(ctx, "uid-2")
		require.NoError(t, err)
		assert.Equal(t, 1, stats.Games)
		assert.Equal(t, 0, stats.Wins)
		assert.Equal(t, 0, stats.TotalScore)
		assert.Equal(t, 0, stats.SubjectScores["math"])
	})

	t.Run("missing stats", func(t *testing.T) {
		_, err := repo.GetStats(ctx, "uid-nobody")
		assert.ErrorIs(t, err, postgres.ErrStatsNotFound)
	})
}
