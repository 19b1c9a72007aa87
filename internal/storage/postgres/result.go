package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/quizrace/internal/game/player"
)

// ErrStatsNotFound is returned when a stats lookup yields no results.
var ErrStatsNotFound = errors.New("user stats not found")

// UserStats is a player's cumulative record across all games.
type UserStats struct {
	UID           string
	Games         int
	Wins          int
	TotalScore    int
	SubjectScores map[string]int
	UpdatedAt     time.Time
}

// ResultRepository persists per-game results and cumulative user stats.
// It implements the game server's result store contract.
type ResultRepository struct {
	db *pgxpool.Pool
}

// NewResultRepository creates a ResultRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewResultRepository(db *pgxpool.Pool) *ResultRepository {
	return &ResultRepository{db: db}
}

// SaveResult inserts one participant's final line for a completed game.
func (r *ResultRepository) SaveResult(ctx context.Context, res player.GameResult) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO game_results
		   (uid, room_id, subject, difficulty, score, rank, winner,
		    position, questions_answered)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		res.UID, res.RoomID, res.Subject, res.Difficulty, res.Score,
		res.Rank, res.Winner, res.Position, res.QuestionsAnswered,
	)
	if err != nil {
		return fmt.Errorf("inserting game result: %w", err)
	}
	return nil
}

// SaveStats folds one game into the player's cumulative stats: games and
// wins counters, total score, and the per-subject score map.
//
// Postcondition: The player has a user_stats row; repeated calls accumulate.
func (r *ResultRepository) SaveStats(ctx context.Context, uid, subject string, scoreDelta int, winner bool) error {
	wins := 0
	if winner {
		wins = 1
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO user_stats (uid, games, wins, total_score, subject_scores)
		 VALUES ($1, 1, $2, $3, jsonb_build_object($4::text, $3::int))
		 ON CONFLICT (uid) DO UPDATE SET
		   games = user_stats.games + 1,
		   wins = user_stats.wins + $2,
		   total_score = user_stats.total_score + $3,
		   subject_scores = jsonb_set(
		     user_stats.subject_scores,
		     ARRAY[$4::text],
		     to_jsonb(coalesce((user_stats.subject_scores ->> $4)::int, 0) + $3)
		   ),
		   updated_at = now()`,
		uid, wins, scoreDelta, subject,
	)
	if err != nil {
		return fmt.Errorf("upserting user stats: %w", err)
	}
	return nil
}

// GetStats retrieves a player's cumulative stats.
//
// Postcondition: Returns the stats, or ErrStatsNotFound.
func (r *ResultRepository) GetStats(ctx context.Context, uid string) (UserStats, error) {
	var s UserStats
	err := r.db.QueryRow(ctx,
		`SELECT uid, games, wins, total_score, subject_scores, updated_at
		 FROM user_stats WHERE uid = $1`,
		uid,
	).Scan(&s.UID, &s.Games, &s.Wins, &s.TotalScore, &s.SubjectScores, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return UserStats{}, ErrStatsNotFound
		}
		return UserStats{}, fmt.Errorf("querying user stats: %w", err)
	}
	return s, nil
}

// ResultsForRoom returns the stored result lines for one game, best rank
// first.
func (r *ResultRepository) ResultsForRoom(ctx context.Context, roomID string) ([]player.GameResult, error) {
	rows, err := r.db.Query(ctx,
		`SELECT uid, room_id, subject, difficulty, score, rank, winner,
		        position, questions_answered
		 FROM game_results
		 WHERE room_id = $1
		 ORDER BY rank = 0, rank`,
		roomID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying game results: %w", err)
	}
	defer rows.Close()

	var out []player.GameResult
	for rows.Next() {
		var res player.GameResult
		if err := rows.Scan(
			&res.UID, &res.RoomID, &res.Subject, &res.Difficulty, &res.Score,
			&res.Rank, &res.Winner, &res.Position, &res.QuestionsAnswered,
		); err != nil {
			return nil, fmt.Errorf("scanning game result: %w", err)
		}
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading game results: %w", err)
	}
	return out, nil
}
