package gameserver

import (
	"context"

	"github.com/cory-johannsen/quizrace/internal/game/player"
)

// ResultStore persists per-game results and cumulative user statistics.
// Both writes are best-effort from the game's point of view: a failure is
// logged and never blocks another participant's persistence.
type ResultStore interface {
	SaveResult(ctx context.Context, r player.GameResult) error
	SaveStats(ctx context.Context, uid, subject string, scoreDelta int, winner bool) error
}

// ScoreCache tracks cumulative scores for matchmaking band checks.
type ScoreCache interface {
	AddScore(ctx context.Context, uid string, delta int) error
}
