package gameserver

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/cory-johannsen/quizrace/internal/game/player"
	"github.com/cory-johannsen/quizrace/internal/game/question"
	"github.com/cory-johannsen/quizrace/internal/game/session"
)

// ErrGameInProgress is returned when the room already has an active session.
var ErrGameInProgress = errors.New("game already in progress for room")

// ErrNoQuestionsAvailable is returned when the question source has nothing
// for the subject, even after relaxing the difficulty.
var ErrNoQuestionsAvailable = errors.New("no questions available for subject")

// ErrGameNotFound is returned when no active session matches the room.
var ErrGameNotFound = errors.New("no active game for room")

// GameManager orchestrates session lifecycle around the engine: question
// loading at start, persistence and cleanup at end.
type GameManager struct {
	questionCount int
	questions     question.Source
	results       ResultStore
	scores        ScoreCache
	engine        *session.Engine
	logger        *zap.Logger
}

// NewGameManager creates a GameManager. scores may be nil.
func NewGameManager(
	questionCount int,
	questions question.Source,
	results ResultStore,
	scores ScoreCache,
	engine *session.Engine,
	logger *zap.Logger,
) *GameManager {
	return &GameManager{
		questionCount: questionCount,
		questions:     questions,
		results:       results,
		scores:        scores,
		engine:        engine,
		logger:        logger,
	}
}

// StartGame loads questions, builds a session for the room, and starts the
// countdown. When the subject has no questions at the requested difficulty
// the load is retried across all difficulties before giving up.
//
// Postcondition: Returns nil with the session in COUNTDOWN, or an error with
// no session registered.
func (m *GameManager) StartGame(ctx context.Context, roomID, subject, difficulty string, participants []*player.Handle) error {
	if len(participants) < 2 {
		return session.ErrTooFewParticipants
	}
	if _, exists := m.engine.Get(roomID); exists {
		return ErrGameInProgress
	}

	qs, err := m.questions.LoadQuestions(ctx, subject, difficulty, m.questionCount)
	if err != nil {
		return fmt.Errorf("load questions for %s/%s: %w", subject, difficulty, err)
	}
	if len(qs) == 0 && difficulty != "" {
		m.logger.Warn("no questions at requested difficulty, relaxing",
			zap.String("subject", subject),
			zap.String("difficulty", difficulty),
		)
		qs, err = m.questions.LoadQuestions(ctx, subject, "", m.questionCount)
		if err != nil {
			return fmt.Errorf("load questions for %s: %w", subject, err)
		}
	}
	if len(qs) == 0 {
		return ErrNoQuestionsAvailable
	}

	s, err := m.engine.Create(roomID, subject, difficulty, qs, participants, func(string) {
		// The end reason has already been broadcast; persistence runs on a
		// fresh context so a dead inbound request cannot abort it.
		m.EndGame(context.Background(), roomID)
	})
	if err != nil {
		return err
	}
	s.StartCountdown()
	return nil
}

// SubmitAnswer forwards a submission to the room's active session.
func (m *GameManager) SubmitAnswer(roomID, uid string, a session.Answer) error {
	s, ok := m.engine.Get(roomID)
	if !ok {
		return ErrGameNotFound
	}
	return s.SubmitAnswer(uid, a)
}

// HandlePlayerDisconnect notifies the player's active session, if any.
func (m *GameManager) HandlePlayerDisconnect(uid string) {
	if s, ok := m.engine.SessionFor(uid); ok {
		s.PlayerDisconnected(uid)
	}
}

// EndGame persists every participant's final state and releases the session.
// Each participant's writes are guarded independently, so one failing player
// never blocks the others. Safe to call once per session; later calls for
// the same room are no-ops.
func (m *GameManager) EndGame(ctx context.Context, roomID string) {
	s, ok := m.engine.Get(roomID)
	if !ok {
		return
	}

	for _, r := range s.Results() {
		m.persistResult(ctx, s, r)
	}

	s.Cleanup()
	m.engine.Remove(roomID)
	m.logger.Info("game ended and persisted",
		zap.String("room", roomID),
		zap.Int("participants", len(s.Participants())),
	)
}

func (m *GameManager) persistResult(ctx context.Context, s *session.Session, r session.Result) {
	winner := r.Rank == 1
	result := player.GameResult{
		UID:               r.UID,
		RoomID:            s.RoomID(),
		Subject:           s.Subject(),
		Difficulty:        s.Difficulty(),
		Score:             r.Score,
		Rank:              r.Rank,
		Winner:            winner,
		Position:          r.Position,
		QuestionsAnswered: r.Correct + r.Wrong,
	}
	if err := m.results.SaveResult(ctx, result); err != nil {
		m.logger.Error("result persistence failed",
			zap.String("room", s.RoomID()),
			zap.String("uid", r.UID),
			zap.Error(err),
		)
	}
	if err := m.results.SaveStats(ctx, r.UID, s.Subject(), r.Score, winner); err != nil {
		m.logger.Error("stats persistence failed",
			zap.String("room", s.RoomID()),
			zap.String("uid", r.UID),
			zap.Error(err),
		)
	}
	if m.scores != nil && r.Score > 0 {
		if err := m.scores.AddScore(ctx, r.UID, r.Score); err != nil {
			m.logger.Warn("score cache update failed",
				zap.String("uid", r.UID),
				zap.Error(err),
			)
		}
	}
}
