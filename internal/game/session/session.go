package session

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/quizrace/internal/game/clock"
	"github.com/cory-johannsen/quizrace/internal/game/player"
	"github.com/cory-johannsen/quizrace/internal/game/question"
)

// ErrNotInProgress is returned for submissions outside the IN_PROGRESS state.
var ErrNotInProgress = errors.New("session not in progress")

// ErrNotParticipant is returned when the player is not part of the session.
var ErrNotParticipant = errors.New("player not in session")

// ErrPlayerInactive is returned for submissions from a disconnected player.
var ErrPlayerInactive = errors.New("player inactive")

// ErrAlreadyFinished is returned for submissions from a finished player.
var ErrAlreadyFinished = errors.New("player already finished")

// ErrStaleAnswer is returned for a submission against an already-advanced
// question. Duplicate submissions land here too: accepting an answer advances
// the index, so a resend carries a stale index.
var ErrStaleAnswer = errors.New("submission for an already-advanced question")

// Session is one running game for a fixed participant set. All participants
// share the same shuffled question sequence but progress through it
// independently: nobody waits for anybody.
type Session struct {
	roomID     string
	subject    string
	difficulty string
	questions  []question.Question
	cfg        Config
	logger     *zap.Logger

	// onEnd receives the end reason exactly once, after the game-end
	// notification has gone out. Wired by the orchestration layer to run
	// persistence and cleanup.
	onEnd func(reason string)

	mu           sync.Mutex
	state        State
	players      map[string]*playerState
	nextRank     int
	countdown    *clock.GameTimer
	hardLimit    *clock.GameTimer
	now          func() time.Time
	participants []*player.Handle
}

// RoomID returns the room this session was started from.
func (s *Session) RoomID() string { return s.roomID }

// Subject returns the session's question subject.
func (s *Session) Subject() string { return s.subject }

// Difficulty returns the session's requested difficulty.
func (s *Session) Difficulty() string { return s.difficulty }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// StartCountdown begins the pre-game countdown. On expiry the session
// transitions to IN_PROGRESS and every participant receives question 0.
//
// Precondition: the session must be in StateCreated.
func (s *Session) StartCountdown() {
	s.mu.Lock()
	if s.state != StateCreated {
		s.mu.Unlock()
		return
	}
	s.state = StateCountdown
	s.countdown = clock.NewGameTimer(s.cfg.Countdown, s.beginPlay)
	s.mu.Unlock()

	s.logger.Info("countdown started",
		zap.String("room", s.roomID),
		zap.Duration("countdown", s.cfg.Countdown),
	)
}

// beginPlay transitions COUNTDOWN -> IN_PROGRESS and dispatches question 0.
func (s *Session) beginPlay() {
	s.mu.Lock()
	if s.state != StateCountdown {
		s.mu.Unlock()
		return
	}
	s.state = StateInProgress
	now := s.now()
	for _, ps := range s.players {
		ps.questionSentAt = now
	}
	s.hardLimit = clock.NewGameTimer(s.cfg.TimeLimit, func() {
		if s.transitionToEnding(ReasonTimeLimit) {
			s.finishEnding(ReasonTimeLimit)
		}
	})
	s.mu.Unlock()

	s.logger.Info("session in progress",
		zap.String("room", s.roomID),
		zap.Int("questions", len(s.questions)),
		zap.Int("participants", len(s.participants)),
	)

	first := s.questions[0].View()
	for _, h := range s.participants {
		h.Sender().SendQuestion(s.roomID, 0, len(s.questions), first)
	}
}

// SubmitAnswer scores one submission for uid and advances that player only.
// Every accepted submission triggers an answer-result broadcast and a
// progress broadcast to all participants.
//
// Postcondition: On error nothing changed. On success the player's index
// advanced by exactly one and score/position did not decrease.
func (s *Session) SubmitAnswer(uid string, a Answer) error {
	s.mu.Lock()

	if s.state != StateInProgress {
		s.mu.Unlock()
		return ErrNotInProgress
	}
	ps, ok := s.players[uid]
	if !ok {
		s.mu.Unlock()
		return ErrNotParticipant
	}
	if !ps.active {
		s.mu.Unlock()
		return ErrPlayerInactive
	}
	if ps.finished {
		s.mu.Unlock()
		return ErrAlreadyFinished
	}
	if a.QuestionIndex != ps.index {
		s.mu.Unlock()
		return ErrStaleAnswer
	}

	q := s.questions[ps.index]
	now := s.now()
	latency := now.Sub(ps.questionSentAt)
	timedOut := latency > q.TimeLimit
	correct := !timedOut && a.Option == q.Correct

	var delta int
	if correct {
		remaining := q.TimeLimit - latency
		bonus := int(float64(s.cfg.SpeedBonusMax) * remaining.Seconds() / q.TimeLimit.Seconds())
		delta = q.Weight * (s.cfg.BasePoints + bonus)
		ps.streak++
		ps.correct++
	} else {
		// Wrong or timed-out answers score zero and break the streak.
		ps.streak = 0
		ps.wrong++
	}
	nitro := correct && ps.nitro(s.cfg.NitroStreak)

	ps.score += delta
	ps.position = ps.score / s.cfg.PositionDivisor
	ps.index++

	var (
		finished bool
		rank     int
	)
	if ps.index >= len(s.questions) {
		ps.finished = true
		s.nextRank++
		ps.rank = s.nextRank
		finished = true
		rank = ps.rank
	} else {
		ps.questionSentAt = now
	}

	result := player.AnswerResult{
		UID:           uid,
		QuestionIndex: a.QuestionIndex,
		Correct:       correct,
		CorrectOption: q.Correct,
		Delta:         delta,
		Score:         ps.score,
		Nitro:         nitro,
	}
	progress := player.Progress{
		UID:           uid,
		QuestionIndex: ps.index,
		Score:         ps.score,
		Position:      ps.position,
		Correct:       ps.correct,
		Wrong:         ps.wrong,
		Finished:      ps.finished,
		Rank:          ps.rank,
	}
	nextIndex := ps.index
	ended := s.allActiveFinishedLocked()
	s.mu.Unlock()

	if !finished {
		// Pacing is per-player: only the answerer gets their next question.
		s.senderFor(uid).SendQuestion(s.roomID, nextIndex, len(s.questions), s.questions[nextIndex].View())
	}
	for _, h := range s.participants {
		h.Sender().SendAnswerResult(s.roomID, result)
		h.Sender().SendProgress(s.roomID, progress)
	}
	if finished {
		for _, h := range s.participants {
			h.Sender().SendFinish(s.roomID, uid, rank)
		}
		s.logger.Info("player finished",
			zap.String("room", s.roomID),
			zap.String("uid", uid),
			zap.Int("rank", rank),
			zap.Int("score", progress.Score),
		)
	}

	if ended && s.transitionToEnding(ReasonAllFinished) {
		s.finishEnding(ReasonAllFinished)
	}
	return nil
}

// PlayerDisconnected marks the player inactive. If fewer than two active
// participants remain, the session ends early. If every remaining active
// participant has already finished, the session ends normally: the race is
// over once nobody left can still answer.
func (s *Session) PlayerDisconnected(uid string) {
	s.mu.Lock()
	ps, ok := s.players[uid]
	if !ok || s.state == StateEnding || s.state == StateCleanedUp {
		s.mu.Unlock()
		return
	}
	ps.active = false
	active := 0
	for _, p := range s.players {
		if p.active {
			active++
		}
	}
	allFinished := s.allActiveFinishedLocked()
	s.mu.Unlock()

	s.logger.Info("player disconnected from session",
		zap.String("room", s.roomID),
		zap.String("uid", uid),
		zap.Int("active_remaining", active),
	)

	if active < 2 {
		if s.transitionToEnding(ReasonInsufficientPlayers) {
			s.finishEnding(ReasonInsufficientPlayers)
		}
		return
	}
	if allFinished {
		if s.transitionToEnding(ReasonAllFinished) {
			s.finishEnding(ReasonAllFinished)
		}
	}
}

// Tick broadcasts every participant's current position and nitro state.
// Runs once per tick interval regardless of recent answers so idle
// observers still see race movement.
func (s *Session) Tick() {
	s.mu.Lock()
	if s.state != StateInProgress {
		s.mu.Unlock()
		return
	}
	updates := make([]player.PositionUpdate, 0, len(s.participants))
	for _, h := range s.participants {
		ps := s.players[h.UID()]
		updates = append(updates, player.PositionUpdate{
			UID:      ps.uid,
			Position: ps.position,
			Score:    ps.score,
			Nitro:    ps.nitro(s.cfg.NitroStreak),
			Finished: ps.finished,
			Rank:     ps.rank,
		})
	}
	s.mu.Unlock()

	for _, h := range s.participants {
		h.Sender().SendPositions(s.roomID, updates)
	}
}

// Results returns each participant's final state in arrival order.
func (s *Session) Results() []Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Result, 0, len(s.participants))
	for _, h := range s.participants {
		ps := s.players[h.UID()]
		out = append(out, Result{
			UID:      ps.uid,
			Score:    ps.score,
			Position: ps.position,
			Correct:  ps.correct,
			Wrong:    ps.wrong,
			Rank:     ps.rank,
			Finished: ps.finished,
			Active:   ps.active,
		})
	}
	return out
}

// Participants returns the participant handles in arrival order.
func (s *Session) Participants() []*player.Handle {
	return s.participants
}

// Cleanup releases the session's timers and marks it CLEANED_UP.
// Safe to call more than once.
func (s *Session) Cleanup() {
	s.mu.Lock()
	s.state = StateCleanedUp
	countdown, hardLimit := s.countdown, s.hardLimit
	s.mu.Unlock()
	if countdown != nil {
		countdown.Stop()
	}
	if hardLimit != nil {
		hardLimit.Stop()
	}
}

// transitionToEnding moves the session to ENDING. Returns true for exactly
// one caller; concurrent end triggers (last finisher, disconnect, time
// limit) cannot all win.
func (s *Session) transitionToEnding(reason string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateCountdown, StateInProgress:
		s.state = StateEnding
		return true
	default:
		return false
	}
}

// finishEnding sends the game-end notification and hands off to the
// orchestration layer. The caller must have won transitionToEnding.
func (s *Session) finishEnding(reason string) {
	s.logger.Info("session ending",
		zap.String("room", s.roomID),
		zap.String("reason", reason),
	)
	for _, h := range s.participants {
		h.Sender().SendGameEnd(s.roomID, reason)
	}
	if s.onEnd != nil {
		// Persistence does network IO; keep it off the submit and timer paths.
		go s.onEnd(reason)
	}
}

// allActiveFinishedLocked reports whether every active participant finished.
// Caller must hold the session mutex.
func (s *Session) allActiveFinishedLocked() bool {
	any := false
	for _, ps := range s.players {
		if !ps.active {
			continue
		}
		any = true
		if !ps.finished {
			return false
		}
	}
	return any
}

func (s *Session) senderFor(uid string) player.Sender {
	for _, h := range s.participants {
		if h.UID() == uid {
			return h.Sender()
		}
	}
	// Unreachable for participants validated by SubmitAnswer.
	return noopSender{}
}

type noopSender struct{}

func (noopSender) SendQuestion(string, int, int, question.View)      {}
func (noopSender) SendAnswerResult(string, player.AnswerResult)      {}
func (noopSender) SendProgress(string, player.Progress)              {}
func (noopSender) SendPositions(string, []player.PositionUpdate)     {}
func (noopSender) SendFinish(string, string, int)                    {}
func (noopSender) SendGameEnd(string, string)                        {}
func (noopSender) SendMatchFound(string, player.Profile)             {}
func (noopSender) SendMatchFailed(string, bool)                      {}
func (noopSender) SendMatchCancelled()                               {}
