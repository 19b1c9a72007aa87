// Package session drives active game sessions: the countdown, each player's
// independent progression through the shared question sequence, scoring,
// race broadcasts, and end-of-game handoff.
package session

import "time"

// State is a session's lifecycle phase.
type State int

const (
	// StateCreated means the session is built but the countdown has not begun.
	StateCreated State = iota
	// StateCountdown means the pre-game countdown is running.
	StateCountdown
	// StateInProgress means players are answering questions.
	StateInProgress
	// StateEnding means the game-end notification has fired and persistence
	// is pending.
	StateEnding
	// StateCleanedUp means the session has released its timers and is gone
	// from the active set.
	StateCleanedUp
)

// String returns the readable name of the state.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateCountdown:
		return "countdown"
	case StateInProgress:
		return "in_progress"
	case StateEnding:
		return "ending"
	case StateCleanedUp:
		return "cleaned_up"
	default:
		return "unknown"
	}
}

// End reasons reported with the game-end notification.
const (
	// ReasonAllFinished means every active participant crossed the finish line.
	ReasonAllFinished = "all players finished"
	// ReasonInsufficientPlayers means fewer than two active participants remain.
	ReasonInsufficientPlayers = "insufficient players"
	// ReasonTimeLimit means the session hit its hard time limit.
	ReasonTimeLimit = "time limit reached"
)

// Answer is one submission: the index the player believes they are answering
// plus the chosen option. Carrying the index lets the session reject late or
// duplicate submissions for an already-advanced question instead of
// misapplying them to the next one.
type Answer struct {
	QuestionIndex int
	Option        int
}

// playerState is one participant's race state. Guarded by the session mutex.
type playerState struct {
	uid string
	// index is the player's current question, advancing strictly forward.
	index int
	// score and position never decrease.
	score    int
	position int
	correct  int
	wrong    int
	// streak counts consecutive correct answers; a wrong or timed-out
	// answer resets it.
	streak int
	// active is cleared when the player disconnects mid-game.
	active bool
	// finished is set when the player answers the final question.
	finished bool
	// rank is the finish rank, assigned exactly once; 0 = unassigned.
	rank int
	// questionSentAt is when the current question was dispatched, for
	// latency-based scoring.
	questionSentAt time.Time
}

func (p *playerState) nitro(threshold int) bool {
	return p.streak >= threshold
}

// Result is a participant's final state read out for persistence.
type Result struct {
	UID      string
	Score    int
	Position int
	Correct  int
	Wrong    int
	Rank     int
	Finished bool
	Active   bool
}

// Config holds the session timing and scoring knobs.
type Config struct {
	// Countdown is the pre-game countdown duration.
	Countdown time.Duration
	// TimeLimit is the hard cap on a session once in progress.
	TimeLimit time.Duration
	// BasePoints is the score for a correct answer before the speed bonus.
	BasePoints int
	// SpeedBonusMax is the extra score for an instant correct answer,
	// scaled linearly down to zero at the question's time limit.
	SpeedBonusMax int
	// NitroStreak is the consecutive-correct streak that triggers nitro.
	NitroStreak int
	// PositionDivisor converts cumulative score into race position.
	PositionDivisor int
}
