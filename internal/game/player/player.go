// Package player defines the core-facing handle for a connected player:
// identity plus the send capability wired in by the transport layer.
package player

import "github.com/cory-johannsen/quizrace/internal/game/question"

// Profile is the public view of a player shared with opponents on a match.
type Profile struct {
	// UID is the unique player identifier.
	UID string
	// Name is the display name.
	Name string
	// TotalScore is the cumulative score across past games.
	TotalScore int
}

// GameResult is one participant's final line of a completed game, written
// to the result store.
type GameResult struct {
	UID               string
	RoomID            string
	Subject           string
	Difficulty        string
	Score             int
	Rank              int
	Winner            bool
	Position          int
	QuestionsAnswered int
}

// AnswerResult reports the outcome of one answer submission.
type AnswerResult struct {
	// UID identifies the player who answered.
	UID string
	// QuestionIndex is the index of the answered question.
	QuestionIndex int
	// Correct reports whether the submitted option was right.
	Correct bool
	// CorrectOption is the index of the right option, revealed with the result.
	CorrectOption int
	// Delta is the score awarded for this answer.
	Delta int
	// Score is the player's running total after this answer.
	Score int
	// Nitro reports whether this answer triggered a nitro boost.
	Nitro bool
}

// Progress is one player's race progress after an answer.
type Progress struct {
	UID           string
	QuestionIndex int
	Score         int
	Position      int
	Correct       int
	Wrong         int
	Finished      bool
	Rank          int
}

// PositionUpdate is one entry of a periodic race position broadcast.
type PositionUpdate struct {
	UID      string
	Position int
	Score    int
	Nitro    bool
	Finished bool
	Rank     int
}

// Sender is the outbound capability implemented by the transport layer.
// All methods must be non-blocking: implementations buffer or drop rather
// than stall the caller, so one slow connection never delays the others.
type Sender interface {
	// SendQuestion delivers the player's next question.
	SendQuestion(roomID string, index, total int, q question.View)
	// SendAnswerResult delivers the outcome of a submission.
	SendAnswerResult(roomID string, r AnswerResult)
	// SendProgress delivers another participant's race progress.
	SendProgress(roomID string, p Progress)
	// SendPositions delivers the periodic race position broadcast.
	SendPositions(roomID string, updates []PositionUpdate)
	// SendFinish announces that a participant crossed the finish line.
	SendFinish(roomID, uid string, rank int)
	// SendGameEnd announces the end of the session with a reason.
	SendGameEnd(roomID, reason string)
	// SendMatchFound reports a successful pairing with the opponent's profile.
	SendMatchFound(roomID string, opponent Profile)
	// SendMatchFailed reports a failed or timed-out matchmaking request.
	SendMatchFailed(reason string, timeout bool)
	// SendMatchCancelled confirms an explicit cancellation.
	SendMatchCancelled()
}

// Handle pairs a player's identity with their send capability. The core
// passes handles between matchmaking, rooms, and sessions; it never sees
// the underlying connection.
type Handle struct {
	uid        string
	name       string
	totalScore int
	sender     Sender
}

// NewHandle creates a Handle.
//
// Precondition: uid and name must be non-empty; sender must not be nil.
// totalScore is the player's cumulative score snapshot at connect time.
func NewHandle(uid, name string, totalScore int, sender Sender) *Handle {
	return &Handle{
		uid:        uid,
		name:       name,
		totalScore: totalScore,
		sender:     sender,
	}
}

// UID returns the player's unique identifier.
func (h *Handle) UID() string { return h.uid }

// Name returns the player's display name.
func (h *Handle) Name() string { return h.name }

// TotalScore returns the cumulative score snapshot taken at connect time.
func (h *Handle) TotalScore() int { return h.totalScore }

// Profile returns the public view of this player.
func (h *Handle) Profile() Profile {
	return Profile{UID: h.uid, Name: h.name, TotalScore: h.totalScore}
}

// Sender returns the outbound capability for this player.
func (h *Handle) Sender() Sender { return h.sender }
