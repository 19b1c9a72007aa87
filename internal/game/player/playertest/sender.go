// Package playertest provides a recording Sender for tests.
package playertest

import (
	"sync"

	"github.com/cory-johannsen/quizrace/internal/game/player"
	"github.com/cory-johannsen/quizrace/internal/game/question"
)

// QuestionMsg records one SendQuestion call.
type QuestionMsg struct {
	RoomID string
	Index  int
	Total  int
	View   question.View
}

// MatchFailedMsg records one SendMatchFailed call.
type MatchFailedMsg struct {
	Reason  string
	Timeout bool
}

// MatchFoundMsg records one SendMatchFound call.
type MatchFoundMsg struct {
	RoomID   string
	Opponent player.Profile
}

// GameEndMsg records one SendGameEnd call.
type GameEndMsg struct {
	RoomID string
	Reason string
}

// FinishMsg records one SendFinish call.
type FinishMsg struct {
	RoomID string
	UID    string
	Rank   int
}

// RecordingSender captures every outbound call for assertions.
// Safe for concurrent use.
type RecordingSender struct {
	mu             sync.Mutex
	Questions      []QuestionMsg
	AnswerResults  []player.AnswerResult
	Progresses     []player.Progress
	Positions      [][]player.PositionUpdate
	Finishes       []FinishMsg
	GameEnds       []GameEndMsg
	MatchFounds    []MatchFoundMsg
	MatchFaileds   []MatchFailedMsg
	CancelConfirms int
}

// NewRecordingSender returns an empty RecordingSender.
func NewRecordingSender() *RecordingSender {
	return &RecordingSender{}
}

func (s *RecordingSender) SendQuestion(roomID string, index, total int, q question.View) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Questions = append(s.Questions, QuestionMsg{RoomID: roomID, Index: index, Total: total, View: q})
}

func (s *RecordingSender) SendAnswerResult(roomID string, r player.AnswerResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.AnswerResults = append(s.AnswerResults, r)
}

func (s *RecordingSender) SendProgress(roomID string, p player.Progress) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Progresses = append(s.Progresses, p)
}

func (s *RecordingSender) SendPositions(roomID string, updates []player.PositionUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]player.PositionUpdate, len(updates))
	copy(cp, updates)
	s.Positions = append(s.Positions, cp)
}

func (s *RecordingSender) SendFinish(roomID, uid string, rank int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Finishes = append(s.Finishes, FinishMsg{RoomID: roomID, UID: uid, Rank: rank})
}

func (s *RecordingSender) SendGameEnd(roomID, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.GameEnds = append(s.GameEnds, GameEndMsg{RoomID: roomID, Reason: reason})
}

func (s *RecordingSender) SendMatchFound(roomID string, opponent player.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.MatchFounds = append(s.MatchFounds, MatchFoundMsg{RoomID: roomID, Opponent: opponent})
}

func (s *RecordingSender) SendMatchFailed(reason string, timeout bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.MatchFaileds = append(s.MatchFaileds, MatchFailedMsg{Reason: reason, Timeout: timeout})
}

func (s *RecordingSender) SendMatchCancelled() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CancelConfirms++
}

// Snapshot helpers: each returns a copy taken under the lock.

// QuestionCount returns how many questions were sent.
func (s *RecordingSender) QuestionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Questions)
}

// LastQuestion returns the most recent question message.
//
// Precondition: at least one question must have been sent.
func (s *RecordingSender) LastQuestion() QuestionMsg {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Questions[len(s.Questions)-1]
}

// GameEndCount returns how many game-end notifications were received.
func (s *RecordingSender) GameEndCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.GameEnds)
}

// MatchFailedCount returns how many match failures were received.
func (s *RecordingSender) MatchFailedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.MatchFaileds)
}

// MatchFoundCount returns how many successful pairings were received.
func (s *RecordingSender) MatchFoundCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.MatchFounds)
}

// PositionBroadcastCount returns how many position broadcasts were received.
func (s *RecordingSender) PositionBroadcastCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Positions)
}
