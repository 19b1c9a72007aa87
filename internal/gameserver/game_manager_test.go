package gameserver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cory-johannsen/quizrace/internal/game/clock"
	"github.com/cory-johannsen/quizrace/internal/game/player"
	"github.com/cory-johannsen/quizrace/internal/game/player/playertest"
	"github.com/cory-johannsen/quizrace/internal/game/question"
	"github.com/cory-johannsen/quizrace/internal/game/session"
)

type sourceCall struct {
	subject    string
	difficulty string
	count      int
}

// fakeSource serves canned question banks keyed by subject/difficulty and
// records every load.
type fakeSource struct {
	mu    sync.Mutex
	banks map[string][]question.Question
	calls []sourceCall
	err   error
}

func bankKey(subject, difficulty string) string {
	return subject + "/" + difficulty
}

func (f *fakeSource) LoadQuestions(_ context.Context, subject, difficulty string, count int) ([]question.Question, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, sourceCall{subject: subject, difficulty: difficulty, count: count})
	if f.err != nil {
		return nil, f.err
	}
	qs := f.banks[bankKey(subject, difficulty)]
	if len(qs) > count {
		qs = qs[:count]
	}
	return qs, nil
}

func (f *fakeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type statCall struct {
	uid     string
	subject string
	delta   int
	winner  bool
}

// fakeStore records persistence calls, optionally failing for one uid.
type fakeStore struct {
	mu      sync.Mutex
	results []player.GameResult
	stats   []statCall
	failUID string
}

func (f *fakeStore) SaveResult(_ context.Context, r player.GameResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r.UID == f.failUID {
		return errors.New("database unavailable")
	}
	f.results = append(f.results, r)
	return nil
}

func (f *fakeStore) SaveStats(_ context.Context, uid, subject string, delta int, winner bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if uid == f.failUID {
		return errors.New("database unavailable")
	}
	f.stats = append(f.stats, statCall{uid: uid, subject: subject, delta: delta, winner: winner})
	return nil
}

func (f *fakeStore) resultFor(uid string) (player.GameResult, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.results {
		if r.UID == uid {
			return r, true
		}
	}
	return player.GameResult{}, false
}

// fakeScores records AddScore deltas per uid.
type fakeScores struct {
	mu     sync.Mutex
	totals map[string]int
}

func (f *fakeScores) AddScore(_ context.Context, uid string, delta int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.totals == nil {
		f.totals = make(map[string]int)
	}
	f.totals[uid] += delta
	return nil
}

func (f *fakeScores) total(uid string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.totals[uid]
}

func managerQuestions(n int) []question.Question {
	qs := make([]question.Question, n)
	for i := range qs {
		qs[i] = question.Question{
			ID:         int64(i + 1),
			Subject:    "math",
			Difficulty: "easy",
			Prompt:     fmt.Sprintf("question %d", i+1),
			Options:    [question.OptionCount]string{"a", "b", "c", "d"},
			Correct:    0,
			Weight:     1,
			TimeLimit:  30 * time.Second,
		}
	}
	return qs
}

func managerHandles(n int) ([]*player.Handle, []*playertest.RecordingSender) {
	handles := make([]*player.Handle, n)
	senders := make([]*playertest.RecordingSender, n)
	for i := range handles {
		senders[i] = playertest.NewRecordingSender()
		handles[i] = player.NewHandle(fmt.Sprintf("uid-%d", i+1), fmt.Sprintf("player-%d", i+1), 0, senders[i])
	}
	return handles, senders
}

type managerFixture struct {
	manager *GameManager
	engine  *session.Engine
	source  *fakeSource
	store   *fakeStore
	scores  *fakeScores
}

func newManagerFixture(t *testing.T) *managerFixture {
	t.Helper()
	cfg := session.Config{
		Countdown:       10 * time.Millisecond,
		TimeLimit:       time.Minute,
		BasePoints:      100,
		SpeedBonusMax:   50,
		NitroStreak:     3,
		PositionDivisor: 10,
	}
	engine := session.NewEngine(cfg, clock.NewTickService(time.Hour), zap.NewNop())
	source := &fakeSource{banks: map[string][]question.Question{
		bankKey("math", "easy"): managerQuestions(3),
		bankKey("math", ""):     managerQuestions(3),
	}}
	store := &fakeStore{}
	scores := &fakeScores{}
	return &managerFixture{
		manager: NewGameManager(3, source, store, scores, engine, zap.NewNop()),
		engine:  engine,
		source:  source,
		store:   store,
		scores:  scores,
	}
}

// playOut answers every question correctly for each handle in order and
// waits for persistence to complete.
func playOut(t *testing.T, fx *managerFixture, roomID string, handles []*player.Handle, answer func(uid string, idx int) session.Answer) {
	t.Helper()
	s, ok := fx.engine.Get(roomID)
	require.True(t, ok)
	require.Eventually(t, func() bool {
		return s.State() == session.StateInProgress
	}, time.Second, 2*time.Millisecond)

	for _, h := range handles {
		for i := 0; i < 3; i++ {
			require.NoError(t, fx.manager.SubmitAnswer(roomID, h.UID(), answer(h.UID(), i)))
		}
	}
	require.Eventually(t, func() bool {
		return fx.engine.Count() == 0
	}, time.Second, 2*time.Millisecond)
}

func TestStartGameRunsCountdown(t *testing.T) {
	fx := newManagerFixture(t)
	handles, senders := managerHandles(2)

	require.NoError(t, fx.manager.StartGame(context.Background(), "room-1", "math", "easy", handles))

	s, ok := fx.engine.Get("room-1")
	require.True(t, ok)
	t.Cleanup(s.Cleanup)

	require.Eventually(t, func() bool {
		return s.State() == session.StateInProgress
	}, time.Second, 2*time.Millisecond)
	for i, sender := range senders {
		assert.Equal(t, 1, sender.QuestionCount(), "participant %d", i)
	}
}

func TestStartGameValidation(t *testing.T) {
	fx := newManagerFixture(t)
	handles, _ := managerHandles(2)
	ctx := context.Background()

	err := fx.manager.StartGame(ctx, "room-1", "math", "easy", handles[:1])
	assert.ErrorIs(t, err, session.ErrTooFewParticipants)

	require.NoError(t, fx.manager.StartGame(ctx, "room-1", "math", "easy", handles))
	s, _ := fx.engine.Get("room-1")
	t.Cleanup(s.Cleanup)

	err = fx.manager.StartGame(ctx, "room-1", "math", "easy", handles)
	assert.ErrorIs(t, err, ErrGameInProgress)
}

func TestStartGameSourceFailure(t *testing.T) {
	fx := newManagerFixture(t)
	fx.source.err = errors.New("connection refused")
	handles, _ := managerHandles(2)

	err := fx.manager.StartGame(context.Background(), "room-1", "math", "easy", handles)
	require.Error(t, err)
	assert.Equal(t, 0, fx.engine.Count())
}

func TestStartGameRelaxesDifficulty(t *testing.T) {
	fx := newManagerFixture(t)
	handles, _ := managerHandles(2)

	// Nothing at math/hard, but math across all difficulties works.
	require.NoError(t, fx.manager.StartGame(context.Background(), "room-1", "math", "hard", handles))
	s, ok := fx.engine.Get("room-1")
	require.True(t, ok)
	t.Cleanup(s.Cleanup)

	require.Equal(t, 2, fx.source.callCount())
	assert.Equal(t, "hard", fx.source.calls[0].difficulty)
	assert.Equal(t, "", fx.source.calls[1].difficulty)
}

func TestStartGameNoQuestionsAnywhere(t *testing.T) {
	fx := newManagerFixture(t)
	handles, _ := managerHandles(2)

	err := fx.manager.StartGame(context.Background(), "room-1", "science", "easy", handles)
	assert.ErrorIs(t, err, ErrNoQuestionsAvailable)
	assert.Equal(t, 0, fx.engine.Count())
}

func TestFullGamePersistsResultsAndStats(t *testing.T) {
	fx := newManagerFixture(t)
	handles, _ := managerHandles(2)
	require.NoError(t, fx.manager.StartGame(context.Background(), "room-1", "math", "easy", handles))

	// Every bank question has correct option 0; the second player always
	// misses.
	playOut(t, fx, "room-1", handles, func(uid string, idx int) session.Answer {
		option := 0
		if uid == handles[1].UID() {
			option = 1
		}
		return session.Answer{QuestionIndex: idx, Option: option}
	})

	winner, ok := fx.store.resultFor(handles[0].UID())
	require.True(t, ok)
	assert.True(t, winner.Winner)
	assert.Equal(t, 1, winner.Rank)
	assert.Equal(t, "room-1", winner.RoomID)
	assert.Equal(t, "math", winner.Subject)
	assert.Equal(t, "easy", winner.Difficulty)
	assert.Equal(t, 3, winner.QuestionsAnswered)
	assert.Positive(t, winner.Score)

	loser, ok := fx.store.resultFor(handles[1].UID())
	require.True(t, ok)
	assert.False(t, loser.Winner)
	assert.Equal(t, 2, loser.Rank)
	assert.Equal(t, 0, loser.Score)

	// The cache only accumulates scored runs.
	assert.Equal(t, winner.Score, fx.scores.total(handles[0].UID()))
	assert.Equal(t, 0, fx.scores.total(handles[1].UID()))

	require.Len(t, fx.store.stats, 2)
}

func TestPersistenceFailureIsIsolated(t *testing.T) {
	fx := newManagerFixture(t)
	handles, _ := managerHandles(2)
	fx.store.failUID = handles[0].UID()
	require.NoError(t, fx.manager.StartGame(context.Background(), "room-1", "math", "easy", handles))

	playOut(t, fx, "room-1", handles, func(_ string, idx int) session.Answer {
		return session.Answer{QuestionIndex: idx, Option: 0}
	})

	_, ok := fx.store.resultFor(handles[0].UID())
	assert.False(t, ok)
	_, ok = fx.store.resultFor(handles[1].UID())
	assert.True(t, ok, "the other participant's writes still land")
	assert.Equal(t, 0, fx.engine.Count(), "session released despite the failure")
}

func TestDisconnectEndsAndPersistsRemainder(t *testing.T) {
	fx := newManagerFixture(t)
	handles, _ := managerHandles(2)
	require.NoError(t, fx.manager.StartGame(context.Background(), "room-1", "math", "easy", handles))

	s, ok := fx.engine.Get("room-1")
	require.True(t, ok)
	require.Eventually(t, func() bool {
		return s.State() == session.StateInProgress
	}, time.Second, 2*time.Millisecond)

	require.NoError(t, fx.manager.SubmitAnswer("room-1", handles[0].UID(), session.Answer{QuestionIndex: 0, Option: 0}))
	fx.manager.HandlePlayerDisconnect(handles[1].UID())

	require.Eventually(t, func() bool {
		return fx.engine.Count() == 0
	}, time.Second, 2*time.Millisecond)

	survivor, ok := fx.store.resultFor(handles[0].UID())
	require.True(t, ok)
	assert.Positive(t, survivor.Score)
	assert.Equal(t, 1, survivor.QuestionsAnswered)

	dropped, ok := fx.store.resultFor(handles[1].UID())
	require.True(t, ok)
	assert.Equal(t, 0, dropped.Score)
}

func TestSubmitAnswerUnknownRoom(t *testing.T) {
	fx := newManagerFixture(t)
	err := fx.manager.SubmitAnswer("room-missing", "uid-1", session.Answer{})
	assert.ErrorIs(t, err, ErrGameNotFound)
}
