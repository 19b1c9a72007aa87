package session

import (
	"errors"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/quizrace/internal/game/clock"
	"github.com/cory-johannsen/quizrace/internal/game/player"
	"github.com/cory-johannsen/quizrace/internal/game/question"
)

// ErrSessionExists is returned when a session is already active for the room.
var ErrSessionExists = errors.New("session already exists for room")

// ErrTooFewParticipants is returned when a session is created with fewer
// than two participants.
var ErrTooFewParticipants = errors.New("session needs at least two participants")

// ErrNoQuestions is returned when a session is created with an empty
// question list.
var ErrNoQuestions = errors.New("session needs at least one question")

// Engine owns the active sessions and registers each one's position tick.
// All methods are safe for concurrent use.
type Engine struct {
	cfg    Config
	ticks  *clock.TickService
	logger *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*Session // roomID -> session
	rng      *rand.Rand
	rngMu    sync.Mutex
}

// NewEngine creates an Engine.
//
// Precondition: ticks and logger must be non-nil.
func NewEngine(cfg Config, ticks *clock.TickService, logger *zap.Logger) *Engine {
	return &Engine{
		cfg:      cfg,
		ticks:    ticks,
		logger:   logger,
		sessions: make(map[string]*Session),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Create builds and registers a session for the room. The question list is
// shuffled once; all participants index the same shuffled sequence. onEnd
// receives the end reason exactly once when the session reaches ENDING.
//
// Postcondition: Returns the session in StateCreated, or ErrSessionExists /
// ErrTooFewParticipants / ErrNoQuestions without side effects.
func (e *Engine) Create(
	roomID, subject, difficulty string,
	qs []question.Question,
	participants []*player.Handle,
	onEnd func(reason string),
) (*Session, error) {
	if len(participants) < 2 {
		return nil, ErrTooFewParticipants
	}
	if len(qs) == 0 {
		return nil, ErrNoQuestions
	}

	e.rngMu.Lock()
	shuffled := question.Shuffle(qs, e.rng)
	e.rngMu.Unlock()

	s := &Session{
		roomID:       roomID,
		subject:      subject,
		difficulty:   difficulty,
		questions:    shuffled,
		cfg:          e.cfg,
		logger:       e.logger,
		onEnd:        onEnd,
		now:          time.Now,
		participants: participants,
		state:        StateCreated,
		players:      make(map[string]*playerState, len(participants)),
	}
	for _, h := range participants {
		s.players[h.UID()] = &playerState{uid: h.UID(), active: true}
	}

	e.mu.Lock()
	if _, exists := e.sessions[roomID]; exists {
		e.mu.Unlock()
		return nil, ErrSessionExists
	}
	e.sessions[roomID] = s
	e.mu.Unlock()

	e.ticks.Register(tickID(roomID), s.Tick)

	e.logger.Info("session created",
		zap.String("room", roomID),
		zap.String("subject", subject),
		zap.String("difficulty", difficulty),
		zap.Int("questions", len(shuffled)),
		zap.Int("participants", len(participants)),
	)
	return s, nil
}

// Get returns the active session for the room.
//
// Postcondition: Returns (session, true) if found, or (nil, false) otherwise.
func (e *Engine) Get(roomID string) (*Session, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s, ok := e.sessions[roomID]
	return s, ok
}

// SessionFor returns the active session containing the given player.
//
// Postcondition: Returns (session, true) if found, or (nil, false) otherwise.
func (e *Engine) SessionFor(uid string) (*Session, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, s := range e.sessions {
		if _, ok := s.players[uid]; ok {
			return s, true
		}
	}
	return nil, false
}

// Remove unregisters the session's tick and drops it from the active set.
func (e *Engine) Remove(roomID string) {
	e.ticks.Unregister(tickID(roomID))
	e.mu.Lock()
	delete(e.sessions, roomID)
	e.mu.Unlock()
}

// RoomIDs returns the room IDs of all active sessions.
func (e *Engine) RoomIDs() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ids := make([]string, 0, len(e.sessions))
	for roomID := range e.sessions {
		ids = append(ids, roomID)
	}
	return ids
}

// Count returns the number of active sessions.
func (e *Engine) Count() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.sessions)
}

func tickID(roomID string) string {
	return "session:" + roomID
}
