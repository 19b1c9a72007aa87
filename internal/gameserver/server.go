// Package gameserver wires the game components behind a single inbound
// event surface consumed by the transport layer.
package gameserver

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/cory-johannsen/quizrace/internal/game/match"
	"github.com/cory-johannsen/quizrace/internal/game/player"
	"github.com/cory-johannsen/quizrace/internal/game/room"
	"github.com/cory-johannsen/quizrace/internal/game/session"
)

// ErrUnknownPlayer is returned for events from a uid with no live connection.
var ErrUnknownPlayer = errors.New("player not connected")

// Server is the inbound dispatch point for player events. One Server serves
// all connected players; the transport layer calls it from one goroutine per
// player.
type Server struct {
	logger  *zap.Logger
	rooms   *room.Registry
	queue   *match.Queue
	manager *GameManager
	engine  *session.Engine

	mu     sync.Mutex
	online map[string]*player.Handle
}

// NewServer creates a Server over the given components.
func NewServer(
	logger *zap.Logger,
	rooms *room.Registry,
	queue *match.Queue,
	manager *GameManager,
	engine *session.Engine,
) *Server {
	return &Server{
		logger:  logger,
		rooms:   rooms,
		queue:   queue,
		manager: manager,
		engine:  engine,
		online:  make(map[string]*player.Handle),
	}
}

// Connect registers a player connection and returns its handle. A reconnect
// under the same uid replaces the previous handle.
func (s *Server) Connect(uid, name string, totalScore int, sender player.Sender) *player.Handle {
	h := player.NewHandle(uid, name, totalScore, sender)
	s.mu.Lock()
	s.online[uid] = h
	s.mu.Unlock()
	s.logger.Info("player connected", zap.String("uid", uid), zap.String("name", name))
	return h
}

// Disconnect tears down everything the player holds: the pending match
// request, the room membership, and the active session slot.
func (s *Server) Disconnect(uid string) {
	s.mu.Lock()
	_, known := s.online[uid]
	delete(s.online, uid)
	s.mu.Unlock()
	if !known {
		return
	}

	s.queue.HandleDisconnect(uid)
	s.manager.HandlePlayerDisconnect(uid)
	if snap, ok := s.rooms.GetRoomByMember(uid); ok {
		if err := s.rooms.LeaveRoom(uid, snap.ID); err != nil {
			s.logger.Warn("room cleanup on disconnect failed",
				zap.String("uid", uid),
				zap.String("room", snap.ID),
				zap.Error(err),
			)
		}
	}
	s.logger.Info("player disconnected", zap.String("uid", uid))
}

// FindMatch queues the player for matchmaking.
func (s *Server) FindMatch(ctx context.Context, uid, subject, difficulty string) error {
	h, err := s.handle(uid)
	if err != nil {
		return err
	}
	return s.queue.FindMatch(ctx, h, subject, difficulty)
}

// CancelFindMatch withdraws the player's pending match request.
func (s *Server) CancelFindMatch(uid string) error {
	if _, err := s.handle(uid); err != nil {
		return err
	}
	return s.queue.CancelFindMatch(uid)
}

// CreateRoom opens a lobby with the player as host.
func (s *Server) CreateRoom(uid, name, subject, difficulty string, maxPlayers int) (string, error) {
	h, err := s.handle(uid)
	if err != nil {
		return "", err
	}
	return s.rooms.CreateRoom(h, name, subject, difficulty, maxPlayers)
}

// JoinRoom adds the player to an existing lobby.
func (s *Server) JoinRoom(uid, roomID string) error {
	h, err := s.handle(uid)
	if err != nil {
		return err
	}
	return s.rooms.JoinRoom(h, roomID)
}

// LeaveRoom removes the player from the lobby.
func (s *Server) LeaveRoom(uid, roomID string) error {
	if _, err := s.handle(uid); err != nil {
		return err
	}
	return s.rooms.LeaveRoom(uid, roomID)
}

// SetReady flags the player's readiness in the lobby.
func (s *Server) SetReady(uid, roomID string, ready bool) error {
	if _, err := s.handle(uid); err != nil {
		return err
	}
	state := room.NotReady
	if ready {
		state = room.Ready
	}
	return s.rooms.SetReady(uid, roomID, state)
}

// StartGame starts the room's game on behalf of the host. The readiness gate
// is checked first; then the lobby's member list becomes the session's fixed
// participant set.
func (s *Server) StartGame(ctx context.Context, uid, roomID string) error {
	if _, err := s.handle(uid); err != nil {
		return err
	}
	if err := s.rooms.CanStart(uid, roomID); err != nil {
		return err
	}
	snap, ok := s.rooms.GetRoom(roomID)
	if !ok {
		return room.ErrRoomNotFound
	}
	members, err := s.rooms.Members(roomID)
	if err != nil {
		return err
	}
	return s.manager.StartGame(ctx, roomID, snap.Subject, snap.Difficulty, members)
}

// SubmitAnswer forwards a submission to the room's active session.
func (s *Server) SubmitAnswer(uid, roomID string, a session.Answer) error {
	if _, err := s.handle(uid); err != nil {
		return err
	}
	return s.manager.SubmitAnswer(roomID, uid, a)
}

// OnlineCount returns the number of connected players.
func (s *Server) OnlineCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.online)
}

func (s *Server) handle(uid string) (*player.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.online[uid]
	if !ok {
		return nil, ErrUnknownPlayer
	}
	return h, nil
}
