package room

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cory-johannsen/quizrace/internal/game/player"
)

// ErrRoomNotFound is returned when a room lookup yields no result.
var ErrRoomNotFound = errors.New("room not found")

// ErrRoomFull is returned when joining a room at capacity.
var ErrRoomFull = errors.New("room is full")

// ErrAlreadyInRoom is returned when a player tries to create or join a room
// while already a member of one.
var ErrAlreadyInRoom = errors.New("player already in a room")

// ErrNotInRoom is returned when a player is not a member of the given room.
var ErrNotInRoom = errors.New("player not in room")

// ErrNotHost is returned when a non-host attempts a host-only operation.
var ErrNotHost = errors.New("only the host may start the game")

// ErrNotAllReady is returned when a start is requested before every guest
// has flagged ready.
var ErrNotAllReady = errors.New("not all players are ready")

// ErrHostAlwaysReady is returned when the host tries to toggle readiness.
var ErrHostAlwaysReady = errors.New("host is implicitly ready")

// Registry owns all lobbies. All methods are safe for concurrent use.
type Registry struct {
	mu       sync.Mutex
	rooms    map[string]*room // roomID -> room
	byMember map[string]string // uid -> roomID
	now      func() time.Time
	newID    func() string
}

// NewRegistry creates an empty room Registry.
func NewRegistry() *Registry {
	return &Registry{
		rooms:    make(map[string]*room),
		byMember: make(map[string]string),
		now:      time.Now,
		newID:    func() string { return uuid.NewString() },
	}
}

// CreateRoom creates a room with the given host as its first member.
//
// Precondition: host must be non-nil; maxPlayers must be >= 2.
// Postcondition: Returns the new room ID, or an error if the host is already
// in a room or maxPlayers is invalid. No state changes on error.
func (g *Registry) CreateRoom(host *player.Handle, name, subject, difficulty string, maxPlayers int) (string, error) {
	if maxPlayers < 2 {
		return "", fmt.Errorf("max players must be >= 2, got %d", maxPlayers)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, taken := g.byMember[host.UID()]; taken {
		return "", ErrAlreadyInRoom
	}

	r := &room{
		id:         g.newID(),
		name:       name,
		hostUID:    host.UID(),
		subject:    subject,
		difficulty: difficulty,
		maxPlayers: maxPlayers,
		members:    []*member{{handle: host, ready: NotReady, joinedAt: g.now()}},
	}
	g.rooms[r.id] = r
	g.byMember[host.UID()] = r.id
	return r.id, nil
}

// JoinRoom adds the player to the room as a not-ready guest.
//
// Postcondition: Returns nil on success. On ErrRoomNotFound, ErrRoomFull, or
// ErrAlreadyInRoom nothing is modified.
func (g *Registry) JoinRoom(h *player.Handle, roomID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	r, ok := g.rooms[roomID]
	if !ok {
		return ErrRoomNotFound
	}
	if _, taken := g.byMember[h.UID()]; taken {
		return ErrAlreadyInRoom
	}
	if len(r.members) >= r.maxPlayers {
		return ErrRoomFull
	}

	r.members = append(r.members, &member{handle: h, ready: NotReady, joinedAt: g.now()})
	g.byMember[h.UID()] = roomID
	return nil
}

// LeaveRoom removes the player from the room. If the host leaves, the next
// remaining member in join order becomes host. An empty room is destroyed.
//
// Postcondition: Returns ErrRoomNotFound or ErrNotInRoom without side effects
// on failure.
func (g *Registry) LeaveRoom(uid, roomID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	r, ok := g.rooms[roomID]
	if !ok {
		return ErrRoomNotFound
	}
	_, idx := r.memberByUID(uid)
	if idx < 0 {
		return ErrNotInRoom
	}

	r.members = append(r.members[:idx], r.members[idx+1:]...)
	delete(g.byMember, uid)

	if len(r.members) == 0 {
		delete(g.rooms, roomID)
		return nil
	}
	if r.hostUID == uid {
		r.hostUID = r.members[0].handle.UID()
	}
	return nil
}

// SetReady sets a guest's readiness flag.
//
// Postcondition: Returns ErrHostAlwaysReady if uid is the host; otherwise the
// guest's flag is updated.
func (g *Registry) SetReady(uid, roomID string, state ReadyState) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	r, ok := g.rooms[roomID]
	if !ok {
		return ErrRoomNotFound
	}
	m, idx := r.memberByUID(uid)
	if idx < 0 {
		return ErrNotInRoom
	}
	if r.hostUID == uid {
		return ErrHostAlwaysReady
	}
	m.ready = state
	return nil
}

// CanStart reports whether uid may start the game in roomID: only the host
// may start, and every guest must be Ready. The host is exempt from the
// readiness gate.
func (g *Registry) CanStart(uid, roomID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	r, ok := g.rooms[roomID]
	if !ok {
		return ErrRoomNotFound
	}
	if r.hostUID != uid {
		return ErrNotHost
	}
	for _, m := range r.members {
		if m.handle.UID() == r.hostUID {
			continue
		}
		if m.ready != Ready {
			return ErrNotAllReady
		}
	}
	return nil
}

// GetRoom returns a snapshot of the room.
//
// Postcondition: Returns (snapshot, true) if found, or (zero, false) otherwise.
func (g *Registry) GetRoom(roomID string) (Snapshot, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.rooms[roomID]
	if !ok {
		return Snapshot{}, false
	}
	return r.snapshot(), true
}

// GetRoomByMember returns a snapshot of the room the player occupies.
//
// Postcondition: Returns (snapshot, true) if the player is in a room.
func (g *Registry) GetRoomByMember(uid string) (Snapshot, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	roomID, ok := g.byMember[uid]
	if !ok {
		return Snapshot{}, false
	}
	r, ok := g.rooms[roomID]
	if !ok {
		return Snapshot{}, false
	}
	return r.snapshot(), true
}

// Members returns the room's member handles in join order.
//
// Postcondition: Returns the handles, or ErrRoomNotFound.
func (g *Registry) Members(roomID string) ([]*player.Handle, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.rooms[roomID]
	if !ok {
		return nil, ErrRoomNotFound
	}
	handles := make([]*player.Handle, 0, len(r.members))
	for _, m := range r.members {
		handles = append(handles, m.handle)
	}
	return handles, nil
}

// RoomCount returns the number of live rooms.
func (g *Registry) RoomCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.rooms)
}
