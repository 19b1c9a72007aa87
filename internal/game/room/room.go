// Package room provides pre-game lobby management: membership, host
// handoff, and readiness tracking.
package room

import (
	"time"

	"github.com/cory-johannsen/quizrace/internal/game/player"
)

// ReadyState is a guest's readiness in the lobby. An explicit enum rather
// than a bool so a third state (e.g. disconnected-while-in-lobby) can be
// added without changing every call site.
type ReadyState int

const (
	// NotReady is the default state for a guest on join.
	NotReady ReadyState = iota
	// Ready means the guest has confirmed they are ready to start.
	Ready
)

// String returns the readable name of the state.
func (s ReadyState) String() string {
	switch s {
	case NotReady:
		return "not_ready"
	case Ready:
		return "ready"
	default:
		return "unknown"
	}
}

// member is one lobby occupant. The host's Ready value is ignored: the host
// is implicitly always ready.
type member struct {
	handle   *player.Handle
	ready    ReadyState
	joinedAt time.Time
}

// room is the internal lobby state. All access goes through the Registry's
// mutex; rooms are never handed out directly.
type room struct {
	id         string
	name       string
	hostUID    string
	subject    string
	difficulty string
	maxPlayers int
	// members is kept in join order; host handoff picks the next entry.
	members []*member
}

func (r *room) memberByUID(uid string) (*member, int) {
	for i, m := range r.members {
		if m.handle.UID() == uid {
			return m, i
		}
	}
	return nil, -1
}

// MemberInfo is the public view of one lobby occupant.
type MemberInfo struct {
	UID   string
	Name  string
	Ready ReadyState
	Host  bool
}

// Snapshot is a point-in-time copy of a room's state.
type Snapshot struct {
	ID         string
	Name       string
	HostUID    string
	Subject    string
	Difficulty string
	MaxPlayers int
	Members    []MemberInfo
}

func (r *room) snapshot() Snapshot {
	s := Snapshot{
		ID:         r.id,
		Name:       r.name,
		HostUID:    r.hostUID,
		Subject:    r.subject,
		Difficulty: r.difficulty,
		MaxPlayers: r.maxPlayers,
		Members:    make([]MemberInfo, 0, len(r.members)),
	}
	for _, m := range r.members {
		info := MemberInfo{
			UID:   m.handle.UID(),
			Name:  m.handle.Name(),
			Ready: m.ready,
			Host:  m.handle.UID() == r.hostUID,
		}
		if info.Host {
			// The host never has to flag readiness.
			info.Ready = Ready
		}
		s.Members = append(s.Members, info)
	}
	return s
}
