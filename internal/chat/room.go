package chat

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrSelfPairing   = errors.New("chat: cannot pair a connection with itself")
	ErrAlreadyInRoom = errors.New("chat: connection already belongs to a room")
	ErrNotInRoom     = errors.New("chat: sender is not in an active room")
	ErrPartnerGone   = errors.New("chat: partner is no longer connected")
)

// Room is a live pairing of exactly two connections.
type Room struct {
	ID              string
	Participants    [2]string
	CommonInterests []string // fixed at match time
	CreatedAt       time.Time
}

// Partner returns the other participant, or "" if connID is not in the room.
func (r *Room) Partner(connID string) string {
	switch connID {
	case r.Participants[0]:
		return r.Participants[1]
	case r.Participants[1]:
		return r.Participants[0]
	}
	return ""
}

// IsParticipant checks if connID is one of the two participants.
func (r *Room) IsParticipant(connID string) bool {
	return connID == r.Participants[0] || connID == r.Participants[1]
}

// Manager owns the room table and the connection -> room side table. It is
// safe for concurrent use.
type Manager struct {
	mu     sync.RWMutex
	rooms  map[string]*Room  // room id -> room
	byConn map[string]string // connection id -> room id
}

// NewManager creates an empty room manager.
func NewManager() *Manager {
	return &Manager{
		rooms:  make(map[string]*Room),
		byConn: make(map[string]string),
	}
}

// Create allocates a room for a and b. Both join in the same step; a
// connection already in a room is refused.
func (m *Manager) Create(a, b string, common []string) (*Room, error) {
	if a == b {
		return nil, ErrSelfPairing
	}
	if common == nil {
		common = []string{}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byConn[a]; ok {
		return nil, ErrAlreadyInRoom
	}
	if _, ok := m.byConn[b]; ok {
		return nil, ErrAlreadyInRoom
	}

	room := &Room{
		ID:              uuid.New().String(),
		Participants:    [2]string{a, b},
		CommonInterests: common,
		CreatedAt:       time.Now(),
	}
	m.rooms[room.ID] = room
	m.byConn[a] = room.ID
	m.byConn[b] = room.ID
	return room, nil
}

// Get returns the room with the given id, or nil.
func (m *Manager) Get(roomID string) *Room {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rooms[roomID]
}

// RoomOf returns the room connID currently belongs to, or nil.
func (m *Manager) RoomOf(connID string) *Room {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byConn[connID]
	if !ok {
		return nil
	}
	return m.rooms[id]
}

// Teardown removes the room and clears both participants' references. The
// returned bool is false if the room was already gone.
func (m *Manager) Teardown(roomID, initiator string) (*Room, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	room, ok := m.rooms[roomID]
	if !ok {
		// Partial state: drop a dangling reference for the initiator.
		if id, ok := m.byConn[initiator]; ok && id == roomID {
			delete(m.byConn, initiator)
		}
		return nil, false
	}

	delete(m.rooms, roomID)
	for _, p := range room.Participants {
		if m.byConn[p] == roomID {
			delete(m.byConn, p)
		}
	}
	return room, true
}

// Count returns the number of live rooms.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms)
}
