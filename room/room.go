// room/room.go
package room

import (
	"errors"
	"sync"
	"time"

	"github.com/wfunc/piratepanic/models"
	"github.com/wfunc/piratepanic/network"
	"github.com/wfunc/piratepanic/session"
)

var (
	ErrRoomFull      = errors.New("match is full")
	ErrRoomNotFound  = errors.New("match not found")
	ErrNotInRoom     = errors.New("session is not in this match")
	ErrAlreadyInRoom = errors.New("session already joined a match")
)

// Room is one relay match. It keeps presences in join order and forwards
// match data between them without looking at it.
type Room struct {
	ID          string
	MaxPlayers  int
	CreatedAt   time.Time
	players     []*session.Session
	roster      []models.Presence // seated when the room first filled
	broadcaster Broadcaster
	playerMutex sync.RWMutex
}

func NewRoom(id string, maxPlayers int, broadcaster Broadcaster) *Room {
	return &Room{
		ID:          id,
		MaxPlayers:  maxPlayers,
		CreatedAt:   time.Now(),
		broadcaster: broadcaster,
	}
}

// AddPlayer adds s unless the room is full or s already sits in it.
func (r *Room) AddPlayer(s *session.Session) error {
	r.playerMutex.Lock()
	defer r.playerMutex.Unlock()

	for _, p := range r.players {
		if p.ID == s.ID {
			return ErrAlreadyInRoom
		}
	}
	if r.MaxPlayers > 0 && len(r.players) >= r.MaxPlayers {
		return ErrRoomFull
	}
	r.players = append(r.players, s)
	s.SetMatchID(r.ID)
	if r.roster == nil && len(r.players) == r.MaxPlayers {
		for _, p := range r.players {
			r.roster = append(r.roster, p.Presence())
		}
	}
	return nil
}

// Roster returns the presences seated when the room first filled. Later
// leaves do not change it.
func (r *Room) Roster() ([]models.Presence, bool) {
	r.playerMutex.RLock()
	defer r.playerMutex.RUnlock()
	if r.roster == nil {
		return nil, false
	}
	return append([]models.Presence(nil), r.roster...), true
}

func (r *Room) RemovePlayer(sessionID string) bool {
	r.playerMutex.Lock()
	defer r.playerMutex.Unlock()

	for i, p := range r.players {
		if p.ID == sessionID {
			p.SetMatchID("")
			r.players = append(r.players[:i], r.players[i+1:]...)
			return true
		}
	}
	return false
}

func (r *Room) HasPlayer(sessionID string) bool {
	r.playerMutex.RLock()
	defer r.playerMutex.RUnlock()
	for _, p := range r.players {
		if p.ID == sessionID {
			return true
		}
	}
	return false
}

// GetSessions returns a copy of the sessions in join order.
func (r *Room) GetSessions() []*session.Session {
	r.playerMutex.RLock()
	defer r.playerMutex.RUnlock()
	return append([]*session.Session(nil), r.players...)
}

func (r *Room) Presences() []models.Presence {
	sessions := r.GetSessions()
	presences := make([]models.Presence, 0, len(sessions))
	for _, s := range sessions {
		presences = append(presences, s.Presence())
	}
	return presences
}

func (r *Room) Empty() bool {
	r.playerMutex.RLock()
	defer r.playerMutex.RUnlock()
	return len(r.players) == 0
}

// Broadcast sends v to every player but exclude.
func (r *Room) Broadcast(msgID uint16, v any, exclude string) error {
	if r.broadcaster == nil {
		return nil
	}
	return r.broadcaster.BroadcastToRoom(r.ID, msgID, v, exclude)
}

// --- 房间管理器 ---

// Manager 管理所有房间
type Manager struct {
	rooms       map[string]*Room
	maxPlayers  int
	broadcaster Broadcaster
	mutex       sync.RWMutex
}

func NewRoomManager(maxPlayers int) *Manager {
	return &Manager{
		rooms:      make(map[string]*Room),
		maxPlayers: maxPlayers,
	}
}

// UseBroadcaster sets the broadcaster handed to rooms created afterwards.
func (m *Manager) UseBroadcaster(b Broadcaster) {
	m.mutex.Lock()
	m.broadcaster = b
	m.mutex.Unlock()
}

func (m *Manager) createLocked(id string) *Room {
	if room, exists := m.rooms[id]; exists {
		return room
	}
	room := NewRoom(id, m.maxPlayers, m.broadcaster)
	m.rooms[id] = room
	return room
}

func (m *Manager) GetRoom(id string) (*Room, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	room, exists := m.rooms[id]
	return room, exists
}

func (m *Manager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.rooms)
}

// Join puts s into the match, creating it on first join, and tells the other
// presences. The returned info lists every presence, s included.
func (m *Manager) Join(s *session.Session, matchID string) (*models.MatchInfo, error) {
	if current := s.MatchID(); current != "" {
		return nil, ErrAlreadyInRoom
	}
	m.mutex.Lock()
	room := m.createLocked(matchID)
	err := room.AddPlayer(s)
	m.mutex.Unlock()
	if err != nil {
		return nil, err
	}

	room.Broadcast(network.MsgTypeMatchPresence, models.PresenceEvent{
		MatchID: matchID,
		Joins:   []models.Presence{s.Presence()},
	}, s.ID)

	return &models.MatchInfo{
		MatchID:   matchID,
		Self:      s.Presence(),
		Presences: room.Presences(),
	}, nil
}

// Leave removes s from its match, tells the rest and drops the match once
// nobody is left.
func (m *Manager) Leave(s *session.Session) error {
	matchID := s.MatchID()
	if matchID == "" {
		return ErrNotInRoom
	}
	room, exists := m.GetRoom(matchID)
	if !exists {
		s.SetMatchID("")
		return ErrRoomNotFound
	}
	if !room.RemovePlayer(s.ID) {
		return ErrNotInRoom
	}

	room.Broadcast(network.MsgTypeMatchPresence, models.PresenceEvent{
		MatchID: matchID,
		Leaves:  []models.Presence{s.Presence()},
	}, s.ID)

	m.mutex.Lock()
	if room.Empty() {
		delete(m.rooms, matchID)
	}
	m.mutex.Unlock()
	return nil
}

// Relay forwards opaque match data from s to the other presences.
func (m *Manager) Relay(s *session.Session, msg network.MatchDataSend) error {
	room, exists := m.GetRoom(msg.MatchID)
	if !exists {
		return ErrRoomNotFound
	}
	if !room.HasPlayer(s.ID) {
		return ErrNotInRoom
	}
	return room.Broadcast(network.MsgTypeMatchData, models.MatchData{
		MatchID: msg.MatchID,
		OpCode:  msg.OpCode,
		Data:    msg.Data,
		Sender:  s.Presence(),
	}, s.ID)
}

// Participants lists who played matchID: the roster captured when the match
// filled. A match that never filled has no participants.
func (m *Manager) Participants(matchID string) ([]models.Presence, bool) {
	room, exists := m.GetRoom(matchID)
	if !exists {
		return nil, false
	}
	return room.Roster()
}
