// session/session.go
package session

import (
	"sync"
	"time"

	"github.com/wfunc/piratepanic/models"
	"github.com/wfunc/piratepanic/network"
)

// Session is one authenticated relay socket.
type Session struct {
	ID        string
	Conn      network.Connection
	UserID    string
	Username  string
	CreatedAt time.Time

	matchID string
	mutex   sync.RWMutex
}

func NewSession(id string, conn network.Connection, userID, username string) *Session {
	return &Session{
		ID:        id,
		Conn:      conn,
		UserID:    userID,
		Username:  username,
		CreatedAt: time.Now(),
	}
}

func (s *Session) Presence() models.Presence {
	return models.Presence{UserID: s.UserID, SessionID: s.ID, Username: s.Username}
}

func (s *Session) Send(msgID uint16, v any) error {
	return s.Conn.SendJSON(msgID, v)
}

// MatchID is the relay match the session currently sits in, or "".
func (s *Session) MatchID() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.matchID
}

func (s *Session) SetMatchID(id string) {
	s.mutex.Lock()
	s.matchID = id
	s.mutex.Unlock()
}

func (s *Session) Close() error {
	return s.Conn.Close()
}

// Session管理器
type Manager struct {
	sessions map[string]*Session
	mutex    sync.RWMutex
}

func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
	}
}

func (m *Manager) Add(session *Session) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.sessions[session.ID] = session
}

func (m *Manager) Remove(sessionID string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.sessions, sessionID)
}

func (m *Manager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.sessions)
}
