// Package matchmaker pairs queued sessions into relay matches.
package matchmaker

import (
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/wfunc/piratepanic/session"
)

var ErrAlreadyQueued = errors.New("session already has a matchmaker ticket")

type Ticket struct {
	ID      string
	Session *session.Session
}

// Matched is a full group of tickets and the match id they share.
type Matched struct {
	MatchID string
	Tickets []Ticket
}

type Matchmaker struct {
	size  int
	queue []Ticket
	mutex sync.Mutex
}

func New(size int) *Matchmaker {
	if size < 1 {
		size = 2
	}
	return &Matchmaker{size: size}
}

// Add queues s. When enough tickets from distinct users are waiting they are
// removed from the queue and returned as a match, in queue order.
func (m *Matchmaker) Add(s *session.Session) (string, *Matched, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	for _, t := range m.queue {
		if t.Session.ID == s.ID {
			return "", nil, ErrAlreadyQueued
		}
	}
	ticket := Ticket{ID: uuid.NewString(), Session: s}
	m.queue = append(m.queue, ticket)
	return ticket.ID, m.takeGroup(), nil
}

func (m *Matchmaker) takeGroup() *Matched {
	var picked []int
	users := make(map[string]bool)
	for i, t := range m.queue {
		if users[t.Session.UserID] {
			continue
		}
		users[t.Session.UserID] = true
		picked = append(picked, i)
		if len(picked) == m.size {
			break
		}
	}
	if len(picked) < m.size {
		return nil
	}

	matched := &Matched{MatchID: uuid.NewString()}
	rest := m.queue[:0:0]
	next := 0
	for i, t := range m.queue {
		if next < len(picked) && picked[next] == i {
			matched.Tickets = append(matched.Tickets, t)
			next++
			continue
		}
		rest = append(rest, t)
	}
	m.queue = rest
	return matched
}

// Remove drops every ticket of the session.
func (m *Matchmaker) Remove(sessionID string) bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	removed := false
	rest := m.queue[:0]
	for _, t := range m.queue {
		if t.Session.ID == sessionID {
			removed = true
			continue
		}
		rest = append(rest, t)
	}
	m.queue = rest
	return removed
}

func (m *Matchmaker) Len() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return len(m.queue)
}
