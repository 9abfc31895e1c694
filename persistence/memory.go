package persistence

import (
	"context"
	"sync"
	"time"

	"github.com/wfunc/piratepanic/models"
)

// Memory keeps match results in process. Used when no database is configured
// and in tests.
type Memory struct {
	results map[string]models.MatchResult
	nextID  uint
	mutex   sync.RWMutex
}

func NewMemory() *Memory {
	return &Memory{results: make(map[string]models.MatchResult)}
}

func (m *Memory) SaveMatchResult(_ context.Context, result *models.MatchResult) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if _, exists := m.results[result.MatchID]; exists {
		return ErrDuplicateResult
	}
	m.nextID++
	result.ID = m.nextID
	result.CreatedAt = time.Now()
	result.UpdatedAt = result.CreatedAt
	m.results[result.MatchID] = *result
	return nil
}

func (m *Memory) LoadMatchResult(_ context.Context, matchID string) (*models.MatchResult, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	result, exists := m.results[matchID]
	if !exists {
		return nil, ErrRecordNotFound
	}
	return &result, nil
}

func (m *Memory) Close() error {
	return nil
}
