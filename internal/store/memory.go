package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/alphafinance/sim-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*model.Session // userID → session
	ledger   map[string][]model.Trade  // sessionID → trades, oldest first
	trades   int64
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*model.Session),
		ledger:   make(map[string][]model.Trade),
	}
}

func (s *MemoryStore) CreateSession(_ context.Context, sess *model.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sess.UserID]; ok {
		return fmt.Errorf("%w: user %s", ErrSessionExists, sess.UserID)
	}
	// Store a copy to avoid external mutation.
	s.sessions[sess.UserID] = sess.Clone()
	return nil
}

func (s *MemoryStore) ReplaceSession(_ context.Context, sess *model.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[sess.UserID] = sess.Clone()
	return nil
}

func (s *MemoryStore) GetSession(_ context.Context, userID string) (*model.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[userID]
	if !ok {
		return nil, fmt.Errorf("%w: user %s", ErrSessionNotFound, userID)
	}
	return sess.Clone(), nil
}

func (s *MemoryStore) SavePrices(_ context.Context, userID string, universe []model.Symbol, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[userID]
	if !ok {
		return fmt.Errorf("%w: user %s", ErrSessionNotFound, userID)
	}
	sess.Universe = append([]model.Symbol(nil), universe...)
	sess.UpdatedAt = at
	return nil
}

func (s *MemoryStore) CommitTrade(_ context.Context, sess *model.Session, t *model.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.sessions[sess.UserID]
	if !ok || cur.ID != sess.ID {
		return fmt.Errorf("%w: session %s", ErrSessionNotFound, sess.ID)
	}
	cur.Portfolio = sess.Portfolio.Clone()
	cur.TradeCount = sess.TradeCount
	cur.UpdatedAt = sess.UpdatedAt

	s.ledger[t.SessionID] = append(s.ledger[t.SessionID], *t)
	s.trades++
	return nil
}

func (s *MemoryStore) ListTrades(_ context.Context, sessionID string, limit int) ([]model.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.ledger[sessionID]
	if limit > len(entries) {
		limit = len(entries)
	}
	if limit < 0 {
		limit = 0
	}
	result := make([]model.Trade, 0, limit)
	for i := len(entries) - 1; i >= len(entries)-limit; i-- {
		result = append(result, entries[i])
	}
	return result, nil
}

func (s *MemoryStore) Overview(_ context.Context) (*model.Overview, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ov := &model.Overview{
		ActiveSimulators:  int64(len(s.sessions)),
		TotalTrades:       s.trades,
		LevelDistribution: make(map[string]int64),
	}
	for _, sess := range s.sessions {
		ov.LevelDistribution[sess.Level]++
	}
	return ov, nil
}
