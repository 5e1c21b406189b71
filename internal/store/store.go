// Package store defines the persistence interface for simulator sessions.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (default and for testing).
package store

import (
	"context"
	"errors"
	"time"

	"github.com/alphafinance/sim-engine/internal/model"
)

var (
	// ErrSessionNotFound is returned when a user has no simulator session.
	ErrSessionNotFound = errors.New("store: session not found")

	// ErrSessionExists is returned by CreateSession for a user that already
	// has one.
	ErrSessionExists = errors.New("store: session already exists")
)

// Store is the persistence interface. Every write is atomic: a reader never
// sees a trade's cash, position and ledger changes partially applied, nor
// half of a price batch.
type Store interface {
	// --- Sessions ---

	// CreateSession persists a new session. Fails with ErrSessionExists if
	// the user already has one.
	CreateSession(ctx context.Context, s *model.Session) error

	// ReplaceSession installs s as the user's session, discarding the
	// previous session's state. Ledger entries of the old session are kept.
	ReplaceSession(ctx context.Context, s *model.Session) error

	// GetSession returns a copy of the user's session.
	GetSession(ctx context.Context, userID string) (*model.Session, error)

	// SavePrices replaces the session universe in one batch.
	SavePrices(ctx context.Context, userID string, universe []model.Symbol, at time.Time) error

	// --- Immutable ledger ---

	// CommitTrade stores the session's post-trade portfolio and trade count
	// and appends t to the ledger, all or nothing.
	CommitTrade(ctx context.Context, s *model.Session, t *model.Trade) error

	// ListTrades returns up to limit trades of the given session, newest
	// first.
	ListTrades(ctx context.Context, sessionID string, limit int) ([]model.Trade, error)

	// --- Analytics ---

	// Overview counts sessions per level and all ledger entries.
	Overview(ctx context.Context) (*model.Overview, error)
}
