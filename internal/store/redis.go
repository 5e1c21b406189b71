package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alphafinance/sim-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Writes go to the primary store and invalidate the cache; reads
// check Redis first then fall back to the primary.
type CachedStore struct {
	primary Store
	rdb     redis.Cmdable
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store. rdb is
// usually a *redis.Client.
func NewCachedStore(primary Store, rdb redis.Cmdable, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) CreateSession(ctx context.Context, sess *model.Session) error {
	if err := s.primary.CreateSession(ctx, sess); err != nil {
		return err
	}
	s.cacheSession(ctx, sess)
	return nil
}

func (s *CachedStore) ReplaceSession(ctx context.Context, sess *model.Session) error {
	if err := s.primary.ReplaceSession(ctx, sess); err != nil {
		return err
	}
	s.invalidate(ctx, sess.UserID)
	return nil
}

func (s *CachedStore) SavePrices(ctx context.Context, userID string, universe []model.Symbol, at time.Time) error {
	if err := s.primary.SavePrices(ctx, userID, universe, at); err != nil {
		return err
	}
	// Invalidate cache; next read will re-populate.
	s.invalidate(ctx, userID)
	return nil
}

func (s *CachedStore) CommitTrade(ctx context.Context, sess *model.Session, t *model.Trade) error {
	if err := s.primary.CommitTrade(ctx, sess, t); err != nil {
		return err
	}
	s.invalidate(ctx, sess.UserID)
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetSession(ctx context.Context, userID string) (*model.Session, error) {
	data, err := s.rdb.Get(ctx, sessionKey(userID)).Bytes()
	if err == nil {
		var sess model.Session
		if json.Unmarshal(data, &sess) == nil {
			return &sess, nil
		}
	}

	// Cache miss: read from primary.
	sess, err := s.primary.GetSession(ctx, userID)
	if err != nil {
		return nil, err
	}

	s.cacheSession(ctx, sess)
	return sess, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListTrades(ctx context.Context, sessionID string, limit int) ([]model.Trade, error) {
	return s.primary.ListTrades(ctx, sessionID, limit)
}

func (s *CachedStore) Overview(ctx context.Context) (*model.Overview, error) {
	return s.primary.Overview(ctx)
}

// --- Cache helpers ---

func (s *CachedStore) cacheSession(ctx context.Context, sess *model.Session) {
	if data, err := json.Marshal(sess); err == nil {
		s.rdb.Set(ctx, sessionKey(sess.UserID), data, s.ttl)
	}
}

// invalidate drops the cached session. The primary write has already
// succeeded, so a failure is logged and the stale entry expires with its TTL.
func (s *CachedStore) invalidate(ctx context.Context, userID string) {
	if err := s.rdb.Del(ctx, sessionKey(userID)).Err(); err != nil {
		slog.Warn("cache invalidation failed", "user", userID, "key", sessionKey(userID), "err", err)
	}
}

func sessionKey(userID string) string { return fmt.Sprintf("simulator:session:%s", userID) }
