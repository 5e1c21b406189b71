// Package simulator owns the per-user trading simulator sessions: it
// initializes them from a level catalog, executes orders through the trade
// engine, advances prices and serves state and history snapshots.
//
// Every operation for one user runs under that user's lock, so a session is
// mutated by at most one call at a time and readers never see a trade or a
// price batch half applied. Different users proceed in parallel.
package simulator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alphafinance/sim-engine/internal/engine"
	"github.com/alphafinance/sim-engine/internal/events"
	"github.com/alphafinance/sim-engine/internal/metrics"
	"github.com/alphafinance/sim-engine/internal/model"
	"github.com/alphafinance/sim-engine/internal/portfolio"
	"github.com/alphafinance/sim-engine/internal/pricing"
	"github.com/alphafinance/sim-engine/internal/store"
	"github.com/alphafinance/sim-engine/internal/tier"
)

var (
	ErrNotInitialized     = errors.New("simulator: not initialized")
	ErrAlreadyInitialized = errors.New("simulator: already initialized")
	ErrInvalidLevel       = errors.New("simulator: invalid level")
)

// DefaultHistoryLimit is used when a caller does not ask for a limit.
const DefaultHistoryLimit = 50

// Manager runs simulator operations against a Store.
type Manager struct {
	store     store.Store
	catalog   *tier.Catalog
	walker    *pricing.Walker
	publisher events.Publisher
	now       func() time.Time
	newID     func() string

	locks sync.Map // userID → *sync.Mutex
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithIDs overrides uuid generation for sessions and trades.
func WithIDs(newID func() string) Option {
	return func(m *Manager) { m.newID = newID }
}

// WithPublisher sends session, trade and price events to p.
func WithPublisher(p events.Publisher) Option {
	return func(m *Manager) { m.publisher = p }
}

// NewManager creates a manager. The walker decides how prices evolve; pass
// a seeded one for reproducible runs.
func NewManager(st store.Store, catalog *tier.Catalog, walker *pricing.Walker, opts ...Option) *Manager {
	m := &Manager{
		store:     st,
		catalog:   catalog,
		walker:    walker,
		publisher: events.Discard{},
		now:       func() time.Time { return time.Now().UTC() },
		newID:     func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Catalog returns the level catalog sessions are initialized from.
func (m *Manager) Catalog() *tier.Catalog {
	return m.catalog
}

func (m *Manager) lock(userID string) func() {
	v, _ := m.locks.LoadOrStore(userID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// acquire locks userID and loads its session. A user with no lock entry is
// checked against the store first, so ids that were never initialized do
// not grow the lock map. The caller must call unlock when err is nil.
func (m *Manager) acquire(ctx context.Context, userID string) (sess *model.Session, unlock func(), err error) {
	if _, ok := m.locks.Load(userID); !ok {
		if _, err := m.load(ctx, userID); err != nil {
			return nil, nil, err
		}
	}
	unlock = m.lock(userID)
	sess, err = m.load(ctx, userID)
	if err != nil {
		unlock()
		return nil, nil, err
	}
	return sess, unlock, nil
}

func (m *Manager) load(ctx context.Context, userID string) (*model.Session, error) {
	sess, err := m.store.GetSession(ctx, userID)
	if errors.Is(err, store.ErrSessionNotFound) {
		return nil, fmt.Errorf("%w: user %s", ErrNotInitialized, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	return sess, nil
}

// stamp returns a timestamp no earlier than the session's last update, so
// ledger timestamps never decrease even if the wall clock steps back.
func (m *Manager) stamp(sess *model.Session) time.Time {
	now := m.now()
	if now.Before(sess.UpdatedAt) {
		return sess.UpdatedAt
	}
	return now
}

func (m *Manager) publish(ctx context.Context, ev events.Event) {
	if err := m.publisher.Publish(ctx, ev); err != nil {
		slog.Warn("event publish failed", "type", ev.Type, "user", ev.UserID, "err", err)
	}
}

// Initialize creates the user's session at level. It fails with
// ErrAlreadyInitialized if one exists, unless reset is set, in which case
// the old session is replaced (its ledger entries are kept but no longer
// part of the user's history).
func (m *Manager) Initialize(ctx context.Context, userID, level string, reset bool) (*model.Snapshot, error) {
	lvl, err := m.catalog.Get(level)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidLevel, level)
	}

	unlock := m.lock(userID)
	defer unlock()

	now := m.now()
	sess := &model.Session{
		ID:             m.newID(),
		UserID:         userID,
		Level:          lvl.Name,
		InitialBalance: lvl.Balance,
		Portfolio:      portfolio.New(lvl.Balance),
		Universe:       lvl.Symbols,
		LimitOrders:    lvl.LimitOrders,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if reset {
		err = m.store.ReplaceSession(ctx, sess)
	} else {
		err = m.store.CreateSession(ctx, sess)
		if errors.Is(err, store.ErrSessionExists) {
			return nil, fmt.Errorf("%w: user %s", ErrAlreadyInitialized, userID)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}

	metrics.SessionsInitialized.WithLabelValues(lvl.Name, fmt.Sprint(reset)).Inc()
	slog.Info("simulator initialized",
		"user", userID,
		"session", sess.ID,
		"level", lvl.Name,
		"balance", lvl.Balance.String(),
		"symbols", len(lvl.Symbols),
		"reset", reset,
	)
	m.publish(ctx, events.Event{
		Type:      events.TypeSessionStarted,
		UserID:    userID,
		SessionID: sess.ID,
		Level:     lvl.Name,
		Prices:    sess.Prices(),
		Timestamp: now,
	})

	return Snapshot(sess), nil
}

// State returns a read-only snapshot of the user's session.
func (m *Manager) State(ctx context.Context, userID string) (*model.Snapshot, error) {
	sess, unlock, err := m.acquire(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer unlock()
	return Snapshot(sess), nil
}

// TradeResult is an accepted order and the portfolio after it.
type TradeResult struct {
	Trade       model.Trade        `json:"trade"`
	Cash        decimal.Decimal    `json:"new_balance"`
	RealizedPnL decimal.Decimal    `json:"realized_pnl"`
	Position    portfolio.Position `json:"position"` // zero shares once closed
	TotalValue  decimal.Decimal    `json:"total_value"`
}

// Trade validates and executes order. A rejected order returns an
// *engine.Rejection and leaves the session unchanged.
func (m *Manager) Trade(ctx context.Context, userID string, order model.Order) (*TradeResult, error) {
	start := time.Now()
	sess, unlock, err := m.acquire(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	// sess is a private copy; nothing reaches the store unless committed.
	fill, err := engine.Execute(&sess.Portfolio, sess.Universe, order, engine.Rules{LimitOrders: sess.LimitOrders})
	if err != nil {
		var rej *engine.Rejection
		if errors.As(err, &rej) {
			metrics.TradeRejections.WithLabelValues(string(rej.Reason)).Inc()
			slog.Info("order rejected",
				"user", userID,
				"symbol", order.Symbol,
				"side", string(order.Side),
				"qty", order.Quantity,
				"reason", string(rej.Reason),
			)
		}
		return nil, err
	}

	ts := m.stamp(sess)
	sess.TradeCount++
	sess.UpdatedAt = ts

	trade := &model.Trade{
		ID:          m.newID(),
		UserID:      userID,
		SessionID:   sess.ID,
		Seq:         sess.TradeCount,
		Symbol:      fill.Symbol,
		Side:        fill.Side,
		OrderType:   fill.OrderType,
		Quantity:    fill.Quantity,
		Price:       fill.Price,
		CashDelta:   fill.CashDelta,
		RealizedPnL: fill.RealizedPnL,
		Timestamp:   ts,
	}

	if err := m.store.CommitTrade(ctx, sess, trade); err != nil {
		return nil, fmt.Errorf("commit trade: %w", err)
	}

	metrics.TradesTotal.WithLabelValues(string(trade.Side), string(trade.OrderType)).Inc()
	metrics.TradeLatency.WithLabelValues(string(trade.Side)).Observe(time.Since(start).Seconds())

	slog.Info("trade executed",
		"trade_id", trade.ID,
		"user", userID,
		"symbol", trade.Symbol,
		"side", string(trade.Side),
		"qty", trade.Quantity,
		"price", trade.Price.String(),
		"cash", sess.Portfolio.Cash.String(),
	)
	price := trade.Price
	m.publish(ctx, events.Event{
		Type:      events.TypeTradeExecuted,
		UserID:    userID,
		SessionID: sess.ID,
		TradeID:   trade.ID,
		Symbol:    trade.Symbol,
		Side:      string(trade.Side),
		Quantity:  trade.Quantity,
		Price:     &price,
		Timestamp: ts,
	})

	pos, ok := sess.Portfolio.Position(trade.Symbol)
	if !ok {
		pos = portfolio.Position{Symbol: trade.Symbol, AvgCost: decimal.Zero}
	}
	return &TradeResult{
		Trade:       *trade,
		Cash:        sess.Portfolio.Cash,
		RealizedPnL: sess.Portfolio.RealizedPnL,
		Position:    pos,
		TotalValue:  sess.Portfolio.MarkToMarket(sess.Prices()),
	}, nil
}

// History returns the most recent trades of the user's current session,
// newest first, at most limit of them, plus the session's total trade
// count. A negative limit is treated as zero.
func (m *Manager) History(ctx context.Context, userID string, limit int) ([]model.Trade, int64, error) {
	sess, unlock, err := m.acquire(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	defer unlock()
	if limit < 0 {
		limit = 0
	}
	if int64(limit) > sess.TradeCount {
		limit = int(sess.TradeCount)
	}
	trades, err := m.store.ListTrades(ctx, sess.ID, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("list trades: %w", err)
	}
	return trades, sess.TradeCount, nil
}

// PriceUpdate reports one update-prices batch.
type PriceUpdate struct {
	OldPrices map[string]decimal.Decimal `json:"old_prices"`
	NewPrices map[string]decimal.Decimal `json:"new_prices"`
	Timestamp time.Time                  `json:"timestamp"`
}

// UpdatePrices advances every symbol of the user's universe one step and
// stores the new universe as a single batch.
func (m *Manager) UpdatePrices(ctx context.Context, userID string) (*PriceUpdate, error) {
	sess, unlock, err := m.acquire(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	old := sess.Prices()
	sess.Universe = m.walker.Advance(sess.Universe)
	ts := m.stamp(sess)

	if err := m.store.SavePrices(ctx, userID, sess.Universe, ts); err != nil {
		return nil, fmt.Errorf("save prices: %w", err)
	}

	metrics.PriceUpdates.Inc()
	slog.Debug("prices updated", "user", userID, "symbols", len(sess.Universe))

	next := sess.Prices()
	m.publish(ctx, events.Event{
		Type:      events.TypePricesUpdated,
		UserID:    userID,
		SessionID: sess.ID,
		Prices:    next,
		Timestamp: ts,
	})

	return &PriceUpdate{OldPrices: old, NewPrices: next, Timestamp: ts}, nil
}

// Overview returns platform-wide simulator counters.
func (m *Manager) Overview(ctx context.Context) (*model.Overview, error) {
	ov, err := m.store.Overview(ctx)
	if err != nil {
		return nil, fmt.Errorf("overview: %w", err)
	}
	for _, name := range m.catalog.Names() {
		if _, ok := ov.LevelDistribution[name]; !ok {
			ov.LevelDistribution[name] = 0
		}
	}
	return ov, nil
}
