package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alphafinance/sim-engine/internal/model"
	"github.com/alphafinance/sim-engine/internal/portfolio"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func newSession(userID, id, level string) *model.Session {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	return &model.Session{
		ID:             id,
		UserID:         userID,
		Level:          level,
		InitialBalance: d(2000),
		Portfolio:      portfolio.New(d(2000)),
		Universe:       []model.Symbol{{Ticker: "AAA", Price: d(20), Volatility: model.VolatilityMedium}},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func TestMemoryStore_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	ms := NewMemoryStore()

	sess := newSession("u1", "s1", "beginner")
	if err := ms.CreateSession(ctx, sess); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := ms.CreateSession(ctx, sess); !errors.Is(err, ErrSessionExists) {
		t.Errorf("expected ErrSessionExists, got %v", err)
	}

	got, err := ms.GetSession(ctx, "u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ID != "s1" || !got.Portfolio.Cash.Equal(d(2000)) {
		t.Errorf("unexpected session %+v", got)
	}

	if _, err := ms.GetSession(ctx, "nobody"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestMemoryStore_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	ms := NewMemoryStore()
	ms.CreateSession(ctx, newSession("u1", "s1", "beginner"))

	got, _ := ms.GetSession(ctx, "u1")
	got.Portfolio.Buy("AAA", 1, d(20))
	got.Universe[0].Price = d(1)

	again, _ := ms.GetSession(ctx, "u1")
	if !again.Portfolio.Cash.Equal(d(2000)) || !again.Universe[0].Price.Equal(d(20)) {
		t.Error("mutating a fetched session changed the store")
	}
}

func TestMemoryStore_CommitTradeAndList(t *testing.T) {
	ctx := context.Background()
	ms := NewMemoryStore()
	ms.CreateSession(ctx, newSession("u1", "s1", "beginner"))

	for i := 1; i <= 5; i++ {
		sess, _ := ms.GetSession(ctx, "u1")
		sess.Portfolio.Buy("AAA", 1, d(20))
		sess.TradeCount++
		tr := &model.Trade{ID: fmt.Sprintf("t%d", i), UserID: "u1", SessionID: "s1", Seq: sess.TradeCount}
		if err := ms.CommitTrade(ctx, sess, tr); err != nil {
			t.Fatalf("commit %d: %v", i, err)
		}
	}

	sess, _ := ms.GetSession(ctx, "u1")
	if sess.TradeCount != 5 || sess.Portfolio.Shares("AAA") != 5 {
		t.Errorf("expected 5 trades and 5 shares, got %d / %d", sess.TradeCount, sess.Portfolio.Shares("AAA"))
	}

	trades, _ := ms.ListTrades(ctx, "s1", 3)
	if len(trades) != 3 {
		t.Fatalf("expected 3 trades, got %d", len(trades))
	}
	if trades[0].Seq != 5 || trades[2].Seq != 3 {
		t.Errorf("expected newest first, got seqs %d..%d", trades[0].Seq, trades[2].Seq)
	}

	all, _ := ms.ListTrades(ctx, "s1", 100)
	if len(all) != 5 {
		t.Errorf("limit should clamp to ledger size, got %d", len(all))
	}
	none, _ := ms.ListTrades(ctx, "s1", 0)
	if len(none) != 0 {
		t.Errorf("expected no trades for limit 0, got %d", len(none))
	}
}

func TestMemoryStore_CommitAgainstReplacedSessionFails(t *testing.T) {
	ctx := context.Background()
	ms := NewMemoryStore()
	ms.CreateSession(ctx, newSession("u1", "s1", "beginner"))

	stale, _ := ms.GetSession(ctx, "u1")
	ms.ReplaceSession(ctx, newSession("u1", "s2", "advanced"))

	err := ms.CommitTrade(ctx, stale, &model.Trade{ID: "t1", UserID: "u1", SessionID: "s1", Seq: 1})
	if !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestMemoryStore_ReplaceKeepsOldLedger(t *testing.T) {
	ctx := context.Background()
	ms := NewMemoryStore()
	ms.CreateSession(ctx, newSession("u1", "s1", "beginner"))
	sess, _ := ms.GetSession(ctx, "u1")
	sess.TradeCount = 1
	ms.CommitTrade(ctx, sess, &model.Trade{ID: "t1", UserID: "u1", SessionID: "s1", Seq: 1})

	ms.ReplaceSession(ctx, newSession("u1", "s2", "advanced"))

	old, _ := ms.ListTrades(ctx, "s1", 10)
	cur, _ := ms.ListTrades(ctx, "s2", 10)
	if len(old) != 1 || len(cur) != 0 {
		t.Errorf("expected old ledger kept and new one empty, got %d / %d", len(old), len(cur))
	}

	ov, _ := ms.Overview(ctx)
	if ov.ActiveSimulators != 1 || ov.TotalTrades != 1 || ov.LevelDistribution["advanced"] != 1 {
		t.Errorf("unexpected overview %+v", ov)
	}
}

func TestMemoryStore_SavePrices(t *testing.T) {
	ctx := context.Background()
	ms := NewMemoryStore()
	ms.CreateSession(ctx, newSession("u1", "s1", "beginner"))

	at := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	if err := ms.SavePrices(ctx, "u1", []model.Symbol{{Ticker: "AAA", Price: d(21.5)}}, at); err != nil {
		t.Fatalf("save prices: %v", err)
	}
	sess, _ := ms.GetSession(ctx, "u1")
	if !sess.Universe[0].Price.Equal(d(21.5)) || !sess.UpdatedAt.Equal(at) {
		t.Errorf("prices not saved: %+v", sess.Universe)
	}

	if err := ms.SavePrices(ctx, "nobody", nil, at); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}
