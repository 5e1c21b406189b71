// Package model defines the core domain types shared across the simulator.
// All monetary values use shopspring/decimal; never float64 for money.
package model

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/alphafinance/sim-engine/internal/portfolio"
)

// Side of an order or trade.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Valid reports whether s is buy or sell.
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// OrderType is market or limit.
type OrderType string

const (
	OrderMarket OrderType = "market"
	OrderLimit  OrderType = "limit"
)

// Valid reports whether t is market or limit.
func (t OrderType) Valid() bool {
	return t == OrderMarket || t == OrderLimit
}

// Volatility classes bound how far a symbol may move per price update.
const (
	VolatilityLow    = "low"
	VolatilityMedium = "medium"
)

// Symbol is one tradable instrument in a session's universe.
type Symbol struct {
	Ticker     string          `json:"symbol" yaml:"symbol" db:"symbol"`
	Price      decimal.Decimal `json:"price" yaml:"price" db:"price"`
	Volatility string          `json:"volatility" yaml:"volatility" db:"volatility"` // "low" or "medium"
}

// Order is a request to buy or sell. LimitPrice is set iff Type is limit.
type Order struct {
	Symbol     string           `json:"symbol"`
	Side       Side             `json:"side"`
	Quantity   int64            `json:"quantity"`
	Type       OrderType        `json:"order_type"`
	LimitPrice *decimal.Decimal `json:"limit_price,omitempty"`

	// RawQuantity holds the submitted quantity when it was not a whole
	// number of shares (1.5, "10", true). The order is then rejected.
	RawQuantity string `json:"-"`
}

// Trade is an immutable record of an accepted order.
// Once created, these are never modified or deleted.
type Trade struct {
	ID          string          `json:"id" db:"id"`
	UserID      string          `json:"user_id" db:"user_id"`
	SessionID   string          `json:"session_id" db:"session_id"`
	Seq         int64           `json:"seq" db:"seq"` // 1-based position in the session ledger
	Symbol      string          `json:"symbol" db:"symbol"`
	Side        Side            `json:"side" db:"side"`
	OrderType   OrderType       `json:"order_type" db:"order_type"`
	Quantity    int64           `json:"quantity" db:"quantity"`
	Price       decimal.Decimal `json:"price" db:"price"`               // executed (market) price
	CashDelta   decimal.Decimal `json:"cash_delta" db:"cash_delta"`     // signed: -cost on buy, +proceeds on sell
	RealizedPnL decimal.Decimal `json:"realized_pnl" db:"realized_pnl"` // zero for buys
	Timestamp   time.Time       `json:"timestamp" db:"timestamp"`
}

// Session is the per-user simulator aggregate.
// A reset starts a new session (new ID) for the same user; earlier trades
// stay in the ledger under the old session ID.
type Session struct {
	ID             string              `json:"id"`
	UserID         string              `json:"user_id"`
	Level          string              `json:"level"`
	InitialBalance decimal.Decimal     `json:"initial_balance"`
	Portfolio      portfolio.Portfolio `json:"portfolio"`
	Universe       []Symbol            `json:"universe"`
	LimitOrders    bool                `json:"limit_orders"`
	TradeCount     int64               `json:"trade_count"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

// Clone returns a deep copy so callers can mutate it without touching
// stored state.
func (s *Session) Clone() *Session {
	c := *s
	c.Portfolio = s.Portfolio.Clone()
	c.Universe = append([]Symbol(nil), s.Universe...)
	return &c
}

// Prices returns ticker → current price.
func (s *Session) Prices() map[string]decimal.Decimal {
	prices := make(map[string]decimal.Decimal, len(s.Universe))
	for _, sym := range s.Universe {
		prices[sym.Ticker] = sym.Price
	}
	return prices
}

// PositionView is a position marked to the current price.
type PositionView struct {
	Symbol        string          `json:"symbol"`
	Shares        int64           `json:"shares"`
	AvgCost       decimal.Decimal `json:"avg_cost"`
	MarketPrice   decimal.Decimal `json:"market_price"`
	MarketValue   decimal.Decimal `json:"market_value"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"` // marketValue - shares*avgCost
}

// Snapshot is the read-only view returned by the state operation.
type Snapshot struct {
	SessionID      string                     `json:"session_id"`
	UserID         string                     `json:"user_id"`
	Level          string                     `json:"level"`
	Cash           decimal.Decimal            `json:"cash"`
	InitialBalance decimal.Decimal            `json:"initial_balance"`
	Positions      []PositionView             `json:"positions"`
	Prices         map[string]decimal.Decimal `json:"prices"`
	PortfolioValue decimal.Decimal            `json:"portfolio_value"` // Σ shares × price
	TotalValue     decimal.Decimal            `json:"total_value"`     // cash + portfolioValue
	PnL            decimal.Decimal            `json:"pnl"`             // totalValue - initialBalance
	RealizedPnL    decimal.Decimal            `json:"realized_pnl"`
	TradeCount     int64                      `json:"trade_count"`
	LimitOrders    bool                       `json:"limit_orders"`
	CreatedAt      time.Time                  `json:"created_at"`
	LastUpdated    time.Time                  `json:"last_updated"`
}

// Overview aggregates platform-wide simulator counters.
type Overview struct {
	ActiveSimulators  int64            `json:"active_simulators"`
	TotalTrades       int64            `json:"total_trades"`
	LevelDistribution map[string]int64 `json:"level_distribution"`
}
