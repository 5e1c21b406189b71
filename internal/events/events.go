// Package events publishes simulator activity (executed trades, price
// updates, session resets) to downstream consumers.
package events

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Event types.
const (
	TypeSessionStarted = "session_started"
	TypeTradeExecuted  = "trade_executed"
	TypePricesUpdated  = "prices_updated"
)

// Event is the JSON payload sent to every publisher.
type Event struct {
	Type      string                     `json:"type"`
	UserID    string                     `json:"user_id"`
	SessionID string                     `json:"session_id"`
	Level     string                     `json:"level,omitempty"`
	TradeID   string                     `json:"trade_id,omitempty"`
	Symbol    string                     `json:"symbol,omitempty"`
	Side      string                     `json:"side,omitempty"`
	Quantity  int64                      `json:"quantity,omitempty"`
	Price     *decimal.Decimal           `json:"price,omitempty"`
	Prices    map[string]decimal.Decimal `json:"prices,omitempty"`
	Timestamp time.Time                  `json:"timestamp"`
}

// Publisher delivers events. Implementations must not block trade
// execution for long; errors are reported, never retried here.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Fanout publishes to every non-nil publisher and joins their errors.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, ev Event) error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops every event.
type Discard struct{}

func (Discard) Publish(context.Context, Event) error { return nil }
