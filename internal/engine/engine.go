// Package engine validates simulator orders and applies accepted ones to a
// portfolio.
//
// Validation is fail-fast and runs entirely before any mutation: an order
// is either applied in full or rejected with the portfolio untouched.
// Every accepted order executes at the current market price; a limit price
// only gates acceptance (same-tick accept/reject, no resting orders).
package engine

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/alphafinance/sim-engine/internal/model"
	"github.com/alphafinance/sim-engine/internal/portfolio"
)

// Reason is a machine-readable rejection code.
type Reason string

const (
	ReasonUnknownSymbol       Reason = "unknown_symbol"
	ReasonInvalidQuantity     Reason = "invalid_quantity"
	ReasonInvalidOrder        Reason = "invalid_order"
	ReasonOrderTypeNotAllowed Reason = "order_type_not_allowed"
	ReasonInvalidLimitPrice   Reason = "invalid_limit_price"
	ReasonLimitNotMet         Reason = "limit_not_met"
	ReasonInsufficientFunds   Reason = "insufficient_funds"
	ReasonInsufficientShares  Reason = "insufficient_shares"
)

// Rejection is returned as the error of Execute when an order fails
// validation. It is a normal outcome, not a fault.
type Rejection struct {
	Reason  Reason
	Message string
}

func (r *Rejection) Error() string {
	return "engine: " + string(r.Reason) + ": " + r.Message
}

func reject(reason Reason, format string, args ...any) *Rejection {
	return &Rejection{Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// Rules are the per-level constraints on orders.
type Rules struct {
	LimitOrders bool
}

// Fill describes an accepted order.
type Fill struct {
	Symbol      string
	Side        model.Side
	OrderType   model.OrderType
	Quantity    int64
	Price       decimal.Decimal // market price at execution
	CashDelta   decimal.Decimal // negative for buys
	RealizedPnL decimal.Decimal // zero for buys
}

// Execute validates order against p and the universe and, if accepted,
// applies it to p. Checks run in this order and the first failure wins:
//
//  1. symbol in universe          → unknown_symbol
//  2. whole quantity > 0          → invalid_quantity
//  3. side and type recognized    → invalid_order
//     no limit price on market    → invalid_order
//     limit allowed for the level → order_type_not_allowed
//  4. limit price > 0             → invalid_limit_price
//     limit marketable            → limit_not_met
//  5. buy cost <= cash            → insufficient_funds
//  6. sell qty <= held shares     → insufficient_shares
//
// Validation failures are returned as *Rejection.
func Execute(p *portfolio.Portfolio, universe []model.Symbol, order model.Order, rules Rules) (*Fill, error) {
	sym, ok := lookup(universe, order.Symbol)
	if !ok {
		return nil, reject(ReasonUnknownSymbol, "symbol %q is not tradable at this level", order.Symbol)
	}
	if order.RawQuantity != "" {
		return nil, reject(ReasonInvalidQuantity, "quantity must be a positive integer, got %s", order.RawQuantity)
	}
	if order.Quantity <= 0 {
		return nil, reject(ReasonInvalidQuantity, "quantity must be a positive integer, got %d", order.Quantity)
	}

	orderType := order.Type
	if orderType == "" {
		orderType = model.OrderMarket
	}
	if !order.Side.Valid() {
		return nil, reject(ReasonInvalidOrder, "side must be buy or sell, got %q", order.Side)
	}
	if !orderType.Valid() {
		return nil, reject(ReasonInvalidOrder, "order type must be market or limit, got %q", order.Type)
	}
	if orderType == model.OrderMarket && order.LimitPrice != nil {
		return nil, reject(ReasonInvalidOrder, "limit_price is only accepted on limit orders")
	}
	if orderType == model.OrderLimit && !rules.LimitOrders {
		return nil, reject(ReasonOrderTypeNotAllowed, "limit orders are not available at this level")
	}

	price := sym.Price
	if orderType == model.OrderLimit {
		if order.LimitPrice == nil || !order.LimitPrice.IsPositive() {
			return nil, reject(ReasonInvalidLimitPrice, "limit orders need a positive limit_price")
		}
		limit := *order.LimitPrice
		if order.Side == model.SideBuy && price.GreaterThan(limit) {
			return nil, reject(ReasonLimitNotMet, "market price %s is above buy limit %s", price, limit)
		}
		if order.Side == model.SideSell && price.LessThan(limit) {
			return nil, reject(ReasonLimitNotMet, "market price %s is below sell limit %s", price, limit)
		}
	}

	qty := decimal.NewFromInt(order.Quantity)
	switch order.Side {
	case model.SideBuy:
		cost := qty.Mul(price)
		if cost.GreaterThan(p.Cash) {
			return nil, reject(ReasonInsufficientFunds, "order costs %s, cash available %s", cost, p.Cash)
		}
	case model.SideSell:
		if held := p.Shares(order.Symbol); order.Quantity > held {
			return nil, reject(ReasonInsufficientShares, "selling %d %s, holding %d", order.Quantity, order.Symbol, held)
		}
	}

	fill := &Fill{
		Symbol:      order.Symbol,
		Side:        order.Side,
		OrderType:   orderType,
		Quantity:    order.Quantity,
		Price:       price,
		RealizedPnL: decimal.Zero,
	}

	// Validation above guarantees these succeed.
	if order.Side == model.SideBuy {
		cost, err := p.Buy(order.Symbol, order.Quantity, price)
		if err != nil {
			return nil, fmt.Errorf("engine: apply buy: %w", err)
		}
		fill.CashDelta = cost.Neg()
	} else {
		proceeds, realized, err := p.Sell(order.Symbol, order.Quantity, price)
		if err != nil {
			return nil, fmt.Errorf("engine: apply sell: %w", err)
		}
		fill.CashDelta = proceeds
		fill.RealizedPnL = realized
	}
	return fill, nil
}

func lookup(universe []model.Symbol, ticker string) (model.Symbol, bool) {
	for _, s := range universe {
		if s.Ticker == ticker {
			return s, true
		}
	}
	return model.Symbol{}, false
}
