// Package portfolio holds a simulator account's cash, share positions and
// realized profit/loss, and applies fills to them.
//
// Cash never goes negative and a position with zero shares is removed, so
// every Position present in a Portfolio holds at least one share.
package portfolio

import (
	"errors"
	"sort"

	"github.com/shopspring/decimal"
)

var (
	// ErrInsufficientCash is returned when a buy costs more than the cash
	// balance.
	ErrInsufficientCash = errors.New("portfolio: insufficient cash")

	// ErrInsufficientShares is returned when a sell exceeds the shares held.
	ErrInsufficientShares = errors.New("portfolio: insufficient shares")

	// ErrInvalidFill is returned for a non-positive quantity or price.
	ErrInvalidFill = errors.New("portfolio: quantity and price must be positive")
)

// Position is the holding of one symbol.
type Position struct {
	Symbol  string          `json:"symbol"`
	Shares  int64           `json:"shares"`
	AvgCost decimal.Decimal `json:"avg_cost"` // quantity-weighted average purchase price
}

// Portfolio is a user's cash and positions.
type Portfolio struct {
	Cash        decimal.Decimal     `json:"cash"`
	RealizedPnL decimal.Decimal     `json:"realized_pnl"`
	Positions   map[string]Position `json:"positions"`
}

// New returns an empty portfolio funded with cash.
func New(cash decimal.Decimal) Portfolio {
	return Portfolio{
		Cash:      cash,
		Positions: make(map[string]Position),
	}
}

// Clone returns a deep copy.
func (p Portfolio) Clone() Portfolio {
	c := p
	c.Positions = make(map[string]Position, len(p.Positions))
	for k, v := range p.Positions {
		c.Positions[k] = v
	}
	return c
}

// Shares returns the number of shares held for symbol (0 if none).
func (p *Portfolio) Shares(symbol string) int64 {
	return p.Positions[symbol].Shares
}

// Position returns the position for symbol if one is held.
func (p *Portfolio) Position(symbol string) (Position, bool) {
	pos, ok := p.Positions[symbol]
	return pos, ok
}

// Sorted returns positions ordered by symbol.
func (p *Portfolio) Sorted() []Position {
	out := make([]Position, 0, len(p.Positions))
	for _, pos := range p.Positions {
		out = append(out, pos)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Buy debits qty×price from cash and adds qty shares at price, re-averaging
// the cost basis:
//
//	newAvg = (oldShares*oldAvg + qty*price) / (oldShares+qty)
//
// It returns the cost. Nothing changes when an error is returned.
func (p *Portfolio) Buy(symbol string, qty int64, price decimal.Decimal) (decimal.Decimal, error) {
	if qty <= 0 || !price.IsPositive() {
		return decimal.Zero, ErrInvalidFill
	}
	q := decimal.NewFromInt(qty)
	cost := q.Mul(price)
	if cost.GreaterThan(p.Cash) {
		return decimal.Zero, ErrInsufficientCash
	}

	if p.Positions == nil {
		p.Positions = make(map[string]Position)
	}
	pos := p.Positions[symbol]
	old := decimal.NewFromInt(pos.Shares)
	newShares := pos.Shares + qty
	avg := old.Mul(pos.AvgCost).Add(cost).Div(decimal.NewFromInt(newShares))

	p.Cash = p.Cash.Sub(cost)
	p.Positions[symbol] = Position{Symbol: symbol, Shares: newShares, AvgCost: avg}
	return cost, nil
}

// Sell credits qty×price to cash, removes qty shares and books
// qty×(price−avgCost) as realized P&L. A position that reaches zero shares is
// deleted. It returns the proceeds and the realized P&L of this sale.
// Nothing changes when an error is returned.
func (p *Portfolio) Sell(symbol string, qty int64, price decimal.Decimal) (proceeds, realized decimal.Decimal, err error) {
	if qty <= 0 || !price.IsPositive() {
		return decimal.Zero, decimal.Zero, ErrInvalidFill
	}
	pos, ok := p.Positions[symbol]
	if !ok || qty > pos.Shares {
		return decimal.Zero, decimal.Zero, ErrInsufficientShares
	}

	q := decimal.NewFromInt(qty)
	proceeds = q.Mul(price)
	realized = q.Mul(price.Sub(pos.AvgCost))

	p.Cash = p.Cash.Add(proceeds)
	p.RealizedPnL = p.RealizedPnL.Add(realized)
	pos.Shares -= qty
	if pos.Shares == 0 {
		delete(p.Positions, symbol)
	} else {
		p.Positions[symbol] = pos
	}
	return proceeds, realized, nil
}

// HoldingsValue returns Σ shares × price over all positions. Positions whose
// symbol has no price are valued at zero.
func (p *Portfolio) HoldingsValue(prices map[string]decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for sym, pos := range p.Positions {
		if px, ok := prices[sym]; ok {
			total = total.Add(px.Mul(decimal.NewFromInt(pos.Shares)))
		}
	}
	return total
}

// MarkToMarket returns cash + HoldingsValue(prices).
func (p *Portfolio) MarkToMarket(prices map[string]decimal.Decimal) decimal.Decimal {
	return p.Cash.Add(p.HoldingsValue(prices))
}
