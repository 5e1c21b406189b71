package simulator

import (
	"github.com/shopspring/decimal"

	"github.com/alphafinance/sim-engine/internal/model"
)

// Snapshot marks a session to its current prices.
func Snapshot(sess *model.Session) *model.Snapshot {
	prices := sess.Prices()
	positions := make([]model.PositionView, 0, len(sess.Portfolio.Positions))
	for _, pos := range sess.Portfolio.Sorted() {
		shares := decimal.NewFromInt(pos.Shares)
		px := prices[pos.Symbol]
		value := px.Mul(shares)
		positions = append(positions, model.PositionView{
			Symbol:        pos.Symbol,
			Shares:        pos.Shares,
			AvgCost:       pos.AvgCost,
			MarketPrice:   px,
			MarketValue:   value,
			UnrealizedPnL: value.Sub(pos.AvgCost.Mul(shares)),
		})
	}

	holdings := sess.Portfolio.HoldingsValue(prices)
	total := sess.Portfolio.Cash.Add(holdings)

	return &model.Snapshot{
		SessionID:      sess.ID,
		UserID:         sess.UserID,
		Level:          sess.Level,
		Cash:           sess.Portfolio.Cash,
		InitialBalance: sess.InitialBalance,
		Positions:      positions,
		Prices:         prices,
		PortfolioValue: holdings,
		TotalValue:     total,
		PnL:            total.Sub(sess.InitialBalance),
		RealizedPnL:    sess.Portfolio.RealizedPnL,
		TradeCount:     sess.TradeCount,
		LimitOrders:    sess.LimitOrders,
		CreatedAt:      sess.CreatedAt,
		LastUpdated:    sess.UpdatedAt,
	}
}
