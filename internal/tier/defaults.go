package tier

import (
	"github.com/shopspring/decimal"

	"github.com/alphafinance/sim-engine/internal/model"
)

// initialPrices is the opening price of every built-in symbol.
var initialPrices = map[string]string{
	"AAPL": "175.50", "GOOGL": "142.80", "MSFT": "378.90", "AMZN": "145.30", "TSLA": "248.70",
	"META": "325.40", "NVDA": "485.20", "JPM": "178.60", "JNJ": "162.40", "V": "265.80",
	"PG": "158.90", "UNH": "542.30", "HD": "356.70", "MA": "398.50", "DIS": "92.40",
	"BAC": "34.20", "XOM": "108.60", "CVX": "146.80", "LLY": "568.90", "ABBV": "158.30",
	"PFE": "28.60", "KO": "62.40", "PEP": "178.90", "TMO": "542.60", "COST": "689.30",
	"AVGO": "892.40", "LIN": "425.60", "NKE": "108.90", "ACN": "342.70", "CRM": "256.80",
}

// Consumer staples drift less than the rest of the universe.
var lowVolatility = map[string]bool{
	"JNJ": true, "PG": true, "KO": true, "PEP": true,
}

var (
	beginnerSymbols = []string{"AAPL", "GOOGL", "MSFT", "AMZN", "TSLA"}

	intermediateSymbols = append(append([]string(nil), beginnerSymbols...),
		"META", "NVDA", "JPM", "JNJ", "V", "PG", "UNH", "HD", "MA", "DIS")

	advancedSymbols = append(append([]string(nil), intermediateSymbols...),
		"BAC", "XOM", "CVX", "LLY", "ABBV", "PFE", "KO", "PEP", "TMO", "COST",
		"AVGO", "LIN", "NKE", "ACN", "CRM")
)

func symbols(tickers []string) []model.Symbol {
	out := make([]model.Symbol, len(tickers))
	for i, t := range tickers {
		vol := model.VolatilityMedium
		if lowVolatility[t] {
			vol = model.VolatilityLow
		}
		out[i] = model.Symbol{
			Ticker:     t,
			Price:      decimal.RequireFromString(initialPrices[t]),
			Volatility: vol,
		}
	}
	return out
}

// Default returns the built-in three-tier catalog. Limit orders are only
// available above the beginner tier.
func Default() *Catalog {
	c, err := New(
		Level{Name: Beginner, Balance: decimal.NewFromInt(2000), Symbols: symbols(beginnerSymbols)},
		Level{Name: Intermediate, Balance: decimal.NewFromInt(5000), LimitOrders: true, Symbols: symbols(intermediateSymbols)},
		Level{Name: Advanced, Balance: decimal.NewFromInt(10000), LimitOrders: true, Symbols: symbols(advancedSymbols)},
	)
	if err != nil {
		panic(err)
	}
	return c
}
