// Package pricing moves simulator prices with a bounded random walk.
//
// Each Advance draws one independent uniform percentage move per symbol,
// in universe order, from an injected random source. Two walkers built from
// the same seed therefore produce identical price paths.
package pricing

import (
	"math/rand/v2"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/alphafinance/sim-engine/internal/model"
)

var (
	// MinTick is the price floor. No symbol ever trades below one cent.
	MinTick = decimal.New(1, -2)

	// PriceScale is the number of decimal places prices are rounded to.
	PriceScale int32 = 2
)

// Source is the subset of *rand.Rand the walker needs.
type Source interface {
	Float64() float64
}

// Walker applies the random walk. It is safe for concurrent use; draws are
// serialized so a seeded walker yields one reproducible sequence.
type Walker struct {
	mu  sync.Mutex
	src Source
}

// NewWalker returns a walker driven by a PCG generator seeded with seed.
func NewWalker(seed uint64) *Walker {
	return NewWalkerFromSource(rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)))
}

// NewWalkerFromSource returns a walker using src for all draws.
func NewWalkerFromSource(src Source) *Walker {
	return &Walker{src: src}
}

// Band returns the maximum fractional move per update for a volatility
// class. Unknown classes move like medium.
func Band(volatility string) float64 {
	if volatility == model.VolatilityLow {
		return 0.01
	}
	return 0.02
}

// Advance returns a new universe with every price moved by a uniform delta
// in [-Band, +Band], rounded to cents and floored at MinTick. The input is
// not modified.
func (w *Walker) Advance(universe []model.Symbol) []model.Symbol {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]model.Symbol, len(universe))
	for i, sym := range universe {
		band := Band(sym.Volatility)
		delta := (w.src.Float64()*2 - 1) * band
		sym.Price = Step(sym.Price, delta)
		out[i] = sym
	}
	return out
}

// Step applies one fractional move to price. The result is rounded half
// away from zero to PriceScale, so below one dollar a move may exceed the
// band by up to half a tick (0.25 +2% → 0.26).
func Step(price decimal.Decimal, delta float64) decimal.Decimal {
	next := price.Mul(decimal.NewFromFloat(1 + delta)).Round(PriceScale)
	if next.LessThan(MinTick) {
		return MinTick
	}
	return next
}
