package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"pgregory.net/rapid"

	"github.com/alphafinance/sim-engine/internal/model"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

// fixed returns the same draw every time.
type fixed float64

func (f fixed) Float64() float64 { return float64(f) }

func universe() []model.Symbol {
	return []model.Symbol{
		{Ticker: "AAPL", Price: d(175.50), Volatility: model.VolatilityMedium},
		{Ticker: "KO", Price: d(62.40), Volatility: model.VolatilityLow},
		{Ticker: "PFE", Price: d(28.60), Volatility: model.VolatilityMedium},
	}
}

func TestAdvance_SameSeedSamePath(t *testing.T) {
	a := NewWalker(42)
	b := NewWalker(42)

	ua, ub := universe(), universe()
	for step := 0; step < 100; step++ {
		ua = a.Advance(ua)
		ub = b.Advance(ub)
		for i := range ua {
			if !ua[i].Price.Equal(ub[i].Price) {
				t.Fatalf("step %d %s: %s != %s", step, ua[i].Ticker, ua[i].Price, ub[i].Price)
			}
		}
	}
}

func TestAdvance_DifferentSeedsDiverge(t *testing.T) {
	ua := NewWalker(1).Advance(universe())
	ub := NewWalker(2).Advance(universe())

	same := true
	for i := range ua {
		if !ua[i].Price.Equal(ub[i].Price) {
			same = false
		}
	}
	if same {
		t.Error("different seeds produced identical prices")
	}
}

func TestAdvance_DoesNotMutateInput(t *testing.T) {
	in := universe()
	NewWalker(7).Advance(in)
	if !in[0].Price.Equal(d(175.50)) {
		t.Errorf("input mutated: %s", in[0].Price)
	}
}

func TestAdvance_Extremes(t *testing.T) {
	// Float64 in [0,1): 0 → -band, just under 1 → +band.
	down := NewWalkerFromSource(fixed(0)).Advance(universe())
	if !down[0].Price.Equal(d(171.99)) { // 175.50 * 0.98
		t.Errorf("expected 171.99, got %s", down[0].Price)
	}
	if !down[1].Price.Equal(d(61.78)) { // 62.40 * 0.99 = 61.776
		t.Errorf("low volatility: expected 61.78, got %s", down[1].Price)
	}

	up := NewWalkerFromSource(fixed(0.9999999999)).Advance(universe())
	if !up[0].Price.Equal(d(179.01)) { // 175.50 * 1.02
		t.Errorf("expected 179.01, got %s", up[0].Price)
	}
}

func TestStep_FloorsAtMinTick(t *testing.T) {
	if p := Step(d(0.01), -0.02); !p.Equal(MinTick) {
		t.Errorf("expected floor %s, got %s", MinTick, p)
	}
	if p := Step(d(0.01), -1); !p.Equal(MinTick) {
		t.Errorf("expected floor %s, got %s", MinTick, p)
	}
}

func TestStep_SubDollarRoundsToTick(t *testing.T) {
	tests := []struct {
		price float64
		delta float64
		want  float64
	}{
		{0.25, 0.02, 0.26},  // 0.255 rounds half away from zero
		{0.25, -0.02, 0.25}, // 0.245 rounds back up
		{0.10, 0.02, 0.10},  // 0.102
		{0.50, -0.01, 0.50}, // 0.495
		{0.49, 0.02, 0.50},  // 0.4998
	}
	for _, tt := range tests {
		got := Step(d(tt.price), tt.delta)
		if !got.Equal(d(tt.want)) {
			t.Errorf("Step(%v, %v) = %s, want %v", tt.price, tt.delta, got, tt.want)
		}
		if got.Sub(d(tt.price)).Abs().GreaterThan(MinTick) {
			t.Errorf("Step(%v, %v) moved more than one tick", tt.price, tt.delta)
		}
	}
}

func TestAdvance_PreservesOrderAndMetadata(t *testing.T) {
	out := NewWalker(3).Advance(universe())
	in := universe()
	for i := range in {
		if out[i].Ticker != in[i].Ticker || out[i].Volatility != in[i].Volatility {
			t.Errorf("index %d: got %+v", i, out[i])
		}
	}
}

func TestProperty_PricesStayPositive(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		seed := rapid.Uint64().Draw(t, "seed")
		cents := rapid.Int64Range(1, 1_000_000).Draw(t, "cents")
		steps := rapid.IntRange(1, 200).Draw(t, "steps")

		w := NewWalker(seed)
		u := []model.Symbol{{Ticker: "X", Price: decimal.New(cents, -2)}}
		for i := 0; i < steps; i++ {
			u = w.Advance(u)
			if !u[0].Price.IsPositive() {
				t.Fatalf("non-positive price %s at step %d", u[0].Price, i)
			}
		}
	})
}

func TestProperty_MoveWithinBand(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		seed := rapid.Uint64().Draw(t, "seed")
		cents := rapid.Int64Range(1, 1_000_000).Draw(t, "cents")
		price := decimal.New(cents, -2)

		out := NewWalker(seed).Advance([]model.Symbol{{Ticker: "X", Price: price}})
		move := out[0].Price.Sub(price).Abs()
		// Below a dollar the band is under one tick, so rounding can move
		// the price by a whole cent: the bound is band plus half a tick.
		limit := price.Mul(d(0.02)).Add(MinTick.Div(d(2)))
		if move.GreaterThan(limit) {
			t.Fatalf("move %s exceeds %s for price %s", move, limit, price)
		}
		if move.GreaterThan(MinTick) && price.LessThan(d(0.50)) {
			t.Fatalf("sub-tick band moved %s by %s", price, move)
		}
	})
}
