package portfolio

import (
	"testing"

	"github.com/shopspring/decimal"
	"pgregory.net/rapid"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func TestBuy_DebitsCashAndOpensPosition(t *testing.T) {
	p := New(d(2000))

	cost, err := p.Buy("AAA", 10, d(20))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cost.Equal(d(200)) {
		t.Errorf("expected cost 200, got %s", cost)
	}
	if !p.Cash.Equal(d(1800)) {
		t.Errorf("expected cash 1800, got %s", p.Cash)
	}
	pos, ok := p.Position("AAA")
	if !ok {
		t.Fatal("expected AAA position")
	}
	if pos.Shares != 10 || !pos.AvgCost.Equal(d(20)) {
		t.Errorf("expected 10 @ 20, got %d @ %s", pos.Shares, pos.AvgCost)
	}
}

func TestBuy_WeightedAverage(t *testing.T) {
	p := New(d(10000))
	p.Buy("AAA", 10, d(20))
	p.Buy("AAA", 30, d(24))

	// (10*20 + 30*24) / 40 = 920 / 40 = 23
	pos, _ := p.Position("AAA")
	if pos.Shares != 40 {
		t.Errorf("expected 40 shares, got %d", pos.Shares)
	}
	if !pos.AvgCost.Equal(d(23)) {
		t.Errorf("expected avg 23, got %s", pos.AvgCost)
	}
}

func TestBuy_InsufficientCashLeavesPortfolioUntouched(t *testing.T) {
	p := New(d(100))
	if _, err := p.Buy("AAA", 10, d(20)); err != ErrInsufficientCash {
		t.Fatalf("expected ErrInsufficientCash, got %v", err)
	}
	if !p.Cash.Equal(d(100)) || len(p.Positions) != 0 {
		t.Errorf("portfolio changed on failed buy: cash=%s positions=%d", p.Cash, len(p.Positions))
	}
}

func TestBuy_ExactCashAllowed(t *testing.T) {
	p := New(d(200))
	if _, err := p.Buy("AAA", 10, d(20)); err != nil {
		t.Fatalf("spending exactly all cash should succeed: %v", err)
	}
	if !p.Cash.IsZero() {
		t.Errorf("expected zero cash, got %s", p.Cash)
	}
}

func TestBuy_RejectsNonPositive(t *testing.T) {
	p := New(d(100))
	if _, err := p.Buy("AAA", 0, d(1)); err != ErrInvalidFill {
		t.Errorf("expected ErrInvalidFill for qty 0, got %v", err)
	}
	if _, err := p.Buy("AAA", 1, decimal.Zero); err != ErrInvalidFill {
		t.Errorf("expected ErrInvalidFill for price 0, got %v", err)
	}
}

func TestSell_RealizesPnLAndRemovesEmptyPosition(t *testing.T) {
	p := New(d(1000))
	p.Buy("AAA", 10, d(20))

	proceeds, realized, err := p.Sell("AAA", 4, d(25))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !proceeds.Equal(d(100)) {
		t.Errorf("expected proceeds 100, got %s", proceeds)
	}
	if !realized.Equal(d(20)) {
		t.Errorf("expected realized 20, got %s", realized)
	}
	if p.Shares("AAA") != 6 {
		t.Errorf("expected 6 shares left, got %d", p.Shares("AAA"))
	}

	_, realized, _ = p.Sell("AAA", 6, d(15))
	if !realized.Equal(d(-30)) {
		t.Errorf("expected realized -30, got %s", realized)
	}
	if _, ok := p.Position("AAA"); ok {
		t.Error("position should be removed at zero shares")
	}
	if !p.RealizedPnL.Equal(d(-10)) {
		t.Errorf("expected accumulated realized -10, got %s", p.RealizedPnL)
	}
	// 1000 - 200 + 100 + 90
	if !p.Cash.Equal(d(990)) {
		t.Errorf("expected cash 990, got %s", p.Cash)
	}
}

func TestSell_InsufficientShares(t *testing.T) {
	p := New(d(1000))
	p.Buy("AAA", 10, d(20))

	if _, _, err := p.Sell("AAA", 15, d(20)); err != ErrInsufficientShares {
		t.Fatalf("expected ErrInsufficientShares, got %v", err)
	}
	if _, _, err := p.Sell("BBB", 1, d(20)); err != ErrInsufficientShares {
		t.Fatalf("expected ErrInsufficientShares for unheld symbol, got %v", err)
	}
	if p.Shares("AAA") != 10 || !p.Cash.Equal(d(800)) {
		t.Error("failed sell must not change the portfolio")
	}
}

func TestClone_IsIndependent(t *testing.T) {
	p := New(d(1000))
	p.Buy("AAA", 1, d(10))

	c := p.Clone()
	c.Buy("AAA", 1, d(10))
	c.Buy("BBB", 1, d(10))

	if p.Shares("AAA") != 1 || p.Shares("BBB") != 0 {
		t.Error("mutating clone changed original")
	}
}

func TestMarkToMarket(t *testing.T) {
	p := New(d(1000))
	p.Buy("AAA", 10, d(20))
	p.Buy("BBB", 5, d(10))

	prices := map[string]decimal.Decimal{"AAA": d(22), "BBB": d(8)}
	// holdings = 220 + 40 = 260; cash = 1000 - 200 - 50 = 750
	if v := p.HoldingsValue(prices); !v.Equal(d(260)) {
		t.Errorf("expected holdings 260, got %s", v)
	}
	if v := p.MarkToMarket(prices); !v.Equal(d(1010)) {
		t.Errorf("expected total 1010, got %s", v)
	}
}

func TestSorted(t *testing.T) {
	p := New(d(1000))
	p.Buy("CCC", 1, d(1))
	p.Buy("AAA", 1, d(1))
	p.Buy("BBB", 1, d(1))

	got := p.Sorted()
	if len(got) != 3 || got[0].Symbol != "AAA" || got[2].Symbol != "CCC" {
		t.Errorf("unexpected order: %+v", got)
	}
}

func TestProperty_AverageCostMatchesFormula(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		p := New(decimal.NewFromInt(1_000_000_000))
		n := rapid.IntRange(1, 20).Draw(t, "buys")

		var shares int64
		avg := decimal.Zero
		for i := 0; i < n; i++ {
			qty := rapid.Int64Range(1, 500).Draw(t, "qty")
			cents := rapid.Int64Range(1, 100_000).Draw(t, "cents")
			price := decimal.New(cents, -2)

			if _, err := p.Buy("AAA", qty, price); err != nil {
				t.Fatalf("buy failed: %v", err)
			}
			q := decimal.NewFromInt(qty)
			avg = decimal.NewFromInt(shares).Mul(avg).Add(q.Mul(price)).Div(decimal.NewFromInt(shares + qty))
			shares += qty
		}

		pos, _ := p.Position("AAA")
		if pos.Shares != shares {
			t.Fatalf("shares: expected %d, got %d", shares, pos.Shares)
		}
		if !pos.AvgCost.Equal(avg) {
			t.Fatalf("avg cost: expected %s, got %s", avg, pos.AvgCost)
		}
	})
}

func TestProperty_CashNeverNegative(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		p := New(decimal.NewFromInt(rapid.Int64Range(0, 10_000).Draw(t, "cash")))
		steps := rapid.IntRange(1, 50).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			qty := rapid.Int64Range(1, 100).Draw(t, "qty")
			price := decimal.New(rapid.Int64Range(1, 50_000).Draw(t, "cents"), -2)
			if rapid.Bool().Draw(t, "buy") {
				p.Buy("AAA", qty, price)
			} else {
				p.Sell("AAA", qty, price)
			}
			if p.Cash.IsNegative() {
				t.Fatalf("cash went negative: %s", p.Cash)
			}
			if pos, ok := p.Position("AAA"); ok && pos.Shares <= 0 {
				t.Fatalf("empty position kept: %+v", pos)
			}
		}
	})
}
