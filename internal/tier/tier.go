// Package tier defines the account levels a simulator can be initialized
// at: starting cash, tradable universe and whether limit orders are allowed.
package tier

import (
	"errors"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/alphafinance/sim-engine/internal/model"
)

// Level names of the built-in catalog.
const (
	Beginner     = "beginner"
	Intermediate = "intermediate"
	Advanced     = "advanced"
)

var (
	ErrUnknownLevel   = errors.New("tier: unknown level")
	ErrInvalidCatalog = errors.New("tier: invalid catalog")
)

// Level is one account tier.
type Level struct {
	Name        string          `json:"name"`
	Balance     decimal.Decimal `json:"initial_balance"`
	LimitOrders bool            `json:"limit_orders"`
	Symbols     []model.Symbol  `json:"symbols"`
}

// Catalog is an immutable, ordered set of levels.
type Catalog struct {
	order  []string
	levels map[string]Level
}

// New validates levels and builds a catalog. Level order is preserved.
func New(levels ...Level) (*Catalog, error) {
	if len(levels) == 0 {
		return nil, fmt.Errorf("%w: no levels", ErrInvalidCatalog)
	}
	c := &Catalog{levels: make(map[string]Level, len(levels))}
	for _, l := range levels {
		if l.Name == "" {
			return nil, fmt.Errorf("%w: level without name", ErrInvalidCatalog)
		}
		if _, dup := c.levels[l.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate level %q", ErrInvalidCatalog, l.Name)
		}
		if !l.Balance.IsPositive() {
			return nil, fmt.Errorf("%w: level %q balance must be positive", ErrInvalidCatalog, l.Name)
		}
		if len(l.Symbols) == 0 {
			return nil, fmt.Errorf("%w: level %q has no symbols", ErrInvalidCatalog, l.Name)
		}
		seen := make(map[string]bool, len(l.Symbols))
		syms := make([]model.Symbol, len(l.Symbols))
		for i, s := range l.Symbols {
			if s.Ticker == "" {
				return nil, fmt.Errorf("%w: level %q has an empty symbol", ErrInvalidCatalog, l.Name)
			}
			if seen[s.Ticker] {
				return nil, fmt.Errorf("%w: level %q lists %s twice", ErrInvalidCatalog, l.Name, s.Ticker)
			}
			if !s.Price.IsPositive() {
				return nil, fmt.Errorf("%w: %s price must be positive", ErrInvalidCatalog, s.Ticker)
			}
			switch s.Volatility {
			case "":
				s.Volatility = model.VolatilityMedium
			case model.VolatilityLow, model.VolatilityMedium:
			default:
				return nil, fmt.Errorf("%w: %s has unknown volatility %q", ErrInvalidCatalog, s.Ticker, s.Volatility)
			}
			seen[s.Ticker] = true
			syms[i] = s
		}
		l.Symbols = syms
		c.order = append(c.order, l.Name)
		c.levels[l.Name] = l
	}
	return c, nil
}

// Get returns the named level. The returned Symbols slice is a copy.
func (c *Catalog) Get(name string) (Level, error) {
	l, ok := c.levels[name]
	if !ok {
		return Level{}, fmt.Errorf("%w: %q", ErrUnknownLevel, name)
	}
	l.Symbols = append([]model.Symbol(nil), l.Symbols...)
	return l, nil
}

// Levels returns all levels in catalog order.
func (c *Catalog) Levels() []Level {
	out := make([]Level, 0, len(c.order))
	for _, name := range c.order {
		l, _ := c.Get(name)
		out = append(out, l)
	}
	return out
}

// Names returns the level names in catalog order.
func (c *Catalog) Names() []string {
	return append([]string(nil), c.order...)
}

// --- YAML ---

type fileSymbol struct {
	Symbol     string `yaml:"symbol"`
	Price      string `yaml:"price"`
	Volatility string `yaml:"volatility"`
}

type fileLevel struct {
	Name        string       `yaml:"name"`
	Balance     string       `yaml:"balance"`
	LimitOrders bool         `yaml:"limit_orders"`
	Symbols     []fileSymbol `yaml:"symbols"`
}

type file struct {
	Levels []fileLevel `yaml:"levels"`
}

// Parse reads a catalog from YAML:
//
//	levels:
//	  - name: beginner
//	    balance: "2000.00"
//	    limit_orders: false
//	    symbols:
//	      - {symbol: AAPL, price: "175.50", volatility: medium}
func Parse(data []byte) (*Catalog, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}

	levels := make([]Level, 0, len(f.Levels))
	for _, fl := range f.Levels {
		bal, err := decimal.NewFromString(fl.Balance)
		if err != nil {
			return nil, fmt.Errorf("%w: level %q balance %q", ErrInvalidCatalog, fl.Name, fl.Balance)
		}
		l := Level{Name: fl.Name, Balance: bal, LimitOrders: fl.LimitOrders}
		for _, fs := range fl.Symbols {
			px, err := decimal.NewFromString(fs.Price)
			if err != nil {
				return nil, fmt.Errorf("%w: %s price %q", ErrInvalidCatalog, fs.Symbol, fs.Price)
			}
			l.Symbols = append(l.Symbols, model.Symbol{Ticker: fs.Symbol, Price: px, Volatility: fs.Volatility})
		}
		levels = append(levels, l)
	}
	return New(levels...)
}

// Load reads a YAML catalog from path.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read level catalog: %w", err)
	}
	return Parse(data)
}

// Marshal renders c in the format Parse reads, so the built-in catalog can
// be exported, edited and loaded back through LEVELS_FILE.
func Marshal(c *Catalog) ([]byte, error) {
	var f file
	for _, l := range c.Levels() {
		fl := fileLevel{Name: l.Name, Balance: l.Balance.StringFixed(2), LimitOrders: l.LimitOrders}
		for _, s := range l.Symbols {
			fl.Symbols = append(fl.Symbols, fileSymbol{Symbol: s.Ticker, Price: s.Price.StringFixed(2), Volatility: s.Volatility})
		}
		f.Levels = append(f.Levels, fl)
	}
	return yaml.Marshal(f)
}
