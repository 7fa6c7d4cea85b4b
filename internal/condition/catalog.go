package condition

import (
	"errors"
	"fmt"
	"sort"

	"github.com/NasaVasa/pushwatch/internal/domain"
	"github.com/shopspring/decimal"
)

var (
	ErrUnknownCondition     = errors.New("unknown condition")
	ErrTargetPriceRequired  = errors.New("target price required")
	ErrTargetPriceForbidden = errors.New("target price not allowed")
	ErrNegativeTargetPrice  = errors.New("target price must not be negative")
)

// RuleFunc reports whether a rule holds for the series. target is nil for
// rules that do not take a target price.
type RuleFunc func(series domain.PriceSeries, target *decimal.Decimal) bool

type Rule struct {
	Name             string
	Description      string
	IsBuyCondition   bool
	IsSellCondition  bool
	NeedsTargetPrice bool
	Evaluate         RuleFunc
}

// Catalog is an immutable name -> rule registry. Build it once and share it.
type Catalog struct {
	rules map[string]Rule
}

func NewCatalog(rules ...Rule) (*Catalog, error) {
	byName := make(map[string]Rule, len(rules))
	for _, rule := range rules {
		if rule.Name == "" || rule.Evaluate == nil {
			return nil, fmt.Errorf("condition: incomplete rule %q", rule.Name)
		}
		if _, dup := byName[rule.Name]; dup {
			return nil, fmt.Errorf("condition: duplicate rule %q", rule.Name)
		}
		byName[rule.Name] = rule
	}
	return &Catalog{rules: byName}, nil
}

func (c *Catalog) Describe(name string) (Rule, error) {
	rule, ok := c.rules[name]
	if !ok {
		return Rule{}, fmt.Errorf("%w: %s", ErrUnknownCondition, name)
	}
	return rule, nil
}

// Names lists the rules usable in the given mode, sorted by name.
func (c *Catalog) Names(mode domain.ConditionMode) []string {
	names := make([]string, 0, len(c.rules))
	for name, rule := range c.rules {
		switch mode {
		case domain.ModeBuy:
			if !rule.IsBuyCondition {
				continue
			}
		case domain.ModeSell:
			if !rule.IsSellCondition {
				continue
			}
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks the target price against what the rule declares.
func (c *Catalog) Validate(cond domain.Condition) error {
	rule, err := c.Describe(cond.ConditionName)
	if err != nil {
		return err
	}
	return rule.checkTarget(cond.TargetPrice)
}

func (r Rule) checkTarget(target *decimal.Decimal) error {
	if r.NeedsTargetPrice && target == nil {
		return fmt.Errorf("%w: %s", ErrTargetPriceRequired, r.Name)
	}
	if !r.NeedsTargetPrice && target != nil {
		return fmt.Errorf("%w: %s", ErrTargetPriceForbidden, r.Name)
	}
	if target != nil && target.IsNegative() {
		return ErrNegativeTargetPrice
	}
	return nil
}

func DefaultCatalog() *Catalog {
	catalog, err := NewCatalog(
		Rule{
			Name:             "GreaterThan",
			Description:      "Price rose above the target",
			IsBuyCondition:   true,
			IsSellCondition:  true,
			NeedsTargetPrice: true,
			Evaluate:         compareLatest(func(cmp int) bool { return cmp > 0 }),
		},
		Rule{
			Name:             "LessThan",
			Description:      "Price fell below the target",
			IsBuyCondition:   true,
			IsSellCondition:  true,
			NeedsTargetPrice: true,
			Evaluate:         compareLatest(func(cmp int) bool { return cmp < 0 }),
		},
		Rule{
			Name:            "PriceUp",
			Description:     "Price is up from the previous snapshot",
			IsSellCondition: true,
			Evaluate:        compareToPrevious(func(cmp int) bool { return cmp > 0 }),
		},
		Rule{
			Name:           "PriceDown",
			Description:    "Price is down from the previous snapshot",
			IsBuyCondition: true,
			Evaluate:       compareToPrevious(func(cmp int) bool { return cmp < 0 }),
		},
		Rule{
			Name:            "NewHigh",
			Description:     "Price set a new high for the period",
			IsSellCondition: true,
			Evaluate:        extreme(func(cmp int) bool { return cmp > 0 }),
		},
		Rule{
			Name:           "NewLow",
			Description:    "Price set a new low for the period",
			IsBuyCondition: true,
			Evaluate:       extreme(func(cmp int) bool { return cmp < 0 }),
		},
	)
	if err != nil {
		panic(err)
	}
	return catalog
}

func compareLatest(accept func(cmp int) bool) RuleFunc {
	return func(series domain.PriceSeries, target *decimal.Decimal) bool {
		if target == nil {
			return false
		}
		latest, ok := series.Latest()
		if !ok {
			return false
		}
		return accept(latest.Cmp(*target))
	}
}

func compareToPrevious(accept func(cmp int) bool) RuleFunc {
	return func(series domain.PriceSeries, _ *decimal.Decimal) bool {
		if len(series) < 2 {
			return false
		}
		latest, ok := series[len(series)-1].Latest()
		if !ok {
			return false
		}
		previous, ok := series[:len(series)-1].Latest()
		if !ok {
			return false
		}
		return accept(latest.Cmp(previous))
	}
}

// extreme holds when the latest price beats every other price in the series.
func extreme(accept func(cmp int) bool) RuleFunc {
	return func(series domain.PriceSeries, _ *decimal.Decimal) bool {
		if len(series) == 0 {
			return false
		}
		last := len(series) - 1
		latest, ok := series[last].Latest()
		if !ok {
			return false
		}
		compared := 0
		for i, point := range series {
			prices := point.Prices
			if i == last {
				prices = prices[:len(prices)-1]
			}
			for _, price := range prices {
				if !accept(latest.Cmp(price)) {
					return false
				}
				compared++
			}
		}
		return compared > 0
	}
}
