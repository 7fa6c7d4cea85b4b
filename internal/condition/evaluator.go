package condition

import (
	"github.com/NasaVasa/pushwatch/internal/domain"
	"github.com/shopspring/decimal"
)

type Evaluator struct {
	catalog *Catalog
}

func NewEvaluator(catalog *Catalog) *Evaluator {
	return &Evaluator{catalog: catalog}
}

// Validate reports whether cond can be evaluated at all: the rule must exist
// and the target price must fit it.
func (e *Evaluator) Validate(cond domain.Condition) error {
	return e.catalog.Validate(cond)
}

// Evaluate applies the named rule. An empty series is never a match.
func (e *Evaluator) Evaluate(name string, series domain.PriceSeries, target *decimal.Decimal) (bool, error) {
	rule, err := e.catalog.Describe(name)
	if err != nil {
		return false, err
	}
	if err := rule.checkTarget(target); err != nil {
		return false, err
	}
	if len(series) == 0 {
		return false, nil
	}
	return rule.Evaluate(series, target), nil
}

// Description falls back to the rule name for unregistered names.
func (e *Evaluator) Description(name string) string {
	rule, err := e.catalog.Describe(name)
	if err != nil || rule.Description == "" {
		return name
	}
	return rule.Description
}
