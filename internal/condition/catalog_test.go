package condition

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/NasaVasa/pushwatch/internal/domain"
	"github.com/shopspring/decimal"
)

func series(points ...[]float64) domain.PriceSeries {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make(domain.PriceSeries, 0, len(points))
	for i, prices := range points {
		point := domain.PricePoint{Timestamp: start.Add(time.Duration(i) * time.Minute)}
		for _, p := range prices {
			point.Prices = append(point.Prices, decimal.NewFromFloat(p))
		}
		out = append(out, point)
	}
	return out
}

func target(v float64) *decimal.Decimal {
	d := decimal.NewFromFloat(v)
	return &d
}

func TestEvaluatorRules(t *testing.T) {
	evaluator := NewEvaluator(DefaultCatalog())

	tests := []struct {
		name   string
		rule   string
		series domain.PriceSeries
		target *decimal.Decimal
		want   bool
	}{
		{"greater than uses latest close", "GreaterThan", series([]float64{1000, 960, 950, 1010}), target(100), true},
		{"greater than equal is not greater", "GreaterThan", series([]float64{100}), target(100), false},
		{"less than false", "LessThan", series([]float64{1000, 960, 950, 1010}), target(50), false},
		{"less than true", "LessThan", series([]float64{60, 49.5}), target(50), true},
		{"less than skips empty trailing point", "LessThan", series([]float64{40}, nil), target(50), true},
		{"price up", "PriceUp", series([]float64{10, 11}, []float64{11, 12}), nil, true},
		{"price up single point", "PriceUp", series([]float64{10, 11}), nil, false},
		{"price down", "PriceDown", series([]float64{10, 11}, []float64{11, 9}), nil, true},
		{"new high", "NewHigh", series([]float64{10, 11}, []float64{11, 12}), nil, true},
		{"new high tie", "NewHigh", series([]float64{10, 12}, []float64{11, 12}), nil, false},
		{"new low", "NewLow", series([]float64{10, 11}, []float64{11, 9}), nil, true},
		{"new low needs history", "NewLow", series([]float64{9}), nil, false},
		{"empty series", "GreaterThan", nil, target(1), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := evaluator.Evaluate(tt.rule, tt.series, tt.target)
			if err != nil {
				t.Fatalf("Evaluate returned error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestEvaluatorUnknownCondition(t *testing.T) {
	evaluator := NewEvaluator(DefaultCatalog())

	_, err := evaluator.Evaluate("Sideways", series([]float64{1}), nil)
	if !errors.Is(err, ErrUnknownCondition) {
		t.Fatalf("expected ErrUnknownCondition, got %v", err)
	}
}

func TestEvaluatorRejectsMisfitTargets(t *testing.T) {
	evaluator := NewEvaluator(DefaultCatalog())
	rising := series([]float64{10, 11}, []float64{11, 12})

	tests := []struct {
		name    string
		rule    string
		target  *decimal.Decimal
		wantErr error
	}{
		{"missing target", "GreaterThan", nil, ErrTargetPriceRequired},
		{"forbidden target", "NewHigh", target(10), ErrTargetPriceForbidden},
		{"negative target", "LessThan", target(-1), ErrNegativeTargetPrice},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hit, err := evaluator.Evaluate(tt.rule, rising, tt.target)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if hit {
				t.Error("a rejected condition must not match")
			}
		})
	}
}

func TestCatalogValidate(t *testing.T) {
	catalog := DefaultCatalog()

	tests := []struct {
		name    string
		cond    domain.Condition
		wantErr error
	}{
		{"target present", domain.Condition{ConditionName: "GreaterThan", TargetPrice: target(10)}, nil},
		{"target missing", domain.Condition{ConditionName: "GreaterThan"}, ErrTargetPriceRequired},
		{"target forbidden", domain.Condition{ConditionName: "NewHigh", TargetPrice: target(10)}, ErrTargetPriceForbidden},
		{"negative target", domain.Condition{ConditionName: "LessThan", TargetPrice: target(-1)}, ErrNegativeTargetPrice},
		{"unknown", domain.Condition{ConditionName: "Nope"}, ErrUnknownCondition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := catalog.Validate(tt.cond)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestCatalogNames(t *testing.T) {
	catalog := DefaultCatalog()

	buy := catalog.Names(domain.ModeBuy)
	if want := []string{"GreaterThan", "LessThan", "NewLow", "PriceDown"}; !reflect.DeepEqual(buy, want) {
		t.Errorf("buy names: expected %v, got %v", want, buy)
	}
	sell := catalog.Names(domain.ModeSell)
	if want := []string{"GreaterThan", "LessThan", "NewHigh", "PriceUp"}; !reflect.DeepEqual(sell, want) {
		t.Errorf("sell names: expected %v, got %v", want, sell)
	}
}

func TestNewCatalogRejectsDuplicates(t *testing.T) {
	rule := Rule{Name: "Always", Evaluate: func(domain.PriceSeries, *decimal.Decimal) bool { return true }}
	if _, err := NewCatalog(rule, rule); err == nil {
		t.Fatal("expected duplicate rule error")
	}
}
