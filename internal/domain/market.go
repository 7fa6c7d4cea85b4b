package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// PricePoint is one timestamped snapshot. Prices are in feed order; the last
// element is the most recent price of the snapshot.
type PricePoint struct {
	Timestamp time.Time
	Prices    []decimal.Decimal
}

func (p PricePoint) Latest() (decimal.Decimal, bool) {
	if len(p.Prices) == 0 {
		return decimal.Decimal{}, false
	}
	return p.Prices[len(p.Prices)-1], true
}

// PriceSeries is ordered oldest first.
type PriceSeries []PricePoint

// Latest returns the most recent price available in the series.
func (s PriceSeries) Latest() (decimal.Decimal, bool) {
	for i := len(s) - 1; i >= 0; i-- {
		if price, ok := s[i].Latest(); ok {
			return price, true
		}
	}
	return decimal.Decimal{}, false
}

type PriceSource interface {
	GetSeries(ctx context.Context, tickerID string) (PriceSeries, error)
}
