package market

import (
	"fmt"
	"strings"
	"time"

	"github.com/NasaVasa/pushwatch/internal/domain"
	"github.com/shopspring/decimal"
)

const feedDateLayout = "2006-01-02 15:04"

// seriesPoint is one snapshot as the price feed sends it:
// {"date": "2025-01-01 00:00", "data": [1000, 960, 950, 1010]}.
type seriesPoint struct {
	Date string            `json:"date"`
	Data []decimal.Decimal `json:"data"`
}

type streamMessage struct {
	EventType string        `json:"event_type"`
	TickerID  string        `json:"ticker_id"`
	Points    []seriesPoint `json:"points"`
}

func parseFeedDate(value string) (time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if ts, err := time.Parse(feedDateLayout, trimmed); err == nil {
		return ts, nil
	}
	ts, err := time.Parse(time.RFC3339, trimmed)
	if err != nil {
		return time.Time{}, fmt.Errorf("unexpected date format: %q", value)
	}
	return ts, nil
}

func mapSeries(points []seriesPoint) (domain.PriceSeries, error) {
	series := make(domain.PriceSeries, 0, len(points))
	for _, point := range points {
		ts, err := parseFeedDate(point.Date)
		if err != nil {
			return nil, err
		}
		series = append(series, domain.PricePoint{Timestamp: ts, Prices: point.Data})
	}
	return series, nil
}
