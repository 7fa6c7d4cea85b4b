package market

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/NasaVasa/pushwatch/internal/domain"
	"go.uber.org/zap"
)

type HTTPSource struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

func NewHTTPSource(baseURL string, timeout time.Duration, logger *zap.Logger) *HTTPSource {
	return &HTTPSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// GetSeries fetches the latest series for a ticker. An unknown ticker yields
// an empty series rather than an error.
func (s *HTTPSource) GetSeries(ctx context.Context, tickerID string) (domain.PriceSeries, error) {
	endpoint := fmt.Sprintf("%s/tickers/%s/series", s.baseURL, url.PathEscape(tickerID))
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	response, err := s.client.Do(request)
	if err != nil {
		s.logger.Error("price request failed", zap.String("ticker_id", tickerID), zap.String("url", endpoint), zap.Error(err))
		return nil, fmt.Errorf("market: get series %s: %w", tickerID, err)
	}
	defer response.Body.Close()

	s.logger.Debug(
		"price request complete",
		zap.String("ticker_id", tickerID),
		zap.Int("status", response.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	if response.StatusCode == http.StatusNotFound {
		return domain.PriceSeries{}, nil
	}
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return nil, fmt.Errorf("market: get series %s: status %d", tickerID, response.StatusCode)
	}

	var points []seriesPoint
	if err := json.NewDecoder(response.Body).Decode(&points); err != nil {
		return nil, fmt.Errorf("market: decode series %s: %w", tickerID, err)
	}
	series, err := mapSeries(points)
	if err != nil {
		return nil, fmt.Errorf("market: series %s: %w", tickerID, err)
	}
	return series, nil
}
