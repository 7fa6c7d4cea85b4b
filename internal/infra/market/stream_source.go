package market

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/NasaVasa/pushwatch/internal/domain"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const maxReconnectBackoff = 30 * time.Second

// StreamSource keeps a bounded in-memory series per ticker fed by a websocket
// price stream. Tickers are subscribed through Track, or on their first
// GetSeries, and stay empty until the feed has pushed at least one point.
// Points older than maxAge are not served.
type StreamSource struct {
	url         string
	dialer      *websocket.Dialer
	readTimeout time.Duration
	bufferSize  int
	maxAge      time.Duration
	now         func() time.Time
	logger      *zap.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	tracked map[string]bool
	series  map[string]domain.PriceSeries

	writeMu sync.Mutex
}

func NewStreamSource(url string, readTimeout time.Duration, bufferSize int, maxAge time.Duration, logger *zap.Logger) *StreamSource {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	return &StreamSource{
		url: url,
		dialer: &websocket.Dialer{
			Proxy: http.ProxyFromEnvironment,
		},
		readTimeout: readTimeout,
		bufferSize:  bufferSize,
		maxAge:      maxAge,
		now:         time.Now,
		logger:      logger,
		tracked:     make(map[string]bool),
		series:      make(map[string]domain.PriceSeries),
	}
}

// Track subscribes tickers ahead of their first GetSeries so the buffer is
// warm by the time a gate opens.
func (s *StreamSource) Track(tickerIDs ...string) {
	s.mu.Lock()
	var added []string
	for _, id := range tickerIDs {
		if id == "" || s.tracked[id] {
			continue
		}
		s.tracked[id] = true
		added = append(added, id)
	}
	conn := s.conn
	s.mu.Unlock()

	if len(added) == 0 || conn == nil {
		return
	}
	sort.Strings(added)
	if err := s.subscribe(conn, added); err != nil {
		s.logger.Warn("price stream subscribe failed", zap.Strings("ticker_ids", added), zap.Error(err))
	}
}

func (s *StreamSource) GetSeries(ctx context.Context, tickerID string) (domain.PriceSeries, error) {
	s.Track(tickerID)

	s.mu.Lock()
	defer s.mu.Unlock()
	return fresh(s.series[tickerID], s.now, s.maxAge), nil
}

// fresh copies the points not older than maxAge. A zero maxAge keeps all.
func fresh(series domain.PriceSeries, now func() time.Time, maxAge time.Duration) domain.PriceSeries {
	first := 0
	if maxAge > 0 {
		cutoff := now().Add(-maxAge)
		for first < len(series) && series[first].Timestamp.Before(cutoff) {
			first++
		}
	}
	out := make(domain.PriceSeries, len(series)-first)
	copy(out, series[first:])
	return out
}

// Run holds the stream open until ctx is done, reconnecting with backoff.
func (s *StreamSource) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		started := time.Now()
		err := s.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if time.Since(started) > maxReconnectBackoff {
			backoff = time.Second
		}
		s.logger.Warn("price stream disconnected", zap.String("url", s.url), zap.Duration("retry_in", backoff), zap.Error(err))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxReconnectBackoff {
			backoff = maxReconnectBackoff
		}
	}
}

func (s *StreamSource) session(ctx context.Context) error {
	s.logger.Info("price stream connect start", zap.String("url", s.url))
	conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("market: dial stream: %w", err)
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	s.mu.Lock()
	s.conn = conn
	tickers := make([]string, 0, len(s.tracked))
	for id := range s.tracked {
		tickers = append(tickers, id)
	}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.conn = nil
		s.mu.Unlock()
	}()

	s.logger.Info("price stream connected", zap.String("url", s.url), zap.Int("ticker_count", len(tickers)))
	if len(tickers) > 0 {
		sort.Strings(tickers)
		if err := s.subscribe(conn, tickers); err != nil {
			return fmt.Errorf("market: subscribe: %w", err)
		}
	}

	for {
		if s.readTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(s.readTimeout))
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if err := s.handle(data); err != nil {
			s.logger.Debug("price stream message ignored", zap.Error(err))
		}
	}
}

func (s *StreamSource) subscribe(conn *websocket.Conn, tickerIDs []string) error {
	payload := map[string]any{
		"type":       "subscribe",
		"ticker_ids": tickerIDs,
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return conn.WriteJSON(payload)
}

func (s *StreamSource) handle(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return fmt.Errorf("empty message")
	}
	var msg streamMessage
	if err := json.Unmarshal(trimmed, &msg); err != nil {
		return fmt.Errorf("decode stream message: %w", err)
	}
	if msg.EventType != "price" || msg.TickerID == "" {
		return nil
	}
	points, err := mapSeries(msg.Points)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.series[msg.TickerID] = appendBounded(s.series[msg.TickerID], points, s.bufferSize)
	return nil
}

// appendBounded appends points, replacing the tail point when a snapshot for
// the same timestamp is re-sent, and keeps at most limit points.
func appendBounded(series domain.PriceSeries, points domain.PriceSeries, limit int) domain.PriceSeries {
	for _, point := range points {
		if n := len(series); n > 0 && series[n-1].Timestamp.Equal(point.Timestamp) {
			series[n-1] = point
			continue
		}
		series = append(series, point)
	}
	if len(series) > limit {
		trimmed := make(domain.PriceSeries, limit)
		copy(trimmed, series[len(series)-limit:])
		series = trimmed
	}
	return series
}
