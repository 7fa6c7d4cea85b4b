// Package push delivers notification payloads to browser push services.
package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/NasaVasa/pushwatch/internal/domain"
	webpush "github.com/SherClockHolmes/webpush-go"
	"go.uber.org/zap"
)

// ErrSubscriptionGone means the push service no longer accepts messages for
// the endpoint (HTTP 404 or 410).
var ErrSubscriptionGone = errors.New("push subscription gone")

type VAPIDConfig struct {
	PublicKey  string
	PrivateKey string
	Subscriber string
}

type WebPushSender struct {
	vapid  VAPIDConfig
	ttl    int
	client *http.Client
	logger *zap.Logger
}

func NewWebPushSender(vapid VAPIDConfig, ttl int, timeout time.Duration, logger *zap.Logger) *WebPushSender {
	return &WebPushSender{
		vapid:  vapid,
		ttl:    ttl,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

func (s *WebPushSender) Send(ctx context.Context, identity domain.PushIdentity, payload domain.PushPayload) error {
	message, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("push: marshal payload: %w", err)
	}

	subscription := &webpush.Subscription{
		Endpoint: identity.Endpoint,
		Keys: webpush.Keys{
			P256dh: identity.P256dh,
			Auth:   identity.Auth,
		},
	}

	response, err := webpush.SendNotificationWithContext(ctx, message, subscription, &webpush.Options{
		HTTPClient:      s.client,
		Subscriber:      s.vapid.Subscriber,
		VAPIDPublicKey:  s.vapid.PublicKey,
		VAPIDPrivateKey: s.vapid.PrivateKey,
		TTL:             s.ttl,
		Urgency:         webpush.UrgencyHigh,
	})
	if err != nil {
		return fmt.Errorf("push: send: %w", err)
	}
	defer response.Body.Close()

	switch {
	case response.StatusCode == http.StatusNotFound || response.StatusCode == http.StatusGone:
		return fmt.Errorf("%w: status %d", ErrSubscriptionGone, response.StatusCode)
	case response.StatusCode < 200 || response.StatusCode >= 300:
		body, _ := io.ReadAll(io.LimitReader(response.Body, 512))
		return fmt.Errorf("push: unexpected status %d: %s", response.StatusCode, string(body))
	}

	s.logger.Debug("push delivered", zap.String("ticker_id", payload.Data.TickerID), zap.Int("status", response.StatusCode))
	return nil
}
