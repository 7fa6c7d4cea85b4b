package push

import (
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/NasaVasa/pushwatch/internal/domain"
	webpush "github.com/SherClockHolmes/webpush-go"
	"go.uber.org/zap"
)

func newIdentity(t *testing.T, endpoint string) domain.PushIdentity {
	t.Helper()
	key, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate client key: %v", err)
	}
	auth := make([]byte, 16)
	if _, err := rand.Read(auth); err != nil {
		t.Fatalf("generate auth secret: %v", err)
	}
	return domain.PushIdentity{
		Endpoint: endpoint,
		P256dh:   base64.RawURLEncoding.EncodeToString(key.PublicKey().Bytes()),
		Auth:     base64.RawURLEncoding.EncodeToString(auth),
	}
}

func newSender(t *testing.T) *WebPushSender {
	t.Helper()
	privateKey, publicKey, err := webpush.GenerateVAPIDKeys()
	if err != nil {
		t.Fatalf("generate vapid keys: %v", err)
	}
	vapid := VAPIDConfig{PublicKey: publicKey, PrivateKey: privateKey, Subscriber: "ops@example.com"}
	return NewWebPushSender(vapid, 60, time.Second, zap.NewNop())
}

var testPayload = domain.PushPayload{
	Title: "Finance",
	Body:  "AAPL crossed 100",
	Icon:  "/logo.png",
	Data:  domain.PushData{ExchangeID: "NASDAQ", TickerID: "AAPL"},
}

func TestWebPushSenderDelivers(t *testing.T) {
	var gotEncoding, gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotEncoding = r.Header.Get("Content-Encoding")
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	sender := newSender(t)
	if err := sender.Send(context.Background(), newIdentity(t, server.URL+"/push/abc"), testPayload); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if gotEncoding != "aes128gcm" {
		t.Errorf("expected aes128gcm content encoding, got %q", gotEncoding)
	}
	if !strings.HasPrefix(gotAuth, "vapid ") {
		t.Errorf("expected vapid authorization header, got %q", gotAuth)
	}
}

func TestWebPushSenderGone(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGone)
	}))
	defer server.Close()

	err := newSender(t).Send(context.Background(), newIdentity(t, server.URL), testPayload)
	if !errors.Is(err, ErrSubscriptionGone) {
		t.Fatalf("expected ErrSubscriptionGone, got %v", err)
	}
}

func TestWebPushSenderServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	err := newSender(t).Send(context.Background(), newIdentity(t, server.URL), testPayload)
	if err == nil || errors.Is(err, ErrSubscriptionGone) {
		t.Fatalf("expected plain delivery error, got %v", err)
	}
}

type recordingSender struct {
	err   error
	calls int
}

func (r *recordingSender) Send(ctx context.Context, identity domain.PushIdentity, payload domain.PushPayload) error {
	r.calls++
	return r.err
}

func TestFanoutContinuesAfterFailure(t *testing.T) {
	failing := &recordingSender{err: errors.New("boom")}
	healthy := &recordingSender{}
	fanout := NewFanout(zap.NewNop(), failing, healthy)

	err := fanout.Send(context.Background(), domain.PushIdentity{}, testPayload)
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected joined error, got %v", err)
	}
	if failing.calls != 1 || healthy.calls != 1 {
		t.Errorf("expected both senders called once, got %d and %d", failing.calls, healthy.calls)
	}

	if err := NewFanout(zap.NewNop(), healthy).Send(context.Background(), domain.PushIdentity{}, testPayload); err != nil {
		t.Errorf("expected nil error, got %v", err)
	}
}
