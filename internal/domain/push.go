package domain

import "context"

type PushData struct {
	ExchangeID string `json:"exchangeId"`
	TickerID   string `json:"tickerId"`
}

type PushPayload struct {
	Title string   `json:"title"`
	Body  string   `json:"body"`
	Icon  string   `json:"icon"`
	Data  PushData `json:"data"`
}

type PushSender interface {
	Send(ctx context.Context, identity PushIdentity, payload PushPayload) error
}
