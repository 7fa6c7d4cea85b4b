package push

import (
	"context"
	"errors"

	"github.com/NasaVasa/pushwatch/internal/domain"
	"go.uber.org/zap"
)

// Fanout delivers each payload to every sender. A failing sender does not
// stop delivery to the others; all failures are joined into the result.
type Fanout struct {
	senders []domain.PushSender
	logger  *zap.Logger
}

func NewFanout(logger *zap.Logger, senders ...domain.PushSender) *Fanout {
	return &Fanout{senders: senders, logger: logger}
}

func (f *Fanout) Send(ctx context.Context, identity domain.PushIdentity, payload domain.PushPayload) error {
	var errs []error
	for i, sender := range f.senders {
		if err := sender.Send(ctx, identity, payload); err != nil {
			f.logger.Warn("push sender failed", zap.Int("sender", i), zap.String("ticker_id", payload.Data.TickerID), zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
