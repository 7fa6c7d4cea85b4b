package telegram

import (
	"context"

	"github.com/NasaVasa/pushwatch/internal/domain"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

type messageSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type Bot struct {
	api         *tgbotapi.BotAPI
	handlers    *Handlers
	pollTimeout int
}

func NewAPI(token string) (*tgbotapi.BotAPI, error) {
	return tgbotapi.NewBotAPI(token)
}

func NewBot(api *tgbotapi.BotAPI, handlers *Handlers, pollTimeout int) *Bot {
	return &Bot{api: api, handlers: handlers, pollTimeout: pollTimeout}
}

func (b *Bot) Start(ctx context.Context) error {
	config := tgbotapi.NewUpdate(0)
	config.Timeout = b.pollTimeout
	updates := b.api.GetUpdatesChan(config)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.handlers.HandleUpdate(ctx, b.api, update)
		}
	}
}

// Mirror copies every push payload to the operator chat. It ignores the
// subscription keys and is meant to run next to the web push sender.
type Mirror struct {
	api    messageSender
	chatID int64
	logger *zap.Logger
}

func NewMirror(api messageSender, chatID int64, logger *zap.Logger) *Mirror {
	return &Mirror{api: api, chatID: chatID, logger: logger}
}

func (m *Mirror) Send(ctx context.Context, identity domain.PushIdentity, payload domain.PushPayload) error {
	m.logger.Debug("telegram mirror send", zap.Int64("chat_id", m.chatID), zap.String("ticker_id", payload.Data.TickerID))
	if _, err := m.api.Send(tgbotapi.NewMessage(m.chatID, formatPush(payload))); err != nil {
		m.logger.Warn("failed to mirror push", zap.Error(err))
		return err
	}
	return nil
}

var _ domain.PushSender = (*Mirror)(nil)
