package telegram

import (
	"context"
	"sync"

	"github.com/NasaVasa/pushwatch/internal/condition"
	"github.com/NasaVasa/pushwatch/internal/domain"
	"github.com/NasaVasa/pushwatch/internal/usecase"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

type TickRunner interface {
	Run(ctx context.Context, selector string) (usecase.TickReport, error)
}

type RuleCatalog interface {
	Names(mode domain.ConditionMode) []string
	Describe(name string) (condition.Rule, error)
}

// Handlers serves the operator chat only; messages from any other chat are
// ignored.
type Handlers struct {
	engine         TickRunner
	rules          RuleCatalog
	operatorChatID int64
	logger         *zap.Logger

	mu   sync.Mutex
	last *usecase.TickReport
}

func NewHandlers(engine TickRunner, rules RuleCatalog, operatorChatID int64, logger *zap.Logger) *Handlers {
	return &Handlers{engine: engine, rules: rules, operatorChatID: operatorChatID, logger: logger}
}

// Record stores report as the latest one shown by /status.
func (h *Handlers) Record(report usecase.TickReport) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.last = &report
}

func (h *Handlers) lastReport() (usecase.TickReport, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.last == nil {
		return usecase.TickReport{}, false
	}
	return *h.last, true
}

func (h *Handlers) HandleUpdate(ctx context.Context, api messageSender, update tgbotapi.Update) {
	if update.Message == nil || update.Message.Chat == nil {
		return
	}
	if update.Message.Chat.ID != h.operatorChatID {
		h.logger.Warn("message from foreign chat ignored", zap.Int64("chat_id", update.Message.Chat.ID))
		return
	}
	if update.Message.IsCommand() {
		h.handleCommand(ctx, api, update)
	}
}

func (h *Handlers) handleCommand(ctx context.Context, api messageSender, update tgbotapi.Update) {
	command := update.Message.Command()
	args := update.Message.CommandArguments()
	chatID := update.Message.Chat.ID

	h.logger.Info(
		"telegram command received",
		zap.Int64("chat_id", chatID),
		zap.String("command", command),
		zap.String("args", args),
	)

	switch command {
	case "start", "help":
		h.reply(api, chatID, HelpText)
	case "tick":
		selector, err := ParseTickArgs(args)
		if err != nil {
			h.reply(api, chatID, "Usage: /tick [endpoint|all]")
			return
		}
		report, err := h.engine.Run(ctx, selector)
		if err != nil {
			h.logger.Warn("manual tick failed", zap.String("selector", selector), zap.Error(err))
			h.reply(api, chatID, "Tick failed: "+err.Error())
			return
		}
		h.Record(report)
		h.logger.Info("manual tick complete", zap.String("tick_id", report.TickID))
		h.reply(api, chatID, FormatReport(report))
	case "rules":
		h.reply(api, chatID, FormatRules(h.rules))
	case "status":
		report, ok := h.lastReport()
		if !ok {
			h.reply(api, chatID, "No tick has completed yet.")
			return
		}
		h.reply(api, chatID, FormatReport(report))
	default:
		h.logger.Warn("unknown command", zap.String("command", command))
		h.reply(api, chatID, "Unknown command.\n\n"+HelpText)
	}
}

func (h *Handlers) reply(api messageSender, chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := api.Send(msg); err != nil {
		h.logger.Warn("failed to send message", zap.Error(err))
	}
}
