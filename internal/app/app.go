package app

import (
	"context"
	"errors"
	"time"

	"github.com/NasaVasa/pushwatch/internal/condition"
	"github.com/NasaVasa/pushwatch/internal/config"
	"github.com/NasaVasa/pushwatch/internal/delivery/telegram"
	"github.com/NasaVasa/pushwatch/internal/domain"
	"github.com/NasaVasa/pushwatch/internal/exchange"
	"github.com/NasaVasa/pushwatch/internal/infra/cache"
	"github.com/NasaVasa/pushwatch/internal/infra/db"
	"github.com/NasaVasa/pushwatch/internal/infra/log"
	"github.com/NasaVasa/pushwatch/internal/infra/market"
	"github.com/NasaVasa/pushwatch/internal/infra/push"
	"github.com/NasaVasa/pushwatch/internal/usecase"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type App struct {
	engine   telegram.TickRunner
	handlers *telegram.Handlers
	bot      *telegram.Bot
	stream   *market.StreamSource
	interval time.Duration
	selector string
	logger   *zap.Logger
	cleanups []func() error
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := log.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}
	a := &App{interval: cfg.TickInterval, selector: cfg.TickSelector, logger: logger}
	if err := a.wire(ctx, cfg); err != nil {
		a.Shutdown()
		return nil, err
	}
	return a, nil
}

func (a *App) wire(ctx context.Context, cfg config.Config) error {
	logger := a.logger

	dbConn, err := db.Open(db.Options{
		DSN:             cfg.PostgresDSN(),
		MaxIdleConns:    cfg.DBMaxIdleConns,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
		SlowThreshold:   cfg.DBSlowThreshold,
	}, logger)
	if err != nil {
		return err
	}
	a.cleanups = append(a.cleanups, func() error {
		sqlDB, err := dbConn.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	})

	repo := db.NewSubscriptionRepository(dbConn)
	var lister domain.SubscriptionLister = repo
	if cfg.RedisAddr != "" {
		rdb, err := cache.NewClient(ctx, cache.ClientConfig{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		if err != nil {
			return err
		}
		a.cleanups = append(a.cleanups, rdb.Close)
		lister = cache.NewCachedLister(rdb, repo, cfg.SubscriptionCacheTTL, logger)
	}

	var prices domain.PriceSource
	if cfg.PriceStreamURL != "" {
		a.stream = market.NewStreamSource(cfg.PriceStreamURL, cfg.PriceStreamReadTimeout, cfg.PriceStreamBuffer, cfg.PriceStreamMaxAge, logger)
		prices = a.stream
	} else {
		prices = market.NewHTTPSource(cfg.PriceAPIBaseURL, cfg.PriceAPITimeout, logger)
	}

	gate, err := loadGate(cfg.ExchangeCalendarPath)
	if err != nil {
		return err
	}

	var sender domain.PushSender = push.NewWebPushSender(push.VAPIDConfig{
		PublicKey:  cfg.VAPIDPublicKey,
		PrivateKey: cfg.VAPIDPrivateKey,
		Subscriber: cfg.VAPIDSubscriber,
	}, cfg.PushTTL, cfg.PushTimeout, logger)

	var botAPI *tgbotapi.BotAPI
	if cfg.TelegramBotToken != "" {
		botAPI, err = telegram.NewAPI(cfg.TelegramBotToken)
		if err != nil {
			return err
		}
		sender = push.NewFanout(logger, sender, telegram.NewMirror(botAPI, cfg.TelegramOperatorChatID, logger))
	}

	catalog := condition.DefaultCatalog()
	engine := usecase.NewNotificationEngine(
		lister,
		repo,
		prices,
		gate,
		condition.NewEvaluator(catalog),
		sender,
		usecase.EngineOptions{
			Workers:                cfg.WorkerCount,
			SuppressPushForDeleted: cfg.SuppressPushForDeleted,
			PushTitle:              cfg.PushTitle,
			PushIcon:               cfg.PushIcon,
		},
		logger,
	)
	a.engine = engine

	if botAPI != nil {
		a.handlers = telegram.NewHandlers(engine, catalog, cfg.TelegramOperatorChatID, logger)
		a.bot = telegram.NewBot(botAPI, a.handlers, cfg.TelegramPollTimeout)
	}
	return nil
}

func loadGate(path string) (*exchange.Gate, error) {
	if path == "" {
		return exchange.Default()
	}
	return exchange.LoadFile(path)
}

// Run ticks once immediately and then on every interval boundary until ctx
// is done. The price stream and the operator bot run alongside when enabled.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info(
		"pushwatch service starting",
		zap.Duration("tick_interval", a.interval),
		zap.String("selector", a.selector),
		zap.Bool("price_stream", a.stream != nil),
		zap.Bool("operator_bot", a.bot != nil),
	)

	g, ctx := errgroup.WithContext(ctx)
	if a.stream != nil {
		g.Go(func() error { return a.stream.Run(ctx) })
	}
	if a.bot != nil {
		g.Go(func() error { return a.bot.Start(ctx) })
	}
	g.Go(func() error {
		a.schedule(ctx)
		return nil
	})
	return g.Wait()
}

func (a *App) schedule(ctx context.Context) {
	a.tick(ctx)
	for {
		timer := time.NewTimer(time.Until(nextBoundary(time.Now(), a.interval)))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			a.tick(ctx)
		}
	}
}

func (a *App) tick(ctx context.Context) {
	report, err := a.engine.Run(ctx, a.selector)
	if err != nil {
		a.logger.Error("tick failed", zap.String("tick_id", report.TickID), zap.Error(err))
		return
	}
	if a.handlers != nil {
		a.handlers.Record(report)
	}
}

func nextBoundary(now time.Time, interval time.Duration) time.Time {
	return now.Truncate(interval).Add(interval)
}

func (a *App) Shutdown() {
	a.logger.Info("pushwatch service shutting down")
	var errs []error
	for i := len(a.cleanups) - 1; i >= 0; i-- {
		if err := a.cleanups[i](); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("failed to release resources", zap.Error(err))
	}
	a.cleanups = nil
	_ = a.logger.Sync()
}
