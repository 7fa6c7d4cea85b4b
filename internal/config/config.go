package config

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	DBHost            string        `env:"DB_HOST,required"`
	DBPort            int           `env:"DB_PORT,default=5432"`
	DBUser            string        `env:"DB_USER,required"`
	DBPassword        string        `env:"DB_PASSWORD,required"`
	DBName            string        `env:"DB_NAME,required"`
	DBSSLMode         string        `env:"DB_SSLMODE,default=disable"`
	DBMaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS,default=10"`
	DBMaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS,default=25"`
	DBConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME,default=30m"`
	DBSlowThreshold   time.Duration `env:"DB_SLOW_THRESHOLD,default=500ms"`

	RedisAddr            string        `env:"REDIS_ADDR"`
	RedisPassword        string        `env:"REDIS_PASSWORD"`
	RedisDB              int           `env:"REDIS_DB,default=0"`
	SubscriptionCacheTTL time.Duration `env:"SUBSCRIPTION_CACHE_TTL,default=30s"`

	PriceAPIBaseURL        string        `env:"PRICE_API_BASE_URL,required"`
	PriceAPITimeout        time.Duration `env:"PRICE_API_TIMEOUT,default=10s"`
	PriceStreamURL         string        `env:"PRICE_STREAM_URL"`
	PriceStreamReadTimeout time.Duration `env:"PRICE_STREAM_READ_TIMEOUT,default=0s"`
	PriceStreamBuffer      int           `env:"PRICE_STREAM_BUFFER,default=500"`
	PriceStreamMaxAge      time.Duration `env:"PRICE_STREAM_MAX_AGE,default=24h"`

	ExchangeCalendarPath string `env:"EXCHANGE_CALENDAR_PATH"`

	VAPIDPublicKey  string        `env:"VAPID_PUBLIC_KEY,required"`
	VAPIDPrivateKey string        `env:"VAPID_PRIVATE_KEY,required"`
	VAPIDSubscriber string        `env:"VAPID_SUBSCRIBER,required"`
	PushTTL         int           `env:"PUSH_TTL,default=3600"`
	PushTimeout     time.Duration `env:"PUSH_TIMEOUT,default=10s"`
	PushTitle       string        `env:"PUSH_TITLE,default=Finance"`
	PushIcon        string        `env:"PUSH_ICON,default=/logo.png"`

	TelegramBotToken       string `env:"TELEGRAM_BOT_TOKEN"`
	TelegramOperatorChatID int64  `env:"TELEGRAM_OPERATOR_CHAT_ID"`
	TelegramPollTimeout    int    `env:"TELEGRAM_POLL_TIMEOUT,default=60"`

	TickInterval           time.Duration `env:"TICK_INTERVAL,default=1m"`
	TickSelector           string        `env:"TICK_SELECTOR,default=all"`
	WorkerCount            int           `env:"WORKER_COUNT,default=8"`
	SuppressPushForDeleted bool          `env:"SUPPRESS_PUSH_FOR_DELETED,default=false"`

	LogLevel  string `env:"LOG_LEVEL,default=info"`
	LogFormat string `env:"LOG_FORMAT,default=json"`
}

func Load(ctx context.Context) (Config, error) {
	return load(ctx, envconfig.OsLookuper())
}

func load(ctx context.Context, lookuper envconfig.Lookuper) (Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: lookuper}); err != nil {
		return Config{}, err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.TickInterval < time.Second {
		return fmt.Errorf("TICK_INTERVAL must be at least 1s, got %s", c.TickInterval)
	}
	if c.WorkerCount <= 0 {
		return fmt.Errorf("WORKER_COUNT must be positive, got %d", c.WorkerCount)
	}
	if c.TelegramBotToken != "" && c.TelegramOperatorChatID == 0 {
		return errors.New("TELEGRAM_OPERATOR_CHAT_ID is required when TELEGRAM_BOT_TOKEN is set")
	}
	return nil
}

// PostgresDSN renders the connection string for gorm's postgres driver.
func (c Config) PostgresDSN() string {
	dsn := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.DBUser, c.DBPassword),
		Host:     fmt.Sprintf("%s:%d", c.DBHost, c.DBPort),
		Path:     c.DBName,
		RawQuery: url.Values{"sslmode": {c.DBSSLMode}}.Encode(),
	}
	return dsn.String()
}
