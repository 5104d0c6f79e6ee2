package configs

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Store backends
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Auth      AuthConfig
	Market    MarketConfig
	Telegram  TelegramConfig
	Scheduler SchedulerConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port string `env:"PORT" envDefault:"8080"`
	Env  string `env:"GO_ENV" envDefault:"development"`
}

// DatabaseConfig holds ledger store configuration
type DatabaseConfig struct {
	Store      string        `env:"STORE" envDefault:"postgres"`
	URL        string        `env:"DATABASE_URL"`
	MaxRetries int           `env:"STORE_MAX_RETRIES" envDefault:"10"`
	TxTimeout  time.Duration `env:"STORE_TX_TIMEOUT" envDefault:"10s"`
}

// RedisConfig holds Redis configuration; an empty URL disables live updates
type RedisConfig struct {
	URL string `env:"REDIS_URL"`
}

// AuthConfig holds JWT settings
type AuthConfig struct {
	JWTSecret string        `env:"JWT_SECRET"`
	TokenTTL  time.Duration `env:"JWT_TTL" envDefault:"24h"`
}

// MarketConfig holds the remote market data sources
type MarketConfig struct {
	FinnhubAPIKey      string        `env:"FINNHUB_API_KEY"`
	FinnhubURL         string        `env:"FINNHUB_URL" envDefault:"https://finnhub.io/api/v1"`
	AlphaVantageAPIKey string        `env:"ALPHA_VANTAGE_API_KEY"`
	AlphaVantageURL    string        `env:"ALPHA_VANTAGE_URL" envDefault:"https://www.alphavantage.co"`
	FrankfurterURL     string        `env:"FRANKFURTER_URL" envDefault:"https://api.frankfurter.app"`
	QuoteCacheTTL      time.Duration `env:"QUOTE_CACHE_TTL" envDefault:"30s"`
	RateCacheTTL       time.Duration `env:"RATE_CACHE_TTL" envDefault:"1h"`
	HistoryCacheTTL    time.Duration `env:"HISTORY_CACHE_TTL" envDefault:"6h"`
}

// TelegramConfig holds the alert notification channel
type TelegramConfig struct {
	BotToken string `env:"TELEGRAM_BOT_TOKEN"`
	ChatID   string `env:"TELEGRAM_CHAT_ID"`
	APIURL   string `env:"TELEGRAM_API_URL" envDefault:"https://api.telegram.org"`
	Timezone string `env:"TZ" envDefault:"UTC"`
}

// SchedulerConfig holds the price alert sweep timing
type SchedulerConfig struct {
	AlertSweepSchedule     string        `env:"ALERT_SWEEP_SCHEDULE" envDefault:"@hourly"`
	AlertSweepInitialDelay time.Duration `env:"ALERT_SWEEP_INITIAL_DELAY" envDefault:"1m"`
	AlertSweepRetryDelay   time.Duration `env:"ALERT_SWEEP_RETRY_DELAY" envDefault:"5m"`
}

// IsProduction reports whether GO_ENV is production
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// Load reads .env (if present) and parses the environment
func Load() (*Config, error) {
	// .env is optional; real environment variables win
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Database.Store {
	case StorePostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE=%s", StorePostgres)
		}
	case StoreMemory:
	default:
		return fmt.Errorf("unknown STORE %q (want %s or %s)", c.Database.Store, StorePostgres, StoreMemory)
	}

	if c.Database.MaxRetries < 1 {
		return fmt.Errorf("STORE_MAX_RETRIES must be at least 1")
	}
	if c.IsProduction() && c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required in production")
	}
	return nil
}
