package config

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// DefaultTalkURLPattern matches public TED talk pages
const DefaultTalkURLPattern = `^https?://(www\.)?ted\.com/talks/[A-Za-z0-9_\-]+/?(\?.*)?$`

// Config holds all application configuration
type Config struct {
	DB      DBConfig
	Fetcher FetcherConfig
	Catalog CatalogConfig
	Server  ServerConfig
	Auth    AuthConfig
	Bot     BotConfig
	Redis   RedisConfig
}

// DBConfig holds database configuration
type DBConfig struct {
	Driver   string `envconfig:"DB_DRIVER" default:"mysql"`
	Host     string `envconfig:"DB_HOST" default:"localhost"`
	Port     int    `envconfig:"DB_PORT" default:"3306"`
	User     string `envconfig:"DB_USER" default:"root"`
	Password string `envconfig:"DB_PASSWORD"`
	Database string `envconfig:"DB_NAME" default:"tedshelf"`
	Path     string `envconfig:"DB_PATH" default:"tedshelf.db"`
	MaxConns int    `envconfig:"DB_MAX_CONNS" default:"10"`
}

// FetcherConfig holds talk page fetcher configuration
type FetcherConfig struct {
	RateLimit       float64       `envconfig:"FETCHER_RATE_LIMIT" default:"5"`
	Burst           int           `envconfig:"FETCHER_BURST" default:"5"`
	Timeout         time.Duration `envconfig:"FETCHER_TIMEOUT" default:"20s"`
	Concurrency     int           `envconfig:"FETCHER_CONCURRENCY" default:"4"`
	UserAgent       string        `envconfig:"FETCHER_USER_AGENT"`
	ProxyURL        string        `envconfig:"FETCHER_PROXY_URL"`
	BrowserFallback bool          `envconfig:"FETCHER_BROWSER_FALLBACK" default:"false"`
}

// CatalogConfig holds ingestion and listing policy
type CatalogConfig struct {
	TalkURLPattern  string        `envconfig:"TALK_URL_PATTERN"`
	Languages       []string      `envconfig:"CATALOG_LANGUAGES" default:"en,ko,ja,zh-cn,zh-tw,es,fr,de"`
	DefaultLanguage string        `envconfig:"CATALOG_DEFAULT_LANGUAGE" default:"en"`
	PageSize        int           `envconfig:"CATALOG_PAGE_SIZE" default:"20"`
	StatsInterval   time.Duration `envconfig:"CATALOG_STATS_INTERVAL" default:"5m"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port int `envconfig:"SERVER_PORT" default:"8080"`
}

// AuthConfig holds API authentication configuration
type AuthConfig struct {
	JWTSecret string `envconfig:"AUTH_JWT_SECRET" required:"true"`
}

// BotConfig holds Telegram bot configuration. An empty token disables the bot
type BotConfig struct {
	Token string `envconfig:"BOT_TOKEN"`
}

// RedisConfig holds the talk id cache configuration. An empty address keeps
// the cache in-process, bounded by MaxEntries and swept every SweepInterval
type RedisConfig struct {
	Addr          string        `envconfig:"REDIS_ADDR"`
	Password      string        `envconfig:"REDIS_PASSWORD"`
	DB            int           `envconfig:"REDIS_DB" default:"0"`
	TTL           time.Duration `envconfig:"REDIS_TTL" default:"24h"`
	MaxEntries    int           `envconfig:"CACHE_MAX_ENTRIES" default:"10000"`
	SweepInterval time.Duration `envconfig:"CACHE_SWEEP_INTERVAL" default:"10m"`
}

// DSN returns the data source name for the configured driver
func (c *DBConfig) DSN() string {
	switch c.Driver {
	case "postgres":
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
			c.Host, c.Port, c.User, c.Password, c.Database)
	case "sqlite":
		return c.Path
	default:
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
			c.User, c.Password, c.Host, c.Port, c.Database)
	}
}

// URLPattern returns the talk URL pattern, falling back to the TED default
func (c *CatalogConfig) URLPattern() string {
	if strings.TrimSpace(c.TalkURLPattern) == "" {
		return DefaultTalkURLPattern
	}
	return c.TalkURLPattern
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("", &cfg.DB); err != nil {
		return nil, fmt.Errorf("failed to load db config: %w", err)
	}

	if err := envconfig.Process("", &cfg.Fetcher); err != nil {
		return nil, fmt.Errorf("failed to load fetcher config: %w", err)
	}

	if err := envconfig.Process("", &cfg.Catalog); err != nil {
		return nil, fmt.Errorf("failed to load catalog config: %w", err)
	}

	if err := envconfig.Process("", &cfg.Server); err != nil {
		return nil, fmt.Errorf("failed to load server config: %w", err)
	}

	if err := envconfig.Process("", &cfg.Auth); err != nil {
		return nil, fmt.Errorf("failed to load auth config: %w", err)
	}

	if err := envconfig.Process("", &cfg.Bot); err != nil {
		return nil, fmt.Errorf("failed to load bot config: %w", err)
	}

	if err := envconfig.Process("", &cfg.Redis); err != nil {
		return nil, fmt.Errorf("failed to load redis config: %w", err)
	}

	return &cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.DB.Driver {
	case "mysql", "postgres":
		if c.DB.Password == "" {
			return fmt.Errorf("DB_PASSWORD is required for %s", c.DB.Driver)
		}
	case "sqlite":
	default:
		return fmt.Errorf("DB_DRIVER must be one of mysql, postgres, sqlite")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("AUTH_JWT_SECRET is required")
	}
	if c.Fetcher.RateLimit <= 0 {
		return fmt.Errorf("FETCHER_RATE_LIMIT must be positive")
	}
	if c.Fetcher.Concurrency <= 0 {
		return fmt.Errorf("FETCHER_CONCURRENCY must be positive")
	}
	if c.Fetcher.Timeout <= 0 {
		return fmt.Errorf("FETCHER_TIMEOUT must be positive")
	}
	if _, err := regexp.Compile(c.Catalog.URLPattern()); err != nil {
		return fmt.Errorf("TALK_URL_PATTERN is not a valid regular expression: %w", err)
	}
	if c.Catalog.PageSize <= 0 {
		return fmt.Errorf("CATALOG_PAGE_SIZE must be positive")
	}
	if strings.TrimSpace(c.Catalog.DefaultLanguage) == "" {
		return fmt.Errorf("CATALOG_DEFAULT_LANGUAGE is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535")
	}
	return nil
}
