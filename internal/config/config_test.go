package config

import (
	"os"
	"reflect"
	"testing"
	"time"
)

func TestLoad_WithRequiredEnvVars(t *testing.T) {
	os.Setenv("AUTH_JWT_SECRET", "test-secret")
	os.Setenv("DB_PASSWORD", "test-password")
	defer func() {
		os.Unsetenv("AUTH_JWT_SECRET")
		os.Unsetenv("DB_PASSWORD")
	}()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Auth.JWTSecret != "test-secret" {
		t.Errorf("Auth.JWTSecret = %v, want %v", cfg.Auth.JWTSecret, "test-secret")
	}
	if cfg.DB.Password != "test-password" {
		t.Errorf("DB.Password = %v, want %v", cfg.DB.Password, "test-password")
	}
}

func TestLoad_DefaultValues(t *testing.T) {
	os.Setenv("AUTH_JWT_SECRET", "test-secret")
	defer os.Unsetenv("AUTH_JWT_SECRET")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	// DB defaults
	if cfg.DB.Driver != "mysql" {
		t.Errorf("DB.Driver = %v, want %v", cfg.DB.Driver, "mysql")
	}
	if cfg.DB.Port != 3306 {
		t.Errorf("DB.Port = %v, want %v", cfg.DB.Port, 3306)
	}
	if cfg.DB.Database != "tedshelf" {
		t.Errorf("DB.Database = %v, want %v", cfg.DB.Database, "tedshelf")
	}
	if cfg.DB.MaxConns != 10 {
		t.Errorf("DB.MaxConns = %v, want %v", cfg.DB.MaxConns, 10)
	}

	// Fetcher defaults
	if cfg.Fetcher.RateLimit != 5 {
		t.Errorf("Fetcher.RateLimit = %v, want %v", cfg.Fetcher.RateLimit, 5)
	}
	if cfg.Fetcher.Timeout != 20*time.Second {
		t.Errorf("Fetcher.Timeout = %v, want %v", cfg.Fetcher.Timeout, 20*time.Second)
	}
	if cfg.Fetcher.Concurrency != 4 {
		t.Errorf("Fetcher.Concurrency = %v, want %v", cfg.Fetcher.Concurrency, 4)
	}
	if cfg.Fetcher.BrowserFallback {
		t.Errorf("Fetcher.BrowserFallback = %v, want false", cfg.Fetcher.BrowserFallback)
	}

	// Catalog defaults
	wantLangs := []string{"en", "ko", "ja", "zh-cn", "zh-tw", "es", "fr", "de"}
	if !reflect.DeepEqual(cfg.Catalog.Languages, wantLangs) {
		t.Errorf("Catalog.Languages = %v, want %v", cfg.Catalog.Languages, wantLangs)
	}
	if cfg.Catalog.DefaultLanguage != "en" {
		t.Errorf("Catalog.DefaultLanguage = %v, want %v", cfg.Catalog.DefaultLanguage, "en")
	}
	if cfg.Catalog.PageSize != 20 {
		t.Errorf("Catalog.PageSize = %v, want %v", cfg.Catalog.PageSize, 20)
	}
	if cfg.Catalog.URLPattern() != DefaultTalkURLPattern {
		t.Errorf("Catalog.URLPattern() = %v, want default", cfg.Catalog.URLPattern())
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %v, want %v", cfg.Server.Port, 8080)
	}
	if cfg.Bot.Token != "" {
		t.Errorf("Bot.Token = %v, want empty", cfg.Bot.Token)
	}
	if cfg.Redis.TTL != 24*time.Hour {
		t.Errorf("Redis.TTL = %v, want %v", cfg.Redis.TTL, 24*time.Hour)
	}
	if cfg.Redis.MaxEntries != 10000 {
		t.Errorf("Redis.MaxEntries = %v, want %v", cfg.Redis.MaxEntries, 10000)
	}
	if cfg.Redis.SweepInterval != 10*time.Minute {
		t.Errorf("Redis.SweepInterval = %v, want %v", cfg.Redis.SweepInterval, 10*time.Minute)
	}
}

func TestLoad_MissingJWTSecret(t *testing.T) {
	os.Unsetenv("AUTH_JWT_SECRET")

	_, err := Load()
	if err == nil {
		t.Error("Load() expected error for missing AUTH_JWT_SECRET, got nil")
	}
}

func validConfig() Config {
	return Config{
		DB:      DBConfig{Driver: "mysql", Password: "pass"},
		Fetcher: FetcherConfig{RateLimit: 5, Concurrency: 4, Timeout: time.Second},
		Catalog: CatalogConfig{PageSize: 20, DefaultLanguage: "en"},
		Server:  ServerConfig{Port: 8080},
		Auth:    AuthConfig{JWTSecret: "secret"},
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid config", func(c *Config) {}, false},
		{"sqlite without password", func(c *Config) { c.DB.Driver = "sqlite"; c.DB.Password = "" }, false},
		{"mysql without password", func(c *Config) { c.DB.Password = "" }, true},
		{"unknown driver", func(c *Config) { c.DB.Driver = "oracle" }, true},
		{"missing jwt secret", func(c *Config) { c.Auth.JWTSecret = "" }, true},
		{"invalid rate limit", func(c *Config) { c.Fetcher.RateLimit = 0 }, true},
		{"invalid concurrency", func(c *Config) { c.Fetcher.Concurrency = 0 }, true},
		{"invalid timeout", func(c *Config) { c.Fetcher.Timeout = 0 }, true},
		{"bad url pattern", func(c *Config) { c.Catalog.TalkURLPattern = "(" }, true},
		{"invalid page size", func(c *Config) { c.Catalog.PageSize = 0 }, true},
		{"missing default language", func(c *Config) { c.Catalog.DefaultLanguage = " " }, true},
		{"invalid port", func(c *Config) { c.Server.Port = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDBConfig_DSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  DBConfig
		want string
	}{
		{
			name: "mysql",
			cfg:  DBConfig{Driver: "mysql", Host: "localhost", Port: 3306, User: "root", Password: "secret", Database: "testdb"},
			want: "root:secret@tcp(localhost:3306)/testdb?charset=utf8mb4&parseTime=True&loc=Local",
		},
		{
			name: "postgres",
			cfg:  DBConfig{Driver: "postgres", Host: "db", Port: 5432, User: "ted", Password: "secret", Database: "testdb"},
			want: "host=db port=5432 user=ted password=secret dbname=testdb sslmode=disable",
		},
		{
			name: "sqlite",
			cfg:  DBConfig{Driver: "sqlite", Path: "/tmp/test.db"},
			want: "/tmp/test.db",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.DSN(); got != tt.want {
				t.Errorf("DSN() = %v, want %v", got, tt.want)
			}
		})
	}
}
