package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/user/tedshelf-go/internal/bot"
	"github.com/user/tedshelf-go/internal/cache"
	"github.com/user/tedshelf-go/internal/catalog"
	"github.com/user/tedshelf-go/internal/config"
	"github.com/user/tedshelf-go/internal/crawler"
	"github.com/user/tedshelf-go/internal/ingest"
	"github.com/user/tedshelf-go/internal/lang"
	"github.com/user/tedshelf-go/internal/scheduler"
	"github.com/user/tedshelf-go/internal/server"
	"github.com/user/tedshelf-go/internal/store"
)

const (
	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout = 30 * time.Second
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = zerolog.New(os.Stdout).With().Timestamp().Caller().Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	log.Info().Msg("Configuration loaded successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := store.Open(&cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	log.Info().Str("driver", cfg.DB.Driver).Msg("Database connection established")

	fetcher, err := crawler.NewHTTPFetcher(&crawler.FetcherConfig{
		RateLimit:       cfg.Fetcher.RateLimit,
		Burst:           cfg.Fetcher.Burst,
		Timeout:         cfg.Fetcher.Timeout,
		UserAgent:       cfg.Fetcher.UserAgent,
		ProxyURL:        cfg.Fetcher.ProxyURL,
		BrowserFallback: cfg.Fetcher.BrowserFallback,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create fetcher")
	}
	scraper := crawler.NewScraper(fetcher, cfg.Fetcher.Concurrency)
	log.Info().Float64("rateLimit", cfg.Fetcher.RateLimit).Msg("Fetcher initialized")

	resolver := lang.NewResolver(cfg.Catalog.Languages, cfg.Catalog.DefaultLanguage)

	talkCache, closeCache := newTalkIDCache(ctx, &cfg.Redis)

	orchestrator, err := ingest.NewOrchestrator(
		ingest.Config{URLPattern: cfg.Catalog.URLPattern(), FetchTimeout: cfg.Fetcher.Timeout},
		db,
		scraper,
		resolver,
		talkCache,
		ingest.Observers(ingest.LogObserver{}, server.MetricsObserver{}),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create ingestion orchestrator")
	}

	catalogService := catalog.NewService(db, resolver, cfg.Catalog.PageSize, server.RecordInconsistencies)

	sched := scheduler.NewScheduler(db, func(talks, entries int64) {
		server.UpdateTalkCount(talks)
		server.UpdateCatalogEntryCount(entries)
	}, cfg.Catalog.StatsInterval)

	auth := server.NewAuthenticator(cfg.Auth.JWTSecret, resolver)
	httpServer := server.NewServer(db, orchestrator, catalogService, auth)

	// The chat surface is optional
	var telegramClient *bot.Client
	if cfg.Bot.Token != "" {
		telegramClient, err = bot.NewClient(cfg.Bot.Token)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create Telegram client")
		}
		log.Info().Msg("Telegram client initialized")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := httpServer.Start(cfg.Server.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server error")
		}
	}()

	sched.Start(ctx)

	// pollDone closes once the update loop has returned
	pollDone := make(chan struct{})
	if telegramClient != nil {
		botHandler := bot.NewHandler(orchestrator, catalogService, db, resolver, telegramClient)
		go func() {
			defer close(pollDone)
			log.Info().Msg("Starting Telegram bot polling")
			for update := range telegramClient.GetUpdates() {
				botHandler.HandleUpdate(ctx, update)
			}
		}()
	} else {
		close(pollDone)
	}

	log.Info().Msg("TED Shelf started successfully")

	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer shutdownCancel()

	log.Info().Msg("Starting graceful shutdown...")

	sched.Stop()

	if telegramClient != nil {
		telegramClient.StopReceivingUpdates()
		log.Info().Msg("Telegram bot polling stopped")
	}

	// In-flight submissions finish before the store closes
	if err := httpServer.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping HTTP server")
	} else {
		log.Info().Msg("HTTP server stopped")
	}

	// Chat commands still running abort on ctx; the store stays open until they return
	cancel()
	select {
	case <-pollDone:
		log.Info().Msg("Telegram update loop drained")
	case <-shutdownCtx.Done():
		log.Warn().Msg("Telegram update loop did not drain before shutdown timeout")
	}

	if err := fetcher.Close(); err != nil {
		log.Error().Err(err).Msg("Error closing fetcher")
	}

	if closeCache != nil {
		if err := closeCache(); err != nil {
			log.Error().Err(err).Msg("Error closing talk id cache")
		}
	}

	if err := db.Close(); err != nil {
		log.Error().Err(err).Msg("Error closing database connection")
	} else {
		log.Info().Msg("Database connection closed")
	}

	select {
	case <-shutdownCtx.Done():
		if errors.Is(shutdownCtx.Err(), context.DeadlineExceeded) {
			log.Warn().Msg("Shutdown timeout exceeded, forcing exit")
		}
	default:
		log.Info().Msg("Graceful shutdown completed")
	}
}

// newTalkIDCache prefers Redis and falls back to an in-process cache
func newTalkIDCache(ctx context.Context, cfg *config.RedisConfig) (cache.TalkIDCache, func() error) {
	if cfg.Addr == "" {
		log.Info().Int("maxEntries", cfg.MaxEntries).Msg("Talk id cache is in-process")
		return newMemoryCache(ctx, cfg), nil
	}

	rc, err := cache.NewRedisCache(ctx, cfg)
	if err != nil {
		log.Warn().Err(err).Str("addr", cfg.Addr).Msg("Redis unavailable, using in-process talk id cache")
		return newMemoryCache(ctx, cfg), nil
	}
	return rc, rc.Close
}

// newMemoryCache builds the bounded in-process cache; its sweeper stops with ctx
func newMemoryCache(ctx context.Context, cfg *config.RedisConfig) *cache.MemoryCache {
	mc := cache.NewMemoryCache(cfg.TTL, cfg.MaxEntries)
	mc.StartSweeper(ctx, cfg.SweepInterval)
	return mc
}
