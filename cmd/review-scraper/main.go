package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/maltedev/review-scraper/internal/api"
	"github.com/maltedev/review-scraper/internal/browser"
	"github.com/maltedev/review-scraper/internal/config"
	"github.com/maltedev/review-scraper/internal/database"
	"github.com/maltedev/review-scraper/internal/extractor"
	"github.com/maltedev/review-scraper/internal/metrics"
	"github.com/maltedev/review-scraper/internal/scraper"
	"github.com/maltedev/review-scraper/internal/selectors"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New()

	// LLM client, shared by all requests
	model, err := selectors.NewOpenAIModel(cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.BaseURL)
	if err != nil {
		logger.Error("failed to initialize LLM client", "error", err)
		os.Exit(1)
	}
	var inferrer selectors.Inferrer = selectors.NewLLMInferrer(model, logger)

	switch cfg.Cache.Backend {
	case config.CacheMemory:
		inferrer = selectors.NewCachedInferrer(inferrer, selectors.NewMemoryStore(cfg.Cache.Size, cfg.Cache.TTL), m, logger)
		logger.Info("selector cache enabled", "backend", "memory", "ttl", cfg.Cache.TTL)
	case config.CacheRedis:
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()

		// Test Redis connection
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Error("failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		inferrer = selectors.NewCachedInferrer(inferrer, selectors.NewRedisStore(redisClient, cfg.Cache.TTL), m, logger)
		logger.Info("selector cache enabled", "backend", "redis", "addr", cfg.Redis.Addr)
	}

	// Optional run log
	var (
		runs   scraper.RunRecorder
		pinger api.Pinger
	)
	if cfg.Database.URL != "" {
		db, err := database.New(ctx, database.Config{URL: cfg.Database.URL, MaxConns: 4})
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		repo := database.NewRunRepository(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			logger.Error("failed to prepare database", "error", err)
			os.Exit(1)
		}
		runs, pinger = repo, db
	}

	// Browser setup
	launcher, err := browser.NewLauncher(&browser.Options{
		Driver:            cfg.Browser.Driver,
		Headless:          cfg.Browser.Headless,
		ImplicitWait:      cfg.Browser.ImplicitWait,
		NavigationTimeout: cfg.Browser.NavigationTimeout,
		UserAgent:         cfg.Browser.UserAgent,
		ViewportWidth:     cfg.Browser.ViewportWidth,
		ViewportHeight:    cfg.Browser.ViewportHeight,
		Logger:            logger,
	})
	if err != nil {
		logger.Error("failed to configure browser", "error", err)
		os.Exit(1)
	}
	defer launcher.Close()

	ex := extractor.New(extractor.Options{
		WaitTimeout:  cfg.Scrape.WaitTimeout,
		MaxPages:     cfg.Scrape.MaxPages,
		PageDelayMin: cfg.Scrape.PageDelayMin,
		PageDelayMax: cfg.Scrape.PageDelayMax,
		Logger:       logger,
		Metrics:      m,
	})
	svc := scraper.NewService(launcher, inferrer, ex, scraper.Options{
		Timeout: cfg.Scrape.Timeout,
		Runs:    runs,
		Metrics: m,
		Logger:  logger,
	})

	handlers := api.NewHandlers(svc, pinger, logger)

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      api.NewRouter(handlers, m.Registry),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout(),
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down server...")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown failed", "error", err)
		}
	}()

	logger.Info("server starting",
		"addr", server.Addr,
		"driver", cfg.Browser.Driver,
		"model", cfg.LLM.Model,
		"selector_cache", cfg.Cache.Backend)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
