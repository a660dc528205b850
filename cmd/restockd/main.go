package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"

	"github.com/restockd/restockd/internal/api"
	"github.com/restockd/restockd/internal/bulk"
	"github.com/restockd/restockd/internal/checker"
	"github.com/restockd/restockd/internal/config"
	"github.com/restockd/restockd/internal/currency"
	"github.com/restockd/restockd/internal/database"
	"github.com/restockd/restockd/internal/notify"
	"github.com/restockd/restockd/internal/scheduler"
)

// settingsReader snapshots the check policy from config. Config is read from
// the environment once at startup, so every run sees the same values; the
// indirection keeps the orchestrator testable.
type settingsReader struct {
	cfg *config.Config
}

func (s *settingsReader) Get(_ context.Context) (bulk.Settings, error) {
	c := s.cfg.Checker
	return bulk.Settings{
		Policy: checker.Policy{
			HeadlessEnabled:           c.HeadlessEnabled,
			ManualVerificationAllowed: c.ManualVerification,
			SessionTTL:                time.Duration(c.SessionTTLDays) * 24 * time.Hour,
			FetchTimeout:              c.FetchTimeout,
		},
		NotificationsEnabled: c.NotificationsEnabled,
		PreferredCurrency:    c.PreferredCurrency,
		CheckDelay:           c.CheckDelay,
		BackgroundEnabled:    c.BackgroundEnabled,
		BackgroundInterval:   c.BackgroundInterval,
	}, nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.Logging.Level),
	}))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.New(ctx, database.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		Database: cfg.Database.Name,
		MaxConns: cfg.Database.MaxConns,
	})
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Notifications degrade to log-only when Redis is unreachable; checks
	// must keep running either way.
	var notifier bulk.Notifier = notify.NewLogNotifier()
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unreachable, falling back to log notifications", "error", err)
	} else {
		notifier = notify.NewStreamNotifier(redisClient, cfg.Redis.Stream)
	}

	browsers := checker.NewPlaywrightFactory(
		cfg.Browser.Timeout,
		cfg.Browser.ViewportWidth,
		cfg.Browser.ViewportHeight,
		cfg.Browser.Locale,
		cfg.Browser.TimezoneID,
	)

	normalizer := currency.NewNormalizer(db, cfg.Checker.PreferredCurrency)
	itemChecker := checker.New(browsers, db, normalizer, cfg.Checker.FetchTimeout)

	settings := &settingsReader{cfg: cfg}
	orchestrator := bulk.NewOrchestrator(settings, db, itemChecker, notifier, notify.NewProgressLogger())

	sched := scheduler.New(orchestrator, settings, db)
	go func() {
		if err := sched.Start(ctx); err != nil && err != context.Canceled {
			logger.Error("scheduler stopped with error", "error", err)
		}
	}()

	handlers := api.NewHandlers(db, orchestrator, logger.With("component", "api"))

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "https://localhost:*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		health := map[string]interface{}{
			"status":     "ok",
			"run_active": orchestrator.Running(),
			"background": cfg.Checker.BackgroundEnabled,
		}
		json.NewEncoder(w).Encode(health)
	})

	r.Route("/api/v1", handlers.Routes)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

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

	logger.Info("server starting", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

func logLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
