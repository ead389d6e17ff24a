package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BradenHooton/keygate/internal/auth"
	"github.com/BradenHooton/keygate/internal/background"
	"github.com/BradenHooton/keygate/internal/cache"
	"github.com/BradenHooton/keygate/internal/config"
	"github.com/BradenHooton/keygate/internal/database"
	"github.com/BradenHooton/keygate/internal/handlers"
	middlewareCustom "github.com/BradenHooton/keygate/internal/middleware"
	"github.com/BradenHooton/keygate/internal/repositories"
	"github.com/BradenHooton/keygate/internal/routes"
	"github.com/BradenHooton/keygate/internal/services"
	"github.com/BradenHooton/keygate/internal/yubico"
	pkghttp "github.com/BradenHooton/keygate/pkg/http"
	pkglogger "github.com/BradenHooton/keygate/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Server.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	logger.Info("configuration loaded",
		slog.String("env", cfg.Server.Env),
		slog.String("account_store", cfg.Store.Accounts),
		slog.String("key_index_cache", cfg.Store.KeyIndex))

	// Components reported by /health
	healthDeps := map[string]handlers.Pinger{}

	// Initialize account store
	var store services.AccountStore
	switch cfg.Store.Accounts {
	case config.StorePostgres:
		db, err := database.NewConnection(&cfg.Database, logger)
		if err != nil {
			logger.Error("failed to connect to database", slog.Any("error", err))
			os.Exit(1)
		}
		defer db.Close()

		if cfg.Database.Migrate {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			err := db.Migrate(ctx)
			cancel()
			if err != nil {
				logger.Error("failed to run migrations", slog.Any("error", err))
				os.Exit(1)
			}
		}

		store = repositories.NewAccountRepository(db)
		healthDeps["postgres"] = db
	case config.StoreFile:
		store = repositories.NewFileAccountRepository(cfg.Store.IdentitiesDir)
		logger.Info("using identity files", slog.String("dir", cfg.Store.IdentitiesDir))
	}

	// Initialize key index cache
	var keyIndex services.KeyIndexCache
	switch cfg.Store.KeyIndex {
	case config.CacheRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()

		redisIndex := cache.NewRedisKeyIndex(client, cfg.Store.KeyIndexTTL)
		if err := pingWithTimeout(redisIndex, 5*time.Second); err != nil {
			// Lookups degrade to a store scan while redis is away
			logger.Warn("redis unavailable at startup", slog.Any("error", err))
		}
		keyIndex = redisIndex
		healthDeps["redis"] = redisIndex
	case config.CacheMemory:
		keyIndex = cache.NewMemoryKeyIndex()
	}

	auditLogger := pkglogger.NewAuditLogger(logger)

	// OTP login protocol
	verifyClient := yubico.NewClient(&http.Client{Timeout: cfg.Auth.VerifyTimeout}, logger)
	resolver := services.NewKeyResolver(store, keyIndex, logger)
	verifier := services.NewCredentialVerifier(resolver, store, verifyClient, cfg.Auth.VerifyTimeout, logger, auditLogger)

	sessions := auth.NewSessionIssuer(cfg.Auth.JWTSecret, cfg.Auth.SessionTokenExpiry)
	timingDelay := auth.NewTimingDelay(auth.TimingConfig{
		MinFailureDuration: cfg.Auth.FailureFloor,
		Jitter:             cfg.Auth.FailureJitter,
	})

	ipConfig, err := pkghttp.NewIPConfig(cfg.Server.TrustedProxies)
	if err != nil {
		logger.Error("invalid TRUSTED_PROXIES", slog.Any("error", err))
		os.Exit(1)
	}

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(verifier, sessions, timingDelay, ipConfig, logger)
	healthHandler := handlers.NewHealthHandler(healthDeps, logger)

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(cfg.Auth.VerifyTimeout + 5*time.Second))

	routes.RegisterRoutes(router, authHandler, healthHandler, sessions, middlewareCustom.RateLimitConfig{
		RequestsPerMinute: cfg.Auth.LoginRateLimit,
		IPConfig:          ipConfig,
	})

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start key index auditor
	auditor := background.NewKeyIndexAuditor(store, logger, auditLogger, cfg.Auth.AuditInterval)
	auditCtx, auditCancel := context.WithCancel(context.Background())
	defer auditCancel()

	go auditor.Start(auditCtx)

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	auditor.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}

func pingWithTimeout(p handlers.Pinger, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := p.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}
