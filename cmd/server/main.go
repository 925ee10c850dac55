package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/mmuslimabdulj/taskflow-collab/internal/auth"
	"github.com/mmuslimabdulj/taskflow-collab/internal/config"
	httpHandler "github.com/mmuslimabdulj/taskflow-collab/internal/delivery/http"
	"github.com/mmuslimabdulj/taskflow-collab/internal/delivery/ws"
	"github.com/mmuslimabdulj/taskflow-collab/internal/domain"
	"github.com/mmuslimabdulj/taskflow-collab/internal/logging"
	"github.com/mmuslimabdulj/taskflow-collab/internal/middleware"
	"github.com/mmuslimabdulj/taskflow-collab/internal/store/postgres"
	"github.com/mmuslimabdulj/taskflow-collab/internal/store/redis"
)

func main() {
	// Load .env file (ignore error if not exists, e.g. in production)
	_ = godotenv.Load()

	// Reload config after loading .env
	config.AppConfig = config.LoadFromEnv()
	cfg := config.AppConfig

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Collaborators
	var (
		authenticator ws.Authenticator
		resolver      ws.ResourceResolver
		devTokens     *auth.MemoryAuthenticator
	)
	if cfg.DatabaseURL != "" {
		pool, err := postgres.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("connect postgres", zap.Error(err))
		}
		defer pool.Close()
		authenticator = postgres.NewAuthenticator(pool)
		resolver = postgres.NewResolver(pool)
		logger.Info("using postgres authenticator")
	} else {
		devTokens = auth.NewMemoryAuthenticator(cfg.SessionTTL)
		n, err := auth.ParseDevTokens(devTokens, cfg.DevTokens)
		if err != nil {
			logger.Fatal("parse DEV_TOKENS", zap.Error(err))
		}
		devTokens.Start(ctx, domain.SessionCleanupInterval)
		authenticator = devTokens
		resolver = auth.AllowAllResolver{}
		logger.Warn("DB_URL not set, using in-memory dev tokens", zap.Int("tokens", n))
	}

	state := ws.NewCollaborationState(ws.OptionsFromConfig(cfg), authenticator, resolver, logger)

	if cfg.RedisURL != "" {
		store, err := redis.Connect(ctx, cfg.RedisURL, 30*24*time.Hour)
		if err != nil {
			logger.Fatal("connect redis", zap.Error(err))
		}
		defer store.Close()
		state.SetPresenceStore(store)
	}

	state.Start(ctx)

	wsLimiter := middleware.NewIPRateLimiter(cfg.RateLimitWS, int(cfg.RateLimitWS)*2)
	apiLimiter := middleware.NewIPRateLimiter(cfg.RateLimitAPI, int(cfg.RateLimitAPI)*2)
	for _, l := range []*middleware.IPRateLimiter{wsLimiter, apiLimiter} {
		if err := l.TrustProxies(cfg.TrustedProxies); err != nil {
			logger.Fatal("parse TRUSTED_PROXIES", zap.Error(err))
		}
		l.Start(ctx, 5*time.Minute)
	}

	handler := httpHandler.NewHandler(state, cfg, logger)
	if devTokens != nil {
		handler.SetTokenIssuer(devTokens)
	}
	mux := handler.Routes(wsLimiter, apiLimiter)

	// Apply access log and security headers to all requests
	securedHandler := middleware.AccessLog(logger)(middleware.SecurityHeaders(mux))

	server := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     securedHandler,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		logger.Info("collaboration server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Hijacked sockets are not tracked by Shutdown; close them first
	state.Stop()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("server exited gracefully")
}
