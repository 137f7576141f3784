package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/flagops/flaggate/config"
	"github.com/flagops/flaggate/internal/adapters/memdir"
	"github.com/flagops/flaggate/internal/bootstrap"
	"github.com/flagops/flaggate/internal/observability/statsd"
)

func main() {
	ctx := context.Background()
	logger := bootstrap.InitLogger()
	if err := run(ctx, logger); err != nil {
		logger.ErrorContext(ctx, "fatal error", "error", err)
		os.Exit(1) //nolint:forbidigo // Main entrypoint should exit with non-zero status on fatal errors.
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		return err
	}

	logger.InfoContext(ctx, "starting flaggate",
		"addr", cfg.HTTP.Addr,
		"auth_mode", string(cfg.Auth.Mode),
		"protected_prefix", cfg.HTTP.ProtectedPrefix,
		"dev", cfg.IsDev)

	sink, err := statsd.NewClient(statsd.Config{
		Enabled: cfg.Observability.Metrics.Enabled,
		Address: cfg.Observability.Metrics.Address,
		Prefix:  cfg.Observability.Metrics.Prefix,
		Logger:  logger,
	})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := sink.Close(); cerr != nil {
			logger.ErrorContext(ctx, "close metrics sink failed", "error", cerr)
		}
	}()

	var redisClient redis.UniversalClient
	if cfg.Auth.SessionStore == config.SessionStoreRedis {
		redisClient, err = bootstrap.ConnectRedis(cfg.Redis, logger)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := redisClient.Close(); cerr != nil {
				logger.ErrorContext(ctx, "close redis failed", "error", cerr)
			}
		}()
	}

	authSvc, err := bootstrap.BuildAuthService(bootstrap.AuthDeps{
		Config:      cfg,
		RedisClient: redisClient,
		Directory:   memdir.New(),
		Logger:      logger,
		Sink:        sink,
	})
	if err != nil {
		return err
	}

	httpDeps := bootstrap.HTTPDeps{
		Config: cfg,
		Auth:   authSvc,
		Logger: logger,
		Sink:   sink,
	}
	handler, err := bootstrap.BuildHandler(httpDeps)
	if err != nil {
		return err
	}
	server := bootstrap.StartHTTPServer(httpDeps, handler)

	// Block until a shutdown signal arrives.
	stopCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-stopCtx.Done()

	return bootstrap.ShutdownHTTPServer(ctx, server, logger)
}
