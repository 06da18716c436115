package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"davi/internal/auth"
	"davi/internal/cli"
	apphttp "davi/internal/http"
	"davi/internal/log"
	"davi/internal/middleware/ratelimit"
)

const cacheCleanupInterval = 10 * time.Minute

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(os.Stdout, os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"), log.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)

	res := cli.InitBackend(context.Background(), logger, cfg)
	finance := cli.NewFinance(cfg, res)
	finance.StartCacheCleanup(cacheCleanupInterval)

	seedCtx, seedCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if created, err := finance.EnsureDefaultUser(seedCtx); err != nil {
		logger.Error("Failed to seed demo user", log.FieldError, err.Error())
	} else if created {
		logger.Warn("Seeded demo user, change its password before exposing the server", "name", "demo")
	}
	seedCancel()

	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTTTL)
	srv := apphttp.NewServer(":"+cfg.Port, finance, tokens, apphttp.Options{
		RateLimit: ratelimit.Config{
			RequestsPerSecond: cfg.RateLimitRPS,
			Burst:             cfg.RateLimitBurst,
		},
		TrustedProxies: cfg.TrustedProxies,
		Logger:         logger,
	})
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err.Error())
		}
		// Closes the caches, then the repository.
		if err := finance.Close(); err != nil {
			logger.Error("Repository close error", log.FieldError, err.Error())
		}
		if res.AMQP != nil {
			if err := res.AMQP.Close(); err != nil {
				logger.Error("AMQP close error", log.FieldError, err.Error())
			}
		}
	})

	logger.Info("Starting davi server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"amqp_enabled", res.AMQP != nil)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err.Error(), "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
