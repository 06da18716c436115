// Package cli provides the initialization shared by cmd/davi, cmd/davi-worker
// and cmd/davi-admin.
package cli

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"davi/internal/backend"
	"davi/internal/config"
	"davi/internal/core"
	"davi/internal/log"
	"davi/internal/services"
)

// SetupLogger installs a logger on w at the given LOG_LEVEL and LOG_FORMAT
// and makes it the slog default.
func SetupLogger(w io.Writer, level, format, component string) *log.Logger {
	logger := log.New(log.Config{
		Level:     log.ParseLevel(level),
		Component: component,
		Format:    format,
		Output:    w,
	})
	log.SetDefault(logger)
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration and validates it.
// Returns the config or exits the process on validation failure.
func LoadAndValidateConfig(logger *log.Logger) *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err.Error())
		os.Exit(1)
	}
	return cfg
}

// InitBackend opens the configured repository.
// Returns the result or exits the process on failure.
func InitBackend(ctx context.Context, logger *log.Logger, cfg *config.Config) *backend.BackendResult {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err.Error())
		os.Exit(1)
	}
	res, err := backend.NewFactory(logger).CreateBackend(ctx, bcfg)
	if err != nil {
		logger.Error("Failed to initialize backend", log.FieldError, err.Error(), "backend", cfg.DataBackend)
		os.Exit(1)
	}
	return res
}

// FinanceOptions maps the application config onto the service options.
func FinanceOptions(cfg *config.Config) services.Options {
	opts := services.DefaultOptions()
	opts.Residual = core.ResidualPolicy(cfg.AllocationResidual)
	opts.CacheTTL = cfg.CacheTTL
	opts.ProfileCacheTTL = cfg.ProfileCacheTTL
	opts.MovementsLimit = cfg.MovementsLimit
	opts.SeedDemoUser = cfg.SeedDemoUser
	return opts
}

// NewFinance builds the finance service over res. The AMQP client is only
// passed on when present so the publisher stays a true nil otherwise.
func NewFinance(cfg *config.Config, res *backend.BackendResult) *services.Finance {
	var publisher services.Publisher
	if res.AMQP != nil {
		publisher = res.AMQP
	}
	return services.New(res.Repository, publisher, FinanceOptions(cfg))
}

// GracefulShutdown sets up signal handling for graceful shutdown.
// Returns a context that will be cancelled on shutdown signals,
// and a channel that signals when shutdown is complete.
func GracefulShutdown(logger *log.Logger, timeout time.Duration, cleanup func(context.Context)) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()

		cancel()
		if cleanup != nil {
			cleanup(shutdownCtx)
		}

		if shutdownCtx.Err() != nil {
			logger.Warn("Shutdown timeout reached")
		} else {
			logger.Info("Shutdown complete")
		}
		close(done)
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled and cleanup ran.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}
