package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"davi/internal/backend"
	"davi/internal/cli"
	"davi/internal/log"
	"davi/internal/worker"
)

const batchSize = 100

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(os.Stdout, os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"), log.ComponentWorker)
	logger.Info("Starting davi-worker")
	cfg := cli.LoadAndValidateConfig(logger)

	res := cli.InitBackend(context.Background(), logger, cfg)
	defer func() {
		if err := res.Cleanup(); err != nil {
			logger.Error("Cleanup failed", log.FieldError, err.Error())
		}
	}()

	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err.Error())
		os.Exit(1)
	}
	writer, err := backend.NewFactory(logger).CreateLedgerWriter(context.Background(), bcfg)
	if err != nil {
		logger.Error("Failed to initialize ledger mirror", log.FieldError, err.Error())
		os.Exit(1)
	}

	mirror := worker.NewMirrorWorker(res.Repository, writer, batchSize, cfg.SyncInterval)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		if err := mirror.Stop(shutdownCtx); err != nil {
			logger.Warn("Mirror worker stop failed", log.FieldError, err.Error())
		}
	})

	g, gctx := errgroup.WithContext(ctx)

	// Periodic catch-up covers movements whose event was lost or published
	// while no broker was configured.
	g.Go(func() error {
		if err := mirror.Start(gctx); err != nil {
			return err
		}
		<-gctx.Done()
		return nil
	})

	if res.AMQP != nil {
		g.Go(func() error {
			err := res.AMQP.ConsumeMovementsRecorded(gctx, mirror.HandleMovementsRecorded)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	} else {
		logger.Info("AMQP disabled, mirroring on the periodic catch-up only", "interval", cfg.SyncInterval)
	}

	if err := g.Wait(); err != nil {
		logger.Error("Worker stopped with error", log.FieldError, err.Error())
		_ = mirror.Stop(context.Background())
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker shutdown complete")
}
