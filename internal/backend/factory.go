package backend

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"davi/internal/amqp"
	"davi/internal/log"
	"davi/internal/sheets"
	gsheet "davi/internal/sheets/google"
	sheetsmem "davi/internal/sheets/memory"
	"davi/internal/storage"
	"davi/internal/storage/memory"
	"davi/internal/storage/postgres"
	"davi/internal/storage/sqlite"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &DefaultFactory{logger: logger.WithComponent(log.ComponentBackend)}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		repo storage.Repository
		err  error
	)
	switch config.Type {
	case SQLiteBackend:
		repo, err = sqlite.Open(config.SQLiteDBPath)
	case PostgresBackend:
		repo, err = postgres.Open(ctx, config.DatabaseURL)
	case MemoryBackend:
		repo = memory.New()
		f.logger.Warn("Using the in-memory backend, data is lost on restart")
	default:
		err = fmt.Errorf("unsupported backend type: %s", config.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("initialize %s backend: %w", config.Type, err)
	}

	result := &BackendResult{Repository: repo}

	// AMQP is optional: without it ledger events are not emitted and the
	// worker's periodic catch-up still mirrors every movement.
	if config.AMQPURL != "" {
		client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
		if err != nil {
			f.logger.Warn("Failed to initialize AMQP client, continuing without ledger events", log.FieldError, err.Error())
		} else {
			f.logger.Info("Initialized AMQP client", "exchange", config.AMQPExchange, "queue", config.AMQPQueue)
			result.AMQP = client
		}
	}

	result.Cleanup = func() error {
		var errs []error
		if result.AMQP != nil {
			errs = append(errs, result.AMQP.Close())
		}
		errs = append(errs, repo.Close())
		return errors.Join(errs...)
	}

	f.logger.Info("Initialized backend",
		"backend", config.Type.String(),
		"amqp_enabled", result.AMQP != nil)
	return result, nil
}

// CreateLedgerWriter implements Factory.CreateLedgerWriter
func (f *DefaultFactory) CreateLedgerWriter(ctx context.Context, config Config) (sheets.LedgerWriter, error) {
	if config.GoogleSpreadsheetID == "" {
		f.logger.Info("Google Sheets disabled, mirroring to memory")
		return sheetsmem.New(), nil
	}

	client, err := gsheet.New(ctx, config.GoogleSpreadsheetID, config.GoogleSheetName)
	if err != nil {
		return nil, fmt.Errorf("initialize Google Sheets client: %w", err)
	}
	f.logger.Info("Initialized Google Sheets mirror", "spreadsheet_id", config.GoogleSpreadsheetID)
	return client, nil
}

// Migrate implements Factory.Migrate
func (f *DefaultFactory) Migrate(_ context.Context, config Config) error {
	if err := config.Validate(); err != nil {
		return err
	}

	switch config.Type {
	case SQLiteBackend:
		if err := os.MkdirAll(filepath.Dir(config.SQLiteDBPath), 0755); err != nil {
			return fmt.Errorf("create db directory: %w", err)
		}
		if err := storage.RunSQLiteMigrations(sqlite.DSN(config.SQLiteDBPath)); err != nil {
			return err
		}
	case PostgresBackend:
		if err := storage.RunPostgresMigrations(config.DatabaseURL); err != nil {
			return err
		}
	case MemoryBackend:
		f.logger.Info("Memory backend has no schema to migrate")
		return nil
	}
	f.logger.Info("Migrations applied", "backend", config.Type.String())
	return nil
}
