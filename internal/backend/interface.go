package backend

import (
	"context"
	"slices"

	"davi/internal/amqp"
	"davi/internal/sheets"
	"davi/internal/storage"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the repository and the optional ledger event
// client, plus a cleanup that closes both.
type BackendResult struct {
	Repository storage.Repository
	// AMQP is nil when AMQP_URL is unset or the broker was unreachable.
	AMQP    *amqp.Client
	Cleanup CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	// CreateBackend opens the repository selected by config.Type.
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
	// CreateLedgerWriter returns the Google Sheets mirror, or an in-memory
	// sink when no spreadsheet is configured.
	CreateLedgerWriter(ctx context.Context, config Config) (sheets.LedgerWriter, error)
	// Migrate applies the embedded schema without opening a store.
	Migrate(ctx context.Context, config Config) error
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// SQLite specific
	SQLiteDBPath string

	// PostgreSQL specific
	DatabaseURL string

	// Ledger events, optional for every backend
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets mirror, optional
	GoogleSpreadsheetID string
	GoogleSheetName     string
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend   BackendType = "sqlite"
	PostgresBackend BackendType = "postgres"
	MemoryBackend   BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

func (bt BackendType) IsValid() bool {
	return slices.Contains(GetBackendTypes(), bt)
}
