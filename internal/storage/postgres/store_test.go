package postgres

import (
	"context"
	"os"
	"testing"

	"davi/internal/storage"
	"davi/internal/storage/storagetest"
)

// The contract runs only when TEST_DATABASE_URL points at a disposable
// database; every subtest truncates all tables.
func TestStoreContract(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	s, err := Open(ctx, url)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.db.Close()

	storagetest.Run(t, func(t *testing.T) storage.Repository {
		_, err := s.db.Exec(ctx,
			`TRUNCATE bills, giant_payments, giants, movements, buckets, user_profiles, users RESTART IDENTITY CASCADE`)
		if err != nil {
			t.Fatalf("truncate: %v", err)
		}
		return nopCloser{s}
	})
}

// nopCloser keeps the shared pool open across subtests.
type nopCloser struct {
	*Store
}

func (nopCloser) Close() error { return nil }
