package sqlite

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"davi/internal/core"
	"davi/internal/storage"
	"davi/internal/storage/storagetest"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "davi.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s
}

func TestStoreContract(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Repository {
		return newTestStore(t)
	})
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "davi.db")
	for i := 0; i < 2; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open #%d: %v", i+1, err)
		}
		if err := s.Ping(context.Background()); err != nil {
			t.Fatalf("Ping: %v", err)
		}
		s.Close()
	}
}

func TestConcurrentDistributionsDoNotLoseUpdates(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()
	ctx := context.Background()

	u, err := s.CreateUser(ctx, "ana", "hash")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	id, err := s.CreateBucket(ctx, core.Bucket{UserID: u.ID, Name: "All", Percent: 100, Type: core.DefaultBucketType})
	if err != nil {
		t.Fatalf("CreateBucket: %v", err)
	}

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Distribute(ctx, core.DistributionRequest{
				UserID: u.ID, Amount: core.Cents(100), Kind: core.KindIncome,
				Date: core.NewDate(2025, 1, 1), Mode: core.ModeAuto,
			}, core.Allocator{})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("Distribute: %v", err)
		}
	}

	bs, err := s.ListBuckets(ctx, u.ID)
	if err != nil {
		t.Fatalf("ListBuckets: %v", err)
	}
	if bs[0].ID != id || bs[0].Balance.Cents != n*100 {
		t.Fatalf("balance = %d, want %d", bs[0].Balance.Cents, n*100)
	}
}
