package services

import (
	"context"
	"fmt"

	"davi/internal/core"
)

// CreateBucket validates and stores a new bucket with a zero balance.
func (f *Finance) CreateBucket(ctx context.Context, userID int64, name, bucketType string, percent float64, description string) (int64, error) {
	b := core.Bucket{
		UserID:      userID,
		Name:        name,
		Type:        bucketType,
		Percent:     percent,
		Description: description,
	}.Normalize()
	if err := b.Validate(); err != nil {
		return 0, err
	}

	unlock := f.locks.lock(userID)
	defer unlock()

	id, err := f.repo.CreateBucket(ctx, b)
	if err != nil {
		return 0, fmt.Errorf("create bucket: %w", err)
	}
	f.invalidateBuckets(userID)
	return id, nil
}

// UpdateBucket rewrites name, type, percent and description. The balance
// only changes through distributions or UpdateBucketBalance.
func (f *Finance) UpdateBucket(ctx context.Context, b core.Bucket) error {
	b = b.Normalize()
	if err := b.Validate(); err != nil {
		return err
	}

	unlock := f.locks.lock(b.UserID)
	defer unlock()

	if err := f.repo.UpdateBucket(ctx, b); err != nil {
		return fmt.Errorf("update bucket: %w", err)
	}
	f.invalidateBuckets(b.UserID)
	return nil
}

// UpdateBucketBalance overrides the balance directly, bypassing the ledger.
func (f *Finance) UpdateBucketBalance(ctx context.Context, userID, bucketID int64, balance core.Money) error {
	unlock := f.locks.lock(userID)
	defer unlock()

	if err := f.repo.SetBucketBalance(ctx, userID, bucketID, balance); err != nil {
		return fmt.Errorf("update bucket balance: %w", err)
	}
	f.invalidateBuckets(userID)
	return nil
}

// DeleteBucket removes the bucket. Its movements stay in the ledger with
// the bucket reference cleared.
func (f *Finance) DeleteBucket(ctx context.Context, userID, bucketID int64) error {
	unlock := f.locks.lock(userID)
	defer unlock()

	if err := f.repo.DeleteBucket(ctx, userID, bucketID); err != nil {
		return fmt.Errorf("delete bucket: %w", err)
	}
	f.invalidateBuckets(userID)
	f.invalidateMovements(userID)
	return nil
}

func (f *Finance) ListBuckets(ctx context.Context, userID int64) ([]core.Bucket, error) {
	return f.buckets.Get(ctx, userKey(userID), func(ctx context.Context) ([]core.Bucket, error) {
		return f.repo.ListBuckets(ctx, userID)
	})
}
