// Package storage defines the persistence ports shared by the sqlite,
// postgres and memory backends.
package storage

import (
	"context"

	"davi/internal/core"
)

// Allocator computes the entries of a distribution from the user's
// buckets as read inside the store's unit of work.
type Allocator interface {
	Allocate(req core.DistributionRequest, buckets []core.Bucket) (core.Allocation, error)
}

type UserStore interface {
	// CreateUser returns core.ErrUsernameTaken on a duplicate name.
	CreateUser(ctx context.Context, name, passwordHash string) (core.User, error)
	UserByName(ctx context.Context, name string) (core.User, error)
	CountUsers(ctx context.Context) (int, error)

	// Profile returns the user's profile, creating an empty one on first read.
	Profile(ctx context.Context, userID int64) (core.Profile, error)
	SaveProfile(ctx context.Context, p core.Profile) error
}

type LedgerStore interface {
	InsertMovement(ctx context.Context, m core.Movement) (int64, error)
	// Distribute reads the user's buckets, allocates and writes every
	// entry and balance change as one atomic unit.
	Distribute(ctx context.Context, req core.DistributionRequest, alloc Allocator) (core.Distribution, error)
	// ListMovements returns the newest movements first (date, then id).
	ListMovements(ctx context.Context, userID int64, limit int) ([]core.Movement, error)
}

// MirrorStore tracks which movements were copied to the ledger mirror.
type MirrorStore interface {
	// PendingMirror returns movements not yet mirrored, oldest first. A
	// non-empty ids restricts the result to those rows.
	PendingMirror(ctx context.Context, ids []int64, limit int) ([]core.Movement, error)
	MarkMirrored(ctx context.Context, ids []int64) error
}

type BucketStore interface {
	CreateBucket(ctx context.Context, b core.Bucket) (int64, error)
	// UpdateBucket rewrites the definition fields and leaves the balance alone.
	UpdateBucket(ctx context.Context, b core.Bucket) error
	SetBucketBalance(ctx context.Context, userID, bucketID int64, balance core.Money) error
	// DeleteBucket clears the bucket reference on movements, then removes
	// the bucket, in one transaction.
	DeleteBucket(ctx context.Context, userID, bucketID int64) error
	ListBuckets(ctx context.Context, userID int64) ([]core.Bucket, error)
}

type GiantStore interface {
	CreateGiant(ctx context.Context, g core.Giant) (int64, error)
	ListGiants(ctx context.Context, userID int64) ([]core.Giant, error)
	// GiantWithPaid returns the giant and the sum of its payments.
	GiantWithPaid(ctx context.Context, userID, giantID int64) (core.Giant, core.Money, error)
	// PaidByGiant sums payments per giant for one user.
	PaidByGiant(ctx context.Context, userID int64) (map[int64]core.Money, error)
	// RecordGiantPayment inserts the payment and marks an active giant as
	// paid once its payments cover the total. It returns the new paid sum.
	RecordGiantPayment(ctx context.Context, p core.GiantPayment) (int64, core.Money, error)
	// DeleteGiant removes the payments and then the giant. It reports
	// false without error when no giant row matched.
	DeleteGiant(ctx context.Context, userID, giantID int64) (bool, error)
}

type BillStore interface {
	CreateBill(ctx context.Context, b core.Bill) (int64, error)
	// ListBills orders by due date, earliest first.
	ListBills(ctx context.Context, userID int64) ([]core.Bill, error)
	SetBillPaid(ctx context.Context, userID, billID int64, paid bool) error
	DeleteBill(ctx context.Context, userID, billID int64) error
}

// Repository is the full persistence surface used by the finance service.
type Repository interface {
	UserStore
	LedgerStore
	MirrorStore
	BucketStore
	GiantStore
	BillStore

	Ping(ctx context.Context) error
	Close() error
}
