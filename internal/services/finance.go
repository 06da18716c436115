// Package services orchestrates the finance domain on top of a storage
// backend: validation, per-user write serialization, read caching and
// ledger event publication.
package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"davi/internal/cache"
	"davi/internal/core"
	"davi/internal/log"
	"davi/internal/storage"
)

// Publisher announces committed movements. The AMQP client satisfies it.
type Publisher interface {
	PublishMovementsRecorded(ctx context.Context, userID int64, movementIDs []int64) (string, error)
}

// Options tunes the finance service. Zero values fall back to defaults.
type Options struct {
	Residual        core.ResidualPolicy
	CacheTTL        time.Duration
	ProfileCacheTTL time.Duration
	MovementsLimit  int
	SeedDemoUser    bool
	// DueSoonDays is the window in which an unpaid bill counts as due soon.
	DueSoonDays int
	Now         func() time.Time
}

func DefaultOptions() Options {
	return Options{
		Residual:        core.ResidualKeep,
		CacheTTL:        2 * time.Minute,
		ProfileCacheTTL: 5 * time.Minute,
		MovementsLimit:  core.DefaultMovementsLimit,
		SeedDemoUser:    true,
		DueSoonDays:     7,
		Now:             time.Now,
	}
}

const (
	cacheSize = 1000

	DemoUserName     = "demo"
	DemoUserPassword = "1234"
)

// Finance is the service surface used by the HTTP API and the admin CLI.
// Every user-scoped call takes the caller's user id; rows of other users
// are never visible.
type Finance struct {
	repo      storage.Repository
	publisher Publisher
	allocator core.Allocator
	locks     *userLocks
	opts      Options
	logger    *log.StructuredLogger

	profiles  *cache.ReadThrough[core.Profile]
	buckets   *cache.ReadThrough[[]core.Bucket]
	movements *cache.ReadThrough[[]core.Movement]
	giants    *cache.ReadThrough[[]GiantProgress]
	bills     *cache.ReadThrough[[]core.Bill]
	caches    *cache.Manager
}

// New wires the service. publisher may be nil, in which case no ledger
// events are emitted.
func New(repo storage.Repository, publisher Publisher, opts Options) *Finance {
	def := DefaultOptions()
	if opts.Residual == "" {
		opts.Residual = def.Residual
	}
	if opts.MovementsLimit <= 0 {
		opts.MovementsLimit = def.MovementsLimit
	}
	if opts.DueSoonDays <= 0 {
		opts.DueSoonDays = def.DueSoonDays
	}
	if opts.Now == nil {
		opts.Now = def.Now
	}

	f := &Finance{
		repo:      repo,
		publisher: publisher,
		allocator: core.Allocator{Residual: opts.Residual},
		locks:     newUserLocks(),
		opts:      opts,
		logger:    log.NewStructuredLogger(log.New(log.Config{Handler: slog.Default().Handler(), Component: log.ComponentFinance})),
		profiles:  cache.NewReadThrough[core.Profile](cacheSize, opts.ProfileCacheTTL),
		buckets:   cache.NewReadThrough[[]core.Bucket](cacheSize, opts.CacheTTL),
		movements: cache.NewReadThrough[[]core.Movement](cacheSize, opts.CacheTTL),
		giants:    cache.NewReadThrough[[]GiantProgress](cacheSize, opts.CacheTTL),
		bills:     cache.NewReadThrough[[]core.Bill](cacheSize, opts.CacheTTL),
		caches:    cache.NewManager(),
	}
	f.caches.Register(f.profiles, f.buckets, f.movements, f.giants, f.bills)
	return f
}

// StartCacheCleanup evicts expired cache entries every interval until Close.
func (f *Finance) StartCacheCleanup(interval time.Duration) {
	f.caches.StartCleanup(interval)
}

func (f *Finance) Ping(ctx context.Context) error {
	return f.repo.Ping(ctx)
}

// Close stops cache cleanup and closes the repository.
func (f *Finance) Close() error {
	f.caches.Stop()
	if err := f.repo.Close(); err != nil {
		return fmt.Errorf("close repository: %w", err)
	}
	return nil
}

// Today is the current calendar day according to the service clock.
func (f *Finance) Today() core.Date {
	return core.DateOf(f.opts.Now())
}

// Each entity has its own cache, so a key is just the user plus an
// optional argument. Writes drop every view of the user for the entities
// they touch.
func userKey(userID int64) cache.Key {
	return cache.Key{UserID: userID}
}

func (f *Finance) invalidateMovements(userID int64) {
	f.movements.InvalidateUser(userID)
}

func (f *Finance) invalidateBuckets(userID int64) {
	f.buckets.InvalidateUser(userID)
}

func (f *Finance) invalidateGiants(userID int64) {
	f.giants.InvalidateUser(userID)
}

func (f *Finance) invalidateBills(userID int64) {
	f.bills.InvalidateUser(userID)
}

func (f *Finance) invalidateProfile(userID int64) {
	f.profiles.InvalidateUser(userID)
}

// publish emits a ledger event after commit. Failures are logged and never
// reach the caller: the movements are already durable.
func (f *Finance) publish(ctx context.Context, userID int64, ids []int64) {
	if f.publisher == nil || len(ids) == 0 {
		return
	}
	eventID, err := f.publisher.PublishMovementsRecorded(ctx, userID, ids)
	if err != nil {
		f.logger.LogError(ctx, "Failed to publish ledger event", err,
			log.ComponentAMQP, log.OpPublish,
			log.NewFields().WithUserID(userID))
		return
	}
	slog.DebugContext(ctx, "Ledger event published",
		log.FieldEventID, eventID,
		log.FieldUserID, userID,
		log.FieldEntries, len(ids))
}
