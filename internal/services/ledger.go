package services

import (
	"context"
	"fmt"
	"log/slog"

	"davi/internal/cache"
	"davi/internal/core"
)

// RecordMovement appends one unallocated movement to the ledger.
func (f *Finance) RecordMovement(ctx context.Context, userID int64, kind core.Kind, amount core.Money, date core.Date, description string) (int64, error) {
	desc, err := core.ValidateDescription(description)
	if err != nil {
		return 0, err
	}
	m := core.Movement{
		UserID:      userID,
		Kind:        kind,
		Amount:      amount,
		Description: desc,
		Date:        date,
	}
	if err := m.Validate(); err != nil {
		return 0, err
	}

	unlock := f.locks.lock(userID)
	id, err := f.repo.InsertMovement(ctx, m)
	if err == nil {
		f.invalidateMovements(userID)
	}
	unlock()
	if err != nil {
		return 0, fmt.Errorf("record movement: %w", err)
	}

	f.publish(ctx, userID, []int64{id})
	return id, nil
}

// Distribute splits req across the user's buckets and applies the balance
// changes atomically. Nothing is written when it fails.
func (f *Finance) Distribute(ctx context.Context, req core.DistributionRequest) (core.Distribution, error) {
	if err := req.Validate(); err != nil {
		return core.Distribution{}, err
	}

	unlock := f.locks.lock(req.UserID)
	d, err := f.repo.Distribute(ctx, req, f.allocator)
	if err == nil {
		f.invalidateMovements(req.UserID)
		f.invalidateBuckets(req.UserID)
		f.touchLastAllocation(ctx, req.UserID, req.Date)
	}
	unlock()
	if err != nil {
		return core.Distribution{}, fmt.Errorf("distribute: %w", err)
	}

	f.logger.LogDistribution(ctx, req.UserID, req.Amount.Cents, string(req.Kind), string(req.Mode), len(d.Entries))

	ids := d.MovementIDs
	if d.ParentID != 0 {
		ids = append([]int64{d.ParentID}, ids...)
	}
	f.publish(ctx, req.UserID, ids)
	return d, nil
}

// RecordAndDistribute writes the top-level movement and its split in the
// same unit of work.
func (f *Finance) RecordAndDistribute(ctx context.Context, req core.DistributionRequest) (core.Distribution, error) {
	req.Record = true
	return f.Distribute(ctx, req)
}

// ListMovements returns the newest movements first. limit falls back to the
// configured window and is capped at core.MaxMovementsLimit.
func (f *Finance) ListMovements(ctx context.Context, userID int64, limit int) ([]core.Movement, error) {
	limit = core.ClampLimit(limit, f.opts.MovementsLimit)
	key := cache.Key{UserID: userID, Arg: limit}
	return f.movements.Get(ctx, key, func(ctx context.Context) ([]core.Movement, error) {
		return f.repo.ListMovements(ctx, userID, limit)
	})
}

// Dashboard is the overview of one user's finances.
type Dashboard struct {
	Totals       core.Totals
	BucketsTotal core.Money
	Profile      core.Profile
	Recent       []core.Movement
	DueBills     []BillView
}

const recentMovements = 12

// Dashboard totals the configured movement window and gathers the figures
// shown next to it.
func (f *Finance) Dashboard(ctx context.Context, userID int64) (Dashboard, error) {
	movements, err := f.ListMovements(ctx, userID, 0)
	if err != nil {
		return Dashboard{}, err
	}
	buckets, err := f.ListBuckets(ctx, userID)
	if err != nil {
		return Dashboard{}, err
	}
	profile, err := f.Profile(ctx, userID)
	if err != nil {
		return Dashboard{}, err
	}
	bills, err := f.UpcomingBills(ctx, userID)
	if err != nil {
		return Dashboard{}, err
	}

	recent := movements
	if len(recent) > recentMovements {
		recent = recent[:recentMovements]
	}

	d := Dashboard{
		Totals:       core.SumMovements(movements),
		BucketsTotal: core.BucketsTotal(buckets),
		Profile:      profile,
		Recent:       recent,
		DueBills:     bills,
	}
	slog.DebugContext(ctx, "Dashboard computed",
		"user_id", userID,
		"movements", d.Totals.Count,
		"net_cents", d.Totals.Net.Cents)
	return d, nil
}
