package core

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// ResidualPolicy decides what happens to the cents lost when each
// auto share is rounded independently.
type ResidualPolicy string

const (
	// ResidualKeep leaves the rounding drift unreconciled.
	ResidualKeep ResidualPolicy = "keep"
	// ResidualLargest folds the drift back into the largest shares so
	// that the shares sum exactly to the distributed amount.
	ResidualLargest ResidualPolicy = "largest"
)

func (p ResidualPolicy) Valid() bool {
	return p == ResidualKeep || p == ResidualLargest
}

// DistributionRequest describes one movement to be split across buckets.
type DistributionRequest struct {
	UserID         int64
	Amount         Money
	Kind           Kind
	Date           Date
	Description    string
	Mode           Mode
	TargetBucketID int64 // explicit mode only
	// Record also writes the unallocated parent movement in the same
	// unit of work.
	Record bool
}

// BucketDelta is the balance change applied to one bucket.
type BucketDelta struct {
	BucketID   int64
	Delta      Money
	NewBalance Money
}

// Allocation is the pure result of splitting a request across buckets.
// Entries and Deltas are index-aligned.
type Allocation struct {
	Entries []Movement
	Deltas  []BucketDelta
}

// Distribution is what a store reports after committing an Allocation.
type Distribution struct {
	ParentID    int64 // zero unless the request asked to record the parent
	MovementIDs []int64
	Entries     []Movement
}

// Total returns the sum of all entry amounts.
func (a Allocation) Total() Money {
	var t Money
	for _, e := range a.Entries {
		t = t.Add(e.Amount)
	}
	return t
}

func (r DistributionRequest) Validate() error {
	if r.UserID <= 0 {
		return ErrNotFound
	}
	if err := r.Amount.Validate(); err != nil {
		return err
	}
	if !r.Kind.Valid() {
		return ErrInvalidKind
	}
	if err := r.Date.Validate(); err != nil {
		return err
	}
	if !r.Mode.Valid() {
		return ErrInvalidMode
	}
	if DescriptionTooLong(strings.TrimSpace(r.Description)) {
		return ErrDescriptionTooLong
	}
	return nil
}

// Parent returns the unallocated movement for the whole amount.
func (r DistributionRequest) Parent() Movement {
	return Movement{
		UserID:      r.UserID,
		Kind:        r.Kind,
		Amount:      r.Amount,
		Description: strings.TrimSpace(r.Description),
		Date:        r.Date,
	}
}

// Allocator computes allocations under a residual policy.
// The zero value keeps rounding drift.
type Allocator struct {
	Residual ResidualPolicy
}

// Allocate splits req across buckets with the default policy.
func Allocate(req DistributionRequest, buckets []Bucket) (Allocation, error) {
	return Allocator{}.Allocate(req, buckets)
}

// Allocate validates req and computes the ledger entries and balance
// deltas. buckets must be the user's current buckets; nothing is mutated.
func (a Allocator) Allocate(req DistributionRequest, buckets []Bucket) (Allocation, error) {
	if err := req.Validate(); err != nil {
		return Allocation{}, err
	}
	desc := strings.TrimSpace(req.Description)

	if req.Mode == ModeExplicit {
		for _, b := range buckets {
			if b.ID != req.TargetBucketID || b.UserID != req.UserID {
				continue
			}
			delta := Money{Cents: req.Kind.Sign() * req.Amount.Cents}
			return Allocation{
				Entries: []Movement{newEntry(req, b.ID, req.Amount, desc)},
				Deltas:  []BucketDelta{{BucketID: b.ID, Delta: delta, NewBalance: b.Balance.Add(delta)}},
			}, nil
		}
		return Allocation{}, ErrInvalidBucket
	}

	total := decimal.Zero
	for _, b := range buckets {
		if b.Percent > 0 {
			total = total.Add(decimal.NewFromFloat(b.Percent))
		}
	}
	if !total.IsPositive() {
		return Allocation{}, ErrNoDistributionBasis
	}

	amount := decimal.NewFromInt(req.Amount.Cents)
	eligible := make([]Bucket, 0, len(buckets))
	shares := make([]int64, 0, len(buckets))
	var sum int64
	for _, b := range buckets {
		if b.Percent <= 0 {
			continue
		}
		// round(amount * percent / total, 2) computed in cents
		share := amount.Mul(decimal.NewFromFloat(b.Percent)).Div(total).Round(0).IntPart()
		eligible = append(eligible, b)
		shares = append(shares, share)
		sum += share
	}

	if a.Residual == ResidualLargest {
		reconcile(shares, req.Amount.Cents-sum)
	}

	var out Allocation
	for i, b := range eligible {
		if shares[i] <= 0 {
			continue
		}
		share := Money{Cents: shares[i]}
		delta := Money{Cents: req.Kind.Sign() * share.Cents}
		out.Entries = append(out.Entries, newEntry(req, b.ID, share, AutoDescription(desc, b.Percent)))
		out.Deltas = append(out.Deltas, BucketDelta{BucketID: b.ID, Delta: delta, NewBalance: b.Balance.Add(delta)})
	}
	if len(out.Entries) == 0 {
		return Allocation{}, fmt.Errorf("%w: too small to split across buckets", ErrInvalidAmount)
	}
	return out, nil
}

// reconcile folds the rounding residual back into shares so they sum to
// the distributed amount. A positive residual goes to the first largest
// share. A negative one is taken a cent at a time from the largest shares
// down, and no share drops below zero.
func reconcile(shares []int64, residual int64) {
	if residual > 0 {
		largest := 0
		for i := range shares {
			if shares[i] > shares[largest] {
				largest = i
			}
		}
		shares[largest] += residual
		return
	}
	order := make([]int, len(shares))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		return cmp.Compare(shares[b], shares[a])
	})
	for residual < 0 {
		taken := false
		for _, i := range order {
			if residual == 0 {
				break
			}
			if shares[i] > 0 {
				shares[i]--
				residual++
				taken = true
			}
		}
		if !taken {
			return
		}
	}
}

// AutoDescription tags an auto-split entry with the bucket's percent. The
// base description is cut so the tagged text stays within
// MaxDescriptionLen characters.
func AutoDescription(desc string, percent float64) string {
	tag := fmt.Sprintf("(auto %.1f%%)", percent)
	if desc == "" {
		return tag
	}
	room := MaxDescriptionLen - utf8.RuneCountInString(tag) - 1
	if r := []rune(desc); len(r) > room {
		desc = strings.TrimSpace(string(r[:room]))
	}
	return desc + " " + tag
}

func newEntry(req DistributionRequest, bucketID int64, amount Money, desc string) Movement {
	id := bucketID
	return Movement{
		UserID:      req.UserID,
		BucketID:    &id,
		Kind:        req.Kind,
		Amount:      amount,
		Description: desc,
		Date:        req.Date,
	}
}
