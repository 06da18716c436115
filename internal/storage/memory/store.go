// Package memory is an in-process storage.Repository used for tests, demos
// and the admin CLI dry runs.
package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"davi/internal/core"
	"davi/internal/storage"
)

// Store keeps every table in maps behind one mutex. A unit of work holds
// the lock from the first read to the last write, and computes the full
// allocation before touching any row, so a failure leaves nothing behind.
type Store struct {
	mu sync.Mutex

	nextID int64

	users     map[int64]core.User
	profiles  map[int64]core.Profile
	buckets   map[int64]core.Bucket
	movements map[int64]core.Movement
	mirrored  map[int64]bool
	giants    map[int64]core.Giant
	payments  map[int64]core.GiantPayment
	bills     map[int64]core.Bill
}

var _ storage.Repository = (*Store)(nil)

func New() *Store {
	return &Store{
		users:     make(map[int64]core.User),
		profiles:  make(map[int64]core.Profile),
		buckets:   make(map[int64]core.Bucket),
		movements: make(map[int64]core.Movement),
		mirrored:  make(map[int64]bool),
		giants:    make(map[int64]core.Giant),
		payments:  make(map[int64]core.GiantPayment),
		bills:     make(map[int64]core.Bill),
	}
}

func (s *Store) Close() error { return nil }

func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

// Users

func (s *Store) CreateUser(ctx context.Context, name, passwordHash string) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Name == name {
			return core.User{}, core.ErrUsernameTaken
		}
	}
	u := core.User{ID: s.id(), Name: name, PasswordHash: passwordHash, CreatedAt: time.Now().UTC()}
	s.users[u.ID] = u
	return u, nil
}

func (s *Store) UserByName(ctx context.Context, name string) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Name == name {
			return u, nil
		}
	}
	return core.User{}, core.ErrNotFound
}

func (s *Store) CountUsers(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users), nil
}

func (s *Store) Profile(ctx context.Context, userID int64) (core.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[userID]; !ok {
		return core.Profile{}, core.ErrNotFound
	}
	p, ok := s.profiles[userID]
	if !ok {
		p = core.Profile{UserID: userID}
		s.profiles[userID] = p
	}
	return p, nil
}

func (s *Store) SaveProfile(ctx context.Context, p core.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[p.UserID]; !ok {
		return core.ErrNotFound
	}
	s.profiles[p.UserID] = p
	return nil
}

// Ledger

func (s *Store) insertMovement(m core.Movement) int64 {
	m.ID = s.id()
	m.CreatedAt = time.Now().UTC()
	s.movements[m.ID] = m
	return m.ID
}

func (s *Store) InsertMovement(ctx context.Context, m core.Movement) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertMovement(m), nil
}

func (s *Store) Distribute(ctx context.Context, req core.DistributionRequest, alloc storage.Allocator) (core.Distribution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	plan, err := alloc.Allocate(req, s.userBuckets(req.UserID))
	if err != nil {
		return core.Distribution{}, err
	}
	for _, d := range plan.Deltas {
		if b, ok := s.buckets[d.BucketID]; !ok || b.UserID != req.UserID {
			return core.Distribution{}, core.ErrInvalidBucket
		}
	}

	var out core.Distribution
	var parentID *int64
	if req.Record {
		id := s.insertMovement(req.Parent())
		out.ParentID = id
		parentID = &id
	}
	for i, e := range plan.Entries {
		e.ParentID = parentID
		e.ID = s.insertMovement(e)
		out.MovementIDs = append(out.MovementIDs, e.ID)
		out.Entries = append(out.Entries, e)

		d := plan.Deltas[i]
		b := s.buckets[d.BucketID]
		b.Balance = b.Balance.Add(d.Delta)
		s.buckets[d.BucketID] = b
	}
	return out, nil
}

func (s *Store) ListMovements(ctx context.Context, userID int64, limit int) ([]core.Movement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []core.Movement
	for _, m := range s.movements {
		if m.UserID == userID {
			out = append(out, m)
		}
	}
	slices.SortFunc(out, func(a, b core.Movement) int {
		if c := b.Date.Compare(a.Date.Time); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Mirror

func (s *Store) PendingMirror(ctx context.Context, ids []int64, limit int) ([]core.Movement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []core.Movement
	for _, m := range s.movements {
		if s.mirrored[m.ID] {
			continue
		}
		if len(ids) > 0 && !slices.Contains(ids, m.ID) {
			continue
		}
		out = append(out, m)
	}
	slices.SortFunc(out, func(a, b core.Movement) int { return cmp.Compare(a.ID, b.ID) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) MarkMirrored(ctx context.Context, ids []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		if _, ok := s.movements[id]; ok {
			s.mirrored[id] = true
		}
	}
	return nil
}

// Buckets

func (s *Store) userBuckets(userID int64) []core.Bucket {
	var out []core.Bucket
	for _, b := range s.buckets {
		if b.UserID == userID {
			out = append(out, b)
		}
	}
	slices.SortFunc(out, func(a, b core.Bucket) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

func (s *Store) CreateBucket(ctx context.Context, b core.Bucket) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b.ID = s.id()
	s.buckets[b.ID] = b
	return b.ID, nil
}

func (s *Store) UpdateBucket(ctx context.Context, b core.Bucket) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.buckets[b.ID]
	if !ok || cur.UserID != b.UserID {
		return core.ErrNotFound
	}
	cur.Name, cur.Description, cur.Percent, cur.Type = b.Name, b.Description, b.Percent, b.Type
	s.buckets[b.ID] = cur
	return nil
}

func (s *Store) SetBucketBalance(ctx context.Context, userID, bucketID int64, balance core.Money) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buckets[bucketID]
	if !ok || b.UserID != userID {
		return core.ErrNotFound
	}
	b.Balance = balance
	s.buckets[bucketID] = b
	return nil
}

func (s *Store) DeleteBucket(ctx context.Context, userID, bucketID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buckets[bucketID]
	if !ok || b.UserID != userID {
		return core.ErrNotFound
	}
	for id, m := range s.movements {
		if m.BucketID != nil && *m.BucketID == bucketID {
			m.BucketID = nil
			s.movements[id] = m
		}
	}
	delete(s.buckets, bucketID)
	return nil
}

func (s *Store) ListBuckets(ctx context.Context, userID int64) ([]core.Bucket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userBuckets(userID), nil
}

// Giants

func (s *Store) CreateGiant(ctx context.Context, g core.Giant) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g.ID = s.id()
	g.CreatedAt = time.Now().UTC()
	s.giants[g.ID] = g
	return g.ID, nil
}

func (s *Store) ListGiants(ctx context.Context, userID int64) ([]core.Giant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []core.Giant
	for _, g := range s.giants {
		if g.UserID == userID {
			out = append(out, g)
		}
	}
	slices.SortFunc(out, func(a, b core.Giant) int {
		if c := cmp.Compare(b.Priority, a.Priority); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (s *Store) paid(giantID int64) core.Money {
	var total core.Money
	for _, p := range s.payments {
		if p.GiantID == giantID {
			total = total.Add(p.Amount)
		}
	}
	return total
}

func (s *Store) GiantWithPaid(ctx context.Context, userID, giantID int64) (core.Giant, core.Money, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.giants[giantID]
	if !ok || g.UserID != userID {
		return core.Giant{}, core.Money{}, core.ErrNotFound
	}
	return g, s.paid(giantID), nil
}

func (s *Store) PaidByGiant(ctx context.Context, userID int64) (map[int64]core.Money, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[int64]core.Money)
	for _, p := range s.payments {
		if p.UserID == userID {
			out[p.GiantID] = out[p.GiantID].Add(p.Amount)
		}
	}
	return out, nil
}

func (s *Store) RecordGiantPayment(ctx context.Context, p core.GiantPayment) (int64, core.Money, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.giants[p.GiantID]
	if !ok || g.UserID != p.UserID {
		return 0, core.Money{}, core.ErrNotFound
	}
	p.ID = s.id()
	s.payments[p.ID] = p

	paid := s.paid(g.ID)
	if core.ForecastPayoff(g, paid).IsPaidOff() && g.Status == core.GiantActive {
		g.Status = core.GiantPaid
		s.giants[g.ID] = g
	}
	return p.ID, paid, nil
}

func (s *Store) DeleteGiant(ctx context.Context, userID, giantID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.giants[giantID]
	if !ok || g.UserID != userID {
		return false, nil
	}
	for id, p := range s.payments {
		if p.GiantID == giantID {
			delete(s.payments, id)
		}
	}
	delete(s.giants, giantID)
	return true, nil
}

// Bills

func (s *Store) CreateBill(ctx context.Context, b core.Bill) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b.ID = s.id()
	s.bills[b.ID] = b
	return b.ID, nil
}

func (s *Store) ListBills(ctx context.Context, userID int64) ([]core.Bill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []core.Bill
	for _, b := range s.bills {
		if b.UserID == userID {
			out = append(out, b)
		}
	}
	slices.SortFunc(out, func(a, b core.Bill) int {
		if c := a.DueDate.Compare(b.DueDate.Time); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (s *Store) SetBillPaid(ctx context.Context, userID, billID int64, paid bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bills[billID]
	if !ok || b.UserID != userID {
		return core.ErrNotFound
	}
	b.Paid = paid
	s.bills[billID] = b
	return nil
}

func (s *Store) DeleteBill(ctx context.Context, userID, billID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bills[billID]
	if !ok || b.UserID != userID {
		return core.ErrNotFound
	}
	delete(s.bills, billID)
	return nil
}
