// Package storagetest holds the behaviour every storage.Repository must
// share. Backends call Run from their own tests.
package storagetest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"davi/internal/core"
	"davi/internal/storage"
)

// Run exercises repo with the full contract. newRepo must return an empty
// repository each time it is called.
func Run(t *testing.T, newRepo func(t *testing.T) storage.Repository) {
	tests := []struct {
		name string
		fn   func(t *testing.T, repo storage.Repository)
	}{
		{"users", testUsers},
		{"profile", testProfile},
		{"auto distribution", testAutoDistribution},
		{"explicit distribution", testExplicitDistribution},
		{"distribution failures change nothing", testDistributionFailures},
		{"partial failure rolls back", testPartialFailureRollsBack},
		{"record with parent", testRecordWithParent},
		{"movement ordering", testMovementOrdering},
		{"mirror tracking", testMirror},
		{"buckets", testBuckets},
		{"giants", testGiants},
		{"bills", testBills},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newRepo(t)
			t.Cleanup(func() { _ = repo.Close() })
			tt.fn(t, repo)
		})
	}
}

func mustUser(t *testing.T, repo storage.Repository, name string) core.User {
	t.Helper()
	u, err := repo.CreateUser(context.Background(), name, "hash")
	if err != nil {
		t.Fatalf("CreateUser(%q): %v", name, err)
	}
	return u
}

func mustBucket(t *testing.T, repo storage.Repository, b core.Bucket) int64 {
	t.Helper()
	id, err := repo.CreateBucket(context.Background(), b.Normalize())
	if err != nil {
		t.Fatalf("CreateBucket: %v", err)
	}
	return id
}

func balances(t *testing.T, repo storage.Repository, userID int64) map[int64]int64 {
	t.Helper()
	bs, err := repo.ListBuckets(context.Background(), userID)
	if err != nil {
		t.Fatalf("ListBuckets: %v", err)
	}
	out := make(map[int64]int64, len(bs))
	for _, b := range bs {
		out[b.ID] = b.Balance.Cents
	}
	return out
}

func movementCount(t *testing.T, repo storage.Repository, userID int64) int {
	t.Helper()
	ms, err := repo.ListMovements(context.Background(), userID, core.MaxMovementsLimit)
	if err != nil {
		t.Fatalf("ListMovements: %v", err)
	}
	return len(ms)
}

func testUsers(t *testing.T, repo storage.Repository) {
	ctx := context.Background()
	u := mustUser(t, repo, "ana")
	if u.ID == 0 {
		t.Fatal("expected id to be assigned")
	}
	if _, err := repo.CreateUser(ctx, "ana", "other"); !errors.Is(err, core.ErrUsernameTaken) {
		t.Fatalf("duplicate user: got %v, want ErrUsernameTaken", err)
	}
	got, err := repo.UserByName(ctx, "ana")
	if err != nil || got.ID != u.ID || got.PasswordHash != "hash" {
		t.Fatalf("UserByName = %+v, %v", got, err)
	}
	if _, err := repo.UserByName(ctx, "nobody"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("missing user: got %v, want ErrNotFound", err)
	}
	if n, err := repo.CountUsers(ctx); err != nil || n != 1 {
		t.Fatalf("CountUsers = %d, %v", n, err)
	}
}

func testProfile(t *testing.T, repo storage.Repository) {
	ctx := context.Background()
	u := mustUser(t, repo, "ana")

	p, err := repo.Profile(ctx, u.ID)
	if err != nil {
		t.Fatalf("Profile: %v", err)
	}
	if p.UserID != u.ID || !p.MonthlyIncome.IsZero() || !p.LastAllocation.IsZero() {
		t.Fatalf("expected empty profile, got %+v", p)
	}

	p.MonthlyIncome = core.Cents(250000)
	p.MonthlyExpense = core.Cents(180000)
	p.LastAllocation = core.NewDate(2025, 3, 1)
	if err := repo.SaveProfile(ctx, p); err != nil {
		t.Fatalf("SaveProfile: %v", err)
	}
	got, err := repo.Profile(ctx, u.ID)
	if err != nil {
		t.Fatalf("Profile: %v", err)
	}
	if got.MonthlyIncome.Cents != 250000 || got.MonthlyExpense.Cents != 180000 ||
		got.LastAllocation.String() != "2025-03-01" {
		t.Fatalf("profile not saved, got %+v", got)
	}
}

func testAutoDistribution(t *testing.T, repo storage.Repository) {
	ctx := context.Background()
	u := mustUser(t, repo, "ana")
	a := mustBucket(t, repo, core.Bucket{UserID: u.ID, Name: "A", Percent: 60})
	b := mustBucket(t, repo, core.Bucket{UserID: u.ID, Name: "B", Percent: 40})

	d, err := repo.Distribute(ctx, core.DistributionRequest{
		UserID:      u.ID,
		Amount:      core.Cents(10000),
		Kind:        core.KindIncome,
		Date:        core.NewDate(2025, 1, 15),
		Description: "salary",
		Mode:        core.ModeAuto,
	}, core.Allocator{})
	if err != nil {
		t.Fatalf("Distribute: %v", err)
	}
	if len(d.MovementIDs) != 2 || d.ParentID != 0 {
		t.Fatalf("unexpected distribution %+v", d)
	}

	bal := balances(t, repo, u.ID)
	if bal[a] != 6000 || bal[b] != 4000 {
		t.Fatalf("balances = %v, want 6000/4000", bal)
	}

	ms, err := repo.PendingMirror(ctx, d.MovementIDs, 10)
	if err != nil || len(ms) != 2 {
		t.Fatalf("PendingMirror = %v, %v", ms, err)
	}
	for _, m := range ms {
		if !strings.Contains(m.Description, "(auto ") {
			t.Fatalf("entry not tagged auto: %q", m.Description)
		}
		if m.BucketID == nil || m.ParentID != nil {
			t.Fatalf("unexpected references on %+v", m)
		}
		if m.Date.String() != "2025-01-15" {
			t.Fatalf("date = %s", m.Date)
		}
	}
}

func testExplicitDistribution(t *testing.T, repo storage.Repository) {
	ctx := context.Background()
	u := mustUser(t, repo, "ana")
	id := mustBucket(t, repo, core.Bucket{UserID: u.ID, Name: "Only", Percent: 100, Balance: core.Cents(1000)})

	_, err := repo.Distribute(ctx, core.DistributionRequest{
		UserID:         u.ID,
		Amount:         core.Cents(3333),
		Kind:           core.KindExpense,
		Date:           core.NewDate(2025, 2, 1),
		Mode:           core.ModeExplicit,
		TargetBucketID: id,
	}, core.Allocator{})
	if err != nil {
		t.Fatalf("Distribute: %v", err)
	}
	if got := balances(t, repo, u.ID)[id]; got != -2333 {
		t.Fatalf("balance = %d, want -2333", got)
	}
}

func testDistributionFailures(t *testing.T, repo storage.Repository) {
	ctx := context.Background()
	u := mustUser(t, repo, "ana")
	other := mustUser(t, repo, "bob")
	zero := mustBucket(t, repo, core.Bucket{UserID: u.ID, Name: "Zero", Percent: 0, Balance: core.Cents(500)})
	foreign := mustBucket(t, repo, core.Bucket{UserID: other.ID, Name: "Theirs", Percent: 50})

	base := core.DistributionRequest{
		UserID: u.ID,
		Amount: core.Cents(1000),
		Kind:   core.KindIncome,
		Date:   core.NewDate(2025, 1, 1),
	}

	auto := base
	auto.Mode = core.ModeAuto
	if _, err := repo.Distribute(ctx, auto, core.Allocator{}); !errors.Is(err, core.ErrNoDistributionBasis) {
		t.Fatalf("auto with zero percents: got %v", err)
	}

	for _, target := range []int64{foreign, 999999} {
		explicit := base
		explicit.Mode = core.ModeExplicit
		explicit.TargetBucketID = target
		if _, err := repo.Distribute(ctx, explicit, core.Allocator{}); !errors.Is(err, core.ErrInvalidBucket) {
			t.Fatalf("explicit to %d: got %v, want ErrInvalidBucket", target, err)
		}
	}

	if got := balances(t, repo, u.ID)[zero]; got != 500 {
		t.Fatalf("balance changed to %d", got)
	}
	if n := movementCount(t, repo, u.ID); n != 0 {
		t.Fatalf("%d movements written, want 0", n)
	}
}

// brokenAllocator appends an entry for a bucket that does not exist so the
// store fails after writing the valid ones.
type brokenAllocator struct{}

func (brokenAllocator) Allocate(req core.DistributionRequest, buckets []core.Bucket) (core.Allocation, error) {
	plan, err := core.Allocate(req, buckets)
	if err != nil {
		return plan, err
	}
	missing := int64(999999)
	plan.Entries = append(plan.Entries, core.Movement{
		UserID: req.UserID, BucketID: &missing, Kind: req.Kind,
		Amount: core.Cents(1), Date: req.Date,
	})
	plan.Deltas = append(plan.Deltas, core.BucketDelta{BucketID: missing, Delta: core.Cents(1)})
	return plan, nil
}

func testPartialFailureRollsBack(t *testing.T, repo storage.Repository) {
	ctx := context.Background()
	u := mustUser(t, repo, "ana")
	a := mustBucket(t, repo, core.Bucket{UserID: u.ID, Name: "A", Percent: 50})
	b := mustBucket(t, repo, core.Bucket{UserID: u.ID, Name: "B", Percent: 50})

	_, err := repo.Distribute(ctx, core.DistributionRequest{
		UserID: u.ID,
		Amount: core.Cents(2000),
		Kind:   core.KindIncome,
		Date:   core.NewDate(2025, 1, 1),
		Mode:   core.ModeAuto,
		Record: true,
	}, brokenAllocator{})
	if err == nil {
		t.Fatal("expected distribution to fail")
	}

	bal := balances(t, repo, u.ID)
	if bal[a] != 0 || bal[b] != 0 {
		t.Fatalf("balances changed after failure: %v", bal)
	}
	if n := movementCount(t, repo, u.ID); n != 0 {
		t.Fatalf("%d movements survived the rollback", n)
	}
}

func testRecordWithParent(t *testing.T, repo storage.Repository) {
	ctx := context.Background()
	u := mustUser(t, repo, "ana")
	mustBucket(t, repo, core.Bucket{UserID: u.ID, Name: "A", Percent: 70})
	mustBucket(t, repo, core.Bucket{UserID: u.ID, Name: "B", Percent: 30})

	d, err := repo.Distribute(ctx, core.DistributionRequest{
		UserID:      u.ID,
		Amount:      core.Cents(5000),
		Kind:        core.KindIncome,
		Date:        core.NewDate(2025, 4, 1),
		Description: "bonus",
		Mode:        core.ModeAuto,
		Record:      true,
	}, core.Allocator{})
	if err != nil {
		t.Fatalf("Distribute: %v", err)
	}
	if d.ParentID == 0 {
		t.Fatal("expected parent movement id")
	}

	ms, err := repo.ListMovements(ctx, u.ID, 10)
	if err != nil {
		t.Fatalf("ListMovements: %v", err)
	}
	if len(ms) != 3 {
		t.Fatalf("got %d movements, want 3", len(ms))
	}
	for _, m := range ms {
		if m.ID == d.ParentID {
			if m.BucketID != nil || m.Amount.Cents != 5000 || m.Description != "bonus" {
				t.Fatalf("unexpected parent %+v", m)
			}
			continue
		}
		if m.ParentID == nil || *m.ParentID != d.ParentID {
			t.Fatalf("entry %d not linked to parent", m.ID)
		}
	}

	totals := core.SumMovements(ms)
	if totals.Income.Cents != 5000 {
		t.Fatalf("dashboard income = %d, want 5000", totals.Income.Cents)
	}
}

func testMovementOrdering(t *testing.T, repo storage.Repository) {
	ctx := context.Background()
	u := mustUser(t, repo, "ana")
	dates := []core.Date{
		core.NewDate(2025, 1, 2),
		core.NewDate(2025, 1, 3),
		core.NewDate(2025, 1, 2),
		core.NewDate(2025, 1, 1),
	}
	var ids []int64
	for _, d := range dates {
		id, err := repo.InsertMovement(ctx, core.Movement{
			UserID: u.ID, Kind: core.KindExpense, Amount: core.Cents(100), Date: d,
		})
		if err != nil {
			t.Fatalf("InsertMovement: %v", err)
		}
		ids = append(ids, id)
	}

	ms, err := repo.ListMovements(ctx, u.ID, 3)
	if err != nil {
		t.Fatalf("ListMovements: %v", err)
	}
	want := []int64{ids[1], ids[2], ids[0]}
	if len(ms) != len(want) {
		t.Fatalf("got %d movements, want %d", len(ms), len(want))
	}
	for i, m := range ms {
		if m.ID != want[i] {
			t.Fatalf("position %d: id %d, want %d", i, m.ID, want[i])
		}
	}
}

func testBuckets(t *testing.T, repo storage.Repository) {
	ctx := context.Background()
	u := mustUser(t, repo, "ana")
	other := mustUser(t, repo, "bob")
	id := mustBucket(t, repo, core.Bucket{UserID: u.ID, Name: "Fun", Percent: 10, Type: "Leisure"})

	bs, err := repo.ListBuckets(ctx, u.ID)
	if err != nil || len(bs) != 1 || bs[0].Type != "leisure" {
		t.Fatalf("ListBuckets = %+v, %v", bs, err)
	}

	upd := bs[0]
	upd.Name, upd.Percent, upd.Balance = "Fun money", 15, core.Cents(99999)
	if err := repo.UpdateBucket(ctx, upd); err != nil {
		t.Fatalf("UpdateBucket: %v", err)
	}
	bs, _ = repo.ListBuckets(ctx, u.ID)
	if bs[0].Name != "Fun money" || bs[0].Percent != 15 || bs[0].Balance.Cents != 0 {
		t.Fatalf("update should change definition only, got %+v", bs[0])
	}

	stolen := upd
	stolen.UserID = other.ID
	if err := repo.UpdateBucket(ctx, stolen); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("update by other user: got %v", err)
	}

	if err := repo.SetBucketBalance(ctx, u.ID, id, core.Cents(-1250)); err != nil {
		t.Fatalf("SetBucketBalance: %v", err)
	}
	if got := balances(t, repo, u.ID)[id]; got != -1250 {
		t.Fatalf("balance = %d, want -1250", got)
	}
	if err := repo.SetBucketBalance(ctx, other.ID, id, core.Cents(0)); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("override by other user: got %v", err)
	}

	d, err := repo.Distribute(ctx, core.DistributionRequest{
		UserID: u.ID, Amount: core.Cents(500), Kind: core.KindExpense,
		Date: core.NewDate(2025, 1, 1), Mode: core.ModeExplicit, TargetBucketID: id,
	}, core.Allocator{})
	if err != nil {
		t.Fatalf("Distribute: %v", err)
	}

	if err := repo.DeleteBucket(ctx, u.ID, id); err != nil {
		t.Fatalf("DeleteBucket: %v", err)
	}
	ms, err := repo.PendingMirror(ctx, d.MovementIDs, 10)
	if err != nil || len(ms) != 1 {
		t.Fatalf("movement should survive bucket deletion: %v, %v", ms, err)
	}
	if ms[0].BucketID != nil {
		t.Fatalf("bucket reference not cleared: %d", *ms[0].BucketID)
	}
	if err := repo.DeleteBucket(ctx, u.ID, id); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("second delete: got %v", err)
	}
}

func testMirror(t *testing.T, repo storage.Repository) {
	ctx := context.Background()
	u := mustUser(t, repo, "mirror")

	var ids []int64
	for i := 0; i < 3; i++ {
		id, err := repo.InsertMovement(ctx, core.Movement{
			UserID: u.ID, Kind: core.KindExpense, Amount: core.Cents(int64(100 * (i + 1))),
			Description: fmt.Sprintf("m%d", i), Date: core.NewDate(2025, 3, 1),
		})
		if err != nil {
			t.Fatalf("InsertMovement: %v", err)
		}
		ids = append(ids, id)
	}

	pending, err := repo.PendingMirror(ctx, nil, 2)
	if err != nil {
		t.Fatalf("PendingMirror: %v", err)
	}
	if len(pending) != 2 || pending[0].ID != ids[0] || pending[1].ID != ids[1] {
		t.Fatalf("pending = %+v, want the two oldest", pending)
	}

	if err := repo.MarkMirrored(ctx, ids[:2]); err != nil {
		t.Fatalf("MarkMirrored: %v", err)
	}
	if err := repo.MarkMirrored(ctx, nil); err != nil {
		t.Fatalf("MarkMirrored(nil): %v", err)
	}

	pending, err = repo.PendingMirror(ctx, nil, 10)
	if err != nil || len(pending) != 1 || pending[0].ID != ids[2] {
		t.Fatalf("after mark: %+v, %v", pending, err)
	}
	pending, err = repo.PendingMirror(ctx, ids[:2], 10)
	if err != nil || len(pending) != 0 {
		t.Fatalf("mirrored ids still pending: %+v, %v", pending, err)
	}
}

func testGiants(t *testing.T, repo storage.Repository) {
	ctx := context.Background()
	u := mustUser(t, repo, "ana")

	card, err := repo.CreateGiant(ctx, core.Giant{
		UserID: u.ID, Name: "Card", TotalToPay: core.Cents(50000),
		WeeklyGoal: core.Cents(7000), Status: core.GiantActive, Priority: 1,
	})
	if err != nil {
		t.Fatalf("CreateGiant: %v", err)
	}
	loan, err := repo.CreateGiant(ctx, core.Giant{
		UserID: u.ID, Name: "Loan", TotalToPay: core.Cents(1000), Status: core.GiantActive, Priority: 5,
	})
	if err != nil {
		t.Fatalf("CreateGiant: %v", err)
	}

	gs, err := repo.ListGiants(ctx, u.ID)
	if err != nil || len(gs) != 2 || gs[0].ID != loan {
		t.Fatalf("ListGiants should order by priority: %+v, %v", gs, err)
	}

	for _, cents := range []int64{5000, 7000} {
		if _, _, err := repo.RecordGiantPayment(ctx, core.GiantPayment{
			UserID: u.ID, GiantID: card, Amount: core.Cents(cents), Date: core.NewDate(2025, 1, 1),
		}); err != nil {
			t.Fatalf("RecordGiantPayment: %v", err)
		}
	}
	g, paid, err := repo.GiantWithPaid(ctx, u.ID, card)
	if err != nil || paid.Cents != 12000 || g.Status != core.GiantActive {
		t.Fatalf("GiantWithPaid = %+v, %d, %v", g, paid.Cents, err)
	}

	_, paid, err = repo.RecordGiantPayment(ctx, core.GiantPayment{
		UserID: u.ID, GiantID: loan, Amount: core.Cents(1000), Date: core.NewDate(2025, 1, 2),
	})
	if err != nil || paid.Cents != 1000 {
		t.Fatalf("RecordGiantPayment = %d, %v", paid.Cents, err)
	}
	if g, _, _ := repo.GiantWithPaid(ctx, u.ID, loan); g.Status != core.GiantPaid {
		t.Fatalf("status = %s, want paid", g.Status)
	}

	if _, _, err := repo.RecordGiantPayment(ctx, core.GiantPayment{
		UserID: u.ID, GiantID: 999999, Amount: core.Cents(1), Date: core.NewDate(2025, 1, 1),
	}); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("payment to missing giant: got %v", err)
	}

	sums, err := repo.PaidByGiant(ctx, u.ID)
	if err != nil || sums[card].Cents != 12000 || sums[loan].Cents != 1000 {
		t.Fatalf("PaidByGiant = %v, %v", sums, err)
	}

	other := mustUser(t, repo, "bob")
	if ok, err := repo.DeleteGiant(ctx, other.ID, card); ok || err != nil {
		t.Fatalf("delete by other user = %v, %v", ok, err)
	}
	if ok, err := repo.DeleteGiant(ctx, u.ID, card); !ok || err != nil {
		t.Fatalf("DeleteGiant = %v, %v", ok, err)
	}
	sums, _ = repo.PaidByGiant(ctx, u.ID)
	if _, left := sums[card]; left {
		t.Fatal("payments survived giant deletion")
	}
	if _, _, err := repo.GiantWithPaid(ctx, u.ID, card); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("deleted giant still readable: %v", err)
	}
	if ok, err := repo.DeleteGiant(ctx, u.ID, card); ok || err != nil {
		t.Fatalf("second delete = %v, %v; want false, nil", ok, err)
	}
}

func testBills(t *testing.T, repo storage.Repository) {
	ctx := context.Background()
	u := mustUser(t, repo, "ana")

	later, err := repo.CreateBill(ctx, core.Bill{
		UserID: u.ID, Title: "Rent", Amount: core.Cents(90000), DueDate: core.NewDate(2025, 6, 1), Critical: true,
	})
	if err != nil {
		t.Fatalf("CreateBill: %v", err)
	}
	sooner, err := repo.CreateBill(ctx, core.Bill{
		UserID: u.ID, Title: "Phone", Amount: core.Cents(1500), DueDate: core.NewDate(2025, 5, 20),
	})
	if err != nil {
		t.Fatalf("CreateBill: %v", err)
	}

	bills, err := repo.ListBills(ctx, u.ID)
	if err != nil || len(bills) != 2 {
		t.Fatalf("ListBills = %v, %v", bills, err)
	}
	if bills[0].ID != sooner || bills[1].ID != later || !bills[1].Critical {
		t.Fatalf("unexpected order %+v", bills)
	}

	if err := repo.SetBillPaid(ctx, u.ID, sooner, true); err != nil {
		t.Fatalf("SetBillPaid: %v", err)
	}
	bills, _ = repo.ListBills(ctx, u.ID)
	if !bills[0].Paid {
		t.Fatal("bill not marked paid")
	}
	if err := repo.SetBillPaid(ctx, u.ID, 999999, true); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("missing bill: got %v", err)
	}

	if err := repo.DeleteBill(ctx, u.ID, later); err != nil {
		t.Fatalf("DeleteBill: %v", err)
	}
	if err := repo.DeleteBill(ctx, u.ID, later); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("second delete: got %v", err)
	}
}
