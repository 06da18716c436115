package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"davi/internal/core"
	"davi/internal/storage/memory"
)

type fakePublisher struct {
	mu     sync.Mutex
	events [][]int64
	err    error
}

func (p *fakePublisher) PublishMovementsRecorded(_ context.Context, _ int64, ids []int64) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	p.events = append(p.events, ids)
	return "evt", nil
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

var fixedNow = time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)

func newTestFinance(t *testing.T) (*Finance, *fakePublisher) {
	t.Helper()
	pub := &fakePublisher{}
	opts := DefaultOptions()
	opts.Now = func() time.Time { return fixedNow }
	f := New(memory.New(), pub, opts)
	t.Cleanup(func() { _ = f.Close() })
	return f, pub
}

func mustCreateUser(t *testing.T, f *Finance, name string) core.User {
	t.Helper()
	u, err := f.CreateUser(context.Background(), name, "secret")
	if err != nil {
		t.Fatalf("CreateUser(%s): %v", name, err)
	}
	return u
}

func TestFinance_Users(t *testing.T) {
	ctx := context.Background()
	f, _ := newTestFinance(t)

	u := mustCreateUser(t, f, "  alice ")
	if u.Name != "alice" {
		t.Errorf("name not trimmed: %q", u.Name)
	}
	if u.PasswordHash == "secret" {
		t.Error("password stored in clear")
	}

	tests := []struct {
		name     string
		user     string
		password string
		wantErr  error
	}{
		{"duplicate", "alice", "other", core.ErrUsernameTaken},
		{"short name", "al", "secret", core.ErrTooShort},
		{"short password", "bob", "123", core.ErrTooShort},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.CreateUser(ctx, tt.user, tt.password)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("CreateUser() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
	if _, err := f.CreateUser(ctx, "al", "1"); !errors.Is(err, core.ErrValidation) {
		t.Errorf("ErrTooShort should be a validation error, got %v", err)
	}

	got, err := f.Authenticate(ctx, "alice", "secret")
	if err != nil || got == nil || got.ID != u.ID {
		t.Fatalf("Authenticate() = %v, %v", got, err)
	}
	for _, c := range [][2]string{{"alice", "wrong"}, {"nobody", "secret"}} {
		got, err := f.Authenticate(ctx, c[0], c[1])
		if err != nil || got != nil {
			t.Errorf("Authenticate(%s, %s) = %v, %v, want nil, nil", c[0], c[1], got, err)
		}
	}
}

func TestFinance_EnsureDefaultUser(t *testing.T) {
	ctx := context.Background()

	t.Run("seeds once", func(t *testing.T) {
		f, _ := newTestFinance(t)
		created, err := f.EnsureDefaultUser(ctx)
		if err != nil || !created {
			t.Fatalf("first call = %v, %v", created, err)
		}
		created, err = f.EnsureDefaultUser(ctx)
		if err != nil || created {
			t.Fatalf("second call = %v, %v", created, err)
		}
		if u, _ := f.Authenticate(ctx, DemoUserName, DemoUserPassword); u == nil {
			t.Fatal("demo user cannot log in")
		}
	})

	t.Run("disabled", func(t *testing.T) {
		f := New(memory.New(), nil, Options{})
		created, err := f.EnsureDefaultUser(ctx)
		if err != nil || created {
			t.Fatalf("EnsureDefaultUser() = %v, %v", created, err)
		}
	})

	t.Run("skipped when users exist", func(t *testing.T) {
		f, _ := newTestFinance(t)
		mustCreateUser(t, f, "alice")
		if created, _ := f.EnsureDefaultUser(ctx); created {
			t.Fatal("should not seed when a user exists")
		}
	})
}

func TestFinance_DistributeAuto(t *testing.T) {
	ctx := context.Background()
	f, pub := newTestFinance(t)
	u := mustCreateUser(t, f, "alice")

	a, err := f.CreateBucket(ctx, u.ID, "Needs", "", 60, "")
	if err != nil {
		t.Fatalf("CreateBucket: %v", err)
	}
	b, err := f.CreateBucket(ctx, u.ID, "Wants", "Fun", 40, "")
	if err != nil {
		t.Fatalf("CreateBucket: %v", err)
	}

	// Prime the cache so the test can observe invalidation.
	before, err := f.ListBuckets(ctx, u.ID)
	if err != nil || len(before) != 2 {
		t.Fatalf("ListBuckets = %v, %v", before, err)
	}
	if before[1].Type != "fun" {
		t.Errorf("type not normalized: %q", before[1].Type)
	}

	d, err := f.Distribute(ctx, core.DistributionRequest{
		UserID: u.ID, Amount: core.Cents(10000), Kind: core.KindIncome,
		Date: core.NewDate(2025, 1, 10), Description: "salary", Mode: core.ModeAuto,
	})
	if err != nil {
		t.Fatalf("Distribute: %v", err)
	}
	if len(d.MovementIDs) != 2 {
		t.Fatalf("entries = %d, want 2", len(d.MovementIDs))
	}

	after, err := f.ListBuckets(ctx, u.ID)
	if err != nil {
		t.Fatalf("ListBuckets: %v", err)
	}
	bal := map[int64]int64{}
	for _, bk := range after {
		bal[bk.ID] = bk.Balance.Cents
	}
	if bal[a] != 6000 || bal[b] != 4000 {
		t.Fatalf("balances = %v, want 6000/4000 (stale cache?)", bal)
	}

	if pub.count() != 1 || len(pub.events[0]) != 2 {
		t.Errorf("published events = %v", pub.events)
	}

	p, err := f.Profile(ctx, u.ID)
	if err != nil {
		t.Fatalf("Profile: %v", err)
	}
	if p.LastAllocation.String() != "2025-01-10" {
		t.Errorf("LastAllocation = %s", p.LastAllocation)
	}
}

func TestFinance_DistributeFailuresWriteNothing(t *testing.T) {
	ctx := context.Background()
	f, pub := newTestFinance(t)
	u := mustCreateUser(t, f, "alice")
	other := mustCreateUser(t, f, "mallory")

	foreign, err := f.CreateBucket(ctx, other.ID, "Theirs", "", 100, "")
	if err != nil {
		t.Fatalf("CreateBucket: %v", err)
	}
	if _, err := f.CreateBucket(ctx, u.ID, "Zero", "", 0, ""); err != nil {
		t.Fatalf("CreateBucket: %v", err)
	}

	base := core.DistributionRequest{
		UserID: u.ID, Amount: core.Cents(1000), Kind: core.KindExpense,
		Date: core.NewDate(2025, 1, 10), Description: "x",
	}
	tests := []struct {
		name    string
		mutate  func(r *core.DistributionRequest)
		wantErr error
	}{
		{"no basis", func(r *core.DistributionRequest) { r.Mode = core.ModeAuto }, core.ErrNoDistributionBasis},
		{"missing bucket", func(r *core.DistributionRequest) { r.Mode = core.ModeExplicit; r.TargetBucketID = 9999 }, core.ErrInvalidBucket},
		{"other user's bucket", func(r *core.DistributionRequest) { r.Mode = core.ModeExplicit; r.TargetBucketID = foreign }, core.ErrInvalidBucket},
		{"zero amount", func(r *core.DistributionRequest) { r.Mode = core.ModeAuto; r.Amount = core.Cents(0) }, core.ErrInvalidAmount},
		{"bad mode", func(r *core.DistributionRequest) { r.Mode = "random" }, core.ErrInvalidMode},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := base
			tt.mutate(&req)
			if _, err := f.Distribute(ctx, req); !errors.Is(err, tt.wantErr) {
				t.Fatalf("Distribute() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	ms, err := f.ListMovements(ctx, u.ID, 0)
	if err != nil || len(ms) != 0 {
		t.Fatalf("movements = %v, %v, want none", ms, err)
	}
	if pub.count() != 0 {
		t.Errorf("failed distributions published %d events", pub.count())
	}
	theirs, _ := f.ListBuckets(ctx, other.ID)
	if theirs[0].Balance.Cents != 0 {
		t.Errorf("foreign bucket touched: %v", theirs[0].Balance)
	}
}

func TestFinance_ExplicitExpense(t *testing.T) {
	ctx := context.Background()
	f, _ := newTestFinance(t)
	u := mustCreateUser(t, f, "alice")

	id, _ := f.CreateBucket(ctx, u.ID, "Only", "", 100, "")
	if err := f.UpdateBucketBalance(ctx, u.ID, id, core.Cents(1000)); err != nil {
		t.Fatalf("UpdateBucketBalance: %v", err)
	}

	if _, err := f.Distribute(ctx, core.DistributionRequest{
		UserID: u.ID, Amount: core.Cents(3333), Kind: core.KindExpense,
		Date: core.NewDate(2025, 1, 10), Mode: core.ModeExplicit, TargetBucketID: id,
	}); err != nil {
		t.Fatalf("Distribute: %v", err)
	}

	bs, _ := f.ListBuckets(ctx, u.ID)
	if bs[0].Balance.Cents != -2333 {
		t.Fatalf("balance = %d, want -2333", bs[0].Balance.Cents)
	}
}

func TestFinance_RecordAndDistribute(t *testing.T) {
	ctx := context.Background()
	f, pub := newTestFinance(t)
	u := mustCreateUser(t, f, "alice")
	f.CreateBucket(ctx, u.ID, "A", "", 50, "")
	f.CreateBucket(ctx, u.ID, "B", "", 50, "")

	d, err := f.RecordAndDistribute(ctx, core.DistributionRequest{
		UserID: u.ID, Amount: core.Cents(10000), Kind: core.KindIncome,
		Date: core.NewDate(2025, 1, 10), Description: "salary", Mode: core.ModeAuto,
	})
	if err != nil {
		t.Fatalf("RecordAndDistribute: %v", err)
	}
	if d.ParentID == 0 {
		t.Fatal("parent movement not recorded")
	}
	if got := pub.events[0]; len(got) != 3 || got[0] != d.ParentID {
		t.Errorf("event ids = %v, want parent first", got)
	}

	if _, err := f.RecordMovement(ctx, u.ID, core.KindExpense, core.Cents(2500), core.NewDate(2025, 1, 11), "rent"); err != nil {
		t.Fatalf("RecordMovement: %v", err)
	}

	dash, err := f.Dashboard(ctx, u.ID)
	if err != nil {
		t.Fatalf("Dashboard: %v", err)
	}
	if dash.Totals.Income.Cents != 10000 || dash.Totals.Expense.Cents != 2500 || dash.Totals.Net.Cents != 7500 {
		t.Errorf("totals = %+v", dash.Totals)
	}
	if dash.BucketsTotal.Cents != 10000 {
		t.Errorf("buckets total = %d", dash.BucketsTotal.Cents)
	}
	if len(dash.Recent) != 4 || dash.Recent[0].Description != "rent" {
		t.Errorf("recent = %+v", dash.Recent)
	}
}

func TestFinance_RecordMovementValidation(t *testing.T) {
	ctx := context.Background()
	f, pub := newTestFinance(t)
	u := mustCreateUser(t, f, "alice")

	tests := []struct {
		name    string
		kind    core.Kind
		amount  int64
		date    core.Date
		wantErr error
	}{
		{"bad kind", "gift", 100, core.NewDate(2025, 1, 1), core.ErrInvalidKind},
		{"zero amount", core.KindIncome, 0, core.NewDate(2025, 1, 1), core.ErrInvalidAmount},
		{"no date", core.KindIncome, 100, core.Date{}, core.ErrInvalidDate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.RecordMovement(ctx, u.ID, tt.kind, core.Cents(tt.amount), tt.date, "x")
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("RecordMovement() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
	if pub.count() != 0 {
		t.Error("invalid movements must not publish")
	}
}

func TestFinance_PublishFailureIsNotFatal(t *testing.T) {
	ctx := context.Background()
	f, pub := newTestFinance(t)
	pub.err = errors.New("broker down")
	u := mustCreateUser(t, f, "alice")

	if _, err := f.RecordMovement(ctx, u.ID, core.KindIncome, core.Cents(100), core.NewDate(2025, 1, 1), "tip"); err != nil {
		t.Fatalf("RecordMovement should succeed when publishing fails: %v", err)
	}
	ms, _ := f.ListMovements(ctx, u.ID, 10)
	if len(ms) != 1 {
		t.Fatalf("movements = %d, want 1", len(ms))
	}
}

func TestFinance_Buckets(t *testing.T) {
	ctx := context.Background()
	f, _ := newTestFinance(t)
	u := mustCreateUser(t, f, "alice")

	if _, err := f.CreateBucket(ctx, u.ID, " ", "", 10, ""); !errors.Is(err, core.ErrEmptyName) {
		t.Errorf("empty name: %v", err)
	}
	if _, err := f.CreateBucket(ctx, u.ID, "Big", "", 101, ""); !errors.Is(err, core.ErrInvalidPercent) {
		t.Errorf("percent > 100: %v", err)
	}

	id, _ := f.CreateBucket(ctx, u.ID, "Savings", "", 20, "")
	f.ListBuckets(ctx, u.ID)

	if err := f.UpdateBucket(ctx, core.Bucket{ID: id, UserID: u.ID, Name: "Reserve", Percent: 30}); err != nil {
		t.Fatalf("UpdateBucket: %v", err)
	}
	bs, _ := f.ListBuckets(ctx, u.ID)
	if bs[0].Name != "Reserve" || bs[0].Percent != 30 || bs[0].Type != core.DefaultBucketType {
		t.Errorf("after update: %+v", bs[0])
	}

	if _, err := f.Distribute(ctx, core.DistributionRequest{
		UserID: u.ID, Amount: core.Cents(100), Kind: core.KindIncome,
		Date: core.NewDate(2025, 1, 1), Mode: core.ModeExplicit, TargetBucketID: id,
	}); err != nil {
		t.Fatalf("Distribute: %v", err)
	}
	if err := f.DeleteBucket(ctx, u.ID, id); err != nil {
		t.Fatalf("DeleteBucket: %v", err)
	}
	if err := f.DeleteBucket(ctx, u.ID, id); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("second delete: %v", err)
	}
	if bs, _ := f.ListBuckets(ctx, u.ID); len(bs) != 0 {
		t.Errorf("bucket still listed: %+v", bs)
	}
	ms, _ := f.ListMovements(ctx, u.ID, 0)
	if len(ms) != 1 || ms[0].BucketID != nil {
		t.Errorf("movement should survive with a cleared bucket: %+v", ms)
	}
}

func TestFinance_Giants(t *testing.T) {
	ctx := context.Background()
	f, _ := newTestFinance(t)
	u := mustCreateUser(t, f, "alice")

	id, err := f.CreateGiant(ctx, core.Giant{
		UserID: u.ID, Name: "Card", TotalToPay: core.Cents(50000), WeeklyGoal: core.Cents(7000), Priority: 2,
	})
	if err != nil {
		t.Fatalf("CreateGiant: %v", err)
	}
	if _, err := f.CreateGiant(ctx, core.Giant{UserID: u.ID, Name: "Loan", TotalToPay: core.Cents(1000)}); err != nil {
		t.Fatalf("CreateGiant: %v", err)
	}

	if _, err := f.RecordGiantPayment(ctx, core.GiantPayment{UserID: u.ID, GiantID: id, Amount: core.Cents(12000), Date: core.NewDate(2025, 1, 5)}); err != nil {
		t.Fatalf("RecordGiantPayment: %v", err)
	}

	fc, err := f.ForecastGiant(ctx, u.ID, id)
	if err != nil {
		t.Fatalf("ForecastGiant: %v", err)
	}
	if fc.Remaining.Cents != 38000 || fc.DailyRate != 10 || fc.DaysToPayoff == nil || *fc.DaysToPayoff != 38 {
		t.Errorf("forecast = %+v", fc)
	}

	progress, err := f.ListGiantProgress(ctx, u.ID)
	if err != nil || len(progress) != 2 {
		t.Fatalf("ListGiantProgress = %v, %v", progress, err)
	}
	if progress[0].Giant.ID != id || progress[0].Forecast.Paid.Cents != 12000 {
		t.Errorf("priority order or paid wrong: %+v", progress[0])
	}
	if progress[1].Forecast.DaysToPayoff != nil {
		t.Error("zero weekly goal must have no payoff horizon")
	}

	fc, err = f.RecordGiantPayment(ctx, core.GiantPayment{UserID: u.ID, GiantID: id, Amount: core.Cents(40000), Date: core.NewDate(2025, 1, 6)})
	if err != nil || !fc.IsPaidOff() {
		t.Fatalf("overpayment = %+v, %v", fc, err)
	}
	giants, _ := f.ListGiants(ctx, u.ID)
	if giants[0].Status != core.GiantPaid {
		t.Errorf("status = %s, want paid", giants[0].Status)
	}

	other := mustCreateUser(t, f, "mallory")
	if _, err := f.RecordGiantPayment(ctx, core.GiantPayment{UserID: other.ID, GiantID: id, Amount: core.Cents(1), Date: core.NewDate(2025, 1, 6)}); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("payment on foreign giant: %v", err)
	}
	if removed, err := f.DeleteGiant(ctx, other.ID, id); err != nil || removed {
		t.Errorf("foreign delete = %v, %v", removed, err)
	}
	if removed, err := f.DeleteGiant(ctx, u.ID, id); err != nil || !removed {
		t.Errorf("delete = %v, %v", removed, err)
	}
	if removed, err := f.DeleteGiant(ctx, u.ID, id); err != nil || removed {
		t.Errorf("second delete = %v, %v", removed, err)
	}
}

func TestFinance_Bills(t *testing.T) {
	ctx := context.Background()
	f, _ := newTestFinance(t)
	u := mustCreateUser(t, f, "alice")

	add := func(title string, due core.Date) int64 {
		t.Helper()
		id, err := f.CreateBill(ctx, core.Bill{UserID: u.ID, Title: title, Amount: core.Cents(1000), DueDate: due})
		if err != nil {
			t.Fatalf("CreateBill(%s): %v", title, err)
		}
		return id
	}
	later := add("insurance", core.NewDate(2025, 3, 1))
	overdue := add("water", core.NewDate(2025, 1, 10))
	add("power", core.NewDate(2025, 1, 15))
	add("phone", core.NewDate(2025, 1, 20))

	if _, err := f.CreateBill(ctx, core.Bill{UserID: u.ID, Title: "x", Amount: core.Cents(0), DueDate: core.NewDate(2025, 1, 1)}); !errors.Is(err, core.ErrInvalidAmount) {
		t.Errorf("zero amount bill: %v", err)
	}

	bills, _ := f.ListBills(ctx, u.ID)
	if len(bills) != 4 || bills[0].Title != "water" || bills[3].ID != later {
		t.Fatalf("bills not ordered by due date: %+v", bills)
	}

	upcoming, err := f.UpcomingBills(ctx, u.ID)
	if err != nil {
		t.Fatalf("UpcomingBills: %v", err)
	}
	want := []BillStatus{BillOverdue, BillDueToday, BillDueSoon}
	if len(upcoming) != len(want) {
		t.Fatalf("upcoming = %+v", upcoming)
	}
	for i, v := range upcoming {
		if v.Status != want[i] {
			t.Errorf("upcoming[%d] = %s, want %s", i, v.Status, want[i])
		}
	}

	if err := f.MarkBillPaid(ctx, u.ID, overdue, true); err != nil {
		t.Fatalf("MarkBillPaid: %v", err)
	}
	if upcoming, _ := f.UpcomingBills(ctx, u.ID); len(upcoming) != 2 {
		t.Errorf("paid bill still upcoming: %+v", upcoming)
	}
	if err := f.DeleteBill(ctx, u.ID, later); err != nil {
		t.Fatalf("DeleteBill: %v", err)
	}
	if err := f.MarkBillPaid(ctx, u.ID, later, true); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("mark deleted bill: %v", err)
	}
}

func TestFinance_Profile(t *testing.T) {
	ctx := context.Background()
	f, _ := newTestFinance(t)
	u := mustCreateUser(t, f, "alice")

	p, err := f.Profile(ctx, u.ID)
	if err != nil || !p.MonthlyIncome.IsZero() {
		t.Fatalf("Profile = %+v, %v", p, err)
	}
	if _, err := f.UpdateProfile(ctx, u.ID, core.Cents(-1), core.Cents(0)); !errors.Is(err, core.ErrNegativeValue) {
		t.Errorf("negative income: %v", err)
	}
	if _, err := f.UpdateProfile(ctx, u.ID, core.Cents(500000), core.Cents(320000)); err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	p, _ = f.Profile(ctx, u.ID)
	if p.MonthlyIncome.Cents != 500000 || p.MonthlyExpense.Cents != 320000 {
		t.Errorf("stale profile after update: %+v", p)
	}
}

func TestFinance_ConcurrentDistributions(t *testing.T) {
	ctx := context.Background()
	f, _ := newTestFinance(t)
	u := mustCreateUser(t, f, "alice")
	a, _ := f.CreateBucket(ctx, u.ID, "A", "", 50, "")
	b, _ := f.CreateBucket(ctx, u.ID, "B", "", 50, "")

	const n = 50
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.Distribute(ctx, core.DistributionRequest{
				UserID: u.ID, Amount: core.Cents(200), Kind: core.KindIncome,
				Date: core.NewDate(2025, 1, 10), Mode: core.ModeAuto,
			})
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

	bs, _ := f.ListBuckets(ctx, u.ID)
	for _, bk := range bs {
		if (bk.ID == a || bk.ID == b) && bk.Balance.Cents != n*100 {
			t.Errorf("bucket %d balance = %d, want %d", bk.ID, bk.Balance.Cents, n*100)
		}
	}
	if size := f.locks.size(); size != 0 {
		t.Errorf("user locks leaked: %d", size)
	}
}

func TestFinance_ListMovementsLimit(t *testing.T) {
	ctx := context.Background()
	f, _ := newTestFinance(t)
	u := mustCreateUser(t, f, "alice")

	for i := 1; i <= 5; i++ {
		if _, err := f.RecordMovement(ctx, u.ID, core.KindIncome, core.Cents(int64(i)), core.NewDate(2025, 1, i), "m"); err != nil {
			t.Fatalf("RecordMovement: %v", err)
		}
	}
	ms, _ := f.ListMovements(ctx, u.ID, 2)
	if len(ms) != 2 || ms[0].Amount.Cents != 5 {
		t.Fatalf("limited list = %+v", ms)
	}
	ms, _ = f.ListMovements(ctx, u.ID, -1)
	if len(ms) != 5 {
		t.Fatalf("default limit returned %d", len(ms))
	}
}
