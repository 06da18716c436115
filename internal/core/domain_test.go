package core

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestDateValidate(t *testing.T) {
	cases := []struct {
		d  Date
		ok bool
	}{
		{NewDate(2025, 1, 1), true},
		{NewDate(2025, 12, 31), true},
		{Date{Time: time.Time{}}, false}, // zero time
	}
	for i, tc := range cases {
		err := tc.d.Validate()
		if tc.ok && err != nil {
			t.Fatalf("case %d expected ok, got %v", i, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestDateJSON(t *testing.T) {
	var d Date
	if err := json.Unmarshal([]byte(`"2025-02-28"`), &d); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !d.Equal(NewDate(2025, 2, 28).Time) {
		t.Fatalf("unexpected date %v", d)
	}
	out, _ := json.Marshal(d)
	if string(out) != `"2025-02-28"` {
		t.Fatalf("marshal = %s", out)
	}
	if err := json.Unmarshal([]byte(`"28/02/2025"`), &d); !errors.Is(err, ErrInvalidDate) {
		t.Fatalf("expected ErrInvalidDate, got %v", err)
	}
}

func TestMoneyValidate(t *testing.T) {
	if err := (Money{Cents: 1}).Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if err := (Money{Cents: 0}).Validate(); err == nil {
		t.Fatalf("expected error for zero")
	}
}

func TestMovementValidate(t *testing.T) {
	good := Movement{
		Kind:        KindExpense,
		Amount:      Cents(100),
		Date:        NewDate(2025, 1, 1),
		Description: "groceries",
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	bads := []Movement{
		{Kind: "other", Amount: Cents(1), Date: NewDate(2025, 1, 1)},
		{Kind: KindIncome, Amount: Cents(0), Date: NewDate(2025, 1, 1)},
		{Kind: KindIncome, Amount: Cents(1)},
		{Kind: KindIncome, Amount: Cents(1), Date: NewDate(2025, 1, 1), Description: strings.Repeat("x", 201)},
	}
	for i, m := range bads {
		if err := m.Validate(); !errors.Is(err, ErrValidation) {
			t.Fatalf("case %d expected validation error, got %v", i, err)
		}
	}
}

func TestValidateDescriptionCountsCharacters(t *testing.T) {
	accented := strings.Repeat("é", MaxDescriptionLen)
	if _, err := ValidateDescription(accented); err != nil {
		t.Fatalf("%d accented characters rejected: %v", MaxDescriptionLen, err)
	}
	if _, err := ValidateDescription(accented + "é"); !errors.Is(err, ErrDescriptionTooLong) {
		t.Fatalf("expected ErrDescriptionTooLong, got %v", err)
	}
}

func TestBucketValidateAndNormalize(t *testing.T) {
	b := Bucket{Name: "  Emergency ", Type: " SAVINGS", Percent: 20}.Normalize()
	if b.Name != "Emergency" || b.Type != "savings" {
		t.Fatalf("unexpected normalization %+v", b)
	}
	if err := b.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if got := (Bucket{Name: "x"}).Normalize().Type; got != DefaultBucketType {
		t.Fatalf("default type = %q", got)
	}

	cases := []struct {
		b    Bucket
		want error
	}{
		{Bucket{Name: " ", Percent: 10}, ErrEmptyName},
		{Bucket{Name: "a", Percent: -1}, ErrInvalidPercent},
		{Bucket{Name: "a", Percent: 100.5}, ErrInvalidPercent},
	}
	for _, tc := range cases {
		if err := tc.b.Validate(); !errors.Is(err, tc.want) {
			t.Fatalf("%+v: got %v, want %v", tc.b, err, tc.want)
		}
	}
}

func TestGiantValidate(t *testing.T) {
	good := Giant{Name: "Card", TotalToPay: Cents(50000), WeeklyGoal: Cents(7000)}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	cases := []Giant{
		{Name: "", TotalToPay: Cents(1)},
		{Name: "a", TotalToPay: Cents(0)},
		{Name: "a", TotalToPay: Cents(1), WeeklyGoal: Cents(-1)},
		{Name: "a", TotalToPay: Cents(1), InterestRate: -0.5},
		{Name: "a", TotalToPay: Cents(1), Status: "gone"},
	}
	for i, g := range cases {
		if err := g.Validate(); !errors.Is(err, ErrValidation) {
			t.Fatalf("case %d expected validation error, got %v", i, err)
		}
	}
}

func TestBillValidate(t *testing.T) {
	good := Bill{Title: "Rent", Amount: Cents(120000), DueDate: NewDate(2025, 5, 5)}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if err := (Bill{Title: "Rent", Amount: Cents(1)}).Validate(); !errors.Is(err, ErrInvalidDate) {
		t.Fatalf("expected ErrInvalidDate, got %v", err)
	}
}

func TestValidateCredentials(t *testing.T) {
	name, err := ValidateCredentials("  ana  ", "1234")
	if err != nil || name != "ana" {
		t.Fatalf("got %q, %v", name, err)
	}
	for _, c := range [][2]string{{"ab", "1234"}, {"  ab ", "1234"}, {"anna", "123"}} {
		if _, err := ValidateCredentials(c[0], c[1]); !errors.Is(err, ErrTooShort) {
			t.Fatalf("%v: expected ErrTooShort, got %v", c, err)
		}
	}
}

func TestSumMovementsSkipsSplitEntries(t *testing.T) {
	parent := int64(10)
	ms := []Movement{
		{ID: 10, Kind: KindIncome, Amount: Cents(10000)},
		{ID: 11, Kind: KindIncome, Amount: Cents(6000), ParentID: &parent},
		{ID: 12, Kind: KindIncome, Amount: Cents(4000), ParentID: &parent},
		{ID: 13, Kind: KindExpense, Amount: Cents(2500)},
	}
	got := SumMovements(ms)
	if got.Income.Cents != 10000 || got.Expense.Cents != 2500 || got.Net.Cents != 7500 || got.Count != 2 {
		t.Fatalf("unexpected totals %+v", got)
	}
}

func TestClampLimit(t *testing.T) {
	cases := []struct{ limit, def, want int }{
		{0, 300, 300},
		{-5, 50, 50},
		{25, 300, 25},
		{900, 300, 500},
		{0, 0, DefaultMovementsLimit},
	}
	for _, tc := range cases {
		if got := ClampLimit(tc.limit, tc.def); got != tc.want {
			t.Fatalf("ClampLimit(%d, %d) = %d, want %d", tc.limit, tc.def, got, tc.want)
		}
	}
}
