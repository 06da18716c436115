package google

import (
	"context"
	"strings"
	"testing"

	"davi/internal/core"
	ports "davi/internal/sheets"
)

func TestNew_MissingSpreadsheetID(t *testing.T) {
	_, err := New(context.Background(), "  ", "Ledger")
	if err == nil {
		t.Fatal("expected error for missing spreadsheet id")
	}
	if err.Error() != "missing GOOGLE_SPREADSHEET_ID" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestNew_MissingCredentials(t *testing.T) {
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_JSON", "")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_FILE", "")
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")

	_, err := New(context.Background(), "sheet-id", "Ledger")
	if err == nil || !strings.Contains(err.Error(), "missing service account credentials") {
		t.Fatalf("expected credentials error, got: %v", err)
	}
}

func TestNew_UnreadableCredentialsFile(t *testing.T) {
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_JSON", "")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_FILE", t.TempDir()+"/missing.json")

	_, err := New(context.Background(), "sheet-id", "Ledger")
	if err == nil || !strings.Contains(err.Error(), "read service account file") {
		t.Fatalf("expected file error, got: %v", err)
	}
}

func TestClient_UninitializedService(t *testing.T) {
	c := &Client{spreadsheetID: "test", sheetBase: "Ledger"}
	ctx := context.Background()

	if ref, err := c.AppendMovements(ctx, nil); err != nil || ref != "" {
		t.Errorf("empty append = %q, %v", ref, err)
	}
	ms := []core.Movement{{ID: 1, Kind: core.KindIncome, Amount: core.Cents(100), Date: core.NewDate(2025, 1, 1)}}
	if _, err := c.AppendMovements(ctx, ms); err == nil {
		t.Error("append without service should fail")
	}
	if _, err := c.ListRows(ctx, 2025); err == nil {
		t.Error("list without service should fail")
	}
}

func TestRowRoundTrip(t *testing.T) {
	bucket, parent := int64(4), int64(9)
	tests := []struct {
		name string
		m    core.Movement
	}{
		{
			name: "split expense entry",
			m: core.Movement{
				ID: 10, UserID: 2, BucketID: &bucket, ParentID: &parent,
				Kind: core.KindExpense, Amount: core.Cents(3333),
				Description: "rent (auto 60.0%)", Date: core.NewDate(2025, 3, 1),
			},
		},
		{
			name: "top-level income",
			m: core.Movement{
				ID: 11, UserID: 2, Kind: core.KindIncome, Amount: core.Cents(100000),
				Description: "salary", Date: core.NewDate(2025, 3, 2),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			want := ports.RowOf(tt.m)
			got, ok := parseRow(toStrings(rowValues(want)))
			if !ok {
				t.Fatal("row did not parse back")
			}
			if !got.Date.Equal(want.Date.Time) {
				t.Errorf("date = %s, want %s", got.Date, want.Date)
			}
			got.Date, want.Date = core.Date{}, core.Date{}
			if got != want {
				t.Errorf("round trip = %+v, want %+v", got, want)
			}
		})
	}
}

func TestParseRowSkipsHeaderAndShortRows(t *testing.T) {
	tests := [][]string{
		{"Date", "Movement", "User", "Kind", "Bucket", "Parent", "Description", "Amount"},
		{"2025-01-01", "1"},
		{"2025-01-01", "x", "1", "income", "", "", "d", "1.00"},
		{"2025-01-01", "1", "1", "income", "", "", "d", "abc"},
	}
	for _, cells := range tests {
		if _, ok := parseRow(cells); ok {
			t.Errorf("parseRow(%v) should fail", cells)
		}
	}
}

func TestYearsOf(t *testing.T) {
	ms := []core.Movement{
		{Date: core.NewDate(2025, 1, 1)},
		{Date: core.NewDate(2024, 12, 31)},
		{Date: core.NewDate(2025, 6, 1)},
	}
	got := yearsOf(ms)
	if len(got) != 2 || got[0] != 2024 || got[1] != 2025 {
		t.Errorf("yearsOf() = %v, want [2024 2025]", got)
	}
}

func TestYearPrefixedName(t *testing.T) {
	tests := []struct {
		baseName string
		year     int
		expected string
	}{
		{"Ledger", 2025, "2025 Ledger"},
		{"", 2023, ""},
		{"Family Ledger", 2022, "2022 Family Ledger"},
		{"2025 Already Prefixed", 2024, "2025 Already Prefixed"},
	}

	for _, tt := range tests {
		got := yearPrefixedName(tt.baseName, tt.year)
		if got != tt.expected {
			t.Errorf("yearPrefixedName(%q, %d) = %q, want %q",
				tt.baseName, tt.year, got, tt.expected)
		}
	}
}
