package core

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParseMoney(t *testing.T) {
	cases := []struct {
		in  string
		out int64
		ok  bool
	}{
		{"1", 100, true},
		{"1.0", 100, true},
		{"1.23", 123, true},
		{"1,23", 123, true},
		{"0.01", 1, true},
		{"1.005", 101, true}, // half-up rounding
		{"1.004", 100, true},
		{" 2.50 ", 250, true},
		{"-1", -100, true},
		{"-23.33", -2333, true},
		{"0", 0, true},
		{"abc", 0, false},
		{"1.2.3", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseMoney(tc.in)
		if tc.ok {
			if err != nil || got.Cents != tc.out {
				t.Fatalf("%q expected %d, got %d (err=%v)", tc.in, tc.out, got.Cents, err)
			}
		} else if err == nil {
			t.Fatalf("%q expected error", tc.in)
		}
	}
}

func TestParseAmountRejectsNonPositive(t *testing.T) {
	for _, in := range []string{"0", "-5", "0.001"} {
		if _, err := ParseAmount(in); !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("%q expected ErrInvalidAmount, got %v", in, err)
		}
	}
	m, err := ParseAmount("33.33")
	if err != nil || m.Cents != 3333 {
		t.Fatalf("expected 3333, got %d (err=%v)", m.Cents, err)
	}
}

func TestMoneyString(t *testing.T) {
	cases := map[int64]string{
		0:     "0.00",
		1:     "0.01",
		6000:  "60.00",
		-2333: "-23.33",
	}
	for cents, want := range cases {
		if got := Cents(cents).String(); got != want {
			t.Fatalf("Cents(%d).String() = %q, want %q", cents, got, want)
		}
	}
}

func TestMoneyJSON(t *testing.T) {
	var payload struct {
		A Money `json:"a"`
		B Money `json:"b"`
	}
	if err := json.Unmarshal([]byte(`{"a": 12.5, "b": "7,25"}`), &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if payload.A.Cents != 1250 || payload.B.Cents != 725 {
		t.Fatalf("unexpected cents: %d %d", payload.A.Cents, payload.B.Cents)
	}
	out, err := json.Marshal(payload.A)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != "12.50" {
		t.Fatalf("marshal = %s, want 12.50", out)
	}
}

func TestMoneyFromFloat(t *testing.T) {
	if got := MoneyFromFloat(33.33).Cents; got != 3333 {
		t.Fatalf("MoneyFromFloat(33.33) = %d", got)
	}
	if got := MoneyFromFloat(0.125).Cents; got != 13 {
		t.Fatalf("MoneyFromFloat(0.125) = %d", got)
	}
}
