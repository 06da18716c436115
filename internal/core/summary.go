package core

const (
	DefaultMovementsLimit = 300
	MaxMovementsLimit     = 500
)

// ClampLimit applies def when limit is not positive and caps the result
// at MaxMovementsLimit.
func ClampLimit(limit, def int) int {
	if limit <= 0 {
		limit = def
	}
	if limit <= 0 {
		limit = DefaultMovementsLimit
	}
	return min(limit, MaxMovementsLimit)
}

// Totals aggregates a window of movements for the dashboard.
type Totals struct {
	Income  Money
	Expense Money
	Net     Money
	Count   int
}

// SumMovements totals income and expense over ms. Split entries whose
// parent is recorded are skipped so the same money is not counted twice.
func SumMovements(ms []Movement) Totals {
	var t Totals
	for _, m := range ms {
		if m.ParentID != nil {
			continue
		}
		t.Count++
		switch m.Kind {
		case KindIncome:
			t.Income = t.Income.Add(m.Amount)
		case KindExpense:
			t.Expense = t.Expense.Add(m.Amount)
		}
	}
	t.Net = t.Income.Sub(t.Expense)
	return t
}

// BucketsTotal sums the balances of bs.
func BucketsTotal(bs []Bucket) Money {
	var total Money
	for _, b := range bs {
		total = total.Add(b.Balance)
	}
	return total
}
