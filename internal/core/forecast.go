package core

import "github.com/shopspring/decimal"

var daysPerWeek = decimal.NewFromInt(7)

// Forecast is the payoff projection of a giant.
type Forecast struct {
	GiantID   int64
	Paid      Money
	Remaining Money
	// DailyRate is weekly_goal / 7 in currency units, unrounded.
	DailyRate float64
	// DaysToPayoff is nil when the daily rate is zero: the horizon is
	// undefined, which is not the same as zero days.
	DaysToPayoff *float64
	// Progress is paid / total, capped at 1.
	Progress float64
}

// ForecastPayoff computes remaining, daily rate and days to payoff.
func ForecastPayoff(g Giant, paid Money) Forecast {
	remaining := g.TotalToPay.Sub(paid)
	if remaining.Cents < 0 {
		remaining = Money{}
	}

	f := Forecast{
		GiantID:   g.ID,
		Paid:      paid,
		Remaining: remaining,
	}

	daily := g.WeeklyGoal.Decimal().Div(daysPerWeek)
	f.DailyRate = daily.InexactFloat64()
	if daily.IsPositive() {
		days := remaining.Decimal().Div(daily).InexactFloat64()
		f.DaysToPayoff = &days
	}

	if g.TotalToPay.Cents > 0 {
		progress := paid.Decimal().Div(g.TotalToPay.Decimal()).InexactFloat64()
		if progress > 1 {
			progress = 1
		}
		if progress < 0 {
			progress = 0
		}
		f.Progress = progress
	}
	return f
}

// IsPaidOff reports whether nothing remains to pay.
func (f Forecast) IsPaidOff() bool {
	return f.Remaining.Cents == 0
}
