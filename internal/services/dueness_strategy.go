// This file classifies bills by dueness. Each status has its own rule and
// rules are evaluated in a fixed order; the first match wins.

package services

import (
	"fmt"
	"time"

	"davi/internal/core"
)

type BillStatus string

const (
	BillPaid     BillStatus = "paid"
	BillOverdue  BillStatus = "overdue"
	BillDueToday BillStatus = "due_today"
	BillDueSoon  BillStatus = "due_soon"
	BillUpcoming BillStatus = "upcoming"
)

// DuenessRule reports whether a bill falls in one status. daysLeft is the
// number of calendar days from today to the due date, negative when late.
type DuenessRule interface {
	Matches(b core.Bill, daysLeft, soonDays int) bool
}

// PaidRule matches settled bills regardless of their due date.
type PaidRule struct{}

func (PaidRule) Matches(b core.Bill, _, _ int) bool {
	return b.Paid
}

// OverdueRule matches unpaid bills past their due date.
type OverdueRule struct{}

func (OverdueRule) Matches(_ core.Bill, daysLeft, _ int) bool {
	return daysLeft < 0
}

// DueTodayRule matches bills due today.
type DueTodayRule struct{}

func (DueTodayRule) Matches(_ core.Bill, daysLeft, _ int) bool {
	return daysLeft == 0
}

// DueSoonRule matches bills due within soonDays.
type DueSoonRule struct{}

func (DueSoonRule) Matches(_ core.Bill, daysLeft, soonDays int) bool {
	return daysLeft > 0 && daysLeft <= soonDays
}

// UpcomingRule matches everything else.
type UpcomingRule struct{}

func (UpcomingRule) Matches(core.Bill, int, int) bool {
	return true
}

var duenessRules = []struct {
	status BillStatus
	rule   DuenessRule
}{
	{BillPaid, PaidRule{}},
	{BillOverdue, OverdueRule{}},
	{BillDueToday, DueTodayRule{}},
	{BillDueSoon, DueSoonRule{}},
	{BillUpcoming, UpcomingRule{}},
}

// GetDuenessRule returns the rule deciding status.
func GetDuenessRule(status BillStatus) (DuenessRule, error) {
	for _, r := range duenessRules {
		if r.status == status {
			return r.rule, nil
		}
	}
	return nil, fmt.Errorf("unknown bill status: %s", status)
}

// DaysUntil counts calendar days from today to due.
func DaysUntil(today, due core.Date) int {
	return int(due.Sub(today.Time).Round(time.Hour).Hours() / 24)
}

// ClassifyBill returns the first status whose rule matches b.
func ClassifyBill(b core.Bill, today core.Date, soonDays int) BillStatus {
	daysLeft := DaysUntil(today, b.DueDate)
	for _, r := range duenessRules {
		if r.rule.Matches(b, daysLeft, soonDays) {
			return r.status
		}
	}
	return BillUpcoming
}
