package services

import (
	"context"
	"fmt"
	"strings"

	"davi/internal/core"
)

// BillView is a bill with its dueness relative to today.
type BillView struct {
	Bill     core.Bill
	Status   BillStatus
	DaysLeft int
}

func (f *Finance) CreateBill(ctx context.Context, b core.Bill) (int64, error) {
	b.Title = strings.TrimSpace(b.Title)
	if err := b.Validate(); err != nil {
		return 0, err
	}
	if core.DescriptionTooLong(b.Title) {
		return 0, core.ErrDescriptionTooLong
	}

	unlock := f.locks.lock(b.UserID)
	defer unlock()

	id, err := f.repo.CreateBill(ctx, b)
	if err != nil {
		return 0, fmt.Errorf("create bill: %w", err)
	}
	f.invalidateBills(b.UserID)
	return id, nil
}

// ListBills returns the user's bills by due date, earliest first.
func (f *Finance) ListBills(ctx context.Context, userID int64) ([]core.Bill, error) {
	return f.bills.Get(ctx, userKey(userID), func(ctx context.Context) ([]core.Bill, error) {
		return f.repo.ListBills(ctx, userID)
	})
}

// BillCalendar classifies every bill of the user.
func (f *Finance) BillCalendar(ctx context.Context, userID int64) ([]BillView, error) {
	bills, err := f.ListBills(ctx, userID)
	if err != nil {
		return nil, err
	}
	today := f.Today()
	out := make([]BillView, 0, len(bills))
	for _, b := range bills {
		out = append(out, BillView{
			Bill:     b,
			Status:   ClassifyBill(b, today, f.opts.DueSoonDays),
			DaysLeft: DaysUntil(today, b.DueDate),
		})
	}
	return out, nil
}

// UpcomingBills returns the unpaid bills that are overdue, due today or
// due soon.
func (f *Finance) UpcomingBills(ctx context.Context, userID int64) ([]BillView, error) {
	all, err := f.BillCalendar(ctx, userID)
	if err != nil {
		return nil, err
	}
	var out []BillView
	for _, v := range all {
		switch v.Status {
		case BillOverdue, BillDueToday, BillDueSoon:
			out = append(out, v)
		}
	}
	return out, nil
}

func (f *Finance) MarkBillPaid(ctx context.Context, userID, billID int64, paid bool) error {
	unlock := f.locks.lock(userID)
	defer unlock()

	if err := f.repo.SetBillPaid(ctx, userID, billID, paid); err != nil {
		return fmt.Errorf("mark bill paid: %w", err)
	}
	f.invalidateBills(userID)
	return nil
}

func (f *Finance) DeleteBill(ctx context.Context, userID, billID int64) error {
	unlock := f.locks.lock(userID)
	defer unlock()

	if err := f.repo.DeleteBill(ctx, userID, billID); err != nil {
		return fmt.Errorf("delete bill: %w", err)
	}
	f.invalidateBills(userID)
	return nil
}
