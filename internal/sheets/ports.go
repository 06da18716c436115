// Package sheets defines the ledger mirror ports. The google package writes
// to a real spreadsheet; the memory package keeps rows in process.
package sheets

import (
	"context"

	"davi/internal/core"
)

// Ports for outbound adapters.
type (
	// LedgerWriter appends movements to the mirror, one row per movement,
	// and returns a reference to the written range.
	LedgerWriter interface {
		AppendMovements(ctx context.Context, ms []core.Movement) (rowRef string, err error)
	}

	// LedgerReader lists the mirrored rows of one year.
	LedgerReader interface {
		ListRows(ctx context.Context, year int) ([]Row, error)
	}
)

// Row is one mirrored movement as laid out in the sheet.
type Row struct {
	Date        core.Date
	MovementID  int64
	UserID      int64
	Kind        core.Kind
	BucketID    int64 // 0 when the movement has no bucket
	ParentID    int64 // 0 for top-level movements
	Description string
	// Amount is signed: expenses are negative.
	Amount core.Money
}

// RowOf converts a movement to its mirrored form.
func RowOf(m core.Movement) Row {
	r := Row{
		Date:        m.Date,
		MovementID:  m.ID,
		UserID:      m.UserID,
		Kind:        m.Kind,
		Description: m.Description,
		Amount:      core.Cents(m.Amount.Cents * m.Kind.Sign()),
	}
	if m.BucketID != nil {
		r.BucketID = *m.BucketID
	}
	if m.ParentID != nil {
		r.ParentID = *m.ParentID
	}
	return r
}
