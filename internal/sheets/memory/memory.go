// Package memory is an in-process ledger mirror used when no spreadsheet is
// configured and in tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"davi/internal/core"
	ports "davi/internal/sheets"
)

type Store struct {
	mu   sync.Mutex
	rows []ports.Row
	// failNext makes the next append fail, for exercising retries.
	failNext error
}

var (
	_ ports.LedgerWriter = (*Store)(nil)
	_ ports.LedgerReader = (*Store)(nil)
)

func New() *Store {
	return &Store{}
}

// AppendMovements stores the rows and returns a synthetic row reference.
func (s *Store) AppendMovements(_ context.Context, ms []core.Movement) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.failNext; err != nil {
		s.failNext = nil
		return "", err
	}
	if len(ms) == 0 {
		return "", nil
	}
	first := len(s.rows) + 1
	for _, m := range ms {
		s.rows = append(s.rows, ports.RowOf(m))
	}
	return fmt.Sprintf("mem:%d-%d", first, len(s.rows)), nil
}

func (s *Store) ListRows(_ context.Context, year int) ([]ports.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []ports.Row
	for _, r := range s.rows {
		if r.Date.Year() == year {
			out = append(out, r)
		}
	}
	return out, nil
}

// FailNext makes the next AppendMovements return err.
func (s *Store) FailNext(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = err
}

// Len returns the number of mirrored rows.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}
