// Package worker copies committed ledger movements to the spreadsheet
// mirror, driven by AMQP events with a periodic catch-up pass.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"davi/internal/amqp"
	"davi/internal/core"
	"davi/internal/sheets"
	"davi/internal/storage"
)

// MirrorWorker appends movements to the mirror and marks them mirrored.
// Event handling and the catch-up pass share one lock so a movement is
// never appended twice by the same process.
type MirrorWorker struct {
	store     storage.MirrorStore
	sheets    sheets.LedgerWriter
	batchSize int
	interval  time.Duration

	mirrorMu sync.Mutex

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewMirrorWorker(store storage.MirrorStore, writer sheets.LedgerWriter, batchSize int, interval time.Duration) *MirrorWorker {
	if batchSize <= 0 {
		batchSize = 100
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &MirrorWorker{
		store:     store,
		sheets:    writer,
		batchSize: batchSize,
		interval:  interval,
	}
}

// HandleMovementsRecorded mirrors the movements named by one ledger event.
// Movements already mirrored are skipped, so redelivery is harmless.
func (w *MirrorWorker) HandleMovementsRecorded(ctx context.Context, msg *amqp.MovementsRecordedMessage) error {
	if len(msg.MovementIDs) == 0 {
		return nil
	}

	w.mirrorMu.Lock()
	defer w.mirrorMu.Unlock()

	pending, err := w.store.PendingMirror(ctx, msg.MovementIDs, len(msg.MovementIDs))
	if err != nil {
		return fmt.Errorf("load pending movements: %w", err)
	}

	// Events carry the owner; ids of another user are ignored.
	owned := pending[:0]
	for _, m := range pending {
		if m.UserID == msg.UserID {
			owned = append(owned, m)
		}
	}
	if len(owned) == 0 {
		slog.DebugContext(ctx, "Ledger event already mirrored", "event_id", msg.EventID)
		return nil
	}

	if err := w.mirror(ctx, owned); err != nil {
		return fmt.Errorf("mirror event %s: %w", msg.EventID, err)
	}
	return nil
}

// ProcessPending mirrors every movement not yet mirrored, in batches. It is
// the backup path for lost events and for deployments without AMQP.
func (w *MirrorWorker) ProcessPending(ctx context.Context) (int, error) {
	w.mirrorMu.Lock()
	defer w.mirrorMu.Unlock()

	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		pending, err := w.store.PendingMirror(ctx, nil, w.batchSize)
		if err != nil {
			return total, fmt.Errorf("load pending movements: %w", err)
		}
		if len(pending) == 0 {
			return total, nil
		}

		if err := w.mirror(ctx, pending); err != nil {
			return total, err
		}
		total += len(pending)

		if len(pending) < w.batchSize {
			return total, nil
		}
	}
}

func (w *MirrorWorker) mirror(ctx context.Context, ms []core.Movement) error {
	ref, err := w.sheets.AppendMovements(ctx, ms)
	if err != nil {
		return fmt.Errorf("append to mirror: %w", err)
	}

	ids := make([]int64, len(ms))
	for i, m := range ms {
		ids[i] = m.ID
	}
	if err := w.store.MarkMirrored(ctx, ids); err != nil {
		// The rows are in the sheet; a retry would duplicate them, so this
		// is reported but not returned.
		slog.ErrorContext(ctx, "Failed to mark movements mirrored",
			"movements", len(ids), "sheets_ref", ref, "error", err)
		return nil
	}

	slog.InfoContext(ctx, "Mirrored movements",
		"movements", len(ids),
		"sheets_ref", ref)
	return nil
}

// Start runs ProcessPending immediately and then every interval until Stop
// or ctx is done.
func (w *MirrorWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return errors.New("mirror worker is already running")
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	stopCh, doneCh := w.stopCh, w.doneCh
	w.mu.Unlock()

	go w.runLoop(ctx, stopCh, doneCh)

	slog.InfoContext(ctx, "Mirror worker started",
		"interval", w.interval,
		"batch_size", w.batchSize)
	return nil
}

// Stop signals the loop and waits for it to finish or for ctx to expire.
func (w *MirrorWorker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	stopCh, doneCh := w.stopCh, w.doneCh
	w.running = false
	w.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		slog.InfoContext(ctx, "Mirror worker stopped gracefully")
		return nil
	case <-ctx.Done():
		slog.WarnContext(ctx, "Mirror worker stop timed out")
		return ctx.Err()
	}
}

func (w *MirrorWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *MirrorWorker) runLoop(ctx context.Context, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.catchUp(ctx)
	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.catchUp(ctx)
		}
	}
}

func (w *MirrorWorker) catchUp(ctx context.Context) {
	n, err := w.ProcessPending(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		slog.ErrorContext(ctx, "Mirror catch-up failed", "mirrored", n, "error", err)
		return
	}
	if n > 0 {
		slog.InfoContext(ctx, "Mirror catch-up completed", "mirrored", n)
	}
}
