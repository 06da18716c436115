package services

import (
	"context"
	"fmt"
	"log/slog"

	"davi/internal/core"
)

// GiantProgress is a giant together with its payoff projection.
type GiantProgress struct {
	Giant    core.Giant
	Forecast core.Forecast
}

// CreateGiant stores a new debt. An empty status means active.
func (f *Finance) CreateGiant(ctx context.Context, g core.Giant) (int64, error) {
	if g.Status == "" {
		g.Status = core.GiantActive
	}
	if err := g.Validate(); err != nil {
		return 0, err
	}

	unlock := f.locks.lock(g.UserID)
	defer unlock()

	id, err := f.repo.CreateGiant(ctx, g)
	if err != nil {
		return 0, fmt.Errorf("create giant: %w", err)
	}
	f.invalidateGiants(g.UserID)
	return id, nil
}

// ListGiants returns the user's giants, highest priority first.
func (f *Finance) ListGiants(ctx context.Context, userID int64) ([]core.Giant, error) {
	progress, err := f.ListGiantProgress(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]core.Giant, len(progress))
	for i, p := range progress {
		out[i] = p.Giant
	}
	return out, nil
}

// ListGiantProgress returns the user's giants by priority with their
// paid amount, remaining amount and progress.
func (f *Finance) ListGiantProgress(ctx context.Context, userID int64) ([]GiantProgress, error) {
	return f.giants.Get(ctx, userKey(userID), func(ctx context.Context) ([]GiantProgress, error) {
		giants, err := f.repo.ListGiants(ctx, userID)
		if err != nil {
			return nil, err
		}
		paid, err := f.repo.PaidByGiant(ctx, userID)
		if err != nil {
			return nil, err
		}

		out := make([]GiantProgress, 0, len(giants))
		for _, g := range giants {
			out = append(out, GiantProgress{Giant: g, Forecast: core.ForecastPayoff(g, paid[g.ID])})
		}
		return out, nil
	})
}

// RecordGiantPayment stores a payment against one of the user's giants and
// returns the updated projection.
func (f *Finance) RecordGiantPayment(ctx context.Context, p core.GiantPayment) (core.Forecast, error) {
	if err := p.Validate(); err != nil {
		return core.Forecast{}, err
	}
	note, err := core.ValidateDescription(p.Note)
	if err != nil {
		return core.Forecast{}, err
	}
	p.Note = note

	unlock := f.locks.lock(p.UserID)
	defer unlock()

	g, _, err := f.repo.GiantWithPaid(ctx, p.UserID, p.GiantID)
	if err != nil {
		return core.Forecast{}, fmt.Errorf("record giant payment: %w", err)
	}

	_, paid, err := f.repo.RecordGiantPayment(ctx, p)
	if err != nil {
		return core.Forecast{}, fmt.Errorf("record giant payment: %w", err)
	}
	f.invalidateGiants(p.UserID)

	fc := core.ForecastPayoff(g, paid)
	if fc.IsPaidOff() && g.Status == core.GiantActive {
		slog.InfoContext(ctx, "Giant paid off", "user_id", p.UserID, "giant_id", g.ID, "name", g.Name)
	}
	return fc, nil
}

// ForecastGiant projects the payoff from the payments recorded so far.
func (f *Finance) ForecastGiant(ctx context.Context, userID, giantID int64) (core.Forecast, error) {
	g, paid, err := f.repo.GiantWithPaid(ctx, userID, giantID)
	if err != nil {
		return core.Forecast{}, fmt.Errorf("forecast giant: %w", err)
	}
	return core.ForecastPayoff(g, paid), nil
}

// DeleteGiant removes the giant and its payments atomically. It reports
// false without error when the user has no such giant.
func (f *Finance) DeleteGiant(ctx context.Context, userID, giantID int64) (bool, error) {
	unlock := f.locks.lock(userID)
	defer unlock()

	removed, err := f.repo.DeleteGiant(ctx, userID, giantID)
	if err != nil {
		return false, fmt.Errorf("delete giant: %w", err)
	}
	if removed {
		f.invalidateGiants(userID)
	}
	return removed, nil
}
