package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"davi/internal/auth"
	"davi/internal/core"
)

// CreateUser registers a new account. The name is trimmed; core.ErrTooShort
// and core.ErrUsernameTaken are returned unwrapped for the caller to match.
func (f *Finance) CreateUser(ctx context.Context, name, password string) (core.User, error) {
	name, err := core.ValidateCredentials(name, password)
	if err != nil {
		return core.User{}, err
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return core.User{}, fmt.Errorf("hash password: %w", err)
	}

	u, err := f.repo.CreateUser(ctx, name, hash)
	if err != nil {
		return core.User{}, err
	}
	slog.InfoContext(ctx, "User created", "user_id", u.ID, "name", u.Name)
	return u, nil
}

// Authenticate returns the user when name and password match and nil
// otherwise. Only storage failures produce an error.
func (f *Finance) Authenticate(ctx context.Context, name, password string) (*core.User, error) {
	u, err := f.repo.UserByName(ctx, name)
	if errors.Is(err, core.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	ok, err := auth.ComparePassword(u.PasswordHash, password)
	if err != nil {
		slog.WarnContext(ctx, "Stored password hash is unusable", "user_id", u.ID, "error", err)
		return nil, nil
	}
	if !ok {
		return nil, nil
	}
	return &u, nil
}

// EnsureDefaultUser seeds the demo account when seeding is enabled and no
// user exists yet. It reports whether a user was created.
func (f *Finance) EnsureDefaultUser(ctx context.Context) (bool, error) {
	if !f.opts.SeedDemoUser {
		return false, nil
	}

	n, err := f.repo.CountUsers(ctx)
	if err != nil {
		return false, err
	}
	if n > 0 {
		return false, nil
	}

	_, err = f.CreateUser(ctx, DemoUserName, DemoUserPassword)
	if errors.Is(err, core.ErrUsernameTaken) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("seed default user: %w", err)
	}
	slog.WarnContext(ctx, "Seeded default user, change its password", "name", DemoUserName)
	return true, nil
}

func (f *Finance) Profile(ctx context.Context, userID int64) (core.Profile, error) {
	return f.profiles.Get(ctx, userKey(userID), func(ctx context.Context) (core.Profile, error) {
		return f.repo.Profile(ctx, userID)
	})
}

// UpdateProfile replaces the monthly figures. LastAllocation is kept as
// stored; it only moves when a distribution commits.
func (f *Finance) UpdateProfile(ctx context.Context, userID int64, monthlyIncome, monthlyExpense core.Money) (core.Profile, error) {
	if monthlyIncome.Cents < 0 || monthlyExpense.Cents < 0 {
		return core.Profile{}, core.ErrNegativeValue
	}

	unlock := f.locks.lock(userID)
	defer unlock()

	p, err := f.repo.Profile(ctx, userID)
	if err != nil {
		return core.Profile{}, err
	}
	p.MonthlyIncome = monthlyIncome
	p.MonthlyExpense = monthlyExpense

	if err := f.repo.SaveProfile(ctx, p); err != nil {
		return core.Profile{}, err
	}
	f.invalidateProfile(userID)
	return p, nil
}

// touchLastAllocation moves the profile's last allocation date forward.
// Callers hold the user's lock. Failures are logged only: the distribution
// it follows has already committed.
func (f *Finance) touchLastAllocation(ctx context.Context, userID int64, date core.Date) {
	p, err := f.repo.Profile(ctx, userID)
	if err != nil {
		slog.WarnContext(ctx, "Failed to load profile for last allocation", "user_id", userID, "error", err)
		return
	}
	if !p.LastAllocation.IsZero() && !date.After(p.LastAllocation.Time) {
		return
	}
	p.LastAllocation = date
	if err := f.repo.SaveProfile(ctx, p); err != nil {
		slog.WarnContext(ctx, "Failed to update last allocation", "user_id", userID, "error", err)
		return
	}
	f.invalidateProfile(userID)
}
