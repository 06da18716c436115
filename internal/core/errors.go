package core

import (
	"errors"
	"fmt"
)

// Error taxonomy. Validation failures all wrap ErrValidation so transports
// can map them with a single errors.Is check.
var (
	ErrValidation          = errors.New("validation error")
	ErrNoDistributionBasis = errors.New("no distribution basis: all bucket percents are zero or negative")
	ErrNotFound            = errors.New("not found")
	ErrPersistence         = errors.New("persistence error")
	ErrUsernameTaken       = errors.New("username already taken")

	ErrInvalidAmount      = fmt.Errorf("%w: amount must be greater than zero", ErrValidation)
	ErrInvalidDate        = fmt.Errorf("%w: invalid date", ErrValidation)
	ErrInvalidKind        = fmt.Errorf("%w: kind must be income or expense", ErrValidation)
	ErrInvalidMode        = fmt.Errorf("%w: mode must be auto or explicit", ErrValidation)
	ErrInvalidStatus      = fmt.Errorf("%w: unknown giant status", ErrValidation)
	ErrInvalidPercent     = fmt.Errorf("%w: percent must be between 0 and 100", ErrValidation)
	ErrInvalidBucket      = fmt.Errorf("%w: invalid bucket", ErrValidation)
	ErrEmptyName          = fmt.Errorf("%w: name is required", ErrValidation)
	ErrNegativeValue      = fmt.Errorf("%w: value cannot be negative", ErrValidation)
	ErrDescriptionTooLong = fmt.Errorf("%w: description too long (max %d characters)", ErrValidation, MaxDescriptionLen)
	ErrTooShort           = fmt.Errorf("%w: username needs at least %d characters and password at least %d", ErrValidation, MinUsernameLen, MinPasswordLen)
)

// Persistence wraps a store failure so it matches ErrPersistence while
// keeping the driver error in the chain.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrPersistence, err)
}
