package app

import (
	"errors"
	"fmt"

	"github.com/hylla/trisync/internal/domain"
)

// ErrValidation and related errors classify every failure the service surfaces.
var (
	ErrValidation     = errors.New("validation failed")
	ErrNotFound       = errors.New("not found")
	ErrConflict       = errors.New("conflict")
	ErrPrimaryWrite   = errors.New("primary store write failed")
	ErrSecondaryWrite = errors.New("secondary store write failed")
	ErrUnknownStore   = errors.New("store not configured")
)

// invalidf builds one validation error.
func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// requireID normalizes one id taken from caller input.
func requireID(label, raw string) (string, error) {
	id, err := domain.NormalizeID(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrValidation, label, err)
	}
	return id, nil
}

// invalid wraps a domain validation error so it matches ErrValidation.
func invalid(err error) error {
	return fmt.Errorf("%w: %w", ErrValidation, err)
}
