package service

import (
	"errors"
	"fmt"

	"task-tracker/internal/auth"
)

var (
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")

	ErrUsernameTaken      = fmt.Errorf("%w: username already exists", ErrConflict)
	ErrEmailTaken         = fmt.Errorf("%w: email already exists", ErrConflict)
	ErrInvalidCredentials = fmt.Errorf("%w: invalid username or password", ErrUnauthorized)
)

func invalidInput(reason string) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, reason)
}

// policyError maps an authorization decision to the service taxonomy.
func policyError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, auth.ErrUnauthenticated):
		return ErrUnauthorized
	case errors.Is(err, auth.ErrForbidden):
		return ErrForbidden
	default:
		return err
	}
}
