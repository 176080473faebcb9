package repository

import "errors"

var (
	// ErrNotFound is returned when a lookup or update by id or username matches nothing.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a write violates a unique index.
	ErrDuplicate = errors.New("duplicate record")
)
