package domain

import "errors"

var (
	// ErrValidation is returned when a score is missing or has malformed fields.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is returned when no score matches a key.
	ErrNotFound = errors.New("score not found")
)
