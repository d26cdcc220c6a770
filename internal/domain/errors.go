package domain

import "errors"

var (
	// ErrValidation marks blank or malformed required input. Callers re-prompt.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound marks a reference to an exchange or session that does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidState marks an operation that the current workflow state does not accept.
	ErrInvalidState = errors.New("invalid workflow state")
)
