package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput indicates a malformed filter or form value.
	ErrInvalidInput = errors.New("invalid input")
)
