package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for validation failures.
var (
	ErrUnknownSite     = errors.New("unknown site")
	ErrEmptyName       = errors.New("name is empty")
	ErrEmptyHref       = errors.New("href is empty")
	ErrEmptyKeyword    = errors.New("keyword is empty")
	ErrNegativePrice   = errors.New("price is negative")
	ErrBadEmbedding    = errors.New("embedding has wrong dimension")
	ErrMalformedIntent = errors.New("malformed intent")
)

// ValidationError wraps a sentinel with the offending field and value.
type ValidationError struct {
	Field   string
	Value   string
	Wrapped error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s (value=%q)", e.Wrapped, e.Field, e.Value)
}

func (e *ValidationError) Unwrap() error { return e.Wrapped }

// NewValidationError creates a ValidationError.
func NewValidationError(field, value string, wrapped error) *ValidationError {
	return &ValidationError{Field: field, Value: value, Wrapped: wrapped}
}
