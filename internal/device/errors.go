package device

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("device not found")
	ErrAlreadyClaimed     = errors.New("device already claimed")
	ErrInvalidCredentials = errors.New("invalid device credentials")
	ErrUnsupportedZone    = errors.New("zone not supported by this bag type")
	ErrValidation         = errors.New("validation failed")
	ErrCodeConflict       = errors.New("device code already exists")
)

// ValidationError describes malformed input for a single field
type ValidationError struct {
	Field  string
	Reason string
}

// NewValidationError creates a ValidationError for field
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Is makes errors.Is(err, ErrValidation) match any ValidationError
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
