package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Error taxonomy shared by every operation. All errors are local to a single
// call; retry policy, if any, belongs to the HTTP layer.
var (
	// ErrNotFound covers both "does not exist" and "exists but the caller is
	// not the owner" — deliberately indistinguishable, so an unauthorized
	// caller cannot probe for other users' resources.
	ErrNotFound = errors.New("not found")

	// ErrConflict is a uniqueness violation. Repositories translate database
	// constraint errors into this, so racing writers that pass the advisory
	// pre-check still surface a clean conflict.
	ErrConflict = errors.New("conflict")

	// ErrInvalidOperation marks an operation applied to the wrong kind of
	// resource, e.g. revealing a non-ENV_VAR artifact.
	ErrInvalidOperation = errors.New("invalid operation")
)

// ValidationError carries field-level detail, recoverable by the caller
// correcting input.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s: %s", k, e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// NewValidationError builds a single-field validation error.
func NewValidationError(field, msg string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: msg}}
}

// AsValidation unwraps err into a *ValidationError if it is one.
func AsValidation(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}
