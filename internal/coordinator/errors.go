package coordinator

import "errors"

var (
	// ErrNotFound is returned when no live session exists for the requested
	// key. Callers treat it as a normal negative result, not a failure.
	ErrNotFound = errors.New("coordinator: no active session")
	// ErrSessionResolved is returned for commands that cannot apply to a
	// session frozen by its cutoff.
	ErrSessionResolved = errors.New("coordinator: session already resolved")
)

// ValidationError captures field level validation issues that callers can
// surface to the triggering user.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	return "validation failed"
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

// add records a field level validation error.
func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	v.FieldErrors[field] = message
}
