package spoke

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sentinel errors. Providers wrap their failures so callers can branch with
// errors.Is.
var (
	ErrValidation        = errors.New("validation failed")
	ErrConflict          = errors.New("spoke conflict")
	ErrReserved          = errors.New("resource reserved by another operation")
	ErrQuotaExceeded     = errors.New("quota exceeded")
	ErrNotFound          = errors.New("not found")
	ErrTimeout           = errors.New("timed out")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrCapacity          = errors.New("too many concurrent deployments")
)

// FieldError is a single rejected configuration field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e FieldError) String() string {
	return e.Field + ": " + e.Message
}

// ValidationError carries every field error found, not just the first.
type ValidationError struct {
	Errors []FieldError `json:"errors"`
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		msgs[i] = fe.String()
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(msgs, "; "))
}

// Is makes errors.Is(err, ErrValidation) hold for any ValidationError.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func (e *ValidationError) add(field, format string, args ...any) {
	e.Errors = append(e.Errors, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

func (e *ValidationError) orNil() error {
	if len(e.Errors) == 0 {
		return nil
	}
	return e
}

// TimeoutError reports an operation that did not converge in time.
type TimeoutError struct {
	Operation string
	Timeout   time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s did not complete within %s", e.Operation, e.Timeout)
}

func (e *TimeoutError) Unwrap() error {
	return ErrTimeout
}
