package form

import (
	"errors"
	"fmt"
	"strings"
)

// Store error values for form lifecycle violations.
var (
	ErrNoActiveForm = errors.New("no active form")
	ErrFormNotFound = errors.New("form not found")
)

// UnknownFieldError reports an update against a field outside the fixed
// schema.
type UnknownFieldError struct {
	Field string
}

func (e *UnknownFieldError) Error() string {
	return fmt.Sprintf("field '%s' not found", e.Field)
}

// ValidationError carries every required-field violation found during
// submit, in schema order.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return "form validation failed: " + strings.Join(e.Violations, ", ")
}
