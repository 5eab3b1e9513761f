package validation

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrValidationFailed is matched by every FieldError
	ErrValidationFailed = errors.New("validation failed")

	// ErrRequired is the cause of a FieldError on a missing non-nullable value
	ErrRequired = errors.New("this field is required")
)

// FieldError represents a validation error on a specific field
type FieldError struct {
	Model string
	Field string
	Err   error
}

// Error implements the error interface
func (e *FieldError) Error() string {
	if e.Model != "" {
		return fmt.Sprintf("validation failed: %s.%s: %v", e.Model, e.Field, e.Err)
	}
	return fmt.Sprintf("validation failed: %s: %v", e.Field, e.Err)
}

// Unwrap exposes both the sentinel and the validator's own error
func (e *FieldError) Unwrap() []error {
	return []error{ErrValidationFailed, e.Err}
}

// NewFieldError wraps err as a validation failure of model.field
func NewFieldError(model, field string, err error) *FieldError {
	return &FieldError{Model: model, Field: field, Err: err}
}

// Run applies validators in order and stops at the first violation
func Run(model, field string, value interface{}, validators []Func) error {
	for _, v := range validators {
		if v == nil {
			continue
		}
		if err := v(value); err != nil {
			return NewFieldError(model, field, err)
		}
	}
	return nil
}

// Errors collects the field errors of one record, in field order
type Errors struct {
	Model  string
	Errors []*FieldError
}

// Add records a failure of field
func (e *Errors) Add(field string, err error) {
	var fe *FieldError
	if !errors.As(err, &fe) {
		fe = NewFieldError(e.Model, field, err)
	}
	e.Errors = append(e.Errors, fe)
}

// HasErrors reports whether any field failed
func (e *Errors) HasErrors() bool {
	return len(e.Errors) > 0
}

// Fields returns the messages grouped by field
func (e *Errors) Fields() map[string][]string {
	fields := make(map[string][]string, len(e.Errors))
	for _, fe := range e.Errors {
		fields[fe.Field] = append(fields[fe.Field], fe.Err.Error())
	}
	return fields
}

// Error implements the error interface
func (e *Errors) Error() string {
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "validation failed with %d errors:", len(e.Errors))
	for _, fe := range e.Errors {
		fmt.Fprintf(&b, "\n  - %s: %v", fe.Field, fe.Err)
	}
	return b.String()
}

// Unwrap exposes every field error
func (e *Errors) Unwrap() []error {
	errs := make([]error, len(e.Errors))
	for i, fe := range e.Errors {
		errs[i] = fe
	}
	return errs
}

// Err returns e, or nil when nothing failed
func (e *Errors) Err() error {
	if !e.HasErrors() {
		return nil
	}
	return e
}
