// Package validation collects per-field form errors before anything reaches OpenBao.
package validation

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalid matches every *Error via errors.Is.
var ErrInvalid = errors.New("validation failed")

// FieldError marks a single invalid form field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error is the aggregate of all field markers raised for one form.
// Field order is the order in which checks were made.
type Error struct {
	Fields []FieldError `json:"fields"`
}

// Error returns the summary shown above the form.
func (e *Error) Error() string {
	if len(e.Fields) == 1 {
		return "There is 1 error with this form."
	}
	return fmt.Sprintf("There are %d errors with this form.", len(e.Fields))
}

// Is lets errors.Is(err, ErrInvalid) match.
func (e *Error) Is(target error) bool {
	return target == ErrInvalid
}

// Count returns the number of field markers.
func (e *Error) Count() int {
	if e == nil {
		return 0
	}
	return len(e.Fields)
}

// Has reports whether the named field carries a marker.
func (e *Error) Has(field string) bool {
	if e == nil {
		return false
	}
	for _, f := range e.Fields {
		if f.Field == field {
			return true
		}
	}
	return false
}

// FieldNames returns the marked field names in check order.
func (e *Error) FieldNames() []string {
	if e == nil {
		return nil
	}
	names := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		names = append(names, f.Field)
	}
	return names
}

// Add records a marker for field.
func (e *Error) Add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

// Require records a marker when value is empty or whitespace.
func (e *Error) Require(field, value string) {
	if strings.TrimSpace(value) == "" {
		e.Add(field, fieldLabel(field)+" is required.")
	}
}

// Err returns e when it holds at least one marker, else nil.
func (e *Error) Err() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

// As extracts a *Error from err.
func As(err error) (*Error, bool) {
	var verr *Error
	if errors.As(err, &verr) {
		return verr, true
	}
	return nil, false
}

func fieldLabel(field string) string {
	label := strings.ReplaceAll(field, "_", " ")
	if label == "" {
		return "Field"
	}
	return strings.ToUpper(label[:1]) + label[1:]
}
