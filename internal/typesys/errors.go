package typesys

import (
	"fmt"
	"strings"
)

// ErrorKind classifies a validation failure.
type ErrorKind string

const (
	KindTypeMismatch    ErrorKind = "TypeMismatch"
	KindRangeViolation  ErrorKind = "RangeViolation"
	KindFormatViolation ErrorKind = "FormatViolation"
	KindMissingRequired ErrorKind = "MissingRequired"
	KindUnknownProperty ErrorKind = "UnknownProperty"
	KindEnumViolation   ErrorKind = "EnumViolation"
)

// FieldError is a single validation failure anchored at a JSON path.
type FieldError struct {
	Kind    ErrorKind `json:"kind"`
	Path    string    `json:"path"`
	Message string    `json:"message"`
}

// Error implements the error interface.
func (e *FieldError) Error() string {
	return fmt.Sprintf("%s at %s: %s", e.Kind, e.Path, e.Message)
}

// Errors aggregates field errors from one validation pass.
type Errors []*FieldError

// Error joins all field errors into a single message.
func (es Errors) Error() string {
	if len(es) == 0 {
		return "no validation errors"
	}
	parts := make([]string, 0, len(es))
	for _, e := range es {
		parts = append(parts, e.Error())
	}
	return strings.Join(parts, "; ")
}

// AsError returns nil when the slice is empty, otherwise the slice itself.
func (es Errors) AsError() error {
	if len(es) == 0 {
		return nil
	}
	return es
}

func newFieldError(kind ErrorKind, path, format string, args ...interface{}) *FieldError {
	return &FieldError{
		Kind:    kind,
		Path:    path,
		Message: fmt.Sprintf(format, args...),
	}
}
