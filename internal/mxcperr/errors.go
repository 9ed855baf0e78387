package mxcperr

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies a request failure for auditing and client surfacing.
type Kind string

const (
	KindBadInput       Kind = "BadInput"
	KindPolicyDenied   Kind = "PolicyDenied"
	KindNotFound       Kind = "NotFound"
	KindUnavailable    Kind = "Unavailable"
	KindSQLExecution   Kind = "SQLExecution"
	KindHostExecution  Kind = "HostExecution"
	KindNoRows         Kind = "NoRows"
	KindTooManyRows    Kind = "TooManyRows"
	KindColumnMismatch Kind = "ColumnMismatch"
	KindBadOutput      Kind = "BadOutput"
	KindCancelled      Kind = "Cancelled"
	KindInternal       Kind = "Internal"
)

// Error is a classified request error. Detail carries structured context
// (validation paths, engine messages) surfaced only in debug mode for
// internal kinds.
type Error struct {
	Kind    Kind
	Message string
	Detail  interface{}
	wrapped error
}

// New creates a classified error.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies an underlying error.
func Wrap(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		wrapped: err,
	}
}

// WithDetail attaches structured detail and returns the error.
func (e *Error) WithDetail(detail interface{}) *Error {
	e.Detail = detail
	return e
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.wrapped)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the underlying error to errors.Is/As.
func (e *Error) Unwrap() error {
	return e.wrapped
}

// KindOf extracts the kind from any error. Context cancellation maps to
// Cancelled; everything unclassified is Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindCancelled
	}
	return KindInternal
}

// MessageOf returns the classified message, or the raw error text.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}
