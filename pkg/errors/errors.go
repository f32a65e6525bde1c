// Package errors provides the coded error type shared by every stage of the
// quantification pipeline. The Kind tells the caller whether the whole case
// must be aborted (input, computation, I/O) or whether a single statistic was
// affected (reference data).
package errors

import (
	"errors"
	"fmt"
)

// Kind identifies the failure category.
type Kind string

const (
	// KindInput covers malformed or missing masks and demographic fields.
	KindInput Kind = "INPUT_ERROR"

	// KindComputation covers a missing/zero ICV and degenerate statistics.
	KindComputation Kind = "COMPUTATION_ERROR"

	// KindReferenceData covers unresolvable labels and empty reference windows.
	KindReferenceData Kind = "REFERENCE_DATA_ERROR"

	// KindIO covers failures reading reference files or writing artifacts.
	KindIO Kind = "IO_ERROR"

	// KindInternal is used for errors not created by this package.
	KindInternal Kind = "INTERNAL_ERROR"
)

// Sentinels for errors.Is; matching is by Kind only.
var (
	ErrInput         = &AppError{Kind: KindInput}
	ErrComputation   = &AppError{Kind: KindComputation}
	ErrReferenceData = &AppError{Kind: KindReferenceData}
	ErrIO            = &AppError{Kind: KindIO}
)

// AppError is the structured error carried across package boundaries.
type AppError struct {
	Kind    Kind
	Message string
	Detail  string
	Cause   error
}

// Error formats as "[KIND] message: detail: cause".
func (e *AppError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Kind, e.Message)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap exposes the cause to errors.Is / errors.As.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an AppError of the same Kind.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// WithDetail returns a copy of e with Detail set.
func (e *AppError) WithDetail(format string, args ...interface{}) *AppError {
	c := *e
	c.Detail = fmt.Sprintf(format, args...)
	return &c
}

// New creates an AppError of the given kind.
func New(kind Kind, format string, args ...interface{}) *AppError {
	return &AppError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches kind and message to err. A nil err yields nil.
func Wrap(err error, kind Kind, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return &AppError{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: err}
}

// Input creates an InputError.
func Input(format string, args ...interface{}) *AppError {
	return New(KindInput, format, args...)
}

// Computation creates a ComputationError.
func Computation(format string, args ...interface{}) *AppError {
	return New(KindComputation, format, args...)
}

// ReferenceData creates a ReferenceDataError.
func ReferenceData(format string, args ...interface{}) *AppError {
	return New(KindReferenceData, format, args...)
}

// IO creates an IOError.
func IO(format string, args ...interface{}) *AppError {
	return New(KindIO, format, args...)
}

// KindOf returns the Kind of the outermost AppError in err's chain.
func KindOf(err error) Kind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}
