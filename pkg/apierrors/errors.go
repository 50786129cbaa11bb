// Package apierrors implements the stable error taxonomy of §7: a fixed set
// of "code" strings that propagate to API callers instead of raw Go errors.
package apierrors

import (
	"fmt"

	goerrors "github.com/go-errors/errors"
	"golang.org/x/xerrors"
)

// Code is one of the stable taxonomy strings from spec §7.
type Code string

const (
	CodeRuntimeUnavailable     Code = "runtime-unavailable"
	CodeNotReady               Code = "not-ready"
	CodeStaleState             Code = "stale-state"
	CodeAlreadyRunning         Code = "already-running"
	CodeConcurrentModification Code = "concurrent-modification"
	CodeUnknownProject         Code = "unknown-project"
	CodeProjectConflict        Code = "project-conflict"
	CodeUnknownToken           Code = "unknown-token"
	CodeInvalidScope           Code = "invalid-scope"
	CodeUnauthorized           Code = "unauthorized"
	CodeInvalidRequest         Code = "invalid-request"
	CodeTimeout                Code = "timeout"
	CodeInternal               Code = "internal"
	CodePermissionDenied       Code = "permission-denied"
)

// Error is a daemon error carrying a stable code, a human message, and
// optional structured details. It is what the HTTP layer serializes as
// {code, message, details?}.
type Error struct {
	Code    Code
	Message string
	Details map[string]any
	frame   xerrors.Frame
	cause   error
}

// New builds an Error, capturing a stack frame the way the teacher's
// ComplexError captures an xerrors.Frame for later formatting.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message, frame: xerrors.Caller(1)}
}

// Wrap attaches a code to an underlying error without discarding it.
func Wrap(code Code, cause error) *Error {
	if cause == nil {
		return nil
	}
	return &Error{Code: code, Message: cause.Error(), cause: cause, frame: xerrors.Caller(1)}
}

// WithDetails returns a copy of e with Details set.
func (e *Error) WithDetails(details map[string]any) *Error {
	cp := *e
	cp.Details = details
	return &cp
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// FormatError implements xerrors.Formatter so printing an Error with %+v
// includes the captured call frame, matching commands.ComplexError.
func (e *Error) FormatError(p xerrors.Printer) error {
	p.Printf("%s %s", e.Code, e.Message)
	e.frame.Format(p)
	return nil
}

func (e *Error) Format(f fmt.State, c rune) {
	xerrors.FormatError(e, f, c)
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	var de *Error
	if xerrors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// CodeOf extracts the code from err, defaulting to CodeInternal for errors
// that were never classified.
func CodeOf(err error) Code {
	var de *Error
	if xerrors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// WrapStack wraps err for top-level recovery logging, capturing a stack
// trace the way the teacher's WrapError does, without losing an existing
// nil.
func WrapStack(err error) error {
	if err == nil {
		return nil
	}
	return goerrors.Wrap(err, 1)
}

// StackOf extracts the formatted stack trace from an error produced by
// WrapStack, for attaching to a structured log line at a process boundary
// (daemon panic recovery, supervisor spawn failure). Returns "" for any
// other error.
func StackOf(err error) string {
	if ge, ok := err.(*goerrors.Error); ok {
		return ge.ErrorStack()
	}
	return ""
}
