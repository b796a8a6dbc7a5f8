// Package vmerr defines the error categories reported to tool callers as
// error_code and the typed error that carries them through the call chain.
package vmerr

import (
	"context"
	"errors"
	"fmt"
)

// Code is the machine-readable category of a failure.
type Code string

const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeVMNotFound    Code = "VM_NOT_FOUND"
	CodeInvalidState  Code = "INVALID_STATE"
	CodeSnapshot      Code = "SNAPSHOT_ERROR"
	CodeNetwork       Code = "NETWORK_ERROR"
	CodeStorage       Code = "STORAGE_ERROR"
	CodeConfiguration Code = "CONFIGURATION_ERROR"
	CodeTimeout       Code = "TIMEOUT_ERROR"
	CodeCommandFailed Code = "COMMAND_FAILED"
	CodeInvalidAction Code = "INVALID_ACTION"
	CodeUnsupported   Code = "UNSUPPORTED"
	CodeSandbox       Code = "SANDBOX_ERROR"
	CodePortfolio     Code = "PORTFOLIO_ERROR"
	CodeBackup        Code = "BACKUP_ERROR"
	CodeTemplate      Code = "TEMPLATE_ERROR"
	CodeInternal      Code = "INTERNAL_ERROR"
)

// Error is a categorised failure. Op names the operation that failed
// (for example "vbox.startvm"), Message is the human-readable summary.
type Error struct {
	Code    Code
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Op == "" {
		return msg
	}
	return fmt.Sprintf("%s: %s", e.Op, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New returns an *Error with a formatted message and no cause.
func New(code Code, op, format string, args ...any) *Error {
	return &Error{Code: code, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a category to err. A nil err yields nil. Context deadline
// errors are always reported as timeouts.
func Wrap(code Code, op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		code = CodeTimeout
	}
	return &Error{Code: code, Op: op, Err: err}
}

// Validation is shorthand for New(CodeValidation, "", ...).
func Validation(format string, args ...any) *Error {
	return New(CodeValidation, "", format, args...)
}

// CodeOf reports the first category found in err's chain.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) && e.Code != "" {
		return e.Code
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CodeTimeout
	}
	return CodeInternal
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}
