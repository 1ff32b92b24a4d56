// Package apperr carries the error taxonomy shared by the domain packages
// and the HTTP layer. Reason is the stable machine-readable string clients
// switch on; Message is safe to show to users; Cause never leaves the server.
package apperr

import (
	"errors"
	"fmt"
	"time"
)

type AppError struct {
	Code    Code
	Reason  string
	Message string
	Cause   error

	// ResetAt is set on RATE_LIMITED errors.
	ResetAt time.Time
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Cause }

// Is matches two AppErrors by code and reason so sentinel values survive
// wrapping with a cause.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Reason == t.Reason
}

// WithCause returns a copy of e carrying cause.
func (e *AppError) WithCause(cause error) *AppError {
	cp := *e
	cp.Cause = cause
	return &cp
}

func New(code Code, reason, message string) *AppError {
	return &AppError{Code: code, Reason: reason, Message: message}
}

func Validation(reason, message string) *AppError {
	return New(CodeValidation, reason, message)
}

func Unauthorized(message string) *AppError {
	return New(CodeUnauthorized, "unauthorized", message)
}

func Forbidden(message string) *AppError {
	return New(CodeForbidden, "forbidden", message)
}

func NotFound(reason, message string) *AppError {
	return New(CodeNotFound, reason, message)
}

func Conflict(reason, message string) *AppError {
	return New(CodeConflict, reason, message)
}

func RateLimited(resetAt time.Time) *AppError {
	return &AppError{
		Code:    CodeRateLimited,
		Reason:  "rate_limited",
		Message: "You're sending messages too quickly. Please wait a bit before sending another.",
		ResetAt: resetAt,
	}
}

// Unavailable wraps a backing store failure.
func Unavailable(cause error) *AppError {
	return &AppError{
		Code:    CodeUnavailable,
		Reason:  "store_unavailable",
		Message: "Something went wrong. Please try again later.",
		Cause:   cause,
	}
}

func Upstream(reason, message string, cause error) *AppError {
	return &AppError{Code: CodeUpstream, Reason: reason, Message: message, Cause: cause}
}

// From extracts an AppError from err. Anything else becomes INTERNAL with
// err as the cause.
func From(err error) *AppError {
	if err == nil {
		return nil
	}
	var ae *AppError
	if errors.As(err, &ae) {
		return ae
	}
	return &AppError{
		Code:    CodeInternal,
		Reason:  "internal",
		Message: "Internal server error",
		Cause:   err,
	}
}
