// Package taperrors defines the closed error-code taxonomy the wire
// protocol exposes (spec.md §6/§7), adapted from the teacher's convention
// of declaring sentinel package-level errors so callers can use errors.Is
// against a stable set of values.
//
// The taxonomy is append-only: discriminants here are forever, never
// renamed or repurposed, matching the evolution rule for wire
// discriminants.
package taperrors

import (
	"errors"
	"fmt"
)

// Code is one of the closed set of error codes the protocol defines.
type Code string

const (
	BadRequest         Code = "bad_request"
	Unauthorized       Code = "unauthorized"
	Forbidden          Code = "forbidden"
	NotFound           Code = "not_found"
	Conflict           Code = "conflict"
	CapacityViolation  Code = "capacity_violation"
	ExpiredHold        Code = "expired_hold"
	IdempotencyReplay  Code = "idempotency_replay"
	RateLimited        Code = "rate_limited"
	Internal           Code = "internal"
)

// Sentinel errors, one per code except IdempotencyReplay (a replay is
// returned as a result, not an error), for errors.Is comparisons against a
// caller-facing error without a payload.
var (
	ErrBadRequest        = errors.New(string(BadRequest))
	ErrUnauthorized      = errors.New(string(Unauthorized))
	ErrForbidden         = errors.New(string(Forbidden))
	ErrNotFound          = errors.New(string(NotFound))
	ErrConflict          = errors.New(string(Conflict))
	ErrCapacityViolation = errors.New(string(CapacityViolation))
	ErrExpiredHold       = errors.New(string(ExpiredHold))
	ErrRateLimited       = errors.New(string(RateLimited))
	ErrInternal          = errors.New(string(Internal))
)

var sentinels = map[Code]error{
	BadRequest:        ErrBadRequest,
	Unauthorized:      ErrUnauthorized,
	Forbidden:         ErrForbidden,
	NotFound:          ErrNotFound,
	Conflict:          ErrConflict,
	CapacityViolation: ErrCapacityViolation,
	ExpiredHold:       ErrExpiredHold,
	RateLimited:       ErrRateLimited,
	Internal:          ErrInternal,
}

// CommandError is the error the engine returns for a rejected command. It
// carries the Code so callers can map it onto the wire `err` payload
// without string-matching a message.
type CommandError struct {
	Code    Code
	Message string
}

func (e *CommandError) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the matching sentinel so errors.Is(err, taperrors.ErrConflict)
// works against a *CommandError returned by the engine.
func (e *CommandError) Unwrap() error {
	return sentinels[e.Code]
}

// New constructs a *CommandError for code with an explanatory message.
func New(code Code, format string, args ...any) *CommandError {
	return &CommandError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the Code from err if it is (or wraps) a *CommandError,
// defaulting to Internal for unrecognized errors.
func CodeOf(err error) Code {
	var ce *CommandError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return Internal
}
