// Package apperr defines the error taxonomy shared by every component of the
// carbon ledger: validation failures, network failures, caller contract
// violations and round-trip timeouts. Not-found outcomes are deliberately
// absent; lookups report them through a boolean instead of an error.
package apperr

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// Kind classifies an error for propagation and retry decisions.
type Kind string

const (
	KindValidation        Kind = "validation"
	KindNetwork           Kind = "network"
	KindContractViolation Kind = "contract_violation"
	KindTimeout           Kind = "timeout"
	KindInternal          Kind = "internal"
)

// Error is the typed error returned across component boundaries.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Detail  string
	cause   error
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s - %s", e.Code, e.Message, e.Detail)
}

// Unwrap exposes the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.cause
}

func newError(kind Kind, code, message string, cause error) *Error {
	e := &Error{Kind: kind, Code: code, Message: message, cause: cause}
	if cause != nil {
		e.Detail = cause.Error()
	}
	return e
}

// Validation reports malformed input or a schema mismatch. Never retried.
func Validation(code, message string, cause error) *Error {
	return newError(KindValidation, code, message, cause)
}

// Network reports a transport failure: broker, RPC or HTTP.
func Network(code, message string, cause error) *Error {
	return newError(KindNetwork, code, message, cause)
}

// ContractViolation reports a caller bug such as a both-or-neither operator reference.
func ContractViolation(code, message string, cause error) *Error {
	return newError(KindContractViolation, code, message, cause)
}

// Timeout reports an expired deadline while waiting on a remote party.
func Timeout(code, message string, cause error) *Error {
	return newError(KindTimeout, code, message, cause)
}

// Internal reports an unexpected local failure (storage, filesystem).
func Internal(code, message string, cause error) *Error {
	return newError(KindInternal, code, message, cause)
}

// WithDetail returns a copy of e with Detail replaced.
func (e *Error) WithDetail(format string, args ...any) *Error {
	cp := *e
	cp.Detail = fmt.Sprintf(format, args...)
	return &cp
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	if err == nil {
		return false
	}
	return KindOf(err) == kind
}

// IsRetryable reports whether a caller-level retry policy may try again.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindNetwork, KindTimeout:
		return true
	default:
		return false
	}
}
