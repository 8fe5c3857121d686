package services

import (
	"errors"
	"fmt"
)

// ErrorKind classifies every failure the signature core can surface.
// Handlers map kinds to HTTP statuses; callers decide retry behavior
// from Retryable.
type ErrorKind string

const (
	// KindInvalidIdentity: the Aadhaar number failed validation.
	// User-correctable, never retried automatically.
	KindInvalidIdentity ErrorKind = "invalid_identity"
	// KindProviderUnavailable: transient provider or transport outage.
	// Retryable with backoff; does not consume an OTP attempt.
	KindProviderUnavailable ErrorKind = "provider_unavailable"
	// KindProviderRejected: the provider refused the request for good.
	KindProviderRejected ErrorKind = "provider_rejected"
	// KindOTPMismatch consumes one retry; up to MaxOTPRetries attempts.
	KindOTPMismatch ErrorKind = "otp_mismatch"
	// KindRetryLimitExceeded: OTP cycle exhausted, re-initiate needed.
	KindRetryLimitExceeded ErrorKind = "retry_limit_exceeded"
	// KindExpired: the OTP window passed; the request is terminal.
	KindExpired ErrorKind = "expired"
	// KindAlreadyVerified / KindAlreadySigned: idempotent no-ops
	// surfaced as informational.
	KindAlreadyVerified ErrorKind = "already_verified"
	KindAlreadySigned   ErrorKind = "already_signed"
	// KindTerminalState: mutation attempted on a signed/failed/expired
	// record.
	KindTerminalState ErrorKind = "terminal_state"
	// KindInvalidState: operation out of sequence (e.g. signing before
	// OTP verification).
	KindInvalidState ErrorKind = "invalid_state"
	// KindOutOfOrder: sequential workflow ordering violation.
	KindOutOfOrder ErrorKind = "out_of_order"
	// KindConflict: optimistic version check lost a race; safe to
	// retry the call.
	KindConflict ErrorKind = "conflict"
	// KindNotFound: referenced record does not exist.
	KindNotFound ErrorKind = "not_found"
	// KindCertificateGeneration: certificate build failed; the
	// signature itself remains valid.
	KindCertificateGeneration ErrorKind = "certificate_generation_failed"
)

// Error is the typed result returned across the service boundary. The
// Reason is always safe to show to the caller.
type Error struct {
	Kind   ErrorKind
	Reason string
	cause  error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *Error) Unwrap() error { return e.cause }

// Retryable reports whether the same call may succeed if repeated.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindProviderUnavailable, KindConflict:
		return true
	case KindOTPMismatch:
		return true // up to the retry limit
	}
	return false
}

func newError(kind ErrorKind, reason string) *Error {
	return &Error{Kind: kind, Reason: reason}
}

func wrapError(kind ErrorKind, reason string, cause error) *Error {
	return &Error{Kind: kind, Reason: reason, cause: cause}
}

// KindOf extracts the kind from any error in the chain, or "" when the
// error did not originate in this package.
func KindOf(err error) ErrorKind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}
