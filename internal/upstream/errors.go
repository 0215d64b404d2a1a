// Package upstream classifies failures from the speech-to-text and analysis
// services so the pipeline worker can decide which are worth one retry and how
// to phrase the terminal error.
package upstream

import (
	"errors"
	"fmt"
)

// Kind classifies an upstream failure.
type Kind string

const (
	// KindAuth means the credential was missing or rejected. Never retried.
	KindAuth Kind = "auth"
	// KindRateLimited means the service throttled us. Never retried in-job.
	KindRateLimited Kind = "rate_limited"
	// KindInvalidInput means the service rejected the audio or transcript.
	KindInvalidInput Kind = "invalid_input"
	// KindBadResponse means the service answered but the response did not match
	// the expected contract.
	KindBadResponse Kind = "bad_response"
	// KindTransient covers network failures, 5xx and deadline expiry. Eligible
	// for a single retry.
	KindTransient Kind = "transient"
)

// Error is a typed upstream failure.
type Error struct {
	Kind Kind
	Op   string // e.g. "transcribe", "analyze"
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a typed upstream error.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Newf builds a typed upstream error from a format string.
func Newf(kind Kind, op, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of err, or KindTransient for untyped errors so that
// unknown failures stay retryable rather than silently terminal.
func KindOf(err error) Kind {
	var ue *Error
	if errors.As(err, &ue) {
		return ue.Kind
	}
	return KindTransient
}

// Retryable reports whether err is worth one retry.
func Retryable(err error) bool {
	return KindOf(err) == KindTransient
}

// UserMessage maps err to a short, user-actionable description for the
// recording's error_message field. The raw error text still passes through
// Sanitize before persistence.
func UserMessage(err error) string {
	var ue *Error
	if !errors.As(err, &ue) {
		return "recording processing failed, please try a new recording"
	}
	switch ue.Kind {
	case KindAuth:
		return fmt.Sprintf("%s service credential is missing or invalid, check service configuration", ue.Op)
	case KindRateLimited:
		return fmt.Sprintf("%s service is rate limiting requests, try again later", ue.Op)
	case KindInvalidInput:
		return fmt.Sprintf("%s service rejected the recording audio, please record again", ue.Op)
	case KindBadResponse:
		return fmt.Sprintf("%s service returned an unusable response, please try again", ue.Op)
	default:
		return fmt.Sprintf("%s service is temporarily unavailable, please try again", ue.Op)
	}
}
