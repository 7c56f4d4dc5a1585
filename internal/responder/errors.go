// Package responder contains the response-generation paths: the deterministic
// local composer, the prompt builder, and the remote completion client.
package responder

import (
	"errors"
	"fmt"
)

// Kind classifies a completion failure for user-facing messaging and retry
// policy decisions.
type Kind string

const (
	KindAINotEnabled         Kind = "ai_not_enabled"
	KindSubscriptionRequired Kind = "subscription_required"
	KindConfiguration        Kind = "configuration"
	KindAPI                  Kind = "api"
	KindNetwork              Kind = "network"
	KindRateLimit            Kind = "rate_limit"
	KindServer               Kind = "server"
	KindInvalidResponse      Kind = "invalid_response"
	KindUnknown              Kind = "unknown"
)

// Error is the typed failure returned by the remote completion client.
type Error struct {
	Kind Kind
	Code int // HTTP status when applicable, 0 otherwise
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("completion %s (code %d): %v", e.Kind, e.Code, e.Err)
	}
	return fmt.Sprintf("completion %s (code %d)", e.Kind, e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, code int, err error) *Error {
	return &Error{Kind: kind, Code: code, Err: err}
}

// KindOf extracts the failure kind from any error chain.
func KindOf(err error) Kind {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Kind
	}
	return KindUnknown
}
