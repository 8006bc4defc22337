package imagegen

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

type ErrorKind string

const (
	// KindProvider covers every upstream failure that is not a timeout.
	KindProvider ErrorKind = "provider_error"
	// KindTimeout means the call exceeded the provider deadline.
	KindTimeout ErrorKind = "provider_timeout"
)

// Error is a provider failure. Message is the upstream's own short error text
// when one was available and is safe to show to end users.
type Error struct {
	Kind       ErrorKind
	Provider   string
	StatusCode int
	Message    string
	Retryable  bool
	Cause      error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Provider, e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// IsTransient reports whether the error is worth another attempt.
func IsTransient(err error) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return false
}

func newStatusError(provider string, code int, message string, cause error) *Error {
	return &Error{
		Kind:       KindProvider,
		Provider:   provider,
		StatusCode: code,
		Message:    userMessage(message),
		Retryable:  isRetryableStatus(code),
		Cause:      cause,
	}
}

// wrapCallError converts an error from an SDK call. Deadline errors become
// timeouts; anything else is a provider error.
func wrapCallError(ctx context.Context, provider string, err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Provider: provider, Cause: err}
	}
	return &Error{Kind: KindProvider, Provider: provider, Cause: err}
}

// isRetryableStatus is true for rate limiting and temporary unavailability.
func isRetryableStatus(code int) bool {
	return code == 429 || code == 503
}

const maxMessageLength = 200

// userMessage trims an upstream message to a single short line.
func userMessage(msg string) string {
	msg = strings.TrimSpace(msg)
	if i := strings.IndexAny(msg, "\r\n"); i >= 0 {
		msg = msg[:i]
	}
	if len(msg) > maxMessageLength {
		msg = msg[:maxMessageLength] + "..."
	}
	return msg
}
