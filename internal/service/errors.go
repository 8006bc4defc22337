package service

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorKind string

const (
	KindUnauthorized      ErrorKind = "unauthorized"
	KindForbidden         ErrorKind = "forbidden"
	KindNotFound          ErrorKind = "not_found"
	KindInvalidRequest    ErrorKind = "invalid_request"
	KindTooFrequent       ErrorKind = "too_frequent"
	KindAlreadyGenerating ErrorKind = "already_generating"
	KindInsufficientFunds ErrorKind = "insufficient_funds"
	KindProviderError     ErrorKind = "provider_error"
	KindProviderTimeout   ErrorKind = "provider_timeout"
	KindStorageError      ErrorKind = "storage_error"
	KindInternal          ErrorKind = "internal_error"
)

var kindStatus = map[ErrorKind]int{
	KindUnauthorized:      http.StatusUnauthorized,
	KindForbidden:         http.StatusForbidden,
	KindNotFound:          http.StatusNotFound,
	KindInvalidRequest:    http.StatusBadRequest,
	KindTooFrequent:       http.StatusTooManyRequests,
	KindAlreadyGenerating: http.StatusConflict,
	KindInsufficientFunds: http.StatusPaymentRequired,
	KindProviderError:     http.StatusBadGateway,
	KindProviderTimeout:   http.StatusGatewayTimeout,
	KindStorageError:      http.StatusBadGateway,
	KindInternal:          http.StatusInternalServerError,
}

// Status returns the HTTP status for the kind.
func (k ErrorKind) Status() int {
	status, ok := kindStatus[k]
	if !ok {
		return http.StatusInternalServerError
	}
	return status
}

// Error is the error type returned by services. MessageKey names a catalog
// entry with a more specific message than the kind's default; Detail is an
// upstream message that is safe to show as is.
type Error struct {
	Kind       ErrorKind
	MessageKey string
	Args       []any
	Detail     string
	Err        error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.MessageKey != "" {
		msg += " (" + e.MessageKey + ")"
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind ErrorKind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

func invalid(key string, err error, args ...any) *Error {
	return &Error{Kind: KindInvalidRequest, MessageKey: key, Args: args, Err: err}
}

func internal(format string, args ...any) *Error {
	return &Error{Kind: KindInternal, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of a service error, or KindInternal for anything else.
func KindOf(err error) ErrorKind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindInternal
}

// IsKind reports whether err is a service error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var se *Error
	return errors.As(err, &se) && se.Kind == kind
}
