// Package apperr defines the error kinds the handlers can fail with and how
// each one is rendered to a client.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the short machine-checkable reason returned to clients.
type Kind string

const (
	KindConfiguration      Kind = "configuration_error"
	KindIdentityResolution Kind = "identity_unresolved"
	KindNotRegistered      Kind = "not_registered"
	KindUpstream           Kind = "upstream_error"
	KindBadRequest         Kind = "bad_request"
	KindSigning            Kind = "signing_error"
	KindInternal           Kind = "internal_error"
)

var statusByKind = map[Kind]int{
	KindConfiguration:      http.StatusInternalServerError,
	KindIdentityResolution: http.StatusUnauthorized,
	KindNotRegistered:      http.StatusForbidden,
	KindUpstream:           http.StatusBadGateway,
	KindBadRequest:         http.StatusBadRequest,
	KindSigning:            http.StatusInternalServerError,
	KindInternal:           http.StatusInternalServerError,
}

// Error is a classified failure. Detail is safe to show to a client; the
// wrapped cause is only for logs.
type Error struct {
	Kind   Kind
	Detail string
	err    error
}

func (e *Error) Error() string {
	if e.err == nil {
		return fmt.Sprintf("[%s] %s", e.Kind, e.Detail)
	}
	return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Detail, e.err)
}

func (e *Error) Unwrap() error {
	return e.err
}

// Is matches any *Error of the same kind, so callers can write
// errors.Is(err, apperr.NotRegistered("")).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Wrap attaches a cause to the error.
func (e *Error) Wrap(err error) *Error {
	e.err = err
	return e
}

// Status is the HTTP status for the error's kind.
func (e *Error) Status() int {
	if s, ok := statusByKind[e.Kind]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// Body is the JSON error envelope written to clients.
type Body struct {
	Error  Kind   `json:"error"`
	Detail string `json:"detail"`
}

// Extract maps any error to a status code and client-safe body. Errors that
// were never classified are reported as internal without their text.
func Extract(err error) (int, Body) {
	var appErr *Error
	if !errors.As(err, &appErr) {
		return http.StatusInternalServerError, Body{
			Error:  KindInternal,
			Detail: http.StatusText(http.StatusInternalServerError),
		}
	}

	detail := appErr.Detail
	if detail == "" {
		detail = http.StatusText(appErr.Status())
	}
	return appErr.Status(), Body{Error: appErr.Kind, Detail: detail}
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

func Configuration(format string, args ...any) *Error {
	return newError(KindConfiguration, format, args...)
}

func IdentityResolution(format string, args ...any) *Error {
	return newError(KindIdentityResolution, format, args...)
}

func NotRegistered(format string, args ...any) *Error {
	return newError(KindNotRegistered, format, args...)
}

func Upstream(format string, args ...any) *Error {
	return newError(KindUpstream, format, args...)
}

func BadRequest(format string, args ...any) *Error {
	return newError(KindBadRequest, format, args...)
}

func Signing(format string, args ...any) *Error {
	return newError(KindSigning, format, args...)
}

func Internal(format string, args ...any) *Error {
	return newError(KindInternal, format, args...)
}

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{
		Kind:   kind,
		Detail: fmt.Sprintf(format, args...),
	}
}
