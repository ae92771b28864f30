// Copyright 2026 The Foreman Authors
// SPDX-License-Identifier: Apache-2.0

// Package apierror defines foreman's error taxonomy. Every error that
// crosses a component boundary carries a Kind so that transport layers
// can map it to a client-facing status without inspecting message text,
// and so that tests can assert on failure category rather than wording.
//
// Errors are created with the per-kind constructors (Validationf,
// NotFoundf, ...) and inspected with KindOf. Messages name the field,
// scope, or state that caused the failure — enough for the caller to
// act — and never include storage keys or other internals.
package apierror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for transport mapping and test assertions.
type Kind string

const (
	// Validation: malformed input; the caller can correct and retry.
	Validation Kind = "validation"

	// NotFound: the referenced entity does not exist.
	NotFound Kind = "not_found"

	// Authorization: the caller lacks ownership of the entity or the
	// capability the operation requires.
	Authorization Kind = "authorization"

	// InvalidState: the operation is not legal for the entity's
	// current lifecycle state.
	InvalidState Kind = "invalid_state"

	// Discovery: the orchestrator could not be reached; fatal for the
	// calling request.
	Discovery Kind = "discovery"

	// KeyFetch: no usable verification key material exists (no cached
	// set and the issuer fetch failed); fatal for the calling request.
	KeyFetch Kind = "key_fetch"
)

// Error is a classified error. The zero value is not meaningful; use
// the constructors.
type Error struct {
	// Kind is the failure category.
	Kind Kind

	// Message is the client-facing description.
	Message string

	// cause is the wrapped underlying error, if any.
	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

// Unwrap returns the underlying cause for errors.Is/errors.As chains.
func (e *Error) Unwrap() error { return e.cause }

// Validationf returns a Validation error.
func Validationf(format string, args ...any) *Error {
	return &Error{Kind: Validation, Message: fmt.Sprintf(format, args...)}
}

// NotFoundf returns a NotFound error.
func NotFoundf(format string, args ...any) *Error {
	return &Error{Kind: NotFound, Message: fmt.Sprintf(format, args...)}
}

// Authorizationf returns an Authorization error.
func Authorizationf(format string, args ...any) *Error {
	return &Error{Kind: Authorization, Message: fmt.Sprintf(format, args...)}
}

// InvalidStatef returns an InvalidState error.
func InvalidStatef(format string, args ...any) *Error {
	return &Error{Kind: InvalidState, Message: fmt.Sprintf(format, args...)}
}

// Discoveryf returns a Discovery error wrapping cause. The cause is
// preserved for logs; Error() appends it after the message.
func Discoveryf(cause error, format string, args ...any) *Error {
	return &Error{Kind: Discovery, Message: fmt.Sprintf(format, args...), cause: cause}
}

// KeyFetchf returns a KeyFetch error wrapping cause.
func KeyFetchf(cause error, format string, args ...any) *Error {
	return &Error{Kind: KeyFetch, Message: fmt.Sprintf(format, args...), cause: cause}
}

// KindOf returns the Kind of err, or "" if err carries no *Error in
// its chain.
func KindOf(err error) Kind {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return ""
}

// IsKind reports whether err carries the given Kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// HTTPStatus maps err to an HTTP status code. Unclassified errors map
// to 500 so that internal faults are never mistaken for client errors.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case Validation:
		return http.StatusBadRequest
	case NotFound:
		return http.StatusNotFound
	case Authorization:
		return http.StatusForbidden
	case InvalidState:
		return http.StatusConflict
	case Discovery:
		return http.StatusBadGateway
	case KeyFetch:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
