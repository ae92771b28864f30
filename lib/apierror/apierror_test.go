// Copyright 2026 The Foreman Authors
// SPDX-License-Identifier: Apache-2.0

package apierror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"validation", Validationf("instruction is required"), Validation},
		{"not found", NotFoundf("task %q not found", "tsk-1"), NotFound},
		{"authorization", Authorizationf("missing scope %q", "agent:control"), Authorization},
		{"invalid state", InvalidStatef("task is %q, not pending", "active"), InvalidState},
		{"discovery", Discoveryf(errors.New("connection refused"), "listing workers"), Discovery},
		{"key fetch", KeyFetchf(errors.New("timeout"), "no verification keys"), KeyFetch},
		{"wrapped once", fmt.Errorf("handling request: %w", NotFoundf("task not found")), NotFound},
		{"plain error", errors.New("disk full"), Kind("")},
		{"nil", nil, Kind("")},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := KindOf(test.err); got != test.want {
				t.Errorf("KindOf() = %q, want %q", got, test.want)
			}
		})
	}
}

func TestIsKind(t *testing.T) {
	err := fmt.Errorf("cancel: %w", InvalidStatef("task is already cancelled"))
	if !IsKind(err, InvalidState) {
		t.Error("IsKind(InvalidState) = false, want true")
	}
	if IsKind(err, NotFound) {
		t.Error("IsKind(NotFound) = true, want false")
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{Validationf("bad priority"), http.StatusBadRequest},
		{NotFoundf("absent"), http.StatusNotFound},
		{Authorizationf("not the submitter"), http.StatusForbidden},
		{InvalidStatef("not pending"), http.StatusConflict},
		{Discoveryf(errors.New("refused"), "pod list"), http.StatusBadGateway},
		{KeyFetchf(errors.New("refused"), "jwks"), http.StatusServiceUnavailable},
		{errors.New("unclassified"), http.StatusInternalServerError},
	}

	for _, test := range tests {
		if got := HTTPStatus(test.err); got != test.want {
			t.Errorf("HTTPStatus(%v) = %d, want %d", test.err, got, test.want)
		}
	}
}

func TestErrorMessagePreservesCause(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := Discoveryf(cause, "listing worker pods")

	if !errors.Is(err, cause) {
		t.Error("errors.Is(err, cause) = false, want true")
	}
	want := "listing worker pods: dial tcp: connection refused"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
