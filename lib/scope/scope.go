// Copyright 2026 The Foreman Authors
// SPDX-License-Identifier: Apache-2.0

// Package scope gates operations on verified identity claims.
//
// An Identity is produced by token verification (lib/keycache) and
// carries the subject plus the space-separated capability string from
// the token's scope claim. Require is a pure predicate over that
// string: no state, no configuration, no network. Verification decides
// who the caller is; this package only decides what they may do.
//
// The capability model is fixed: View for read operations, Control for
// mutations. The route-to-capability mapping lives with the routes and
// is not configurable.
package scope

import (
	"strings"

	"github.com/foreman-ai/foreman/lib/apierror"
)

const (
	// View permits read operations: get/list tasks, queue stats, the
	// worker inventory, and worker logs.
	View = "agent:view"

	// Control permits mutations: task submission and cancellation.
	Control = "agent:control"
)

// Identity is a verified claim set. Subject identifies the caller;
// Scopes is the space-separated capability string exactly as the
// token carried it.
type Identity struct {
	Subject string
	Scopes  string
}

// Has reports whether the identity's scope string contains the given
// capability token.
func (id Identity) Has(capability string) bool {
	for _, granted := range strings.Fields(id.Scopes) {
		if granted == capability {
			return true
		}
	}
	return false
}

// Require returns nil if the identity holds the capability, or an
// authorization error naming the missing capability. The error is a
// client error (the caller's token lacks a grant), not a fault.
func Require(id Identity, capability string) error {
	if id.Has(capability) {
		return nil
	}
	return apierror.Authorizationf("missing required scope %q", capability)
}
