// Copyright 2026 The Foreman Authors
// SPDX-License-Identifier: Apache-2.0

// Package keycache fetches and caches the identity issuer's
// verification key set and verifies bearer credentials against it.
//
// The Cache holds one JWKS document and its fetch time. Within the
// freshness window a cached set is returned without touching the
// network. Past the window a refresh is attempted; if the refresh
// fails and any cached set exists — however old — the stale set is
// served with a warning instead of failing the request. Only the
// combination "no cache yet, fetch failed" is an error. A transient
// issuer outage therefore cannot take down credential verification;
// it only delays key rotation.
//
// Refreshes are deliberately not de-duplicated across simultaneous
// callers: the fetch is an idempotent GET, so a refresh race costs at
// most a few redundant requests and never a torn cache (the replace
// is a single assignment under the mutex).
//
// The Cache is owned by the component that constructs it and injected
// into callers; there is no package-level instance.
package keycache
