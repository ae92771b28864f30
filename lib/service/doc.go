// Copyright 2026 The Foreman Authors
// SPDX-License-Identifier: Apache-2.0

// Package service provides shared server infrastructure for foreman
// binaries.
//
// A foreman service is a standalone Go binary with two surfaces: an
// HTTP API on TCP for remote callers, and a CBOR request-response
// protocol on a Unix socket for local administration. This package
// extracts the scaffolding both need:
//
//   - HTTP server: listener lifecycle, readiness signal, graceful
//     drain on context cancellation.
//   - Socket server: one CBOR request-response cycle per connection,
//     action dispatch, connection timeouts, graceful shutdown.
//   - Socket client: the matching one-connection-per-call client used
//     by admin tooling and tests.
//
// Binaries compose these pieces in their own main() function rather
// than subclassing a framework. The package provides building blocks,
// not a runtime.
//
// # Authentication
//
// The admin socket carries no caller authentication: filesystem
// permissions on the socket's run directory decide who can connect.
// The HTTP API authenticates callers with bearer credentials; that
// logic lives with the API handlers, not here.
package service
