// Copyright 2026 The Foreman Authors
// SPDX-License-Identifier: Apache-2.0

// Foreman-dispatch is the foreman control plane. It accepts prioritized
// task submissions over an authenticated HTTP API, serves the reconciled
// fleet view, and exposes a local admin socket for operators on the host.
//
// Three interfaces:
//   - HTTP API: task submission, queries, cancellation, queue stats,
//     worker inventory and logs. Every route except the liveness probe
//     requires a bearer credential verified against the issuer's
//     published keys and a matching scope grant.
//   - CBOR Unix socket: read-only operational actions (ping, stats,
//     workers) for host-local tooling. No credential checks; access is
//     gated by the run directory's permissions.
//   - Kubernetes API: agent pod discovery for the fleet view. In-cluster
//     configuration by default, kubeconfig override for development.
//
// Configuration comes from the YAML file addressed by FOREMAN_CONFIG or
// --config: listen address, Redis store, issuer, Kubernetes namespace,
// queue defaults, run directory. See lib/config.
package main
