// Copyright 2026 The Foreman Authors
// SPDX-License-Identifier: Apache-2.0

// Package fleet reconciles the two views of the worker fleet: what the
// Kubernetes orchestrator knows (which agent pods exist, their phase,
// readiness, and network placement) and what the agents report about
// themselves (liveness, current task, heartbeat, counters).
//
// The orchestrator is authoritative for existence; the self-reported
// state hash is authoritative for everything the agent says about
// itself. The reconciler joins the two at read time and writes
// neither. A pod the orchestrator knows that has never checked in is
// a normal, observable state and surfaces with unknown defaults, not
// as an error. Losing the orchestrator fails the listing; losing one
// agent's self-report degrades only that entry.
package fleet
