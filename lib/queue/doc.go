// Copyright 2026 The Foreman Authors
// SPDX-License-Identifier: Apache-2.0

// Package queue implements the priority task queue and the task
// lifecycle store over Redis.
//
// The pending queue is a sorted set whose score encodes priority and
// submission time: lower priority numbers always rank first, and
// within a priority band earlier submissions win. Task records live in
// per-task hashes next to the queue, and active/completed/failed
// membership is tracked in lists for cheap counting.
//
// Every lifecycle mutation (submit, cancel, claim, complete) executes
// as a single Lua script, so queue membership and task status can
// never disagree: a cancelled task's queue entry is gone before the
// cancel returns, and a claim that popped an entry has already marked
// the task active. The legal transitions are pending to active to
// completed or failed, and pending to cancelled. Nothing else, and
// terminal records are never deleted.
package queue
