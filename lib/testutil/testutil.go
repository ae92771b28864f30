// Copyright 2026 The Foreman Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for foreman packages.
//
// [RequireReceive] and [RequireClosed] encapsulate the timeout safety
// valve pattern (select with a time.After fallback) so individual tests
// do not hold bare time.After calls. These are the only intended uses
// of real wall-clock timeouts in the test suite; everything else runs
// on lib/clock fakes.
//
// [SocketDir] creates a short-pathed temporary directory for Unix
// domain sockets. Unix socket paths are limited to 108 bytes
// (sun_path), and t.TempDir() can exceed that under build systems that
// nest TEST_TMPDIR deeply.
//
// All helpers call t.Fatalf on failure; test setup failures are not
// recoverable.
package testutil

import (
	"fmt"
	"os"
	"testing"
	"time"
)

// RequireReceive reads one value from ch within timeout, or fails the
// test.
//
//	task := testutil.RequireReceive(t, claimed, 5*time.Second, "waiting for claim")
func RequireReceive[T any](t *testing.T, ch <-chan T, timeout time.Duration, msgAndArgs ...any) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		if !ok {
			t.Fatalf("channel closed without a value: %s", formatMessage(msgAndArgs))
		}
		return v
	case <-time.After(timeout):
		t.Fatalf("timed out after %v: %s", timeout, formatMessage(msgAndArgs))
	}
	panic("unreachable")
}

// RequireClosed waits for ch to close (or deliver a value) within
// timeout, or fails the test. Use for readiness channels that signal
// by closing.
func RequireClosed(t *testing.T, ch <-chan struct{}, timeout time.Duration, msgAndArgs ...any) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(timeout):
		t.Fatalf("timed out after %v waiting for close: %s", timeout, formatMessage(msgAndArgs))
	}
}

// SocketDir creates a temporary directory directly under /tmp and
// removes it when the test completes. The short path keeps socket
// files inside the 108-byte sun_path limit.
func SocketDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("/tmp", "foreman-test-")
	if err != nil {
		t.Fatalf("creating socket dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

// formatMessage formats the optional trailing message arguments:
// either a single value or a format string followed by its args.
func formatMessage(msgAndArgs []any) string {
	if len(msgAndArgs) == 0 {
		return "(no message)"
	}
	if format, ok := msgAndArgs[0].(string); ok && len(msgAndArgs) > 1 {
		return fmt.Sprintf(format, msgAndArgs[1:]...)
	}
	if len(msgAndArgs) == 1 {
		return fmt.Sprintf("%v", msgAndArgs[0])
	}
	return fmt.Sprintf("%v", msgAndArgs)
}
