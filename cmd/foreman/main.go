// Copyright 2026 The Foreman Authors
// SPDX-License-Identifier: Apache-2.0

// The foreman command is the operator CLI for the foreman control
// plane: submit and follow tasks, inspect the queue, and examine the
// worker fleet through the dispatch API.
package main

import (
	"fmt"
	"os"

	"github.com/foreman-ai/foreman/cmd/foreman/commands"
)

func main() {
	if err := commands.Root().Execute(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
