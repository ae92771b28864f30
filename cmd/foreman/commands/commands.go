// Copyright 2026 The Foreman Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands assembles the foreman CLI command tree.
package commands

import (
	"fmt"

	"github.com/foreman-ai/foreman/cmd/foreman/cli"
	"github.com/foreman-ai/foreman/lib/version"
)

// Root builds the complete foreman command tree.
func Root() *cli.Command {
	return &cli.Command{
		Name: "foreman",
		Description: `Foreman: task queue and fleet control for autonomous worker agents.

Submit work to the queue, follow it through completion, and inspect
the workers executing it. All commands talk to the dispatch API; set
FOREMAN_URL and FOREMAN_TOKEN (or pass --server and --token) first.`,
		Subcommands: []*cli.Command{
			submitCommand(),
			showCommand(),
			listCommand(),
			cancelCommand(),
			statsCommand(),
			workersCommand(),
			workerCommand(),
			logsCommand(),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func(args []string) error {
					fmt.Printf("foreman %s\n", version.Full())
					return nil
				},
			},
		},
		Examples: []cli.Example{
			{
				Description: "Submit an urgent fix",
				Command:     `foreman submit --repo janua --priority 1 "fix the login redirect loop"`,
			},
			{
				Description: "Watch your queue",
				Command:     "foreman list",
			},
			{
				Description: "Inspect a task",
				Command:     "foreman show tsk-01jtqv8e4kfxme9pkw5r3s7t2n",
			},
			{
				Description: "See the worker fleet",
				Command:     "foreman workers",
			},
			{
				Description: "Tail a worker's output",
				Command:     "foreman logs --tail 100 foreman-agent-2",
			},
		},
	}
}
