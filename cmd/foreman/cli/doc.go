// Copyright 2026 The Foreman Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the command-line framework for the foreman CLI.
//
// [Command] is the central type: a named subcommand with an optional
// [pflag.FlagSet] factory, nested [Command.Subcommands], and a Run
// function. The tree is assembled in cmd/foreman/commands and driven
// through [Command.Execute], which routes subcommands, parses flags,
// and renders help with usage examples.
//
// Unknown subcommands and flags get a "did you mean" suggestion based
// on Levenshtein edit distance (suggest.go). Commands declare their
// flags as tagged struct fields bound through [FlagsFromParams]
// (params.go), and [DispatchConfig] carries the shared --server and
// --token flags for reaching the dispatch API, falling back to the
// FOREMAN_URL and FOREMAN_TOKEN environment variables.
package cli
