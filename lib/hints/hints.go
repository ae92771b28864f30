// Copyright 2026 The Foreman Authors
// SPDX-License-Identifier: Apache-2.0

// Package hints extracts priority and repository hints from free-form
// instruction text.
//
// This is a stateless pattern match against a fixed vocabulary — not
// natural-language understanding. The transport layer applies a hint
// only when the corresponding request field was left unset, so an
// explicit field always wins. Extract never mutates anything and has
// no invariants beyond that.
package hints

import "regexp"

// Hints is the result of scanning an instruction. Zero values mean
// "no hint found": Priority 0 is outside the valid 1–5 range and an
// empty Repository never overrides anything.
type Hints struct {
	// Priority is the urgency suggested by the text, 1–5, or 0.
	Priority int

	// Repository is the repository name mentioned by the text, or "".
	Repository string
}

// Vocabulary, most urgent first. The first matching band wins, so
// "urgent but low priority" reads as urgent.
var priorityPatterns = []struct {
	pattern  *regexp.Regexp
	priority int
}{
	{regexp.MustCompile(`(?i)\b(urgent|critical|asap|emergency)\b`), 1},
	{regexp.MustCompile(`(?i)\bhigh[- ]priority\b`), 2},
	{regexp.MustCompile(`(?i)\blow[- ]priority\b`), 4},
	{regexp.MustCompile(`(?i)\b(backlog|whenever|someday|no rush)\b`), 5},
}

// Repository references: "in the janua repo" / "in the janua
// repository" / "repo: janua".
var repositoryPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bin the ([A-Za-z0-9._/-]+) repo(?:sitory)?\b`),
	regexp.MustCompile(`(?i)\brepo:\s*([A-Za-z0-9._/-]+)`),
}

// Extract scans instruction for vocabulary matches.
func Extract(instruction string) Hints {
	var found Hints
	for _, candidate := range priorityPatterns {
		if candidate.pattern.MatchString(instruction) {
			found.Priority = candidate.priority
			break
		}
	}
	for _, pattern := range repositoryPatterns {
		if match := pattern.FindStringSubmatch(instruction); match != nil {
			found.Repository = match[1]
			break
		}
	}
	return found
}
