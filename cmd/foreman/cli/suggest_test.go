// Copyright 2026 The Foreman Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"testing"

	"github.com/spf13/pflag"
)

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"", "abc", 3},
		{"abc", "", 3},
		{"abc", "abc", 0},
		{"abc", "abd", 1}, // substitution
		{"abc", "ab", 1},  // deletion
		{"ab", "abc", 1},  // insertion
		{"abc", "bac", 2}, // transposition counts as two edits
		{"kitten", "sitting", 3},
		{"submit", "submt", 1},
		{"workers", "wokers", 1},
		{"cancel", "cancle", 2},
	}

	for _, test := range tests {
		got := levenshtein(test.a, test.b)
		if got != test.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d", test.a, test.b, got, test.want)
		}
		if reverse := levenshtein(test.b, test.a); reverse != got {
			t.Errorf("levenshtein(%q, %q) = %d, but reverse = %d", test.a, test.b, got, reverse)
		}
	}
}

func TestSuggestCommand(t *testing.T) {
	commands := []*Command{
		{Name: "submit"},
		{Name: "cancel"},
		{Name: "workers"},
		{Name: "version"},
		{Name: "list"},
	}

	tests := []struct {
		input string
		want  string
	}{
		{"submt", "submit"},     // dropped letter
		{"cancle", "cancel"},    // transposition
		{"workerss", "workers"}, // doubled letter
		{"vrsion", "version"},
		{"lst", "list"},
		{"zzzzzzzzz", ""}, // nothing close
		{"w", ""},         // too short to match anything well
	}

	for _, test := range tests {
		t.Run(test.input, func(t *testing.T) {
			got := suggestCommand(test.input, commands)
			if got != test.want {
				t.Errorf("suggestCommand(%q) = %q, want %q", test.input, got, test.want)
			}
		})
	}
}

func TestSuggestFlag(t *testing.T) {
	makeFlagSet := func() *pflag.FlagSet {
		flagSet := pflag.NewFlagSet("test", pflag.ContinueOnError)
		flagSet.String("server", "", "")
		flagSet.String("token", "", "")
		flagSet.StringP("container", "c", "", "")
		flagSet.Int("tail", 0, "")
		flagSet.Bool("json", false, "")
		return flagSet
	}

	tests := []struct {
		name string
		args []string
		want string
	}{
		{
			name: "double dash typo",
			args: []string{"--sever"},
			want: "--server",
		},
		{
			name: "single dash typo",
			args: []string{"-serverr"},
			want: "--server",
		},
		{
			name: "typo with value",
			args: []string{"--tkoen=abc"},
			want: "--token",
		},
		{
			name: "defined shorthand is not flagged",
			args: []string{"-c", "--tial"},
			want: "--tail",
		},
		{
			name: "nothing close",
			args: []string{"--zzzzzzzzz"},
			want: "",
		},
		{
			name: "no flags at all",
			args: []string{"tsk-01abc"},
			want: "",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got := suggestFlag(test.args, makeFlagSet())
			if got != test.want {
				t.Errorf("suggestFlag(%v) = %q, want %q", test.args, got, test.want)
			}
		})
	}
}
