// Package main is the entry point for the fmrepl CLI.
//
// fmrepl answers feature-model questions (configuration counts and
// satisfiability) by forwarding line-oriented commands to flamapy. All
// functionality lives in the internal/cli package.
//
// Build-time variables (version, commit, date) are injected via ldflags.
package main

import (
	"github.com/shinji-kodama/fmrepl/internal/cli"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cli.Version = version
	cli.Commit = commit
	cli.Date = date

	rootCmd := cli.NewRootCommand()
	cli.Execute(rootCmd)
}
