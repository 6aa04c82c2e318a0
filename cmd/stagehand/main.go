// Package main is the entry point for the stagehand CLI.
//
// stagehand drives a declarative deployment plan across a fixed set of
// nodes, checkpointing after every stage so that runs interrupted by
// reboots or failures resume where they stopped.
//
// Commands: run, step, status, validate, history, nodes, cleanup, unlock.
//
// For detailed usage information, run:
//
//	stagehand --help
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/imamik/stagehand/cmd/stagehand/commands"
	"github.com/imamik/stagehand/cmd/stagehand/handlers"
)

// Version information set by goreleaser at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.SetVersionInfo(version, commit, date)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := commands.Root().ExecuteContext(ctx)
	stop()

	if err != nil {
		var exitErr *handlers.ExitError
		if !errors.As(err, &exitErr) || exitErr.Err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(handlers.ExitCode(err))
	}
}
