// Package main is the entry point for the ddb binary: a single
// "serve" subcommand that assembles the coordinator's component graph
// (see internal/supervisor) and runs it until interrupted.
//
// Dependencies are assembled by hand in wire.go rather than generated
// by Wire — see that file's doc comment.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// version is injected at build time via -ldflags
// (e.g. -ldflags "-X main.version=v1.2.3").
var version = "devel"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	rootCmd, err := wireCmd()
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	return rootCmd.ExecuteContext(ctx)
}

func newRootCmd() *cobra.Command {
	return &cobra.Command{
		Use:           "ddb",
		Short:         "DDB: a distributed debugger coordinator for multi-process and migrating-object backends.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}
