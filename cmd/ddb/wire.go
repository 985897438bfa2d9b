// This file documents the dependency graph the way the teacher's own
// wire.go did, but is not processed by Wire's code generator: every
// provider here takes no external input besides what's already
// resolvable at this layer (config.New loads its own sources), so the
// graph is small enough to assemble by hand in wireCmd below rather
// than carry a generated wire_gen.go with nothing left for Wire to
// infer.
package main

import (
	"github.com/spf13/cobra"
)

// wireCmd assembles the root command and its "serve" subcommand.
func wireCmd() (*cobra.Command, error) {
	root := newRootCmd()

	serveCmd, err := newServeCmd()
	if err != nil {
		return nil, err
	}

	root.AddCommand(serveCmd)
	return root, nil
}
