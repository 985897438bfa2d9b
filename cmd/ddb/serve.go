package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/USC-NSL/DDB/internal/config"
	"github.com/USC-NSL/DDB/internal/supervisor"
)

// newServeCmd builds the "ddb serve" subcommand: load configuration,
// bind its options as flags, and on execution assemble and run the
// supervisor until the context (wired to SIGINT/SIGTERM in main) is
// cancelled.
func newServeCmd() (*cobra.Command, error) {
	conf, err := config.New()
	if err != nil {
		return nil, err
	}

	c := &cobra.Command{
		Use:   "serve",
		Short: "Run the coordinator: HTTP read surface, tunnel server, discovery, and command dispatch",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := slog.Default()

			sv, err := supervisor.New(conf, log)
			if err != nil {
				return err
			}
			return sv.Run(cmd.Context())
		},
	}

	if err := conf.BindFlags(c.Flags(), config.Options); err != nil {
		return nil, err
	}

	return c, nil
}
