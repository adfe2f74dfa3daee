package cli

import (
	"github.com/spf13/cobra"
)

func serveCmd(env Env) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and MCP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, closeDeps, err := env.open(cmd)
			if err != nil {
				return err
			}
			defer closeDeps()
			return a.Run(cmd.Context())
		},
	}
}

func workerCmd(env Env) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Consume ingest.document and ingest.chunk messages from nsq",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, closeDeps, err := env.open(cmd)
			if err != nil {
				return err
			}
			defer closeDeps()
			return a.RunWorkers(cmd.Context())
		},
	}
}
