package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"ragpipe/internal/app"
	"ragpipe/internal/middleware"
)

func ingestCmd(env Env) *cobra.Command {
	var (
		force   bool
		strict  bool
		queue   bool
		pattern string
	)
	cmd := &cobra.Command{
		Use:   "ingest <dir>",
		Short: "Convert, segment, summarize and index every document under dir",
		Long: `Ingest walks dir for files matching the source pattern and indexes them.

Unchanged documents are skipped when the document registry is enabled, unless
--force is given. With --queue one message per file is published to nsq and
the worker command does the indexing.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, closeDeps, err := env.open(cmd)
			if err != nil {
				return err
			}
			defer closeDeps()

			ctx := middleware.EnsureCorrelationID(cmd.Context())
			if queue {
				if !a.Config.QueueEnabled() {
					return app.ErrQueueDisabled
				}
				n, err := a.Enqueue(ctx, args[0], pattern, force)
				if err != nil {
					return err
				}
				cmd.Printf("%s %d documents\n", success("Queued"), n)
				return nil
			}

			report, err := a.Ingest(ctx, args[0], pattern, force)
			if err != nil {
				return err
			}
			printReport(cmd, report)

			switch {
			case report.AllFailed():
				return &ExitCodeError{Code: ExitIngestFails, Err: errAllFailed(report.Documents)}
			case strict && report.HasFailures():
				return &ExitCodeError{Code: ExitIngestFails, Err: errors.New("ingestion finished with failures")}
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "re-index documents whose content is unchanged")
	cmd.Flags().BoolVar(&strict, "strict", false, "exit non-zero when any document or chunk fails")
	cmd.Flags().BoolVar(&queue, "queue", false, "publish documents to nsq instead of indexing in-process")
	cmd.Flags().StringVarP(&pattern, "pattern", "p", "", "doublestar pattern of files to ingest (default SOURCE_PATTERN)")
	return cmd
}

func errAllFailed(n int) error {
	return fmt.Errorf("all %d documents failed", n)
}
