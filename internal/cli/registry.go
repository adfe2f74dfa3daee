package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func jobsCmd(env Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and retry chunks that failed indexing",
	}

	var asJSON bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List failed jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, closeDeps, err := env.open(cmd)
			if err != nil {
				return err
			}
			defer closeDeps()
			if a.Jobs == nil {
				return ErrRegistryDisabled
			}

			jobs, err := a.Jobs.List(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list jobs: %w", err)
			}
			if asJSON {
				return printJSON(cmd, jobs)
			}
			if len(jobs) == 0 {
				cmd.Println("No failed jobs.")
				return nil
			}
			for _, j := range jobs {
				cmd.Printf("  %s %s %s\n", heading(j.ID), j.DocumentID, faint(j.CreatedAt.Format("2006-01-02 15:04:05")))
				cmd.Printf("      %s\n", failure(snippet(j.Error, 160)))
			}
			cmd.Printf("Total: %d jobs\n", len(jobs))
			return nil
		},
	}
	list.Flags().BoolVar(&asJSON, "json", false, "output as JSON")

	retry := &cobra.Command{
		Use:   "retry <job-id>",
		Short: "Re-publish a failed chunk and delete the job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, closeDeps, err := env.open(cmd)
			if err != nil {
				return err
			}
			defer closeDeps()
			if a.Jobs == nil {
				return ErrRegistryDisabled
			}

			if err := a.Jobs.Retry(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("failed to retry job %s: %w", args[0], err)
			}
			cmd.Printf("%s job %s\n", success("Retried"), args[0])
			return nil
		},
	}

	cmd.AddCommand(list, retry)
	return cmd
}

func documentsCmd(env Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "documents",
		Short: "Manage registered documents",
	}

	var asJSON bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List ingested documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, closeDeps, err := env.open(cmd)
			if err != nil {
				return err
			}
			defer closeDeps()
			if a.Documents == nil {
				return ErrRegistryDisabled
			}

			docs, err := a.Documents.List(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list documents: %w", err)
			}
			if asJSON {
				return printJSON(cmd, docs)
			}
			if len(docs) == 0 {
				cmd.Println("No documents found.")
				return nil
			}
			for _, d := range docs {
				cmd.Printf("  %s %s %d chunks", heading(d.ID), d.Status, d.ChunkCount)
				if d.FailedChunks > 0 {
					cmd.Printf(", %s", failure(fmt.Sprintf("%d failed", d.FailedChunks)))
				}
				cmd.Println()
			}
			cmd.Printf("Total: %d documents\n", len(docs))
			return nil
		},
	}
	list.Flags().BoolVar(&asJSON, "json", false, "output as JSON")

	del := &cobra.Command{
		Use:   "delete <document-id>",
		Short: "Remove a document and its vectors",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, closeDeps, err := env.open(cmd)
			if err != nil {
				return err
			}
			defer closeDeps()
			if a.Documents == nil {
				return ErrRegistryDisabled
			}

			if err := a.Documents.Delete(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("failed to delete document %s: %w", args[0], err)
			}
			cmd.Printf("%s %s\n", success("Deleted"), args[0])
			return nil
		},
	}

	cmd.AddCommand(list, del)
	return cmd
}
