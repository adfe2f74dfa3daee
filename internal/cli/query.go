package cli

import (
	"bufio"
	"strings"

	"github.com/spf13/cobra"

	"ragpipe/internal/middleware"
)

func queryCmd(env Env) *cobra.Command {
	var (
		k        int
		search   bool
		asJSON   bool
		ingestTo string
	)
	cmd := &cobra.Command{
		Use:   "query <text>",
		Short: "Answer a question from the indexed documents",
		Long: `Query retrieves the chunks closest to the question and asks the completion
model to answer from them, citing chunk ids. --search prints the retrieved
chunks without generating an answer. --ingest indexes a directory first, which
is how the in-memory vector store is used from the command line.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, closeDeps, err := env.open(cmd)
			if err != nil {
				return err
			}
			defer closeDeps()

			ctx := middleware.EnsureCorrelationID(cmd.Context())
			if ingestTo != "" {
				report, err := a.Ingest(ctx, ingestTo, "", false)
				if err != nil {
					return err
				}
				if report.AllFailed() {
					printReport(cmd, report)
					return &ExitCodeError{Code: ExitIngestFails, Err: errAllFailed(report.Documents)}
				}
			}

			q := strings.Join(args, " ")
			if search {
				results, err := a.Retriever.Retrieve(ctx, q, k)
				if err != nil {
					return err
				}
				if asJSON {
					return printJSON(cmd, results)
				}
				printResults(cmd, results)
				return nil
			}

			ans, err := a.Orchestrator.Answer(ctx, q, k)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd, ans)
			}
			printAnswer(cmd, ans)
			return nil
		},
	}
	cmd.Flags().IntVarP(&k, "top-k", "k", 0, "number of chunks to retrieve (default RETRIEVAL_TOP_K)")
	cmd.Flags().BoolVar(&search, "search", false, "print retrieved chunks instead of an answer")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")
	cmd.Flags().StringVar(&ingestTo, "ingest", "", "ingest this directory before querying")
	return cmd
}

func chatCmd(env Env) *cobra.Command {
	var k int
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Ask questions interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, closeDeps, err := env.open(cmd)
			if err != nil {
				return err
			}
			defer closeDeps()

			cmd.Println(heading("ragpipe chat"))
			cmd.Println("Type a question and press Enter. Type 'exit' to quit.")
			cmd.Println()

			scanner := bufio.NewScanner(env.Stdin)
			for {
				cmd.Print(success("You: "))
				if !scanner.Scan() {
					break
				}
				q := strings.TrimSpace(scanner.Text())
				if q == "" {
					continue
				}
				if strings.EqualFold(q, "exit") {
					break
				}

				ctx := middleware.EnsureCorrelationID(cmd.Context())
				ans, err := a.Orchestrator.Answer(ctx, q, k)
				if err != nil {
					cmd.Printf("%s %v\n\n", failure("Error:"), err)
					continue
				}
				printAnswer(cmd, ans)
				cmd.Println()
			}
			return scanner.Err()
		},
	}
	cmd.Flags().IntVarP(&k, "top-k", "k", 0, "number of chunks to retrieve (default RETRIEVAL_TOP_K)")
	return cmd
}
