package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"ragpipe/internal/domain"
	"ragpipe/internal/ingest"
)

var (
	heading = color.New(color.FgCyan, color.Bold).SprintFunc()
	success = color.New(color.FgGreen).SprintFunc()
	warning = color.New(color.FgYellow).SprintFunc()
	failure = color.New(color.FgRed, color.Bold).SprintFunc()
	faint   = color.New(color.Faint).SprintFunc()
)

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func printAnswer(cmd *cobra.Command, ans domain.Answer) {
	switch {
	case ans.OutOfScope:
		cmd.Println(warning(ans.Text))
		return
	case ans.NoContext:
		cmd.Println(warning(ans.Text))
		return
	}
	cmd.Println(ans.Text)
	if len(ans.ChunkIDs) == 0 {
		return
	}
	cmd.Println()
	cmd.Println(heading("Sources:"))
	for i, id := range ans.ChunkIDs {
		cmd.Printf("  [%d] %s\n", i+1, id)
	}
}

func printResults(cmd *cobra.Command, results domain.RetrievalResult) {
	if len(results) == 0 {
		cmd.Println("No results found.")
		return
	}
	for i, r := range results {
		cmd.Printf("  [%d] %s %s\n", i+1, heading(r.Chunk.ID), faint(fmt.Sprintf("(%.3f, %s)", r.Score, r.Kind)))
		cmd.Printf("      %s\n", snippet(r.Chunk.Text, 160))
	}
}

func printReport(cmd *cobra.Command, r *ingest.Report) {
	cmd.Println(heading("Ingestion report"))
	cmd.Printf("  Documents: %d (%s, %s, %s, %s)\n", r.Documents,
		success(fmt.Sprintf("%d ok", r.DocumentsOK)),
		warning(fmt.Sprintf("%d partial", r.DocumentsPartial)),
		failure(fmt.Sprintf("%d failed", r.DocumentsFailed)),
		faint(fmt.Sprintf("%d unchanged", r.DocumentsSkipped)),
	)
	cmd.Printf("  Chunks:    %s, %s\n",
		success(fmt.Sprintf("%d indexed", r.ChunksIndexed)),
		failure(fmt.Sprintf("%d failed", r.ChunksFailed)),
	)
	if r.SummariesFailed > 0 {
		cmd.Printf("  Summaries: %s\n", warning(fmt.Sprintf("%d failed", r.SummariesFailed)))
	}
	cmd.Printf("  Duration:  %s\n", r.Duration.Round(time.Millisecond))
	for _, err := range r.Errors {
		cmd.Printf("  %s %v\n", failure("error:"), err)
	}
}

func snippet(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
