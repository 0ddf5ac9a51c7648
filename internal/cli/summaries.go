package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"convwin/internal/conversation"
)

// NewSummariesCmd creates the summaries command.
func NewSummariesCmd() *cobra.Command {
	var (
		limit      int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "summaries <thread-id>",
		Short: "List journaled summary records of a thread",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx := GetCLIContext(cmd)
			if cliCtx == nil {
				return fmt.Errorf("CLI context not initialized")
			}

			db, err := cliCtx.Journal()
			if err != nil {
				return fmt.Errorf("open journal: %w", err)
			}

			records, err := db.ListSummaries(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				if records == nil {
					records = []conversation.SummaryRecord{}
				}
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(records)
			}

			if len(records) == 0 {
				fmt.Fprintf(out, "No summaries for thread %s\n", args[0])
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "SEQ\tCREATED\tEVICTED\tWINDOW\tOBS\tSTATUS\tFIRST OBSERVATION")
			for _, rec := range records {
				fmt.Fprintf(w, "%d\t%s\t%d\t%d->%d\t%d\t%s\t%s\n",
					rec.Sequence,
					rec.CreatedAt.Local().Format("2006-01-02 15:04:05"),
					rec.EvictedCount,
					rec.WindowBefore, rec.WindowAfter,
					len(rec.Observations),
					recordStatus(rec),
					firstObservation(rec),
				)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "l", 0, "show only the newest N records")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	return cmd
}

func recordStatus(rec conversation.SummaryRecord) string {
	switch {
	case rec.Degraded:
		return "degraded"
	case rec.Placeholder:
		return "placeholder"
	default:
		return "ok"
	}
}

func firstObservation(rec conversation.SummaryRecord) string {
	if len(rec.Observations) == 0 {
		return "-"
	}
	s := rec.Observations[0].String()
	s = strings.ReplaceAll(s, "\n", " ")
	if r := []rune(s); len(r) > 60 {
		s = string(r[:57]) + "..."
	}
	return s
}
