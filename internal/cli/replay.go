package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"convwin/internal/conversation"
	"convwin/internal/window"
)

// NewReplayCmd creates the replay command.
func NewReplayCmd() *cobra.Command {
	var (
		summarizerKind string
		maxWindow      int
		minBatch       int
		outPath        string
		journal        bool
	)

	cmd := &cobra.Command{
		Use:   "replay <state.json|->",
		Short: "Run one summarization cycle over a saved thread state",
		Long: `Read a thread state (messages plus metadata) as JSON, run one
summarization cycle and print the rewritten state.

Use "-" to read the state from stdin.`,
		Example: `  # Compress a transcript without calling a model
  convwin replay thread.json --summarizer static

  # Tighter window, journal the record, write the result to a file
  convwin replay thread.json --max-window 10 --journal --out compacted.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx := GetCLIContext(cmd)
			if cliCtx == nil {
				return fmt.Errorf("CLI context not initialized")
			}

			state, err := readState(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}

			kind := summarizerKind
			if kind == "" {
				kind = cliCtx.Config.Summarizer.Kind
			}
			sum, err := buildSummarizer(kind, cliCtx.Config, cliCtx.Log())
			if err != nil {
				return err
			}

			wcfg := windowConfig(cliCtx.Config)
			if maxWindow > 0 {
				wcfg.MaxWindow = maxWindow
			}
			if minBatch > 0 {
				wcfg.MinimumBatch = minBatch
			}

			opts := []window.Option{window.WithLogger(cliCtx.Log())}
			if journal {
				db, err := cliCtx.Journal()
				if err != nil {
					return fmt.Errorf("open journal: %w", err)
				}
				opts = append(opts, window.WithJournal(db))
			}

			manager := window.New(wcfg, sum, opts...)
			outcome, err := manager.PerformSummarization(cmd.Context(), state)
			if err != nil {
				return err
			}

			if !cliCtx.Quiet {
				printOutcome(cmd.ErrOrStderr(), outcome)
			}
			if err := writeState(cmd.OutOrStdout(), outPath, state); err != nil {
				return err
			}
			if outcome.JournalErr != nil {
				return fmt.Errorf("journal summary record: %w", outcome.JournalErr)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&summarizerKind, "summarizer", "s", "", "summarizer to use: llm or static (default from config)")
	cmd.Flags().IntVar(&maxWindow, "max-window", 0, "override window.max_window")
	cmd.Flags().IntVar(&minBatch, "min-batch", 0, "override window.minimum_batch")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "write the resulting state to a file instead of stdout")
	cmd.Flags().BoolVar(&journal, "journal", false, "append the summary record to the journal database")

	return cmd
}

func readState(stdin io.Reader, path string) (*conversation.ThreadState, error) {
	var r io.Reader = stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open state: %w", err)
		}
		defer f.Close()
		r = f
	}

	state, err := conversation.DecodeState(r)
	if err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	return state, nil
}

func writeState(stdout io.Writer, path string, state *conversation.ThreadState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')

	if path == "" {
		_, err = stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func printOutcome(w io.Writer, o *window.Outcome) {
	if o.Skipped {
		fmt.Fprintf(w, "window within bound (%d messages), nothing to do\n", o.Before)
		return
	}
	fmt.Fprintf(w, "window %d -> %d messages, evicted %d", o.Before, o.After, o.Evicted)
	if o.ForceTrimmed > 0 {
		fmt.Fprintf(w, " (%d force-trimmed)", o.ForceTrimmed)
	}
	fmt.Fprintf(w, ", %d observations, ~%d -> ~%d tokens", o.Observations, o.TokensBefore, o.TokensAfter)
	if o.Degraded {
		fmt.Fprint(w, " [degraded]")
	}
	fmt.Fprintln(w)
}
