package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/trdsync/internal/config"
	"github.com/roach88/trdsync/internal/diag"
	"github.com/roach88/trdsync/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	DB    string
	Limit int
	RunID string
}

// RunDetail is a ledger run with its diagnostics.
type RunDetail struct {
	store.Run
	Diagnostics []diag.Entry `json:"diagnostics"`
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded runs",
		Long: `List the runs recorded in the run ledger, newest first, or show one run
with its diagnostics.

Examples:
  trdsync history --db state.db
  trdsync history --limit 5 --format json
  trdsync history --run 01931c2e-...`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.DB, "db", "", "run ledger database (TRD_STATE_DB)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "maximum number of runs to list")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "show a single run and its diagnostics")

	return cmd
}

func runHistory(opts *HistoryOptions, cmd *cobra.Command) error {
	out := NewOutputFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	path := opts.DB
	if path == "" {
		cfg, err := config.Load()
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to load configuration", err)
		}
		path = cfg.State.DB
	}
	if path == "" {
		return NewExitError(ExitCommandError, "no run ledger configured (use --db or TRD_STATE_DB)")
	}
	if _, err := os.Stat(path); err != nil {
		return WrapExitError(ExitCommandError, "run ledger not found", err)
	}
	if opts.Limit <= 0 {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid limit %d: must be positive", opts.Limit))
	}

	st, err := store.Open(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open run ledger", err)
	}
	defer st.Close()

	ctx := cmd.Context()
	if opts.RunID != "" {
		run, err := st.GetRun(ctx, opts.RunID)
		if errors.Is(err, store.ErrRunNotFound) {
			if out.JSON() {
				_ = out.Error(CodeNotFound, err.Error(), map[string]string{"run_id": opts.RunID})
			}
			return WrapExitError(ExitFailure, "no such run", err)
		}
		if err != nil {
			return err
		}
		entries, err := st.Diagnostics(ctx, run.ID)
		if err != nil {
			return err
		}
		detail := RunDetail{Run: run, Diagnostics: entries}
		if detail.Diagnostics == nil {
			detail.Diagnostics = []diag.Entry{}
		}
		return out.Success(detail, func(w io.Writer) { writeRunDetail(w, detail) })
	}

	runs, err := st.ListRuns(ctx, opts.Limit)
	if err != nil {
		return err
	}
	return out.Success(runs, func(w io.Writer) { writeRunTable(w, runs) })
}

func writeRunTable(w io.Writer, runs []store.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tSTATUS\tPARTICIPANTS\tRESPONSES\tIMPORTED\tWARNINGS\tERRORS\tID")
	for _, r := range runs {
		status := string(r.Status)
		if r.DryRun {
			status += " (dry run)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d/%d\t%d\t%d\t%s\n",
			r.Started.Local().Format(time.DateTime), status,
			r.NewParticipants, r.NewResponses, r.Imported, r.Attempted,
			r.Warnings, r.Errors, r.ID)
	}
	tw.Flush()
}

func writeRunDetail(w io.Writer, d RunDetail) {
	fmt.Fprintf(w, "Run %s\n", d.ID)
	fmt.Fprintf(w, "  Started:  %s\n", d.Started.Local().Format(time.DateTime))
	fmt.Fprintf(w, "  Duration: %s\n", d.Duration().Round(time.Millisecond))
	fmt.Fprintf(w, "  Status:   %s\n", d.Status)
	if d.FailedStage != "" {
		fmt.Fprintf(w, "  Failed:   %s: %s\n", d.FailedStage, d.Failure)
	}
	fmt.Fprintf(w, "  Dry run:  %t\n", d.DryRun)
	fmt.Fprintf(w, "  Changes:  %d new participants; %d new responses (%d/%d records imported)\n",
		d.NewParticipants, d.NewResponses, d.Imported, d.Attempted)
	fmt.Fprintf(w, "  Log:      %d errors, %d warnings\n", d.Errors, d.Warnings)
	for _, e := range d.Diagnostics {
		fmt.Fprintf(w, "  %s\n", e)
	}
}
