package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/trdsync/internal/diag"
	"github.com/roach88/trdsync/internal/export"
	"github.com/roach88/trdsync/internal/reconcile"
	"github.com/roach88/trdsync/internal/registry"
	"github.com/roach88/trdsync/internal/snapshot"
)

// CompareResult is the output of the compare command.
type CompareResult struct {
	Participants []reconcile.NewParticipant `json:"participants"`
	Responses    []reconcile.NewResponse    `json:"responses"`
	Diagnostics  []diag.Entry               `json:"diagnostics"`
}

// NewCompareCommand creates the compare command.
func NewCompareCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compare <export-dir> <snapshot.json>",
		Short: "Compare an unpacked export to a saved REDCap snapshot",
		Long: `Compare an unpacked True Colours export directory to REDCap records saved as
a JSON array, and print what a run would upload. Nothing is sent anywhere.

Exit codes:
  0 - Comparison completed
  2 - Command error (unreadable export or snapshot)

Examples:
  trdsync compare ./export records.json
  trdsync compare ./export records.json --format json`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompare(rootOpts, args[0], args[1], cmd)
		},
	}
	return cmd
}

func runCompare(opts *RootOptions, exportDir, snapshotPath string, cmd *cobra.Command) error {
	out := NewOutputFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	var logOut io.Writer = io.Discard
	if opts.Verbose {
		logOut = out.GetErrWriter()
	}
	sink := diag.New(slog.New(slog.NewTextHandler(logOut, nil)))

	exp, err := export.Parse(exportDir, sink)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read export", err)
	}
	records, err := loadRecords(snapshotPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read snapshot", err)
	}
	out.VerboseLog("loaded %d registry records from %s", len(records), snapshotPath)

	delta, err := reconcile.New(sink).Reconcile(exp, snapshot.Build(records, sink))
	if err != nil {
		return WrapExitError(ExitFailure, "comparison failed", err)
	}

	result := CompareResult{
		Participants: delta.Participants,
		Responses:    delta.Responses,
		Diagnostics:  sink.Entries(),
	}
	if result.Participants == nil {
		result.Participants = []reconcile.NewParticipant{}
	}
	if result.Responses == nil {
		result.Responses = []reconcile.NewResponse{}
	}
	if result.Diagnostics == nil {
		result.Diagnostics = []diag.Entry{}
	}
	return out.Success(result, func(w io.Writer) { writeCompareText(w, result) })
}

// loadRecords reads a JSON array of registry records.
func loadRecords(path string) ([]registry.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var records []registry.Record
	if err := dec.Decode(&records); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return records, nil
}

func writeCompareText(w io.Writer, r CompareResult) {
	fmt.Fprintf(w, "%d new participants; %d new responses.\n", len(r.Participants), len(r.Responses))
	for _, p := range r.Participants {
		fmt.Fprintf(w, "  participant %s\n", p.ParticipantID)
	}
	for _, resp := range r.Responses {
		instance := "-"
		if resp.Repeat {
			instance = fmt.Sprintf("%d", resp.Instance)
		}
		fmt.Fprintf(w, "  response %s  %-8s instance %s  study %s\n", resp.ResponseID, resp.Instrument, instance, resp.Ref)
	}
	if len(r.Diagnostics) > 0 {
		fmt.Fprintf(w, "%d diagnostics:\n", len(r.Diagnostics))
		for _, e := range r.Diagnostics {
			fmt.Fprintf(w, "  %s\n", e)
		}
	}
}
