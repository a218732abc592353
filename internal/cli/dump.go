package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/trdsync/internal/convert"
)

// NewDumpCommand creates the dump command.
func NewDumpCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dump [file]",
		Short: "Print the REDCap structure the sync needs",
		Long: `Print every instrument and field the sync writes, so the REDCap project can
be configured to match. The output is written to file when one is given.

Examples:
  trdsync dump
  trdsync dump structure.txt
  trdsync dump --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			var path string
			if len(args) == 1 {
				path = args[0]
			}
			return runDump(rootOpts, path, cmd)
		},
	}
	return cmd
}

func runDump(opts *RootOptions, path string, cmd *cobra.Command) error {
	manifest := convert.BuildManifest()

	w := cmd.OutOrStdout()
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to create output file", err)
		}
		defer f.Close()
		w = f
	}

	out := NewOutputFormatter(opts, w, cmd.ErrOrStderr())
	var dumpErr error
	err := out.Success(manifest, func(w io.Writer) {
		dumpErr = manifest.Dump(w)
	})
	if err == nil {
		err = dumpErr
	}
	if err != nil {
		return fmt.Errorf("failed to write structure: %w", err)
	}
	if path != "" {
		out.VerboseLog("wrote %d instruments to %s", len(manifest), path)
	}
	return nil
}
