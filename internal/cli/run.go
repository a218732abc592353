package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/trdsync/internal/config"
	"github.com/roach88/trdsync/internal/convert"
	"github.com/roach88/trdsync/internal/diag"
	"github.com/roach88/trdsync/internal/export"
	"github.com/roach88/trdsync/internal/logging"
	"github.com/roach88/trdsync/internal/notify"
	"github.com/roach88/trdsync/internal/reconcile"
	"github.com/roach88/trdsync/internal/redcap"
	"github.com/roach88/trdsync/internal/registry"
	"github.com/roach88/trdsync/internal/snapshot"
	"github.com/roach88/trdsync/internal/store"
	"github.com/roach88/trdsync/internal/upload"
)

// Stage labels printed by the run command.
const (
	StageConfig   = "Checking configuration"
	StageUnpack   = "Unpacking True Colours archive"
	StageDownload = "Downloading data from REDCap"
	StageCompare  = "Comparing True Colours data to REDCap data"
	StageEmail    = "Sending email summary"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	RegistryURL   string
	RegistryToken string
	Archive       string
	MailTo        string
	MailSecret    string
	MailDomain    string
	MailUsername  string
	DryRun        bool
	LogDir        string
	LogLevel      string
	StateDB       string

	now         func() time.Time
	newRegistry func(cfg config.RegistryConfig, logger *slog.Logger) registry.Service
	newSender   func(cfg config.MailConfig) notify.Sender
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return newRunCommand(&RunOptions{
		RootOptions: rootOpts,
		now:         time.Now,
		newRegistry: func(cfg config.RegistryConfig, logger *slog.Logger) registry.Service {
			return redcap.New(cfg.URL, cfg.Token, cfg.Timeout, redcap.WithLogger(logger))
		},
		newSender: func(cfg config.MailConfig) notify.Sender {
			return notify.NewSMTPSender(cfg)
		},
	})
}

func newRunCommand(opts *RunOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Sync a True Colours export into REDCap",
		Long: `Run the sync.

Running the sync has several steps:
  1. Unpack the True Colours archive.
  2. Download existing REDCap data.
  3. Compare the True Colours data to the REDCap data and upload anything new.
  4. Send an email summary of the changes (optional).

All flags can be supplied as environment variables.

Exit codes:
  0 - Sync completed
  1 - A stage failed
  2 - Command error (unreadable configuration, log directory, etc.)

Examples:
  trdsync run --tc-archive export.zip
  trdsync run --dry-run --log-dir ./logs`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.RegistryURL, "rc-url", "", "REDCap API URL (TRD_REDCAP_URL)")
	f.StringVar(&opts.RegistryToken, "rc-token", "", "REDCap API token (TRD_REDCAP_TOKEN)")
	f.StringVar(&opts.Archive, "tc-archive", "", "True Colours export .zip file (TRD_TRUE_COLOURS_ARCHIVE)")
	f.StringVar(&opts.MailTo, "mailto", "", "summary recipients, comma-separated; no email when empty (TRD_MAILTO_ADDRESS)")
	f.StringVar(&opts.MailSecret, "mg-secret", "", "Mailgun SMTP password (TRD_MAILGUN_SECRET)")
	f.StringVar(&opts.MailDomain, "mg-domain", "", "Mailgun sending domain (TRD_MAILGUN_DOMAIN)")
	f.StringVar(&opts.MailUsername, "mg-username", "", "Mailgun SMTP username (TRD_MAILGUN_USERNAME)")
	f.BoolVar(&opts.DryRun, "dry-run", false, "don't upload anything to REDCap")
	f.StringVar(&opts.LogDir, "log-dir", "", "directory for the run log file (TRD_LOG_DIR)")
	f.StringVar(&opts.LogLevel, "log-level", "", "log level: debug, info, warn, error (TRD_LOG_LEVEL)")
	f.StringVar(&opts.StateDB, "state-db", "", "SQLite run ledger; disabled when empty (TRD_STATE_DB)")

	return cmd
}

// applyFlags overrides cfg with every flag given on the command line.
func (o *RunOptions) applyFlags(cmd *cobra.Command, cfg *config.Config) {
	overrides := []struct {
		flag  string
		dst   *string
		value string
	}{
		{"rc-url", &cfg.Registry.URL, o.RegistryURL},
		{"rc-token", &cfg.Registry.Token, o.RegistryToken},
		{"tc-archive", &cfg.Export.Archive, o.Archive},
		{"mailto", &cfg.Mail.To, o.MailTo},
		{"mg-secret", &cfg.Mail.Secret, o.MailSecret},
		{"mg-domain", &cfg.Mail.Domain, o.MailDomain},
		{"mg-username", &cfg.Mail.Username, o.MailUsername},
		{"log-dir", &cfg.Logging.Dir, o.LogDir},
		{"log-level", &cfg.Logging.Level, o.LogLevel},
		{"state-db", &cfg.State.DB, o.StateDB},
	}
	for _, ov := range overrides {
		if cmd.Flags().Changed(ov.flag) {
			*ov.dst = ov.value
		}
	}
}

// syncRun carries the state of one run across its stages.
type syncRun struct {
	opts    *RunOptions
	cfg     *config.Config
	out     io.Writer
	errOut  io.Writer
	logger  *slog.Logger
	counter *logging.CountingHandler
	sink    *diag.Sink
	runLog  *logging.RunLog

	started time.Time
	svc     registry.Service
	exp     *export.Export
	index   *snapshot.Index
	report  *upload.Report
}

func runSync(cmd *cobra.Command, opts *RunOptions) error {
	out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()
	started := opts.now()

	cfg, err := config.Load()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load configuration", err)
	}
	opts.applyFlags(cmd, cfg)

	runLog, err := logging.OpenRunLog(cfg.Logging.Dir, started)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open run log", err)
	}
	defer runLog.Close()

	var logOut io.Writer = runLog
	if opts.Verbose {
		logOut = runLog.Tee(errOut)
	}
	logger, counter := logging.Setup(logOut, cfg.Logging.Level, cfg.Logging.Format)

	r := &syncRun{
		opts:    opts,
		cfg:     cfg,
		out:     out,
		errOut:  errOut,
		logger:  logger,
		counter: counter,
		sink:    diag.New(logger),
		runLog:  runLog,
		started: started,
	}

	fmt.Fprintln(out, "Running TRD CLI")
	logger.Info("run started", "dry_run", opts.DryRun, "log_file", runLog.Path)
	logger.Debug("configuration", "config", cfg.String())

	runErr := r.execute(cmd.Context())
	r.record(cmd.Context(), runErr)
	if runErr != nil {
		return WrapExitError(ExitFailure, "run failed", runErr)
	}
	return nil
}

func (r *syncRun) execute(ctx context.Context) error {
	stages := []struct {
		label string
		fn    func(context.Context) error
	}{
		{StageConfig, r.checkConfig},
		{StageUnpack, r.unpack},
		{StageDownload, r.download},
		{StageCompare, r.compare},
	}
	for _, s := range stages {
		if err := r.stage(ctx, s.label, s.fn); err != nil {
			return err
		}
	}

	if !r.cfg.Mail.Enabled() {
		return nil
	}
	return r.stage(ctx, StageEmail, r.email)
}

// stage prints the label, runs fn and prints its outcome.
func (r *syncRun) stage(ctx context.Context, label string, fn func(context.Context) error) error {
	fmt.Fprint(r.out, label)
	if err := fn(ctx); err != nil {
		fmt.Fprintln(r.errOut, " - ERROR")
		r.logger.Error("stage failed", "stage", label, "error", err)
		return &StageError{Stage: label, Err: err}
	}
	return nil
}

func (r *syncRun) ok() {
	fmt.Fprintln(r.out, " - OK")
}

func (r *syncRun) checkConfig(ctx context.Context) error {
	if err := r.cfg.Validate(); err != nil {
		return err
	}
	r.ok()
	return nil
}

func (r *syncRun) unpack(ctx context.Context) error {
	exp, err := export.ParseArchive(r.cfg.Export.Archive, func(dir string) (*export.Export, error) {
		return export.Parse(dir, r.sink)
	})
	if err != nil {
		return err
	}
	r.exp = exp
	r.ok()
	return nil
}

func (r *syncRun) download(ctx context.Context) error {
	r.svc = r.opts.newRegistry(r.cfg.Registry, r.logger)

	fields := snapshot.Fields()
	records, err := r.svc.ExportRecords(ctx, fields)
	if err != nil {
		return err
	}
	r.logger.Debug("downloaded registry records", "count", len(records))

	switch err := convert.BuildManifest().Restrict(fields).Validate(records); {
	case errors.Is(err, convert.ErrEmptyRegistry):
		r.logger.Info("registry is empty; structure check skipped")
	case err != nil:
		r.logger.Warn("registry structure check failed", "error", err)
	}

	r.index = snapshot.Build(records, r.sink)
	r.logger.Debug("indexed registry participants", "count", r.index.Len())
	r.ok()
	return nil
}

func (r *syncRun) compare(ctx context.Context) error {
	delta, err := reconcile.New(r.sink).Reconcile(r.exp, r.index)
	if err != nil {
		return err
	}
	if err := delta.Check(); err != nil {
		return err
	}

	uploader := upload.New(r.svc, r.sink, upload.WithDryRun(r.opts.DryRun), upload.WithLogger(r.logger))
	report, err := uploader.Upload(ctx, delta)
	if err != nil {
		return err
	}
	r.report = report

	r.ok()
	fmt.Fprintf(r.out, "\t%d new participants; %d new responses.\n", report.NewParticipants, report.NewResponses)
	if short := report.NewParticipants - report.ImportedParticipants; !report.DryRun && short > 0 {
		fmt.Fprintf(r.errOut, "\t%d participants failed to import.\n", short)
	}
	if short := report.NewResponses - report.ImportedResponses; !report.DryRun && short > 0 {
		fmt.Fprintf(r.errOut, "\t%d responses failed to import.\n", short)
	}
	return nil
}

func (r *syncRun) email(ctx context.Context) error {
	lines, err := r.runLog.Lines()
	if err != nil {
		return err
	}
	summary := notify.NewSummary(r.report, r.counter.Warnings(), r.counter.Errors(), lines)

	n := notify.New(r.opts.newSender(r.cfg.Mail), r.cfg.Mail.To, r.logger)
	sent, err := n.Notify(summary)
	if err != nil {
		return err
	}
	if !sent {
		fmt.Fprintln(r.out, " - SKIPPED: No changes detected.")
		return nil
	}
	r.ok()
	return nil
}

// record writes the run to the ledger when one is configured. Ledger
// failures are logged and never fail the run.
func (r *syncRun) record(ctx context.Context, runErr error) {
	if r.cfg.State.DB == "" {
		return
	}
	st, err := store.Open(r.cfg.State.DB)
	if err != nil {
		r.logger.Warn("run ledger unavailable", "path", r.cfg.State.DB, "error", err)
		return
	}
	defer st.Close()

	run := store.Run{
		ID:       st.NewRunID(),
		Started:  r.started,
		Finished: r.opts.now(),
		Status:   store.StatusSucceeded,
		DryRun:   r.opts.DryRun,
		Warnings: r.counter.Warnings(),
		Errors:   r.counter.Errors(),
	}
	var stageErr *StageError
	if errors.As(runErr, &stageErr) {
		run.Status = store.StatusFailed
		run.FailedStage = stageErr.Stage
		run.Failure = stageErr.Err.Error()
	}
	if r.report != nil {
		run.NewParticipants = r.report.NewParticipants
		run.NewResponses = r.report.NewResponses
		run.Attempted = r.report.Attempted
		run.Imported = r.report.Imported
	}

	if err := st.RecordRun(ctx, run, r.sink.Entries()); err != nil {
		r.logger.Warn("failed to record run", "run_id", run.ID, "error", err)
		return
	}
	r.logger.Info("run recorded", "run_id", run.ID, "status", run.Status)
}
