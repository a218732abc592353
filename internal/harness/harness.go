package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/trdsync/internal/diag"
	"github.com/roach88/trdsync/internal/reconcile"
	"github.com/roach88/trdsync/internal/registry"
	"github.com/roach88/trdsync/internal/snapshot"
	"github.com/roach88/trdsync/internal/testutil"
	"github.com/roach88/trdsync/internal/upload"
)

// Harness runs scenarios against an in-memory registry.
type Harness struct {
	registry *testutil.FakeRegistry
	clock    *testutil.DeterministicClock
	logger   *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario gets a fresh registry. A returned error means the pipeline
// itself failed; unmet expectations are reported on the result.
func Run(scenario *Scenario) (*Result, error) {
	h := &Harness{
		registry: testutil.NewFakeRegistry(scenario.firstStudyID(), scenario.registryRecords()...),
		clock:    testutil.NewDeterministicClock(scenario.now(), 0),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	return h.run(context.Background(), scenario)
}

func (h *Harness) run(ctx context.Context, scenario *Scenario) (*Result, error) {
	sink := diag.New(h.logger)
	result := NewResult()

	exp, err := scenario.buildExport(sink)
	if err != nil {
		return nil, fmt.Errorf("failed to build export: %w", err)
	}

	ix, err := h.index(ctx, sink)
	if err != nil {
		return nil, err
	}

	delta, err := reconcile.New(sink, reconcile.WithClock(h.clock.Now)).Reconcile(exp, ix)
	if err != nil {
		return nil, fmt.Errorf("failed to reconcile: %w", err)
	}
	if err := delta.Check(); err != nil {
		return nil, fmt.Errorf("inconsistent delta: %w", err)
	}
	result.Delta = delta

	uploader := upload.New(h.registry, sink, upload.WithDryRun(scenario.DryRun), upload.WithLogger(h.logger))
	report, err := uploader.Upload(ctx, delta)
	if err != nil {
		return nil, fmt.Errorf("failed to upload: %w", err)
	}
	result.Report = report

	if scenario.DryRun {
		// Nothing was imported; report what would have been.
		records, err := upload.Resolve(delta, report.StudyIDs, diag.Discard())
		if err != nil {
			return nil, fmt.Errorf("failed to resolve dry run records: %w", err)
		}
		result.Uploaded = append(result.Uploaded, records...)
	}
	for _, batch := range h.registry.Imports {
		for _, rec := range batch {
			if _, err := registry.ResponseID(rec); err == nil {
				result.Uploaded = append(result.Uploaded, rec)
			}
		}
	}
	result.Diagnostics = sink.Entries()

	if !scenario.DryRun {
		if err := h.checkIdempotent(ctx, scenario, result); err != nil {
			return nil, err
		}
	}

	for _, msg := range EvaluateExpectations(result, scenario.Expect) {
		result.AddError(msg)
	}

	return result, nil
}

// index downloads and indexes the registry snapshot.
func (h *Harness) index(ctx context.Context, sink *diag.Sink) (*snapshot.Index, error) {
	records, err := h.registry.ExportRecords(ctx, snapshot.Fields())
	if err != nil {
		return nil, fmt.Errorf("failed to download snapshot: %w", err)
	}
	return snapshot.Build(records, sink), nil
}

// checkIdempotent syncs the same export a second time and records an error
// if anything would be uploaded again.
func (h *Harness) checkIdempotent(ctx context.Context, scenario *Scenario, result *Result) error {
	sink := diag.Discard()

	exp, err := scenario.buildExport(sink)
	if err != nil {
		return fmt.Errorf("failed to rebuild export: %w", err)
	}
	ix, err := h.index(ctx, sink)
	if err != nil {
		return err
	}
	again, err := reconcile.New(sink, reconcile.WithClock(h.clock.Now)).Reconcile(exp, ix)
	if err != nil {
		return fmt.Errorf("failed to reconcile again: %w", err)
	}
	if !again.Empty() {
		result.AddError(fmt.Sprintf("second sync is not a no-op: %d new participant(s), %d new response(s)",
			len(again.Participants), len(again.Responses)))
	}
	return nil
}
