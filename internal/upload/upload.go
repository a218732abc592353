// Package upload submits a reconciliation result to the registry.
//
// Upload issues one study id per new participant, resolves every pending ref
// in a single pass, orders the response records by study id and imports them
// in one request. The registry only reports how many rows it wrote, so a
// count below the number attempted is the only partial-failure signal; it is
// recorded on the Report rather than returned as an error.
package upload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/roach88/trdsync/internal/diag"
	"github.com/roach88/trdsync/internal/reconcile"
	"github.com/roach88/trdsync/internal/registry"
)

// ErrUnresolvedParticipant is returned when a pending ref has no issued
// study id at upload time.
var ErrUnresolvedParticipant = errors.New("unresolved participant")

// Report summarizes an upload.
type Report struct {
	// StudyIDs maps new participants' export ids to their issued study ids.
	// In a dry run they are provisional: nothing is reserved, so they repeat.
	StudyIDs map[string]string `json:"study_ids"`

	NewParticipants int `json:"new_participants"`
	NewResponses    int `json:"new_responses"`

	// Attempted counts every record submitted, participant rows included.
	Attempted int  `json:"attempted"`
	Imported  int  `json:"imported"`
	DryRun    bool `json:"dry_run"`

	// ImportedParticipants and ImportedResponses split Imported.
	ImportedParticipants int `json:"imported_participants"`
	ImportedResponses    int `json:"imported_responses"`

	// ResponseIDs lists the source ids of the submitted responses.
	ResponseIDs []string `json:"response_ids"`
}

// ProvisionalStudyIDs lists "participant: study id" pairs sorted by
// participant when the ids were issued in a dry run, and nil otherwise.
func (r *Report) ProvisionalStudyIDs() []string {
	if !r.DryRun || len(r.StudyIDs) == 0 {
		return nil
	}
	out := make([]string, 0, len(r.StudyIDs))
	for pid, sid := range r.StudyIDs {
		out = append(out, pid+": "+sid)
	}
	sort.Strings(out)
	return out
}

// Shortfall returns how many attempted records the registry did not write.
func (r *Report) Shortfall() int {
	if r.DryRun || r.Imported >= r.Attempted {
		return 0
	}
	return r.Attempted - r.Imported
}

// Uploader pushes reconciliation results to a registry.
type Uploader struct {
	svc    registry.Service
	sink   *diag.Sink
	logger *slog.Logger
	dryRun bool
}

// Option configures an Uploader.
type Option func(*Uploader)

// WithDryRun skips the import request. Study ids are still issued.
func WithDryRun(dryRun bool) Option {
	return func(u *Uploader) {
		u.dryRun = dryRun
	}
}

// WithLogger sets the logger for progress messages.
func WithLogger(logger *slog.Logger) Option {
	return func(u *Uploader) {
		u.logger = logger
	}
}

// New creates an Uploader for svc.
func New(svc registry.Service, sink *diag.Sink, opts ...Option) *Uploader {
	if sink == nil {
		sink = diag.Discard()
	}
	u := &Uploader{svc: svc, sink: sink, logger: slog.Default()}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Upload submits res. Transport failures and unresolved participants are
// returned as errors; a short import count is reported on the Report.
//
// Each new participant's base row is imported as soon as its study id is
// issued, so the next issued id accounts for it. Responses follow in a
// single batch ordered by study id. In a dry run nothing is imported and
// issued ids may repeat.
func (u *Uploader) Upload(ctx context.Context, res *reconcile.Result) (*Report, error) {
	report := &Report{
		StudyIDs:        make(map[string]string, len(res.Participants)),
		NewParticipants: len(res.Participants),
		NewResponses:    len(res.Responses),
		DryRun:          u.dryRun,
	}

	if len(res.Participants) > 0 {
		ids := make([]string, 0, len(res.Participants))
		for _, p := range res.Participants {
			ids = append(ids, p.ParticipantID)
		}
		u.logger.Info("generating record names", "count", len(ids), "participants", strings.Join(ids, ", "))
	}
	for _, p := range res.Participants {
		studyID, err := u.svc.GenerateNextRecordName(ctx)
		if err != nil {
			return nil, fmt.Errorf("generating record name for participant %s: %w", p.ParticipantID, err)
		}
		report.StudyIDs[p.ParticipantID] = studyID
		report.Attempted++
		if u.dryRun {
			u.logger.Info("dry run: provisional study id", "participant", p.ParticipantID, "study_id", studyID)
			continue
		}
		n, err := u.svc.ImportRecords(ctx, []registry.Record{p.Record(studyID)})
		if err != nil {
			return nil, fmt.Errorf("importing participant %s: %w", p.ParticipantID, err)
		}
		if n < 1 {
			u.sink.Errorf(diag.KindUpload, "Failed to import participant %s as %s", p.ParticipantID, studyID)
		}
		report.Imported += n
		report.ImportedParticipants += n
	}

	records, err := Resolve(res, report.StudyIDs, u.sink)
	if err != nil {
		return nil, err
	}
	for _, r := range res.Responses {
		report.ResponseIDs = append(report.ResponseIDs, r.ResponseID)
	}
	report.Attempted += len(records)

	if u.dryRun {
		u.logger.Info("dry run: skipping import", "records", report.Attempted)
		return report, nil
	}
	if len(records) > 0 {
		imported, err := u.svc.ImportRecords(ctx, records)
		if err != nil {
			return nil, fmt.Errorf("importing records: %w", err)
		}
		if imported < len(records) {
			u.sink.Errorf(diag.KindUpload, "Failed to import new questionnaire responses. Tried %d, succeeded with %d", len(records), imported)
		}
		report.Imported += imported
		report.ImportedResponses = imported
	}

	if report.Shortfall() == 0 && report.Attempted > 0 {
		u.logger.Info("imported records",
			"participants", report.NewParticipants,
			"responses", report.NewResponses,
			"response_ids", strings.Join(report.ResponseIDs, ", "))
	}
	return report, nil
}

// Resolve renders the responses of res as registry records, replacing
// pending refs with the study ids in studyIDs, ordered by study id.
func Resolve(res *reconcile.Result, studyIDs map[string]string, sink *diag.Sink) ([]registry.Record, error) {
	if sink == nil {
		sink = diag.Discard()
	}
	records := make([]registry.Record, 0, len(res.Responses))
	for _, r := range res.Responses {
		ref, ok := r.Ref.Resolve(studyIDs)
		if !ok {
			sink.Errorf(diag.KindResolution, "%s not in id map for response %s", r.Ref.ParticipantID(), r.ResponseID)
			return nil, fmt.Errorf("%w: %s (response %s)", ErrUnresolvedParticipant, r.Ref.ParticipantID(), r.ResponseID)
		}
		r.Ref = ref
		rec, err := r.Record()
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	SortByStudyID(records)
	return records, nil
}

// SortByStudyID orders records by ascending study id, keeping the relative
// order of records that share one. Numeric ids compare numerically and sort
// before non-numeric ones.
func SortByStudyID(records []registry.Record) {
	sort.SliceStable(records, func(i, j int) bool {
		return lessStudyID(records[i].String(registry.FieldStudyID), records[j].String(registry.FieldStudyID))
	})
}

func lessStudyID(a, b string) bool {
	na, errA := strconv.ParseInt(a, 10, 64)
	nb, errB := strconv.ParseInt(b, 10, 64)
	switch {
	case errA == nil && errB == nil:
		return na < nb
	case errA == nil:
		return true
	case errB == nil:
		return false
	default:
		return a < b
	}
}
