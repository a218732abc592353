package harness

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/roach88/trdsync/internal/diag"
	"github.com/roach88/trdsync/internal/registry"
)

// ExpectationError is returned when an expectation fails.
type ExpectationError struct {
	What     string // which expectation failed
	Expected string
	Actual   string
}

// Error implements the error interface.
func (e *ExpectationError) Error() string {
	return fmt.Sprintf("%s: expected %s, got %s", e.What, e.Expected, e.Actual)
}

// EvaluateExpectations checks a result and returns one message per failure.
func EvaluateExpectations(result *Result, expect Expectations) []string {
	var errs []string
	add := func(err error) {
		if err != nil {
			errs = append(errs, err.Error())
		}
	}

	add(checkParticipants(result, expect.NewParticipants))
	for _, err := range checkRecords(result, expect.Records) {
		add(err)
	}
	for _, d := range expect.Diagnostics {
		add(checkDiagnostic(result.Diagnostics, d))
	}
	if expect.DiagnosticCount != nil && len(result.Diagnostics) != *expect.DiagnosticCount {
		add(&ExpectationError{
			What:     "diagnostic_count",
			Expected: strconv.Itoa(*expect.DiagnosticCount),
			Actual:   fmt.Sprintf("%d: %s", len(result.Diagnostics), strings.Join(entryStrings(result.Diagnostics), "; ")),
		})
	}

	return errs
}

func checkParticipants(result *Result, want []string) error {
	got := make([]string, 0, len(result.Delta.Participants))
	for _, p := range result.Delta.Participants {
		got = append(got, p.ParticipantID)
	}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		return &ExpectationError{
			What:     "new_participants",
			Expected: fmt.Sprintf("%v", want),
			Actual:   fmt.Sprintf("%v", got),
		}
	}
	return nil
}

func checkRecords(result *Result, want []ExpectedRecord) []error {
	var errs []error

	wantIDs := make([]string, 0, len(want))
	for _, w := range want {
		wantIDs = append(wantIDs, w.ResponseID)
	}
	gotIDs := make([]string, 0, len(result.Uploaded))
	for _, rec := range result.Uploaded {
		id, _ := registry.ResponseID(rec)
		gotIDs = append(gotIDs, id)
	}
	sort.Strings(wantIDs)
	sort.Strings(gotIDs)
	if strings.Join(wantIDs, ",") != strings.Join(gotIDs, ",") {
		errs = append(errs, &ExpectationError{
			What:     "records",
			Expected: fmt.Sprintf("response ids %v", wantIDs),
			Actual:   fmt.Sprintf("%v", gotIDs),
		})
	}

	for _, w := range want {
		rec, ok := result.Find(w.ResponseID)
		if !ok {
			continue
		}
		if err := checkRecord(rec, w); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

func checkRecord(rec registry.Record, w ExpectedRecord) error {
	what := "record " + w.ResponseID
	mismatch := func(field, expected, actual string) error {
		return &ExpectationError{What: what + " " + field, Expected: strconv.Quote(expected), Actual: strconv.Quote(actual)}
	}

	if w.StudyID != "" && rec.String(registry.FieldStudyID) != w.StudyID {
		return mismatch(registry.FieldStudyID, w.StudyID, rec.String(registry.FieldStudyID))
	}
	if got := rec.String(w.Instrument + registry.ResponseIDSuffix); got != w.ResponseID {
		return mismatch(w.Instrument+registry.ResponseIDSuffix, w.ResponseID, got)
	}

	instrument := rec.String(registry.FieldRepeatInstrument)
	instance := rec.String(registry.FieldRepeatInstance)
	if w.Instance == 0 {
		if instrument != "" || instance != "" {
			return mismatch("repeat envelope", "", instrument+"#"+instance)
		}
	} else {
		if instrument != w.Instrument {
			return mismatch(registry.FieldRepeatInstrument, w.Instrument, instrument)
		}
		if instance != strconv.Itoa(w.Instance) {
			return mismatch(registry.FieldRepeatInstance, strconv.Itoa(w.Instance), instance)
		}
	}

	keys := make([]string, 0, len(w.Fields))
	for k := range w.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if got := rec.String(k); got != w.Fields[k] {
			return mismatch(k, w.Fields[k], got)
		}
	}
	return nil
}

func checkDiagnostic(entries []diag.Entry, want ExpectedDiagnostic) error {
	for _, e := range entries {
		if want.Kind != "" && string(e.Kind) != want.Kind {
			continue
		}
		if strings.Contains(e.Message, want.Contains) {
			return nil
		}
	}
	return &ExpectationError{
		What:     "diagnostics",
		Expected: fmt.Sprintf("[%s] containing %q", want.Kind, want.Contains),
		Actual:   fmt.Sprintf("%v", entryStrings(entries)),
	}
}

func entryStrings(entries []diag.Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.String()
	}
	return out
}
