package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/trdsync/internal/canonical"
)

// Snapshot is the golden form of a scenario run. It is serialized as
// indented canonical JSON so that diffs stay readable and deterministic.
type Snapshot struct {
	ScenarioName    string           `json:"scenario_name"`
	NewParticipants []map[string]any `json:"new_participants"`
	Records         []map[string]any `json:"records"`
	Attempted       int              `json:"attempted"`
	Imported        int              `json:"imported"`
	Diagnostics     []string         `json:"diagnostics"`
}

// NewSnapshot builds the golden snapshot of a result.
func NewSnapshot(name string, result *Result) Snapshot {
	s := Snapshot{
		ScenarioName:    name,
		NewParticipants: []map[string]any{},
		Records:         make([]map[string]any, 0, len(result.Uploaded)),
		Diagnostics:     entryStrings(result.Diagnostics),
	}
	for _, p := range result.Delta.Participants {
		row := map[string]any{
			"participant_id": p.ParticipantID,
			"study_id":       result.Report.StudyIDs[p.ParticipantID],
		}
		if result.Report.DryRun {
			row["provisional"] = true
		}
		s.NewParticipants = append(s.NewParticipants, row)
	}
	for _, rec := range result.Uploaded {
		s.Records = append(s.Records, map[string]any(rec))
	}
	s.Attempted = result.Report.Attempted
	s.Imported = result.Report.Imported
	return s
}

// Marshal returns the snapshot's canonical JSON.
func (s Snapshot) Marshal() ([]byte, error) {
	data, err := canonical.MarshalIndent(s, "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// RunWithGolden executes a scenario, fails the test on unmet expectations,
// and compares the snapshot against testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return err
	}
	for _, msg := range result.Errors {
		t.Errorf("%s: %s", scenario.Name, msg)
	}
	return AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares a result's snapshot against its golden file.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	data, err := NewSnapshot(name, result).Marshal()
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}
