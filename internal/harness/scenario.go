package harness

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/trdsync/internal/diag"
	"github.com/roach88/trdsync/internal/export"
	"github.com/roach88/trdsync/internal/registry"
)

// DefaultNow is the clock used when a scenario does not set one.
var DefaultNow = time.Date(2024, 11, 6, 9, 30, 0, 0, time.UTC)

// Scenario defines one reconciliation scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Now is the RFC 3339 time stamped on participant rows.
	// Defaults to DefaultNow.
	Now string `yaml:"now,omitempty"`

	// FirstStudyID is the lowest study id the registry issues (default 1).
	FirstStudyID int `yaml:"first_study_id,omitempty"`

	// Patients are rows of the export's patient table.
	Patients []map[string]string `yaml:"patients"`

	// Responses are rows of the export's questionnaire response table.
	Responses []ResponseRow `yaml:"responses"`

	// Registry holds the rows stored in the registry before the sync.
	Registry []map[string]string `yaml:"registry,omitempty"`

	// DryRun skips imports. The idempotence check is skipped too.
	DryRun bool `yaml:"dry_run,omitempty"`

	Expect Expectations `yaml:"expect"`
}

// ResponseRow describes one questionnaire response. The JSON columns are
// generated from the typed fields; Columns overrides any raw column value.
type ResponseRow struct {
	ID        string `yaml:"id"`
	Patient   string `yaml:"patient"`
	Submitted string `yaml:"submitted,omitempty"`

	// Title is the questionnaire title. Empty leaves the interoperability
	// column empty.
	Title string `yaml:"title,omitempty"`

	// Scores and Display give each question's score literal and display
	// text by 1-based position. A question with neither is left out.
	Scores  []string `yaml:"scores,omitempty"`
	Display []string `yaml:"display,omitempty"`

	// Categories maps category names to score literals or display text.
	Categories map[string]string `yaml:"categories,omitempty"`

	Columns map[string]string `yaml:"columns,omitempty"`
}

// Expectations describe the outcome of a sync.
type Expectations struct {
	// NewParticipants lists export ids expected to be registered, in order.
	NewParticipants []string `yaml:"new_participants"`

	// Records lists every response record expected to be uploaded.
	Records []ExpectedRecord `yaml:"records"`

	// Diagnostics must each match at least one collected diagnostic.
	Diagnostics []ExpectedDiagnostic `yaml:"diagnostics,omitempty"`

	// DiagnosticCount, when set, is the exact number of diagnostics.
	DiagnosticCount *int `yaml:"diagnostic_count,omitempty"`
}

// ExpectedRecord describes one uploaded response record.
type ExpectedRecord struct {
	ResponseID string `yaml:"response_id"`
	StudyID    string `yaml:"study_id"`
	Instrument string `yaml:"instrument"`

	// Instance is the expected repeat instance. Zero expects no repeat
	// envelope.
	Instance int `yaml:"instance,omitempty"`

	// Fields are checked as a subset of the record.
	Fields map[string]string `yaml:"fields,omitempty"`
}

// ExpectedDiagnostic matches a diagnostic by kind and message substring.
type ExpectedDiagnostic struct {
	Kind     string `yaml:"kind"`
	Contains string `yaml:"contains"`
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// FindScenarios returns the .yaml and .yml files under dir, sorted. A
// non-empty filter is matched against each file's base name without
// extension.
func FindScenarios(dir, filter string) ([]string, error) {
	var files []string

	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		if filter != "" {
			name := strings.TrimSuffix(filepath.Base(path), ext)
			matched, err := filepath.Match(filter, name)
			if err != nil {
				return fmt.Errorf("invalid filter pattern: %w", err)
			}
			if !matched {
				return nil
			}
		}
		files = append(files, path)
		return nil
	})

	sort.Strings(files)
	return files, err
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Now != "" {
		if _, err := time.Parse(time.RFC3339, s.Now); err != nil {
			return fmt.Errorf("now: %w", err)
		}
	}
	if s.FirstStudyID < 0 {
		return fmt.Errorf("first_study_id must be non-negative")
	}

	for i, p := range s.Patients {
		if p["id"] == "" {
			return fmt.Errorf("patients[%d]: id is required", i)
		}
	}
	for i, r := range s.Responses {
		if r.ID == "" {
			return fmt.Errorf("responses[%d]: id is required", i)
		}
		if r.Patient == "" {
			return fmt.Errorf("responses[%d]: patient is required", i)
		}
	}
	for i, r := range s.Registry {
		if r[registry.FieldStudyID] == "" {
			return fmt.Errorf("registry[%d]: study_id is required", i)
		}
	}

	for i, r := range s.Expect.Records {
		if r.ResponseID == "" {
			return fmt.Errorf("expect.records[%d]: response_id is required", i)
		}
		if r.Instrument == "" {
			return fmt.Errorf("expect.records[%d]: instrument is required", i)
		}
	}
	for i, d := range s.Expect.Diagnostics {
		if d.Kind == "" && d.Contains == "" {
			return fmt.Errorf("expect.diagnostics[%d]: kind or contains is required", i)
		}
	}
	if s.Expect.DiagnosticCount != nil && *s.Expect.DiagnosticCount < 0 {
		return fmt.Errorf("expect.diagnostic_count must be non-negative")
	}

	return nil
}

func (s *Scenario) now() time.Time {
	if s.Now == "" {
		return DefaultNow
	}
	t, _ := time.Parse(time.RFC3339, s.Now)
	return t
}

func (s *Scenario) firstStudyID() int {
	if s.FirstStudyID == 0 {
		return 1
	}
	return s.FirstStudyID
}

// buildExport assembles the export tables and decodes them.
func (s *Scenario) buildExport(sink *diag.Sink) (*export.Export, error) {
	patients := make(export.Table, 0, len(s.Patients))
	for _, p := range s.Patients {
		row := make(export.Row, len(p))
		for k, v := range p {
			row[k] = v
		}
		patients = append(patients, row)
	}

	responses := make(export.Table, 0, len(s.Responses))
	for i, r := range s.Responses {
		row, err := r.row()
		if err != nil {
			return nil, fmt.Errorf("responses[%d]: %w", i, err)
		}
		responses = append(responses, row)
	}

	return export.FromTables(map[string]export.Table{
		export.PatientTable:  patients,
		export.ResponseTable: responses,
	}, sink), nil
}

// row renders the response as a raw export row.
func (r ResponseRow) row() (export.Row, error) {
	row := export.Row{
		"id":        r.ID,
		"patientid": r.Patient,
		"submitted": r.Submitted,
	}

	if r.Title != "" {
		interop, err := json.Marshal(export.Interoperability{Title: r.Title, Submitted: r.Submitted})
		if err != nil {
			return nil, err
		}
		row[export.ColumnInteroperability] = string(interop)
	}

	if len(r.Scores) > 0 || len(r.Display) > 0 || len(r.Categories) > 0 {
		scores, err := json.Marshal(r.scores())
		if err != nil {
			return nil, err
		}
		row[export.ColumnScores] = string(scores)
	}

	for k, v := range r.Columns {
		row[k] = v
	}
	return row, nil
}

func (r ResponseRow) scores() export.Scores {
	out := export.Scores{
		QuestionScores: []export.QuestionScore{},
		CategoryScores: []export.CategoryScore{},
	}

	n := max(len(r.Scores), len(r.Display))
	for i := 0; i < n; i++ {
		score, display := at(r.Scores, i), at(r.Display, i)
		if score == "" && display == "" {
			continue
		}
		out.QuestionScores = append(out.QuestionScores, export.QuestionScore{
			QuestionNumber: export.Ordinal(i + 1),
			Score:          numberOrZero(score),
			DisplayValue:   display,
		})
	}

	names := make([]string, 0, len(r.Categories))
	for name := range r.Categories {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		v := r.Categories[name]
		out.CategoryScores = append(out.CategoryScores, export.CategoryScore{
			Name:         name,
			Score:        numberOrZero(v),
			IsTotal:      name == "Total",
			DisplayValue: v,
		})
	}
	return out
}

func at(s []string, i int) string {
	if i < len(s) {
		return s[i]
	}
	return ""
}

// numberOrZero keeps numeric literals verbatim and maps text to 0.
func numberOrZero(s string) export.Scalar {
	if _, err := strconv.ParseFloat(s, 64); err != nil {
		return "0"
	}
	return export.Scalar(s)
}

// registryRecords returns the pre-existing registry rows.
func (s *Scenario) registryRecords() []registry.Record {
	out := make([]registry.Record, 0, len(s.Registry))
	for _, r := range s.Registry {
		rec := make(registry.Record, len(r))
		for k, v := range r {
			rec[k] = v
		}
		out = append(out, rec)
	}
	return out
}
