package convert

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/roach88/trdsync/internal/diag"
	"github.com/roach88/trdsync/internal/export"
	"github.com/roach88/trdsync/internal/questionnaire"
	"github.com/roach88/trdsync/internal/registry"
)

// Participant instrument names.
const (
	InstrumentPrivate = "private"
	InstrumentInfo    = "info"
)

// ErrEmptyRegistry is returned by Manifest.Validate when the registry holds no
// records, so nothing can be checked.
var ErrEmptyRegistry = errors.New("registry has no records")

// MissingFieldError reports a manifest field absent from the registry.
type MissingFieldError struct {
	Instrument string
	Field      string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("missing field %s (instrument %s) in registry structure", e.Field, e.Instrument)
}

// Instrument lists the fields the converter produces for one registry
// instrument, sorted.
type Instrument struct {
	Name   string   `json:"name"`
	Fields []string `json:"fields"`
}

// Manifest is the full set of fields the registry project must define.
type Manifest []Instrument

// BuildManifest derives the manifest by converting a fully-populated dummy
// row for the participant projections and every catalogued questionnaire.
// Instruments are ordered private, info, consent, then catalogue order.
func BuildManifest() Manifest {
	dummy := export.Row{
		"id":               "1234567890",
		"nhsnumber":        "1234567890",
		"birthdate":        "YYYY-MM-DD",
		"contactemail":     "",
		"mobilenumber":     "",
		"firstname":        "",
		"lastname":         "",
		"preferredcontact": "",
		"deceasedboolean":  "",
		"deceaseddatetime": "",
		"gender":           "",
	}
	private, info := Participant(dummy, time.Time{})

	m := Manifest{
		{Name: InstrumentPrivate, Fields: sortedKeys(private)},
		{Name: InstrumentInfo, Fields: sortedKeys(info)},
	}

	sink := diag.Discard()
	var rest Manifest
	for _, def := range questionnaire.All() {
		fields := def.Convert(dummyResponse(def), sink)
		inst := Instrument{Name: def.Code, Fields: sortedKeys(fields)}
		if def.Strategy == questionnaire.StrategyConsent {
			m = append(m, inst)
			continue
		}
		rest = append(rest, inst)
	}
	return append(m, rest...)
}

func dummyResponse(def questionnaire.Definition) export.ResponseRow {
	scores := &export.Scores{}
	numbers := make([]int, 0, len(def.Items))
	if def.Strategy == questionnaire.StrategyConsent {
		numbers = append(numbers, questionnaire.ConsentSlots...)
	} else {
		for i := range def.Items {
			numbers = append(numbers, i+1)
		}
	}
	for _, n := range numbers {
		scores.QuestionScores = append(scores.QuestionScores, export.QuestionScore{
			QuestionNumber: export.Ordinal(n),
			Score:          "0",
			DisplayValue:   "Answer",
		})
	}
	for _, name := range def.Scores {
		scores.CategoryScores = append(scores.CategoryScores, export.CategoryScore{
			Name:  name,
			Score: "0",
		})
	}
	return export.ResponseRow{
		Fields: export.Row{"id": "1234567890", "submitted": "YYYY-MM-DD HH:MM:SS.sss"},
		Scores: scores,
		Interoperability: &export.Interoperability{
			Title:     def.Name,
			Submitted: "YYYY-MM-DD HH:MM:SS.sss",
		},
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Lookup returns the instrument with the given name.
func (m Manifest) Lookup(name string) (Instrument, bool) {
	for _, inst := range m {
		if inst.Name == name {
			return inst, true
		}
	}
	return Instrument{}, false
}

// Dump renders the manifest as one "###### name ######" block per instrument
// followed by its fields and a blank line.
func (m Manifest) Dump(w io.Writer) error {
	var lines []string
	for _, inst := range m {
		lines = append(lines, fmt.Sprintf("###### %s ######", inst.Name))
		lines = append(lines, inst.Fields...)
		lines = append(lines, "")
	}
	_, err := io.WriteString(w, strings.Join(lines, "\n"))
	return err
}

// Validate checks that the first registry record carries every manifest
// field. It can only detect missing fields, not fields attached to the wrong
// instrument. An empty registry yields ErrEmptyRegistry.
func (m Manifest) Validate(records []registry.Record) error {
	if len(records) == 0 {
		return ErrEmptyRegistry
	}
	first := records[0]
	for _, inst := range m {
		for _, field := range inst.Fields {
			if _, ok := first[field]; !ok {
				return &MissingFieldError{Instrument: inst.Name, Field: field}
			}
		}
	}
	return nil
}

// Fields returns every manifest field across all instruments.
func (m Manifest) Fields() []string {
	var out []string
	for _, inst := range m {
		out = append(out, inst.Fields...)
	}
	return out
}

// Restrict returns the manifest narrowed to the given fields. Instruments
// left without fields are dropped.
func (m Manifest) Restrict(fields []string) Manifest {
	keep := make(map[string]bool, len(fields))
	for _, f := range fields {
		keep[f] = true
	}
	var out Manifest
	for _, inst := range m {
		var kept []string
		for _, f := range inst.Fields {
			if keep[f] {
				kept = append(kept, f)
			}
		}
		if len(kept) > 0 {
			out = append(out, Instrument{Name: inst.Name, Fields: kept})
		}
	}
	return out
}
