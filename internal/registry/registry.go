// Package registry defines the contract between the reconciliation pipeline
// and the registry system that stores participant and questionnaire records.
//
// A registry project stores one base row per participant, keyed by its study
// id, plus one row per instance of every repeating instrument. Repeat rows
// carry the envelope fields FieldRepeatInstrument and FieldRepeatInstance.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Envelope and cross-reference field names.
const (
	FieldStudyID          = "study_id"
	FieldParticipantID    = "id"
	FieldRepeatInstrument = "redcap_repeat_instrument"
	FieldRepeatInstance   = "redcap_repeat_instance"
)

// ResponseIDSuffix ends the field holding a response's source id.
const ResponseIDSuffix = "_response_id"

// Record is one flat registry row.
//
// Values read from the registry are strings. Values written may also be
// booleans or integers; the transport encodes them as JSON.
type Record map[string]any

// String returns the value of key rendered as text, or "" if it is absent
// or null.
func (r Record) String(key string) string {
	v, ok := r[key]
	if !ok || v == nil {
		return ""
	}
	switch val := v.(type) {
	case string:
		return val
	case json.Number:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return fmt.Sprint(val)
	}
}

// Clone returns a shallow copy of r.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Keys returns the record's field names, sorted.
func (r Record) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Service is the registry API used by the pipeline.
type Service interface {
	// ExportRecords returns every row of the project. When fields is non-empty
	// only those fields are requested.
	ExportRecords(ctx context.Context, fields []string) ([]Record, error)

	// ImportRecords writes records and returns how many the registry
	// reports as written. Per-row failures are not reported.
	ImportRecords(ctx context.Context, records []Record) (int, error)

	// GenerateNextRecordName issues the next free study id. Calls must be
	// sequential.
	GenerateNextRecordName(ctx context.Context) (string, error)
}

// ResponseID returns the source response id carried by record.
//
// When the record names a repeat instrument, its "{instrument}_response_id"
// field is used. Otherwise exactly one non-empty "*_response_id" field must
// be present.
func ResponseID(record Record) (string, error) {
	if instrument := record.String(FieldRepeatInstrument); instrument != "" {
		return record.String(instrument + ResponseIDSuffix), nil
	}

	var fields []string
	for _, k := range record.Keys() {
		if strings.HasSuffix(k, ResponseIDSuffix) && record.String(k) != "" {
			fields = append(fields, k)
		}
	}
	switch len(fields) {
	case 0:
		return "", fmt.Errorf("no %s field contains data", "*"+ResponseIDSuffix)
	case 1:
		return record.String(fields[0]), nil
	default:
		return "", fmt.Errorf("multiple %s fields contain data: %s", "*"+ResponseIDSuffix, strings.Join(fields, ", "))
	}
}
