// Package testutil provides deterministic collaborators for tests.
package testutil

import (
	"context"
	"strconv"
	"sync"

	"github.com/roach88/trdsync/internal/registry"
)

// FakeRegistry is an in-memory registry.Service.
//
// Imported records are merged the way the registry stores them: a row is
// identified by study id, repeat instrument and repeat instance, and fields of
// a later row overwrite those of an earlier one with the same identity.
type FakeRegistry struct {
	mu sync.Mutex

	records []registry.Record
	firstID int

	// ImportLimit caps the count ImportRecords reports and stores.
	// Negative means no cap.
	ImportLimit int

	ExportErr   error
	ImportErr   error
	GenerateErr error

	// Requests holds the field lists passed to ExportRecords.
	Requests [][]string

	// Imports holds every batch passed to ImportRecords.
	Imports [][]registry.Record
}

// NewFakeRegistry creates a registry holding records. Like the real
// registry, GenerateNextRecordName returns one more than the highest stored
// numeric study id, but never less than firstID, and reserves nothing.
func NewFakeRegistry(firstID int, records ...registry.Record) *FakeRegistry {
	f := &FakeRegistry{firstID: firstID, ImportLimit: -1}
	for _, r := range records {
		f.records = append(f.records, r.Clone())
	}
	return f
}

// Records returns a copy of the stored rows.
func (f *FakeRegistry) Records() []registry.Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]registry.Record, len(f.records))
	for i, r := range f.records {
		out[i] = r.Clone()
	}
	return out
}

// ExportRecords implements registry.Service. Values are returned as strings,
// restricted to fields when it is non-empty; the envelope fields are always
// included.
func (f *FakeRegistry) ExportRecords(ctx context.Context, fields []string) ([]registry.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Requests = append(f.Requests, fields)
	if f.ExportErr != nil {
		return nil, f.ExportErr
	}

	out := make([]registry.Record, 0, len(f.records))
	for _, r := range f.records {
		row := registry.Record{
			registry.FieldStudyID:          r.String(registry.FieldStudyID),
			registry.FieldRepeatInstrument: r.String(registry.FieldRepeatInstrument),
			registry.FieldRepeatInstance:   r.String(registry.FieldRepeatInstance),
		}
		if len(fields) == 0 {
			for k := range r {
				row[k] = r.String(k)
			}
		} else {
			for _, k := range fields {
				row[k] = r.String(k)
			}
		}
		out = append(out, row)
	}
	return out, nil
}

// ImportRecords implements registry.Service.
func (f *FakeRegistry) ImportRecords(ctx context.Context, records []registry.Record) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	batch := make([]registry.Record, len(records))
	for i, r := range records {
		batch[i] = r.Clone()
	}
	f.Imports = append(f.Imports, batch)
	if f.ImportErr != nil {
		return 0, f.ImportErr
	}

	n := len(batch)
	if f.ImportLimit >= 0 && f.ImportLimit < n {
		n = f.ImportLimit
	}
	for _, r := range batch[:n] {
		f.merge(r)
	}
	return n, nil
}

func (f *FakeRegistry) merge(r registry.Record) {
	for _, existing := range f.records {
		if sameRow(existing, r) {
			for k, v := range r {
				existing[k] = v
			}
			return
		}
	}
	f.records = append(f.records, r)
}

func sameRow(a, b registry.Record) bool {
	for _, k := range []string{registry.FieldStudyID, registry.FieldRepeatInstrument, registry.FieldRepeatInstance} {
		if a.String(k) != b.String(k) {
			return false
		}
	}
	return true
}

// GenerateNextRecordName implements registry.Service.
func (f *FakeRegistry) GenerateNextRecordName(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.GenerateErr != nil {
		return "", f.GenerateErr
	}
	next := f.firstID
	for _, r := range f.records {
		if n, err := strconv.Atoi(r.String(registry.FieldStudyID)); err == nil && n >= next {
			next = n + 1
		}
	}
	return strconv.Itoa(next), nil
}
