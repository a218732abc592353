package harness

import (
	"github.com/roach88/trdsync/internal/diag"
	"github.com/roach88/trdsync/internal/reconcile"
	"github.com/roach88/trdsync/internal/registry"
	"github.com/roach88/trdsync/internal/upload"
)

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall scenario success.
	Pass bool `json:"pass"`

	// Errors contains expectation failures. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Delta is the first reconciliation's output.
	Delta *reconcile.Result `json:"delta"`

	// Report is the upload report.
	Report *upload.Report `json:"report"`

	// Uploaded holds the imported response records in import order.
	Uploaded []registry.Record `json:"uploaded"`

	// Diagnostics are every entry collected during the sync.
	Diagnostics []diag.Entry `json:"diagnostics"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:        true,
		Errors:      []string{},
		Uploaded:    []registry.Record{},
		Diagnostics: []diag.Entry{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Find returns the uploaded record carrying responseID.
func (r *Result) Find(responseID string) (registry.Record, bool) {
	for _, rec := range r.Uploaded {
		if id, err := registry.ResponseID(rec); err == nil && id == responseID {
			return rec, true
		}
	}
	return nil, false
}
