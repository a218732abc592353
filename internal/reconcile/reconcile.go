// Package reconcile computes which participants and questionnaire responses
// in an export are missing from the registry.
//
// Reconciliation is a pure, single-pass computation over a parsed export and
// a registry snapshot index. It never talks to the registry: participants
// without a study id are referenced through pending refs, which the upload
// step resolves.
//
// Instance numbering: for each (participant, questionnaire) pair, a new
// response gets one more than the highest instance already in the registry
// or already assigned earlier in the same run, starting at 1.
package reconcile

import (
	"time"

	"github.com/roach88/trdsync/internal/convert"
	"github.com/roach88/trdsync/internal/diag"
	"github.com/roach88/trdsync/internal/export"
	"github.com/roach88/trdsync/internal/registry"
	"github.com/roach88/trdsync/internal/snapshot"
)

// Engine reconciles exports against registry snapshots.
type Engine struct {
	now  func() time.Time
	sink *diag.Sink
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the clock used to stamp participant projections.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// New creates an engine reporting per-row problems to sink.
func New(sink *diag.Sink, opts ...Option) *Engine {
	if sink == nil {
		sink = diag.Discard()
	}
	e := &Engine{now: time.Now, sink: sink}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type pairKey struct {
	participant string
	code        string
}

// Reconcile computes the delta between exp and ix.
//
// Per-row problems are reported on the engine's sink and the row is skipped.
// A missing patient or response table is returned as an error.
func (e *Engine) Reconcile(exp *export.Export, ix *snapshot.Index) (*Result, error) {
	patients, err := exp.Patients()
	if err != nil {
		return nil, err
	}
	responses, err := exp.Responses()
	if err != nil {
		return nil, err
	}

	res := &Result{
		Participants: []NewParticipant{},
		Responses:    []NewResponse{},
	}
	now := e.now()

	// Step A: participants.
	pending := make(map[string]bool)
	for i, row := range patients {
		pid := row["id"]
		if pid == "" {
			e.sink.Warnf(diag.KindClassification, "%s:L%d has no id", export.PatientTable, i)
			continue
		}
		if _, ok := ix.Get(pid); ok {
			continue
		}
		if pending[pid] {
			e.sink.Warnf(diag.KindClassification, "participant id=%s appears more than once in %s", pid, export.PatientTable)
			continue
		}
		pending[pid] = true
		private, info := convert.Participant(row, now)
		res.Participants = append(res.Participants, NewParticipant{
			ParticipantID: pid,
			Private:       private,
			Info:          info,
		})
	}

	// Step B: responses.
	maxInstance := make(map[pairKey]int)
	emitted := make(map[pairKey]map[string]bool)
	for _, resp := range responses {
		rid := resp.ID()
		pid := resp.PatientID()

		if resp.Interoperability == nil {
			e.sink.Warnf(diag.KindClassification, "Questionnaire response id=%s missing interoperability field.", rid)
			continue
		}
		def, err := convert.Definition(resp)
		if err != nil {
			e.sink.Warnf(diag.KindClassification, "Questionnaire response id=%s has unrecognised title %s.", rid, resp.Title())
			continue
		}

		entry, registered := ix.Get(pid)
		if !registered && !pending[pid] {
			e.sink.Warnf(diag.KindClassification, "Questionnaire response id=%s belongs to unknown participant %s.", rid, pid)
			continue
		}
		if registered && entry.Has(def.Code, rid) {
			continue
		}
		if registered && entry.StudyID == "" {
			e.sink.Warnf(diag.KindConsistency, "Questionnaire response id=%s skipped: participant %s has no study id in REDCap.", rid, pid)
			continue
		}

		key := pairKey{participant: pid, code: def.Code}
		if emitted[key][rid] {
			e.sink.Warnf(diag.KindClassification, "Questionnaire response id=%s (%s) appears more than once in the export.", rid, def.Code)
			continue
		}
		if emitted[key] == nil {
			emitted[key] = make(map[string]bool)
		}
		emitted[key][rid] = true

		var ref registry.StudyRef
		current, seen := maxInstance[key]
		if registered {
			ref = registry.Resolved(entry.StudyID)
			if !seen {
				current = entry.MaxInstance(def.Code)
			}
		} else {
			ref = registry.Pending(pid)
		}
		instance := current + 1
		maxInstance[key] = instance

		out := NewResponse{
			Ref:        ref,
			Instrument: def.Code,
			ResponseID: rid,
			Repeat:     def.Repeat,
			Fields:     def.Convert(resp, e.sink),
		}
		if def.Repeat {
			out.Instance = instance
		}
		res.Responses = append(res.Responses, out)
	}

	return res, nil
}
