// Package snapshot indexes the registry's flat record export by participant.
//
// The registry stores a participant as a base row plus one row per repeat
// instance of each repeating instrument. Build folds these rows back into one
// Entry per export participant id, listing for every questionnaire code the
// (response id, instance) pairs already imported.
package snapshot

import (
	"strconv"

	"github.com/roach88/trdsync/internal/diag"
	"github.com/roach88/trdsync/internal/questionnaire"
	"github.com/roach88/trdsync/internal/registry"
)

// Housekeeping instruments that hold participant data rather than
// questionnaire responses.
var housekeeping = map[string]bool{
	"private": true,
	"info":    true,
}

// Pair is one imported response and the repeat instance it occupies.
type Pair struct {
	ResponseID string `json:"response_id"`
	Instance   int    `json:"instance"`
}

// Entry is everything the registry knows about one participant.
type Entry struct {
	ParticipantID string            `json:"participant_id"`
	StudyID       string            `json:"study_id"`
	Responses     map[string][]Pair `json:"responses"`
}

func newEntry(participantID, studyID string) *Entry {
	e := &Entry{
		ParticipantID: participantID,
		StudyID:       studyID,
		Responses:     make(map[string][]Pair),
	}
	for _, code := range questionnaire.Codes() {
		e.Responses[code] = []Pair{}
	}
	return e
}

// Pairs returns the imported pairs for code.
func (e *Entry) Pairs(code string) []Pair {
	return e.Responses[code]
}

// Has reports whether responseID is already imported under code.
func (e *Entry) Has(code, responseID string) bool {
	_, ok := e.find(code, responseID)
	return ok
}

// MaxInstance returns the highest instance imported under code, or 0.
func (e *Entry) MaxInstance(code string) int {
	max := 0
	for _, p := range e.Responses[code] {
		if p.Instance > max {
			max = p.Instance
		}
	}
	return max
}

func (e *Entry) find(code, responseID string) (Pair, bool) {
	for _, p := range e.Responses[code] {
		if p.ResponseID == responseID {
			return p, true
		}
	}
	return Pair{}, false
}

// Index maps export participant ids to their registry entries.
type Index struct {
	entries map[string]*Entry
}

// Get returns the entry for an export participant id.
func (ix *Index) Get(participantID string) (*Entry, bool) {
	if ix == nil {
		return nil, false
	}
	e, ok := ix.entries[participantID]
	return e, ok
}

// Len returns the number of indexed participants.
func (ix *Index) Len() int {
	if ix == nil {
		return 0
	}
	return len(ix.entries)
}

// Fields lists the registry fields the index needs: the study id, the
// participant cross-reference and every questionnaire's response id.
func Fields() []string {
	fields := []string{registry.FieldStudyID, registry.FieldParticipantID}
	for _, d := range questionnaire.All() {
		fields = append(fields, questionnaire.ResponseIDField(d.Code))
	}
	return fields
}

// Build indexes records.
//
// Rows are grouped by their participant id. Repeat rows usually lack it and
// are attributed through the study id of a row that carries one. Diverging
// study ids and conflicting instances are reported on sink; the first value
// seen wins, except that an empty study id never does. Rows of unknown
// instruments are reported and ignored.
func Build(records []registry.Record, sink *diag.Sink) *Index {
	if sink == nil {
		sink = diag.Discard()
	}
	ix := &Index{entries: make(map[string]*Entry)}

	byStudy := make(map[string]string)
	for _, r := range records {
		pid := r.String(registry.FieldParticipantID)
		if pid == "" {
			continue
		}
		sid := r.String(registry.FieldStudyID)
		if sid == "" {
			sink.Warnf(diag.KindConsistency, "participant %s has a row without a study id", pid)
		}
		e, ok := ix.entries[pid]
		switch {
		case !ok:
			ix.entries[pid] = newEntry(pid, sid)
		case sid == "":
		case e.StudyID == "":
			e.StudyID = sid
		case sid != e.StudyID:
			sink.Warnf(diag.KindConsistency, "participant %s has rows with study ids %s and %s; keeping %s", pid, e.StudyID, sid, e.StudyID)
		}
		if _, seen := byStudy[sid]; !seen && sid != "" {
			byStudy[sid] = pid
		}
	}

	for _, r := range records {
		pid := r.String(registry.FieldParticipantID)
		if pid == "" {
			sid := r.String(registry.FieldStudyID)
			owner, ok := byStudy[sid]
			if !ok {
				if hasResponse(r) {
					sink.Warnf(diag.KindConsistency, "record with study id %q has no participant id; ignored", sid)
				}
				continue
			}
			pid = owner
		}
		ix.add(ix.entries[pid], r, sink)
	}

	return ix
}

func hasResponse(r registry.Record) bool {
	if r.String(registry.FieldRepeatInstrument) != "" {
		return true
	}
	for _, d := range questionnaire.All() {
		if r.String(questionnaire.ResponseIDField(d.Code)) != "" {
			return true
		}
	}
	return false
}

func (ix *Index) add(e *Entry, r registry.Record, sink *diag.Sink) {
	instrument := r.String(registry.FieldRepeatInstrument)

	if instrument == "" {
		// Non-repeating forms live on the base row at an implicit instance 1.
		for _, d := range questionnaire.All() {
			if d.Repeat {
				continue
			}
			if rid := r.String(questionnaire.ResponseIDField(d.Code)); rid != "" {
				e.record(d.Code, rid, 1, sink)
			}
		}
		return
	}

	if _, ok := questionnaire.ByCode(instrument); !ok {
		if !housekeeping[instrument] {
			sink.Warnf(diag.KindConsistency, "unrecognised %s value: %s", registry.FieldRepeatInstrument, instrument)
		}
		return
	}

	raw := r.String(registry.FieldRepeatInstance)
	instance, err := strconv.Atoi(raw)
	if err != nil {
		sink.Warnf(diag.KindConsistency, "%s[%s] has invalid %s %q", instrument, r.String(questionnaire.ResponseIDField(instrument)), registry.FieldRepeatInstance, raw)
		instance = 0
	}
	e.record(instrument, r.String(questionnaire.ResponseIDField(instrument)), instance, sink)
}

func (e *Entry) record(code, responseID string, instance int, sink *diag.Sink) {
	if prev, ok := e.find(code, responseID); ok {
		if prev.Instance != instance {
			sink.Warnf(diag.KindConsistency, "%s[%s] has instance %d, but this id is already associated with instance %d", code, responseID, instance, prev.Instance)
		}
		return
	}
	e.Responses[code] = append(e.Responses[code], Pair{ResponseID: responseID, Instance: instance})
}
