package reconcile

import (
	"fmt"
	"strconv"

	"github.com/roach88/trdsync/internal/convert"
	"github.com/roach88/trdsync/internal/registry"
)

// NewParticipant is an export participant the registry does not know yet.
type NewParticipant struct {
	ParticipantID string          `json:"participant_id"`
	Private       convert.Private `json:"private"`
	Info          convert.Info    `json:"info"`
}

// Record returns the participant's base registry row for studyID.
func (p NewParticipant) Record(studyID string) registry.Record {
	r := registry.Record{registry.FieldStudyID: studyID}
	for k, v := range p.Private {
		r[k] = v
	}
	for k, v := range p.Info {
		r[k] = v
	}
	return r
}

// NewResponse is a questionnaire response the registry does not hold yet.
type NewResponse struct {
	Ref        registry.StudyRef `json:"ref"`
	Instrument string            `json:"instrument"`
	ResponseID string            `json:"response_id"`

	// Repeat reports whether the record carries a repeat envelope. Instance
	// is meaningful only when it does.
	Repeat   bool `json:"repeat"`
	Instance int  `json:"instance,omitempty"`

	Fields map[string]string `json:"fields"`
}

// Record builds the flat registry row. The ref must be resolved.
func (r NewResponse) Record() (registry.Record, error) {
	if r.Ref.IsPending() {
		return nil, fmt.Errorf("response %s: participant %s has no study id", r.ResponseID, r.Ref.ParticipantID())
	}
	out := registry.Record{registry.FieldStudyID: r.Ref.StudyID()}
	if r.Repeat {
		out[registry.FieldRepeatInstrument] = r.Instrument
		out[registry.FieldRepeatInstance] = strconv.Itoa(r.Instance)
	}
	for k, v := range r.Fields {
		out[k] = v
	}
	return out, nil
}

// Result is the delta between an export and the registry.
type Result struct {
	// Participants are listed in export order.
	Participants []NewParticipant `json:"participants"`

	// Responses are listed in export order.
	Responses []NewResponse `json:"responses"`
}

// Participant returns the new participant with the given export id.
func (r *Result) Participant(id string) (NewParticipant, bool) {
	for _, p := range r.Participants {
		if p.ParticipantID == id {
			return p, true
		}
	}
	return NewParticipant{}, false
}

// Empty reports whether there is nothing to upload.
func (r *Result) Empty() bool {
	return len(r.Participants) == 0 && len(r.Responses) == 0
}

// Check verifies that every pending ref names a new participant.
func (r *Result) Check() error {
	for _, resp := range r.Responses {
		if !resp.Ref.IsPending() {
			continue
		}
		if _, ok := r.Participant(resp.Ref.ParticipantID()); !ok {
			return fmt.Errorf("response %s references participant %s, which is neither registered nor new", resp.ResponseID, resp.Ref.ParticipantID())
		}
	}
	return nil
}
