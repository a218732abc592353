package registry

import (
	"encoding/json"
	"fmt"
)

// StudyRef identifies the participant a reconciled record belongs to.
//
// A Resolved ref carries a registry-issued study id. A Pending ref carries
// the export participant id of a participant the registry does not know yet;
// it must be resolved before the record is submitted.
type StudyRef struct {
	studyID       string
	participantID string
}

// Resolved returns a ref to an existing registry study id.
func Resolved(studyID string) StudyRef {
	return StudyRef{studyID: studyID}
}

// Pending returns a ref to a participant awaiting a study id.
func Pending(participantID string) StudyRef {
	return StudyRef{participantID: participantID}
}

// IsPending reports whether the ref still needs a study id.
func (r StudyRef) IsPending() bool { return r.participantID != "" }

// StudyID returns the resolved study id, or "" for a pending ref.
func (r StudyRef) StudyID() string { return r.studyID }

// ParticipantID returns the export participant id of a pending ref.
func (r StudyRef) ParticipantID() string { return r.participantID }

// Resolve returns the resolved ref for a pending one using ids, which maps
// export participant ids to study ids. Resolved refs are returned unchanged.
func (r StudyRef) Resolve(ids map[string]string) (StudyRef, bool) {
	if !r.IsPending() {
		return r, true
	}
	studyID, ok := ids[r.participantID]
	if !ok || studyID == "" {
		return r, false
	}
	return Resolved(studyID), true
}

func (r StudyRef) String() string {
	if r.IsPending() {
		return "pending(" + r.participantID + ")"
	}
	return r.studyID
}

type studyRefJSON struct {
	StudyID string `json:"study_id,omitempty"`
	Pending string `json:"pending,omitempty"`
}

// MarshalJSON encodes the ref as {"study_id": ...} or {"pending": ...}.
func (r StudyRef) MarshalJSON() ([]byte, error) {
	if r.IsPending() {
		return json.Marshal(studyRefJSON{Pending: r.participantID})
	}
	return json.Marshal(studyRefJSON{StudyID: r.studyID})
}

// UnmarshalJSON decodes the form written by MarshalJSON.
func (r *StudyRef) UnmarshalJSON(data []byte) error {
	var v studyRefJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if v.StudyID != "" && v.Pending != "" {
		return fmt.Errorf("study ref has both study_id and pending")
	}
	*r = StudyRef{studyID: v.StudyID, participantID: v.Pending}
	return nil
}
