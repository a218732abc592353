package reconcile

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/trdsync/internal/diag"
	"github.com/roach88/trdsync/internal/export"
	"github.com/roach88/trdsync/internal/registry"
	"github.com/roach88/trdsync/internal/snapshot"
)

var fixedNow = time.Date(2024, 11, 6, 9, 30, 0, 0, time.UTC)

func phq9Scores(item string, total string) string {
	qs := ""
	for i := 1; i <= 9; i++ {
		if i > 1 {
			qs += ","
		}
		qs += fmt.Sprintf(`{"QuestionNumber":%d,"Score":%s,"DisplayValue":"x"}`, i, item)
	}
	return fmt.Sprintf(`{"QuestionScores":[%s],"CategoryScores":[{"Name":"Total","Score":%s,"IsTotal":true}]}`, qs, total)
}

func responseRow(id, patient, title, scores string) export.Row {
	return export.Row{
		"id":               id,
		"patientid":        patient,
		"submitted":        "2024-11-04 12:59:24",
		"scores":           scores,
		"responses":        "{}",
		"interoperability": fmt.Sprintf(`{"title":%q,"submitted":"2024-11-04T12:59:24.9477348+00:00"}`, title),
	}
}

func patient(id, nhs string) export.Row {
	return export.Row{
		"id":               id,
		"nhsnumber":        nhs,
		"birthdate":        "1990-01-02",
		"gender":           "1",
		"deceasedboolean":  "false",
		"deceaseddatetime": "",
	}
}

func newExport(t *testing.T, patients export.Table, responses export.Table, sink *diag.Sink) *export.Export {
	t.Helper()
	return export.FromTables(map[string]export.Table{
		export.PatientTable:  patients,
		export.ResponseTable: responses,
	}, sink)
}

func engine(sink *diag.Sink) *Engine {
	return New(sink, WithClock(func() time.Time { return fixedNow }))
}

func TestReconcileNewParticipant(t *testing.T) {
	sink := diag.Discard()
	exp := newExport(t,
		export.Table{patient("1255217154", "9910362813")},
		export.Table{responseRow("1589930675", "1255217154", "Depression (PHQ-9)", phq9Scores("3.0", "27.0"))},
		sink)

	res, err := engine(sink).Reconcile(exp, snapshot.Build(nil, sink))
	require.NoError(t, err)

	require.Len(t, res.Participants, 1)
	p := res.Participants[0]
	assert.Equal(t, "1255217154", p.ParticipantID)
	assert.Equal(t, "9910362813", p.Private["nhsnumber"])
	assert.Equal(t, "1990", p.Info["info_birthyear_int"])
	assert.Equal(t, false, p.Info["info_is_test_bool"])

	require.Len(t, res.Responses, 1)
	r := res.Responses[0]
	assert.True(t, r.Ref.IsPending())
	assert.Equal(t, "1255217154", r.Ref.ParticipantID())
	assert.Equal(t, "phq9", r.Instrument)
	assert.True(t, r.Repeat)
	assert.Equal(t, 1, r.Instance)
	assert.Equal(t, "27.0", r.Fields["phq9_score_total_float"])
	assert.Equal(t, "3.0", r.Fields["phq9_1_interest_float"])
	assert.Equal(t, "1589930675", r.Fields["phq9_response_id"])

	assert.NoError(t, res.Check())
	assert.Zero(t, sink.Len())

	_, err = r.Record()
	assert.Error(t, err, "pending refs cannot be rendered")
}

func registeredSnapshot(extra ...registry.Record) []registry.Record {
	records := []registry.Record{
		{"study_id": "1", "id": "1255217154", "redcap_repeat_instrument": "", "redcap_repeat_instance": ""},
		{"study_id": "1", "id": "", "redcap_repeat_instrument": "phq9", "redcap_repeat_instance": "1", "phq9_response_id": "1589930675"},
	}
	return append(records, extra...)
}

func TestReconcileSecondResponseGetsNextInstance(t *testing.T) {
	sink := diag.Discard()
	exp := newExport(t,
		export.Table{patient("1255217154", "9910362813")},
		export.Table{
			responseRow("1589930675", "1255217154", "Depression (PHQ-9)", phq9Scores("3.0", "27.0")),
			responseRow("1589930999", "1255217154", "Depression (PHQ-9)", phq9Scores("1.0", "9.0")),
		},
		sink)

	res, err := engine(sink).Reconcile(exp, snapshot.Build(registeredSnapshot(), sink))
	require.NoError(t, err)

	assert.Empty(t, res.Participants)
	require.Len(t, res.Responses, 1)
	r := res.Responses[0]
	assert.Equal(t, "1589930999", r.ResponseID)
	assert.Equal(t, 2, r.Instance)
	assert.Equal(t, registry.Resolved("1"), r.Ref)

	rec, err := r.Record()
	require.NoError(t, err)
	assert.Equal(t, "1", rec["study_id"])
	assert.Equal(t, "phq9", rec["redcap_repeat_instrument"])
	assert.Equal(t, "2", rec["redcap_repeat_instance"])
	assert.Equal(t, "9.0", rec["phq9_score_total_float"])
}

func TestReconcileTwoNewResponsesSameRun(t *testing.T) {
	sink := diag.Discard()
	gad7 := `{"QuestionScores":[],"CategoryScores":[]}`
	exp := newExport(t,
		export.Table{patient("1255217154", "9910362813")},
		export.Table{
			responseRow("a", "1255217154", "Anxiety (GAD-7)", gad7),
			responseRow("b", "1255217154", "Anxiety (GAD-7)", gad7),
		},
		sink)

	res, err := engine(sink).Reconcile(exp, snapshot.Build(registeredSnapshot(), sink))
	require.NoError(t, err)

	require.Len(t, res.Responses, 2)
	assert.Equal(t, 1, res.Responses[0].Instance)
	assert.Equal(t, 2, res.Responses[1].Instance)
	assert.Equal(t, "gad7", res.Responses[1].Instrument)
}

func TestReconcileGapTolerantInstances(t *testing.T) {
	sink := diag.Discard()
	exp := newExport(t,
		export.Table{patient("1255217154", "9910362813")},
		export.Table{responseRow("new", "1255217154", "Depression (PHQ-9)", phq9Scores("0", "0"))},
		sink)
	snap := registeredSnapshot(registry.Record{
		"study_id": "1", "redcap_repeat_instrument": "phq9", "redcap_repeat_instance": "5", "phq9_response_id": "old",
	})

	res, err := engine(sink).Reconcile(exp, snapshot.Build(snap, sink))
	require.NoError(t, err)
	require.Len(t, res.Responses, 1)
	assert.Equal(t, 6, res.Responses[0].Instance)
	assert.Equal(t, "0", res.Responses[0].Fields["phq9_score_total_float"])
}

func TestReconcileIdempotent(t *testing.T) {
	sink := diag.Discard()
	exp := newExport(t,
		export.Table{patient("1255217154", "9910362813"), patient("2", "9990000000")},
		export.Table{
			responseRow("1589930675", "1255217154", "Depression (PHQ-9)", phq9Scores("3.0", "27.0")),
			responseRow("c1", "2", "MENTAL HEALTH MISSION MOOD DISORDER COHORT STUDY - Patient Information Sheet & Informed Consent Form", `{"QuestionScores":[]}`),
			responseRow("g1", "2", "Anxiety (GAD-7)", `{"QuestionScores":[]}`),
			responseRow("g2", "2", "Anxiety (GAD-7)", `{"QuestionScores":[]}`),
		},
		sink)

	first, err := engine(sink).Reconcile(exp, snapshot.Build(nil, sink))
	require.NoError(t, err)
	require.Len(t, first.Participants, 2)
	require.Len(t, first.Responses, 4)

	// Apply the first run the way the registry would store it.
	ids := map[string]string{"1255217154": "10", "2": "11"}
	var stored []registry.Record
	for _, p := range first.Participants {
		base := p.Record(ids[p.ParticipantID])
		base["id"] = p.ParticipantID
		stored = append(stored, base)
	}
	for _, r := range first.Responses {
		resolved, ok := r.Ref.Resolve(ids)
		require.True(t, ok)
		r.Ref = resolved
		rec, err := r.Record()
		require.NoError(t, err)
		if !r.Repeat {
			// non-repeating forms merge into the base row
			for _, base := range stored {
				if base["study_id"] == rec["study_id"] {
					for k, v := range rec {
						base[k] = v
					}
				}
			}
			continue
		}
		stored = append(stored, rec)
	}

	second, err := engine(sink).Reconcile(exp, snapshot.Build(stored, sink))
	require.NoError(t, err)
	assert.True(t, second.Empty(), "second run: %+v", second)
}

func TestReconcileConsentHasNoEnvelope(t *testing.T) {
	sink := diag.Discard()
	exp := newExport(t,
		export.Table{patient("p", "1")},
		export.Table{responseRow("c1", "p", "MENTAL HEALTH MISSION MOOD DISORDER COHORT STUDY - Patient Information Sheet & Informed Consent Form", `{"QuestionScores":[]}`)},
		sink)

	res, err := engine(sink).Reconcile(exp, snapshot.Build(nil, sink))
	require.NoError(t, err)
	require.Len(t, res.Responses, 1)
	r := res.Responses[0]
	assert.False(t, r.Repeat)
	assert.Zero(t, r.Instance)

	r.Ref = registry.Resolved("4")
	rec, err := r.Record()
	require.NoError(t, err)
	assert.NotContains(t, rec, "redcap_repeat_instrument")
	assert.NotContains(t, rec, "redcap_repeat_instance")
	assert.Equal(t, "c1", rec["consent_response_id"])
}

func TestReconcileSkipsUnclassifiableRows(t *testing.T) {
	sink := diag.Discard()
	bad := responseRow("bad", "p", "Depression (PHQ-9)", "")
	bad["interoperability"] = "{not json"
	exp := newExport(t,
		export.Table{patient("p", "1")},
		export.Table{
			bad,
			responseRow("unknown", "p", "Some Other Scale", ""),
			responseRow("orphan", "ghost", "Depression (PHQ-9)", phq9Scores("1", "9")),
			responseRow("ok", "p", "Depression (PHQ-9)", phq9Scores("1", "9")),
			responseRow("ok", "p", "Depression (PHQ-9)", phq9Scores("1", "9")),
		},
		sink)

	res, err := engine(sink).Reconcile(exp, snapshot.Build(nil, sink))
	require.NoError(t, err)

	require.Len(t, res.Responses, 1)
	assert.Equal(t, "ok", res.Responses[0].ResponseID)
	assert.Equal(t, "9", res.Responses[0].Fields["phq9_score_total_float"])
	assert.NoError(t, res.Check())

	assert.Len(t, sink.Messages(diag.KindDecode), 1)
	classification := sink.Messages(diag.KindClassification)
	require.Len(t, classification, 4)
	assert.Equal(t, "Questionnaire response id=bad missing interoperability field.", classification[0])
	assert.Equal(t, "Questionnaire response id=unknown has unrecognised title Some Other Scale.", classification[1])
	assert.Contains(t, classification[2], "unknown participant ghost")
	assert.Contains(t, classification[3], "more than once")
}

func TestReconcileMissingTables(t *testing.T) {
	e := engine(nil)

	_, err := e.Reconcile(export.FromTables(map[string]export.Table{
		export.PatientTable: {},
	}, nil), nil)
	assert.ErrorIs(t, err, export.ErrMissingTable)

	_, err = e.Reconcile(export.FromTables(map[string]export.Table{
		export.ResponseTable: {},
	}, nil), nil)
	assert.ErrorIs(t, err, export.ErrMissingTable)
}

func TestReconcileDuplicatePatientRow(t *testing.T) {
	sink := diag.Discard()
	exp := newExport(t, export.Table{patient("p", "1"), patient("p", "1"), {"id": ""}}, export.Table{}, sink)

	res, err := engine(sink).Reconcile(exp, snapshot.Build(nil, sink))
	require.NoError(t, err)
	assert.Len(t, res.Participants, 1)
	assert.Len(t, sink.Messages(diag.KindClassification), 2)
}

func TestCheckDetectsDanglingPendingRef(t *testing.T) {
	res := &Result{Responses: []NewResponse{{Ref: registry.Pending("x"), ResponseID: "r"}}}
	assert.Error(t, res.Check())
}

func TestCheckAcceptsPendingRefToNewParticipant(t *testing.T) {
	res := &Result{
		Participants: []NewParticipant{{ParticipantID: "x"}},
		Responses: []NewResponse{
			{Ref: registry.Pending("x"), ResponseID: "r1"},
			{Ref: registry.Resolved("4"), ResponseID: "r2"},
		},
	}
	assert.NoError(t, res.Check())

	p, ok := res.Participant("x")
	require.True(t, ok)
	assert.Equal(t, "x", p.ParticipantID)
	_, ok = res.Participant("y")
	assert.False(t, ok)
}

func TestReconcileSkipsParticipantWithoutStudyID(t *testing.T) {
	sink := diag.Discard()
	exp := newExport(t,
		export.Table{patient("1255217154", "9910362813")},
		export.Table{responseRow("1589930675", "1255217154", "Depression (PHQ-9)", phq9Scores("3.0", "27.0"))},
		sink)
	records := []registry.Record{
		{"study_id": "", "id": "1255217154", "redcap_repeat_instrument": "", "redcap_repeat_instance": ""},
	}

	res, err := engine(sink).Reconcile(exp, snapshot.Build(records, sink))
	require.NoError(t, err)

	assert.Empty(t, res.Participants, "the participant is already registered")
	assert.Empty(t, res.Responses)
	assert.Contains(t, sink.Messages(diag.KindConsistency),
		"Questionnaire response id=1589930675 skipped: participant 1255217154 has no study id in REDCap.")
}
