package upload

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/trdsync/internal/convert"
	"github.com/roach88/trdsync/internal/diag"
	"github.com/roach88/trdsync/internal/reconcile"
	"github.com/roach88/trdsync/internal/registry"
	"github.com/roach88/trdsync/internal/testutil"
)

func participant(id string) reconcile.NewParticipant {
	return reconcile.NewParticipant{
		ParticipantID: id,
		Private:       convert.Private{"id": id, "datetime": "now"},
		Info:          convert.Info{"info_is_test_bool": false},
	}
}

func response(ref registry.StudyRef, rid string, instance int) reconcile.NewResponse {
	return reconcile.NewResponse{
		Ref:        ref,
		Instrument: "phq9",
		ResponseID: rid,
		Repeat:     true,
		Instance:   instance,
		Fields:     map[string]string{"phq9_response_id": rid},
	}
}

func sampleResult() *reconcile.Result {
	return &reconcile.Result{
		Participants: []reconcile.NewParticipant{participant("p-new"), participant("p-other")},
		Responses: []reconcile.NewResponse{
			response(registry.Pending("p-new"), "r1", 1),
			response(registry.Resolved("10"), "r2", 3),
			response(registry.Resolved("2"), "r3", 1),
			response(registry.Pending("p-other"), "r4", 1),
		},
	}
}

func TestUploadResolvesAndSorts(t *testing.T) {
	ctx := context.Background()
	fake := testutil.NewFakeRegistry(1, registry.Record{"study_id": "10"}, registry.Record{"study_id": "2"})
	sink := diag.Discard()

	report, err := New(fake, sink).Upload(ctx, sampleResult())
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"p-new": "11", "p-other": "12"}, report.StudyIDs)
	assert.Equal(t, 6, report.Attempted)
	assert.Equal(t, 6, report.Imported)
	assert.Equal(t, 2, report.ImportedParticipants)
	assert.Equal(t, 4, report.ImportedResponses)
	assert.Zero(t, report.Shortfall())
	assert.Equal(t, []string{"r1", "r2", "r3", "r4"}, report.ResponseIDs)

	// two participant rows, then one response batch
	require.Len(t, fake.Imports, 3)
	assert.Equal(t, "11", fake.Imports[0][0]["study_id"])
	assert.Equal(t, "p-new", fake.Imports[0][0]["id"])
	assert.Equal(t, false, fake.Imports[0][0]["info_is_test_bool"])

	var order []string
	for _, r := range fake.Imports[2] {
		order = append(order, r.String("study_id")+"/"+r.String("phq9_response_id"))
	}
	assert.Equal(t, []string{"2/r3", "10/r2", "11/r1", "12/r4"}, order)
	assert.Equal(t, "3", fake.Imports[2][1]["redcap_repeat_instance"])
	assert.Zero(t, sink.Len())
}

func TestUploadDryRunImportsNothing(t *testing.T) {
	fake := testutil.NewFakeRegistry(1)
	report, err := New(fake, nil, WithDryRun(true)).Upload(context.Background(), sampleResult())
	require.NoError(t, err)

	assert.Empty(t, fake.Imports)
	assert.True(t, report.DryRun)
	assert.Equal(t, 6, report.Attempted)
	assert.Zero(t, report.Imported)
	assert.Zero(t, report.Shortfall())

	// nothing was imported between the two requests, so the ids repeat
	assert.Equal(t, map[string]string{"p-new": "1", "p-other": "1"}, report.StudyIDs)
	assert.Equal(t, []string{"p-new: 1", "p-other: 1"}, report.ProvisionalStudyIDs())
}

func TestProvisionalStudyIDsOnlyInDryRun(t *testing.T) {
	report := &Report{StudyIDs: map[string]string{"p": "3"}}
	assert.Nil(t, report.ProvisionalStudyIDs())
	report.DryRun = true
	assert.Equal(t, []string{"p: 3"}, report.ProvisionalStudyIDs())
}

func TestUploadReportsShortfall(t *testing.T) {
	fake := testutil.NewFakeRegistry(1)
	res := &reconcile.Result{Responses: []reconcile.NewResponse{
		response(registry.Resolved("1"), "a", 1),
		response(registry.Resolved("1"), "b", 2),
		response(registry.Resolved("1"), "c", 3),
	}}
	fake.ImportLimit = 2
	sink := diag.Discard()

	report, err := New(fake, sink).Upload(context.Background(), res)
	require.NoError(t, err)

	assert.Equal(t, 3, report.Attempted)
	assert.Equal(t, 2, report.Imported)
	assert.Equal(t, 2, report.ImportedResponses)
	assert.Equal(t, 1, report.Shortfall())
	assert.Equal(t, []string{"Failed to import new questionnaire responses. Tried 3, succeeded with 2"}, sink.Messages(diag.KindUpload))
}

func TestUploadUnresolvedParticipantIsFatal(t *testing.T) {
	fake := testutil.NewFakeRegistry(1)
	res := &reconcile.Result{Responses: []reconcile.NewResponse{
		response(registry.Pending("ghost"), "a", 1),
	}}
	sink := diag.Discard()

	_, err := New(fake, sink).Upload(context.Background(), res)
	require.ErrorIs(t, err, ErrUnresolvedParticipant)
	assert.Contains(t, err.Error(), "ghost")
	assert.Empty(t, fake.Imports)
	assert.Len(t, sink.Messages(diag.KindResolution), 1)
}

func TestUploadIDGenerationFailureIsFatal(t *testing.T) {
	fake := testutil.NewFakeRegistry(1)
	fake.GenerateErr = errors.New("registry unreachable")

	_, err := New(fake, nil).Upload(context.Background(), sampleResult())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "p-new")
	assert.Empty(t, fake.Imports)
}

func TestUploadImportErrorIsFatal(t *testing.T) {
	fake := testutil.NewFakeRegistry(1)
	fake.ImportErr = errors.New("503")
	res := &reconcile.Result{Responses: []reconcile.NewResponse{response(registry.Resolved("1"), "a", 1)}}

	_, err := New(fake, nil).Upload(context.Background(), res)
	assert.ErrorContains(t, err, "importing records")
}

func TestUploadNothingToDo(t *testing.T) {
	fake := testutil.NewFakeRegistry(1)
	report, err := New(fake, nil).Upload(context.Background(), &reconcile.Result{})
	require.NoError(t, err)
	assert.Zero(t, report.Attempted)
	assert.Empty(t, fake.Imports)
}

func TestSortByStudyID(t *testing.T) {
	records := []registry.Record{
		{"study_id": "b", "n": "1"},
		{"study_id": "10", "n": "2"},
		{"study_id": "9", "n": "3"},
		{"study_id": "a", "n": "4"},
		{"study_id": "9", "n": "5"},
	}
	SortByStudyID(records)

	var got []string
	for _, r := range records {
		got = append(got, r.String("n"))
	}
	assert.Equal(t, []string{"3", "5", "2", "4", "1"}, got)
}
