package snapshot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/trdsync/internal/diag"
	"github.com/roach88/trdsync/internal/registry"
)

func rec(kv ...string) registry.Record {
	r := registry.Record{}
	for i := 0; i+1 < len(kv); i += 2 {
		r[kv[i]] = kv[i+1]
	}
	return r
}

func TestBuildGroupsByParticipant(t *testing.T) {
	records := []registry.Record{
		rec("study_id", "101", "id", "one-oh-one", "redcap_repeat_instrument", "", "redcap_repeat_instance", ""),
		rec("study_id", "101", "id", "one-oh-one", "redcap_repeat_instrument", "phq9", "redcap_repeat_instance", "1", "phq9_response_id", "1111111"),
		rec("study_id", "101", "id", "one-oh-one", "redcap_repeat_instrument", "phq9", "redcap_repeat_instance", "2", "phq9_response_id", "121212"),
		rec("study_id", "101", "id", "one-oh-one", "redcap_repeat_instrument", "gad7", "redcap_repeat_instance", "1", "gad7_response_id", "2222222"),
		rec("study_id", "102", "id", "one-oh-two", "redcap_repeat_instrument", "gad7", "redcap_repeat_instance", "1", "gad7_response_id", "1231241"),
		rec("study_id", "102", "id", "one-oh-two", "redcap_repeat_instrument", "private", "redcap_repeat_instance", "1"),
	}
	sink := diag.Discard()

	ix := Build(records, sink)

	require.Equal(t, 2, ix.Len())

	e, ok := ix.Get("one-oh-one")
	require.True(t, ok)
	assert.Equal(t, "101", e.StudyID)
	assert.Equal(t, []Pair{{"1111111", 1}, {"121212", 2}}, e.Pairs("phq9"))
	assert.Equal(t, []Pair{{"2222222", 1}}, e.Pairs("gad7"))
	assert.Empty(t, e.Pairs("wsas"))
	assert.NotNil(t, e.Pairs("wsas"))
	assert.Equal(t, 2, e.MaxInstance("phq9"))
	assert.Equal(t, 0, e.MaxInstance("mania"))
	assert.True(t, e.Has("phq9", "121212"))
	assert.False(t, e.Has("gad7", "121212"))

	e, ok = ix.Get("one-oh-two")
	require.True(t, ok)
	assert.Equal(t, "102", e.StudyID)
	assert.Equal(t, []Pair{{"1231241", 1}}, e.Pairs("gad7"))

	assert.Zero(t, sink.Len(), "housekeeping instruments are not reported")
}

func TestBuildSkipsEmptyStudyID(t *testing.T) {
	records := []registry.Record{
		rec("study_id", "", "id", "p-9", "redcap_repeat_instrument", "", "redcap_repeat_instance", ""),
		rec("study_id", "9", "id", "p-9", "redcap_repeat_instrument", "phq9", "redcap_repeat_instance", "1", "phq9_response_id", "90"),
		rec("study_id", "", "id", "p-10", "redcap_repeat_instrument", "", "redcap_repeat_instance", ""),
	}
	sink := diag.Discard()

	ix := Build(records, sink)

	e, ok := ix.Get("p-9")
	require.True(t, ok)
	assert.Equal(t, "9", e.StudyID, "a later non-empty study id replaces an empty one")
	assert.Equal(t, []Pair{{"90", 1}}, e.Pairs("phq9"))

	e, ok = ix.Get("p-10")
	require.True(t, ok)
	assert.Equal(t, "", e.StudyID)

	assert.Equal(t, []string{
		"participant p-9 has a row without a study id",
		"participant p-10 has a row without a study id",
	}, sink.Messages(diag.KindConsistency))
}

func TestBuildAttributesRowsByStudyID(t *testing.T) {
	records := []registry.Record{
		rec("study_id", "7", "id", "", "redcap_repeat_instrument", "phq9", "redcap_repeat_instance", "3", "phq9_response_id", "55"),
		rec("study_id", "7", "id", "p-7", "redcap_repeat_instrument", "private", "redcap_repeat_instance", "1"),
	}
	ix := Build(records, diag.Discard())

	e, ok := ix.Get("p-7")
	require.True(t, ok)
	assert.Equal(t, []Pair{{"55", 3}}, e.Pairs("phq9"))
	_, ok = ix.Get("")
	assert.False(t, ok)
}

func TestBuildUnattributedRowWarns(t *testing.T) {
	sink := diag.Discard()
	ix := Build([]registry.Record{
		rec("study_id", "9", "redcap_repeat_instrument", "phq9", "redcap_repeat_instance", "1", "phq9_response_id", "1"),
	}, sink)
	assert.Zero(t, ix.Len())
	assert.Len(t, sink.Messages(diag.KindConsistency), 1)
}

func TestBuildIndexesConsentFromBaseRow(t *testing.T) {
	ix := Build([]registry.Record{
		rec("study_id", "1", "id", "p1", "redcap_repeat_instrument", "", "consent_response_id", "c-1", "phq9_response_id", ""),
	}, diag.Discard())

	e, ok := ix.Get("p1")
	require.True(t, ok)
	assert.Equal(t, []Pair{{"c-1", 1}}, e.Pairs("consent"))
	assert.Empty(t, e.Pairs("phq9"))
}

func TestBuildDivergingStudyIDFirstWins(t *testing.T) {
	sink := diag.Discard()
	ix := Build([]registry.Record{
		rec("study_id", "1", "id", "p1"),
		rec("study_id", "2", "id", "p1"),
	}, sink)

	e, _ := ix.Get("p1")
	assert.Equal(t, "1", e.StudyID)
	msgs := sink.Messages(diag.KindConsistency)
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "study ids 1 and 2")
}

func TestBuildConflictingInstanceFirstWins(t *testing.T) {
	sink := diag.Discard()
	ix := Build([]registry.Record{
		rec("study_id", "1", "id", "p1", "redcap_repeat_instrument", "phq9", "redcap_repeat_instance", "1", "phq9_response_id", "r"),
		rec("study_id", "1", "id", "p1", "redcap_repeat_instrument", "phq9", "redcap_repeat_instance", "4", "phq9_response_id", "r"),
		rec("study_id", "1", "id", "p1", "redcap_repeat_instrument", "phq9", "redcap_repeat_instance", "1", "phq9_response_id", "r"),
	}, sink)

	e, _ := ix.Get("p1")
	assert.Equal(t, []Pair{{"r", 1}}, e.Pairs("phq9"))
	msgs := sink.Messages()
	require.Len(t, msgs, 1, "an identical duplicate is not reported")
	assert.Equal(t, "phq9[r] has instance 4, but this id is already associated with instance 1", msgs[0])
}

func TestBuildUnknownInstrumentWarns(t *testing.T) {
	sink := diag.Discard()
	Build([]registry.Record{
		rec("study_id", "1", "id", "p1", "redcap_repeat_instrument", "mystery", "redcap_repeat_instance", "1"),
	}, sink)
	assert.Equal(t, []string{"unrecognised redcap_repeat_instrument value: mystery"}, sink.Messages())
}

func TestBuildInvalidInstanceWarns(t *testing.T) {
	sink := diag.Discard()
	ix := Build([]registry.Record{
		rec("study_id", "1", "id", "p1", "redcap_repeat_instrument", "gad7", "redcap_repeat_instance", "x", "gad7_response_id", "g"),
	}, sink)
	e, _ := ix.Get("p1")
	assert.Equal(t, []Pair{{"g", 0}}, e.Pairs("gad7"))
	assert.Len(t, sink.Messages(diag.KindConsistency), 1)
}

func TestFields(t *testing.T) {
	f := Fields()
	assert.Equal(t, []string{"study_id", "id", "gad7_response_id"}, f[:3])
	assert.Contains(t, f, "consent_response_id")
	assert.Len(t, f, 16)
}

func TestNilIndex(t *testing.T) {
	var ix *Index
	_, ok := ix.Get("x")
	assert.False(t, ok)
	assert.Zero(t, ix.Len())
}
