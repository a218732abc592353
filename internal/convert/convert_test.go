package convert

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/trdsync/internal/diag"
	"github.com/roach88/trdsync/internal/export"
	"github.com/roach88/trdsync/internal/questionnaire"
	"github.com/roach88/trdsync/internal/registry"
)

var fixedNow = time.Date(2024, 11, 6, 9, 30, 0, 123456000, time.UTC)

func patientRow() export.Row {
	return export.Row{
		"id":               "1255217154",
		"nhsnumber":        "9910362813",
		"birthdate":        "1985-03-14",
		"contactemail":     "participant@example.com",
		"mobilenumber":     "07700900000",
		"firstname":        "Alex",
		"lastname":         "Smith",
		"preferredcontact": "email",
		"gender":           "2",
		"deceasedboolean":  "false",
		"deceaseddatetime": "",
		"userid":           "not-kept",
	}
}

func TestParticipant(t *testing.T) {
	private, info := Participant(patientRow(), fixedNow)

	assert.Equal(t, Private{
		"datetime":         "2024-11-06T09:30:00.123456",
		"id":               "1255217154",
		"nhsnumber":        "9910362813",
		"birthdate":        "1985-03-14",
		"contactemail":     "participant@example.com",
		"mobilenumber":     "07700900000",
		"firstname":        "Alex",
		"lastname":         "Smith",
		"preferredcontact": "email",
	}, private)

	assert.Equal(t, Info{
		"info_datetime":          "2024-11-06T09:30:00.123456",
		"info_birthyear_int":     "1985",
		"info_gender_int":        "2",
		"info_is_deceased_bool":  "false",
		"info_deceased_datetime": "",
		"info_is_test_bool":      false,
	}, info)
}

func TestParticipantTestAccount(t *testing.T) {
	row := patientRow()
	row["nhsnumber"] = "9990001234"
	_, info := Participant(row, fixedNow)
	assert.Equal(t, true, info["info_is_test_bool"])
}

func TestParticipantSparseRow(t *testing.T) {
	private, info := Participant(export.Row{"id": "5"}, fixedNow)
	assert.Equal(t, Private{"datetime": "2024-11-06T09:30:00.123456", "id": "5"}, private)
	assert.Equal(t, "", info["info_birthyear_int"])
	assert.Equal(t, false, info["info_is_test_bool"])
}

func TestResponseUnknownTitle(t *testing.T) {
	resp := export.ResponseRow{
		Fields:           export.Row{"id": "1"},
		Interoperability: &export.Interoperability{Title: "Not a questionnaire"},
	}
	_, err := Response(resp, diag.Discard())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownQuestionnaire))
	assert.Contains(t, err.Error(), "Not a questionnaire")
}

func TestResponseMissingInteroperability(t *testing.T) {
	_, err := Response(export.ResponseRow{Fields: export.Row{"id": "1"}}, diag.Discard())
	assert.ErrorIs(t, err, ErrUnknownQuestionnaire)
}

func TestResponseDispatchesByTitle(t *testing.T) {
	resp := dummyResponse(mustDef(t, "wsas"))
	fields, err := Response(resp, diag.Discard())
	require.NoError(t, err)
	assert.Equal(t, "0", fields["wsas_1_work_float"])
	assert.Equal(t, "0", fields["wsas_score_total_float"])
}

func mustDef(t *testing.T, code string) questionnaire.Definition {
	t.Helper()
	d, ok := questionnaire.ByCode(code)
	require.True(t, ok, code)
	return d
}

func TestManifestCoversEveryDefinition(t *testing.T) {
	m := BuildManifest()
	require.Len(t, m, len(questionnaire.All())+2)
	assert.Equal(t, InstrumentPrivate, m[0].Name)
	assert.Equal(t, InstrumentInfo, m[1].Name)
	assert.Equal(t, "consent", m[2].Name)

	for _, def := range questionnaire.All() {
		inst, ok := m.Lookup(def.Code)
		require.True(t, ok, def.Code)
		assert.NotEmpty(t, inst.Fields)
		assert.Contains(t, inst.Fields, questionnaire.ResponseIDField(def.Code))
		assert.Contains(t, inst.Fields, questionnaire.DatetimeField(def.Code))
		assert.Len(t, inst.Fields, expectedFieldCount(def), def.Code)
	}
}

func expectedFieldCount(def questionnaire.Definition) int {
	if def.Strategy == questionnaire.StrategyConsent {
		return len(questionnaire.ConsentSlots) + 2
	}
	return len(def.Items) + len(def.Scores) + 2
}

func TestManifestDumpGolden(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, BuildManifest().Dump(&buf))

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "manifest", buf.Bytes())
}

func TestManifestValidate(t *testing.T) {
	m := BuildManifest()

	assert.ErrorIs(t, m.Validate(nil), ErrEmptyRegistry)

	full := registry.Record{}
	for _, f := range m.Fields() {
		full[f] = ""
	}
	assert.NoError(t, m.Validate([]registry.Record{full}))

	delete(full, "phq9_score_total_float")
	err := m.Validate([]registry.Record{full})
	var missing *MissingFieldError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "phq9", missing.Instrument)
	assert.Equal(t, "phq9_score_total_float", missing.Field)
}

func TestManifestRestrict(t *testing.T) {
	m := BuildManifest().Restrict([]string{"phq9_response_id", "gad7_response_id", "not_a_field"})
	require.Len(t, m, 2)

	phq9, ok := m.Lookup("phq9")
	require.True(t, ok)
	assert.Equal(t, []string{"phq9_response_id"}, phq9.Fields)

	_, ok = m.Lookup("private")
	assert.False(t, ok)

	assert.NoError(t, m.Validate([]registry.Record{{"phq9_response_id": "", "gad7_response_id": ""}}))
}
