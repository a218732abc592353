package convert

import (
	"errors"
	"fmt"

	"github.com/roach88/trdsync/internal/diag"
	"github.com/roach88/trdsync/internal/export"
	"github.com/roach88/trdsync/internal/questionnaire"
)

// ErrUnknownQuestionnaire is returned when a response cannot be matched to a
// catalogued questionnaire.
var ErrUnknownQuestionnaire = errors.New("unknown questionnaire")

// Definition resolves the questionnaire a response belongs to by its
// interoperability title.
func Definition(resp export.ResponseRow) (questionnaire.Definition, error) {
	if resp.Interoperability == nil {
		return questionnaire.Definition{}, fmt.Errorf("%w: response %s has no interoperability data", ErrUnknownQuestionnaire, resp.ID())
	}
	def, ok := questionnaire.ByName(resp.Title())
	if !ok {
		return questionnaire.Definition{}, fmt.Errorf("%w: %q", ErrUnknownQuestionnaire, resp.Title())
	}
	return def, nil
}

// Response flattens a questionnaire response into registry fields.
func Response(resp export.ResponseRow, sink *diag.Sink) (map[string]string, error) {
	def, err := Definition(resp)
	if err != nil {
		return nil, err
	}
	return def.Convert(resp, sink), nil
}
