// Package convert maps export rows into the flat field sets the registry
// imports.
package convert

import (
	"strings"
	"time"

	"github.com/roach88/trdsync/internal/export"
)

// TimestampLayout is the layout of the datetime fields stamped on participant
// projections.
const TimestampLayout = "2006-01-02T15:04:05.000000"

// TestNHSPrefix marks NHS numbers reserved for test accounts.
const TestNHSPrefix = "999"

// privateFields are passed through from the patient row unchanged.
var privateFields = []string{
	"id",
	"nhsnumber",
	"birthdate",
	"contactemail",
	"mobilenumber",
	"firstname",
	"lastname",
	"preferredcontact",
}

// Private holds a participant's identifying data. It is stored on the
// registry's "private" instrument and never shown to analysts.
type Private map[string]string

// Info holds de-identified fields derived from a participant row.
type Info map[string]any

// Participant projects a patient row into its private and info parts.
// Source values are passed through as strings; only info_is_test_bool is a
// native boolean.
func Participant(row export.Row, now time.Time) (Private, Info) {
	stamp := now.Format(TimestampLayout)

	private := Private{"datetime": stamp}
	for _, k := range privateFields {
		if v, ok := row[k]; ok {
			private[k] = v
		}
	}

	birthyear, _, _ := strings.Cut(row["birthdate"], "-")
	info := Info{
		"info_datetime":          stamp,
		"info_birthyear_int":     birthyear,
		"info_gender_int":        row["gender"],
		"info_is_deceased_bool":  row["deceasedboolean"],
		"info_deceased_datetime": row["deceaseddatetime"],
		"info_is_test_bool":      strings.HasPrefix(row["nhsnumber"], TestNHSPrefix),
	}
	return private, info
}
