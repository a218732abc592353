package export

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Embedded-JSON columns of the questionnaire response table.
const (
	ColumnResponses        = "responses"
	ColumnScores           = "scores"
	ColumnInteroperability = "interoperability"
)

// Scalar is a JSON scalar kept as its literal text. Numbers keep their
// digits, strings are unquoted, booleans keep their literal and null is empty.
type Scalar string

// UnmarshalJSON accepts any scalar. Objects and arrays are kept as raw text.
func (s *Scalar) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*s = ""
	case len(b) > 0 && b[0] == '"':
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		*s = Scalar(str)
	default:
		*s = Scalar(b)
	}
	return nil
}

// MarshalJSON writes numeric text as a number literal and anything else as a
// string. The empty value is null.
func (s Scalar) MarshalJSON() ([]byte, error) {
	if s == "" {
		return []byte("null"), nil
	}
	if s.numeric() {
		return []byte(s), nil
	}
	return json.Marshal(string(s))
}

func (s Scalar) String() string { return string(s) }

func (s Scalar) numeric() bool {
	if s == "" || !(s[0] == '-' || (s[0] >= '0' && s[0] <= '9')) {
		return false
	}
	var n json.Number
	return json.Unmarshal([]byte(s), &n) == nil
}

// Ordinal is a 1-based position that decodes from a number or a numeric
// string. Any other value decodes as 0, which matches no position.
type Ordinal int

func (o *Ordinal) UnmarshalJSON(b []byte) error {
	var v Scalar
	if err := v.UnmarshalJSON(b); err != nil {
		return err
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v.String()), 64)
	if err != nil || f != math.Trunc(f) || f < 0 || f > math.MaxInt32 {
		*o = 0
		return nil
	}
	*o = Ordinal(f)
	return nil
}

// QuestionScore is the per-question entry of a scores payload.
// QuestionNumber is 1-based and positionally aligned with the questionnaire's
// item list.
type QuestionScore struct {
	QuestionNumber    Ordinal `json:"QuestionNumber"`
	QuestionShortName string  `json:"QuestionShortName"`
	Score             Scalar  `json:"Score"`
	DisplayValue      string  `json:"DisplayValue"`
}

// CategoryScore is a summary score (e.g. "Total") of a scores payload.
type CategoryScore struct {
	Name         string `json:"Name"`
	Score        Scalar `json:"Score"`
	IsTotal      bool   `json:"IsTotal"`
	DisplayValue string `json:"DisplayValue"`
}

// Scores is the decoded "scores" column.
type Scores struct {
	QuestionScores []QuestionScore `json:"QuestionScores"`
	CategoryScores []CategoryScore `json:"CategoryScores"`
}

// Question returns the question score with the given 1-based number.
func (s *Scores) Question(number int) (QuestionScore, bool) {
	if s == nil {
		return QuestionScore{}, false
	}
	for _, q := range s.QuestionScores {
		if int(q.QuestionNumber) == number {
			return q, true
		}
	}
	return QuestionScore{}, false
}

// Category returns the category score with the given name.
func (s *Scores) Category(name string) (CategoryScore, bool) {
	if s == nil {
		return CategoryScore{}, false
	}
	for _, c := range s.CategoryScores {
		if c.Name == name {
			return c, true
		}
	}
	return CategoryScore{}, false
}

// Interoperability is the decoded "interoperability" column. Title is the
// human-readable questionnaire name used to look up its definition.
type Interoperability struct {
	Title     string `json:"title"`
	Submitted string `json:"submitted"`
}

// ResponseRow is one questionnaire response with its JSON columns decoded.
// A payload is nil when its column was empty or malformed.
type ResponseRow struct {
	// Line is the 0-based data row index within the table.
	Line int

	// Fields holds the raw column values.
	Fields Row

	Answers          any
	Scores           *Scores
	Interoperability *Interoperability
}

// ID is the response identifier, unique within the source system.
func (r ResponseRow) ID() string { return r.Fields["id"] }

// PatientID is the owning participant's export identifier.
func (r ResponseRow) PatientID() string { return r.Fields["patientid"] }

// Submitted is the canonical submission timestamp: the interoperability
// payload's value when present, otherwise the row's own column.
func (r ResponseRow) Submitted() string {
	if r.Interoperability != nil && r.Interoperability.Submitted != "" {
		return r.Interoperability.Submitted
	}
	return r.Fields["submitted"]
}

// Title returns the interoperability title, or "" when the payload is missing.
func (r ResponseRow) Title() string {
	if r.Interoperability == nil {
		return ""
	}
	return r.Interoperability.Title
}

// DecodeResponseRow decodes the embedded JSON columns of row. onError is called
// for every column whose non-empty value fails to decode.
func DecodeResponseRow(line int, row Row, onError func(column string, err error, value string)) ResponseRow {
	out := ResponseRow{Line: line, Fields: row}

	if v := row[ColumnResponses]; v != "" {
		var answers any
		if err := json.Unmarshal([]byte(v), &answers); err != nil {
			onError(ColumnResponses, err, v)
		} else {
			out.Answers = answers
		}
	}

	if v := row[ColumnScores]; v != "" {
		var scores *Scores
		if err := json.Unmarshal([]byte(v), &scores); err != nil {
			onError(ColumnScores, err, v)
		} else {
			out.Scores = scores
		}
	}

	if v := row[ColumnInteroperability]; v != "" {
		var interop *Interoperability
		if err := json.Unmarshal([]byte(v), &interop); err != nil {
			onError(ColumnInteroperability, err, v)
		} else {
			out.Interoperability = interop
		}
	}

	return out
}
