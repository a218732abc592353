// Package questionnaire is the static catalogue of questionnaires exported by
// True Colours and tracked in the registry.
//
// Each Definition carries the display name used by the export (the join key
// with a response's interoperability title), the short code that namespaces
// every generated registry field, the ordered item names, the category scores
// to extract, and the conversion Strategy that turns a response into registry
// fields.
package questionnaire

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Strategy selects how a response is flattened into registry fields.
type Strategy int

const (
	// StrategyScores emits numeric item and category scores ("_float").
	StrategyScores Strategy = iota

	// StrategyDisplayValues emits the human-readable answers ("_str").
	StrategyDisplayValues

	// StrategyConsent emits the fixed consent-form slots.
	StrategyConsent
)

func (s Strategy) String() string {
	switch s {
	case StrategyScores:
		return "scores"
	case StrategyDisplayValues:
		return "display-values"
	case StrategyConsent:
		return "consent"
	default:
		return fmt.Sprintf("Strategy(%d)", int(s))
	}
}

// Definition describes one questionnaire.
type Definition struct {
	Name     string
	Code     string
	Items    []string
	Scores   []string
	Strategy Strategy

	// Repeat reports whether a participant may have several responses.
	// Repeating questionnaires are stored as registry repeat instruments.
	Repeat bool
}

var (
	byName = make(map[string]*Definition)
	byCode = make(map[string]*Definition)
)

func init() {
	for i := range catalogue {
		d := &catalogue[i]
		if _, dup := byName[d.Name]; dup {
			panic(fmt.Sprintf("questionnaire: duplicate name %q", d.Name))
		}
		if _, dup := byCode[d.Code]; dup {
			panic(fmt.Sprintf("questionnaire: duplicate code %q", d.Code))
		}
		byName[d.Name] = d
		byCode[d.Code] = d
	}
}

// ByName looks a definition up by its display name.
func ByName(name string) (Definition, bool) {
	d, ok := byName[name]
	if !ok {
		return Definition{}, false
	}
	return *d, true
}

// ByCode looks a definition up by its short code.
func ByCode(code string) (Definition, bool) {
	d, ok := byCode[code]
	if !ok {
		return Definition{}, false
	}
	return *d, true
}

// All returns every definition in catalogue order.
func All() []Definition {
	out := make([]Definition, len(catalogue))
	copy(out, catalogue)
	return out
}

// Codes returns every short code, sorted.
func Codes() []string {
	codes := make([]string, 0, len(catalogue))
	for _, d := range catalogue {
		codes = append(codes, d.Code)
	}
	sort.Strings(codes)
	return codes
}

// ResponseIDField is the registry field holding a response's source id.
func ResponseIDField(code string) string {
	return code + "_response_id"
}

// DatetimeField is the registry field holding a response's submission time.
func DatetimeField(code string) string {
	return code + "_datetime"
}

// NormalizeKey turns a display label into a registry field-name fragment:
// lowercased, trimmed, hyphens and spaces replaced by underscores, plus signs
// removed.
func NormalizeKey(key string) string {
	k := strings.ToLower(norm.NFC.String(key))
	k = strings.TrimSpace(k)
	k = strings.ReplaceAll(k, "-", "_")
	k = strings.ReplaceAll(k, " ", "_")
	return strings.ReplaceAll(k, "+", "")
}
