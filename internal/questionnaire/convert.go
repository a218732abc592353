package questionnaire

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/trdsync/internal/diag"
	"github.com/roach88/trdsync/internal/export"
)

// Field-name suffixes for generated registry fields.
const (
	suffixFloat = "_float"
	suffixStr   = "_str"
)

// ConsentSlots are the consent-form question numbers exported to the registry.
// Question 18 is a signature and is never exported.
var ConsentSlots = []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 19}

// Convert flattens resp into registry fields using the definition's strategy.
// Items or categories missing from the payload are reported on sink and
// omitted, never defaulted.
func (d Definition) Convert(resp export.ResponseRow, sink *diag.Sink) map[string]string {
	if sink == nil {
		sink = diag.Discard()
	}
	switch d.Strategy {
	case StrategyConsent:
		return convertConsent(d, resp, sink)
	case StrategyDisplayValues:
		return convertItems(d, resp, sink, suffixStr, func(q export.QuestionScore) string {
			return q.DisplayValue
		}, func(c export.CategoryScore) string {
			return c.DisplayValue
		})
	default:
		return convertItems(d, resp, sink, suffixFloat, func(q export.QuestionScore) string {
			return FormatScore(q.Score.String())
		}, func(c export.CategoryScore) string {
			return FormatScore(c.Score.String())
		})
	}
}

func header(d Definition, resp export.ResponseRow) map[string]string {
	return map[string]string{
		ResponseIDField(d.Code): resp.ID(),
		DatetimeField(d.Code):   resp.Submitted(),
	}
}

func convertItems(
	d Definition,
	resp export.ResponseRow,
	sink *diag.Sink,
	suffix string,
	itemValue func(export.QuestionScore) string,
	categoryValue func(export.CategoryScore) string,
) map[string]string {
	out := header(d, resp)

	for i, item := range d.Items {
		position := i + 1
		q, ok := resp.Scores.Question(position)
		if !ok {
			sink.Warnf(diag.KindConversion, "%s[%s]: no question %d (%s) in scores", d.Code, resp.ID(), position, item)
			continue
		}
		out[fmt.Sprintf("%s_%d_%s%s", d.Code, position, NormalizeKey(item), suffix)] = itemValue(q)
	}

	for _, name := range d.Scores {
		c, ok := resp.Scores.Category(name)
		if !ok {
			sink.Warnf(diag.KindConversion, "%s[%s]: no %q in category scores", d.Code, resp.ID(), name)
			continue
		}
		out[fmt.Sprintf("%s_score_%s%s", d.Code, NormalizeKey(name), suffix)] = categoryValue(c)
	}

	return out
}

func convertConsent(d Definition, resp export.ResponseRow, sink *diag.Sink) map[string]string {
	out := header(d, resp)
	for _, n := range ConsentSlots {
		q, ok := resp.Scores.Question(n)
		if !ok {
			sink.Warnf(diag.KindConversion, "%s[%s]: no question %d in scores", d.Code, resp.ID(), n)
			continue
		}
		out[fmt.Sprintf("%s_%d%s", d.Code, n, suffixStr)] = q.DisplayValue
	}
	return out
}

// FormatScore renders a numeric literal the way the registry expects it:
// integral literals keep their integer text, anything else is rendered as the
// shortest round-tripping float with at least one decimal ("3.0", "0.25").
// Text that is not a number is returned trimmed but otherwise unchanged.
func FormatScore(v string) string {
	s := strings.TrimSpace(v)
	if s == "" {
		return ""
	}
	if !strings.ContainsAny(s, ".eE") {
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return strconv.FormatInt(i, 10)
		}
		return s
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return s
	}
	return formatFloat(f)
}

func formatFloat(f float64) string {
	sci := strconv.FormatFloat(f, 'e', -1, 64)
	exp, err := strconv.Atoi(sci[strings.IndexByte(sci, 'e')+1:])
	if err != nil || exp < -4 || exp >= 16 {
		return sci
	}
	fixed := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.Contains(fixed, ".") {
		fixed += ".0"
	}
	return fixed
}
