package canonical

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalBasic(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected string
	}{
		{"string", "hello", `"hello"`},
		{"empty string", "", `""`},
		{"null", nil, "null"},
		{"int", 42, "42"},
		{"negative int64", int64(-100), "-100"},
		{"bool", true, "true"},
		{"number literal", json.Number("27.0"), "27.0"},
		{"float", 0.5, "0.5"},
		{"empty array", []any{}, "[]"},
		{"empty object", map[string]any{}, "{}"},
		{"string slice", []string{"b", "a"}, `["b","a"]`},
		{"string map", map[string]string{"b": "2", "a": "1"}, `{"a":"1","b":"2"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Marshal(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(result))
		})
	}
}

func TestMarshalSortedKeys(t *testing.T) {
	obj := map[string]any{
		"zebra": 1,
		"alpha": map[string]any{"b": 1, "a": 2},
		"beta":  []any{"x", nil},
	}

	result, err := Marshal(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":{"a":2,"b":1},"beta":["x",null],"zebra":1}`, string(result))
}

func TestMarshalUTF16Ordering(t *testing.T) {
	// U+FF61 sorts before U+1F600 in UTF-8 byte order but after it in UTF-16,
	// where the emoji is a surrogate pair starting 0xD83D.
	obj := map[string]any{"\uff61": 1, "\U0001F600": 2}
	result, err := Marshal(obj)
	require.NoError(t, err)
	assert.Equal(t, "{\"\U0001F600\":2,\"\uff61\":1}", string(result))
}

func TestMarshalNoHTMLEscape(t *testing.T) {
	result, err := Marshal("<b>Tom & Jerry</b>")
	require.NoError(t, err)
	assert.Equal(t, `"<b>Tom & Jerry</b>"`, string(result))
}

func TestMarshalNFC(t *testing.T) {
	decomposed := "Cafe\u0301"
	result, err := Marshal(map[string]any{decomposed: decomposed})
	require.NoError(t, err)
	assert.Equal(t, "{\"Caf\u00e9\":\"Caf\u00e9\"}", string(result))
}

func TestMarshalLineSeparators(t *testing.T) {
	result, err := Marshal("a\u2028b\u2029c")
	require.NoError(t, err)
	assert.Equal(t, "\"a\u2028b\u2029c\"", string(result))

	result, err = Marshal(`a\u2028b`)
	require.NoError(t, err)
	assert.Equal(t, `"a\\u2028b"`, string(result))
}

func TestMarshalStruct(t *testing.T) {
	type item struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
		Skip  string `json:"skip,omitempty"`
	}

	result, err := Marshal([]item{{Name: "<x>", Count: 3}})
	require.NoError(t, err)
	assert.Equal(t, `[{"count":3,"name":"<x>"}]`, string(result))
}

func TestMarshalUnsupported(t *testing.T) {
	_, err := Marshal(map[string]any{"ch": make(chan int)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported type")
}

func TestMarshalIndent(t *testing.T) {
	result, err := MarshalIndent(map[string]any{"b": []any{1}, "a": "x"}, "  ")
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"a\": \"x\",\n  \"b\": [\n    1\n  ]\n}", string(result))
}
