package ir

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonical_Scalars(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  string
	}{
		{"string", IRString("Project Title 1"), `"Project Title 1"`},
		{"empty string", "", `""`},
		{"int", IRInt(1000), "1000"},
		{"min int64", IRInt(math.MinInt64), "-9223372036854775808"},
		{"native int", 42, "42"},
		{"bool", false, "false"},
		{"nil", nil, "null"},
		{"fraction", 3.5, "3.5"},
		{"integral float", IRFloat(2), "2"},
		{"large float", 1e21, "1e+21"},
		{"empty array", IRArray{}, "[]"},
		{"empty object", map[string]any{}, "{}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MarshalCanonical(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestMarshalCanonical_QueryDocument(t *testing.T) {
	doc := map[string]any{
		"qType":  "allTotal",
		"limit":  int64(10),
		"skip":   int64(0),
		"sort":   map[string]any{"name": 1, "createdAt": -1},
		"filter": map[string]any{"slug": map[string]any{"$in": []any{"a", "b"}}},
	}

	got, err := MarshalCanonical(doc)
	require.NoError(t, err)
	assert.Equal(t,
		`{"filter":{"slug":{"$in":["a","b"]}},"limit":10,"qType":"allTotal","skip":0,"sort":{"createdAt":-1,"name":1}}`,
		string(got))

	again, err := MarshalCanonical(doc)
	require.NoError(t, err)
	assert.Equal(t, got, again)
}

func TestMarshalCanonical_TimeAndRegex(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.FixedZone("X", 3600))

	got, err := MarshalCanonical(IRObject{
		"createdAt": NewIRTime(ts),
		"name":      IRRegex{Pattern: "title 3$", Flags: "i"},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"createdAt":"2024-03-01T11:00:00Z","name":"/title 3$/i"}`, string(got))
}

func TestMarshalCanonical_KeyOrderIsUTF16(t *testing.T) {
	// UTF-8 bytes put U+E000 first; UTF-16 code units put U+10000 first.
	got, err := MarshalCanonical(IRObject{"\uE000": IRInt(2), "\U00010000": IRInt(1)})
	require.NoError(t, err)
	assert.Equal(t, "{\"\U00010000\":1,\"\uE000\":2}", string(got))
}

func TestMarshalCanonical_Strings(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"no html escaping", "<a & b>", `"<a & b>"`},
		{"quote and backslash", `say "hi" \ bye`, `"say \"hi\" \\ bye"`},
		{"control characters", "a\nb\tc", `"a\nb\tc"`},
		{"line separators kept literal", "a\u2028b\u2029c", "\"a\u2028b\u2029c\""},
		{"escaped text untouched", `see \u2028`, `"see \\u2028"`},
		{"nfc normalized", "cafe\u0301", "\"caf\u00e9\""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MarshalCanonical(IRString(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestMarshalCanonical_NFCKeysCollide(t *testing.T) {
	composed, err := MarshalCanonical(IRObject{"caf\u00e9": IRInt(1)})
	require.NoError(t, err)
	decomposed, err := MarshalCanonical(IRObject{"cafe\u0301": IRInt(1)})
	require.NoError(t, err)
	assert.Equal(t, composed, decomposed)
}

func TestMarshalCanonical_RejectsNonFinite(t *testing.T) {
	_, err := MarshalCanonical(math.Inf(1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "non-finite")

	_, err = MarshalCanonical(IRArray{IRFloat(math.NaN())})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "array[0]")
}
