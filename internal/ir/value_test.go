package ir

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIRValue_Sealed(t *testing.T) {
	values := []IRValue{
		IRNull{}, IRString("a"), IRInt(1), IRFloat(1.5), IRBool(true),
		IRTime(time.Unix(0, 0)), IRRegex{Pattern: "a"}, IRArray{}, IRObject{},
	}
	names := make([]string, len(values))
	for i, v := range values {
		names[i] = TypeName(v)
	}
	assert.Equal(t, []string{"null", "string", "int", "float", "bool", "time", "regex", "array", "object"}, names)
	assert.Equal(t, "null", TypeName(nil))
}

func TestIRObject_SortedKeys(t *testing.T) {
	obj := IRObject{"name": IRNull{}, "_id": IRNull{}, "createdAt": IRNull{}, "\U00010000": IRNull{}, "\uE000": IRNull{}}
	assert.Equal(t, []string{"_id", "createdAt", "name", "\U00010000", "\uE000"}, obj.SortedKeys())
	assert.Empty(t, IRObject{}.SortedKeys())
}

func TestCompareKeys(t *testing.T) {
	assert.Negative(t, CompareKeys("a", "b"))
	assert.Zero(t, CompareKeys("slug", "slug"))
	assert.Positive(t, CompareKeys("\uE000", "\U00010000"))
}

func TestMarshalIRValue(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	v := IRObject{
		"name":  IRString("Project Title 1"),
		"rank":  IRInt(3),
		"score": IRFloat(0.5),
		"live":  IRBool(true),
		"tags":  NewIRArray(IRString("t1"), IRNull{}),
		"at":    NewIRTime(ts),
		"re":    IRRegex{Pattern: "^Pro", Flags: "i"},
	}

	got, err := MarshalIRValue(v)
	require.NoError(t, err)
	assert.Equal(t,
		`{"at":"2024-01-02T03:04:05Z","live":true,"name":"Project Title 1","rank":3,"re":"/^Pro/i","score":0.5,"tags":["t1",null]}`,
		string(got))

	// json.Marshal goes through IRObject.MarshalJSON with the same result.
	std, err := json.Marshal(v)
	require.NoError(t, err)
	assert.JSONEq(t, string(got), string(std))
}

func TestNewIRTime_UTC(t *testing.T) {
	local := time.Date(2024, 6, 1, 12, 0, 0, 0, time.FixedZone("CET", 3600))
	v := NewIRTime(local)
	assert.Equal(t, time.UTC, v.Time().Location())
	assert.True(t, v.Time().Equal(local))
}

func TestNewIRRegex(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		flags   string
		wantErr string
	}{
		{"plain", "title 3$", "", ""},
		{"case insensitive", "^project", "i", ""},
		{"all flags", "a.b", "ims", ""},
		{"bad flag", "a", "g", "unsupported regex flag"},
		{"bad pattern", "(", "", "invalid regex"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewIRRegex(tt.pattern, tt.flags)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			re, err := r.Compile()
			require.NoError(t, err)
			assert.NotNil(t, re)
		})
	}
}

func TestIRRegex_CompileAppliesFlags(t *testing.T) {
	re, err := IRRegex{Pattern: "title 3$", Flags: "i"}.Compile()
	require.NoError(t, err)
	assert.True(t, re.MatchString("Project Title 3"))
	assert.False(t, re.MatchString("Project Title 31"))
}
