package ir

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromAny_Scalars(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want IRValue
	}{
		{"nil is null", nil, IRNull{}},
		{"string", "Jane", IRString("Jane")},
		{"int", 42, IRInt(42)},
		{"int64", int64(-7), IRInt(-7)},
		{"bool", true, IRBool(true)},
		{"duration", 90 * time.Second, IRDuration(90 * time.Second)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FromAny(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFromAny_FloatBecomesDecimal(t *testing.T) {
	got, err := FromAny(12.5)
	require.NoError(t, err)

	dec, ok := got.(IRDecimal)
	require.True(t, ok, "expected IRDecimal, got %T", got)
	assert.Equal(t, "12.5", dec.Value.String())
}

func TestFromAny_JSONNumber(t *testing.T) {
	got, err := FromAny(json.Number("10"))
	require.NoError(t, err)
	assert.Equal(t, IRInt(10), got)

	got, err = FromAny(json.Number("0.25"))
	require.NoError(t, err)
	assert.Equal(t, "0.25", got.(IRDecimal).Value.String())
}

func TestFromAny_Composite(t *testing.T) {
	got, err := FromAny(map[string]any{
		"first": "Jane",
		"tags":  []any{"a", 1},
	})
	require.NoError(t, err)

	obj, ok := got.(IRObject)
	require.True(t, ok)
	assert.Equal(t, IRString("Jane"), obj["first"])
	assert.Equal(t, IRArray{IRString("a"), IRInt(1)}, obj["tags"])
}

func TestFromAny_Unsupported(t *testing.T) {
	_, err := FromAny(struct{}{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported type")
}

func TestDriverValue(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	dec, err := NewIRDecimal("3.14")
	require.NoError(t, err)

	tests := []struct {
		name string
		in   IRValue
		want any
	}{
		{"null", IRNull{}, nil},
		{"string", IRString("x"), "x"},
		{"int", IRInt(3), int64(3)},
		{"bool", IRBool(false), false},
		{"decimal", dec, "3.14"},
		{"duration", IRDuration(time.Second), int64(time.Second)},
		{"timestamp", NewIRTimestamp(ts), "2024-03-01 12:30:00.000000000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DriverValue(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDriverValue_RejectsComposite(t *testing.T) {
	_, err := DriverValue(IRArray{IRInt(1)})
	require.Error(t, err)

	_, err = DriverValue(IRObject{"a": IRInt(1)})
	require.Error(t, err)
}

func TestSortedKeys_UTF16Order(t *testing.T) {
	// U+1F600 encodes as the surrogate pair 0xD83D 0xDE00, which sorts
	// before U+FF61 in UTF-16 even though it sorts after it in UTF-8.
	obj := IRObject{
		"\uFF61":     IRInt(1),
		"\U0001F600": IRInt(2),
		"a":          IRInt(3),
	}
	assert.Equal(t, []string{"a", "\U0001F600", "\uFF61"}, obj.SortedKeys())
}

func TestMarshalIRValue(t *testing.T) {
	dec, err := NewIRDecimal("1.50")
	require.NoError(t, err)

	data, err := MarshalIRValue(IRObject{
		"b": IRArray{IRInt(1), IRNull{}},
		"a": dec,
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":"1.5","b":[1,null]}`, string(data))
}

func TestIsNull(t *testing.T) {
	assert.True(t, IsNull(nil))
	assert.True(t, IsNull(IRNull{}))
	assert.False(t, IsNull(IRString("")))
}
