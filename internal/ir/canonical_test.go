package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonical_NoHTMLEscape(t *testing.T) {
	data, err := MarshalCanonical(IRString("a<b&c>"))
	require.NoError(t, err)
	assert.Equal(t, `"a<b&c>"`, string(data))
}

func TestMarshalCanonical_NFC(t *testing.T) {
	// "e" + combining acute accent normalizes to the precomposed form
	decomposed, err := MarshalCanonical(IRString("e\u0301"))
	require.NoError(t, err)
	composed, err := MarshalCanonical(IRString("\u00e9"))
	require.NoError(t, err)
	assert.Equal(t, composed, decomposed)
}

func TestMarshalCanonical_TypedScalarsDiffer(t *testing.T) {
	asString, err := MarshalCanonical(IRString("1"))
	require.NoError(t, err)
	asInt, err := MarshalCanonical(IRInt(1))
	require.NoError(t, err)
	assert.NotEqual(t, asString, asInt)
}

func TestMarshalCanonical_ObjectKeyOrder(t *testing.T) {
	data, err := MarshalCanonical(IRObject{
		"z": IRInt(1),
		"a": IRArray{IRBool(true), IRNull{}},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"a":[true,null],"z":1}`, string(data))
}

func TestPlanFingerprint_Stable(t *testing.T) {
	shape := IRObject{"sql": IRString("select 1"), "params": IRInt(0)}

	first, err := PlanFingerprint(shape)
	require.NoError(t, err)
	second, err := PlanFingerprint(IRObject{"params": IRInt(0), "sql": IRString("select 1")})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, first, 64)
}

func TestPlanFingerprint_DomainSeparated(t *testing.T) {
	obj := IRObject{"k": IRString("v")}

	plan, err := PlanFingerprint(obj)
	require.NoError(t, err)
	binding, err := BindingHash(obj)
	require.NoError(t, err)

	assert.NotEqual(t, plan, binding)
}
