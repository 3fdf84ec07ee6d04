package metamodel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTemporalUnit(t *testing.T) {
	tests := []struct {
		in   string
		want TemporalUnit
	}{
		{"second", UnitSecond},
		{"seconds", UnitSecond},
		{"DAY", UnitDay},
		{"quarter", UnitQuarter},
		{"nanoseconds", UnitNanosecond},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTemporalUnit(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseTemporalUnit("fortnight")
	require.Error(t, err)
}

func TestConversionFactor(t *testing.T) {
	f, err := ConversionFactor(UnitDay, UnitSecond)
	require.NoError(t, err)
	assert.Equal(t, int64(86400), f)

	f, err = ConversionFactor(UnitYear, UnitMonth)
	require.NoError(t, err)
	assert.Equal(t, int64(12), f)

	f, err = ConversionFactor(UnitMinute, UnitMinute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), f)

	_, err = ConversionFactor(UnitMonth, UnitDay)
	require.Error(t, err, "calendar and fixed-length units do not mix")

	_, err = ConversionFactor(UnitSecond, UnitHour)
	require.Error(t, err, "conversion to a coarser unit is not exact")
}

func TestFiner(t *testing.T) {
	assert.Equal(t, UnitSecond, Finer(UnitHour, UnitSecond))
	assert.Equal(t, UnitMonth, Finer(UnitYear, UnitMonth))
}

func TestCompatible(t *testing.T) {
	assert.True(t, Compatible(IntegerType, DecimalType))
	assert.True(t, Compatible(DateType, TimestampType))
	assert.True(t, Compatible(nil, StringType))
	assert.False(t, Compatible(StringType, IntegerType))
	assert.False(t, Compatible(BooleanType, &Entity{Name: "X"}))
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("Timestamp")
	require.NoError(t, err)
	assert.Equal(t, KindTimestamp, k)

	k, err = ParseKind("int")
	require.NoError(t, err)
	assert.Equal(t, KindInteger, k)

	_, err = ParseKind("blob")
	require.Error(t, err)
}

func TestDialectByName(t *testing.T) {
	d, err := DialectByName("pg")
	require.NoError(t, err)
	assert.True(t, d.SupportsLateral())
	assert.Equal(t, "bigint", d.PreferredType(KindLong))

	d, err = DialectByName("sqlite")
	require.NoError(t, err)
	assert.False(t, d.SupportsLateral())

	_, err = DialectByName("oracle")
	require.Error(t, err)
}
