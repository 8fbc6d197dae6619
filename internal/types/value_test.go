package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLiteralIntegerWidth(t *testing.T) {
	t.Run("fits in smallint", func(t *testing.T) {
		v := ParseLiteral("100", false)
		assert.Equal(t, KindSmallInt, v.Kind)
	})

	t.Run("overflows smallint becomes integer", func(t *testing.T) {
		v := ParseLiteral("40000", false)
		assert.Equal(t, KindInteger, v.Kind)
		assert.Equal(t, int64(40000), v.I64)
	})
}

func TestParseLiteralDecimalFallsBackToFloat(t *testing.T) {
	v := ParseLiteral("12.50", false)
	require.Equal(t, KindDecimal, v.Kind)
	assert.Equal(t, "12.50", v.Dec.String())

	v2 := ParseLiteral("1e10", false)
	assert.Equal(t, KindReal, v2.Kind)
}

func TestParseLiteralDateOrdering(t *testing.T) {
	v := ParseLiteral("2024-01-05", true)
	assert.Equal(t, KindDate, v.Kind)

	v2 := ParseLiteral("2024-01-05T10:00:00Z", true)
	assert.Equal(t, KindTimestampTZ, v2.Kind)

	v3 := ParseLiteral("2024-01-05 10:00:00", true)
	assert.Equal(t, KindTimestamp, v3.Kind)

	v4 := ParseLiteral("hello world", true)
	assert.Equal(t, KindText, v4.Kind)
}

func TestParseLiteralUUID(t *testing.T) {
	v := ParseLiteral("550e8400-e29b-41d4-a716-446655440000", true)
	assert.Equal(t, KindUUID, v.Kind)
}

func TestCompareTypeMismatch(t *testing.T) {
	_, err := NewInteger(1).Compare(NewText("a"))
	assert.Error(t, err)
}

func TestCompareNullSortsGreatest(t *testing.T) {
	c, err := Null().Compare(NewInteger(100))
	require.NoError(t, err)
	assert.Equal(t, 1, c)

	c2, err := NewInteger(100).Compare(Null())
	require.NoError(t, err)
	assert.Equal(t, -1, c2)
}

func TestCoerceToEnum(t *testing.T) {
	target := Enum("mood", []string{"happy", "sad"})
	v, err := CoerceTo(NewText("happy"), target)
	require.NoError(t, err)
	assert.Equal(t, KindEnum, v.Kind)

	_, err = CoerceTo(NewText("angry"), target)
	assert.Error(t, err)
}

func TestCoerceToSmallIntOverflow(t *testing.T) {
	_, err := CoerceTo(NewInteger(100000), SmallInt())
	assert.Error(t, err)
}

func TestCharPadding(t *testing.T) {
	v := NewChar("ab", 5)
	assert.Equal(t, "ab   ", v.Str)
}
