package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddSubtractSameCurrency(t *testing.T) {
	a := New(100, "USD")
	b := New(40, "usd")

	sum, err := a.Add(b)
	require.NoError(t, err)
	assert.Equal(t, New(140, "USD"), sum)

	diff, err := a.Subtract(b)
	require.NoError(t, err)
	assert.Equal(t, New(60, "USD"), diff)
}

func TestAddCurrencyMismatch(t *testing.T) {
	_, err := New(100, "USD").Add(New(100, "TRY"))
	assert.ErrorIs(t, err, ErrCurrencyMismatch)
}

func TestNegateAbsolute(t *testing.T) {
	m := New(100, "USD")
	assert.Equal(t, New(-100, "USD"), m.Negate())
	assert.Equal(t, New(100, "USD"), m.Negate().Absolute())
	assert.Equal(t, New(100, "USD"), m.Absolute())
}

func TestMultiplyRoundsHalfAwayFromZero(t *testing.T) {
	m := New(100, "USD")
	assert.Equal(t, int64(50), m.Multiply(decimal.NewFromFloat(0.5)).Amount)
	assert.Equal(t, int64(33), m.Multiply(decimal.NewFromFloat(0.333)).Amount)
	assert.Equal(t, int64(1), New(1, "USD").Multiply(decimal.NewFromFloat(0.5)).Amount)
	assert.Equal(t, int64(0), m.Multiply(decimal.Zero).Amount)
}

func TestRatioOf(t *testing.T) {
	original := New(400, "TRY")
	exchanged := New(100, "USD")
	assert.True(t, original.RatioOf(exchanged).Equal(decimal.NewFromInt(4)))
	assert.True(t, original.RatioOf(Zero("USD")).IsZero())
}

func TestIsCurrencyCode(t *testing.T) {
	assert.True(t, IsCurrencyCode("USD"))
	assert.True(t, IsCurrencyCode("TRY"))
	assert.False(t, IsCurrencyCode("usd"))
	assert.False(t, IsCurrencyCode("savings"))
	assert.False(t, IsCurrencyCode(""))
}
