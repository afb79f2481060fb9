package trading

import (
	"testing"

	"okxbot/internal/types"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestPositionSize(t *testing.T) {
	size, err := PositionSize(d("10000"), d("10"), d("0.02"), d("500"), d("0.01"))
	require.NoError(t, err)
	assert.True(t, size.Equal(d("400")), "got %s", size)
}

func TestPositionSizeNegativeDistanceUsesMagnitude(t *testing.T) {
	size, err := PositionSize(d("10000"), d("10"), d("0.02"), d("-500"), d("0.01"))
	require.NoError(t, err)
	assert.True(t, size.Equal(d("400")))
}

func TestPositionSizeValidation(t *testing.T) {
	cases := map[string][5]string{
		"zero stop distance": {"10000", "10", "0.02", "0", "0.01"},
		"zero balance":       {"0", "10", "0.02", "500", "0.01"},
		"negative leverage":  {"10000", "-1", "0.02", "500", "0.01"},
		"zero risk":          {"10000", "10", "0", "500", "0.01"},
		"zero contract":      {"10000", "10", "0.02", "500", "0"},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := PositionSize(d(in[0]), d(in[1]), d(in[2]), d(in[3]), d(in[4]))
			require.Error(t, err)
			assert.True(t, types.IsValidation(err))
		})
	}
}

func TestRoundToLot(t *testing.T) {
	assert.True(t, RoundToLot(d("12.37"), d("0.1")).Equal(d("12.3")))
	assert.True(t, RoundToLot(d("12.37"), d("1")).Equal(d("12")))
	assert.True(t, RoundToLot(d("12.37"), decimal.Zero).Equal(d("12.37")))
}

func TestStopDistance(t *testing.T) {
	assert.True(t, StopDistance(d("60000"), d("59500")).Equal(d("500")))
	assert.True(t, StopDistance(d("60000"), d("60500")).Equal(d("500")))
}

func TestVolatilityStop(t *testing.T) {
	sl, err := VolatilityStop(d("100"), types.SideLong, "medium")
	require.NoError(t, err)
	assert.True(t, sl.Equal(d("95")))

	sl, err = VolatilityStop(d("100"), types.SideShort, "HIGH")
	require.NoError(t, err)
	assert.True(t, sl.Equal(d("110")))

	_, err = VolatilityStop(d("100"), types.SideLong, "extreme")
	assert.True(t, types.IsValidation(err))
}
