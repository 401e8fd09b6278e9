package domain

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func spread(lower, higher, multiplier int64) Position {
	return Position{
		LowerStrike:   lower,
		HigherStrike:  higher,
		Multiplier:    multiplier,
		PriceDecimals: 8,
	}
}

func quoteAt(price int64) PriceQuote {
	return PriceQuote{Price: price, Decimals: 8, UpdatedAt: time.Now().UTC()}
}

func TestPayoffRegions(t *testing.T) {
	// 1.10 / 1.20 strikes at 8 decimals.
	pos := spread(110_000_000, 120_000_000, 2)

	tests := []struct {
		name  string
		price int64
		want  int64
	}{
		{"below lower strike", 100_000_000, 0},
		{"at lower strike", 110_000_000, 0},
		{"in range", 115_000_000, 10_000_000},
		{"just under higher strike", 119_999_999, 19_999_998},
		{"at higher strike", 120_000_000, 20_000_000},
		{"above higher strike capped", 150_000_000, 20_000_000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Payoff(quoteAt(tt.price), pos)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPayoffMultiplierScales(t *testing.T) {
	price := quoteAt(115_000_000)

	one, err := Payoff(price, spread(110_000_000, 120_000_000, 1))
	require.NoError(t, err)
	ten, err := Payoff(price, spread(110_000_000, 120_000_000, 10))
	require.NoError(t, err)
	assert.Equal(t, one*10, ten)
}

func TestPayoffDeterministic(t *testing.T) {
	pos := spread(110_000_000, 120_000_000, 3)
	price := quoteAt(117_500_000)

	first, err := Payoff(price, pos)
	require.NoError(t, err)
	for i := 0; i < 100; i++ {
		again, err := Payoff(price, pos)
		require.NoError(t, err)
		require.Equal(t, first, again)
	}
}

func TestPayoffScaleMismatch(t *testing.T) {
	pos := spread(110_000_000, 120_000_000, 1)
	_, err := Payoff(PriceQuote{Price: 115_000, Decimals: 3}, pos)
	require.ErrorIs(t, err, ErrPriceScaleMismatch)
}

func TestPayoffOverflow(t *testing.T) {
	pos := spread(0, math.MaxInt64-1, math.MaxInt64)
	_, err := Payoff(quoteAt(math.MaxInt64-1), Position{
		LowerStrike:   pos.LowerStrike,
		HigherStrike:  pos.HigherStrike,
		Multiplier:    pos.Multiplier,
		PriceDecimals: 8,
	})
	require.ErrorIs(t, err, ErrAmountOverflow)
}

func TestAddChecked(t *testing.T) {
	sum, err := AddChecked(40, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(42), sum)

	_, err = AddChecked(math.MaxInt64, 1)
	require.ErrorIs(t, err, ErrAmountOverflow)
}
