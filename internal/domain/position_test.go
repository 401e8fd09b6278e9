package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPositionValidate(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	base := Position{
		LowerStrike:  110_000_000,
		HigherStrike: 120_000_000,
		Multiplier:   1,
		Expiry:       now.Add(time.Hour),
	}
	require.NoError(t, base.Validate(now))

	inverted := base
	inverted.LowerStrike, inverted.HigherStrike = inverted.HigherStrike, inverted.LowerStrike
	assert.ErrorIs(t, inverted.Validate(now), ErrInvalidStrikeOrder)

	equal := base
	equal.HigherStrike = equal.LowerStrike
	assert.ErrorIs(t, equal.Validate(now), ErrInvalidStrikeOrder)

	zeroMult := base
	zeroMult.Multiplier = 0
	assert.ErrorIs(t, zeroMult.Validate(now), ErrInvalidMultiplier)

	expired := base
	expired.Expiry = now
	assert.ErrorIs(t, expired.Validate(now), ErrExpiryInPast)
}

func TestPositionDue(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	unexpired := Position{Expiry: now.Add(time.Minute)}
	assert.False(t, unexpired.Due(now))

	atExpiry := Position{Expiry: now}
	assert.True(t, atExpiry.Due(now))

	past := Position{Expiry: now.Add(-time.Minute)}
	assert.True(t, past.Due(now))

	settled := Position{Expiry: now.Add(-time.Minute), Settled: true}
	assert.False(t, settled.Due(now))
}
