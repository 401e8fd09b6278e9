// Package domain defines the core types, errors, and persistence interfaces
// for the option issuance and settlement service.
package domain

import "time"

// Position is a single capped call-spread option. Strike prices and premium
// are fixed-point integers at PriceDecimals decimal places, the same scale the
// reference price feed reported when the position was minted. Positions are
// never deleted; settled ones remain as an auditable record.
type Position struct {
	ID            int64      `json:"id"`
	Owner         string     `json:"owner"`
	MetadataURI   string     `json:"metadata_uri"`
	LowerStrike   int64      `json:"lower_strike"`
	HigherStrike  int64      `json:"higher_strike"`
	Premium       int64      `json:"premium"`
	Multiplier    int64      `json:"multiplier"`
	PriceDecimals int32      `json:"price_decimals"`
	Expiry        time.Time  `json:"expiry"`
	Settled       bool       `json:"settled"`
	SettledAt     *time.Time `json:"settled_at,omitempty"`
	PayoutAmount  *int64     `json:"payout_amount,omitempty"`
	MintedAt      time.Time  `json:"minted_at"`
}

// Due reports whether the position is past expiry and still unsettled at now.
func (p Position) Due(now time.Time) bool {
	return !p.Settled && !p.Expiry.After(now)
}

// Validate checks the mint invariants. The now argument anchors the
// expiry-in-the-future check so callers and tests share one clock.
func (p Position) Validate(now time.Time) error {
	if p.LowerStrike >= p.HigherStrike {
		return ErrInvalidStrikeOrder
	}
	if p.Multiplier <= 0 {
		return ErrInvalidMultiplier
	}
	if !p.Expiry.After(now) {
		return ErrExpiryInPast
	}
	return nil
}

// Settlement records one position paid out by a settlement sweep.
type Settlement struct {
	PositionID int64     `json:"position_id"`
	Recipient  string    `json:"recipient"`
	Amount     int64     `json:"amount"`
	Price      int64     `json:"price"`
	Decimals   int32     `json:"decimals"`
	SettledAt  time.Time `json:"settled_at"`
}
