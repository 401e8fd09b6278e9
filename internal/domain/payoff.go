package domain

// Payoff computes the capped call-spread payoff of a position against a price
// quote: zero at or below the lower strike, linear between the strikes, flat at
// (higher - lower) * multiplier at or above the higher strike.
//
// The result is a fixed-point integer at the position's PriceDecimals scale;
// the multiplier is a dimensionless factor. The quote must carry the same
// decimal scale as the position's strikes or ErrPriceScaleMismatch is returned.
// Arithmetic is checked: any overflow returns ErrAmountOverflow rather than
// wrapping. The function is pure and deterministic: the sweep relies on it
// returning the identical amount it previously reported for a query.
func Payoff(quote PriceQuote, p Position) (int64, error) {
	if quote.Decimals != p.PriceDecimals {
		return 0, ErrPriceScaleMismatch
	}

	cap := p.HigherStrike - p.LowerStrike // > 0 by mint invariant
	raw := quote.Price - p.LowerStrike
	if raw <= 0 {
		return 0, nil
	}
	if raw > cap {
		raw = cap
	}

	return mulChecked(raw, p.Multiplier)
}

// mulChecked multiplies two non-negative int64 values, reporting
// ErrAmountOverflow instead of wrapping.
func mulChecked(a, b int64) (int64, error) {
	if a == 0 || b == 0 {
		return 0, nil
	}
	r := a * b
	if r/b != a {
		return 0, ErrAmountOverflow
	}
	return r, nil
}

// AddChecked sums two non-negative int64 amounts, reporting ErrAmountOverflow
// on wrap. The sweep uses it when totalling a batch of payoffs.
func AddChecked(a, b int64) (int64, error) {
	r := a + b
	if r < a {
		return 0, ErrAmountOverflow
	}
	return r, nil
}
