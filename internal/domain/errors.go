package domain

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidStrikeOrder = errors.New("lower strike must be strictly below higher strike")
	ErrInvalidMultiplier  = errors.New("multiplier must be positive")
	ErrExpiryInPast       = errors.New("expiry must be in the future")
	ErrAlreadySettled     = errors.New("position already settled")
	ErrOracleUnavailable  = errors.New("oracle unavailable")
	ErrStalePrice         = errors.New("stale oracle price")
	ErrPriceScaleMismatch = errors.New("price decimals do not match position decimals")
	ErrAmountOverflow     = errors.New("payoff amount overflow")
	ErrInsufficientFunds  = errors.New("insufficient custody funds")
	ErrAllowanceExceeded  = errors.New("transfer exceeds token allowance")
	ErrLockHeld           = errors.New("lock already held")
)
