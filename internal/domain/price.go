package domain

import (
	"context"
	"time"
)

// PriceQuote is one observation from the reference price feed. Price is a
// fixed-point integer at Decimals decimal places (Chainlink convention, e.g.
// 115000000 at 8 decimals for 1.15).
type PriceQuote struct {
	Price     int64     `json:"price"`
	Decimals  int32     `json:"decimals"`
	Round     uint64    `json:"round"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PriceFeed is the external reference price oracle. Implementations must
// return ErrOracleUnavailable when the feed cannot be reached and ErrStalePrice
// when the feed itself reports a stale round; they do not invent staleness
// semantics beyond what the feed exposes.
type PriceFeed interface {
	LatestPrice(ctx context.Context) (PriceQuote, error)
}
