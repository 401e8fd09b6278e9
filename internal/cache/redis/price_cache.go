package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jrivoire69/CS-blockchain/internal/domain"
)

// quoteKey is the hash holding the latest oracle quote: fields "price",
// "decimals", "round", and "ts" (Unix nanosecond update time).
const quoteKey = "oracle:quote"

// PriceCache implements domain.PriceCache using a Redis hash. The chainlink
// feed mode writes through it after every fetch; the manual feed mode treats
// it as the source of truth, populated by the privileged admin endpoint.
type PriceCache struct {
	rdb *redis.Client
}

// NewPriceCache creates a PriceCache backed by the given Client.
func NewPriceCache(c *Client) *PriceCache {
	return &PriceCache{rdb: c.Underlying()}
}

// SetQuote stores the latest oracle quote.
func (pc *PriceCache) SetQuote(ctx context.Context, quote domain.PriceQuote) error {
	fields := map[string]interface{}{
		"price":    strconv.FormatInt(quote.Price, 10),
		"decimals": strconv.FormatInt(int64(quote.Decimals), 10),
		"round":    strconv.FormatUint(quote.Round, 10),
		"ts":       strconv.FormatInt(quote.UpdatedAt.UnixNano(), 10),
	}
	if err := pc.rdb.HSet(ctx, quoteKey, fields).Err(); err != nil {
		return fmt.Errorf("redis: set quote: %w", err)
	}
	return nil
}

// GetQuote retrieves the latest oracle quote. It returns domain.ErrNotFound
// when no quote has been stored yet.
func (pc *PriceCache) GetQuote(ctx context.Context) (domain.PriceQuote, error) {
	vals, err := pc.rdb.HGetAll(ctx, quoteKey).Result()
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("redis: get quote: %w", err)
	}
	if len(vals) == 0 {
		return domain.PriceQuote{}, domain.ErrNotFound
	}

	price, err := strconv.ParseInt(vals["price"], 10, 64)
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("redis: parse quote price: %w", err)
	}
	decimals, err := strconv.ParseInt(vals["decimals"], 10, 32)
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("redis: parse quote decimals: %w", err)
	}
	round, err := strconv.ParseUint(vals["round"], 10, 64)
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("redis: parse quote round: %w", err)
	}
	tsNano, err := strconv.ParseInt(vals["ts"], 10, 64)
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("redis: parse quote ts: %w", err)
	}

	return domain.PriceQuote{
		Price:     price,
		Decimals:  int32(decimals),
		Round:     round,
		UpdatedAt: time.Unix(0, tsNano),
	}, nil
}

// Compile-time interface check.
var _ domain.PriceCache = (*PriceCache)(nil)
