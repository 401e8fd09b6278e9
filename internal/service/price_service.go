package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jrivoire69/CS-blockchain/internal/domain"
)

// PriceService provides the reference price used for payoff computation. In
// feed-backed mode it reads the configured aggregator and writes the quote
// through to the cache; in manual mode (no feed) the cache is the source of
// truth and quotes are written by SetManualQuote.
type PriceService struct {
	feed     domain.PriceFeed // nil in manual mode
	cache    domain.PriceCache
	bus      domain.SignalBus
	maxAge   time.Duration
	decimals int32
	logger   *slog.Logger
}

// NewPriceService creates a PriceService. A nil feed selects manual mode.
func NewPriceService(
	feed domain.PriceFeed,
	cache domain.PriceCache,
	bus domain.SignalBus,
	maxAge time.Duration,
	decimals int32,
	logger *slog.Logger,
) *PriceService {
	return &PriceService{
		feed:     feed,
		cache:    cache,
		bus:      bus,
		maxAge:   maxAge,
		decimals: decimals,
		logger:   logger,
	}
}

// Snapshot returns the current reference price. Feed-backed mode fetches from
// the aggregator and caches the result; manual mode reads the cached quote and
// applies the same staleness bound the feed enforces.
func (s *PriceService) Snapshot(ctx context.Context) (domain.PriceQuote, error) {
	if s.feed == nil {
		return s.manualSnapshot(ctx)
	}

	quote, err := s.feed.LatestPrice(ctx)
	if err != nil {
		// Fall back to the cached quote when the feed is briefly unreachable,
		// but never serve a stale one.
		cached, cacheErr := s.cache.GetQuote(ctx)
		if cacheErr == nil && s.fresh(cached) {
			s.logger.WarnContext(ctx, "price_service: serving cached quote, feed unavailable",
				slog.String("error", err.Error()),
			)
			return cached, nil
		}
		return domain.PriceQuote{}, fmt.Errorf("price_service: latest price: %w", err)
	}

	if err := s.cache.SetQuote(ctx, quote); err != nil {
		s.logger.WarnContext(ctx, "price_service: cache quote failed",
			slog.String("error", err.Error()),
		)
	}

	return quote, nil
}

func (s *PriceService) manualSnapshot(ctx context.Context) (domain.PriceQuote, error) {
	quote, err := s.cache.GetQuote(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.PriceQuote{}, fmt.Errorf("price_service: no manual quote set: %w", domain.ErrOracleUnavailable)
		}
		return domain.PriceQuote{}, fmt.Errorf("price_service: get cached quote: %w", err)
	}
	if !s.fresh(quote) {
		return domain.PriceQuote{}, fmt.Errorf("price_service: manual quote from %s: %w",
			quote.UpdatedAt.Format(time.RFC3339), domain.ErrStalePrice)
	}
	return quote, nil
}

// SetManualQuote stores an operator-supplied quote. Only meaningful in manual
// mode, where it stands in for the aggregator; the handler layer guards it
// behind the admin key.
func (s *PriceService) SetManualQuote(ctx context.Context, price int64, round uint64) (domain.PriceQuote, error) {
	quote := domain.PriceQuote{
		Price:     price,
		Decimals:  s.decimals,
		Round:     round,
		UpdatedAt: time.Now().UTC(),
	}
	if err := s.cache.SetQuote(ctx, quote); err != nil {
		return domain.PriceQuote{}, fmt.Errorf("price_service: set manual quote: %w", err)
	}

	evt, _ := json.Marshal(map[string]any{
		"event":      "price_update",
		"price":      quote.Price,
		"decimals":   quote.Decimals,
		"round":      quote.Round,
		"updated_at": quote.UpdatedAt.Format(time.RFC3339Nano),
	})
	if pubErr := s.bus.Publish(ctx, "prices", evt); pubErr != nil {
		s.logger.WarnContext(ctx, "price_service: publish price update failed",
			slog.String("error", pubErr.Error()),
		)
	}

	return quote, nil
}

// fresh reports whether a quote is within the configured staleness bound.
// A zero maxAge disables the check.
func (s *PriceService) fresh(q domain.PriceQuote) bool {
	if s.maxAge <= 0 {
		return true
	}
	return time.Since(q.UpdatedAt) <= s.maxAge
}
