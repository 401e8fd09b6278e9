package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/jrivoire69/CS-blockchain/internal/domain"
)

// PriceService defines the methods the price handler requires from the
// service layer.
type PriceService interface {
	Snapshot(ctx context.Context) (domain.PriceQuote, error)
}

// PriceHandler serves the reference price endpoint.
type PriceHandler struct {
	prices PriceService
	logger *slog.Logger
}

// NewPriceHandler creates a PriceHandler with the given service and logger.
func NewPriceHandler(prices PriceService, logger *slog.Logger) *PriceHandler {
	return &PriceHandler{prices: prices, logger: logger}
}

// GetPrice returns the current reference price quote.
// GET /api/price
func (h *PriceHandler) GetPrice(w http.ResponseWriter, r *http.Request) {
	quote, err := h.prices.Snapshot(r.Context())
	if err != nil {
		if errors.Is(err, domain.ErrOracleUnavailable) || errors.Is(err, domain.ErrStalePrice) {
			writeError(w, http.StatusServiceUnavailable, "price feed unavailable")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get price failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to fetch price")
		return
	}

	writeJSON(w, http.StatusOK, quote)
}
