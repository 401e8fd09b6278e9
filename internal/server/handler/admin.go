package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/jrivoire69/CS-blockchain/internal/auth"
	"github.com/jrivoire69/CS-blockchain/internal/domain"
	"github.com/jrivoire69/CS-blockchain/internal/server/middleware"
)

// AdminService defines the privileged operations the admin handler exposes.
type AdminService interface {
	SetManualQuote(ctx context.Context, price int64, round uint64) (domain.PriceQuote, error)
}

// AdminHandler serves owner-only operational endpoints.
type AdminHandler struct {
	admin  AdminService
	guard  *auth.Guard
	logger *slog.Logger
}

// NewAdminHandler creates an AdminHandler with the given service, guard, and
// logger.
func NewAdminHandler(admin AdminService, guard *auth.Guard, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{admin: admin, guard: guard, logger: logger}
}

// setPriceRequest is the body for a manual price update.
type setPriceRequest struct {
	Price int64  `json:"price"`
	Round uint64 `json:"round"`
}

// SetPrice stores an operator-supplied reference price. Only meaningful when
// the service runs without a chain feed. Owner-only.
// POST /api/admin/price
func (h *AdminHandler) SetPrice(w http.ResponseWriter, r *http.Request) {
	if err := h.guard.RequireOwner(middleware.Caller(r.Context())); err != nil {
		writeError(w, http.StatusForbidden, "only the service owner may set the price")
		return
	}

	var req setPriceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Price <= 0 {
		writeError(w, http.StatusBadRequest, "price must be positive")
		return
	}

	quote, err := h.admin.SetManualQuote(r.Context(), req.Price, req.Round)
	if err != nil {
		if errors.Is(err, domain.ErrUnauthorized) {
			writeError(w, http.StatusForbidden, "unauthorized")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: set price failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to set price")
		return
	}

	writeJSON(w, http.StatusOK, quote)
}
