package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/jrivoire69/CS-blockchain/internal/domain"
	"github.com/jrivoire69/CS-blockchain/internal/server/middleware"
)

// CustodyService defines the methods the custody handler requires from the
// service layer.
type CustodyService interface {
	Deposit(ctx context.Context, caller string, amount int64) error
	Withdraw(ctx context.Context, caller string, amount int64) error
	ReceiveToken(ctx context.Context, from string, amount int64) error
	SendToken(ctx context.Context, caller, to string, amount int64) error
	WithdrawAllTokens(ctx context.Context, caller string) (int64, error)
	Balances(ctx context.Context) (domain.CustodyBalances, error)
	ListEntries(ctx context.Context, opts domain.ListOpts) ([]domain.CustodyEntry, error)
}

// CustodyHandler serves custody-pool HTTP endpoints.
type CustodyHandler struct {
	custody CustodyService
	logger  *slog.Logger
}

// NewCustodyHandler creates a CustodyHandler with the given service and logger.
func NewCustodyHandler(custody CustodyService, logger *slog.Logger) *CustodyHandler {
	return &CustodyHandler{custody: custody, logger: logger}
}

// amountRequest is the body for deposits, withdrawals, and token movements.
type amountRequest struct {
	Amount int64  `json:"amount"`
	From   string `json:"from,omitempty"`
	To     string `json:"to,omitempty"`
}

func decodeAmount(w http.ResponseWriter, r *http.Request) (amountRequest, bool) {
	var req amountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return req, false
	}
	if req.Amount <= 0 {
		writeError(w, http.StatusBadRequest, "amount must be positive")
		return req, false
	}
	return req, true
}

// Deposit credits native value to the custody pool.
// POST /api/custody/deposit
func (h *CustodyHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeAmount(w, r)
	if !ok {
		return
	}

	if err := h.custody.Deposit(r.Context(), middleware.Caller(r.Context()), req.Amount); err != nil {
		h.logger.ErrorContext(r.Context(), "handler: deposit failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "deposit failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"status": "deposited", "amount": req.Amount})
}

// Withdraw debits native value from the custody pool. Owner-only.
// POST /api/custody/withdraw
func (h *CustodyHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeAmount(w, r)
	if !ok {
		return
	}

	if err := h.custody.Withdraw(r.Context(), middleware.Caller(r.Context()), req.Amount); err != nil {
		switch {
		case errors.Is(err, domain.ErrUnauthorized):
			writeError(w, http.StatusForbidden, "only the service owner may withdraw")
		case errors.Is(err, domain.ErrInsufficientFunds):
			writeError(w, http.StatusConflict, "insufficient custody balance")
		default:
			h.logger.ErrorContext(r.Context(), "handler: withdraw failed",
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "withdraw failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"status": "withdrawn", "amount": req.Amount})
}

// ReceiveToken pulls tokens from an external account into custody via a
// previously granted allowance.
// POST /api/custody/receive-token
func (h *CustodyHandler) ReceiveToken(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeAmount(w, r)
	if !ok {
		return
	}
	from := req.From
	if from == "" {
		from = middleware.Caller(r.Context())
	}
	if from == "" {
		writeError(w, http.StatusBadRequest, "from is required")
		return
	}

	if err := h.custody.ReceiveToken(r.Context(), from, req.Amount); err != nil {
		switch {
		case errors.Is(err, domain.ErrAllowanceExceeded):
			writeError(w, http.StatusConflict, "allowance does not cover the amount")
		case errors.Is(err, domain.ErrInsufficientFunds):
			writeError(w, http.StatusConflict, "source balance does not cover the amount")
		default:
			h.logger.ErrorContext(r.Context(), "handler: receive token failed",
				slog.String("from", from),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "token receipt failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"status": "received", "from": from, "amount": req.Amount})
}

// SendToken transfers custody-held tokens to an arbitrary account. Owner-only.
// POST /api/custody/send-token
func (h *CustodyHandler) SendToken(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeAmount(w, r)
	if !ok {
		return
	}
	if req.To == "" {
		writeError(w, http.StatusBadRequest, "to is required")
		return
	}

	if err := h.custody.SendToken(r.Context(), middleware.Caller(r.Context()), req.To, req.Amount); err != nil {
		switch {
		case errors.Is(err, domain.ErrUnauthorized):
			writeError(w, http.StatusForbidden, "only the service owner may send tokens")
		case errors.Is(err, domain.ErrInsufficientFunds):
			writeError(w, http.StatusConflict, "insufficient custody token balance")
		default:
			h.logger.ErrorContext(r.Context(), "handler: send token failed",
				slog.String("to", req.To),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "token send failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"status": "sent", "to": req.To, "amount": req.Amount})
}

// WithdrawAllTokens sweeps the entire custody token balance to the owner.
// Owner-only.
// POST /api/custody/withdraw-tokens
func (h *CustodyHandler) WithdrawAllTokens(w http.ResponseWriter, r *http.Request) {
	swept, err := h.custody.WithdrawAllTokens(r.Context(), middleware.Caller(r.Context()))
	if err != nil {
		if errors.Is(err, domain.ErrUnauthorized) {
			writeError(w, http.StatusForbidden, "only the service owner may sweep tokens")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: withdraw all tokens failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "token sweep failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"status": "swept", "amount": swept})
}

// Balances returns the native and token balances of the custody pool.
// GET /api/custody/balances
func (h *CustodyHandler) Balances(w http.ResponseWriter, r *http.Request) {
	balances, err := h.custody.Balances(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: custody balances failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to read balances")
		return
	}

	writeJSON(w, http.StatusOK, balances)
}

// listEntriesResponse wraps the custody ledger response.
type listEntriesResponse struct {
	Entries []domain.CustodyEntry `json:"entries"`
}

// ListEntries returns custody ledger movements.
// GET /api/custody/entries?limit=50&offset=0
func (h *CustodyHandler) ListEntries(w http.ResponseWriter, r *http.Request) {
	entries, err := h.custody.ListEntries(r.Context(), parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list custody entries failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list entries")
		return
	}
	if entries == nil {
		entries = []domain.CustodyEntry{}
	}

	writeJSON(w, http.StatusOK, listEntriesResponse{Entries: entries})
}
