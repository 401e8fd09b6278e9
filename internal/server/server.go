// Package server exposes the HTTP and WebSocket API for the option issuance
// and settlement service.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jrivoire69/CS-blockchain/internal/domain"
	"github.com/jrivoire69/CS-blockchain/internal/server/handler"
	"github.com/jrivoire69/CS-blockchain/internal/server/middleware"
	"github.com/jrivoire69/CS-blockchain/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port            int
	CORSOrigins     []string
	APIKey          string // if empty along with AdminKey, authentication is disabled
	AdminKey        string
	OwnerAccount    string
	RateLimitPerMin int
}

// Handlers aggregates all HTTP handlers the server registers.
type Handlers struct {
	Health      *handler.HealthHandler
	Price       *handler.PriceHandler
	Positions   *handler.PositionHandler
	Settlements *handler.SettlementHandler
	Custody     *handler.CustodyHandler
	Admin       *handler.AdminHandler
}

// Server is the headless HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered and the middleware
// chain (rate limiting, auth, logging, CORS) applied. The limiter may be nil
// to disable rate limiting.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check (no auth required for the probe path itself; auth applies
	// to the whole chain when keys are configured).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Reference price.
	mux.HandleFunc("GET /api/price", handlers.Price.GetPrice)

	// Position lifecycle.
	mux.HandleFunc("POST /api/positions", handlers.Positions.Mint)
	mux.HandleFunc("GET /api/positions", handlers.Positions.ListPositions)
	mux.HandleFunc("GET /api/positions/{id}", handlers.Positions.GetPosition)
	mux.HandleFunc("POST /api/positions/{id}/transfer", handlers.Positions.Transfer)
	mux.HandleFunc("GET /api/positions/{id}/payoff", handlers.Positions.Payoff)

	// Settlement sweep.
	mux.HandleFunc("POST /api/settlement/execute", handlers.Settlements.Execute)
	mux.HandleFunc("GET /api/settlements", handlers.Settlements.ListRecent)

	// Custody pool.
	mux.HandleFunc("GET /api/custody/balances", handlers.Custody.Balances)
	mux.HandleFunc("GET /api/custody/entries", handlers.Custody.ListEntries)
	mux.HandleFunc("POST /api/custody/deposit", handlers.Custody.Deposit)
	mux.HandleFunc("POST /api/custody/withdraw", handlers.Custody.Withdraw)
	mux.HandleFunc("POST /api/custody/withdraw-tokens", handlers.Custody.WithdrawAllTokens)
	mux.HandleFunc("POST /api/custody/send-token", handlers.Custody.SendToken)
	mux.HandleFunc("POST /api/custody/receive-token", handlers.Custody.ReceiveToken)

	// Admin operations.
	mux.HandleFunc("POST /api/admin/price", handlers.Admin.SetPrice)

	// WebSocket event stream.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var h http.Handler = mux

	h = middleware.Auth(cfg.APIKey, cfg.AdminKey, cfg.OwnerAccount)(h)
	if limiter != nil && cfg.RateLimitPerMin > 0 {
		h = middleware.RateLimit(limiter, cfg.RateLimitPerMin, time.Minute)(h)
	}
	h = middleware.Logging(logger)(h)
	h = corsMiddleware(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{httpServer: srv, logger: logger}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}

// corsMiddleware sets CORS headers for the allowed origins. If no origins are
// specified, all origins are allowed.
func corsMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			if origin != "" {
				allowed := len(allowedOrigins) == 0
				for _, o := range allowedOrigins {
					if strings.EqualFold(o, "*") || strings.EqualFold(o, origin) {
						allowed = true
						break
					}
				}

				if allowed {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
					w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key, X-Caller-Account")
					w.Header().Set("Access-Control-Max-Age", "86400")
				}
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
