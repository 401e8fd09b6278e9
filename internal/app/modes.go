package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jrivoire69/CS-blockchain/internal/auth"
	"github.com/jrivoire69/CS-blockchain/internal/notify"
	"github.com/jrivoire69/CS-blockchain/internal/server"
	"github.com/jrivoire69/CS-blockchain/internal/server/handler"
	"github.com/jrivoire69/CS-blockchain/internal/server/ws"
	"github.com/jrivoire69/CS-blockchain/internal/service"
)

// services bundles the service layer built on top of the wired dependencies.
type services struct {
	guard       *auth.Guard
	prices      *service.PriceService
	positions   *service.PositionService
	settlements *service.SettlementService
	custody     *service.CustodyService
}

// buildServices constructs the service layer shared by all modes.
func (a *App) buildServices(deps *Dependencies) *services {
	guard := auth.NewGuard(a.cfg.Owner.Account)

	prices := service.NewPriceService(
		deps.PriceFeed, deps.PriceCache, deps.SignalBus,
		a.cfg.Oracle.MaxAge.Duration, a.cfg.Oracle.Decimals, a.logger,
	)
	positions := service.NewPositionService(
		deps.PositionStore, prices, guard, deps.SignalBus, deps.AuditStore,
		a.cfg.Oracle.Decimals, a.logger,
	)
	settlements := service.NewSettlementService(
		deps.PositionStore, deps.SettlementStore, deps.CustodyStore,
		deps.TokenLedger, prices, deps.LockManager, deps.SignalBus,
		deps.AuditStore, deps.Notifier, deps.CustodyAccount,
		a.cfg.Settlement.BatchSize, a.cfg.Settlement.LockTTL.Duration, a.logger,
	)
	custody := service.NewCustodyService(
		deps.CustodyStore, deps.TokenLedger, guard, deps.AuditStore,
		deps.CustodyAccount, a.logger,
	)

	return &services{
		guard:       guard,
		prices:      prices,
		positions:   positions,
		settlements: settlements,
		custody:     custody,
	}
}

// ServeMode runs the HTTP + WebSocket API without the background sweeper.
// Settlement still runs on demand via the execute endpoint.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")
	svcs := a.buildServices(deps)

	g, ctx := errgroup.WithContext(ctx)
	a.startServer(ctx, g, deps, svcs)
	return g.Wait()
}

// SettleMode runs only the background settlement sweeper, for deployments that
// separate the API tier from the settlement daemon.
func (a *App) SettleMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting settle mode")
	svcs := a.buildServices(deps)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.runSweeper(ctx, svcs.settlements)
	})
	if deps.Archiver != nil {
		g.Go(func() error {
			return a.runArchiver(ctx, deps)
		})
	}
	return g.Wait()
}

// FullMode runs the API server and the settlement sweeper together.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")
	svcs := a.buildServices(deps)

	g, ctx := errgroup.WithContext(ctx)
	a.startServer(ctx, g, deps, svcs)
	g.Go(func() error {
		return a.runSweeper(ctx, svcs.settlements)
	})
	if deps.Archiver != nil {
		g.Go(func() error {
			return a.runArchiver(ctx, deps)
		})
	}
	return g.Wait()
}

// startServer builds the handlers, the WebSocket hub, and the HTTP server,
// and registers their goroutines on the group.
func (a *App) startServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, svcs *services) {
	if !a.cfg.Server.Enabled {
		a.logger.InfoContext(ctx, "http server disabled by config")
		return
	}

	hub := ws.NewHub(deps.SignalBus, a.cfg.Mode, a.logger)
	g.Go(func() error {
		if err := hub.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	handlers := server.Handlers{
		Health:      handler.NewHealthHandler(a.cfg.Mode, a.logger),
		Price:       handler.NewPriceHandler(svcs.prices, a.logger),
		Positions:   handler.NewPositionHandler(svcs.positions, a.logger),
		Settlements: handler.NewSettlementHandler(svcs.settlements, a.logger),
		Custody:     handler.NewCustodyHandler(svcs.custody, a.logger),
		Admin:       handler.NewAdminHandler(svcs.prices, svcs.guard, a.logger),
	}

	srv := server.NewServer(server.Config{
		Port:            a.cfg.Server.Port,
		CORSOrigins:     a.cfg.Server.CORSOrigins,
		APIKey:          a.cfg.Owner.APIKey,
		AdminKey:        a.cfg.Owner.AdminKey,
		OwnerAccount:    a.cfg.Owner.Account,
		RateLimitPerMin: a.cfg.Server.RateLimitPerMin,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

// runSweeper drives the settlement sweep on the configured interval. Transient
// failures (an underfunded batch, a lock held by another process, a stale
// price) are logged and retried on the next tick rather than crashing the
// daemon.
func (a *App) runSweeper(ctx context.Context, settlements *service.SettlementService) error {
	interval := a.cfg.Settlement.Interval.Duration
	a.logger.InfoContext(ctx, "starting settlement sweeper",
		slog.Duration("interval", interval),
		slog.Int("batch_size", a.cfg.Settlement.BatchSize),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			res, err := settlements.SweepAll(ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return err
				}
				a.logger.WarnContext(ctx, "settlement sweep failed, will retry",
					slog.Int("settled", res.Settled),
					slog.String("error", err.Error()),
				)
				continue
			}
			if res.Settled > 0 {
				a.logger.InfoContext(ctx, "settlement sweep complete",
					slog.Int("settled", res.Settled),
					slog.Int64("total_paid", res.TotalPaid),
				)
			}
		}
	}
}

// archiveInterval is how often settled history is pushed to object storage.
const archiveInterval = 24 * time.Hour

// runArchiver periodically uploads settled positions and the custody ledger
// to object storage.
func (a *App) runArchiver(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting settlement archiver",
		slog.Duration("interval", archiveInterval),
	)

	ticker := time.NewTicker(archiveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			cutoff := time.Now().UTC()
			if n, err := deps.Archiver.ArchiveSettledPositions(ctx, cutoff); err != nil {
				a.logger.WarnContext(ctx, "position archive failed",
					slog.String("error", err.Error()),
				)
			} else if n > 0 {
				a.logger.InfoContext(ctx, "archived settled positions",
					slog.Int64("count", n),
				)
			}
			if n, err := deps.Archiver.ArchiveCustodyLedger(ctx, cutoff); err != nil {
				a.logger.WarnContext(ctx, "custody archive failed",
					slog.String("error", err.Error()),
				)
			} else if n > 0 {
				a.logger.InfoContext(ctx, "archived custody ledger",
					slog.Int64("count", n),
				)
			}
		}
	}
}

// Interface conformance for the handler-facing service types.
var (
	_ handler.PriceService      = (*service.PriceService)(nil)
	_ handler.PositionService   = (*service.PositionService)(nil)
	_ handler.SettlementService = (*service.SettlementService)(nil)
	_ handler.CustodyService    = (*service.CustodyService)(nil)
	_ handler.AdminService      = (*service.PriceService)(nil)
	_ service.Notifier          = (*notify.Notifier)(nil)
)
