package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/ethclient"

	s3blob "github.com/jrivoire69/CS-blockchain/internal/blob/s3"
	"github.com/jrivoire69/CS-blockchain/internal/cache/redis"
	"github.com/jrivoire69/CS-blockchain/internal/config"
	"github.com/jrivoire69/CS-blockchain/internal/crypto"
	"github.com/jrivoire69/CS-blockchain/internal/domain"
	"github.com/jrivoire69/CS-blockchain/internal/notify"
	"github.com/jrivoire69/CS-blockchain/internal/platform/chainlink"
	"github.com/jrivoire69/CS-blockchain/internal/platform/erc20"
	"github.com/jrivoire69/CS-blockchain/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency the application modes
// need. It is constructed by Wire and torn down by the returned cleanup
// function.
type Dependencies struct {
	// Stores
	PositionStore   domain.PositionStore
	SettlementStore domain.SettlementStore
	CustodyStore    domain.CustodyStore
	AuditStore      domain.AuditStore

	// Token ledger: chain-backed or Postgres-simulated depending on config.
	TokenLedger    domain.TokenLedger
	CustodyAccount string

	// Price feed: nil in manual oracle mode.
	PriceFeed domain.PriceFeed

	// Caches
	PriceCache  domain.PriceCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Blob storage (nil unless S3 is enabled)
	BlobWriter domain.BlobWriter
	Archiver   *s3blob.Archiver

	// Notifications
	Notifier *notify.Notifier
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them with a cleanup function for shutdown.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.PositionStore = postgres.NewPositionStore(pool)
	deps.SettlementStore = postgres.NewSettlementStore(pool)
	deps.CustodyStore = postgres.NewCustodyStore(pool)
	deps.AuditStore = postgres.NewAuditStore(pool)

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.PriceCache = redis.NewPriceCache(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient)

	// --- Chain connectivity (shared by the oracle and the token ledger) ---
	var ethClient *ethclient.Client
	dialEth := func() (*ethclient.Client, error) {
		if ethClient != nil {
			return ethClient, nil
		}
		c, dialErr := ethclient.DialContext(ctx, cfg.Chain.RPCURL)
		if dialErr != nil {
			return nil, dialErr
		}
		ethClient = c
		closers = append(closers, c.Close)
		return c, nil
	}

	// --- Price feed ---
	if cfg.Oracle.Mode == "chainlink" {
		client, dialErr := dialEth()
		if dialErr != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: dial eth rpc: %w", dialErr)
		}
		feed, feedErr := chainlink.NewFeed(client, cfg.Chain.FeedAddress, cfg.Oracle.MaxAge.Duration)
		if feedErr != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: chainlink feed: %w", feedErr)
		}
		deps.PriceFeed = feed
	}

	// --- Token ledger ---
	switch cfg.Ledger.Mode {
	case "erc20":
		client, dialErr := dialEth()
		if dialErr != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: dial eth rpc: %w", dialErr)
		}
		key, keyErr := crypto.LoadKey(crypto.KeyConfig{
			RawPrivateKey:    cfg.Wallet.PrivateKey,
			EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
			KeyPassword:      cfg.Wallet.KeyPassword,
		})
		if keyErr != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: load custody wallet key: %w", keyErr)
		}
		signer, signerErr := crypto.NewSigner(key, cfg.Chain.ChainID)
		if signerErr != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: custody signer: %w", signerErr)
		}
		ledger, ledgerErr := erc20.NewClient(client, cfg.Chain.TokenAddress, signer)
		if ledgerErr != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: erc20 ledger: %w", ledgerErr)
		}
		deps.TokenLedger = ledger
		deps.CustodyAccount = ledger.CustodyAccount()
	case "sim":
		deps.TokenLedger = postgres.NewTokenLedgerStore(pool, cfg.Ledger.CustodyAccount)
		deps.CustodyAccount = cfg.Ledger.CustodyAccount
	}

	// --- S3 blob storage ---
	if cfg.S3.Enabled {
		s3Client, s3Err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if s3Err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", s3Err)
		}

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.Archiver = s3blob.NewArchiver(
			deps.BlobWriter,
			deps.PositionStore,
			deps.CustodyStore,
			deps.AuditStore,
		)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
