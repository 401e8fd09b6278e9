// Package config defines the top-level configuration for the option
// settlement service and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by MINTERD_* environment variables.
type Config struct {
	Owner      OwnerConfig      `toml:"owner"`
	Wallet     WalletConfig     `toml:"wallet"`
	Chain      ChainConfig      `toml:"chain"`
	Oracle     OracleConfig     `toml:"oracle"`
	Ledger     LedgerConfig     `toml:"ledger"`
	Postgres   PostgresConfig   `toml:"postgres"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Settlement SettlementConfig `toml:"settlement"`
	Server     ServerConfig     `toml:"server"`
	Notify     NotifyConfig     `toml:"notify"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// OwnerConfig identifies the privileged account. Minting, withdrawals, and
// the manual price update are restricted to this account; API callers prove
// the identity by presenting AdminKey.
type OwnerConfig struct {
	Account  string `toml:"account"`
	AdminKey string `toml:"admin_key"`
	// APIKey, when set, is required for every API call (read or write).
	APIKey string `toml:"api_key"`
}

// WalletConfig holds the custody wallet credentials used to sign token
// transfers in chain mode.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// ChainConfig holds the Ethereum RPC endpoint and contract addresses used in
// chain mode.
type ChainConfig struct {
	RPCURL       string `toml:"rpc_url"`
	ChainID      int64  `toml:"chain_id"`
	FeedAddress  string `toml:"feed_address"`
	TokenAddress string `toml:"token_address"`
}

// OracleConfig selects the price feed implementation and its staleness bound.
type OracleConfig struct {
	// Mode is "chainlink" (on-chain aggregator) or "manual" (admin-set quote).
	Mode string `toml:"mode"`
	// MaxAge rejects quotes whose feed-reported update time is older than this.
	// Zero disables the age check.
	MaxAge duration `toml:"max_age"`
	// Decimals is the expected fixed-point scale of the feed (8 for Chainlink
	// FX pairs). Manual quotes are validated against it.
	Decimals int32 `toml:"decimals"`
}

// LedgerConfig selects the fungible-token ledger implementation.
type LedgerConfig struct {
	// Mode is "erc20" (on-chain token) or "sim" (Postgres-simulated token).
	Mode string `toml:"mode"`
	// CustodyAccount is the account holding the pooled token balance that
	// funds settlement payouts.
	CustodyAccount string `toml:"custody_account"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for settlement
// report archival.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// SettlementConfig holds sweep parameters.
type SettlementConfig struct {
	// BatchSize bounds the number of due positions processed per sweep call.
	BatchSize int `toml:"batch_size"`
	// Interval is the sweeper daemon's polling period (settle/full mode).
	Interval duration `toml:"interval"`
	// LockTTL bounds how long one sweep may hold the distributed lock.
	LockTTL duration `toml:"lock_ttl"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled         bool     `toml:"enabled"`
	Port            int      `toml:"port"`
	CORSOrigins     []string `toml:"cors_origins"`
	RateLimitPerMin int      `toml:"rate_limit_per_min"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Oracle: OracleConfig{
			Mode:     "manual",
			MaxAge:   duration{time.Hour},
			Decimals: 8,
		},
		Ledger: LedgerConfig{
			Mode:           "sim",
			CustodyAccount: "custody",
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "minterd",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "minterd-reports",
			ForcePathStyle: true,
		},
		Settlement: SettlementConfig{
			BatchSize: 100,
			Interval:  duration{30 * time.Second},
			LockTTL:   duration{2 * time.Minute},
		},
		Server: ServerConfig{
			Enabled:         true,
			Port:            8000,
			CORSOrigins:     []string{"http://localhost:3000"},
			RateLimitPerMin: 300,
		},
		Notify: NotifyConfig{
			Events: []string{"settlement_batch", "settlement_underfunded", "settlement_transfer_failed"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"serve":  true,
	"settle": true,
	"full":   true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: serve, settle, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if c.Owner.Account == "" {
		errs = append(errs, "owner: account must not be empty")
	}
	if c.Owner.AdminKey == "" {
		errs = append(errs, "owner: admin_key must not be empty")
	}

	switch c.Oracle.Mode {
	case "manual":
	case "chainlink":
		if c.Chain.RPCURL == "" {
			errs = append(errs, "chain: rpc_url is required for oracle mode chainlink")
		}
		if c.Chain.FeedAddress == "" {
			errs = append(errs, "chain: feed_address is required for oracle mode chainlink")
		}
	default:
		errs = append(errs, fmt.Sprintf("oracle: unknown mode %q (valid: chainlink, manual)", c.Oracle.Mode))
	}
	if c.Oracle.Decimals < 0 || c.Oracle.Decimals > 18 {
		errs = append(errs, fmt.Sprintf("oracle: decimals must be 0-18, got %d", c.Oracle.Decimals))
	}

	switch c.Ledger.Mode {
	case "sim":
	case "erc20":
		if c.Chain.RPCURL == "" {
			errs = append(errs, "chain: rpc_url is required for ledger mode erc20")
		}
		if c.Chain.TokenAddress == "" {
			errs = append(errs, "chain: token_address is required for ledger mode erc20")
		}
		if c.Chain.ChainID <= 0 {
			errs = append(errs, fmt.Sprintf("chain: chain_id must be positive, got %d", c.Chain.ChainID))
		}
		if c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
			errs = append(errs, "wallet: either private_key or encrypted_key_path must be set for ledger mode erc20")
		}
		if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
			errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
		}
	default:
		errs = append(errs, fmt.Sprintf("ledger: unknown mode %q (valid: erc20, sim)", c.Ledger.Mode))
	}
	if c.Ledger.CustodyAccount == "" {
		errs = append(errs, "ledger: custody_account must not be empty")
	}

	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}

	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}

	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when s3 is enabled")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty when s3 is enabled")
		}
	}

	if c.Settlement.BatchSize < 1 {
		errs = append(errs, fmt.Sprintf("settlement: batch_size must be >= 1, got %d", c.Settlement.BatchSize))
	}
	if c.Settlement.LockTTL.Duration <= 0 {
		errs = append(errs, "settlement: lock_ttl must be positive")
	}
	if (c.Mode == "settle" || c.Mode == "full") && c.Settlement.Interval.Duration <= 0 {
		errs = append(errs, "settlement: interval must be positive for mode "+c.Mode)
	}

	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}
