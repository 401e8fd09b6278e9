package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies MINTERD_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known MINTERD_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This lets
// operators inject secrets at deploy time without touching the TOML file.
func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Owner.Account, "MINTERD_OWNER_ACCOUNT")
	setStr(&cfg.Owner.AdminKey, "MINTERD_OWNER_ADMIN_KEY")
	setStr(&cfg.Owner.APIKey, "MINTERD_OWNER_API_KEY")

	setStr(&cfg.Wallet.PrivateKey, "MINTERD_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "MINTERD_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "MINTERD_WALLET_KEY_PASSWORD")

	setStr(&cfg.Chain.RPCURL, "MINTERD_CHAIN_RPC_URL")
	setInt64(&cfg.Chain.ChainID, "MINTERD_CHAIN_ID")
	setStr(&cfg.Chain.FeedAddress, "MINTERD_CHAIN_FEED_ADDRESS")
	setStr(&cfg.Chain.TokenAddress, "MINTERD_CHAIN_TOKEN_ADDRESS")

	setStr(&cfg.Oracle.Mode, "MINTERD_ORACLE_MODE")
	setDur(&cfg.Oracle.MaxAge, "MINTERD_ORACLE_MAX_AGE")

	setStr(&cfg.Ledger.Mode, "MINTERD_LEDGER_MODE")
	setStr(&cfg.Ledger.CustodyAccount, "MINTERD_LEDGER_CUSTODY_ACCOUNT")

	setStr(&cfg.Postgres.DSN, "MINTERD_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "MINTERD_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "MINTERD_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "MINTERD_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "MINTERD_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "MINTERD_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "MINTERD_POSTGRES_SSLMODE")
	setBool(&cfg.Postgres.RunMigrations, "MINTERD_POSTGRES_RUN_MIGRATIONS")

	setStr(&cfg.Redis.Addr, "MINTERD_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "MINTERD_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "MINTERD_REDIS_DB")
	setBool(&cfg.Redis.TLSEnabled, "MINTERD_REDIS_TLS_ENABLED")

	setBool(&cfg.S3.Enabled, "MINTERD_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "MINTERD_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "MINTERD_S3_REGION")
	setStr(&cfg.S3.Bucket, "MINTERD_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "MINTERD_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "MINTERD_S3_SECRET_KEY")

	setInt(&cfg.Settlement.BatchSize, "MINTERD_SETTLEMENT_BATCH_SIZE")
	setDur(&cfg.Settlement.Interval, "MINTERD_SETTLEMENT_INTERVAL")
	setDur(&cfg.Settlement.LockTTL, "MINTERD_SETTLEMENT_LOCK_TTL")

	setBool(&cfg.Server.Enabled, "MINTERD_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "MINTERD_SERVER_PORT")

	setStr(&cfg.Notify.TelegramToken, "MINTERD_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "MINTERD_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "MINTERD_NOTIFY_DISCORD_WEBHOOK_URL")

	setStr(&cfg.Mode, "MINTERD_MODE")
	setStr(&cfg.LogLevel, "MINTERD_LOG_LEVEL")
}

func setStr(dst *string, env string) {
	if v := strings.TrimSpace(os.Getenv(env)); v != "" {
		*dst = v
	}
}

func setInt(dst *int, env string) {
	if v := strings.TrimSpace(os.Getenv(env)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, env string) {
	if v := strings.TrimSpace(os.Getenv(env)); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, env string) {
	if v := strings.TrimSpace(os.Getenv(env)); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDur(dst *duration, env string) {
	if v := strings.TrimSpace(os.Getenv(env)); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}
