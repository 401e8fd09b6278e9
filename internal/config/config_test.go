package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// validConfig returns a Config that passes Validate, built on top of Defaults.
func validConfig() Config {
	cfg := Defaults()
	cfg.Owner.Account = "0xOwner"
	cfg.Owner.AdminKey = "admin-secret"
	return cfg
}

func TestDefaultsAreSane(t *testing.T) {
	cfg := Defaults()

	assert.Equal(t, "manual", cfg.Oracle.Mode)
	assert.Equal(t, int32(8), cfg.Oracle.Decimals)
	assert.Equal(t, "sim", cfg.Ledger.Mode)
	assert.Equal(t, "full", cfg.Mode)
	assert.Equal(t, 100, cfg.Settlement.BatchSize)
	assert.True(t, cfg.Postgres.RunMigrations)
	assert.False(t, cfg.S3.Enabled)
}

func TestValidateAcceptsCompleteConfig(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsMissingOwner(t *testing.T) {
	cfg := validConfig()
	cfg.Owner.Account = ""
	cfg.Owner.AdminKey = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "owner: account")
	assert.Contains(t, err.Error(), "owner: admin_key")
}

func TestValidateRejectsUnknownMode(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = "turbo"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown mode "turbo"`)
}

func TestValidateChainlinkOracleNeedsChainConfig(t *testing.T) {
	cfg := validConfig()
	cfg.Oracle.Mode = "chainlink"
	cfg.Chain.RPCURL = ""
	cfg.Chain.FeedAddress = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rpc_url")
	assert.Contains(t, err.Error(), "feed_address")
}

func TestValidateErc20LedgerNeedsWalletKey(t *testing.T) {
	cfg := validConfig()
	cfg.Ledger.Mode = "erc20"
	cfg.Chain.RPCURL = "http://localhost:8545"
	cfg.Chain.TokenAddress = "0xToken"
	cfg.Chain.ChainID = 11155111

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "private_key or encrypted_key_path")

	cfg.Wallet.PrivateKey = "deadbeef"
	require.NoError(t, cfg.Validate())
}

func TestValidateCollectsMultipleErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Settlement.BatchSize = 0
	cfg.Redis.Addr = ""
	cfg.Server.Port = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batch_size")
	assert.Contains(t, err.Error(), "redis: addr")
	assert.Contains(t, err.Error(), "server: port")
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	data := `
mode = "serve"
log_level = "debug"

[owner]
account = "0xabc"
admin_key = "k"

[oracle]
mode = "manual"
max_age = "30m"

[settlement]
batch_size = 25
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "serve", cfg.Mode)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "0xabc", cfg.Owner.Account)
	assert.Equal(t, 30*time.Minute, cfg.Oracle.MaxAge.Duration)
	assert.Equal(t, 25, cfg.Settlement.BatchSize)

	// Fields absent from the file keep their defaults.
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 8000, cfg.Server.Port)
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	data := `
[owner]
account = "0xfile"
admin_key = "file-key"
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	t.Setenv("MINTERD_OWNER_ACCOUNT", "0xenv")
	t.Setenv("MINTERD_REDIS_ADDR", "redis:6380")
	t.Setenv("MINTERD_SETTLEMENT_INTERVAL", "45s")
	t.Setenv("MINTERD_SERVER_ENABLED", "false")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "0xenv", cfg.Owner.Account)
	assert.Equal(t, "file-key", cfg.Owner.AdminKey)
	assert.Equal(t, "redis:6380", cfg.Redis.Addr)
	assert.Equal(t, 45*time.Second, cfg.Settlement.Interval.Duration)
	assert.False(t, cfg.Server.Enabled)
}

func TestLoadRejectsMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.Error(t, err)
}
