package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polymirror/internal/config"
)

const (
	testLead   = "0x1111111111111111111111111111111111111111"
	testWallet = "0x2222222222222222222222222222222222222222"
)

func validConfig() config.Config {
	cfg := config.Defaults()
	cfg.Lead.Address = testLead
	cfg.Wallet.Address = testWallet
	return cfg
}

func TestDefaultsWithAddressesValidate(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())
	assert.False(t, cfg.IsLive())
}

func TestValidateRejectsPlaceholderAddresses(t *testing.T) {
	cfg := validConfig()
	cfg.Lead.Address = "0xYourLeadTraderAddress"
	cfg.Wallet.Address = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lead.address looks like a placeholder")
	assert.Contains(t, err.Error(), "wallet.address must be set")
}

func TestValidateRejectsNonHexAddress(t *testing.T) {
	cfg := validConfig()
	cfg.Lead.Address = "0x1234"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a valid hex address")
}

func TestValidateLiveRequiresCredentials(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = "live"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "key and passphrase are required")
	assert.Contains(t, err.Error(), "either secret or secret_file")

	cfg.API.Key = "k"
	cfg.API.Passphrase = "p"
	cfg.API.SecretFile = "/tmp/secret.enc"
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "key_password is required")

	cfg.API.KeyPassword = "pw"
	cfg.Server.APIKey = "operator-key"
	assert.NoError(t, cfg.Validate())
}

func TestValidateLiveServerRequiresAPIKey(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = "live"
	cfg.API.Key = "k"
	cfg.API.Passphrase = "p"
	cfg.API.Secret = "c2VjcmV0"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server: api_key is required in live mode")

	cfg.Server.Enabled = false
	assert.NoError(t, cfg.Validate())

	cfg.Server.Enabled = true
	cfg.Server.APIKey = "operator-key"
	assert.NoError(t, cfg.Validate())

	// Paper mode cannot cancel real orders.
	cfg.Mode = "paper"
	cfg.Server.APIKey = ""
	assert.NoError(t, cfg.Validate())
}

func TestValidateSizing(t *testing.T) {
	cfg := validConfig()
	cfg.Sizing.Mode = "fixed_fraction"
	cfg.Sizing.CopyFraction = 1.5

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "copy_fraction")

	cfg.Sizing.Mode = "martingale"
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode \"martingale\"")
}

func TestValidateDistributedLockNeedsRedis(t *testing.T) {
	cfg := validConfig()
	cfg.Dispatch.DistributedLock = true

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "distributed_lock requires redis.enabled")
}

func TestLoadMergesFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := `
mode = "live"

[lead]
address = "` + testLead + `"

[feed]
activity_interval = "7s"

[sizing]
mode = "fixed_fraction"
copy_fraction = 0.25
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	t.Setenv("POLYMIRROR_WALLET_ADDRESS", testWallet)
	t.Setenv("POLYMIRROR_DISPATCH_COOLDOWN", "9s")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "live", cfg.Mode)
	assert.Equal(t, testLead, cfg.Lead.Address)
	assert.Equal(t, testWallet, cfg.Wallet.Address)
	assert.Equal(t, 7*time.Second, cfg.Feed.ActivityInterval.Duration)
	assert.Equal(t, 9*time.Second, cfg.Dispatch.Cooldown.Duration)
	assert.InDelta(t, 0.25, cfg.Sizing.CopyFraction, 1e-9)
	// untouched defaults survive
	assert.Equal(t, 30*time.Second, cfg.Feed.ActivityWindow.Duration)
	assert.Equal(t, 1000, cfg.Dedup.Capacity)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, "paper", cfg.Mode)
}

func TestRedactedConfig(t *testing.T) {
	cfg := validConfig()
	cfg.API.Secret = "c2VjcmV0"
	cfg.Redis.Password = "hunter2"

	out := config.RedactedConfig(&cfg)
	assert.Equal(t, "***", out.API.Secret)
	assert.Equal(t, "***", out.Redis.Password)
	assert.Equal(t, "", out.API.Key)
	assert.Equal(t, "c2VjcmV0", cfg.API.Secret)
}
