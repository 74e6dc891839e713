// Package config defines the top-level configuration for the mirror bot and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by POLYMIRROR_* environment variables.
type Config struct {
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
	Lead       LeadConfig       `toml:"lead"`
	Wallet     WalletConfig     `toml:"wallet"`
	API        APIConfig        `toml:"api"`
	Polymarket PolymarketConfig `toml:"polymarket"`
	Feed       FeedConfig       `toml:"feed"`
	Stream     StreamConfig     `toml:"stream"`
	Dedup      DedupConfig      `toml:"dedup"`
	Sizing     SizingConfig     `toml:"sizing"`
	Dispatch   DispatchConfig   `toml:"dispatch"`
	Ledger     LedgerConfig     `toml:"ledger"`
	Account    AccountConfig    `toml:"account"`
	Stats      StatsConfig      `toml:"stats"`
	Polygon    PolygonConfig    `toml:"polygon"`
	Redis      RedisConfig      `toml:"redis"`
	Postgres   PostgresConfig   `toml:"postgres"`
	S3         S3Config         `toml:"s3"`
	Server     ServerConfig     `toml:"server"`
	Notify     NotifyConfig     `toml:"notify"`
}

// LeadConfig identifies the trader being mirrored.
type LeadConfig struct {
	Address string `toml:"address"`
}

// WalletConfig identifies the follower account.
type WalletConfig struct {
	Address string `toml:"address"`
}

// APIConfig holds CLOB L2 API credentials. The secret may be supplied in
// plain text or as an encrypted file produced by crypto.EncryptSecret.
type APIConfig struct {
	Key         string `toml:"key"`
	Secret      string `toml:"secret"`
	Passphrase  string `toml:"passphrase"`
	SecretFile  string `toml:"secret_file"`
	KeyPassword string `toml:"key_password"`
}

// PolymarketConfig holds Polymarket API endpoints and client limits.
type PolymarketConfig struct {
	ClobHost          string   `toml:"clob_host"`
	DataHost          string   `toml:"data_host"`
	WsHost            string   `toml:"ws_host"`
	RequestsPerSecond float64  `toml:"requests_per_second"`
	Burst             int      `toml:"burst"`
	RequestTimeout    duration `toml:"request_timeout"`
}

// FeedConfig controls the polling side of the activity feed.
type FeedConfig struct {
	ActivityInterval  duration `toml:"activity_interval"`
	ActivityWindow    duration `toml:"activity_window"`
	ActivityLimit     int      `toml:"activity_limit"`
	PositionsInterval duration `toml:"positions_interval"`
	PositionDiffOpens bool     `toml:"position_diff_opens"`
	BufferSize        int      `toml:"buffer_size"`
}

// StreamConfig controls the push stream and its reconnect policy.
type StreamConfig struct {
	Enabled              bool     `toml:"enabled"`
	Channel              string   `toml:"channel"`
	MaxReconnectAttempts int      `toml:"max_reconnect_attempts"`
	ReconnectDelay       duration `toml:"reconnect_delay"`
	MaxReconnectDelay    duration `toml:"max_reconnect_delay"`
	Backoff              string   `toml:"backoff"`
}

// DedupConfig bounds the processed-identity set.
type DedupConfig struct {
	Capacity   int `toml:"capacity"`
	EvictBatch int `toml:"evict_batch"`
}

// SizingConfig selects how mirror orders are sized.
type SizingConfig struct {
	Mode         string  `toml:"mode"`
	CopyFraction float64 `toml:"copy_fraction"`
	FixedAmount  float64 `toml:"fixed_amount"`
	MinShares    float64 `toml:"min_shares"`
}

// DispatchConfig controls the order dispatcher's in-flight guard.
type DispatchConfig struct {
	Cooldown        duration `toml:"cooldown"`
	DistributedLock bool     `toml:"distributed_lock"`
}

// LedgerConfig controls reconciliation.
type LedgerConfig struct {
	ReconcileGrace duration `toml:"reconcile_grace"`
}

// AccountConfig controls the follower account refresh cadence.
type AccountConfig struct {
	RefreshInterval duration `toml:"refresh_interval"`
}

// StatsConfig controls the periodic stats report.
type StatsConfig struct {
	DisplayInterval duration `toml:"display_interval"`
	ExportPrefix    string   `toml:"export_prefix"`
}

// PolygonConfig enables block-height telemetry.
type PolygonConfig struct {
	Enabled bool   `toml:"enabled"`
	RPCURL  string `toml:"rpc_url"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	Channel    string `toml:"channel"`
}

// PostgresConfig holds PostgreSQL connection parameters for the journal.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
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

// S3Config holds S3-compatible object storage parameters.
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

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
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

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	APIKey      string   `toml:"api_key"`
	CORSOrigins []string `toml:"cors_origins"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Mode:     "paper",
		LogLevel: "info",
		Polymarket: PolymarketConfig{
			ClobHost:          "https://clob.polymarket.com",
			DataHost:          "https://data-api.polymarket.com",
			WsHost:            "wss://ws-subscriptions-clob.polymarket.com",
			RequestsPerSecond: 5,
			Burst:             5,
			RequestTimeout:    duration{10 * time.Second},
		},
		Feed: FeedConfig{
			ActivityInterval:  duration{3 * time.Second},
			ActivityWindow:    duration{30 * time.Second},
			ActivityLimit:     20,
			PositionsInterval: duration{5 * time.Second},
			PositionDiffOpens: true,
			BufferSize:        256,
		},
		Stream: StreamConfig{
			Enabled:              true,
			Channel:              "user",
			MaxReconnectAttempts: 10,
			ReconnectDelay:       duration{10 * time.Second},
			MaxReconnectDelay:    duration{60 * time.Second},
			Backoff:              "fixed",
		},
		Dedup: DedupConfig{
			Capacity:   1000,
			EvictBatch: 100,
		},
		Sizing: SizingConfig{
			Mode:         "fixed_amount",
			CopyFraction: 0.10,
			FixedAmount:  10,
			MinShares:    0.01,
		},
		Dispatch: DispatchConfig{
			Cooldown: duration{5 * time.Second},
		},
		Ledger: LedgerConfig{
			ReconcileGrace: duration{15 * time.Second},
		},
		Account: AccountConfig{
			RefreshInterval: duration{30 * time.Second},
		},
		Stats: StatsConfig{
			DisplayInterval: duration{2 * time.Minute},
			ExportPrefix:    "stats",
		},
		Polygon: PolygonConfig{
			RPCURL: "https://polygon-rpc.com",
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   10,
			MaxRetries: 3,
			Channel:    "polymirror:events",
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  4,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "polymirror",
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000"},
		},
		Notify: NotifyConfig{
			Events: []string{"mirror_opened", "mirror_closed", "mirror_failed", "stream_exhausted"},
		},
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"live":  true,
	"paper": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validSizingModes = map[string]bool{
	"fixed_fraction": true,
	"fixed_amount":   true,
}

// IsLive reports whether real orders are placed.
func (c *Config) IsLive() bool {
	return strings.EqualFold(c.Mode, "live")
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: live, paper)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if msg := checkAddress("lead.address", c.Lead.Address); msg != "" {
		errs = append(errs, msg)
	}
	if msg := checkAddress("wallet.address", c.Wallet.Address); msg != "" {
		errs = append(errs, msg)
	}
	if c.Lead.Address != "" && strings.EqualFold(c.Lead.Address, c.Wallet.Address) {
		errs = append(errs, "lead.address must differ from wallet.address")
	}

	// Credentials are only needed when real orders are sent.
	if c.IsLive() {
		if c.API.Key == "" || c.API.Passphrase == "" {
			errs = append(errs, "api: key and passphrase are required for live mode")
		}
		if c.API.Secret == "" && c.API.SecretFile == "" {
			errs = append(errs, "api: either secret or secret_file must be set for live mode")
		}
	}
	if c.API.SecretFile != "" && c.API.KeyPassword == "" {
		errs = append(errs, "api: key_password is required when secret_file is set")
	}

	if c.Polymarket.ClobHost == "" {
		errs = append(errs, "polymarket: clob_host must not be empty")
	}
	if c.Polymarket.DataHost == "" {
		errs = append(errs, "polymarket: data_host must not be empty")
	}
	if c.Polymarket.RequestsPerSecond <= 0 {
		errs = append(errs, "polymarket: requests_per_second must be > 0")
	}

	if c.Feed.ActivityInterval.Duration <= 0 || c.Feed.PositionsInterval.Duration <= 0 {
		errs = append(errs, "feed: activity_interval and positions_interval must be > 0")
	}
	if c.Feed.ActivityWindow.Duration <= 0 {
		errs = append(errs, "feed: activity_window must be > 0")
	}

	if c.Stream.Enabled {
		if c.Polymarket.WsHost == "" {
			errs = append(errs, "polymarket: ws_host must not be empty when the stream is enabled")
		}
		if c.Stream.MaxReconnectAttempts < 1 {
			errs = append(errs, "stream: max_reconnect_attempts must be >= 1")
		}
		if c.Stream.Backoff != "fixed" && c.Stream.Backoff != "exponential" {
			errs = append(errs, fmt.Sprintf("stream: backoff must be fixed or exponential, got %q", c.Stream.Backoff))
		}
	}

	if c.Dedup.Capacity < 1 || c.Dedup.EvictBatch < 1 || c.Dedup.EvictBatch > c.Dedup.Capacity {
		errs = append(errs, "dedup: capacity must be >= 1 and evict_batch in [1, capacity]")
	}

	if !validSizingModes[c.Sizing.Mode] {
		errs = append(errs, fmt.Sprintf("sizing: unknown mode %q (valid: fixed_fraction, fixed_amount)", c.Sizing.Mode))
	}
	if c.Sizing.Mode == "fixed_fraction" && (c.Sizing.CopyFraction <= 0 || c.Sizing.CopyFraction > 1) {
		errs = append(errs, "sizing: copy_fraction must be in (0, 1]")
	}
	if c.Sizing.Mode == "fixed_amount" && c.Sizing.FixedAmount <= 0 {
		errs = append(errs, "sizing: fixed_amount must be > 0")
	}
	if c.Sizing.MinShares < 0 {
		errs = append(errs, "sizing: min_shares must be >= 0")
	}

	if c.Account.RefreshInterval.Duration <= 0 {
		errs = append(errs, "account: refresh_interval must be > 0")
	}

	if c.Polygon.Enabled && c.Polygon.RPCURL == "" {
		errs = append(errs, "polygon: rpc_url must be set when enabled")
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Dispatch.DistributedLock && !c.Redis.Enabled {
		errs = append(errs, "dispatch: distributed_lock requires redis.enabled")
	}

	if c.Postgres.Enabled && strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
	}

	if c.S3.Enabled && c.S3.Bucket == "" {
		errs = append(errs, "s3: bucket must not be empty")
	}

	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		// The API can cancel live orders.
		if c.IsLive() && strings.TrimSpace(c.Server.APIKey) == "" {
			errs = append(errs, "server: api_key is required in live mode (or set server.enabled = false)")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// checkAddress rejects missing, placeholder and non-hex addresses.
func checkAddress(field, addr string) string {
	lower := strings.ToLower(strings.TrimSpace(addr))
	switch {
	case lower == "":
		return field + " must be set"
	case strings.Contains(lower, "your") || strings.Contains(lower, "lead"):
		return fmt.Sprintf("%s looks like a placeholder: %q", field, addr)
	case !common.IsHexAddress(addr):
		return fmt.Sprintf("%s is not a valid hex address: %q", field, addr)
	}
	return ""
}
