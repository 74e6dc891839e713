package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies POLYMIRROR_* environment variable overrides, and
// returns the final Config. A missing file is not an error so the bot can be
// configured from the environment alone. The returned Config has NOT been
// validated; the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known POLYMIRROR_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Top-level ──
	setStr(&cfg.Mode, "POLYMIRROR_MODE")
	setStr(&cfg.LogLevel, "POLYMIRROR_LOG_LEVEL")

	// ── Accounts ──
	setStr(&cfg.Lead.Address, "POLYMIRROR_LEAD_ADDRESS")
	setStr(&cfg.Wallet.Address, "POLYMIRROR_WALLET_ADDRESS")

	// ── API credentials ──
	setStr(&cfg.API.Key, "POLYMIRROR_API_KEY")
	setStr(&cfg.API.Secret, "POLYMIRROR_API_SECRET")
	setStr(&cfg.API.Passphrase, "POLYMIRROR_API_PASSPHRASE")
	setStr(&cfg.API.SecretFile, "POLYMIRROR_API_SECRET_FILE")
	setStr(&cfg.API.KeyPassword, "POLYMIRROR_KEY_PASSWORD")

	// ── Polymarket ──
	setStr(&cfg.Polymarket.ClobHost, "POLYMIRROR_POLYMARKET_CLOB_HOST")
	setStr(&cfg.Polymarket.DataHost, "POLYMIRROR_POLYMARKET_DATA_HOST")
	setStr(&cfg.Polymarket.WsHost, "POLYMIRROR_POLYMARKET_WS_HOST")
	setFloat64(&cfg.Polymarket.RequestsPerSecond, "POLYMIRROR_POLYMARKET_REQUESTS_PER_SECOND")

	// ── Feed / stream ──
	setDuration(&cfg.Feed.ActivityInterval, "POLYMIRROR_FEED_ACTIVITY_INTERVAL")
	setDuration(&cfg.Feed.PositionsInterval, "POLYMIRROR_FEED_POSITIONS_INTERVAL")
	setDuration(&cfg.Feed.ActivityWindow, "POLYMIRROR_FEED_ACTIVITY_WINDOW")
	setBool(&cfg.Feed.PositionDiffOpens, "POLYMIRROR_FEED_POSITION_DIFF_OPENS")
	setBool(&cfg.Stream.Enabled, "POLYMIRROR_STREAM_ENABLED")
	setInt(&cfg.Stream.MaxReconnectAttempts, "POLYMIRROR_STREAM_MAX_RECONNECT_ATTEMPTS")
	setDuration(&cfg.Stream.ReconnectDelay, "POLYMIRROR_STREAM_RECONNECT_DELAY")
	setStr(&cfg.Stream.Backoff, "POLYMIRROR_STREAM_BACKOFF")

	// ── Sizing / dispatch ──
	setStr(&cfg.Sizing.Mode, "POLYMIRROR_SIZING_MODE")
	setFloat64(&cfg.Sizing.CopyFraction, "POLYMIRROR_SIZING_COPY_FRACTION")
	setFloat64(&cfg.Sizing.FixedAmount, "POLYMIRROR_SIZING_FIXED_AMOUNT")
	setFloat64(&cfg.Sizing.MinShares, "POLYMIRROR_SIZING_MIN_SHARES")
	setDuration(&cfg.Dispatch.Cooldown, "POLYMIRROR_DISPATCH_COOLDOWN")
	setBool(&cfg.Dispatch.DistributedLock, "POLYMIRROR_DISPATCH_DISTRIBUTED_LOCK")

	// ── Telemetry ──
	setBool(&cfg.Polygon.Enabled, "POLYMIRROR_POLYGON_ENABLED")
	setStr(&cfg.Polygon.RPCURL, "POLYMIRROR_POLYGON_RPC_URL")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "POLYMIRROR_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "POLYMIRROR_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "POLYMIRROR_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "POLYMIRROR_REDIS_DB")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "POLYMIRROR_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "POLYMIRROR_POSTGRES_DSN")
	setStr(&cfg.Postgres.Password, "POLYMIRROR_POSTGRES_PASSWORD")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "POLYMIRROR_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "POLYMIRROR_S3_ENDPOINT")
	setStr(&cfg.S3.Bucket, "POLYMIRROR_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "POLYMIRROR_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "POLYMIRROR_S3_SECRET_KEY")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "POLYMIRROR_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "POLYMIRROR_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "POLYMIRROR_SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "POLYMIRROR_SERVER_CORS_ORIGINS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "POLYMIRROR_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "POLYMIRROR_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "POLYMIRROR_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "POLYMIRROR_NOTIFY_EVENTS")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
