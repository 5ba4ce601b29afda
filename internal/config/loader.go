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
// built-in defaults, applies FORECASTD_* environment variable overrides, and
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

// applyEnvOverrides reads well-known FORECASTD_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "FORECASTD_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "FORECASTD_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "FORECASTD_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "FORECASTD_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "FORECASTD_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "FORECASTD_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "FORECASTD_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "FORECASTD_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "FORECASTD_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "FORECASTD_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "FORECASTD_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "FORECASTD_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "FORECASTD_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "FORECASTD_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "FORECASTD_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "FORECASTD_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "FORECASTD_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "FORECASTD_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "FORECASTD_S3_REGION")
	setStr(&cfg.S3.Bucket, "FORECASTD_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "FORECASTD_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "FORECASTD_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "FORECASTD_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "FORECASTD_S3_FORCE_PATH_STYLE")

	// ── Scoring ──
	setDuration(&cfg.Scoring.PollInterval, "FORECASTD_SCORING_POLL_INTERVAL")
	setDuration(&cfg.Scoring.ArchiveInterval, "FORECASTD_SCORING_ARCHIVE_INTERVAL")
	setInt(&cfg.Scoring.ArchiveRetentionDays, "FORECASTD_SCORING_ARCHIVE_RETENTION_DAYS")
	setInt(&cfg.Scoring.SubmitRateLimit, "FORECASTD_SCORING_SUBMIT_RATE_LIMIT")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "FORECASTD_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "FORECASTD_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "FORECASTD_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "FORECASTD_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "FORECASTD_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateLimitWindow, "FORECASTD_SERVER_RATE_LIMIT_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "FORECASTD_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "FORECASTD_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "FORECASTD_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "FORECASTD_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "FORECASTD_MODE")
	setStr(&cfg.LogLevel, "FORECASTD_LOG_LEVEL")
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
