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
// built-in defaults, applies APEPIPE_* environment variable overrides, and
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

// applyEnvOverrides reads well-known APEPIPE_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Polymarket ──
	setStr(&cfg.Polymarket.GammaHost, "APEPIPE_POLYMARKET_GAMMA_HOST")
	setInt(&cfg.Polymarket.FetchLimit, "APEPIPE_POLYMARKET_FETCH_LIMIT")
	setDuration(&cfg.Polymarket.HTTPTimeout, "APEPIPE_POLYMARKET_HTTP_TIMEOUT")
	setBool(&cfg.Polymarket.ArchiveRaw, "APEPIPE_POLYMARKET_ARCHIVE_RAW")
	setBool(&cfg.Polymarket.ActiveOnly, "APEPIPE_POLYMARKET_ACTIVE_ONLY")
	setStr(&cfg.Polymarket.ExcludeTagID, "APEPIPE_POLYMARKET_EXCLUDE_TAG_ID")

	// ── Apechain ──
	setStr(&cfg.Apechain.RPCURL, "APEPIPE_APECHAIN_RPC_URL")
	setInt64(&cfg.Apechain.ChainID, "APEPIPE_APECHAIN_CHAIN_ID")
	setStr(&cfg.Apechain.ContractAddress, "APEPIPE_APECHAIN_CONTRACT_ADDRESS")
	setStr(&cfg.Apechain.PrivateKey, "APEPIPE_APECHAIN_PRIVATE_KEY")
	setStr(&cfg.Apechain.EncryptedKeyPath, "APEPIPE_APECHAIN_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Apechain.KeyPassword, "APEPIPE_APECHAIN_KEY_PASSWORD")
	setUint64(&cfg.Apechain.GasLimit, "APEPIPE_APECHAIN_GAS_LIMIT")
	setDuration(&cfg.Apechain.ConfirmTimeout, "APEPIPE_APECHAIN_CONFIRM_TIMEOUT")

	// ── Slack ──
	setStr(&cfg.Slack.Token, "APEPIPE_SLACK_TOKEN")
	setStr(&cfg.Slack.Channel, "APEPIPE_SLACK_CHANNEL")
	setStr(&cfg.Slack.BotUserID, "APEPIPE_SLACK_BOT_USER_ID")

	// ── OpenAI ──
	setStr(&cfg.OpenAI.ApiKey, "APEPIPE_OPENAI_API_KEY")
	setStr(&cfg.OpenAI.ApiKey, "OPENAI_API_KEY") // compatibility alias
	setStr(&cfg.OpenAI.Model, "APEPIPE_OPENAI_MODEL")
	setStr(&cfg.OpenAI.BaseURL, "APEPIPE_OPENAI_BASE_URL")
	setFloat64(&cfg.OpenAI.ConfidenceThreshold, "APEPIPE_OPENAI_CONFIDENCE_THRESHOLD")
	setInt(&cfg.OpenAI.BatchSize, "APEPIPE_OPENAI_BATCH_SIZE")

	// ── Database ──
	setStr(&cfg.Database.DSN, "APEPIPE_DATABASE_DSN")
	setStr(&cfg.Database.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Database.Host, "APEPIPE_DATABASE_HOST")
	setInt(&cfg.Database.Port, "APEPIPE_DATABASE_PORT")
	setStr(&cfg.Database.Database, "APEPIPE_DATABASE_NAME")
	setStr(&cfg.Database.User, "APEPIPE_DATABASE_USER")
	setStr(&cfg.Database.Password, "APEPIPE_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "APEPIPE_DATABASE_SSL_MODE")
	setInt(&cfg.Database.PoolMaxConns, "APEPIPE_DATABASE_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "APEPIPE_DATABASE_POOL_MIN_CONNS")
	setBool(&cfg.Database.RunMigrations, "APEPIPE_DATABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "APEPIPE_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "APEPIPE_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "APEPIPE_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "APEPIPE_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "APEPIPE_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "APEPIPE_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "APEPIPE_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "APEPIPE_S3_REGION")
	setStr(&cfg.S3.Bucket, "APEPIPE_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "APEPIPE_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "APEPIPE_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "APEPIPE_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "APEPIPE_S3_FORCE_PATH_STYLE")

	// ── Pipeline ──
	setDuration(&cfg.Pipeline.RunInterval, "APEPIPE_PIPELINE_RUN_INTERVAL")
	setDuration(&cfg.Pipeline.ApprovalWindow, "APEPIPE_PIPELINE_APPROVAL_WINDOW")
	setDuration(&cfg.Pipeline.DeploymentApprovalWindow, "APEPIPE_PIPELINE_DEPLOYMENT_APPROVAL_WINDOW")
	setInt(&cfg.Pipeline.PostBatchLimit, "APEPIPE_PIPELINE_POST_BATCH_LIMIT")
	setDuration(&cfg.Pipeline.LockTTL, "APEPIPE_PIPELINE_LOCK_TTL")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "APEPIPE_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "APEPIPE_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "APEPIPE_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "APEPIPE_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "APEPIPE_SERVER_RATE_LIMIT")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "APEPIPE_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "APEPIPE_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "APEPIPE_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "APEPIPE_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "APEPIPE_MODE")
	setStr(&cfg.LogLevel, "APEPIPE_LOG_LEVEL")
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

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
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
