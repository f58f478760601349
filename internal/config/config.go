// Package config defines the top-level configuration for the market pipeline
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by APEPIPE_* environment variables.
type Config struct {
	Polymarket PolymarketConfig `toml:"polymarket"`
	Apechain   ApechainConfig   `toml:"apechain"`
	Slack      SlackConfig      `toml:"slack"`
	OpenAI     OpenAIConfig     `toml:"openai"`
	Database   DatabaseConfig   `toml:"database"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Pipeline   PipelineConfig   `toml:"pipeline"`
	Server     ServerConfig     `toml:"server"`
	Notify     NotifyConfig     `toml:"notify"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// PolymarketConfig holds the Gamma API endpoint and fetch parameters.
type PolymarketConfig struct {
	GammaHost    string   `toml:"gamma_host"`
	FetchLimit   int      `toml:"fetch_limit"`
	HTTPTimeout  duration `toml:"http_timeout"`
	ArchiveRaw   bool     `toml:"archive_raw"`
	ActiveOnly   bool     `toml:"active_only"`
	ExcludeTagID string   `toml:"exclude_tag_id"`
}

// ApechainConfig holds the chain endpoint, contract address, and wallet
// credentials used to submit createMarket transactions.
type ApechainConfig struct {
	RPCURL           string   `toml:"rpc_url"`
	ChainID          int64    `toml:"chain_id"`
	ContractAddress  string   `toml:"contract_address"`
	PrivateKey       string   `toml:"private_key"`
	EncryptedKeyPath string   `toml:"encrypted_key_path"`
	KeyPassword      string   `toml:"key_password"`
	GasLimit         uint64   `toml:"gas_limit"`
	ConfirmTimeout   duration `toml:"confirm_timeout"`
}

// SlackConfig holds the Web API token and review channel.
type SlackConfig struct {
	Token     string `toml:"token"`
	Channel   string `toml:"channel"`
	BotUserID string `toml:"bot_user_id"`
}

// OpenAIConfig holds the categorization model parameters.
type OpenAIConfig struct {
	ApiKey              string  `toml:"api_key"`
	Model               string  `toml:"model"`
	BaseURL             string  `toml:"base_url"`
	ConfidenceThreshold float64 `toml:"confidence_threshold"`
	BatchSize           int     `toml:"batch_size"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
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

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// PipelineConfig holds run scheduling and approval window parameters.
type PipelineConfig struct {
	RunInterval              duration `toml:"run_interval"`
	ApprovalWindow           duration `toml:"approval_window"`
	DeploymentApprovalWindow duration `toml:"deployment_approval_window"`
	PostBatchLimit           int      `toml:"post_batch_limit"`
	LockTTL                  duration `toml:"lock_ttl"`
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
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	RateLimit   int      `toml:"rate_limit"` // requests per minute per client, 0 disables
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
		Polymarket: PolymarketConfig{
			GammaHost:   "https://gamma-api.polymarket.com",
			FetchLimit:  100,
			HTTPTimeout: duration{30 * time.Second},
			ArchiveRaw:  false,
			ActiveOnly:  true,
		},
		Apechain: ApechainConfig{
			RPCURL:         "https://apechain.calderachain.xyz/http",
			ChainID:        33139,
			GasLimit:       3_000_000,
			ConfirmTimeout: duration{2 * time.Minute},
		},
		OpenAI: OpenAIConfig{
			Model:               "gpt-4o-mini",
			BaseURL:             "https://api.openai.com/v1",
			ConfidenceThreshold: 0.7,
			BatchSize:           20,
		},
		Database: DatabaseConfig{
			DSN:           "",
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "apepipe-data",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Pipeline: PipelineConfig{
			RunInterval:              duration{4 * time.Hour},
			ApprovalWindow:           duration{7 * 24 * time.Hour},
			DeploymentApprovalWindow: duration{7 * 24 * time.Hour},
			PostBatchLimit:           25,
			LockTTL:                  duration{30 * time.Minute},
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:   240,
		},
		Notify: NotifyConfig{
			Events: []string{"run_completed", "deploy_failed", "error"},
		},
		Mode:     "pipeline",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"pipeline": true,
	"once":     true,
	"serve":    true,
	"track":    true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: pipeline, once, serve, track)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Polymarket
	if c.Polymarket.GammaHost == "" {
		errs = append(errs, "polymarket: gamma_host must not be empty")
	}
	if c.Polymarket.FetchLimit < 1 {
		errs = append(errs, "polymarket: fetch_limit must be >= 1")
	}

	// Apechain: a wallet is required for the modes that deploy.
	needsWallet := c.Mode == "pipeline" || c.Mode == "once" || c.Mode == "track"
	if needsWallet {
		if c.Apechain.RPCURL == "" {
			errs = append(errs, "apechain: rpc_url must not be empty")
		}
		if c.Apechain.ChainID <= 0 {
			errs = append(errs, "apechain: chain_id must be positive")
		}
		if c.Apechain.ContractAddress == "" {
			errs = append(errs, "apechain: contract_address must not be empty")
		}
		if c.Apechain.PrivateKey == "" && c.Apechain.EncryptedKeyPath == "" {
			errs = append(errs, "apechain: either private_key or encrypted_key_path must be set for mode "+c.Mode)
		}
		if c.Apechain.EncryptedKeyPath != "" && c.Apechain.KeyPassword == "" {
			errs = append(errs, "apechain: key_password is required when encrypted_key_path is set")
		}
	}

	// Slack: required whenever the pipeline posts for review.
	if c.Mode == "pipeline" || c.Mode == "once" {
		if c.Slack.Token == "" {
			errs = append(errs, "slack: token is required for mode "+c.Mode)
		}
		if c.Slack.Channel == "" {
			errs = append(errs, "slack: channel must not be empty")
		}
	}

	// OpenAI: the keyword fallback covers a missing key, but threshold and
	// batch size must still be sane.
	if c.OpenAI.ConfidenceThreshold < 0 || c.OpenAI.ConfidenceThreshold > 1 {
		errs = append(errs, fmt.Sprintf("openai: confidence_threshold must be in [0,1], got %g", c.OpenAI.ConfidenceThreshold))
	}
	if c.OpenAI.BatchSize < 1 {
		errs = append(errs, "openai: batch_size must be >= 1")
	}

	// Database
	if strings.TrimSpace(c.Database.DSN) == "" {
		if c.Database.Host == "" {
			errs = append(errs, "database: host must not be empty (or set database.dsn)")
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			errs = append(errs, fmt.Sprintf("database: port must be 1-65535, got %d", c.Database.Port))
		}
		if c.Database.Database == "" {
			errs = append(errs, "database: database must not be empty")
		}
	}
	if c.Database.PoolMaxConns < 1 {
		errs = append(errs, "database: pool_max_conns must be >= 1")
	}
	if c.Database.PoolMinConns < 0 {
		errs = append(errs, "database: pool_min_conns must be >= 0")
	}
	if c.Database.PoolMinConns > c.Database.PoolMaxConns {
		errs = append(errs, "database: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3: only needed when raw archiving is on.
	if c.Polymarket.ArchiveRaw {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when polymarket.archive_raw is set")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when polymarket.archive_raw is set")
		}
	}

	// Pipeline
	if c.Pipeline.RunInterval.Duration < time.Minute {
		errs = append(errs, "pipeline: run_interval must be >= 1m")
	}
	if c.Pipeline.ApprovalWindow.Duration <= 0 {
		errs = append(errs, "pipeline: approval_window must be > 0")
	}
	if c.Pipeline.DeploymentApprovalWindow.Duration <= 0 {
		errs = append(errs, "pipeline: deployment_approval_window must be > 0")
	}
	if c.Pipeline.PostBatchLimit < 1 {
		errs = append(errs, "pipeline: post_batch_limit must be >= 1")
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
