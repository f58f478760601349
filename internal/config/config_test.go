package config

import (
	"strings"
	"testing"
	"time"
)

// deployable returns defaults filled in enough to pass validation in
// pipeline mode.
func deployable() Config {
	cfg := Defaults()
	cfg.Apechain.ContractAddress = "0x0000000000000000000000000000000000000001"
	cfg.Apechain.PrivateKey = "4c0883a69102937d6231471b5dbb6204fe512961708279f1d1e7b8e2d0f6c2a1"
	cfg.Slack.Token = "xoxb-test"
	cfg.Slack.Channel = "C123456"
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string // substring of the expected error, empty for ok
	}{
		{
			name:   "deployable defaults pass",
			mutate: func(c *Config) {},
		},
		{
			name:    "unknown mode",
			mutate:  func(c *Config) { c.Mode = "turbo" },
			wantErr: "unknown mode",
		},
		{
			name:    "missing slack token in pipeline mode",
			mutate:  func(c *Config) { c.Slack.Token = "" },
			wantErr: "slack: token is required",
		},
		{
			name: "serve mode needs no wallet or slack",
			mutate: func(c *Config) {
				c.Mode = "serve"
				c.Apechain.PrivateKey = ""
				c.Apechain.ContractAddress = ""
				c.Slack.Token = ""
				c.Slack.Channel = ""
			},
		},
		{
			name:    "encrypted key without password",
			mutate:  func(c *Config) { c.Apechain.PrivateKey = ""; c.Apechain.EncryptedKeyPath = "/tmp/key.enc" },
			wantErr: "key_password is required",
		},
		{
			name:    "confidence threshold out of range",
			mutate:  func(c *Config) { c.OpenAI.ConfidenceThreshold = 1.5 },
			wantErr: "confidence_threshold",
		},
		{
			name:    "pool mins exceed max",
			mutate:  func(c *Config) { c.Database.PoolMinConns = 20 },
			wantErr: "pool_min_conns must not exceed",
		},
		{
			name:    "archive without bucket",
			mutate:  func(c *Config) { c.Polymarket.ArchiveRaw = true; c.S3.Bucket = "" },
			wantErr: "s3: bucket must not be empty",
		},
		{
			name:    "run interval too small",
			mutate:  func(c *Config) { c.Pipeline.RunInterval = duration{10 * time.Second} },
			wantErr: "run_interval must be >= 1m",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := deployable()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() = nil, want error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("APEPIPE_SLACK_TOKEN", "xoxb-env")
	t.Setenv("APEPIPE_PIPELINE_RUN_INTERVAL", "30m")
	t.Setenv("APEPIPE_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("APEPIPE_APECHAIN_CHAIN_ID", "not-a-number")

	cfg := Defaults()
	applyEnvOverrides(&cfg)

	if cfg.Slack.Token != "xoxb-env" {
		t.Errorf("Slack.Token = %q, want xoxb-env", cfg.Slack.Token)
	}
	if cfg.Pipeline.RunInterval.Duration != 30*time.Minute {
		t.Errorf("RunInterval = %v, want 30m", cfg.Pipeline.RunInterval.Duration)
	}
	if len(cfg.Server.CORSOrigins) != 2 || cfg.Server.CORSOrigins[1] != "https://b.example" {
		t.Errorf("CORSOrigins = %v", cfg.Server.CORSOrigins)
	}
	if cfg.Apechain.ChainID != Defaults().Apechain.ChainID {
		t.Errorf("ChainID = %d, malformed env var should be ignored", cfg.Apechain.ChainID)
	}
}

func TestRedactedConfig(t *testing.T) {
	cfg := deployable()
	cfg.Database.Password = "hunter2"
	cfg.OpenAI.ApiKey = "sk-abc"

	red := RedactedConfig(&cfg)

	if red.Slack.Token != "***" || red.Database.Password != "***" || red.OpenAI.ApiKey != "***" {
		t.Errorf("secrets not redacted: %+v", red)
	}
	if cfg.Slack.Token != "xoxb-test" {
		t.Errorf("original mutated: %q", cfg.Slack.Token)
	}
	if red.Database.Host != cfg.Database.Host {
		t.Errorf("non-secret field changed: %q", red.Database.Host)
	}
}

func TestDurationText(t *testing.T) {
	var d duration
	if err := d.UnmarshalText([]byte("90s")); err != nil {
		t.Fatalf("UnmarshalText: %v", err)
	}
	if d.Duration != 90*time.Second {
		t.Errorf("Duration = %v, want 90s", d.Duration)
	}
	out, err := d.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText: %v", err)
	}
	if string(out) != "1m30s" {
		t.Errorf("MarshalText = %q, want 1m30s", out)
	}
}
