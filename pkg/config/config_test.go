package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// helper to build a minimal valid config that can be tweaked in tests.
func validBaseConfig() *Config {
	cfg := DefaultConfig()
	cfg.RateLimiting.Enabled = true
	cfg.RateLimiting.HTTP.RequestsPerSecond = 10
	cfg.RateLimiting.HTTP.Burst = 20
	cfg.RateLimiting.HTTP.MaxConcurrent = 5
	cfg.RateLimiting.WebSocket.MessagesPerSecond = 50
	cfg.RateLimiting.WebSocket.Burst = 100
	cfg.RateLimiting.WebSocket.MaxConcurrent = 10
	return cfg
}

func TestDefaultConfig_IsValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config must be valid, got: %v", err)
	}
}

func TestValidate_RateLimitingDisabled_AllowsZeroValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RateLimiting.Enabled = false
	cfg.RateLimiting.HTTP.RequestsPerSecond = 0
	cfg.RateLimiting.HTTP.Burst = 0
	cfg.RateLimiting.WebSocket.MessagesPerSecond = 0
	cfg.RateLimiting.WebSocket.Burst = 0

	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected config to be valid when rate limiting disabled, got error: %v", err)
	}
}

func TestValidate_InvalidValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{
			name:   "http rps must be > 0",
			mutate: func(c *Config) { c.RateLimiting.HTTP.RequestsPerSecond = 0 },
		},
		{
			name:   "ws burst must be > 0",
			mutate: func(c *Config) { c.RateLimiting.WebSocket.Burst = 0 },
		},
		{
			name:   "pong timeout must exceed ping interval",
			mutate: func(c *Config) { c.Signal.PongTimeout = c.Signal.PingInterval },
		},
		{
			name:   "send buffer must be > 0",
			mutate: func(c *Config) { c.Signal.SendBuffer = 0 },
		},
		{
			name:   "negotiation timeout must be > 0",
			mutate: func(c *Config) { c.Session.NegotiationTimeout = 0 },
		},
		{
			name:   "owner grace period must be > 0",
			mutate: func(c *Config) { c.Session.OwnerGracePeriod = 0 },
		},
		{
			name:   "estimate minutes must be > 0",
			mutate: func(c *Config) { c.Billing.EstimateMinutes = 0 },
		},
		{
			name:   "unknown ledger mode",
			mutate: func(c *Config) { c.Ledger.Mode = "postgres" },
		},
		{
			name: "http ledger needs url",
			mutate: func(c *Config) {
				c.Ledger.Mode = "http"
				c.Ledger.URL = ""
			},
		},
		{
			name: "redis needs lease ttl",
			mutate: func(c *Config) {
				c.Redis.Enabled = true
				c.Redis.LeaseTTL = 0
			},
		},
		{
			name: "required auth needs secret",
			mutate: func(c *Config) {
				c.Auth.Required = true
				c.Auth.JWTSecret = ""
			},
		},
		{
			name:   "sample rate above one",
			mutate: func(c *Config) { c.Tracing.SampleRate = 1.5 },
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validBaseConfig()
			tc.mutate(cfg)

			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error for case %q, got nil", tc.name)
			}
		})
	}
}

func TestLoad_FileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "skycast.yaml")
	yamlConfig := `
server:
  address: ":9000"
session:
  negotiation_timeout: 5s
billing:
  estimate_minutes: 15
friends:
  seed:
    alice: [bob, carol]
`
	if err := os.WriteFile(path, []byte(yamlConfig), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("SKYCAST_LOG_LEVEL", "debug")
	t.Setenv("SKYCAST_LEDGER_URL", "http://ledger.local")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Server.Address != ":9000" {
		t.Errorf("server.address = %q, want :9000", cfg.Server.Address)
	}
	if cfg.Session.NegotiationTimeout != 5*time.Second {
		t.Errorf("session.negotiation_timeout = %v, want 5s", cfg.Session.NegotiationTimeout)
	}
	if cfg.Billing.EstimateMinutes != 15 {
		t.Errorf("billing.estimate_minutes = %v, want 15", cfg.Billing.EstimateMinutes)
	}
	if got := cfg.Friends.Seed["alice"]; len(got) != 2 {
		t.Errorf("friends.seed[alice] = %v, want two entries", got)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("logging.level = %q, want debug", cfg.Logging.Level)
	}
	if cfg.Ledger.Mode != "http" || cfg.Ledger.URL != "http://ledger.local" {
		t.Errorf("ledger = %s %s, want http ledger", cfg.Ledger.Mode, cfg.Ledger.URL)
	}
	// Defaults survive for keys the file does not mention.
	if cfg.Signal.SendBuffer != 256 {
		t.Errorf("signal.send_buffer = %d, want default 256", cfg.Signal.SendBuffer)
	}
}

func TestLoad_MissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Ledger.Mode != "memory" {
		t.Errorf("ledger.mode = %q, want memory", cfg.Ledger.Mode)
	}
}
