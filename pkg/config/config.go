package config

import (
	"fmt"
	"os"
	"time"

	"skycast/pkg/validation"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Server struct {
		Address         string        `yaml:"address"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	Signal struct {
		Path                string        `yaml:"path"`
		PingInterval        time.Duration `yaml:"ping_interval"`
		PongTimeout         time.Duration `yaml:"pong_timeout"`
		WriteTimeout        time.Duration `yaml:"write_timeout"`
		SendBuffer          int           `yaml:"send_buffer"`
		MaxMessageSizeBytes int64         `yaml:"max_message_size_bytes"`
		ValidatePayloads    bool          `yaml:"validate_payloads"`
	} `yaml:"signal"`

	Session struct {
		NegotiationTimeout time.Duration `yaml:"negotiation_timeout"`
		OwnerGracePeriod   time.Duration `yaml:"owner_grace_period"`
		FinalizeTimeout    time.Duration `yaml:"finalize_timeout"`
	} `yaml:"session"`

	Billing struct {
		EstimateMinutes        float64 `yaml:"estimate_minutes"`
		BroadcastRatePerMinute float64 `yaml:"broadcast_rate_per_minute"`
		ViewerRatePerMinute    float64 `yaml:"viewer_rate_per_minute"`
	} `yaml:"billing"`

	Ledger struct {
		Mode           string        `yaml:"mode"` // memory | http
		URL            string        `yaml:"url"`
		APIKey         string        `yaml:"api_key"`
		Timeout        time.Duration `yaml:"timeout"`
		DefaultBalance int64         `yaml:"default_balance"`

		Retry struct {
			MaxAttempts  int           `yaml:"max_attempts"`
			InitialDelay time.Duration `yaml:"initial_delay"`
			MaxDelay     time.Duration `yaml:"max_delay"`
		} `yaml:"retry"`

		CircuitBreaker struct {
			MaxFailures  int           `yaml:"max_failures"`
			ResetTimeout time.Duration `yaml:"reset_timeout"`
		} `yaml:"circuit_breaker"`
	} `yaml:"ledger"`

	Friends struct {
		CacheTTL time.Duration       `yaml:"cache_ttl"`
		Seed     map[string][]string `yaml:"seed"`
	} `yaml:"friends"`

	Monitoring struct {
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
	} `yaml:"monitoring"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	Redis struct {
		Enabled  bool          `yaml:"enabled"`
		Address  string        `yaml:"address"`
		Password string        `yaml:"password"`
		DB       int           `yaml:"db"`
		PoolSize int           `yaml:"pool_size"`
		LeaseTTL time.Duration `yaml:"lease_ttl"`
	} `yaml:"redis"`

	Auth struct {
		Required       bool          `yaml:"required"`
		DevIssuer      bool          `yaml:"dev_issuer"`
		JWTSecret      string        `yaml:"jwt_secret"`
		Issuer         string        `yaml:"issuer"`
		TokenTTL       time.Duration `yaml:"token_ttl"`
		AllowedOrigins []string      `yaml:"allowed_origins"`
	} `yaml:"auth"`

	Tracing struct {
		Enabled        bool    `yaml:"enabled"`
		JaegerEndpoint string  `yaml:"jaeger_endpoint"`
		SampleRate     float64 `yaml:"sample_rate"`
	} `yaml:"tracing"`

	RateLimiting struct {
		Enabled bool `yaml:"enabled"`

		HTTP struct {
			RequestsPerSecond float64 `yaml:"requests_per_second"`
			Burst             int     `yaml:"burst"`
			MaxConcurrent     int     `yaml:"max_concurrent"` // global concurrent HTTP requests
		} `yaml:"http"`

		WebSocket struct {
			MessagesPerSecond float64 `yaml:"messages_per_second"`
			Burst             int     `yaml:"burst"`
			MaxConcurrent     int     `yaml:"max_concurrent_connections"`
		} `yaml:"websocket"`
	} `yaml:"rate_limiting"`
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	// Server
	if c.Server.Address == "" {
		return fmt.Errorf("server.address must not be empty")
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server.read_timeout must be > 0")
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server.write_timeout must be > 0")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be > 0")
	}

	// Signal
	if c.Signal.Path == "" {
		return fmt.Errorf("signal.path must not be empty")
	}
	if c.Signal.PingInterval <= 0 {
		return fmt.Errorf("signal.ping_interval must be > 0")
	}
	if c.Signal.PongTimeout <= c.Signal.PingInterval {
		return fmt.Errorf("signal.pong_timeout must be greater than signal.ping_interval")
	}
	if c.Signal.WriteTimeout <= 0 {
		return fmt.Errorf("signal.write_timeout must be > 0")
	}
	if c.Signal.SendBuffer <= 0 {
		return fmt.Errorf("signal.send_buffer must be > 0")
	}
	if c.Signal.MaxMessageSizeBytes <= 0 {
		return fmt.Errorf("signal.max_message_size_bytes must be > 0")
	}

	// Session
	if c.Session.NegotiationTimeout <= 0 {
		return fmt.Errorf("session.negotiation_timeout must be > 0")
	}
	if c.Session.OwnerGracePeriod <= 0 {
		return fmt.Errorf("session.owner_grace_period must be > 0")
	}
	if c.Session.FinalizeTimeout <= 0 {
		return fmt.Errorf("session.finalize_timeout must be > 0")
	}

	// Billing
	if c.Billing.EstimateMinutes <= 0 {
		return fmt.Errorf("billing.estimate_minutes must be > 0")
	}
	if c.Billing.BroadcastRatePerMinute < 0 || c.Billing.ViewerRatePerMinute < 0 {
		return fmt.Errorf("billing rates must be >= 0")
	}

	// Ledger
	switch c.Ledger.Mode {
	case "memory":
		if c.Ledger.DefaultBalance < 0 {
			return fmt.Errorf("ledger.default_balance must be >= 0")
		}
	case "http":
		if err := validation.ValidateURL(c.Ledger.URL); err != nil {
			return fmt.Errorf("ledger.url: %w", err)
		}
		if c.Ledger.Timeout <= 0 {
			return fmt.Errorf("ledger.timeout must be > 0 when ledger.mode=http")
		}
	default:
		return fmt.Errorf("ledger.mode must be memory or http, got %q", c.Ledger.Mode)
	}
	if c.Ledger.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("ledger.retry.max_attempts must be > 0")
	}
	if c.Ledger.CircuitBreaker.MaxFailures <= 0 {
		return fmt.Errorf("ledger.circuit_breaker.max_failures must be > 0")
	}

	// Friends
	if c.Friends.CacheTTL < 0 {
		return fmt.Errorf("friends.cache_ttl must be >= 0")
	}

	// Logging
	if c.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Address == "" {
			return fmt.Errorf("redis.address must not be empty when redis.enabled=true")
		}
		if c.Redis.PoolSize <= 0 {
			return fmt.Errorf("redis.pool_size must be > 0 when redis.enabled=true")
		}
		if c.Redis.LeaseTTL <= 0 {
			return fmt.Errorf("redis.lease_ttl must be > 0 when redis.enabled=true")
		}
	}

	// Auth
	if c.Auth.Required || c.Auth.DevIssuer {
		if c.Auth.JWTSecret == "" {
			return fmt.Errorf("auth.jwt_secret must not be empty when tokens are used")
		}
		if c.Auth.TokenTTL <= 0 {
			return fmt.Errorf("auth.token_ttl must be > 0 when tokens are used")
		}
	}

	// Tracing
	if c.Tracing.Enabled && c.Tracing.JaegerEndpoint == "" {
		return fmt.Errorf("tracing.jaeger_endpoint must not be empty when tracing.enabled=true")
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return fmt.Errorf("tracing.sample_rate must be within [0, 1]")
	}

	// Rate limiting
	if c.RateLimiting.Enabled {
		if c.RateLimiting.HTTP.RequestsPerSecond <= 0 {
			return fmt.Errorf("rate_limiting.http.requests_per_second must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.HTTP.Burst <= 0 {
			return fmt.Errorf("rate_limiting.http.burst must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.HTTP.MaxConcurrent < 0 {
			return fmt.Errorf("rate_limiting.http.max_concurrent must be >= 0 when rate limiting is enabled")
		}
		if c.RateLimiting.WebSocket.MessagesPerSecond <= 0 {
			return fmt.Errorf("rate_limiting.websocket.messages_per_second must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.WebSocket.Burst <= 0 {
			return fmt.Errorf("rate_limiting.websocket.burst must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.WebSocket.MaxConcurrent < 0 {
			return fmt.Errorf("rate_limiting.websocket.max_concurrent_connections must be >= 0 when rate limiting is enabled")
		}
	}

	return nil
}

// Load reads configuration from YAML file, applies defaults and env overrides.
func Load(configPath string) (*Config, error) {
	// If file does not exist, fall back to defaults
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns configuration with sane defaults.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Server.Address = ":8080"
	cfg.Server.ReadTimeout = 30 * time.Second
	cfg.Server.WriteTimeout = 30 * time.Second
	cfg.Server.ShutdownTimeout = 30 * time.Second

	cfg.Signal.Path = "/ws"
	cfg.Signal.PingInterval = 30 * time.Second
	cfg.Signal.PongTimeout = 60 * time.Second
	cfg.Signal.WriteTimeout = 10 * time.Second
	cfg.Signal.SendBuffer = 256
	cfg.Signal.MaxMessageSizeBytes = 64 * 1024
	cfg.Signal.ValidatePayloads = false

	cfg.Session.NegotiationTimeout = 30 * time.Second
	cfg.Session.OwnerGracePeriod = 15 * time.Second
	cfg.Session.FinalizeTimeout = 10 * time.Second

	cfg.Billing.EstimateMinutes = 60
	cfg.Billing.BroadcastRatePerMinute = 1
	cfg.Billing.ViewerRatePerMinute = 0.1

	cfg.Ledger.Mode = "memory"
	cfg.Ledger.Timeout = 5 * time.Second
	cfg.Ledger.DefaultBalance = 1000
	cfg.Ledger.Retry.MaxAttempts = 3
	cfg.Ledger.Retry.InitialDelay = 100 * time.Millisecond
	cfg.Ledger.Retry.MaxDelay = 2 * time.Second
	cfg.Ledger.CircuitBreaker.MaxFailures = 5
	cfg.Ledger.CircuitBreaker.ResetTimeout = 30 * time.Second

	cfg.Friends.CacheTTL = time.Minute

	cfg.Monitoring.PrometheusEnabled = true

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	cfg.Redis.Enabled = false
	cfg.Redis.Address = "localhost:6379"
	cfg.Redis.DB = 0
	cfg.Redis.PoolSize = 10
	cfg.Redis.LeaseTTL = 30 * time.Second

	cfg.Auth.Required = false
	cfg.Auth.DevIssuer = false
	cfg.Auth.JWTSecret = "change-me-in-production"
	cfg.Auth.Issuer = "skycast"
	cfg.Auth.TokenTTL = 24 * time.Hour
	cfg.Auth.AllowedOrigins = []string{"*"}

	cfg.Tracing.Enabled = false
	cfg.Tracing.JaegerEndpoint = "http://localhost:14268/api/traces"
	cfg.Tracing.SampleRate = 1.0

	// Rate limiting defaults (disabled by default)
	cfg.RateLimiting.Enabled = false
	cfg.RateLimiting.HTTP.RequestsPerSecond = 50
	cfg.RateLimiting.HTTP.Burst = 100
	cfg.RateLimiting.HTTP.MaxConcurrent = 0
	cfg.RateLimiting.WebSocket.MessagesPerSecond = 50
	cfg.RateLimiting.WebSocket.Burst = 100
	cfg.RateLimiting.WebSocket.MaxConcurrent = 0

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if addr := os.Getenv("SKYCAST_SERVER_ADDRESS"); addr != "" {
		c.Server.Address = addr
	}
	if level := os.Getenv("SKYCAST_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if secret := os.Getenv("SKYCAST_JWT_SECRET"); secret != "" {
		c.Auth.JWTSecret = secret
	}
	if addr := os.Getenv("SKYCAST_REDIS_ADDRESS"); addr != "" {
		c.Redis.Address = addr
		c.Redis.Enabled = true
	}
	if url := os.Getenv("SKYCAST_LEDGER_URL"); url != "" {
		c.Ledger.URL = url
		c.Ledger.Mode = "http"
	}
}
