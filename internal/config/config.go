package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// ARCHITECTURAL DISCOVERY: Configuration layer serves as system-wide settings
// coordinator; components receive their section, never raw env vars
type Config struct {
	HTTP    *HTTPConfig
	Redis   *RedisConfig
	Sync    *SyncConfig
	Gateway *GatewayConfig
	Auth    *AuthConfig
}

type HTTPConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// RedisConfig selects the shared-state backend. An empty Addr keeps the
// process on the in-memory transport and session store.
type RedisConfig struct {
	Addr        string
	Username    string
	Password    string
	DB          int
	PresenceTTL time.Duration
	SessionTTL  time.Duration
}

type SyncConfig struct {
	// ConnectTimeout bounds a channel subscribe stuck in "connecting"
	ConnectTimeout time.Duration
	// StartupDelay lets dependent UI finish mounting before session entry
	StartupDelay time.Duration
}

// GatewayConfig tunes the websocket bridge between browser clients and the
// channel transport.
type GatewayConfig struct {
	WriteTimeout time.Duration
	SendBuffer   int
	// MessageRate / MessageBurst rate-limit inbound client envelopes
	MessageRate  float64
	MessageBurst int
}

type AuthConfig struct {
	JWTSecret string
}

// DefaultConfig returns production-ready defaults for a single classroom node.
func DefaultConfig() *Config {
	return &Config{
		HTTP: &HTTPConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Redis: &RedisConfig{
			Addr:        "",
			DB:          0,
			PresenceTTL: 2 * time.Minute,
			SessionTTL:  4 * time.Hour,
		},
		Sync: &SyncConfig{
			ConnectTimeout: 10 * time.Second,
			StartupDelay:   300 * time.Millisecond,
		},
		Gateway: &GatewayConfig{
			WriteTimeout: 10 * time.Second,
			SendBuffer:   100,
			MessageRate:  20,
			MessageBurst: 40,
		},
		Auth: &AuthConfig{
			JWTSecret: "",
		},
	}
}

// LoadFromEnv loads `.env` when present (local development convenience) and
// applies CLASSYNC_* environment overrides on top of the defaults.
func LoadFromEnv() *Config {
	// Missing .env is the normal production case, not an error
	_ = godotenv.Load()

	cfg := DefaultConfig()

	if host := os.Getenv("CLASSYNC_HTTP_HOST"); host != "" {
		cfg.HTTP.Host = host
	}
	if port := os.Getenv("CLASSYNC_HTTP_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.HTTP.Port = p
		}
	}
	if v := os.Getenv("CLASSYNC_HTTP_READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.HTTP.ReadTimeout = d
		}
	}
	if v := os.Getenv("CLASSYNC_HTTP_WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.HTTP.WriteTimeout = d
		}
	}

	if addr := os.Getenv("CLASSYNC_REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
	}
	if user := os.Getenv("CLASSYNC_REDIS_USERNAME"); user != "" {
		cfg.Redis.Username = user
	}
	if pass := os.Getenv("CLASSYNC_REDIS_PASSWORD"); pass != "" {
		cfg.Redis.Password = pass
	}
	if db := os.Getenv("CLASSYNC_REDIS_DB"); db != "" {
		if n, err := strconv.Atoi(db); err == nil {
			cfg.Redis.DB = n
		}
	}
	if v := os.Getenv("CLASSYNC_REDIS_PRESENCE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Redis.PresenceTTL = d
		}
	}
	if v := os.Getenv("CLASSYNC_REDIS_SESSION_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Redis.SessionTTL = d
		}
	}

	if v := os.Getenv("CLASSYNC_SYNC_CONNECT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Sync.ConnectTimeout = d
		}
	}
	if v := os.Getenv("CLASSYNC_SYNC_STARTUP_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Sync.StartupDelay = d
		}
	}

	if v := os.Getenv("CLASSYNC_GATEWAY_WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Gateway.WriteTimeout = d
		}
	}
	if v := os.Getenv("CLASSYNC_GATEWAY_SEND_BUFFER"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Gateway.SendBuffer = n
		}
	}
	if v := os.Getenv("CLASSYNC_GATEWAY_MESSAGE_RATE"); v != "" {
		if r, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Gateway.MessageRate = r
		}
	}
	if v := os.Getenv("CLASSYNC_GATEWAY_MESSAGE_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Gateway.MessageBurst = n
		}
	}

	if secret := os.Getenv("CLASSYNC_JWT_SECRET"); secret != "" {
		cfg.Auth.JWTSecret = secret
	}

	return cfg
}

// Validate rejects configurations that would fail at runtime.
func (c *Config) Validate() error {
	if c.HTTP == nil {
		return fmt.Errorf("HTTP configuration is required")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP port must be between 1 and 65535")
	}
	if c.HTTP.Host == "" {
		return fmt.Errorf("HTTP host cannot be empty")
	}
	if c.HTTP.ReadTimeout <= 0 || c.HTTP.WriteTimeout <= 0 {
		return fmt.Errorf("HTTP timeouts must be positive")
	}

	if c.Redis == nil {
		return fmt.Errorf("redis configuration is required")
	}
	if c.Redis.PresenceTTL <= 0 {
		return fmt.Errorf("redis presence TTL must be positive")
	}
	if c.Redis.SessionTTL <= 0 {
		return fmt.Errorf("redis session TTL must be positive")
	}

	if c.Sync == nil {
		return fmt.Errorf("sync configuration is required")
	}
	if c.Sync.ConnectTimeout <= 0 {
		return fmt.Errorf("sync connect timeout must be positive")
	}
	if c.Sync.StartupDelay < 0 {
		return fmt.Errorf("sync startup delay cannot be negative")
	}

	if c.Gateway == nil {
		return fmt.Errorf("gateway configuration is required")
	}
	if c.Gateway.WriteTimeout <= 0 {
		return fmt.Errorf("gateway write timeout must be positive")
	}
	if c.Gateway.SendBuffer <= 0 {
		return fmt.Errorf("gateway send buffer must be positive")
	}
	if c.Gateway.MessageRate <= 0 || c.Gateway.MessageBurst <= 0 {
		return fmt.Errorf("gateway message rate and burst must be positive")
	}

	return nil
}
