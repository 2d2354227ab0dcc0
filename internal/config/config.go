package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"formdesk/internal/form"
)

// Config is the system-wide settings coordinator. Precedence: environment
// variables over defaults, with an optional .env file feeding the
// environment first.
type Config struct {
	HTTP      *HTTPConfig
	WebSocket *WebSocketConfig
	Form      *FormConfig
	Database  *DatabaseConfig
}

type HTTPConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type WebSocketConfig struct {
	PingInterval time.Duration
	ReadTimeout  time.Duration
}

// FormConfig carries form-lifecycle policy.
type FormConfig struct {
	// SubmitPolicy is "retain" (a submitted form stays current) or "clear".
	SubmitPolicy string
}

type DatabaseConfig struct {
	// Enabled switches the submission archive on or off.
	Enabled bool
	Path    string
}

const (
	SubmitPolicyRetain = "retain"
	SubmitPolicyClear  = "clear"
)

// DefaultConfig returns production defaults: port 8000, 30s heartbeat with
// a 60s read deadline, archive enabled.
func DefaultConfig() *Config {
	return &Config{
		HTTP: &HTTPConfig{
			Host:         "0.0.0.0",
			Port:         8000,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		WebSocket: &WebSocketConfig{
			PingInterval: 30 * time.Second,
			ReadTimeout:  60 * time.Second,
		},
		Form: &FormConfig{
			SubmitPolicy: SubmitPolicyRetain,
		},
		Database: &DatabaseConfig{
			Enabled: true,
			Path:    "./formdesk.db",
		},
	}
}

// Load reads a .env file when present, then applies FORMDESK_* environment
// overrides on top of the defaults and validates the result.
func Load() (*Config, error) {
	// Best-effort: a missing .env file is not an error.
	_ = godotenv.Load()

	cfg := LoadFromEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromEnv applies environment variable overrides to the defaults.
func LoadFromEnv() *Config {
	cfg := DefaultConfig()

	if host := os.Getenv("FORMDESK_HTTP_HOST"); host != "" {
		cfg.HTTP.Host = host
	}
	if port := os.Getenv("FORMDESK_HTTP_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.HTTP.Port = p
		}
	}
	if timeout := os.Getenv("FORMDESK_HTTP_READ_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			cfg.HTTP.ReadTimeout = d
		}
	}
	if timeout := os.Getenv("FORMDESK_HTTP_WRITE_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			cfg.HTTP.WriteTimeout = d
		}
	}
	if interval := os.Getenv("FORMDESK_WEBSOCKET_PING_INTERVAL"); interval != "" {
		if d, err := time.ParseDuration(interval); err == nil {
			cfg.WebSocket.PingInterval = d
		}
	}
	if timeout := os.Getenv("FORMDESK_WEBSOCKET_READ_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			cfg.WebSocket.ReadTimeout = d
		}
	}
	if policy := os.Getenv("FORMDESK_FORM_SUBMIT_POLICY"); policy != "" {
		cfg.Form.SubmitPolicy = policy
	}
	if enabled := os.Getenv("FORMDESK_DATABASE_ENABLED"); enabled != "" {
		if b, err := strconv.ParseBool(enabled); err == nil {
			cfg.Database.Enabled = b
		}
	}
	if path := os.Getenv("FORMDESK_DATABASE_PATH"); path != "" {
		cfg.Database.Path = path
	}

	return cfg
}

// Validate rejects configurations that would fail at runtime.
func (c *Config) Validate() error {
	if c.HTTP == nil {
		return fmt.Errorf("HTTP configuration is required")
	}
	if c.HTTP.Host == "" {
		return fmt.Errorf("HTTP host cannot be empty")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP port must be between 1 and 65535")
	}
	if c.HTTP.ReadTimeout <= 0 || c.HTTP.WriteTimeout <= 0 {
		return fmt.Errorf("HTTP timeouts must be positive")
	}

	if c.WebSocket == nil {
		return fmt.Errorf("WebSocket configuration is required")
	}
	if c.WebSocket.PingInterval <= 0 {
		return fmt.Errorf("WebSocket ping interval must be positive")
	}
	if c.WebSocket.ReadTimeout <= c.WebSocket.PingInterval {
		return fmt.Errorf("WebSocket read timeout must exceed the ping interval")
	}

	if c.Form == nil {
		return fmt.Errorf("form configuration is required")
	}
	if c.Form.SubmitPolicy != SubmitPolicyRetain && c.Form.SubmitPolicy != SubmitPolicyClear {
		return fmt.Errorf("form submit policy must be %q or %q", SubmitPolicyRetain, SubmitPolicyClear)
	}

	if c.Database == nil {
		return fmt.Errorf("database configuration is required")
	}
	if c.Database.Enabled && c.Database.Path == "" {
		return fmt.Errorf("database path cannot be empty when the archive is enabled")
	}

	return nil
}

// SubmitPolicy maps the configured policy string onto the form package enum.
func (c *Config) SubmitPolicy() form.SubmitPolicy {
	if c.Form != nil && c.Form.SubmitPolicy == SubmitPolicyClear {
		return form.ClearCurrent
	}
	return form.RetainCurrent
}
