// ABOUTME: Configuration loading and parsing for switchboard
// ABOUTME: Supports YAML or TOML files with ${VAR} expansion, env overrides, and duration parsing

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Default values applied when the config file leaves a field empty.
const (
	DefaultHTTPAddr          = "0.0.0.0:8080"
	DefaultDatabaseDriver    = "sqlite"
	DefaultGatewayTimeout    = 30 * time.Second
	DefaultGatewayRate       = 10.0
	DefaultGatewayBurst      = 20
	DefaultQueueSize         = 100
	DefaultHeartbeatInterval = 10 * time.Second
	DefaultMessageDelay      = 2 * time.Second
	DefaultUnreadDelay       = 10 * time.Second
	DefaultResolverWorkers   = 2
	DefaultResolverQueue     = 1000
	DefaultInflightTTL       = 10 * time.Minute
	DefaultWorkerCount       = 4
	DefaultWorkerQueue       = 256
	DefaultShutdownTimeout   = 15 * time.Second

	DefaultCallMessage = "Sorry, we cannot take calls on this number. Please send us a text message."
)

// Config represents the complete switchboard configuration
type Config struct {
	Server     ServerConfig     `yaml:"server" toml:"server"`
	Tailscale  TailscaleConfig  `yaml:"tailscale" toml:"tailscale"`
	Database   DatabaseConfig   `yaml:"database" toml:"database"`
	Auth       AuthConfig       `yaml:"auth" toml:"auth"`
	Gateway    GatewayConfig    `yaml:"gateway" toml:"gateway"`
	Hub        HubConfig        `yaml:"hub" toml:"hub"`
	Automation AutomationConfig `yaml:"automation" toml:"automation"`
	Resolver   ResolverConfig   `yaml:"resolver" toml:"resolver"`
	Workers    WorkersConfig    `yaml:"workers" toml:"workers"`
	Logging    LoggingConfig    `yaml:"logging" toml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" toml:"http_addr" env:"SWITCHBOARD_HTTP_ADDR"`
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled" env:"SWITCHBOARD_TAILSCALE_ENABLED"`
	Hostname  string `yaml:"hostname" toml:"hostname" env:"SWITCHBOARD_TAILSCALE_HOSTNAME"`
	AuthKey   string `yaml:"auth_key" toml:"auth_key" env:"TS_AUTHKEY"`
	StateDir  string `yaml:"state_dir" toml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral" toml:"ephemeral"`
	HTTPS     bool   `yaml:"https" toml:"https"`
	Funnel    bool   `yaml:"funnel" toml:"funnel"` // Public Funnel so the gateway can reach the webhook
}

// DatabaseConfig selects the session store backend
type DatabaseConfig struct {
	Driver string `yaml:"driver" toml:"driver" env:"SWITCHBOARD_DB_DRIVER"` // sqlite, postgres
	Path   string `yaml:"path" toml:"path" env:"SWITCHBOARD_DB_PATH"`       // sqlite file
	URL    string `yaml:"url" toml:"url" env:"SWITCHBOARD_DATABASE_URL"`    // postgres DSN
}

// AuthConfig holds viewer authentication configuration
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" toml:"jwt_secret" env:"SWITCHBOARD_JWT_SECRET"`
}

// GatewayConfig describes the upstream messaging gateway HTTP API
type GatewayConfig struct {
	BaseURL       string        `yaml:"base_url" toml:"base_url" env:"SWITCHBOARD_GATEWAY_URL"`
	Timeout       time.Duration `yaml:"-" toml:"-"`
	RatePerSecond float64       `yaml:"rate_per_second" toml:"rate_per_second" env:"SWITCHBOARD_GATEWAY_RATE"`
	Burst         int           `yaml:"burst" toml:"burst"`

	TimeoutRaw string `yaml:"timeout" toml:"timeout" env:"SWITCHBOARD_GATEWAY_TIMEOUT"`
}

// HubConfig holds viewer stream settings
type HubConfig struct {
	QueueSize         int           `yaml:"queue_size" toml:"queue_size"`
	HeartbeatInterval time.Duration `yaml:"-" toml:"-"`

	HeartbeatIntervalRaw string `yaml:"heartbeat_interval" toml:"heartbeat_interval"`
}

// AutomationConfig holds incoming-call follow-up settings
type AutomationConfig struct {
	CallMessage  string        `yaml:"call_message" toml:"call_message" env:"SWITCHBOARD_CALL_MESSAGE"`
	Timezone     string        `yaml:"timezone" toml:"timezone" env:"SWITCHBOARD_TIMEZONE"`
	MessageDelay time.Duration `yaml:"-" toml:"-"`
	UnreadDelay  time.Duration `yaml:"-" toml:"-"`

	location *time.Location

	MessageDelayRaw string `yaml:"message_delay" toml:"message_delay"`
	UnreadDelayRaw  string `yaml:"unread_delay" toml:"unread_delay"`
}

// Location returns the zone used for reject-window checks.
func (a AutomationConfig) Location() *time.Location {
	if a.location == nil {
		return time.Local
	}
	return a.location
}

// ResolverConfig holds identifier resolution queue settings
type ResolverConfig struct {
	Workers     int           `yaml:"workers" toml:"workers"`
	QueueSize   int           `yaml:"queue_size" toml:"queue_size"`
	InflightTTL time.Duration `yaml:"-" toml:"-"`

	InflightTTLRaw string `yaml:"inflight_ttl" toml:"inflight_ttl"`
}

// WorkersConfig sizes the detached task pool
type WorkersConfig struct {
	Count           int           `yaml:"count" toml:"count" env:"SWITCHBOARD_WORKERS"`
	QueueSize       int           `yaml:"queue_size" toml:"queue_size"`
	ShutdownTimeout time.Duration `yaml:"-" toml:"-"`

	ShutdownTimeoutRaw string `yaml:"shutdown_timeout" toml:"shutdown_timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level" env:"SWITCHBOARD_LOG_LEVEL"`
	Format string `yaml:"format" toml:"format" env:"SWITCHBOARD_LOG_FORMAT"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded, then
// SWITCHBOARD_* variables override individual fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expandedData, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	loc, err := loadLocation(cfg.Automation.Timezone)
	if err != nil {
		return nil, err
	}
	cfg.Automation.location = loc

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

func (c *Config) applyDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = DefaultHTTPAddr
	}
	if c.Database.Driver == "" {
		c.Database.Driver = DefaultDatabaseDriver
	}
	if c.Gateway.Timeout == 0 {
		c.Gateway.Timeout = DefaultGatewayTimeout
	}
	if c.Gateway.RatePerSecond == 0 {
		c.Gateway.RatePerSecond = DefaultGatewayRate
	}
	if c.Gateway.Burst == 0 {
		c.Gateway.Burst = DefaultGatewayBurst
	}
	if c.Hub.QueueSize == 0 {
		c.Hub.QueueSize = DefaultQueueSize
	}
	if c.Hub.HeartbeatInterval == 0 {
		c.Hub.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.Automation.CallMessage == "" {
		c.Automation.CallMessage = DefaultCallMessage
	}
	if c.Automation.MessageDelayRaw == "" {
		c.Automation.MessageDelay = DefaultMessageDelay
	}
	if c.Automation.UnreadDelayRaw == "" {
		c.Automation.UnreadDelay = DefaultUnreadDelay
	}
	if c.Resolver.Workers == 0 {
		c.Resolver.Workers = DefaultResolverWorkers
	}
	if c.Resolver.QueueSize == 0 {
		c.Resolver.QueueSize = DefaultResolverQueue
	}
	if c.Resolver.InflightTTL == 0 {
		c.Resolver.InflightTTL = DefaultInflightTTL
	}
	if c.Workers.Count == 0 {
		c.Workers.Count = DefaultWorkerCount
	}
	if c.Workers.QueueSize == 0 {
		c.Workers.QueueSize = DefaultWorkerQueue
	}
	if c.Workers.ShutdownTimeout == 0 {
		c.Workers.ShutdownTimeout = DefaultShutdownTimeout
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if !c.Tailscale.Enabled && c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required (or enable tailscale)")
	}

	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}

	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for the sqlite driver")
		}
	case "postgres":
		if c.Database.URL == "" {
			return fmt.Errorf("database.url is required for the postgres driver")
		}
	default:
		return fmt.Errorf("database.driver %q is not supported (sqlite, postgres)", c.Database.Driver)
	}

	if c.Gateway.BaseURL == "" {
		return fmt.Errorf("gateway.base_url is required")
	}

	if c.Hub.QueueSize < 0 {
		return fmt.Errorf("hub.queue_size must be positive")
	}
	if c.Automation.MessageDelay < 0 || c.Automation.UnreadDelay < 0 {
		return fmt.Errorf("automation delays must not be negative")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"gateway.timeout", cfg.Gateway.TimeoutRaw, &cfg.Gateway.Timeout},
		{"hub.heartbeat_interval", cfg.Hub.HeartbeatIntervalRaw, &cfg.Hub.HeartbeatInterval},
		{"automation.message_delay", cfg.Automation.MessageDelayRaw, &cfg.Automation.MessageDelay},
		{"automation.unread_delay", cfg.Automation.UnreadDelayRaw, &cfg.Automation.UnreadDelay},
		{"resolver.inflight_ttl", cfg.Resolver.InflightTTLRaw, &cfg.Resolver.InflightTTL},
		{"workers.shutdown_timeout", cfg.Workers.ShutdownTimeoutRaw, &cfg.Workers.ShutdownTimeout},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}
	return nil
}

func loadLocation(name string) (*time.Location, error) {
	if name == "" || strings.EqualFold(name, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("loading automation.timezone %q: %w", name, err)
	}
	return loc, nil
}
