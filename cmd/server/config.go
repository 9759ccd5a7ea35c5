// Package main provides the ivvboard server CLI.
package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/good-yellow-bee/ivvboard/internal/logging"
	"github.com/good-yellow-bee/ivvboard/internal/watch"
)

// Config represents the server configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Stream   StreamConfig   `yaml:"stream"`
	Redis    RedisConfig    `yaml:"redis"`
	AMQP     AMQPConfig     `yaml:"amqp"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Export   ExportConfig   `yaml:"export"`
	Notify   NotifyConfig   `yaml:"notify"`
	Logging  logging.Config `yaml:"logging"`
	Verbose  bool           `yaml:"-"` // set via CLI flag
}

// ServerConfig contains HTTP listener settings.
type ServerConfig struct {
	HTTPAddress string    `yaml:"http_address"` // default: :8080
	TLS         TLSConfig `yaml:"tls"`
}

// TLSConfig contains TLS settings for the HTTP listener.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// Database drivers.
const (
	DriverSQLite    = "sqlite"
	DriverFirestore = "firestore"
)

// DatabaseConfig selects and configures the storage backend.
type DatabaseConfig struct {
	Driver          string `yaml:"driver"`           // sqlite (default) or firestore
	Path            string `yaml:"path"`             // SQLite file
	ProjectID       string `yaml:"project_id"`       // Firebase project
	CredentialsFile string `yaml:"credentials_file"` // defaults to GOOGLE_APPLICATION_CREDENTIALS
	StaffEmail      string `yaml:"staff_email"`      // first ets account, created on an empty database
}

// AuthConfig contains token and abuse-protection settings. Durations use
// Go syntax ("15m", "168h").
type AuthConfig struct {
	AccessTokenTTL   string `yaml:"access_token_ttl"`
	RefreshTokenTTL  string `yaml:"refresh_token_ttl"`
	LockoutThreshold int    `yaml:"lockout_threshold"`
	LockoutDuration  string `yaml:"lockout_duration"`
	RateLimitPerIP   int    `yaml:"rate_limit_per_ip"`   // requests per minute on auth routes
	RateLimitPerUser int    `yaml:"rate_limit_per_user"` // requests per minute for signed-in users
	CleanupInterval  string `yaml:"cleanup_interval"`    // expired refresh token sweep
}

// StreamConfig bounds SSE and WebSocket connections.
type StreamConfig struct {
	MaxDuration    string   `yaml:"max_duration"`
	Heartbeat      string   `yaml:"heartbeat"`
	OriginPatterns []string `yaml:"origin_patterns"`
}

// RedisConfig enables the Redis pub/sub event broker when Addr is set.
type RedisConfig struct {
	Addr          string `yaml:"addr"`
	Password      string `yaml:"password"`
	DB            int    `yaml:"db"`
	ChannelPrefix string `yaml:"channel_prefix"`
}

// AMQPConfig enables domain event publishing to RabbitMQ when URL is set.
type AMQPConfig struct {
	URL string `yaml:"url"`
}

// MetricsConfig contains Prometheus settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"` // default: :9090
	Token   string `yaml:"token"`   // optional bearer token required to scrape
}

// ExportConfig contains report export settings.
type ExportConfig struct {
	PDFFontPath string `yaml:"pdf_font_path"` // TTF font; PDF export is disabled without it
}

// NotifyConfig enables change notifications. Nothing is sent unless at
// least one channel is configured.
type NotifyConfig struct {
	Events          []string    `yaml:"events"`     // default: report.created, report.updated
	RateLimit       int         `yaml:"rate_limit"` // notifications per minute, 0 disables limiting
	SlackWebhookURL string      `yaml:"slack_webhook_url"`
	TeamsWebhookURL string      `yaml:"teams_webhook_url"`
	Email           EmailConfig `yaml:"email"`
}

// EmailConfig contains SMTP settings. The password may come from
// IVVBOARD_SMTP_PASSWORD instead of the file.
type EmailConfig struct {
	Host       string   `yaml:"host"`
	Port       int      `yaml:"port"` // 465 implicit TLS, 587 STARTTLS
	Username   string   `yaml:"username"`
	Password   string   `yaml:"password"`
	From       string   `yaml:"from"`
	Recipients []string `yaml:"recipients"`
}

// Enabled reports whether any notification channel is configured.
func (n NotifyConfig) Enabled() bool {
	return n.SlackWebhookURL != "" || n.TeamsWebhookURL != "" || n.Email.Host != ""
}

// LoadConfig loads configuration from a YAML file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

// setDefaults sets default values for missing config fields.
func (c *Config) setDefaults() {
	if c.Server.HTTPAddress == "" {
		c.Server.HTTPAddress = ":8080"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = DriverSQLite
	}
	if c.Database.Path == "" {
		c.Database.Path = "./data/ivvboard.db"
	}
	if c.Database.CredentialsFile == "" {
		c.Database.CredentialsFile = os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")
	}
	if c.Database.StaffEmail == "" {
		c.Database.StaffEmail = "staff@localhost"
	}
	if c.Auth.AccessTokenTTL == "" {
		c.Auth.AccessTokenTTL = "15m"
	}
	if c.Auth.RefreshTokenTTL == "" {
		c.Auth.RefreshTokenTTL = "168h"
	}
	if c.Auth.LockoutThreshold == 0 {
		c.Auth.LockoutThreshold = 5
	}
	if c.Auth.LockoutDuration == "" {
		c.Auth.LockoutDuration = "30m"
	}
	if c.Auth.CleanupInterval == "" {
		c.Auth.CleanupInterval = "1h"
	}
	if c.Stream.MaxDuration == "" {
		c.Stream.MaxDuration = "30m"
	}
	if c.Stream.Heartbeat == "" {
		c.Stream.Heartbeat = "30s"
	}
	if c.Redis.ChannelPrefix == "" {
		c.Redis.ChannelPrefix = "ivvboard:"
	}
	if c.Metrics.Address == "" {
		c.Metrics.Address = ":9090"
	}
	if c.Metrics.Token == "" {
		c.Metrics.Token = os.Getenv("IVVBOARD_METRICS_TOKEN")
	}
	if c.Notify.Email.Port == 0 {
		c.Notify.Email.Port = 587
	}
	if c.Notify.Email.Password == "" {
		c.Notify.Email.Password = os.Getenv("IVVBOARD_SMTP_PASSWORD")
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.HTTPAddress == "" {
		return fmt.Errorf("server.http_address is required")
	}
	if c.Server.TLS.Enabled {
		if c.Server.TLS.CertFile == "" {
			return fmt.Errorf("server.tls.cert_file is required when TLS is enabled")
		}
		if c.Server.TLS.KeyFile == "" {
			return fmt.Errorf("server.tls.key_file is required when TLS is enabled")
		}
	}

	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for the sqlite driver")
		}
	case DriverFirestore:
		if c.Database.ProjectID == "" {
			return fmt.Errorf("database.project_id is required for the firestore driver")
		}
	default:
		return fmt.Errorf("database.driver must be %q or %q, got %q", DriverSQLite, DriverFirestore, c.Database.Driver)
	}

	durations := []struct {
		name  string
		value string
	}{
		{"auth.access_token_ttl", c.Auth.AccessTokenTTL},
		{"auth.refresh_token_ttl", c.Auth.RefreshTokenTTL},
		{"auth.lockout_duration", c.Auth.LockoutDuration},
		{"auth.cleanup_interval", c.Auth.CleanupInterval},
		{"stream.max_duration", c.Stream.MaxDuration},
		{"stream.heartbeat", c.Stream.Heartbeat},
	}
	for _, d := range durations {
		v, err := time.ParseDuration(d.value)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", d.name, err)
		}
		if v <= 0 {
			return fmt.Errorf("%s must be positive", d.name)
		}
	}

	if c.Auth.LockoutThreshold < 0 || c.Auth.RateLimitPerIP < 0 || c.Auth.RateLimitPerUser < 0 {
		return fmt.Errorf("auth limits must not be negative")
	}
	for _, e := range c.Notify.Events {
		if !validEvent(e) {
			return fmt.Errorf("notify.events: unknown event %q", e)
		}
	}
	if c.Notify.RateLimit < 0 {
		return fmt.Errorf("notify.rate_limit must not be negative")
	}
	if c.Metrics.Enabled && c.Metrics.Address == c.Server.HTTPAddress {
		return fmt.Errorf("metrics.address must differ from server.http_address")
	}
	return nil
}

func validEvent(e string) bool {
	switch watch.EventType(e) {
	case watch.ProjectCreated, watch.ProjectUpdated, watch.ProjectDeleted,
		watch.ReportCreated, watch.ReportUpdated, watch.ReportDeleted:
		return true
	}
	return false
}

// duration parses a value already checked by Validate.
func duration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}
