// Package config provides environment-variable-first configuration loading
// with optional YAML file fallback for the mailer.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/mail"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the complete application configuration.
type Config struct {
	Provider  string          `yaml:"provider"`
	SMTP      SMTPConfig      `yaml:"smtp"`
	SES       SESConfig       `yaml:"ses"`
	Sender    SenderConfig    `yaml:"sender"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Bulk      BulkConfig      `yaml:"bulk"`
	Delivery  DeliveryConfig  `yaml:"delivery"`
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// SMTPConfig holds the outbound SMTP relay settings.
type SMTPConfig struct {
	Host          string `yaml:"host"`
	Port          int    `yaml:"port"`
	Secure        bool   `yaml:"secure"`
	Username      string `yaml:"username"`
	Password      string `yaml:"password"`
	SkipTLSVerify bool   `yaml:"skip_tls_verify"`
}

// SESConfig holds AWS SES configuration.
type SESConfig struct {
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Sender          string `yaml:"sender"`
}

// SenderConfig holds the identity outbound mail is sent as.
type SenderConfig struct {
	From     string `yaml:"from"`
	FromName string `yaml:"from_name"`
	ReplyTo  string `yaml:"reply_to"`
}

// RateLimitConfig holds the send quotas.
type RateLimitConfig struct {
	PerHour int `yaml:"per_hour"`
	PerDay  int `yaml:"per_day"`
}

// BulkConfig holds the bulk batching settings.
type BulkConfig struct {
	BatchSize  int           `yaml:"batch_size"`
	BatchDelay time.Duration `yaml:"batch_delay"`
}

// DeliveryConfig bounds individual transport calls.
type DeliveryConfig struct {
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
	RetryDelay time.Duration `yaml:"retry_delay"`
}

// HTTPConfig holds the API listener settings.
type HTTPConfig struct {
	Listen   string `yaml:"listen"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	TLS      bool   `yaml:"tls"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// DatabaseConfig holds the dispatch log database settings.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Load loads configuration from environment variables with sensible defaults.
// Environment variables always take precedence.
func Load() (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.applyEnvVars()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a YAML file as the base layer,
// then overrides with environment variables. Returns an error if the
// specified file path does not exist.
func LoadFromFile(path string) (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Environment variables always override YAML values
	cfg.applyEnvVars()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv loads variables from the given .env files (".env" when none
// are given) into the process environment without overriding variables that
// are already set. A missing file is not an error.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				slog.Debug("no .env file found, using environment variables directly", "path", p)
				continue
			}
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// SMTPConfigured returns true if the SMTP relay credentials are set.
func (c *Config) SMTPConfigured() bool {
	return c.SMTP.Host != "" && c.SMTP.Username != "" && c.SMTP.Password != ""
}

// SESConfigured returns true if both SES region and sender are set.
func (c *Config) SESConfigured() bool {
	return c.SES.Region != "" && c.SES.Sender != ""
}

// AuthEnabled returns true if both API username and password are set.
func (c *Config) AuthEnabled() bool {
	return c.HTTP.Username != "" && c.HTTP.Password != ""
}

// DatabaseConfigured returns true if a dispatch log database is set.
func (c *Config) DatabaseConfigured() bool {
	return c.Database.URL != ""
}

// FromHeader returns the From header value, combining the display name and
// address when both are set.
func (c *Config) FromHeader() string {
	from := c.Sender.From
	if from == "" {
		from = c.SMTP.Username
	}
	if from == "" || c.Sender.FromName == "" {
		return from
	}
	return (&mail.Address{Name: c.Sender.FromName, Address: from}).String()
}

// applyDefaults sets sensible default values for all configuration fields.
func (c *Config) applyDefaults() {
	c.SMTP.Host = "smtp.hostinger.com"
	c.SMTP.Port = 587
	c.RateLimit.PerHour = 100
	c.RateLimit.PerDay = 1000
	c.Bulk.BatchSize = 10
	c.Bulk.BatchDelay = time.Second
	c.Delivery.Timeout = 30 * time.Second
	c.Delivery.MaxRetries = 1
	c.Delivery.RetryDelay = 500 * time.Millisecond
	c.HTTP.Listen = ":8080"
	c.Logging.Level = "info"
}

// applyEnvVars overrides configuration with environment variable values.
// Only non-empty environment variables override existing values.
func (c *Config) applyEnvVars() {
	if v := os.Getenv("PROVIDER"); v != "" {
		c.Provider = strings.ToLower(v)
	}

	setString(&c.SMTP.Host, "SMTP_HOST")
	setInt(&c.SMTP.Port, "SMTP_PORT")
	setBool(&c.SMTP.Secure, "SMTP_SECURE")
	setString(&c.SMTP.Username, "SMTP_USERNAME")
	setString(&c.SMTP.Password, "SMTP_PASSWORD")
	setBool(&c.SMTP.SkipTLSVerify, "SMTP_SKIP_TLS_VERIFY")

	setString(&c.SES.Region, "SES_REGION")
	setString(&c.SES.AccessKeyID, "SES_ACCESS_KEY_ID")
	setString(&c.SES.SecretAccessKey, "SES_SECRET_ACCESS_KEY")
	setString(&c.SES.Sender, "SES_SENDER")

	setString(&c.Sender.From, "EMAIL_FROM")
	setString(&c.Sender.FromName, "EMAIL_FROM_NAME")
	setString(&c.Sender.ReplyTo, "EMAIL_REPLY_TO")

	setInt(&c.RateLimit.PerHour, "EMAIL_RATE_LIMIT_PER_HOUR")
	setInt(&c.RateLimit.PerDay, "EMAIL_RATE_LIMIT_PER_DAY")

	setInt(&c.Bulk.BatchSize, "BULK_BATCH_SIZE")
	setDuration(&c.Bulk.BatchDelay, "BULK_BATCH_DELAY")

	setDuration(&c.Delivery.Timeout, "SEND_TIMEOUT")
	setInt(&c.Delivery.MaxRetries, "SEND_MAX_RETRIES")
	setDuration(&c.Delivery.RetryDelay, "SEND_RETRY_DELAY")

	setString(&c.HTTP.Listen, "HTTP_LISTEN")
	setString(&c.HTTP.Username, "API_USERNAME")
	setString(&c.HTTP.Password, "API_PASSWORD")
	setBool(&c.HTTP.TLS, "HTTP_TLS")
	setString(&c.HTTP.CertFile, "HTTP_TLS_CERT_FILE")
	setString(&c.HTTP.KeyFile, "HTTP_TLS_KEY_FILE")
	setString(&c.Database.URL, "DATABASE_URL")

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
}

// validate rejects values the mailer cannot run with.
func (c *Config) validate() error {
	switch c.Provider {
	case "", "smtp", "ses", "stdout", "simulated":
	default:
		return fmt.Errorf("unknown provider %q", c.Provider)
	}
	if c.RateLimit.PerHour <= 0 || c.RateLimit.PerDay <= 0 {
		return fmt.Errorf("rate limits must be positive (per_hour=%d, per_day=%d)",
			c.RateLimit.PerHour, c.RateLimit.PerDay)
	}
	if c.Bulk.BatchSize <= 0 {
		return fmt.Errorf("bulk batch size must be positive, got %d", c.Bulk.BatchSize)
	}
	if c.Delivery.MaxRetries < 0 {
		return fmt.Errorf("max retries must not be negative, got %d", c.Delivery.MaxRetries)
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// setInt logs and ignores values that do not parse.
func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		} else {
			slog.Warn("ignoring invalid integer environment variable", "key", key, "value", v)
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		switch strings.ToLower(v) {
		case "1", "true", "yes", "on":
			*dst = true
		case "0", "false", "no", "off":
			*dst = false
		default:
			slog.Warn("ignoring invalid boolean environment variable", "key", key, "value", v)
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		} else {
			slog.Warn("ignoring invalid duration environment variable", "key", key, "value", v)
		}
	}
}
