// Package config loads process configuration: defaults, then an optional YAML
// file, then environment variables. Site mail settings are not configured
// here; they live in the option store.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// defaultMaxMessageSize is 25 MB in bytes.
const defaultMaxMessageSize = 26214400

// Store backends.
const (
	StoreMemory = "memory"
	StoreFile   = "file"
	StoreRedis  = "redis"
	StoreMySQL  = "mysql"
)

// Config holds the complete application configuration.
type Config struct {
	SMTP      SMTPConfig      `yaml:"smtp" envPrefix:"SMTP_"`
	TLS       TLSConfig       `yaml:"tls" envPrefix:"TLS_"`
	Logging   LoggingConfig   `yaml:"logging" envPrefix:"LOG_"`
	Store     StoreConfig     `yaml:"store" envPrefix:"STORE_"`
	Site      SiteConfig      `yaml:"site" envPrefix:"SITE_"`
	Secrets   SecretsConfig   `yaml:"secrets" envPrefix:"SECRETS_"`
	Sendmail  SendmailConfig  `yaml:"sendmail" envPrefix:"SENDMAIL_"`
	DebugLog  DebugLogConfig  `yaml:"debug_log" envPrefix:"DEBUG_LOG_"`
	Summary   SummaryConfig   `yaml:"summary" envPrefix:"SUMMARY_"`
	Providers ProvidersConfig `yaml:"providers"`
}

// SMTPConfig holds the submission server configuration.
type SMTPConfig struct {
	Listen         string `yaml:"listen" env:"LISTEN"`
	Hostname       string `yaml:"hostname" env:"HOSTNAME"`
	Username       string `yaml:"username" env:"USERNAME"`
	Password       string `yaml:"password" env:"PASSWORD"`
	MaxMessageSize int64  `yaml:"max_message_size" env:"MAX_MESSAGE_SIZE"`
	MaxRecipients  int    `yaml:"max_recipients" env:"MAX_RECIPIENTS"`
}

// TLSConfig holds TLS certificate file paths. Without files a self-signed
// certificate is generated; Disabled turns STARTTLS off.
type TLSConfig struct {
	CertFile string `yaml:"cert_file" env:"CERT_FILE"`
	KeyFile  string `yaml:"key_file" env:"KEY_FILE"`
	Disabled bool   `yaml:"disabled" env:"DISABLED"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level" env:"LEVEL"`
}

// StoreConfig selects where options are persisted.
type StoreConfig struct {
	Backend     string `yaml:"backend" env:"BACKEND"`
	Path        string `yaml:"path" env:"PATH"`
	RedisURL    string `yaml:"redis_url" env:"REDIS_URL"`
	RedisPrefix string `yaml:"redis_prefix" env:"REDIS_PREFIX"`
	MySQLDSN    string `yaml:"mysql_dsn" env:"MYSQL_DSN"`
	Table       string `yaml:"table" env:"TABLE"`
}

// SiteConfig describes the site the relay sends for.
type SiteConfig struct {
	Domain     string `yaml:"domain" env:"DOMAIN"`
	AdminEmail string `yaml:"admin_email" env:"ADMIN_EMAIL"`
}

// SecretsConfig holds the option encryption key. When empty the key is
// read from, or generated into, the option store.
type SecretsConfig struct {
	Key string `yaml:"key" env:"KEY"`
}

// SendmailConfig configures the mail mailer.
type SendmailConfig struct {
	Path string `yaml:"path" env:"PATH"`
}

// DebugLogConfig configures the failed-send log file.
type DebugLogConfig struct {
	Path string `yaml:"path" env:"PATH"`
}

// SummaryConfig configures the periodic summary report.
type SummaryConfig struct {
	Interval time.Duration `yaml:"interval" env:"INTERVAL"`
}

// ProvidersConfig holds API mailer credentials.
type ProvidersConfig struct {
	SES      SESConfig      `yaml:"ses" envPrefix:"SES_"`
	Postmark PostmarkConfig `yaml:"postmark" envPrefix:"POSTMARK_"`
	Graph    GraphConfig    `yaml:"graph" envPrefix:"GRAPH_"`
}

// SESConfig holds AWS SES configuration.
type SESConfig struct {
	Region           string `yaml:"region" env:"REGION"`
	AccessKeyID      string `yaml:"access_key_id" env:"ACCESS_KEY_ID"`
	SecretAccessKey  string `yaml:"secret_access_key" env:"SECRET_ACCESS_KEY"`
	ConfigurationSet string `yaml:"configuration_set" env:"CONFIGURATION_SET"`
}

// PostmarkConfig holds Postmark configuration.
type PostmarkConfig struct {
	ServerToken   string `yaml:"server_token" env:"SERVER_TOKEN"`
	AccountToken  string `yaml:"account_token" env:"ACCOUNT_TOKEN"`
	MessageStream string `yaml:"message_stream" env:"MESSAGE_STREAM"`
}

// GraphConfig holds Microsoft Graph API configuration.
type GraphConfig struct {
	TenantID     string `yaml:"tenant_id" env:"TENANT_ID"`
	ClientID     string `yaml:"client_id" env:"CLIENT_ID"`
	ClientSecret string `yaml:"client_secret" env:"CLIENT_SECRET"`
	Mailbox      string `yaml:"mailbox" env:"MAILBOX"`
	SaveToSent   bool   `yaml:"save_to_sent" env:"SAVE_TO_SENT"`
}

// Load loads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	return load(nil, nil)
}

// LoadFromFile loads configuration from a YAML file as the base layer,
// then overrides with environment variables. Returns an error if the
// specified file path does not exist.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return load(data, nil)
}

// LoadDotEnv loads variables from the given .env files into the process
// environment without overriding variables that are already set. Missing
// files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

// load applies defaults, the YAML document and the environment in that
// order. A nil environ reads the process environment.
func load(data []byte, environ map[string]string) (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()

	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// Environment variables always override YAML values.
	if err := env.ParseWithOptions(cfg, env.Options{Environment: environ}); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	cfg.Logging.Level = strings.ToLower(cfg.Logging.Level)
	cfg.Store.Backend = strings.ToLower(cfg.Store.Backend)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports settings that cannot work together.
func (c *Config) Validate() error {
	var errs []error

	switch c.Store.Backend {
	case StoreMemory:
	case StoreFile:
		if c.Store.Path == "" {
			errs = append(errs, errors.New("store.path is required for the file backend"))
		}
	case StoreRedis:
		if c.Store.RedisURL == "" {
			errs = append(errs, errors.New("store.redis_url is required for the redis backend"))
		}
	case StoreMySQL:
		if c.Store.MySQLDSN == "" {
			errs = append(errs, errors.New("store.mysql_dsn is required for the mysql backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store backend %q", c.Store.Backend))
	}

	if (c.TLS.CertFile == "") != (c.TLS.KeyFile == "") {
		errs = append(errs, errors.New("tls.cert_file and tls.key_file must be set together"))
	}
	if c.SMTP.MaxMessageSize <= 0 {
		errs = append(errs, errors.New("smtp.max_message_size must be positive"))
	}
	if c.Summary.Interval < 0 {
		errs = append(errs, errors.New("summary.interval must not be negative"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// AuthEnabled returns true if both SMTP username and password are set.
func (c *Config) AuthEnabled() bool {
	return c.SMTP.Username != "" && c.SMTP.Password != ""
}

// SESConfigured returns true if an SES region is set. Credentials may come
// from the default AWS chain.
func (c *Config) SESConfigured() bool {
	return c.Providers.SES.Region != ""
}

// PostmarkConfigured returns true if a Postmark server token is set.
func (c *Config) PostmarkConfigured() bool {
	return c.Providers.Postmark.ServerToken != ""
}

// GraphConfigured returns true if all four Graph API settings are set.
func (c *Config) GraphConfigured() bool {
	g := c.Providers.Graph
	return g.TenantID != "" &&
		g.ClientID != "" &&
		g.ClientSecret != "" &&
		g.Mailbox != ""
}

// applyDefaults sets sensible default values for all configuration fields.
func (c *Config) applyDefaults() {
	c.SMTP.Listen = "127.0.0.1:2525"
	c.SMTP.Hostname = "localhost"
	c.SMTP.MaxMessageSize = defaultMaxMessageSize
	c.SMTP.MaxRecipients = 100
	c.Logging.Level = "info"
	c.Store.Backend = StoreFile
	c.Store.Path = "easysmtp-options.yaml"
	c.Store.Table = "wp_options"
	c.Sendmail.Path = "/usr/sbin/sendmail"
	c.DebugLog.Path = "easysmtp-debug.log"
	c.Summary.Interval = 7 * 24 * time.Hour
	c.Providers.Postmark.MessageStream = "outbound"
}
