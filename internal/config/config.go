package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Availability providers.
const (
	ProviderWhoisXML       = "whoisxml"
	ProviderRoute53Domains = "route53domains"
)

// Mail backends.
const (
	MailBackendSMTP = "smtp"
	MailBackendSES  = "ses"
)

// Config holds all configuration for the application. It is built once at
// process start and handed to every component.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Availability AvailabilityConfig `yaml:"availability"`
	Redis        RedisConfig        `yaml:"redis"`
	Mail         MailConfig         `yaml:"mail"`
	Polling      PollingConfig      `yaml:"polling"`
	Storage      StorageConfig      `yaml:"storage"`
	Suggestions  SuggestionsConfig  `yaml:"suggestions"`
	Log          LogConfig          `yaml:"log"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port           int      `yaml:"port"`
	Host           string   `yaml:"host"`
	ServiceName    string   `yaml:"service_name"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Addr returns host:port for net/http.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// AvailabilityConfig configures the remote availability lookup.
type AvailabilityConfig struct {
	Provider        string `yaml:"provider"`
	APIKey          string `yaml:"api_key"`
	BaseURL         string `yaml:"base_url"`
	TimeoutSeconds  int    `yaml:"timeout_seconds"`
	CacheTTLSeconds int    `yaml:"cache_ttl_seconds"`
	AWSRegion       string `yaml:"aws_region"`
	// MaxRetries opts in to retrying transient WhoisXML failures (429/5xx,
	// network errors) inside one lookup's timeout. 0 keeps a single attempt.
	MaxRetries int `yaml:"max_retries"`
}

// Timeout returns the configured per-lookup timeout as a duration
func (c AvailabilityConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// CacheTTL returns how long request-path lookup results are cached.
func (c AvailabilityConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// RedisConfig holds the optional Redis connection used for the lookup cache.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// MailConfig holds outbound mail settings for availability notifications.
type MailConfig struct {
	Backend         string `yaml:"backend"`
	SMTPHost        string `yaml:"smtp_host"`
	SMTPPort        int    `yaml:"smtp_port"`
	Username        string `yaml:"username"`
	Password        string `yaml:"password"`
	From            string `yaml:"from"`
	TimeoutSeconds  int    `yaml:"timeout_seconds"`
	SubjectTemplate string `yaml:"subject_template"`
	BodyTemplate    string `yaml:"body_template"`
	SESRegion       string `yaml:"ses_region"`
	SESAccessKey    string `yaml:"ses_access_key"`
	SESSecretKey    string `yaml:"ses_secret_key"`
}

// Timeout returns the configured per-send timeout as a duration
func (c MailConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// PollingConfig holds notification poller configuration
type PollingConfig struct {
	IntervalSeconds int  `yaml:"interval_seconds"`
	RunImmediately  bool `yaml:"run_immediately"`
}

// Interval returns the polling interval as a duration
func (c PollingConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// StorageConfig selects the durable registration store.
type StorageConfig struct {
	DatabaseURL string `yaml:"database_url"`
}

// SuggestionsConfig bounds the /check suggestion step.
type SuggestionsConfig struct {
	DefaultMax  int `yaml:"default_max"`
	MaxAllowed  int `yaml:"max_allowed"`
	Concurrency int `yaml:"concurrency"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level     string `yaml:"level"`
	RedactPII *bool  `yaml:"redact_pii"`
}

// Redact reports whether email addresses should be masked in logs.
func (c LogConfig) Redact() bool {
	return c.RedactPII == nil || *c.RedactPII
}

// Default subject/body for availability emails (Liquid syntax).
const (
	DefaultSubjectTemplate = "Domain Available: {{ domain }}"
	DefaultBodyTemplate    = "Good news! The domain {{ domain }} is now available."
)

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.ServiceName == "" {
		cfg.Server.ServiceName = "Domain Suggester SaaS"
	}
	if len(cfg.Server.AllowedOrigins) == 0 {
		cfg.Server.AllowedOrigins = []string{
			"http://localhost:3000",
			"http://127.0.0.1:3000",
			"http://localhost:5173",
			"http://127.0.0.1:5173",
		}
	}
	if cfg.Availability.Provider == "" {
		cfg.Availability.Provider = ProviderWhoisXML
	}
	if cfg.Availability.BaseURL == "" {
		cfg.Availability.BaseURL = "https://domain-availability.whoisxmlapi.com/api/v1"
	}
	if cfg.Availability.TimeoutSeconds == 0 {
		cfg.Availability.TimeoutSeconds = 10
	}
	if cfg.Availability.CacheTTLSeconds == 0 {
		cfg.Availability.CacheTTLSeconds = 60
	}
	if cfg.Availability.AWSRegion == "" {
		// Route 53 Domains is only served from us-east-1.
		cfg.Availability.AWSRegion = "us-east-1"
	}
	if cfg.Mail.Backend == "" {
		cfg.Mail.Backend = MailBackendSMTP
	}
	if cfg.Mail.SMTPPort == 0 {
		cfg.Mail.SMTPPort = 587
	}
	if cfg.Mail.TimeoutSeconds == 0 {
		cfg.Mail.TimeoutSeconds = 30
	}
	if cfg.Mail.SubjectTemplate == "" {
		cfg.Mail.SubjectTemplate = DefaultSubjectTemplate
	}
	if cfg.Mail.BodyTemplate == "" {
		cfg.Mail.BodyTemplate = DefaultBodyTemplate
	}
	if cfg.Mail.SESRegion == "" {
		cfg.Mail.SESRegion = "us-east-1"
	}
	if cfg.Polling.IntervalSeconds == 0 {
		cfg.Polling.IntervalSeconds = 300
	}
	if cfg.Storage.DatabaseURL == "" {
		cfg.Storage.DatabaseURL = "sqlite://domains.db"
	}
	if cfg.Suggestions.DefaultMax == 0 {
		cfg.Suggestions.DefaultMax = 6
	}
	if cfg.Suggestions.MaxAllowed == 0 {
		cfg.Suggestions.MaxAllowed = 20
	}
	if cfg.Suggestions.Concurrency == 0 {
		cfg.Suggestions.Concurrency = 4
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// It loads a .env file (if present) before reading env vars. A missing
// config file is not an error: the service can run from env vars alone.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		cfg = &Config{}
		cfg.applyDefaults()
	}

	if v := os.Getenv("SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("PORT: %w", err)
		}
		cfg.Server.Port = port
	}
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		cfg.Server.AllowedOrigins = splitList(v)
	}

	if v := os.Getenv("AVAILABILITY_PROVIDER"); v != "" {
		cfg.Availability.Provider = v
	}
	if v := os.Getenv("WHOISXML_API_KEY"); v != "" {
		cfg.Availability.APIKey = v
	}
	if v := os.Getenv("WHOISXML_BASE_URL"); v != "" {
		cfg.Availability.BaseURL = v
	}
	if v := os.Getenv("WHOISXML_MAX_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("WHOISXML_MAX_RETRIES: %w", err)
		}
		cfg.Availability.MaxRetries = n
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}

	if v := os.Getenv("MAIL_BACKEND"); v != "" {
		cfg.Mail.Backend = v
	}
	if v := os.Getenv("SMTP_HOST"); v != "" {
		cfg.Mail.SMTPHost = v
	}
	if v := os.Getenv("SMTP_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("SMTP_PORT: %w", err)
		}
		cfg.Mail.SMTPPort = port
	}
	if v := os.Getenv("SMTP_EMAIL"); v != "" {
		cfg.Mail.Username = v
	}
	if v := os.Getenv("SMTP_PASSWORD"); v != "" {
		cfg.Mail.Password = v
	}
	if v := os.Getenv("FROM_EMAIL"); v != "" {
		cfg.Mail.From = v
	}
	if cfg.Mail.From == "" {
		cfg.Mail.From = cfg.Mail.Username
	}
	if v := os.Getenv("AWS_SES_REGION"); v != "" {
		cfg.Mail.SESRegion = v
	}
	if v := os.Getenv("AWS_SES_ACCESS_KEY"); v != "" {
		cfg.Mail.SESAccessKey = v
	}
	if v := os.Getenv("AWS_SES_SECRET_KEY"); v != "" {
		cfg.Mail.SESSecretKey = v
	}

	if v := os.Getenv("CHECK_INTERVAL_SECONDS"); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("CHECK_INTERVAL_SECONDS: %w", err)
		}
		cfg.Polling.IntervalSeconds = secs
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Storage.DatabaseURL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}

	return cfg, nil
}

// Validate checks settings that must be present before the service starts.
func (cfg *Config) Validate() error {
	switch cfg.Availability.Provider {
	case ProviderWhoisXML:
		if cfg.Availability.APIKey == "" {
			return errors.New("WHOISXML_API_KEY missing")
		}
	case ProviderRoute53Domains:
	default:
		return fmt.Errorf("unknown availability provider %q", cfg.Availability.Provider)
	}
	switch cfg.Mail.Backend {
	case MailBackendSMTP, MailBackendSES:
	default:
		return fmt.Errorf("unknown mail backend %q", cfg.Mail.Backend)
	}
	if cfg.Availability.MaxRetries < 0 {
		return fmt.Errorf("availability max_retries must not be negative, got %d", cfg.Availability.MaxRetries)
	}
	if cfg.Polling.IntervalSeconds <= 0 {
		return fmt.Errorf("polling interval must be positive, got %d", cfg.Polling.IntervalSeconds)
	}
	if cfg.Suggestions.Concurrency < 1 {
		return fmt.Errorf("suggestions concurrency must be at least 1, got %d", cfg.Suggestions.Concurrency)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
