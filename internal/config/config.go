package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Encryption EncryptionConfig `yaml:"encryption"`
	Site       SiteConfig       `yaml:"site"`
	Update     UpdateConfig     `yaml:"update"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port     int    `yaml:"port"`
	BasePath string `yaml:"base_path"`
}

// DatabaseConfig holds SQLite settings.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// EncryptionConfig holds the key used to encrypt provider credentials.
type EncryptionConfig struct {
	Key string `yaml:"key"`
}

// SiteConfig holds settings for the crawled site's HTTP client.
type SiteConfig struct {
	BaseURL        string  `yaml:"base_url"`
	RequestsPerSec float64 `yaml:"requests_per_sec"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
	BackoffBaseSec float64 `yaml:"backoff_base_seconds"`
}

// UpdateConfig holds crawl run settings.
type UpdateConfig struct {
	FetchConcurrency   int `yaml:"fetch_concurrency"`
	WriteConcurrency   int `yaml:"write_concurrency"`
	RecheckDelaySec    int `yaml:"recheck_delay_seconds"`
	EarliestRatingYear int `yaml:"earliest_rating_year"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	FilePath string `yaml:"file_path"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:     8080,
			BasePath: "/",
		},
		Database: DatabaseConfig{
			Path: "/data/scruffy.db",
		},
		Encryption: EncryptionConfig{},
		Site: SiteConfig{
			BaseURL:        "https://scaruffi.com",
			RequestsPerSec: 10,
			TimeoutSeconds: 30,
			BackoffBaseSec: 1,
		},
		Update: UpdateConfig{
			FetchConcurrency:   10,
			WriteConcurrency:   2,
			RecheckDelaySec:    1800,
			EarliestRatingYear: 1990,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads config from a YAML file (if it exists) and overrides with
// environment variables. Environment variables take precedence.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFromFile(path); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	cfg.loadFromEnv()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, c)
}

func (c *Config) loadFromEnv() {
	if v := os.Getenv("SCRUFFY_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("SCRUFFY_BASE_PATH"); v != "" {
		c.Server.BasePath = v
	}
	if v := os.Getenv("SCRUFFY_DB_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("SCRUFFY_ENCRYPTION_KEY"); v != "" {
		c.Encryption.Key = v
	}
	if v := os.Getenv("SCRUFFY_SITE_URL"); v != "" {
		c.Site.BaseURL = v
	}
	if v := os.Getenv("SCRUFFY_CONCURRENT_CONNECTIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Update.FetchConcurrency = n
		}
	}
	if v := os.Getenv("SCRUFFY_DATABASE_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Update.WriteConcurrency = n
		}
	}
	if v := os.Getenv("SCRUFFY_RECHECK_DELAY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Update.RecheckDelaySec = n
		}
	}
	if v := os.Getenv("SCRUFFY_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("SCRUFFY_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("SCRUFFY_LOG_FILE"); v != "" {
		c.Logging.FilePath = v
	}
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}
	if c.Site.BaseURL == "" {
		return fmt.Errorf("site base URL is required")
	}
	if c.Site.RequestsPerSec <= 0 {
		return fmt.Errorf("site requests_per_sec must be positive")
	}
	if c.Update.FetchConcurrency < 1 {
		return fmt.Errorf("fetch_concurrency must be at least 1")
	}
	if c.Update.WriteConcurrency < 1 {
		return fmt.Errorf("write_concurrency must be at least 1")
	}
	c.Server.BasePath = strings.TrimRight(c.Server.BasePath, "/")
	return nil
}
