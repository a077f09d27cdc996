// Package config loads UniLens configuration from the environment.
//
// Settings come from a .env file in the config directory (UNILENS_CONFIG_DIR,
// default /etc/unilens) or the working directory, with real environment
// variables taking precedence. Credentials and collector tuning can be
// reloaded at runtime via the watcher; listen addresses take effect on
// restart only.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Config holds all application configuration shared by the dashboard server
// and the collector daemon.
type Config struct {
	// Controller connection
	UnifiURL         string
	UnifiUser        string
	UnifiPass        string
	UnifiSite        string
	UnifiVerifySSL   bool
	UnifiFingerprint string

	// Time-series store
	InfluxURL  string
	InfluxDB   string
	InfluxUser string
	InfluxPass string

	// Collector tuning
	PollInterval      time.Duration
	PollLookback      time.Duration
	ConnectionTimeout time.Duration
	MaxAttempts       int
	RetryDelay        time.Duration
	BatchSize         int

	// Dashboard server
	ListenHost  string
	ListenPort  int
	FrontendDir string
	MetricsPort int

	// Logging
	LogLevel  string
	LogFormat string

	ConfigPath string

	// Track which settings are overridden by environment variables
	EnvOverrides map[string]bool `json:"-"`
}

// Load reads configuration from .env files and the environment.
func Load() (*Config, error) {
	configDir := "/etc/unilens"
	if dir := os.Getenv("UNILENS_CONFIG_DIR"); dir != "" {
		configDir = dir
	}

	// Load .env from the config directory if it exists
	envFile := filepath.Join(configDir, ".env")
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			log.Warn().Err(err).Str("file", envFile).Msg("Failed to load .env file")
		} else {
			log.Info().Str("file", envFile).Msg("Loaded .env file")
		}
	}

	// Also try the current directory for development setups
	if err := godotenv.Load(); err == nil {
		log.Info().Msg("Loaded configuration from .env in current directory")
	}

	cfg := &Config{
		UnifiSite:         "default",
		InfluxDB:          "unilens",
		PollInterval:      60 * time.Second,
		PollLookback:      60 * time.Second,
		ConnectionTimeout: 30 * time.Second,
		MaxAttempts:       3,
		RetryDelay:        time.Second,
		BatchSize:         500,
		ListenHost:        "0.0.0.0",
		ListenPort:        7654,
		FrontendDir:       "/opt/unilens/frontend",
		MetricsPort:       9101,
		LogLevel:          "info",
		LogFormat:         "auto",
		ConfigPath:        configDir,
		EnvOverrides:      make(map[string]bool),
	}

	cfg.applyEnv()

	return cfg, nil
}

// applyEnv overlays environment variables onto cfg, recording each override.
func (c *Config) applyEnv() {
	c.applyString("UNIFI_URL", &c.UnifiURL)
	c.applyString("UNIFI_USER", &c.UnifiUser)
	c.applyString("UNIFI_PASS", &c.UnifiPass)
	c.applyString("UNIFI_SITE", &c.UnifiSite)
	c.applyBool("UNIFI_VERIFY_SSL", &c.UnifiVerifySSL)
	c.applyString("UNIFI_FINGERPRINT", &c.UnifiFingerprint)

	c.applyString("INFLUX_URL", &c.InfluxURL)
	c.applyString("INFLUX_DB", &c.InfluxDB)
	c.applyString("INFLUX_USER", &c.InfluxUser)
	c.applyString("INFLUX_PASS", &c.InfluxPass)

	c.applyDuration("POLL_INTERVAL", &c.PollInterval)
	c.applyDuration("POLL_LOOKBACK", &c.PollLookback)
	c.applyDuration("CONNECTION_TIMEOUT", &c.ConnectionTimeout)
	c.applyInt("MAX_ATTEMPTS", &c.MaxAttempts)
	c.applyDuration("RETRY_DELAY", &c.RetryDelay)
	c.applyInt("BATCH_SIZE", &c.BatchSize)

	c.applyString("LISTEN_HOST", &c.ListenHost)
	c.applyInt("LISTEN_PORT", &c.ListenPort)
	c.applyString("FRONTEND_DIR", &c.FrontendDir)
	c.applyInt("METRICS_PORT", &c.MetricsPort)

	c.applyString("LOG_LEVEL", &c.LogLevel)
	c.applyString("LOG_FORMAT", &c.LogFormat)
}

func (c *Config) applyString(key string, target *string) {
	value := os.Getenv(key)
	if value == "" {
		return
	}
	*target = value
	c.EnvOverrides[key] = true

	if isSecret(key) {
		log.Debug().Str("key", key).Msg("Setting overridden from env var")
		return
	}
	log.Debug().Str("key", key).Str("value", value).Msg("Setting overridden from env var")
}

func (c *Config) applyInt(key string, target *int) {
	value := os.Getenv(key)
	if value == "" {
		return
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Warn().Str("key", key).Str("value", value).Msg("Ignoring invalid integer env var")
		return
	}
	*target = n
	c.EnvOverrides[key] = true
	log.Debug().Str("key", key).Int("value", n).Msg("Setting overridden from env var")
}

func (c *Config) applyBool(key string, target *bool) {
	value := os.Getenv(key)
	if value == "" {
		return
	}
	*target = value == "true" || value == "1"
	c.EnvOverrides[key] = true
	log.Debug().Str("key", key).Bool("value", *target).Msg("Setting overridden from env var")
}

func (c *Config) applyDuration(key string, target *time.Duration) {
	value := os.Getenv(key)
	if value == "" {
		return
	}
	d, err := ParseDuration(value)
	if err != nil {
		log.Warn().Str("key", key).Str("value", value).Msg("Ignoring invalid duration env var")
		return
	}
	*target = d
	c.EnvOverrides[key] = true
	log.Debug().Str("key", key).Dur("value", d).Msg("Setting overridden from env var")
}

// ParseDuration accepts either a Go duration string ("90s", "2m") or a bare
// number of seconds ("90").
func ParseDuration(value string) (time.Duration, error) {
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second, nil
	}
	return time.ParseDuration(value)
}

func isSecret(key string) bool {
	switch key {
	case "UNIFI_PASS", "INFLUX_PASS":
		return true
	}
	return false
}

// ValidateCollector checks the fields the collector daemon requires.
func (c *Config) ValidateCollector() error {
	if c.UnifiURL == "" {
		return fmt.Errorf("UNIFI_URL is required")
	}
	if c.UnifiUser == "" || c.UnifiPass == "" {
		return fmt.Errorf("UNIFI_USER and UNIFI_PASS are required")
	}
	if c.InfluxURL == "" {
		return fmt.Errorf("INFLUX_URL is required")
	}
	if c.InfluxDB == "" {
		return fmt.Errorf("INFLUX_DB is required")
	}
	if c.PollInterval < time.Second {
		return fmt.Errorf("POLL_INTERVAL must be at least 1s, got %s", c.PollInterval)
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("MAX_ATTEMPTS must be at least 1, got %d", c.MaxAttempts)
	}
	return nil
}

// ValidateServer checks the fields the dashboard server requires.
func (c *Config) ValidateServer() error {
	if c.InfluxURL == "" {
		return fmt.Errorf("INFLUX_URL is required")
	}
	if c.InfluxDB == "" {
		return fmt.Errorf("INFLUX_DB is required")
	}
	if c.ListenPort <= 0 || c.ListenPort > 65535 {
		return fmt.Errorf("LISTEN_PORT must be between 1 and 65535, got %d", c.ListenPort)
	}
	return nil
}
