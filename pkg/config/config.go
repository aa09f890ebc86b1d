package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	herrors "heliodata/pkg/errors"
	"heliodata/pkg/timerange"
)

// Config holds all configuration options for heliodata
type Config struct {
	// Time span, cadence and destination
	Download DownloadConfig `yaml:"download" json:"download"`

	// Archive client settings
	Archive ArchiveConfig `yaml:"archive" json:"archive"`

	// In-process retry of transient fetch failures
	Retry RetryConfig `yaml:"retry" json:"retry"`

	// Rate limiting configuration
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`

	// Artifact handling on disk
	Storage StorageConfig `yaml:"storage" json:"storage"`

	// Optional bucket mirror of completed artifacts
	Mirror MirrorConfig `yaml:"mirror" json:"mirror"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`

	// Per-mission overrides keyed by mission name
	Missions map[string]MissionConfig `yaml:"missions,omitempty" json:"missions,omitempty"`
}

// DownloadConfig holds the span to iterate and where results go
type DownloadConfig struct {
	Root           string        `yaml:"root" json:"root"`
	Start          string        `yaml:"start" json:"start"`
	End            string        `yaml:"end" json:"end"`
	Interval       string        `yaml:"interval" json:"interval"`
	Cadence        time.Duration `yaml:"cadence" json:"cadence"`
	Margin         time.Duration `yaml:"margin" json:"margin"`
	IgnoreLedger   bool          `yaml:"ignore_ledger" json:"ignore_ledger"`
	RetryPermanent bool          `yaml:"retry_permanent" json:"retry_permanent"`
	BackupLedger   bool          `yaml:"backup_ledger" json:"backup_ledger"`
}

// ArchiveConfig holds settings passed to the archive client
type ArchiveConfig struct {
	// Identity is handed opaquely to the archive (JSOC e-mail, token, ...)
	Identity  string        `yaml:"identity" json:"identity"`
	Timeout   time.Duration `yaml:"timeout" json:"timeout"`
	UserAgent string        `yaml:"user_agent" json:"user_agent"`
}

// RetryConfig holds retry configuration
type RetryConfig struct {
	Enabled      bool          `yaml:"enabled" json:"enabled"`
	MaxAttempts  int           `yaml:"max_attempts" json:"max_attempts"`
	BaseDelay    time.Duration `yaml:"base_delay" json:"base_delay"`
	MaxDelay     time.Duration `yaml:"max_delay" json:"max_delay"`
	Multiplier   float64       `yaml:"multiplier" json:"multiplier"`
	JitterFactor float64       `yaml:"jitter_factor" json:"jitter_factor"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int           `yaml:"requests_per_minute" json:"requests_per_minute"`
	MinInterval       time.Duration `yaml:"min_interval" json:"min_interval"`
}

// StorageConfig controls how fetched artifacts are verified and placed
type StorageConfig struct {
	Decompress     bool  `yaml:"decompress" json:"decompress"`
	Checksums      bool  `yaml:"checksums" json:"checksums"`
	WriteMetadata  bool  `yaml:"write_metadata" json:"write_metadata"`
	MinFileSize    int64 `yaml:"min_file_size" json:"min_file_size"`
	KeepSourceName bool  `yaml:"keep_source_name" json:"keep_source_name"`
}

// MirrorConfig points at a gocloud bucket URL (file://, s3://, gs://)
type MirrorConfig struct {
	URL    string `yaml:"url" json:"url"`
	Prefix string `yaml:"prefix" json:"prefix"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
	// FileLevel applies to the log file only; empty means debug
	FileLevel string `yaml:"file_level,omitempty" json:"file_level,omitempty"`
	// NoFile disables the default log file under the destination root
	NoFile bool `yaml:"no_file" json:"no_file"`
}

// MissionConfig overrides a mission's catalog defaults
type MissionConfig struct {
	Products    []string `yaml:"products,omitempty" json:"products,omitempty"`
	URLTemplate string   `yaml:"url_template,omitempty" json:"url_template,omitempty"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Download: DownloadConfig{
			Root:           "./data",
			Start:          "2010-01-01T00:00:00",
			End:            "2025-01-01T00:00:00",
			Interval:       "month",
			Cadence:        24 * time.Hour,
			Margin:         15 * time.Minute,
			IgnoreLedger:   false,
			RetryPermanent: true,
			BackupLedger:   true,
		},
		Archive: ArchiveConfig{
			Timeout:   60 * time.Second,
			UserAgent: "heliodata/0.2",
		},
		Retry: RetryConfig{
			Enabled:      true,
			MaxAttempts:  3,
			BaseDelay:    1 * time.Second,
			MaxDelay:     60 * time.Second,
			Multiplier:   2.0,
			JitterFactor: 0.1,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 30,
		},
		Storage: StorageConfig{
			Decompress:    true,
			Checksums:     false,
			WriteMetadata: true,
			MinFileSize:   1,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Missions: map[string]MissionConfig{},
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	var errs []error

	if root := os.Getenv("HELIODATA_PATH"); root != "" {
		c.Download.Root = root
	}
	if identity := os.Getenv("HELIODATA_EMAIL"); identity != "" {
		c.Archive.Identity = identity
	}
	if identity := os.Getenv("HELIODATA_IDENTITY"); identity != "" {
		c.Archive.Identity = identity
	}
	if start := os.Getenv("HELIODATA_START"); start != "" {
		c.Download.Start = start
	}
	if end := os.Getenv("HELIODATA_END"); end != "" {
		c.Download.End = end
	}
	if interval := os.Getenv("HELIODATA_INTERVAL"); interval != "" {
		c.Download.Interval = interval
	}
	if cadence := os.Getenv("HELIODATA_CADENCE"); cadence != "" {
		d, err := time.ParseDuration(cadence)
		if err != nil {
			errs = append(errs, fmt.Errorf("HELIODATA_CADENCE: %w", err))
		} else {
			c.Download.Cadence = d
		}
	}
	if mirror := os.Getenv("HELIODATA_MIRROR_URL"); mirror != "" {
		c.Mirror.URL = mirror
	}
	if logLevel := os.Getenv("HELIODATA_LOG_LEVEL"); logLevel != "" {
		c.Logging.Level = logLevel
	}

	return errors.Join(errs...)
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	// If path is empty, try default locations
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	home := os.Getenv("HOME")
	locations := []string{
		"heliodata.yaml",
		"heliodata.yml",
		filepath.Join(home, ".config", "heliodata", "config.yaml"),
		filepath.Join(home, ".heliodata.yaml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.Download.Root == "" {
		errs = append(errs, errors.New("destination root is required"))
	}
	start, err := timerange.ParseTime(c.Download.Start)
	if err != nil {
		errs = append(errs, fmt.Errorf("start: %w", err))
	}
	end, err2 := timerange.ParseTime(c.Download.End)
	if err2 != nil {
		errs = append(errs, fmt.Errorf("end: %w", err2))
	}
	if err == nil && err2 == nil && start.After(end) {
		errs = append(errs, herrors.InvalidRange("start %s is after end %s", c.Download.Start, c.Download.End))
	}
	switch strings.ToLower(c.Download.Interval) {
	case "year", "month":
	default:
		errs = append(errs, fmt.Errorf("interval must be 'year' or 'month', got %q", c.Download.Interval))
	}
	if c.Download.Cadence <= 0 {
		errs = append(errs, errors.New("cadence must be positive"))
	}
	if c.Download.Margin < 0 {
		errs = append(errs, errors.New("margin cannot be negative"))
	}

	if c.Archive.Timeout <= 0 {
		errs = append(errs, errors.New("archive timeout must be positive"))
	}

	if c.Retry.Enabled && c.Retry.MaxAttempts <= 0 {
		errs = append(errs, errors.New("retry max attempts must be positive"))
	}
	if c.Retry.Multiplier < 1 && c.Retry.Enabled {
		errs = append(errs, errors.New("retry multiplier must be at least 1"))
	}
	if c.Retry.JitterFactor < 0 || c.Retry.JitterFactor > 1 {
		errs = append(errs, errors.New("retry jitter factor must be between 0 and 1"))
	}

	if c.RateLimit.RequestsPerMinute < 0 {
		errs = append(errs, errors.New("requests per minute cannot be negative"))
	}
	if c.RateLimit.MinInterval < 0 {
		errs = append(errs, errors.New("minimum request interval cannot be negative"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}
	if c.Logging.FileLevel != "" && !validLogLevels[strings.ToLower(c.Logging.FileLevel)] {
		errs = append(errs, errors.New("invalid file log level"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// StartTime returns the parsed download start
func (c *Config) StartTime() (time.Time, error) {
	return timerange.ParseTime(c.Download.Start)
}

// EndTime returns the parsed download end (exclusive)
func (c *Config) EndTime() (time.Time, error) {
	return timerange.ParseTime(c.Download.End)
}

// LogFile returns the effective log file path. Unless disabled, logs go
// to heliodata.log under the destination root.
func (c *Config) LogFile() string {
	if c.Logging.File != "" {
		return c.Logging.File
	}
	if c.Logging.NoFile || c.Download.Root == "" {
		return ""
	}
	return filepath.Join(c.Download.Root, "heliodata.log")
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Create directory if it doesn't exist
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration.
// Only keys present in flags are applied.
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if root, ok := flags["root"].(string); ok && root != "" {
		c.Download.Root = root
	}
	if start, ok := flags["start"].(string); ok && start != "" {
		c.Download.Start = start
	}
	if end, ok := flags["end"].(string); ok && end != "" {
		c.Download.End = end
	}
	if interval, ok := flags["interval"].(string); ok && interval != "" {
		c.Download.Interval = interval
	}
	if cadence, ok := flags["cadence"].(time.Duration); ok && cadence > 0 {
		c.Download.Cadence = cadence
	}
	if margin, ok := flags["margin"].(time.Duration); ok && margin >= 0 {
		c.Download.Margin = margin
	}
	if ignore, ok := flags["ignore-ledger"].(bool); ok {
		c.Download.IgnoreLedger = ignore
	}
	if retryPermanent, ok := flags["retry-permanent"].(bool); ok {
		c.Download.RetryPermanent = retryPermanent
	}
	if identity, ok := flags["identity"].(string); ok && identity != "" {
		c.Archive.Identity = identity
	}
	if attempts, ok := flags["max-attempts"].(int); ok && attempts > 0 {
		c.Retry.MaxAttempts = attempts
	}
	if rpm, ok := flags["requests-per-minute"].(int); ok && rpm >= 0 {
		c.RateLimit.RequestsPerMinute = rpm
	}
	if checksums, ok := flags["checksums"].(bool); ok {
		c.Storage.Checksums = checksums
	}
	if mirror, ok := flags["mirror"].(string); ok && mirror != "" {
		c.Mirror.URL = mirror
	}
	if logLevel, ok := flags["log-level"].(string); ok && logLevel != "" {
		c.Logging.Level = logLevel
	}
	if logFile, ok := flags["log-file"].(string); ok && logFile != "" {
		c.Logging.File = logFile
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// Try to load .env files (don't fail if they don't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".heliodata.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
