// Package config loads and validates the famgate configuration from file,
// environment and defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/famgate/famgate/internal/bytesize"
	"github.com/famgate/famgate/pkg/api"
	"github.com/famgate/famgate/pkg/api/auth"
	"github.com/famgate/famgate/pkg/metadata/postgres"
	"github.com/famgate/famgate/pkg/proxy"
	"github.com/famgate/famgate/pkg/storage/local"
	"github.com/famgate/famgate/pkg/storage/s3"
)

// Config represents the famgate gateway configuration.
//
// This structure captures the static configuration of the gateway:
//   - Logging configuration
//   - Server settings (shutdown timeout, metrics, API)
//   - Metadata database connection
//   - Storage backend selection and tuning
//   - Metadata cache TTLs
//   - JWT authentication
//   - Wire-protocol proxies
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (FAMGATE_*)
//  3. Configuration file (YAML or TOML)
//  4. Default values (lowest priority)
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`

	// Database configures the metadata store (PostgreSQL).
	Database postgres.PostgresStoreConfig `mapstructure:"database" yaml:"database"`

	// Storage selects and tunes the payload backend.
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`

	// Cache holds the metadata cache TTLs.
	Cache CacheConfig `mapstructure:"cache" yaml:"cache"`

	// Auth configures JWT token validation for the REST API.
	Auth auth.JWTConfig `mapstructure:"auth" yaml:"auth"`

	// API contains REST API server configuration
	API api.Config `mapstructure:"api" yaml:"api"`

	// Metrics contains Prometheus metrics configuration
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// Proxy contains the wire-protocol proxy configuration
	Proxy ProxyConfig `mapstructure:"proxy" yaml:"proxy"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// StorageConfig selects the payload backend and carries the upload ruleset.
type StorageConfig struct {
	// Type selects the backend.
	// Valid values: local, s3
	Type string `mapstructure:"type" validate:"required,oneof=local object" yaml:"type"`

	// MaxFileSize bounds a single upload.
	// Supports human-readable formats: "100MB", "1Gi"
	// Default: 100MB
	MaxFileSize bytesize.ByteSize `mapstructure:"max_file_size" yaml:"max_file_size,omitempty"`

	// AllowedExtensions whitelists upload file extensions (without dot).
	// Empty means the built-in default set.
	AllowedExtensions []string `mapstructure:"allowed_extensions" yaml:"allowed_extensions,omitempty"`

	// AllowedMIMETypes whitelists declared content types.
	// Empty means the built-in default set.
	AllowedMIMETypes []string `mapstructure:"allowed_mime_types" yaml:"allowed_mime_types,omitempty"`

	// Local configures the filesystem backend (used when Type is "local").
	Local local.Config `mapstructure:"local" yaml:"local"`

	// Object configures the S3-compatible backend (used when Type is "object").
	Object s3.Config `mapstructure:"object" yaml:"object"`
}

// CacheConfig holds the metadata cache TTLs. Zero values fall back to the
// cache package defaults.
type CacheConfig struct {
	// FileTTL is how long a metadata row stays cached after a read.
	// Default: 5m
	FileTTL time.Duration `mapstructure:"file_ttl" yaml:"file_ttl"`

	// SearchTTL is how long a search result page stays cached.
	// Default: 30s
	SearchTTL time.Duration `mapstructure:"search_ttl" yaml:"search_ttl"`

	// ListTTL is how long a folder listing stays cached.
	// Default: 30s
	ListTTL time.Duration `mapstructure:"list_ttl" yaml:"list_ttl"`
}

// MetricsConfig configures Prometheus metrics collection.
// When Enabled is false, no metrics are collected (zero overhead).
// The exporter is served on the API port at /metrics.
type MetricsConfig struct {
	// Enabled controls whether metrics collection is enabled
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// ProxyConfig groups the wire-protocol proxies. Each proxy is opt-in.
type ProxyConfig struct {
	Postgres PostgresProxyConfig    `mapstructure:"postgres" yaml:"postgres"`
	MySQL    PassthroughProxyConfig `mapstructure:"mysql" yaml:"mysql"`
	Mongo    PassthroughProxyConfig `mapstructure:"mongo" yaml:"mongo"`
	Redis    RedisProxyConfig       `mapstructure:"redis" yaml:"redis"`
}

// PostgresProxyConfig configures the inspecting Postgres proxy.
type PostgresProxyConfig struct {
	// Enabled controls whether this proxy listener is started.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	Listen  proxy.ListenConfig  `mapstructure:"listen" yaml:"listen"`
	Backend proxy.BackendConfig `mapstructure:"backend" yaml:"backend"`

	// DenyPatterns overrides the built-in dangerous statement patterns
	// when non-empty.
	DenyPatterns []string `mapstructure:"deny_patterns" yaml:"deny_patterns,omitempty"`
}

// PassthroughProxyConfig configures an uninspected byte-forwarding proxy.
type PassthroughProxyConfig struct {
	// Enabled controls whether this proxy listener is started.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	Listen  proxy.ListenConfig  `mapstructure:"listen" yaml:"listen"`
	Backend proxy.BackendConfig `mapstructure:"backend" yaml:"backend"`
}

// RedisProxyConfig configures the RESP-auditing Redis proxy.
type RedisProxyConfig struct {
	// Enabled controls whether this proxy listener is started.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	Listen  proxy.ListenConfig  `mapstructure:"listen" yaml:"listen"`
	Backend proxy.BackendConfig `mapstructure:"backend" yaml:"backend"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (FAMGATE_*)
//  2. Configuration file
//  3. Default values
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: Configuration loading or validation error
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	configFileFound, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if configFileFound {
		if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	}

	// Apply defaults for any missing values
	ApplyDefaults(&cfg)

	// Validate configuration
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration with helpful error messages.
// It checks if the config file exists and provides user-friendly instructions if not.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please initialize a configuration file first:\n"+
				"  famgate init\n\n"+
				"Or specify a custom config file:\n"+
				"  famgate <command> --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("configuration file not found: %s\n\n"+
				"Please create the configuration file:\n"+
				"  famgate init --config %s",
				configPath, configPath)
		}
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to the specified file path.
// The configuration is saved in YAML format using proper yaml tags.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Restricted permissions: the config may carry database credentials
	// and the JWT secret.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Environment variables use FAMGATE_ prefix and underscores
	// Example: FAMGATE_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("FAMGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Default location: $XDG_CONFIG_HOME/famgate/config.{yaml,toml}
		configDir := getConfigDir()
		v.AddConfigPath(configDir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
// Returns (fileFound, error) where fileFound indicates if a config file was found.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found is acceptable - use defaults
			return false, nil
		}
		// Also check for os.PathError when explicit config file doesn't exist
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}

	return true, nil
}

// configDecodeHooks returns a combined decode hook for all custom types.
// This includes ByteSize and time.Duration parsing.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
	)
}

// byteSizeDecodeHook returns a mapstructure decode hook that converts strings
// and integers to bytesize.ByteSize. This enables config files to use
// human-readable sizes like "1Gi", "500Mi", "100MB", or plain numbers.
func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return bytesize.ParseByteSize(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			// YAML often deserializes numbers as float64
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

// durationDecodeHook returns a mapstructure decode hook that converts strings
// to time.Duration. This enables config files to use human-readable durations
// like "30s", "5m", "1h".
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			// Assume nanoseconds for raw integers
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to current
// directory (.) if home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "famgate")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "famgate")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks if a config file exists at the default location.
func DefaultConfigExists() bool {
	path := GetDefaultConfigPath()
	_, err := os.Stat(path)
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for init command).
func GetConfigDir() string {
	return getConfigDir()
}
