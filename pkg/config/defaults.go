package config

import (
	"strings"
	"time"

	"github.com/famgate/famgate/internal/bytesize"
	"github.com/famgate/famgate/pkg/validate"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// This function is called after loading configuration from file and environment
// variables to fill in any missing values with sensible defaults.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyShutdownTimeoutDefaults(cfg)
	cfg.Database.ApplyDefaults()
	applyStorageDefaults(&cfg.Storage)
	applyCacheDefaults(&cfg.Cache)
	applyAuthDefaults(cfg)
	applyProxyDefaults(&cfg.Proxy)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyShutdownTimeoutDefaults(cfg *Config) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

// applyStorageDefaults sets storage backend defaults.
func applyStorageDefaults(cfg *StorageConfig) {
	if cfg.Type == "" {
		cfg.Type = "local"
	}
	if cfg.MaxFileSize == 0 {
		cfg.MaxFileSize = bytesize.ByteSize(validate.DefaultMaxFileSize)
	}
	// AllowedExtensions and AllowedMIMETypes default inside pkg/validate
	// when left empty.
	if cfg.Type == "local" && cfg.Local.BasePath == "" {
		cfg.Local.BasePath = "/var/lib/famgate/storage"
	}
}

// applyCacheDefaults sets metadata cache TTL defaults.
func applyCacheDefaults(cfg *CacheConfig) {
	if cfg.FileTTL == 0 {
		cfg.FileTTL = 5 * time.Minute
	}
	if cfg.SearchTTL == 0 {
		cfg.SearchTTL = 30 * time.Second
	}
	if cfg.ListTTL == 0 {
		cfg.ListTTL = 30 * time.Second
	}
}

// applyAuthDefaults sets JWT defaults. The secret has no default.
func applyAuthDefaults(cfg *Config) {
	if cfg.Auth.Issuer == "" {
		cfg.Auth.Issuer = "famgate"
	}
	if cfg.Auth.AccessTokenDuration == 0 {
		cfg.Auth.AccessTokenDuration = 15 * time.Minute
	}
	if cfg.Auth.RefreshTokenDuration == 0 {
		cfg.Auth.RefreshTokenDuration = 7 * 24 * time.Hour
	}
}

// applyProxyDefaults sets per-protocol listener and backend port defaults.
func applyProxyDefaults(cfg *ProxyConfig) {
	if cfg.Postgres.Enabled {
		if cfg.Postgres.Listen.Port == 0 {
			cfg.Postgres.Listen.Port = 15432
		}
		if cfg.Postgres.Backend.Port == 0 {
			cfg.Postgres.Backend.Port = 5432
		}
	}
	if cfg.MySQL.Enabled {
		if cfg.MySQL.Listen.Port == 0 {
			cfg.MySQL.Listen.Port = 13306
		}
		if cfg.MySQL.Backend.Port == 0 {
			cfg.MySQL.Backend.Port = 3306
		}
	}
	if cfg.Mongo.Enabled {
		if cfg.Mongo.Listen.Port == 0 {
			cfg.Mongo.Listen.Port = 17017
		}
		if cfg.Mongo.Backend.Port == 0 {
			cfg.Mongo.Backend.Port = 27017
		}
	}
	if cfg.Redis.Enabled {
		if cfg.Redis.Listen.Port == 0 {
			cfg.Redis.Listen.Port = 16379
		}
		if cfg.Redis.Backend.Port == 0 {
			cfg.Redis.Backend.Port = 6379
		}
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
//   - Documentation
func GetDefaultConfig() *Config {
	cfg := &Config{}
	cfg.Database.Host = "localhost"
	cfg.Database.Database = "famgate"
	cfg.Database.User = "famgate"

	ApplyDefaults(cfg)
	return cfg
}
