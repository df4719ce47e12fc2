package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Validate checks the configuration for errors.
//
// Struct tags handle value-level constraints; the cross-field rules that
// depend on which backend or proxy is enabled are checked explicitly.
func Validate(cfg *Config) error {
	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		return err
	}

	if err := cfg.Database.Validate(); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	switch cfg.Storage.Type {
	case "local":
		if cfg.Storage.Local.BasePath == "" {
			return fmt.Errorf("storage: local backend requires base_path")
		}
	case "object":
		if cfg.Storage.Object.BucketPrefix == "" {
			return fmt.Errorf("storage: object backend requires bucket_prefix")
		}
	}

	if cfg.API.IsEnabled() && len(cfg.Auth.Secret) < 32 {
		return fmt.Errorf("auth: JWT secret must be at least 32 characters")
	}

	proxies := []struct {
		name    string
		enabled bool
		host    string
	}{
		{"postgres", cfg.Proxy.Postgres.Enabled, cfg.Proxy.Postgres.Backend.Host},
		{"mysql", cfg.Proxy.MySQL.Enabled, cfg.Proxy.MySQL.Backend.Host},
		{"mongo", cfg.Proxy.Mongo.Enabled, cfg.Proxy.Mongo.Backend.Host},
		{"redis", cfg.Proxy.Redis.Enabled, cfg.Proxy.Redis.Backend.Host},
	}
	for _, p := range proxies {
		if p.enabled && p.host == "" {
			return fmt.Errorf("proxy: %s proxy requires a backend host", p.name)
		}
	}

	return nil
}
