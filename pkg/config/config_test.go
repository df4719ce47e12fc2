package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/famgate/famgate/internal/bytesize"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

const minimalConfig = `
database:
  host: localhost
  database: famgate
  user: famgate
auth:
  secret: "0123456789abcdef0123456789abcdef"
`

func TestLoadMinimalConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, "INFO", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "local", cfg.Storage.Type)
	assert.Equal(t, "/var/lib/famgate/storage", cfg.Storage.Local.BasePath)
	assert.Equal(t, bytesize.ByteSize(100<<20), cfg.Storage.MaxFileSize)
	assert.Equal(t, 5*time.Minute, cfg.Cache.FileTTL)
	assert.Equal(t, 30*time.Second, cfg.Cache.SearchTTL)
	assert.Equal(t, "famgate", cfg.Auth.Issuer)
	assert.Equal(t, 15*time.Minute, cfg.Auth.AccessTokenDuration)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.True(t, cfg.API.IsEnabled())
	assert.False(t, cfg.Metrics.Enabled)
	assert.False(t, cfg.Proxy.Postgres.Enabled)
}

func TestLoadHumanReadableValues(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig+`
storage:
  type: local
  local:
    base_path: /tmp/famgate
  max_file_size: 1Gi
cache:
  file_ttl: 10m
`))
	require.NoError(t, err)

	assert.Equal(t, bytesize.ByteSize(1<<30), cfg.Storage.MaxFileSize)
	assert.Equal(t, 10*time.Minute, cfg.Cache.FileTTL)
	assert.Equal(t, "/tmp/famgate", cfg.Storage.Local.BasePath)
}

func TestLoadProxyDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig+`
proxy:
  postgres:
    enabled: true
    backend:
      host: db.internal
  redis:
    enabled: true
    backend:
      host: cache.internal
`))
	require.NoError(t, err)

	assert.Equal(t, 15432, cfg.Proxy.Postgres.Listen.Port)
	assert.Equal(t, 5432, cfg.Proxy.Postgres.Backend.Port)
	assert.Equal(t, 16379, cfg.Proxy.Redis.Listen.Port)
	assert.Equal(t, 6379, cfg.Proxy.Redis.Backend.Port)

	// Disabled proxies get no port defaults
	assert.Equal(t, 0, cfg.Proxy.MySQL.Listen.Port)
}

func TestLoadMissingFileUsesDefaultsButFailsValidation(t *testing.T) {
	// Defaults alone lack database credentials and a JWT secret.
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestValidateRejectsShortJWTSecret(t *testing.T) {
	_, err := Load(writeConfig(t, `
database:
  host: localhost
  database: famgate
  user: famgate
auth:
  secret: "tooshort"
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT secret")
}

func TestValidateRejectsObjectStorageWithoutBucketPrefix(t *testing.T) {
	_, err := Load(writeConfig(t, minimalConfig+`
storage:
  type: object
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket_prefix")
}

func TestValidateRejectsProxyWithoutBackendHost(t *testing.T) {
	_, err := Load(writeConfig(t, minimalConfig+`
proxy:
  mongo:
    enabled: true
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mongo")
}

func TestValidateRejectsBadLogLevel(t *testing.T) {
	_, err := Load(writeConfig(t, minimalConfig+`
logging:
  level: verbose
`))
	require.Error(t, err)
}

func TestSaveConfigRoundTrip(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Auth.Secret = "0123456789abcdef0123456789abcdef"
	cfg.Storage.Local.BasePath = "/tmp/famgate-roundtrip"
	cfg.Proxy.Postgres.Enabled = true
	cfg.Proxy.Postgres.Backend.Host = "db.internal"
	ApplyDefaults(cfg)

	path := filepath.Join(t.TempDir(), "saved.yaml")
	require.NoError(t, SaveConfig(cfg, path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Storage.Local.BasePath, loaded.Storage.Local.BasePath)
	assert.Equal(t, cfg.Proxy.Postgres.Backend.Host, loaded.Proxy.Postgres.Backend.Host)
	assert.Equal(t, cfg.Proxy.Postgres.Listen.Port, loaded.Proxy.Postgres.Listen.Port)
	assert.Equal(t, cfg.ShutdownTimeout, loaded.ShutdownTimeout)
}

func TestInitConfigToPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	require.NoError(t, InitConfigToPath(path, false))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	// Generated file loads and validates without edits.
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, cfg.Auth.Secret, 64)

	err = InitConfigToPath(path, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	require.NoError(t, InitConfigToPath(path, true))
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("FAMGATE_LOGGING_LEVEL", "debug")

	// Env overrides apply to keys the file defines.
	cfg, err := Load(writeConfig(t, minimalConfig+`
logging:
  level: info
`))
	require.NoError(t, err)
	assert.Equal(t, "DEBUG", cfg.Logging.Level)
}
