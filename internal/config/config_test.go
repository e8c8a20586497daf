package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drallgood/bookrequest/internal/database"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, DefaultSearchLimit, cfg.Search.Limit)
	assert.True(t, cfg.Search.IncludeCatalogMatches)
	assert.True(t, cfg.Request.DefaultsResolution)
	assert.Equal(t, DefaultBackendTimeout, cfg.Backend.Timeout)
	assert.Equal(t, DefaultDefaultsTTL, cfg.Backend.DefaultsTTL)
	assert.Equal(t, StoreFile, cfg.Settings.Store)
	assert.Equal(t, database.DatabaseTypeSQLite, cfg.Database.Type)
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: "9000"
logging:
  level: debug
search:
  limit: 50
  include_catalog_matches: false
request:
  defaults_resolution: false
backend:
  timeout: 5s
settings:
  store: database
auth:
  token: from-file
  allowed_origin: https://books.example
database:
  type: sqlite
  path: /tmp/bookrequest-test.db
`), 0600))

	t.Setenv("PORT", "9100")
	t.Setenv("BACKEND_BURST", "9")
	t.Setenv("AUTH_TOKEN", "from-env")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9100", cfg.Server.Port, "env wins over file")
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 50, cfg.Search.Limit)
	assert.False(t, cfg.Search.IncludeCatalogMatches)
	assert.False(t, cfg.Request.DefaultsResolution)
	assert.Equal(t, 5*time.Second, cfg.Backend.Timeout)
	assert.Equal(t, 9, cfg.Backend.Burst)
	assert.Equal(t, StoreDatabase, cfg.Settings.Store)
	assert.Equal(t, "/tmp/bookrequest-test.db", cfg.Database.Path)
	assert.Equal(t, "from-env", cfg.Auth.Token)
	assert.Equal(t, "https://books.example", cfg.Auth.AllowedOrigin)
}

func TestLoad_MissingFileIsFine(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.NoError(t, err)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [oops"), 0600))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_EnvBooleans(t *testing.T) {
	t.Setenv("SEARCH_INCLUDE_CATALOG_MATCHES", "false")
	t.Setenv("DEFAULTS_RESOLUTION", "not-a-bool")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.False(t, cfg.Search.IncludeCatalogMatches)
	assert.True(t, cfg.Request.DefaultsResolution, "unparsable values keep the default")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		field  string
	}{
		{"valid", func(*Config) {}, ""},
		{"unknown store", func(c *Config) { c.Settings.Store = "s3" }, "settings.store"},
		{"file store without file", func(c *Config) { c.Settings.File = "" }, "settings.file"},
		{"bad database", func(c *Config) {
			c.Settings.Store = StoreDatabase
			c.Database.Type = database.DatabaseTypePostgreSQL
		}, "database"},
		{"zero timeout", func(c *Config) { c.Backend.Timeout = 0 }, "backend.timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			var cfgErr *ConfigError
			require.True(t, errors.As(err, &cfgErr))
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestSearchLimitFloor(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Search.Limit = 5
	assert.Equal(t, MinSearchLimit, cfg.SearchLimit())
	cfg.Search.Limit = 40
	assert.Equal(t, 40, cfg.SearchLimit())
}

func TestInstance(t *testing.T) {
	inst := Instance{BaseURL: " http://readarr:8787/ ", APIKey: " abcdef123 "}.Normalize()
	assert.Equal(t, "http://readarr:8787", inst.BaseURL)
	assert.Equal(t, "abcdef123", inst.APIKey)
	assert.False(t, inst.HasDefaults())
	assert.Equal(t, "*****f123", inst.Masked().APIKey)
	assert.Equal(t, "****", Instance{APIKey: "ab"}.Masked().APIKey)
	assert.NoError(t, inst.Validate("ebooks"))

	err := Instance{}.Validate("audiobooks")
	require.Error(t, err)
	assert.Equal(t, "config error: audiobooks is missing base URL and API key", err.Error())

	inst.DefaultRootFolderPath = "/books"
	inst.DefaultQualityProfileID = 1
	assert.True(t, inst.HasDefaults())
}
