package database

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drallgood/bookrequest/internal/crypto"
	"github.com/drallgood/bookrequest/internal/logger"
)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	db, err := NewDatabase(&DatabaseConfig{
		Type: DatabaseTypeSQLite,
		Path: filepath.Join(t.TempDir(), "test.db"),
	}, logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	key := make([]byte, 32)
	enc, err := crypto.NewEncryptionManagerWithKey(key, logger.Nop())
	require.NoError(t, err)
	return NewRepository(db, enc, logger.Nop())
}

func TestRepository_SaveAndGet(t *testing.T) {
	repo := newTestRepository(t)

	err := repo.SaveInstances(
		InstanceWithKey{Name: "ebooks", BaseURL: "http://readarr:8787", APIKey: "key-1", RootFolderPath: "/books", QualityProfileID: 1},
		InstanceWithKey{Name: "audiobooks", BaseURL: "http://readarr-audio:8787", APIKey: "key-2"},
	)
	require.NoError(t, err)

	got, err := repo.GetInstance("ebooks")
	require.NoError(t, err)
	assert.Equal(t, "http://readarr:8787", got.BaseURL)
	assert.Equal(t, "key-1", got.APIKey)
	assert.Equal(t, "/books", got.RootFolderPath)
	assert.Equal(t, 1, got.QualityProfileID)

	count, err := repo.CountInstances()
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestRepository_KeyIsEncryptedAtRest(t *testing.T) {
	repo := newTestRepository(t)
	require.NoError(t, repo.SaveInstances(InstanceWithKey{Name: "ebooks", BaseURL: "http://x", APIKey: "plain-key"}))

	var row InstanceSettings
	require.NoError(t, repo.db.GetDB().First(&row, "name = ?", "ebooks").Error)
	assert.NotEmpty(t, row.APIKeyEncrypted)
	assert.NotContains(t, row.APIKeyEncrypted, "plain-key")
}

func TestRepository_Upsert(t *testing.T) {
	repo := newTestRepository(t)
	require.NoError(t, repo.SaveInstances(InstanceWithKey{Name: "ebooks", BaseURL: "http://old", APIKey: "a"}))
	require.NoError(t, repo.SaveInstances(InstanceWithKey{Name: "ebooks", BaseURL: "http://new", APIKey: "b"}))

	got, err := repo.GetInstance("ebooks")
	require.NoError(t, err)
	assert.Equal(t, "http://new", got.BaseURL)
	assert.Equal(t, "b", got.APIKey)

	count, err := repo.CountInstances()
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestRepository_NotFoundAndDelete(t *testing.T) {
	repo := newTestRepository(t)

	_, err := repo.GetInstance("audiobooks")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, repo.SaveInstances(InstanceWithKey{Name: "audiobooks", BaseURL: "http://x", APIKey: "k"}))
	require.NoError(t, repo.DeleteInstance("audiobooks"))
	_, err = repo.GetInstance("audiobooks")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDatabaseConfig(t *testing.T) {
	tests := []struct {
		name    string
		config  DatabaseConfig
		wantErr bool
		dsn     string
	}{
		{"sqlite", DatabaseConfig{Type: DatabaseTypeSQLite, Path: "/tmp/x.db"}, false, "/tmp/x.db"},
		{"sqlite without path", DatabaseConfig{Type: DatabaseTypeSQLite}, true, ""},
		{"postgres", DatabaseConfig{Type: DatabaseTypePostgreSQL, Host: "db", Port: 5432, Database: "books", SSLMode: "disable", Username: "u"}, false,
			"host=db port=5432 dbname=books sslmode=disable user=u"},
		{"mysql", DatabaseConfig{Type: DatabaseTypeMySQL, Host: "db", Port: 3306, Database: "books", Username: "u", Password: "p"}, false,
			"u:p@tcp(db:3306)/books?charset=utf8mb4&parseTime=True&loc=Local"},
		{"mysql without host", DatabaseConfig{Type: DatabaseTypeMySQL, Port: 3306, Database: "books"}, true, ""},
		{"unknown", DatabaseConfig{Type: "oracle"}, true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.dsn, tt.config.GetDSN())
		})
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("DATABASE_TYPE", "postgres")
	t.Setenv("DATABASE_HOST", "pg")
	t.Setenv("DATABASE_NAME", "bookrequest")

	cfg := DefaultDatabaseConfig()
	ApplyEnv(cfg)

	assert.Equal(t, DatabaseTypePostgreSQL, cfg.Type)
	assert.Equal(t, "pg", cfg.Host)
	assert.Equal(t, "bookrequest", cfg.Database)
	assert.Equal(t, 5432, cfg.Port)
}
