package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "db", cfg.Bag.Store)
	assert.Equal(t, 500, cfg.Suggestions.MaxLength)
	assert.Equal(t, 5*time.Minute, cfg.ReauthAfter)
	assert.Equal(t, 5*time.Second, cfg.LinkPreview.Budget)
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
addr: ":9090"
token_ttl: 2h
bag:
  store: file
  dir: /tmp/bags
suggestions:
  max_length: 280
`), 0o644))

	t.Setenv("ADDR", ":7070")
	t.Setenv("LINK_PREVIEW_ENABLED", "false")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.Addr, "environment wins over the file")
	assert.Equal(t, 2*time.Hour, cfg.TokenTTL)
	assert.Equal(t, "file", cfg.Bag.Store)
	assert.Equal(t, "/tmp/bags", cfg.Bag.Dir)
	assert.Equal(t, 280, cfg.Suggestions.MaxLength)
	assert.False(t, cfg.LinkPreview.Enabled)
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Setenv("BAG_STORE", "redis")
	_, err := Load("")
	assert.Error(t, err)
}

func TestValidateShortSecret(t *testing.T) {
	cfg := Default()
	cfg.JWTSecret = "short"
	assert.Error(t, cfg.Validate())
}

func TestOpenDBMigrates(t *testing.T) {
	db, err := OpenDB(":memory:")
	require.NoError(t, err)

	for _, table := range []string{"users", "menu_items", "orders", "status_histories", "notifications", "suggestions", "bags"} {
		assert.True(t, db.Migrator().HasTable(table), table)
	}
}
