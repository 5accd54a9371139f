package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingIsEmpty(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, cfg.Tables)
	assert.Equal(t, DefaultLogMaxSizeMB, cfg.LogSettings().MaxSizeMB)
	assert.Equal(t, DefaultExpiryDays, cfg.AlertSettings().ExpiryDays)
	assert.Contains(t, cfg.WatchedTables(), "drugs")
}

func TestSetAndGet(t *testing.T) {
	dir := t.TempDir()

	require.NoError(t, Set(dir, "log.max_backups", "7"))
	require.NoError(t, Set(dir, "alerts.low_stock", "25"))
	require.NoError(t, Set(dir, "tables", "drugs, drug_batches"))

	v, err := Get(dir, "log.max_backups")
	require.NoError(t, err)
	assert.Equal(t, "7", v)

	v, err = Get(dir, "alerts.low_stock")
	require.NoError(t, err)
	assert.Equal(t, "25", v)

	v, err = Get(dir, "tables")
	require.NoError(t, err)
	assert.Equal(t, "drugs,drug_batches", v)

	require.NoError(t, Set(dir, "log.max_backups", ""))
	v, err = Get(dir, "log.max_backups")
	require.NoError(t, err)
	assert.Equal(t, "3", v, "empty value restores the default")

	_, err = os.Stat(filepath.Join(dir, configFile))
	assert.NoError(t, err)
}

func TestSetRejectsBadInput(t *testing.T) {
	dir := t.TempDir()

	err := Set(dir, "nope", "1")
	assert.True(t, errors.Is(err, ErrUnknownKey))

	_, err = Get(dir, "nope")
	assert.True(t, errors.Is(err, ErrUnknownKey))

	assert.Error(t, Set(dir, "log.max_size_mb", "big"))
	assert.Error(t, Set(dir, "alerts.expiry_days", "-1"))
	assert.Error(t, Set(dir, "tables", "drugs,patients"))
}

func TestSetTablesMustIncludeReferencedTables(t *testing.T) {
	dir := t.TempDir()

	err := Set(dir, "tables", "drug_batches")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "drugs")

	require.NoError(t, Set(dir, "tables", "drug_batches,drugs"))
	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"drug_batches", "drugs"}, cfg.WatchedTables())
}

func TestSaveIsAtomic(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Save(dir, &Config{Tables: []string{"roles"}}))

	entries, err := os.ReadDir(filepath.Join(dir, ".rxsync"))
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp")
	}

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"roles"}, cfg.WatchedTables())
}
