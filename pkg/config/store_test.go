package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/core-tools/hsu-watcher/pkg/errors"
)

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	return NewFileStore(filepath.Join(t.TempDir(), "config.yaml"), nil)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestFileStore_BackupPath(t *testing.T) {
	store := NewFileStore(filepath.Join("dir", "config.yaml"), nil)
	assert.Equal(t, filepath.Join("dir", "config.backup.yaml"), store.BackupPath())
}

func TestFileStore_LoadMissingCreatesDefault(t *testing.T) {
	store := newTestStore(t)
	assert.False(t, store.Exists())

	config, err := store.Load()
	require.NoError(t, err)
	assert.True(t, store.Exists())
	assert.Equal(t, DefaultConfig().Services, config.Services)
	assert.NotNil(t, store.Current())
}

func TestFileStore_SaveAndLoad(t *testing.T) {
	store := newTestStore(t)

	config := DefaultConfig()
	config.Monitoring.IntervalSeconds = 42
	config.Services = append(config.Services, ServiceConfig{Name: "sshd", DisplayName: "OpenSSH"})
	require.NoError(t, store.Save(config))

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, 42, loaded.Monitoring.IntervalSeconds)
	require.Len(t, loaded.Services, 2)
	assert.Equal(t, "OpenSSH", loaded.Services[1].DisplayName)
}

func TestFileStore_SaveKeepsBackupOfPreviousVersion(t *testing.T) {
	store := newTestStore(t)

	first := DefaultConfig()
	first.Monitoring.IntervalSeconds = 10
	require.NoError(t, store.Save(first))
	_, err := os.Stat(store.BackupPath())
	assert.True(t, os.IsNotExist(err), "first save has nothing to back up")

	second := DefaultConfig()
	second.Monitoring.IntervalSeconds = 20
	require.NoError(t, store.Save(second))

	backup, err := LoadConfigFromFile(store.BackupPath())
	require.NoError(t, err)
	assert.Equal(t, 10, backup.Monitoring.IntervalSeconds)
}

func TestFileStore_SaveRejectsInvalid(t *testing.T) {
	store := newTestStore(t)

	config := DefaultConfig()
	config.Monitoring.IntervalSeconds = 0
	err := store.Save(config)
	require.Error(t, err)
	assert.True(t, errors.IsValidationError(err))
	assert.False(t, store.Exists())
}

func TestFileStore_CorruptFileFallsBackToBackup(t *testing.T) {
	store := newTestStore(t)

	good := DefaultConfig()
	good.Monitoring.IntervalSeconds = 77
	require.NoError(t, store.Save(good))
	require.NoError(t, store.Save(DefaultConfig()))

	writeFile(t, store.Path(), "monitoring: [broken")

	config, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, 77, config.Monitoring.IntervalSeconds)
}

func TestFileStore_InvalidFileWithoutBackupCreatesDefault(t *testing.T) {
	store := newTestStore(t)
	writeFile(t, store.Path(), "monitoring:\n  interval_seconds: 9999\nservices:\n  - name: x\n")

	config, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Monitoring.IntervalSeconds, config.Monitoring.IntervalSeconds)

	reloaded, err := LoadConfigFromFile(store.Path())
	require.NoError(t, err)
	assert.NoError(t, ValidateConfig(reloaded))
}

func TestFileStore_RestoreFromBackup(t *testing.T) {
	store := newTestStore(t)

	err := store.RestoreFromBackup()
	require.Error(t, err)
	assert.True(t, errors.IsNotFoundError(err))

	first := DefaultConfig()
	first.Monitoring.IntervalSeconds = 11
	require.NoError(t, store.Save(first))
	second := DefaultConfig()
	second.Monitoring.IntervalSeconds = 22
	require.NoError(t, store.Save(second))

	var changed []int
	store.OnChanged(func(config *Config) {
		changed = append(changed, config.Monitoring.IntervalSeconds)
	})

	require.NoError(t, store.RestoreFromBackup())
	assert.Equal(t, []int{11}, changed)
	assert.Equal(t, 11, store.Current().Monitoring.IntervalSeconds)

	onDisk, err := LoadConfigFromFile(store.Path())
	require.NoError(t, err)
	assert.Equal(t, 11, onDisk.Monitoring.IntervalSeconds)
}

func TestFileStore_RestoreRejectsInvalidBackup(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Save(DefaultConfig()))
	writeFile(t, store.BackupPath(), "monitoring:\n  interval_seconds: -3\n")

	err := store.RestoreFromBackup()
	require.Error(t, err)
	assert.True(t, errors.IsValidationError(err))
}

func TestFileStore_ReloadNotifies(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Save(DefaultConfig()))

	calls := 0
	store.OnChanged(func(*Config) { calls++ })

	_, err := store.Reload()
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestFileStore_LoadWatchConfig(t *testing.T) {
	store := newTestStore(t)
	config := DefaultConfig()
	config.Monitoring.IntervalSeconds = 60
	require.NoError(t, store.Save(config))

	watch, err := store.LoadWatchConfig(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 60, watch.IntervalSeconds)
	require.Len(t, watch.Services, 1)
	assert.Equal(t, config.Services[0].Name, watch.Services[0].ID)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = store.LoadWatchConfig(ctx)
	assert.True(t, errors.IsCancelledError(err))
}

func TestFileStore_CurrentIsACopy(t *testing.T) {
	store := newTestStore(t)
	assert.Nil(t, store.Current())
	require.NoError(t, store.Save(DefaultConfig()))

	current := store.Current()
	current.Monitoring.IntervalSeconds = 1234
	assert.NotEqual(t, 1234, store.Current().Monitoring.IntervalSeconds)
}
