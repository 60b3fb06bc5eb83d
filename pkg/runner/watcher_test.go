package runner

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/core-tools/hsu-watcher/pkg/config"
	"github.com/core-tools/hsu-watcher/pkg/history"
	"github.com/core-tools/hsu-watcher/pkg/notification"
	"github.com/core-tools/hsu-watcher/pkg/processfile"
	"github.com/core-tools/hsu-watcher/pkg/statusprovider"
	"github.com/core-tools/hsu-watcher/pkg/watcher"
)

func newTestStore(t *testing.T, mutate func(cfg *config.Config)) *config.FileStore {
	t.Helper()

	store := config.NewFileStore(filepath.Join(t.TempDir(), "config.yaml"), nil)
	cfg := config.DefaultConfig()
	cfg.Monitoring.IntervalSeconds = 1
	cfg.Monitoring.AutoStart = true
	cfg.Services = []config.ServiceConfig{{Name: "svc", DisplayName: "Svc"}}
	if mutate != nil {
		mutate(cfg)
	}
	require.NoError(t, store.Save(cfg))
	return store
}

func newTestWatcher(t *testing.T, store *config.FileStore, provider watcher.StatusProvider) *Watcher {
	t.Helper()

	w, err := NewWatcher(context.Background(), store, Options{
		Provider:  provider,
		Presenter: notification.NewLogPresenter(nil),
	})
	require.NoError(t, err)
	t.Cleanup(w.Close)
	return w
}

func TestWatcher_StopEventIsNotifiedAndJournaled(t *testing.T) {
	historyPath := filepath.Join(t.TempDir(), "history.db")
	store := newTestStore(t, func(cfg *config.Config) {
		cfg.History.Path = historyPath
	})
	provider := statusprovider.NewStatic(map[string]watcher.Status{"svc": watcher.StatusRunning})

	w := newTestWatcher(t, store, provider)
	require.NotNil(t, w.Journal())
	require.NoError(t, w.Start(context.Background()))
	assert.True(t, w.Engine().IsMonitoring())
	assert.Equal(t, 0, w.Dispatcher().ActiveCount())

	provider.Set("svc", watcher.StatusStopped)
	require.Eventually(t, func() bool { return w.Dispatcher().ActiveCount() == 1 }, 5*time.Second, 20*time.Millisecond)
	require.True(t, w.Dispatcher().Acknowledge("svc", false))

	require.Eventually(t, func() bool {
		entries, err := w.Journal().Recent(context.Background(), history.Query{ServiceID: "svc"})
		return err == nil && len(entries) == 2
	}, 5*time.Second, 20*time.Millisecond)

	entries, err := w.Journal().Recent(context.Background(), history.Query{Kind: history.KindStatusChanged})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, watcher.StatusRunning, entries[0].PreviousStatus)
	assert.Equal(t, watcher.StatusStopped, entries[0].CurrentStatus)
}

func TestWatcher_AutoStartDisabled(t *testing.T) {
	store := newTestStore(t, func(cfg *config.Config) {
		cfg.Monitoring.AutoStart = false
	})
	w := newTestWatcher(t, store, statusprovider.NewStatic(nil))

	require.NoError(t, w.Start(context.Background()))
	assert.False(t, w.Engine().IsMonitoring())
	assert.Len(t, w.Engine().Services(), 1)
}

func TestWatcher_EmptyServiceListStaysIdleUntilConfigured(t *testing.T) {
	store := newTestStore(t, func(cfg *config.Config) {
		cfg.Services = nil
	})
	provider := statusprovider.NewStatic(map[string]watcher.Status{"later": watcher.StatusRunning})
	w := newTestWatcher(t, store, provider)

	require.NoError(t, w.Start(context.Background()))
	assert.False(t, w.Engine().IsMonitoring())

	cfg := store.Current()
	cfg.Services = []config.ServiceConfig{{Name: "later", DisplayName: "Later"}}
	require.NoError(t, store.Save(cfg))

	assert.True(t, w.Engine().IsMonitoring())
	svc, err := w.Engine().Service("later")
	require.NoError(t, err)
	assert.Equal(t, watcher.StatusRunning, svc.LastKnownStatus)
}

func TestWatcher_ConfigChangeIsApplied(t *testing.T) {
	store := newTestStore(t, nil)
	provider := statusprovider.NewStatic(map[string]watcher.Status{
		"svc":   watcher.StatusRunning,
		"other": watcher.StatusStopped,
	})
	w := newTestWatcher(t, store, provider)
	require.NoError(t, w.Start(context.Background()))

	cfg := store.Current()
	cfg.Services = append(cfg.Services, config.ServiceConfig{Name: "other", DisplayName: "Other"})
	cfg.Monitoring.IntervalSeconds = 2
	require.NoError(t, store.Save(cfg))

	assert.Len(t, w.Engine().Services(), 2)
	assert.Equal(t, 2*time.Second, w.Engine().Interval())
	assert.True(t, w.Engine().IsMonitoring())

	// The restart polls right away, so the new service has a baseline.
	svc, err := w.Engine().Service("other")
	require.NoError(t, err)
	assert.Equal(t, watcher.StatusStopped, svc.LastKnownStatus)
	assert.Equal(t, 0, w.Dispatcher().ActiveCount())
}

func TestWatcher_InvalidConfigChangeIsIgnored(t *testing.T) {
	store := newTestStore(t, nil)
	w := newTestWatcher(t, store, statusprovider.NewStatic(nil))

	cfg := store.Current()
	cfg.Services = append(cfg.Services, config.ServiceConfig{Name: "SVC"})
	assert.Error(t, store.Save(cfg))

	assert.Len(t, w.Engine().Services(), 1)
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(config.LoggingConfig{Level: "debug", Format: "json", Output: filepath.Join(t.TempDir(), "watcher.log")})
	require.NoError(t, err)
	logger.Infof("hello")
	require.NoError(t, logger.Sync())

	_, err = NewLogger(config.LoggingConfig{Level: "loud"})
	assert.Error(t, err)
}

func TestValidateConfigFile(t *testing.T) {
	store := newTestStore(t, nil)
	assert.NoError(t, ValidateConfigFile(store.Path()))

	invalid := filepath.Join(t.TempDir(), "invalid.yaml")
	require.NoError(t, os.WriteFile(invalid, []byte("monitoring:\n  interval_seconds: 0\nservices:\n  - name: a\n  - name: A\n"), 0644))
	assert.Error(t, ValidateConfigFile(invalid))

	assert.Error(t, ValidateConfigFile(filepath.Join(t.TempDir(), "missing.yaml")))
}

func TestRun_StopsAfterRunDuration(t *testing.T) {
	store := newTestStore(t, func(cfg *config.Config) {
		cfg.Monitoring.AutoStart = false
		cfg.Logging.Output = "stderr"
	})

	runtimeFiles := processfile.NewProcessFileManager(processfile.ProcessFileConfig{BaseDirectory: t.TempDir()}, nil)

	stopped := make(chan struct{})
	go func() {
		assert.NoError(t, Run(RunOptions{ConfigFile: store.Path(), RunDuration: 2, RuntimeFiles: runtimeFiles, Stopped: stopped}))
	}()

	require.Eventually(t, func() bool {
		pid, err := runtimeFiles.ReadPIDFile(processfile.DefaultInstanceName)
		return err == nil && pid == os.Getpid()
	}, 5*time.Second, 20*time.Millisecond)

	select {
	case <-stopped:
	case <-time.After(10 * time.Second):
		t.Fatal("runner did not stop")
	}

	_, err := runtimeFiles.ReadPIDFile(processfile.DefaultInstanceName)
	assert.Error(t, err, "PID file is removed on exit")
}
