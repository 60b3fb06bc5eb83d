package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/core-tools/hsu-watcher/pkg/notification"
	"github.com/core-tools/hsu-watcher/pkg/watcher"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	journal, err := Open(context.Background(), filepath.Join(t.TempDir(), "history.db"), Options{})
	require.NoError(t, err)
	t.Cleanup(func() { journal.Close() })
	return journal
}

func TestJournal_RecordsSubscriberEvents(t *testing.T) {
	journal := openTestJournal(t)
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	journal.OnStatusChanged(watcher.StatusTransition{
		ServiceID:      "wuauserv",
		DisplayName:    "Windows Update",
		PreviousStatus: watcher.StatusRunning,
		CurrentStatus:  watcher.StatusStopped,
		DetectedAt:     base,
	})
	journal.OnMonitoringError(watcher.MonitoringError{
		ServiceID:  "spooler",
		Message:    "Access denied: open service",
		Cause:      watcher.CauseAccessDenied,
		OccurredAt: base.Add(time.Second),
	})
	journal.OnAcknowledged(notification.Acknowledgement{
		ServiceID:     "wuauserv",
		WasAutoClosed: true,
		At:            base.Add(2 * time.Second),
	})

	entries, err := journal.Recent(context.Background(), Query{})
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, KindAcknowledged, entries[0].Kind)
	assert.True(t, entries[0].AutoClosed)

	assert.Equal(t, KindMonitoringError, entries[1].Kind)
	assert.Equal(t, "access_denied", entries[1].Cause)
	assert.Equal(t, "Access denied: open service", entries[1].Message)

	assert.Equal(t, KindStatusChanged, entries[2].Kind)
	assert.Equal(t, watcher.StatusRunning, entries[2].PreviousStatus)
	assert.Equal(t, watcher.StatusStopped, entries[2].CurrentStatus)
	assert.True(t, base.Equal(entries[2].At))
}

func TestJournal_RecentFilters(t *testing.T) {
	journal := openTestJournal(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	for i, id := range []string{"alpha", "beta", "Alpha", "alpha"} {
		require.NoError(t, journal.Record(ctx, Entry{
			Kind:      KindStatusChanged,
			ServiceID: id,
			At:        base.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, journal.Record(ctx, Entry{Kind: KindMonitoringError, ServiceID: "alpha", At: base.Add(time.Hour)}))

	entries, err := journal.Recent(ctx, Query{ServiceID: "ALPHA"})
	require.NoError(t, err)
	assert.Len(t, entries, 4)

	entries, err = journal.Recent(ctx, Query{ServiceID: "alpha", Kind: KindStatusChanged})
	require.NoError(t, err)
	assert.Len(t, entries, 3)

	entries, err = journal.Recent(ctx, Query{Since: base.Add(2 * time.Minute)})
	require.NoError(t, err)
	assert.Len(t, entries, 3)

	entries, err = journal.Recent(ctx, Query{Limit: 2})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, KindMonitoringError, entries[0].Kind)
}

func TestJournal_Prune(t *testing.T) {
	journal := openTestJournal(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, journal.Record(ctx, Entry{Kind: KindStatusChanged, ServiceID: "old", At: now.Add(-48 * time.Hour)}))
	require.NoError(t, journal.Record(ctx, Entry{Kind: KindStatusChanged, ServiceID: "new", At: now}))

	removed, err := journal.Prune(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	entries, err := journal.Recent(ctx, Query{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "new", entries[0].ServiceID)
}

func TestJournal_RetentionAppliedOnOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "history.db")
	ctx := context.Background()

	journal, err := Open(ctx, path, Options{})
	require.NoError(t, err)
	require.NoError(t, journal.Record(ctx, Entry{Kind: KindStatusChanged, ServiceID: "stale", At: time.Now().Add(-72 * time.Hour)}))
	require.NoError(t, journal.Record(ctx, Entry{Kind: KindStatusChanged, ServiceID: "fresh"}))
	require.NoError(t, journal.Close())

	reopened, err := Open(ctx, path, Options{Retention: 24 * time.Hour})
	require.NoError(t, err)
	defer reopened.Close()

	entries, err := reopened.Recent(ctx, Query{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "fresh", entries[0].ServiceID)
}

func TestJournal_EngineIntegration(t *testing.T) {
	journal := openTestJournal(t)

	status := watcher.StatusRunning
	provider := watcher.StatusProviderFunc(func(ctx context.Context, serviceID string) (watcher.Status, error) {
		return status, nil
	})
	engine, err := watcher.NewEngine(provider, watcher.EngineOptions{IntervalSeconds: watcher.MaxIntervalSeconds})
	require.NoError(t, err)
	engine.Subscribe(journal)

	require.NoError(t, engine.AddService(watcher.NewWatchedService("cron", "Cron", true)))
	require.NoError(t, engine.Start(context.Background()))
	require.NoError(t, engine.Stop())

	status = watcher.StatusStopped
	require.NoError(t, engine.Start(context.Background()))
	engine.Close()

	entries, err := journal.Recent(context.Background(), Query{ServiceID: "cron"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, watcher.StatusStopped, entries[0].CurrentStatus)
}
