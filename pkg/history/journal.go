// Package history keeps a SQLite journal of status transitions, query
// failures and notification acknowledgements.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/core-tools/hsu-watcher/pkg/errors"
	"github.com/core-tools/hsu-watcher/pkg/logging"
	"github.com/core-tools/hsu-watcher/pkg/notification"
	"github.com/core-tools/hsu-watcher/pkg/watcher"
)

type Kind string

const (
	KindStatusChanged   Kind = "status_changed"
	KindMonitoringError Kind = "monitoring_error"
	KindAcknowledged    Kind = "acknowledged"
)

const (
	defaultLimit = 100
	writeTimeout = 5 * time.Second
)

type Entry struct {
	ID             int64          `json:"id"`
	Kind           Kind           `json:"kind"`
	ServiceID      string         `json:"service_id"`
	PreviousStatus watcher.Status `json:"previous_status,omitempty"`
	CurrentStatus  watcher.Status `json:"current_status,omitempty"`
	Cause          string         `json:"cause,omitempty"`
	Message        string         `json:"message,omitempty"`
	AutoClosed     bool           `json:"auto_closed,omitempty"`
	At             time.Time      `json:"at"`
}

// Query filters Recent. Zero values mean no filter; Limit defaults to 100.
type Query struct {
	ServiceID string
	Kind      Kind
	Since     time.Time
	Limit     int
}

type Options struct {
	// Retention drops entries older than this on Open and Prune. Zero keeps
	// everything.
	Retention time.Duration
	Logger    logging.Logger
}

// Journal records engine and dispatcher events. It is a watcher.Subscriber
// and its OnAcknowledged method fits notification.AckHandler.
type Journal struct {
	db        *sql.DB
	retention time.Duration
	logger    logging.Logger
}

var _ watcher.Subscriber = (*Journal)(nil)

func connectSQLite(path string) (*sql.DB, error) {
	return sql.Open("sqlite", fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=500", path))
}

// Open creates the database file and schema if needed.
func Open(ctx context.Context, path string, options Options) (*Journal, error) {
	logger := options.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, errors.NewIOError("failed to create history directory", err).WithContext("path", path)
		}
	}

	db, err := connectSQLite(path)
	if err != nil {
		return nil, errors.NewIOError("failed to open history database", err).WithContext("path", path)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, ddl); err != nil {
		db.Close()
		return nil, errors.NewIOError("failed to initialize history schema", err).WithContext("path", path)
	}

	j := &Journal{db: db, retention: options.Retention, logger: logger}
	if j.retention > 0 {
		if _, err := j.Prune(ctx, time.Now().Add(-j.retention)); err != nil {
			logger.Warnf("Failed to prune history: %v", err)
		}
	}
	logger.Infof("History journal opened, path: %s", path)
	return j, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}

func (j *Journal) OnStatusChanged(transition watcher.StatusTransition) {
	j.recordAsync(Entry{
		Kind:           KindStatusChanged,
		ServiceID:      transition.ServiceID,
		PreviousStatus: transition.PreviousStatus,
		CurrentStatus:  transition.CurrentStatus,
		Message:        transition.String(),
		At:             transition.DetectedAt,
	})
}

func (j *Journal) OnMonitoringError(monitoringError watcher.MonitoringError) {
	j.recordAsync(Entry{
		Kind:      KindMonitoringError,
		ServiceID: monitoringError.ServiceID,
		Cause:     string(monitoringError.Cause),
		Message:   monitoringError.Message,
		At:        monitoringError.OccurredAt,
	})
}

func (j *Journal) OnAcknowledged(ack notification.Acknowledgement) {
	j.recordAsync(Entry{
		Kind:       KindAcknowledged,
		ServiceID:  ack.ServiceID,
		AutoClosed: ack.WasAutoClosed,
		At:         ack.At,
	})
}

// recordAsync is called from event callbacks, which have no context or error
// return; failures are logged.
func (j *Journal) recordAsync(entry Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := j.Record(ctx, entry); err != nil {
		j.logger.Errorf("Failed to record history entry, kind: %s, service: %s, error: %v", entry.Kind, entry.ServiceID, err)
	}
}

// Record appends one entry. A zero At is replaced with the current time.
func (j *Journal) Record(ctx context.Context, entry Entry) error {
	if entry.At.IsZero() {
		entry.At = time.Now()
	}
	_, err := j.db.ExecContext(ctx,
		`insert into events (kind, service_id, previous_status, current_status, cause, message, auto_closed, at)
values (?, ?, ?, ?, ?, ?, ?, ?)`,
		string(entry.Kind),
		entry.ServiceID,
		string(entry.PreviousStatus),
		string(entry.CurrentStatus),
		entry.Cause,
		entry.Message,
		entry.AutoClosed,
		entry.At.UnixNano(),
	)
	if err != nil {
		return errors.NewIOError("failed to insert history entry", err)
	}
	return nil
}

// Recent returns matching entries, newest first.
func (j *Journal) Recent(ctx context.Context, query Query) ([]Entry, error) {
	limit := query.Limit
	if limit <= 0 {
		limit = defaultLimit
	}

	var serviceID, kind sql.NullString
	if query.ServiceID != "" {
		serviceID = sql.NullString{String: query.ServiceID, Valid: true}
	}
	if query.Kind != "" {
		kind = sql.NullString{String: string(query.Kind), Valid: true}
	}
	var since sql.NullInt64
	if !query.Since.IsZero() {
		since = sql.NullInt64{Int64: query.Since.UnixNano(), Valid: true}
	}

	rows, err := j.db.QueryContext(ctx, `select id, kind, service_id, previous_status, current_status, cause, message, auto_closed, at
from events
where (service_id = ?1 collate nocase or ?1 is null)
  and (kind = ?2 or ?2 is null)
  and (at >= ?3 or ?3 is null)
order by at desc, id desc
limit ?4`, serviceID, kind, since, limit)
	if err != nil {
		return nil, errors.NewIOError("failed to query history", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var entry Entry
		var kindValue, previous, current string
		var at int64
		if err := rows.Scan(
			&entry.ID,
			&kindValue,
			&entry.ServiceID,
			&previous,
			&current,
			&entry.Cause,
			&entry.Message,
			&entry.AutoClosed,
			&at,
		); err != nil {
			return nil, errors.NewIOError("failed to read history row", err)
		}
		entry.Kind = Kind(kindValue)
		entry.PreviousStatus = watcher.Status(previous)
		entry.CurrentStatus = watcher.Status(current)
		entry.At = time.Unix(0, at)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewIOError("failed to read history", err)
	}
	return entries, nil
}

// Prune deletes entries recorded before the cutoff and returns how many.
func (j *Journal) Prune(ctx context.Context, before time.Time) (int64, error) {
	result, err := j.db.ExecContext(ctx, `delete from events where at < ?`, before.UnixNano())
	if err != nil {
		return 0, errors.NewIOError("failed to prune history", err)
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return 0, errors.NewIOError("failed to count pruned history", err)
	}
	if removed > 0 {
		j.logger.Infof("Pruned history, removed: %d", removed)
	}
	return removed, nil
}
