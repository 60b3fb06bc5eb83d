package watcher

import (
	"fmt"
	"strings"
	"time"
)

// Status is the run state reported for an operating-system service.
type Status string

const (
	StatusUnknown         Status = "unknown"
	StatusStopped         Status = "stopped"
	StatusStartPending    Status = "start_pending"
	StatusStopPending     Status = "stop_pending"
	StatusRunning         Status = "running"
	StatusContinuePending Status = "continue_pending"
	StatusPausePending    Status = "pause_pending"
	StatusPaused          Status = "paused"
)

var allStatuses = []Status{
	StatusUnknown,
	StatusStopped,
	StatusStartPending,
	StatusStopPending,
	StatusRunning,
	StatusContinuePending,
	StatusPausePending,
	StatusPaused,
}

func (s Status) String() string {
	return string(s)
}

// IsValid reports whether s is one of the known statuses.
func (s Status) IsValid() bool {
	for _, known := range allStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// IsUp reports whether the service is running or on its way there.
func (s Status) IsUp() bool {
	switch s {
	case StatusRunning, StatusPaused, StatusStartPending, StatusContinuePending:
		return true
	}
	return false
}

// IsDown reports whether the service is stopped or stopping.
func (s Status) IsDown() bool {
	return s == StatusStopped || s == StatusStopPending
}

// ParseStatus accepts the canonical names as well as the CamelCase spelling
// used by the Windows service controller ("StartPending").
func ParseStatus(value string) (Status, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	normalized = strings.ReplaceAll(normalized, "-", "_")
	for _, known := range allStatuses {
		if normalized == string(known) || normalized == strings.ReplaceAll(string(known), "_", "") {
			return known, nil
		}
	}
	return StatusUnknown, fmt.Errorf("unknown service status: %q", value)
}

// WatchedService is one entry in the monitoring set.
type WatchedService struct {
	ID                  string    `json:"id" yaml:"name"`
	DisplayName         string    `json:"display_name" yaml:"display_name"`
	NotificationEnabled bool      `json:"notification_enabled" yaml:"notification_enabled"`
	LastKnownStatus     Status    `json:"last_known_status" yaml:"-"`
	LastCheckedAt       time.Time `json:"last_checked_at,omitempty" yaml:"-"`
	IsAvailable         bool      `json:"is_available" yaml:"-"`
	ErrorMessage        string    `json:"error_message,omitempty" yaml:"-"`
}

// NewWatchedService returns a service in its initial state.
func NewWatchedService(id, displayName string, notificationEnabled bool) WatchedService {
	return WatchedService{
		ID:                  id,
		DisplayName:         displayName,
		NotificationEnabled: notificationEnabled,
		LastKnownStatus:     StatusUnknown,
		IsAvailable:         true,
	}
}

// resetRuntimeState puts the service back into its never-polled state.
func (s *WatchedService) resetRuntimeState() {
	s.LastKnownStatus = StatusUnknown
	s.LastCheckedAt = time.Time{}
	s.IsAvailable = true
	s.ErrorMessage = ""
}

// HasBeenChecked reports whether at least one poll has completed for the service.
func (s WatchedService) HasBeenChecked() bool {
	return !s.LastCheckedAt.IsZero()
}

// StatusTransition is a change in run status between two consecutive polls.
type StatusTransition struct {
	ServiceID           string    `json:"service_id"`
	DisplayName         string    `json:"display_name"`
	PreviousStatus      Status    `json:"previous_status"`
	CurrentStatus       Status    `json:"current_status"`
	DetectedAt          time.Time `json:"detected_at"`
	NotificationEnabled bool      `json:"notification_enabled"`
	NotificationShown   bool      `json:"notification_shown"`
}

// IsStopEvent reports whether a service that was up went down. This is the
// only kind of transition that triggers a user notification.
func (t StatusTransition) IsStopEvent() bool {
	return t.PreviousStatus.IsUp() && t.CurrentStatus.IsDown()
}

func (t StatusTransition) String() string {
	return fmt.Sprintf("%s: %s -> %s", t.ServiceID, t.PreviousStatus, t.CurrentStatus)
}

// ErrorCause classifies why a status query failed.
type ErrorCause string

const (
	CauseNotFound     ErrorCause = "not_found"
	CauseAccessDenied ErrorCause = "access_denied"
	CauseUnexpected   ErrorCause = "unexpected"
)

// Description is the human-readable prefix used in service error messages.
func (c ErrorCause) Description() string {
	switch c {
	case CauseNotFound:
		return "Service not found"
	case CauseAccessDenied:
		return "Access denied"
	default:
		return "Unexpected error"
	}
}

// MonitoringError reports a failed status query for one service.
type MonitoringError struct {
	ServiceID  string     `json:"service_id"`
	Message    string     `json:"message"`
	Cause      ErrorCause `json:"cause"`
	Err        error      `json:"-"`
	OccurredAt time.Time  `json:"occurred_at"`
}

func (e MonitoringError) Error() string {
	return fmt.Sprintf("service %s: %s", e.ServiceID, e.Message)
}

func (e MonitoringError) Unwrap() error {
	return e.Err
}

// WatchConfig is the part of the durable configuration the engine consumes.
type WatchConfig struct {
	IntervalSeconds int
	Services        []WatchedService
}
