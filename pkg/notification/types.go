package notification

import (
	"fmt"
	"time"

	"github.com/core-tools/hsu-watcher/pkg/watcher"
)

const (
	MinDisplaySeconds     = 0
	MaxDisplaySeconds     = 300
	DefaultDisplaySeconds = 30
)

// ActiveNotification is a notification currently shown to the user.
type ActiveNotification struct {
	ID                     string    `json:"id"`
	ServiceID              string    `json:"service_id"`
	DisplayName            string    `json:"display_name"`
	ShownAt                time.Time `json:"shown_at"`
	DisplayDurationSeconds int       `json:"display_duration_seconds"`
	AutoCloseEligible      bool      `json:"auto_close_eligible"`
}

// Acknowledgement is raised when a notification is dismissed, either by the
// user or by its auto-close timer.
type Acknowledgement struct {
	ServiceID      string    `json:"service_id"`
	NotificationID string    `json:"notification_id"`
	WasAutoClosed  bool      `json:"was_auto_closed"`
	At             time.Time `json:"at"`
}

type AckHandler func(Acknowledgement)

// Title and Body render the text of a stop notification.
func Title(transition watcher.StatusTransition) string {
	return fmt.Sprintf("Service stopped: %s", transition.DisplayName)
}

func Body(transition watcher.StatusTransition) string {
	return fmt.Sprintf("Service '%s' (%s) has stopped.\nPrevious status: %s\nCurrent status: %s\nDetected at: %s",
		transition.DisplayName,
		transition.ServiceID,
		transition.PreviousStatus,
		transition.CurrentStatus,
		transition.DetectedAt.Format("2006-01-02 15:04:05"),
	)
}
