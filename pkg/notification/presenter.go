package notification

import (
	"go.uber.org/multierr"

	"github.com/core-tools/hsu-watcher/pkg/logging"
	"github.com/core-tools/hsu-watcher/pkg/watcher"
)

// Presenter puts notifications in front of the user.
type Presenter interface {
	Present(notification ActiveNotification, transition watcher.StatusTransition) error
	Dismiss(notification ActiveNotification) error
}

// LogPresenter writes notifications to the log. Used for headless runs.
type LogPresenter struct {
	logger logging.Logger
}

func NewLogPresenter(logger logging.Logger) *LogPresenter {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &LogPresenter{logger: logger}
}

func (p *LogPresenter) Present(notification ActiveNotification, transition watcher.StatusTransition) error {
	p.logger.Warnf("NOTIFICATION %s, service: %s, from: %s, to: %s, detected: %s, display: %ds",
		Title(transition),
		transition.ServiceID,
		transition.PreviousStatus,
		transition.CurrentStatus,
		transition.DetectedAt.Format("2006-01-02 15:04:05"),
		notification.DisplayDurationSeconds,
	)
	return nil
}

func (p *LogPresenter) Dismiss(notification ActiveNotification) error {
	p.logger.Debugf("Notification dismissed, service: %s, id: %s", notification.ServiceID, notification.ID)
	return nil
}

// MultiPresenter fans out to several presenters. Every presenter is tried;
// failures are combined.
type MultiPresenter []Presenter

func (m MultiPresenter) Present(notification ActiveNotification, transition watcher.StatusTransition) error {
	var err error
	for _, p := range m {
		err = multierr.Append(err, p.Present(notification, transition))
	}
	return err
}

func (m MultiPresenter) Dismiss(notification ActiveNotification) error {
	var err error
	for _, p := range m {
		err = multierr.Append(err, p.Dismiss(notification))
	}
	return err
}
