package notification

import (
	"sync/atomic"

	"github.com/core-tools/hsu-watcher/pkg/logging"
	"github.com/core-tools/hsu-watcher/pkg/watcher"
)

// Bridge subscribes to the monitoring engine and shows a notification for
// every stop of a service that has notifications enabled.
type Bridge struct {
	dispatcher     *Dispatcher
	displaySeconds atomic.Int64
	logger         logging.Logger
}

var _ watcher.Subscriber = (*Bridge)(nil)

func NewBridge(dispatcher *Dispatcher, displaySeconds int, logger logging.Logger) *Bridge {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	b := &Bridge{
		dispatcher: dispatcher,
		logger:     logger,
	}
	b.displaySeconds.Store(int64(displaySeconds))
	return b
}

// SetDisplaySeconds changes the display time used for later notifications.
func (b *Bridge) SetDisplaySeconds(seconds int) {
	b.displaySeconds.Store(int64(seconds))
}

func (b *Bridge) OnStatusChanged(transition watcher.StatusTransition) {
	if !transition.IsStopEvent() || !transition.NotificationEnabled {
		return
	}
	if err := b.dispatcher.Show(&transition, int(b.displaySeconds.Load())); err != nil {
		b.logger.Errorf("Failed to show notification, service: %s, error: %v", transition.ServiceID, err)
	}
}

func (b *Bridge) OnMonitoringError(monitoringError watcher.MonitoringError) {}
