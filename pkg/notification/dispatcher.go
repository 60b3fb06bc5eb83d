// Package notification presents stop notifications to the user and tracks
// their acknowledgement. At most one notification per service is active at a
// time; repeated stop events for the same service are absorbed until the
// active one is acknowledged.
package notification

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/core-tools/hsu-watcher/pkg/errors"
	"github.com/core-tools/hsu-watcher/pkg/events"
	"github.com/core-tools/hsu-watcher/pkg/logging"
	"github.com/core-tools/hsu-watcher/pkg/watcher"
)

type DispatcherOptions struct {
	Logger logging.Logger
	Now    func() time.Time
}

type trackedNotification struct {
	notification ActiveNotification
	timer        *time.Timer
}

type Dispatcher struct {
	presenter Presenter
	logger    logging.Logger
	now       func() time.Time

	mutex  sync.Mutex
	active map[string]*trackedNotification
	closed bool

	handlersMutex sync.RWMutex
	handlers      []AckHandler
	queue         *events.Queue
}

func NewDispatcher(presenter Presenter, options DispatcherOptions) *Dispatcher {
	logger := options.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if presenter == nil {
		presenter = NewLogPresenter(logger)
	}
	now := options.Now
	if now == nil {
		now = time.Now
	}

	return &Dispatcher{
		presenter: presenter,
		logger:    logger,
		now:       now,
		active:    make(map[string]*trackedNotification),
		queue:     events.NewQueue("notification", logger),
	}
}

// OnAcknowledged registers a handler for acknowledgement events. Handlers run
// on the dispatcher's event goroutine.
func (d *Dispatcher) OnAcknowledged(handler AckHandler) {
	if handler == nil {
		return
	}
	d.handlersMutex.Lock()
	d.handlers = append(d.handlers, handler)
	d.handlersMutex.Unlock()
}

// Show presents a notification for transition. When one is already active
// for the service nothing happens and nil is returned; the active
// notification keeps its original auto-close deadline. A displaySeconds of
// zero means the notification stays until acknowledged.
func (d *Dispatcher) Show(transition *watcher.StatusTransition, displaySeconds int) error {
	if transition == nil {
		return errors.NewValidationError("status transition cannot be nil", nil)
	}
	if displaySeconds < MinDisplaySeconds || displaySeconds > MaxDisplaySeconds {
		return errors.NewOutOfRangeError(
			fmt.Sprintf("display time must be between %d and %d seconds", MinDisplaySeconds, MaxDisplaySeconds),
		).WithContext("display_seconds", displaySeconds)
	}

	key := strings.ToLower(transition.ServiceID)

	d.mutex.Lock()
	if d.closed {
		d.mutex.Unlock()
		return errors.NewInternalError("notification dispatcher is closed", nil)
	}
	if _, exists := d.active[key]; exists {
		d.mutex.Unlock()
		d.logger.Debugf("Notification already displayed, service: %s", transition.ServiceID)
		return nil
	}

	notification := ActiveNotification{
		ID:                     uuid.New().String(),
		ServiceID:              transition.ServiceID,
		DisplayName:            transition.DisplayName,
		ShownAt:                d.now(),
		DisplayDurationSeconds: displaySeconds,
		AutoCloseEligible:      displaySeconds > 0,
	}
	tracked := &trackedNotification{notification: notification}
	if notification.AutoCloseEligible {
		id := notification.ID
		tracked.timer = time.AfterFunc(time.Duration(displaySeconds)*time.Second, func() {
			d.acknowledge(key, id, true)
		})
	}
	d.active[key] = tracked
	d.mutex.Unlock()

	transition.NotificationShown = true

	if err := d.presenter.Present(notification, *transition); err != nil {
		d.logger.Errorf("Failed to present notification, service: %s, error: %v", transition.ServiceID, err)
	}
	d.logger.Infof("Showed notification, service: %s, from: %s, to: %s", transition.ServiceID, transition.PreviousStatus, transition.CurrentStatus)
	return nil
}

// Acknowledge dismisses the notification for serviceID. It returns false
// when no notification is active for that service.
func (d *Dispatcher) Acknowledge(serviceID string, wasAutoClosed bool) bool {
	return d.acknowledge(strings.ToLower(serviceID), "", wasAutoClosed)
}

// CloseAll acknowledges every active notification as user-closed and
// returns how many there were.
func (d *Dispatcher) CloseAll() int {
	d.mutex.Lock()
	keys := make([]string, 0, len(d.active))
	for key := range d.active {
		keys = append(keys, key)
	}
	d.mutex.Unlock()

	closed := 0
	for _, key := range keys {
		if d.acknowledge(key, "", false) {
			closed++
		}
	}
	if closed > 0 {
		d.logger.Infof("Closed all notifications, count: %d", closed)
	}
	return closed
}

func (d *Dispatcher) ActiveCount() int {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return len(d.active)
}

// ListActive returns the active notifications, oldest first.
func (d *Dispatcher) ListActive() []ActiveNotification {
	d.mutex.Lock()
	list := make([]ActiveNotification, 0, len(d.active))
	for _, tracked := range d.active {
		list = append(list, tracked.notification)
	}
	d.mutex.Unlock()

	sort.Slice(list, func(i, j int) bool {
		if list[i].ShownAt.Equal(list[j].ShownAt) {
			return list[i].ServiceID < list[j].ServiceID
		}
		return list[i].ShownAt.Before(list[j].ShownAt)
	})
	return list
}

// Close dismisses everything still shown, stops accepting notifications and
// delivers pending acknowledgement events.
func (d *Dispatcher) Close() {
	d.CloseAll()

	d.mutex.Lock()
	d.closed = true
	d.mutex.Unlock()

	d.queue.Close()
}

// acknowledge removes the entry under key. A non-empty id restricts the
// removal to that notification, so a stale timer cannot close a newer one.
func (d *Dispatcher) acknowledge(key, id string, wasAutoClosed bool) bool {
	d.mutex.Lock()
	tracked, exists := d.active[key]
	if !exists || (id != "" && tracked.notification.ID != id) {
		d.mutex.Unlock()
		return false
	}
	delete(d.active, key)
	if tracked.timer != nil {
		tracked.timer.Stop()
	}
	d.mutex.Unlock()

	notification := tracked.notification
	if err := d.presenter.Dismiss(notification); err != nil {
		d.logger.Warnf("Failed to dismiss notification, service: %s, error: %v", notification.ServiceID, err)
	}

	ack := Acknowledgement{
		ServiceID:      notification.ServiceID,
		NotificationID: notification.ID,
		WasAutoClosed:  wasAutoClosed,
		At:             d.now(),
	}
	d.logger.Infof("Notification acknowledged, service: %s, auto_closed: %t", ack.ServiceID, ack.WasAutoClosed)
	d.emit(ack)
	return true
}

func (d *Dispatcher) emit(ack Acknowledgement) {
	d.handlersMutex.RLock()
	handlers := make([]AckHandler, len(d.handlers))
	copy(handlers, d.handlers)
	d.handlersMutex.RUnlock()

	if len(handlers) == 0 {
		return
	}
	d.queue.Enqueue(func() {
		for _, handler := range handlers {
			d.deliver(handler, ack)
		}
	})
}

func (d *Dispatcher) deliver(handler AckHandler, ack Acknowledgement) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Errorf("Acknowledgement handler panicked: %v", r)
		}
	}()
	handler(ack)
}
