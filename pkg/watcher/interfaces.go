package watcher

import "context"

// StatusProvider asks the operating system for the run state of a service.
// Implementations must be safe for concurrent use and should classify
// failures with errors.NewNotFoundError / errors.NewPermissionError.
type StatusProvider interface {
	Query(ctx context.Context, serviceID string) (Status, error)
}

// StatusProviderFunc adapts a function to StatusProvider.
type StatusProviderFunc func(ctx context.Context, serviceID string) (Status, error)

func (f StatusProviderFunc) Query(ctx context.Context, serviceID string) (Status, error) {
	return f(ctx, serviceID)
}

// ConfigStore supplies the service set and interval at refresh points.
type ConfigStore interface {
	LoadWatchConfig(ctx context.Context) (WatchConfig, error)
}

// Subscriber receives engine events. Callbacks run on the engine's event
// goroutine, one at a time, in the order the events were detected.
type Subscriber interface {
	OnStatusChanged(transition StatusTransition)
	OnMonitoringError(monitoringError MonitoringError)
}

// SubscriberFuncs adapts optional callbacks to Subscriber.
type SubscriberFuncs struct {
	StatusChanged   func(StatusTransition)
	MonitoringError func(MonitoringError)
}

func (f SubscriberFuncs) OnStatusChanged(transition StatusTransition) {
	if f.StatusChanged != nil {
		f.StatusChanged(transition)
	}
}

func (f SubscriberFuncs) OnMonitoringError(monitoringError MonitoringError) {
	if f.MonitoringError != nil {
		f.MonitoringError(monitoringError)
	}
}
