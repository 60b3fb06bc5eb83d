package watcher

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/core-tools/hsu-watcher/pkg/errors"
	"github.com/core-tools/hsu-watcher/pkg/events"
	"github.com/core-tools/hsu-watcher/pkg/logging"
)

const (
	DefaultQueryTimeout         = 10 * time.Second
	DefaultMaxConcurrentQueries = 8
)

type EngineOptions struct {
	// IntervalSeconds defaults to DefaultIntervalSeconds when zero.
	IntervalSeconds int

	// QueryTimeout bounds a single provider call. Zero selects the default,
	// a negative value disables the bound.
	QueryTimeout time.Duration

	MaxConcurrentQueries int

	// Store is consulted by RefreshFromStore. Optional.
	Store ConfigStore

	Logger logging.Logger

	// Now is the clock used for check and detection times.
	Now func() time.Time
}

// Engine polls the watched services and reports status transitions and
// query failures to its subscribers.
type Engine struct {
	provider      StatusProvider
	store         ConfigStore
	logger        logging.Logger
	now           func() time.Time
	queryTimeout  time.Duration
	maxConcurrent int

	services        *serviceSet
	intervalSeconds atomic.Int64
	active          atomic.Bool

	lifecycleMutex sync.Mutex
	startCtx       context.Context
	cancel         context.CancelFunc
	wg             sync.WaitGroup
	closed         bool

	subscribersMutex sync.RWMutex
	subscribers      []Subscriber
	queue            *events.Queue
}

func NewEngine(provider StatusProvider, options EngineOptions) (*Engine, error) {
	if provider == nil {
		return nil, errors.NewValidationError("status provider is required", nil)
	}

	interval := options.IntervalSeconds
	if interval == 0 {
		interval = DefaultIntervalSeconds
	}
	if err := ValidateInterval(interval); err != nil {
		return nil, err
	}

	queryTimeout := options.QueryTimeout
	if queryTimeout == 0 {
		queryTimeout = DefaultQueryTimeout
	}
	maxConcurrent := options.MaxConcurrentQueries
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentQueries
	}
	now := options.Now
	if now == nil {
		now = time.Now
	}
	logger := options.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	e := &Engine{
		provider:      provider,
		store:         options.Store,
		logger:        logger,
		now:           now,
		queryTimeout:  queryTimeout,
		maxConcurrent: maxConcurrent,
		services:      newServiceSet(),
		queue:         events.NewQueue("watcher", logger),
	}
	e.intervalSeconds.Store(int64(interval))
	return e, nil
}

// AddService appends svc to the monitoring set in its never-polled state.
func (e *Engine) AddService(svc WatchedService) error {
	if err := e.services.add(svc); err != nil {
		e.logger.Warnf("Cannot add service, id: %s, error: %v", svc.ID, err)
		return err
	}
	e.logger.Infof("Service added, id: %s, name: %s", svc.ID, svc.DisplayName)
	return nil
}

// RemoveService drops a service from the set in either state.
func (e *Engine) RemoveService(id string) error {
	if err := e.services.remove(id); err != nil {
		return err
	}
	e.logger.Infof("Service removed, id: %s", id)
	return nil
}

// Services returns a copy of the monitoring set.
func (e *Engine) Services() []WatchedService {
	return e.services.snapshot()
}

func (e *Engine) Service(id string) (WatchedService, error) {
	svc, ok := e.services.get(id)
	if !ok {
		return WatchedService{}, errors.NewNotFoundError("service is not monitored", nil).WithContext("service_id", id)
	}
	return svc, nil
}

func (e *Engine) Interval() time.Duration {
	return time.Duration(e.intervalSeconds.Load()) * time.Second
}

func (e *Engine) IsMonitoring() bool {
	return e.active.Load()
}

// Subscribe registers s for all future events.
func (e *Engine) Subscribe(s Subscriber) {
	if s == nil {
		return
	}
	e.subscribersMutex.Lock()
	e.subscribers = append(e.subscribers, s)
	e.subscribersMutex.Unlock()
}

// Start polls every service once and then keeps polling on the configured
// interval until Stop. The context scopes the recurring poll; it is kept for
// restarts triggered by UpdateInterval.
func (e *Engine) Start(ctx context.Context) error {
	e.lifecycleMutex.Lock()
	defer e.lifecycleMutex.Unlock()

	return e.startLocked(ctx)
}

// Stop cancels the recurring poll and waits for an in-flight cycle.
func (e *Engine) Stop() error {
	e.lifecycleMutex.Lock()
	defer e.lifecycleMutex.Unlock()

	return e.stopLocked()
}

// UpdateInterval changes the polling interval. An active engine is restarted
// with the new interval under the context of the original Start.
func (e *Engine) UpdateInterval(seconds int) error {
	if err := ValidateInterval(seconds); err != nil {
		return err
	}

	e.lifecycleMutex.Lock()
	defer e.lifecycleMutex.Unlock()

	if !e.active.Load() {
		e.intervalSeconds.Store(int64(seconds))
		e.logger.Infof("Monitoring interval updated, interval: %ds", seconds)
		return nil
	}

	ctx := e.startCtx
	if err := e.stopLocked(); err != nil {
		return err
	}
	e.intervalSeconds.Store(int64(seconds))
	e.logger.Infof("Restarting monitoring with new interval, interval: %ds", seconds)
	return e.startLocked(ctx)
}

// RefreshFromStore replaces the monitoring set and the interval with what the
// store holds. A load failure is returned as is and nothing changes. The new
// interval takes effect at the next start.
func (e *Engine) RefreshFromStore(ctx context.Context) error {
	if e.store == nil {
		return nil
	}

	config, err := e.store.LoadWatchConfig(ctx)
	if err != nil {
		e.logger.Errorf("Failed to load monitoring configuration: %v", err)
		return err
	}
	return e.ApplyConfig(config)
}

// ApplyConfig replaces the monitoring set and the interval with config. The
// set is left untouched when any service in config is rejected. An interval
// outside the allowed range is ignored.
func (e *Engine) ApplyConfig(config WatchConfig) error {
	if err := e.services.replace(config.Services); err != nil {
		e.logger.Errorf("Loaded configuration rejected: %v", err)
		return err
	}

	if ValidateInterval(config.IntervalSeconds) == nil {
		e.intervalSeconds.Store(int64(config.IntervalSeconds))
	} else {
		e.logger.Warnf("Ignoring configured interval, interval: %d", config.IntervalSeconds)
	}

	e.logger.Infof("Monitoring configuration refreshed, services: %d, interval: %v", len(config.Services), e.Interval())
	return nil
}

// Close stops monitoring if needed and delivers pending events. The engine
// cannot be started again.
func (e *Engine) Close() {
	e.lifecycleMutex.Lock()
	if e.active.Load() {
		_ = e.stopLocked()
	}
	e.closed = true
	e.lifecycleMutex.Unlock()

	e.queue.Close()
}

func (e *Engine) startLocked(ctx context.Context) error {
	if e.closed {
		return errors.NewInternalError("engine is closed", nil)
	}
	if e.active.Load() {
		return errors.NewAlreadyActiveError("monitoring is already active")
	}
	if e.services.len() == 0 {
		return errors.NewNoServicesConfiguredError("no services configured for monitoring")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	runCtx, cancel := context.WithCancel(ctx)
	e.startCtx = ctx
	e.cancel = cancel
	e.active.Store(true)

	interval := e.Interval()
	e.logger.Infof("Starting monitoring, services: %d, interval: %v", e.services.len(), interval)

	e.pollOnce(runCtx)

	e.wg.Add(1)
	go e.loop(runCtx, interval)
	return nil
}

func (e *Engine) stopLocked() error {
	if !e.active.Load() {
		return errors.NewNotActiveError("monitoring is not active")
	}

	e.logger.Infof("Stopping monitoring")
	e.cancel()
	e.wg.Wait()
	e.cancel = nil
	e.active.Store(false)
	e.logger.Infof("Monitoring stopped")
	return nil
}

func (e *Engine) loop(ctx context.Context, interval time.Duration) {
	defer e.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Debugf("Poll loop exiting: %v", ctx.Err())
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			e.pollOnce(ctx)
		}
	}
}

// pollOnce runs one poll cycle. Queries are detached from ctx so that a stop
// never interrupts a cycle halfway; each one is bounded by the query timeout.
func (e *Engine) pollOnce(ctx context.Context) {
	targets := e.services.pollTargets()
	if len(targets) == 0 {
		return
	}

	queryCtx := context.WithoutCancel(ctx)

	var group errgroup.Group
	group.SetLimit(e.maxConcurrent)
	for _, target := range targets {
		target := target
		group.Go(func() error {
			status, err := e.query(queryCtx, target.service.ID)
			e.record(target, status, err)
			return nil
		})
	}
	_ = group.Wait()

	e.logger.Debugf("Poll cycle complete, services: %d", len(targets))
}

func (e *Engine) query(ctx context.Context, serviceID string) (status Status, err error) {
	if e.queryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.queryTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			status = StatusUnknown
			err = errors.NewUnexpectedError(fmt.Sprintf("status provider panicked: %v", r), nil)
		}
	}()

	status, err = e.provider.Query(ctx, serviceID)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded && !errors.IsNotFoundError(err) && !errors.IsPermissionError(err) {
			err = errors.NewTimeoutError("status query timed out", err)
		}
		return StatusUnknown, err
	}
	if !status.IsValid() {
		return StatusUnknown, errors.NewUnexpectedError("status provider returned an unknown status: "+string(status), nil)
	}
	return status, nil
}

func (e *Engine) record(target pollTarget, status Status, queryErr error) {
	at := e.now()
	id := target.service.ID

	if queryErr == nil {
		transition, present := e.services.recordStatus(target.entry, status, at)
		if !present {
			e.logger.Debugf("Dropping result for removed service, id: %s", id)
			return
		}
		if transition != nil {
			e.logger.Infof("Service status changed, id: %s, from: %s, to: %s", id, transition.PreviousStatus, transition.CurrentStatus)
			e.emitTransition(*transition)
		}
		return
	}

	cause := classifyCause(queryErr)
	message := fmt.Sprintf("%s: %s", cause.Description(), errorDetail(queryErr))
	if !e.services.recordFailure(target.entry, message, at) {
		e.logger.Debugf("Dropping failure for removed service, id: %s", id)
		return
	}

	e.logger.Warnf("Service status query failed, id: %s, cause: %s, error: %v", id, cause, queryErr)
	e.emitError(MonitoringError{
		ServiceID:  id,
		Message:    message,
		Cause:      cause,
		Err:        queryErr,
		OccurredAt: at,
	})
}

func classifyCause(err error) ErrorCause {
	switch {
	case errors.IsNotFoundError(err):
		return CauseNotFound
	case errors.IsPermissionError(err):
		return CauseAccessDenied
	default:
		return CauseUnexpected
	}
}

func errorDetail(err error) string {
	if domainErr, ok := err.(*errors.DomainError); ok {
		if domainErr.Cause != nil {
			return fmt.Sprintf("%s: %v", domainErr.Message, domainErr.Cause)
		}
		return domainErr.Message
	}
	return err.Error()
}

func (e *Engine) emitTransition(transition StatusTransition) {
	subscribers := e.subscriberSnapshot()
	e.queue.Enqueue(func() {
		for _, s := range subscribers {
			e.deliver(func() { s.OnStatusChanged(transition) })
		}
	})
}

func (e *Engine) emitError(monitoringError MonitoringError) {
	subscribers := e.subscriberSnapshot()
	e.queue.Enqueue(func() {
		for _, s := range subscribers {
			e.deliver(func() { s.OnMonitoringError(monitoringError) })
		}
	})
}

// deliver isolates subscribers from each other's panics.
func (e *Engine) deliver(call func()) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Errorf("Subscriber panicked: %v", r)
		}
	}()
	call()
}

func (e *Engine) subscriberSnapshot() []Subscriber {
	e.subscribersMutex.RLock()
	defer e.subscribersMutex.RUnlock()

	subscribers := make([]Subscriber, len(e.subscribers))
	copy(subscribers, e.subscribers)
	return subscribers
}
