// Package runner assembles the monitoring engine, the notification
// dispatcher and the optional history journal and health endpoint from a
// configuration store.
package runner

import (
	"context"
	"net"
	"sync"

	"github.com/core-tools/hsu-watcher/pkg/config"
	"github.com/core-tools/hsu-watcher/pkg/control"
	"github.com/core-tools/hsu-watcher/pkg/errors"
	"github.com/core-tools/hsu-watcher/pkg/history"
	"github.com/core-tools/hsu-watcher/pkg/logging"
	"github.com/core-tools/hsu-watcher/pkg/notification"
	"github.com/core-tools/hsu-watcher/pkg/statusprovider"
	"github.com/core-tools/hsu-watcher/pkg/watcher"
)

const desktopAppName = "HSU Watcher"

type Options struct {
	// Provider defaults to the platform service manager.
	Provider watcher.StatusProvider

	// Presenter defaults to logging, plus desktop notifications when the
	// configuration enables them.
	Presenter notification.Presenter

	Logger logging.Logger
}

// Watcher owns every running component and routes configuration changes to
// them.
type Watcher struct {
	store      *config.FileStore
	engine     *watcher.Engine
	dispatcher *notification.Dispatcher
	bridge     *notification.Bridge
	journal    *history.Journal
	health     *control.HealthBridge
	server     *control.Server
	logger     logging.Logger

	mutex           sync.Mutex
	ctx             context.Context
	autoStart       bool
	runningInterval int
	cancelHealth    context.CancelFunc
	wg              sync.WaitGroup
}

// NewWatcher builds the components for the store's current configuration,
// loading it first if needed. Nothing is started.
func NewWatcher(ctx context.Context, store *config.FileStore, options Options) (*Watcher, error) {
	logger := options.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	cfg := store.Current()
	if cfg == nil {
		var err error
		if cfg, err = store.Load(); err != nil {
			return nil, err
		}
	}

	provider := options.Provider
	if provider == nil {
		provider = statusprovider.New(logging.WithPrefix(logger, "provider: "))
	}

	engine, err := watcher.NewEngine(provider, watcher.EngineOptions{
		IntervalSeconds:      cfg.Monitoring.IntervalSeconds,
		QueryTimeout:         cfg.Monitoring.QueryTimeout,
		MaxConcurrentQueries: cfg.Monitoring.MaxConcurrentQueries,
		Store:                store,
		Logger:               logging.WithPrefix(logger, "engine: "),
	})
	if err != nil {
		return nil, err
	}
	if err := engine.ApplyConfig(cfg.WatchConfig()); err != nil {
		engine.Close()
		return nil, err
	}

	presenter := options.Presenter
	if presenter == nil {
		presenter = newPresenter(cfg, logger)
	}
	notificationLogger := logging.WithPrefix(logger, "notification: ")
	dispatcher := notification.NewDispatcher(presenter, notification.DispatcherOptions{Logger: notificationLogger})
	bridge := notification.NewBridge(dispatcher, cfg.Notifications.DisplaySeconds(), notificationLogger)
	engine.Subscribe(bridge)

	w := &Watcher{
		store:      store,
		engine:     engine,
		dispatcher: dispatcher,
		bridge:     bridge,
		logger:     logger,
		ctx:        ctx,
		autoStart:  cfg.Monitoring.AutoStart,
	}

	if cfg.History.Path != "" {
		journal, err := history.Open(ctx, cfg.History.Path, history.Options{
			Retention: cfg.History.Retention,
			Logger:    logging.WithPrefix(logger, "history: "),
		})
		if err != nil {
			w.Close()
			return nil, err
		}
		w.journal = journal
		engine.Subscribe(journal)
		dispatcher.OnAcknowledged(journal.OnAcknowledged)
	}

	if cfg.Control.GRPCPort != 0 {
		controlLogger := logging.WithPrefix(logger, "control: ")
		w.health = control.NewHealthBridge(engine, controlLogger)
		engine.Subscribe(w.health)
		w.server = control.NewServer(cfg.Control.GRPCPort, w.health, controlLogger)
	}

	store.OnChanged(w.applyConfig)
	return w, nil
}

func newPresenter(cfg *config.Config, logger logging.Logger) notification.Presenter {
	logPresenter := notification.NewLogPresenter(logging.WithPrefix(logger, "notification: "))
	if !cfg.Notifications.Desktop {
		return logPresenter
	}
	return notification.MultiPresenter{
		logPresenter,
		notification.NewDesktopPresenter(desktopAppName, logger),
	}
}

func (w *Watcher) Engine() *watcher.Engine {
	return w.engine
}

func (w *Watcher) Dispatcher() *notification.Dispatcher {
	return w.dispatcher
}

// Journal returns nil when history is disabled.
func (w *Watcher) Journal() *history.Journal {
	return w.journal
}

// ControlPort returns the port of the running health endpoint, or 0.
func (w *Watcher) ControlPort() int {
	if w.server == nil {
		return 0
	}
	if addr, ok := w.server.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return 0
}

// Start brings up the health endpoint and, when auto_start is set, begins
// monitoring. An empty service list leaves monitoring idle until the
// configuration gains a service.
func (w *Watcher) Start(ctx context.Context) error {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	w.ctx = ctx

	if w.server != nil {
		if err := w.server.Start(ctx); err != nil {
			return err
		}
		healthCtx, cancel := context.WithCancel(ctx)
		w.cancelHealth = cancel
		interval := w.engine.Interval()
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.health.Run(healthCtx, interval)
		}()
	}

	if !w.autoStart {
		w.logger.Infof("Auto start disabled, monitoring is idle")
		return nil
	}
	return w.startMonitoringLocked()
}

func (w *Watcher) startMonitoringLocked() error {
	err := w.engine.Start(w.ctx)
	switch {
	case err == nil:
		w.runningInterval = int(w.engine.Interval().Seconds())
		return nil
	case errors.IsNoServicesConfiguredError(err):
		w.logger.Warnf("No services configured, monitoring is idle")
		return nil
	default:
		return err
	}
}

// applyConfig follows a saved, reloaded or restored configuration. A running
// engine is restarted only when the interval changed.
func (w *Watcher) applyConfig(cfg *config.Config) {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	if err := w.engine.ApplyConfig(cfg.WatchConfig()); err != nil {
		w.logger.Errorf("Failed to apply configuration change: %v", err)
		return
	}
	w.bridge.SetDisplaySeconds(cfg.Notifications.DisplaySeconds())
	w.autoStart = cfg.Monitoring.AutoStart

	if w.engine.IsMonitoring() {
		if cfg.Monitoring.IntervalSeconds == w.runningInterval {
			return
		}
		if err := w.engine.UpdateInterval(cfg.Monitoring.IntervalSeconds); err != nil {
			w.logger.Errorf("Failed to apply new interval: %v", err)
			return
		}
		w.runningInterval = cfg.Monitoring.IntervalSeconds
		return
	}

	if w.autoStart && w.ctx != nil {
		if err := w.startMonitoringLocked(); err != nil {
			w.logger.Errorf("Failed to start monitoring after configuration change: %v", err)
		}
	}
}

// Close stops everything and flushes pending events to the journal.
func (w *Watcher) Close() {
	w.mutex.Lock()
	cancelHealth := w.cancelHealth
	w.cancelHealth = nil
	w.mutex.Unlock()

	if cancelHealth != nil {
		cancelHealth()
	}
	w.wg.Wait()

	if w.server != nil {
		w.server.Stop()
	}
	if w.health != nil {
		w.health.Shutdown()
	}

	w.engine.Close()
	w.dispatcher.Close()

	if w.journal != nil {
		if err := w.journal.Close(); err != nil {
			w.logger.Warnf("Failed to close history journal: %v", err)
		}
	}
	w.logger.Infof("Watcher closed")
}
