package control

import (
	"context"
	"sync"
	"time"

	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/core-tools/hsu-watcher/pkg/logging"
	"github.com/core-tools/hsu-watcher/pkg/watcher"
)

// OverallService is the health key that reports whether monitoring is active.
const OverallService = ""

// ServiceSource supplies the current monitoring snapshot.
type ServiceSource interface {
	Services() []watcher.WatchedService
	IsMonitoring() bool
}

// HealthBridge mirrors the watched services into a gRPC health server, one
// health key per service id.
type HealthBridge struct {
	server *health.Server
	source ServiceSource
	logger logging.Logger

	mutex sync.Mutex
	known map[string]bool
}

var _ watcher.Subscriber = (*HealthBridge)(nil)

func NewHealthBridge(source ServiceSource, logger logging.Logger) *HealthBridge {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &HealthBridge{
		server: health.NewServer(),
		source: source,
		logger: logger,
		known:  make(map[string]bool),
	}
}

// HealthServer is the implementation to register with a grpc.Server.
func (b *HealthBridge) HealthServer() healthpb.HealthServer {
	return b.server
}

func (b *HealthBridge) OnStatusChanged(transition watcher.StatusTransition) {
	b.Sync()
}

func (b *HealthBridge) OnMonitoringError(monitoringError watcher.MonitoringError) {
	b.Sync()
}

// Sync copies the whole snapshot into the health server. Services that left
// the set are reported as SERVICE_UNKNOWN.
func (b *HealthBridge) Sync() {
	services := b.source.Services()

	b.mutex.Lock()
	defer b.mutex.Unlock()

	overall := healthpb.HealthCheckResponse_NOT_SERVING
	if b.source.IsMonitoring() {
		overall = healthpb.HealthCheckResponse_SERVING
	}
	b.server.SetServingStatus(OverallService, overall)

	current := make(map[string]bool, len(services))
	for _, svc := range services {
		current[svc.ID] = true
		b.server.SetServingStatus(svc.ID, ServingStatus(svc))
	}
	for id := range b.known {
		if !current[id] {
			b.server.SetServingStatus(id, healthpb.HealthCheckResponse_SERVICE_UNKNOWN)
		}
	}
	b.known = current
}

// Run syncs every interval until ctx is done. Polls that change nothing
// visible as a transition, like the first observation or recovery from a
// query failure, are picked up here.
func (b *HealthBridge) Run(ctx context.Context, interval time.Duration) {
	b.Sync()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.Sync()
		}
	}
}

// Shutdown marks every key NOT_SERVING and ignores later updates.
func (b *HealthBridge) Shutdown() {
	b.logger.Infof("Shutting down health bridge")
	b.server.Shutdown()
}

// ServingStatus maps a watched service onto the health protocol.
func ServingStatus(svc watcher.WatchedService) healthpb.HealthCheckResponse_ServingStatus {
	if !svc.IsAvailable {
		return healthpb.HealthCheckResponse_SERVICE_UNKNOWN
	}
	switch svc.LastKnownStatus {
	case watcher.StatusRunning:
		return healthpb.HealthCheckResponse_SERVING
	case watcher.StatusUnknown:
		return healthpb.HealthCheckResponse_UNKNOWN
	}
	return healthpb.HealthCheckResponse_NOT_SERVING
}
