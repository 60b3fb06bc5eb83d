package control

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/core-tools/hsu-watcher/pkg/errors"
	"github.com/core-tools/hsu-watcher/pkg/logging"
)

// Dial connects to a running watcher's health endpoint.
func Dial(address string) (*grpc.ClientConn, error) {
	conn, err := grpc.Dial(address, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, errors.NewIOError("failed to connect to watcher", err).WithContext("address", address)
	}
	return conn, nil
}

// HealthGateway queries a remote watcher through the gRPC health protocol.
type HealthGateway struct {
	client healthpb.HealthClient
	logger logging.Logger
}

func NewGRPCClientGateway(conn grpc.ClientConnInterface, logger logging.Logger) *HealthGateway {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &HealthGateway{
		client: healthpb.NewHealthClient(conn),
		logger: logger,
	}
}

// Check returns the serving status of one service id, or of the watcher
// itself for OverallService.
func (gw *HealthGateway) Check(ctx context.Context, serviceID string) (healthpb.HealthCheckResponse_ServingStatus, error) {
	response, err := gw.client.Check(ctx, &healthpb.HealthCheckRequest{Service: serviceID})
	if err != nil {
		gw.logger.Errorf("Health check client gateway, service: %s, error: %v", serviceID, err)
		return healthpb.HealthCheckResponse_UNKNOWN, errors.NewIOError("health check failed", err).WithContext("service_id", serviceID)
	}
	gw.logger.Debugf("Health check client gateway done, service: %s, status: %s", serviceID, response.Status)
	return response.Status, nil
}

type RetryCheckOptions struct {
	RetryAttempts int
	RetryInterval time.Duration
}

// RetryCheck repeats Check until it succeeds, the attempts run out or ctx is
// done. It is used right after starting a watcher, before its listener is up.
func RetryCheck(ctx context.Context, gw *HealthGateway, serviceID string, options RetryCheckOptions) (healthpb.HealthCheckResponse_ServingStatus, error) {
	attempts := options.RetryAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		status, err := gw.Check(ctx, serviceID)
		if err == nil {
			return status, nil
		}
		lastErr = err
		gw.logger.Debugf("Health check attempt %d/%d failed: %v", attempt, attempts, err)

		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return healthpb.HealthCheckResponse_UNKNOWN, errors.NewCancelledError("health check cancelled", ctx.Err())
		case <-time.After(options.RetryInterval):
		}
	}
	return healthpb.HealthCheckResponse_UNKNOWN, lastErr
}
