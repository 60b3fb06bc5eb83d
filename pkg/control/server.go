package control

import (
	"context"
	"fmt"
	"net"

	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/core-tools/hsu-watcher/pkg/errors"
	"github.com/core-tools/hsu-watcher/pkg/logging"
)

// RegisterGRPCServerHandler exposes the bridge's health service on registrar.
func RegisterGRPCServerHandler(registrar grpc.ServiceRegistrar, bridge *HealthBridge) {
	healthpb.RegisterHealthServer(registrar, bridge.HealthServer())
}

// Server serves the health bridge over gRPC.
type Server struct {
	port       int
	grpcServer *grpc.Server
	listener   net.Listener
	logger     logging.Logger
	done       chan error
}

func NewServer(port int, bridge *HealthBridge, logger logging.Logger) *Server {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	grpcServer := grpc.NewServer()
	RegisterGRPCServerHandler(grpcServer, bridge)
	return &Server{
		port:       port,
		grpcServer: grpcServer,
		logger:     logger,
	}
}

// Start listens on the configured port and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return errors.NewIOError("failed to listen", err).WithContext("port", s.port)
	}
	return s.Serve(listener)
}

// Serve serves on an existing listener in the background.
func (s *Server) Serve(listener net.Listener) error {
	s.listener = listener
	s.done = make(chan error, 1)
	s.logger.Infof("gRPC health server listening, address: %s", listener.Addr())

	go func() {
		s.done <- s.grpcServer.Serve(listener)
	}()
	return nil
}

// Addr returns the listening address once started.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop drains in-flight calls and stops serving.
func (s *Server) Stop() {
	if s.done == nil {
		return
	}
	s.logger.Infof("Stopping gRPC health server")
	s.grpcServer.GracefulStop()
	if err := <-s.done; err != nil && err != grpc.ErrServerStopped {
		s.logger.Warnf("gRPC health server exited: %v", err)
	}
	s.done = nil
}
