// Package health exposes the standard gRPC health checking service so
// orchestrators that only speak gRPC probes can watch the API.
package health

import (
	"fmt"
	"net"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health service name reported for the HTTP API.
const ServiceName = "attendease.api"

// Server wraps a gRPC server carrying only the health service.
type Server struct {
	grpc   *grpc.Server
	health *grpchealth.Server
	logger *zap.Logger
}

// NewServer builds the server with every service reported as NOT_SERVING.
func NewServer(logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	srv := grpc.NewServer()
	hs := grpchealth.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return &Server{grpc: srv, health: hs, logger: logger}
}

// SetServing flips the overall and API status.
func (s *Server) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

// ListenAndServe listens on the port and serves in the background.
func (s *Server) ListenAndServe(port int) (net.Addr, error) {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("listen grpc health: %w", err)
	}
	go s.Serve(lis)
	return lis.Addr(), nil
}

// Serve blocks serving on the listener.
func (s *Server) Serve(lis net.Listener) {
	s.logger.Info("grpc health listening", zap.String("addr", lis.Addr().String()))
	if err := s.grpc.Serve(lis); err != nil && err != grpc.ErrServerStopped {
		s.logger.Error("grpc health server", zap.Error(err))
	}
}

// Stop marks the service as shutting down and stops the server.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}
