package health

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"

	"github.com/ehsaniara/ovdbridge/internal/bridge/printer"
	"github.com/ehsaniara/ovdbridge/pkg/constants"
	"github.com/ehsaniara/ovdbridge/pkg/logger"
)

// ServiceName is the overall service reported while the bridge runs.
const ServiceName = "ovdbridge"

// PrinterService is the health service name of one printer.
func PrinterService(name string) string {
	return "printer/" + name
}

// Service serves the gRPC health protocol on a unix socket. It doubles as
// the printer status reporter of the print channel.
type Service struct {
	socketPath string
	logger     *logger.Logger
	health     *grpchealth.Server

	mu       sync.Mutex
	server   *grpc.Server
	listener net.Listener
}

func New(socketPath string, log *logger.Logger) *Service {
	if log == nil {
		log = logger.New()
	}
	hs := grpchealth.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	return &Service{
		socketPath: socketPath,
		logger:     log.WithField("component", "health"),
		health:     hs,
	}
}

// SetPrinterStatus maps a device state onto its health service.
func (s *Service) SetPrinterStatus(name string, state printer.DeviceState) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if state == printer.DeviceReady {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(PrinterService(name), status)
	s.logger.Debug("printer status", "printer", name, "state", state.String(), "status", status.String())
}

// Check answers a health query without going through the socket.
func (s *Service) Check(ctx context.Context, service string) (healthpb.HealthCheckResponse_ServingStatus, error) {
	resp, err := s.health.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, err
	}
	return resp.GetStatus(), nil
}

func (s *Service) Start() error {
	if err := os.MkdirAll(filepath.Dir(s.socketPath), constants.DirMode); err != nil {
		return fmt.Errorf("failed to create socket directory: %w", err)
	}
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	if err := os.Chmod(s.socketPath, constants.SocketMode); err != nil {
		_ = listener.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	server := grpc.NewServer(
		grpc.ConnectionTimeout(10*time.Second),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             15 * time.Second,
			PermitWithoutStream: true,
		}),
	)
	healthpb.RegisterHealthServer(server, s.health)

	s.mu.Lock()
	s.server = server
	s.listener = listener
	s.mu.Unlock()

	go func() {
		s.logger.Info("starting health server", "socket", s.socketPath)
		if err := server.Serve(listener); err != nil {
			s.logger.Error("health server stopped with error", "error", err)
		} else {
			s.logger.Info("health server stopped gracefully")
		}
	}()
	return nil
}

// Stop marks every service NOT_SERVING and stops the server.
func (s *Service) Stop() {
	s.health.Shutdown()

	s.mu.Lock()
	server := s.server
	s.server = nil
	s.mu.Unlock()
	if server == nil {
		return
	}
	done := make(chan struct{})
	go func() {
		server.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		// open Watch streams never finish on their own
		server.Stop()
	}
	_ = os.Remove(s.socketPath)
}
