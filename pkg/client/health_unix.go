package client

import (
	"context"
	"fmt"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

// HealthClient queries the bridge's health service over its unix socket.
type HealthClient struct {
	health healthpb.HealthClient
	conn   *grpc.ClientConn
}

// NewHealthClientUnix connects to the health service at socketPath. The
// connection is established lazily on the first call.
func NewHealthClientUnix(socketPath string) (*HealthClient, error) {
	dialer := func(ctx context.Context, _ string) (net.Conn, error) {
		var d net.Dialer
		d.Timeout = 5 * time.Second
		return d.DialContext(ctx, "unix", socketPath)
	}

	conn, err := grpc.NewClient(
		"passthrough:///unix",
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithContextDialer(dialer),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to health socket %s: %w", socketPath, err)
	}

	return &HealthClient{health: healthpb.NewHealthClient(conn), conn: conn}, nil
}

func (c *HealthClient) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Check returns the serving status of service. An unknown service is
// reported as SERVICE_UNKNOWN rather than an error.
func (c *HealthClient) Check(ctx context.Context, service string) (healthpb.HealthCheckResponse_ServingStatus, error) {
	resp, err := c.health.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		if s, ok := status.FromError(err); ok && s.Code() == codes.NotFound {
			return healthpb.HealthCheckResponse_SERVICE_UNKNOWN, nil
		}
		return healthpb.HealthCheckResponse_UNKNOWN, fmt.Errorf("health check %q failed: %w", service, err)
	}
	return resp.GetStatus(), nil
}
