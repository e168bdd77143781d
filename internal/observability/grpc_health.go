package observability

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// GRPCHealthServer serves grpc.health.v1 with statuses refreshed from readiness checks.
// The empty service name reflects the overall status; every check is also exposed
// under its own name.
type GRPCHealthServer struct {
	server   *grpc.Server
	health   *health.Server
	checks   map[string]HealthCheckFunc
	interval time.Duration
	logger   zerolog.Logger
}

// NewGRPCHealthServer creates a health server for the given checks
func NewGRPCHealthServer(checks map[string]HealthCheckFunc, interval time.Duration) *GRPCHealthServer {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	s := &GRPCHealthServer{
		server:   grpc.NewServer(),
		health:   health.NewServer(),
		checks:   checks,
		interval: interval,
		logger:   WithComponent("grpc_health"),
	}
	healthpb.RegisterHealthServer(s.server, s.health)
	return s
}

// Serve listens on the given port and blocks until ctx is done
func (s *GRPCHealthServer) Serve(ctx context.Context, port int) error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("grpc health listen: %w", err)
	}

	s.refresh(ctx)
	go s.refreshLoop(ctx)

	errCh := make(chan error, 1)
	go func() { errCh <- s.server.Serve(lis) }()
	s.logger.Info().Int("port", port).Msg("gRPC health service listening")

	select {
	case <-ctx.Done():
		s.health.Shutdown()
		s.server.GracefulStop()
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *GRPCHealthServer) refreshLoop(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.refresh(ctx)
		}
	}
}

func (s *GRPCHealthServer) refresh(ctx context.Context) {
	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	deps, allHealthy := RunChecks(checkCtx, s.checks)
	for name, dep := range deps {
		s.health.SetServingStatus(name, servingStatus(dep.Status == "healthy"))
	}
	s.health.SetServingStatus("", servingStatus(allHealthy))
}

func servingStatus(ok bool) healthpb.HealthCheckResponse_ServingStatus {
	if ok {
		return healthpb.HealthCheckResponse_SERVING
	}
	return healthpb.HealthCheckResponse_NOT_SERVING
}
