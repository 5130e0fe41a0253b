package grpc_control

import (
	"context"
	"fmt"
	"net"
	"time"

	"market-feed/src/helpers"
	"market-feed/src/logger"
	"market-feed/src/models"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
)

const stopTimeout = 5 * time.Second

// ControlService is the gRPC control plane: the standard health service for
// the feed plus reflection for grpcurl-style tooling.
type ControlService struct {
	Config *models.MConfig
	Logger *logger.Logger
	server *grpc.Server
	health *health.Server
}

// NewControlService creates a new instance of ControlService. The feed reports
// NOT_SERVING until SetServing(true).
func NewControlService(cfg *models.MConfig, log *logger.Logger) *ControlService {
	s := &ControlService{
		Config: cfg,
		Logger: log,
		health: health.NewServer(),
	}

	s.server = grpc.NewServer(grpc.UnaryInterceptor(s.logUnary))
	healthpb.RegisterHealthServer(s.server, s.health)
	reflection.Register(s.server)

	s.health.SetServingStatus(s.ServiceName(), healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

// -----------------------------------------------------------------------------

// ServiceName is the health-check service key, the configured app name.
func (s *ControlService) ServiceName() string {
	return s.Config.Name
}

// -----------------------------------------------------------------------------

// SetServing flips the feed's health status (and the server-wide "" entry).
func (s *ControlService) SetServing(serving bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(s.ServiceName(), st)
	s.health.SetServingStatus("", st)
}

// -----------------------------------------------------------------------------

// Start binds grpc_host:grpc_port and serves until ctx is cancelled.
func (s *ControlService) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.Config.GrpcHost, s.Config.GrpcPort)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return helpers.NewTransportError(fmt.Sprintf("failed to bind grpc %s", addr), err)
	}
	return s.Serve(ctx, ln)
}

// -----------------------------------------------------------------------------

func (s *ControlService) Serve(ctx context.Context, ln net.Listener) error {
	s.Logger.Info("gRPC control listening on %s", ln.Addr())

	errCh := make(chan error, 1)
	go func() { errCh <- s.server.Serve(ln) }()

	select {
	case <-ctx.Done():
		s.health.Shutdown()

		stopped := make(chan struct{})
		go func() {
			s.server.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-time.After(stopTimeout):
			s.server.Stop()
		}
		return nil

	case err := <-errCh:
		if err != nil {
			return helpers.NewTransportError("grpc server failed", err)
		}
		return nil
	}
}

// -----------------------------------------------------------------------------

func (s *ControlService) logUnary(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	if err != nil {
		s.Logger.Warning("gRPC %s failed in %v: %v", info.FullMethod, time.Since(start), status.Convert(err).Message())
	} else {
		s.Logger.Debug("gRPC %s served in %v", info.FullMethod, time.Since(start))
	}
	return resp, err
}
