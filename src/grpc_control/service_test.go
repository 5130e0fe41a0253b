package grpc_control

import (
	"context"
	"net"
	"testing"
	"time"

	"market-feed/src/config"
	"market-feed/src/logger"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func startControl(t *testing.T) (*ControlService, healthpb.HealthClient) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	cfg := config.Default()
	svc := NewControlService(cfg.MConfig, logger.NewLogger("ERROR", "test"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx, ln) }()

	conn, err := grpc.NewClient(ln.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	t.Cleanup(func() {
		conn.Close()
		cancel()
		<-done
	})
	return svc, healthpb.NewHealthClient(conn)
}

func check(t *testing.T, client healthpb.HealthClient, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		t.Fatalf("Check(%q): %v", service, err)
	}
	return resp.GetStatus()
}

func TestHealth_ServingTransitions(t *testing.T) {
	svc, client := startControl(t)

	if got := check(t, client, svc.ServiceName()); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("initial status = %v, want NOT_SERVING", got)
	}

	svc.SetServing(true)
	if got := check(t, client, svc.ServiceName()); got != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("status = %v, want SERVING", got)
	}
	if got := check(t, client, ""); got != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("server status = %v, want SERVING", got)
	}

	svc.SetServing(false)
	if got := check(t, client, svc.ServiceName()); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("status = %v, want NOT_SERVING", got)
	}
}

func TestServiceName(t *testing.T) {
	cfg := config.Default()
	cfg.Name = "grain-feed"
	svc := NewControlService(cfg.MConfig, logger.NewLogger("ERROR", "test"))
	if svc.ServiceName() != "grain-feed" {
		t.Errorf("ServiceName = %q", svc.ServiceName())
	}
}
