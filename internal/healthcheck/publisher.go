// Package healthcheck exposes acquisition readiness over the standard gRPC
// health protocol so supervisors can wait for a stabilised depth image.
package healthcheck

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/banshee-data/sandtable/internal/monitoring"
	"github.com/banshee-data/sandtable/internal/timeutil"
)

// ServiceName is the health service reporting acquisition readiness.
const ServiceName = "sandtable.Acquisition"

// Source reports acquisition state; *pipeline.Grabber implements it.
type Source interface {
	IsRunning() bool
	IsImageStabilized() bool
}

// Publisher serves grpc.health.v1.Health.
type Publisher struct {
	addr     string
	server   *grpc.Server
	health   *health.Server
	listener net.Listener
	running  atomic.Bool
	wg       sync.WaitGroup
}

// NewPublisher creates a publisher for addr. ServiceName starts as
// NOT_SERVING.
func NewPublisher(addr string) *Publisher {
	h := health.NewServer()
	h.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return &Publisher{addr: addr, health: h}
}

// Start binds the listener and serves in the background.
func (p *Publisher) Start() error {
	if p.running.Load() {
		return fmt.Errorf("health publisher already running")
	}
	lis, err := net.Listen("tcp", p.addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	p.listener = lis
	p.server = grpc.NewServer()
	healthpb.RegisterHealthServer(p.server, p.health)
	p.running.Store(true)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		monitoring.Logf("[health] gRPC health server listening on %s", lis.Addr())
		if err := p.server.Serve(lis); err != nil && p.running.Load() {
			monitoring.Logf("[health] gRPC server error: %v", err)
		}
	}()
	return nil
}

// Addr returns the bound address, or the configured one before Start.
func (p *Publisher) Addr() string {
	if p.listener != nil {
		return p.listener.Addr().String()
	}
	return p.addr
}

// SetReady flips ServiceName between SERVING and NOT_SERVING.
func (p *Publisher) SetReady(ready bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if ready {
		status = healthpb.HealthCheckResponse_SERVING
	}
	p.health.SetServingStatus(ServiceName, status)
}

// Status returns the current status of service, as a client would see it.
func (p *Publisher) Status(ctx context.Context, service string) (healthpb.HealthCheckResponse_ServingStatus, error) {
	resp, err := p.health.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, err
	}
	return resp.GetStatus(), nil
}

// Watch polls src every interval and mirrors its readiness until ctx is
// cancelled. A nil clock uses real time.
func (p *Publisher) Watch(ctx context.Context, src Source, clock timeutil.Clock, interval time.Duration) {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	ticker := clock.NewTicker(interval)
	defer ticker.Stop()

	ready := false
	update := func() {
		now := src.IsRunning() && src.IsImageStabilized()
		if now != ready {
			ready = now
			p.SetReady(ready)
			monitoring.Logf("[health] acquisition ready=%v", ready)
		}
	}
	update()
	for {
		select {
		case <-ctx.Done():
			p.SetReady(false)
			return
		case <-ticker.C():
			update()
		}
	}
}

// Stop marks every service NOT_SERVING and stops the server gracefully.
func (p *Publisher) Stop() {
	if !p.running.Swap(false) {
		return
	}
	p.health.Shutdown()
	p.server.GracefulStop()
	p.wg.Wait()
	monitoring.Logf("[health] gRPC health server stopped")
}
