package handler

import (
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/gelchrist-coder/gel-invent/internal/core/event"
)

// SyncServiceName is the health-checked service; "" mirrors it.
const SyncServiceName = "pos.offline.SyncService"

// HealthReporter publishes connectivity as gRPC health: SERVING while the
// terminal can reach the backend, NOT_SERVING while it works offline.
type HealthReporter struct {
	server *health.Server
}

func NewHealthReporter() *HealthReporter {
	return &HealthReporter{server: health.NewServer()}
}

func (h *HealthReporter) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, h.server)
}

// Watch sets the initial status and follows connectivity events.
func (h *HealthReporter) Watch(bus *event.Bus, online bool) func() {
	h.set(online)
	offOnline := bus.Subscribe(event.TopicOnline, func(event.Event) { h.set(true) })
	offOffline := bus.Subscribe(event.TopicOffline, func(event.Event) { h.set(false) })
	return func() {
		offOnline()
		offOffline()
	}
}

// Shutdown marks every service NOT_SERVING ahead of GracefulStop.
func (h *HealthReporter) Shutdown() {
	h.server.Shutdown()
}

func (h *HealthReporter) set(online bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if online {
		status = healthpb.HealthCheckResponse_SERVING
	}
	h.server.SetServingStatus("", status)
	h.server.SetServingStatus(SyncServiceName, status)
}
