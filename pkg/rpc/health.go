package rpc

import (
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// serviceName is both the ServiceDesc name and the name health checks
// are reported under; the empty string is the overall-server status
// grpc-health-probe defaults to when no service name is given.
const serviceName = "rpc.Agent"

func newHealthServer() *health.Server {
	h := health.NewServer()
	h.SetServingStatus(serviceName, healthpb.HealthCheckResponse_SERVING)
	h.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	return h
}
