package rpc

import (
	"context"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"

	"github.com/cuemby/warren/pkg/metrics"
)

// loggingInterceptor logs every unary call's method, duration, and
// outcome. Grounded on the teacher's ReadOnlyInterceptor (a closure
// over a single grpc.UnaryServerInterceptor) without that interceptor's
// read-only/write method split, which has no analogue on this
// single-tenant daemon's RPC surface.
func loggingInterceptor(log zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		timer := metrics.NewTimer()
		resp, err := handler(ctx, req)
		timer.ObserveDurationVec(metrics.RPCRequestDuration, info.FullMethod)

		outcome := "ok"
		ev := log.Debug()
		if err != nil {
			outcome = "error"
			ev = log.Warn().Err(err)
		}
		metrics.RPCRequestsTotal.WithLabelValues(info.FullMethod, outcome).Inc()
		ev.Str("method", info.FullMethod).Dur("elapsed", timer.Duration()).Msg("rpc handled")
		return resp, err
	}
}
