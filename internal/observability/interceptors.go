// Package observability provides gRPC interceptors and the metrics server.
package observability

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"voice-task-service/internal/observability/metrics"
)

// UnaryServerInterceptor records latency by method and status code for every
// unary call.
func UnaryServerInterceptor(m *metrics.Metrics) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		observeRPC(ctx, m, info.FullMethod, "unary", start, err)
		return resp, err
	}
}

// StreamServerInterceptor records stream lifetimes. Health Watch is the only
// streaming RPC served.
func StreamServerInterceptor(m *metrics.Metrics) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()
		err := handler(srv, ss)
		observeRPC(ss.Context(), m, info.FullMethod, "stream", start, err)
		return err
	}
}

func observeRPC(ctx context.Context, m *metrics.Metrics, method, kind string, start time.Time, err error) {
	elapsed := time.Since(start)
	code := status.Code(err).String()
	m.RecordRPC(method, code, elapsed.Seconds())

	// Probes hit health checks constantly; keep them out of info logs.
	level := zerolog.InfoLevel
	if strings.HasPrefix(method, "/grpc.health.") && err == nil {
		level = zerolog.DebugLevel
	}

	ev := log.WithLevel(level).
		Str("method", method).
		Str("kind", kind).
		Str("code", code).
		Dur("duration", elapsed)
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		ev = ev.Str("peer", p.Addr.String())
	}
	ev.Msg("gRPC call completed")
}
