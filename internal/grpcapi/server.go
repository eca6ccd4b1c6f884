package grpcapi

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
)

const requestIDMetadataKey = "x-request-id"

// NewServer builds a gRPC server with the ingest service, the standard health
// service and reflection registered.
func NewServer(svc IngestServer, logger *slog.Logger) *grpc.Server {
	server := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			LoggingUnaryServerInterceptor(logger),
		),
	)
	RegisterIngestServer(server, svc)

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(server, hs)

	reflection.Register(server)
	return server
}

// LoggingUnaryServerInterceptor logs every call with its method, status code,
// duration and the caller's request id when present.
func LoggingUnaryServerInterceptor(base *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		log := base.With("method", info.FullMethod)
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if vals := md.Get(requestIDMetadataKey); len(vals) > 0 {
				log = log.With("request_id", vals[0])
			}
		}

		resp, err := handler(ctx, req)
		log.Debug("grpc call", "code", status.Code(err).String(), "duration", time.Since(start))
		return resp, err
	}
}
