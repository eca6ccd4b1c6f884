// Package grpcclient is the feeder side of the gRPC ingest service.
package grpcclient

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"

	"uas-ingest/internal/grpcapi"
)

const sendTimeout = 5 * time.Second

type GRPCClient struct {
	conn *grpc.ClientConn
}

func NewGRPCClient(addr string, opts ...grpc.DialOption) (*GRPCClient, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpc client %s: %w", addr, err)
	}
	return &GRPCClient{conn: conn}, nil
}

func (g *GRPCClient) Close() error {
	return g.conn.Close()
}

func (g *GRPCClient) Conn() *grpc.ClientConn { return g.conn }

// SendReport submits one report. Rejections come back as gRPC status errors
// whose details carry the reply body; use status.FromError to inspect them.
func (g *GRPCClient) SendReport(ctx context.Context, report map[string]any) (*structpb.Struct, error) {
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	req, err := structpb.NewStruct(report)
	if err != nil {
		return nil, fmt.Errorf("encode report: %w", err)
	}
	if id, ok := report["objectId"]; ok {
		ctx = metadata.AppendToOutgoingContext(ctx, "x-request-id", fmt.Sprintf("%v-%d", id, time.Now().UnixNano()))
	}

	res := new(structpb.Struct)
	if err := g.conn.Invoke(ctx, grpcapi.ReportMethod, req, res); err != nil {
		return nil, err
	}
	return res, nil
}
