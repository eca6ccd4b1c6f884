// Package grpcapi exposes the ingestion pipeline as a unary gRPC service that
// carries reports as google.protobuf.Struct, mirroring the HTTP body.
package grpcapi

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/goccy/go-json"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"uas-ingest/internal/ingest"
	"uas-ingest/internal/pipeline"
)

const (
	ServiceName  = "uasingest.v1.IngestService"
	ReportMethod = "/" + ServiceName + "/Report"

	transportGRPC = "grpc"
)

type Ingester interface {
	Ingest(ctx context.Context, transport string, r pipeline.Report) (ingest.Result, error)
}

// IngestServer is the server API for the IngestService service.
type IngestServer interface {
	Report(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*IngestServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Report", Handler: reportHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "uasingest/v1/ingest.proto",
}

func RegisterIngestServer(s grpc.ServiceRegistrar, srv IngestServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func reportHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(IngestServer).Report(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ReportMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(IngestServer).Report(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

type Service struct {
	ingester Ingester
	logger   *slog.Logger
}

func NewService(ingester Ingester, logger *slog.Logger) *Service {
	return &Service{ingester: ingester, logger: logger.With("component", "grpc")}
}

// Report runs one report through the pipeline. Stored and dropped reports
// return OK with the reply body; rejections and store failures return a
// status whose details carry the same body.
func (s *Service) Report(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	res, err := s.ingester.Ingest(ctx, transportGRPC, pipeline.ParseReport(in.AsMap()))
	if err != nil {
		s.logger.Error("ingest failed", "error", err)
	}
	reply := ingest.Classify(res, err)

	body, convErr := toStruct(reply.Body)
	if convErr != nil {
		s.logger.Error("encode reply failed", "error", convErr)
		return nil, status.Error(codes.Internal, "Internal error")
	}

	code := statusCode(reply.Status)
	if code == codes.OK {
		return body, nil
	}
	st, detErr := status.New(code, errorMessage(body)).WithDetails(body)
	if detErr != nil {
		return nil, status.Error(code, errorMessage(body))
	}
	return nil, st.Err()
}

func statusCode(httpStatus int) codes.Code {
	switch httpStatus {
	case http.StatusOK, http.StatusAccepted:
		return codes.OK
	case http.StatusForbidden:
		return codes.PermissionDenied
	case http.StatusBadRequest:
		return codes.InvalidArgument
	}
	return codes.Internal
}

func errorMessage(body *structpb.Struct) string {
	if v, ok := body.GetFields()["error"]; ok {
		return v.GetStringValue()
	}
	return "Internal error"
}

func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal reply: %w", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("unmarshal reply: %w", err)
	}
	return structpb.NewStruct(fields)
}
