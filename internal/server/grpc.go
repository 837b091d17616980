package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/datalake-etl/constants"
	"github.com/joseph-ayodele/datalake-etl/internal/common"
	"github.com/joseph-ayodele/datalake-etl/internal/records"
)

const extractionServiceName = "datalake.v1.ExtractionService"

// ExtractionServiceServer is the server API of datalake.v1.ExtractionService.
// Requests are Structs carrying "dataset" and an optional "refresh" flag.
type ExtractionServiceServer interface {
	Extract(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Statistics(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Invalidate(context.Context, *structpb.Struct) (*emptypb.Empty, error)
}

func unaryHandler(method string, call func(ExtractionServiceServer, context.Context, *structpb.Struct) (any, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(ExtractionServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + extractionServiceName + "/" + method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(ExtractionServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// ExtractionServiceDesc describes datalake.v1.ExtractionService for grpc.Server.RegisterService.
var ExtractionServiceDesc = grpc.ServiceDesc{
	ServiceName: extractionServiceName,
	HandlerType: (*ExtractionServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Extract",
			Handler: unaryHandler("Extract", func(s ExtractionServiceServer, ctx context.Context, in *structpb.Struct) (any, error) {
				return s.Extract(ctx, in)
			}),
		},
		{
			MethodName: "Statistics",
			Handler: unaryHandler("Statistics", func(s ExtractionServiceServer, ctx context.Context, in *structpb.Struct) (any, error) {
				return s.Statistics(ctx, in)
			}),
		},
		{
			MethodName: "Invalidate",
			Handler: unaryHandler("Invalidate", func(s ExtractionServiceServer, ctx context.Context, in *structpb.Struct) (any, error) {
				return s.Invalidate(ctx, in)
			}),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "datalake/v1/extraction.proto",
}

// ExtractionServiceClient is the client API of datalake.v1.ExtractionService.
type ExtractionServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewExtractionServiceClient(cc grpc.ClientConnInterface) *ExtractionServiceClient {
	return &ExtractionServiceClient{cc: cc}
}

func (c *ExtractionServiceClient) Extract(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+extractionServiceName+"/Extract", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ExtractionServiceClient) Statistics(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+extractionServiceName+"/Statistics", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ExtractionServiceClient) Invalidate(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	out := new(emptypb.Empty)
	if err := c.cc.Invoke(ctx, "/"+extractionServiceName+"/Invalidate", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// ExtractionServer implements ExtractionServiceServer over the record services.
type ExtractionServer struct {
	datasets map[constants.Dataset]*records.Service
	logger   *slog.Logger
}

func NewExtractionServer(datasets map[constants.Dataset]*records.Service, logger *slog.Logger) *ExtractionServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExtractionServer{datasets: datasets, logger: logger.With("component", "grpc")}
}

// Register adds the extraction, health and reflection services to gs and
// returns the health server so callers can flip its status on shutdown.
func Register(gs *grpc.Server, srv ExtractionServiceServer) *health.Server {
	gs.RegisterService(&ExtractionServiceDesc, srv)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(extractionServiceName, healthpb.HealthCheckResponse_SERVING)
	reflection.Register(gs)
	return hs
}

func (s *ExtractionServer) pick(req *structpb.Struct) (*records.Service, bool, error) {
	fields := req.GetFields()
	name := fields["dataset"].GetStringValue()
	if name == "" {
		return nil, false, common.InvalidArgumentError("dataset is required")
	}
	svc, ok := s.datasets[constants.Dataset(name)]
	if !ok || svc == nil {
		return nil, false, common.NotFoundError(fmt.Sprintf("dataset %q not found", name))
	}
	return svc, fields["refresh"].GetBoolValue(), nil
}

// toStruct converts a JSON-serializable value into a Struct.
func toStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}

func (s *ExtractionServer) Extract(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	svc, refresh, err := s.pick(req)
	if err != nil {
		return nil, err
	}
	res, err := svc.List(ctx, refresh)
	if err != nil {
		s.logger.Error("extract failed", "dataset", svc.Dataset(), "error", err)
		return nil, common.ToStatus(err)
	}

	out, err := toStruct(map[string]any{
		"run_id":      res.RunID,
		"dataset":     res.Dataset,
		"computed_at": res.ComputedAt.UTC().Format(time.RFC3339Nano),
		"total":       res.Total(),
		"rejected":    res.Rejected(),
		"failed":      res.Failed(),
		"records":     res.Normalized(),
		"files":       res.Files,
	})
	if err != nil {
		return nil, common.InternalError(err.Error())
	}
	s.logger.Info("grpc.extract.ok", "dataset", svc.Dataset(), "run_id", res.RunID, "records", res.Total())
	return out, nil
}

func (s *ExtractionServer) Statistics(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	svc, refresh, err := s.pick(req)
	if err != nil {
		return nil, err
	}
	stats, err := svc.Statistics(ctx, refresh)
	if err != nil {
		s.logger.Error("statistics failed", "dataset", svc.Dataset(), "error", err)
		return nil, common.ToStatus(err)
	}
	out, err := toStruct(stats)
	if err != nil {
		return nil, common.InternalError(err.Error())
	}
	return out, nil
}

func (s *ExtractionServer) Invalidate(_ context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	svc, _, err := s.pick(req)
	if err != nil {
		return nil, err
	}
	svc.Invalidate()
	return &emptypb.Empty{}, nil
}
