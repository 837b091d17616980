package server

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/datalake-etl/constants"
	"github.com/joseph-ayodele/datalake-etl/internal/common"
	"github.com/joseph-ayodele/datalake-etl/internal/records"
)

func dialBufconn(t *testing.T, srv ExtractionServiceServer) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	gs := grpc.NewServer()
	Register(gs, srv)
	go func() { _ = gs.Serve(lis) }()
	t.Cleanup(gs.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func request(t *testing.T, fields map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(fields)
	require.NoError(t, err)
	return s
}

func TestExtractionServiceOverGRPC(t *testing.T) {
	results := &fixedResults{res: purchaseFixture()}
	svc := records.NewService(constants.DatasetPurchases, results, nil)
	conn := dialBufconn(t, NewExtractionServer(map[constants.Dataset]*records.Service{constants.DatasetPurchases: svc}, nil))
	client := NewExtractionServiceClient(conn)
	ctx := context.Background()

	out, err := client.Extract(ctx, request(t, map[string]any{"dataset": "purchases"}))
	require.NoError(t, err)
	assert.Equal(t, "run-1", out.Fields["run_id"].GetStringValue())
	assert.Equal(t, float64(3), out.Fields["total"].GetNumberValue())
	recs := out.Fields["records"].GetListValue().GetValues()
	require.Len(t, recs, 3)
	first := recs[0].GetStructValue().Fields
	assert.Equal(t, "P0002", first["key_fields"].GetStructValue().Fields["purchase_id"].GetStringValue())
	assert.Equal(t, float64(50), first["measure"].GetNumberValue())
	assert.IsType(t, &structpb.Value_NullValue{}, first["date"].GetKind())

	stats, err := client.Statistics(ctx, request(t, map[string]any{"dataset": "purchases", "refresh": true}))
	require.NoError(t, err)
	assert.Equal(t, float64(3), stats.Fields["total_count"].GetNumberValue())
	assert.Len(t, stats.Fields["per_source_breakdown"].GetListValue().GetValues(), 2)

	_, err = client.Invalidate(ctx, request(t, map[string]any{"dataset": "purchases"}))
	require.NoError(t, err)
	assert.Equal(t, 1, results.invalidated)
}

func TestExtractionServiceErrors(t *testing.T) {
	results := &fixedResults{err: common.ErrUnavailable}
	svc := records.NewService(constants.DatasetReturns, results, nil)
	conn := dialBufconn(t, NewExtractionServer(map[constants.Dataset]*records.Service{constants.DatasetReturns: svc}, nil))
	client := NewExtractionServiceClient(conn)
	ctx := context.Background()

	cases := []struct {
		name string
		req  map[string]any
		code codes.Code
	}{
		{"missing dataset", map[string]any{}, codes.InvalidArgument},
		{"unknown dataset", map[string]any{"dataset": "orders"}, codes.NotFound},
		{"landing unavailable", map[string]any{"dataset": "returns"}, codes.Unavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := client.Extract(ctx, request(t, tc.req))
			assert.Equal(t, tc.code, status.Code(err))
		})
	}
}

func TestHealthService(t *testing.T) {
	conn := dialBufconn(t, NewExtractionServer(nil, nil))
	resp, err := healthpb.NewHealthClient(conn).Check(context.Background(), &healthpb.HealthCheckRequest{Service: extractionServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}
