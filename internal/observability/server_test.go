package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/PYPE-AI-MAIN/whispey/internal/observability/metrics"
)

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestServer_Health(t *testing.T) {
	s := NewServer(":0")

	rec := get(t, s.Handler(), "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestServer_Readiness(t *testing.T) {
	s := NewServer(":0")

	assert.Equal(t, http.StatusServiceUnavailable, get(t, s.Handler(), "/readyz").Code)

	s.SetReady(true)
	rec := get(t, s.Handler(), "/readyz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ready", rec.Body.String())

	require.NoError(t, s.Shutdown(context.Background()))
	assert.Equal(t, http.StatusServiceUnavailable, get(t, s.Handler(), "/readyz").Code)
}

func TestServer_Metrics(t *testing.T) {
	metrics.DefaultMetrics.RecordTurnCompleted()
	s := NewServer(":0")

	rec := get(t, s.Handler(), "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "turns_completed_total")
}

func TestUnaryServerInterceptor_PassesThrough(t *testing.T) {
	icpt := UnaryServerInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/whispey.telemetry.v1.SessionEvents/Export"}

	resp, err := icpt(context.Background(), "req", info, func(ctx context.Context, req any) (any, error) {
		return "resp", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "resp", resp)

	_, err = icpt(context.Background(), "req", info, func(ctx context.Context, req any) (any, error) {
		return nil, status.Error(codes.NotFound, "missing")
	})
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestStreamServerInterceptor_ReturnsHandlerError(t *testing.T) {
	icpt := StreamServerInterceptor(metrics.DefaultMetrics)
	info := &grpc.StreamServerInfo{FullMethod: "/whispey.telemetry.v1.SessionEvents/StreamEvents", IsClientStream: true}

	called := false
	err := icpt(nil, nil, info, func(srv any, stream grpc.ServerStream) error {
		called = true
		return status.Error(codes.InvalidArgument, "bad event")
	})

	assert.True(t, called)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}
