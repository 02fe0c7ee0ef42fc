package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func status(t *testing.T, c *Checker) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := c.Server().Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	return resp.Status
}

func TestCheck_TracksPing(t *testing.T) {
	var down error
	c := NewChecker(PingerFunc(func(context.Context) error { return down }), time.Minute, zap.NewNop().Sugar())

	assert.True(t, c.Check(context.Background()))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, status(t, c))

	down = errors.New("connection refused")
	assert.False(t, c.Check(context.Background()))
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, status(t, c))
}

func TestServeHTTP(t *testing.T) {
	var down error
	c := NewChecker(PingerFunc(func(context.Context) error { return down }), time.Minute, zap.NewNop().Sugar())

	rec := httptest.NewRecorder()
	c.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	down = errors.New("down")
	rec = httptest.NewRecorder()
	c.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServe_ListensOnEphemeralPort(t *testing.T) {
	c := NewChecker(PingerFunc(func(context.Context) error { return nil }), time.Minute, zap.NewNop().Sugar())
	srv, err := Serve("127.0.0.1:0", c, zap.NewNop().Sugar())
	require.NoError(t, err)
	srv.GracefulStop()
}
