package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func up(context.Context) error { return nil }

func down(msg string) func(context.Context) error {
	return func(context.Context) error { return errors.New(msg) }
}

func TestHandler_StatusMatrix(t *testing.T) {
	cases := map[string]struct {
		required  func(context.Context) error
		optional  func(context.Context) error
		want      Status
		wantCode  int
		wantReady string
	}{
		"all up":          {required: up, optional: up, want: StatusHealthy, wantCode: http.StatusOK, wantReady: "ready"},
		"optional down":   {required: up, optional: down("backlog 900 exceeds 500"), want: StatusDegraded, wantCode: http.StatusOK, wantReady: "ready"},
		"required down":   {required: down("connection refused"), optional: up, want: StatusUnhealthy, wantCode: http.StatusServiceUnavailable, wantReady: "not ready"},
		"everything down": {required: down("connection refused"), optional: down("no brokers"), want: StatusUnhealthy, wantCode: http.StatusServiceUnavailable, wantReady: "not ready"},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			h := NewHandler("v0.4.2")
			h.RegisterChecker("storage", NewSimpleChecker("storage", tc.required))
			h.RegisterOptional("outbox", NewSimpleChecker("outbox", tc.optional))

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
			require.Equal(t, tc.wantCode, rec.Code)
			require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var resp Response
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			require.Equal(t, tc.want, resp.Status)
			require.Equal(t, "v0.4.2", resp.Version)
			require.Len(t, resp.Checks, 2)
			require.True(t, resp.Checks["outbox"].Optional)
			require.False(t, resp.Checks["storage"].Optional)

			ready := httptest.NewRecorder()
			h.ReadinessHandler(ready, httptest.NewRequest(http.MethodGet, "/readyz", nil))
			require.Equal(t, tc.wantCode, ready.Code)
			require.Equal(t, tc.wantReady, ready.Body.String())
		})
	}
}

func TestHandler_NoCheckersIsHealthy(t *testing.T) {
	resp := NewHandler("dev").Run(context.Background())
	require.Equal(t, StatusHealthy, resp.Status)
	require.Empty(t, resp.Checks)
}

func TestHandler_ReRegisterReplaces(t *testing.T) {
	h := NewHandler("dev")
	h.RegisterChecker("redis", NewSimpleChecker("redis", down("dial tcp: refused")))
	h.RegisterOptional("redis", NewSimpleChecker("redis", down("dial tcp: refused")))

	resp := h.Run(context.Background())
	require.Len(t, resp.Checks, 1)
	require.Equal(t, StatusDegraded, resp.Status)
	require.Equal(t, "dial tcp: refused", resp.Checks["redis"].Message)
}

func TestHandler_CheckTimeout(t *testing.T) {
	h := NewHandler("dev")
	h.SetTimeout(20 * time.Millisecond)
	h.SetTimeout(0)
	h.RegisterChecker("redis", NewSimpleChecker("redis", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))

	started := time.Now()
	resp := h.Run(context.Background())
	require.Less(t, time.Since(started), time.Second)
	require.Equal(t, StatusUnhealthy, resp.Checks["redis"].Status)
	require.Equal(t, context.DeadlineExceeded.Error(), resp.Checks["redis"].Message)
}

func TestLivenessHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	LivenessHandler(rec, httptest.NewRequest(http.MethodGet, "/livez", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", rec.Body.String())
}

func TestSimpleChecker_MeasuresDuration(t *testing.T) {
	check := NewSimpleChecker("storage", func(context.Context) error {
		time.Sleep(10 * time.Millisecond)
		return nil
	}).Check(context.Background())

	require.Equal(t, "storage", check.Name)
	require.Equal(t, StatusHealthy, check.Status)
	require.Empty(t, check.Message)
	require.GreaterOrEqual(t, check.DurationMs, int64(10))
}
