package observability

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func TestNewMetricsCollector_RegistersAll(t *testing.T) {
	m := NewMetricsCollector()

	// Touch a representative metric of each family so Gather has samples.
	m.ArtifactWritesTotal.WithLabelValues("ENV_VAR", "create", "ok").Inc()
	m.RevealsTotal.WithLabelValues("ok").Inc()
	m.AccessLogAppends.Inc()
	m.ActiveRequests.Set(1)

	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	if len(families) == 0 {
		t.Fatal("no metric families registered")
	}

	if got := testutil.ToFloat64(m.ArtifactWritesTotal.WithLabelValues("ENV_VAR", "create", "ok")); got != 1 {
		t.Errorf("ArtifactWritesTotal = %v, want 1", got)
	}
}

func TestHTTPMetricsMiddleware_CountsRequests(t *testing.T) {
	m := NewMetricsCollector()
	handler := HTTPMetricsMiddleware(m, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/workspaces", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}
	got := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("POST", "/v1/workspaces", "201"))
	if got != 1 {
		t.Errorf("HTTPRequestsTotal = %v, want 1", got)
	}
	if active := testutil.ToFloat64(m.ActiveRequests); active != 0 {
		t.Errorf("ActiveRequests = %v, want 0 after completion", active)
	}
}

func TestHTTPMetricsMiddleware_NilCollectorPassthrough(t *testing.T) {
	called := false
	handler := HTTPMetricsMiddleware(nil, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if !called {
		t.Error("wrapped handler not called")
	}
}

func TestHealthChecker_Degraded(t *testing.T) {
	h := NewHealthChecker(testLogger())
	h.AddCheck("ok-dep", func(context.Context) error { return nil })
	h.AddCheck("bad-dep", func(context.Context) error { return errors.New("connection refused") })

	status := h.CheckReady(context.Background())
	if status.Status != "degraded" {
		t.Errorf("Status = %q, want degraded", status.Status)
	}
	if status.Checks["ok-dep"].Status != "ok" {
		t.Errorf("ok-dep = %+v, want ok", status.Checks["ok-dep"])
	}
	if status.Checks["bad-dep"].Status != "fail" || status.Checks["bad-dep"].Message == "" {
		t.Errorf("bad-dep = %+v, want fail with message", status.Checks["bad-dep"])
	}
}

func TestHealthChecker_NoChecksIsOK(t *testing.T) {
	h := NewHealthChecker(testLogger())
	if status := h.CheckReady(context.Background()); status.Status != "ok" {
		t.Errorf("Status = %q, want ok", status.Status)
	}
}
