package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kirillkom/studyforge/internal/core/domain"
)

func TestNormalizePath(t *testing.T) {
	tests := map[string]string{
		"/v1/documents/abc/generate":          "/v1/documents/{document_id}/generate",
		"/v1/documents/abc/artifacts/summary": "/v1/documents/{document_id}/artifacts/summary",
		"/v1/documents/text":                  "/v1/documents/text",
		"/v1/users/u-1/balance":               "/v1/users/{user_id}/balance",
		"/healthz":                            "/healthz",
	}
	for in, want := range tests {
		if got := normalizePath(in); got != want {
			t.Fatalf("normalizePath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMiddlewareCountsStatus(t *testing.T) {
	m := NewHTTPServerMetrics("api")
	handler := m.Middleware("api", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/v1/documents/d1/generate", nil))

	got := testutil.ToFloat64(m.requestTotal.WithLabelValues("api", http.MethodPost, "/v1/documents/{document_id}/generate", "409"))
	if got != 1 {
		t.Fatalf("expected one 409 request, got %v", got)
	}
}

func TestWorkerObserverCounts(t *testing.T) {
	m := NewWorkerMetrics("worker")
	m.ObserveStep(domain.KindSummary, domain.StepGenerate, time.Second, errors.New("boom"))
	m.ObserveCompensation("refund", nil)
	m.ObserveCompensation("refund", errors.New("db down"))
	m.StartRun()
	m.FinishRun(domain.KindSummary, "failed", time.Second)

	if got := testutil.ToFloat64(m.stepErrorsTotal.WithLabelValues("worker", "summary", "generate")); got != 1 {
		t.Fatalf("expected one step error, got %v", got)
	}
	if got := testutil.ToFloat64(m.compensationTotal.WithLabelValues("worker", "refund", "error")); got != 1 {
		t.Fatalf("expected one failed refund, got %v", got)
	}
	if got := testutil.ToFloat64(m.runsInFlight); got != 0 {
		t.Fatalf("expected no runs in flight, got %v", got)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "studyforge_worker_runs_total") {
		t.Fatalf("metrics output is missing run counter")
	}
}
