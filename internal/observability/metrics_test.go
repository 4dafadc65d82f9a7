package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
)

func scrape(t *testing.T, metrics *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	return rr.Body.String()
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/test")

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx)
	req = req.WithContext(ctx)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusTeapot {
		t.Fatalf("expected status %d, got %d", http.StatusTeapot, rr.Code)
	}

	body := scrape(t, metrics)
	if !strings.Contains(body, "fieldbase_http_requests_total{code=\"418\",route=\"/test\"} 1") {
		t.Fatalf("expected metrics to record request, got: %s", body)
	}
	if !strings.Contains(body, "fieldbase_http_request_duration_seconds_bucket{route=\"/test\"") {
		t.Fatalf("expected duration histogram to be present, got: %s", body)
	}
}

func TestAuthzDecisionCounter(t *testing.T) {
	metrics := NewMetrics()
	metrics.AuthzDecision("permission", "allow")
	metrics.AuthzDecision("permission", "forbidden")
	metrics.AuthzDecision("permission", "forbidden")

	body := scrape(t, metrics)
	if !strings.Contains(body, `fieldbase_authz_decisions_total{outcome="forbidden",strategy="permission"} 2`) {
		t.Fatalf("expected forbidden decisions to be counted, got: %s", body)
	}
	if !strings.Contains(body, `fieldbase_authz_decisions_total{outcome="allow",strategy="permission"} 1`) {
		t.Fatalf("expected allow decision to be counted, got: %s", body)
	}
}

func TestBreakerTransition(t *testing.T) {
	metrics := NewMetrics()
	metrics.BreakerTransition("permission-store", "closed", "open")
	metrics.BreakerTransition("permission-store", "open", "half-open")

	body := scrape(t, metrics)
	for _, want := range []string{
		`fieldbase_authz_breaker_state{name="permission-store"} 1`,
		`fieldbase_authz_breaker_transitions_total{from="closed",name="permission-store",to="open"} 1`,
		`fieldbase_authz_breaker_transitions_total{from="open",name="permission-store",to="half-open"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in metrics, got: %s", want, body)
		}
	}
}

func TestNilMetricsAreNoops(t *testing.T) {
	var metrics *Metrics
	metrics.AuthzDecision("permission", "allow")
	metrics.BreakerTransition("x", "closed", "open")

	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 from nil metrics, got %d", rr.Code)
	}
}
