package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	internalorders "github.com/verdantclimate/verdant-backend/internal/orders"
	"github.com/verdantclimate/verdant-backend/pkg/config"
	"github.com/verdantclimate/verdant-backend/pkg/logger"
	"github.com/verdantclimate/verdant-backend/pkg/metrics"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error {
	return nil
}

type stubOrdersService struct{}

func (stubOrdersService) Verify(context.Context, string) (*internalorders.VerifyResult, error) {
	return &internalorders.VerifyResult{Status: "open"}, nil
}

func (stubOrdersService) ResendReceipt(context.Context, string) error {
	return nil
}

func (stubOrdersService) ListRecent(context.Context, int) ([]internalorders.AdminOrder, error) {
	return nil, nil
}

func testRouter(t *testing.T) http.Handler {
	t.Helper()
	cfg := &config.Config{}
	cfg.App.Env = "test"
	cfg.Admin.BearerToken = "s3cret"
	return NewRouter(Deps{
		Config:  cfg,
		Logger:  logger.New(logger.Options{ServiceName: "routes-test"}),
		Metrics: metrics.NewStoreMetrics(),
		DB:      stubPinger{},
		Cache:   stubPinger{},
		Orders:  stubOrdersService{},
	})
}

func TestRouterHealthEndpoints(t *testing.T) {
	router := testRouter(t)

	for _, path := range []string{"/health/live", "/health/ready"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200 for %s, got %d (%s)", path, rec.Code, rec.Body.String())
		}
	}
}

func TestRouterMetricsEndpoint(t *testing.T) {
	router := testRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for /metrics, got %d", rec.Code)
	}
}

func TestRouterAdminRoutesRequireBearerToken(t *testing.T) {
	router := testRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/v1/orders/", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	req2 := httptest.NewRequest(http.MethodGet, "/api/admin/v1/orders/", nil)
	req2.Header.Set("Authorization", "Bearer s3cret")
	rec2 := httptest.NewRecorder()
	router.ServeHTTP(rec2, req2)
	if rec2.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d (%s)", rec2.Code, rec2.Body.String())
	}
}

func TestRouterVerifyEndpointWired(t *testing.T) {
	router := testRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/checkout/verify?session_id=cs_test_1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
}
