package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"pathology-records-server/internal/config"
	"pathology-records-server/internal/metrics"
	"pathology-records-server/internal/models"
	"pathology-records-server/internal/utils"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testConfig() *config.Config {
	return &config.Config{
		JWTSecret:                 "access-secret-for-tests-0123456789",
		JWTRefreshSecret:          "refresh-secret-for-tests-0123456789",
		JWTExpirationMinutes:      15,
		JWTRefreshExpirationHours: 1,
	}
}

func bearer(t *testing.T, cfg *config.Config, role models.Role) string {
	t.Helper()
	access, _, err := utils.GenerateTokens(&models.User{BaseModel: models.BaseModel{ID: "user-1"}, Role: role}, cfg)
	if err != nil {
		t.Fatal(err)
	}
	return "Bearer " + access
}

func TestAuthMiddleware(t *testing.T) {
	t.Parallel()
	cfg := testConfig()

	router := gin.New()
	router.GET("/doctors-only", AuthMiddleware(cfg), RoleAuthMiddleware(models.RoleDoctor), func(c *gin.Context) {
		id, _ := GetUserIDFromContext(c)
		role, _ := GetUserRoleFromContext(c)
		c.String(http.StatusOK, id+":"+string(role))
	})

	refreshSigned, _, err := utils.GenerateTokens(&models.User{BaseModel: models.BaseModel{ID: "user-1"}, Role: models.RoleDoctor}, &config.Config{
		JWTSecret: cfg.JWTRefreshSecret, JWTRefreshSecret: cfg.JWTRefreshSecret, JWTExpirationMinutes: 15,
	})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{name: "missing header", header: "", want: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic abc", want: http.StatusUnauthorized},
		{name: "garbage token", header: "Bearer not-a-jwt", want: http.StatusUnauthorized},
		{name: "token signed with another secret", header: "Bearer " + refreshSigned, want: http.StatusUnauthorized},
		{name: "wrong role", header: bearer(t, cfg, models.RolePatient), want: http.StatusForbidden},
		{name: "allowed", header: bearer(t, cfg, models.RoleDoctor), want: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/doctors-only", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
			if tt.want == http.StatusOK && rec.Body.String() != "user-1:doctor" {
				t.Errorf("unexpected context values %q", rec.Body.String())
			}
		})
	}
}

func TestRateLimit(t *testing.T) {
	t.Parallel()

	limiter := NewClientLimiter(0.001, 2)
	router := gin.New()
	router.Use(RateLimit(limiter))
	router.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:5555"
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	if codes[0] != http.StatusNoContent || codes[1] != http.StatusNoContent || codes[2] != http.StatusTooManyRequests {
		t.Errorf("unexpected status sequence %v", codes)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.2:5555"
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Errorf("other clients must have their own budget, got %d", rec.Code)
	}
}

func TestClientLimiterCleanup(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	limiter := NewClientLimiter(1, 1)
	limiter.now = func() time.Time { return now }

	limiter.Allow("a")
	now = now.Add(11 * time.Minute)
	limiter.Allow("b")
	limiter.Cleanup()

	if limiter.Size() != 1 {
		t.Errorf("expected only the recent client to remain, got %d", limiter.Size())
	}
}

func TestObservabilityMiddleware(t *testing.T) {
	t.Parallel()

	collector := metrics.NewCollector("test")
	router := gin.New()
	router.Use(Tracing(noop.NewTracerProvider().Tracer("test")), Metrics(collector), RequestLogger(zap.NewNop()))
	router.GET("/items/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, path := range []string{"/items/1", "/items/2", "/missing"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	if got := testutil.ToFloat64(collector.RequestsTotal.WithLabelValues("GET", "/items/:id", "200")); got != 2 {
		t.Errorf("expected 2 requests on the route template, got %v", got)
	}
	if got := testutil.ToFloat64(collector.RequestsTotal.WithLabelValues("GET", "unmatched", "404")); got != 1 {
		t.Errorf("expected 1 unmatched request, got %v", got)
	}
	if got := testutil.ToFloat64(collector.InFlightGauge); got != 0 {
		t.Errorf("in-flight gauge should return to 0, got %v", got)
	}
}
