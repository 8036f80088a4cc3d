package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/platewise-backend/api/controllers"
	"github.com/angelmondragon/platewise-backend/internal/activity"
	"github.com/angelmondragon/platewise-backend/internal/ratelimit"
	pkgAuth "github.com/angelmondragon/platewise-backend/pkg/auth"
	"github.com/angelmondragon/platewise-backend/pkg/config"
	"github.com/angelmondragon/platewise-backend/pkg/logger"
	"github.com/angelmondragon/platewise-backend/pkg/metrics"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error {
	return nil
}

type stubActivity struct {
	controllers.ActivityService
}

func (stubActivity) List(context.Context, string, int, int) ([]*activity.Log, error) {
	return []*activity.Log{}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		App:       config.AppConfig{Env: "dev"},
		JWT:       config.JWTConfig{Secret: "secret", Issuer: "platewise", ExpirationMinutes: 10},
		Media:     config.MediaConfig{MaxUploadMB: 10, PublicMaxUploadMB: 10},
		RateLimit: config.RateLimitConfig{PublicDaily: 5},
		CORS:      config.CORSConfig{AllowedOrigins: []string{"http://localhost:3000"}},
	}
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	reg := prometheus.NewRegistry()
	return NewRouter(testConfig(), logger.Nop(), Dependencies{
		Activity:  stubActivity{},
		Limiter:   ratelimit.WithMetrics(ratelimit.NewMemory(), metrics.NewRateLimitMetrics(reg)),
		Readiness: map[string]controllers.Pinger{"db": stubPinger{}},
		Metrics:   reg,
	})
}

func TestHealthRoutes(t *testing.T) {
	router := newTestRouter(t)

	for _, path := range []string{"/health/live", "/health/ready"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestAPIRequiresBearerToken(t *testing.T) {
	router := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/activity", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	token, err := pkgAuth.MintAccessToken(testConfig().JWT, time.Now(), pkgAuth.AccessTokenPayload{OwnerID: "owner-1"})
	require.NoError(t, err)

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/activity", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestPublicAnalyzeIsRateLimited(t *testing.T) {
	router := newTestRouter(t)

	var last int
	for i := 0; i < 6; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/public/analyze-food", nil)
		req.RemoteAddr = "192.0.2.10:1234"
		router.ServeHTTP(rec, req)
		last = rec.Code
		if i < 5 {
			// images service is not wired here, so admitted requests fail after the limiter
			assert.Equal(t, http.StatusInternalServerError, rec.Code)
		}
	}
	assert.Equal(t, http.StatusTooManyRequests, last)
}

func TestMetricsEndpoint(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/public/analyze-food", nil)
	router.ServeHTTP(httptest.NewRecorder(), req)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "ratelimit_decisions_total"))
}
