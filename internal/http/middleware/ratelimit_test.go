package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/example/dispatchlite/internal/http/middleware"
)

func newLimitedHandler(t *testing.T, read, write middleware.RateConfig) http.Handler {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	limiter := middleware.NewRateLimiter(client, read, write)
	return limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func do(handler http.Handler, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set("X-Client-ID", "tester")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestRateLimiterExhaustsWriteBudget(t *testing.T) {
	handler := newLimitedHandler(t,
		middleware.RateConfig{Rate: 100, Burst: 100},
		middleware.RateConfig{Rate: 0.001, Burst: 2},
	)

	require.Equal(t, http.StatusOK, do(handler, http.MethodPost, "/api/hospitals").Code)
	require.Equal(t, http.StatusOK, do(handler, http.MethodPost, "/api/hospitals").Code)

	rec := do(handler, http.MethodPost, "/api/hospitals")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.NotEmpty(t, rec.Header().Get("Retry-After"))

	// Reads draw from their own bucket.
	require.Equal(t, http.StatusOK, do(handler, http.MethodGet, "/api/hospitals").Code)
}

func TestRateLimiterNeverThrottlesEmergencyRequests(t *testing.T) {
	handler := newLimitedHandler(t,
		middleware.RateConfig{Rate: 0.001, Burst: 1},
		middleware.RateConfig{Rate: 0.001, Burst: 1},
	)

	for i := 0; i < 5; i++ {
		require.Equal(t, http.StatusOK, do(handler, http.MethodPost, "/api/requests").Code)
	}
}

func TestNilLimiterPassesThrough(t *testing.T) {
	limiter := middleware.NewRateLimiter(nil, middleware.RateConfig{}, middleware.RateConfig{})
	handler := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	require.Equal(t, http.StatusOK, do(handler, http.MethodPost, "/api/hospitals").Code)
}

func TestDisabledScopePassesThrough(t *testing.T) {
	handler := newLimitedHandler(t,
		middleware.RateConfig{},
		middleware.RateConfig{Rate: 0.001, Burst: 1},
	)
	for i := 0; i < 5; i++ {
		require.Equal(t, http.StatusOK, do(handler, http.MethodGet, "/api/ambulances").Code)
	}
}
