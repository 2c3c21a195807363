package routing_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/example/dispatchlite/internal/dispatch/domain"
	"github.com/example/dispatchlite/internal/routing"
)

var (
	origin = domain.GeoPoint{Lat: 28.6139, Lng: 77.2090}
	dest   = domain.GeoPoint{Lat: 28.5355, Lng: 77.2731}
)

func TestEstimatorUsesServiceRoute(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Contains(t, r.URL.Path, "/route/v1/driving/")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"code": "Ok",
			"routes": [{
				"distance": 12345.6,
				"duration": 1080,
				"geometry": {"coordinates": [[77.2090,28.6139],[77.2400,28.5700],[77.2731,28.5355]]}
			}]
		}`))
	}))
	defer srv.Close()

	estimator := routing.NewEstimator(routing.NewOSRMClient(srv.URL, time.Second), nil)
	route := estimator.Route(context.Background(), origin, dest)

	require.Len(t, route.Path, 3)
	require.InDelta(t, origin.Lat, route.Path[0].Lat, 1e-6)
	require.InDelta(t, origin.Lng, route.Path[0].Lng, 1e-6)
	require.InDelta(t, dest.Lat, route.Path[len(route.Path)-1].Lat, 1e-6)
	require.InDelta(t, dest.Lng, route.Path[len(route.Path)-1].Lng, 1e-6)
	require.InDelta(t, 12345.6, route.DistanceMeters, 1e-6)
	require.InDelta(t, 1080, route.DurationSeconds, 1e-6)
}

func TestEstimatorFallsBackOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	estimator := routing.NewEstimator(routing.NewOSRMClient(srv.URL, time.Second), nil)
	route := estimator.Route(context.Background(), origin, dest)

	assertStraightLine(t, route)
}

func TestEstimatorFallsBackOnMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"code":"Ok","routes":`))
	}))
	defer srv.Close()

	estimator := routing.NewEstimator(routing.NewOSRMClient(srv.URL, time.Second), nil)
	assertStraightLine(t, estimator.Route(context.Background(), origin, dest))
}

func TestEstimatorFallsBackWhenUnreachable(t *testing.T) {
	// Closed server forces a connection error.
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	estimator := routing.NewEstimator(routing.NewOSRMClient(srv.URL, 100*time.Millisecond), nil)
	assertStraightLine(t, estimator.Route(context.Background(), origin, dest))
}

func TestEstimatorWithoutPrimaryIsStraightLine(t *testing.T) {
	estimator := routing.NewEstimator(nil, nil)
	assertStraightLine(t, estimator.Route(context.Background(), origin, dest))
}

func assertStraightLine(t *testing.T, route domain.Route) {
	t.Helper()
	require.Len(t, route.Path, 2)
	require.Equal(t, origin, route.Path[0])
	require.Equal(t, dest, route.Path[1])
	require.Positive(t, route.DistanceMeters)
	// Duration must match 30 km/h over the straight-line distance.
	require.InDelta(t, route.DistanceMeters/(30.0*1000.0/3600.0), route.DurationSeconds, 1e-6)
}
