package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/example/dispatchlite/internal/dispatch/domain"
	"github.com/example/dispatchlite/internal/geo"
)

// fallbackSpeedKmh is the assumed average urban driving speed used when the
// routing service cannot be reached.
const fallbackSpeedKmh = 30.0

const defaultTimeout = 5 * time.Second

// OSRMClient fetches driving routes from an OSRM-compatible HTTP service.
type OSRMClient struct {
	baseURL string
	client  *http.Client
}

// NewOSRMClient constructs a client for the given base URL, e.g.
// "https://router.project-osrm.org".
func NewOSRMClient(baseURL string, timeout time.Duration) *OSRMClient {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &OSRMClient{baseURL: baseURL, client: &http.Client{Timeout: timeout}}
}

type osrmResponse struct {
	Code   string `json:"code"`
	Routes []struct {
		Distance float64 `json:"distance"`
		Duration float64 `json:"duration"`
		Geometry struct {
			Coordinates [][]float64 `json:"coordinates"`
		} `json:"geometry"`
	} `json:"routes"`
}

// FetchRoute requests a driving route. Coordinates in the URL and in the
// GeoJSON geometry are lng,lat ordered.
func (c *OSRMClient) FetchRoute(ctx context.Context, origin, dest domain.GeoPoint) (domain.Route, error) {
	url := fmt.Sprintf("%s/route/v1/driving/%f,%f;%f,%f?overview=full&geometries=geojson",
		c.baseURL, origin.Lng, origin.Lat, dest.Lng, dest.Lat)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return domain.Route{}, fmt.Errorf("build route request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return domain.Route{}, fmt.Errorf("fetch route: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.Route{}, fmt.Errorf("routing service returned %d", resp.StatusCode)
	}

	var payload osrmResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return domain.Route{}, fmt.Errorf("decode route response: %w", err)
	}
	if payload.Code != "Ok" || len(payload.Routes) == 0 {
		return domain.Route{}, fmt.Errorf("routing service returned no route (code %q)", payload.Code)
	}

	best := payload.Routes[0]
	path := make([]domain.GeoPoint, 0, len(best.Geometry.Coordinates))
	for _, pair := range best.Geometry.Coordinates {
		if len(pair) < 2 {
			return domain.Route{}, fmt.Errorf("malformed coordinate pair in route geometry")
		}
		path = append(path, domain.GeoPoint{Lat: pair[1], Lng: pair[0]})
	}
	if len(path) == 0 {
		return domain.Route{}, fmt.Errorf("routing service returned empty geometry")
	}
	return domain.Route{
		Path:            path,
		DistanceMeters:  best.Distance,
		DurationSeconds: best.Duration,
	}, nil
}

// Estimator resolves routes through the external service first and degrades
// to a straight-line estimate on any failure. Callers always get a route;
// tracking must never hard-fail because a third party is down.
type Estimator struct {
	primary *OSRMClient
	logger  *zap.Logger
}

// NewEstimator builds an Estimator. A nil primary means every route is a
// straight-line estimate.
func NewEstimator(primary *OSRMClient, logger *zap.Logger) *Estimator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Estimator{primary: primary, logger: logger}
}

// Route implements domain.RouteProvider.
func (e *Estimator) Route(ctx context.Context, origin, dest domain.GeoPoint) domain.Route {
	if e.primary != nil {
		route, err := e.primary.FetchRoute(ctx, origin, dest)
		if err == nil {
			routeRequests.WithLabelValues("osrm").Inc()
			return route
		}
		e.logger.Debug("route fetch failed, using straight-line estimate", zap.Error(err))
	}
	routeRequests.WithLabelValues("fallback").Inc()
	return StraightLine(origin, dest)
}

// StraightLine synthesizes a two-point route with haversine distance and a
// duration assuming fallbackSpeedKmh.
func StraightLine(origin, dest domain.GeoPoint) domain.Route {
	distanceMeters := geo.DistanceKm(origin.Lat, origin.Lng, dest.Lat, dest.Lng) * 1000
	metersPerSecond := fallbackSpeedKmh * 1000.0 / 3600.0
	return domain.Route{
		Path:            []domain.GeoPoint{origin, dest},
		DistanceMeters:  distanceMeters,
		DurationSeconds: distanceMeters / metersPerSecond,
	}
}

var _ domain.RouteProvider = (*Estimator)(nil)
