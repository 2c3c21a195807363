package service

import (
	"context"
	"time"

	"github.com/example/dispatchlite/internal/dispatch/domain"
	"github.com/example/dispatchlite/internal/geo"
)

// avgSpeedKmh is the assumed fleet speed for the nearest-ambulance estimate,
// which has no route to draw a duration from.
const avgSpeedKmh = 30.0

// Service answers ETA questions using the route estimator for assigned
// trackers and a haversine sweep for "who is closest".
type Service struct {
	store  domain.Store
	routes domain.RouteProvider
}

// New creates an ETA service.
func New(store domain.Store, routes domain.RouteProvider) *Service {
	return &Service{store: store, routes: routes}
}

// Estimate is a route paired with its derived arrival time.
type Estimate struct {
	DriverID   string       `json:"driverId"`
	Route      domain.Route `json:"route"`
	ETASeconds float64      `json:"etaSeconds"`
}

// EstimateArrival computes the route and ETA from an ambulance to the given
// destination. The estimator never fails, so neither does this beyond the
// ambulance lookup.
func (s *Service) EstimateArrival(ctx context.Context, driverID string, dest domain.GeoPoint) (Estimate, error) {
	ambulance, err := s.store.GetAmbulanceByDriver(ctx, driverID)
	if err != nil {
		return Estimate{}, err
	}
	route := s.routes.Route(ctx, ambulance.Position(), dest)
	return Estimate{
		DriverID:   driverID,
		Route:      route,
		ETASeconds: route.DurationSeconds,
	}, nil
}

// NearestAvailable returns the closest available ambulance to the point and
// a coarse arrival estimate at avgSpeedKmh. The bool is false when the fleet
// has no available unit.
func (s *Service) NearestAvailable(ctx context.Context, p domain.GeoPoint) (domain.Ambulance, time.Duration, bool) {
	ambulances, err := s.store.ListAmbulances(ctx)
	if err != nil {
		return domain.Ambulance{}, 0, false
	}

	var best domain.Ambulance
	bestKm := -1.0
	for _, a := range ambulances {
		if a.Status != domain.StatusAvailable {
			continue
		}
		km := geo.DistanceKm(a.Lat, a.Lng, p.Lat, p.Lng)
		if bestKm < 0 || km < bestKm {
			best = a
			bestKm = km
		}
	}
	if bestKm < 0 {
		return domain.Ambulance{}, 0, false
	}
	eta := time.Duration(bestKm / avgSpeedKmh * float64(time.Hour))
	return best, eta, true
}
