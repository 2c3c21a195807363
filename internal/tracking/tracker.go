package tracking

import (
	"context"

	"go.uber.org/zap"

	"github.com/example/dispatchlite/internal/dispatch/domain"
	"github.com/example/dispatchlite/internal/dispatch/watch"
	"github.com/example/dispatchlite/internal/simulator"
)

// Tracker turns accepted requests into live movement: when a driver accepts,
// it fetches the route from the ambulance to the patient and hands it to the
// simulator so trackers see the vehicle approach. Requests without patient
// coordinates fall back to GPS jitter around the ambulance.
type Tracker struct {
	store  domain.Store
	routes domain.RouteProvider
	sims   *simulator.Manager
	hub    *watch.Hub
	logger *zap.Logger
}

// New constructs a Tracker.
func New(store domain.Store, routes domain.RouteProvider, sims *simulator.Manager, hub *watch.Hub, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{store: store, routes: routes, sims: sims, hub: hub, logger: logger}
}

// Run consumes accept/terminal events until the context is cancelled. The
// subscription is torn down on exit so the hub never holds a dead channel.
func (t *Tracker) Run(ctx context.Context) {
	sub := t.hub.Subscribe(
		domain.EventRequestAccepted,
		domain.EventRequestCompleted,
		domain.EventRequestCancelled,
	)
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-sub.C:
			if !ok {
				return
			}
			t.handle(ctx, event)
		}
	}
}

func (t *Tracker) handle(ctx context.Context, event domain.DispatchEvent) {
	driverID, _ := event.Payload["driver_id"].(string)
	if driverID == "" {
		return
	}

	switch event.Type {
	case domain.EventRequestCompleted, domain.EventRequestCancelled:
		t.sims.Stop(driverID)
		return
	case domain.EventRequestAccepted:
	default:
		return
	}

	requestID, ok := event.Payload["request_id"].(int64)
	if !ok {
		return
	}
	request, err := t.store.GetRequest(ctx, requestID)
	if err != nil {
		t.logger.Warn("accepted request vanished", zap.Int64("request_id", requestID), zap.Error(err))
		return
	}
	ambulance, err := t.store.GetAmbulanceByDriver(ctx, driverID)
	if err != nil {
		t.logger.Warn("accepted by unknown driver", zap.String("driver_id", driverID), zap.Error(err))
		return
	}

	if request.Lat == nil || request.Lng == nil {
		t.sims.Jitter(ctx, driverID, ambulance.Position())
		return
	}

	route := t.routes.Route(ctx, ambulance.Position(), domain.GeoPoint{Lat: *request.Lat, Lng: *request.Lng})
	t.sims.FollowRoute(ctx, driverID, route)
}
