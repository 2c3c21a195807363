package simulator_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/example/dispatchlite/internal/dispatch/domain"
	"github.com/example/dispatchlite/internal/simulator"
)

type recordingSink struct {
	mu        sync.Mutex
	positions map[string][]domain.GeoPoint
}

func newRecordingSink() *recordingSink {
	return &recordingSink{positions: make(map[string][]domain.GeoPoint)}
}

func (r *recordingSink) UpdateLocation(_ context.Context, driverID string, lat, lng float64) (domain.Ambulance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.positions[driverID] = append(r.positions[driverID], domain.GeoPoint{Lat: lat, Lng: lng})
	return domain.Ambulance{DriverID: driverID, Lat: lat, Lng: lng}, nil
}

func (r *recordingSink) trail(driverID string) []domain.GeoPoint {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.GeoPoint, len(r.positions[driverID]))
	copy(out, r.positions[driverID])
	return out
}

func (r *recordingSink) count(driverID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.positions[driverID])
}

func fastConfig() simulator.Config {
	return simulator.Config{
		Steps:       4,
		StepDelay:   time.Millisecond,
		SegmentTick: time.Millisecond,
		JitterTick:  5 * time.Millisecond,
		JitterDelta: 0.001,
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestFollowRouteEndsAtDestination(t *testing.T) {
	sink := newRecordingSink()
	mgr := simulator.NewManager(sink, fastConfig(), nil)
	defer mgr.StopAll()

	route := domain.Route{Path: []domain.GeoPoint{
		{Lat: 28.61, Lng: 77.20},
		{Lat: 28.62, Lng: 77.21},
		{Lat: 28.63, Lng: 77.22},
	}}
	mgr.FollowRoute(context.Background(), "d1", route)

	// 1 initial fix plus Steps per segment.
	want := 1 + 4*2
	waitFor(t, func() bool { return sink.count("d1") >= want })
	mgr.StopAll()

	trail := sink.trail("d1")
	require.Len(t, trail, want)
	require.Equal(t, route.Path[0], trail[0])
	last := trail[len(trail)-1]
	require.InDelta(t, 28.63, last.Lat, 1e-9)
	require.InDelta(t, 77.22, last.Lng, 1e-9)
}

func TestFollowRouteEmptyPathIsNoop(t *testing.T) {
	sink := newRecordingSink()
	mgr := simulator.NewManager(sink, fastConfig(), nil)
	defer mgr.StopAll()

	mgr.FollowRoute(context.Background(), "d1", domain.Route{})
	time.Sleep(10 * time.Millisecond)
	require.Zero(t, sink.count("d1"))
}

func TestStartReplacesRunningSimulation(t *testing.T) {
	sink := newRecordingSink()
	cfg := fastConfig()
	cfg.Steps = 1000
	cfg.StepDelay = time.Millisecond
	mgr := simulator.NewManager(sink, cfg, nil)
	defer mgr.StopAll()

	first := domain.Route{Path: []domain.GeoPoint{{Lat: 0, Lng: 0}, {Lat: 1, Lng: 1}}}
	mgr.FollowRoute(context.Background(), "d1", first)
	waitFor(t, func() bool { return sink.count("d1") > 0 })

	second := domain.Route{Path: []domain.GeoPoint{{Lat: 50, Lng: 50}}}
	mgr.FollowRoute(context.Background(), "d1", second)
	waitFor(t, func() bool {
		trail := sink.trail("d1")
		return len(trail) > 0 && trail[len(trail)-1].Lat == 50
	})
	mgr.StopAll()

	// The long first route never finishes once replaced.
	trail := sink.trail("d1")
	require.Equal(t, domain.GeoPoint{Lat: 50, Lng: 50}, trail[len(trail)-1])
}

func TestJitterDriftsAroundStart(t *testing.T) {
	sink := newRecordingSink()
	mgr := simulator.NewManager(sink, fastConfig(), nil)
	defer mgr.StopAll()

	start := domain.GeoPoint{Lat: 28.61, Lng: 77.20}
	mgr.Jitter(context.Background(), "d1", start)
	waitFor(t, func() bool { return sink.count("d1") >= 3 })
	mgr.Stop("d1")

	for _, p := range sink.trail("d1") {
		require.InDelta(t, start.Lat, p.Lat, 0.01)
		require.InDelta(t, start.Lng, p.Lng, 0.01)
	}
}

func TestStopHaltsUpdates(t *testing.T) {
	sink := newRecordingSink()
	mgr := simulator.NewManager(sink, fastConfig(), nil)
	defer mgr.StopAll()

	mgr.Jitter(context.Background(), "d1", domain.GeoPoint{Lat: 1, Lng: 1})
	waitFor(t, func() bool { return sink.count("d1") >= 1 })
	mgr.Stop("d1")
	mgr.StopAll()

	n := sink.count("d1")
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, n, sink.count("d1"))
}
