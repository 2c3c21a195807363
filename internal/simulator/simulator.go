package simulator

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/example/dispatchlite/internal/dispatch/domain"
)

// LocationSink receives simulated positions. The dispatch service satisfies
// this so every simulated step goes through the store like a real GPS fix.
type LocationSink interface {
	UpdateLocation(ctx context.Context, driverID string, lat, lng float64) (domain.Ambulance, error)
}

// Config holds the timing knobs. The defaults produce apparent continuous
// motion; tests shrink them.
type Config struct {
	// Steps subdivides each waypoint-to-waypoint segment.
	Steps int
	// StepDelay separates interpolation steps within a segment.
	StepDelay time.Duration
	// SegmentTick separates consecutive waypoints.
	SegmentTick time.Duration
	// JitterTick is the cadence of self-reported drift updates.
	JitterTick time.Duration
	// JitterDelta bounds the random coordinate perturbation.
	JitterDelta float64
}

func (c Config) withDefaults() Config {
	if c.Steps <= 0 {
		c.Steps = 15
	}
	if c.StepDelay <= 0 {
		c.StepDelay = 40 * time.Millisecond
	}
	if c.SegmentTick <= 0 {
		c.SegmentTick = 300 * time.Millisecond
	}
	if c.JitterTick <= 0 {
		c.JitterTick = 2 * time.Second
	}
	if c.JitterDelta <= 0 {
		c.JitterDelta = 0.001
	}
	return c
}

// Manager runs at most one simulation per driver. Starting a new one cancels
// and replaces any previous loop for that driver, so two loops never fight
// over the same marker.
type Manager struct {
	sink   LocationSink
	cfg    Config
	logger *zap.Logger

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup
}

// NewManager constructs a Manager writing through the given sink.
func NewManager(sink LocationSink, cfg Config, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		sink:    sink,
		cfg:     cfg.withDefaults(),
		logger:  logger,
		cancels: make(map[string]context.CancelFunc),
	}
}

// FollowRoute drives the ambulance along the route from its first to its
// last waypoint and stops there; it does not loop.
func (m *Manager) FollowRoute(ctx context.Context, driverID string, route domain.Route) {
	if len(route.Path) == 0 {
		return
	}
	runCtx := m.replace(ctx, driverID)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer m.clear(driverID, runCtx)
		m.followRoute(runCtx, driverID, route)
	}()
}

func (m *Manager) followRoute(ctx context.Context, driverID string, route domain.Route) {
	path := route.Path
	m.writePosition(ctx, driverID, path[0])
	for i := 0; i+1 < len(path); i++ {
		from, to := path[i], path[i+1]
		for step := 1; step <= m.cfg.Steps; step++ {
			if !m.sleep(ctx, m.cfg.StepDelay) {
				return
			}
			t := float64(step) / float64(m.cfg.Steps)
			m.writePosition(ctx, driverID, domain.GeoPoint{
				Lat: from.Lat + (to.Lat-from.Lat)*t,
				Lng: from.Lng + (to.Lng-from.Lng)*t,
			})
		}
		if i+2 < len(path) {
			if !m.sleep(ctx, m.cfg.SegmentTick) {
				return
			}
		}
	}
	m.logger.Debug("route simulation finished", zap.String("driver_id", driverID))
}

// Jitter models organic GPS drift for a driver with no known destination:
// every tick the current position is perturbed by a small random delta and
// persisted. Runs until cancelled.
func (m *Manager) Jitter(ctx context.Context, driverID string, start domain.GeoPoint) {
	runCtx := m.replace(ctx, driverID)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer m.clear(driverID, runCtx)

		pos := start
		ticker := time.NewTicker(m.cfg.JitterTick)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				pos.Lat += (rand.Float64() - 0.5) * m.cfg.JitterDelta
				pos.Lng += (rand.Float64() - 0.5) * m.cfg.JitterDelta
				m.writePosition(runCtx, driverID, pos)
			}
		}
	}()
}

// Stop cancels any running simulation for the driver.
func (m *Manager) Stop(driverID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cancel, ok := m.cancels[driverID]; ok {
		cancel()
		delete(m.cancels, driverID)
	}
}

// StopAll cancels every simulation and waits for the loops to exit.
func (m *Manager) StopAll() {
	m.mu.Lock()
	for id, cancel := range m.cancels {
		cancel()
		delete(m.cancels, id)
	}
	m.mu.Unlock()
	m.wg.Wait()
}

// replace cancels the driver's current loop, registers a fresh context and
// returns it.
func (m *Manager) replace(ctx context.Context, driverID string) context.Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.cancels[driverID]; ok {
		prev()
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancels[driverID] = cancel
	return runCtx
}

// clear removes the registration if it still belongs to this run.
func (m *Manager) clear(driverID string, runCtx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if runCtx.Err() == nil {
		if cancel, ok := m.cancels[driverID]; ok {
			cancel()
			delete(m.cancels, driverID)
		}
	}
}

func (m *Manager) writePosition(ctx context.Context, driverID string, p domain.GeoPoint) {
	if ctx.Err() != nil {
		return
	}
	if _, err := m.sink.UpdateLocation(ctx, driverID, p.Lat, p.Lng); err != nil {
		m.logger.Warn("simulated position write failed",
			zap.String("driver_id", driverID), zap.Error(err))
	}
}

func (m *Manager) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
