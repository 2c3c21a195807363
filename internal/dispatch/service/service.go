package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/dispatchlite/internal/dispatch/domain"
)

// Presence mirrors ambulance positions into a geo index so nearby lookups
// don't scan the whole fleet. Optional collaborator.
type Presence interface {
	Update(ctx context.Context, driverID string, p domain.GeoPoint) error
	Remove(ctx context.Context, driverID string) error
}

// Service is the request lifecycle controller. Every state transition for
// requests and ambulances goes through it; the store only enforces the
// per-record invariants.
type Service struct {
	store    domain.Store
	events   domain.EventPublisher
	clock    domain.Clock
	presence Presence
	logger   *zap.Logger
}

// New constructs a Service with the required collaborators. Presence may be
// nil.
func New(store domain.Store, events domain.EventPublisher, clock domain.Clock, presence Presence, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, events: events, clock: clock, presence: presence, logger: logger}
}

// ListAmbulances returns the fleet.
func (s *Service) ListAmbulances(ctx context.Context) ([]domain.Ambulance, error) {
	return s.store.ListAmbulances(ctx)
}

// GetAmbulance looks up one ambulance by driver id.
func (s *Service) GetAmbulance(ctx context.Context, driverID string) (domain.Ambulance, error) {
	return s.store.GetAmbulanceByDriver(ctx, driverID)
}

// RegisterAmbulance validates and upserts a driver's ambulance record.
func (s *Service) RegisterAmbulance(ctx context.Context, params domain.UpsertAmbulanceParams) (domain.Ambulance, error) {
	if strings.TrimSpace(params.DriverID) == "" {
		return domain.Ambulance{}, domain.NewValidationError("driverId", "must not be empty")
	}
	if strings.TrimSpace(params.DriverName) == "" {
		return domain.Ambulance{}, domain.NewValidationError("driverName", "must not be empty")
	}
	if strings.TrimSpace(params.Phone) == "" {
		return domain.Ambulance{}, domain.NewValidationError("phone", "must not be empty")
	}
	if params.Type == "" {
		return domain.Ambulance{}, domain.NewValidationError("type", "must not be empty")
	}

	ambulance, err := s.store.UpsertAmbulance(ctx, params)
	if err != nil {
		return domain.Ambulance{}, err
	}
	s.updatePresence(ctx, ambulance)
	s.publish(ctx, domain.EventAmbulanceUpserted, map[string]any{
		"driver_id": ambulance.DriverID,
		"status":    string(ambulance.Status),
	})
	return ambulance, nil
}

// UpdateLocation applies a driver-reported position.
func (s *Service) UpdateLocation(ctx context.Context, driverID string, lat, lng float64) (domain.Ambulance, error) {
	ambulance, err := s.store.UpdateAmbulanceLocation(ctx, driverID, lat, lng)
	if err != nil {
		return domain.Ambulance{}, err
	}
	s.updatePresence(ctx, ambulance)
	s.publish(ctx, domain.EventLocationUpdated, map[string]any{
		"driver_id": driverID,
		"lat":       lat,
		"lng":       lng,
	})
	return ambulance, nil
}

// UpdateStatus applies a guarded ambulance status transition. Raw input is
// validated against the closed enum before it reaches the store.
func (s *Service) UpdateStatus(ctx context.Context, driverID, rawStatus string) (domain.Ambulance, error) {
	status, err := domain.ParseAmbulanceStatus(rawStatus)
	if err != nil {
		return domain.Ambulance{}, err
	}
	ambulance, err := s.store.UpdateAmbulanceStatus(ctx, driverID, status)
	if err != nil {
		return domain.Ambulance{}, err
	}
	if status == domain.StatusOffline && s.presence != nil {
		if err := s.presence.Remove(ctx, driverID); err != nil {
			s.logger.Warn("presence remove failed", zap.String("driver_id", driverID), zap.Error(err))
		}
	}
	s.publish(ctx, domain.EventStatusChanged, map[string]any{
		"driver_id": driverID,
		"status":    string(status),
	})
	return ambulance, nil
}

// ListRequests returns all dispatch requests.
func (s *Service) ListRequests(ctx context.Context) ([]domain.Request, error) {
	return s.store.ListRequests(ctx)
}

// CreateRequest validates patient input and stores a pending request.
func (s *Service) CreateRequest(ctx context.Context, params domain.CreateRequestParams) (domain.Request, error) {
	if strings.TrimSpace(params.PatientName) == "" {
		return domain.Request{}, domain.NewValidationError("patientName", "must not be empty")
	}
	if strings.TrimSpace(params.PatientPhone) == "" {
		return domain.Request{}, domain.NewValidationError("patientPhone", "must not be empty")
	}
	if strings.TrimSpace(params.Emergency) == "" {
		return domain.Request{}, domain.NewValidationError("emergency", "must not be empty")
	}

	request, err := s.store.CreateRequest(ctx, params)
	if err != nil {
		return domain.Request{}, err
	}
	s.publish(ctx, domain.EventRequestCreated, map[string]any{
		"request_id": request.ID,
		"patient":    request.PatientName,
	})
	return request, nil
}

// AcceptRequest assigns a driver to a pending request. The store couples the
// request transition with the ambulance going busy in one critical section;
// a second accept on the same request is rejected.
func (s *Service) AcceptRequest(ctx context.Context, requestID int64, driverID string) (domain.Request, error) {
	if strings.TrimSpace(driverID) == "" {
		return domain.Request{}, domain.NewValidationError("driverId", "required to accept a request")
	}
	request, err := s.store.AcceptRequest(ctx, requestID, driverID)
	if err != nil {
		return domain.Request{}, err
	}
	s.publish(ctx, domain.EventRequestAccepted, map[string]any{
		"request_id": request.ID,
		"driver_id":  driverID,
	})
	return request, nil
}

// CompleteRequest finishes an accepted request and releases its ambulance.
func (s *Service) CompleteRequest(ctx context.Context, requestID int64) (domain.Request, error) {
	return s.finishRequest(ctx, requestID, domain.RequestCompleted, domain.EventRequestCompleted)
}

// CancelRequest cancels a pending or accepted request, releasing the
// ambulance when one was assigned.
func (s *Service) CancelRequest(ctx context.Context, requestID int64) (domain.Request, error) {
	return s.finishRequest(ctx, requestID, domain.RequestCancelled, domain.EventRequestCancelled)
}

func (s *Service) finishRequest(ctx context.Context, requestID int64, next domain.RequestStatus, event domain.EventType) (domain.Request, error) {
	request, err := s.store.GetRequest(ctx, requestID)
	if err != nil {
		return domain.Request{}, err
	}
	if !request.Status.CanTransitionTo(next) {
		return domain.Request{}, domain.ErrInvalidTransition
	}

	updated, err := s.store.UpdateRequestStatus(ctx, requestID, next, "")
	if err != nil {
		return domain.Request{}, err
	}
	if updated.DriverID != "" {
		if _, err := s.store.UpdateAmbulanceStatus(ctx, updated.DriverID, domain.StatusAvailable); err != nil {
			// The ambulance may have gone offline in the meantime; the
			// request transition still stands.
			s.logger.Warn("ambulance release failed",
				zap.String("driver_id", updated.DriverID), zap.Error(err))
		}
	}
	s.publish(ctx, event, map[string]any{
		"request_id": updated.ID,
		"driver_id":  updated.DriverID,
	})
	return updated, nil
}

// TransitionRequest dispatches a raw status change from the PATCH endpoint
// to the guarded operations above.
func (s *Service) TransitionRequest(ctx context.Context, requestID int64, rawStatus, driverID string) (domain.Request, error) {
	status, err := domain.ParseRequestStatus(rawStatus)
	if err != nil {
		return domain.Request{}, err
	}
	switch status {
	case domain.RequestAccepted:
		return s.AcceptRequest(ctx, requestID, driverID)
	case domain.RequestCompleted:
		return s.CompleteRequest(ctx, requestID)
	case domain.RequestCancelled:
		return s.CancelRequest(ctx, requestID)
	default:
		return domain.Request{}, domain.ErrInvalidTransition
	}
}

// ListHospitals returns the hospital directory.
func (s *Service) ListHospitals(ctx context.Context) ([]domain.Hospital, error) {
	return s.store.ListHospitals(ctx)
}

// CreateHospital validates and stores a hospital record.
func (s *Service) CreateHospital(ctx context.Context, params domain.CreateHospitalParams) (domain.Hospital, error) {
	if strings.TrimSpace(params.Name) == "" {
		return domain.Hospital{}, domain.NewValidationError("name", "must not be empty")
	}
	return s.store.CreateHospital(ctx, params)
}

// SearchHospitals filters hospitals by specialty tag.
func (s *Service) SearchHospitals(ctx context.Context, specialty string) ([]domain.Hospital, error) {
	return s.store.SearchHospitalsBySpecialty(ctx, specialty)
}

func (s *Service) updatePresence(ctx context.Context, ambulance domain.Ambulance) {
	if s.presence == nil {
		return
	}
	if err := s.presence.Update(ctx, ambulance.DriverID, ambulance.Position()); err != nil {
		s.logger.Warn("presence update failed",
			zap.String("driver_id", ambulance.DriverID), zap.Error(err))
	}
}

func (s *Service) publish(ctx context.Context, eventType domain.EventType, payload map[string]any) {
	if s.events == nil {
		return
	}
	_ = s.events.Publish(ctx, domain.DispatchEvent{
		ID:        uuid.New(),
		Type:      eventType,
		Payload:   payload,
		CreatedAt: s.now(),
	})
}

func (s *Service) now() time.Time {
	if s.clock != nil {
		return s.clock.Now()
	}
	return time.Now().UTC()
}
