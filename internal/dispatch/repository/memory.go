package repository

import (
	"context"
	"strings"
	"sync"

	"github.com/example/dispatchlite/internal/dispatch/domain"
)

// MemoryStore is the in-memory implementation of domain.Store. It owns all
// ambulance, request and hospital records; every mutation happens under its
// lock so concurrent location and status writers never lose updates.
type MemoryStore struct {
	mu sync.RWMutex

	ambulances map[int64]domain.Ambulance
	requests   map[int64]domain.Request
	hospitals  map[int64]domain.Hospital

	// driverID -> ambulance id secondary index
	byDriver map[string]int64

	nextAmbulanceID int64
	nextRequestID   int64
	nextHospitalID  int64

	clock domain.Clock
}

// NewMemoryStore constructs an empty store. It is built once at process start
// and handed to every collaborator; there is no package-level instance.
func NewMemoryStore(clock domain.Clock) *MemoryStore {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	return &MemoryStore{
		ambulances:      make(map[int64]domain.Ambulance),
		requests:        make(map[int64]domain.Request),
		hospitals:       make(map[int64]domain.Hospital),
		byDriver:        make(map[string]int64),
		nextAmbulanceID: 1,
		nextRequestID:   1,
		nextHospitalID:  1,
		clock:           clock,
	}
}

// ListAmbulances returns all ambulance records, no ordering guarantee.
func (s *MemoryStore) ListAmbulances(_ context.Context) ([]domain.Ambulance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Ambulance, 0, len(s.ambulances))
	for _, a := range s.ambulances {
		out = append(out, a)
	}
	return out, nil
}

// GetAmbulanceByDriver looks up an ambulance through the driver index.
func (s *MemoryStore) GetAmbulanceByDriver(_ context.Context, driverID string) (domain.Ambulance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ambulanceByDriverLocked(driverID)
}

func (s *MemoryStore) ambulanceByDriverLocked(driverID string) (domain.Ambulance, error) {
	id, ok := s.byDriver[driverID]
	if !ok {
		return domain.Ambulance{}, domain.ErrNotFound
	}
	return s.ambulances[id], nil
}

// UpsertAmbulance merges the given fields into an existing record keyed by
// driver id, or creates a new one. An empty status keeps the existing value
// (or defaults to available for a new record).
func (s *MemoryStore) UpsertAmbulance(_ context.Context, params domain.UpsertAmbulanceParams) (domain.Ambulance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	if id, ok := s.byDriver[params.DriverID]; ok {
		existing := s.ambulances[id]
		existing.DriverName = params.DriverName
		existing.DriverEmail = params.DriverEmail
		existing.Phone = params.Phone
		existing.Lat = params.Lat
		existing.Lng = params.Lng
		existing.Type = params.Type
		if params.Status != "" {
			existing.Status = params.Status
		}
		existing.LastUpdated = now
		s.ambulances[id] = existing
		return existing, nil
	}

	status := params.Status
	if status == "" {
		status = domain.StatusAvailable
	}
	ambulance := domain.Ambulance{
		ID:          s.nextAmbulanceID,
		DriverID:    params.DriverID,
		DriverName:  params.DriverName,
		DriverEmail: params.DriverEmail,
		Phone:       params.Phone,
		Lat:         params.Lat,
		Lng:         params.Lng,
		Type:        params.Type,
		Status:      status,
		LastUpdated: now,
	}
	s.nextAmbulanceID++
	s.ambulances[ambulance.ID] = ambulance
	s.byDriver[ambulance.DriverID] = ambulance.ID
	return ambulance, nil
}

// UpdateAmbulanceLocation touches coordinates and the timestamp only.
func (s *MemoryStore) UpdateAmbulanceLocation(_ context.Context, driverID string, lat, lng float64) (domain.Ambulance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ambulance, err := s.ambulanceByDriverLocked(driverID)
	if err != nil {
		return domain.Ambulance{}, err
	}
	ambulance.Lat = lat
	ambulance.Lng = lng
	ambulance.LastUpdated = s.clock.Now()
	s.ambulances[ambulance.ID] = ambulance
	return ambulance, nil
}

// UpdateAmbulanceStatus applies a guarded status transition.
func (s *MemoryStore) UpdateAmbulanceStatus(_ context.Context, driverID string, status domain.AmbulanceStatus) (domain.Ambulance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ambulance, err := s.ambulanceByDriverLocked(driverID)
	if err != nil {
		return domain.Ambulance{}, err
	}
	if !ambulance.Status.CanTransitionTo(status) {
		return domain.Ambulance{}, domain.ErrInvalidTransition
	}
	ambulance.Status = status
	ambulance.LastUpdated = s.clock.Now()
	s.ambulances[ambulance.ID] = ambulance
	return ambulance, nil
}

// ListRequests returns all dispatch requests.
func (s *MemoryStore) ListRequests(_ context.Context) ([]domain.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Request, 0, len(s.requests))
	for _, r := range s.requests {
		out = append(out, r)
	}
	return out, nil
}

// GetRequest retrieves a request by id.
func (s *MemoryStore) GetRequest(_ context.Context, id int64) (domain.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	request, ok := s.requests[id]
	if !ok {
		return domain.Request{}, domain.ErrNotFound
	}
	return request, nil
}

// CreateRequest allocates an id and stores the request as pending.
func (s *MemoryStore) CreateRequest(_ context.Context, params domain.CreateRequestParams) (domain.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	request := domain.Request{
		ID:           s.nextRequestID,
		PatientName:  params.PatientName,
		PatientPhone: params.PatientPhone,
		Emergency:    params.Emergency,
		Lat:          params.Lat,
		Lng:          params.Lng,
		Status:       domain.RequestPending,
		CreatedAt:    s.clock.Now(),
	}
	s.nextRequestID++
	s.requests[request.ID] = request
	return request, nil
}

// UpdateRequestStatus merges status and, when provided, driver id into the
// record. Legal-transition enforcement lives in the lifecycle service.
func (s *MemoryStore) UpdateRequestStatus(_ context.Context, id int64, status domain.RequestStatus, driverID string) (domain.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	request, ok := s.requests[id]
	if !ok {
		return domain.Request{}, domain.ErrNotFound
	}
	request.Status = status
	if driverID != "" {
		request.DriverID = driverID
	}
	s.requests[id] = request
	return request, nil
}

// AcceptRequest transitions the request to accepted and the assigned
// ambulance to busy in one critical section, so a crash between the two
// writes cannot leave a busy ambulance without a request or vice versa.
func (s *MemoryStore) AcceptRequest(_ context.Context, id int64, driverID string) (domain.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	request, ok := s.requests[id]
	if !ok {
		return domain.Request{}, domain.ErrNotFound
	}
	if request.Status != domain.RequestPending {
		return domain.Request{}, domain.ErrInvalidTransition
	}
	ambulance, err := s.ambulanceByDriverLocked(driverID)
	if err != nil {
		return domain.Request{}, err
	}
	// Only an available unit may take a job; a busy ambulance already has
	// exactly one active request.
	if ambulance.Status != domain.StatusAvailable {
		return domain.Request{}, domain.ErrInvalidTransition
	}

	ambulance.Status = domain.StatusBusy
	ambulance.LastUpdated = s.clock.Now()
	s.ambulances[ambulance.ID] = ambulance

	request.Status = domain.RequestAccepted
	request.DriverID = driverID
	s.requests[id] = request
	return request, nil
}

// ListHospitals returns all hospital records.
func (s *MemoryStore) ListHospitals(_ context.Context) ([]domain.Hospital, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hospitalsLocked(), nil
}

func (s *MemoryStore) hospitalsLocked() []domain.Hospital {
	out := make([]domain.Hospital, 0, len(s.hospitals))
	for _, h := range s.hospitals {
		out = append(out, h)
	}
	return out
}

// CreateHospital allocates an id and stores the hospital as given. Hospitals
// are immutable afterwards.
func (s *MemoryStore) CreateHospital(_ context.Context, params domain.CreateHospitalParams) (domain.Hospital, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hospital := domain.Hospital{
		ID:          s.nextHospitalID,
		Name:        params.Name,
		Address:     params.Address,
		Phone:       params.Phone,
		Lat:         params.Lat,
		Lng:         params.Lng,
		Rating:      params.Rating,
		Specialties: append([]string(nil), params.Specialties...),
		Type:        params.Type,
	}
	s.nextHospitalID++
	s.hospitals[hospital.ID] = hospital
	return hospital, nil
}

// SearchHospitalsBySpecialty matches the tag case-insensitively as a
// substring of any specialty. An empty tag returns the full list.
func (s *MemoryStore) SearchHospitalsBySpecialty(_ context.Context, specialty string) ([]domain.Hospital, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if specialty == "" {
		return s.hospitalsLocked(), nil
	}
	needle := strings.ToLower(specialty)
	var out []domain.Hospital
	for _, h := range s.hospitals {
		for _, tag := range h.Specialties {
			if strings.Contains(strings.ToLower(tag), needle) {
				out = append(out, h)
				break
			}
		}
	}
	if out == nil {
		out = []domain.Hospital{}
	}
	return out, nil
}

var _ domain.Store = (*MemoryStore)(nil)
