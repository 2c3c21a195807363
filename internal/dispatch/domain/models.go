package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type AmbulanceStatus string

const (
	StatusAvailable AmbulanceStatus = "available"
	StatusBusy      AmbulanceStatus = "busy"
	StatusOffline   AmbulanceStatus = "offline"
)

type AmbulanceType string

const (
	TypeGovernment AmbulanceType = "government"
	TypePrivate    AmbulanceType = "private"
)

type RequestStatus string

const (
	RequestPending   RequestStatus = "pending"
	RequestAccepted  RequestStatus = "accepted"
	RequestCompleted RequestStatus = "completed"
	RequestCancelled RequestStatus = "cancelled"
)

var ErrNotFound = errors.New("entity not found")
var ErrInvalidTransition = errors.New("invalid status transition")

// ValidationError reports rejected input; it is distinct from not-found and
// internal failures so handlers can map it to a 400.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

var ambulanceTransitions = map[AmbulanceStatus][]AmbulanceStatus{
	StatusAvailable: {StatusBusy, StatusOffline},
	StatusBusy:      {StatusAvailable, StatusOffline},
	StatusOffline:   {StatusAvailable},
}

func (s AmbulanceStatus) CanTransitionTo(next AmbulanceStatus) bool {
	if s == next {
		return true
	}
	for _, candidate := range ambulanceTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

var requestTransitions = map[RequestStatus][]RequestStatus{
	RequestPending:  {RequestAccepted, RequestCancelled},
	RequestAccepted: {RequestCompleted, RequestCancelled},
}

func (s RequestStatus) CanTransitionTo(next RequestStatus) bool {
	for _, candidate := range requestTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are permitted.
func (s RequestStatus) IsTerminal() bool {
	return s == RequestCompleted || s == RequestCancelled
}

// ParseAmbulanceStatus validates a free-form status string against the
// closed enum, so stores only ever see known values.
func ParseAmbulanceStatus(raw string) (AmbulanceStatus, error) {
	switch AmbulanceStatus(raw) {
	case StatusAvailable, StatusBusy, StatusOffline:
		return AmbulanceStatus(raw), nil
	default:
		return "", NewValidationError("status", fmt.Sprintf("unknown ambulance status %q", raw))
	}
}

func ParseRequestStatus(raw string) (RequestStatus, error) {
	switch RequestStatus(raw) {
	case RequestPending, RequestAccepted, RequestCompleted, RequestCancelled:
		return RequestStatus(raw), nil
	default:
		return "", NewValidationError("status", fmt.Sprintf("unknown request status %q", raw))
	}
}

func ParseAmbulanceType(raw string) (AmbulanceType, error) {
	switch AmbulanceType(raw) {
	case TypeGovernment, TypePrivate:
		return AmbulanceType(raw), nil
	default:
		return "", NewValidationError("type", fmt.Sprintf("unknown ambulance type %q", raw))
	}
}

type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type Ambulance struct {
	ID          int64           `json:"id"`
	DriverID    string          `json:"driverId"`
	DriverName  string          `json:"driverName"`
	DriverEmail string          `json:"driverEmail"`
	Phone       string          `json:"phone"`
	Lat         float64         `json:"lat"`
	Lng         float64         `json:"lng"`
	Type        AmbulanceType   `json:"type"`
	Status      AmbulanceStatus `json:"status"`
	LastUpdated time.Time       `json:"lastUpdated"`
}

// Position returns the ambulance's current coordinates.
func (a Ambulance) Position() GeoPoint {
	return GeoPoint{Lat: a.Lat, Lng: a.Lng}
}

type Request struct {
	ID           int64         `json:"id"`
	PatientName  string        `json:"patientName"`
	PatientPhone string        `json:"patientPhone"`
	Emergency    string        `json:"emergency"`
	Lat          *float64      `json:"lat"`
	Lng          *float64      `json:"lng"`
	DriverID     string        `json:"driverId"`
	Status       RequestStatus `json:"status"`
	CreatedAt    time.Time     `json:"createdAt"`
}

type Hospital struct {
	ID          int64         `json:"id"`
	Name        string        `json:"name"`
	Address     string        `json:"address"`
	Phone       string        `json:"phone"`
	Lat         float64       `json:"lat"`
	Lng         float64       `json:"lng"`
	Rating      float64       `json:"rating"`
	Specialties []string      `json:"specialties"`
	Type        AmbulanceType `json:"type"`
}

// Route is derived, never persisted. Path runs from origin to destination.
type Route struct {
	Path            []GeoPoint `json:"path"`
	DistanceMeters  float64    `json:"distanceMeters"`
	DurationSeconds float64    `json:"durationSeconds"`
}

// UpsertAmbulanceParams carries the fields a driver registration provides.
// Status is optional; when empty an existing record keeps its status and a
// new record defaults to available.
type UpsertAmbulanceParams struct {
	DriverID    string
	DriverName  string
	DriverEmail string
	Phone       string
	Lat         float64
	Lng         float64
	Type        AmbulanceType
	Status      AmbulanceStatus
}

// CreateRequestParams carries patient input for a new dispatch request.
type CreateRequestParams struct {
	PatientName  string
	PatientPhone string
	Emergency    string
	Lat          *float64
	Lng          *float64
}

// CreateHospitalParams carries input for a new hospital record.
type CreateHospitalParams struct {
	Name        string
	Address     string
	Phone       string
	Lat         float64
	Lng         float64
	Rating      float64
	Specialties []string
	Type        AmbulanceType
}

// Store is the authoritative repository for ambulances, requests and
// hospitals. Not-found outcomes are signalled with ErrNotFound.
type Store interface {
	ListAmbulances(ctx context.Context) ([]Ambulance, error)
	GetAmbulanceByDriver(ctx context.Context, driverID string) (Ambulance, error)
	UpsertAmbulance(ctx context.Context, params UpsertAmbulanceParams) (Ambulance, error)
	UpdateAmbulanceLocation(ctx context.Context, driverID string, lat, lng float64) (Ambulance, error)
	UpdateAmbulanceStatus(ctx context.Context, driverID string, status AmbulanceStatus) (Ambulance, error)

	ListRequests(ctx context.Context) ([]Request, error)
	GetRequest(ctx context.Context, id int64) (Request, error)
	CreateRequest(ctx context.Context, params CreateRequestParams) (Request, error)
	UpdateRequestStatus(ctx context.Context, id int64, status RequestStatus, driverID string) (Request, error)
	AcceptRequest(ctx context.Context, id int64, driverID string) (Request, error)

	ListHospitals(ctx context.Context) ([]Hospital, error)
	CreateHospital(ctx context.Context, params CreateHospitalParams) (Hospital, error)
	SearchHospitalsBySpecialty(ctx context.Context, specialty string) ([]Hospital, error)
}

type EventType string

const (
	EventRequestCreated    EventType = "RequestCreated"
	EventRequestAccepted   EventType = "RequestAccepted"
	EventRequestCompleted  EventType = "RequestCompleted"
	EventRequestCancelled  EventType = "RequestCancelled"
	EventAmbulanceUpserted EventType = "AmbulanceUpserted"
	EventStatusChanged     EventType = "AmbulanceStatusChanged"
	EventLocationUpdated   EventType = "AmbulanceLocationUpdated"
)

// DispatchEvent is emitted on every state change so trackers can subscribe
// instead of polling.
type DispatchEvent struct {
	ID        uuid.UUID      `json:"id"`
	Type      EventType      `json:"type"`
	Payload   map[string]any `json:"payload,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

type EventPublisher interface {
	Publish(ctx context.Context, event DispatchEvent) error
}

// RouteProvider computes a path between two points. Implementations must
// always return a usable route, degrading to an estimate when the backing
// service is unavailable.
type RouteProvider interface {
	Route(ctx context.Context, origin, dest GeoPoint) Route
}

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }
