package handler_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/example/dispatchlite/internal/dispatch/domain"
	"github.com/example/dispatchlite/internal/dispatch/handler"
	"github.com/example/dispatchlite/internal/dispatch/repository"
	"github.com/example/dispatchlite/internal/dispatch/service"
	etasvc "github.com/example/dispatchlite/internal/eta/service"
	"github.com/example/dispatchlite/internal/routing"
)

type stubClock struct{ t time.Time }

func (s stubClock) Now() time.Time { return s.t }

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	clock := stubClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	store := repository.NewMemoryStore(clock)
	svc := service.New(store, nil, clock, nil, nil)
	eta := etasvc.New(store, routing.NewEstimator(nil, nil))
	api := handler.NewHTTP(svc, eta, nil, nil)
	srv := httptest.NewServer(api.Router())
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url string, body any, out any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func registerAmbulance(t *testing.T, base, driverID string) domain.Ambulance {
	t.Helper()
	var ambulance domain.Ambulance
	resp := doJSON(t, http.MethodPost, base+"/api/ambulances", map[string]any{
		"driverId":   driverID,
		"driverName": "Rajesh Kumar",
		"phone":      "+91 9876543210",
		"lat":        28.61,
		"lng":        77.20,
		"type":       "government",
	}, &ambulance)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return ambulance
}

func TestDispatchFlow(t *testing.T) {
	srv := newServer(t)
	base := srv.URL

	ambulance := registerAmbulance(t, base, "d1")
	require.Equal(t, domain.StatusAvailable, ambulance.Status)

	var ambulances []domain.Ambulance
	resp := doJSON(t, http.MethodGet, base+"/api/ambulances", nil, &ambulances)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, ambulances, 1)

	var request domain.Request
	resp = doJSON(t, http.MethodPost, base+"/api/requests", map[string]any{
		"patientName":  "A",
		"patientPhone": "123",
		"emergency":    "chest pain",
		"lat":          28.64,
		"lng":          77.22,
	}, &request)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, domain.RequestPending, request.Status)

	var accepted domain.Request
	resp = doJSON(t, http.MethodPatch, fmt.Sprintf("%s/api/requests/%d", base, request.ID), map[string]any{
		"status":   "accepted",
		"driverId": "d1",
	}, &accepted)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, domain.RequestAccepted, accepted.Status)
	require.Equal(t, "d1", accepted.DriverID)

	var busy domain.Ambulance
	resp = doJSON(t, http.MethodGet, base+"/api/ambulances/d1", nil, &busy)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, domain.StatusBusy, busy.Status)

	// A second accept of the same request conflicts.
	resp = doJSON(t, http.MethodPatch, fmt.Sprintf("%s/api/requests/%d", base, request.ID), map[string]any{
		"status":   "accepted",
		"driverId": "d1",
	}, nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	var estimate etasvc.Estimate
	resp = doJSON(t, http.MethodGet, base+"/api/eta?driverId=d1&lat=28.64&lng=77.22", nil, &estimate)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Greater(t, estimate.ETASeconds, 0.0)
	require.Len(t, estimate.Route.Path, 2)

	var completed domain.Request
	resp = doJSON(t, http.MethodPatch, fmt.Sprintf("%s/api/requests/%d", base, request.ID), map[string]any{
		"status": "completed",
	}, &completed)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, domain.RequestCompleted, completed.Status)

	var released domain.Ambulance
	resp = doJSON(t, http.MethodGet, base+"/api/ambulances/d1", nil, &released)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, domain.StatusAvailable, released.Status)
}

func TestCreateRequestValidationStatus(t *testing.T) {
	srv := newServer(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/requests", map[string]any{
		"patientPhone": "123",
		"emergency":    "fall",
	}, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUnknownAmbulanceReturns404(t *testing.T) {
	srv := newServer(t)

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/ambulances/ghost", nil, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = doJSON(t, http.MethodPatch, srv.URL+"/api/ambulances/ghost/location", map[string]any{
		"lat": 1.0, "lng": 2.0,
	}, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestLocationPayloadValidation(t *testing.T) {
	srv := newServer(t)
	registerAmbulance(t, srv.URL, "d1")

	// Missing lng must not silently default to zero.
	resp := doJSON(t, http.MethodPatch, srv.URL+"/api/ambulances/d1/location", map[string]any{
		"lat": 28.65,
	}, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var updated domain.Ambulance
	resp = doJSON(t, http.MethodPatch, srv.URL+"/api/ambulances/d1/location", map[string]any{
		"lat": 28.65, "lng": 77.25,
	}, &updated)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.InDelta(t, 28.65, updated.Lat, 1e-9)
}

func TestStatusTransitionEndpoint(t *testing.T) {
	srv := newServer(t)
	registerAmbulance(t, srv.URL, "d1")

	resp := doJSON(t, http.MethodPatch, srv.URL+"/api/ambulances/d1/status", map[string]any{
		"status": "charging",
	}, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var offline domain.Ambulance
	resp = doJSON(t, http.MethodPatch, srv.URL+"/api/ambulances/d1/status", map[string]any{
		"status": "offline",
	}, &offline)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, domain.StatusOffline, offline.Status)

	// offline -> busy is not a legal transition.
	resp = doJSON(t, http.MethodPatch, srv.URL+"/api/ambulances/d1/status", map[string]any{
		"status": "busy",
	}, nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestHospitalSearch(t *testing.T) {
	srv := newServer(t)

	var created domain.Hospital
	resp := doJSON(t, http.MethodPost, srv.URL+"/api/hospitals", map[string]any{
		"name":        "Apollo Hospital",
		"address":     "Sarita Vihar, Delhi",
		"phone":       "+91 11 2692 5858",
		"lat":         28.5362,
		"lng":         77.2855,
		"rating":      4.6,
		"specialties": []string{"Cardiology", "Emergency"},
		"type":        "private",
	}, &created)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var matches []domain.Hospital
	resp = doJSON(t, http.MethodGet, srv.URL+"/api/hospitals/search?specialty=cardio", nil, &matches)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, matches, 1)

	resp = doJSON(t, http.MethodGet, srv.URL+"/api/hospitals/search?specialty=neuro", nil, &matches)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Empty(t, matches)
}

func TestNearestAmbulance(t *testing.T) {
	srv := newServer(t)

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/eta/nearest?lat=28.61&lng=77.20", nil, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	registerAmbulance(t, srv.URL, "d1")

	var payload struct {
		Ambulance  domain.Ambulance `json:"ambulance"`
		ETASeconds float64          `json:"etaSeconds"`
	}
	resp = doJSON(t, http.MethodGet, srv.URL+"/api/eta/nearest?lat=28.62&lng=77.21", nil, &payload)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "d1", payload.Ambulance.DriverID)
	require.Greater(t, payload.ETASeconds, 0.0)
}
