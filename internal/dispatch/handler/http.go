package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/example/dispatchlite/internal/dispatch/domain"
	"github.com/example/dispatchlite/internal/dispatch/service"
	etasvc "github.com/example/dispatchlite/internal/eta/service"
)

// HTTP exposes the dispatch API.
type HTTP struct {
	svc        *service.Service
	eta        *etasvc.Service
	driverAuth func(http.Handler) http.Handler
	logger     *zap.Logger
}

// NewHTTP constructs a handler. driverAuth wraps the driver mutation
// endpoints; pass nil to leave them open.
func NewHTTP(svc *service.Service, eta *etasvc.Service, driverAuth func(http.Handler) http.Handler, logger *zap.Logger) *HTTP {
	if driverAuth == nil {
		driverAuth = func(next http.Handler) http.Handler { return next }
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTP{svc: svc, eta: eta, driverAuth: driverAuth, logger: logger}
}

// Router builds the chi router with all endpoints and middlewares.
func (h *HTTP) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/ambulances", h.listAmbulances)
		r.Get("/ambulances/{driverId}", h.getAmbulance)
		r.Get("/requests", h.listRequests)
		r.Post("/requests", h.createRequest)
		r.Get("/hospitals", h.listHospitals)
		r.Post("/hospitals", h.createHospital)
		r.Get("/hospitals/search", h.searchHospitals)
		r.Get("/eta", h.estimateArrival)
		r.Get("/eta/nearest", h.nearestAmbulance)

		r.Group(func(r chi.Router) {
			r.Use(h.driverAuth)
			r.Post("/ambulances", h.upsertAmbulance)
			r.Patch("/ambulances/{driverId}/location", h.updateLocation)
			r.Patch("/ambulances/{driverId}/status", h.updateStatus)
			r.Patch("/requests/{requestId}", h.transitionRequest)
		})
	})
	return r
}

func (h *HTTP) listAmbulances(w http.ResponseWriter, r *http.Request) {
	ambulances, err := h.svc.ListAmbulances(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ambulances)
}

type upsertAmbulanceRequest struct {
	DriverID    string  `json:"driverId"`
	DriverName  string  `json:"driverName"`
	DriverEmail string  `json:"driverEmail"`
	Phone       string  `json:"phone"`
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`
	Type        string  `json:"type"`
	Status      string  `json:"status"`
}

func (h *HTTP) upsertAmbulance(w http.ResponseWriter, r *http.Request) {
	var payload upsertAmbulanceRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	ambType, err := domain.ParseAmbulanceType(payload.Type)
	if err != nil {
		h.writeError(w, err)
		return
	}
	var status domain.AmbulanceStatus
	if payload.Status != "" {
		if status, err = domain.ParseAmbulanceStatus(payload.Status); err != nil {
			h.writeError(w, err)
			return
		}
	}
	ambulance, err := h.svc.RegisterAmbulance(r.Context(), domain.UpsertAmbulanceParams{
		DriverID:    payload.DriverID,
		DriverName:  payload.DriverName,
		DriverEmail: payload.DriverEmail,
		Phone:       payload.Phone,
		Lat:         payload.Lat,
		Lng:         payload.Lng,
		Type:        ambType,
		Status:      status,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ambulance)
}

func (h *HTTP) getAmbulance(w http.ResponseWriter, r *http.Request) {
	ambulance, err := h.svc.GetAmbulance(r.Context(), chi.URLParam(r, "driverId"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ambulance)
}

func (h *HTTP) updateLocation(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Lat *float64 `json:"lat"`
		Lng *float64 `json:"lng"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid location data", http.StatusBadRequest)
		return
	}
	if payload.Lat == nil || payload.Lng == nil {
		http.Error(w, "invalid location data", http.StatusBadRequest)
		return
	}
	ambulance, err := h.svc.UpdateLocation(r.Context(), chi.URLParam(r, "driverId"), *payload.Lat, *payload.Lng)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ambulance)
}

func (h *HTTP) updateStatus(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Status *string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.Status == nil {
		http.Error(w, "invalid status", http.StatusBadRequest)
		return
	}
	ambulance, err := h.svc.UpdateStatus(r.Context(), chi.URLParam(r, "driverId"), *payload.Status)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ambulance)
}

func (h *HTTP) listRequests(w http.ResponseWriter, r *http.Request) {
	requests, err := h.svc.ListRequests(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, requests)
}

type createRequestRequest struct {
	PatientName  string   `json:"patientName"`
	PatientPhone string   `json:"patientPhone"`
	Emergency    string   `json:"emergency"`
	Lat          *float64 `json:"lat"`
	Lng          *float64 `json:"lng"`
}

func (h *HTTP) createRequest(w http.ResponseWriter, r *http.Request) {
	var payload createRequestRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	request, err := h.svc.CreateRequest(r.Context(), domain.CreateRequestParams{
		PatientName:  payload.PatientName,
		PatientPhone: payload.PatientPhone,
		Emergency:    payload.Emergency,
		Lat:          payload.Lat,
		Lng:          payload.Lng,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, request)
}

func (h *HTTP) transitionRequest(w http.ResponseWriter, r *http.Request) {
	requestID, err := strconv.ParseInt(chi.URLParam(r, "requestId"), 10, 64)
	if err != nil {
		http.Error(w, "invalid request id", http.StatusBadRequest)
		return
	}
	var payload struct {
		Status   string `json:"status"`
		DriverID string `json:"driverId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	request, err := h.svc.TransitionRequest(r.Context(), requestID, payload.Status, payload.DriverID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, request)
}

func (h *HTTP) listHospitals(w http.ResponseWriter, r *http.Request) {
	hospitals, err := h.svc.ListHospitals(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, hospitals)
}

type createHospitalRequest struct {
	Name        string   `json:"name"`
	Address     string   `json:"address"`
	Phone       string   `json:"phone"`
	Lat         float64  `json:"lat"`
	Lng         float64  `json:"lng"`
	Rating      float64  `json:"rating"`
	Specialties []string `json:"specialties"`
	Type        string   `json:"type"`
}

func (h *HTTP) createHospital(w http.ResponseWriter, r *http.Request) {
	var payload createHospitalRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	hospitalType, err := domain.ParseAmbulanceType(payload.Type)
	if err != nil {
		h.writeError(w, err)
		return
	}
	hospital, err := h.svc.CreateHospital(r.Context(), domain.CreateHospitalParams{
		Name:        payload.Name,
		Address:     payload.Address,
		Phone:       payload.Phone,
		Lat:         payload.Lat,
		Lng:         payload.Lng,
		Rating:      payload.Rating,
		Specialties: payload.Specialties,
		Type:        hospitalType,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, hospital)
}

func (h *HTTP) searchHospitals(w http.ResponseWriter, r *http.Request) {
	hospitals, err := h.svc.SearchHospitals(r.Context(), r.URL.Query().Get("specialty"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, hospitals)
}

func (h *HTTP) estimateArrival(w http.ResponseWriter, r *http.Request) {
	driverID := r.URL.Query().Get("driverId")
	if driverID == "" {
		http.Error(w, "driverId is required", http.StatusBadRequest)
		return
	}
	dest, ok := parseQueryPoint(r)
	if !ok {
		http.Error(w, "lat and lng are required", http.StatusBadRequest)
		return
	}
	estimate, err := h.eta.EstimateArrival(r.Context(), driverID, dest)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, estimate)
}

func (h *HTTP) nearestAmbulance(w http.ResponseWriter, r *http.Request) {
	p, ok := parseQueryPoint(r)
	if !ok {
		http.Error(w, "lat and lng are required", http.StatusBadRequest)
		return
	}
	ambulance, eta, found := h.eta.NearestAvailable(r.Context(), p)
	if !found {
		http.Error(w, "no available ambulance", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ambulance":  ambulance,
		"etaSeconds": eta.Seconds(),
	})
}

func parseQueryPoint(r *http.Request) (domain.GeoPoint, bool) {
	lat, errLat := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
	lng, errLng := strconv.ParseFloat(r.URL.Query().Get("lng"), 64)
	if errLat != nil || errLng != nil {
		return domain.GeoPoint{}, false
	}
	return domain.GeoPoint{Lat: lat, Lng: lng}, true
}

// writeError maps domain outcomes onto status codes: validation 400,
// not-found 404, illegal transition 409, anything else 500.
func (h *HTTP) writeError(w http.ResponseWriter, err error) {
	var validation *domain.ValidationError
	switch {
	case errors.As(err, &validation):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": validation.Error()})
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	case errors.Is(err, domain.ErrInvalidTransition):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	default:
		h.logger.Error("request failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
