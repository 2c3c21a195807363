package repository

import (
	"context"

	"github.com/example/dispatchlite/internal/dispatch/domain"
)

// Seed loads the demo fleet and hospital directory used by local runs.
func Seed(ctx context.Context, store domain.Store) error {
	ambulances := []domain.UpsertAmbulanceParams{
		{
			DriverID:    "driver001",
			DriverName:  "Rajesh Kumar",
			DriverEmail: "rajesh@example.com",
			Phone:       "+91 9876543210",
			Lat:         28.6139,
			Lng:         77.2090,
			Type:        domain.TypeGovernment,
			Status:      domain.StatusAvailable,
		},
		{
			DriverID:    "driver002",
			DriverName:  "Priya Sharma",
			DriverEmail: "priya@example.com",
			Phone:       "+91 8765432109",
			Lat:         28.6200,
			Lng:         77.2100,
			Type:        domain.TypePrivate,
			Status:      domain.StatusAvailable,
		},
		{
			DriverID:    "driver003",
			DriverName:  "Amit Singh",
			DriverEmail: "amit@example.com",
			Phone:       "+91 7654321098",
			Lat:         28.6300,
			Lng:         77.2200,
			Type:        domain.TypeGovernment,
			Status:      domain.StatusBusy,
		},
	}
	for _, a := range ambulances {
		if _, err := store.UpsertAmbulance(ctx, a); err != nil {
			return err
		}
	}

	hospitals := []domain.CreateHospitalParams{
		{
			Name:        "AIIMS Delhi",
			Address:     "Ansari Nagar, Delhi",
			Phone:       "+91 11-2659-3333",
			Lat:         28.5672,
			Lng:         77.2100,
			Rating:      4.8,
			Specialties: []string{"Cardiology", "Trauma", "Neurology", "Emergency"},
			Type:        domain.TypeGovernment,
		},
		{
			Name:        "Apollo Hospital",
			Address:     "Sarita Vihar, Delhi",
			Phone:       "+91 11-2692-5858",
			Lat:         28.5355,
			Lng:         77.2731,
			Rating:      4.7,
			Specialties: []string{"Cardiology", "Oncology", "Orthopedic", "Emergency"},
			Type:        domain.TypePrivate,
		},
		{
			Name:        "Max Hospital Saket",
			Address:     "Saket, Delhi",
			Phone:       "+91 11-2651-5050",
			Lat:         28.5244,
			Lng:         77.2066,
			Rating:      4.6,
			Specialties: []string{"Neurology", "Pediatric", "Orthopedic", "Emergency"},
			Type:        domain.TypePrivate,
		},
		{
			Name:        "Fortis Hospital",
			Address:     "Shalimar Bagh, Delhi",
			Phone:       "+91 11-4277-6222",
			Lat:         28.7041,
			Lng:         77.1025,
			Rating:      4.5,
			Specialties: []string{"Cardiology", "Trauma", "Emergency", "Orthopedic"},
			Type:        domain.TypePrivate,
		},
		{
			Name:        "Sir Ganga Ram Hospital",
			Address:     "Rajinder Nagar, Delhi",
			Phone:       "+91 11-2525-1111",
			Lat:         28.6463,
			Lng:         77.1918,
			Rating:      4.6,
			Specialties: []string{"Cardiology", "Trauma", "Neurology", "Emergency"},
			Type:        domain.TypePrivate,
		},
		{
			Name:        "Safdarjung Hospital",
			Address:     "Ansari Nagar, Delhi",
			Phone:       "+91 11-2616-5060",
			Lat:         28.5682,
			Lng:         77.2086,
			Rating:      4.2,
			Specialties: []string{"Trauma", "Emergency", "Cardiology", "Neurology"},
			Type:        domain.TypeGovernment,
		},
		{
			Name:        "RML Hospital",
			Address:     "Connaught Place, Delhi",
			Phone:       "+91 11-2336-5525",
			Lat:         28.6315,
			Lng:         77.2167,
			Rating:      4.1,
			Specialties: []string{"Emergency", "Trauma", "Cardiology", "Pediatric"},
			Type:        domain.TypeGovernment,
		},
		{
			Name:        "Medanta Hospital",
			Address:     "Sector 38, Gurgaon",
			Phone:       "+91 124-414-4444",
			Lat:         28.4595,
			Lng:         77.0266,
			Rating:      4.6,
			Specialties: []string{"Cardiology", "Neurology", "Oncology", "Emergency"},
			Type:        domain.TypePrivate,
		},
	}
	for _, h := range hospitals {
		if _, err := store.CreateHospital(ctx, h); err != nil {
			return err
		}
	}
	return nil
}
