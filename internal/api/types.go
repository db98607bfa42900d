package api

import (
	"time"

	"github.com/hackgods/appointment-booking-saga/internal/appointment"
	"github.com/hackgods/appointment-booking-saga/internal/consultation"
	"github.com/hackgods/appointment-booking-saga/internal/provider"
)

type CreateAppointmentRequest struct {
	Date      time.Time `json:"date"`
	Specialty string    `json:"specialty"`
	PatientID int64     `json:"patientId"`
}

type UpdateStatusRequest struct {
	Status string `json:"status"`
}

type ProviderSummaryResponse struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Specialty string `json:"specialty"`
}

type AppointmentResponse struct {
	ID        int64                    `json:"id"`
	Date      time.Time                `json:"date"`
	DoctorID  int64                    `json:"doctorId"`
	Specialty string                   `json:"specialty"`
	PatientID int64                    `json:"patientId"`
	Status    string                   `json:"status"`
	CreatedAt time.Time                `json:"createdAt"`
	UpdatedAt time.Time                `json:"updatedAt"`
	Provider  *ProviderSummaryResponse `json:"provider,omitempty"`
}

type AppointmentListResponse struct {
	Appointments []AppointmentResponse `json:"appointments"`
	Count        int                   `json:"count"`
}

func toAppointmentResponse(a appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:        a.ID,
		Date:      a.Date,
		DoctorID:  a.DoctorID,
		Specialty: a.Specialty,
		PatientID: a.PatientID,
		Status:    string(a.Status),
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

func toBookingResponse(b appointment.Booking) AppointmentResponse {
	resp := toAppointmentResponse(b.Appointment)
	resp.Provider = &ProviderSummaryResponse{
		ID:        b.Provider.ID,
		Name:      b.Provider.Name,
		Specialty: b.Provider.Specialty,
	}
	return resp
}

type ProviderRequest struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	Specialty string `json:"specialty"`
	Service   string `json:"service"`
	Available *bool  `json:"available"`
}

type AvailabilityRequest struct {
	Available *bool `json:"available"`
}

type ProviderResponse struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Specialty string    `json:"specialty"`
	Service   string    `json:"service,omitempty"`
	Available bool      `json:"available"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ProviderListResponse is the body the discovery client decodes.
type ProviderListResponse struct {
	Providers []ProviderResponse `json:"providers"`
	Count     int                `json:"count"`
}

func toProviderResponse(p provider.Provider) ProviderResponse {
	return ProviderResponse{
		ID:        p.ID,
		Name:      p.Name,
		Email:     p.Email,
		Specialty: p.Specialty,
		Service:   p.Service,
		Available: p.Available,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

type CreateConsultationRequest struct {
	DoctorID         int64     `json:"doctorId"`
	PatientID        int64     `json:"patientId"`
	Specialty        string    `json:"specialty"`
	AppointmentID    int64     `json:"appointmentId"`
	ConsultationDate time.Time `json:"consultationDate"`
	Notes            *string   `json:"notes"`
}

type UpdateNotesRequest struct {
	Notes string `json:"notes"`
}

type ConsultationResponse struct {
	ID               int64     `json:"id"`
	DoctorID         int64     `json:"doctorId"`
	PatientID        int64     `json:"patientId"`
	Specialty        string    `json:"specialty"`
	AppointmentID    int64     `json:"appointmentId"`
	ConsultationDate time.Time `json:"consultationDate"`
	Notes            *string   `json:"notes"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

type ConsultationListResponse struct {
	Consultations []ConsultationResponse `json:"consultations"`
	Count         int                    `json:"count"`
}

func toConsultationResponse(c consultation.Consultation) ConsultationResponse {
	return ConsultationResponse{
		ID:               c.ID,
		DoctorID:         c.DoctorID,
		PatientID:        c.PatientID,
		Specialty:        c.Specialty,
		AppointmentID:    c.AppointmentID,
		ConsultationDate: c.ConsultationDate,
		Notes:            c.Notes,
		CreatedAt:        c.CreatedAt,
		UpdatedAt:        c.UpdatedAt,
	}
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
