package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/hackgods/appointment-booking-saga/internal/appointment"
)

type AppointmentService interface {
	CreateAppointment(ctx context.Context, req appointment.CreateRequest) (*appointment.Booking, error)
	GetAppointment(ctx context.Context, id int64) (*appointment.Appointment, error)
	ListAppointments(ctx context.Context, f appointment.Filter) ([]appointment.Appointment, error)
	UpdateStatus(ctx context.Context, id int64, status appointment.Status) (*appointment.Appointment, error)
}

func createAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		booking, err := svc.CreateAppointment(r.Context(), appointment.CreateRequest{
			Date:      req.Date,
			Specialty: req.Specialty,
			PatientID: req.PatientID,
		})
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toBookingResponse(*booking))
	}
}

func getAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(r)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a positive integer")
			return
		}

		appt, err := svc.GetAppointment(r.Context(), id)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(*appt))
	}
}

func listAppointmentsHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patientID, ok := queryID(r, "patientId")
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patientId must be a positive integer")
			return
		}
		doctorID, ok := queryID(r, "doctorId")
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctorId must be a positive integer")
			return
		}

		list, err := svc.ListAppointments(r.Context(), appointment.Filter{
			PatientID: patientID,
			DoctorID:  doctorID,
			Status:    appointment.Status(strings.ToUpper(r.URL.Query().Get("status"))),
		})
		if err != nil {
			handleServiceError(w, err)
			return
		}

		resp := AppointmentListResponse{Appointments: make([]AppointmentResponse, 0, len(list))}
		for _, a := range list {
			resp.Appointments = append(resp.Appointments, toAppointmentResponse(a))
		}
		resp.Count = len(resp.Appointments)

		writeJSON(w, http.StatusOK, resp)
	}
}

func updateAppointmentStatusHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(r)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a positive integer")
			return
		}

		var req UpdateStatusRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		appt, err := svc.UpdateStatus(r.Context(), id, appointment.Status(req.Status))
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(*appt))
	}
}
