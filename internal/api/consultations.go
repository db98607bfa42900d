package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/hackgods/appointment-booking-saga/internal/consultation"
)

type ConsultationService interface {
	Create(ctx context.Context, req consultation.CreateRequest) (*consultation.Consultation, error)
	Get(ctx context.Context, id int64) (*consultation.Consultation, error)
	List(ctx context.Context, f consultation.Filter) ([]consultation.Consultation, error)
	UpdateNotes(ctx context.Context, id int64, notes string) (*consultation.Consultation, error)
}

func createConsultationHandler(svc ConsultationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateConsultationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		created, err := svc.Create(r.Context(), consultation.CreateRequest{
			DoctorID:         req.DoctorID,
			PatientID:        req.PatientID,
			Specialty:        req.Specialty,
			AppointmentID:    req.AppointmentID,
			ConsultationDate: req.ConsultationDate,
			Notes:            req.Notes,
		})
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toConsultationResponse(*created))
	}
}

func getConsultationHandler(svc ConsultationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(r)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_consultation_id", "id must be a positive integer")
			return
		}

		c, err := svc.Get(r.Context(), id)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toConsultationResponse(*c))
	}
}

func listConsultationsHandler(svc ConsultationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var f consultation.Filter
		for name, dst := range map[string]*int64{
			"patientId":     &f.PatientID,
			"doctorId":      &f.DoctorID,
			"appointmentId": &f.AppointmentID,
		} {
			id, ok := queryID(r, name)
			if !ok {
				writeError(w, http.StatusBadRequest, "invalid_query", name+" must be a positive integer")
				return
			}
			*dst = id
		}

		list, err := svc.List(r.Context(), f)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		resp := ConsultationListResponse{Consultations: make([]ConsultationResponse, 0, len(list))}
		for _, c := range list {
			resp.Consultations = append(resp.Consultations, toConsultationResponse(c))
		}
		resp.Count = len(resp.Consultations)

		writeJSON(w, http.StatusOK, resp)
	}
}

func updateConsultationNotesHandler(svc ConsultationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(r)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_consultation_id", "id must be a positive integer")
			return
		}

		var req UpdateNotesRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		updated, err := svc.UpdateNotes(r.Context(), id, req.Notes)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toConsultationResponse(*updated))
	}
}
