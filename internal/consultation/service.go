package consultation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

var ErrInvalidRequest = errors.New("invalid request")

type CreateRequest struct {
	DoctorID         int64
	PatientID        int64
	Specialty        string
	AppointmentID    int64
	ConsultationDate time.Time
	Notes            *string
}

// Service backs the consultation HTTP API.
type Service struct {
	repo Repository
	log  *zap.Logger
}

func NewService(repo Repository, log *zap.Logger) *Service {
	return &Service{repo: repo, log: log}
}

func (s *Service) Create(ctx context.Context, req CreateRequest) (*Consultation, error) {
	if req.DoctorID <= 0 || req.PatientID <= 0 || req.AppointmentID <= 0 ||
		strings.TrimSpace(req.Specialty) == "" || req.ConsultationDate.IsZero() {
		return nil, fmt.Errorf("%w: doctorId, patientId, specialty, appointmentId and consultationDate are required", ErrInvalidRequest)
	}

	created, err := s.repo.Create(ctx, Consultation{
		DoctorID:         req.DoctorID,
		PatientID:        req.PatientID,
		Specialty:        strings.TrimSpace(req.Specialty),
		AppointmentID:    req.AppointmentID,
		ConsultationDate: req.ConsultationDate.UTC(),
		Notes:            req.Notes,
	})
	if err != nil {
		if errors.Is(err, ErrConsultationExists) {
			return nil, err
		}
		return nil, fmt.Errorf("create consultation: %w", err)
	}

	s.log.Info("consultation created", zap.Int64("consultation_id", created.ID), zap.Int64("appointment_id", created.AppointmentID))
	return created, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*Consultation, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get consultation: %w", err)
	}
	return c, nil
}

func (s *Service) List(ctx context.Context, f Filter) ([]Consultation, error) {
	list, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list consultations: %w", err)
	}
	return list, nil
}

func (s *Service) UpdateNotes(ctx context.Context, id int64, notes string) (*Consultation, error) {
	if strings.TrimSpace(notes) == "" {
		return nil, fmt.Errorf("%w: notes are required", ErrInvalidRequest)
	}

	updated, err := s.repo.UpdateNotes(ctx, id, notes)
	if err != nil {
		return nil, fmt.Errorf("update consultation notes: %w", err)
	}
	return updated, nil
}
