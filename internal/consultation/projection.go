package consultation

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/hackgods/appointment-booking-saga/internal/events"
)

var ErrInvalidPayload = errors.New("invalid appointment payload")

// Projection materializes one consultation per booked appointment. It is
// safe to feed the same event any number of times.
type Projection struct {
	repo Repository
	log  *zap.Logger
}

func NewProjection(repo Repository, log *zap.Logger) *Projection {
	return &Projection{repo: repo, log: log}
}

// Handle adapts the projection to a broker delivery.
func (p *Projection) Handle(ctx context.Context, env events.Envelope) error {
	payload, err := events.DecodeAppointmentCreated(env.Payload)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	return p.OnAppointmentCreated(ctx, payload)
}

func (p *Projection) OnAppointmentCreated(ctx context.Context, payload events.AppointmentCreatedPayload) error {
	if payload.AppointmentID <= 0 || payload.DoctorID <= 0 || payload.PatientID <= 0 {
		return fmt.Errorf("%w: appointmentId, doctorId and patientId are required", ErrInvalidPayload)
	}
	if payload.Date.IsZero() {
		return fmt.Errorf("%w: date is required", ErrInvalidPayload)
	}

	created, err := p.repo.CreateIfAbsent(ctx, Consultation{
		DoctorID:         payload.DoctorID,
		PatientID:        payload.PatientID,
		Specialty:        payload.Specialty,
		AppointmentID:    payload.AppointmentID,
		ConsultationDate: payload.Date,
	})
	if err != nil {
		return fmt.Errorf("project appointment %d: %w", payload.AppointmentID, err)
	}

	if !created {
		p.log.Info("appointment already projected", zap.Int64("appointment_id", payload.AppointmentID))
		return nil
	}

	p.log.Info("consultation created from appointment",
		zap.Int64("appointment_id", payload.AppointmentID),
		zap.Int64("doctor_id", payload.DoctorID),
		zap.Int64("patient_id", payload.PatientID),
	)
	return nil
}
