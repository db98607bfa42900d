package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hackgods/appointment-booking-saga/internal/discovery"
	"github.com/hackgods/appointment-booking-saga/internal/events"
	"github.com/hackgods/appointment-booking-saga/internal/outbox"
)

var (
	ErrInvalidRequest      = errors.New("invalid request")
	ErrNoProviderAvailable = errors.New("no provider available")
	ErrPersistenceFailure  = errors.New("appointment could not be saved")
	ErrInvalidStatus       = errors.New("invalid status")
)

type ProviderFinder interface {
	FindProvider(ctx context.Context, specialty string) (*discovery.Provider, error)
}

// Dispatcher pushes a committed outbox row to the broker right away.
type Dispatcher interface {
	Dispatch(ctx context.Context, evt outbox.Event) error
}

type Service struct {
	repo       Repository
	finder     ProviderFinder
	dispatcher Dispatcher
	log        *zap.Logger
	now        func() time.Time
}

// NewService builds the booking saga. dispatcher may be nil, in which case
// delivery is left entirely to the outbox relay.
func NewService(repo Repository, finder ProviderFinder, dispatcher Dispatcher, log *zap.Logger) *Service {
	return &Service{
		repo:       repo,
		finder:     finder,
		dispatcher: dispatcher,
		log:        log,
		now:        time.Now,
	}
}

// CreateAppointment books the first available provider for the requested
// specialty. The appointment and its APPOINTMENT_CREATED event commit
// together; nothing is written unless a provider was found.
func (s *Service) CreateAppointment(ctx context.Context, req CreateRequest) (*Booking, error) {
	req.Specialty = strings.TrimSpace(req.Specialty)
	if req.Date.IsZero() || req.Specialty == "" || req.PatientID <= 0 {
		return nil, fmt.Errorf("%w: date, specialty and patientId are required", ErrInvalidRequest)
	}

	provider, err := s.finder.FindProvider(ctx, req.Specialty)
	if err != nil {
		s.log.Warn("provider discovery failed", zap.String("specialty", req.Specialty), zap.Error(err))
		return nil, fmt.Errorf("discover provider: %w", err)
	}
	if provider == nil {
		return nil, fmt.Errorf("%w for specialty %q", ErrNoProviderAvailable, req.Specialty)
	}

	appt := Appointment{
		Date:      req.Date.UTC(),
		DoctorID:  provider.ID,
		Specialty: req.Specialty,
		PatientID: req.PatientID,
		Status:    StatusUpcoming,
	}

	created, evt, err := s.repo.CreateWithOutbox(ctx, appt, func(a Appointment) (outbox.Event, error) {
		return outbox.NewEvent(a.ID, events.AppointmentCreated, events.AppointmentCreatedPayload{
			AppointmentID: a.ID,
			DoctorID:      a.DoctorID,
			DoctorName:    provider.Name,
			PatientID:     a.PatientID,
			Specialty:     a.Specialty,
			Date:          a.Date,
			Status:        string(a.Status),
		}, s.now())
	})
	if err != nil {
		s.log.Error("appointment write failed", zap.Int64("patient_id", req.PatientID), zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrPersistenceFailure, err)
	}

	s.log.Info("appointment created",
		zap.Int64("appointment_id", created.ID),
		zap.Int64("doctor_id", created.DoctorID),
		zap.Int64("patient_id", created.PatientID),
		zap.String("specialty", created.Specialty),
	)

	s.dispatch(ctx, *evt)

	return &Booking{
		Appointment: *created,
		Provider: ProviderSummary{
			ID:        provider.ID,
			Name:      provider.Name,
			Specialty: provider.Specialty,
		},
	}, nil
}

// dispatch is best effort. The outbox row is already committed, so a failure
// here only delays delivery until the relay picks the row up.
func (s *Service) dispatch(ctx context.Context, evt outbox.Event) {
	if s.dispatcher == nil {
		return
	}
	if err := s.dispatcher.Dispatch(ctx, evt); err != nil {
		s.log.Warn("inline dispatch failed, left for outbox relay",
			zap.String("event_id", evt.ID.String()),
			zap.Int64("appointment_id", evt.AggregateID),
			zap.Error(err),
		)
	}
}

func (s *Service) GetAppointment(ctx context.Context, id int64) (*Appointment, error) {
	appt, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return appt, nil
}

// ListAppointments needs at least one filter. patientId takes precedence over
// doctorId, then status. Results are newest date first.
func (s *Service) ListAppointments(ctx context.Context, f Filter) ([]Appointment, error) {
	if f.empty() {
		return nil, fmt.Errorf("%w: one of patientId, doctorId or status is required", ErrInvalidRequest)
	}
	if f.Status != "" && !f.Status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, f.Status)
	}

	list, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return list, nil
}

func (s *Service) UpdateStatus(ctx context.Context, id int64, status Status) (*Appointment, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	updated, err := s.repo.UpdateStatus(ctx, id, status)
	if err != nil {
		return nil, fmt.Errorf("update appointment status: %w", err)
	}

	s.log.Info("appointment status updated",
		zap.Int64("appointment_id", updated.ID),
		zap.String("status", string(updated.Status)),
	)
	return updated, nil
}
