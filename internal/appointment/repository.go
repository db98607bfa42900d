package appointment

import (
	"context"
	"errors"

	"github.com/hackgods/appointment-booking-saga/internal/outbox"
)

var ErrAppointmentNotFound = errors.New("appointment not found")

// EventBuilder derives the outbox row from the freshly inserted appointment,
// which is the first point its id is known.
type EventBuilder func(created Appointment) (outbox.Event, error)

// Repository contains all DB interactions needed by the service.
type Repository interface {
	// CreateWithOutbox writes the appointment and its outbox row atomically.
	CreateWithOutbox(ctx context.Context, appt Appointment, build EventBuilder) (*Appointment, *outbox.Event, error)

	GetByID(ctx context.Context, id int64) (*Appointment, error)
	List(ctx context.Context, f Filter) ([]Appointment, error)
	UpdateStatus(ctx context.Context, id int64, status Status) (*Appointment, error)
}
