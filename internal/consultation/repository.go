package consultation

import (
	"context"
	"errors"
)

var (
	ErrConsultationNotFound = errors.New("consultation not found")
	ErrConsultationExists   = errors.New("consultation already exists for appointment")
)

type Repository interface {
	// CreateIfAbsent inserts c unless a consultation for the same appointment
	// exists. created is false when the row was already there.
	CreateIfAbsent(ctx context.Context, c Consultation) (created bool, err error)

	// Create fails with ErrConsultationExists on a duplicate appointment.
	Create(ctx context.Context, c Consultation) (*Consultation, error)

	GetByID(ctx context.Context, id int64) (*Consultation, error)
	List(ctx context.Context, f Filter) ([]Consultation, error)
	UpdateNotes(ctx context.Context, id int64, notes string) (*Consultation, error)
}
