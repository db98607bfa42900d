package provider

import (
	"context"
	"errors"
	"time"
)

var (
	ErrProviderNotFound = errors.New("provider not found")
	ErrInvalidRequest   = errors.New("invalid request")
)

type Provider struct {
	ID        int64
	Name      string
	Email     string
	Specialty string
	Service   string
	Available bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Repository interface {
	Create(ctx context.Context, p Provider) (*Provider, error)
	GetByID(ctx context.Context, id int64) (*Provider, error)
	ListAll(ctx context.Context) ([]Provider, error)
	// ListAvailableBySpecialty returns available providers ordered by name.
	ListAvailableBySpecialty(ctx context.Context, specialty string) ([]Provider, error)
	Update(ctx context.Context, p Provider) (*Provider, error)
	SetAvailability(ctx context.Context, id int64, available bool) (*Provider, error)
}
