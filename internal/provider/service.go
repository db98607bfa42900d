package provider

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

type Service struct {
	repo Repository
	log  *zap.Logger
}

func NewService(repo Repository, log *zap.Logger) *Service {
	return &Service{repo: repo, log: log}
}

func validate(p Provider) error {
	if strings.TrimSpace(p.Name) == "" || strings.TrimSpace(p.Specialty) == "" {
		return fmt.Errorf("%w: name and specialty are required", ErrInvalidRequest)
	}
	return nil
}

func (s *Service) Create(ctx context.Context, p Provider) (*Provider, error) {
	if err := validate(p); err != nil {
		return nil, err
	}
	p.Specialty = strings.TrimSpace(p.Specialty)

	created, err := s.repo.Create(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("create provider: %w", err)
	}

	s.log.Info("provider created",
		zap.Int64("provider_id", created.ID),
		zap.String("specialty", created.Specialty),
	)
	return created, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*Provider, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get provider: %w", err)
	}
	return p, nil
}

// List serves the discovery query. With a specialty it returns only
// available providers for it, ordered by name; otherwise every provider.
func (s *Service) List(ctx context.Context, specialty string) ([]Provider, error) {
	specialty = strings.TrimSpace(specialty)

	var (
		list []Provider
		err  error
	)
	if specialty != "" {
		list, err = s.repo.ListAvailableBySpecialty(ctx, specialty)
	} else {
		list, err = s.repo.ListAll(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("list providers: %w", err)
	}
	return list, nil
}

func (s *Service) Update(ctx context.Context, p Provider) (*Provider, error) {
	if err := validate(p); err != nil {
		return nil, err
	}

	updated, err := s.repo.Update(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("update provider: %w", err)
	}
	return updated, nil
}

func (s *Service) SetAvailability(ctx context.Context, id int64, available bool) (*Provider, error) {
	updated, err := s.repo.SetAvailability(ctx, id, available)
	if err != nil {
		return nil, fmt.Errorf("set provider availability: %w", err)
	}

	s.log.Info("provider availability changed",
		zap.Int64("provider_id", id),
		zap.Bool("available", available),
	)
	return updated, nil
}
