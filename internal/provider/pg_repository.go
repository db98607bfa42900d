package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var Schema = []string{
	`CREATE TABLE IF NOT EXISTS providers (
		id         BIGSERIAL PRIMARY KEY,
		name       TEXT NOT NULL,
		email      TEXT NOT NULL DEFAULT '',
		specialty  TEXT NOT NULL,
		service    TEXT NOT NULL DEFAULT '',
		available  BOOLEAN NOT NULL DEFAULT true,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_providers_specialty ON providers (specialty) WHERE available`,
}

const providerColumns = `id, name, email, specialty, service, available, created_at, updated_at`

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func scanProvider(row pgx.Row) (*Provider, error) {
	var p Provider

	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Email,
		&p.Specialty,
		&p.Service,
		&p.Available,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProviderNotFound
		}
		return nil, err
	}

	return &p, nil
}

func collect(rows pgx.Rows) ([]Provider, error) {
	defer rows.Close()

	var result []Provider
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *p)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) Create(ctx context.Context, p Provider) (*Provider, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO providers (name, email, specialty, service, available)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+providerColumns,
		p.Name, p.Email, p.Specialty, p.Service, p.Available)

	created, err := scanProvider(row)
	if err != nil {
		return nil, fmt.Errorf("insert provider: %w", err)
	}
	return created, nil
}

func (r *PgRepository) GetByID(ctx context.Context, id int64) (*Provider, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+providerColumns+`
		FROM providers
		WHERE id = $1
	`, id)
	return scanProvider(row)
}

func (r *PgRepository) ListAll(ctx context.Context) ([]Provider, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+providerColumns+`
		FROM providers
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func (r *PgRepository) ListAvailableBySpecialty(ctx context.Context, specialty string) ([]Provider, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+providerColumns+`
		FROM providers
		WHERE specialty = $1
		  AND available
		ORDER BY name
	`, specialty)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func (r *PgRepository) Update(ctx context.Context, p Provider) (*Provider, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE providers
		SET name = $2,
		    email = $3,
		    specialty = $4,
		    service = $5,
		    available = $6,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+providerColumns,
		p.ID, p.Name, p.Email, p.Specialty, p.Service, p.Available)
	return scanProvider(row)
}

func (r *PgRepository) SetAvailability(ctx context.Context, id int64, available bool) (*Provider, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE providers
		SET available = $2,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+providerColumns,
		id, available)
	return scanProvider(row)
}
