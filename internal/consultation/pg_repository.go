package consultation

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

var Schema = []string{
	`CREATE TABLE IF NOT EXISTS consultations (
		id                BIGSERIAL PRIMARY KEY,
		doctor_id         BIGINT NOT NULL,
		patient_id        BIGINT NOT NULL,
		specialty         TEXT NOT NULL,
		appointment_id    BIGINT NOT NULL UNIQUE,
		consultation_date TIMESTAMPTZ NOT NULL,
		notes             TEXT,
		created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_consultations_patient ON consultations (patient_id)`,
	`CREATE INDEX IF NOT EXISTS idx_consultations_doctor ON consultations (doctor_id)`,
}

const consultationColumns = `id, doctor_id, patient_id, specialty, appointment_id, consultation_date, notes, created_at, updated_at`

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func scanConsultation(row pgx.Row) (*Consultation, error) {
	var c Consultation

	err := row.Scan(
		&c.ID,
		&c.DoctorID,
		&c.PatientID,
		&c.Specialty,
		&c.AppointmentID,
		&c.ConsultationDate,
		&c.Notes,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrConsultationNotFound
		}
		return nil, err
	}

	return &c, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func (r *PgRepository) CreateIfAbsent(ctx context.Context, c Consultation) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO consultations (doctor_id, patient_id, specialty, appointment_id, consultation_date, notes)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (appointment_id) DO NOTHING
	`, c.DoctorID, c.PatientID, c.Specialty, c.AppointmentID, c.ConsultationDate, c.Notes)
	if err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("insert consultation: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PgRepository) Create(ctx context.Context, c Consultation) (*Consultation, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO consultations (doctor_id, patient_id, specialty, appointment_id, consultation_date, notes)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+consultationColumns,
		c.DoctorID, c.PatientID, c.Specialty, c.AppointmentID, c.ConsultationDate, c.Notes)

	created, err := scanConsultation(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrConsultationExists
		}
		return nil, fmt.Errorf("insert consultation: %w", err)
	}
	return created, nil
}

func (r *PgRepository) GetByID(ctx context.Context, id int64) (*Consultation, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+consultationColumns+`
		FROM consultations
		WHERE id = $1
	`, id)
	return scanConsultation(row)
}

func (r *PgRepository) List(ctx context.Context, f Filter) ([]Consultation, error) {
	var (
		rows pgx.Rows
		err  error
	)

	base := `SELECT ` + consultationColumns + ` FROM consultations `
	switch {
	case f.AppointmentID != 0:
		rows, err = r.pool.Query(ctx, base+`WHERE appointment_id = $1`, f.AppointmentID)
	case f.PatientID != 0:
		rows, err = r.pool.Query(ctx, base+`WHERE patient_id = $1 ORDER BY consultation_date DESC`, f.PatientID)
	case f.DoctorID != 0:
		rows, err = r.pool.Query(ctx, base+`WHERE doctor_id = $1 ORDER BY consultation_date DESC`, f.DoctorID)
	default:
		rows, err = r.pool.Query(ctx, base+`ORDER BY consultation_date DESC`)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Consultation
	for rows.Next() {
		c, err := scanConsultation(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *c)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) UpdateNotes(ctx context.Context, id int64, notes string) (*Consultation, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE consultations
		SET notes = $2,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+consultationColumns,
		id, notes)
	return scanConsultation(row)
}
