package appointment

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/appointment-booking-saga/internal/outbox"
)

// Schema creates the scheduling tables, including the outbox it writes to.
var Schema = append([]string{
	`CREATE TABLE IF NOT EXISTS appointments (
		id         BIGSERIAL PRIMARY KEY,
		date       TIMESTAMPTZ NOT NULL,
		doctor_id  BIGINT NOT NULL,
		specialty  TEXT NOT NULL,
		patient_id BIGINT NOT NULL,
		status     TEXT NOT NULL DEFAULT 'UPCOMING',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_appointments_patient ON appointments (patient_id)`,
	`CREATE INDEX IF NOT EXISTS idx_appointments_doctor ON appointments (doctor_id)`,
}, outbox.Schema...)

const appointmentColumns = `id, date, doctor_id, specialty, patient_id, status, created_at, updated_at`

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment

	err := row.Scan(
		&a.ID,
		&a.Date,
		&a.DoctorID,
		&a.Specialty,
		&a.PatientID,
		&a.Status,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	return &a, nil
}

func (r *PgRepository) CreateWithOutbox(ctx context.Context, appt Appointment, build EventBuilder) (*Appointment, *outbox.Event, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	created, err := scanAppointment(tx.QueryRow(ctx, `
		INSERT INTO appointments (date, doctor_id, specialty, patient_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now(), now())
		RETURNING `+appointmentColumns,
		appt.Date, appt.DoctorID, appt.Specialty, appt.PatientID, appt.Status))
	if err != nil {
		return nil, nil, fmt.Errorf("insert appointment: %w", err)
	}

	evt, err := build(*created)
	if err != nil {
		return nil, nil, err
	}
	if err := outbox.Insert(ctx, tx, evt); err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("commit tx: %w", err)
	}

	return created, &evt, nil
}

func (r *PgRepository) GetByID(ctx context.Context, id int64) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) List(ctx context.Context, f Filter) ([]Appointment, error) {
	var (
		rows pgx.Rows
		err  error
	)

	base := `SELECT ` + appointmentColumns + ` FROM appointments `
	switch {
	case f.PatientID != 0:
		rows, err = r.pool.Query(ctx, base+`WHERE patient_id = $1 ORDER BY date DESC`, f.PatientID)
	case f.DoctorID != 0:
		rows, err = r.pool.Query(ctx, base+`WHERE doctor_id = $1 ORDER BY date DESC`, f.DoctorID)
	default:
		rows, err = r.pool.Query(ctx, base+`WHERE status = $1 ORDER BY date DESC`, f.Status)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) UpdateStatus(ctx context.Context, id int64, status Status) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+appointmentColumns,
		id, status)
	return scanAppointment(row)
}
