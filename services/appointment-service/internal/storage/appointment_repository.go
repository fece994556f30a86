package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/carelinkhq/carelink/libs/db"
)

type Appointment struct {
	ID          string
	PatientID   string
	DoctorID    string
	StartTime   time.Time
	EndTime     time.Time
	Reason      string
	Status      string // scheduled | cancelled
	CancelledAt *time.Time
	CreatedAt   time.Time
}

var (
	ErrNotFound         = errors.New("storage: appointment not found")
	ErrAlreadyCancelled = errors.New("storage: appointment already cancelled")
)

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Create(ctx context.Context, a Appointment) (Appointment, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO appointments (id, patient_id, doctor_id, start_time, end_time, reason, status)
		VALUES ($1, $2, $3, $4, $5, $6, 'scheduled')
		RETURNING created_at
	`, a.ID, a.PatientID, a.DoctorID, a.StartTime, a.EndTime, a.Reason).Scan(&a.CreatedAt)
	if err != nil {
		return Appointment{}, err
	}
	a.Status = "scheduled"
	return a, nil
}

func (r *Repository) GetByID(ctx context.Context, id string) (Appointment, error) {
	var a Appointment
	err := r.pool.QueryRow(ctx, `
		SELECT id, patient_id, doctor_id, start_time, end_time, reason, status, cancelled_at, created_at
		FROM appointments
		WHERE id = $1
	`, id).Scan(&a.ID, &a.PatientID, &a.DoctorID, &a.StartTime, &a.EndTime, &a.Reason,
		&a.Status, &a.CancelledAt, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Appointment{}, ErrNotFound
	}
	return a, err
}

// Cancel flips a scheduled appointment to cancelled and returns the updated
// row. Cancelling twice is rejected so a cancellation event publishes once.
func (r *Repository) Cancel(ctx context.Context, id string) (Appointment, error) {
	var a Appointment
	err := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'cancelled', cancelled_at = now()
		WHERE id = $1 AND status = 'scheduled'
		RETURNING id, patient_id, doctor_id, start_time, end_time, reason, status, cancelled_at, created_at
	`, id).Scan(&a.ID, &a.PatientID, &a.DoctorID, &a.StartTime, &a.EndTime, &a.Reason,
		&a.Status, &a.CancelledAt, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		if _, getErr := r.GetByID(ctx, id); getErr == nil {
			return Appointment{}, ErrAlreadyCancelled
		}
		return Appointment{}, ErrNotFound
	}
	return a, err
}
