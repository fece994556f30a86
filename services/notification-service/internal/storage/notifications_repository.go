package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/carelinkhq/carelink/libs/db"
)

// Record is one row of the durable notification log. Read state is flipped
// only by MarkRead; rows are never deleted by this service.
type Record struct {
	ID            int64
	AppointmentID string
	Message       string
	Channel       string
	Recipient     string
	Status        string // sent | failed
	FailureReason string
	IsRead        bool
	CreatedAt     time.Time
}

var ErrNotFound = errors.New("storage: notification not found")

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Insert(ctx context.Context, rec Record) (Record, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO notifications (appointment_id, message, channel, recipient, status, failure_reason)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`, rec.AppointmentID, rec.Message, rec.Channel, rec.Recipient, rec.Status, rec.FailureReason).
		Scan(&rec.ID, &rec.CreatedAt)
	return rec, err
}

func (r *Repository) GetByID(ctx context.Context, id int64) (Record, error) {
	var rec Record
	err := r.pool.QueryRow(ctx, `
		SELECT id, appointment_id, message, channel, recipient, status, failure_reason, is_read, created_at
		FROM notifications
		WHERE id = $1
	`, id).Scan(&rec.ID, &rec.AppointmentID, &rec.Message, &rec.Channel, &rec.Recipient,
		&rec.Status, &rec.FailureReason, &rec.IsRead, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	return rec, err
}

func (r *Repository) ListByAppointment(ctx context.Context, appointmentID string) ([]Record, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, appointment_id, message, channel, recipient, status, failure_reason, is_read, created_at
		FROM notifications
		WHERE appointment_id = $1
		ORDER BY created_at DESC
	`, appointmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.AppointmentID, &rec.Message, &rec.Channel, &rec.Recipient,
			&rec.Status, &rec.FailureReason, &rec.IsRead, &rec.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (r *Repository) MarkRead(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE notifications
		SET is_read = TRUE
		WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) CountUnread(ctx context.Context) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx, `
		SELECT count(*) FROM notifications WHERE is_read = FALSE
	`).Scan(&n)
	return n, err
}
