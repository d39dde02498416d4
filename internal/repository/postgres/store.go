// Package postgres provides a PostgreSQL implementation of the appointment store
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/navikt/telecoord/internal/models"
)

const uniqueViolation = "23505"

// Store implements the appointment store on a pgx connection pool
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to databaseURL and applies the schema
func NewStore(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create Postgres pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Close releases the pool
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// SaveAppointment inserts the appointment and its slot in one transaction
func (s *Store) SaveAppointment(ctx context.Context, appt *models.Appointment) error {
	slot, err := appt.SlotKey()
	if err != nil {
		return err
	}

	status := appt.Status
	if status == "" {
		status = models.StatusScheduled
	}
	createdAt := appt.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO appointments (room_id, patient_id, doctor_id, slot_date, slot_time, status, session_start, session_end, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		appt.RoomID, appt.PatientID, appt.DoctorID, appt.SlotDate, appt.SlotTime, status,
		appt.SessionStart, appt.SessionEnd, createdAt,
	)
	if isUniqueViolation(err) {
		return models.ErrRoomExists
	}
	if err != nil {
		return fmt.Errorf("failed to insert appointment: %w", err)
	}

	if !status.IsTerminal() {
		_, err = tx.Exec(ctx, `INSERT INTO booked_slots (slot_key, room_id) VALUES ($1,$2)`, slot, appt.RoomID)
		if isUniqueViolation(err) {
			return models.ErrSlotTaken
		}
		if err != nil {
			return fmt.Errorf("failed to book slot: %w", err)
		}
	}

	return tx.Commit(ctx)
}

const selectAppointment = `SELECT room_id, patient_id, doctor_id, slot_date, slot_time,
        status, session_start, session_end, created_at
 FROM appointments`

func scanAppointment(row pgx.Row) (*models.Appointment, error) {
	a := &models.Appointment{}
	err := row.Scan(&a.RoomID, &a.PatientID, &a.DoctorID, &a.SlotDate, &a.SlotTime,
		&a.Status, &a.SessionStart, &a.SessionEnd, &a.CreatedAt)
	return a, err
}

// FindByRoomID retrieves an appointment by room ID
func (s *Store) FindByRoomID(ctx context.Context, roomID string) (*models.Appointment, error) {
	a, err := scanAppointment(s.pool.QueryRow(ctx, selectAppointment+` WHERE room_id = $1`, roomID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrAppointmentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get appointment: %w", err)
	}
	return a, nil
}

// ListByStatus returns all appointments in the given status ordered by room ID
func (s *Store) ListByStatus(ctx context.Context, status models.AppointmentStatus) ([]*models.Appointment, error) {
	rows, err := s.pool.Query(ctx, selectAppointment+` WHERE status = $1 ORDER BY room_id`, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list appointments: %w", err)
	}
	defer rows.Close()

	out := make([]*models.Appointment, 0)
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// SetStatus moves the appointment to a new status. The WHERE clause encodes the
// allowed transitions so concurrent writers cannot race past the check.
func (s *Store) SetStatus(ctx context.Context, roomID string, status models.AppointmentStatus) error {
	if !status.Valid() {
		return models.ErrInvalidTransition
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE appointments SET status = $2
		 WHERE room_id = $1 AND (status = $2 OR (status = 'scheduled' AND $2 <> 'scheduled'))`,
		roomID, status,
	)
	if err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	if _, err := s.FindByRoomID(ctx, roomID); err != nil {
		return err
	}
	return models.ErrInvalidTransition
}

// SetSessionStart stamps the session start once
func (s *Store) SetSessionStart(ctx context.Context, roomID string, at time.Time) error {
	return s.stamp(ctx, `UPDATE appointments SET session_start = COALESCE(session_start, $2) WHERE room_id = $1`, roomID, at)
}

// SetSessionEnd stamps the session end once
func (s *Store) SetSessionEnd(ctx context.Context, roomID string, at time.Time) error {
	return s.stamp(ctx, `UPDATE appointments SET session_end = COALESCE(session_end, $2) WHERE room_id = $1`, roomID, at)
}

func (s *Store) stamp(ctx context.Context, query, roomID string, at time.Time) error {
	tag, err := s.pool.Exec(ctx, query, roomID, at)
	if err != nil {
		return fmt.Errorf("failed to stamp session time: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrAppointmentNotFound
	}
	return nil
}

// ReleaseSlot frees the slot held by the room, if any
func (s *Store) ReleaseSlot(ctx context.Context, roomID string) error {
	if _, err := s.FindByRoomID(ctx, roomID); err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, `DELETE FROM booked_slots WHERE room_id = $1`, roomID); err != nil {
		return fmt.Errorf("failed to release slot: %w", err)
	}
	return nil
}

// Ping checks the database connection
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
