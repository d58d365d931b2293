package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/therapy-scheduling/internal/availability"
	"github.com/hackgods/therapy-scheduling/internal/db"
)

const (
	appointmentColumns = "id, therapist_id, client_id, time, status, reason, created_at, updated_at"
	rescheduleColumns  = "appointment_id, proposed_by, new_time, created_at"

	activeSlotConstraint = "appointments_active_slot_key"
)

type PgRepository struct {
	pool      *pgxpool.Pool
	q         db.Querier
	txTimeout time.Duration
}

func NewPgRepository(pool *pgxpool.Pool, txTimeout time.Duration) *PgRepository {
	return &PgRepository{pool: pool, q: pool, txTimeout: txTimeout}
}

// Helpers

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var reason *string

	err := row.Scan(
		&a.ID,
		&a.TherapistID,
		&a.ClientID,
		&a.Time,
		&a.Status,
		&reason,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.Reason = reason
	return &a, nil
}

func scanReschedule(row pgx.Row) (*RescheduleRequest, error) {
	var r RescheduleRequest
	err := row.Scan(&r.AppointmentID, &r.ProposedBy, &r.NewTime, &r.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRescheduleNotFound
		}
		return nil, err
	}
	return &r, nil
}

// Interface methods

func (r *PgRepository) InTx(ctx context.Context, fn func(ctx context.Context, tx Repository) error) error {
	return db.InTx(ctx, r.pool, r.txTimeout, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &PgRepository{pool: r.pool, q: tx, txTimeout: r.txTimeout})
	})
}

func (r *PgRepository) LockBooking(ctx context.Context, therapistID uuid.UUID, at time.Time) error {
	key := fmt.Sprintf("%s:%d", therapistID, at.UTC().UnixMicro())
	if _, err := r.q.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key); err != nil {
		return fmt.Errorf("lock booking: %w", err)
	}
	return nil
}

func (r *PgRepository) SlotsOnWeekday(ctx context.Context, therapistID uuid.UUID, weekday time.Weekday) ([]availability.Slot, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+availability.SlotColumns+`
		FROM availability_slots
		WHERE therapist_id = $1 AND weekday = $2
		ORDER BY start_time
	`, therapistID, int16(weekday))
	if err != nil {
		return nil, err
	}
	return availability.CollectSlots(rows)
}

func (r *PgRepository) FindActiveAt(ctx context.Context, therapistID uuid.UUID, at time.Time, excludeID uuid.UUID) (*Appointment, error) {
	row := r.q.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE therapist_id = $1
		  AND time = $2
		  AND status IN ('PENDING', 'CONFIRMED')
		  AND id <> $3
		LIMIT 1
	`, therapistID, at, excludeID)

	a, err := scanAppointment(row)
	if errors.Is(err, ErrAppointmentNotFound) {
		return nil, nil
	}
	return a, err
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.q.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) GetAppointmentForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.q.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
		FOR UPDATE
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) ListAppointments(ctx context.Context, f ListFilter) ([]Appointment, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.TherapistID != uuid.Nil {
		add("therapist_id = $%d", f.TherapistID)
	}
	if f.ClientID != uuid.Nil {
		add("client_id = $%d", f.ClientID)
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}

	query := `SELECT ` + appointmentColumns + ` FROM appointments`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, f.Limit, f.Offset)
	query += fmt.Sprintf(` ORDER BY time ASC, id ASC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
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

func (r *PgRepository) CreatePendingAppointment(ctx context.Context, therapistID, clientID uuid.UUID, at time.Time, reason *string) (*Appointment, error) {
	row := r.q.QueryRow(ctx, `
		INSERT INTO appointments (id, therapist_id, client_id, time, status, reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 'PENDING', $5, now(), now())
		RETURNING `+appointmentColumns+`
	`, uuid.New(), therapistID, clientID, at, reason)

	a, err := scanAppointment(row)
	if err != nil {
		if db.IsUniqueViolation(err, activeSlotConstraint) {
			return nil, ErrSlotAlreadyBooked
		}
		return nil, err
	}
	return a, nil
}

// UpdateAppointmentStatus only applies when the row is still in from; otherwise
// it returns ErrAppointmentNotFound.
func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	row := r.q.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentColumns+`
	`, id, string(to), string(from))

	return scanAppointment(row)
}

func (r *PgRepository) UpdateAppointmentTime(ctx context.Context, id uuid.UUID, at time.Time) (*Appointment, error) {
	row := r.q.QueryRow(ctx, `
		UPDATE appointments
		SET time = $2,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+appointmentColumns+`
	`, id, at)

	a, err := scanAppointment(row)
	if err != nil {
		if db.IsUniqueViolation(err, activeSlotConstraint) {
			return nil, ErrSlotAlreadyBooked
		}
		return nil, err
	}
	return a, nil
}

func (r *PgRepository) GetRescheduleRequest(ctx context.Context, appointmentID uuid.UUID) (*RescheduleRequest, error) {
	row := r.q.QueryRow(ctx, `
		SELECT `+rescheduleColumns+`
		FROM reschedule_requests
		WHERE appointment_id = $1
	`, appointmentID)
	return scanReschedule(row)
}

func (r *PgRepository) UpsertRescheduleRequest(ctx context.Context, req RescheduleRequest) (*RescheduleRequest, error) {
	row := r.q.QueryRow(ctx, `
		INSERT INTO reschedule_requests (appointment_id, proposed_by, new_time, created_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (appointment_id) DO UPDATE
		SET proposed_by = EXCLUDED.proposed_by,
		    new_time = EXCLUDED.new_time,
		    created_at = EXCLUDED.created_at
		RETURNING `+rescheduleColumns+`
	`, req.AppointmentID, req.ProposedBy, req.NewTime)
	return scanReschedule(row)
}

func (r *PgRepository) DeleteRescheduleRequest(ctx context.Context, appointmentID uuid.UUID) error {
	if _, err := r.q.Exec(ctx, `DELETE FROM reschedule_requests WHERE appointment_id = $1`, appointmentID); err != nil {
		return fmt.Errorf("delete reschedule request: %w", err)
	}
	return nil
}

func (r *PgRepository) ListRescheduleRequests(ctx context.Context, therapistID uuid.UUID) ([]RescheduleRequest, error) {
	rows, err := r.q.Query(ctx, `
		SELECT rr.appointment_id, rr.proposed_by, rr.new_time, rr.created_at
		FROM reschedule_requests rr
		JOIN appointments a ON a.id = rr.appointment_id
		WHERE a.therapist_id = $1
		ORDER BY rr.created_at ASC
	`, therapistID)
	if err != nil {
		return nil, fmt.Errorf("list reschedule requests: %w", err)
	}
	defer rows.Close()

	var result []RescheduleRequest
	for rows.Next() {
		req, err := scanReschedule(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *req)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
