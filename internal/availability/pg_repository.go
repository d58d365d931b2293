package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/therapy-scheduling/internal/db"
)

// SlotColumns is the column list ScanSlot expects, in order.
const SlotColumns = "id, therapist_id, weekday, start_time, end_time, created_at"

type PgRepository struct {
	pool      *pgxpool.Pool
	txTimeout time.Duration
}

func NewPgRepository(pool *pgxpool.Pool, txTimeout time.Duration) *PgRepository {
	return &PgRepository{pool: pool, txTimeout: txTimeout}
}

// ScanSlot scans a row selected with SlotColumns.
func ScanSlot(row pgx.Row) (*Slot, error) {
	var s Slot
	var weekday int16
	var start, end string

	err := row.Scan(&s.ID, &s.TherapistID, &weekday, &start, &end, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}

	s.Weekday = time.Weekday(weekday)
	if s.StartTime, err = ParseClock(start); err != nil {
		return nil, fmt.Errorf("slot %s start: %w", s.ID, err)
	}
	if s.EndTime, err = ParseClock(end); err != nil {
		return nil, fmt.Errorf("slot %s end: %w", s.ID, err)
	}
	return &s, nil
}

// CollectSlots drains rows selected with SlotColumns.
func CollectSlots(rows pgx.Rows) ([]Slot, error) {
	defer rows.Close()

	var result []Slot
	for rows.Next() {
		s, err := ScanSlot(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PgRepository) ReplaceSchedule(ctx context.Context, therapistID uuid.UUID, slots []Slot) ([]Slot, error) {
	var saved []Slot

	err := db.InTx(ctx, r.pool, r.txTimeout, func(ctx context.Context, tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM availability_slots WHERE therapist_id = $1`, therapistID); err != nil {
			return fmt.Errorf("delete old slots: %w", err)
		}

		if len(slots) == 0 {
			return nil
		}

		batch := &pgx.Batch{}
		for _, s := range slots {
			batch.Queue(`
				INSERT INTO availability_slots (id, therapist_id, weekday, start_time, end_time, created_at)
				VALUES ($1, $2, $3, $4, $5, now())
			`, uuid.New(), therapistID, int16(s.Weekday), s.StartTime.String(), s.EndTime.String())
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert slots: %w", err)
		}

		rows, err := tx.Query(ctx, `
			SELECT `+SlotColumns+`
			FROM availability_slots
			WHERE therapist_id = $1
			ORDER BY weekday, start_time
		`, therapistID)
		if err != nil {
			return fmt.Errorf("reload slots: %w", err)
		}
		saved, err = CollectSlots(rows)
		return err
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

func (r *PgRepository) ListByTherapist(ctx context.Context, therapistID uuid.UUID) ([]Slot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+SlotColumns+`
		FROM availability_slots
		WHERE therapist_id = $1
		ORDER BY weekday, start_time
	`, therapistID)
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	return CollectSlots(rows)
}

func (r *PgRepository) GetSlotByID(ctx context.Context, id uuid.UUID) (*Slot, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+SlotColumns+`
		FROM availability_slots
		WHERE id = $1
	`, id)
	return ScanSlot(row)
}

func (r *PgRepository) DeleteSlot(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM availability_slots WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete slot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSlotNotFound
	}
	return nil
}
