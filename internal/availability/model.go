// Package availability stores therapists' recurring weekly availability.
package availability

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/therapy-scheduling/internal/apperr"
)

var ErrSlotNotFound = apperr.NotFound("availability slot not found")

// MaxSlotsPerSchedule bounds a single weekly schedule.
const MaxSlotsPerSchedule = 200

// Slot is a weekly recurring window. Weekday follows time.Weekday (0 = Sunday).
type Slot struct {
	ID          uuid.UUID
	TherapistID uuid.UUID
	Weekday     time.Weekday
	StartTime   Clock
	EndTime     Clock
	CreatedAt   time.Time
}

// Covers reports whether clock falls inside the window, both ends inclusive.
func (s Slot) Covers(clock Clock) bool {
	return s.StartTime <= clock && clock <= s.EndTime
}

// SlotInput is one window of a schedule as submitted by a therapist.
type SlotInput struct {
	Weekday   int
	StartTime string
	EndTime   string
}

// Repository contains all DB interactions needed by the service.
type Repository interface {
	// ReplaceSchedule atomically swaps the therapist's whole set of slots.
	ReplaceSchedule(ctx context.Context, therapistID uuid.UUID, slots []Slot) ([]Slot, error)
	ListByTherapist(ctx context.Context, therapistID uuid.UUID) ([]Slot, error)
	GetSlotByID(ctx context.Context, id uuid.UUID) (*Slot, error)
	DeleteSlot(ctx context.Context, id uuid.UUID) error
}
