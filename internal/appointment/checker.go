package appointment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/therapy-scheduling/internal/apperr"
	"github.com/hackgods/therapy-scheduling/internal/availability"
)

var (
	ErrOutsideAvailability = apperr.New(apperr.ErrConflict, "outside availability")
	ErrSlotAlreadyBooked   = apperr.New(apperr.ErrConflict, "slot already booked")
)

// ConflictSource is the data the checker reads. Inside a booking it is the
// transaction-bound repository.
type ConflictSource interface {
	SlotsOnWeekday(ctx context.Context, therapistID uuid.UUID, weekday time.Weekday) ([]availability.Slot, error)
	FindActiveAt(ctx context.Context, therapistID uuid.UUID, at time.Time, excludeID uuid.UUID) (*Appointment, error)
}

// Checker decides whether a therapist can take an appointment at an instant.
//
// Appointments are point events: two appointments conflict only when their
// times are equal. Durations are not modeled.
type Checker struct {
	loc *time.Location
}

// NewChecker evaluates candidate times on the wall clock of loc, the zone
// availability slots are authored in.
func NewChecker(loc *time.Location) *Checker {
	if loc == nil {
		loc = time.Local
	}
	return &Checker{loc: loc}
}

func (c *Checker) Location() *time.Location { return c.loc }

// IsBookable returns nil when candidate lies inside one of the therapist's
// slots for that weekday and no other active appointment holds it.
// excludeID skips the appointment being rescheduled.
func (c *Checker) IsBookable(ctx context.Context, src ConflictSource, therapistID uuid.UUID, candidate time.Time, excludeID uuid.UUID) error {
	local := candidate.In(c.loc)
	clock := availability.ClockOf(local)

	slots, err := src.SlotsOnWeekday(ctx, therapistID, local.Weekday())
	if err != nil {
		return fmt.Errorf("load availability: %w", err)
	}

	covered := false
	for _, s := range slots {
		if s.Covers(clock) {
			covered = true
			break
		}
	}
	if !covered {
		return ErrOutsideAvailability
	}

	existing, err := src.FindActiveAt(ctx, therapistID, candidate, excludeID)
	if err != nil {
		return fmt.Errorf("check existing appointments: %w", err)
	}
	if existing != nil {
		return ErrSlotAlreadyBooked
	}
	return nil
}
