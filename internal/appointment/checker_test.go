package appointment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/therapy-scheduling/internal/apperr"
	"github.com/hackgods/therapy-scheduling/internal/availability"
)

type fakeSource struct {
	slots  []availability.Slot
	active []Appointment
	err    error
}

func (f *fakeSource) SlotsOnWeekday(_ context.Context, therapistID uuid.UUID, weekday time.Weekday) ([]availability.Slot, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []availability.Slot
	for _, s := range f.slots {
		if s.TherapistID == therapistID && s.Weekday == weekday {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSource) FindActiveAt(_ context.Context, therapistID uuid.UUID, at time.Time, excludeID uuid.UUID) (*Appointment, error) {
	for i := range f.active {
		a := &f.active[i]
		if a.TherapistID == therapistID && a.Time.Equal(at) && a.Status.Active() && a.ID != excludeID {
			return a, nil
		}
	}
	return nil, nil
}

func mondaySlot(therapistID uuid.UUID, start, end string) availability.Slot {
	s, _ := availability.ParseClock(start)
	e, _ := availability.ParseClock(end)
	return availability.Slot{ID: uuid.New(), TherapistID: therapistID, Weekday: time.Monday, StartTime: s, EndTime: e}
}

// 2025-01-06 is a Monday.
func monday(hour, minute int) time.Time {
	return time.Date(2025, 1, 6, hour, minute, 0, 0, time.UTC)
}

func TestIsBookable(t *testing.T) {
	therapist := uuid.New()
	other := uuid.New()
	booked := Appointment{ID: uuid.New(), TherapistID: therapist, Time: monday(11, 0), Status: StatusConfirmed}
	cancelled := Appointment{ID: uuid.New(), TherapistID: therapist, Time: monday(12, 0), Status: StatusCancelled}

	src := &fakeSource{
		slots:  []availability.Slot{mondaySlot(therapist, "09:00", "17:00")},
		active: []Appointment{booked, cancelled},
	}
	checker := NewChecker(time.UTC)
	ctx := context.Background()

	tests := []struct {
		name      string
		therapist uuid.UUID
		at        time.Time
		exclude   uuid.UUID
		want      error
	}{
		{"inside slot", therapist, monday(10, 0), uuid.Nil, nil},
		{"start bound inclusive", therapist, monday(9, 0), uuid.Nil, nil},
		{"end bound inclusive", therapist, monday(17, 0), uuid.Nil, nil},
		{"before start", therapist, monday(8, 59), uuid.Nil, ErrOutsideAvailability},
		{"after end", therapist, monday(17, 1), uuid.Nil, ErrOutsideAvailability},
		{"wrong weekday", therapist, monday(10, 0).AddDate(0, 0, 1), uuid.Nil, ErrOutsideAvailability},
		{"other therapist has no slots", other, monday(10, 0), uuid.Nil, ErrOutsideAvailability},
		{"active appointment holds the instant", therapist, monday(11, 0), uuid.Nil, ErrSlotAlreadyBooked},
		{"cancelled appointment frees the instant", therapist, monday(12, 0), uuid.Nil, nil},
		{"own appointment is excluded", therapist, monday(11, 0), booked.ID, nil},
		{"a minute later is a different point", therapist, monday(11, 1), uuid.Nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checker.IsBookable(ctx, src, tt.therapist, tt.at, tt.exclude)
			if !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %v", err, tt.want)
			}
			if tt.want != nil && !errors.Is(err, apperr.ErrConflict) {
				t.Fatalf("expected a conflict kind, got %v", err)
			}
		})
	}
}

func TestIsBookableUsesPracticeWallClock(t *testing.T) {
	therapist := uuid.New()
	src := &fakeSource{slots: []availability.Slot{mondaySlot(therapist, "09:00", "10:00")}}

	// 09:30 in UTC+2 is 07:30 UTC.
	loc := time.FixedZone("UTC+2", 2*3600)
	candidate := time.Date(2025, 1, 6, 7, 30, 0, 0, time.UTC)

	if err := NewChecker(loc).IsBookable(context.Background(), src, therapist, candidate, uuid.Nil); err != nil {
		t.Fatalf("expected bookable on the practice clock, got %v", err)
	}
	if err := NewChecker(time.UTC).IsBookable(context.Background(), src, therapist, candidate, uuid.Nil); !errors.Is(err, ErrOutsideAvailability) {
		t.Fatalf("expected outside availability in UTC, got %v", err)
	}
}

func TestIsBookableSourceError(t *testing.T) {
	boom := errors.New("boom")
	src := &fakeSource{err: boom}

	err := NewChecker(time.UTC).IsBookable(context.Background(), src, uuid.New(), monday(10, 0), uuid.Nil)
	if !errors.Is(err, boom) {
		t.Fatalf("expected source error to propagate, got %v", err)
	}
	if errors.Is(err, apperr.ErrConflict) {
		t.Fatal("storage errors must not look like conflicts")
	}
}
