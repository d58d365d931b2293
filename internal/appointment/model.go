package appointment

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/therapy-scheduling/internal/apperr"
)

type AppointmentStatus string

const (
	StatusPending   AppointmentStatus = "PENDING"
	StatusConfirmed AppointmentStatus = "CONFIRMED"
	StatusCancelled AppointmentStatus = "CANCELLED"
	StatusCompleted AppointmentStatus = "COMPLETED"
)

var transitions = map[AppointmentStatus][]AppointmentStatus{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusCompleted, StatusCancelled},
}

// ParseStatus accepts status names case-insensitively.
func ParseStatus(s string) (AppointmentStatus, error) {
	st := AppointmentStatus(strings.ToUpper(strings.TrimSpace(s)))
	switch st {
	case StatusPending, StatusConfirmed, StatusCancelled, StatusCompleted:
		return st, nil
	}
	return "", apperr.Validation("unknown appointment status %q", s)
}

// Active appointments hold their time against double booking.
func (s AppointmentStatus) Active() bool {
	return s == StatusPending || s == StatusConfirmed
}

func (s AppointmentStatus) Terminal() bool {
	return len(transitions[s]) == 0
}

// CanTransition reports whether from -> to is an edge of the lifecycle.
func CanTransition(from, to AppointmentStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type Appointment struct {
	ID          uuid.UUID
	TherapistID uuid.UUID
	ClientID    uuid.UUID
	Time        time.Time
	Status      AppointmentStatus
	Reason      *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// RescheduleRequest is an open proposal to move an appointment. There is at
// most one per appointment.
type RescheduleRequest struct {
	AppointmentID uuid.UUID
	ProposedBy    uuid.UUID
	NewTime       time.Time
	CreatedAt     time.Time
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

// ListFilter narrows appointment listings. Zero-valued fields do not filter.
type ListFilter struct {
	TherapistID uuid.UUID
	ClientID    uuid.UUID
	Status      AppointmentStatus
	Limit       int
	Offset      int
}

// NormalizeTime drops precision below what Postgres timestamptz stores, so
// equality against stored times is exact.
func NormalizeTime(t time.Time) time.Time {
	return t.Truncate(time.Microsecond)
}
