package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/therapy-scheduling/internal/apperr"
	"github.com/hackgods/therapy-scheduling/internal/availability"
)

var (
	ErrAppointmentNotFound = apperr.NotFound("appointment not found")
	ErrRescheduleNotFound  = apperr.NotFound("no pending reschedule request")
)

// Repository contains all DB interactions needed by the service.
type Repository interface {
	// InTx runs fn with a repository bound to one transaction. Any error
	// from fn rolls the transaction back.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Repository) error) error

	// LockBooking serializes transactions touching therapistID at instant at
	// until the surrounding transaction ends.
	LockBooking(ctx context.Context, therapistID uuid.UUID, at time.Time) error

	// For conflict checks. FindActiveAt returns nil, nil when the instant is free.
	SlotsOnWeekday(ctx context.Context, therapistID uuid.UUID, weekday time.Weekday) ([]availability.Slot, error)
	FindActiveAt(ctx context.Context, therapistID uuid.UUID, at time.Time, excludeID uuid.UUID) (*Appointment, error)

	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// GetAppointmentForUpdate row-locks the appointment inside a transaction.
	GetAppointmentForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error)
	ListAppointments(ctx context.Context, f ListFilter) ([]Appointment, error)

	// Creation and updates
	CreatePendingAppointment(ctx context.Context, therapistID, clientID uuid.UUID, at time.Time, reason *string) (*Appointment, error)
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error)
	UpdateAppointmentTime(ctx context.Context, id uuid.UUID, at time.Time) (*Appointment, error)

	// Reschedule proposals
	GetRescheduleRequest(ctx context.Context, appointmentID uuid.UUID) (*RescheduleRequest, error)
	UpsertRescheduleRequest(ctx context.Context, req RescheduleRequest) (*RescheduleRequest, error)
	DeleteRescheduleRequest(ctx context.Context, appointmentID uuid.UUID) error
	ListRescheduleRequests(ctx context.Context, therapistID uuid.UUID) ([]RescheduleRequest, error)

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}
