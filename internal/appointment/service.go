package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/therapy-scheduling/internal/access"
	"github.com/hackgods/therapy-scheduling/internal/apperr"
	redisclient "github.com/hackgods/therapy-scheduling/internal/redis"
	"github.com/hackgods/therapy-scheduling/internal/user"
)

const (
	EventAppointmentRequested = "APPOINTMENT_REQUESTED"
	EventStatusChanged        = "APPOINTMENT_STATUS_CHANGED"
	EventRescheduleProposed   = "RESCHEDULE_PROPOSED"
	EventRescheduleAccepted   = "RESCHEDULE_ACCEPTED"
	EventRescheduleDenied     = "RESCHEDULE_DENIED"
)

const (
	maxReasonLength = 1000
	defaultLimit    = 20
	maxLimit        = 100
)

var (
	ErrTherapistNotFound = apperr.NotFound("therapist not found")
	ErrNotLinked         = apperr.Forbidden("client is not linked to this therapist")
	ErrProposalChanged   = apperr.New(apperr.ErrTransient, "reschedule request changed while resolving, please retry")
)

// Directory resolves users referenced by appointments.
type Directory interface {
	GetByID(ctx context.Context, id uuid.UUID) (*user.User, error)
}

// LinkChecker reports whether two users hold a TherapistLink.
type LinkChecker interface {
	IsLinked(ctx context.Context, a, b uuid.UUID) (bool, error)
}

type Service struct {
	repo    Repository
	locker  redisclient.Locker
	checker *Checker
	gate    *access.Gate
	users   Directory
	links   LinkChecker
	logger  *zap.Logger
}

func NewService(
	repo Repository,
	locker redisclient.Locker,
	checker *Checker,
	gate *access.Gate,
	users Directory,
	links LinkChecker,
	logger *zap.Logger,
) *Service {
	return &Service{
		repo:    repo,
		locker:  locker,
		checker: checker,
		gate:    gate,
		users:   users,
		links:   links,
		logger:  logger,
	}
}

// RequestAppointment creates a PENDING appointment for the calling client.
// The availability and double-booking checks run in the same transaction as
// the insert, behind a per (therapist, time) lock, so concurrent requests for
// the same instant cannot both succeed.
func (s *Service) RequestAppointment(ctx context.Context, caller access.Caller, therapistID uuid.UUID, at time.Time, reason string) (*Appointment, error) {
	if err := s.gate.Authorize(caller, access.OpRequestAppointment); err != nil {
		return nil, err
	}
	if at.IsZero() {
		return nil, apperr.Validation("appointment time is required")
	}
	at = NormalizeTime(at)

	reasonPtr, err := normalizeReason(reason)
	if err != nil {
		return nil, err
	}

	therapist, err := s.users.GetByID(ctx, therapistID)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			return nil, ErrTherapistNotFound
		}
		return nil, fmt.Errorf("load therapist: %w", err)
	}
	if !therapist.Role.IsProvider() {
		return nil, ErrTherapistNotFound
	}

	linked, err := s.links.IsLinked(ctx, therapistID, caller.ID)
	if err != nil {
		return nil, fmt.Errorf("check therapist link: %w", err)
	}
	if !linked {
		return nil, ErrNotLinked
	}

	var created *Appointment

	err = s.locker.WithBookingLock(ctx, therapistID, at, func(lockCtx context.Context) error {
		return s.repo.InTx(lockCtx, func(txCtx context.Context, tx Repository) error {
			if err := tx.LockBooking(txCtx, therapistID, at); err != nil {
				return err
			}
			if err := s.checker.IsBookable(txCtx, tx, therapistID, at, uuid.Nil); err != nil {
				return err
			}

			appt, err := tx.CreatePendingAppointment(txCtx, therapistID, caller.ID, at, reasonPtr)
			if err != nil {
				return fmt.Errorf("create pending appointment: %w", err)
			}
			created = appt
			return nil
		})
	})
	if err != nil {
		return nil, lockError(err)
	}

	s.logEvent(ctx, created.ID, EventAppointmentRequested, map[string]any{
		"therapist_id": therapistID.String(),
		"client_id":    caller.ID.String(),
		"time":         at,
	})
	s.logger.Info("appointment requested",
		zap.Stringer("appointment_id", created.ID),
		zap.Stringer("therapist_id", therapistID),
		zap.Stringer("client_id", caller.ID),
		zap.Time("time", at),
	)

	return created, nil
}

// SetStatus moves an appointment along its lifecycle. Only the assigned
// therapist may do so, whatever the target status.
func (s *Service) SetStatus(ctx context.Context, caller access.Caller, id uuid.UUID, to AppointmentStatus) (*Appointment, error) {
	if err := s.gate.Authorize(caller, access.OpSetAppointmentStatus); err != nil {
		return nil, err
	}

	var (
		updated *Appointment
		from    AppointmentStatus
	)

	err := s.repo.InTx(ctx, func(ctx context.Context, tx Repository) error {
		appt, err := tx.GetAppointmentForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := s.gate.Authorize(caller, access.OpSetAppointmentStatus, appt.TherapistID); err != nil {
			return err
		}
		if !CanTransition(appt.Status, to) {
			return apperr.Newf(apperr.ErrInvalidTransition, "cannot move appointment from %s to %s", appt.Status, to)
		}

		from = appt.Status
		updated, err = tx.UpdateAppointmentStatus(ctx, id, appt.Status, to)
		if err != nil {
			return fmt.Errorf("update appointment status: %w", err)
		}

		if to.Terminal() {
			if err := tx.DeleteRescheduleRequest(ctx, id); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, id, EventStatusChanged, map[string]any{
		"from": from,
		"to":   to,
		"by":   caller.ID.String(),
	})
	s.logger.Info("appointment status changed",
		zap.Stringer("appointment_id", id),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)

	return updated, nil
}

// ProposeReschedule records a proposal to move an active appointment to
// newTime. The appointment itself is not changed; a previous open proposal
// is replaced.
func (s *Service) ProposeReschedule(ctx context.Context, caller access.Caller, id uuid.UUID, newTime time.Time) (*RescheduleRequest, error) {
	if err := s.gate.Authorize(caller, access.OpProposeReschedule); err != nil {
		return nil, err
	}
	if newTime.IsZero() {
		return nil, apperr.Validation("new time is required")
	}
	newTime = NormalizeTime(newTime)

	var proposal *RescheduleRequest

	err := s.repo.InTx(ctx, func(ctx context.Context, tx Repository) error {
		appt, err := tx.GetAppointmentForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := s.gate.Authorize(caller, access.OpProposeReschedule, appt.TherapistID, appt.ClientID); err != nil {
			return err
		}
		if !appt.Status.Active() {
			return apperr.Newf(apperr.ErrInvalidTransition, "cannot reschedule a %s appointment", appt.Status)
		}

		proposal, err = tx.UpsertRescheduleRequest(ctx, RescheduleRequest{
			AppointmentID: id,
			ProposedBy:    caller.ID,
			NewTime:       newTime,
		})
		if err != nil {
			return fmt.Errorf("store reschedule request: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, id, EventRescheduleProposed, map[string]any{
		"new_time":    newTime,
		"proposed_by": caller.ID.String(),
	})
	return proposal, nil
}

// ResolveReschedule lets the therapist accept or deny the open proposal.
// Accepting re-runs the conflict check for the proposed time, ignoring the
// appointment's own current slot; on conflict nothing changes. Denying
// discards the proposal and leaves the appointment as it was.
func (s *Service) ResolveReschedule(ctx context.Context, caller access.Caller, id uuid.UUID, accept bool) (*Appointment, error) {
	if err := s.gate.Authorize(caller, access.OpResolveReschedule); err != nil {
		return nil, err
	}

	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.gate.Authorize(caller, access.OpResolveReschedule, appt.TherapistID); err != nil {
		return nil, err
	}

	proposal, err := s.repo.GetRescheduleRequest(ctx, id)
	if err != nil {
		return nil, err
	}

	if accept {
		return s.applyReschedule(ctx, caller, appt, proposal.NewTime, proposal)
	}

	var current *Appointment
	err = s.repo.InTx(ctx, func(ctx context.Context, tx Repository) error {
		current, err = tx.GetAppointmentForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if _, err := tx.GetRescheduleRequest(ctx, id); err != nil {
			return err
		}
		return tx.DeleteRescheduleRequest(ctx, id)
	})
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, id, EventRescheduleDenied, map[string]any{
		"new_time": proposal.NewTime,
		"by":       caller.ID.String(),
	})
	return current, nil
}

// Reschedule is the therapist's direct change of time: a proposal that is
// accepted immediately.
func (s *Service) Reschedule(ctx context.Context, caller access.Caller, id uuid.UUID, newTime time.Time) (*Appointment, error) {
	if err := s.gate.Authorize(caller, access.OpResolveReschedule); err != nil {
		return nil, err
	}
	if newTime.IsZero() {
		return nil, apperr.Validation("new time is required")
	}

	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.gate.Authorize(caller, access.OpResolveReschedule, appt.TherapistID); err != nil {
		return nil, err
	}

	return s.applyReschedule(ctx, caller, appt, NormalizeTime(newTime), nil)
}

// applyReschedule moves appt to newTime. When proposal is set, the stored
// proposal must still match it.
func (s *Service) applyReschedule(ctx context.Context, caller access.Caller, appt *Appointment, newTime time.Time, proposal *RescheduleRequest) (*Appointment, error) {
	var updated *Appointment

	err := s.locker.WithBookingLock(ctx, appt.TherapistID, newTime, func(lockCtx context.Context) error {
		return s.repo.InTx(lockCtx, func(txCtx context.Context, tx Repository) error {
			current, err := tx.GetAppointmentForUpdate(txCtx, appt.ID)
			if err != nil {
				return err
			}
			if err := s.gate.Authorize(caller, access.OpResolveReschedule, current.TherapistID); err != nil {
				return err
			}
			if !current.Status.Active() {
				return apperr.Newf(apperr.ErrInvalidTransition, "cannot reschedule a %s appointment", current.Status)
			}

			if proposal != nil {
				stored, err := tx.GetRescheduleRequest(txCtx, appt.ID)
				if err != nil {
					return err
				}
				if !stored.NewTime.Equal(proposal.NewTime) {
					return ErrProposalChanged
				}
			}

			if err := tx.LockBooking(txCtx, current.TherapistID, newTime); err != nil {
				return err
			}
			if err := s.checker.IsBookable(txCtx, tx, current.TherapistID, newTime, current.ID); err != nil {
				return err
			}

			updated, err = tx.UpdateAppointmentTime(txCtx, current.ID, newTime)
			if err != nil {
				return fmt.Errorf("update appointment time: %w", err)
			}
			return tx.DeleteRescheduleRequest(txCtx, current.ID)
		})
	})
	if err != nil {
		return nil, lockError(err)
	}

	s.logEvent(ctx, appt.ID, EventRescheduleAccepted, map[string]any{
		"old_time": appt.Time,
		"new_time": newTime,
		"direct":   proposal == nil,
		"by":       caller.ID.String(),
	})
	s.logger.Info("appointment rescheduled",
		zap.Stringer("appointment_id", appt.ID),
		zap.Time("old_time", appt.Time),
		zap.Time("new_time", newTime),
		zap.Bool("direct", proposal == nil),
	)

	return updated, nil
}

// GetAppointment returns an appointment to one of its parties or to practice staff.
func (s *Service) GetAppointment(ctx context.Context, caller access.Caller, id uuid.UUID) (*Appointment, error) {
	if err := s.gate.Authorize(caller, access.OpViewAppointment); err != nil {
		return nil, err
	}

	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !caller.Role.IsStaff() {
		if err := s.gate.Authorize(caller, access.OpViewAppointment, appt.TherapistID, appt.ClientID); err != nil {
			return nil, err
		}
	}
	return appt, nil
}

// ListAppointments filters by role: clients and providers only see their
// own appointments, staff see the whole practice.
func (s *Service) ListAppointments(ctx context.Context, caller access.Caller, f ListFilter) ([]Appointment, error) {
	if err := s.gate.Authorize(caller, access.OpListAppointments); err != nil {
		return nil, err
	}

	switch {
	case caller.Role == access.RoleClient:
		f.ClientID = caller.ID
	case caller.Role.IsProvider():
		f.TherapistID = caller.ID
	}

	if f.Limit <= 0 {
		f.Limit = defaultLimit
	}
	if f.Limit > maxLimit {
		f.Limit = maxLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	appointments, err := s.repo.ListAppointments(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return appointments, nil
}

// ListRescheduleRequests returns the open proposals on the caller's appointments.
func (s *Service) ListRescheduleRequests(ctx context.Context, caller access.Caller) ([]RescheduleRequest, error) {
	if err := s.gate.Authorize(caller, access.OpResolveReschedule); err != nil {
		return nil, err
	}
	return s.repo.ListRescheduleRequests(ctx, caller.ID)
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Warn("failed to marshal event payload", zap.String("event", eventType), zap.Error(err))
		data = nil
	}

	apptID := appointmentID

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     time.Now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.logger.Warn("failed to insert event log",
			zap.String("event", eventType),
			zap.Stringer("appointment_id", appointmentID),
			zap.Error(err),
		)
	}
}

func normalizeReason(reason string) (*string, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, nil
	}
	if len([]rune(reason)) > maxReasonLength {
		return nil, apperr.Validation("reason is longer than %d characters", maxReasonLength)
	}
	return &reason, nil
}

// lockError reports a held booking lock as the slot being taken; the holder
// is booking that exact instant.
func lockError(err error) error {
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		return ErrSlotAlreadyBooked
	}
	return err
}
