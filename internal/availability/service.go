package availability

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/therapy-scheduling/internal/access"
	"github.com/hackgods/therapy-scheduling/internal/apperr"
)

type Service struct {
	repo   Repository
	gate   *access.Gate
	logger *zap.Logger
}

func NewService(repo Repository, gate *access.Gate, logger *zap.Logger) *Service {
	return &Service{repo: repo, gate: gate, logger: logger}
}

// SetWeeklySchedule replaces the calling therapist's whole weekly schedule.
// Every input is validated before anything is written; an empty list clears
// the schedule. It returns the number of slots saved.
func (s *Service) SetWeeklySchedule(ctx context.Context, caller access.Caller, inputs []SlotInput) (int, error) {
	if err := s.gate.Authorize(caller, access.OpSetAvailability); err != nil {
		return 0, err
	}

	slots, err := ValidateSchedule(inputs)
	if err != nil {
		return 0, err
	}

	saved, err := s.repo.ReplaceSchedule(ctx, caller.ID, slots)
	if err != nil {
		return 0, fmt.Errorf("replace schedule: %w", err)
	}

	s.logger.Info("weekly schedule replaced",
		zap.Stringer("therapist_id", caller.ID),
		zap.Int("slots", len(saved)),
	)
	return len(saved), nil
}

// ValidateSchedule checks every input and returns slots sorted by (weekday, start).
func ValidateSchedule(inputs []SlotInput) ([]Slot, error) {
	if len(inputs) > MaxSlotsPerSchedule {
		return nil, apperr.Validation("too many slots: %d (max %d)", len(inputs), MaxSlotsPerSchedule)
	}

	slots := make([]Slot, 0, len(inputs))
	for i, in := range inputs {
		if in.Weekday < 0 || in.Weekday > 6 {
			return nil, apperr.Validation("slot %d: weekday %d out of range 0-6", i, in.Weekday)
		}
		start, err := ParseClock(in.StartTime)
		if err != nil {
			return nil, apperr.Validation("slot %d: %s", i, apperr.ReasonOf(err))
		}
		end, err := ParseClock(in.EndTime)
		if err != nil {
			return nil, apperr.Validation("slot %d: %s", i, apperr.ReasonOf(err))
		}
		if start >= end {
			return nil, apperr.Validation("slot %d: start %s must be before end %s", i, start, end)
		}
		slots = append(slots, Slot{
			Weekday:   time.Weekday(in.Weekday),
			StartTime: start,
			EndTime:   end,
		})
	}

	SortSlots(slots)
	return slots, nil
}

// SortSlots orders slots by (weekday, start time).
func SortSlots(slots []Slot) {
	sort.SliceStable(slots, func(i, j int) bool {
		if slots[i].Weekday != slots[j].Weekday {
			return slots[i].Weekday < slots[j].Weekday
		}
		return slots[i].StartTime < slots[j].StartTime
	})
}

// GetWeeklySchedule returns therapistID's slots ordered by (weekday, start).
func (s *Service) GetWeeklySchedule(ctx context.Context, caller access.Caller, therapistID uuid.UUID) ([]Slot, error) {
	if err := s.gate.Authorize(caller, access.OpViewAvailability); err != nil {
		return nil, err
	}

	slots, err := s.repo.ListByTherapist(ctx, therapistID)
	if err != nil {
		return nil, err
	}
	SortSlots(slots)
	return slots, nil
}

// DeleteSlot removes one slot owned by the caller.
func (s *Service) DeleteSlot(ctx context.Context, caller access.Caller, slotID uuid.UUID) error {
	if err := s.gate.Authorize(caller, access.OpDeleteSlot); err != nil {
		return err
	}

	slot, err := s.repo.GetSlotByID(ctx, slotID)
	if err != nil {
		return err
	}
	if err := s.gate.Authorize(caller, access.OpDeleteSlot, slot.TherapistID); err != nil {
		return err
	}

	if err := s.repo.DeleteSlot(ctx, slotID); err != nil {
		return err
	}

	s.logger.Info("availability slot deleted",
		zap.Stringer("slot_id", slotID),
		zap.Stringer("therapist_id", caller.ID),
	)
	return nil
}
