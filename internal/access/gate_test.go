package access

import (
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/hackgods/therapy-scheduling/internal/apperr"
)

func TestParseRole(t *testing.T) {
	r, err := ParseRole(" intern ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r != RoleIntern {
		t.Errorf("got %s", r)
	}

	if _, err := ParseRole("USER"); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation error for superseded role, got %v", err)
	}
}

func TestRolePredicates(t *testing.T) {
	if !RoleTherapist.IsProvider() || !RoleIntern.IsProvider() {
		t.Error("therapist and intern should be providers")
	}
	if RoleClient.IsProvider() || RoleOwner.IsProvider() {
		t.Error("client and owner are not providers")
	}
	if !RoleOwner.IsStaff() || !RolePracticeManagerClinical.IsStaff() || RoleTherapist.IsStaff() {
		t.Error("unexpected staff classification")
	}
}

func TestGateAuthorize(t *testing.T) {
	g := NewGate()
	therapist := Caller{ID: uuid.New(), Role: RoleTherapist}
	client := Caller{ID: uuid.New(), Role: RoleClient}
	owner := Caller{ID: uuid.New(), Role: RoleOwner}

	tests := []struct {
		name    string
		caller  Caller
		op      Operation
		owners  []uuid.UUID
		allowed bool
	}{
		{"therapist sets availability", therapist, OpSetAvailability, nil, true},
		{"client cannot set availability", client, OpSetAvailability, nil, false},
		{"client requests appointment", client, OpRequestAppointment, nil, true},
		{"therapist cannot request appointment", therapist, OpRequestAppointment, nil, false},
		{"owner cannot set status", owner, OpSetAppointmentStatus, nil, false},
		{"owner links clients", owner, OpLinkClient, nil, true},
		{"therapist owns resource", therapist, OpSetAppointmentStatus, []uuid.UUID{therapist.ID}, true},
		{"therapist does not own resource", therapist, OpSetAppointmentStatus, []uuid.UUID{uuid.New()}, false},
		{"client among owners", client, OpProposeReschedule, []uuid.UUID{therapist.ID, client.ID}, true},
		{"anonymous caller", Caller{Role: RoleOwner}, OpViewAvailability, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := g.Authorize(tt.caller, tt.op, tt.owners...)
			if tt.allowed && err != nil {
				t.Fatalf("expected allow, got %v", err)
			}
			if !tt.allowed && !errors.Is(err, apperr.ErrForbidden) {
				t.Fatalf("expected forbidden, got %v", err)
			}
		})
	}
}

func TestEveryOperationHasRoles(t *testing.T) {
	for op, roles := range Permissions {
		if len(roles) == 0 {
			t.Errorf("operation %s has no allowed roles", op)
		}
	}
}
