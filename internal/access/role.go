package access

import (
	"strings"

	"github.com/google/uuid"

	"github.com/hackgods/therapy-scheduling/internal/apperr"
)

type Role string

const (
	RoleClient                  Role = "CLIENT"
	RoleTherapist               Role = "THERAPIST"
	RoleIntern                  Role = "INTERN"
	RolePracticeManagerAdmin    Role = "PRACTICE_MANAGER_ADMIN"
	RolePracticeManagerClinical Role = "PRACTICE_MANAGER_CLINICAL"
	RoleOwner                   Role = "OWNER"
)

var allRoles = []Role{
	RoleClient,
	RoleTherapist,
	RoleIntern,
	RolePracticeManagerAdmin,
	RolePracticeManagerClinical,
	RoleOwner,
}

// ParseRole accepts the canonical upper-case role names, case-insensitively.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range allRoles {
		if r == known {
			return r, nil
		}
	}
	return "", apperr.Validation("unknown role %q", s)
}

func (r Role) String() string { return string(r) }

// IsProvider reports whether the role holds availability and appointments.
// Therapists and interns are interchangeable for booking.
func (r Role) IsProvider() bool {
	return r == RoleTherapist || r == RoleIntern
}

// IsStaff reports whether the role sees practice-wide data.
func (r Role) IsStaff() bool {
	return r == RoleOwner || r == RolePracticeManagerAdmin || r == RolePracticeManagerClinical
}

// Caller is the authenticated identity an operation runs on behalf of.
type Caller struct {
	ID   uuid.UUID
	Role Role
}

func (c Caller) IsZero() bool { return c.ID == uuid.Nil }
