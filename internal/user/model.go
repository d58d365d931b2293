// Package user is the read side of the practice's user directory. Accounts
// are created by the auth service; the booking core only resolves them.
package user

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/therapy-scheduling/internal/access"
	"github.com/hackgods/therapy-scheduling/internal/apperr"
)

var ErrUserNotFound = apperr.NotFound("user not found")

type User struct {
	ID        uuid.UUID
	Name      string
	Email     string
	Role      access.Role
	CreatedAt time.Time
}
