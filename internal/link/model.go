// Package link manages TherapistLink, the association that permits a client
// and a therapist to book and message each other.
package link

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/therapy-scheduling/internal/apperr"
	"github.com/hackgods/therapy-scheduling/internal/user"
)

var (
	ErrLinkNotFound       = apperr.NotFound("therapist link not found")
	ErrClientNotFound     = apperr.NotFound("client not found")
	ErrTherapistNotFound  = apperr.NotFound("therapist not found")
	ErrClientAlreadyTaken = apperr.Conflict("client is already linked to another therapist")
	ErrLinkExists         = apperr.Conflict("therapist link already exists")
)

const (
	pairConstraint   = "therapist_links_pair_key"
	clientConstraint = "therapist_links_client_key"
)

type Link struct {
	ID          uuid.UUID
	TherapistID uuid.UUID
	ClientID    uuid.UUID
	CreatedAt   time.Time
}

type Repository interface {
	// Create returns ErrLinkExists if the pair is already linked and
	// ErrClientAlreadyTaken if the client is linked to another therapist.
	Create(ctx context.Context, therapistID, clientID uuid.UUID) (*Link, error)
	GetByClient(ctx context.Context, clientID uuid.UUID) (*Link, error)
	Exists(ctx context.Context, therapistID, clientID uuid.UUID) (bool, error)
	ListClients(ctx context.Context, therapistID uuid.UUID) ([]user.User, error)
}

type Directory interface {
	GetByID(ctx context.Context, id uuid.UUID) (*user.User, error)
	GetByEmail(ctx context.Context, email string) (*user.User, error)
}
