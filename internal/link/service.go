package link

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/therapy-scheduling/internal/access"
	"github.com/hackgods/therapy-scheduling/internal/apperr"
	"github.com/hackgods/therapy-scheduling/internal/user"
)

type Service struct {
	repo   Repository
	users  Directory
	gate   *access.Gate
	logger *zap.Logger
}

func NewService(repo Repository, users Directory, gate *access.Gate, logger *zap.Logger) *Service {
	return &Service{repo: repo, users: users, gate: gate, logger: logger}
}

// Link associates the client identified by clientEmail with a therapist.
// Providers link clients to themselves and therapistID may be left nil;
// admins and the owner must name the therapist. Linking an already linked
// pair returns the existing link.
func (s *Service) Link(ctx context.Context, caller access.Caller, therapistID uuid.UUID, clientEmail string) (*Link, error) {
	if err := s.gate.Authorize(caller, access.OpLinkClient); err != nil {
		return nil, err
	}

	if caller.Role.IsProvider() {
		if therapistID != uuid.Nil && therapistID != caller.ID {
			return nil, apperr.Forbidden("providers may only link clients to themselves")
		}
		therapistID = caller.ID
	} else {
		if therapistID == uuid.Nil {
			return nil, apperr.Validation("therapist_id is required")
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
	}

	if clientEmail == "" {
		return nil, apperr.Validation("client email is required")
	}
	client, err := s.users.GetByEmail(ctx, clientEmail)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			return nil, ErrClientNotFound
		}
		return nil, fmt.Errorf("load client: %w", err)
	}
	if client.Role != access.RoleClient {
		return nil, ErrClientNotFound
	}

	existing, err := s.repo.GetByClient(ctx, client.ID)
	switch {
	case err == nil:
		if existing.TherapistID == therapistID {
			return existing, nil
		}
		return nil, ErrClientAlreadyTaken
	case !errors.Is(err, ErrLinkNotFound):
		return nil, fmt.Errorf("load existing link: %w", err)
	}

	l, err := s.repo.Create(ctx, therapistID, client.ID)
	if errors.Is(err, ErrLinkExists) || errors.Is(err, ErrClientAlreadyTaken) {
		// A concurrent Link won the insert.
		return s.existingLink(ctx, therapistID, client.ID)
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info("client linked",
		zap.Stringer("link_id", l.ID),
		zap.Stringer("therapist_id", therapistID),
		zap.Stringer("client_id", client.ID),
		zap.Stringer("linked_by", caller.ID),
	)
	return l, nil
}

func (s *Service) existingLink(ctx context.Context, therapistID, clientID uuid.UUID) (*Link, error) {
	l, err := s.repo.GetByClient(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("reload link: %w", err)
	}
	if l.TherapistID != therapistID {
		return nil, ErrClientAlreadyTaken
	}
	return l, nil
}

// ListClients returns the clients linked to the calling provider.
func (s *Service) ListClients(ctx context.Context, caller access.Caller) ([]user.User, error) {
	if err := s.gate.Authorize(caller, access.OpListClients); err != nil {
		return nil, err
	}
	return s.repo.ListClients(ctx, caller.ID)
}

// TherapistOf returns the therapist linked to clientID.
func (s *Service) TherapistOf(ctx context.Context, clientID uuid.UUID) (*user.User, error) {
	l, err := s.repo.GetByClient(ctx, clientID)
	if err != nil {
		return nil, err
	}
	return s.users.GetByID(ctx, l.TherapistID)
}

// IsLinked reports whether a and b are linked, in either order.
func (s *Service) IsLinked(ctx context.Context, a, b uuid.UUID) (bool, error) {
	ok, err := s.repo.Exists(ctx, a, b)
	if err != nil || ok {
		return ok, err
	}
	return s.repo.Exists(ctx, b, a)
}
