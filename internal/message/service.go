package message

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/therapy-scheduling/internal/access"
	"github.com/hackgods/therapy-scheduling/internal/apperr"
)

var ErrNotLinked = apperr.Forbidden("you can only message your linked therapist or client")

// LinkChecker reports whether two users hold a TherapistLink.
type LinkChecker interface {
	IsLinked(ctx context.Context, a, b uuid.UUID) (bool, error)
}

type Service struct {
	repo   Repository
	links  LinkChecker
	gate   *access.Gate
	logger *zap.Logger
}

func NewService(repo Repository, links LinkChecker, gate *access.Gate, logger *zap.Logger) *Service {
	return &Service{repo: repo, links: links, gate: gate, logger: logger}
}

func (s *Service) Send(ctx context.Context, caller access.Caller, receiverID uuid.UUID, text string) (*Message, error) {
	if err := s.gate.Authorize(caller, access.OpSendMessage); err != nil {
		return nil, err
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperr.Validation("message text is required")
	}
	if utf8.RuneCountInString(text) > MaxTextLength {
		return nil, apperr.Validation("message is longer than %d characters", MaxTextLength)
	}

	if err := s.requireLink(ctx, caller.ID, receiverID); err != nil {
		return nil, err
	}

	m, err := s.repo.Create(ctx, caller.ID, receiverID, text)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("message sent",
		zap.Stringer("message_id", m.ID),
		zap.Stringer("sender_id", caller.ID),
		zap.Stringer("receiver_id", receiverID),
	)
	return m, nil
}

// Conversation returns the latest messages between the caller and otherID,
// oldest first.
func (s *Service) Conversation(ctx context.Context, caller access.Caller, otherID uuid.UUID, limit int) ([]Message, error) {
	if err := s.gate.Authorize(caller, access.OpReadMessages); err != nil {
		return nil, err
	}
	if err := s.requireLink(ctx, caller.ID, otherID); err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = defaultConversation
	}
	if limit > maxConversation {
		limit = maxConversation
	}
	return s.repo.Conversation(ctx, caller.ID, otherID, limit)
}

func (s *Service) requireLink(ctx context.Context, a, b uuid.UUID) error {
	if a == b {
		return apperr.Validation("cannot message yourself")
	}
	ok, err := s.links.IsLinked(ctx, a, b)
	if err != nil {
		return fmt.Errorf("check therapist link: %w", err)
	}
	if !ok {
		return ErrNotLinked
	}
	return nil
}
