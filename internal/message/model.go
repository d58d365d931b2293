// Package message carries text messages between a therapist and a linked client.
package message

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	MaxTextLength       = 4000
	defaultConversation = 50
	maxConversation     = 200
)

type Message struct {
	ID         uuid.UUID
	SenderID   uuid.UUID
	ReceiverID uuid.UUID
	Text       string
	CreatedAt  time.Time
}

type Repository interface {
	Create(ctx context.Context, senderID, receiverID uuid.UUID, text string) (*Message, error)
	// Conversation returns the newest limit messages between a and b, oldest first.
	Conversation(ctx context.Context, a, b uuid.UUID, limit int) ([]Message, error)
}
