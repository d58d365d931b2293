package message

import (
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hackgods/therapy-scheduling/internal/db"
)

type PgRepository struct {
	q db.Querier
}

func NewPgRepository(q db.Querier) *PgRepository {
	return &PgRepository{q: q}
}

func (r *PgRepository) Create(ctx context.Context, senderID, receiverID uuid.UUID, text string) (*Message, error) {
	var m Message
	err := r.q.QueryRow(ctx, `
		INSERT INTO messages (id, sender_id, receiver_id, text, created_at)
		VALUES ($1, $2, $3, $4, now())
		RETURNING id, sender_id, receiver_id, text, created_at
	`, uuid.New(), senderID, receiverID, text).Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.Text, &m.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return &m, nil
}

func (r *PgRepository) Conversation(ctx context.Context, a, b uuid.UUID, limit int) ([]Message, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, sender_id, receiver_id, text, created_at
		FROM messages
		WHERE LEAST(sender_id, receiver_id) = LEAST($1::uuid, $2::uuid)
		  AND GREATEST(sender_id, receiver_id) = GREATEST($1::uuid, $2::uuid)
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`, a, b, limit)
	if err != nil {
		return nil, fmt.Errorf("query conversation: %w", err)
	}

	msgs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Message, error) {
		var m Message
		err := row.Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.Text, &m.CreatedAt)
		return m, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan conversation: %w", err)
	}

	slices.Reverse(msgs)
	return msgs, nil
}
