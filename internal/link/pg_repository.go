package link

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hackgods/therapy-scheduling/internal/access"
	"github.com/hackgods/therapy-scheduling/internal/db"
	"github.com/hackgods/therapy-scheduling/internal/user"
)

type PgRepository struct {
	q db.Querier
}

func NewPgRepository(q db.Querier) *PgRepository {
	return &PgRepository{q: q}
}

func scanLink(row pgx.Row) (*Link, error) {
	var l Link
	err := row.Scan(&l.ID, &l.TherapistID, &l.ClientID, &l.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLinkNotFound
		}
		return nil, err
	}
	return &l, nil
}

func (r *PgRepository) Create(ctx context.Context, therapistID, clientID uuid.UUID) (*Link, error) {
	row := r.q.QueryRow(ctx, `
		INSERT INTO therapist_links (id, therapist_id, client_id, created_at)
		VALUES ($1, $2, $3, now())
		RETURNING id, therapist_id, client_id, created_at
	`, uuid.New(), therapistID, clientID)

	l, err := scanLink(row)
	if err != nil {
		switch {
		case db.IsUniqueViolation(err, pairConstraint):
			return nil, ErrLinkExists
		case db.IsUniqueViolation(err, clientConstraint):
			return nil, ErrClientAlreadyTaken
		}
		return nil, fmt.Errorf("insert therapist link: %w", err)
	}
	return l, nil
}

func (r *PgRepository) GetByClient(ctx context.Context, clientID uuid.UUID) (*Link, error) {
	row := r.q.QueryRow(ctx, `
		SELECT id, therapist_id, client_id, created_at
		FROM therapist_links
		WHERE client_id = $1
	`, clientID)
	return scanLink(row)
}

func (r *PgRepository) Exists(ctx context.Context, therapistID, clientID uuid.UUID) (bool, error) {
	var ok bool
	err := r.q.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM therapist_links
			WHERE therapist_id = $1 AND client_id = $2
		)
	`, therapistID, clientID).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("check therapist link: %w", err)
	}
	return ok, nil
}

func (r *PgRepository) ListClients(ctx context.Context, therapistID uuid.UUID) ([]user.User, error) {
	rows, err := r.q.Query(ctx, `
		SELECT u.id, u.name, u.email, u.role, u.created_at
		FROM therapist_links l
		JOIN users u ON u.id = l.client_id
		WHERE l.therapist_id = $1
		ORDER BY u.name
	`, therapistID)
	if err != nil {
		return nil, fmt.Errorf("list linked clients: %w", err)
	}
	defer rows.Close()

	var result []user.User
	for rows.Next() {
		var u user.User
		var role string
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &role, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan linked client: %w", err)
		}
		u.Role = access.Role(role)
		result = append(result, u)
	}
	return result, rows.Err()
}
