package user

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hackgods/therapy-scheduling/internal/access"
	"github.com/hackgods/therapy-scheduling/internal/db"
)

type PgRepository struct {
	q db.Querier
}

func NewPgRepository(q db.Querier) *PgRepository {
	return &PgRepository{q: q}
}

func scanUser(row pgx.Row) (*User, error) {
	var u User
	var role string

	err := row.Scan(&u.ID, &u.Name, &u.Email, &role, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	u.Role, err = access.ParseRole(role)
	if err != nil {
		return nil, fmt.Errorf("user %s: %w", u.ID, err)
	}
	return &u, nil
}

func (r *PgRepository) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	row := r.q.QueryRow(ctx, `
		SELECT id, name, email, role, created_at
		FROM users
		WHERE id = $1
	`, id)
	return scanUser(row)
}

func (r *PgRepository) GetByEmail(ctx context.Context, email string) (*User, error) {
	row := r.q.QueryRow(ctx, `
		SELECT id, name, email, role, created_at
		FROM users
		WHERE lower(email) = lower($1)
	`, strings.TrimSpace(email))
	return scanUser(row)
}

// Create inserts a user; used by the seed command, signup lives in the auth service.
func (r *PgRepository) Create(ctx context.Context, name, email string, role access.Role) (*User, error) {
	row := r.q.QueryRow(ctx, `
		INSERT INTO users (id, name, email, role, created_at)
		VALUES ($1, $2, $3, $4, now())
		RETURNING id, name, email, role, created_at
	`, uuid.New(), name, email, string(role))
	return scanUser(row)
}

func (r *PgRepository) ListByRole(ctx context.Context, role access.Role) ([]User, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, name, email, role, created_at
		FROM users
		WHERE role = $1
		ORDER BY name
	`, string(role))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *u)
	}
	return result, rows.Err()
}
