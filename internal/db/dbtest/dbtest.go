// Package dbtest opens a migrated Postgres pool for repository tests.
// Tests using it are skipped unless TEST_POSTGRES_DSN is set.
package dbtest

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hackgods/therapy-scheduling/internal/access"
	"github.com/hackgods/therapy-scheduling/internal/db"
	"github.com/hackgods/therapy-scheduling/internal/user"
)

// migrateLockID serializes migrations when several test packages share a database.
const migrateLockID = 7_431_002

func Open(t testing.TB) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set")
	}

	ctx := context.Background()
	pool, err := db.ConnectPostgres(ctx, dsn, db.DefaultPoolOptions)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := migrate(ctx, pool); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return pool
}

func migrate(ctx context.Context, pool *pgxpool.Pool) error {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock($1)`, migrateLockID); err != nil {
		return err
	}
	defer conn.Exec(context.WithoutCancel(ctx), `SELECT pg_advisory_unlock($1)`, migrateLockID) //nolint:errcheck

	m, err := db.NewMigrator(pool, zap.NewNop())
	if err != nil {
		return err
	}
	defer m.Close()
	return m.Up(ctx)
}

// CreateUser inserts a user with a unique fake email.
func CreateUser(t testing.TB, pool *pgxpool.Pool, role access.Role) *user.User {
	t.Helper()
	email := fmt.Sprintf("%s.%s@test.invalid", gofakeit.Username(), uuid.NewString()[:8])
	u, err := user.NewPgRepository(pool).Create(context.Background(), gofakeit.Name(), email, role)
	if err != nil {
		t.Fatalf("create %s: %v", role, err)
	}
	return u
}
