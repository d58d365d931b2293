package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/hackgods/therapy-scheduling/internal/apperr"
)

var (
	ErrLockNotAcquired = errors.New("booking lock not acquired")
)

// Locker guards the check-then-write section of a booking for one therapist
// and instant.
type Locker interface {
	WithBookingLock(ctx context.Context, therapistID uuid.UUID, at time.Time, fn func(ctx context.Context) error) error
}

// BookingKey is the lock key for a therapist at an instant.
func BookingKey(therapistID uuid.UUID, at time.Time) string {
	return fmt.Sprintf("lock:booking:%s:%d", therapistID, at.UTC().UnixMicro())
}

// lockClient is the part of *redis.Client the booking lock needs.
type lockClient interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	redis.Scripter
}

type redisBookingLocker struct {
	client lockClient
	ttl    time.Duration
}

// NewRedisBookingLocker creates a locker that uses a per (therapist, time) Redis key
func NewRedisBookingLocker(client *redis.Client, ttl time.Duration) Locker {
	return newBookingLocker(client, ttl)
}

func newBookingLocker(client lockClient, ttl time.Duration) *redisBookingLocker {
	return &redisBookingLocker{
		client: client,
		ttl:    ttl,
	}
}

func (l *redisBookingLocker) WithBookingLock(ctx context.Context, therapistID uuid.UUID, at time.Time, fn func(ctx context.Context) error) error {
	key := BookingKey(therapistID, at)
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return apperr.Wrap(apperr.ErrTransient, "booking lock unavailable", err)
	}
	if !ok {
		return ErrLockNotAcquired
	}

	defer func() {
		_ = l.release(context.WithoutCancel(ctx), key, token)
	}()

	lockCtx, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(lockCtx)
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisBookingLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release booking lock: %w", err)
	}
	return nil
}

// NoopLocker runs fn directly; used when Redis is not configured and the
// database lock is the only guard.
type NoopLocker struct{}

func (NoopLocker) WithBookingLock(ctx context.Context, _ uuid.UUID, _ time.Time, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
