// Package lock serializes room writes across server instances.
package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
	"github.com/wfunc/ludoserver/logger"
)

// Locker takes an exclusive lock on a room. The returned func releases it.
type Locker interface {
	Lock(ctx context.Context, roomID string) (unlock func(), err error)
}

// Nop is the single-instance Locker: the room actor already serializes.
type Nop struct{}

func (Nop) Lock(context.Context, string) (func(), error) { return func() {}, nil }

// RedisLocker is a redsync mutex per room.
type RedisLocker struct {
	locker *redsync.Redsync
	expiry time.Duration
}

func NewRedisLocker(client *redis.Client, expiry time.Duration) *RedisLocker {
	pool := goredis.NewPool(client)
	return &RedisLocker{
		locker: redsync.New(pool),
		expiry: expiry,
	}
}

// Key is the redis key guarding roomID.
func Key(roomID string) string {
	return "ludo:room:" + roomID + ":lock"
}

func (l *RedisLocker) Lock(ctx context.Context, roomID string) (func(), error) {
	mutex := l.locker.NewMutex(Key(roomID),
		redsync.WithExpiry(l.expiry),
		redsync.WithTries(64),
		redsync.WithRetryDelay(25*time.Millisecond),
	)
	if err := mutex.LockContext(ctx); err != nil {
		return nil, fmt.Errorf("lock room %s: %w", roomID, err)
	}
	return func() {
		if _, err := mutex.UnlockContext(context.Background()); err != nil {
			logger.Log.Warnw("room unlock failed", "room_id", roomID, "error", err)
		}
	}, nil
}
