package cache

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockTimeout is returned when a lock could not be taken before Wait ran out.
var ErrLockTimeout = errors.New("cache: lock wait timed out")

// releaseScript deletes the key only while it still holds our token, so an
// expired lock taken over by another process is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// OrderLocker is a SET NX lock with a TTL, one key per order.
type OrderLocker struct {
	client *redis.Client
	TTL    time.Duration
	Wait   time.Duration
	Retry  time.Duration
}

func NewOrderLocker(client *redis.Client) *OrderLocker {
	return &OrderLocker{
		client: client,
		TTL:    30 * time.Second,
		Wait:   5 * time.Second,
		Retry:  100 * time.Millisecond,
	}
}

// Lock blocks until the key is free, Wait elapses or ctx is done. When redis
// cannot be reached the caller proceeds unlocked and only a warning is logged;
// a held lock still yields ErrLockTimeout.
func (l *OrderLocker) Lock(ctx context.Context, key string) (func(), error) {
	key = "lock:" + key
	token := uuid.NewString()
	deadline := time.Now().Add(l.Wait)

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.TTL).Result()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			log.Warnw("redis lock unavailable, continuing without lock", "key", key, "error", err)
			return func() {}, nil
		}
		if ok {
			return func() {
				// ctx may already be cancelled by the time the caller unlocks
				releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				if err := releaseScript.Run(releaseCtx, l.client, []string{key}, token).Err(); err != nil {
					log.Warnw("failed to release lock", "key", key, "error", err)
				}
			}, nil
		}
		if time.Now().After(deadline) {
			return nil, ErrLockTimeout
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.Retry):
		}
	}
}
