package lock

import (
	"context"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
else
    return 0
end
`)

// acquirePollInterval bounds how often a waiter re-probes a contended key.
const acquirePollInterval = 50 * time.Millisecond

// RedisBackend implements Backend on a shared Redis instance. SET NX with a
// per-acquisition token provides the lease; the compare-and-delete script
// keeps a late release from freeing another holder's grant.
type RedisBackend struct {
	client *redis.Client
}

// NewRedisBackend returns a backend using the provided client.
func NewRedisBackend(client *redis.Client) *RedisBackend {
	return &RedisBackend{client: client}
}

// Acquire polls SET NX until the key is obtained or wait elapses.
func (backend *RedisBackend) Acquire(ctx context.Context, key string, wait time.Duration, lease time.Duration) (string, error) {
	token := uuid.NewString()
	deadline := time.Now().Add(wait)
	for {
		acquired, err := backend.client.SetNX(ctx, key, token, lease).Result()
		if err != nil {
			return "", err
		}
		if acquired {
			return token, nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return "", ErrNotAcquired
		}
		pause := acquirePollInterval
		if pause > remaining {
			pause = remaining
		}
		timer := time.NewTimer(pause)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", ctx.Err()
		case <-timer.C:
		}
	}
}

// Release deletes key while token still owns it. An expired or reassigned
// key leaves the script with nothing to delete, which is not an error.
func (backend *RedisBackend) Release(ctx context.Context, key string, token string) error {
	err := releaseScript.Run(ctx, backend.client, []string{key}, token).Err()
	if err == redis.Nil {
		return nil
	}
	return err
}
