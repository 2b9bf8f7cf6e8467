package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryLease struct {
	token     string
	expiresAt time.Time
}

// MemoryBackend implements Backend with process-local state. It mirrors the
// Redis backend's lease semantics (expiry reclaims the key, release is
// token-guarded) and serves tests and single-process deployments.
type MemoryBackend struct {
	mu     sync.Mutex
	leases map[string]memoryLease
}

// NewMemoryBackend returns an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{leases: make(map[string]memoryLease)}
}

// Acquire polls the local lease table until the key frees up or wait elapses.
func (backend *MemoryBackend) Acquire(ctx context.Context, key string, wait time.Duration, lease time.Duration) (string, error) {
	deadline := time.Now().Add(wait)
	for {
		token, acquired := backend.tryAcquire(key, lease)
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

func (backend *MemoryBackend) tryAcquire(key string, lease time.Duration) (string, bool) {
	backend.mu.Lock()
	defer backend.mu.Unlock()
	current, held := backend.leases[key]
	if held && time.Now().After(current.expiresAt) {
		delete(backend.leases, key)
		held = false
	}
	if held {
		return "", false
	}
	token := uuid.NewString()
	backend.leases[key] = memoryLease{token: token, expiresAt: time.Now().Add(lease)}
	return token, true
}

// Release frees key only while token still owns it.
func (backend *MemoryBackend) Release(_ context.Context, key string, token string) error {
	backend.mu.Lock()
	defer backend.mu.Unlock()
	if current, held := backend.leases[key]; held && current.token == token {
		delete(backend.leases, key)
	}
	return nil
}
