package lock

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Errors surfaced by the Coordinator and its backends.
var (
	// ErrAcquireTimeout reports that the wait window elapsed while another
	// holder kept the key. Callers may retry; nothing was mutated.
	ErrAcquireTimeout = errors.New("lock acquire timeout")
	// ErrBackendUnavailable reports that the backend itself failed, as
	// opposed to a legitimate contention timeout.
	ErrBackendUnavailable = errors.New("lock backend unavailable")
	// ErrNotAcquired is returned by a Backend when the wait window elapses
	// without obtaining the key.
	ErrNotAcquired = errors.New("lock not acquired")
	// ErrInvalidCoordinatorConfig reports bad Coordinator wiring.
	ErrInvalidCoordinatorConfig = errors.New("invalid lock coordinator config")
)

// Timing defaults. The lease exceeds worst-case operation latency so an
// in-flight mutation finishes before the backend reclaims the key.
const (
	DefaultWaitTimeout  = time.Second
	DefaultLeaseTimeout = 5 * time.Second
)

// keyPrefix namespaces this subsystem's keys within the shared backend.
const keyPrefix = "ACLK"

// Backend is the shared lease store reachable by every service process.
type Backend interface {
	// Acquire returns an ownership token once key is held. It returns
	// ErrNotAcquired when wait elapses with the key still held elsewhere.
	// The lease bounds how long the grant is honored without a release.
	Acquire(ctx context.Context, key string, wait time.Duration, lease time.Duration) (string, error)
	// Release frees key only while token still owns it. A missing or
	// reassigned key (expired lease) releases as a no-op.
	Release(ctx context.Context, key string, token string) error
}

// Handle represents one outstanding lease on a lock key.
type Handle struct {
	key       string
	token     string
	expiresAt time.Time
}

// Key returns the namespaced lock key.
func (handle *Handle) Key() string {
	return handle.key
}

// Token returns the opaque ownership token.
func (handle *Handle) Token() string {
	return handle.token
}

// ExpiresAt returns when the backend reclaims the key on its own.
func (handle *Handle) ExpiresAt() time.Time {
	return handle.expiresAt
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithWaitTimeout overrides how long Acquire queues for a contended key.
func WithWaitTimeout(wait time.Duration) CoordinatorOption {
	return func(coordinator *Coordinator) {
		coordinator.wait = wait
	}
}

// WithLeaseTimeout overrides how long a grant outlives a crashed holder.
func WithLeaseTimeout(lease time.Duration) CoordinatorOption {
	return func(coordinator *Coordinator) {
		coordinator.lease = lease
	}
}

// Coordinator turns an account number into exclusive access, hiding the
// backend's retry and timeout mechanics.
type Coordinator struct {
	backend Backend
	wait    time.Duration
	lease   time.Duration
}

// NewCoordinator wires a Coordinator around the injected backend.
func NewCoordinator(backend Backend, options ...CoordinatorOption) (*Coordinator, error) {
	if backend == nil {
		return nil, fmt.Errorf("%w: backend dependency is nil", ErrInvalidCoordinatorConfig)
	}
	coordinator := &Coordinator{
		backend: backend,
		wait:    DefaultWaitTimeout,
		lease:   DefaultLeaseTimeout,
	}
	for _, option := range options {
		if option != nil {
			option(coordinator)
		}
	}
	if coordinator.wait <= 0 {
		return nil, fmt.Errorf("%w: wait timeout must be positive", ErrInvalidCoordinatorConfig)
	}
	if coordinator.lease <= 0 {
		return nil, fmt.Errorf("%w: lease timeout must be positive", ErrInvalidCoordinatorConfig)
	}
	return coordinator, nil
}

// Key derives the backend key for an account number. Deterministic, so
// callers targeting the same account contend on the same key regardless of
// process.
func Key(accountNumber string) string {
	return keyPrefix + accountNumber
}

// Acquire obtains the lock for accountNumber or fails within the configured
// wait window. Backend failures surface as ErrBackendUnavailable; they are
// never swallowed, since proceeding without a real lock would break the
// single-writer guarantee.
func (coordinator *Coordinator) Acquire(ctx context.Context, accountNumber string) (*Handle, error) {
	key := Key(accountNumber)
	token, err := coordinator.backend.Acquire(ctx, key, coordinator.wait, coordinator.lease)
	if err != nil {
		if errors.Is(err, ErrNotAcquired) {
			return nil, fmt.Errorf("%w: key %s", ErrAcquireTimeout, key)
		}
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return &Handle{
		key:       key,
		token:     token,
		expiresAt: time.Now().Add(coordinator.lease),
	}, nil
}

// Release frees the handle's key. Releasing after lease expiry is a no-op:
// the backend has already reclaimed the key and correctness does not depend
// on this call.
func (coordinator *Coordinator) Release(ctx context.Context, handle *Handle) error {
	if handle == nil {
		return nil
	}
	if err := coordinator.backend.Release(ctx, handle.key, handle.token); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}
