package account

import (
	"context"
	"fmt"

	"github.com/marlinbank/accountd/pkg/lock"
)

// Coordinator is the public mutation surface. It sequences the lock
// coordinator, the processor, and the failure recorder: acquire the
// account's lock, run the pipeline, record a failed attempt on business
// rejection, and release the lock exactly once on every path.
type Coordinator struct {
	locks     *lock.Coordinator
	processor *Processor
	recorder  *FailureRecorder
}

// NewCoordinator wires a Coordinator.
func NewCoordinator(locks *lock.Coordinator, processor *Processor, recorder *FailureRecorder) (*Coordinator, error) {
	if locks == nil {
		return nil, fmt.Errorf("%w: lock coordinator dependency is nil", ErrInvalidServiceConfig)
	}
	if processor == nil {
		return nil, fmt.Errorf("%w: processor dependency is nil", ErrInvalidServiceConfig)
	}
	if recorder == nil {
		return nil, fmt.Errorf("%w: failure recorder dependency is nil", ErrInvalidServiceConfig)
	}
	return &Coordinator{locks: locks, processor: processor, recorder: recorder}, nil
}

// UseBalance debits the account under its lock. On lock failure the
// operation is rejected before any mutation is attempted.
func (coordinator *Coordinator) UseBalance(ctx context.Context, userID int64, number AccountNumber, amountMinor int64) (Transaction, error) {
	return coordinator.withAccountLock(ctx, number, func(ctx context.Context) (Transaction, error) {
		transaction, err := coordinator.processor.UseBalance(ctx, userID, number, amountMinor)
		if err != nil {
			if IsBusinessError(err) {
				coordinator.recorder.RecordFailedUse(ctx, number, amountMinor)
			}
			return Transaction{}, err
		}
		return transaction, nil
	})
}

// CancelBalance credits the account back under its lock.
func (coordinator *Coordinator) CancelBalance(ctx context.Context, transactionID TransactionID, number AccountNumber, amountMinor int64) (Transaction, error) {
	return coordinator.withAccountLock(ctx, number, func(ctx context.Context) (Transaction, error) {
		transaction, err := coordinator.processor.CancelBalance(ctx, transactionID, number, amountMinor)
		if err != nil {
			if IsBusinessError(err) {
				coordinator.recorder.RecordFailedCancel(ctx, number, amountMinor)
			}
			return Transaction{}, err
		}
		return transaction, nil
	})
}

// QueryTransaction reads a transaction by id without touching the lock.
func (coordinator *Coordinator) QueryTransaction(ctx context.Context, transactionID TransactionID) (Transaction, error) {
	return coordinator.processor.QueryTransaction(ctx, transactionID)
}

// withAccountLock brackets fn with acquire and a deferred release, so the
// release runs on success, business failure, and panic alike. The release
// uses a context detached from the caller's cancellation: once the protected
// section ran, the lock must come back regardless of the request's fate.
func (coordinator *Coordinator) withAccountLock(ctx context.Context, number AccountNumber, fn func(ctx context.Context) (Transaction, error)) (Transaction, error) {
	handle, err := coordinator.locks.Acquire(ctx, number.String())
	if err != nil {
		return Transaction{}, err
	}
	defer func() {
		_ = coordinator.locks.Release(context.WithoutCancel(ctx), handle)
	}()
	return fn(ctx)
}
