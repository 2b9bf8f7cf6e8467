package account

import (
	"context"
	"fmt"
	"time"
)

// RecorderOption configures a FailureRecorder instance.
type RecorderOption func(*FailureRecorder)

// WithRecorderLogger wires a logger for recording outcomes and fallbacks.
func WithRecorderLogger(logger OperationLogger) RecorderOption {
	return func(recorder *FailureRecorder) {
		recorder.logger = logger
	}
}

// WithRecorderTransactionIDFactory overrides how failed-attempt transaction
// ids are minted.
func WithRecorderTransactionIDFactory(factory func() string) RecorderOption {
	return func(recorder *FailureRecorder) {
		recorder.newID = factory
	}
}

// FailureRecorder persists a failed-attempt transaction after a business
// validation rejects a mutation. The failing call performed no mutation, so
// the recorder looks the account up fresh and snapshots the unchanged
// balance. Recording never raises: a failure here must not mask the business
// error already propagating to the caller, so problems go to the logger
// instead.
type FailureRecorder struct {
	store  Store
	nowFn  func() time.Time
	newID  func() string
	logger OperationLogger
}

// NewFailureRecorder wires a FailureRecorder.
func NewFailureRecorder(store Store, now func() time.Time, options ...RecorderOption) (*FailureRecorder, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	recorder := &FailureRecorder{store: store, nowFn: now, newID: newTransactionIDValue}
	for _, option := range options {
		if option != nil {
			option(recorder)
		}
	}
	return recorder, nil
}

// RecordFailedUse writes a use/failed transaction for the attempted amount.
func (recorder *FailureRecorder) RecordFailedUse(ctx context.Context, number AccountNumber, amountMinor int64) {
	recorder.record(ctx, TransactionTypeUse, number, amountMinor)
}

// RecordFailedCancel writes a cancel/failed transaction for the attempted
// amount.
func (recorder *FailureRecorder) RecordFailedCancel(ctx context.Context, number AccountNumber, amountMinor int64) {
	recorder.record(ctx, TransactionTypeCancel, number, amountMinor)
}

func (recorder *FailureRecorder) record(ctx context.Context, transactionType TransactionType, number AccountNumber, amountMinor int64) {
	acct, err := recorder.store.GetAccount(ctx, number)
	if err != nil {
		// Nothing to snapshot when the account cannot be resolved.
		recorder.logRecord(ctx, number, amountMinor, err)
		return
	}
	transactionID, err := NewTransactionID(recorder.newID())
	if err != nil {
		recorder.logRecord(ctx, number, amountMinor, err)
		return
	}
	_, err = recorder.store.InsertTransaction(ctx, Transaction{
		TransactionID:        transactionID,
		AccountID:            acct.ID,
		AccountNumber:        acct.Number,
		Type:                 transactionType,
		Result:               TransactionResultFailed,
		AmountMinor:          amountMinor,
		BalanceSnapshotMinor: acct.BalanceMinor,
		TransactedAt:         recorder.nowFn(),
	})
	recorder.logRecord(ctx, number, amountMinor, err)
}

func (recorder *FailureRecorder) logRecord(ctx context.Context, number AccountNumber, amountMinor int64, err error) {
	logOperation(ctx, recorder.logger, OperationLog{
		Operation:     operationRecordFailure,
		AccountNumber: number.String(),
		Amount:        amountMinor,
		Error:         err,
	})
}
