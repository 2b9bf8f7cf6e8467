package account

import (
	"context"
	"errors"
	"testing"
)

func mustRecorder(test *testing.T, store Store, options ...RecorderOption) *FailureRecorder {
	test.Helper()
	recorder, err := NewFailureRecorder(store, fixedClock(testNow), options...)
	if err != nil {
		test.Fatalf("recorder init: %v", err)
	}
	return recorder
}

func TestRecorderRequiresDependencies(test *testing.T) {
	test.Parallel()
	if _, err := NewFailureRecorder(nil, fixedClock(testNow)); !errors.Is(err, ErrInvalidServiceConfig) {
		test.Fatalf("expected ErrInvalidServiceConfig for nil store, got %v", err)
	}
	if _, err := NewFailureRecorder(newStubStore(), nil); !errors.Is(err, ErrInvalidServiceConfig) {
		test.Fatalf("expected ErrInvalidServiceConfig for nil clock, got %v", err)
	}
}

func TestRecordFailedUseSnapshotsUnchangedBalance(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	acct := seedActiveAccount(store, 10, "1234567890", 10_000)
	recorder := mustRecorder(test, store)

	recorder.RecordFailedUse(context.Background(), acct.Number, 5)

	if store.transactionCount() != 1 {
		test.Fatalf("expected one failed record, got %d", store.transactionCount())
	}
	record := store.lastTransaction(test)
	if record.Type != TransactionTypeUse || record.Result != TransactionResultFailed {
		test.Fatalf("expected use/failed, got %s/%s", record.Type, record.Result)
	}
	if record.AmountMinor != 5 {
		test.Fatalf("expected attempted amount 5, got %d", record.AmountMinor)
	}
	if record.BalanceSnapshotMinor != 10_000 {
		test.Fatalf("expected unchanged snapshot 10000, got %d", record.BalanceSnapshotMinor)
	}
	if balance := store.mustAccount(test, acct.Number).BalanceMinor; balance != 10_000 {
		test.Fatalf("recording must not mutate balance, got %d", balance)
	}
}

func TestRecordFailedCancelWritesCancelType(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	acct := seedActiveAccount(store, 10, "1234567890", 9_800)
	recorder := mustRecorder(test, store)

	recorder.RecordFailedCancel(context.Background(), acct.Number, 100)

	record := store.lastTransaction(test)
	if record.Type != TransactionTypeCancel || record.Result != TransactionResultFailed {
		test.Fatalf("expected cancel/failed, got %s/%s", record.Type, record.Result)
	}
}

func TestRecordSkipsUnresolvableAccount(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	logger := &recorderLogger{}
	recorder := mustRecorder(test, store, WithRecorderLogger(logger))

	recorder.RecordFailedUse(context.Background(), mustAccountNumber(test, "0000000000"), 200)

	if store.transactionCount() != 0 {
		test.Fatalf("expected no record without a resolvable account")
	}
	entries := logger.snapshot()
	if len(entries) != 1 || !errors.Is(entries[0].Error, ErrAccountNotFound) {
		test.Fatalf("expected logged lookup failure, got %+v", entries)
	}
}

func TestRecordStoreFailureOnlyLogs(test *testing.T) {
	test.Parallel()
	logger := &recorderLogger{}
	recorder := mustRecorder(test, &failingStore{err: errors.New("store down")}, WithRecorderLogger(logger))

	// Must not panic or propagate.
	recorder.RecordFailedUse(context.Background(), mustAccountNumber(test, "1234567890"), 200)

	entries := logger.snapshot()
	if len(entries) != 1 || entries[0].Status != operationStatusError {
		test.Fatalf("expected a logged error entry, got %+v", entries)
	}
}
