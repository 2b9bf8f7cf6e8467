package account

import (
	"context"
	"errors"
	"testing"
)

func mustProcessor(test *testing.T, store Store, options ...ProcessorOption) *Processor {
	test.Helper()
	processor, err := NewProcessor(store, fixedClock(testNow), options...)
	if err != nil {
		test.Fatalf("processor init: %v", err)
	}
	return processor
}

func TestProcessorRequiresDependencies(test *testing.T) {
	test.Parallel()
	if _, err := NewProcessor(nil, fixedClock(testNow)); !errors.Is(err, ErrInvalidServiceConfig) {
		test.Fatalf("expected ErrInvalidServiceConfig for nil store, got %v", err)
	}
	if _, err := NewProcessor(newStubStore(), nil); !errors.Is(err, ErrInvalidServiceConfig) {
		test.Fatalf("expected ErrInvalidServiceConfig for nil clock, got %v", err)
	}
}

func TestUseBalanceDebitsAndRecordsTransaction(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	seedActiveAccount(store, 10, "1234567890", 10_000)
	processor := mustProcessor(test, store)
	number := mustAccountNumber(test, "1234567890")

	transaction, err := processor.UseBalance(context.Background(), 10, number, 200)
	if err != nil {
		test.Fatalf("use balance: %v", err)
	}
	if transaction.Type != TransactionTypeUse || transaction.Result != TransactionResultSuccess {
		test.Fatalf("expected use/success, got %s/%s", transaction.Type, transaction.Result)
	}
	if transaction.AmountMinor != 200 {
		test.Fatalf("expected amount 200, got %d", transaction.AmountMinor)
	}
	if transaction.BalanceSnapshotMinor != 9_800 {
		test.Fatalf("expected snapshot 9800, got %d", transaction.BalanceSnapshotMinor)
	}
	if transaction.TransactionID.String() == "" {
		test.Fatalf("expected a minted transaction id")
	}
	if balance := store.mustAccount(test, number).BalanceMinor; balance != 9_800 {
		test.Fatalf("expected balance 9800, got %d", balance)
	}
}

func TestUseBalanceValidationFailures(test *testing.T) {
	test.Parallel()
	cases := []struct {
		name     string
		userID   int64
		number   string
		amount   int64
		expected error
	}{
		{name: "unknown user", userID: 99, number: "1234567890", amount: 200, expected: ErrUserNotFound},
		{name: "unknown account", userID: 10, number: "0000000000", amount: 200, expected: ErrAccountNotFound},
		{name: "owner mismatch", userID: 11, number: "1234567890", amount: 200, expected: ErrOwnerMismatch},
		{name: "below minimum", userID: 10, number: "1234567890", amount: 5, expected: ErrInvalidAmount},
		{name: "above maximum", userID: 10, number: "1234567890", amount: 1_000_000_001, expected: ErrInvalidAmount},
		{name: "insufficient balance", userID: 10, number: "1234567890", amount: 20_000, expected: ErrInsufficientBalance},
	}
	for _, testCase := range cases {
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			store := newStubStore()
			seedActiveAccount(store, 10, "1234567890", 10_000)
			store.seedUser(User{ID: 11, Name: "stranger"})
			processor := mustProcessor(test, store)

			_, err := processor.UseBalance(context.Background(), testCase.userID, mustAccountNumber(test, testCase.number), testCase.amount)
			if !errors.Is(err, testCase.expected) {
				test.Fatalf("expected %v, got %v", testCase.expected, err)
			}
			if balance := store.mustAccount(test, mustAccountNumber(test, "1234567890")).BalanceMinor; balance != 10_000 {
				test.Fatalf("validation failure must not mutate balance, got %d", balance)
			}
			if store.transactionCount() != 0 {
				test.Fatalf("validation failure must not persist a transaction")
			}
		})
	}
}

func TestUseBalanceRejectsClosedAccount(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	store.seedUser(User{ID: 10, Name: "holder"})
	number := mustAccountNumber(test, "1234567890")
	store.seedAccount(Account{
		UserID:       10,
		Number:       number,
		BalanceMinor: 10_000,
		Status:       AccountStatusClosed,
		RegisteredAt: testNow.AddDate(0, -1, 0),
	})
	processor := mustProcessor(test, store)

	if _, err := processor.UseBalance(context.Background(), 10, number, 200); !errors.Is(err, ErrAccountClosed) {
		test.Fatalf("expected ErrAccountClosed, got %v", err)
	}
}

func TestUseBalanceAcceptsBoundaryAmounts(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	seedActiveAccount(store, 10, "1234567890", 2_000_000_000)
	processor := mustProcessor(test, store)
	number := mustAccountNumber(test, "1234567890")

	if _, err := processor.UseBalance(context.Background(), 10, number, 10); err != nil {
		test.Fatalf("minimum amount: %v", err)
	}
	if _, err := processor.UseBalance(context.Background(), 10, number, 1_000_000_000); err != nil {
		test.Fatalf("maximum amount: %v", err)
	}
}

func TestCancelBalanceRestoresBalance(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	acct := seedActiveAccount(store, 10, "1234567890", 9_800)
	original := store.seedTransaction(Transaction{
		TransactionID:        mustTransactionIDValue(test, "use-1"),
		AccountID:            acct.ID,
		AccountNumber:        acct.Number,
		Type:                 TransactionTypeUse,
		Result:               TransactionResultSuccess,
		AmountMinor:          200,
		BalanceSnapshotMinor: 9_800,
		TransactedAt:         testNow.AddDate(0, 0, -1),
	})
	processor := mustProcessor(test, store)

	cancelled, err := processor.CancelBalance(context.Background(), original.TransactionID, acct.Number, 200)
	if err != nil {
		test.Fatalf("cancel balance: %v", err)
	}
	if cancelled.Type != TransactionTypeCancel || cancelled.Result != TransactionResultSuccess {
		test.Fatalf("expected cancel/success, got %s/%s", cancelled.Type, cancelled.Result)
	}
	if cancelled.BalanceSnapshotMinor != 10_000 {
		test.Fatalf("expected snapshot 10000, got %d", cancelled.BalanceSnapshotMinor)
	}
	if balance := store.mustAccount(test, acct.Number).BalanceMinor; balance != 10_000 {
		test.Fatalf("expected balance restored to 10000, got %d", balance)
	}
}

func TestCancelBalanceRejectsPartialCancel(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	acct := seedActiveAccount(store, 10, "1234567890", 9_800)
	original := store.seedTransaction(Transaction{
		TransactionID: mustTransactionIDValue(test, "use-2"),
		AccountID:     acct.ID,
		AccountNumber: acct.Number,
		Type:          TransactionTypeUse,
		Result:        TransactionResultSuccess,
		AmountMinor:   200,
		TransactedAt:  testNow.AddDate(0, 0, -1),
	})
	processor := mustProcessor(test, store)

	if _, err := processor.CancelBalance(context.Background(), original.TransactionID, acct.Number, 100); !errors.Is(err, ErrCancelMustBeFull) {
		test.Fatalf("expected ErrCancelMustBeFull, got %v", err)
	}
	if balance := store.mustAccount(test, acct.Number).BalanceMinor; balance != 9_800 {
		test.Fatalf("partial cancel must not mutate balance, got %d", balance)
	}
}

func TestCancelBalanceRejectsExpiredWindow(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	acct := seedActiveAccount(store, 10, "1234567890", 9_800)
	original := store.seedTransaction(Transaction{
		TransactionID: mustTransactionIDValue(test, "use-3"),
		AccountID:     acct.ID,
		AccountNumber: acct.Number,
		Type:          TransactionTypeUse,
		Result:        TransactionResultSuccess,
		AmountMinor:   200,
		TransactedAt:  testNow.AddDate(-1, 0, -1),
	})
	processor := mustProcessor(test, store)

	if _, err := processor.CancelBalance(context.Background(), original.TransactionID, acct.Number, 200); !errors.Is(err, ErrCancellationWindowExpired) {
		test.Fatalf("expected ErrCancellationWindowExpired, got %v", err)
	}
}

func TestCancelBalanceRejectsForeignAccount(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	acct := seedActiveAccount(store, 10, "1234567890", 9_800)
	other := seedActiveAccount(store, 11, "8888888888", 500)
	original := store.seedTransaction(Transaction{
		TransactionID: mustTransactionIDValue(test, "use-4"),
		AccountID:     acct.ID,
		AccountNumber: acct.Number,
		Type:          TransactionTypeUse,
		Result:        TransactionResultSuccess,
		AmountMinor:   200,
		TransactedAt:  testNow.AddDate(0, 0, -1),
	})
	processor := mustProcessor(test, store)

	if _, err := processor.CancelBalance(context.Background(), original.TransactionID, other.Number, 200); !errors.Is(err, ErrTransactionAccountMismatch) {
		test.Fatalf("expected ErrTransactionAccountMismatch, got %v", err)
	}
}

func TestCancelBalanceUnknownTransaction(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	acct := seedActiveAccount(store, 10, "1234567890", 9_800)
	processor := mustProcessor(test, store)

	if _, err := processor.CancelBalance(context.Background(), mustTransactionIDValue(test, "missing"), acct.Number, 200); !errors.Is(err, ErrTransactionNotFound) {
		test.Fatalf("expected ErrTransactionNotFound, got %v", err)
	}
}

func TestQueryTransaction(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	acct := seedActiveAccount(store, 10, "1234567890", 9_800)
	stored := store.seedTransaction(Transaction{
		TransactionID: mustTransactionIDValue(test, "use-5"),
		AccountID:     acct.ID,
		AccountNumber: acct.Number,
		Type:          TransactionTypeUse,
		Result:        TransactionResultSuccess,
		AmountMinor:   200,
		TransactedAt:  testNow,
	})
	processor := mustProcessor(test, store)

	found, err := processor.QueryTransaction(context.Background(), stored.TransactionID)
	if err != nil {
		test.Fatalf("query transaction: %v", err)
	}
	if found.TransactionID != stored.TransactionID || found.AmountMinor != 200 {
		test.Fatalf("unexpected transaction: %+v", found)
	}
	if _, err := processor.QueryTransaction(context.Background(), mustTransactionIDValue(test, "missing")); !errors.Is(err, ErrTransactionNotFound) {
		test.Fatalf("expected ErrTransactionNotFound, got %v", err)
	}
}

func TestProcessorLogsOperations(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	seedActiveAccount(store, 10, "1234567890", 10_000)
	logger := &recorderLogger{}
	processor := mustProcessor(test, store, WithProcessorLogger(logger))
	number := mustAccountNumber(test, "1234567890")

	if _, err := processor.UseBalance(context.Background(), 10, number, 200); err != nil {
		test.Fatalf("use balance: %v", err)
	}
	_, _ = processor.UseBalance(context.Background(), 10, number, 5)

	entries := logger.snapshot()
	if len(entries) != 2 {
		test.Fatalf("expected two log entries, got %d", len(entries))
	}
	if entries[0].Operation != operationUseBalance || entries[0].Status != operationStatusOK {
		test.Fatalf("unexpected first entry: %+v", entries[0])
	}
	if entries[1].Status != operationStatusError || !errors.Is(entries[1].Error, ErrInvalidAmount) {
		test.Fatalf("unexpected second entry: %+v", entries[1])
	}
}
