package account

import (
	"context"
	"sync"
	"testing"
	"time"
)

// stubStore is a thread-safe in-memory Store for unit tests. WithTx runs the
// callback against the same state without rollback; the pipeline under test
// validates before mutating, so no test depends on rollback.
type stubStore struct {
	mu                sync.Mutex
	users             map[int64]User
	accounts          map[string]Account
	transactions      []Transaction
	nextAccountID     int64
	nextTransactionID int64
	calls             int
}

func newStubStore() *stubStore {
	return &stubStore{
		users:    make(map[int64]User),
		accounts: make(map[string]Account),
	}
}

func (store *stubStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error {
	return fn(ctx, store)
}

func (store *stubStore) GetUser(_ context.Context, userID int64) (User, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.calls++
	user, ok := store.users[userID]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return user, nil
}

func (store *stubStore) GetAccount(_ context.Context, number AccountNumber) (Account, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.calls++
	acct, ok := store.accounts[number.String()]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return acct, nil
}

func (store *stubStore) CreateAccount(_ context.Context, acct Account) (Account, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.calls++
	store.nextAccountID++
	acct.ID = store.nextAccountID
	store.accounts[acct.Number.String()] = acct
	return acct, nil
}

func (store *stubStore) UpdateAccount(_ context.Context, acct Account) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.calls++
	store.accounts[acct.Number.String()] = acct
	return nil
}

func (store *stubStore) CountAccountsByUser(_ context.Context, userID int64) (int64, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.calls++
	var count int64
	for _, acct := range store.accounts {
		if acct.UserID == userID {
			count++
		}
	}
	return count, nil
}

func (store *stubStore) ListAccountsByUser(_ context.Context, userID int64) ([]Account, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.calls++
	var accounts []Account
	for _, acct := range store.accounts {
		if acct.UserID == userID {
			accounts = append(accounts, acct)
		}
	}
	return accounts, nil
}

func (store *stubStore) InsertTransaction(_ context.Context, transaction Transaction) (Transaction, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.calls++
	store.nextTransactionID++
	transaction.ID = store.nextTransactionID
	store.transactions = append(store.transactions, transaction)
	return transaction, nil
}

func (store *stubStore) GetTransaction(_ context.Context, transactionID TransactionID) (Transaction, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.calls++
	for _, transaction := range store.transactions {
		if transaction.TransactionID == transactionID {
			return transaction, nil
		}
	}
	return Transaction{}, ErrTransactionNotFound
}

func (store *stubStore) seedUser(user User) {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.users[user.ID] = user
}

func (store *stubStore) seedAccount(acct Account) Account {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.nextAccountID++
	acct.ID = store.nextAccountID
	store.accounts[acct.Number.String()] = acct
	return acct
}

func (store *stubStore) seedTransaction(transaction Transaction) Transaction {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.nextTransactionID++
	transaction.ID = store.nextTransactionID
	store.transactions = append(store.transactions, transaction)
	return transaction
}

func (store *stubStore) mustAccount(test *testing.T, number AccountNumber) Account {
	test.Helper()
	store.mu.Lock()
	defer store.mu.Unlock()
	acct, ok := store.accounts[number.String()]
	if !ok {
		test.Fatalf("account %s missing", number)
	}
	return acct
}

func (store *stubStore) transactionCount() int {
	store.mu.Lock()
	defer store.mu.Unlock()
	return len(store.transactions)
}

func (store *stubStore) lastTransaction(test *testing.T) Transaction {
	test.Helper()
	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.transactions) == 0 {
		test.Fatalf("no transactions recorded")
	}
	return store.transactions[len(store.transactions)-1]
}

func (store *stubStore) callCount() int {
	store.mu.Lock()
	defer store.mu.Unlock()
	return store.calls
}

// failingStore rejects every store call with a fixed error.
type failingStore struct {
	err error
}

func (store *failingStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error {
	return store.err
}

func (store *failingStore) GetUser(context.Context, int64) (User, error) {
	return User{}, store.err
}

func (store *failingStore) GetAccount(context.Context, AccountNumber) (Account, error) {
	return Account{}, store.err
}

func (store *failingStore) CreateAccount(context.Context, Account) (Account, error) {
	return Account{}, store.err
}

func (store *failingStore) UpdateAccount(context.Context, Account) error {
	return store.err
}

func (store *failingStore) CountAccountsByUser(context.Context, int64) (int64, error) {
	return 0, store.err
}

func (store *failingStore) ListAccountsByUser(context.Context, int64) ([]Account, error) {
	return nil, store.err
}

func (store *failingStore) InsertTransaction(context.Context, Transaction) (Transaction, error) {
	return Transaction{}, store.err
}

func (store *failingStore) GetTransaction(context.Context, TransactionID) (Transaction, error) {
	return Transaction{}, store.err
}

func mustAccountNumber(test *testing.T, raw string) AccountNumber {
	test.Helper()
	number, err := NewAccountNumber(raw)
	if err != nil {
		test.Fatalf("account number %q: %v", raw, err)
	}
	return number
}

func mustTransactionIDValue(test *testing.T, raw string) TransactionID {
	test.Helper()
	transactionID, err := NewTransactionID(raw)
	if err != nil {
		test.Fatalf("transaction id %q: %v", raw, err)
	}
	return transactionID
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

var testNow = time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC)

func seedActiveAccount(store *stubStore, userID int64, number string, balanceMinor int64) Account {
	store.seedUser(User{ID: userID, Name: "holder"})
	acct, _ := NewAccountNumber(number)
	return store.seedAccount(Account{
		UserID:       userID,
		Number:       acct,
		BalanceMinor: balanceMinor,
		Status:       AccountStatusActive,
		RegisteredAt: testNow.AddDate(0, -1, 0),
	})
}

// recorderLogger captures operation log callbacks.
type recorderLogger struct {
	mu      sync.Mutex
	entries []OperationLog
}

func (logger *recorderLogger) LogOperation(_ context.Context, entry OperationLog) {
	logger.mu.Lock()
	defer logger.mu.Unlock()
	logger.entries = append(logger.entries, entry)
}

func (logger *recorderLogger) snapshot() []OperationLog {
	logger.mu.Lock()
	defer logger.mu.Unlock()
	return append([]OperationLog(nil), logger.entries...)
}
