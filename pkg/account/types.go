package account

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// AccountNumber is the opaque, globally unique key of an account.
type AccountNumber struct {
	value string
}

// NewAccountNumber validates and normalizes an account number.
func NewAccountNumber(raw string) (AccountNumber, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return AccountNumber{}, fmt.Errorf("%w: empty value", ErrInvalidAccountNumber)
	}
	return AccountNumber{value: trimmed}, nil
}

// String returns the normalized account number.
func (number AccountNumber) String() string {
	return number.value
}

// TransactionID is the opaque, globally unique key of a transaction record.
type TransactionID struct {
	value string
}

// NewTransactionID validates and normalizes a transaction id.
func NewTransactionID(raw string) (TransactionID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return TransactionID{}, fmt.Errorf("%w: empty value", ErrInvalidTransactionID)
	}
	return TransactionID{value: trimmed}, nil
}

// String returns the normalized transaction id.
func (id TransactionID) String() string {
	return id.value
}

// AccountStatus defines the account lifecycle.
type AccountStatus string

const (
	AccountStatusActive AccountStatus = "active"
	AccountStatusClosed AccountStatus = "closed"
)

// ParseAccountStatus maps a stored value back to an AccountStatus.
func ParseAccountStatus(raw string) (AccountStatus, error) {
	switch AccountStatus(raw) {
	case AccountStatusActive, AccountStatusClosed:
		return AccountStatus(raw), nil
	}
	return "", fmt.Errorf("%w: unknown account status %q", ErrInvalidServiceConfig, raw)
}

// String returns the stored representation.
func (status AccountStatus) String() string {
	return string(status)
}

// TransactionType enumerates balance-mutation kinds.
type TransactionType string

const (
	TransactionTypeUse    TransactionType = "use"
	TransactionTypeCancel TransactionType = "cancel"
)

// ParseTransactionType maps a stored value back to a TransactionType.
func ParseTransactionType(raw string) (TransactionType, error) {
	switch TransactionType(raw) {
	case TransactionTypeUse, TransactionTypeCancel:
		return TransactionType(raw), nil
	}
	return "", fmt.Errorf("%w: unknown transaction type %q", ErrInvalidServiceConfig, raw)
}

// String returns the stored representation.
func (transactionType TransactionType) String() string {
	return string(transactionType)
}

// TransactionResult records whether the attempted mutation went through.
type TransactionResult string

const (
	TransactionResultSuccess TransactionResult = "success"
	TransactionResultFailed  TransactionResult = "failed"
)

// ParseTransactionResult maps a stored value back to a TransactionResult.
func ParseTransactionResult(raw string) (TransactionResult, error) {
	switch TransactionResult(raw) {
	case TransactionResultSuccess, TransactionResultFailed:
		return TransactionResult(raw), nil
	}
	return "", fmt.Errorf("%w: unknown transaction result %q", ErrInvalidServiceConfig, raw)
}

// String returns the stored representation.
func (result TransactionResult) String() string {
	return string(result)
}

// AuditTimes carries creation and modification timestamps shared by stored
// entities.
type AuditTimes struct {
	CreatedAt time.Time
	UpdatedAt time.Time
}

// User is an account owner.
type User struct {
	ID    int64
	Name  string
	Audit AuditTimes
}

// Account holds a balance in minor currency units. The balance never goes
// negative; mutations happen only under the account's lock.
type Account struct {
	ID             int64
	UserID         int64
	Number         AccountNumber
	BalanceMinor   int64
	Status         AccountStatus
	RegisteredAt   time.Time
	UnregisteredAt *time.Time
	Audit          AuditTimes
}

// Transaction is one append-only entry in the balance log. BalanceSnapshot
// is the account balance immediately after the attempted mutation (or the
// unchanged balance for a failed attempt).
type Transaction struct {
	ID                   int64
	TransactionID        TransactionID
	AccountID            int64
	AccountNumber        AccountNumber
	Type                 TransactionType
	Result               TransactionResult
	AmountMinor          int64
	BalanceSnapshotMinor int64
	TransactedAt         time.Time
}

// Store is the persistence contract consumed by the domain components. The
// implementation must offer atomic read-modify-write of a single account row
// and append-only transaction writes; WithTx spans both writes of one
// mutation where the store supports it.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error
	GetUser(ctx context.Context, userID int64) (User, error)
	GetAccount(ctx context.Context, number AccountNumber) (Account, error)
	CreateAccount(ctx context.Context, account Account) (Account, error)
	UpdateAccount(ctx context.Context, account Account) error
	CountAccountsByUser(ctx context.Context, userID int64) (int64, error)
	ListAccountsByUser(ctx context.Context, userID int64) ([]Account, error)
	InsertTransaction(ctx context.Context, transaction Transaction) (Transaction, error)
	GetTransaction(ctx context.Context, transactionID TransactionID) (Transaction, error)
}
