package account

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ProcessorOption configures a Processor instance.
type ProcessorOption func(*Processor)

// WithProcessorLogger wires a logger that receives callbacks for every
// processed operation.
func WithProcessorLogger(logger OperationLogger) ProcessorOption {
	return func(processor *Processor) {
		processor.logger = logger
	}
}

// WithTransactionIDFactory overrides how new transaction ids are minted.
func WithTransactionIDFactory(factory func() string) ProcessorOption {
	return func(processor *Processor) {
		processor.newID = factory
	}
}

// Processor runs the validate, mutate, persist pipeline for balance
// operations. It performs no locking itself: callers hold the account's lock
// for the duration of each mutating call, which keeps the pipeline
// unit-testable without any lock backend.
type Processor struct {
	store  Store
	nowFn  func() time.Time
	newID  func() string
	logger OperationLogger
}

// NewProcessor wires a Processor.
func NewProcessor(store Store, now func() time.Time, options ...ProcessorOption) (*Processor, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	processor := &Processor{store: store, nowFn: now, newID: newTransactionIDValue}
	for _, option := range options {
		if option != nil {
			option(processor)
		}
	}
	return processor, nil
}

// UseBalance debits amountMinor from the account after the full validation
// chain passes. Checks short-circuit in a fixed order; a failing check
// leaves balance and storage untouched. On success the updated account and a
// use/success transaction (snapshot = post-debit balance) persist within one
// store transaction.
func (processor *Processor) UseBalance(ctx context.Context, userID int64, number AccountNumber, amountMinor int64) (Transaction, error) {
	var result Transaction
	operationError := processor.store.WithTx(ctx, func(ctx context.Context, txStore Store) error {
		user, err := txStore.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		acct, err := txStore.GetAccount(ctx, number)
		if err != nil {
			return err
		}
		if err := validateUseBalance(user, acct, amountMinor); err != nil {
			return err
		}
		acct.BalanceMinor -= amountMinor
		if err := txStore.UpdateAccount(ctx, acct); err != nil {
			return err
		}
		result, err = processor.appendTransaction(ctx, txStore, TransactionTypeUse, TransactionResultSuccess, amountMinor, acct)
		return err
	})
	logOperation(ctx, processor.logger, OperationLog{
		Operation:     operationUseBalance,
		UserID:        userID,
		AccountNumber: number.String(),
		TransactionID: result.TransactionID.String(),
		Amount:        amountMinor,
		Error:         operationError,
	})
	if operationError != nil {
		return Transaction{}, operationError
	}
	return result, nil
}

func validateUseBalance(user User, acct Account, amountMinor int64) error {
	if user.ID != acct.UserID {
		return fmt.Errorf("%w: user %d does not own account %s", ErrOwnerMismatch, user.ID, acct.Number)
	}
	if acct.Status != AccountStatusActive {
		return fmt.Errorf("%w: account %s", ErrAccountClosed, acct.Number)
	}
	if amountMinor < amountMinimumMinor || amountMinor > amountMaximumMinor {
		return fmt.Errorf("%w: %d outside [%d, %d]", ErrInvalidAmount, amountMinor, amountMinimumMinor, amountMaximumMinor)
	}
	if amountMinor > acct.BalanceMinor {
		return fmt.Errorf("%w: amount %d exceeds balance %d", ErrInsufficientBalance, amountMinor, acct.BalanceMinor)
	}
	return nil
}

// CancelBalance reverses a prior use in full. Partial cancellation is
// unsupported and cancellations older than the window are rejected.
func (processor *Processor) CancelBalance(ctx context.Context, transactionID TransactionID, number AccountNumber, amountMinor int64) (Transaction, error) {
	var result Transaction
	operationError := processor.store.WithTx(ctx, func(ctx context.Context, txStore Store) error {
		original, err := txStore.GetTransaction(ctx, transactionID)
		if err != nil {
			return err
		}
		acct, err := txStore.GetAccount(ctx, number)
		if err != nil {
			return err
		}
		if err := processor.validateCancelBalance(original, acct, amountMinor); err != nil {
			return err
		}
		acct.BalanceMinor += amountMinor
		if err := txStore.UpdateAccount(ctx, acct); err != nil {
			return err
		}
		result, err = processor.appendTransaction(ctx, txStore, TransactionTypeCancel, TransactionResultSuccess, amountMinor, acct)
		return err
	})
	logOperation(ctx, processor.logger, OperationLog{
		Operation:     operationCancelBalance,
		AccountNumber: number.String(),
		TransactionID: transactionID.String(),
		Amount:        amountMinor,
		Error:         operationError,
	})
	if operationError != nil {
		return Transaction{}, operationError
	}
	return result, nil
}

func (processor *Processor) validateCancelBalance(original Transaction, acct Account, amountMinor int64) error {
	if original.AccountID != acct.ID {
		return fmt.Errorf("%w: transaction %s targets a different account", ErrTransactionAccountMismatch, original.TransactionID)
	}
	if original.AmountMinor != amountMinor {
		return fmt.Errorf("%w: original amount %d, requested %d", ErrCancelMustBeFull, original.AmountMinor, amountMinor)
	}
	windowStart := processor.nowFn().AddDate(-cancelWindowYears, 0, 0)
	if original.TransactedAt.Before(windowStart) {
		return fmt.Errorf("%w: transacted at %s", ErrCancellationWindowExpired, original.TransactedAt.Format(time.RFC3339))
	}
	return nil
}

// QueryTransaction returns a transaction by id. Read-only, so it bypasses
// locking entirely.
func (processor *Processor) QueryTransaction(ctx context.Context, transactionID TransactionID) (Transaction, error) {
	return processor.store.GetTransaction(ctx, transactionID)
}

func (processor *Processor) appendTransaction(ctx context.Context, txStore Store, transactionType TransactionType, result TransactionResult, amountMinor int64, acct Account) (Transaction, error) {
	transactionID, err := NewTransactionID(processor.newID())
	if err != nil {
		return Transaction{}, err
	}
	return txStore.InsertTransaction(ctx, Transaction{
		TransactionID:        transactionID,
		AccountID:            acct.ID,
		AccountNumber:        acct.Number,
		Type:                 transactionType,
		Result:               result,
		AmountMinor:          amountMinor,
		BalanceSnapshotMinor: acct.BalanceMinor,
		TransactedAt:         processor.nowFn(),
	})
}

func newTransactionIDValue() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
