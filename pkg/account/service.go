package account

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"
)

// ServiceOption configures a Service instance.
type ServiceOption func(*Service)

// WithServiceLogger wires a logger that receives callbacks for lifecycle
// operations.
func WithServiceLogger(logger OperationLogger) ServiceOption {
	return func(service *Service) {
		service.logger = logger
	}
}

// WithAccountNumberFactory overrides how candidate account numbers are
// generated.
func WithAccountNumberFactory(factory func() string) ServiceOption {
	return func(service *Service) {
		service.newNumber = factory
	}
}

// Service covers the account lifecycle: creation, closing, listing. These
// are keyed CRUD operations with their own validation; they take no part in
// the balance lock.
type Service struct {
	store     Store
	nowFn     func() time.Time
	newNumber func() string
	logger    OperationLogger
}

// NewService wires a Service.
func NewService(store Store, now func() time.Time, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	service := &Service{store: store, nowFn: now, newNumber: randomAccountNumber}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	return service, nil
}

// CreateAccount opens an active account with a fresh unique number.
func (service *Service) CreateAccount(ctx context.Context, userID int64, initialBalanceMinor int64) (Account, error) {
	var created Account
	operationError := service.store.WithTx(ctx, func(ctx context.Context, txStore Store) error {
		if initialBalanceMinor < 0 {
			return fmt.Errorf("%w: initial balance %d", ErrInvalidAmount, initialBalanceMinor)
		}
		user, err := txStore.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		count, err := txStore.CountAccountsByUser(ctx, user.ID)
		if err != nil {
			return err
		}
		if count >= maxAccountsPerUser {
			return fmt.Errorf("%w: user %d already has %d", ErrMaxAccountsPerUser, user.ID, count)
		}
		number, err := service.uniqueAccountNumber(ctx, txStore)
		if err != nil {
			return err
		}
		created, err = txStore.CreateAccount(ctx, Account{
			UserID:       user.ID,
			Number:       number,
			BalanceMinor: initialBalanceMinor,
			Status:       AccountStatusActive,
			RegisteredAt: service.nowFn(),
		})
		return err
	})
	logOperation(ctx, service.logger, OperationLog{
		Operation:     operationCreateAccount,
		UserID:        userID,
		AccountNumber: created.Number.String(),
		Amount:        initialBalanceMinor,
		Error:         operationError,
	})
	if operationError != nil {
		return Account{}, operationError
	}
	return created, nil
}

// CloseAccount deregisters an empty account owned by userID.
func (service *Service) CloseAccount(ctx context.Context, userID int64, number AccountNumber) (Account, error) {
	var closed Account
	operationError := service.store.WithTx(ctx, func(ctx context.Context, txStore Store) error {
		user, err := txStore.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		acct, err := txStore.GetAccount(ctx, number)
		if err != nil {
			return err
		}
		if user.ID != acct.UserID {
			return fmt.Errorf("%w: user %d does not own account %s", ErrOwnerMismatch, user.ID, number)
		}
		if acct.Status == AccountStatusClosed {
			return fmt.Errorf("%w: account %s", ErrAccountClosed, number)
		}
		if acct.BalanceMinor > 0 {
			return fmt.Errorf("%w: balance %d", ErrBalanceNotEmpty, acct.BalanceMinor)
		}
		unregisteredAt := service.nowFn()
		acct.Status = AccountStatusClosed
		acct.UnregisteredAt = &unregisteredAt
		if err := txStore.UpdateAccount(ctx, acct); err != nil {
			return err
		}
		closed = acct
		return nil
	})
	logOperation(ctx, service.logger, OperationLog{
		Operation:     operationCloseAccount,
		UserID:        userID,
		AccountNumber: number.String(),
		Error:         operationError,
	})
	if operationError != nil {
		return Account{}, operationError
	}
	return closed, nil
}

// ListAccounts returns the accounts owned by userID.
func (service *Service) ListAccounts(ctx context.Context, userID int64) ([]Account, error) {
	user, err := service.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return service.store.ListAccountsByUser(ctx, user.ID)
}

func (service *Service) uniqueAccountNumber(ctx context.Context, txStore Store) (AccountNumber, error) {
	for {
		number, err := NewAccountNumber(service.newNumber())
		if err != nil {
			return AccountNumber{}, err
		}
		_, err = txStore.GetAccount(ctx, number)
		if errors.Is(err, ErrAccountNotFound) {
			return number, nil
		}
		if err != nil {
			return AccountNumber{}, err
		}
		// Collision: draw again.
	}
}

func randomAccountNumber() string {
	digits := make([]byte, accountNumberLength)
	for index := range digits {
		digits[index] = byte('0' + rand.IntN(10))
	}
	return string(digits)
}
