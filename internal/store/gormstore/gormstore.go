package gormstore

import (
	"context"
	"errors"

	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/marlinbank/accountd/pkg/account"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	pgUniqueViolationCode = "23505"
	sqliteConstraintCode  = 19

	errorOperationStore     = "store"
	errorSubjectUser        = "user"
	errorSubjectAccount     = "account"
	errorSubjectTransaction = "transaction"
	errorCodeCreate         = "create"
	errorCodeCount          = "count"
	errorCodeDuplicate      = "duplicate"
	errorCodeGet            = "get"
	errorCodeInsert         = "insert"
	errorCodeInvalid        = "invalid"
	errorCodeList           = "list"
	errorCodeUpdate         = "update"
)

// Store implements account.Store using GORM.
type Store struct {
	db *gorm.DB
}

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the schema for drivers without managed migrations.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&AccountUser{}, &Account{}, &Transaction{})
}

// WithTx executes fn within a database transaction.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore account.Store) error) error {
	return store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(ctx, &Store{db: transaction})
	})
}

// GetUser looks an account owner up by id.
func (store *Store) GetUser(ctx context.Context, userID int64) (account.User, error) {
	var model AccountUser
	err := store.db.WithContext(ctx).Take(&model, userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return account.User{}, wrapStoreError(errorSubjectUser, errorCodeGet, account.ErrUserNotFound)
		}
		return account.User{}, wrapStoreError(errorSubjectUser, errorCodeGet, err)
	}
	return account.User{
		ID:   model.ID,
		Name: model.Name,
		Audit: account.AuditTimes{
			CreatedAt: model.CreatedAt,
			UpdatedAt: model.UpdatedAt,
		},
	}, nil
}

// GetAccount looks an account up by number. On postgres the row is selected
// FOR UPDATE so the balance read-modify-write stays atomic; sqlite
// serializes writers on its own and rejects the clause.
func (store *Store) GetAccount(ctx context.Context, number account.AccountNumber) (account.Account, error) {
	query := store.db.WithContext(ctx)
	if store.db.Dialector.Name() == "postgres" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var model Account
	err := query.
		Where("account_number = ?", number.String()).
		Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return account.Account{}, wrapStoreError(errorSubjectAccount, errorCodeGet, account.ErrAccountNotFound)
		}
		return account.Account{}, wrapStoreError(errorSubjectAccount, errorCodeGet, err)
	}
	return mapAccount(model)
}

// CreateAccount inserts a new account row.
func (store *Store) CreateAccount(ctx context.Context, acct account.Account) (account.Account, error) {
	model := Account{
		AccountUserID:  acct.UserID,
		AccountNumber:  acct.Number.String(),
		Balance:        acct.BalanceMinor,
		Status:         acct.Status.String(),
		RegisteredAt:   acct.RegisteredAt,
		UnregisteredAt: acct.UnregisteredAt,
	}
	err := store.db.WithContext(ctx).Create(&model).Error
	if isUniqueViolation(err) {
		return account.Account{}, wrapStoreError(errorSubjectAccount, errorCodeDuplicate, account.ErrAccountNumberTaken)
	}
	if err != nil {
		return account.Account{}, wrapStoreError(errorSubjectAccount, errorCodeCreate, err)
	}
	return mapAccount(model)
}

// UpdateAccount persists balance and status changes for an existing row.
func (store *Store) UpdateAccount(ctx context.Context, acct account.Account) error {
	result := store.db.WithContext(ctx).
		Model(&Account{}).
		Where("id = ?", acct.ID).
		Updates(map[string]interface{}{
			"balance":         acct.BalanceMinor,
			"status":          acct.Status.String(),
			"unregistered_at": acct.UnregisteredAt,
		})
	if result.Error != nil {
		return wrapStoreError(errorSubjectAccount, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectAccount, errorCodeUpdate, account.ErrAccountNotFound)
	}
	return nil
}

// CountAccountsByUser counts the accounts owned by userID.
func (store *Store) CountAccountsByUser(ctx context.Context, userID int64) (int64, error) {
	var count int64
	err := store.db.WithContext(ctx).
		Model(&Account{}).
		Where("account_user_id = ?", userID).
		Count(&count).Error
	if err != nil {
		return 0, wrapStoreError(errorSubjectAccount, errorCodeCount, err)
	}
	return count, nil
}

// ListAccountsByUser returns the accounts owned by userID.
func (store *Store) ListAccountsByUser(ctx context.Context, userID int64) ([]account.Account, error) {
	var rows []Account
	err := store.db.WithContext(ctx).
		Where("account_user_id = ?", userID).
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectAccount, errorCodeList, err)
	}
	accounts := make([]account.Account, 0, len(rows))
	for _, row := range rows {
		mapped, err := mapAccount(row)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, mapped)
	}
	return accounts, nil
}

// InsertTransaction appends one transaction row.
func (store *Store) InsertTransaction(ctx context.Context, transaction account.Transaction) (account.Transaction, error) {
	model := Transaction{
		TransactionID:   transaction.TransactionID.String(),
		AccountID:       transaction.AccountID,
		AccountNumber:   transaction.AccountNumber.String(),
		Type:            transaction.Type.String(),
		Result:          transaction.Result.String(),
		Amount:          transaction.AmountMinor,
		BalanceSnapshot: transaction.BalanceSnapshotMinor,
		TransactedAt:    transaction.TransactedAt,
	}
	err := store.db.WithContext(ctx).Create(&model).Error
	if isUniqueViolation(err) {
		return account.Transaction{}, wrapStoreError(errorSubjectTransaction, errorCodeDuplicate, account.ErrDuplicateTransactionID)
	}
	if err != nil {
		return account.Transaction{}, wrapStoreError(errorSubjectTransaction, errorCodeInsert, err)
	}
	return mapTransaction(model)
}

// GetTransaction looks a transaction up by its public id.
func (store *Store) GetTransaction(ctx context.Context, transactionID account.TransactionID) (account.Transaction, error) {
	var model Transaction
	err := store.db.WithContext(ctx).
		Where("transaction_id = ?", transactionID.String()).
		Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return account.Transaction{}, wrapStoreError(errorSubjectTransaction, errorCodeGet, account.ErrTransactionNotFound)
		}
		return account.Transaction{}, wrapStoreError(errorSubjectTransaction, errorCodeGet, err)
	}
	return mapTransaction(model)
}

func mapAccount(model Account) (account.Account, error) {
	number, err := account.NewAccountNumber(model.AccountNumber)
	if err != nil {
		return account.Account{}, wrapStoreError(errorSubjectAccount, errorCodeInvalid, err)
	}
	status, err := account.ParseAccountStatus(model.Status)
	if err != nil {
		return account.Account{}, wrapStoreError(errorSubjectAccount, errorCodeInvalid, err)
	}
	return account.Account{
		ID:             model.ID,
		UserID:         model.AccountUserID,
		Number:         number,
		BalanceMinor:   model.Balance,
		Status:         status,
		RegisteredAt:   model.RegisteredAt,
		UnregisteredAt: model.UnregisteredAt,
		Audit: account.AuditTimes{
			CreatedAt: model.CreatedAt,
			UpdatedAt: model.UpdatedAt,
		},
	}, nil
}

func mapTransaction(model Transaction) (account.Transaction, error) {
	transactionID, err := account.NewTransactionID(model.TransactionID)
	if err != nil {
		return account.Transaction{}, wrapStoreError(errorSubjectTransaction, errorCodeInvalid, err)
	}
	number, err := account.NewAccountNumber(model.AccountNumber)
	if err != nil {
		return account.Transaction{}, wrapStoreError(errorSubjectTransaction, errorCodeInvalid, err)
	}
	transactionType, err := account.ParseTransactionType(model.Type)
	if err != nil {
		return account.Transaction{}, wrapStoreError(errorSubjectTransaction, errorCodeInvalid, err)
	}
	result, err := account.ParseTransactionResult(model.Result)
	if err != nil {
		return account.Transaction{}, wrapStoreError(errorSubjectTransaction, errorCodeInvalid, err)
	}
	return account.Transaction{
		ID:                   model.ID,
		TransactionID:        transactionID,
		AccountID:            model.AccountID,
		AccountNumber:        number,
		Type:                 transactionType,
		Result:               result,
		AmountMinor:          model.Amount,
		BalanceSnapshotMinor: model.BalanceSnapshot,
		TransactedAt:         model.TransactedAt,
	}, nil
}

func wrapStoreError(subject string, code string, err error) error {
	return account.WrapError(errorOperationStore, subject, code, err)
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xFF == sqliteConstraintCode
	}
	return false
}
