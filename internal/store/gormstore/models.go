package gormstore

import "time"

// AccountUser represents the account_users table.
type AccountUser struct {
	ID        int64     `gorm:"primaryKey;autoIncrement"`
	Name      string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (AccountUser) TableName() string { return "account_users" }

// Account mirrors the accounts table. Balance is in minor currency units.
type Account struct {
	ID             int64      `gorm:"primaryKey;autoIncrement"`
	AccountUserID  int64      `gorm:"not null;index:idx_accounts_user"`
	AccountNumber  string     `gorm:"not null;uniqueIndex:uniq_accounts_number"`
	Balance        int64      `gorm:"not null"`
	Status         string     `gorm:"not null"`
	RegisteredAt   time.Time  `gorm:"not null"`
	UnregisteredAt *time.Time `gorm:""`
	CreatedAt      time.Time  `gorm:"not null"`
	UpdatedAt      time.Time  `gorm:"not null"`
}

func (Account) TableName() string { return "accounts" }

// Transaction mirrors the append-only transactions table.
type Transaction struct {
	ID              int64     `gorm:"primaryKey;autoIncrement"`
	TransactionID   string    `gorm:"not null;uniqueIndex:uniq_transactions_transaction_id"`
	AccountID       int64     `gorm:"not null;index:idx_transactions_account"`
	AccountNumber   string    `gorm:"not null"`
	Type            string    `gorm:"not null"`
	Result          string    `gorm:"not null"`
	Amount          int64     `gorm:"not null"`
	BalanceSnapshot int64     `gorm:"not null"`
	TransactedAt    time.Time `gorm:"not null"`
	CreatedAt       time.Time `gorm:"not null"`
}

func (Transaction) TableName() string { return "transactions" }
