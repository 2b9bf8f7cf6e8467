package account

import (
	"errors"
	"fmt"
)

// Domain-level error values returned by the account service.
var (
	ErrUserNotFound               = errors.New("user not found")
	ErrAccountNotFound            = errors.New("account not found")
	ErrOwnerMismatch              = errors.New("account owner mismatch")
	ErrAccountClosed              = errors.New("account closed")
	ErrInvalidAmount              = errors.New("invalid amount")
	ErrInsufficientBalance        = errors.New("insufficient balance")
	ErrTransactionNotFound        = errors.New("transaction not found")
	ErrTransactionAccountMismatch = errors.New("transaction account mismatch")
	ErrCancelMustBeFull           = errors.New("cancel must cover the full amount")
	ErrCancellationWindowExpired  = errors.New("cancellation window expired")
	ErrMaxAccountsPerUser         = errors.New("maximum accounts per user reached")
	ErrBalanceNotEmpty            = errors.New("balance not empty")

	ErrInvalidAccountNumber   = errors.New("invalid account number")
	ErrInvalidTransactionID   = errors.New("invalid transaction id")
	ErrDuplicateTransactionID = errors.New("duplicate transaction id")
	ErrAccountNumberTaken     = errors.New("account number taken")
	ErrInvalidServiceConfig   = errors.New("invalid service config")
)

// businessErrors are deterministic validation failures: non-retryable
// without changing inputs, and each one leaves storage untouched.
var businessErrors = []error{
	ErrUserNotFound,
	ErrAccountNotFound,
	ErrOwnerMismatch,
	ErrAccountClosed,
	ErrInvalidAmount,
	ErrInsufficientBalance,
	ErrTransactionNotFound,
	ErrTransactionAccountMismatch,
	ErrCancelMustBeFull,
	ErrCancellationWindowExpired,
	ErrMaxAccountsPerUser,
	ErrBalanceNotEmpty,
}

// IsBusinessError reports whether err is a business-validation failure, as
// opposed to lock contention or infrastructure trouble.
func IsBusinessError(err error) bool {
	for _, candidate := range businessErrors {
		if errors.Is(err, candidate) {
			return true
		}
	}
	return false
}

// OperationError wraps a failure with a stable operation code.
type OperationError struct {
	operation string
	subject   string
	code      string
	err       error
}

// Error returns the formatted error message.
func (operationError OperationError) Error() string {
	return fmt.Sprintf("%s.%s.%s: %v", operationError.operation, operationError.subject, operationError.code, operationError.err)
}

// Unwrap returns the underlying error.
func (operationError OperationError) Unwrap() error {
	return operationError.err
}

// Operation returns the operation segment.
func (operationError OperationError) Operation() string {
	return operationError.operation
}

// Subject returns the subject segment.
func (operationError OperationError) Subject() string {
	return operationError.subject
}

// Code returns the stable error code segment.
func (operationError OperationError) Code() string {
	return operationError.code
}

// WrapError wraps an error with operation, subject, and code metadata.
func WrapError(operation string, subject string, code string, err error) error {
	if err == nil {
		return nil
	}
	return OperationError{
		operation: operation,
		subject:   subject,
		code:      code,
		err:       err,
	}
}
