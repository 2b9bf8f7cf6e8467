package account

import "context"

// OperationLogger records domain-level events emitted by the account
// components.
type OperationLogger interface {
	LogOperation(ctx context.Context, entry OperationLog)
}

// OperationLog describes one attempted account operation.
type OperationLog struct {
	Operation     string
	UserID        int64
	AccountNumber string
	TransactionID string
	Amount        int64
	Status        string
	Error         error
}

func logOperation(ctx context.Context, logger OperationLogger, entry OperationLog) {
	if logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	logger.LogOperation(ctx, entry)
}
