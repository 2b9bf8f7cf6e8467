package account

const (
	operationUseBalance    = "use_balance"
	operationCancelBalance = "cancel_balance"
	operationRecordFailure = "record_failure"
	operationCreateAccount = "create_account"
	operationCloseAccount  = "close_account"

	operationStatusOK    = "ok"
	operationStatusError = "error"

	// Amount bounds for a single use operation, inclusive, minor units.
	amountMinimumMinor int64 = 10
	amountMaximumMinor int64 = 1_000_000_000

	// cancelWindowYears bounds how far back a transaction may be cancelled.
	cancelWindowYears = 1

	maxAccountsPerUser  int64 = 10
	accountNumberLength       = 10
)
