package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound               = errors.New("entity not found")
	ErrAlreadyExists          = errors.New("entity already exists")
	ErrInvalidArgument        = errors.New("invalid argument")
	ErrUnknownTariff          = errors.New("unknown tariff code")
	ErrNoActiveSubscription   = errors.New("no active subscription")
	ErrActiveSubscriptionOpen = errors.New("parent already has an active subscription")
	ErrDuplicateTransaction   = errors.New("transaction id already exists")
	ErrAmountMismatch         = errors.New("amount does not match order")
	ErrProviderDisabled       = errors.New("payment provider is not configured")
	ErrTransactionConflict    = errors.New("order already has a transaction in progress")
	ErrLockNotAcquired        = errors.New("could not acquire lock")

	// Storage-layer errors
	ErrOperationFailed    = errors.New("storage operation failed")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrInvalidExecContext = errors.New("invalid executor context")
)
