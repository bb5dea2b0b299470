package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrOperationFailed    = errors.New("operation failed")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrInvalidExecContext = errors.New("invalid execution context")
	ErrLockNotAcquired    = errors.New("lock held by another owner")

	// Billing errors
	ErrInvalidJobState   = errors.New("invalid billing job state transition")
	ErrSubscriptionState = errors.New("subscription is not billable")
)
