package repository

import (
	"context"

	"recurring-billing/internal/domain/model"
)

// BillingAttemptRepository is the append-only store of attempt records.
type BillingAttemptRepository interface {
	Append(ctx context.Context, tx Tx, rec *model.BillingAttemptRecord) error
	// ListBySubscription returns records newest first.
	ListBySubscription(ctx context.Context, tx Tx, subscriptionID string) ([]*model.BillingAttemptRecord, error)
}
