package repository

import (
	"context"
	"time"

	"recurring-billing/internal/domain/model"
)

// SubscriptionRepository is the port for subscriptions.
// Rows are independent: concurrent saves of different subscriptions must not conflict.
type SubscriptionRepository interface {
	Save(ctx context.Context, tx Tx, sub *model.Subscription) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Subscription, error)

	// DueForBilling returns billable subscriptions (active or past_due) whose
	// next billing date is at or before asOf, ordered by next billing date then id.
	DueForBilling(ctx context.Context, tx Tx, asOf time.Time) ([]*model.Subscription, error)
}
