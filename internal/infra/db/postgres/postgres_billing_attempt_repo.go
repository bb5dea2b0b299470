package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/shopspring/decimal"

	"recurring-billing/internal/domain"
	"recurring-billing/internal/domain/model"
	"recurring-billing/internal/domain/ports/repository"
)

var _ repository.BillingAttemptRepository = (*billingAttemptRepo)(nil)

type billingAttemptRepo struct {
	pool *pgxpool.Pool
}

func NewBillingAttemptRepo(pool *pgxpool.Pool) *billingAttemptRepo {
	return &billingAttemptRepo{pool: pool}
}

// Append inserts a new record. Records are never updated.
func (r *billingAttemptRepo) Append(ctx context.Context, tx repository.Tx, rec *model.BillingAttemptRecord) error {
	const q = `
INSERT INTO billing_attempts (id, subscription_id, amount, outcome, transaction_id, failure_reason, processed_at)
VALUES ($1,$2,$3::numeric,$4,$5,$6,$7);`
	_, err := execSQL(ctx, r.pool, tx, q,
		rec.ID, rec.SubscriptionID, rec.Amount.String(), string(rec.Outcome), rec.TransactionID, rec.FailureReason, rec.ProcessedAt)
	return mapWriteErr(err)
}

func (r *billingAttemptRepo) ListBySubscription(ctx context.Context, tx repository.Tx, subscriptionID string) ([]*model.BillingAttemptRecord, error) {
	const q = `
SELECT id, subscription_id, amount::text, outcome, transaction_id, failure_reason, processed_at
  FROM billing_attempts
 WHERE subscription_id=$1
 ORDER BY processed_at DESC, id DESC;`
	rows, err := queryRows(ctx, r.pool, tx, q, subscriptionID)
	if err != nil {
		return nil, mapReadErr(err)
	}
	defer rows.Close()

	var out []*model.BillingAttemptRecord
	for rows.Next() {
		var (
			rec     model.BillingAttemptRecord
			amount  string
			outcome string
		)
		if err := rows.Scan(&rec.ID, &rec.SubscriptionID, &amount, &outcome, &rec.TransactionID, &rec.FailureReason, &rec.ProcessedAt); err != nil {
			return nil, errors.Join(domain.ErrReadDatabaseRow, err)
		}
		d, err := decimal.NewFromString(amount)
		if err != nil {
			return nil, errors.Join(domain.ErrReadDatabaseRow, err)
		}
		rec.Amount = d
		rec.Outcome = model.AttemptOutcome(outcome)
		out = append(out, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Join(domain.ErrReadDatabaseRow, err)
	}
	return out, nil
}
