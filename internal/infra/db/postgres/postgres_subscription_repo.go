package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"recurring-billing/internal/domain"
	"recurring-billing/internal/domain/model"
	"recurring-billing/internal/domain/ports/repository"
)

// Ensure subscriptionRepo implements repository.SubscriptionRepository
var _ repository.SubscriptionRepository = (*subscriptionRepo)(nil)

type subscriptionRepo struct {
	pool *pgxpool.Pool
}

func NewSubscriptionRepo(pool *pgxpool.Pool) *subscriptionRepo {
	return &subscriptionRepo{pool: pool}
}

const subscriptionColumns = `id, owner_id, plan_id, status, started_at, next_billing_date, trial_ends_at, cancelled_at`

func (r *subscriptionRepo) Save(ctx context.Context, tx repository.Tx, s *model.Subscription) error {
	const q = `
INSERT INTO subscriptions (` + subscriptionColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (id) DO UPDATE SET
  owner_id=$2, plan_id=$3, status=$4, started_at=$5, next_billing_date=$6, trial_ends_at=$7, cancelled_at=$8;`

	_, err := execSQL(ctx, r.pool, tx, q,
		s.ID, s.OwnerID, s.PlanID, string(s.Status), s.StartedAt, s.NextBillingDate, s.TrialEndsAt, s.CancelledAt)
	return mapWriteErr(err)
}

func (r *subscriptionRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Subscription, error) {
	const q = `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	s, err := scanSub(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return s, err
}

func (r *subscriptionRepo) DueForBilling(ctx context.Context, tx repository.Tx, asOf time.Time) ([]*model.Subscription, error) {
	const q = `
SELECT ` + subscriptionColumns + `
  FROM subscriptions
 WHERE status IN ('active','past_due')
   AND next_billing_date <= $1
 ORDER BY next_billing_date ASC, id ASC;`
	rows, err := queryRows(ctx, r.pool, tx, q, asOf)
	if err != nil {
		return nil, mapReadErr(err)
	}
	defer rows.Close()

	var out []*model.Subscription
	for rows.Next() {
		s, err := scanSub(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Join(domain.ErrReadDatabaseRow, err)
	}
	return out, nil
}

// scanSub reads one subscription row. pgx.ErrNoRows is passed through.
func scanSub(row pgx.Row) (*model.Subscription, error) {
	s := &model.Subscription{}
	var status string
	if err := row.Scan(&s.ID, &s.OwnerID, &s.PlanID, &status, &s.StartedAt, &s.NextBillingDate, &s.TrialEndsAt, &s.CancelledAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, errors.Join(domain.ErrReadDatabaseRow, err)
	}
	s.Status = model.SubscriptionStatus(status)
	s.StartedAt = s.StartedAt.UTC()
	s.NextBillingDate = s.NextBillingDate.UTC()
	return s, nil
}
