package postgres

import (
	"context"
	"errors"
	"fmt"

	"recurring-billing/internal/domain"
	"recurring-billing/internal/domain/model"
	"recurring-billing/internal/domain/ports/repository"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/shopspring/decimal"
)

// Ensure interface compliance
var _ repository.SubscriptionPlanRepository = (*PostgresPlanRepo)(nil)

type PostgresPlanRepo struct {
	pool *pgxpool.Pool
}

func NewPlanRepo(pool *pgxpool.Pool) *PostgresPlanRepo {
	return &PostgresPlanRepo{pool: pool}
}

func (r *PostgresPlanRepo) Save(ctx context.Context, tx repository.Tx, plan *model.SubscriptionPlan) error {
	const sql = `
INSERT INTO subscription_plans (id, name, price, billing_cycle, trial_days, created_at)
VALUES ($1, $2, $3::numeric, $4, $5, $6)
ON CONFLICT (id) DO UPDATE
  SET name          = EXCLUDED.name,
      price         = EXCLUDED.price,
      billing_cycle = EXCLUDED.billing_cycle,
      trial_days    = EXCLUDED.trial_days;
`
	_, err := execSQL(ctx, r.pool, tx, sql,
		plan.ID, plan.Name, plan.Price.String(), string(plan.Cycle), plan.TrialDays, plan.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save plan: %w", mapWriteErr(err))
	}
	return nil
}

func (r *PostgresPlanRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.SubscriptionPlan, error) {
	const sql = `
SELECT id, name, price::text, billing_cycle, trial_days, created_at
  FROM subscription_plans
 WHERE id = $1;
`
	row, err := pickRow(ctx, r.pool, tx, sql, id)
	if err != nil {
		return nil, err
	}
	p, err := scanPlan(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("plan %s: %w", id, domain.ErrNotFound)
		}
		return nil, err
	}
	return p, nil
}

func (r *PostgresPlanRepo) ListAll(ctx context.Context, tx repository.Tx) ([]*model.SubscriptionPlan, error) {
	const sql = `
SELECT id, name, price::text, billing_cycle, trial_days, created_at
  FROM subscription_plans
 ORDER BY created_at, id;
`
	rows, err := queryRows(ctx, r.pool, tx, sql)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", mapReadErr(err))
	}
	defer rows.Close()
	var out []*model.SubscriptionPlan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Join(domain.ErrReadDatabaseRow, err)
	}
	return out, nil
}

func scanPlan(row pgx.Row) (*model.SubscriptionPlan, error) {
	var (
		p     model.SubscriptionPlan
		price string
		cycle string
	)
	if err := row.Scan(&p.ID, &p.Name, &price, &cycle, &p.TrialDays, &p.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, errors.Join(domain.ErrReadDatabaseRow, err)
	}
	d, err := decimal.NewFromString(price)
	if err != nil {
		return nil, errors.Join(domain.ErrReadDatabaseRow, err)
	}
	p.Price = d
	p.Cycle = model.CycleUnit(cycle)
	return &p, nil
}
