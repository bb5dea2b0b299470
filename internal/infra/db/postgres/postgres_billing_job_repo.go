package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"recurring-billing/internal/domain"
	"recurring-billing/internal/domain/model"
	"recurring-billing/internal/domain/ports/repository"
)

var _ repository.BillingJobRepository = (*billingJobRepo)(nil)

type billingJobRepo struct {
	pool *pgxpool.Pool
}

func NewBillingJobRepo(pool *pgxpool.Pool) *billingJobRepo {
	return &billingJobRepo{pool: pool}
}

const jobColumns = `id, kind, status, total_subscriptions, processed_count, success_count, failure_count, error_detail, started_at, completed_at`

func (r *billingJobRepo) Create(ctx context.Context, tx repository.Tx, j *model.BillingJob) error {
	const q = `INSERT INTO billing_jobs (` + jobColumns + `) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10);`
	_, err := execSQL(ctx, r.pool, tx, q,
		j.ID, j.Kind, string(j.Status), j.TotalSubscriptions, j.ProcessedCount, j.SuccessCount, j.FailureCount,
		j.ErrorDetail, j.StartedAt, j.CompletedAt)
	if err := mapWriteErr(err); err != nil {
		return fmt.Errorf("create job %s: %w", j.ID, err)
	}
	return nil
}

func (r *billingJobRepo) Update(ctx context.Context, tx repository.Tx, j *model.BillingJob) error {
	const q = `
UPDATE billing_jobs
   SET status=$2, total_subscriptions=$3, processed_count=$4, success_count=$5, failure_count=$6,
       error_detail=$7, started_at=$8, completed_at=$9
 WHERE id=$1;`
	tag, err := execSQL(ctx, r.pool, tx, q,
		j.ID, string(j.Status), j.TotalSubscriptions, j.ProcessedCount, j.SuccessCount, j.FailureCount,
		j.ErrorDetail, j.StartedAt, j.CompletedAt)
	if err != nil {
		return mapWriteErr(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("job %s: %w", j.ID, domain.ErrNotFound)
	}
	return nil
}

func (r *billingJobRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.BillingJob, error) {
	const q = `SELECT ` + jobColumns + ` FROM billing_jobs WHERE id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	j, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("job %s: %w", id, domain.ErrNotFound)
	}
	return j, err
}

func (r *billingJobRepo) ListRunningStartedBefore(ctx context.Context, tx repository.Tx, cutoff time.Time, limit int) ([]*model.BillingJob, error) {
	const q = `
SELECT ` + jobColumns + `
  FROM billing_jobs
 WHERE status='running' AND started_at < $1
 ORDER BY started_at, id
 LIMIT $2;`
	rows, err := queryRows(ctx, r.pool, tx, q, cutoff, limit)
	if err != nil {
		return nil, mapReadErr(err)
	}
	defer rows.Close()

	var out []*model.BillingJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Join(domain.ErrReadDatabaseRow, err)
	}
	return out, nil
}

// scanJob passes pgx.ErrNoRows through untouched.
func scanJob(row pgx.Row) (*model.BillingJob, error) {
	var (
		j      model.BillingJob
		status string
	)
	if err := row.Scan(&j.ID, &j.Kind, &status, &j.TotalSubscriptions, &j.ProcessedCount, &j.SuccessCount,
		&j.FailureCount, &j.ErrorDetail, &j.StartedAt, &j.CompletedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, errors.Join(domain.ErrReadDatabaseRow, err)
	}
	j.Status = model.JobStatus(status)
	return &j, nil
}
