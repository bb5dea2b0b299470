package repository

import (
	"context"
	"time"

	"recurring-billing/internal/domain/model"
)

type BillingJobRepository interface {
	// Create fails with domain.ErrAlreadyExists when the job id is taken.
	Create(ctx context.Context, tx Tx, job *model.BillingJob) error
	Update(ctx context.Context, tx Tx, job *model.BillingJob) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.BillingJob, error)
	// ListRunningStartedBefore returns running jobs older than cutoff, oldest first.
	ListRunningStartedBefore(ctx context.Context, tx Tx, cutoff time.Time, limit int) ([]*model.BillingJob, error)
}
