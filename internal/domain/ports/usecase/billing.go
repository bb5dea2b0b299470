package usecase

import (
	"context"
	"time"

	"recurring-billing/internal/domain/model"
)

// CycleRunner is what background workers need from the billing service.
type CycleRunner interface {
	RunBillingCycle(ctx context.Context) (*model.BillingJob, error)
}

type JobReaper interface {
	ReapAbandonedJobs(ctx context.Context, olderThan time.Duration) (int, error)
}
