// File: internal/usecase/job_tracker.go
package usecase

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"recurring-billing/internal/domain/model"
	"recurring-billing/internal/domain/ports/adapter"
	"recurring-billing/internal/domain/ports/repository"
	"recurring-billing/internal/infra/metrics"
)

// Compile-time check
var _ JobTracker = (*jobTracker)(nil)

// JobTracker owns the lifecycle and counters of billing jobs.
// Every mutation is a read-modify-write against the job store and goes
// through the state machine on model.BillingJob.
type JobTracker interface {
	Create(ctx context.Context, jobID, kind string) (*model.BillingJob, error)
	SnapshotPopulation(ctx context.Context, jobID string, total int) error
	RecordBatch(ctx context.Context, jobID string, success, failure int) error
	Finish(ctx context.Context, jobID string, outcome model.JobStatus, detail string) (*model.BillingJob, error)
	Status(ctx context.Context, jobID string) (*model.BillingJob, error)
}

type jobTracker struct {
	jobs  repository.BillingJobRepository
	clock adapter.Clock
	log   *zerolog.Logger

	mu sync.Mutex // serialises read-modify-write cycles
}

func NewJobTracker(jobs repository.BillingJobRepository, clock adapter.Clock, logger *zerolog.Logger) *jobTracker {
	if clock == nil {
		clock = adapter.SystemClock{}
	}
	l := logger.With().Str("component", "JobTracker").Logger()
	return &jobTracker{jobs: jobs, clock: clock, log: &l}
}

// Create stores a new job already moved to running.
func (t *jobTracker) Create(ctx context.Context, jobID, kind string) (*model.BillingJob, error) {
	job, err := model.NewBillingJob(jobID, kind)
	if err != nil {
		return nil, err
	}
	if err := job.Start(t.clock.Now()); err != nil {
		return nil, err
	}
	if err := t.jobs.Create(ctx, repository.NoTX, job); err != nil {
		return nil, fmt.Errorf("create job %s: %w", jobID, err)
	}
	return job, nil
}

func (t *jobTracker) SnapshotPopulation(ctx context.Context, jobID string, total int) error {
	_, err := t.mutate(ctx, jobID, func(j *model.BillingJob) error { return j.SetPopulation(total) })
	return err
}

func (t *jobTracker) RecordBatch(ctx context.Context, jobID string, success, failure int) error {
	_, err := t.mutate(ctx, jobID, func(j *model.BillingJob) error { return j.RecordBatch(success, failure) })
	return err
}

// Finish moves the job to its terminal state. A second call fails with
// domain.ErrInvalidJobState and leaves the stored job untouched.
func (t *jobTracker) Finish(ctx context.Context, jobID string, outcome model.JobStatus, detail string) (*model.BillingJob, error) {
	now := t.clock.Now()
	job, err := t.mutate(ctx, jobID, func(j *model.BillingJob) error { return j.Finish(outcome, detail, now) })
	if err != nil {
		return nil, err
	}
	metrics.IncBillingJob(string(outcome))
	t.log.Info().
		Str("job_id", jobID).
		Str("status", string(job.Status)).
		Int("total", job.TotalSubscriptions).
		Int("succeeded", job.SuccessCount).
		Int("failed", job.FailureCount).
		Msg("billing job finished")
	return job, nil
}

func (t *jobTracker) Status(ctx context.Context, jobID string) (*model.BillingJob, error) {
	return t.jobs.FindByID(ctx, repository.NoTX, jobID)
}

func (t *jobTracker) mutate(ctx context.Context, jobID string, fn func(j *model.BillingJob) error) (*model.BillingJob, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	job, err := t.jobs.FindByID(ctx, repository.NoTX, jobID)
	if err != nil {
		return nil, fmt.Errorf("load job %s: %w", jobID, err)
	}
	if err := fn(job); err != nil {
		return nil, err
	}
	if err := t.jobs.Update(ctx, repository.NoTX, job); err != nil {
		return nil, fmt.Errorf("update job %s: %w", jobID, err)
	}
	return job, nil
}
