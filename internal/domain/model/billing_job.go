package model

import (
	"fmt"
	"time"

	"recurring-billing/internal/domain"
)

type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

const JobKindBillingCycle = "billing_cycle"

func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// BillingJob summarises one billing-cycle run over the population that was
// due when the run started.
//
// ProcessedCount always equals SuccessCount+FailureCount and never exceeds
// TotalSubscriptions. Counters are frozen once the job is terminal.
type BillingJob struct {
	ID                 string
	Kind               string
	Status             JobStatus
	TotalSubscriptions int
	ProcessedCount     int
	SuccessCount       int
	FailureCount       int
	ErrorDetail        *string
	StartedAt          time.Time
	CompletedAt        *time.Time
}

// NewBillingJob returns a pending job with zero counters.
func NewBillingJob(id, kind string) (*BillingJob, error) {
	if id == "" {
		return nil, domain.ErrInvalidArgument
	}
	if kind == "" {
		kind = JobKindBillingCycle
	}
	return &BillingJob{ID: id, Kind: kind, Status: JobStatusPending}, nil
}

func (j *BillingJob) invalid(op string) error {
	return fmt.Errorf("%w: %s on job %s in state %s", domain.ErrInvalidJobState, op, j.ID, j.Status)
}

// Start moves a pending job to running.
func (j *BillingJob) Start(now time.Time) error {
	if j.Status != JobStatusPending {
		return j.invalid("start")
	}
	j.Status = JobStatusRunning
	j.StartedAt = now
	return nil
}

// SetPopulation records the size of the due set. It is only legal before any
// batch has been recorded.
func (j *BillingJob) SetPopulation(total int) error {
	if j.Status != JobStatusRunning || j.ProcessedCount > 0 {
		return j.invalid("set population")
	}
	if total < 0 {
		return domain.ErrInvalidArgument
	}
	j.TotalSubscriptions = total
	return nil
}

// RecordBatch adds one batch's tally to the counters.
func (j *BillingJob) RecordBatch(success, failure int) error {
	if j.Status != JobStatusRunning {
		return j.invalid("record batch")
	}
	if success < 0 || failure < 0 {
		return domain.ErrInvalidArgument
	}
	if j.ProcessedCount+success+failure > j.TotalSubscriptions {
		return fmt.Errorf("%w: batch of %d would exceed population %d (processed %d)",
			domain.ErrInvalidJobState, success+failure, j.TotalSubscriptions, j.ProcessedCount)
	}
	j.SuccessCount += success
	j.FailureCount += failure
	j.ProcessedCount += success + failure
	return nil
}

// Finish moves the job to a terminal state. It may only happen once.
func (j *BillingJob) Finish(outcome JobStatus, detail string, now time.Time) error {
	if !outcome.Terminal() {
		return fmt.Errorf("%w: %s is not a terminal status", domain.ErrInvalidArgument, outcome)
	}
	if j.Status.Terminal() || j.Status == JobStatusPending {
		return j.invalid("finish")
	}
	j.Status = outcome
	j.CompletedAt = &now
	if detail != "" {
		j.ErrorDetail = &detail
	}
	return nil
}
