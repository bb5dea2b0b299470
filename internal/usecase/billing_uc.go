// File: internal/usecase/billing_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"recurring-billing/internal/domain"
	"recurring-billing/internal/domain/model"
	"recurring-billing/internal/domain/ports/adapter"
	"recurring-billing/internal/domain/ports/repository"
	"recurring-billing/internal/infra/logging"
	"recurring-billing/internal/infra/metrics"
)

// Compile-time check
var _ BillingUseCase = (*billingUC)(nil)

type BillingUseCase interface {
	// StartBillingCycle creates a job and returns its id at once; the run
	// continues in the background, detached from ctx.
	StartBillingCycle(ctx context.Context) (string, error)
	// RunBillingCycle creates a job and drives it to a terminal state before returning.
	RunBillingCycle(ctx context.Context) (*model.BillingJob, error)
	GetJobStatus(ctx context.Context, jobID string) (*model.BillingJob, error)
	// CancelJob asks a running job to stop after its current batch.
	CancelJob(jobID string) bool

	CreateSubscription(ctx context.Context, ownerID, planID string, trialDaysOverride *int) (*model.Subscription, error)
	// CancelSubscription reports false only when the subscription does not exist.
	CancelSubscription(ctx context.Context, subscriptionID string) (bool, error)
	// ProcessInitialBilling charges a subscription that is due right now.
	// It returns a nil result when there is nothing to charge yet (e.g. a trial).
	ProcessInitialBilling(ctx context.Context, subscriptionID string) (*AttemptResult, error)

	// ReapAbandonedJobs fails running jobs older than olderThan that no live
	// driver in this process owns, e.g. after a crash mid-cycle.
	ReapAbandonedJobs(ctx context.Context, olderThan time.Duration) (int, error)

	Shutdown(ctx context.Context) error
}

// AbandonedJobDetail is the error detail of a job closed by ReapAbandonedJobs.
const AbandonedJobDetail = "abandoned: driver stopped before the job finished"

const reapBatchLimit = 100

var ErrShuttingDown = fmt.Errorf("%w: billing service is shutting down", domain.ErrOperationFailed)

type billingUC struct {
	subs      repository.SubscriptionRepository
	jobs      repository.BillingJobRepository
	plans     repository.SubscriptionPlanRepository
	executor  AttemptExecutor
	tracker   JobTracker
	scheduler *BatchScheduler
	policy    BatchPolicy
	clock     adapter.Clock
	log       *zerolog.Logger

	base context.Context // parent of background drivers, cancelled by Shutdown
	stop context.CancelFunc

	mu      sync.Mutex
	running map[string]context.CancelFunc
	closed  bool
	wg      sync.WaitGroup
}

func NewBillingUseCase(
	subs repository.SubscriptionRepository,
	jobs repository.BillingJobRepository,
	plans repository.SubscriptionPlanRepository,
	executor AttemptExecutor,
	tracker JobTracker,
	policy BatchPolicy,
	clock adapter.Clock,
	logger *zerolog.Logger,
) (*billingUC, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	if clock == nil {
		clock = adapter.SystemClock{}
	}
	l := logger.With().Str("component", "BillingUC").Logger()
	base, stop := context.WithCancel(context.Background())
	return &billingUC{
		subs:      subs,
		jobs:      jobs,
		plans:     plans,
		executor:  executor,
		tracker:   tracker,
		scheduler: NewBatchScheduler(executor, plans, tracker, logger),
		policy:    policy,
		clock:     clock,
		log:       &l,
		base:      base,
		stop:      stop,
		running:   make(map[string]context.CancelFunc),
	}, nil
}

func (b *billingUC) StartBillingCycle(ctx context.Context) (string, error) {
	defer logging.TraceDuration(b.log, "BillingUC.StartBillingCycle")()

	jobID := ulid.Make().String()
	if _, err := b.tracker.Create(ctx, jobID, model.JobKindBillingCycle); err != nil {
		return "", err
	}
	runCtx, cancel := context.WithCancel(b.base)
	if err := b.register(jobID, cancel); err != nil {
		cancel()
		b.abandon(jobID, err)
		return "", err
	}
	go func() {
		defer b.wg.Done()
		defer b.unregister(jobID)
		_, _ = b.drive(runCtx, jobID)
	}()
	return jobID, nil
}

func (b *billingUC) RunBillingCycle(ctx context.Context) (*model.BillingJob, error) {
	defer logging.TraceDuration(b.log, "BillingUC.RunBillingCycle")()

	jobID := ulid.Make().String()
	if _, err := b.tracker.Create(ctx, jobID, model.JobKindBillingCycle); err != nil {
		return nil, err
	}
	runCtx, cancel := context.WithCancel(ctx)
	stopAfter := context.AfterFunc(b.base, cancel)
	defer stopAfter()
	if err := b.register(jobID, cancel); err != nil {
		cancel()
		b.abandon(jobID, err)
		return nil, err
	}
	defer b.wg.Done()
	defer b.unregister(jobID)

	return b.drive(runCtx, jobID)
}

func (b *billingUC) GetJobStatus(ctx context.Context, jobID string) (*model.BillingJob, error) {
	return b.tracker.Status(ctx, jobID)
}

func (b *billingUC) CancelJob(jobID string) bool {
	b.mu.Lock()
	cancel, ok := b.running[jobID]
	b.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// Shutdown cancels every running job and waits until their drivers returned.
func (b *billingUC) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.stop()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *billingUC) register(jobID string, cancel context.CancelFunc) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrShuttingDown
	}
	b.running[jobID] = cancel
	b.wg.Add(1)
	return nil
}

func (b *billingUC) unregister(jobID string) {
	b.mu.Lock()
	cancel := b.running[jobID]
	delete(b.running, jobID)
	b.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// abandon closes a job that was created but never got a driver.
func (b *billingUC) abandon(jobID string, cause error) {
	ctx := context.Background()
	if _, err := b.tracker.Finish(ctx, jobID, model.JobStatusFailed, cause.Error()); err != nil {
		b.log.Error().Err(err).Str("job_id", jobID).Msg("failed to close abandoned job")
	}
}

// drive runs one job to a terminal state and returns the final snapshot.
// It fails only when the job store can neither finish nor read the job.
func (b *billingUC) drive(ctx context.Context, jobID string) (*model.BillingJob, error) {
	metrics.IncJobsRunning()
	defer metrics.DecJobsRunning()

	log := logging.With(logging.WithJobID(ctx, jobID), b.log)
	persistCtx := context.WithoutCancel(ctx)

	outcome, detail := b.process(ctx, jobID, log)
	job, err := b.tracker.Finish(persistCtx, jobID, outcome, detail)
	if err != nil {
		log.Error().Err(err).Msg("failed to finish billing job")
		snap, serr := b.tracker.Status(persistCtx, jobID)
		if serr != nil {
			return nil, fmt.Errorf("finish billing job %s: %w", jobID, err)
		}
		return snap, nil
	}
	return job, nil
}

func (b *billingUC) process(ctx context.Context, jobID string, log *zerolog.Logger) (model.JobStatus, string) {
	persistCtx := context.WithoutCancel(ctx)

	due, err := b.subs.DueForBilling(ctx, repository.NoTX, b.clock.Now())
	if err != nil {
		if ctx.Err() != nil {
			return model.JobStatusFailed, "cancelled after 0 of 0 subscriptions"
		}
		log.Error().Err(err).Msg("failed to load due subscriptions")
		return model.JobStatusFailed, fmt.Sprintf("load due subscriptions: %v", err)
	}
	if err := b.tracker.SnapshotPopulation(persistCtx, jobID, len(due)); err != nil {
		log.Error().Err(err).Msg("failed to record job population")
		return model.JobStatusFailed, fmt.Sprintf("record population: %v", err)
	}
	log.Info().Int("due", len(due)).Msg("billing cycle started")

	summary, err := b.scheduler.Run(ctx, jobID, due, b.policy)
	switch {
	case err != nil:
		log.Error().Err(err).Msg("billing cycle aborted")
		return model.JobStatusFailed, err.Error()
	case summary.Cancelled:
		log.Warn().Int("processed", summary.Processed).Int("total", summary.Total).Msg("billing cycle cancelled")
		return model.JobStatusFailed, fmt.Sprintf("cancelled after %d of %d subscriptions", summary.Processed, summary.Total)
	}
	return model.JobStatusCompleted, ""
}

func (b *billingUC) CreateSubscription(ctx context.Context, ownerID, planID string, trialDaysOverride *int) (*model.Subscription, error) {
	plan, err := b.plans.FindByID(ctx, repository.NoTX, planID)
	if err != nil {
		return nil, err
	}
	trialDays := plan.TrialDays
	if trialDaysOverride != nil {
		trialDays = *trialDaysOverride
	}
	sub, err := model.NewSubscription(uuid.NewString(), ownerID, plan, trialDays, b.clock.Now())
	if err != nil {
		return nil, err
	}
	if err := b.subs.Save(ctx, repository.NoTX, sub); err != nil {
		return nil, err
	}
	metrics.IncSubscriptionCreated(sub.TrialEndsAt != nil)
	return sub, nil
}

func (b *billingUC) CancelSubscription(ctx context.Context, subscriptionID string) (bool, error) {
	sub, err := b.subs.FindByID(ctx, repository.NoTX, subscriptionID)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if sub.Status == model.SubscriptionStatusCancelled {
		return true, nil
	}
	sub.Cancel(b.clock.Now())
	if err := b.subs.Save(ctx, repository.NoTX, sub); err != nil {
		return false, err
	}
	metrics.IncSubscriptionCancelled()
	return true, nil
}

func (b *billingUC) ProcessInitialBilling(ctx context.Context, subscriptionID string) (*AttemptResult, error) {
	sub, err := b.subs.FindByID(ctx, repository.NoTX, subscriptionID)
	if err != nil {
		return nil, err
	}
	now := b.clock.Now()
	if sub.InTrial(now) || sub.NextBillingDate.After(now) {
		return nil, nil
	}
	plan, err := b.plans.FindByID(ctx, repository.NoTX, sub.PlanID)
	if err != nil {
		return nil, err
	}
	return b.executor.Attempt(ctx, sub, plan)
}

func (b *billingUC) ReapAbandonedJobs(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := b.clock.Now().Add(-olderThan)
	stale, err := b.jobs.ListRunningStartedBefore(ctx, repository.NoTX, cutoff, reapBatchLimit)
	if err != nil {
		return 0, fmt.Errorf("list stale jobs: %w", err)
	}
	reaped := 0
	for _, j := range stale {
		b.mu.Lock()
		_, live := b.running[j.ID]
		b.mu.Unlock()
		if live {
			continue
		}
		if _, err := b.tracker.Finish(ctx, j.ID, model.JobStatusFailed, AbandonedJobDetail); err != nil {
			// another replica may have finished it meanwhile
			if errors.Is(err, domain.ErrInvalidJobState) {
				continue
			}
			return reaped, err
		}
		b.log.Warn().Str("job_id", j.ID).Time("started_at", j.StartedAt).Msg("abandoned billing job reaped")
		reaped++
	}
	return reaped, nil
}
