// File: internal/usecase/batch_scheduler.go
package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"recurring-billing/internal/domain"
	"recurring-billing/internal/domain/model"
	"recurring-billing/internal/domain/ports/repository"
	"recurring-billing/internal/infra/metrics"
	"recurring-billing/internal/infra/worker"
)

// BatchPolicy controls how a due set is split and paced.
type BatchPolicy struct {
	BatchSize        int
	ConcurrencyLimit int
	InterBatchDelay  time.Duration
}

func DefaultBatchPolicy() BatchPolicy {
	return BatchPolicy{BatchSize: 10, ConcurrencyLimit: 10, InterBatchDelay: 100 * time.Millisecond}
}

func (p BatchPolicy) Validate() error {
	if p.BatchSize <= 0 {
		return fmt.Errorf("%w: batch size must be positive, got %d", domain.ErrInvalidArgument, p.BatchSize)
	}
	if p.ConcurrencyLimit <= 0 {
		return fmt.Errorf("%w: concurrency limit must be positive, got %d", domain.ErrInvalidArgument, p.ConcurrencyLimit)
	}
	if p.InterBatchDelay < 0 {
		return fmt.Errorf("%w: inter-batch delay must not be negative", domain.ErrInvalidArgument)
	}
	return nil
}

// JobSummary is what one scheduler run did.
type JobSummary struct {
	Total     int
	Processed int
	Succeeded int
	Failed    int
	Batches   int
	Cancelled bool // ctx was done before every batch ran
}

// BatchScheduler drives one billing run over a fixed due set.
type BatchScheduler struct {
	executor AttemptExecutor
	plans    repository.SubscriptionPlanRepository
	tracker  JobTracker
	log      *zerolog.Logger
}

func NewBatchScheduler(executor AttemptExecutor, plans repository.SubscriptionPlanRepository, tracker JobTracker, logger *zerolog.Logger) *BatchScheduler {
	l := logger.With().Str("component", "BatchScheduler").Logger()
	return &BatchScheduler{executor: executor, plans: plans, tracker: tracker, log: &l}
}

// Run processes due in contiguous batches, in order. Within a batch at most
// policy.ConcurrencyLimit attempts are in flight, and the next batch starts
// only after every member of the current one finished.
//
// Cancelling ctx stops the run before the next batch (or during the delay);
// attempts already started are allowed to finish. The returned error is
// non-nil only when the job counters could not be recorded.
func (s *BatchScheduler) Run(ctx context.Context, jobID string, due []*model.Subscription, policy BatchPolicy) (JobSummary, error) {
	summary := JobSummary{Total: len(due)}
	if err := policy.Validate(); err != nil {
		return summary, err
	}
	log := s.log.With().Str("job_id", jobID).Logger()
	plans := newPlanLookup(s.plans)
	pool := worker.NewPool(policy.ConcurrencyLimit, &log)
	bookkeeping := context.WithoutCancel(ctx)

	for start := 0; start < len(due); start += policy.BatchSize {
		if ctx.Err() != nil {
			summary.Cancelled = true
			return summary, nil
		}
		end := min(start+policy.BatchSize, len(due))
		batch := due[start:end]

		began := time.Now()
		succeeded, failed := s.runBatch(ctx, pool, plans, batch, &log)
		metrics.ObserveBatch(len(batch), time.Since(began))

		if err := s.tracker.RecordBatch(bookkeeping, jobID, succeeded, failed); err != nil {
			return summary, fmt.Errorf("record batch %d: %w", summary.Batches+1, err)
		}
		summary.Batches++
		summary.Processed += len(batch)
		summary.Succeeded += succeeded
		summary.Failed += failed
		log.Debug().
			Int("batch", summary.Batches).
			Int("succeeded", succeeded).
			Int("failed", failed).
			Int("processed", summary.Processed).
			Int("total", summary.Total).
			Msg("batch processed")

		if end < len(due) && policy.InterBatchDelay > 0 {
			timer := time.NewTimer(policy.InterBatchDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				summary.Cancelled = true
				return summary, nil
			case <-timer.C:
			}
		}
	}
	return summary, nil
}

func (s *BatchScheduler) runBatch(ctx context.Context, pool *worker.Pool, plans *planLookup, batch []*model.Subscription, log *zerolog.Logger) (succeeded, failed int) {
	// In-flight attempts must drain even when the run is cancelled.
	runCtx := context.WithoutCancel(ctx)
	ok := make([]bool, len(batch))

	for i, sub := range batch {
		plan, err := plans.get(runCtx, sub.PlanID)
		if err != nil {
			log.Error().Err(err).Str("subscription_id", sub.ID).Str("plan_id", sub.PlanID).Msg("plan lookup failed")
			continue
		}
		err = pool.Submit(runCtx, func(ctx context.Context) error {
			res, err := s.executor.Attempt(ctx, sub, plan)
			if err != nil {
				return fmt.Errorf("subscription %s: %w", sub.ID, err)
			}
			ok[i] = res.Succeeded
			return nil
		})
		if err != nil {
			log.Error().Err(err).Str("subscription_id", sub.ID).Msg("could not schedule attempt")
		}
	}
	if err := pool.Wait(); err != nil {
		log.Warn().Err(err).Msg("some attempts in batch errored")
	}

	for _, v := range ok {
		if v {
			succeeded++
		} else {
			failed++
		}
	}
	return succeeded, failed
}

// planLookup resolves each distinct plan once per run, failures included.
type planLookup struct {
	repo  repository.SubscriptionPlanRepository
	plans map[string]*model.SubscriptionPlan
	errs  map[string]error
}

func newPlanLookup(repo repository.SubscriptionPlanRepository) *planLookup {
	return &planLookup{repo: repo, plans: map[string]*model.SubscriptionPlan{}, errs: map[string]error{}}
}

func (l *planLookup) get(ctx context.Context, id string) (*model.SubscriptionPlan, error) {
	if p, ok := l.plans[id]; ok {
		return p, nil
	}
	if err, ok := l.errs[id]; ok {
		return nil, err
	}
	p, err := l.repo.FindByID(ctx, repository.NoTX, id)
	if err != nil {
		err = fmt.Errorf("plan %s: %w", id, err)
		l.errs[id] = err
		return nil, err
	}
	l.plans[id] = p
	return p, nil
}
