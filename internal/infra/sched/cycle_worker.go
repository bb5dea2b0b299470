package sched

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"recurring-billing/internal/domain"
	"recurring-billing/internal/domain/model"
	"recurring-billing/internal/domain/ports/usecase"
	"recurring-billing/internal/infra/redis"
)

// CycleWorker runs a billing cycle every interval. Replicas share the
// Redis lock so at most one of them drives a cycle at a time; the holder
// renews it while the cycle runs.
type CycleWorker struct {
	interval   time.Duration
	lockTTL    time.Duration
	renewEvery time.Duration
	lockKey    string
	runner     usecase.CycleRunner
	locker     redis.Locker
	log        *zerolog.Logger
}

func NewCycleWorker(interval, lockTTL time.Duration, runner usecase.CycleRunner, locker redis.Locker, logger *zerolog.Logger) *CycleWorker {
	l := logger.With().Str("component", "CycleWorker").Logger()
	renew := lockTTL / 3
	if renew <= 0 {
		renew = time.Second
	}
	return &CycleWorker{
		interval:   interval,
		lockTTL:    lockTTL,
		renewEvery: renew,
		lockKey:    redis.BillingCycleLockKey,
		runner:     runner,
		locker:     locker,
		log:        &l,
	}
}

func (w *CycleWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("Starting billing cycle worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping billing cycle worker")
			return ctx.Err()
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

// tick reports whether this replica ran the cycle.
func (w *CycleWorker) tick(ctx context.Context) bool {
	token, err := w.locker.TryLock(ctx, w.lockKey, w.lockTTL)
	if errors.Is(err, domain.ErrLockNotAcquired) {
		w.log.Debug().Msg("billing cycle held by another replica")
		return false
	}
	if err != nil {
		w.log.Error().Err(err).Msg("billing cycle lock failed")
		return false
	}
	defer func() {
		if err := w.locker.Unlock(context.WithoutCancel(ctx), w.lockKey, token); err != nil {
			w.log.Warn().Err(err).Msg("billing cycle unlock failed")
		}
	}()

	runCtx, cancel := context.WithCancel(ctx)
	renewing := w.keepLock(runCtx, token, cancel)
	defer func() {
		cancel()
		<-renewing
	}()

	job, err := w.runner.RunBillingCycle(runCtx)
	if err != nil {
		w.log.Error().Err(err).Msg("billing cycle error")
		return true
	}
	if job == nil {
		w.log.Error().Msg("billing cycle returned no job")
		return true
	}
	ev := w.log.Info()
	if job.Status != model.JobStatusCompleted {
		ev = w.log.Warn()
	}
	ev.Str("job_id", job.ID).
		Str("status", string(job.Status)).
		Int("total", job.TotalSubscriptions).
		Int("succeeded", job.SuccessCount).
		Int("failed", job.FailureCount).
		Msg("billing cycle finished")
	return true
}

// keepLock extends the lock until ctx ends. Losing the lock calls lost so
// the cycle stops before another replica starts over the same rows.
func (w *CycleWorker) keepLock(ctx context.Context, token string, lost context.CancelFunc) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(w.renewEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				err := w.locker.Extend(ctx, w.lockKey, token, w.lockTTL)
				switch {
				case err == nil:
				case errors.Is(err, domain.ErrLockNotAcquired):
					w.log.Error().Msg("billing cycle lock lost, stopping the cycle")
					lost()
					return
				case ctx.Err() == nil:
					w.log.Warn().Err(err).Msg("billing cycle lock renewal failed")
				}
			}
		}
	}()
	return done
}
