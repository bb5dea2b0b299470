// File: internal/usecase/attempt_executor.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"recurring-billing/internal/domain"
	"recurring-billing/internal/domain/model"
	"recurring-billing/internal/domain/ports/adapter"
	"recurring-billing/internal/domain/ports/repository"
	"recurring-billing/internal/infra/logging"
	"recurring-billing/internal/infra/metrics"
)

// DefaultGatewayTimeout bounds a single charge when none is configured.
const DefaultGatewayTimeout = 10 * time.Second

// Compile-time check
var _ AttemptExecutor = (*attemptExecutor)(nil)

// AttemptResult is the outcome of one billing attempt.
type AttemptResult struct {
	Succeeded           bool
	Record              *model.BillingAttemptRecord
	UpdatedSubscription *model.Subscription
}

// AttemptExecutor charges one subscription once and persists the outcome.
//
// A non-nil error with a non-nil result means the charge was decided but the
// outcome could not be stored; callers count that attempt as a failure.
type AttemptExecutor interface {
	Attempt(ctx context.Context, sub *model.Subscription, plan *model.SubscriptionPlan) (*AttemptResult, error)
}

type attemptExecutor struct {
	gateway  adapter.PaymentGateway
	attempts repository.BillingAttemptRepository
	subs     repository.SubscriptionRepository
	tm       repository.TransactionManager
	clock    adapter.Clock
	timeout  time.Duration
	log      *zerolog.Logger
}

func NewAttemptExecutor(
	gateway adapter.PaymentGateway,
	attempts repository.BillingAttemptRepository,
	subs repository.SubscriptionRepository,
	tm repository.TransactionManager,
	clock adapter.Clock,
	gatewayTimeout time.Duration,
	logger *zerolog.Logger,
) *attemptExecutor {
	if gatewayTimeout <= 0 {
		gatewayTimeout = DefaultGatewayTimeout
	}
	if clock == nil {
		clock = adapter.SystemClock{}
	}
	l := logger.With().Str("component", "AttemptExecutor").Logger()
	return &attemptExecutor{
		gateway:  gateway,
		attempts: attempts,
		subs:     subs,
		tm:       tm,
		clock:    clock,
		timeout:  gatewayTimeout,
		log:      &l,
	}
}

func (e *attemptExecutor) Attempt(ctx context.Context, sub *model.Subscription, plan *model.SubscriptionPlan) (*AttemptResult, error) {
	if sub == nil || plan.IsZero() {
		return nil, domain.ErrInvalidArgument
	}
	if !sub.Billable() {
		return nil, fmt.Errorf("%w: subscription %s is %s", domain.ErrSubscriptionState, sub.ID, sub.Status)
	}
	log := logging.With(logging.WithSubscriptionID(ctx, sub.ID), e.log)

	started := time.Now()
	res, err := e.charge(ctx, sub, plan)
	elapsed := time.Since(started)

	rec := &model.BillingAttemptRecord{
		ID:             uuid.NewString(),
		SubscriptionID: sub.ID,
		Amount:         plan.Price,
		ProcessedAt:    e.clock.Now(),
	}
	var updated *model.Subscription
	switch {
	case err != nil:
		reason := model.FailureReasonGatewayTimeout
		if !errors.Is(err, adapter.ErrGatewayTimeout) {
			reason = "gateway error: " + err.Error()
		}
		rec.Outcome = model.AttemptOutcomeFailed
		rec.FailureReason = &reason
		updated = sub.ChargeFailed()
		log.Warn().Err(err).Dur("elapsed", elapsed).Msg("charge did not complete")
	case res.Success:
		rec.Outcome = model.AttemptOutcomeSuccess
		if res.TransactionID != "" {
			txID := res.TransactionID
			rec.TransactionID = &txID
		}
		updated = sub.Charged(plan.Cycle)
	default:
		reason := res.FailureReason
		if reason == "" {
			reason = model.FailureReasonDeclined
		}
		rec.Outcome = model.AttemptOutcomeFailed
		rec.FailureReason = &reason
		updated = sub.ChargeFailed()
		log.Info().Str("owner", logging.Redact(sub.OwnerID, false)).Str("reason", reason).Msg("charge declined")
	}

	metrics.IncBillingAttempt(string(rec.Outcome))
	metrics.ObserveGatewayLatency(string(rec.Outcome), elapsed)
	if rec.Succeeded() {
		metrics.AddBillingRevenue(plan.Price.InexactFloat64())
	}

	result := &AttemptResult{Succeeded: rec.Succeeded(), Record: rec, UpdatedSubscription: updated}
	if err := e.persist(ctx, rec, updated); err != nil {
		log.Error().Err(err).Str("outcome", string(rec.Outcome)).Msg("failed to persist billing attempt")
		return result, err
	}
	return result, nil
}

type chargeOutcome struct {
	res adapter.ChargeResult
	err error
}

// charge waits at most e.timeout for the gateway, even if the gateway ignores ctx.
func (e *attemptExecutor) charge(ctx context.Context, sub *model.Subscription, plan *model.SubscriptionPlan) (adapter.ChargeResult, error) {
	cctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	done := make(chan chargeOutcome, 1)
	memo := fmt.Sprintf("subscription %s plan %s", sub.ID, plan.ID)
	go func() {
		res, err := e.gateway.Charge(cctx, sub.OwnerID, plan.Price, memo)
		done <- chargeOutcome{res: res, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil && errors.Is(out.err, context.DeadlineExceeded) && ctx.Err() == nil {
			return out.res, fmt.Errorf("%w: %v", adapter.ErrGatewayTimeout, out.err)
		}
		return out.res, out.err
	case <-cctx.Done():
		if err := ctx.Err(); err != nil {
			return adapter.ChargeResult{}, fmt.Errorf("charge aborted: %w", err)
		}
		return adapter.ChargeResult{}, adapter.ErrGatewayTimeout
	}
}

// persist appends the record and saves the subscription as one unit.
func (e *attemptExecutor) persist(ctx context.Context, rec *model.BillingAttemptRecord, sub *model.Subscription) error {
	return e.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if err := e.attempts.Append(ctx, tx, rec); err != nil {
			return fmt.Errorf("append attempt: %w", err)
		}
		if err := e.subs.Save(ctx, tx, sub); err != nil {
			return fmt.Errorf("save subscription: %w", err)
		}
		return nil
	})
}
