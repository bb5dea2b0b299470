//go:build !integration

package usecase_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"recurring-billing/internal/domain/model"
	"recurring-billing/internal/infra/adapters/payment"
	"recurring-billing/internal/usecase"
)

var (
	basicPlan  = &model.SubscriptionPlan{ID: "basic", Name: "Basic", Price: decimal.RequireFromString("9.99"), Cycle: model.CycleMonthly}
	weeklyPlan = &model.SubscriptionPlan{ID: "weekly", Name: "Weekly", Price: decimal.RequireFromString("2.50"), Cycle: model.CycleWeekly}
	trialPlan  = &model.SubscriptionPlan{ID: "trial", Name: "Pro", Price: decimal.RequireFromString("29.00"), Cycle: model.CycleMonthly, TrialDays: 14}
)

type fixture struct {
	clock    fixedClock
	plans    *MockPlanRepo
	subs     *MockSubscriptionRepo
	attempts *MockAttemptRepo
	jobs     *MockJobRepo
	tm       *MockTxManager
	gateway  *payment.ScriptedGateway
	tracker  *SpyTracker
	executor usecase.AttemptExecutor
	svc      usecase.BillingUseCase
}

type fixtureOpt func(*fixtureConfig)

type fixtureConfig struct {
	policy         usecase.BatchPolicy
	gatewayTimeout time.Duration
}

func withPolicy(size, concurrency int, delay time.Duration) fixtureOpt {
	return func(c *fixtureConfig) {
		c.policy = usecase.BatchPolicy{BatchSize: size, ConcurrencyLimit: concurrency, InterBatchDelay: delay}
	}
}

func withGatewayTimeout(d time.Duration) fixtureOpt {
	return func(c *fixtureConfig) { c.gatewayTimeout = d }
}

func newFixture(t *testing.T, subs []*model.Subscription, opts ...fixtureOpt) *fixture {
	t.Helper()
	cfg := fixtureConfig{
		policy:         usecase.BatchPolicy{BatchSize: 10, ConcurrencyLimit: 10},
		gatewayTimeout: time.Second,
	}
	for _, o := range opts {
		o(&cfg)
	}

	f := &fixture{
		clock:    fixedClock{t: t0},
		plans:    NewMockPlanRepo(basicPlan, weeklyPlan, trialPlan),
		subs:     NewMockSubscriptionRepo(subs...),
		attempts: NewMockAttemptRepo(),
		jobs:     NewMockJobRepo(),
		tm:       NewMockTxManager(),
		gateway:  payment.NewScriptedGateway(),
	}
	f.tracker = &SpyTracker{JobTracker: usecase.NewJobTracker(f.jobs, f.clock, newTestLogger())}
	f.executor = usecase.NewAttemptExecutor(f.gateway, f.attempts, f.subs, f.tm, f.clock, cfg.gatewayTimeout, newTestLogger())

	svc, err := usecase.NewBillingUseCase(f.subs, f.jobs, f.plans, f.executor, f.tracker, cfg.policy, f.clock, newTestLogger())
	if err != nil {
		t.Fatalf("NewBillingUseCase failed: %v", err)
	}
	f.svc = svc
	t.Cleanup(func() {
		f.gateway.Release()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = svc.Shutdown(ctx)
	})
	return f
}

// dueSub is an active subscription whose billing date passed one day before t0.
func dueSub(id, owner string, plan *model.SubscriptionPlan) *model.Subscription {
	return &model.Subscription{
		ID:              id,
		OwnerID:         owner,
		PlanID:          plan.ID,
		Status:          model.SubscriptionStatusActive,
		StartedAt:       t0.Add(-31 * 24 * time.Hour),
		NextBillingDate: t0.Add(-24 * time.Hour),
	}
}

func manyDue(n int, plan *model.SubscriptionPlan) []*model.Subscription {
	out := make([]*model.Subscription, n)
	for i := range out {
		out[i] = dueSub(fmt.Sprintf("sub-%03d", i), fmt.Sprintf("owner-%03d", i), plan)
	}
	return out
}

func waitForTerminal(t *testing.T, svc usecase.BillingUseCase, jobID string) *model.BillingJob {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := svc.GetJobStatus(context.Background(), jobID)
		if err != nil {
			t.Fatalf("GetJobStatus failed: %v", err)
		}
		if job.Status.Terminal() {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s did not finish in time", jobID)
	return nil
}

func waitForBatches(t *testing.T, spy *SpyTracker, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if len(spy.Batches()) >= n {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("expected %d batches to be recorded", n)
}
