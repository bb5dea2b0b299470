//go:build !integration

package web

import (
	"context"
	"sync"
	"time"

	"recurring-billing/internal/domain"
	"recurring-billing/internal/domain/model"
	"recurring-billing/internal/usecase"
)

// --- Mock BillingUseCase ---

type mockBillingUC struct {
	mu     sync.Mutex
	starts int

	StartFunc         func(ctx context.Context) (string, error)
	StatusFunc        func(ctx context.Context, jobID string) (*model.BillingJob, error)
	CancelJobFunc     func(jobID string) bool
	CreateSubFunc     func(ctx context.Context, ownerID, planID string, trialDays *int) (*model.Subscription, error)
	CancelSubFunc     func(ctx context.Context, id string) (bool, error)
	InitialBillFunc   func(ctx context.Context, id string) (*usecase.AttemptResult, error)
	ReapAbandonedFunc func(ctx context.Context, olderThan time.Duration) (int, error)
}

var _ usecase.BillingUseCase = (*mockBillingUC)(nil)

func (m *mockBillingUC) StartBillingCycle(ctx context.Context) (string, error) {
	m.mu.Lock()
	m.starts++
	m.mu.Unlock()
	if m.StartFunc != nil {
		return m.StartFunc(ctx)
	}
	return "01JOB", nil
}

func (m *mockBillingUC) Starts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.starts
}

func (m *mockBillingUC) RunBillingCycle(ctx context.Context) (*model.BillingJob, error) {
	return nil, domain.ErrOperationFailed
}

func (m *mockBillingUC) GetJobStatus(ctx context.Context, jobID string) (*model.BillingJob, error) {
	if m.StatusFunc != nil {
		return m.StatusFunc(ctx, jobID)
	}
	return nil, domain.ErrNotFound
}

func (m *mockBillingUC) CancelJob(jobID string) bool {
	if m.CancelJobFunc != nil {
		return m.CancelJobFunc(jobID)
	}
	return false
}

func (m *mockBillingUC) CreateSubscription(ctx context.Context, ownerID, planID string, trialDays *int) (*model.Subscription, error) {
	if m.CreateSubFunc != nil {
		return m.CreateSubFunc(ctx, ownerID, planID, trialDays)
	}
	return nil, domain.ErrNotFound
}

func (m *mockBillingUC) CancelSubscription(ctx context.Context, id string) (bool, error) {
	if m.CancelSubFunc != nil {
		return m.CancelSubFunc(ctx, id)
	}
	return false, nil
}

func (m *mockBillingUC) ProcessInitialBilling(ctx context.Context, id string) (*usecase.AttemptResult, error) {
	if m.InitialBillFunc != nil {
		return m.InitialBillFunc(ctx, id)
	}
	return nil, nil
}

func (m *mockBillingUC) ReapAbandonedJobs(ctx context.Context, olderThan time.Duration) (int, error) {
	if m.ReapAbandonedFunc != nil {
		return m.ReapAbandonedFunc(ctx, olderThan)
	}
	return 0, nil
}

func (m *mockBillingUC) Shutdown(ctx context.Context) error { return nil }
