//go:build !integration

package usecase_test

import (
	"context"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"recurring-billing/internal/domain"
	"recurring-billing/internal/domain/model"
	"recurring-billing/internal/domain/ports/repository"
	"recurring-billing/internal/usecase"
)

// -----------------------------
// Utilities: tiny helpers
// -----------------------------

var t0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

// newTestLogger creates a silent zerolog.Logger for use in tests.
func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

// ---- Mock TransactionManager ----

// memTx stages writes until the transaction commits.
type memTx struct {
	ops []func()
}

func stage(tx repository.Tx, apply func()) bool {
	if t, ok := tx.(*memTx); ok {
		t.ops = append(t.ops, apply)
		return true
	}
	return false
}

type MockTxManager struct {
	mu         sync.Mutex
	Commits    int
	Rollbacks  int
	WithTxFunc func(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error
}

var _ repository.TransactionManager = (*MockTxManager)(nil)

func NewMockTxManager() *MockTxManager { return &MockTxManager{} }

// WithTx applies staged writes only when fn succeeds.
func (m *MockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, txOpt, fn)
	}
	tx := &memTx{}
	if err := fn(ctx, tx); err != nil {
		m.mu.Lock()
		m.Rollbacks++
		m.mu.Unlock()
		return err
	}
	for _, op := range tx.ops {
		op()
	}
	m.mu.Lock()
	m.Commits++
	m.mu.Unlock()
	return nil
}

// ---- Mock SubscriptionRepository ----

type MockSubscriptionRepo struct {
	mu   sync.Mutex
	data map[string]*model.Subscription // by id

	SaveFunc          func(ctx context.Context, tx repository.Tx, s *model.Subscription) error
	DueForBillingFunc func(ctx context.Context, tx repository.Tx, asOf time.Time) ([]*model.Subscription, error)
}

var _ repository.SubscriptionRepository = (*MockSubscriptionRepo)(nil)

func NewMockSubscriptionRepo(subs ...*model.Subscription) *MockSubscriptionRepo {
	r := &MockSubscriptionRepo{data: map[string]*model.Subscription{}}
	for _, s := range subs {
		cp := *s
		r.data[s.ID] = &cp
	}
	return r
}

func (r *MockSubscriptionRepo) Save(ctx context.Context, tx repository.Tx, s *model.Subscription) error {
	if r.SaveFunc != nil {
		if err := r.SaveFunc(ctx, tx, s); err != nil {
			return err
		}
	}
	cp := *s
	apply := func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.data[cp.ID] = &cp
	}
	if !stage(tx, apply) {
		apply()
	}
	return nil
}

func (r *MockSubscriptionRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.data[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *MockSubscriptionRepo) DueForBilling(ctx context.Context, tx repository.Tx, asOf time.Time) ([]*model.Subscription, error) {
	if r.DueForBillingFunc != nil {
		return r.DueForBillingFunc(ctx, tx, asOf)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Subscription
	for _, s := range r.data {
		if s.Billable() && !s.NextBillingDate.After(asOf) {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].NextBillingDate.Equal(out[j].NextBillingDate) {
			return out[i].NextBillingDate.Before(out[j].NextBillingDate)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *MockSubscriptionRepo) Get(id string) *model.Subscription {
	s, _ := r.FindByID(context.Background(), nil, id)
	return s
}

// ---- Mock SubscriptionPlanRepository ----

type MockPlanRepo struct {
	mu    sync.Mutex
	data  map[string]*model.SubscriptionPlan
	calls map[string]int

	ErrOn map[string]error // plan id -> lookup error
}

var _ repository.SubscriptionPlanRepository = (*MockPlanRepo)(nil)

func NewMockPlanRepo(plans ...*model.SubscriptionPlan) *MockPlanRepo {
	r := &MockPlanRepo{data: map[string]*model.SubscriptionPlan{}, calls: map[string]int{}, ErrOn: map[string]error{}}
	for _, p := range plans {
		r.data[p.ID] = p
	}
	return r
}

func (r *MockPlanRepo) Save(ctx context.Context, tx repository.Tx, p *model.SubscriptionPlan) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[p.ID] = p
	return nil
}

func (r *MockPlanRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.SubscriptionPlan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls[id]++
	if err, bad := r.ErrOn[id]; bad {
		return nil, err
	}
	p, ok := r.data[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return p, nil
}

func (r *MockPlanRepo) ListAll(ctx context.Context, tx repository.Tx) ([]*model.SubscriptionPlan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*model.SubscriptionPlan, 0, len(r.data))
	for _, p := range r.data {
		out = append(out, p)
	}
	return out, nil
}

func (r *MockPlanRepo) Lookups(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[id]
}

// ---- Mock BillingAttemptRepository ----

type MockAttemptRepo struct {
	mu      sync.Mutex
	records []*model.BillingAttemptRecord

	AppendFunc func(ctx context.Context, tx repository.Tx, rec *model.BillingAttemptRecord) error
}

var _ repository.BillingAttemptRepository = (*MockAttemptRepo)(nil)

func NewMockAttemptRepo() *MockAttemptRepo { return &MockAttemptRepo{} }

func (r *MockAttemptRepo) Append(ctx context.Context, tx repository.Tx, rec *model.BillingAttemptRecord) error {
	if r.AppendFunc != nil {
		if err := r.AppendFunc(ctx, tx, rec); err != nil {
			return err
		}
	}
	cp := *rec
	apply := func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.records = append(r.records, &cp)
	}
	if !stage(tx, apply) {
		apply()
	}
	return nil
}

func (r *MockAttemptRepo) ListBySubscription(ctx context.Context, tx repository.Tx, subscriptionID string) ([]*model.BillingAttemptRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.BillingAttemptRecord
	for i := len(r.records) - 1; i >= 0; i-- {
		if r.records[i].SubscriptionID == subscriptionID {
			out = append(out, r.records[i])
		}
	}
	return out, nil
}

func (r *MockAttemptRepo) All() []*model.BillingAttemptRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*model.BillingAttemptRecord(nil), r.records...)
}

// ---- Mock BillingJobRepository ----

type MockJobRepo struct {
	mu   sync.Mutex
	data map[string]*model.BillingJob

	UpdateFunc   func(ctx context.Context, tx repository.Tx, j *model.BillingJob) error
	FindByIDFunc func(ctx context.Context, tx repository.Tx, id string) error
}

var _ repository.BillingJobRepository = (*MockJobRepo)(nil)

func NewMockJobRepo() *MockJobRepo { return &MockJobRepo{data: map[string]*model.BillingJob{}} }

func (r *MockJobRepo) Create(ctx context.Context, tx repository.Tx, j *model.BillingJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.data[j.ID]; ok {
		return domain.ErrAlreadyExists
	}
	cp := *j
	r.data[j.ID] = &cp
	return nil
}

func (r *MockJobRepo) Update(ctx context.Context, tx repository.Tx, j *model.BillingJob) error {
	if r.UpdateFunc != nil {
		if err := r.UpdateFunc(ctx, tx, j); err != nil {
			return err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.data[j.ID]; !ok {
		return domain.ErrNotFound
	}
	cp := *j
	r.data[j.ID] = &cp
	return nil
}

func (r *MockJobRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.BillingJob, error) {
	if r.FindByIDFunc != nil {
		if err := r.FindByIDFunc(ctx, tx, id); err != nil {
			return nil, err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.data[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (r *MockJobRepo) ListRunningStartedBefore(ctx context.Context, tx repository.Tx, cutoff time.Time, limit int) ([]*model.BillingJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.BillingJob
	for _, j := range r.data {
		if j.Status == model.JobStatusRunning && j.StartedAt.Before(cutoff) {
			cp := *j
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].StartedAt.Before(out[k].StartedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Put stores a job directly, bypassing the tracker.
func (r *MockJobRepo) Put(j *model.BillingJob) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *j
	r.data[j.ID] = &cp
}

// ---- Spy JobTracker wrapper ----

type batchCall struct{ success, failure int }

// SpyTracker records every batch tally before delegating.
type SpyTracker struct {
	usecase.JobTracker

	mu             sync.Mutex
	batches        []batchCall
	RecordBatchErr error
}

func (s *SpyTracker) RecordBatch(ctx context.Context, jobID string, success, failure int) error {
	s.mu.Lock()
	s.batches = append(s.batches, batchCall{success, failure})
	err := s.RecordBatchErr
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.JobTracker.RecordBatch(ctx, jobID, success, failure)
}

func (s *SpyTracker) Batches() []batchCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]batchCall(nil), s.batches...)
}
