//go:build !integration

package model

import (
	"errors"
	"testing"
	"time"

	"recurring-billing/internal/domain"

	"github.com/shopspring/decimal"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// --- DateArithmetic Tests ---

func TestNextBillingDate(t *testing.T) {
	cases := []struct {
		name  string
		cycle CycleUnit
		want  time.Time
	}{
		{"weekly adds seven days", CycleWeekly, time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)},
		{"monthly adds thirty days", CycleMonthly, time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)},
		{"yearly adds 365 days", CycleYearly, time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)},
		{"unknown unit bills as monthly", CycleUnit("fortnightly"), time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := NextBillingDate(t0, tc.cycle); !got.Equal(tc.want) {
				t.Errorf("NextBillingDate(%s) = %s, want %s", tc.cycle, got, tc.want)
			}
		})
	}

	t.Run("is strictly later than its input", func(t *testing.T) {
		for _, c := range []CycleUnit{CycleWeekly, CycleMonthly, CycleYearly} {
			if !NextBillingDate(t0, c).After(t0) {
				t.Errorf("expected %s to move the date forward", c)
			}
		}
	})
}

func TestTrialEnd(t *testing.T) {
	if TrialEnd(t0, 0) != nil {
		t.Error("expected nil trial end for zero trial days")
	}
	if TrialEnd(t0, -3) != nil {
		t.Error("expected nil trial end for negative trial days")
	}
	end := TrialEnd(t0, 14)
	if end == nil || !end.Equal(time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected trial end %v", end)
	}
}

// --- SubscriptionPlan Model Tests ---

func TestNewSubscriptionPlan(t *testing.T) {
	t.Run("should create a new plan successfully", func(t *testing.T) {
		plan, err := NewSubscriptionPlan("plan-1", "Pro", decimal.RequireFromString("9.99"), CycleMonthly, 14)
		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if !plan.Price.Equal(decimal.RequireFromString("9.99")) {
			t.Errorf("expected price 9.99, got %s", plan.Price)
		}
		if plan.TrialDays != 14 || plan.Cycle != CycleMonthly {
			t.Errorf("unexpected plan %+v", plan)
		}
	})

	cases := []struct {
		name  string
		id    string
		price decimal.Decimal
		cycle CycleUnit
		trial int
	}{
		{"empty id", "", decimal.NewFromInt(1), CycleMonthly, 0},
		{"negative price", "p", decimal.NewFromInt(-1), CycleMonthly, 0},
		{"negative trial", "p", decimal.NewFromInt(1), CycleMonthly, -1},
		{"unknown cycle", "p", decimal.NewFromInt(1), CycleUnit("daily"), 0},
	}
	for _, tc := range cases {
		t.Run("should reject "+tc.name, func(t *testing.T) {
			_, err := NewSubscriptionPlan(tc.id, "Name", tc.price, tc.cycle, tc.trial)
			if !errors.Is(err, domain.ErrInvalidArgument) {
				t.Errorf("expected ErrInvalidArgument, got %v", err)
			}
		})
	}
}

// --- Subscription Model Tests ---

func TestNewSubscription(t *testing.T) {
	plan := &SubscriptionPlan{ID: "p1", Name: "Basic", Price: decimal.NewFromInt(10), Cycle: CycleMonthly}

	t.Run("without trial is due immediately", func(t *testing.T) {
		s, err := NewSubscription("s1", "owner", plan, 0, t0)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if s.Status != SubscriptionStatusActive || !s.NextBillingDate.Equal(t0) || s.TrialEndsAt != nil {
			t.Errorf("unexpected subscription %+v", s)
		}
	})

	t.Run("with trial bills at trial end", func(t *testing.T) {
		s, err := NewSubscription("s1", "owner", plan, 14, t0)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		want := t0.Add(14 * 24 * time.Hour)
		if s.TrialEndsAt == nil || !s.TrialEndsAt.Equal(want) || !s.NextBillingDate.Equal(want) {
			t.Errorf("expected trial end and billing date %s, got %+v", want, s)
		}
		if !s.InTrial(t0) || s.InTrial(want) {
			t.Error("InTrial should hold before the trial end only")
		}
	})

	t.Run("rejects a missing plan", func(t *testing.T) {
		if _, err := NewSubscription("s1", "owner", nil, 0, t0); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})
}

func TestSubscriptionTransitions(t *testing.T) {
	base := &Subscription{ID: "s1", OwnerID: "o", PlanID: "p", Status: SubscriptionStatusPastDue, NextBillingDate: t0}

	t.Run("charged advances from the previous billing date", func(t *testing.T) {
		got := base.Charged(CycleWeekly)
		if got.Status != SubscriptionStatusActive {
			t.Errorf("expected active, got %s", got.Status)
		}
		if !got.NextBillingDate.Equal(t0.Add(7 * 24 * time.Hour)) {
			t.Errorf("unexpected next billing date %s", got.NextBillingDate)
		}
		if base.Status != SubscriptionStatusPastDue {
			t.Error("Charged must not mutate the receiver")
		}
	})

	t.Run("charge failure keeps the billing date", func(t *testing.T) {
		active := *base
		active.Status = SubscriptionStatusActive
		got := active.ChargeFailed()
		if got.Status != SubscriptionStatusPastDue || !got.NextBillingDate.Equal(t0) {
			t.Errorf("unexpected subscription %+v", got)
		}
	})

	t.Run("cancel is idempotent", func(t *testing.T) {
		s := *base
		s.Cancel(t0)
		s.Cancel(t0.Add(time.Hour))
		if s.Status != SubscriptionStatusCancelled || s.CancelledAt == nil || !s.CancelledAt.Equal(t0) {
			t.Errorf("expected first cancellation time to stick, got %+v", s)
		}
		if s.Billable() {
			t.Error("cancelled subscription must not be billable")
		}
	})

	t.Run("billable statuses", func(t *testing.T) {
		for status, want := range map[SubscriptionStatus]bool{
			SubscriptionStatusActive:    true,
			SubscriptionStatusPastDue:   true,
			SubscriptionStatusPaused:    false,
			SubscriptionStatusCancelled: false,
		} {
			s := Subscription{Status: status}
			if s.Billable() != want {
				t.Errorf("Billable(%s) = %v, want %v", status, !want, want)
			}
		}
	})
}

// --- BillingJob Model Tests ---

func runningJob(t *testing.T, total int) *BillingJob {
	t.Helper()
	j, err := NewBillingJob("job-1", "")
	if err != nil {
		t.Fatal(err)
	}
	if err := j.Start(t0); err != nil {
		t.Fatal(err)
	}
	if err := j.SetPopulation(total); err != nil {
		t.Fatal(err)
	}
	return j
}

func TestBillingJob(t *testing.T) {
	t.Run("new job is pending with zero counters", func(t *testing.T) {
		j, err := NewBillingJob("job-1", "")
		if err != nil {
			t.Fatal(err)
		}
		if j.Status != JobStatusPending || j.Kind != JobKindBillingCycle || j.ProcessedCount != 0 {
			t.Errorf("unexpected job %+v", j)
		}
	})

	t.Run("counters stay consistent across batches", func(t *testing.T) {
		j := runningJob(t, 5)
		if err := j.RecordBatch(2, 1); err != nil {
			t.Fatal(err)
		}
		if err := j.RecordBatch(1, 1); err != nil {
			t.Fatal(err)
		}
		if j.ProcessedCount != 5 || j.SuccessCount != 3 || j.FailureCount != 2 {
			t.Errorf("unexpected counters %+v", j)
		}
		if j.ProcessedCount != j.SuccessCount+j.FailureCount {
			t.Error("processed must equal success + failure")
		}
	})

	t.Run("batch exceeding population is rejected", func(t *testing.T) {
		j := runningJob(t, 2)
		err := j.RecordBatch(2, 1)
		if !errors.Is(err, domain.ErrInvalidJobState) {
			t.Fatalf("expected ErrInvalidJobState, got %v", err)
		}
		if j.ProcessedCount != 0 {
			t.Error("rejected batch must not change counters")
		}
	})

	t.Run("population is frozen after the first batch", func(t *testing.T) {
		j := runningJob(t, 2)
		_ = j.RecordBatch(1, 0)
		if err := j.SetPopulation(10); !errors.Is(err, domain.ErrInvalidJobState) {
			t.Errorf("expected ErrInvalidJobState, got %v", err)
		}
	})

	t.Run("finish happens exactly once", func(t *testing.T) {
		j := runningJob(t, 0)
		if err := j.Finish(JobStatusCompleted, "", t0.Add(time.Minute)); err != nil {
			t.Fatal(err)
		}
		if j.CompletedAt == nil || j.ErrorDetail != nil {
			t.Errorf("unexpected job %+v", j)
		}
		if err := j.Finish(JobStatusFailed, "again", t0); !errors.Is(err, domain.ErrInvalidJobState) {
			t.Errorf("expected ErrInvalidJobState on second finish, got %v", err)
		}
		if j.Status != JobStatusCompleted {
			t.Error("second finish must not change the status")
		}
		if err := j.RecordBatch(0, 0); !errors.Is(err, domain.ErrInvalidJobState) {
			t.Errorf("expected counters to be frozen, got %v", err)
		}
	})

	t.Run("finish requires a terminal outcome", func(t *testing.T) {
		j := runningJob(t, 0)
		if err := j.Finish(JobStatusRunning, "", t0); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("failed finish stores the detail", func(t *testing.T) {
		j := runningJob(t, 0)
		if err := j.Finish(JobStatusFailed, "store down", t0); err != nil {
			t.Fatal(err)
		}
		if j.ErrorDetail == nil || *j.ErrorDetail != "store down" {
			t.Errorf("expected error detail, got %v", j.ErrorDetail)
		}
	})

	t.Run("pending job cannot record or finish", func(t *testing.T) {
		j, _ := NewBillingJob("job-2", "")
		if err := j.RecordBatch(1, 0); !errors.Is(err, domain.ErrInvalidJobState) {
			t.Errorf("expected ErrInvalidJobState, got %v", err)
		}
		if err := j.Finish(JobStatusCompleted, "", t0); !errors.Is(err, domain.ErrInvalidJobState) {
			t.Errorf("expected ErrInvalidJobState, got %v", err)
		}
	})
}
