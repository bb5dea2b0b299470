package model

import (
	"time"

	"recurring-billing/internal/domain"
)

type SubscriptionStatus string

const (
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusPastDue   SubscriptionStatus = "past_due"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
	SubscriptionStatusPaused    SubscriptionStatus = "paused"
)

// Subscription is one owner's recurring entitlement to a plan.
// Status is cancelled exactly when CancelledAt is set.
type Subscription struct {
	ID              string
	OwnerID         string
	PlanID          string
	Status          SubscriptionStatus
	StartedAt       time.Time
	NextBillingDate time.Time
	TrialEndsAt     *time.Time // nil when the plan had no trial
	CancelledAt     *time.Time
}

// NewSubscription starts a subscription at now. With a trial the first charge
// falls on the trial end; without one the subscription is due immediately.
func NewSubscription(id, ownerID string, plan *SubscriptionPlan, trialDays int, now time.Time) (*Subscription, error) {
	if id == "" || ownerID == "" || plan.IsZero() || trialDays < 0 {
		return nil, domain.ErrInvalidArgument
	}
	s := &Subscription{
		ID:              id,
		OwnerID:         ownerID,
		PlanID:          plan.ID,
		Status:          SubscriptionStatusActive,
		StartedAt:       now,
		NextBillingDate: now,
	}
	if end := TrialEnd(now, trialDays); end != nil {
		s.TrialEndsAt = end
		s.NextBillingDate = *end
	}
	return s, nil
}

// Billable reports whether the subscription may be charged.
func (s *Subscription) Billable() bool {
	return s.Status == SubscriptionStatusActive || s.Status == SubscriptionStatusPastDue
}

// InTrial reports whether now is still before the trial end.
func (s *Subscription) InTrial(now time.Time) bool {
	return s.TrialEndsAt != nil && now.Before(*s.TrialEndsAt)
}

// Cancel marks the subscription cancelled. Cancelling twice keeps the first
// cancellation time.
func (s *Subscription) Cancel(now time.Time) {
	if s.Status == SubscriptionStatusCancelled && s.CancelledAt != nil {
		return
	}
	s.Status = SubscriptionStatusCancelled
	s.CancelledAt = &now
}

// Charged returns a copy moved to active with the schedule advanced one cycle
// from the previous billing date.
func (s *Subscription) Charged(cycle CycleUnit) *Subscription {
	cp := *s
	cp.Status = SubscriptionStatusActive
	cp.NextBillingDate = NextBillingDate(s.NextBillingDate, cycle)
	return &cp
}

// ChargeFailed returns a copy moved to past_due. The billing date is kept so
// the next run picks it up again.
func (s *Subscription) ChargeFailed() *Subscription {
	cp := *s
	cp.Status = SubscriptionStatusPastDue
	return &cp
}
