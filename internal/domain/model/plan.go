package model

import (
	"time"

	"recurring-billing/internal/domain"

	"github.com/shopspring/decimal"
)

// SubscriptionPlan is the priced product a subscription bills against.
// The engine only ever reads it.
type SubscriptionPlan struct {
	ID        string
	Name      string
	Price     decimal.Decimal
	Cycle     CycleUnit
	TrialDays int
	CreatedAt time.Time
}

func (p *SubscriptionPlan) IsZero() bool { return p == nil || p.ID == "" }

// NewSubscriptionPlan validates and constructs a plan.
func NewSubscriptionPlan(id, name string, price decimal.Decimal, cycle CycleUnit, trialDays int) (*SubscriptionPlan, error) {
	if id == "" || name == "" || price.IsNegative() || trialDays < 0 {
		return nil, domain.ErrInvalidArgument
	}
	if !cycle.Valid() {
		return nil, domain.ErrInvalidArgument
	}
	return &SubscriptionPlan{
		ID:        id,
		Name:      name,
		Price:     price,
		Cycle:     cycle,
		TrialDays: trialDays,
		CreatedAt: time.Now().UTC(),
	}, nil
}
