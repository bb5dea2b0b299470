package model

import "time"

type CycleUnit string

const (
	CycleWeekly  CycleUnit = "weekly"
	CycleMonthly CycleUnit = "monthly"
	CycleYearly  CycleUnit = "yearly"
)

const day = 24 * time.Hour

func (c CycleUnit) Valid() bool {
	switch c {
	case CycleWeekly, CycleMonthly, CycleYearly:
		return true
	}
	return false
}

// Offset is the fixed duration one cycle adds to a billing date.
// Months and years are not calendar aware: monthly is always 30 days and
// yearly is always 365 days. An unrecognised unit bills as monthly.
func (c CycleUnit) Offset() time.Duration {
	switch c {
	case CycleWeekly:
		return 7 * day
	case CycleYearly:
		return 365 * day
	default:
		return 30 * day
	}
}

// NextBillingDate advances current by exactly one cycle.
func NextBillingDate(current time.Time, cycle CycleUnit) time.Time {
	return current.Add(cycle.Offset())
}

// TrialEnd returns now+trialDays, or nil when there is no trial.
func TrialEnd(now time.Time, trialDays int) *time.Time {
	if trialDays <= 0 {
		return nil
	}
	end := now.Add(time.Duration(trialDays) * day)
	return &end
}
