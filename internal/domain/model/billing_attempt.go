package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type AttemptOutcome string

const (
	AttemptOutcomeSuccess AttemptOutcome = "success"
	AttemptOutcomeFailed  AttemptOutcome = "failed"
)

// Failure reasons the engine assigns itself. Declines carry the gateway's reason.
const (
	FailureReasonGatewayTimeout = "gateway timeout"
	FailureReasonDeclined       = "payment declined"
)

// BillingAttemptRecord is the append-only audit row for one charge attempt.
type BillingAttemptRecord struct {
	ID             string
	SubscriptionID string
	Amount         decimal.Decimal
	Outcome        AttemptOutcome
	TransactionID  *string
	FailureReason  *string
	ProcessedAt    time.Time
}

func (r *BillingAttemptRecord) Succeeded() bool { return r.Outcome == AttemptOutcomeSuccess }
