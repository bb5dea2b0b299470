package adapter

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrGatewayTimeout is returned (or wrapped) when the provider did not answer in time.
// It is distinct from a declined charge, which is a ChargeResult with Success=false.
var ErrGatewayTimeout = errors.New("payment gateway timeout")

// ChargeResult is the provider-agnostic outcome of a charge.
type ChargeResult struct {
	Success        bool
	TransactionID  string
	FailureReason  string // set when Success is false
	ProcessingTime time.Duration
}

// PaymentGateway is the hex port for payment providers.
// Latency and outcome are not deterministic; implementations should honour ctx.
type PaymentGateway interface {
	Name() string
	Charge(ctx context.Context, payerID string, amount decimal.Decimal, memo string) (ChargeResult, error)
}
