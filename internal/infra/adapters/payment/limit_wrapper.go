package payment

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"recurring-billing/internal/domain/ports/adapter"
)

// Compile-time check
var _ adapter.PaymentGateway = (*limitedGateway)(nil)

type limitedGateway struct {
	inner   adapter.PaymentGateway
	limiter *rate.Limiter
	sem     chan struct{}
}

// NewLimitedGateway caps charges per second (rps <= 0 disables the rate cap)
// and charges in flight (maxConcurrent <= 0 disables the concurrency cap).
func NewLimitedGateway(inner adapter.PaymentGateway, rps float64, burst, maxConcurrent int) adapter.PaymentGateway {
	if rps <= 0 && maxConcurrent <= 0 {
		return inner
	}
	l := &limitedGateway{inner: inner}
	if rps > 0 {
		if burst <= 0 {
			burst = 1
		}
		l.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
	if maxConcurrent > 0 {
		l.sem = make(chan struct{}, maxConcurrent)
	}
	return l
}

func (l *limitedGateway) Name() string { return l.inner.Name() }

func (l *limitedGateway) Charge(ctx context.Context, payerID string, amount decimal.Decimal, memo string) (adapter.ChargeResult, error) {
	if l.limiter != nil {
		if err := l.limiter.Wait(ctx); err != nil {
			// Wait fails early when the next token lands past the deadline.
			if _, ok := ctx.Deadline(); ok && ctx.Err() == nil {
				return adapter.ChargeResult{}, fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
			}
			return adapter.ChargeResult{}, err
		}
	}
	if l.sem != nil {
		select {
		case l.sem <- struct{}{}:
			defer func() { <-l.sem }()
		case <-ctx.Done():
			return adapter.ChargeResult{}, ctx.Err()
		}
	}
	return l.inner.Charge(ctx, payerID, amount, memo)
}
