// File: internal/infra/adapters/payment/simulated_gateway.go
package payment

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"recurring-billing/internal/domain/ports/adapter"
)

var _ adapter.PaymentGateway = (*SimulatedGateway)(nil)

// Decline reasons the simulator picks from.
var simulatedDeclines = []string{
	"Insufficient funds",
	"Card declined",
	"Payment method expired",
	"Billing address mismatch",
	"Risk assessment failed",
}

type SimulatedOptions struct {
	SuccessRate float64       // share of answered charges that succeed
	TimeoutRate float64       // share of calls that stall and time out
	MinLatency  time.Duration // lower bound of a normal round trip
	MaxLatency  time.Duration
	Stall       time.Duration // how long a timing-out call hangs
	Seed        uint64        // 0 picks a random seed
}

func DefaultSimulatedOptions() SimulatedOptions {
	return SimulatedOptions{
		SuccessRate: 0.92,
		TimeoutRate: 0.01,
		MinLatency:  150 * time.Millisecond,
		MaxLatency:  800 * time.Millisecond,
		Stall:       5 * time.Second,
	}
}

// SimulatedGateway stands in for a card processor: random latency, a fixed
// success rate, and the occasional stalled call.
type SimulatedGateway struct {
	opts SimulatedOptions
	log  *zerolog.Logger

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewSimulatedGateway(opts SimulatedOptions, logger *zerolog.Logger) *SimulatedGateway {
	if opts.MaxLatency < opts.MinLatency {
		opts.MaxLatency = opts.MinLatency
	}
	if opts.Stall <= 0 {
		opts.Stall = 5 * time.Second
	}
	seed := opts.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	l := logger.With().Str("component", "SimulatedGateway").Logger()
	return &SimulatedGateway{
		opts: opts,
		log:  &l,
		rnd:  rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

func (g *SimulatedGateway) Name() string { return "simulated" }

func (g *SimulatedGateway) Charge(ctx context.Context, payerID string, amount decimal.Decimal, memo string) (adapter.ChargeResult, error) {
	start := time.Now()
	latency, stall, success, reason := g.roll()

	if err := sleepCtx(ctx, latency); err != nil {
		return adapter.ChargeResult{ProcessingTime: time.Since(start)}, err
	}
	if stall {
		if err := sleepCtx(ctx, g.opts.Stall); err != nil {
			return adapter.ChargeResult{ProcessingTime: time.Since(start)}, err
		}
		return adapter.ChargeResult{ProcessingTime: time.Since(start)}, adapter.ErrGatewayTimeout
	}

	res := adapter.ChargeResult{
		Success:        success,
		TransactionID:  uuid.NewString(),
		ProcessingTime: time.Since(start),
	}
	if !success {
		res.FailureReason = reason
		g.log.Debug().Str("transaction_id", res.TransactionID).Str("reason", reason).Msg("simulated decline")
	}
	return res, nil
}

// roll draws every random decision for one call under the lock.
func (g *SimulatedGateway) roll() (latency time.Duration, stall, success bool, reason string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	latency = g.opts.MinLatency
	if span := g.opts.MaxLatency - g.opts.MinLatency; span > 0 {
		latency += time.Duration(g.rnd.Int64N(int64(span)))
	}
	stall = g.rnd.Float64() < g.opts.TimeoutRate
	success = g.rnd.Float64() < g.opts.SuccessRate
	reason = simulatedDeclines[g.rnd.IntN(len(simulatedDeclines))]
	return latency, stall, success, reason
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
