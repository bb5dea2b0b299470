package payment

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"recurring-billing/internal/domain/ports/adapter"
)

var _ adapter.PaymentGateway = (*ScriptedGateway)(nil)

// Outcome is one scripted gateway answer.
type Outcome struct {
	Success bool
	Reason  string        // decline reason when Success is false
	Err     error         // returned instead of a result, e.g. adapter.ErrGatewayTimeout
	Delay   time.Duration // simulated latency; honours ctx
	Hang    bool          // ignore ctx and block until Release is called
}

var (
	Approve = Outcome{Success: true}
	Decline = Outcome{Reason: "Card declined"}
	Timeout = Outcome{Err: adapter.ErrGatewayTimeout}
)

// Call is one recorded Charge invocation.
type Call struct {
	PayerID string
	Amount  decimal.Decimal
	Memo    string
}

// ScriptedGateway is a deterministic gateway. Per-payer outcomes win over the
// sequence; the sequence is consumed in call order and Default answers the rest.
type ScriptedGateway struct {
	mu       sync.Mutex
	seq      int64
	byPayer  map[string]Outcome
	sequence []Outcome
	calls    []Call
	release  chan struct{}
	inFlight int
	peak     int

	Default Outcome
}

func NewScriptedGateway(sequence ...Outcome) *ScriptedGateway {
	return &ScriptedGateway{
		byPayer:  make(map[string]Outcome),
		sequence: sequence,
		release:  make(chan struct{}),
		Default:  Approve,
	}
}

func (g *ScriptedGateway) Name() string { return "scripted" }

// For sets the outcome for every charge against payerID.
func (g *ScriptedGateway) For(payerID string, o Outcome) *ScriptedGateway {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.byPayer[payerID] = o
	return g
}

// Release unblocks every hanging call.
func (g *ScriptedGateway) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	select {
	case <-g.release:
	default:
		close(g.release)
	}
}

func (g *ScriptedGateway) Charge(ctx context.Context, payerID string, amount decimal.Decimal, memo string) (adapter.ChargeResult, error) {
	start := time.Now()
	o, txID, release := g.next(payerID, amount, memo)
	defer g.done()

	if o.Hang {
		<-release
	} else if err := sleepCtx(ctx, o.Delay); err != nil {
		return adapter.ChargeResult{ProcessingTime: time.Since(start)}, err
	}
	if o.Err != nil {
		return adapter.ChargeResult{ProcessingTime: time.Since(start)}, o.Err
	}
	res := adapter.ChargeResult{Success: o.Success, TransactionID: txID, ProcessingTime: time.Since(start)}
	if !o.Success {
		res.FailureReason = o.Reason
	}
	return res, nil
}

func (g *ScriptedGateway) next(payerID string, amount decimal.Decimal, memo string) (Outcome, string, chan struct{}) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, Call{PayerID: payerID, Amount: amount, Memo: memo})
	g.inFlight++
	if g.inFlight > g.peak {
		g.peak = g.inFlight
	}
	g.seq++
	txID := fmt.Sprintf("scripted-%d", g.seq)

	if o, ok := g.byPayer[payerID]; ok {
		return o, txID, g.release
	}
	if len(g.sequence) > 0 {
		o := g.sequence[0]
		g.sequence = g.sequence[1:]
		return o, txID, g.release
	}
	return g.Default, txID, g.release
}

func (g *ScriptedGateway) done() {
	g.mu.Lock()
	g.inFlight--
	g.mu.Unlock()
}

// Calls returns a copy of every recorded charge.
func (g *ScriptedGateway) Calls() []Call {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]Call(nil), g.calls...)
}

// PeakConcurrency is the largest number of charges seen in flight at once.
func (g *ScriptedGateway) PeakConcurrency() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.peak
}
