// File: internal/infra/worker/pool.go
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

// A small bounded pool: at most `limit` submitted tasks run at once.
// Submit blocks until a slot is free; Wait blocks until every submitted task returned.

type Task func(ctx context.Context) error

var ErrNilTask = errors.New("nil task")

type Pool struct {
	sem   *semaphore.Weighted
	wg    sync.WaitGroup
	log   *zerolog.Logger
	mu    sync.Mutex
	errs  []error
	limit int
}

func NewPool(limit int, logger *zerolog.Logger) *Pool {
	if limit <= 0 {
		limit = runtime.NumCPU()
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "worker.Pool").Logger()
	return &Pool{sem: semaphore.NewWeighted(int64(limit)), log: &l, limit: limit}
}

func (p *Pool) Limit() int { return p.limit }

// Submit waits for a free slot and runs task in its own goroutine.
// It returns ctx.Err() if no slot became available before ctx was done.
func (p *Pool) Submit(ctx context.Context, task Task) error {
	if task == nil {
		return ErrNilTask
	}
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.sem.Release(1)
		if err := p.run(ctx, task); err != nil {
			p.mu.Lock()
			p.errs = append(p.errs, err)
			p.mu.Unlock()
		}
	}()
	return nil
}

func (p *Pool) run(ctx context.Context, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error().Interface("panic", r).Msg("task panicked")
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return task(ctx)
}

// Wait blocks until all submitted tasks finished and returns their errors joined.
// The pool may be reused after Wait returns.
func (p *Pool) Wait() error {
	p.wg.Wait()
	p.mu.Lock()
	defer p.mu.Unlock()
	err := errors.Join(p.errs...)
	p.errs = nil
	return err
}
