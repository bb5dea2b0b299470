package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"recurring-billing/internal/domain/ports/usecase"
)

// JobReaper periodically fails billing jobs left running by a driver that
// died, e.g. a replica that crashed mid-cycle.
type JobReaper struct {
	reaper     usecase.JobReaper
	interval   time.Duration // how often to scan
	staleAfter time.Duration // how old a running job must be to count as abandoned
	log        *zerolog.Logger
}

func NewJobReaper(reaper usecase.JobReaper, interval, staleAfter time.Duration, logger *zerolog.Logger) *JobReaper {
	if interval <= 0 {
		interval = time.Minute
	}
	if staleAfter <= 0 {
		staleAfter = time.Hour
	}
	l := logger.With().Str("component", "JobReaper").Logger()
	return &JobReaper{reaper: reaper, interval: interval, staleAfter: staleAfter, log: &l}
}

func (w *JobReaper) Run(ctx context.Context) error {
	// once at startup, then every tick
	w.tick(ctx)

	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			w.tick(ctx)
		}
	}
}

func (w *JobReaper) tick(ctx context.Context) int {
	n, err := w.reaper.ReapAbandonedJobs(ctx, w.staleAfter)
	if err != nil {
		w.log.Error().Err(err).Msg("reaping abandoned jobs failed")
	}
	if n > 0 {
		w.log.Info().Int("count", n).Msg("abandoned billing jobs reaped")
	}
	return n
}
