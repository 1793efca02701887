// Package sched runs periodic maintenance next to the pipeline workers.
package sched

import (
	"context"
	"errors"
	"time"

	"research-orchestrator/internal/infra/redis"

	"github.com/rs/zerolog"
)

const reconcileLockKey = "lock:reconcile_stale_messages"

// StaleFailer is the part of the job use case the reconciler drives.
type StaleFailer interface {
	FailStale(ctx context.Context, olderThan time.Duration) (int, error)
}

// Reconciler periodically fails stored turns that were left in progress by
// a process that no longer runs them. With a locker, only one instance
// sweeps per tick.
type Reconciler struct {
	jobs       StaleFailer
	locker     redis.Locker
	interval   time.Duration
	staleAfter time.Duration
	log        *zerolog.Logger
}

func NewReconciler(jobs StaleFailer, locker redis.Locker, interval, staleAfter time.Duration, logger *zerolog.Logger) *Reconciler {
	if interval <= 0 {
		interval = time.Minute
	}
	if staleAfter <= 0 {
		staleAfter = 30 * time.Minute
	}
	l := logger.With().Str("component", "Reconciler").Logger()
	return &Reconciler{jobs: jobs, locker: locker, interval: interval, staleAfter: staleAfter, log: &l}
}

func (w *Reconciler) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Dur("stale_after", w.staleAfter).Msg("Starting reconciler")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping reconciler")
			return ctx.Err()
		case <-ticker.C:
			w.Tick(ctx)
		}
	}
}

// Tick runs one sweep and returns how many turns it failed.
func (w *Reconciler) Tick(ctx context.Context) int {
	if w.locker != nil {
		token, err := w.locker.TryLock(ctx, reconcileLockKey, w.interval)
		if errors.Is(err, redis.ErrLockHeld) {
			w.log.Debug().Msg("another instance is reconciling")
			return 0
		}
		if err != nil {
			w.log.Warn().Err(err).Msg("reconcile lock unavailable")
			return 0
		}
		defer func() {
			if err := w.locker.Unlock(context.WithoutCancel(ctx), reconcileLockKey, token); err != nil {
				w.log.Warn().Err(err).Msg("reconcile unlock failed")
			}
		}()
	}

	n, err := w.jobs.FailStale(ctx, w.staleAfter)
	if err != nil {
		w.log.Error().Err(err).Msg("reconcile error")
	}
	if n > 0 {
		w.log.Info().Int("count", n).Msg("stale messages failed")
	}
	return n
}
