// Package reaper recovers jobs abandoned by crashed workers. It is the only
// mechanism that does: a row stuck in 'started' past the lease timeout means
// the claiming process died, and the reaper returns it to 'pending' when
// attempts remain or dead-letters it otherwise.
//
// The reaper is idempotent and safe to run concurrently with any number of
// worker loops and with other reaper instances; the underlying store resets
// each stale row exactly once because the reset is a conditional update.
package reaper

import (
	"context"
	"fmt"
	"time"

	"github.com/FiditeNemini/artcraft-sub020/internal/event"
	"github.com/FiditeNemini/artcraft-sub020/internal/jobs"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

type Reaper struct {
	store    jobs.Store
	bus      *event.Bus
	interval time.Duration
	lease    time.Duration
}

func New(store jobs.Store, bus *event.Bus, interval, lease time.Duration) *Reaper {
	return &Reaper{store: store, bus: bus, interval: interval, lease: lease}
}

// Run passes once immediately, then on the fixed interval until ctx ends.
func (r *Reaper) Run(ctx context.Context) error {
	log.Info().
		Dur("interval", r.interval).
		Dur("lease_timeout", r.lease).
		Msg("reaper starting")

	r.pass(ctx)

	c := cron.New()
	if _, err := c.AddFunc(fmt.Sprintf("@every %ds", int(r.interval.Seconds())), func() {
		r.pass(ctx)
	}); err != nil {
		return fmt.Errorf("schedule reaper: %w", err)
	}
	c.Start()

	<-ctx.Done()
	stopCtx := c.Stop()
	<-stopCtx.Done()
	log.Info().Msg("reaper stopped")
	return ctx.Err()
}

// Pass runs one reap sweep. Exposed for the worker's embedded reaper mode
// and for tests.
func (r *Reaper) Pass(ctx context.Context) (jobs.ReapResult, error) {
	result, err := r.store.ReapStale(ctx, r.lease)
	if err != nil {
		return result, fmt.Errorf("reap stale jobs: %w", err)
	}
	if result.Requeued > 0 || result.DeadLettered > 0 {
		log.Warn().
			Int64("requeued", result.Requeued).
			Int64("dead_lettered", result.DeadLettered).
			Msg("recovered jobs from expired claims")
		r.bus.Publish(ctx, event.Event{Type: event.JobsReaped, Payload: event.ReapEvent{
			Requeued:     result.Requeued,
			DeadLettered: result.DeadLettered,
		}})
	}
	return result, nil
}

func (r *Reaper) pass(ctx context.Context) {
	if _, err := r.Pass(ctx); err != nil {
		// Store unreachable: nothing was mutated, the next tick retries.
		log.Error().Err(err).Msg("reaper pass failed")
	}
}
