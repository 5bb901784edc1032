package worker

import (
	"context"
	"time"

	"github.com/FiditeNemini/artcraft-sub020/internal/event"
	"github.com/FiditeNemini/artcraft-sub020/internal/jobs"
	"github.com/rs/zerolog/log"
)

// LoopConfig tunes one worker process's claim cycle.
type LoopConfig struct {
	WorkerID        string
	BatchCapacity   int
	OrderByPriority bool
	// BatchWait is the sleep after a normal cycle; ErrorWait after a store
	// connectivity failure.
	BatchWait time.Duration
	ErrorWait time.Duration
}

// Loop is the per-process scheduler cycle: rebuild capability snapshot,
// claim a batch, dispatch each job, record each outcome, sleep, repeat. A
// single job's failure never ends the loop; only ctx cancellation does.
type Loop struct {
	cfg        LoopConfig
	store      jobs.Store
	dispatcher *Dispatcher
	recorder   *Recorder
	snapshot   func() CapabilitySnapshot
	bus        *event.Bus
}

func NewLoop(
	cfg LoopConfig,
	store jobs.Store,
	dispatcher *Dispatcher,
	recorder *Recorder,
	snapshot func() CapabilitySnapshot,
	bus *event.Bus,
) *Loop {
	return &Loop{
		cfg:        cfg,
		store:      store,
		dispatcher: dispatcher,
		recorder:   recorder,
		snapshot:   snapshot,
		bus:        bus,
	}
}

// Run blocks until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	log.Info().
		Str("worker_id", l.cfg.WorkerID).
		Int("batch_capacity", l.cfg.BatchCapacity).
		Msg("worker loop starting")

	for {
		wait := l.cycle(ctx)

		select {
		case <-ctx.Done():
			log.Info().Str("worker_id", l.cfg.WorkerID).Msg("worker loop stopping")
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// cycle runs one SelectBatch → Dispatch×N → RecordOutcomes pass and returns
// how long to sleep before the next one.
func (l *Loop) cycle(ctx context.Context) time.Duration {
	snap := l.snapshot()
	if !snap.ClaimsAnything() {
		return l.cfg.BatchWait
	}

	claimed, err := l.store.Claim(ctx, jobs.ClaimRequest{
		Capacity:        l.cfg.BatchCapacity,
		WorkerID:        l.cfg.WorkerID,
		JobTypes:        snap.JobTypes,
		RoutingTags:     snap.RoutingTags,
		OrderByPriority: l.cfg.OrderByPriority,
	})
	if err != nil {
		// Store unreachable. No job state was mutated; back off the whole
		// cycle rather than failing anything.
		log.Error().Err(err).Str("worker_id", l.cfg.WorkerID).Msg("claim failed")
		return l.cfg.ErrorWait
	}
	if len(claimed) == 0 {
		return l.cfg.BatchWait
	}

	log.Debug().
		Str("worker_id", l.cfg.WorkerID).
		Int("claimed", len(claimed)).
		Msg("batch claimed")

	for _, j := range claimed {
		l.bus.Publish(ctx, event.Event{Type: event.JobClaimed, Payload: event.JobEvent{
			Token: j.Token, JobType: string(j.JobType), WorkerID: l.cfg.WorkerID, Attempt: j.AttemptCount,
		}})

		outcome := l.dispatcher.Dispatch(ctx, j, snap)

		// Recording must survive worker shutdown: the attempt already ran,
		// so its one outcome is written under a detached context.
		recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		err := l.recorder.Record(recordCtx, j, outcome)
		cancel()
		if err != nil {
			// Store went away mid-batch. The row stays 'started' and the
			// reaper will recover it; back off instead of double-recording.
			log.Error().Err(err).Str("job_token", j.Token).Msg("record outcome failed")
			return l.cfg.ErrorWait
		}
	}

	return l.cfg.BatchWait
}
