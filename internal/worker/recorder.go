package worker

import (
	"context"
	"fmt"

	"github.com/FiditeNemini/artcraft-sub020/internal/event"
	"github.com/FiditeNemini/artcraft-sub020/internal/jobs"
	"github.com/rs/zerolog/log"
)

// Recorder persists one Outcome per claimed attempt. A returned error means
// the store was unreachable and the cycle should back off; the job row is
// then still 'started' and the reaper recovers it.
type Recorder struct {
	store    jobs.Store
	bus      *event.Bus
	workerID string
}

func NewRecorder(store jobs.Store, bus *event.Bus, workerID string) *Recorder {
	return &Recorder{store: store, bus: bus, workerID: workerID}
}

func (r *Recorder) Record(ctx context.Context, j jobs.Job, o Outcome) error {
	switch o.Kind {
	case OutcomeCompleted:
		if err := r.store.MarkSucceeded(ctx, j.Token, jobs.ResultRef{
			EntityType:  o.Result.EntityType,
			EntityToken: o.Result.EntityToken,
		}); err != nil {
			return fmt.Errorf("record success for %s: %w", j.Token, err)
		}
		log.Info().
			Str("job_token", j.Token).
			Str("job_type", string(j.JobType)).
			Str("result_entity", o.Result.EntityToken).
			Msg("job succeeded")
		r.bus.Publish(ctx, event.Event{Type: event.JobSucceeded, Payload: event.JobEvent{
			Token: j.Token, JobType: string(j.JobType), WorkerID: r.workerID, Attempt: j.AttemptCount,
		}})
		return nil

	case OutcomeFailed:
		if err := r.store.MarkFailed(ctx, j.Token, jobs.Failure{
			Reason:         o.Err.UserReason(),
			InternalReason: o.Err.Error(),
			Recoverable:    o.Err.Recoverable,
			RetryAfter:     jobs.RetryDelay(j.JobType),
		}); err != nil {
			return fmt.Errorf("record failure for %s: %w", j.Token, err)
		}
		log.Warn().
			Str("job_token", j.Token).
			Str("job_type", string(j.JobType)).
			Str("kind", string(o.Err.Kind)).
			Bool("recoverable", o.Err.Recoverable).
			Int("attempt", j.AttemptCount).
			Int("max_attempts", j.MaxAttempts).
			Err(o.Err.Err).
			Msg("job attempt failed")
		r.bus.Publish(ctx, event.Event{Type: event.JobFailed, Payload: event.JobEvent{
			Token: j.Token, JobType: string(j.JobType), WorkerID: r.workerID,
			Attempt: j.AttemptCount, Recoverable: o.Err.Recoverable, FailureKind: string(o.Err.Kind),
		}})
		return nil

	case OutcomeSkippedFilesAbsent, OutcomeSkippedRoutingMismatch:
		// Skips consume nothing: the claim's attempt increment is refunded
		// and no failure field is touched.
		if err := r.store.Release(ctx, j.Token); err != nil {
			return fmt.Errorf("release skipped job %s: %w", j.Token, err)
		}
		log.Debug().
			Str("job_token", j.Token).
			Str("job_type", string(j.JobType)).
			Str("skip", string(o.Kind)).
			Msg("job skipped")
		r.bus.Publish(ctx, event.Event{Type: event.JobSkipped, Payload: event.JobEvent{
			Token: j.Token, JobType: string(j.JobType), WorkerID: r.workerID, SkipKind: string(o.Kind),
		}})
		return nil

	case OutcomeClaimNotObtained:
		// Reserved: the claim query never hands back rows it did not lock.
		return nil

	default:
		return fmt.Errorf("unknown outcome kind %q for %s", o.Kind, j.Token)
	}
}
