package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/FiditeNemini/artcraft-sub020/internal/handler"
	"github.com/FiditeNemini/artcraft-sub020/internal/jobs"
	"github.com/rs/zerolog/log"
)

// Dispatcher routes one claimed job to its handler and normalizes whatever
// happens into an Outcome. It owns the two skip checks (routing tag, local
// model files) and the keepalive watch for session-tied jobs.
type Dispatcher struct {
	registry *handler.Registry
	store    jobs.Store
	deps     *handler.Dependencies

	// keepaliveInterval is how often a running session-tied attempt checks
	// the session; keepaliveMaxAge is how stale a checkin may be before the
	// attempt is aborted.
	keepaliveInterval time.Duration
	keepaliveMaxAge   time.Duration
}

func NewDispatcher(
	registry *handler.Registry,
	store jobs.Store,
	deps *handler.Dependencies,
	keepaliveInterval, keepaliveMaxAge time.Duration,
) *Dispatcher {
	return &Dispatcher{
		registry:          registry,
		store:             store,
		deps:              deps,
		keepaliveInterval: keepaliveInterval,
		keepaliveMaxAge:   keepaliveMaxAge,
	}
}

// Dispatch runs one claimed job to a single Outcome. It never panics and
// never returns more than one outcome per attempt; infra errors while
// persisting the outcome are the recorder's concern, not the dispatcher's.
func (d *Dispatcher) Dispatch(ctx context.Context, j jobs.Job, snap CapabilitySnapshot) Outcome {
	// The claim query already filters on routing tag, but the snapshot may
	// have rotated between claim and dispatch; the job must never run on a
	// process that no longer answers its tag.
	if !snap.ServesTag(j.RoutingTag) {
		return Outcome{Kind: OutcomeSkippedRoutingMismatch}
	}

	if ready, known := snap.ModelReady[j.JobType]; known && !ready {
		return Outcome{Kind: OutcomeSkippedFilesAbsent}
	}

	if err := j.Args.Validate(); err != nil {
		return failed(FailInvalidJob, false, err)
	}
	if j.Args.Type != j.JobType {
		return failed(FailInvalidJob, false,
			fmt.Errorf("args tagged %q on a %q job", j.Args.Type, j.JobType))
	}

	h, err := d.registry.Get(j.JobType)
	if err != nil {
		return failed(FailInvalidJob, false, err)
	}

	return d.await(ctx, j, h)
}

// await runs the handler in its own goroutine and waits on whichever comes
// first: the handler finishing, the worker shutting down, or the session
// keepalive lapsing.
func (d *Dispatcher) await(ctx context.Context, j jobs.Job, h handler.Handler) Outcome {
	handlerCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type handlerResult struct {
		res handler.SuccessResult
		err error
	}
	done := make(chan handlerResult, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- handlerResult{err: fmt.Errorf("handler panicked: %v", r)}
			}
		}()
		res, err := h.Handle(handlerCtx, j, d.deps, &storeProgress{store: d.store, token: j.Token})
		done <- handlerResult{res: res, err: err}
	}()

	var keepalive <-chan time.Time
	if j.SessionTied() && d.keepaliveInterval > 0 {
		ticker := time.NewTicker(d.keepaliveInterval)
		defer ticker.Stop()
		keepalive = ticker.C
	}

	for {
		select {
		case r := <-done:
			if r.err != nil {
				return classifyHandlerError(r.err)
			}
			return completed(r.res)

		case <-ctx.Done():
			// Worker shutdown mid-attempt. Abort the handler and record a
			// recoverable failure so the job retries elsewhere.
			cancel()
			r := <-done
			err := r.err
			if err == nil {
				// Finished in the race window; keep the result.
				return completed(r.res)
			}
			return failed(FailHandler, true, fmt.Errorf("attempt aborted by shutdown: %w", err))

		case <-keepalive:
			fresh, err := d.store.KeepaliveFresh(ctx, j.SessionToken, d.keepaliveMaxAge)
			if err != nil {
				// Store hiccup: keep waiting on the handler rather than
				// killing a healthy attempt over a transient read failure.
				log.Warn().Err(err).Str("job_token", j.Token).Msg("keepalive check failed")
				continue
			}
			if fresh {
				continue
			}
			cancel()
			<-done
			return failed(FailKeepAliveElapsed, false,
				fmt.Errorf("session %s stopped checking in", j.SessionToken))
		}
	}
}

func classifyHandlerError(err error) Outcome {
	if errors.Is(err, handler.ErrNotYetImplemented) {
		return failed(FailNotYetImplemented, false, err)
	}
	return failed(FailHandler, true, err)
}

// storeProgress writes handler progress fractions to the job row.
type storeProgress struct {
	store jobs.Store
	token string
}

func (p *storeProgress) ReportProgress(ctx context.Context, fraction float64) error {
	return p.store.UpdateProgress(ctx, p.token, fraction)
}
