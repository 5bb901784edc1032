// Package handler defines the boundary between the scheduler core and the
// model-specific execution logic. The core claims jobs and records outcomes;
// handlers do the actual inference and report back one result or one error.
package handler

import (
	"context"
	"errors"

	"github.com/FiditeNemini/artcraft-sub020/internal/jobs"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotYetImplemented marks a job type that is registered but has no real
// execution logic on this build. Kept distinct from generic handler errors
// so operators can triage it separately; treated as a terminal failure.
var ErrNotYetImplemented = errors.New("handler: not yet implemented")

// SuccessResult points at the entity a handler produced.
type SuccessResult struct {
	EntityType  string
	EntityToken string
}

// ProgressReporter receives best-effort completion fractions from a running
// handler. Implementations must tolerate being called from the handler's
// goroutine while the dispatcher is blocked waiting on the result.
type ProgressReporter interface {
	ReportProgress(ctx context.Context, fraction float64) error
}

// NoopProgress discards progress reports.
type NoopProgress struct{}

func (NoopProgress) ReportProgress(context.Context, float64) error { return nil }

// Dependencies is the opaque bundle assembled once at process startup and
// handed to every dispatched job: shared DB pool, resolved local model file
// paths per job type, and a scratch root for per-job temp directories.
type Dependencies struct {
	DB         *pgxpool.Pool
	ModelPaths map[jobs.JobType]string
	ScratchDir string
}

// Handler executes one job type. Handle must release every local resource it
// acquires on all exit paths; the core only sees the returned result or
// error.
type Handler interface {
	Type() jobs.JobType
	Handle(ctx context.Context, job jobs.Job, deps *Dependencies, progress ProgressReporter) (SuccessResult, error)
}

// NotImplemented is the placeholder handler registered for job types this
// build cannot execute yet.
type NotImplemented struct {
	JobType jobs.JobType
}

func (n NotImplemented) Type() jobs.JobType { return n.JobType }

func (n NotImplemented) Handle(context.Context, jobs.Job, *Dependencies, ProgressReporter) (SuccessResult, error) {
	return SuccessResult{}, ErrNotYetImplemented
}
