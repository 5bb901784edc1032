// Package jobs owns the shared job table: the row model, its status
// transitions, and the claim/outcome/reap queries every worker and the
// reaper coordinate through. All fleet coordination happens via conditional
// atomic updates against this table; there is no external lock service.
package jobs

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrJobNotFound is returned when a token matches no row.
	ErrJobNotFound = errors.New("jobs: job not found")
	// ErrInvalidTransition is returned when a transition is attempted on a
	// row that is not in the required current status (e.g. recording an
	// outcome for a job that is no longer started).
	ErrInvalidTransition = errors.New("jobs: invalid status transition")
)

// NewJob is the enqueue request. Token is generated by the store.
type NewJob struct {
	JobType          JobType
	Args             Args
	Priority         int
	RoutingTag       string
	MaxAttempts      int
	CreatorUserToken string
	SessionToken     string
}

// ClaimRequest selects and locks a batch of eligible rows for one worker.
type ClaimRequest struct {
	// Capacity caps how many rows one cycle may claim.
	Capacity int
	// WorkerID is stamped into claimed_by for lease accounting.
	WorkerID string
	// JobTypes the worker can currently serve. Empty claims nothing.
	JobTypes []JobType
	// RoutingTags this worker answers. Rows with an empty routing tag are
	// always eligible; rows with a tag require a match here.
	RoutingTags []string
	// OrderByPriority orders selection by priority before creation time.
	OrderByPriority bool
}

// ReapResult reports what one reaper pass did.
type ReapResult struct {
	Requeued     int64 // reset to pending, attempts remaining
	DeadLettered int64 // attempt ceiling already reached
}

// Store is the persistence boundary of the scheduler. Claim is the single
// correctness-critical operation: no two concurrent callers may ever receive
// the same row, which both implementations guarantee with an atomic
// conditional update (SKIP LOCKED in SQL, a mutex in memory) rather than a
// select-then-update pair.
type Store interface {
	// Enqueue inserts a new pending row and returns it with its token.
	Enqueue(ctx context.Context, n NewJob) (Job, error)
	// Get fetches one row by token.
	Get(ctx context.Context, token string) (Job, error)

	// Claim atomically moves up to req.Capacity eligible rows to started,
	// increments attempt_count, and stamps the claim. An empty result is a
	// normal, frequent outcome, not an error.
	Claim(ctx context.Context, req ClaimRequest) ([]Job, error)

	// MarkSucceeded transitions a started row to complete_success, records
	// the result entity pair, and clears both failure fields and retry_at.
	MarkSucceeded(ctx context.Context, token string, result ResultRef) error
	// MarkFailed records a failed attempt: recoverable failures below the
	// attempt ceiling go to attempt_failed with retry_at = now + RetryAfter;
	// recoverable failures at the ceiling go to dead; non-recoverable
	// failures go to complete_failure. The decision is made inside one
	// atomic update against the row's current attempt accounting.
	MarkFailed(ctx context.Context, token string, f Failure) error
	// Release returns a started row to pending without consuming the
	// attempt: attempt_count is decremented back and the claim is cleared.
	// Used for skip outcomes (files absent, routing mismatch).
	Release(ctx context.Context, token string) error

	// ReapStale resets started rows whose claim is older than lease to
	// pending (attempts remaining) or dead (ceiling reached). Idempotent
	// and safe to run concurrently with claimers and with itself.
	ReapStale(ctx context.Context, lease time.Duration) (ReapResult, error)

	// Cancel marks a claimable row cancelled_by_user or cancelled_by_system.
	// Started rows are left alone; the running attempt finishes and its
	// outcome recording observes the terminal status.
	Cancel(ctx context.Context, token string, byUser bool) error
	// Dismiss hides a terminal row from the user's job list.
	Dismiss(ctx context.Context, token string) error

	// UpdateProgress records a 0..1 completion fraction for a started row.
	UpdateProgress(ctx context.Context, token string, fraction float64) error

	// CheckinKeepalive refreshes the keepalive row for a client session.
	CheckinKeepalive(ctx context.Context, sessionToken string) error
	// KeepaliveFresh reports whether the session checked in within maxAge.
	// A session that never checked in is not fresh.
	KeepaliveFresh(ctx context.Context, sessionToken string, maxAge time.Duration) (bool, error)
}
