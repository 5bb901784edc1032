package worker

import (
	"fmt"

	"github.com/FiditeNemini/artcraft-sub020/internal/handler"
)

// FailureKind classifies a failed attempt for retry policy and triage.
type FailureKind string

const (
	// FailHandler is any error surfaced by the job-type handler itself.
	FailHandler FailureKind = "handler_error"
	// FailInvalidJob means the row is malformed (args tag does not match
	// the declared job type, or no handler exists for it). Programmer or
	// producer error; retrying cannot fix it.
	FailInvalidJob FailureKind = "invalid_job"
	// FailNotYetImplemented marks a handler that is registered but has no
	// execution logic on this build. Distinct from a generic error so
	// operators can tell a rollout gap from a real failure.
	FailNotYetImplemented FailureKind = "not_yet_implemented"
	// FailKeepAliveElapsed means the initiating client session stopped
	// checking in while the attempt ran. The client is gone; never retried.
	FailKeepAliveElapsed FailureKind = "keepalive_elapsed"
)

// ProcessError is the dispatcher's normalized failure for one attempt.
type ProcessError struct {
	Kind        FailureKind
	Recoverable bool
	Err         error
}

func (e *ProcessError) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *ProcessError) Unwrap() error { return e.Err }

// UserReason is the user-facing failure_reason persisted for this kind. The
// operator-facing detail goes to internal_debugging_failure_reason instead.
func (e *ProcessError) UserReason() string {
	switch e.Kind {
	case FailInvalidJob:
		return "This job could not be processed."
	case FailNotYetImplemented:
		return "This job type is not available yet."
	case FailKeepAliveElapsed:
		return "The session ended before the job finished."
	default:
		return "The job failed. It may succeed if retried."
	}
}

// OutcomeKind enumerates what one dispatched attempt produced.
type OutcomeKind string

const (
	// OutcomeCompleted carries the produced result entity.
	OutcomeCompleted OutcomeKind = "completed"
	// OutcomeSkippedFilesAbsent: this worker lacks the model weights; the
	// job goes back to pending for another worker, attempt not consumed.
	OutcomeSkippedFilesAbsent OutcomeKind = "skipped_files_absent"
	// OutcomeSkippedRoutingMismatch: the job's routing tag is not served by
	// this process; attempt not consumed.
	OutcomeSkippedRoutingMismatch OutcomeKind = "skipped_routing_mismatch"
	// OutcomeClaimNotObtained is reserved for lock-contention reporting;
	// the claim query never returns rows it did not obtain.
	OutcomeClaimNotObtained OutcomeKind = "claim_not_obtained"
	// OutcomeFailed carries a ProcessError.
	OutcomeFailed OutcomeKind = "failed"
)

// Outcome is the in-memory result of dispatching one claimed job.
type Outcome struct {
	Kind   OutcomeKind
	Result handler.SuccessResult // set when Kind == OutcomeCompleted
	Err    *ProcessError         // set when Kind == OutcomeFailed
}

func completed(res handler.SuccessResult) Outcome {
	return Outcome{Kind: OutcomeCompleted, Result: res}
}

func failed(kind FailureKind, recoverable bool, err error) Outcome {
	return Outcome{Kind: OutcomeFailed, Err: &ProcessError{Kind: kind, Recoverable: recoverable, Err: err}}
}
