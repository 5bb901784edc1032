package jobs

import (
	"time"
)

// Status is the persisted lifecycle state of a job. The string values are
// stored verbatim and shared with the enqueue producers, so they must never
// be renamed.
type Status string

const (
	StatusPending           Status = "pending"
	StatusStarted           Status = "started"
	StatusAttemptFailed     Status = "attempt_failed"
	StatusCompleteSuccess   Status = "complete_success"
	StatusCompleteFailure   Status = "complete_failure"
	StatusDead              Status = "dead"
	StatusCancelledByUser   Status = "cancelled_by_user"
	StatusCancelledBySystem Status = "cancelled_by_system"
)

// Terminal reports whether a job in this status will never run again.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleteSuccess, StatusCompleteFailure, StatusDead,
		StatusCancelledByUser, StatusCancelledBySystem:
		return true
	}
	return false
}

// JobType selects the handler and the args payload variant for a job.
type JobType string

const (
	TypeTextToSpeech      JobType = "text_to_speech"
	TypeVoiceConversion   JobType = "voice_conversion"
	TypeImageGeneration   JobType = "image_generation"
	TypeVideoGeneration   JobType = "video_generation"
	TypeAsset3DGeneration JobType = "asset_3d_generation"
	TypeWorkflow          JobType = "workflow"
	TypeLipSync           JobType = "lip_sync"
	TypeMotionCapture     JobType = "motion_capture"
)

// AllTypes lists every known job type, in dispatch-registry order.
func AllTypes() []JobType {
	return []JobType{
		TypeTextToSpeech,
		TypeVoiceConversion,
		TypeImageGeneration,
		TypeVideoGeneration,
		TypeAsset3DGeneration,
		TypeWorkflow,
		TypeLipSync,
		TypeMotionCapture,
	}
}

// Valid reports whether t is a known job type.
func (t JobType) Valid() bool {
	for _, known := range AllTypes() {
		if t == known {
			return true
		}
	}
	return false
}

// Job is one row of the shared jobs table. The job table is the single
// source of truth for the fleet; a row is exclusively owned by the worker
// holding the claim while status == started and returns to shared ownership
// on every other transition.
type Job struct {
	Token      string
	JobType    JobType
	Status     Status
	Priority   int
	RoutingTag string // empty = any worker may serve it
	Args       Args

	AttemptCount int
	MaxAttempts  int
	RetryAt      *time.Time

	FailureReason                  string
	InternalDebuggingFailureReason string

	OnSuccessResultEntityType  string
	OnSuccessResultEntityToken string

	MaybeCreatorUserToken string
	SessionToken          string // non-empty for session-tied jobs (keepalive enforced)
	Progress              float64
	IsDismissedByUser     bool

	ClaimedAt *time.Time
	ClaimedBy string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// SessionTied reports whether the job's attempt must be aborted once the
// initiating client stops checking in.
func (j *Job) SessionTied() bool { return j.SessionToken != "" }

// ResultRef points at the entity a successful job produced.
type ResultRef struct {
	EntityType  string
	EntityToken string
}

// Failure describes a recorded attempt failure. Recoverable failures below
// the attempt ceiling are rescheduled after RetryAfter; everything else is
// terminal.
type Failure struct {
	Reason         string // user-facing
	InternalReason string // operator-facing
	Recoverable    bool
	RetryAfter     time.Duration
}
