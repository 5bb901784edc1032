package jobs

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store with the same transition semantics as
// PGStore. It backs tests and single-process local development; the mutex
// plays the role SKIP LOCKED plays in SQL, so claims stay race-free.
type MemoryStore struct {
	mu         sync.Mutex
	jobs       map[string]*Job
	keepalives map[string]time.Time
	seq        int64 // breaks created_at ties so ordering stays deterministic
	order      map[string]int64
	now        func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:       make(map[string]*Job),
		keepalives: make(map[string]time.Time),
		order:      make(map[string]int64),
		now:        time.Now,
	}
}

// SetClock overrides the store's clock. Test hook only.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *MemoryStore) Enqueue(_ context.Context, n NewJob) (Job, error) {
	if err := n.Args.Validate(); err != nil {
		return Job{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	j := &Job{
		Token:                 "job_" + uuid.NewString(),
		JobType:               n.JobType,
		Status:                StatusPending,
		Priority:              n.Priority,
		RoutingTag:            n.RoutingTag,
		Args:                  n.Args,
		MaxAttempts:           n.MaxAttempts,
		MaybeCreatorUserToken: n.CreatorUserToken,
		SessionToken:          n.SessionToken,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	s.seq++
	s.order[j.Token] = s.seq
	s.jobs[j.Token] = j
	return *j, nil
}

func (s *MemoryStore) Get(_ context.Context, token string) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[token]
	if !ok {
		return Job{}, ErrJobNotFound
	}
	return *j, nil
}

func (s *MemoryStore) Claim(_ context.Context, req ClaimRequest) ([]Job, error) {
	if req.Capacity <= 0 || len(req.JobTypes) == 0 {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var eligible []*Job
	for _, j := range s.jobs {
		if !s.claimable(j, now, req) {
			continue
		}
		eligible = append(eligible, j)
	}

	sort.Slice(eligible, func(a, b int) bool {
		if req.OrderByPriority && eligible[a].Priority != eligible[b].Priority {
			return eligible[a].Priority > eligible[b].Priority
		}
		return s.order[eligible[a].Token] < s.order[eligible[b].Token]
	})

	if len(eligible) > req.Capacity {
		eligible = eligible[:req.Capacity]
	}

	claimed := make([]Job, 0, len(eligible))
	for _, j := range eligible {
		j.Status = StatusStarted
		j.AttemptCount++
		j.RetryAt = nil
		at := now
		j.ClaimedAt = &at
		j.ClaimedBy = req.WorkerID
		j.UpdatedAt = now
		claimed = append(claimed, *j)
	}
	return claimed, nil
}

func (s *MemoryStore) claimable(j *Job, now time.Time, req ClaimRequest) bool {
	switch j.Status {
	case StatusPending:
	case StatusAttemptFailed:
		if j.RetryAt == nil || j.RetryAt.After(now) {
			return false
		}
	default:
		return false
	}

	typeOK := false
	for _, t := range req.JobTypes {
		if j.JobType == t {
			typeOK = true
			break
		}
	}
	if !typeOK {
		return false
	}

	if j.RoutingTag == "" {
		return true
	}
	for _, tag := range req.RoutingTags {
		if j.RoutingTag == tag {
			return true
		}
	}
	return false
}

func (s *MemoryStore) MarkSucceeded(_ context.Context, token string, result ResultRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, err := s.started(token)
	if err != nil {
		return err
	}
	j.Status = StatusCompleteSuccess
	j.OnSuccessResultEntityType = result.EntityType
	j.OnSuccessResultEntityToken = result.EntityToken
	j.FailureReason = ""
	j.InternalDebuggingFailureReason = ""
	j.RetryAt = nil
	j.Progress = 1
	j.ClaimedAt = nil
	j.ClaimedBy = ""
	j.UpdatedAt = s.now()
	return nil
}

func (s *MemoryStore) MarkFailed(_ context.Context, token string, f Failure) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, err := s.started(token)
	if err != nil {
		return err
	}

	now := s.now()
	switch {
	case !f.Recoverable:
		j.Status = StatusCompleteFailure
		j.RetryAt = nil
	case j.AttemptCount >= j.MaxAttempts:
		j.Status = StatusDead
		j.RetryAt = nil
	default:
		j.Status = StatusAttemptFailed
		at := now.Add(f.RetryAfter)
		j.RetryAt = &at
	}
	j.FailureReason = f.Reason
	j.InternalDebuggingFailureReason = f.InternalReason
	j.OnSuccessResultEntityType = ""
	j.OnSuccessResultEntityToken = ""
	j.ClaimedAt = nil
	j.ClaimedBy = ""
	j.UpdatedAt = now
	return nil
}

func (s *MemoryStore) Release(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, err := s.started(token)
	if err != nil {
		return err
	}
	j.Status = StatusPending
	if j.AttemptCount > 0 {
		j.AttemptCount--
	}
	j.ClaimedAt = nil
	j.ClaimedBy = ""
	j.UpdatedAt = s.now()
	return nil
}

func (s *MemoryStore) ReapStale(_ context.Context, lease time.Duration) (ReapResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result ReapResult
	now := s.now()
	cutoff := now.Add(-lease)
	for _, j := range s.jobs {
		if j.Status != StatusStarted || j.ClaimedAt == nil || !j.ClaimedAt.Before(cutoff) {
			continue
		}
		if j.AttemptCount < j.MaxAttempts {
			j.Status = StatusPending
			result.Requeued++
		} else {
			j.Status = StatusDead
			j.RetryAt = nil
			if j.FailureReason == "" {
				j.FailureReason = "The job could not be completed."
			}
			j.InternalDebuggingFailureReason = "claim lease expired with no attempts remaining"
			result.DeadLettered++
		}
		j.ClaimedAt = nil
		j.ClaimedBy = ""
		j.UpdatedAt = now
	}
	return result, nil
}

func (s *MemoryStore) Cancel(_ context.Context, token string, byUser bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[token]
	if !ok {
		return ErrJobNotFound
	}
	if j.Status != StatusPending && j.Status != StatusAttemptFailed {
		return ErrInvalidTransition
	}
	if byUser {
		j.Status = StatusCancelledByUser
	} else {
		j.Status = StatusCancelledBySystem
	}
	j.RetryAt = nil
	j.UpdatedAt = s.now()
	return nil
}

func (s *MemoryStore) Dismiss(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[token]
	if !ok {
		return ErrJobNotFound
	}
	j.IsDismissedByUser = true
	j.UpdatedAt = s.now()
	return nil
}

func (s *MemoryStore) UpdateProgress(_ context.Context, token string, fraction float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[token]
	if !ok {
		return ErrJobNotFound
	}
	if j.Status == StatusStarted {
		j.Progress = fraction
		j.UpdatedAt = s.now()
	}
	return nil
}

func (s *MemoryStore) CheckinKeepalive(_ context.Context, sessionToken string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keepalives[sessionToken] = s.now()
	return nil
}

func (s *MemoryStore) KeepaliveFresh(_ context.Context, sessionToken string, maxAge time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	last, ok := s.keepalives[sessionToken]
	if !ok {
		return false, nil
	}
	return !last.Before(s.now().Add(-maxAge)), nil
}

func (s *MemoryStore) started(token string) (*Job, error) {
	j, ok := s.jobs[token]
	if !ok {
		return nil, ErrJobNotFound
	}
	if j.Status != StatusStarted {
		return nil, ErrInvalidTransition
	}
	return j, nil
}
