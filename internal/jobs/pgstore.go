package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore is the PostgreSQL-backed Store used in production. Every
// transition is a single conditional UPDATE so concurrent workers and the
// reaper can only ever interleave at row granularity.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

const jobColumns = `
	token, job_type, status, priority, routing_tag, args,
	attempt_count, max_attempts, retry_at,
	failure_reason, internal_debugging_failure_reason,
	on_success_result_entity_type, on_success_result_entity_token,
	maybe_creator_user_token, session_token, progress, is_dismissed_by_user,
	claimed_at, claimed_by, created_at, updated_at`

func (s *PGStore) Enqueue(ctx context.Context, n NewJob) (Job, error) {
	if err := n.Args.Validate(); err != nil {
		return Job{}, fmt.Errorf("enqueue: %w", err)
	}
	if n.Args.Type != n.JobType {
		return Job{}, fmt.Errorf("enqueue: args tagged %q for job type %q", n.Args.Type, n.JobType)
	}
	argsJSON, err := json.Marshal(n.Args)
	if err != nil {
		return Job{}, fmt.Errorf("enqueue: encode args: %w", err)
	}

	token := "job_" + uuid.NewString()
	row := s.pool.QueryRow(ctx, `
		INSERT INTO jobs (
			token, job_type, status, priority, routing_tag, args,
			attempt_count, max_attempts,
			maybe_creator_user_token, session_token
		) VALUES (
			$1, $2, 'pending', $3, NULLIF($4, ''), $5,
			0, $6,
			NULLIF($7, ''), NULLIF($8, '')
		)
		RETURNING`+jobColumns,
		token, string(n.JobType), n.Priority, n.RoutingTag, argsJSON,
		n.MaxAttempts, n.CreatorUserToken, n.SessionToken,
	)

	j, err := scanJob(row)
	if err != nil {
		return Job{}, fmt.Errorf("enqueue job: %w", err)
	}
	return j, nil
}

func (s *PGStore) Get(ctx context.Context, token string) (Job, error) {
	row := s.pool.QueryRow(ctx, `SELECT`+jobColumns+` FROM jobs WHERE token = $1`, token)
	j, err := scanJob(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return Job{}, ErrJobNotFound
		}
		return Job{}, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

// Claim atomically moves up to req.Capacity eligible rows to started using a
// single UPDATE over a SKIP LOCKED selection, so two racing claimers can
// never both observe the same row as pending.
func (s *PGStore) Claim(ctx context.Context, req ClaimRequest) ([]Job, error) {
	if req.Capacity <= 0 || len(req.JobTypes) == 0 {
		return nil, nil
	}

	order := "created_at ASC"
	if req.OrderByPriority {
		order = "priority DESC, created_at ASC"
	}

	types := make([]string, len(req.JobTypes))
	for i, t := range req.JobTypes {
		types[i] = string(t)
	}
	tags := req.RoutingTags
	if tags == nil {
		tags = []string{}
	}

	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		WITH claimed AS (
			UPDATE jobs
			SET status = 'started',
			    attempt_count = attempt_count + 1,
			    retry_at = NULL,
			    claimed_at = NOW(),
			    claimed_by = $1,
			    updated_at = NOW()
			WHERE token IN (
				SELECT token FROM jobs
				WHERE (status = 'pending'
				       OR (status = 'attempt_failed' AND retry_at <= NOW()))
				  AND job_type = ANY($2)
				  AND (routing_tag IS NULL OR routing_tag = ANY($3))
				ORDER BY %s
				FOR UPDATE SKIP LOCKED
				LIMIT $4
			)
			RETURNING`+jobColumns+`
		)
		SELECT * FROM claimed ORDER BY %s`, order, order),
		req.WorkerID, types, tags, req.Capacity,
	)
	if err != nil {
		return nil, fmt.Errorf("claim jobs: %w", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

func (s *PGStore) MarkSucceeded(ctx context.Context, token string, result ResultRef) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE jobs SET
			status = 'complete_success',
			on_success_result_entity_type = $2,
			on_success_result_entity_token = $3,
			failure_reason = NULL,
			internal_debugging_failure_reason = NULL,
			retry_at = NULL,
			progress = 1,
			claimed_at = NULL,
			claimed_by = NULL,
			updated_at = NOW()
		WHERE token = $1 AND status = 'started'`,
		token, result.EntityType, result.EntityToken,
	)
	if err != nil {
		return fmt.Errorf("mark succeeded: %w", err)
	}
	return s.checkTransition(ctx, tag.RowsAffected(), token)
}

func (s *PGStore) MarkFailed(ctx context.Context, token string, f Failure) error {
	// The retry-vs-dead decision happens inside the UPDATE against the
	// row's own attempt accounting, never against a stale read.
	tag, err := s.pool.Exec(ctx, `
		UPDATE jobs SET
			status = CASE
				WHEN NOT $2::bool THEN 'complete_failure'
				WHEN attempt_count >= max_attempts THEN 'dead'
				ELSE 'attempt_failed'
			END,
			retry_at = CASE
				WHEN $2::bool AND attempt_count < max_attempts
					THEN NOW() + make_interval(secs => $3)
				ELSE NULL
			END,
			failure_reason = $4,
			internal_debugging_failure_reason = $5,
			on_success_result_entity_type = NULL,
			on_success_result_entity_token = NULL,
			claimed_at = NULL,
			claimed_by = NULL,
			updated_at = NOW()
		WHERE token = $1 AND status = 'started'`,
		token, f.Recoverable, f.RetryAfter.Seconds(), f.Reason, f.InternalReason,
	)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return s.checkTransition(ctx, tag.RowsAffected(), token)
}

func (s *PGStore) Release(ctx context.Context, token string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE jobs SET
			status = 'pending',
			attempt_count = GREATEST(attempt_count - 1, 0),
			claimed_at = NULL,
			claimed_by = NULL,
			updated_at = NOW()
		WHERE token = $1 AND status = 'started'`,
		token,
	)
	if err != nil {
		return fmt.Errorf("release job: %w", err)
	}
	return s.checkTransition(ctx, tag.RowsAffected(), token)
}

func (s *PGStore) ReapStale(ctx context.Context, lease time.Duration) (ReapResult, error) {
	var result ReapResult

	requeued, err := s.pool.Exec(ctx, `
		UPDATE jobs SET
			status = 'pending',
			claimed_at = NULL,
			claimed_by = NULL,
			updated_at = NOW()
		WHERE status = 'started'
		  AND claimed_at < NOW() - make_interval(secs => $1)
		  AND attempt_count < max_attempts`,
		lease.Seconds(),
	)
	if err != nil {
		return result, fmt.Errorf("reap requeue: %w", err)
	}
	result.Requeued = requeued.RowsAffected()

	dead, err := s.pool.Exec(ctx, `
		UPDATE jobs SET
			status = 'dead',
			retry_at = NULL,
			failure_reason = COALESCE(failure_reason, 'The job could not be completed.'),
			internal_debugging_failure_reason = 'claim lease expired with no attempts remaining',
			claimed_at = NULL,
			claimed_by = NULL,
			updated_at = NOW()
		WHERE status = 'started'
		  AND claimed_at < NOW() - make_interval(secs => $1)
		  AND attempt_count >= max_attempts`,
		lease.Seconds(),
	)
	if err != nil {
		return result, fmt.Errorf("reap dead-letter: %w", err)
	}
	result.DeadLettered = dead.RowsAffected()

	return result, nil
}

func (s *PGStore) Cancel(ctx context.Context, token string, byUser bool) error {
	status := StatusCancelledBySystem
	if byUser {
		status = StatusCancelledByUser
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE jobs SET
			status = $2,
			retry_at = NULL,
			updated_at = NOW()
		WHERE token = $1 AND status IN ('pending', 'attempt_failed')`,
		token, string(status),
	)
	if err != nil {
		return fmt.Errorf("cancel job: %w", err)
	}
	return s.checkTransition(ctx, tag.RowsAffected(), token)
}

func (s *PGStore) Dismiss(ctx context.Context, token string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET is_dismissed_by_user = TRUE, updated_at = NOW() WHERE token = $1`,
		token,
	)
	if err != nil {
		return fmt.Errorf("dismiss job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

func (s *PGStore) UpdateProgress(ctx context.Context, token string, fraction float64) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE jobs SET progress = $2, updated_at = NOW() WHERE token = $1 AND status = 'started'`,
		token, fraction,
	)
	if err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	return nil
}

func (s *PGStore) CheckinKeepalive(ctx context.Context, sessionToken string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO session_keepalives (session_token, last_checkin_at)
		VALUES ($1, NOW())
		ON CONFLICT (session_token) DO UPDATE SET last_checkin_at = NOW()`,
		sessionToken,
	)
	if err != nil {
		return fmt.Errorf("checkin keepalive: %w", err)
	}
	return nil
}

func (s *PGStore) KeepaliveFresh(ctx context.Context, sessionToken string, maxAge time.Duration) (bool, error) {
	var fresh bool
	err := s.pool.QueryRow(ctx, `
		SELECT COALESCE(
			(SELECT last_checkin_at >= NOW() - make_interval(secs => $2)
			 FROM session_keepalives WHERE session_token = $1),
			FALSE
		)`,
		sessionToken, maxAge.Seconds(),
	).Scan(&fresh)
	if err != nil {
		return false, fmt.Errorf("keepalive check: %w", err)
	}
	return fresh, nil
}

// checkTransition maps a zero-row conditional update to the right error:
// the row is either gone or not in the status the transition requires.
func (s *PGStore) checkTransition(ctx context.Context, affected int64, token string) error {
	if affected > 0 {
		return nil
	}
	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM jobs WHERE token = $1)`, token,
	).Scan(&exists); err != nil {
		return fmt.Errorf("check job %s: %w", token, err)
	}
	if !exists {
		return ErrJobNotFound
	}
	return ErrInvalidTransition
}

func scanJob(row pgx.Row) (Job, error) {
	var (
		j          Job
		jobType    string
		status     string
		routingTag pgtype.Text
		argsJSON   []byte
		failure    pgtype.Text
		internal   pgtype.Text
		entityType pgtype.Text
		entityTok  pgtype.Text
		creator    pgtype.Text
		session    pgtype.Text
		claimedBy  pgtype.Text
	)
	err := row.Scan(
		&j.Token, &jobType, &status, &j.Priority, &routingTag, &argsJSON,
		&j.AttemptCount, &j.MaxAttempts, &j.RetryAt,
		&failure, &internal,
		&entityType, &entityTok,
		&creator, &session, &j.Progress, &j.IsDismissedByUser,
		&j.ClaimedAt, &claimedBy, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return Job{}, err
	}

	j.JobType = JobType(jobType)
	j.Status = Status(status)
	j.RoutingTag = routingTag.String
	j.FailureReason = failure.String
	j.InternalDebuggingFailureReason = internal.String
	j.OnSuccessResultEntityType = entityType.String
	j.OnSuccessResultEntityToken = entityTok.String
	j.MaybeCreatorUserToken = creator.String
	j.SessionToken = session.String
	j.ClaimedBy = claimedBy.String

	if len(argsJSON) > 0 {
		if err := json.Unmarshal(argsJSON, &j.Args); err != nil {
			// A malformed payload must not wedge the claim cycle; the
			// dispatcher surfaces it as an invalid job instead.
			j.Args = Args{Type: j.JobType}
		}
	}
	return j, nil
}

func collectJobs(rows pgx.Rows) ([]Job, error) {
	var out []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job row: %w", err)
		}
		out = append(out, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate job rows: %w", err)
	}
	return out, nil
}
