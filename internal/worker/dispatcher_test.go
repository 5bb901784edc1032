package worker

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/FiditeNemini/artcraft-sub020/internal/handler"
	"github.com/FiditeNemini/artcraft-sub020/internal/jobs"
)

type fakeHandler struct {
	jobType jobs.JobType
	fn      func(ctx context.Context, j jobs.Job) (handler.SuccessResult, error)
}

func (f fakeHandler) Type() jobs.JobType { return f.jobType }

func (f fakeHandler) Handle(ctx context.Context, j jobs.Job, _ *handler.Dependencies, _ handler.ProgressReporter) (handler.SuccessResult, error) {
	return f.fn(ctx, j)
}

func ttsJob() jobs.Job {
	return jobs.Job{
		Token:   "job_test",
		JobType: jobs.TypeTextToSpeech,
		Status:  jobs.StatusStarted,
		Args: jobs.Args{
			Type:         jobs.TypeTextToSpeech,
			TextToSpeech: &jobs.TextToSpeechArgs{ModelToken: "m1", Text: "hi"},
		},
		AttemptCount: 1,
		MaxAttempts:  3,
	}
}

func servingSnapshot() CapabilitySnapshot {
	return CapabilitySnapshot{
		JobTypes:   []jobs.JobType{jobs.TypeTextToSpeech},
		ModelReady: map[jobs.JobType]bool{jobs.TypeTextToSpeech: true},
		GPUHealthy: true,
	}
}

func newTestDispatcher(h handler.Handler, store jobs.Store) *Dispatcher {
	registry := handler.NewRegistry()
	if h != nil {
		registry.Register(h)
	}
	if store == nil {
		store = jobs.NewMemoryStore()
	}
	return NewDispatcher(registry, store, &handler.Dependencies{}, 5*time.Millisecond, 20*time.Millisecond)
}

func TestDispatch_Success(t *testing.T) {
	h := fakeHandler{jobType: jobs.TypeTextToSpeech, fn: func(context.Context, jobs.Job) (handler.SuccessResult, error) {
		return handler.SuccessResult{EntityType: "media_file", EntityToken: "media_1"}, nil
	}}
	d := newTestDispatcher(h, nil)

	out := d.Dispatch(context.Background(), ttsJob(), servingSnapshot())
	if out.Kind != OutcomeCompleted {
		t.Fatalf("outcome = %s, want completed (err: %v)", out.Kind, out.Err)
	}
	if out.Result.EntityToken != "media_1" {
		t.Errorf("result entity token = %q, want media_1", out.Result.EntityToken)
	}
}

func TestDispatch_RoutingMismatchSkip(t *testing.T) {
	d := newTestDispatcher(nil, nil)
	j := ttsJob()
	j.RoutingTag = "gpu-a"

	out := d.Dispatch(context.Background(), j, servingSnapshot())
	if out.Kind != OutcomeSkippedRoutingMismatch {
		t.Fatalf("outcome = %s, want skipped_routing_mismatch", out.Kind)
	}
}

func TestDispatch_FilesAbsentSkip(t *testing.T) {
	d := newTestDispatcher(nil, nil)
	snap := servingSnapshot()
	snap.ModelReady[jobs.TypeTextToSpeech] = false

	out := d.Dispatch(context.Background(), ttsJob(), snap)
	if out.Kind != OutcomeSkippedFilesAbsent {
		t.Fatalf("outcome = %s, want skipped_files_absent", out.Kind)
	}
}

func TestDispatch_ArgsTagMismatchIsInvalidJob(t *testing.T) {
	d := newTestDispatcher(nil, nil)
	j := ttsJob()
	j.Args.Type = jobs.TypeImageGeneration
	j.Args.ImageGeneration = &jobs.ImageGenerationArgs{ModelToken: "m", Prompt: "p"}
	j.Args.TextToSpeech = nil

	out := d.Dispatch(context.Background(), j, servingSnapshot())
	if out.Kind != OutcomeFailed {
		t.Fatalf("outcome = %s, want failed", out.Kind)
	}
	if out.Err.Kind != FailInvalidJob {
		t.Errorf("failure kind = %s, want invalid_job", out.Err.Kind)
	}
	if out.Err.Recoverable {
		t.Error("invalid job marked recoverable; retrying cannot fix a malformed row")
	}
}

func TestDispatch_MissingHandlerIsInvalidJob(t *testing.T) {
	d := newTestDispatcher(nil, nil) // empty registry

	out := d.Dispatch(context.Background(), ttsJob(), servingSnapshot())
	if out.Kind != OutcomeFailed || out.Err.Kind != FailInvalidJob {
		t.Fatalf("outcome = %s/%v, want failed/invalid_job", out.Kind, out.Err)
	}
}

func TestDispatch_NotYetImplemented(t *testing.T) {
	d := newTestDispatcher(handler.NotImplemented{JobType: jobs.TypeTextToSpeech}, nil)

	out := d.Dispatch(context.Background(), ttsJob(), servingSnapshot())
	if out.Kind != OutcomeFailed {
		t.Fatalf("outcome = %s, want failed", out.Kind)
	}
	if out.Err.Kind != FailNotYetImplemented {
		t.Errorf("failure kind = %s, want not_yet_implemented", out.Err.Kind)
	}
	if out.Err.Recoverable {
		t.Error("not-yet-implemented marked recoverable")
	}
}

func TestDispatch_HandlerErrorIsRecoverable(t *testing.T) {
	h := fakeHandler{jobType: jobs.TypeTextToSpeech, fn: func(context.Context, jobs.Job) (handler.SuccessResult, error) {
		return handler.SuccessResult{}, errors.New("cuda out of memory")
	}}
	d := newTestDispatcher(h, nil)

	out := d.Dispatch(context.Background(), ttsJob(), servingSnapshot())
	if out.Kind != OutcomeFailed || out.Err.Kind != FailHandler {
		t.Fatalf("outcome = %s/%v, want failed/handler_error", out.Kind, out.Err)
	}
	if !out.Err.Recoverable {
		t.Error("handler error marked non-recoverable")
	}
}

func TestDispatch_HandlerPanicBecomesFailure(t *testing.T) {
	h := fakeHandler{jobType: jobs.TypeTextToSpeech, fn: func(context.Context, jobs.Job) (handler.SuccessResult, error) {
		panic("index out of range")
	}}
	d := newTestDispatcher(h, nil)

	out := d.Dispatch(context.Background(), ttsJob(), servingSnapshot())
	if out.Kind != OutcomeFailed || out.Err.Kind != FailHandler {
		t.Fatalf("outcome = %s/%v, want failed/handler_error", out.Kind, out.Err)
	}
	if !strings.Contains(out.Err.Error(), "panicked") {
		t.Errorf("panic detail missing from error: %v", out.Err)
	}
}

func TestDispatch_ShutdownAbortsAttemptRecoverably(t *testing.T) {
	h := fakeHandler{jobType: jobs.TypeTextToSpeech, fn: func(ctx context.Context, _ jobs.Job) (handler.SuccessResult, error) {
		<-ctx.Done()
		return handler.SuccessResult{}, ctx.Err()
	}}
	d := newTestDispatcher(h, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	out := d.Dispatch(ctx, ttsJob(), servingSnapshot())
	if out.Kind != OutcomeFailed || out.Err.Kind != FailHandler {
		t.Fatalf("outcome = %s/%v, want failed/handler_error", out.Kind, out.Err)
	}
	if !out.Err.Recoverable {
		t.Error("shutdown abort marked non-recoverable; job should retry elsewhere")
	}
}

func TestDispatch_KeepaliveElapsedAbortsSessionTiedJob(t *testing.T) {
	store := jobs.NewMemoryStore()
	h := fakeHandler{jobType: jobs.TypeTextToSpeech, fn: func(ctx context.Context, _ jobs.Job) (handler.SuccessResult, error) {
		<-ctx.Done()
		return handler.SuccessResult{}, ctx.Err()
	}}
	d := newTestDispatcher(h, store)

	j := ttsJob()
	j.SessionToken = "sess_gone" // never checks in

	out := d.Dispatch(context.Background(), j, servingSnapshot())
	if out.Kind != OutcomeFailed {
		t.Fatalf("outcome = %s, want failed", out.Kind)
	}
	if out.Err.Kind != FailKeepAliveElapsed {
		t.Errorf("failure kind = %s, want keepalive_elapsed", out.Err.Kind)
	}
	if out.Err.Recoverable {
		t.Error("keepalive abort marked recoverable; the client is gone")
	}
}

func TestDispatch_FreshKeepaliveLetsSessionTiedJobFinish(t *testing.T) {
	store := jobs.NewMemoryStore()
	if err := store.CheckinKeepalive(context.Background(), "sess_live"); err != nil {
		t.Fatalf("checkin: %v", err)
	}

	h := fakeHandler{jobType: jobs.TypeTextToSpeech, fn: func(context.Context, jobs.Job) (handler.SuccessResult, error) {
		time.Sleep(15 * time.Millisecond) // across multiple keepalive ticks
		return handler.SuccessResult{EntityType: "media_file", EntityToken: "media_2"}, nil
	}}
	registry := handler.NewRegistry()
	registry.Register(h)
	d := NewDispatcher(registry, store, &handler.Dependencies{}, 5*time.Millisecond, time.Minute)

	j := ttsJob()
	j.SessionToken = "sess_live"

	out := d.Dispatch(context.Background(), j, servingSnapshot())
	if out.Kind != OutcomeCompleted {
		t.Fatalf("outcome = %s, want completed (err: %v)", out.Kind, out.Err)
	}
}
