package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/FiditeNemini/artcraft-sub020/internal/jobs"
	"github.com/prometheus/client_golang/prometheus"
)

func newTestServer(store jobs.Store) *Server {
	s := New("127.0.0.1", 0, prometheus.NewRegistry(), func() HealthView {
		return HealthView{Claimable: true, GPUHealthy: true, TakenAt: time.Now()}
	})
	s.RegisterJobsAPI(store, 3)
	return s
}

func doJSON(s *Server, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	return rec
}

func TestJobsAPI_EnqueueAndGet(t *testing.T) {
	store := jobs.NewMemoryStore()
	s := newTestServer(store)

	rec := doJSON(s, http.MethodPost, "/jobs", `{
		"job_type": "text_to_speech",
		"args": {"model_token": "m1", "text": "hello"},
		"priority": 2,
		"routing_tag": "gpu-a"
	}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("enqueue status = %d, body %s", rec.Code, rec.Body.String())
	}

	var created struct {
		Success bool    `json:"success"`
		Data    jobView `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !created.Success || created.Data.Token == "" {
		t.Fatalf("unexpected enqueue response: %s", rec.Body.String())
	}
	if created.Data.Status != "pending" || created.Data.MaxAttempts != 3 {
		t.Errorf("created job = %+v", created.Data)
	}

	rec = doJSON(s, http.MethodGet, "/jobs/"+created.Data.Token, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
}

func TestJobsAPI_EnqueueRejectsUnknownType(t *testing.T) {
	s := newTestServer(jobs.NewMemoryStore())

	rec := doJSON(s, http.MethodPost, "/jobs", `{"job_type": "mine_bitcoin"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 (body %s)", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"success":false`) {
		t.Errorf("error envelope missing: %s", rec.Body.String())
	}
}

func TestJobsAPI_GetMissingJobIs404(t *testing.T) {
	s := newTestServer(jobs.NewMemoryStore())

	rec := doJSON(s, http.MethodGet, "/jobs/job_missing", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestJobsAPI_CancelLifecycle(t *testing.T) {
	store := jobs.NewMemoryStore()
	s := newTestServer(store)

	j, err := store.Enqueue(context.Background(), jobs.NewJob{
		JobType: jobs.TypeTextToSpeech,
		Args: jobs.Args{
			Type:         jobs.TypeTextToSpeech,
			TextToSpeech: &jobs.TextToSpeechArgs{ModelToken: "m1", Text: "hi"},
		},
		MaxAttempts: 3,
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	rec := doJSON(s, http.MethodPost, "/jobs/"+j.Token+"/cancel", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel status = %d", rec.Code)
	}

	got, _ := store.Get(context.Background(), j.Token)
	if got.Status != jobs.StatusCancelledByUser {
		t.Fatalf("status = %s, want cancelled_by_user", got.Status)
	}

	// Cancelling a terminal row conflicts.
	rec = doJSON(s, http.MethodPost, "/jobs/"+j.Token+"/cancel", "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("second cancel status = %d, want 409", rec.Code)
	}
}

func TestJobsAPI_SessionKeepalive(t *testing.T) {
	store := jobs.NewMemoryStore()
	s := newTestServer(store)

	rec := doJSON(s, http.MethodPost, "/sessions/sess_1/keepalive", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("keepalive status = %d", rec.Code)
	}

	fresh, err := store.KeepaliveFresh(context.Background(), "sess_1", time.Minute)
	if err != nil || !fresh {
		t.Fatalf("session not fresh after checkin (fresh=%v, err=%v)", fresh, err)
	}
}
