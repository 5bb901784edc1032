package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/FiditeNemini/artcraft-sub020/internal/jobs"
	"github.com/labstack/echo/v4"
)

// dataBody is the success envelope for responses carrying data.
type dataBody[T any] struct {
	Success bool `json:"success"`
	Data    T    `json:"data"`
}

// msgBody is the success envelope for message-only responses.
type msgBody struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type errBody struct {
	Success bool   `json:"success"`
	Err     string `json:"error"`
}

func ok[T any](c echo.Context, status int, data T) error {
	return c.JSON(status, dataBody[T]{Success: true, Data: data})
}

func msg(c echo.Context, message string) error {
	return c.JSON(http.StatusOK, msgBody{Success: true, Message: message})
}

func fail(c echo.Context, status int, err error) error {
	return c.JSON(status, errBody{Success: false, Err: err.Error()})
}

// jobsAPI exposes the enqueue-side surface of the job table: insert, inspect,
// cancel, dismiss, and the session keepalive checkin. Claiming and outcome
// recording stay inside the worker loop; nothing here touches a started row.
type jobsAPI struct {
	store              jobs.Store
	defaultMaxAttempts int
}

// RegisterJobsAPI mounts the job endpoints on the server.
func (s *Server) RegisterJobsAPI(store jobs.Store, defaultMaxAttempts int) {
	api := &jobsAPI{store: store, defaultMaxAttempts: defaultMaxAttempts}

	s.echo.POST("/jobs", api.enqueue)
	s.echo.GET("/jobs/:token", api.get)
	s.echo.POST("/jobs/:token/cancel", api.cancel)
	s.echo.POST("/jobs/:token/dismiss", api.dismiss)
	s.echo.POST("/sessions/:token/keepalive", api.keepalive)
}

type enqueueRequest struct {
	JobType      string          `json:"job_type"`
	Args         json.RawMessage `json:"args"`
	Priority     int             `json:"priority"`
	RoutingTag   string          `json:"routing_tag"`
	MaxAttempts  int             `json:"max_attempts"`
	CreatorToken string          `json:"creator_user_token"`
	SessionToken string          `json:"session_token"`
}

type jobView struct {
	Token         string  `json:"token"`
	JobType       string  `json:"job_type"`
	Status        string  `json:"status"`
	Priority      int     `json:"priority"`
	RoutingTag    string  `json:"routing_tag,omitempty"`
	AttemptCount  int     `json:"attempt_count"`
	MaxAttempts   int     `json:"max_attempts"`
	RetryAt       *string `json:"retry_at,omitempty"`
	FailureReason string  `json:"failure_reason,omitempty"`
	ResultType    string  `json:"result_entity_type,omitempty"`
	ResultToken   string  `json:"result_entity_token,omitempty"`
	Progress      float64 `json:"progress"`
	Dismissed     bool    `json:"is_dismissed_by_user"`
	CreatedAt     string  `json:"created_at"`
	UpdatedAt     string  `json:"updated_at"`
}

func newJobView(j jobs.Job) jobView {
	v := jobView{
		Token:         j.Token,
		JobType:       string(j.JobType),
		Status:        string(j.Status),
		Priority:      j.Priority,
		RoutingTag:    j.RoutingTag,
		AttemptCount:  j.AttemptCount,
		MaxAttempts:   j.MaxAttempts,
		FailureReason: j.FailureReason,
		ResultType:    j.OnSuccessResultEntityType,
		ResultToken:   j.OnSuccessResultEntityToken,
		Progress:      j.Progress,
		Dismissed:     j.IsDismissedByUser,
		CreatedAt:     j.CreatedAt.Format(time.RFC3339),
		UpdatedAt:     j.UpdatedAt.Format(time.RFC3339),
	}
	if j.RetryAt != nil {
		at := j.RetryAt.Format(time.RFC3339)
		v.RetryAt = &at
	}
	return v
}

func (a *jobsAPI) enqueue(c echo.Context) error {
	var req enqueueRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, fmt.Errorf("parse request: %w", err))
	}

	payload := req.Args
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	envelope, err := json.Marshal(map[string]json.RawMessage{
		"type":    json.RawMessage(fmt.Sprintf("%q", req.JobType)),
		"payload": payload,
	})
	if err != nil {
		return fail(c, http.StatusBadRequest, fmt.Errorf("build args envelope: %w", err))
	}
	var args jobs.Args
	if err := json.Unmarshal(envelope, &args); err != nil {
		return fail(c, http.StatusBadRequest, err)
	}

	maxAttempts := req.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = a.defaultMaxAttempts
	}

	j, err := a.store.Enqueue(c.Request().Context(), jobs.NewJob{
		JobType:          jobs.JobType(req.JobType),
		Args:             args,
		Priority:         req.Priority,
		RoutingTag:       req.RoutingTag,
		MaxAttempts:      maxAttempts,
		CreatorUserToken: req.CreatorToken,
		SessionToken:     req.SessionToken,
	})
	if err != nil {
		return fail(c, http.StatusBadRequest, err)
	}
	return ok(c, http.StatusCreated, newJobView(j))
}

func (a *jobsAPI) get(c echo.Context) error {
	j, err := a.store.Get(c.Request().Context(), c.Param("token"))
	if err != nil {
		return jobErr(c, err)
	}
	return ok(c, http.StatusOK, newJobView(j))
}

func (a *jobsAPI) cancel(c echo.Context) error {
	if err := a.store.Cancel(c.Request().Context(), c.Param("token"), true); err != nil {
		return jobErr(c, err)
	}
	return msg(c, "cancelled")
}

func (a *jobsAPI) dismiss(c echo.Context) error {
	if err := a.store.Dismiss(c.Request().Context(), c.Param("token")); err != nil {
		return jobErr(c, err)
	}
	return msg(c, "dismissed")
}

func (a *jobsAPI) keepalive(c echo.Context) error {
	if err := a.store.CheckinKeepalive(c.Request().Context(), c.Param("token")); err != nil {
		return fail(c, http.StatusInternalServerError, err)
	}
	return msg(c, "checked in")
}

func jobErr(c echo.Context, err error) error {
	switch {
	case errors.Is(err, jobs.ErrJobNotFound):
		return fail(c, http.StatusNotFound, err)
	case errors.Is(err, jobs.ErrInvalidTransition):
		return fail(c, http.StatusConflict, err)
	default:
		return fail(c, http.StatusInternalServerError, err)
	}
}
