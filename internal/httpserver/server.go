// Package httpserver is the worker's HTTP surface: a health endpoint
// describing what the process can currently claim, the Prometheus scrape
// endpoint, and the enqueue-side job API (insert, inspect, cancel, dismiss,
// session keepalive). Claimed rows are only ever mutated by the worker loop.
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// HealthView is what /healthz reports about the current capability snapshot.
type HealthView struct {
	Claimable   bool
	GPUHealthy  bool
	JobTypes    []string
	RoutingTags []string
	TakenAt     time.Time
}

type Server struct {
	echo *echo.Echo
	addr string
	view func() HealthView
}

func New(host string, port int, gatherer prometheus.Gatherer, view func() HealthView) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo: e,
		addr: fmt.Sprintf("%s:%d", host, port),
		view: view,
	}

	e.GET("/healthz", s.healthz)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	return s
}

type healthResponse struct {
	Status      string   `json:"status"`
	GPUHealthy  bool     `json:"gpu_healthy"`
	JobTypes    []string `json:"claimable_job_types"`
	RoutingTags []string `json:"routing_tags"`
	TakenAt     string   `json:"snapshot_taken_at"`
}

func (s *Server) healthz(c echo.Context) error {
	v := s.view()

	// "idle" means alive but claiming nothing (unhealthy GPU or no model
	// files); deployment probes treat it as degraded, not dead.
	status := "ok"
	if !v.Claimable {
		status = "idle"
	}

	return c.JSON(http.StatusOK, healthResponse{
		Status:      status,
		GPUHealthy:  v.GPUHealthy,
		JobTypes:    v.JobTypes,
		RoutingTags: v.RoutingTags,
		TakenAt:     v.TakenAt.Format(time.RFC3339),
	})
}

// Run serves until ctx is cancelled, then drains with a short timeout.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.echo.Start(s.addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	log.Info().Str("addr", s.addr).Msg("http server listening")

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.echo.Shutdown(shutdownCtx)
}
